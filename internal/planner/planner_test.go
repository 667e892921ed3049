package planner

import (
	"strings"
	"testing"

	"github.com/elitan/schemasync/database"
	"github.com/elitan/schemasync/database/postgres"
	"github.com/elitan/schemasync/database/sqlite"
	"github.com/elitan/schemasync/internal/diff"
)

func TestGeneratePlan_AddTable(t *testing.T) {
	cs := &diff.ChangeSet{
		Tables: []diff.TableChange{
			{
				Name:   "users",
				Action: diff.ActionCreate,
				Desired: &database.Table{
					Name: "users",
					Columns: []database.Column{
						{Name: "id", Type: "integer", Nullable: false, IsPrimaryKey: true},
						{Name: "email", Type: "text", Nullable: false},
					},
				},
			},
		},
	}

	driver := postgres.NewDriver()
	plan, err := GeneratePlan(cs, driver)
	if err != nil {
		t.Fatalf("GeneratePlan failed: %v", err)
	}

	if len(plan.Transactional) != 1 {
		t.Fatalf("Expected 1 transactional step, got %d", len(plan.Transactional))
	}

	step := plan.Transactional[0]
	if len(step.SQL) == 0 || !strings.Contains(step.SQL[0], "CREATE TABLE users") {
		t.Errorf("Expected CREATE TABLE in SQL, got: %v", step.SQL)
	}
	if !strings.Contains(step.SQL[0], "id integer NOT NULL PRIMARY KEY") {
		t.Errorf("Expected id column definition in SQL, got: %s", step.SQL[0])
	}
	if !strings.Contains(step.SQL[0], "email text NOT NULL") {
		t.Errorf("Expected email column definition in SQL, got: %s", step.SQL[0])
	}
}

func TestGeneratePlan_DropTable(t *testing.T) {
	cs := &diff.ChangeSet{
		Tables: []diff.TableChange{
			{
				Name:    "old_table",
				Action:  diff.ActionDrop,
				Current: &database.Table{Name: "old_table"},
			},
		},
	}

	driver := postgres.NewDriver()
	plan, err := GeneratePlan(cs, driver)
	if err != nil {
		t.Fatalf("GeneratePlan failed: %v", err)
	}

	if len(plan.Transactional) != 1 {
		t.Fatalf("Expected 1 transactional step, got %d", len(plan.Transactional))
	}

	step := plan.Transactional[0]
	if len(step.SQL) == 0 || step.SQL[0] != "DROP TABLE old_table CASCADE" {
		t.Errorf("Expected 'DROP TABLE old_table CASCADE', got: %v", step.SQL)
	}
}

func TestGeneratePlan_AddColumn(t *testing.T) {
	cs := &diff.ChangeSet{
		Tables: []diff.TableChange{
			{
				Name:   "users",
				Action: diff.ActionAlterInPlace,
				ColumnChanges: []diff.ColumnChange{
					{Op: diff.ColumnOpAddColumn, New: database.Column{Name: "age", Type: "integer", Nullable: true}},
				},
			},
		},
	}

	driver := postgres.NewDriver()
	plan, err := GeneratePlan(cs, driver)
	if err != nil {
		t.Fatalf("GeneratePlan failed: %v", err)
	}

	if len(plan.Transactional) != 1 {
		t.Fatalf("Expected 1 transactional step, got %d", len(plan.Transactional))
	}

	step := plan.Transactional[0]
	if len(step.SQL) == 0 || !strings.Contains(step.SQL[0], "ALTER TABLE users ADD COLUMN age integer") {
		t.Errorf("Expected ALTER TABLE ADD COLUMN, got: %v", step.SQL)
	}
	if strings.Contains(step.SQL[0], "NOT NULL") {
		t.Errorf("Expected nullable column (no NOT NULL), got: %s", step.SQL[0])
	}
}

func TestGeneratePlan_DropColumn(t *testing.T) {
	cs := &diff.ChangeSet{
		Tables: []diff.TableChange{
			{
				Name:   "users",
				Action: diff.ActionAlterInPlace,
				ColumnChanges: []diff.ColumnChange{
					{Op: diff.ColumnOpDropColumn, Old: database.Column{Name: "deprecated_field"}},
				},
			},
		},
	}

	driver := postgres.NewDriver()
	plan, err := GeneratePlan(cs, driver)
	if err != nil {
		t.Fatalf("GeneratePlan failed: %v", err)
	}

	if len(plan.Transactional) != 1 {
		t.Fatalf("Expected 1 transactional step, got %d", len(plan.Transactional))
	}

	step := plan.Transactional[0]
	if len(step.SQL) == 0 || step.SQL[0] != "ALTER TABLE users DROP COLUMN deprecated_field" {
		t.Errorf("Expected 'ALTER TABLE users DROP COLUMN deprecated_field', got: %v", step.SQL)
	}
}

func TestGeneratePlan_ModifyColumn_Type(t *testing.T) {
	cs := &diff.ChangeSet{
		Tables: []diff.TableChange{
			{
				Name:   "users",
				Action: diff.ActionAlterInPlace,
				ColumnChanges: []diff.ColumnChange{
					{
						Op:  diff.ColumnOpAlterType,
						Old: database.Column{Name: "age", Type: "integer", Nullable: true},
						New: database.Column{Name: "age", Type: "bigint", Nullable: true},
					},
				},
			},
		},
	}

	driver := postgres.NewDriver()
	plan, err := GeneratePlan(cs, driver)
	if err != nil {
		t.Fatalf("GeneratePlan failed: %v", err)
	}

	if len(plan.Transactional) != 1 {
		t.Fatalf("Expected 1 transactional step, got %d", len(plan.Transactional))
	}

	step := plan.Transactional[0]
	if len(step.SQL) == 0 || step.SQL[0] != "ALTER TABLE users ALTER COLUMN age TYPE bigint" {
		t.Errorf("Expected type change SQL, got: %v", step.SQL)
	}
}

func TestGeneratePlan_ModifyColumn_Nullable(t *testing.T) {
	driver := postgres.NewDriver()

	csSetNotNull := &diff.ChangeSet{
		Tables: []diff.TableChange{
			{
				Name:   "users",
				Action: diff.ActionAlterInPlace,
				ColumnChanges: []diff.ColumnChange{
					{
						Op:  diff.ColumnOpSetNotNull,
						Old: database.Column{Name: "email", Type: "text", Nullable: true},
						New: database.Column{Name: "email", Type: "text", Nullable: false},
					},
				},
			},
		},
	}

	plan, err := GeneratePlan(csSetNotNull, driver)
	if err != nil {
		t.Fatalf("GeneratePlan failed: %v", err)
	}
	step := plan.Transactional[0]
	if len(step.SQL) == 0 || step.SQL[0] != "ALTER TABLE users ALTER COLUMN email SET NOT NULL" {
		t.Errorf("Expected SET NOT NULL, got: %v", step.SQL)
	}

	csDropNotNull := &diff.ChangeSet{
		Tables: []diff.TableChange{
			{
				Name:   "users",
				Action: diff.ActionAlterInPlace,
				ColumnChanges: []diff.ColumnChange{
					{
						Op:  diff.ColumnOpDropNotNull,
						Old: database.Column{Name: "email", Type: "text", Nullable: false},
						New: database.Column{Name: "email", Type: "text", Nullable: true},
					},
				},
			},
		},
	}

	plan, err = GeneratePlan(csDropNotNull, driver)
	if err != nil {
		t.Fatalf("GeneratePlan failed: %v", err)
	}
	step = plan.Transactional[0]
	if len(step.SQL) == 0 || step.SQL[0] != "ALTER TABLE users ALTER COLUMN email DROP NOT NULL" {
		t.Errorf("Expected DROP NOT NULL, got: %v", step.SQL)
	}
}

func TestGeneratePlan_ModifyColumn_Default(t *testing.T) {
	defaultVal := "now()"

	cs := &diff.ChangeSet{
		Tables: []diff.TableChange{
			{
				Name:   "users",
				Action: diff.ActionAlterInPlace,
				ColumnChanges: []diff.ColumnChange{
					{
						Op:  diff.ColumnOpSetDefault,
						Old: database.Column{Name: "created_at", Type: "timestamp", Nullable: true},
						New: database.Column{Name: "created_at", Type: "timestamp", Nullable: true, Default: &defaultVal},
					},
				},
			},
		},
	}

	driver := postgres.NewDriver()
	plan, err := GeneratePlan(cs, driver)
	if err != nil {
		t.Fatalf("GeneratePlan failed: %v", err)
	}

	if len(plan.Transactional) != 1 {
		t.Fatalf("Expected 1 transactional step, got %d", len(plan.Transactional))
	}

	step := plan.Transactional[0]
	if len(step.SQL) == 0 || step.SQL[0] != "ALTER TABLE users ALTER COLUMN created_at SET DEFAULT now()" {
		t.Errorf("Expected SET DEFAULT, got: %v", step.SQL)
	}
}

func TestGeneratePlan_AddIndex(t *testing.T) {
	cs := &diff.ChangeSet{
		Tables: []diff.TableChange{
			{
				Name:   "users",
				Action: diff.ActionAlterInPlace,
				AddedIndexes: []database.Index{
					{Name: "idx_users_email", Columns: []string{"email"}, Unique: true},
				},
			},
		},
	}

	driver := postgres.NewDriver()
	plan, err := GeneratePlan(cs, driver)
	if err != nil {
		t.Fatalf("GeneratePlan failed: %v", err)
	}

	if len(plan.Transactional) != 1 {
		t.Fatalf("Expected 1 transactional step, got %d", len(plan.Transactional))
	}

	step := plan.Transactional[0]
	if len(step.SQL) == 0 || step.SQL[0] != "CREATE UNIQUE INDEX idx_users_email ON users (email)" {
		t.Errorf("Expected CREATE UNIQUE INDEX, got: %v", step.SQL)
	}
}

func TestGeneratePlan_AddIndex_Concurrent(t *testing.T) {
	cs := &diff.ChangeSet{
		Tables: []diff.TableChange{
			{
				Name:   "users",
				Action: diff.ActionAlterInPlace,
				AddedIndexes: []database.Index{
					{Name: "idx_users_email", Columns: []string{"email"}, Concurrent: true},
				},
			},
		},
	}

	driver := postgres.NewDriver()
	plan, err := GeneratePlan(cs, driver)
	if err != nil {
		t.Fatalf("GeneratePlan failed: %v", err)
	}

	if len(plan.Transactional) != 0 {
		t.Errorf("Expected no transactional steps for a concurrent index, got %d", len(plan.Transactional))
	}
	if len(plan.Concurrent) != 1 {
		t.Fatalf("Expected 1 concurrent step, got %d", len(plan.Concurrent))
	}
}

func TestGeneratePlan_DropIndex(t *testing.T) {
	cs := &diff.ChangeSet{
		Tables: []diff.TableChange{
			{
				Name:   "users",
				Action: diff.ActionAlterInPlace,
				DroppedIndexes: []database.Index{
					{Name: "idx_old"},
				},
			},
		},
	}

	driver := postgres.NewDriver()
	plan, err := GeneratePlan(cs, driver)
	if err != nil {
		t.Fatalf("GeneratePlan failed: %v", err)
	}

	if len(plan.Transactional) != 1 {
		t.Fatalf("Expected 1 transactional step, got %d", len(plan.Transactional))
	}

	step := plan.Transactional[0]
	if len(step.SQL) == 0 || step.SQL[0] != `DROP INDEX IF EXISTS "idx_old"` {
		t.Errorf("Expected quoted IF EXISTS drop, got: %v", step.SQL)
	}
}

func TestGeneratePlan_NoChanges(t *testing.T) {
	cs := &diff.ChangeSet{}

	driver := postgres.NewDriver()
	plan, err := GeneratePlan(cs, driver)
	if err != nil {
		t.Fatalf("GeneratePlan failed: %v", err)
	}

	if !plan.IsEmpty() {
		t.Errorf("Expected empty plan for an empty ChangeSet, got %d steps", plan.StepCount())
	}
}

func TestGeneratePlan_ForeignKeyOrdering(t *testing.T) {
	cs := &diff.ChangeSet{
		Tables: []diff.TableChange{
			{
				Name:   "posts",
				Action: diff.ActionCreate,
				Desired: &database.Table{
					Name: "posts",
					Columns: []database.Column{
						{Name: "id", Type: "integer", IsPrimaryKey: true},
						{Name: "user_id", Type: "integer"},
					},
					ForeignKeys: []database.ForeignKey{
						{Name: "fk_posts_user", Columns: []string{"user_id"}, ReferencedTable: "users", ReferencedColumns: []string{"id"}},
					},
				},
			},
			{
				Name:   "users",
				Action: diff.ActionCreate,
				Desired: &database.Table{
					Name: "users",
					Columns: []database.Column{
						{Name: "id", Type: "integer", IsPrimaryKey: true},
					},
				},
			},
		},
	}

	driver := postgres.NewDriver()
	plan, err := GeneratePlan(cs, driver)
	if err != nil {
		t.Fatalf("GeneratePlan failed: %v", err)
	}

	var usersIdx, postsIdx, fkIdx = -1, -1, -1
	for i, step := range plan.Transactional {
		if len(step.SQL) == 0 {
			continue
		}
		switch {
		case strings.Contains(step.SQL[0], "CREATE TABLE users"):
			usersIdx = i
		case strings.Contains(step.SQL[0], "CREATE TABLE posts"):
			postsIdx = i
		case strings.Contains(step.SQL[0], "FOREIGN KEY"):
			fkIdx = i
		}
	}

	if usersIdx == -1 || postsIdx == -1 {
		t.Fatalf("Expected both CREATE TABLE statements, got steps: %+v", plan.Transactional)
	}
	if usersIdx > postsIdx {
		t.Errorf("Expected users (referenced table) to be created before posts, got users at %d, posts at %d", usersIdx, postsIdx)
	}
	if fkIdx != -1 && fkIdx < postsIdx {
		t.Errorf("Expected foreign key to be added after its table exists")
	}
}

func TestGeneratePlan_SQLite_ModifyColumn_UsesTableRecreation(t *testing.T) {
	cs := &diff.ChangeSet{
		Tables: []diff.TableChange{
			{
				Name:   "products",
				Action: diff.ActionAlterInPlace,
				Current: &database.Table{
					Name: "products",
					Columns: []database.Column{
						{Name: "id", Type: "integer", IsPrimaryKey: true},
						{Name: "price", Type: "integer"},
					},
				},
				Desired: &database.Table{
					Name: "products",
					Columns: []database.Column{
						{Name: "id", Type: "integer", IsPrimaryKey: true},
						{Name: "price", Type: "real"},
					},
				},
				ColumnChanges: []diff.ColumnChange{
					{
						Op:  diff.ColumnOpAlterType,
						Old: database.Column{Name: "price", Type: "integer"},
						New: database.Column{Name: "price", Type: "real"},
					},
				},
			},
		},
	}

	driver := sqlite.NewDriver()
	plan, err := GeneratePlan(cs, driver)
	if err != nil {
		t.Fatalf("GeneratePlan failed: %v", err)
	}

	var sawCreateNew, sawRename bool
	for _, step := range plan.Transactional {
		for _, stmt := range step.SQL {
			if strings.Contains(stmt, "CREATE TABLE _products_new") {
				sawCreateNew = true
			}
			if stmt == "ALTER TABLE _products_new RENAME TO products" {
				sawRename = true
			}
		}
	}
	if !sawCreateNew || !sawRename {
		t.Errorf("Expected SQLite column type change to go through table recreation, got steps: %+v", plan.Transactional)
	}
}

func TestGeneratePlan_SQLite_AddColumn_NoRecreation(t *testing.T) {
	cs := &diff.ChangeSet{
		Tables: []diff.TableChange{
			{
				Name:   "products",
				Action: diff.ActionAlterInPlace,
				Current: &database.Table{
					Name: "products",
					Columns: []database.Column{
						{Name: "id", Type: "integer", IsPrimaryKey: true},
					},
				},
				Desired: &database.Table{
					Name: "products",
					Columns: []database.Column{
						{Name: "id", Type: "integer", IsPrimaryKey: true},
						{Name: "sku", Type: "text", Nullable: true},
					},
				},
				ColumnChanges: []diff.ColumnChange{
					{Op: diff.ColumnOpAddColumn, New: database.Column{Name: "sku", Type: "text", Nullable: true}},
				},
			},
		},
	}

	driver := sqlite.NewDriver()
	plan, err := GeneratePlan(cs, driver)
	if err != nil {
		t.Fatalf("GeneratePlan failed: %v", err)
	}

	if len(plan.Transactional) != 1 {
		t.Fatalf("Expected 1 transactional step for a plain ADD COLUMN, got %d", len(plan.Transactional))
	}
	if !strings.Contains(plan.Transactional[0].SQL[0], "ALTER TABLE products ADD COLUMN sku") {
		t.Errorf("Expected plain ADD COLUMN (no recreation), got: %s", plan.Transactional[0].SQL[0])
	}
}

func TestGeneratePlan_SerialSequence_OwnershipAfterTable(t *testing.T) {
	maxVal := int64(2147483647)
	minVal := int64(1)
	cs := &diff.ChangeSet{
		Sequences: []diff.SequenceChange{
			{
				Name:   "orders_id_seq",
				Action: diff.ActionCreate,
				Desired: &database.Sequence{
					Name:          "orders_id_seq",
					Increment:     1,
					MinValue:      &minVal,
					MaxValue:      &maxVal,
					Start:         1,
					Cache:         1,
					OwnedByTable:  "orders",
					OwnedByColumn: "id",
				},
			},
		},
		Tables: []diff.TableChange{
			{
				Name:   "orders",
				Action: diff.ActionCreate,
				Desired: &database.Table{
					Name: "orders",
					Columns: []database.Column{
						{Name: "id", Type: "integer", Nullable: false, IsPrimaryKey: true},
					},
				},
			},
		},
	}

	driver := postgres.NewDriver()
	plan, err := GeneratePlan(cs, driver)
	if err != nil {
		t.Fatalf("GeneratePlan failed: %v", err)
	}

	if len(plan.Transactional) != 3 {
		t.Fatalf("Expected 3 transactional steps (create sequence, create table, set ownership), got %d: %+v", len(plan.Transactional), plan.Transactional)
	}

	seqIdx, tableIdx, ownershipIdx := -1, -1, -1
	for i, step := range plan.Transactional {
		switch {
		case strings.Contains(step.SQL[0], "CREATE SEQUENCE"):
			seqIdx = i
			if strings.Contains(step.SQL[0], "OWNED BY") {
				t.Errorf("CREATE SEQUENCE should not carry OWNED BY inline (table doesn't exist yet): %s", step.SQL[0])
			}
		case strings.Contains(step.SQL[0], "CREATE TABLE"):
			tableIdx = i
		case strings.Contains(step.SQL[0], "ALTER SEQUENCE") && strings.Contains(step.SQL[0], "OWNED BY"):
			ownershipIdx = i
		}
	}

	if seqIdx == -1 || tableIdx == -1 || ownershipIdx == -1 {
		t.Fatalf("Expected CREATE SEQUENCE, CREATE TABLE, and ALTER SEQUENCE OWNED BY steps, got: %+v", plan.Transactional)
	}
	if !(seqIdx < tableIdx && tableIdx < ownershipIdx) {
		t.Errorf("Expected ordering sequence(%d) < table(%d) < ownership(%d)", seqIdx, tableIdx, ownershipIdx)
	}
}

func TestGeneratePlan_AddCheckConstraint_SplitsNotValidAndValidate(t *testing.T) {
	cs := &diff.ChangeSet{
		Tables: []diff.TableChange{
			{
				Name:   "orders",
				Action: diff.ActionAlterInPlace,
				Current: &database.Table{
					Name:    "orders",
					Columns: []database.Column{{Name: "amount", Type: "integer"}},
				},
				Desired: &database.Table{
					Name:    "orders",
					Columns: []database.Column{{Name: "amount", Type: "integer"}},
				},
				AddedChecks: []database.CheckConstraint{
					{Name: "orders_amount_check", Expression: "amount > 0"},
				},
			},
		},
	}

	driver := postgres.NewDriver()
	plan, err := GeneratePlan(cs, driver)
	if err != nil {
		t.Fatalf("GeneratePlan failed: %v", err)
	}

	if len(plan.Transactional) != 1 {
		t.Fatalf("Expected 1 transactional step (the NOT VALID phase), got %d: %+v", len(plan.Transactional), plan.Transactional)
	}
	if !strings.Contains(plan.Transactional[0].SQL[0], "NOT VALID") {
		t.Errorf("Expected ADD CONSTRAINT ... NOT VALID, got: %s", plan.Transactional[0].SQL[0])
	}

	if len(plan.Deferred) != 1 {
		t.Fatalf("Expected 1 deferred step (VALIDATE CONSTRAINT), got %d: %+v", len(plan.Deferred), plan.Deferred)
	}
	if !strings.Contains(plan.Deferred[0].SQL[0], `VALIDATE CONSTRAINT "orders_amount_check"`) {
		t.Errorf("Expected VALIDATE CONSTRAINT in deferred step, got: %s", plan.Deferred[0].SQL[0])
	}
}

func TestGeneratePlan_AddUniqueConstraint_StaysSingleStep(t *testing.T) {
	cs := &diff.ChangeSet{
		Tables: []diff.TableChange{
			{
				Name:   "orders",
				Action: diff.ActionAlterInPlace,
				Current: &database.Table{
					Name:    "orders",
					Columns: []database.Column{{Name: "external_id", Type: "text"}},
				},
				Desired: &database.Table{
					Name:    "orders",
					Columns: []database.Column{{Name: "external_id", Type: "text"}},
				},
				AddedUniques: []database.UniqueConstraint{
					{Name: "orders_external_id_unique", Columns: []string{"external_id"}},
				},
			},
		},
	}

	driver := postgres.NewDriver()
	plan, err := GeneratePlan(cs, driver)
	if err != nil {
		t.Fatalf("GeneratePlan failed: %v", err)
	}

	// UNIQUE constraints can't be added NOT VALID in PostgreSQL, so this
	// never splits into a deferred phase.
	if len(plan.Deferred) != 0 {
		t.Errorf("Expected no deferred steps for a UNIQUE constraint, got: %+v", plan.Deferred)
	}
	if len(plan.Transactional) != 1 || !strings.Contains(plan.Transactional[0].SQL[0], `ADD CONSTRAINT "orders_external_id_unique" UNIQUE`) {
		t.Errorf("Expected a single ADD CONSTRAINT ... UNIQUE step, got: %+v", plan.Transactional)
	}
}
