package planner

import (
	"fmt"
	"sort"
	"strings"

	"github.com/elitan/schemasync/database"
	"github.com/elitan/schemasync/internal/diff"
	"github.com/elitan/schemasync/internal/locks"
	"github.com/elitan/schemasync/internal/schema"
)

// GeneratePlan lowers a ChangeSet into a bucketed, dependency-ordered
// MigrationPlan using driver for dialect-specific SQL rendering.
func GeneratePlan(cs *diff.ChangeSet, driver database.Driver) (*MigrationPlan, error) {
	return GeneratePlanWithHash(cs, nil, driver)
}

// GeneratePlanWithHash additionally stamps the plan with a hash of the
// source schema it was generated from (the state the target database is
// expected to be in), so a later apply can detect drift between planning
// time and apply time.
func GeneratePlanWithHash(cs *diff.ChangeSet, sourceSchema *database.Schema, driver database.Driver) (*MigrationPlan, error) {
	plan := &MigrationPlan{}

	if sourceSchema != nil {
		hash, err := schema.ComputeSchemaHash(sourceSchema)
		if err != nil {
			return nil, fmt.Errorf("failed to compute source schema hash: %w", err)
		}
		plan.SourceHash = hash
	}

	b := &builder{plan: plan, driver: driver}

	// Rule 1: CREATE SCHEMA, CREATE EXTENSION.
	b.planSchemas(cs.Schemas)
	b.planExtensions(cs.Extensions)

	// Rule 2: CREATE TYPE (enums).
	b.planEnums(cs.Enums)

	// Rule 3: CREATE SEQUENCE.
	b.planSequences(cs.Sequences)

	// Rule 4: drops, in reverse dependency order.
	b.planTriggerDrops(cs.Triggers)
	b.planViewDrops(cs.Views)
	b.planFunctionDrops(cs.Functions)
	b.planProcedureDrops(cs.Procedures)
	b.planForeignKeyDrops(cs.Tables)
	b.planIndexDrops(cs.Tables)
	b.planTableDrops(cs.Tables)
	b.planEnumDrops(cs.Enums)
	b.planSequenceDrops(cs.Sequences)
	b.planSchemaDrops(cs.Schemas)

	// Rule 5: CREATE TABLE / ALTER TABLE / recreations, topologically
	// sorted by foreign-key edges with cycle breaking.
	if err := b.planTables(cs.Tables); err != nil {
		return nil, err
	}
	b.planSequenceOwnership(cs.Sequences)

	// Rule 6: standalone indexes (the remaining AddedIndexes not already
	// emitted inline with CREATE TABLE).
	b.planStandaloneIndexes(cs.Tables)

	// Rule 7: views, in declared dependency order.
	b.planViews(cs.Views)

	// Rule 8: functions, procedures.
	b.planFunctions(cs.Functions)
	b.planProcedures(cs.Procedures)

	// Rule 9: triggers, after their table and function both exist.
	b.planTriggers(cs.Triggers)

	// Rule 10: comments last.
	b.planComments(cs.Comments)

	return plan, nil
}

// builder accumulates PlanSteps into the plan's buckets while lowering
// one ChangeSet entity kind at a time.
type builder struct {
	plan   *MigrationPlan
	driver database.Driver
}

func (b *builder) transactional(desc string, sql ...string) {
	b.plan.Transactional = append(b.plan.Transactional, PlanStep{Description: desc, SQL: sql})
}

func (b *builder) concurrent(desc string, sql ...string) {
	b.plan.Concurrent = append(b.plan.Concurrent, PlanStep{Description: desc, SQL: sql})
}

func (b *builder) deferred(desc string, sql ...string) {
	b.plan.Deferred = append(b.plan.Deferred, PlanStep{Description: desc, SQL: sql})
}

// addConstraintValidated emits an ADD CONSTRAINT statement, splitting it
// into a NOT VALID phase plus a deferred VALIDATE CONSTRAINT phase on
// dialects that support it (internal/locks.GenerateSaferRewrite knows the
// NOT VALID + VALIDATE CONSTRAINT rewrite for FOREIGN KEY and CHECK
// constraints). A plain ADD CONSTRAINT takes an ACCESS EXCLUSIVE lock for
// as long as it takes to scan the whole table; splitting it means only
// the brief NOT VALID phase runs inside the main transaction, and the
// table-scanning VALIDATE CONSTRAINT runs afterward with a much lighter
// lock. Dialects that don't support NOT VALID (and UNIQUE/PRIMARY KEY
// constraints, which PostgreSQL never lets use NOT VALID) fall back to a
// single transactional statement.
func (b *builder) addConstraintValidated(desc, sql string) {
	if !b.driver.SupportsFeature("NOT_VALID_CONSTRAINTS") {
		b.transactional(desc, sql)
		return
	}

	rewrite := locks.GenerateSaferRewrite(database.PlanStep{Description: desc, SQL: []string{sql}})
	if rewrite == nil || !rewrite.RequiresMultipleSteps || len(rewrite.SQL) != 2 {
		b.transactional(desc, sql)
		return
	}

	notValidStep := database.PlanStep{Description: desc, SQL: []string{rewrite.SQL[0]}}
	if !locks.IsAddConstraintNotValid(notValidStep) {
		b.transactional(desc, sql)
		return
	}
	b.transactional(desc, rewrite.SQL[0])

	validateStep := database.PlanStep{Description: "Validate constraint for " + desc, SQL: []string{rewrite.SQL[1]}}
	if locks.IsValidateConstraint(validateStep) {
		b.deferred(validateStep.Description, validateStep.SQL...)
	} else {
		b.deferred("Validate constraint for "+desc, rewrite.SQL[1])
	}
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (b *builder) planSchemas(changes []diff.SchemaObjectChange) {
	for _, ch := range changes {
		if ch.Action != diff.ActionCreate || ch.Desired == nil {
			continue
		}
		sql := fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", quoteIdent(ch.Desired.Name))
		if ch.Desired.Owner != "" {
			sql += " AUTHORIZATION " + quoteIdent(ch.Desired.Owner)
		}
		b.transactional("Create schema "+ch.Desired.Name, sql)
	}
}

func (b *builder) planSchemaDrops(changes []diff.SchemaObjectChange) {
	for _, ch := range changes {
		if ch.Action != diff.ActionDrop || ch.Current == nil {
			continue
		}
		b.transactional("Drop schema "+ch.Current.Name, fmt.Sprintf("DROP SCHEMA IF EXISTS %s", quoteIdent(ch.Current.Name)))
	}
}

func (b *builder) planExtensions(changes []diff.ExtensionChange) {
	for _, ch := range changes {
		if ch.Action != diff.ActionCreate || ch.Desired == nil {
			continue
		}
		sql := fmt.Sprintf("CREATE EXTENSION IF NOT EXISTS %s", quoteIdent(ch.Desired.Name))
		if ch.Desired.Schema != "" {
			sql += " SCHEMA " + quoteIdent(ch.Desired.Schema)
		}
		if ch.Desired.Version != "" {
			sql += fmt.Sprintf(" VERSION '%s'", ch.Desired.Version)
		}
		b.transactional("Create extension "+ch.Desired.Name, sql)
	}
}

func (b *builder) planEnums(changes []diff.EnumChange) {
	for _, ch := range changes {
		switch ch.Action {
		case diff.ActionCreate:
			b.transactional("Create enum "+ch.Desired.Name, renderCreateEnum(*ch.Desired))
		case diff.ActionAlterInPlace:
			for _, v := range ch.AddedValues {
				b.transactional(
					fmt.Sprintf("Add value %q to enum %s", v, ch.Name),
					fmt.Sprintf("ALTER TYPE %s ADD VALUE '%s'", quoteIdent(ch.Name), v),
				)
			}
		case diff.ActionRecreate:
			b.transactional("Drop enum "+ch.Current.Name, fmt.Sprintf("DROP TYPE %s", quoteIdent(ch.Current.Name)))
			b.transactional("Recreate enum "+ch.Desired.Name, renderCreateEnum(*ch.Desired))
		}
	}
}

func renderCreateEnum(e database.EnumType) string {
	quoted := make([]string, len(e.Values))
	for i, v := range e.Values {
		quoted[i] = "'" + strings.ReplaceAll(v, "'", "''") + "'"
	}
	return fmt.Sprintf("CREATE TYPE %s AS ENUM (%s)", quoteIdent(e.Name), strings.Join(quoted, ", "))
}

func (b *builder) planEnumDrops(changes []diff.EnumChange) {
	for _, ch := range changes {
		if ch.Action != diff.ActionDrop || ch.Current == nil {
			continue
		}
		b.transactional("Drop enum "+ch.Current.Name, fmt.Sprintf("DROP TYPE %s", quoteIdent(ch.Current.Name)))
	}
}

func (b *builder) planSequences(changes []diff.SequenceChange) {
	for _, ch := range changes {
		switch ch.Action {
		case diff.ActionCreate:
			b.transactional("Create sequence "+ch.Desired.Name, renderCreateSequence(*ch.Desired))
		case diff.ActionAlterInPlace:
			b.transactional("Alter sequence "+ch.Desired.Name, renderAlterSequence(*ch.Desired, ch.ChangedFields))
		}
	}
}

// planSequenceOwnership attaches OWNED BY after tables are planned rather
// than inline on CREATE SEQUENCE: a SERIAL column's sequence and its
// owning table are often created in the same migration, and PostgreSQL
// rejects OWNED BY referencing a column that doesn't exist yet. Running
// this after Rule 5 (CREATE TABLE) guarantees the column is already
// there, whether the table was just created or already existed.
func (b *builder) planSequenceOwnership(changes []diff.SequenceChange) {
	for _, ch := range changes {
		if ch.Action != diff.ActionCreate || ch.Desired == nil {
			continue
		}
		s := ch.Desired
		if s.OwnedByTable == "" || s.OwnedByColumn == "" {
			continue
		}
		sql := fmt.Sprintf("ALTER SEQUENCE %s OWNED BY %s.%s", quoteIdent(s.Name), quoteIdent(s.OwnedByTable), quoteIdent(s.OwnedByColumn))
		b.transactional("Set ownership for sequence "+s.Name, sql)
	}
}

func renderCreateSequence(s database.Sequence) string {
	var parts []string
	parts = append(parts, fmt.Sprintf("CREATE SEQUENCE %s", quoteIdent(s.Name)))
	if s.Increment != 0 {
		parts = append(parts, fmt.Sprintf("INCREMENT BY %d", s.Increment))
	}
	if s.MinValue != nil {
		parts = append(parts, fmt.Sprintf("MINVALUE %d", *s.MinValue))
	}
	if s.MaxValue != nil {
		parts = append(parts, fmt.Sprintf("MAXVALUE %d", *s.MaxValue))
	}
	if s.Start != 0 {
		parts = append(parts, fmt.Sprintf("START WITH %d", s.Start))
	}
	if s.Cache != 0 {
		parts = append(parts, fmt.Sprintf("CACHE %d", s.Cache))
	}
	if s.Cycle {
		parts = append(parts, "CYCLE")
	}
	return strings.Join(parts, " ")
}

func renderAlterSequence(s database.Sequence, changed []string) string {
	sql := fmt.Sprintf("ALTER SEQUENCE %s", quoteIdent(s.Name))
	for _, field := range changed {
		switch field {
		case "increment":
			sql += fmt.Sprintf(" INCREMENT BY %d", s.Increment)
		case "min_value":
			if s.MinValue != nil {
				sql += fmt.Sprintf(" MINVALUE %d", *s.MinValue)
			}
		case "max_value":
			if s.MaxValue != nil {
				sql += fmt.Sprintf(" MAXVALUE %d", *s.MaxValue)
			}
		case "cache":
			sql += fmt.Sprintf(" CACHE %d", s.Cache)
		case "cycle":
			if s.Cycle {
				sql += " CYCLE"
			} else {
				sql += " NO CYCLE"
			}
		}
	}
	return sql
}

func (b *builder) planSequenceDrops(changes []diff.SequenceChange) {
	for _, ch := range changes {
		if ch.Action != diff.ActionDrop || ch.Current == nil {
			continue
		}
		b.transactional("Drop sequence "+ch.Current.Name, fmt.Sprintf("DROP SEQUENCE %s", quoteIdent(ch.Current.Name)))
	}
}

func (b *builder) planTriggerDrops(changes []diff.TriggerChange) {
	for _, ch := range changes {
		if (ch.Action != diff.ActionDrop && ch.Action != diff.ActionRecreate) || ch.Current == nil {
			continue
		}
		b.transactional(
			fmt.Sprintf("Drop trigger %s on %s", ch.Current.Name, ch.Current.Table),
			fmt.Sprintf("DROP TRIGGER IF EXISTS %s ON %s", quoteIdent(ch.Current.Name), quoteIdent(ch.Current.Table)),
		)
	}
}

func (b *builder) planViewDrops(changes []diff.ViewChange) {
	for _, ch := range changes {
		if (ch.Action != diff.ActionDrop && ch.Action != diff.ActionRecreate) || ch.Current == nil {
			continue
		}
		kind := "VIEW"
		if ch.Current.Materialized {
			kind = "MATERIALIZED VIEW"
			for _, idx := range ch.Current.Indexes {
				b.transactional("Drop index "+idx.Name, fmt.Sprintf("DROP INDEX IF EXISTS %s", quoteIdent(idx.Name)))
			}
		}
		b.transactional("Drop "+strings.ToLower(kind)+" "+ch.Current.Name, fmt.Sprintf("DROP %s IF EXISTS %s", kind, quoteIdent(ch.Current.Name)))
	}
}

func (b *builder) planFunctionDrops(changes []diff.FunctionChange) {
	for _, ch := range changes {
		if (ch.Action != diff.ActionDrop && ch.Action != diff.ActionRecreate) || ch.Current == nil {
			continue
		}
		b.transactional("Drop function "+ch.Current.Name, fmt.Sprintf("DROP FUNCTION IF EXISTS %s", quoteIdent(ch.Current.Name)))
	}
}

func (b *builder) planProcedureDrops(changes []diff.ProcedureChange) {
	for _, ch := range changes {
		if (ch.Action != diff.ActionDrop && ch.Action != diff.ActionRecreate) || ch.Current == nil {
			continue
		}
		b.transactional("Drop procedure "+ch.Current.Name, fmt.Sprintf("DROP PROCEDURE IF EXISTS %s", quoteIdent(ch.Current.Name)))
	}
}

func (b *builder) planForeignKeyDrops(changes []diff.TableChange) {
	for _, tc := range changes {
		if tc.Action == diff.ActionDrop {
			continue // DROP TABLE removes its own foreign keys
		}
		for _, fk := range tc.DroppedForeignKeys {
			sql, desc := b.driver.DropForeignKey(tc.Name, fk)
			b.transactional(desc, sql)
		}
	}
}

func (b *builder) planIndexDrops(changes []diff.TableChange) {
	for _, tc := range changes {
		if tc.Action == diff.ActionDrop {
			continue
		}
		for _, idx := range tc.DroppedIndexes {
			_, desc := b.driver.DropIndex(tc.Name, idx)
			b.transactional(desc, fmt.Sprintf("DROP INDEX IF EXISTS %s", quoteIdent(idx.Name)))
		}
	}
}

func (b *builder) planTableDrops(changes []diff.TableChange) {
	for _, tc := range changes {
		if tc.Action != diff.ActionDrop || tc.Current == nil {
			continue
		}
		sql, desc := b.driver.DropTable(*tc.Current)
		b.transactional(desc, sql)
	}
}

// planTables handles rule 5: CREATE TABLE / ALTER TABLE / recreations,
// topologically sorted by foreign-key edges with SCC-based cycle breaking.
func (b *builder) planTables(changes []diff.TableChange) error {
	var toCreate []database.Table
	nameToChange := map[string]diff.TableChange{}
	for _, tc := range changes {
		if tc.Action == diff.ActionCreate && tc.Desired != nil {
			toCreate = append(toCreate, *tc.Desired)
		}
		nameToChange[strings.ToLower(tc.Name)] = tc
	}

	ordered, deferredFKs := orderTablesForCreation(toCreate)
	for _, table := range ordered {
		sql, desc := b.driver.CreateTable(table)
		b.transactional(desc, sql)
	}
	for tableName, fks := range deferredFKs {
		for _, fk := range fks {
			sql, desc := b.driver.AddForeignKey(tableName, fk)
			b.addConstraintValidated(desc, sql)
		}
	}

	for _, name := range sortedChangeNames(changes) {
		tc := nameToChange[name]
		switch tc.Action {
		case diff.ActionAlterInPlace:
			b.planAlterTable(tc)
		case diff.ActionRecreate:
			if tc.Current != nil {
				sql, desc := b.driver.DropTable(*tc.Current)
				b.transactional(desc, sql)
			}
			if tc.Desired != nil {
				sql, desc := b.driver.CreateTable(*tc.Desired)
				b.transactional(desc, sql)
				for _, fk := range tc.Desired.ForeignKeys {
					fkSQL, fkDesc := b.driver.AddForeignKey(tc.Desired.Name, fk)
					b.transactional(fkDesc, fkSQL)
				}
			}
		}
	}

	return nil
}

// columnOpCategory maps a ColumnOp to the coarse "type"/"nullable"/"default"
// category database.ColumnDiff.Changes expects, since the generators group
// ALTER COLUMN clauses by category rather than by the finer-grained op the
// diff engine distinguishes (set vs drop not null/default).
func columnOpCategory(op diff.ColumnOp) string {
	switch op {
	case diff.ColumnOpAlterType:
		return "type"
	case diff.ColumnOpSetNotNull, diff.ColumnOpDropNotNull:
		return "nullable"
	case diff.ColumnOpSetDefault, diff.ColumnOpDropDefault:
		return "default"
	default:
		return string(op)
	}
}

func sortedChangeNames(changes []diff.TableChange) []string {
	names := make([]string, 0, len(changes))
	for _, tc := range changes {
		names = append(names, strings.ToLower(tc.Name))
	}
	sort.Strings(names)
	return names
}

func (b *builder) planAlterTable(tc diff.TableChange) {
	if tr, ok := b.driver.(database.TableRecreator); ok && tc.Current != nil && tc.Desired != nil && needsTableRecreation(tc) {
		for _, step := range tr.RecreateTable(*tc.Current, *tc.Desired) {
			b.transactional(step.Description, step.SQL...)
		}
		return
	}

	for _, cc := range tc.ColumnChanges {
		switch cc.Op {
		case diff.ColumnOpAddColumn:
			sql, desc := b.driver.AddColumn(tc.Name, cc.New)
			b.transactional(desc, sql)
		case diff.ColumnOpDropColumn:
			sql, desc := b.driver.DropColumn(tc.Name, cc.Old)
			b.transactional(desc, sql)
		case diff.ColumnOpRecreateColumn:
			dropSQL, dropDesc := b.driver.DropColumn(tc.Name, cc.Old)
			b.transactional(dropDesc, dropSQL)
			addSQL, addDesc := b.driver.AddColumn(tc.Name, cc.New)
			b.transactional(addDesc, addSQL)
		default:
			dbDiff := database.ColumnDiff{
				ColumnName: cc.New.Name,
				Old:        cc.Old,
				New:        cc.New,
				Changes:    []string{columnOpCategory(cc.Op)},
			}
			for _, step := range b.driver.ModifyColumn(tc.Name, dbDiff) {
				b.transactional(step.Description, step.SQL...)
			}
		}
	}

	if tc.DroppedPrimaryKey != nil {
		name := tc.DroppedPrimaryKey.Name
		if name == "" {
			name = tc.Name + "_pkey"
		}
		b.transactional("Drop primary key on "+tc.Name, fmt.Sprintf("ALTER TABLE %s DROP CONSTRAINT %s", quoteIdent(tc.Name), quoteIdent(name)))
	}
	if tc.AddedPrimaryKey != nil {
		cols := make([]string, len(tc.AddedPrimaryKey.Columns))
		for i, c := range tc.AddedPrimaryKey.Columns {
			cols[i] = quoteIdent(c)
		}
		b.transactional("Add primary key on "+tc.Name, fmt.Sprintf("ALTER TABLE %s ADD PRIMARY KEY (%s)", quoteIdent(tc.Name), strings.Join(cols, ", ")))
	}

	for _, c := range tc.DroppedChecks {
		b.transactional("Drop check constraint "+c.Name, fmt.Sprintf("ALTER TABLE %s DROP CONSTRAINT %s", quoteIdent(tc.Name), quoteIdent(c.Name)))
	}
	for _, c := range tc.AddedChecks {
		desc := "Add check constraint " + c.Name
		sql := fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s CHECK (%s)", quoteIdent(tc.Name), quoteIdent(c.Name), c.Expression)
		b.addConstraintValidated(desc, sql)
	}

	for _, u := range tc.DroppedUniques {
		b.transactional("Drop unique constraint "+u.Name, fmt.Sprintf("ALTER TABLE %s DROP CONSTRAINT %s", quoteIdent(tc.Name), quoteIdent(u.Name)))
	}
	for _, u := range tc.AddedUniques {
		cols := make([]string, len(u.Columns))
		for i, c := range u.Columns {
			cols[i] = quoteIdent(c)
		}
		// UNIQUE constraints can't be added NOT VALID in PostgreSQL (only
		// FOREIGN KEY and CHECK support it), so this always stays a single
		// transactional ADD CONSTRAINT.
		b.transactional("Add unique constraint "+u.Name, fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s UNIQUE (%s)", quoteIdent(tc.Name), quoteIdent(u.Name), strings.Join(cols, ", ")))
	}

	for _, fk := range tc.AddedForeignKeys {
		sql, desc := b.driver.AddForeignKey(tc.Name, fk)
		b.addConstraintValidated(desc, sql)
	}

	for _, idx := range tc.AddedIndexes {
		b.planIndexCreate(tc.Name, idx)
	}
}

// needsTableRecreation reports whether a table's in-place changes include
// anything a TableRecreator dialect can't express as an ALTER statement:
// a column drop, type/nullability/default/generated-expression change, a
// primary-key change, or a foreign key/check/unique constraint lifecycle
// change. Plain column adds and index-only changes don't require it,
// since ADD COLUMN and CREATE/DROP INDEX work as ordinary ALTER
// statements on every dialect this planner supports, including SQLite.
func needsTableRecreation(tc diff.TableChange) bool {
	for _, cc := range tc.ColumnChanges {
		if cc.Op != diff.ColumnOpAddColumn {
			return true
		}
	}
	return tc.AddedPrimaryKey != nil || tc.DroppedPrimaryKey != nil ||
		len(tc.AddedForeignKeys) > 0 || len(tc.DroppedForeignKeys) > 0 ||
		len(tc.AddedChecks) > 0 || len(tc.DroppedChecks) > 0 ||
		len(tc.AddedUniques) > 0 || len(tc.DroppedUniques) > 0
}

// planStandaloneIndexes emits AddedIndexes for tables being newly created,
// where the index wasn't already folded into the CREATE TABLE statement.
func (b *builder) planStandaloneIndexes(changes []diff.TableChange) {
	for _, tc := range changes {
		if tc.Action != diff.ActionCreate || tc.Desired == nil {
			continue
		}
		for _, idx := range tc.Desired.Indexes {
			b.planIndexCreate(tc.Desired.Name, idx)
		}
	}
}

func (b *builder) planIndexCreate(tableName string, idx database.Index) {
	sql, desc := b.driver.AddIndex(tableName, idx)
	if idx.Concurrent {
		b.concurrent(desc, sql)
		return
	}
	b.transactional(desc, sql)
}

func (b *builder) planViews(changes []diff.ViewChange) {
	for _, ch := range changes {
		if (ch.Action != diff.ActionCreate && ch.Action != diff.ActionRecreate) || ch.Desired == nil {
			continue
		}
		kind := "VIEW"
		if ch.Desired.Materialized {
			kind = "MATERIALIZED VIEW"
		}
		sql := fmt.Sprintf("CREATE %s %s AS %s", kind, quoteIdent(ch.Desired.Name), ch.Desired.Definition)
		if ch.Desired.CheckOption != "" {
			sql += fmt.Sprintf(" WITH %s CHECK OPTION", ch.Desired.CheckOption)
		}
		b.transactional("Create "+strings.ToLower(kind)+" "+ch.Desired.Name, sql)
		for _, idx := range ch.Desired.Indexes {
			b.planIndexCreate(ch.Desired.Name, idx)
		}
	}
}

func (b *builder) planFunctions(changes []diff.FunctionChange) {
	for _, ch := range changes {
		if (ch.Action != diff.ActionCreate && ch.Action != diff.ActionRecreate) || ch.Desired == nil {
			continue
		}
		b.transactional("Create function "+ch.Desired.Name, renderCreateFunction(*ch.Desired))
	}
}

func renderCreateFunction(f database.Function) string {
	params := make([]string, len(f.Parameters))
	for i, p := range f.Parameters {
		params[i] = renderParameter(p)
	}
	sql := fmt.Sprintf("CREATE OR REPLACE FUNCTION %s(%s) RETURNS %s", quoteIdent(f.Name), strings.Join(params, ", "), f.ReturnType)
	if f.Volatility != "" {
		sql += " " + f.Volatility
	}
	if f.Strict {
		sql += " STRICT"
	}
	if f.SecurityDefiner {
		sql += " SECURITY DEFINER"
	}
	sql += fmt.Sprintf(" LANGUAGE %s AS $schemasync$\n%s\n$schemasync$", f.Language, f.Body)
	return sql
}

func renderParameter(p database.Parameter) string {
	var parts []string
	if p.Mode != "" && p.Mode != "IN" {
		parts = append(parts, p.Mode)
	}
	if p.Name != "" {
		parts = append(parts, p.Name)
	}
	parts = append(parts, p.Type)
	s := strings.Join(parts, " ")
	if p.Default != nil {
		s += " DEFAULT " + *p.Default
	}
	return s
}

func (b *builder) planProcedures(changes []diff.ProcedureChange) {
	for _, ch := range changes {
		if (ch.Action != diff.ActionCreate && ch.Action != diff.ActionRecreate) || ch.Desired == nil {
			continue
		}
		params := make([]string, len(ch.Desired.Parameters))
		for i, p := range ch.Desired.Parameters {
			params[i] = renderParameter(p)
		}
		sql := fmt.Sprintf("CREATE OR REPLACE PROCEDURE %s(%s) LANGUAGE %s AS $schemasync$\n%s\n$schemasync$",
			quoteIdent(ch.Desired.Name), strings.Join(params, ", "), ch.Desired.Language, ch.Desired.Body)
		b.transactional("Create procedure "+ch.Desired.Name, sql)
	}
}

func (b *builder) planTriggers(changes []diff.TriggerChange) {
	for _, ch := range changes {
		if (ch.Action != diff.ActionCreate && ch.Action != diff.ActionRecreate) || ch.Desired == nil {
			continue
		}
		t := ch.Desired
		sql := fmt.Sprintf("CREATE TRIGGER %s %s %s ON %s FOR EACH %s",
			quoteIdent(t.Name), t.Timing, strings.Join(t.Events, " OR "), quoteIdent(t.Table), t.ForEach)
		if t.When != "" {
			sql += fmt.Sprintf(" WHEN (%s)", t.When)
		}
		sql += fmt.Sprintf(" EXECUTE FUNCTION %s(%s)", quoteIdent(t.FunctionName), strings.Join(t.FunctionArgs, ", "))
		b.transactional("Create trigger "+t.Name+" on "+t.Table, sql)
	}
}

func (b *builder) planComments(changes []diff.CommentChange) {
	for _, ch := range changes {
		switch ch.Action {
		case diff.ActionCreate, diff.ActionAlterInPlace:
			b.transactional(
				fmt.Sprintf("Comment on %s %s", ch.ObjectType, ch.ObjectName),
				fmt.Sprintf("COMMENT ON %s %s IS '%s'", strings.ToUpper(ch.ObjectType), ch.ObjectName, strings.ReplaceAll(ch.Text, "'", "''")),
			)
		case diff.ActionDrop:
			b.transactional(
				fmt.Sprintf("Remove comment on %s %s", ch.ObjectType, ch.ObjectName),
				fmt.Sprintf("COMMENT ON %s %s IS NULL", strings.ToUpper(ch.ObjectType), ch.ObjectName),
			)
		}
	}
}

// orderTablesForCreation topologically sorts tables by foreign-key edges
// so a referenced table is always created before the table that
// references it. Strongly connected components larger than one table
// (genuine FK cycles) are broken by omitting the cyclic foreign keys from
// the CREATE TABLE bodies and returning them separately to be added as
// ALTER TABLE ADD CONSTRAINT once every table in the cycle exists.
func orderTablesForCreation(tables []database.Table) (ordered []database.Table, deferredFKs map[string][]database.ForeignKey) {
	deferredFKs = map[string][]database.ForeignKey{}
	if len(tables) == 0 {
		return nil, deferredFKs
	}

	nameIndex := map[string]int{}
	for i, t := range tables {
		nameIndex[strings.ToLower(t.Name)] = i
	}

	graph := make([][]int, len(tables))
	for i, t := range tables {
		for _, fk := range t.ForeignKeys {
			if j, ok := nameIndex[strings.ToLower(fk.ReferencedTable)]; ok && j != i {
				graph[i] = append(graph[i], j)
			}
		}
	}

	sccs := tarjanSCC(graph)

	for _, scc := range sccs {
		if len(scc) > 1 {
			sccSet := map[int]bool{}
			for _, idx := range scc {
				sccSet[idx] = true
			}
			for _, idx := range scc {
				t := &tables[idx]
				var keep []database.ForeignKey
				for _, fk := range t.ForeignKeys {
					if j, ok := nameIndex[strings.ToLower(fk.ReferencedTable)]; ok && sccSet[j] {
						deferredFKs[t.Name] = append(deferredFKs[t.Name], fk)
					} else {
						keep = append(keep, fk)
					}
				}
				t.ForeignKeys = keep
			}
		}
		for _, idx := range scc {
			ordered = append(ordered, tables[idx])
		}
	}

	return ordered, deferredFKs
}

// tarjanSCC returns the strongly connected components of graph (adjacency
// list, edge i->j meaning "i depends on j") in an order such that if an
// edge runs from component A to component B, B appears before A — i.e. a
// dependency always appears before its dependents, exactly the order
// CREATE TABLE statements must run in.
func tarjanSCC(graph [][]int) [][]int {
	n := len(graph)
	index := make([]int, n)
	lowlink := make([]int, n)
	onStack := make([]bool, n)
	for i := range index {
		index[i] = -1
	}

	var stack []int
	var result [][]int
	counter := 0

	var strongConnect func(v int)
	strongConnect = func(v int) {
		index[v] = counter
		lowlink[v] = counter
		counter++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range graph[v] {
			if index[w] == -1 {
				strongConnect(w)
				if lowlink[w] < lowlink[v] {
					lowlink[v] = lowlink[w]
				}
			} else if onStack[w] {
				if index[w] < lowlink[v] {
					lowlink[v] = index[w]
				}
			}
		}

		if lowlink[v] == index[v] {
			var scc []int
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			result = append(result, scc)
		}
	}

	for v := 0; v < n; v++ {
		if index[v] == -1 {
			strongConnect(v)
		}
	}

	return result
}
