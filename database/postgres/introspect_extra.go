package postgres

import (
	"context"
	"database/sql"
	"strings"

	"github.com/elitan/schemasync/database"
)

// getPrimaryKey returns the table's primary key constraint, or nil if it
// has none.
func (i *Introspector) getPrimaryKey(ctx context.Context, db *sql.DB, tableName string) (*database.PrimaryKey, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT tc.constraint_name, kcu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON tc.constraint_name = kcu.constraint_name
			AND tc.table_schema = kcu.table_schema
		WHERE tc.constraint_type = 'PRIMARY KEY'
			AND tc.table_schema = current_schema()
			AND tc.table_name = $1
		ORDER BY kcu.ordinal_position
	`, tableName)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var pk *database.PrimaryKey
	for rows.Next() {
		var name, col string
		if err := rows.Scan(&name, &col); err != nil {
			return nil, err
		}
		if pk == nil {
			pk = &database.PrimaryKey{Name: name}
		}
		pk.Columns = append(pk.Columns, col)
	}
	return pk, nil
}

func (i *Introspector) getUniqueConstraints(ctx context.Context, db *sql.DB, tableName string) ([]database.UniqueConstraint, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT tc.constraint_name, kcu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON tc.constraint_name = kcu.constraint_name
			AND tc.table_schema = kcu.table_schema
		WHERE tc.constraint_type = 'UNIQUE'
			AND tc.table_schema = current_schema()
			AND tc.table_name = $1
		ORDER BY tc.constraint_name, kcu.ordinal_position
	`, tableName)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	byName := map[string]*database.UniqueConstraint{}
	var order []string
	for rows.Next() {
		var name, col string
		if err := rows.Scan(&name, &col); err != nil {
			return nil, err
		}
		if _, ok := byName[name]; !ok {
			byName[name] = &database.UniqueConstraint{Name: name}
			order = append(order, name)
		}
		byName[name].Columns = append(byName[name].Columns, col)
	}

	result := make([]database.UniqueConstraint, 0, len(order))
	for _, name := range order {
		result = append(result, *byName[name])
	}
	return result, nil
}

func (i *Introspector) getCheckConstraints(ctx context.Context, db *sql.DB, tableName string) ([]database.CheckConstraint, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT con.conname, pg_get_constraintdef(con.oid)
		FROM pg_constraint con
		JOIN pg_class c ON c.oid = con.conrelid
		JOIN pg_namespace n ON n.oid = c.relnamespace
		WHERE con.contype = 'c'
			AND c.relname = $1
			AND n.nspname = current_schema()
	`, tableName)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var checks []database.CheckConstraint
	for rows.Next() {
		var name, def string
		if err := rows.Scan(&name, &def); err != nil {
			return nil, err
		}
		expr := strings.TrimSuffix(strings.TrimPrefix(def, "CHECK ("), ")")
		checks = append(checks, database.CheckConstraint{Name: name, Expression: expr})
	}
	return checks, nil
}

func (i *Introspector) getEnums(ctx context.Context, db *sql.DB) ([]database.EnumType, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT t.typname, e.enumlabel
		FROM pg_type t
		JOIN pg_enum e ON e.enumtypid = t.oid
		JOIN pg_namespace n ON n.oid = t.typnamespace
		WHERE n.nspname = current_schema()
		ORDER BY t.typname, e.enumsortorder
	`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	byName := map[string]*database.EnumType{}
	var order []string
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, err
		}
		if _, ok := byName[name]; !ok {
			byName[name] = &database.EnumType{Name: name}
			order = append(order, name)
		}
		byName[name].Values = append(byName[name].Values, value)
	}

	result := make([]database.EnumType, 0, len(order))
	for _, name := range order {
		result = append(result, *byName[name])
	}
	return result, nil
}

func (i *Introspector) getSequences(ctx context.Context, db *sql.DB) ([]database.Sequence, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT sequencename, data_type, increment_by, min_value, max_value, start_value, cache_size, cycle
		FROM pg_sequences
		WHERE schemaname = current_schema()
	`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var sequences []database.Sequence
	for rows.Next() {
		var s database.Sequence
		if err := rows.Scan(&s.Name, &s.DataType, &s.Increment, &s.MinValue, &s.MaxValue, &s.Start, &s.Cache, &s.Cycle); err != nil {
			return nil, err
		}
		sequences = append(sequences, s)
	}

	// A sequence owned by a column (deptype = 'a', the dependency
	// PostgreSQL records for a SERIAL/BIGSERIAL/SMALLSERIAL macro) is
	// still a real Sequence entry in the declared model — it has to be,
	// for ordering rule 3 to place its CREATE SEQUENCE ahead of the
	// CREATE TABLE that defaults from it — so it's annotated with its
	// owning table/column rather than dropped. GENERATED ALWAYS AS
	// IDENTITY sequences use deptype = 'i' and aren't touched here.
	owners, err := ownedSequenceOwners(ctx, db)
	if err != nil {
		return nil, err
	}
	for idx := range sequences {
		if owner, ok := owners[sequences[idx].Name]; ok {
			sequences[idx].OwnedByTable = owner.table
			sequences[idx].OwnedByColumn = owner.column
		}
	}
	return sequences, nil
}

type sequenceOwner struct {
	table  string
	column string
}

func ownedSequenceOwners(ctx context.Context, db *sql.DB) (map[string]sequenceOwner, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT seq.relname, tbl.relname, att.attname
		FROM pg_depend d
		JOIN pg_class seq ON seq.oid = d.objid AND seq.relkind = 'S'
		JOIN pg_class tbl ON tbl.oid = d.refobjid
		JOIN pg_attribute att ON att.attrelid = d.refobjid AND att.attnum = d.refobjsubid
		WHERE d.deptype = 'a'
	`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	owners := map[string]sequenceOwner{}
	for rows.Next() {
		var seqName, tableName, columnName string
		if err := rows.Scan(&seqName, &tableName, &columnName); err != nil {
			return nil, err
		}
		owners[seqName] = sequenceOwner{table: tableName, column: columnName}
	}
	return owners, nil
}

func (i *Introspector) getViews(ctx context.Context, db *sql.DB) ([]database.View, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT viewname, definition, false AS materialized
		FROM pg_views
		WHERE schemaname = current_schema()
		UNION ALL
		SELECT matviewname, definition, true AS materialized
		FROM pg_matviews
		WHERE schemaname = current_schema()
	`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var views []database.View
	for rows.Next() {
		var v database.View
		var def string
		if err := rows.Scan(&v.Name, &def, &v.Materialized); err != nil {
			return nil, err
		}
		v.Definition = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(def), ";"))
		views = append(views, v)
	}
	return views, nil
}

func (i *Introspector) getFunctions(ctx context.Context, db *sql.DB) ([]database.Function, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT p.proname, pg_get_function_result(p.oid), l.lanname, p.prosrc,
			CASE p.provolatile WHEN 'i' THEN 'IMMUTABLE' WHEN 's' THEN 'STABLE' ELSE 'VOLATILE' END,
			p.prosecdef
		FROM pg_proc p
		JOIN pg_namespace n ON n.oid = p.pronamespace
		JOIN pg_language l ON l.oid = p.prolang
		WHERE n.nspname = current_schema()
			AND p.prokind = 'f'
	`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var functions []database.Function
	for rows.Next() {
		var f database.Function
		if err := rows.Scan(&f.Name, &f.ReturnType, &f.Language, &f.Body, &f.Volatility, &f.SecurityDefiner); err != nil {
			return nil, err
		}
		functions = append(functions, f)
	}
	return functions, nil
}

func (i *Introspector) getTriggers(ctx context.Context, db *sql.DB) ([]database.Trigger, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT t.tgname, c.relname, pg_get_triggerdef(t.oid)
		FROM pg_trigger t
		JOIN pg_class c ON c.oid = t.tgrelid
		JOIN pg_namespace n ON n.oid = c.relnamespace
		WHERE n.nspname = current_schema()
			AND NOT t.tgisinternal
	`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var triggers []database.Trigger
	for rows.Next() {
		var name, table, def string
		if err := rows.Scan(&name, &table, &def); err != nil {
			return nil, err
		}
		triggers = append(triggers, parseTriggerDef(name, table, def))
	}
	return triggers, nil
}

// parseTriggerDef pulls timing/events/for-each/function out of the
// canonical "CREATE TRIGGER ... " text pg_get_triggerdef returns, rather
// than re-deriving them from pg_trigger's bitmask columns - the rendered
// definition is what a user would have written by hand, so comparing
// against it keeps introspected and declared triggers on the same terms.
func parseTriggerDef(name, table, def string) database.Trigger {
	t := database.Trigger{Name: name, Table: table, ForEach: "STATEMENT"}

	upper := strings.ToUpper(def)
	switch {
	case strings.Contains(upper, "BEFORE"):
		t.Timing = "BEFORE"
	case strings.Contains(upper, "AFTER"):
		t.Timing = "AFTER"
	case strings.Contains(upper, "INSTEAD OF"):
		t.Timing = "INSTEAD OF"
	}

	for _, ev := range []string{"INSERT", "UPDATE", "DELETE", "TRUNCATE"} {
		if strings.Contains(upper, ev) {
			t.Events = append(t.Events, ev)
		}
	}

	if strings.Contains(upper, "FOR EACH ROW") {
		t.ForEach = "ROW"
	}

	if idx := strings.Index(def, "EXECUTE FUNCTION "); idx >= 0 {
		rest := def[idx+len("EXECUTE FUNCTION "):]
		if paren := strings.Index(rest, "("); paren >= 0 {
			t.FunctionName = strings.TrimSpace(rest[:paren])
		}
	} else if idx := strings.Index(def, "EXECUTE PROCEDURE "); idx >= 0 {
		rest := def[idx+len("EXECUTE PROCEDURE "):]
		if paren := strings.Index(rest, "("); paren >= 0 {
			t.FunctionName = strings.TrimSpace(rest[:paren])
		}
	}

	return t
}

func (i *Introspector) getExtensions(ctx context.Context, db *sql.DB) ([]database.Extension, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT e.extname, n.nspname, e.extversion
		FROM pg_extension e
		JOIN pg_namespace n ON n.oid = e.extnamespace
		WHERE e.extname != 'plpgsql'
	`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var extensions []database.Extension
	for rows.Next() {
		var e database.Extension
		if err := rows.Scan(&e.Name, &e.Schema, &e.Version); err != nil {
			return nil, err
		}
		extensions = append(extensions, e)
	}
	return extensions, nil
}
