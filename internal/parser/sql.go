// Package parser turns declared PostgreSQL and SQLite DDL into the
// dialect-neutral database.Schema model. The PostgreSQL path walks the
// pg_query AST directly; the SQLite path (sqlite.go) delegates to a
// throwaway in-memory database and the same introspector used for live
// connections.
package parser

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/elitan/schemasync/database"
	pg_query "github.com/pganalyze/pg_query_go/v6"
)

// ParserError wraps a failure to parse declared SQL with the statement
// text that triggered it, so callers can render file/line/column
// diagnostics without re-parsing.
type ParserError struct {
	Statement string
	Err       error
}

func (e *ParserError) Error() string {
	return fmt.Sprintf("%v", e.Err)
}

func (e *ParserError) Unwrap() error { return e.Err }

// RejectedStatementError reports a syntactically valid statement this
// package refuses to accept because it isn't expressible as declared
// state — ALTER TABLE and DROP are imperative by nature, and schemasync's
// model derives them from a diff against the declared CREATE statements
// instead.
type RejectedStatementError struct {
	Statement string
	Reason    string
}

func (e *RejectedStatementError) Error() string {
	return fmt.Sprintf("%s is not allowed in a declared schema file: %s", e.Statement, e.Reason)
}

const declarativeOnlyReason = "declared schema files describe desired end state; schemasync computes the ALTER/DROP statements needed to reach it"

// ContainsSQL is a helper to check if SQL contains a substring (case-insensitive)
func ContainsSQL(sql, substr string) bool {
	return strings.Contains(strings.ToUpper(sql), strings.ToUpper(substr))
}

// findTable locates a table by name within the schema
func findTable(schema *database.Schema, name string) *database.Table {
	for i := range schema.Tables {
		if schema.Tables[i].Name == name {
			return &schema.Tables[i]
		}
	}
	return nil
}

// ParseSQLSchema parses SQL DDL assuming PostgreSQL dialect.
func ParseSQLSchema(sql string) (*database.Schema, error) {
	return ParseSQLSchemaWithDialect(sql, database.DialectPostgres)
}

// ParseSQLSchemaWithDialect parses SQL DDL for the requested dialect.
func ParseSQLSchemaWithDialect(sql string, dialect database.Dialect) (*database.Schema, error) {
	switch dialect {
	case database.DialectSQLite:
		return parseSQLiteSQLSchema(sql)
	case database.DialectPostgres, database.DialectUnknown:
		return parsePostgresSQLSchema(sql)
	default:
		return nil, fmt.Errorf("unsupported dialect %s", dialect)
	}
}

// parsePostgresSQLSchema parses SQL DDL via pg_query for PostgreSQL schemas.
func parsePostgresSQLSchema(sql string) (*database.Schema, error) {
	tree, err := pg_query.Parse(sql)
	if err != nil {
		return nil, fmt.Errorf("failed to parse SQL: %w", err)
	}

	schema := &database.Schema{
		Tables:  []database.Table{},
		Dialect: database.DialectPostgres,
	}

	for _, raw := range tree.Stmts {
		if raw.Stmt == nil {
			continue
		}

		stmtText := statementText(sql, raw)

		switch node := raw.Stmt.Node.(type) {
		case *pg_query.Node_CreateSchemaStmt:
			parseCreateSchema(schema, node.CreateSchemaStmt)

		case *pg_query.Node_CreateExtensionStmt:
			parseCreateExtension(schema, node.CreateExtensionStmt)

		case *pg_query.Node_CreateStmt:
			table, err := parseCreateTable(schema, node.CreateStmt)
			if err != nil {
				return nil, &ParserError{Statement: stmtText, Err: fmt.Errorf("failed to parse CREATE TABLE: %w", err)}
			}
			schema.Tables = append(schema.Tables, *table)

		case *pg_query.Node_IndexStmt:
			if err := parseCreateIndex(schema, node.IndexStmt); err != nil {
				return nil, &ParserError{Statement: stmtText, Err: fmt.Errorf("failed to parse CREATE INDEX: %w", err)}
			}

		case *pg_query.Node_ViewStmt:
			parseCreateView(schema, node.ViewStmt, stmtText)

		case *pg_query.Node_CreateEnumStmt:
			parseCreateEnum(schema, node.CreateEnumStmt)

		case *pg_query.Node_CreateSeqStmt:
			parseCreateSequence(schema, node.CreateSeqStmt)

		case *pg_query.Node_CreateTrigStmt:
			parseCreateTrigger(schema, node.CreateTrigStmt)

		case *pg_query.Node_CreateFunctionStmt:
			parseCreateFunctionOrProcedure(schema, node.CreateFunctionStmt)

		case *pg_query.Node_CommentStmt:
			parseComment(schema, node.CommentStmt)

		case *pg_query.Node_AlterTableStmt:
			return nil, &RejectedStatementError{Statement: stmtText, Reason: declarativeOnlyReason}

		case *pg_query.Node_DropStmt:
			return nil, &RejectedStatementError{Statement: stmtText, Reason: declarativeOnlyReason}
		}
	}

	return schema, nil
}

// statementText slices the original SQL using a RawStmt's recorded
// location/length, falling back to the whole input when either is unset.
func statementText(sql string, raw *pg_query.RawStmt) string {
	start := int(raw.StmtLocation)
	length := int(raw.StmtLen)
	if start < 0 || start >= len(sql) {
		return sql
	}
	end := start + length
	if length <= 0 || end > len(sql) {
		end = len(sql)
	}
	return strings.TrimSpace(sql[start:end])
}

func parseCreateSchema(schema *database.Schema, stmt *pg_query.CreateSchemaStmt) {
	if stmt.Schemaname == "" {
		return
	}
	owner := ""
	if stmt.Authrole != nil {
		owner = roleSpecName(stmt.Authrole)
	}
	schema.Schemas = append(schema.Schemas, database.SchemaObject{Name: stmt.Schemaname, Owner: owner})
}

func roleSpecName(role *pg_query.RoleSpec) string {
	if role == nil {
		return ""
	}
	return role.Rolename
}

func parseCreateExtension(schema *database.Schema, stmt *pg_query.CreateExtensionStmt) {
	if stmt.Extname == "" {
		return
	}
	ext := database.Extension{Name: stmt.Extname}
	for _, opt := range stmt.Options {
		defElem, ok := opt.Node.(*pg_query.Node_DefElem)
		if !ok || defElem.DefElem == nil {
			continue
		}
		switch defElem.DefElem.Defname {
		case "schema":
			ext.Schema = defElemString(defElem.DefElem)
		case "new_version", "version":
			ext.Version = defElemString(defElem.DefElem)
		}
	}
	schema.Extensions = append(schema.Extensions, ext)
}

func defElemString(def *pg_query.DefElem) string {
	if def == nil || def.Arg == nil {
		return ""
	}
	switch v := def.Arg.Node.(type) {
	case *pg_query.Node_String_:
		return v.String_.Sval
	case *pg_query.Node_TypeName:
		s, _ := formatTypeName(v.TypeName)
		return s
	}
	return formatExpr(def.Arg)
}

// parseCreateTable converts a CreateStmt AST node to a Table. Columns
// declared with a SERIAL-family pseudo-type are expanded in place, the
// same way PostgreSQL itself expands the CREATE TABLE macro: the column
// becomes a plain NOT NULL integer with a nextval() default, and the
// implicit backing sequence is appended to schema.Sequences.
func parseCreateTable(schema *database.Schema, stmt *pg_query.CreateStmt) (*database.Table, error) {
	if stmt.Relation == nil {
		return nil, fmt.Errorf("CREATE TABLE missing relation")
	}

	table := &database.Table{
		Name:        stmt.Relation.Relname,
		Schema:      stmt.Relation.Schemaname,
		Columns:     []database.Column{},
		Indexes:     []database.Index{},
		ForeignKeys: []database.ForeignKey{},
	}

	for _, elt := range stmt.TableElts {
		if elt.Node == nil {
			continue
		}

		switch node := elt.Node.(type) {
		case *pg_query.Node_ColumnDef:
			col, err := parseColumnDef(node.ColumnDef)
			if err != nil {
				return nil, err
			}
			table.Columns = append(table.Columns, *col)

			if dataType := serialColumnDataType(node.ColumnDef.TypeName); dataType != "" {
				expandSerialColumn(schema, table, &table.Columns[len(table.Columns)-1], dataType)
			}

		case *pg_query.Node_Constraint:
			if err := parseTableConstraint(table, node.Constraint); err != nil {
				return nil, err
			}
		}
	}

	return table, nil
}

// serialColumnDataType inspects a column's raw declared type name and
// reports the real integer type PostgreSQL expands a SERIAL/SMALLSERIAL/
// BIGSERIAL pseudo-type into, or "" if the column isn't serial-typed.
// normalizePostgreSQLType has already folded these into their underlying
// types by the time formatTypeName runs, so this looks at the AST's raw
// type name directly instead.
func serialColumnDataType(typeName *pg_query.TypeName) string {
	if typeName == nil {
		return ""
	}
	var last string
	for _, name := range typeName.Names {
		if nameNode, ok := name.Node.(*pg_query.Node_String_); ok {
			last = nameNode.String_.Sval
		}
	}
	switch strings.ToLower(last) {
	case "serial", "serial4":
		return "integer"
	case "serial2":
		return "smallint"
	case "serial8":
		return "bigint"
	default:
		return ""
	}
}

// expandSerialColumn rewrites col from a SERIAL pseudo-type into its real
// underlying type plus a nextval() default, and appends the sequence the
// macro implicitly creates, named and owned the same way PostgreSQL names
// and owns it, so ordering rule 3 (sequences before the tables that
// default from them) applies to SERIAL columns exactly as it does to an
// explicit CREATE SEQUENCE ... OWNED BY.
func expandSerialColumn(schema *database.Schema, table *database.Table, col *database.Column, dataType string) {
	col.Type = dataType
	col.TypeMetadata = &database.TypeMetadata{Logical: dataType, Raw: dataType, Dialect: database.DialectPostgres}
	col.Nullable = false

	seqName := table.Name + "_" + col.Name + "_seq"
	defaultVal := fmt.Sprintf("nextval('%s'::regclass)", seqName)
	col.Default = &defaultVal
	col.DefaultMetadata = &database.DefaultMetadata{Raw: defaultVal, Dialect: database.DialectPostgres}

	minValue := int64(1)
	maxValue := serialMaxValue(dataType)
	schema.Sequences = append(schema.Sequences, database.Sequence{
		Name:          seqName,
		Schema:        table.Schema,
		DataType:      dataType,
		Increment:     1,
		MinValue:      &minValue,
		MaxValue:      &maxValue,
		Start:         1,
		Cache:         1,
		OwnedByTable:  table.Name,
		OwnedByColumn: col.Name,
	})
}

// serialMaxValue returns the default MAXVALUE PostgreSQL assigns a
// SERIAL-family sequence, keyed by the column's expanded integer type.
func serialMaxValue(dataType string) int64 {
	switch dataType {
	case "smallint":
		return 32767
	case "bigint":
		return 9223372036854775807
	default:
		return 2147483647
	}
}

// parseColumnDef converts a ColumnDef AST node to a Column
func parseColumnDef(colDef *pg_query.ColumnDef) (*database.Column, error) {
	if colDef.Colname == "" {
		return nil, fmt.Errorf("column missing name")
	}

	col := &database.Column{
		Name:         colDef.Colname,
		Nullable:     true,
		IsPrimaryKey: false,
	}

	if colDef.TypeName != nil {
		colType, meta := formatTypeName(colDef.TypeName)
		col.Type = colType
		col.TypeMetadata = meta
	}

	if colDef.Generated != "" {
		col.Generated = &database.Generated{
			Always: true,
			Stored: colDef.Generated == "s",
		}
	}

	for _, constraint := range colDef.Constraints {
		if constraint.Node == nil {
			continue
		}
		if cons, ok := constraint.Node.(*pg_query.Node_Constraint); ok {
			parseColumnConstraint(col, cons.Constraint)
		}
	}

	return col, nil
}

// formatTypeName converts TypeName AST to a string representation with metadata.
func formatTypeName(typeName *pg_query.TypeName) (string, *database.TypeMetadata) {
	if len(typeName.Names) == 0 {
		return "", nil
	}

	var parts []string
	for _, name := range typeName.Names {
		if nameNode, ok := name.Node.(*pg_query.Node_String_); ok {
			parts = append(parts, nameNode.String_.Sval)
		}
	}

	rawBase := strings.Join(parts, ".")
	typeStr := rawBase

	if len(parts) > 1 && parts[0] == "pg_catalog" {
		typeStr = parts[len(parts)-1]
	}

	typeStr = normalizePostgreSQLType(typeStr)

	if len(typeName.Typmods) > 0 {
		var mods []string
		for _, mod := range typeName.Typmods {
			if constNode, ok := mod.Node.(*pg_query.Node_AConst); ok {
				if ival := constNode.AConst.GetIval(); ival != nil {
					mods = append(mods, fmt.Sprintf("%d", ival.Ival))
				}
			}
		}
		if len(mods) > 0 {
			modStr := strings.Join(mods, ",")
			typeStr = fmt.Sprintf("%s(%s)", typeStr, modStr)
			rawBase = fmt.Sprintf("%s(%s)", rawBase, modStr)
		}
	}

	if typeStr == "char" && len(typeName.Typmods) == 0 {
		// CHAR with no explicit length defaults to CHAR(1), per the SQL standard.
		typeStr = "char(1)"
		rawBase = "char(1)"
	}

	if len(typeName.ArrayBounds) > 0 {
		typeStr += "[]"
		rawBase += "[]"
	}

	meta := &database.TypeMetadata{
		Logical: typeStr,
		Raw:     rawBase,
		Dialect: database.DialectPostgres,
	}

	return typeStr, meta
}

// normalizePostgreSQLType converts PostgreSQL internal type names to standard SQL types.
// pg_query normalizes types to PostgreSQL internal names like "int4", "int8", "bool".
func normalizePostgreSQLType(pgType string) string {
	typeMap := map[string]string{
		"int2":    "smallint",
		"int4":    "integer",
		"int8":    "bigint",
		// SERIAL/SMALLSERIAL/BIGSERIAL are not real types: PostgreSQL
		// expands them to a plain integer column at CREATE TABLE time.
		// serialColumnDataType (consulted before this function runs, off
		// the AST's raw type name) handles the expansion and sequence
		// synthesis; by the time a type reaches here it's already its
		// underlying integer type.
		"serial":  "integer",
		"serial2": "smallint",
		"serial4": "integer",
		"serial8": "bigint",

		"bool": "boolean",

		"varchar": "varchar",
		"bpchar":  "char",

		"float4": "real",
		"float8": "double precision",

		"timestamptz": "timestamp with time zone",
		"timetz":      "time with time zone",

		"text": "text",

		"numeric": "numeric",
		"decimal": "decimal",
	}

	if normalized, ok := typeMap[strings.ToLower(pgType)]; ok {
		return normalized
	}

	return pgType
}

// parseColumnConstraint applies a column-level constraint to a Column
func parseColumnConstraint(col *database.Column, constraint *pg_query.Constraint) {
	switch constraint.Contype {
	case pg_query.ConstrType_CONSTR_NOTNULL:
		col.Nullable = false

	case pg_query.ConstrType_CONSTR_NULL:
		col.Nullable = true

	case pg_query.ConstrType_CONSTR_DEFAULT:
		if constraint.RawExpr != nil {
			defaultStr := formatExpr(constraint.RawExpr)
			col.Default = &defaultStr
			col.DefaultMetadata = &database.DefaultMetadata{
				Raw:     defaultStr,
				Dialect: database.DialectPostgres,
			}
		}

	case pg_query.ConstrType_CONSTR_GENERATED:
		if constraint.RawExpr != nil {
			col.Generated = &database.Generated{
				Always:     true,
				Stored:     true,
				Expression: formatExpr(constraint.RawExpr),
			}
		}

	case pg_query.ConstrType_CONSTR_PRIMARY:
		col.IsPrimaryKey = true
		col.Nullable = false
	}
}

// parseTableConstraint applies a table-level constraint
func parseTableConstraint(table *database.Table, constraint *pg_query.Constraint) error {
	switch constraint.Contype {
	case pg_query.ConstrType_CONSTR_PRIMARY:
		var cols []string
		for _, key := range constraint.Keys {
			if keyNode, ok := key.Node.(*pg_query.Node_String_); ok {
				colName := keyNode.String_.Sval
				cols = append(cols, colName)
				for i := range table.Columns {
					if table.Columns[i].Name == colName {
						table.Columns[i].IsPrimaryKey = true
						table.Columns[i].Nullable = false
					}
				}
			}
		}
		table.PrimaryKey = &database.PrimaryKey{Name: constraint.Conname, Columns: cols}

	case pg_query.ConstrType_CONSTR_UNIQUE:
		uc := database.UniqueConstraint{
			Name:              constraint.Conname,
			Deferrable:        constraint.Deferrable,
			InitiallyDeferred: constraint.Initdeferred,
		}
		for _, key := range constraint.Keys {
			if keyNode, ok := key.Node.(*pg_query.Node_String_); ok {
				uc.Columns = append(uc.Columns, keyNode.String_.Sval)
			}
		}
		if len(uc.Columns) > 0 {
			table.UniqueConstraints = append(table.UniqueConstraints, uc)
		}

	case pg_query.ConstrType_CONSTR_CHECK:
		cc := database.CheckConstraint{
			Name:       constraint.Conname,
			Expression: formatExpr(constraint.RawExpr),
		}
		if cc.Expression != "" {
			table.CheckConstraints = append(table.CheckConstraints, cc)
		}

	case pg_query.ConstrType_CONSTR_FOREIGN:
		fk := database.ForeignKey{
			Name:              getConstraintName(constraint, table.Name, "fk"),
			Deferrable:        constraint.Deferrable,
			InitiallyDeferred: constraint.Initdeferred,
		}

		for _, key := range constraint.FkAttrs {
			if keyNode, ok := key.Node.(*pg_query.Node_String_); ok {
				fk.Columns = append(fk.Columns, keyNode.String_.Sval)
			}
		}

		if constraint.Pktable != nil && constraint.Pktable.Relname != "" {
			fk.ReferencedTable = constraint.Pktable.Relname
			fk.ReferencedSchema = constraint.Pktable.Schemaname
		}

		for _, key := range constraint.PkAttrs {
			if keyNode, ok := key.Node.(*pg_query.Node_String_); ok {
				fk.ReferencedColumns = append(fk.ReferencedColumns, keyNode.String_.Sval)
			}
		}

		if constraint.FkDelAction != "" {
			action := formatForeignKeyAction(constraint.FkDelAction)
			fk.OnDelete = &action
		}
		if constraint.FkUpdAction != "" {
			action := formatForeignKeyAction(constraint.FkUpdAction)
			fk.OnUpdate = &action
		}

		if len(fk.Columns) > 0 && fk.ReferencedTable != "" {
			table.ForeignKeys = append(table.ForeignKeys, fk)
		}
	}

	return nil
}

// parseCreateIndex handles CREATE INDEX statements
func parseCreateIndex(schema *database.Schema, stmt *pg_query.IndexStmt) error {
	if stmt.Relation == nil || stmt.Relation.Relname == "" {
		return fmt.Errorf("CREATE INDEX missing table name")
	}

	tableName := stmt.Relation.Relname
	targetTable := findTable(schema, tableName)
	if targetTable == nil {
		return fmt.Errorf("CREATE INDEX references unknown table: %s", tableName)
	}

	idx := database.Index{
		Name:       stmt.Idxname,
		Table:      tableName,
		Unique:     stmt.Unique,
		Concurrent: stmt.Concurrent,
		Method:     stmt.AccessMethod,
		Where:      formatExpr(stmt.WhereClause),
	}

	for _, elem := range stmt.IndexParams {
		indexElem, ok := elem.Node.(*pg_query.Node_IndexElem)
		if !ok || indexElem.IndexElem == nil {
			continue
		}

		colName := extractIndexColumnName(indexElem.IndexElem)
		if colName != "" {
			idx.Columns = append(idx.Columns, colName)
			mod := database.IndexColumn{
				Name: colName,
				Desc: indexElem.IndexElem.Ordering == pg_query.SortByDir_SORTBY_DESC,
			}
			if indexElem.IndexElem.Collation != nil {
				mod.Collation = identListToDotted(indexElem.IndexElem.Collation)
			}
			if indexElem.IndexElem.Opclass != nil {
				mod.OpClass = identListToDotted(indexElem.IndexElem.Opclass)
			}
			idx.ColumnModifiers = append(idx.ColumnModifiers, mod)
		} else if indexElem.IndexElem.Expr != nil {
			idx.Expression = formatExpr(indexElem.IndexElem.Expr)
		}
	}

	if len(idx.Columns) > 0 || idx.Expression != "" {
		targetTable.Indexes = append(targetTable.Indexes, idx)
	}

	return nil
}

func identListToDotted(nodes []*pg_query.Node) string {
	var parts []string
	for _, n := range nodes {
		if s, ok := n.Node.(*pg_query.Node_String_); ok {
			parts = append(parts, s.String_.Sval)
		}
	}
	return strings.Join(parts, ".")
}

func extractIndexColumnName(elem *pg_query.IndexElem) string {
	if elem == nil {
		return ""
	}
	if elem.Name != "" {
		return elem.Name
	}
	if elem.Indexcolname != "" {
		return elem.Indexcolname
	}
	return ""
}

// parseCreateView handles CREATE [OR REPLACE] VIEW. CREATE MATERIALIZED
// VIEW parses as a different statement kind that is not routed here, so
// this parser does not read materialized views.
// View bodies are taken from the statement's own source text rather than
// reconstructed from the SelectStmt AST node, since round-tripping an
// arbitrary SELECT through the AST would not reliably reproduce the
// author's formatting and schemasync compares definitions as text.
func parseCreateView(schema *database.Schema, stmt *pg_query.ViewStmt, stmtText string) {
	if stmt.View == nil {
		return
	}

	view := database.View{
		Name:   stmt.View.Relname,
		Schema: stmt.View.Schemaname,
	}

	switch stmt.WithCheckOption {
	case pg_query.ViewCheckOption_LOCAL_CHECK_OPTION:
		view.CheckOption = "LOCAL"
	case pg_query.ViewCheckOption_CASCADED_CHECK_OPTION:
		view.CheckOption = "CASCADED"
	}

	view.Definition = extractAsClause(stmtText)
	schema.Views = append(schema.Views, view)
}

// asClauseRe is used only to carve the SELECT body
// out of a statement's own source text, not to parse SQL structurally.
var asClauseRe = regexp.MustCompile(`(?is)\bAS\b\s*(.*)$`)

func extractAsClause(stmtText string) string {
	matches := asClauseRe.FindStringSubmatch(stmtText)
	if len(matches) < 2 {
		return ""
	}
	body := strings.TrimSpace(matches[1])
	body = strings.TrimSuffix(body, ";")
	body = strings.TrimSpace(body)
	body = strings.TrimSuffix(body, "WITH NO DATA")
	body = strings.TrimSuffix(body, "WITH DATA")
	return strings.TrimSpace(body)
}

func parseCreateEnum(schema *database.Schema, stmt *pg_query.CreateEnumStmt) {
	name, sch := lastTwoIdentParts(stmt.TypeName)
	if name == "" {
		return
	}
	enum := database.EnumType{Name: name, Schema: sch}
	for _, v := range stmt.Vals {
		if s, ok := v.Node.(*pg_query.Node_String_); ok {
			enum.Values = append(enum.Values, s.String_.Sval)
		}
	}
	schema.Enums = append(schema.Enums, enum)
}

func lastTwoIdentParts(nodes []*pg_query.Node) (name, schema string) {
	var parts []string
	for _, n := range nodes {
		if s, ok := n.Node.(*pg_query.Node_String_); ok {
			parts = append(parts, s.String_.Sval)
		}
	}
	if len(parts) == 0 {
		return "", ""
	}
	name = parts[len(parts)-1]
	if len(parts) > 1 {
		schema = parts[len(parts)-2]
	}
	return name, schema
}

func parseCreateSequence(schema *database.Schema, stmt *pg_query.CreateSeqStmt) {
	if stmt.Sequence == nil {
		return
	}
	seq := database.Sequence{
		Name:      stmt.Sequence.Relname,
		Schema:    stmt.Sequence.Schemaname,
		Increment: 1,
		Start:     1,
	}

	for _, opt := range stmt.Options {
		def, ok := opt.Node.(*pg_query.Node_DefElem)
		if !ok || def.DefElem == nil {
			continue
		}
		switch def.DefElem.Defname {
		case "increment":
			seq.Increment = defElemInt(def.DefElem, 1)
		case "start":
			seq.Start = defElemInt(def.DefElem, 1)
		case "cache":
			seq.Cache = defElemInt(def.DefElem, 1)
		case "minvalue":
			if v := defElemInt(def.DefElem, 0); v != 0 {
				seq.MinValue = &v
			}
		case "maxvalue":
			if v := defElemInt(def.DefElem, 0); v != 0 {
				seq.MaxValue = &v
			}
		case "cycle":
			seq.Cycle = true
		case "owned_by":
			owned := identListToDotted(def.DefElem.Arg.GetList().GetItems())
			parts := strings.Split(owned, ".")
			if len(parts) >= 2 {
				seq.OwnedByColumn = parts[len(parts)-1]
				seq.OwnedByTable = strings.Join(parts[:len(parts)-1], ".")
			}
		}
	}

	schema.Sequences = append(schema.Sequences, seq)
}

func defElemInt(def *pg_query.DefElem, fallback int64) int64 {
	if def == nil || def.Arg == nil {
		return fallback
	}
	if c, ok := def.Arg.Node.(*pg_query.Node_Integer); ok {
		return int64(c.Integer.Ival)
	}
	if c, ok := def.Arg.Node.(*pg_query.Node_AConst); ok {
		if iv := c.AConst.GetIval(); iv != nil {
			return iv.Ival
		}
	}
	return fallback
}

// Bitmask values mirror PostgreSQL's TRIGGER_TYPE_* constants (trigger.h).
const (
	triggerTypeRow      = 1 << 0
	triggerTypeBefore   = 1 << 1
	triggerTypeInsert   = 1 << 2
	triggerTypeDelete   = 1 << 3
	triggerTypeUpdate   = 1 << 4
	triggerTypeTruncate = 1 << 5
	triggerTypeInstead  = 1 << 6
)

func parseCreateTrigger(schema *database.Schema, stmt *pg_query.CreateTrigStmt) {
	if stmt.Relation == nil {
		return
	}

	trig := database.Trigger{
		Name:         stmt.Trigname,
		Table:        stmt.Relation.Relname,
		Schema:       stmt.Relation.Schemaname,
		FunctionName: identListToDotted(stmt.Funcname),
	}

	timing := int(stmt.Timing)
	switch {
	case timing&triggerTypeInstead != 0:
		trig.Timing = "INSTEAD OF"
	case timing&triggerTypeBefore != 0:
		trig.Timing = "BEFORE"
	default:
		trig.Timing = "AFTER"
	}

	events := int(stmt.Events)
	if events&triggerTypeInsert != 0 {
		trig.Events = append(trig.Events, "INSERT")
	}
	if events&triggerTypeUpdate != 0 {
		trig.Events = append(trig.Events, "UPDATE")
	}
	if events&triggerTypeDelete != 0 {
		trig.Events = append(trig.Events, "DELETE")
	}
	if events&triggerTypeTruncate != 0 {
		trig.Events = append(trig.Events, "TRUNCATE")
	}

	if stmt.Row {
		trig.ForEach = "ROW"
	} else {
		trig.ForEach = "STATEMENT"
	}

	if stmt.WhenClause != nil {
		trig.When = formatExpr(stmt.WhenClause)
	}

	for _, arg := range stmt.Args {
		if s, ok := arg.Node.(*pg_query.Node_String_); ok {
			trig.FunctionArgs = append(trig.FunctionArgs, s.String_.Sval)
		}
	}

	schema.Triggers = append(schema.Triggers, trig)
}

func parseCreateFunctionOrProcedure(schema *database.Schema, stmt *pg_query.CreateFunctionStmt) {
	name, sch := lastTwoIdentParts(stmt.Funcname)
	if name == "" {
		return
	}

	var params []database.Parameter
	for _, p := range stmt.Parameters {
		fp, ok := p.Node.(*pg_query.Node_FunctionParameter)
		if !ok || fp.FunctionParameter == nil {
			continue
		}
		param := database.Parameter{Name: fp.FunctionParameter.Name}
		if fp.FunctionParameter.ArgType != nil {
			typ, _ := formatTypeName(fp.FunctionParameter.ArgType)
			param.Type = typ
		}
		switch fp.FunctionParameter.Mode {
		case pg_query.FunctionParameterMode_FUNC_PARAM_OUT:
			param.Mode = "OUT"
		case pg_query.FunctionParameterMode_FUNC_PARAM_INOUT:
			param.Mode = "INOUT"
		case pg_query.FunctionParameterMode_FUNC_PARAM_VARIADIC:
			param.Mode = "VARIADIC"
		default:
			param.Mode = "IN"
		}
		if fp.FunctionParameter.Defexpr != nil {
			d := formatExpr(fp.FunctionParameter.Defexpr)
			param.Default = &d
		}
		params = append(params, param)
	}

	var (
		language        = "sql"
		body            string
		volatility      string
		parallel        string
		securityDefiner bool
		strict          bool
	)

	for _, opt := range stmt.Options {
		def, ok := opt.Node.(*pg_query.Node_DefElem)
		if !ok || def.DefElem == nil {
			continue
		}
		switch def.DefElem.Defname {
		case "language":
			language = strings.ToLower(defElemString(def.DefElem))
		case "as":
			body = functionBodyFromOption(def.DefElem)
		case "volatility":
			volatility = strings.ToUpper(defElemString(def.DefElem))
		case "parallel":
			parallel = strings.ToUpper(defElemString(def.DefElem))
		case "security":
			securityDefiner = defElemBool(def.DefElem)
		case "strict":
			strict = defElemBool(def.DefElem)
		}
	}

	if stmt.IsProcedure {
		proc := database.Procedure{Name: name, Schema: sch, Parameters: params, Language: language, Body: body}
		schema.Procedures = append(schema.Procedures, proc)
		return
	}

	fn := database.Function{
		Name:            name,
		Schema:          sch,
		Parameters:      params,
		Language:        language,
		Body:            body,
		Volatility:      volatility,
		Parallel:        parallel,
		SecurityDefiner: securityDefiner,
		Strict:          strict,
	}
	if stmt.ReturnType != nil {
		fn.ReturnType, _ = formatTypeName(stmt.ReturnType)
	}
	schema.Functions = append(schema.Functions, fn)
}

func functionBodyFromOption(def *pg_query.DefElem) string {
	if def == nil || def.Arg == nil {
		return ""
	}
	list := def.Arg.GetList()
	if list == nil {
		return defElemString(def)
	}
	var parts []string
	for _, item := range list.Items {
		if s, ok := item.Node.(*pg_query.Node_String_); ok {
			parts = append(parts, s.String_.Sval)
		}
	}
	return strings.Join(parts, "\n")
}

func defElemBool(def *pg_query.DefElem) bool {
	if def == nil || def.Arg == nil {
		return true
	}
	if c, ok := def.Arg.Node.(*pg_query.Node_Integer); ok {
		return c.Integer.Ival != 0
	}
	return true
}

func parseComment(schema *database.Schema, stmt *pg_query.CommentStmt) {
	comment := database.Comment{Text: stmt.Comment}
	switch stmt.Objtype {
	case pg_query.ObjectType_OBJECT_TABLE:
		comment.ObjectType = "table"
	case pg_query.ObjectType_OBJECT_COLUMN:
		comment.ObjectType = "column"
	case pg_query.ObjectType_OBJECT_INDEX:
		comment.ObjectType = "index"
	case pg_query.ObjectType_OBJECT_VIEW:
		comment.ObjectType = "view"
	case pg_query.ObjectType_OBJECT_FUNCTION:
		comment.ObjectType = "function"
	case pg_query.ObjectType_OBJECT_TRIGGER:
		comment.ObjectType = "trigger"
	default:
		comment.ObjectType = "unknown"
	}
	comment.ObjectName = formatExpr(stmt.Object)
	if comment.Text != "" {
		schema.Comments = append(schema.Comments, comment)
	}
}

// getConstraintName returns the constraint name or generates one
func getConstraintName(constraint *pg_query.Constraint, tableName, prefix string) string {
	if constraint.Conname != "" {
		return constraint.Conname
	}
	return fmt.Sprintf("%s_%s", tableName, prefix)
}

// formatForeignKeyAction converts foreign key action code to string
func formatForeignKeyAction(action string) string {
	if action == "" {
		return "NO ACTION"
	}
	if len(action) == 1 {
		switch action[0] {
		case 'a':
			return "NO ACTION"
		case 'r':
			return "RESTRICT"
		case 'c':
			return "CASCADE"
		case 'n':
			return "SET NULL"
		case 'd':
			return "SET DEFAULT"
		}
	}
	return action
}

// formatExpr converts an expression AST to string
func formatExpr(node *pg_query.Node) string {
	if node == nil {
		return ""
	}

	switch expr := node.Node.(type) {
	case *pg_query.Node_AConst:
		if ival := expr.AConst.GetIval(); ival != nil {
			return fmt.Sprintf("%d", ival.Ival)
		}
		if fval := expr.AConst.GetFval(); fval != nil {
			return fval.Fval
		}
		if sval := expr.AConst.GetSval(); sval != nil {
			return fmt.Sprintf("'%s'", sval.Sval)
		}
		if bsval := expr.AConst.GetBsval(); bsval != nil {
			return bsval.Bsval
		}

	case *pg_query.Node_FuncCall:
		if len(expr.FuncCall.Funcname) > 0 {
			if nameNode, ok := expr.FuncCall.Funcname[0].Node.(*pg_query.Node_String_); ok {
				funcName := nameNode.String_.Sval

				var args []string
				for _, argNode := range expr.FuncCall.Args {
					args = append(args, formatExpr(argNode))
				}

				if len(args) > 0 {
					return fmt.Sprintf("%s(%s)", funcName, strings.Join(args, ", "))
				}
				return funcName + "()"
			}
		}

	case *pg_query.Node_TypeCast:
		if expr.TypeCast.Arg != nil {
			return formatExpr(expr.TypeCast.Arg)
		}

	case *pg_query.Node_ColumnRef:
		return extractColumnRefName(expr.ColumnRef)

	case *pg_query.Node_AExpr:
		left := formatExpr(expr.AExpr.Lexpr)
		right := formatExpr(expr.AExpr.Rexpr)
		op := identListToDotted(expr.AExpr.Name)
		return strings.TrimSpace(fmt.Sprintf("%s %s %s", left, op, right))

	case *pg_query.Node_BoolExpr:
		var parts []string
		for _, a := range expr.BoolExpr.Args {
			parts = append(parts, formatExpr(a))
		}
		joiner := " AND "
		if expr.BoolExpr.Boolop == pg_query.BoolExprType_OR_EXPR {
			joiner = " OR "
		}
		return strings.Join(parts, joiner)

	case *pg_query.Node_SqlvalueFunction:
		switch expr.SqlvalueFunction.Op {
		case 1:
			return "CURRENT_DATE"
		case 2, 3:
			return "CURRENT_TIME"
		case 4, 5:
			return "CURRENT_TIMESTAMP"
		case 6, 7:
			return "LOCALTIME"
		case 8, 9:
			return "LOCALTIMESTAMP"
		case 10:
			return "CURRENT_ROLE"
		case 11:
			return "CURRENT_USER"
		case 12:
			return "USER"
		case 13:
			return "SESSION_USER"
		case 14:
			return "CURRENT_CATALOG"
		case 15:
			return "CURRENT_SCHEMA"
		}

	case *pg_query.Node_List:
		var parts []string
		for _, item := range expr.List.Items {
			parts = append(parts, formatExpr(item))
		}
		return strings.Join(parts, ".")

	case *pg_query.Node_String_:
		return expr.String_.Sval
	}

	return "DEFAULT"
}

func extractColumnRefName(colRef *pg_query.ColumnRef) string {
	if colRef == nil {
		return ""
	}

	var parts []string
	for _, field := range colRef.Fields {
		if field == nil || field.Node == nil {
			continue
		}
		if s, ok := field.Node.(*pg_query.Node_String_); ok {
			parts = append(parts, s.String_.Sval)
		}
	}

	return strings.Join(parts, ".")
}
