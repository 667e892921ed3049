// Package database defines the dialect-neutral schema model shared by the
// parser, the introspectors, the diff engine, and the planner, plus the
// Driver interface each dialect implementation (postgres, sqlite) satisfies.
package database

import (
	"context"
	"database/sql"
)

// Dialect identifies which database family a Schema or Driver targets.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
	DialectUnknown  Dialect = "unknown"
)

// Schema is the root container: every entity kind schemasync's declarative
// model understands, grouped the way the database itself groups them.
type Schema struct {
	Dialect    Dialect          `json:"dialect,omitempty"`
	Schemas    []SchemaObject   `json:"schemas,omitempty"`
	Extensions []Extension      `json:"extensions,omitempty"`
	Enums      []EnumType       `json:"enums,omitempty"`
	Sequences  []Sequence       `json:"sequences,omitempty"`
	Tables     []Table          `json:"tables"`
	Views      []View           `json:"views,omitempty"`
	Functions  []Function       `json:"functions,omitempty"`
	Procedures []Procedure      `json:"procedures,omitempty"`
	Triggers   []Trigger        `json:"triggers,omitempty"`
	Comments   []Comment        `json:"comments,omitempty"`
}

// SchemaObject is a named PostgreSQL schema (namespace), e.g. CREATE SCHEMA.
type SchemaObject struct {
	Name  string `json:"name"`
	Owner string `json:"owner,omitempty"`
}

// Extension is a PostgreSQL extension (CREATE EXTENSION).
type Extension struct {
	Name    string `json:"name"`
	Schema  string `json:"schema,omitempty"`
	Version string `json:"version,omitempty"`
}

// Comment is a COMMENT ON ... IS '...' record.
type Comment struct {
	ObjectType string `json:"object_type"` // table, column, index, ...
	ObjectName string `json:"object_name"` // qualified name, e.g. "users.email"
	Text       string `json:"text"`
}

// TypeMetadata records the dialect-specific raw spelling alongside the
// canonical logical type, so diffing can collapse aliases while rendering
// can still reproduce what the user or the catalog actually said.
type TypeMetadata struct {
	Logical string  `json:"logical"`
	Raw     string  `json:"raw"`
	Dialect Dialect `json:"dialect"`
}

// DefaultMetadata records a column default's canonical text.
type DefaultMetadata struct {
	Raw     string  `json:"raw"`
	Dialect Dialect `json:"dialect"`
}

// Generated describes a generated-always column.
type Generated struct {
	Always     bool   `json:"always"`
	Expression string `json:"expression"`
	Stored     bool   `json:"stored"`
}

// Table represents a database table.
type Table struct {
	Name              string           `json:"name"`
	Schema            string           `json:"schema,omitempty"`
	Columns           []Column         `json:"columns"`
	PrimaryKey        *PrimaryKey      `json:"primary_key,omitempty"`
	ForeignKeys       []ForeignKey     `json:"foreign_keys,omitempty"`
	CheckConstraints  []CheckConstraint  `json:"check_constraints,omitempty"`
	UniqueConstraints []UniqueConstraint `json:"unique_constraints,omitempty"`
	Indexes           []Index          `json:"indexes,omitempty"`
	RLSEnabled        bool             `json:"rls_enabled,omitempty"`
}

// QualifiedName returns "schema.name", or just "name" when schema is empty
// or the default "public".
func (t Table) QualifiedName() string {
	if t.Schema == "" || t.Schema == "public" {
		return t.Name
	}
	return t.Schema + "." + t.Name
}

// Column represents a table column.
type Column struct {
	Name            string           `json:"name"`
	Type            string           `json:"type"`
	TypeMetadata    *TypeMetadata    `json:"type_metadata,omitempty"`
	Nullable        bool             `json:"nullable"`
	Default         *string          `json:"default,omitempty"`
	DefaultMetadata *DefaultMetadata `json:"default_metadata,omitempty"`
	Generated       *Generated       `json:"generated,omitempty"`
	IsPrimaryKey    bool             `json:"is_primary_key"`
}

// LogicalType returns the canonical type name used for cross-dialect and
// cross-alias comparison, falling back to Type when no metadata is set.
func (c Column) LogicalType() string {
	if c.TypeMetadata != nil && c.TypeMetadata.Logical != "" {
		return c.TypeMetadata.Logical
	}
	return c.Type
}

// PrimaryKey is a table's primary key constraint.
type PrimaryKey struct {
	Name    string   `json:"name,omitempty"`
	Columns []string `json:"columns"`
}

// ForeignKey represents a foreign key constraint.
type ForeignKey struct {
	Name              string   `json:"name"`
	Columns           []string `json:"columns"`
	ReferencedSchema  string   `json:"referenced_schema,omitempty"`
	ReferencedTable   string   `json:"referenced_table"`
	ReferencedColumns []string `json:"referenced_columns"`
	OnDelete          *string  `json:"on_delete,omitempty"`
	OnUpdate          *string  `json:"on_update,omitempty"`
	Deferrable        bool     `json:"deferrable,omitempty"`
	InitiallyDeferred bool     `json:"initially_deferred,omitempty"`
}

// CheckConstraint represents a CHECK (...) constraint.
type CheckConstraint struct {
	Name       string `json:"name,omitempty"`
	Expression string `json:"expression"`
}

// UniqueConstraint represents a UNIQUE (...) constraint.
type UniqueConstraint struct {
	Name              string   `json:"name,omitempty"`
	Columns           []string `json:"columns"`
	Deferrable        bool     `json:"deferrable,omitempty"`
	InitiallyDeferred bool     `json:"initially_deferred,omitempty"`
}

// IndexColumn is a single column (or sort/opclass modifier) within an index.
type IndexColumn struct {
	Name      string `json:"name"`
	Collation string `json:"collation,omitempty"`
	OpClass   string `json:"opclass,omitempty"`
	Desc      bool   `json:"desc,omitempty"`
}

// Index represents a table index.
type Index struct {
	Name             string            `json:"name"`
	Table            string            `json:"table,omitempty"`
	Columns          []string          `json:"columns"`
	ColumnModifiers  []IndexColumn     `json:"column_modifiers,omitempty"`
	Expression       string            `json:"expression,omitempty"`
	Method           string            `json:"method,omitempty"` // btree, hash, gin, gist, spgist, brin
	Unique           bool              `json:"unique"`
	Concurrent       bool              `json:"concurrent,omitempty"`
	Where            string            `json:"where,omitempty"`
	StorageParams    map[string]string `json:"storage_params,omitempty"`
	Tablespace       string            `json:"tablespace,omitempty"`
	Constraint       string            `json:"constraint,omitempty"` // "primary" | "unique" | ""
}

// EnumType represents a CREATE TYPE ... AS ENUM.
type EnumType struct {
	Name   string   `json:"name"`
	Schema string   `json:"schema,omitempty"`
	Values []string `json:"values"`
}

// View represents a CREATE [MATERIALIZED] VIEW.
type View struct {
	Name         string  `json:"name"`
	Schema       string  `json:"schema,omitempty"`
	Definition   string  `json:"definition"`
	CheckOption  string  `json:"check_option,omitempty"`
	Materialized bool    `json:"materialized,omitempty"`
	Indexes      []Index `json:"indexes,omitempty"` // materialized views only
}

// Parameter is a function/procedure parameter.
type Parameter struct {
	Name     string  `json:"name,omitempty"`
	Type     string  `json:"type"`
	Mode     string  `json:"mode,omitempty"` // IN, OUT, INOUT, VARIADIC
	Default  *string `json:"default,omitempty"`
}

// Function represents a CREATE FUNCTION.
type Function struct {
	Name              string      `json:"name"`
	Schema            string      `json:"schema,omitempty"`
	Parameters        []Parameter `json:"parameters,omitempty"`
	ReturnType        string      `json:"return_type"`
	Language          string      `json:"language"`
	Body              string      `json:"body"`
	Volatility        string      `json:"volatility,omitempty"` // VOLATILE, STABLE, IMMUTABLE
	Parallel          string      `json:"parallel,omitempty"`   // SAFE, UNSAFE, RESTRICTED
	SecurityDefiner   bool        `json:"security_definer,omitempty"`
	Strict            bool        `json:"strict,omitempty"`
	Cost              *float64    `json:"cost,omitempty"`
	Rows              *float64    `json:"rows,omitempty"`
}

// Procedure represents a CREATE PROCEDURE.
type Procedure struct {
	Name       string      `json:"name"`
	Schema     string      `json:"schema,omitempty"`
	Parameters []Parameter `json:"parameters,omitempty"`
	Language   string      `json:"language"`
	Body       string      `json:"body"`
}

// Trigger represents a CREATE TRIGGER.
type Trigger struct {
	Name         string   `json:"name"`
	Table        string   `json:"table"`
	Schema       string   `json:"schema,omitempty"`
	Timing       string   `json:"timing"` // BEFORE, AFTER, INSTEAD OF
	Events       []string `json:"events"` // INSERT, UPDATE, DELETE, TRUNCATE
	ForEach      string   `json:"for_each"` // ROW, STATEMENT
	When         string   `json:"when,omitempty"`
	FunctionName string   `json:"function_name"`
	FunctionArgs []string `json:"function_args,omitempty"`
}

// Sequence represents a CREATE SEQUENCE (including ones implied by SERIAL).
type Sequence struct {
	Name          string  `json:"name"`
	Schema        string  `json:"schema,omitempty"`
	DataType      string  `json:"data_type,omitempty"`
	Increment     int64   `json:"increment"`
	MinValue      *int64  `json:"min_value,omitempty"`
	MaxValue      *int64  `json:"max_value,omitempty"`
	Start         int64   `json:"start"`
	Cache         int64   `json:"cache,omitempty"`
	Cycle         bool    `json:"cycle,omitempty"`
	OwnedByTable  string  `json:"owned_by_table,omitempty"`
	OwnedByColumn string  `json:"owned_by_column,omitempty"`
}

// Introspector defines the interface for database schema introspection.
type Introspector interface {
	IntrospectSchema(ctx context.Context, db *sql.DB) (*Schema, error)

	// IntrospectSchemas introspects like IntrospectSchema and takes a list
	// of schema names. PostgreSQL still reads only current_schema() and
	// records the names in Schema.Schemas; SQLite (which has no schema
	// namespace) ignores the list.
	IntrospectSchemas(ctx context.Context, db *sql.DB, schemas []string) (*Schema, error)

	GetTables(ctx context.Context, db *sql.DB) ([]string, error)
	GetColumns(ctx context.Context, db *sql.DB, tableName string) ([]Column, error)
	GetIndexes(ctx context.Context, db *sql.DB, tableName string) ([]Index, error)
	GetForeignKeys(ctx context.Context, db *sql.DB, tableName string) ([]ForeignKey, error)
}

// ColumnDiff represents changes to a column.
type ColumnDiff struct {
	ColumnName string
	Old        Column
	New        Column
	Changes    []string // e.g., ["type", "nullable", "default"]
}

// PlanStep represents one or more SQL statements executed as a single
// logical migration step (SQLite recreation emits several statements for
// one logical "modify column").
type PlanStep struct {
	Description string   `json:"description"`
	SQL         []string `json:"sql"`
}

// SQLGenerator defines the interface for generating database-specific SQL.
type SQLGenerator interface {
	CreateTable(table Table) (sql string, description string)
	DropTable(table Table) (sql string, description string)
	AddColumn(tableName string, col Column) (sql string, description string)
	DropColumn(tableName string, col Column) (sql string, description string)
	ModifyColumn(tableName string, diff ColumnDiff) []PlanStep
	AddIndex(tableName string, idx Index) (sql string, description string)
	DropIndex(tableName string, idx Index) (sql string, description string)
	AddForeignKey(tableName string, fk ForeignKey) (sql string, description string)
	DropForeignKey(tableName string, fk ForeignKey) (sql string, description string)
	FormatColumnDefinition(col Column) string
	ParameterPlaceholder(position int) string
}

// TableRecreator is implemented by dialects where a column, constraint, or
// primary-key change cannot be expressed as an in-place ALTER and instead
// requires the canonical CREATE new -> INSERT SELECT -> DROP old -> RENAME
// sequence. SQLite is the only dialect here that needs it; the planner
// falls back to column-by-column ALTER via SQLGenerator when a driver
// doesn't implement this interface.
type TableRecreator interface {
	RecreateTable(current, desired Table) []PlanStep
}

// Driver represents a database driver with introspection and SQL generation.
type Driver interface {
	Introspector
	SQLGenerator

	// Name returns the database driver name (e.g., "postgres", "sqlite").
	Name() string

	// SupportsFeature checks if the database supports a specific feature.
	// Between them the drivers answer for the operation keys "CASCADE",
	// "ALTER_COLUMN_TYPE", "ALTER_COLUMN_NULLABLE", "ALTER_COLUMN_DEFAULT",
	// "ALTER_ADD_FOREIGN_KEY", "FOREIGN_KEYS", "DROP_COLUMN",
	// "NOT_VALID_CONSTRAINTS" and "information_schema". A key a driver does
	// not list, and any entity-kind name such as "schemas", "sequences",
	// "enums" or "materialized_views", returns false.
	SupportsFeature(feature string) bool

	// SupportsSchemas reports whether the dialect has a schema/namespace
	// concept at all (PostgreSQL does, SQLite doesn't).
	SupportsSchemas() bool

	// CreateSchema creates a schema namespace, a no-op on dialects that
	// don't support schemas.
	CreateSchema(ctx context.Context, db *sql.DB, schemaName string) error

	// SetSchema points new connections at schemaName (PostgreSQL: sets
	// search_path), a no-op on dialects that don't support schemas.
	SetSchema(ctx context.Context, db *sql.DB, schemaName string) error
}
