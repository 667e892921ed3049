package parser

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/elitan/schemasync/database"
	sqlitedriver "github.com/elitan/schemasync/database/sqlite"
	_ "modernc.org/sqlite"
)

// parseSQLiteSQLSchema parses declared SQLite DDL by loading it into a
// throwaway in-memory database and reading the result back through the
// same introspector used against real databases. SQLite's own grammar is
// the source of truth for what the DDL means, so this avoids reimplementing
// SQLite's dialect quirks (STRICT tables, column affinity rules, partial
// expression indexes) in a second parser that would drift from sqlite3's
// actual behavior.
func parseSQLiteSQLSchema(ddl string) (*database.Schema, error) {
	db, err := sql.Open("sqlite", "file::memory:?cache=shared")
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory sqlite database: %w", err)
	}
	defer db.Close()

	db.SetMaxOpenConns(1)

	ctx := context.Background()
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return nil, fmt.Errorf("failed to execute declared DDL: %w", err)
	}

	introspector := sqlitedriver.NewIntrospector()
	schema, err := introspector.IntrospectSchema(ctx, db)
	if err != nil {
		return nil, fmt.Errorf("failed to introspect declared schema: %w", err)
	}

	schema.Dialect = database.DialectSQLite
	return schema, nil
}
