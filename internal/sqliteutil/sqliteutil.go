// Package sqliteutil provides helpers for working with SQLite connection
// strings and on-disk database files: telling a SQLite path apart from a
// Postgres URL or libsql remote, checking whether a file is a valid (or
// empty) SQLite database, creating one from scratch, and deriving the
// shadow-database path used for dry-run validation.
package sqliteutil

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

// IsSQLiteFilePath reports whether s looks like a SQLite file path or
// connection string, as opposed to a Postgres URL, a libsql remote, or
// the in-memory special case.
func IsSQLiteFilePath(s string) bool {
	s = strings.ToLower(s)

	if s == ":memory:" || strings.HasPrefix(s, "libsql://") {
		return false
	}

	if strings.HasPrefix(s, "sqlite://") {
		return true
	}

	if strings.HasPrefix(s, "file:") {
		return true
	}

	if strings.HasSuffix(s, ".db") ||
		strings.HasSuffix(s, ".sqlite") ||
		strings.HasSuffix(s, ".sqlite3") {
		return true
	}

	return false
}

// ExtractSQLiteFilePath extracts the on-disk file path from a SQLite
// connection string, stripping any sqlite:// or file: scheme and query
// parameters.
func ExtractSQLiteFilePath(connStr string) string {
	if strings.HasPrefix(connStr, "sqlite://") {
		path := strings.TrimPrefix(connStr, "sqlite://")
		if idx := strings.Index(path, "?"); idx >= 0 {
			path = path[:idx]
		}
		return path
	}

	if strings.HasPrefix(connStr, "file:") {
		path := strings.TrimPrefix(connStr, "file:")
		if idx := strings.Index(path, "?"); idx >= 0 {
			path = path[:idx]
		}
		return path
	}

	return connStr
}

// CheckSQLiteDatabase reports whether a SQLite database file exists and,
// if it exists, whether it is empty (zero bytes). A non-empty file is
// opened and pinged to confirm it is a valid SQLite database.
func CheckSQLiteDatabase(connStr string) (exists bool, isEmpty bool, err error) {
	filePath := ExtractSQLiteFilePath(connStr)

	info, err := os.Stat(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return false, false, nil
		}
		return false, false, fmt.Errorf("failed to stat file: %w", err)
	}

	if info.IsDir() {
		return false, false, fmt.Errorf("path is a directory, not a file: %s", filePath)
	}

	if info.Size() == 0 {
		return true, true, nil
	}

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return true, false, fmt.Errorf("failed to open database: %w", err)
	}
	defer func() { _ = db.Close() }()

	if err := db.Ping(); err != nil {
		return true, false, fmt.Errorf("file exists but is not a valid SQLite database: %w", err)
	}

	return true, false, nil
}

// CreateSQLiteDatabase creates an empty SQLite database file at the path
// encoded by connStr, creating parent directories as needed. SQLite does
// not materialize the file until something is written, so a throwaway
// table is created and dropped to force it into existence.
func CreateSQLiteDatabase(connStr string) error {
	filePath := ExtractSQLiteFilePath(connStr)

	dir := filepath.Dir(filePath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return fmt.Errorf("failed to create database: %w", err)
	}
	defer func() { _ = db.Close() }()

	_, err = db.Exec("CREATE TABLE IF NOT EXISTS _schemasync_init (id INTEGER PRIMARY KEY); DROP TABLE IF EXISTS _schemasync_init;")
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	return nil
}

// EnsureSQLiteDatabase checks whether a SQLite database exists at connStr
// and, if it is missing, either creates it (autoCreate) or prompts the
// user on stderr/stdin for confirmation. Non-SQLite connection strings are
// a no-op.
func EnsureSQLiteDatabase(connStr string, dbName string, autoCreate bool) error {
	if !IsSQLiteFilePath(connStr) {
		return nil
	}

	exists, isEmpty, err := CheckSQLiteDatabase(connStr)
	if err != nil {
		return err
	}

	filePath := ExtractSQLiteFilePath(connStr)

	if !exists {
		if autoCreate {
			fmt.Fprintf(os.Stderr, "Creating %s database: %s\n", dbName, filePath)
			if err := CreateSQLiteDatabase(connStr); err != nil {
				return fmt.Errorf("failed to create %s database: %w", dbName, err)
			}
			fmt.Fprintf(os.Stderr, "Created %s database\n", dbName)
			return nil
		}

		fmt.Fprintf(os.Stderr, "\n%s database file does not exist: %s\n", dbName, filePath)
		fmt.Fprintf(os.Stderr, "Would you like to create it? [Y/n]: ")

		var response string
		_, _ = fmt.Scanln(&response)
		response = strings.ToLower(strings.TrimSpace(response))

		if response == "" || response == "y" || response == "yes" {
			if err := CreateSQLiteDatabase(connStr); err != nil {
				return fmt.Errorf("failed to create %s database: %w", dbName, err)
			}
			fmt.Fprintf(os.Stderr, "Created %s database: %s\n", dbName, filePath)
			return nil
		}

		return fmt.Errorf("%s database file does not exist: %s", dbName, filePath)
	}

	if isEmpty {
		fmt.Fprintf(os.Stderr, "Warning: %s database file exists but is empty: %s\n", dbName, filePath)
		fmt.Fprintf(os.Stderr, "Initializing empty database...\n")
		if err := CreateSQLiteDatabase(connStr); err != nil {
			return fmt.Errorf("failed to initialize %s database: %w", dbName, err)
		}
		fmt.Fprintf(os.Stderr, "Initialized %s database\n", dbName)
	}

	return nil
}

// EnsureSQLiteDatabaseWithShadow ensures the primary database at connStr
// exists (see EnsureSQLiteDatabase), then, if offerShadow is set, also
// ensures its derived shadow database (GenerateShadowDBPath) exists,
// creating it automatically without prompting since it holds no data a
// user would need to confirm overwriting.
func EnsureSQLiteDatabaseWithShadow(connStr string, dbName string, autoCreate bool, offerShadow bool) error {
	if err := EnsureSQLiteDatabase(connStr, dbName, autoCreate); err != nil {
		return err
	}

	if !offerShadow || !IsSQLiteFilePath(connStr) {
		return nil
	}

	shadowConnStr := GenerateShadowDBPath(connStr)
	return EnsureSQLiteDatabase(shadowConnStr, dbName+" shadow", true)
}

// GenerateShadowDBPath derives the shadow-database file path used for
// dry-run validation from a primary SQLite database path, inserting a
// "_shadow" suffix before the file extension (or at the end, if there is
// no extension).
func GenerateShadowDBPath(path string) string {
	ext := filepath.Ext(path)
	if ext == "" {
		return path + "_shadow"
	}
	base := strings.TrimSuffix(path, ext)
	return base + "_shadow" + ext
}
