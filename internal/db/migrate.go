package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "embed"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

//go:embed schema_sqlite.sql
var sqliteSchema string

//go:embed schema_postgres.sql
var postgresSchema string

// Open opens the database for the given driver and verifies the connection.
// For SQLite the parent directory is created and the connection pool is
// limited to one connection so writes are serialized by the driver.
func Open(ctx context.Context, driver, dsn string) (*sql.DB, error) {
	switch driver {
	case DriverSQLite:
		var dir string
		dir, dsn = sqliteDSN(dsn)
		if dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create db directory %s: %w", dir, err)
			}
		}
	case DriverPostgres:
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	conn, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", driver, err)
	}
	if driver == DriverSQLite {
		conn.SetMaxOpenConns(1)
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping %s database: %w", driver, err)
	}
	return conn, nil
}

// sqliteDSN adds the WAL and busy timeout options to dsn and returns the
// directory to create for a plain file path.  file: URIs are left to the
// driver and get no directory.
func sqliteDSN(dsn string) (dir, out string) {
	if !strings.HasPrefix(dsn, "file:") && dsn != ":memory:" {
		if d := filepath.Dir(dsn); d != "." {
			dir = d
		}
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dir, dsn + sep + "_journal_mode=WAL&_busy_timeout=5000"
}

// Migrate applies the schema for the given driver.  The statements create the
// chat_history table and its index if they do not already exist.
func Migrate(ctx context.Context, db *sql.DB, driver string) error {
	schema := sqliteSchema
	if driver == DriverPostgres {
		schema = postgresSchema
	}
	_, err := db.ExecContext(ctx, schema)
	return err
}
