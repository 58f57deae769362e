package storage

import (
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// Database wraps the sqlx.DB connection.
type Database struct {
	*sqlx.DB
}

// schema defines the database tables. It sticks to the column types shared
// by SQLite and MySQL so one statement serves both drivers.
const schema = `
CREATE TABLE IF NOT EXISTS watched_repos (
    repo_id VARCHAR(255) NOT NULL PRIMARY KEY,
    position INTEGER NOT NULL,
    channel_id VARCHAR(64) NOT NULL,
    watched_events TEXT NOT NULL,
    last_commit_id VARCHAR(64) NULL,
    last_pull_request_id BIGINT NULL,
    last_issue_id BIGINT NULL,
    last_release_id BIGINT NULL,
    added_by VARCHAR(255) NOT NULL DEFAULT '',
    added_at VARCHAR(64) NOT NULL DEFAULT ''
)`

// NewDatabase opens a connection for the given registry driver and initializes the schema.
// driver is "sqlite" or "mysql"; for sqlite the dsn is a file path.
func NewDatabase(driver, dsn string) (*Database, error) {
	driverName := driver
	switch driver {
	case "sqlite", "sqlite3":
		driverName = "sqlite3"
		// Ensure directory exists
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	case "mysql":
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := sqlx.Connect(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Database{DB: db}, nil
}

// Close closes the database connection.
func (d *Database) Close() error {
	return d.DB.Close()
}

// OpenRegistry opens the registry backend named by driver: "sqlite",
// "mysql" or "bolt".
func OpenRegistry(driver, dsn string) (Registry, error) {
	if driver == "bolt" {
		return NewBoltRegistry(dsn)
	}

	db, err := NewDatabase(driver, dsn)
	if err != nil {
		return nil, err
	}
	return NewSQLRegistry(db), nil
}
