// Package sqlite provides SQLite implementations of storage ports.
package sqlite

import (
	"database/sql"
	"embed"
	"fmt"
	"sort"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// dsnOptions tune the connection for a single-writer service: WAL so reads
// never block on the reaper's deletes, foreign keys on for the version-row
// cascade.
var dsnOptions = []string{
	"_journal_mode=WAL",
	"_busy_timeout=5000",
	"_foreign_keys=on",
	"_synchronous=NORMAL",
}

// DB wraps a SQLite database connection.
type DB struct {
	*sql.DB
}

// Open creates a new SQLite database connection.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path+"?"+strings.Join(dsnOptions, "&"))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Cache and temp-table settings have no DSN form.
	if _, err := db.Exec("PRAGMA cache_size = -64000; PRAGMA temp_store = MEMORY"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set pragma: %w", err)
	}

	return &DB{DB: db}, nil
}

// Migrate applies the pending embedded migrations in filename order and
// returns how many were applied.
func (db *DB) Migrate() (int, error) {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return 0, fmt.Errorf("create migrations table: %w", err)
	}

	applied, err := db.appliedVersions()
	if err != nil {
		return 0, err
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return 0, fmt.Errorf("read migrations dir: %w", err)
	}
	var names []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	var n int
	for _, name := range names {
		version := strings.TrimSuffix(name, ".sql")
		if applied[version] {
			continue
		}
		if err := db.applyMigration(name, version); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func (db *DB) appliedVersions() (map[string]bool, error) {
	rows, err := db.Query("SELECT version FROM schema_migrations")
	if err != nil {
		return nil, fmt.Errorf("query migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("scan migration: %w", err)
		}
		applied[version] = true
	}
	return applied, rows.Err()
}

// applyMigration runs one migration file and records its version, atomically.
func (db *DB) applyMigration(name, version string) error {
	content, err := migrationsFS.ReadFile("migrations/" + name)
	if err != nil {
		return fmt.Errorf("read migration %s: %w", name, err)
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if _, err := tx.Exec(string(content)); err != nil {
		tx.Rollback()
		return fmt.Errorf("execute migration %s: %w", name, err)
	}
	if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
		tx.Rollback()
		return fmt.Errorf("record migration %s: %w", name, err)
	}
	return tx.Commit()
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.DB.Close()
}
