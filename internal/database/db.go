package database

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

// DB wraps the database connection
type DB struct {
	*sql.DB
}

// NewDB creates a new database connection
func NewDB(dbPath string) (*DB, error) {
	return Open(dbPath, 4)
}

// Open creates a database connection with a bounded pool.
func Open(dbPath string, maxConns int) (*DB, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	dsn, err := buildSQLiteDSN(dbPath)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if maxConns <= 0 {
		maxConns = 4
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(min(maxConns, 2))

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{db}, nil
}

func buildSQLiteDSN(dbPath string) (string, error) {
	absPath, err := filepath.Abs(dbPath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve database path: %w", err)
	}

	// Ensure forward slashes for SQLite file URI
	absPath = strings.ReplaceAll(absPath, "\\", "/")

	// Apply pragmas on every connection
	return fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)", absPath), nil
}

// Migrate runs all database migrations
func (db *DB) Migrate() error {
	if err := db.createMigrationsTable(); err != nil {
		return err
	}

	appliedMigrations, err := db.AppliedMigrations()
	if err != nil {
		return err
	}

	for _, migration := range migrations {
		if contains(appliedMigrations, migration.Version) {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}

		if _, err := tx.Exec(migration.Up); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to execute migration %s: %w", migration.Version, err)
		}

		if _, err := tx.Exec("INSERT INTO migrations (version, applied_at) VALUES (?, datetime('now'))", migration.Version); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %s: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %s: %w", migration.Version, err)
		}

		log.Printf("[Database] Applied migration: %s", migration.Version)
	}

	return nil
}

// Rollback reverts the most recently applied migration and returns its version.
func (db *DB) Rollback() (string, error) {
	if err := db.createMigrationsTable(); err != nil {
		return "", err
	}

	applied, err := db.AppliedMigrations()
	if err != nil {
		return "", err
	}
	if len(applied) == 0 {
		return "", nil
	}

	// Applied order follows the migrations slice, so the latest is last there.
	var target *Migration
	for i := len(migrations) - 1; i >= 0; i-- {
		if contains(applied, migrations[i].Version) {
			target = &migrations[i]
			break
		}
	}
	if target == nil {
		return "", fmt.Errorf("no known migration to roll back")
	}

	tx, err := db.Begin()
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	if _, err := tx.Exec(target.Down); err != nil {
		tx.Rollback()
		return "", fmt.Errorf("failed to revert migration %s: %w", target.Version, err)
	}
	if _, err := tx.Exec("DELETE FROM migrations WHERE version = ?", target.Version); err != nil {
		tx.Rollback()
		return "", fmt.Errorf("failed to unrecord migration %s: %w", target.Version, err)
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit rollback of %s: %w", target.Version, err)
	}

	log.Printf("[Database] Rolled back migration: %s", target.Version)
	return target.Version, nil
}

func (db *DB) createMigrationsTable() error {
	query := `
		CREATE TABLE IF NOT EXISTS migrations (
			version TEXT PRIMARY KEY,
			applied_at DATETIME NOT NULL
		)
	`
	_, err := db.Exec(query)
	return err
}

// AppliedMigrations returns the versions recorded in the migrations table.
func (db *DB) AppliedMigrations() ([]string, error) {
	rows, err := db.Query("SELECT version FROM migrations ORDER BY applied_at")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []string
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		versions = append(versions, version)
	}

	return versions, rows.Err()
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
