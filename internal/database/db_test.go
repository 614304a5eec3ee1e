package database

import (
	"path/filepath"
	"testing"
)

func TestNewDBAndMigrate(t *testing.T) {
	root := t.TempDir()
	dbPath := filepath.Join(root, "data", "test.db")

	db, err := NewDB(dbPath)
	if err != nil {
		t.Fatalf("failed to create db: %v", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM migrations").Scan(&count); err != nil {
		t.Fatalf("failed to query migrations: %v", err)
	}
	if count != len(migrations) {
		t.Fatalf("expected %d migrations to be applied, got %d", len(migrations), count)
	}

	// A second run is a no-op.
	if err := db.Migrate(); err != nil {
		t.Fatalf("failed to re-run migrations: %v", err)
	}

	for _, table := range []string{"activity_log", "backups", "console_commands", "player_sessions"} {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Fatalf("expected table %s: %v", table, err)
		}
	}
}

func TestRollbackLatestMigration(t *testing.T) {
	db, err := NewDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create db: %v", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	version, err := db.Rollback()
	if err != nil {
		t.Fatalf("failed to roll back: %v", err)
	}
	if version != migrations[len(migrations)-1].Version {
		t.Fatalf("expected to roll back %s, got %s", migrations[len(migrations)-1].Version, version)
	}

	var name string
	err = db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name='player_sessions'").Scan(&name)
	if err == nil {
		t.Fatalf("expected player_sessions to be dropped")
	}

	if err := db.Migrate(); err != nil {
		t.Fatalf("failed to re-apply: %v", err)
	}
	applied, err := db.AppliedMigrations()
	if err != nil {
		t.Fatalf("failed to list migrations: %v", err)
	}
	if len(applied) != len(migrations) {
		t.Fatalf("expected all migrations after re-apply, got %v", applied)
	}
}
