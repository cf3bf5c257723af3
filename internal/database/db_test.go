package database

import (
	"path/filepath"
	"testing"
)

func TestNewDB(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "app.db")

	db, err := NewDB(path, nil)
	if err != nil {
		t.Fatalf("NewDB failed: %v", err)
	}
	if db.Version != 3 {
		t.Errorf("Expected schema version 3, got %d", db.Version)
	}

	for _, table := range []string{"kv_entries", "impact_events", "execution_metrics"} {
		var name string
		err := db.SQL.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
		if err != nil {
			t.Errorf("Expected table %s: %v", table, err)
		}
	}
	db.Close()

	// Reopening an up-to-date database is a no-op migration.
	again, err := NewDB(path, nil)
	if err != nil {
		t.Fatalf("Reopen failed: %v", err)
	}
	defer again.Close()
	if again.Version != 3 {
		t.Errorf("Expected schema version 3 after reopen, got %d", again.Version)
	}
}
