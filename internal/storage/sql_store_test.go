package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"meal-subscription/internal/database"
)

func TestSQLStore(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "kv.db")

	db, err := database.NewDB(dbPath, nil)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	store := NewSQLStore(db.SQL)

	if _, err := store.Get(ctx, "subscription"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	if err := store.Set(ctx, "subscription", []byte(`{"id":"sub_001"}`)); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := store.Set(ctx, "subscription", []byte(`{"id":"sub_002"}`)); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	got, err := store.Get(ctx, "subscription")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got) != `{"id":"sub_002"}` {
		t.Errorf("Expected upserted value, got %s", got)
	}
}
