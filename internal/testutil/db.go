package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/insulate/badminton-booking-sub002/internal/db"
)

// NewTestDB creates a temporary SQLite database with migrations applied.
func NewTestDB(t *testing.T) *db.DB {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	database, err := db.New(dbPath)
	if err != nil {
		t.Fatalf("create test db: %v", err)
	}
	t.Cleanup(func() {
		_ = database.Close()
	})

	return database
}

// SeedCourt inserts a court row; court CRUD lives outside the ledger.
func SeedCourt(t *testing.T, database *db.DB, id, name string) {
	t.Helper()

	if _, err := database.ExecContext(context.Background(),
		"INSERT INTO courts (id, name) VALUES (?, ?)",
		id,
		name,
	); err != nil {
		t.Fatalf("insert court %s: %v", id, err)
	}
}
