package store

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := NewDatabase(filepath.Join(t.TempDir(), "vault.db"))
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestNewDatabaseCreatesFileAndDirectories(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "dir", "vault.db")

	db, err := NewDatabase(dbPath)
	if err != nil {
		t.Fatalf("NewDatabase failed: %v", err)
	}
	defer db.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("Database file was not created")
	}
}

func TestDatabaseSchemaExists(t *testing.T) {
	db := setupTestDB(t)

	for _, table := range []string{"items", "runs"} {
		var count int
		if err := db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&count); err != nil {
			t.Errorf("Table %s does not exist or is not queryable: %v", table, err)
		}
	}

	for _, indexName := range []string{"idx_items_created", "idx_runs_started", "idx_runs_status"} {
		var count int
		err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name=?", indexName).Scan(&count)
		if err != nil {
			t.Fatalf("Failed to query index %s: %v", indexName, err)
		}
		if count != 1 {
			t.Errorf("Index %s does not exist", indexName)
		}
	}
}

func TestNewDatabaseIsIdempotent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "vault.db")

	first, err := NewDatabase(dbPath)
	if err != nil {
		t.Fatalf("first NewDatabase failed: %v", err)
	}
	if _, err := first.Exec(`INSERT INTO items (name, sha256, mime_type, extension, size, content, created_at)
		VALUES ('a', 'abc', 'text/plain', '.txt', 1, x'61', 1)`); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	first.Close()

	second, err := NewDatabase(dbPath)
	if err != nil {
		t.Fatalf("reopening existing database failed: %v", err)
	}
	defer second.Close()

	var count int
	if err := second.QueryRow("SELECT COUNT(*) FROM items").Scan(&count); err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected existing row to survive reopen, got %d rows", count)
	}
}

func TestInMemoryDatabase(t *testing.T) {
	db, err := NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("NewDatabase(:memory:) failed: %v", err)
	}
	defer db.Close()

	if _, err := db.Exec(`INSERT INTO runs (started_at, verbose, input, output, status) VALUES (1, 0, '', '', 'running')`); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM runs").Scan(&count); err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected 1 run in memory database, got %d", count)
	}
}
