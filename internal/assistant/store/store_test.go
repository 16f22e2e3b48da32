package store_test

import (
	"path/filepath"
	"testing"

	"github.com/Ayomide650/DMS-Assistant/internal/assistant/store"
)

func TestNewRunsMigrations(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := store.New(dbPath)
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	defer s.Close()

	for _, table := range []string{
		"usage_ledger", "chat_memory", "runtime_config",
		"user_warnings", "afk_users", "matrix_sync_state", "user_xp",
	} {
		var name string
		err := s.DB().QueryRow(
			`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %q missing after migrations: %v", table, err)
		}
	}
}

func TestReopenIsIdempotent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	s, err := store.New(dbPath)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	if _, err := s.DB().Exec(
		`INSERT INTO runtime_config (key, value, updated_at) VALUES ('k', 'v', CURRENT_TIMESTAMP)`,
	); err != nil {
		t.Fatalf("insert: %v", err)
	}
	s.Close()

	// Reopening must rerun nothing and keep existing data.
	s2, err := store.New(dbPath)
	if err != nil {
		t.Fatalf("second open: %v", err)
	}
	defer s2.Close()

	var v string
	if err := s2.DB().QueryRow(`SELECT value FROM runtime_config WHERE key = 'k'`).Scan(&v); err != nil {
		t.Fatalf("read after reopen: %v", err)
	}
	if v != "v" {
		t.Errorf("expected value %q, got %q", "v", v)
	}
}
