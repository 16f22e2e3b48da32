package config_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/Ayomide650/DMS-Assistant/internal/assistant/config"
	"github.com/Ayomide650/DMS-Assistant/internal/assistant/store"
)

func newStore(t *testing.T) config.Store {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return config.New(s)
}

func TestGetMissingKey(t *testing.T) {
	cfg := newStore(t)
	if _, err := cfg.Get(context.Background(), "bot.prefix"); !errors.Is(err, config.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSetGetOverwrite(t *testing.T) {
	cfg := newStore(t)
	ctx := context.Background()

	if err := cfg.Set(ctx, "bot.prefix", "!"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if v, err := cfg.Get(ctx, "bot.prefix"); err != nil || v != "!" {
		t.Fatalf("get: got (%q, %v)", v, err)
	}

	if err := cfg.Set(ctx, "bot.prefix", "?"); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	if v, _ := cfg.Get(ctx, "bot.prefix"); v != "?" {
		t.Fatalf("expected overwritten value %q, got %q", "?", v)
	}
}

func TestDelete(t *testing.T) {
	cfg := newStore(t)
	ctx := context.Background()

	if err := cfg.Set(ctx, "bot.silenced", "true"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := cfg.Delete(ctx, "bot.silenced"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := cfg.Get(ctx, "bot.silenced"); !errors.Is(err, config.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	// Deleting a missing key is not an error.
	if err := cfg.Delete(ctx, "bot.silenced"); err != nil {
		t.Fatalf("delete missing: %v", err)
	}
}

func TestList(t *testing.T) {
	cfg := newStore(t)
	ctx := context.Background()

	want := map[string]string{
		"bot.token_limit":  "500",
		"bot.memory_limit": "10",
	}
	for k, v := range want {
		if err := cfg.Set(ctx, k, v); err != nil {
			t.Fatalf("set %s: %v", k, err)
		}
	}

	got, err := cfg.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), len(got))
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("key %s: expected %q, got %q", k, v, got[k])
		}
	}
}
