package matrix

import (
	"context"
	"path/filepath"
	"testing"

	"maunium.net/go/mautrix/id"

	"github.com/Ayomide650/DMS-Assistant/internal/assistant/store"
)

func newSyncStore(t *testing.T) *dbSyncStore {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return newDBSyncStore(s.DB())
}

func TestNextBatchRoundTrip(t *testing.T) {
	ss := newSyncStore(t)
	ctx := context.Background()
	userID := id.UserID("@assistant:example.com")

	// First run has no token.
	tok, err := ss.LoadNextBatch(ctx, userID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if tok != "" {
		t.Fatalf("expected empty token on first run, got %q", tok)
	}

	if err := ss.SaveNextBatch(ctx, userID, "s123_456"); err != nil {
		t.Fatalf("save: %v", err)
	}
	tok, err = ss.LoadNextBatch(ctx, userID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if tok != "s123_456" {
		t.Fatalf("expected s123_456, got %q", tok)
	}

	// A newer token overwrites the old one.
	if err := ss.SaveNextBatch(ctx, userID, "s789_012"); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	if tok, _ := ss.LoadNextBatch(ctx, userID); tok != "s789_012" {
		t.Fatalf("expected overwritten token, got %q", tok)
	}
}

func TestFilterIDRoundTrip(t *testing.T) {
	ss := newSyncStore(t)
	ctx := context.Background()
	userID := id.UserID("@assistant:example.com")

	if err := ss.SaveFilterID(ctx, userID, "filter-7"); err != nil {
		t.Fatalf("save: %v", err)
	}
	fid, err := ss.LoadFilterID(ctx, userID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if fid != "filter-7" {
		t.Fatalf("expected filter-7, got %q", fid)
	}
}

func TestSyncStateIsPerUser(t *testing.T) {
	ss := newSyncStore(t)
	ctx := context.Background()

	ss.SaveNextBatch(ctx, id.UserID("@a:hs"), "token-a")
	ss.SaveNextBatch(ctx, id.UserID("@b:hs"), "token-b")

	if tok, _ := ss.LoadNextBatch(ctx, id.UserID("@a:hs")); tok != "token-a" {
		t.Fatalf("user a token clobbered: %q", tok)
	}
	if tok, _ := ss.LoadNextBatch(ctx, id.UserID("@b:hs")); tok != "token-b" {
		t.Fatalf("user b token clobbered: %q", tok)
	}
}
