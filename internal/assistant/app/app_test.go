package app

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Ayomide650/DMS-Assistant/internal/assistant/mod"
	"github.com/Ayomide650/DMS-Assistant/internal/assistant/mode"
	"github.com/Ayomide650/DMS-Assistant/internal/assistant/store"
)

func newModStore(t *testing.T) *mod.Store {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return mod.New(s)
}

func TestAFKMentionNotices(t *testing.T) {
	m := newModStore(t)
	ctx := context.Background()

	if err := m.SetAFK(ctx, "@away:example.com", "grabbing lunch"); err != nil {
		t.Fatalf("set afk: %v", err)
	}

	notices := afkMentionNotices(ctx, m, []string{"@away:example.com", "@here:example.com"})
	if len(notices) != 1 {
		t.Fatalf("expected 1 notice, got %d: %v", len(notices), notices)
	}
	if !strings.Contains(notices[0], "away is AFK: grabbing lunch") {
		t.Fatalf("unexpected notice: %q", notices[0])
	}
}

func TestAFKMentionNoticesNobodyAway(t *testing.T) {
	m := newModStore(t)
	notices := afkMentionNotices(context.Background(), m, []string{"@here:example.com"})
	if len(notices) != 0 {
		t.Fatalf("expected no notices, got %v", notices)
	}
}

func TestXPEligibility(t *testing.T) {
	base := mode.State{XPEnabled: true, AllowedChannels: []string{"!room:hs"}}

	cases := []struct {
		name     string
		st       mode.State
		isDirect bool
		roomID   string
		want     bool
	}{
		{"listed channel", base, false, "!room:hs", true},
		{"unlisted channel", base, false, "!other:hs", false},
		{"unlisted channel with allow-all", withAllowAll(base), false, "!other:hs", true},
		{"direct message", base, true, "!room:hs", false},
		{"maintenance", withMaintenance(base), false, "!room:hs", false},
		{"xp disabled", withXPDisabled(base), false, "!room:hs", false},
	}
	for _, tc := range cases {
		if got := xpEligible(tc.st, tc.isDirect, tc.roomID); got != tc.want {
			t.Errorf("%s: expected %t, got %t", tc.name, tc.want, got)
		}
	}
}

func withAllowAll(s mode.State) mode.State    { s.AllowAll = true; return s }
func withMaintenance(s mode.State) mode.State { s.Maintenance = true; return s }
func withXPDisabled(s mode.State) mode.State  { s.XPEnabled = false; return s }
