package commands_test

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Ayomide650/DMS-Assistant/internal/assistant/commands"
	"github.com/Ayomide650/DMS-Assistant/internal/assistant/config"
	"github.com/Ayomide650/DMS-Assistant/internal/assistant/ledger"
	"github.com/Ayomide650/DMS-Assistant/internal/assistant/memory"
	"github.com/Ayomide650/DMS-Assistant/internal/assistant/mod"
	"github.com/Ayomide650/DMS-Assistant/internal/assistant/mode"
	"github.com/Ayomide650/DMS-Assistant/internal/assistant/store"
	"github.com/Ayomide650/DMS-Assistant/internal/assistant/xp"
)

const (
	admin = "@admin:example.com"
	user  = "@dora:example.com"
)

type env struct {
	router *commands.Router
	h      *commands.Handlers
}

func newEnv(t *testing.T) *env {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	h := &commands.Handlers{
		Mode:      mode.New(config.New(s), mode.Defaults{AdminIDs: []string{admin}}),
		Ledger:    ledger.New(s),
		Memory:    memory.New(s),
		XP:        xp.New(s),
		Mod:       mod.New(s),
		StartTime: time.Now(),
	}
	router := commands.NewRouter()
	h.RegisterAll(router)
	return &env{router: router, h: h}
}

func (e *env) route(t *testing.T, sender, text string) string {
	t.Helper()
	reply, err := e.router.Route(context.Background(), e.h.Mode.Prefix(), text, sender)
	if err != nil {
		t.Fatalf("route %q: %v", text, err)
	}
	return reply
}

func TestPing(t *testing.T) {
	e := newEnv(t)
	if got := e.route(t, user, "!ping"); got != "Pong!" {
		t.Fatalf("expected Pong!, got %q", got)
	}
}

func TestUptime(t *testing.T) {
	e := newEnv(t)
	if got := e.route(t, user, "!uptime"); !strings.Contains(got, "running for") {
		t.Fatalf("unexpected uptime reply: %q", got)
	}
}

func TestHelpHidesAdminCommandsFromUsers(t *testing.T) {
	e := newEnv(t)

	userHelp := e.route(t, user, "!help")
	if strings.Contains(userHelp, "maintenance") {
		t.Error("admin command leaked into user help")
	}
	if !strings.Contains(userHelp, "ping") {
		t.Error("user command missing from help")
	}

	adminHelp := e.route(t, admin, "!help")
	if !strings.Contains(adminHelp, "maintenance") {
		t.Error("admin help missing admin commands")
	}
}

func TestHelpSingleCommand(t *testing.T) {
	e := newEnv(t)
	got := e.route(t, user, "!help ping")
	if !strings.Contains(got, "Usage: !ping") {
		t.Fatalf("unexpected help detail: %q", got)
	}
	if got := e.route(t, user, "!help maintenance"); !strings.Contains(got, "not found") {
		t.Fatalf("admin command detail leaked to user: %q", got)
	}
}

func TestAdminGate(t *testing.T) {
	e := newEnv(t)
	got := e.route(t, user, "!maintenance")
	if !strings.Contains(got, "permission") {
		t.Fatalf("expected permission denial, got %q", got)
	}
	if e.h.Mode.Maintenance() {
		t.Fatal("denied command mutated state")
	}
}

func TestEnableToggle(t *testing.T) {
	e := newEnv(t)

	if got := e.route(t, admin, "!enable"); !strings.Contains(got, "DISABLED") {
		t.Fatalf("unexpected reply: %q", got)
	}
	if e.h.Mode.Enabled() {
		t.Fatal("bot not disabled")
	}

	// The toggle is the only way back from a disabled state.
	if got := e.route(t, admin, "!enable"); !strings.Contains(got, "ENABLED") {
		t.Fatalf("unexpected reply: %q", got)
	}
	if !e.h.Mode.Enabled() {
		t.Fatal("bot not re-enabled")
	}
}

func TestMaintenanceToggle(t *testing.T) {
	e := newEnv(t)

	e.route(t, admin, "!maintenance")
	if !e.h.Mode.Maintenance() {
		t.Fatal("maintenance not enabled")
	}
	e.route(t, admin, "!maintenance")
	if e.h.Mode.Maintenance() {
		t.Fatal("maintenance not disabled on second toggle")
	}
}

func TestSilenceToggle(t *testing.T) {
	e := newEnv(t)
	if got := e.route(t, admin, "!silence"); !strings.Contains(got, "SILENCED") {
		t.Fatalf("unexpected reply: %q", got)
	}
	if !e.h.Mode.Silenced() {
		t.Fatal("silence not enabled")
	}
}

func TestChannelCommands(t *testing.T) {
	e := newEnv(t)

	e.route(t, admin, "!channels add !room:hs")
	if !e.h.Mode.Snapshot().ChannelAllowed("!room:hs") {
		t.Fatal("channel not added")
	}

	list := e.route(t, admin, "!channels list")
	if !strings.Contains(list, "!room:hs") {
		t.Fatalf("channel missing from list: %q", list)
	}

	e.route(t, admin, "!channels remove !room:hs")
	if e.h.Mode.Snapshot().ChannelAllowed("!room:hs") {
		t.Fatal("channel not removed")
	}
}

func TestLimitCommands(t *testing.T) {
	e := newEnv(t)

	e.route(t, admin, "!limit tokens 750")
	if got := e.h.Mode.TokenLimit(); got != 750 {
		t.Fatalf("token limit not applied: %d", got)
	}

	e.route(t, admin, "!limit memory 25")
	if got := e.h.Mode.MemoryLimit(); got != 25 {
		t.Fatalf("memory limit not applied: %d", got)
	}

	// Invalid input is reported and changes nothing.
	if got := e.route(t, admin, "!limit tokens zero"); !strings.Contains(got, "not a number") {
		t.Fatalf("unexpected reply: %q", got)
	}
	if got := e.route(t, admin, "!limit tokens -5"); !strings.Contains(got, "positive") {
		t.Fatalf("unexpected reply: %q", got)
	}
	if got := e.h.Mode.TokenLimit(); got != 750 {
		t.Fatalf("invalid input mutated limit: %d", got)
	}
}

func TestPrefixChangeTakesEffect(t *testing.T) {
	e := newEnv(t)

	e.route(t, admin, "!prefix ?")
	if got := e.h.Mode.Prefix(); got != "?" {
		t.Fatalf("prefix not applied: %q", got)
	}

	// The new prefix routes; the old one no longer does.
	if got := e.route(t, user, "?ping"); got != "Pong!" {
		t.Fatalf("new prefix not routing: %q", got)
	}
	_, err := e.router.Route(context.Background(), e.h.Mode.Prefix(), "!ping", user)
	if err == nil {
		t.Fatal("old prefix still routing")
	}
}

func TestAFKCommand(t *testing.T) {
	e := newEnv(t)

	got := e.route(t, user, "!afk grabbing lunch")
	if !strings.Contains(got, "grabbing lunch") {
		t.Fatalf("unexpected afk reply: %q", got)
	}
	status, err := e.h.Mod.GetAFK(context.Background(), user)
	if err != nil || status == nil {
		t.Fatalf("afk status not stored: (%+v, %v)", status, err)
	}

	long := strings.Repeat("x", 101)
	if got := e.route(t, user, "!afk "+long); !strings.Contains(got, "100") {
		t.Fatalf("over-long reason accepted: %q", got)
	}
}

func TestWarnAndWarnings(t *testing.T) {
	e := newEnv(t)

	e.route(t, admin, "!warn "+user+" too much spam")

	got := e.route(t, user, "!warnings")
	if !strings.Contains(got, "too much spam") {
		t.Fatalf("warning missing: %q", got)
	}

	// Non-admins cannot inspect others.
	if got := e.route(t, user, "!warnings "+admin); !strings.Contains(got, "your own") {
		t.Fatalf("expected denial, got %q", got)
	}

	// Admins can.
	if got := e.route(t, admin, "!warnings "+user); !strings.Contains(got, "too much spam") {
		t.Fatalf("admin lookup failed: %q", got)
	}
}

func TestResetTokens(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	e.h.Ledger.RecordUsage(ctx, user, 400)
	e.route(t, admin, "!reset-tokens "+user)
	if got := e.h.Ledger.CheckUsage(ctx, user); got != 0 {
		t.Fatalf("tokens not reset: %d", got)
	}
}

func TestClearMemory(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	e.h.Memory.AppendExchange(ctx, user, "q", "a", 10)
	e.route(t, admin, "!clear-memory "+user)
	if got := e.h.Memory.GetHistory(ctx, user); len(got) != 0 {
		t.Fatalf("memory not cleared: %d exchanges", len(got))
	}
}

func TestRankCooldownForNonAdmins(t *testing.T) {
	e := newEnv(t)

	if got := e.route(t, user, "!rank"); strings.Contains(got, "24 hours") {
		t.Fatalf("first use throttled: %q", got)
	}
	if got := e.route(t, user, "!rank"); !strings.Contains(got, "24 hours") {
		t.Fatalf("second use within the window not throttled: %q", got)
	}

	// Admins are never throttled.
	e.route(t, admin, "!rank")
	if got := e.route(t, admin, "!rank"); strings.Contains(got, "24 hours") {
		t.Fatalf("admin throttled: %q", got)
	}
}

func TestRankWhenXPDisabled(t *testing.T) {
	e := newEnv(t)
	e.route(t, admin, "!xp-toggle")
	if got := e.route(t, user, "!rank"); !strings.Contains(got, "disabled") {
		t.Fatalf("unexpected rank reply: %q", got)
	}
}

func TestShowConfig(t *testing.T) {
	e := newEnv(t)
	got := e.route(t, admin, "!config")
	for _, field := range []string{"enabled", "silenced", "maintenance", "tokenLimit", "prefix"} {
		if !strings.Contains(got, field) {
			t.Errorf("config output missing %s: %q", field, got)
		}
	}
}
