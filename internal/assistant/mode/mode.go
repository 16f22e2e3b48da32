// Package mode holds the process-wide operating state that gates every
// response: whether the bot is enabled, silenced, or in maintenance, which
// channels it may speak in, the daily token limit, and the memory cap.
//
// The in-memory value is authoritative for the whole process lifetime. Every
// setter mutates memory first and then persists best-effort through the
// runtime config store; a failed persist is logged, never retried, and never
// rolled back. Reload overlays persisted values onto the defaults once at
// startup, after the platform connection is established.
//
// Unlike the single-threaded event loop this design descends from, Go
// handlers run on real OS threads, so all state is guarded by a RWMutex.
package mode

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/Ayomide650/DMS-Assistant/internal/assistant/config"
)

// Persisted key names in the runtime config store.
const (
	keyEnabled         = "bot.enabled"
	keySilenced        = "bot.silenced"
	keyMaintenance     = "bot.maintenance"
	keyAllowAll        = "bot.allow_all"
	keyXPEnabled       = "bot.xp_enabled"
	keyTokenLimit      = "bot.token_limit"
	keyMemoryLimit     = "bot.memory_limit"
	keyPrefix          = "bot.prefix"
	keyAllowedChannels = "bot.allowed_channels"
)

const (
	// DefaultTokenLimit is the per-user daily completion-token cap when no
	// limit is configured.
	DefaultTokenLimit = 500

	// DefaultMemoryLimit is the number of exchanges kept per user when no
	// limit is configured.
	DefaultMemoryLimit = 10

	// DefaultPrefix is the command prefix when none is configured.
	DefaultPrefix = "!"
)

// ErrInvalidValue is returned by setters when an admin supplies a value that
// would leave the bot unusable (non-positive limits, oversized prefix). The
// in-memory state is untouched in that case.
var ErrInvalidValue = errors.New("mode: invalid configuration value")

// Defaults seeds the Mode from environment-provided configuration.
type Defaults struct {
	TokenLimit      int
	MemoryLimit     int
	Prefix          string
	AllowedChannels []string
	// AdminIDs and WhitelistIDs are exempt identities. They come from the
	// environment only and are never persisted or mutated at runtime.
	AdminIDs     []string
	WhitelistIDs []string
}

// State is a consistent snapshot of all mode fields, safe to use across the
// suspension points of a single message's handling.
type State struct {
	Enabled         bool
	Silenced        bool
	Maintenance     bool
	AllowAll        bool
	XPEnabled       bool
	TokenLimit      int
	MemoryLimit     int
	Prefix          string
	AllowedChannels []string
}

// ChannelAllowed reports whether channelID is in the allowed set.
func (s State) ChannelAllowed(channelID string) bool {
	return slices.Contains(s.AllowedChannels, channelID)
}

// Mode is the mutable operating state. Safe for concurrent use.
type Mode struct {
	mu    sync.RWMutex
	cfg   config.Store
	state State

	// seedChannels is the environment-provided channel list; Reload merges
	// the persisted list with it as a set union so a persisted admin change
	// can never silently drop an environment-configured channel.
	seedChannels []string

	admins    map[string]struct{}
	whitelist map[string]struct{}
}

// New creates a Mode from environment defaults. Call Reload once the
// platform connection is up to overlay persisted values.
func New(cfg config.Store, d Defaults) *Mode {
	if d.TokenLimit <= 0 {
		d.TokenLimit = DefaultTokenLimit
	}
	if d.MemoryLimit <= 0 {
		d.MemoryLimit = DefaultMemoryLimit
	}
	if d.Prefix == "" {
		d.Prefix = DefaultPrefix
	}

	m := &Mode{
		cfg: cfg,
		state: State{
			Enabled:         true,
			XPEnabled:       true,
			TokenLimit:      d.TokenLimit,
			MemoryLimit:     d.MemoryLimit,
			Prefix:          d.Prefix,
			AllowedChannels: dedupe(d.AllowedChannels),
		},
		seedChannels: dedupe(d.AllowedChannels),
		admins:       toSet(d.AdminIDs),
		whitelist:    toSet(d.WhitelistIDs),
	}
	return m
}

// Reload reads every known key from the config store and overwrites the
// in-memory value where a stored one exists. Missing keys keep their
// defaults. The allowed-channel list is merged as a union with the
// environment seed, never replaced outright.
func (m *Mode) Reload(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.loadBool(ctx, keyEnabled, &m.state.Enabled)
	m.loadBool(ctx, keySilenced, &m.state.Silenced)
	m.loadBool(ctx, keyMaintenance, &m.state.Maintenance)
	m.loadBool(ctx, keyAllowAll, &m.state.AllowAll)
	m.loadBool(ctx, keyXPEnabled, &m.state.XPEnabled)
	m.loadInt(ctx, keyTokenLimit, &m.state.TokenLimit)
	m.loadInt(ctx, keyMemoryLimit, &m.state.MemoryLimit)

	if v, err := m.cfg.Get(ctx, keyPrefix); err == nil && v != "" {
		m.state.Prefix = v
	}

	if v, err := m.cfg.Get(ctx, keyAllowedChannels); err == nil {
		persisted := splitChannels(v)
		m.state.AllowedChannels = dedupe(append(append([]string{}, m.seedChannels...), persisted...))
	}

	slog.Info("operating mode loaded",
		"enabled", m.state.Enabled,
		"silenced", m.state.Silenced,
		"maintenance", m.state.Maintenance,
		"allow_all", m.state.AllowAll,
		"token_limit", m.state.TokenLimit,
		"memory_limit", m.state.MemoryLimit,
		"prefix", m.state.Prefix,
		"channels", len(m.state.AllowedChannels),
	)
}

// Snapshot returns a copy of the current state.
func (m *Mode) Snapshot() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := m.state
	s.AllowedChannels = append([]string(nil), m.state.AllowedChannels...)
	return s
}

// IsAdmin reports whether userID is an administrator.
func (m *Mode) IsAdmin(userID string) bool {
	_, ok := m.admins[userID]
	return ok
}

// IsExempt reports whether userID is exempt from budget and mode gating
// (administrators and whitelisted identities).
func (m *Mode) IsExempt(userID string) bool {
	if m.IsAdmin(userID) {
		return true
	}
	_, ok := m.whitelist[userID]
	return ok
}

// --- individual field access ---

// Enabled reports whether the responder is enabled at all.
func (m *Mode) Enabled() bool { return m.Snapshot().Enabled }

// Silenced reports whether AI responses are suppressed.
func (m *Mode) Silenced() bool { return m.Snapshot().Silenced }

// Maintenance reports whether maintenance mode is active.
func (m *Mode) Maintenance() bool { return m.Snapshot().Maintenance }

// XPEnabled reports whether message XP is awarded.
func (m *Mode) XPEnabled() bool { return m.Snapshot().XPEnabled }

// TokenLimit returns the per-user daily token cap.
func (m *Mode) TokenLimit() int { return m.Snapshot().TokenLimit }

// MemoryLimit returns the per-user exchange cap.
func (m *Mode) MemoryLimit() int { return m.Snapshot().MemoryLimit }

// Prefix returns the current command prefix.
func (m *Mode) Prefix() string { return m.Snapshot().Prefix }

// SetEnabled toggles the responder on or off.
func (m *Mode) SetEnabled(ctx context.Context, v bool) {
	m.setBool(ctx, keyEnabled, v, func(s *State) { s.Enabled = v })
}

// SetSilenced toggles AI-response silence.
func (m *Mode) SetSilenced(ctx context.Context, v bool) {
	m.setBool(ctx, keySilenced, v, func(s *State) { s.Silenced = v })
}

// SetMaintenance toggles maintenance mode.
func (m *Mode) SetMaintenance(ctx context.Context, v bool) {
	m.setBool(ctx, keyMaintenance, v, func(s *State) { s.Maintenance = v })
}

// SetAllowAll toggles responding in every allowed channel without a mention.
func (m *Mode) SetAllowAll(ctx context.Context, v bool) {
	m.setBool(ctx, keyAllowAll, v, func(s *State) { s.AllowAll = v })
}

// SetXPEnabled toggles the XP system.
func (m *Mode) SetXPEnabled(ctx context.Context, v bool) {
	m.setBool(ctx, keyXPEnabled, v, func(s *State) { s.XPEnabled = v })
}

// SetTokenLimit sets the daily per-user token cap. Non-positive values are
// rejected with ErrInvalidValue and no state changes.
func (m *Mode) SetTokenLimit(ctx context.Context, limit int) error {
	if limit <= 0 {
		return fmt.Errorf("%w: token limit must be positive, got %d", ErrInvalidValue, limit)
	}
	m.mu.Lock()
	m.state.TokenLimit = limit
	m.mu.Unlock()
	m.persist(ctx, keyTokenLimit, strconv.Itoa(limit))
	return nil
}

// SetMemoryLimit sets the per-user exchange cap. Non-positive values are
// rejected with ErrInvalidValue and no state changes.
func (m *Mode) SetMemoryLimit(ctx context.Context, limit int) error {
	if limit <= 0 {
		return fmt.Errorf("%w: memory limit must be positive, got %d", ErrInvalidValue, limit)
	}
	m.mu.Lock()
	m.state.MemoryLimit = limit
	m.mu.Unlock()
	m.persist(ctx, keyMemoryLimit, strconv.Itoa(limit))
	return nil
}

// SetPrefix sets the command prefix (1-3 characters, no whitespace).
func (m *Mode) SetPrefix(ctx context.Context, prefix string) error {
	if prefix == "" || len(prefix) > 3 || strings.ContainsAny(prefix, " \t\n") {
		return fmt.Errorf("%w: prefix must be 1-3 non-whitespace characters", ErrInvalidValue)
	}
	m.mu.Lock()
	m.state.Prefix = prefix
	m.mu.Unlock()
	m.persist(ctx, keyPrefix, prefix)
	return nil
}

// AddChannel adds channelID to the allowed set. Adding an existing channel
// is a no-op.
func (m *Mode) AddChannel(ctx context.Context, channelID string) {
	m.mu.Lock()
	if !slices.Contains(m.state.AllowedChannels, channelID) {
		m.state.AllowedChannels = append(m.state.AllowedChannels, channelID)
	}
	joined := strings.Join(m.state.AllowedChannels, ",")
	m.mu.Unlock()
	m.persist(ctx, keyAllowedChannels, joined)
}

// RemoveChannel removes channelID from the allowed set.
func (m *Mode) RemoveChannel(ctx context.Context, channelID string) {
	m.mu.Lock()
	m.state.AllowedChannels = slices.DeleteFunc(m.state.AllowedChannels, func(c string) bool {
		return c == channelID
	})
	joined := strings.Join(m.state.AllowedChannels, ",")
	m.mu.Unlock()
	m.persist(ctx, keyAllowedChannels, joined)
}

// --- internals ---

func (m *Mode) setBool(ctx context.Context, key string, v bool, apply func(*State)) {
	m.mu.Lock()
	apply(&m.state)
	m.mu.Unlock()
	m.persist(ctx, key, strconv.FormatBool(v))
}

// persist writes the value through to the config store. The in-memory value
// stays authoritative whether or not this succeeds.
func (m *Mode) persist(ctx context.Context, key, value string) {
	if err := m.cfg.Set(ctx, key, value); err != nil {
		slog.Warn("mode: persist failed, in-memory value remains authoritative",
			"key", key, "err", err)
	}
}

// loadBool overwrites dst with the persisted value when present and parseable.
// Must be called with mu held.
func (m *Mode) loadBool(ctx context.Context, key string, dst *bool) {
	v, err := m.cfg.Get(ctx, key)
	if err != nil {
		return
	}
	if b, err := strconv.ParseBool(v); err == nil {
		*dst = b
	}
}

// loadInt overwrites dst with the persisted value when present, parseable,
// and positive. Must be called with mu held.
func (m *Mode) loadInt(ctx context.Context, key string, dst *int) {
	v, err := m.cfg.Get(ctx, key)
	if err != nil {
		return
	}
	if n, err := strconv.Atoi(v); err == nil && n > 0 {
		*dst = n
	}
}

func splitChannels(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func toSet(in []string) map[string]struct{} {
	set := make(map[string]struct{}, len(in))
	for _, v := range in {
		set[v] = struct{}{}
	}
	return set
}
