package commands

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Ayomide650/DMS-Assistant/internal/assistant/ledger"
	"github.com/Ayomide650/DMS-Assistant/internal/assistant/memory"
	"github.com/Ayomide650/DMS-Assistant/internal/assistant/mod"
	"github.com/Ayomide650/DMS-Assistant/internal/assistant/mode"
	"github.com/Ayomide650/DMS-Assistant/internal/assistant/xp"
)

// Handlers holds the collaborators every command handler needs.
type Handlers struct {
	Mode      *mode.Mode
	Ledger    *ledger.Ledger
	Memory    *memory.Memory
	XP        *xp.Tracker
	Mod       *mod.Store
	StartTime time.Time

	// rankLastUse throttles the rank command for non-admins.
	rankMu      sync.Mutex
	rankLastUse map[string]time.Time
}

// commandInfo drives the help text.
type commandInfo struct {
	name        string
	usage       string
	description string
	adminOnly   bool
}

var commandList = []commandInfo{
	{"help", "help [command]", "Shows this help message.", false},
	{"ping", "ping", "Checks that the bot is alive.", false},
	{"uptime", "uptime", "Shows how long the bot has been running.", false},
	{"afk", "afk [reason]", "Sets your AFK status.", false},
	{"rank", "rank [userID]", "Displays your or another user's rank card.", false},
	{"warnings", "warnings [userID]", "Shows your or another user's warnings.", false},
	{"warn", "warn <userID> <reason>", "Warns a user.", true},
	{"enable", "enable", "Toggles the AI responder on or off.", true},
	{"maintenance", "maintenance", "Toggles maintenance mode.", true},
	{"silence", "silence", "Toggles AI response silence mode.", true},
	{"xp-toggle", "xp-toggle", "Toggles the XP system.", true},
	{"allowall", "allowall", "Toggles responding to everything in allowed channels.", true},
	{"channels", "channels add|remove|list [channelID]", "Manages the allowed channel list.", true},
	{"limit", "limit tokens|memory <n>", "Sets the daily token or memory limit.", true},
	{"prefix", "prefix <p>", "Sets the command prefix.", true},
	{"reset-tokens", "reset-tokens <userID>", "Resets a user's daily AI token usage.", true},
	{"clear-memory", "clear-memory <userID>", "Clears a user's conversation memory.", true},
	{"leaderboard", "leaderboard", "Shows the XP leaderboard.", true},
	{"stats", "stats", "Shows bot statistics.", true},
	{"config", "config", "Shows the current configuration.", true},
}

// RegisterAll wires every handler into the router.
func (h *Handlers) RegisterAll(r *Router) {
	r.Register("help", h.Help)
	r.Register("ping", h.Ping)
	r.Register("uptime", h.Uptime)
	r.Register("afk", h.AFK)
	r.Register("rank", h.Rank)
	r.Register("warnings", h.Warnings)

	r.Register("warn", h.adminOnly(h.Warn))
	r.Register("enable", h.adminOnly(h.ToggleEnabled))
	r.Register("maintenance", h.adminOnly(h.ToggleMaintenance))
	r.Register("silence", h.adminOnly(h.ToggleSilence))
	r.Register("xp-toggle", h.adminOnly(h.ToggleXP))
	r.Register("allowall", h.adminOnly(h.ToggleAllowAll))
	r.Register("channels.add", h.adminOnly(h.ChannelAdd))
	r.Register("channels.remove", h.adminOnly(h.ChannelRemove))
	r.Register("channels.list", h.adminOnly(h.ChannelList))
	r.Register("limit.tokens", h.adminOnly(h.SetTokenLimit))
	r.Register("limit.memory", h.adminOnly(h.SetMemoryLimit))
	r.Register("prefix", h.adminOnly(h.SetPrefix))
	r.Register("reset-tokens", h.adminOnly(h.ResetTokens))
	r.Register("clear-memory", h.adminOnly(h.ClearMemory))
	r.Register("leaderboard", h.adminOnly(h.Leaderboard))
	r.Register("stats", h.adminOnly(h.Stats))
	r.Register("config", h.adminOnly(h.ShowConfig))
}

// adminOnly gates a handler behind the administrator list.
func (h *Handlers) adminOnly(next Handler) Handler {
	return func(ctx context.Context, cmd *Command, senderID string) (string, error) {
		if !h.Mode.IsAdmin(senderID) {
			return "You don't have permission to use this admin command.", nil
		}
		return next(ctx, cmd, senderID)
	}
}

// Help lists available commands, or details one command.
func (h *Handlers) Help(ctx context.Context, cmd *Command, senderID string) (string, error) {
	prefix := h.Mode.Prefix()
	isAdmin := h.Mode.IsAdmin(senderID)

	if len(cmd.Args) > 0 {
		name := strings.ToLower(cmd.Args[0])
		for _, c := range commandList {
			if c.name != name || (c.adminOnly && !isAdmin) {
				continue
			}
			return fmt.Sprintf("%s%s — %s\nUsage: %s%s", prefix, c.name, c.description, prefix, c.usage), nil
		}
		return fmt.Sprintf("Command %q not found.", name), nil
	}

	var b strings.Builder
	b.WriteString("Commands (prefix " + prefix + "):\n")
	for _, c := range commandList {
		if c.adminOnly && !isAdmin {
			continue
		}
		marker := ""
		if c.adminOnly {
			marker = " [admin]"
		}
		fmt.Fprintf(&b, "  %s%s — %s%s\n", prefix, c.usage, c.description, marker)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

// Ping answers with a liveness reply.
func (h *Handlers) Ping(ctx context.Context, cmd *Command, senderID string) (string, error) {
	return "Pong!", nil
}

// Uptime reports the time since process start.
func (h *Handlers) Uptime(ctx context.Context, cmd *Command, senderID string) (string, error) {
	up := time.Since(h.StartTime).Round(time.Second)
	return fmt.Sprintf("I've been running for %s (started %s).",
		up, h.StartTime.UTC().Format(time.RFC3339)), nil
}

// AFK marks the sender as away.
func (h *Handlers) AFK(ctx context.Context, cmd *Command, senderID string) (string, error) {
	reason := strings.Join(cmd.Args, " ")
	if reason == "" {
		reason = "No reason provided"
	}
	if len(reason) > 100 {
		return "AFK reason cannot exceed 100 characters.", nil
	}
	if err := h.Mod.SetAFK(ctx, senderID, reason); err != nil {
		return "Failed to set AFK status.", err
	}
	return "Your AFK status is set: " + reason, nil
}

// rankCooldown is how often non-admins may use the rank command.
const rankCooldown = 24 * time.Hour

// canUseRank enforces and records the non-admin rank cooldown.
func (h *Handlers) canUseRank(senderID string) bool {
	h.rankMu.Lock()
	defer h.rankMu.Unlock()
	if last, ok := h.rankLastUse[senderID]; ok && time.Since(last) < rankCooldown {
		return false
	}
	if h.rankLastUse == nil {
		h.rankLastUse = make(map[string]time.Time)
	}
	h.rankLastUse[senderID] = time.Now()
	return true
}

// Rank shows the sender's (or another user's) XP card.
func (h *Handlers) Rank(ctx context.Context, cmd *Command, senderID string) (string, error) {
	if !h.Mode.XPEnabled() {
		return "XP system is currently disabled.", nil
	}
	if !h.Mode.IsAdmin(senderID) && !h.canUseRank(senderID) {
		return "You can check your rank once every 24 hours.", nil
	}
	target := senderID
	if len(cmd.Args) > 0 {
		target = cmd.Args[0]
	}

	u, err := h.XP.Get(ctx, target, "")
	if err != nil {
		return "No XP data for that user.", err
	}

	nextTotal := xp.TotalForLevel(u.Level + 1)
	return fmt.Sprintf("%s — Rank %s, Level %d, %d XP (%d needed for level %d)",
		u.Username, u.Rank, u.Level, u.XP, max(0, nextTotal-u.XP), u.Level+1), nil
}

// Warnings lists warnings. Non-admins may only view their own.
func (h *Handlers) Warnings(ctx context.Context, cmd *Command, senderID string) (string, error) {
	target := senderID
	if len(cmd.Args) > 0 {
		target = cmd.Args[0]
	}
	if target != senderID && !h.Mode.IsAdmin(senderID) {
		return "You can only view your own warnings.", nil
	}

	warnings, err := h.Mod.Warnings(ctx, target)
	if err != nil {
		return "Failed to fetch warnings.", err
	}
	if len(warnings) == 0 {
		return "No warnings on record.", nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Warnings for %s (%d):\n", target, len(warnings))
	for i, w := range warnings {
		if i == 5 {
			fmt.Fprintf(&b, "  ... and %d more", len(warnings)-5)
			break
		}
		fmt.Fprintf(&b, "  %d. %s — by %s on %s\n",
			i+1, w.Reason, w.AdminID, w.CreatedAt.Format("2006-01-02"))
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

// Warn records a warning against a user.
func (h *Handlers) Warn(ctx context.Context, cmd *Command, senderID string) (string, error) {
	if len(cmd.Args) < 2 {
		return fmt.Sprintf("Usage: %swarn <userID> <reason>", h.Mode.Prefix()), nil
	}
	target := cmd.Args[0]
	reason := strings.Join(cmd.Args[1:], " ")

	if _, err := h.Mod.AddWarning(ctx, target, reason, senderID); err != nil {
		return "Failed to issue warning.", err
	}
	return fmt.Sprintf("%s warned. Reason: %s", target, reason), nil
}

// ToggleEnabled flips the AI responder on or off. This is the only way back
// once a disabled state has been persisted.
func (h *Handlers) ToggleEnabled(ctx context.Context, cmd *Command, senderID string) (string, error) {
	next := !h.Mode.Enabled()
	h.Mode.SetEnabled(ctx, next)
	if next {
		return "Bot ENABLED.", nil
	}
	return "Bot DISABLED.", nil
}

// ToggleMaintenance flips maintenance mode.
func (h *Handlers) ToggleMaintenance(ctx context.Context, cmd *Command, senderID string) (string, error) {
	next := !h.Mode.Maintenance()
	h.Mode.SetMaintenance(ctx, next)
	return "Maintenance mode " + onOff(next) + ".", nil
}

// ToggleSilence flips AI response silence.
func (h *Handlers) ToggleSilence(ctx context.Context, cmd *Command, senderID string) (string, error) {
	next := !h.Mode.Silenced()
	h.Mode.SetSilenced(ctx, next)
	if next {
		return "Bot AI SILENCED.", nil
	}
	return "Bot AI ACTIVE.", nil
}

// ToggleXP flips the XP system.
func (h *Handlers) ToggleXP(ctx context.Context, cmd *Command, senderID string) (string, error) {
	next := !h.Mode.XPEnabled()
	h.Mode.SetXPEnabled(ctx, next)
	return "XP system " + onOff(next) + ".", nil
}

// ToggleAllowAll flips allow-all.
func (h *Handlers) ToggleAllowAll(ctx context.Context, cmd *Command, senderID string) (string, error) {
	next := !h.Mode.Snapshot().AllowAll
	h.Mode.SetAllowAll(ctx, next)
	return "Allow-all " + onOff(next) + ".", nil
}

// ChannelAdd adds a channel to the allowed set.
func (h *Handlers) ChannelAdd(ctx context.Context, cmd *Command, senderID string) (string, error) {
	if len(cmd.Args) < 1 {
		return fmt.Sprintf("Usage: %schannels add <channelID>", h.Mode.Prefix()), nil
	}
	h.Mode.AddChannel(ctx, cmd.Args[0])
	return "Channel added: " + cmd.Args[0], nil
}

// ChannelRemove removes a channel from the allowed set.
func (h *Handlers) ChannelRemove(ctx context.Context, cmd *Command, senderID string) (string, error) {
	if len(cmd.Args) < 1 {
		return fmt.Sprintf("Usage: %schannels remove <channelID>", h.Mode.Prefix()), nil
	}
	h.Mode.RemoveChannel(ctx, cmd.Args[0])
	return "Channel removed: " + cmd.Args[0], nil
}

// ChannelList lists the allowed channels.
func (h *Handlers) ChannelList(ctx context.Context, cmd *Command, senderID string) (string, error) {
	channels := h.Mode.Snapshot().AllowedChannels
	if len(channels) == 0 {
		return "No allowed channels configured.", nil
	}
	return "Allowed channels:\n  " + strings.Join(channels, "\n  "), nil
}

// SetTokenLimit sets the daily per-user token cap. Invalid input is rejected
// before any state changes.
func (h *Handlers) SetTokenLimit(ctx context.Context, cmd *Command, senderID string) (string, error) {
	if len(cmd.Args) < 1 {
		return fmt.Sprintf("Usage: %slimit tokens <n>", h.Mode.Prefix()), nil
	}
	n, err := strconv.Atoi(cmd.Args[0])
	if err != nil {
		return fmt.Sprintf("%q is not a number.", cmd.Args[0]), nil
	}
	if err := h.Mode.SetTokenLimit(ctx, n); err != nil {
		if errors.Is(err, mode.ErrInvalidValue) {
			return "Token limit must be a positive number.", nil
		}
		return "Failed to set token limit.", err
	}
	return fmt.Sprintf("Daily token limit set to %d.", n), nil
}

// SetMemoryLimit sets the per-user conversation memory cap.
func (h *Handlers) SetMemoryLimit(ctx context.Context, cmd *Command, senderID string) (string, error) {
	if len(cmd.Args) < 1 {
		return fmt.Sprintf("Usage: %slimit memory <n>", h.Mode.Prefix()), nil
	}
	n, err := strconv.Atoi(cmd.Args[0])
	if err != nil {
		return fmt.Sprintf("%q is not a number.", cmd.Args[0]), nil
	}
	if err := h.Mode.SetMemoryLimit(ctx, n); err != nil {
		if errors.Is(err, mode.ErrInvalidValue) {
			return "Memory limit must be a positive number.", nil
		}
		return "Failed to set memory limit.", err
	}
	return fmt.Sprintf("Memory limit set to %d exchanges.", n), nil
}

// SetPrefix changes the command prefix.
func (h *Handlers) SetPrefix(ctx context.Context, cmd *Command, senderID string) (string, error) {
	if len(cmd.Args) < 1 {
		return fmt.Sprintf("Usage: %sprefix <p>", h.Mode.Prefix()), nil
	}
	if err := h.Mode.SetPrefix(ctx, cmd.Args[0]); err != nil {
		if errors.Is(err, mode.ErrInvalidValue) {
			return "Prefix must be 1-3 non-whitespace characters.", nil
		}
		return "Failed to set prefix.", err
	}
	return "Command prefix set to " + cmd.Args[0], nil
}

// ResetTokens zeroes a user's daily usage.
func (h *Handlers) ResetTokens(ctx context.Context, cmd *Command, senderID string) (string, error) {
	if len(cmd.Args) < 1 {
		return fmt.Sprintf("Usage: %sreset-tokens <userID>", h.Mode.Prefix()), nil
	}
	if err := h.Ledger.Reset(ctx, cmd.Args[0]); err != nil {
		return "Failed to reset tokens for " + cmd.Args[0] + ".", err
	}
	return "AI tokens reset for " + cmd.Args[0] + ".", nil
}

// ClearMemory deletes a user's conversation history.
func (h *Handlers) ClearMemory(ctx context.Context, cmd *Command, senderID string) (string, error) {
	if len(cmd.Args) < 1 {
		return fmt.Sprintf("Usage: %sclear-memory <userID>", h.Mode.Prefix()), nil
	}
	if err := h.Memory.ClearHistory(ctx, cmd.Args[0]); err != nil {
		return "Failed to clear memory for " + cmd.Args[0] + ".", err
	}
	return "Conversation memory cleared for " + cmd.Args[0] + ".", nil
}

// Leaderboard shows the top users by XP.
func (h *Handlers) Leaderboard(ctx context.Context, cmd *Command, senderID string) (string, error) {
	leaders, err := h.XP.Leaderboard(ctx, 10)
	if err != nil {
		return "Failed to fetch the leaderboard.", err
	}
	if len(leaders) == 0 {
		return "No leaderboard data yet.", nil
	}
	var b strings.Builder
	b.WriteString("XP Leaderboard - Top 10:\n")
	for i, u := range leaders {
		fmt.Fprintf(&b, "  %d. %s — Level %d (%d XP)\n", i+1, u.Username, u.Level, u.XP)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

// Stats shows aggregate bot statistics.
func (h *Handlers) Stats(ctx context.Context, cmd *Command, senderID string) (string, error) {
	stats, err := h.XP.GetStats(ctx)
	if err != nil {
		return "Failed to fetch statistics.", err
	}
	top := "n/a"
	if stats.TopUser != nil {
		top = fmt.Sprintf("%s (Level %d)", stats.TopUser.Username, stats.TopUser.Level)
	}
	return fmt.Sprintf("Bot statistics:\n  XP users: %d\n  Top user: %s\n  Active in last 24h: %d\n  Uptime: %s",
		stats.TotalUsers, top, stats.ActiveLastDay, time.Since(h.StartTime).Round(time.Second)), nil
}

// ShowConfig dumps the current operating mode.
func (h *Handlers) ShowConfig(ctx context.Context, cmd *Command, senderID string) (string, error) {
	st := h.Mode.Snapshot()
	return fmt.Sprintf("Current configuration:\n"+
		"  enabled: %t\n  silenced: %t\n  maintenance: %t\n  allowAll: %t\n  xpEnabled: %t\n"+
		"  tokenLimit: %d\n  memoryLimit: %d\n  prefix: %s\n  allowedChannels: %d",
		st.Enabled, st.Silenced, st.Maintenance, st.AllowAll, st.XPEnabled,
		st.TokenLimit, st.MemoryLimit, st.Prefix, len(st.AllowedChannels)), nil
}

func onOff(v bool) string {
	if v {
		return "ON"
	}
	return "OFF"
}
