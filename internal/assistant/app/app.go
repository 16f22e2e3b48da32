// Package app wires the assistant together: storage, operating mode, usage
// ledger, conversation memory, XP, moderation, the command router, the
// response orchestrator, and the Matrix transport.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Ayomide650/DMS-Assistant/common/trace"
	"github.com/Ayomide650/DMS-Assistant/internal/assistant/commands"
	"github.com/Ayomide650/DMS-Assistant/internal/assistant/config"
	"github.com/Ayomide650/DMS-Assistant/internal/assistant/ledger"
	"github.com/Ayomide650/DMS-Assistant/internal/assistant/llm"
	"github.com/Ayomide650/DMS-Assistant/internal/assistant/matrix"
	"github.com/Ayomide650/DMS-Assistant/internal/assistant/memory"
	"github.com/Ayomide650/DMS-Assistant/internal/assistant/mod"
	"github.com/Ayomide650/DMS-Assistant/internal/assistant/mode"
	"github.com/Ayomide650/DMS-Assistant/internal/assistant/persona"
	"github.com/Ayomide650/DMS-Assistant/internal/assistant/respond"
	"github.com/Ayomide650/DMS-Assistant/internal/assistant/store"
	"github.com/Ayomide650/DMS-Assistant/internal/assistant/xp"
)

// Config holds application configuration.
type Config struct {
	DatabasePath string
	Matrix       matrix.Config
	LLM          llm.Config

	// PersonaPath points to an optional persona YAML file. When empty the
	// built-in persona is used.
	PersonaPath string

	// Defaults seeds the runtime operating mode from the environment.
	Defaults mode.Defaults

	// BotName is the display name used in prompts and replies. When empty
	// it is resolved from the Matrix profile at startup.
	BotName string

	// MemoryEnabled gates the conversation-memory feature.
	MemoryEnabled bool

	// HTTPAddr is the TCP address for the optional health/status HTTP server
	// (e.g. ":8080"). When empty the server is disabled.
	HTTPAddr string

	// KeepAliveURL, when non-empty, is fetched periodically so free-tier
	// hosts do not idle the process out.
	KeepAliveURL string

	// KeepAliveInterval overrides the keep-alive cadence. Defaults to
	// DefaultKeepAliveInterval when zero.
	KeepAliveInterval time.Duration
}

// App is the assembled assistant.
type App struct {
	config       *Config
	store        *store.Store
	mode         *mode.Mode
	ledger       *ledger.Ledger
	memory       *memory.Memory
	xp           *xp.Tracker
	mod          *mod.Store
	router       *commands.Router
	responder    *respond.Responder
	matrix       *matrix.Client
	healthServer *HealthServer
	keepAlive    *KeepAlive
	botName      string
	startTime    time.Time
}

// New creates the application. Nothing talks to the network yet; Run does.
func New(cfg *Config) (*App, error) {
	slog.Info("opening database", "path", cfg.DatabasePath)
	st, err := store.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("app: open database: %w", err)
	}

	// Inject the DB so the client can persist the sync token across restarts.
	matrixCfg := cfg.Matrix
	matrixCfg.DB = st.DB()
	slog.Info("connecting to Matrix", "homeserver", matrixCfg.Homeserver)
	matrixClient, err := matrix.New(&matrixCfg)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("app: create Matrix client: %w", err)
	}

	configStore := config.New(st)
	operatingMode := mode.New(configStore, cfg.Defaults)

	usageLedger := ledger.New(st)
	convMemory := memory.New(st)
	xpTracker := xp.New(st)
	modStore := mod.New(st)

	p := persona.Default()
	if cfg.PersonaPath != "" {
		p, err = persona.Load(cfg.PersonaPath)
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("app: load persona: %w", err)
		}
		slog.Info("persona loaded", "path", cfg.PersonaPath)
	}

	llmCfg := cfg.LLM
	if llmCfg.BotName == "" {
		llmCfg.BotName = cfg.BotName
	}
	provider := llm.New(llmCfg)

	responder := respond.New(respond.Config{
		Mode:          operatingMode,
		Ledger:        usageLedger,
		Memory:        convMemory,
		Provider:      provider,
		Persona:       p,
		BotUserID:     cfg.Matrix.UserID,
		BotName:       cfg.BotName,
		MemoryEnabled: cfg.MemoryEnabled,
	})

	startTime := time.Now()

	router := commands.NewRouter()
	handlers := &commands.Handlers{
		Mode:      operatingMode,
		Ledger:    usageLedger,
		Memory:    convMemory,
		XP:        xpTracker,
		Mod:       modStore,
		StartTime: startTime,
	}
	handlers.RegisterAll(router)

	var healthServer *HealthServer
	if cfg.HTTPAddr != "" {
		healthServer = NewHealthServer(cfg.HTTPAddr, xpTracker)
		slog.Info("health server configured", "addr", cfg.HTTPAddr)
	}

	var keepAlive *KeepAlive
	if cfg.KeepAliveURL != "" {
		keepAlive = NewKeepAlive(cfg.KeepAliveURL, cfg.KeepAliveInterval)
		slog.Info("keep-alive pinger configured", "url", cfg.KeepAliveURL)
	}

	return &App{
		config:       cfg,
		store:        st,
		mode:         operatingMode,
		ledger:       usageLedger,
		memory:       convMemory,
		xp:           xpTracker,
		mod:          modStore,
		router:       router,
		responder:    responder,
		matrix:       matrixClient,
		healthServer: healthServer,
		keepAlive:    keepAlive,
		botName:      cfg.BotName,
		startTime:    startTime,
	}, nil
}

// Run starts the assistant and blocks until an interrupt signal arrives.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if a.healthServer != nil {
		if err := a.healthServer.Start(ctx); err != nil {
			slog.Warn("health server failed to start; continuing without it", "err", err)
		}
	}

	slog.Info("starting Matrix sync")
	if err := a.matrix.Start(ctx, a.handleMessage); err != nil {
		return fmt.Errorf("app: start Matrix client: %w", err)
	}

	// Persisted admin settings override the environment defaults once the
	// connection is up; until then the defaults apply.
	a.mode.Reload(ctx)

	if a.botName == "" {
		a.botName = a.matrix.DisplayName(ctx)
		slog.Info("bot name resolved from Matrix profile", "name", a.botName)
	}

	for _, channelID := range a.mode.Snapshot().AllowedChannels {
		if err := a.matrix.JoinRoom(ctx, channelID); err != nil {
			slog.Warn("could not join allowed channel", "channel", channelID, "err", err)
		}
	}

	if a.keepAlive != nil {
		go a.keepAlive.Run(ctx)
	}

	slog.Info("assistant is running; press Ctrl+C to stop",
		"bot", a.botName, "prefix", a.mode.Prefix())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	slog.Info("shutting down")
	return nil
}

// Stop tears the assistant down.
func (a *App) Stop() {
	slog.Info("stopping Matrix client")
	a.matrix.Stop()

	if a.healthServer != nil {
		slog.Info("stopping health server")
		a.healthServer.Stop()
	}

	slog.Info("closing database")
	a.store.Close()
}

// handleMessage is the single entry point for inbound messages. Order
// matters: AFK return first, then XP, then commands, then the AI responder.
func (a *App) handleMessage(ctx context.Context, msg *matrix.IncomingMessage) {
	ctx = trace.WithTraceID(ctx, trace.GenerateID())

	a.clearAFKOnReturn(ctx, msg)
	a.announceAFKMentions(ctx, msg)
	a.awardXP(ctx, msg)

	// Prefix commands take precedence over the AI responder so "!help" never
	// burns completion tokens.
	reply, err := a.router.Route(ctx, a.mode.Prefix(), msg.Body, msg.SenderID)
	if err == nil || !errors.Is(err, commands.ErrNotACommand) {
		if err != nil {
			slog.Warn("command failed", "trace", trace.FromContext(ctx),
				"sender", msg.SenderID, "err", err)
		}
		if reply != "" {
			a.send(ctx, msg.RoomID, reply)
		}
		return
	}

	// The completion call can take seconds; the typing indicator covers the
	// wait. Errors here are cosmetic.
	if msg.IsDirect || msg.MentionsBot {
		if err := a.matrix.SetTyping(ctx, msg.RoomID, true, 30*time.Second); err != nil {
			slog.Debug("typing indicator", "err", err)
		}
	}

	chunks := a.responder.Respond(ctx, respond.Message{
		SenderID:    msg.SenderID,
		ChannelID:   msg.RoomID,
		Body:        msg.Body,
		IsDirect:    msg.IsDirect,
		MentionsBot: msg.MentionsBot,
	})

	if msg.IsDirect || msg.MentionsBot {
		if err := a.matrix.SetTyping(ctx, msg.RoomID, false, 0); err != nil {
			slog.Debug("typing indicator", "err", err)
		}
	}

	for _, chunk := range chunks {
		a.send(ctx, msg.RoomID, chunk)
	}
}

// clearAFKOnReturn removes the sender's AFK flag and announces their return.
func (a *App) clearAFKOnReturn(ctx context.Context, msg *matrix.IncomingMessage) {
	// A fresh "!afk ..." must not immediately clear itself.
	if strings.HasPrefix(strings.TrimSpace(msg.Body), a.mode.Prefix()+"afk") {
		return
	}

	status, err := a.mod.GetAFK(ctx, msg.SenderID)
	if err != nil || status == nil {
		return
	}
	if err := a.mod.ClearAFK(ctx, msg.SenderID); err != nil {
		slog.Warn("clear afk", "sender", msg.SenderID, "err", err)
		return
	}
	a.send(ctx, msg.RoomID, fmt.Sprintf("Welcome back, %s! AFK status removed.",
		localpart(msg.SenderID)))
}

// announceAFKMentions tells the room when someone mentions a user who is
// currently away.
func (a *App) announceAFKMentions(ctx context.Context, msg *matrix.IncomingMessage) {
	for _, notice := range afkMentionNotices(ctx, a.mod, msg.MentionedUserIDs) {
		a.send(ctx, msg.RoomID, notice)
	}
}

// afkMentionNotices builds one notice per mentioned user who is away.
// Lookup failures are skipped; a broken store must not block the message.
func afkMentionNotices(ctx context.Context, m *mod.Store, mentioned []string) []string {
	var notices []string
	for _, userID := range mentioned {
		status, err := m.GetAFK(ctx, userID)
		if err != nil || status == nil {
			continue
		}
		notices = append(notices, fmt.Sprintf("%s is AFK: %s", localpart(userID), status.Reason))
	}
	return notices
}

// xpEligible reports whether a message earns XP: channel traffic only, with
// XP on, outside maintenance, in an allowed channel or with allow-all active.
func xpEligible(st mode.State, isDirect bool, roomID string) bool {
	if isDirect || !st.XPEnabled || st.Maintenance {
		return false
	}
	return st.AllowAll || st.ChannelAllowed(roomID)
}

// awardXP grants message XP for channel traffic and announces level-ups.
func (a *App) awardXP(ctx context.Context, msg *matrix.IncomingMessage) {
	st := a.mode.Snapshot()
	if !xpEligible(st, msg.IsDirect, msg.RoomID) {
		return
	}

	u, levelledUp, err := a.xp.Award(ctx, msg.SenderID, localpart(msg.SenderID))
	if err != nil {
		slog.Warn("xp award", "sender", msg.SenderID, "err", err)
		return
	}
	if levelledUp {
		a.send(ctx, msg.RoomID, fmt.Sprintf("%s reached Level %d (%s)! 🎉",
			u.Username, u.Level, u.Rank))
	}
}

func (a *App) send(ctx context.Context, roomID, text string) {
	if err := a.matrix.SendText(ctx, roomID, text); err != nil {
		slog.Error("send failed", "trace", trace.FromContext(ctx),
			"room", roomID, "err", err)
	}
}

// localpart extracts a human-friendly name from a Matrix user ID
// ("@dora:example.com" → "dora").
func localpart(userID string) string {
	name := strings.TrimPrefix(userID, "@")
	if idx := strings.IndexByte(name, ':'); idx > 0 {
		name = name[:idx]
	}
	return name
}
