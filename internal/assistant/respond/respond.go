// Package respond implements the response orchestrator: the sequential gate
// pipeline that decides, per incoming message, whether to call the
// completion API, and that keeps the ledger and memory side effects strictly
// ordered behind a successful completion.
package respond

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/Ayomide650/DMS-Assistant/internal/assistant/ledger"
	"github.com/Ayomide650/DMS-Assistant/internal/assistant/llm"
	"github.com/Ayomide650/DMS-Assistant/internal/assistant/memory"
	"github.com/Ayomide650/DMS-Assistant/internal/assistant/mode"
	"github.com/Ayomide650/DMS-Assistant/internal/assistant/persona"
)

// Message is one inbound chat message, already normalized by the transport.
type Message struct {
	SenderID    string
	ChannelID   string
	Body        string
	IsDirect    bool
	MentionsBot bool
}

// Config assembles the orchestrator's collaborators.
type Config struct {
	Mode     *mode.Mode
	Ledger   *ledger.Ledger
	Memory   *memory.Memory
	Provider llm.Provider
	Persona  *persona.Persona

	// BotUserID and BotName identify the bot for mention stripping and
	// prompt framing.
	BotUserID string
	BotName   string

	// MemoryEnabled gates the conversation-memory feature as a whole.
	MemoryEnabled bool

	// ChunkLimit is the transport's per-send size limit in runes.
	// Defaults to DefaultChunkLimit when zero.
	ChunkLimit int
}

// Responder runs the gate pipeline. Safe for concurrent use.
type Responder struct {
	cfg Config
}

// New creates a Responder.
func New(cfg Config) *Responder {
	if cfg.ChunkLimit <= 0 {
		cfg.ChunkLimit = DefaultChunkLimit
	}
	if cfg.BotName == "" {
		cfg.BotName = "Assistant"
	}
	if cfg.Persona == nil {
		cfg.Persona = persona.Default()
	}
	return &Responder{cfg: cfg}
}

// Respond runs the inbound message through the gates and returns the
// outgoing chunks in send order. A nil slice means stay silent. Every gate
// failure short-circuits with no further side effects; the ledger is charged
// before memory is written, and both only after a successful completion.
func (r *Responder) Respond(ctx context.Context, msg Message) []string {
	st := r.cfg.Mode.Snapshot()
	exempt := r.cfg.Mode.IsExempt(msg.SenderID)

	// Gate 1: disabled or under maintenance — silent for non-exempt senders.
	if (!st.Enabled || st.Maintenance) && !exempt {
		return nil
	}

	// Gate 2: silenced — a mention gets the canned notice, everything else
	// is ignored.
	if st.Silenced && !exempt {
		if msg.MentionsBot {
			return []string{r.cfg.Persona.SilencedNotice}
		}
		return nil
	}

	// Gate 3: eligibility. DMs and mentions always qualify; channel traffic
	// qualifies only in an allowed channel with allow-all on (or for exempt
	// senders).
	eligible := msg.IsDirect || msg.MentionsBot ||
		(st.ChannelAllowed(msg.ChannelID) && (st.AllowAll || exempt))
	if !eligible {
		return nil
	}

	// Gate 4: daily budget. Exempt identities are never checked.
	if !exempt && r.cfg.Ledger.IsOverBudget(ctx, msg.SenderID, st.TokenLimit) {
		return []string{r.cfg.Persona.BudgetNotice}
	}

	// Gate 5: strip mention syntax; nothing left means nothing to answer.
	userPrompt := r.stripMention(msg.Body)
	if userPrompt == "" {
		return nil
	}
	// Very short channel chatter is not worth a completion call unless the
	// bot was addressed directly.
	if len(userPrompt) < 3 && !msg.IsDirect && !msg.MentionsBot {
		return nil
	}

	// Gate 6: deflections answer restricted topics at zero token cost, with
	// no memory write.
	if reply, ok := r.cfg.Persona.MatchDeflection(userPrompt); ok {
		return Split(reply, r.cfg.ChunkLimit)
	}

	// Assemble the prompt: persona preamble, transcript, current message.
	transcript := ""
	if r.cfg.MemoryEnabled {
		transcript = memory.FormatForPrompt(r.cfg.Memory.GetHistory(ctx, msg.SenderID))
	}
	prompt := r.cfg.Persona.AssemblePrompt(r.cfg.BotName, transcript, userPrompt)

	comp, err := r.cfg.Provider.Complete(ctx, llm.CompletionRequest{Prompt: prompt})
	if err != nil {
		// Terminal for this message: no charge, no memory write, no retry.
		slog.Warn("completion failed", "sender", msg.SenderID, "err", err)
		if errors.Is(err, llm.ErrRateLimit) {
			return []string{r.cfg.Persona.RateLimitNotice}
		}
		return []string{r.cfg.Persona.ErrorNotice}
	}

	if !exempt {
		// Charge at least one token per completion even when the upstream
		// omits usage accounting.
		tokens := comp.TokensUsed
		if tokens <= 0 {
			tokens = 1
		}
		r.cfg.Ledger.RecordUsage(ctx, msg.SenderID, tokens)
	}

	if r.cfg.MemoryEnabled {
		if err := r.cfg.Memory.AppendExchange(ctx, msg.SenderID, userPrompt, comp.Text, st.MemoryLimit); err != nil {
			slog.Warn("memory write failed", "sender", msg.SenderID, "err", err)
		}
	}

	return Split(comp.Text, r.cfg.ChunkLimit)
}

// stripMention removes the transport's mention syntax from the raw body:
// the bot's user ID (with or without a leading @-pill) and a leading
// "BotName:" address.
func (r *Responder) stripMention(body string) string {
	text := body
	if r.cfg.BotUserID != "" {
		text = strings.ReplaceAll(text, r.cfg.BotUserID, "")
	}
	trimmed := strings.TrimSpace(text)
	for _, sep := range []string{":", ","} {
		if rest, ok := strings.CutPrefix(trimmed, r.cfg.BotName+sep); ok {
			trimmed = strings.TrimSpace(rest)
			break
		}
	}
	return strings.TrimSpace(trimmed)
}
