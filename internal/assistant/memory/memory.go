// Package memory implements the bounded per-user conversation history used
// to give completions short-term context.
//
// Exchanges are stored one row each, oldest first. After every append the
// history is trimmed so that only the newest memoryLimit exchanges survive
// (FIFO eviction). Reads fail open: a store error yields an empty history,
// never an error to the caller.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Ayomide650/DMS-Assistant/internal/assistant/store"
)

// Exchange is one stored (user message, bot response) pair.
type Exchange struct {
	UserMessage string
	BotResponse string
	CreatedAt   time.Time
}

// Memory is the SQLite-backed conversation history. Safe for concurrent use.
type Memory struct {
	db *store.Store
}

// New creates a Memory backed by the application database.
func New(db *store.Store) *Memory {
	return &Memory{db: db}
}

// GetHistory returns userID's stored exchanges in chronological order
// (oldest first). Returns an empty slice when no history exists or when the
// store read fails (logged, fail-open, no side effects).
func (m *Memory) GetHistory(ctx context.Context, userID string) []Exchange {
	rows, err := m.db.DB().QueryContext(ctx, `
		SELECT user_message, bot_response, created_at
		FROM chat_memory
		WHERE user_id = ?
		ORDER BY id ASC
	`, userID)
	if err != nil {
		slog.Warn("memory: read history failed, assuming empty", "user", userID, "err", err)
		return nil
	}
	defer rows.Close()

	var history []Exchange
	for rows.Next() {
		var ex Exchange
		if err := rows.Scan(&ex.UserMessage, &ex.BotResponse, &ex.CreatedAt); err != nil {
			slog.Warn("memory: scan history row failed", "user", userID, "err", err)
			return nil
		}
		history = append(history, ex)
	}
	if err := rows.Err(); err != nil {
		slog.Warn("memory: iterate history failed", "user", userID, "err", err)
		return nil
	}
	return history
}

// AppendExchange stores a new exchange for userID and evicts the oldest rows
// so that at most limit exchanges remain. The insert may transiently exceed
// the cap; the trim in the same call restores the invariant. A limit <= 0
// keeps nothing (the append still happens, then everything is trimmed, so
// callers should gate the memory feature before calling).
func (m *Memory) AppendExchange(ctx context.Context, userID, userMessage, botResponse string, limit int) error {
	_, err := m.db.DB().ExecContext(ctx, `
		INSERT INTO chat_memory (user_id, user_message, bot_response, created_at)
		VALUES (?, ?, ?, ?)
	`, userID, userMessage, botResponse, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("memory: append exchange for %q: %w", userID, err)
	}

	_, err = m.db.DB().ExecContext(ctx, `
		DELETE FROM chat_memory
		WHERE user_id = ?
		  AND id NOT IN (
			SELECT id FROM chat_memory
			WHERE user_id = ?
			ORDER BY id DESC
			LIMIT ?
		  )
	`, userID, userID, limit)
	if err != nil {
		return fmt.Errorf("memory: trim history for %q: %w", userID, err)
	}
	return nil
}

// ClearHistory deletes userID's entire history. Unlike reads this surfaces
// the store error; the admin command decides what to show.
func (m *Memory) ClearHistory(ctx context.Context, userID string) error {
	if _, err := m.db.DB().ExecContext(ctx,
		`DELETE FROM chat_memory WHERE user_id = ?`, userID,
	); err != nil {
		return fmt.Errorf("memory: clear history for %q: %w", userID, err)
	}
	return nil
}

// FormatForPrompt renders exchanges into the plain-text transcript block the
// prompt assembler embeds before the current message. An empty history
// renders to an empty string with no transcript header.
func FormatForPrompt(history []Exchange) string {
	if len(history) == 0 {
		return ""
	}
	var b strings.Builder
	for _, ex := range history {
		b.WriteString("User: ")
		b.WriteString(ex.UserMessage)
		b.WriteString("\nAssistant: ")
		b.WriteString(ex.BotResponse)
		b.WriteString("\n")
	}
	return b.String()
}
