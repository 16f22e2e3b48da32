// Package ledger tracks per-user daily completion-token consumption.
//
// Each user has one row keyed by user ID holding the tokens consumed today
// and the UTC calendar date of the last reset. The counter resets lazily:
// the first read on a new date zeroes it, and it is never reset mid-day.
//
// Read failures degrade to zero usage so that store unavailability never
// blocks a user from talking to the bot; write failures are logged and the
// update is lost. Budget enforcement against the configured limit is the
// caller's job (exempt senders skip the check entirely and are never
// charged).
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Ayomide650/DMS-Assistant/internal/assistant/store"
)

// Ledger is the SQLite-backed daily token ledger. Safe for concurrent use.
type Ledger struct {
	db  *store.Store
	now func() time.Time // injectable clock for tests
}

// New creates a Ledger backed by the application database.
func New(db *store.Store) *Ledger {
	return &Ledger{db: db, now: time.Now}
}

// today returns the current UTC calendar date as YYYY-MM-DD. Reset
// comparisons use date components, not elapsed duration.
func (l *Ledger) today() string {
	return l.now().UTC().Format(time.DateOnly)
}

// CheckUsage returns the tokens userID has consumed today, creating a zero
// row on first contact and resetting the counter when the stored date is not
// today. On store errors it returns 0 (fail-open) after logging.
func (l *Ledger) CheckUsage(ctx context.Context, userID string) int {
	today := l.today()

	var used int
	var lastReset string
	err := l.db.DB().QueryRowContext(ctx,
		`SELECT tokens_used_today, last_reset FROM usage_ledger WHERE user_id = ?`,
		userID,
	).Scan(&used, &lastReset)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := l.db.DB().ExecContext(ctx,
			`INSERT INTO usage_ledger (user_id, tokens_used_today, last_reset) VALUES (?, 0, ?)`,
			userID, today,
		); err != nil {
			slog.Warn("ledger: create usage row failed", "user", userID, "err", err)
		}
		return 0
	case err != nil:
		slog.Warn("ledger: read usage failed, assuming zero", "user", userID, "err", err)
		return 0
	}

	if lastReset != today {
		if _, err := l.db.DB().ExecContext(ctx,
			`UPDATE usage_ledger SET tokens_used_today = 0, last_reset = ? WHERE user_id = ?`,
			today, userID,
		); err != nil {
			slog.Warn("ledger: daily reset failed", "user", userID, "err", err)
		}
		return 0
	}
	return used
}

// RecordUsage adds tokens to userID's running daily total and returns the new
// total. The increment happens inside a single upsert guarded by the reset
// date, so two interleaved messages from the same user cannot lose an update.
// tokens must be non-negative; negative values are clamped to zero.
func (l *Ledger) RecordUsage(ctx context.Context, userID string, tokens int) int {
	if tokens < 0 {
		tokens = 0
	}
	today := l.today()

	_, err := l.db.DB().ExecContext(ctx, `
		INSERT INTO usage_ledger (user_id, tokens_used_today, last_reset)
		VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			tokens_used_today = CASE
				WHEN usage_ledger.last_reset = excluded.last_reset
					THEN usage_ledger.tokens_used_today + excluded.tokens_used_today
				ELSE excluded.tokens_used_today
			END,
			last_reset = excluded.last_reset
	`, userID, tokens, today)
	if err != nil {
		slog.Warn("ledger: record usage failed, update lost", "user", userID, "tokens", tokens, "err", err)
	}

	return l.CheckUsage(ctx, userID)
}

// IsOverBudget reports whether userID has consumed at least limit tokens
// today. Exemption from the budget is evaluated by the caller, never here.
func (l *Ledger) IsOverBudget(ctx context.Context, userID string, limit int) bool {
	return l.CheckUsage(ctx, userID) >= limit
}

// Reset zeroes userID's counter and stamps today's date. Used by the
// admin reset-tokens command.
func (l *Ledger) Reset(ctx context.Context, userID string) error {
	_, err := l.db.DB().ExecContext(ctx, `
		INSERT INTO usage_ledger (user_id, tokens_used_today, last_reset)
		VALUES (?, 0, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			tokens_used_today = 0,
			last_reset = excluded.last_reset
	`, userID, l.today())
	if err != nil {
		return fmt.Errorf("ledger: reset %q: %w", userID, err)
	}
	return nil
}
