// Package mod provides the moderation utilities: user warnings and AFK
// status tracking.
package mod

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Ayomide650/DMS-Assistant/internal/assistant/store"
)

// Warning is one recorded moderation warning.
type Warning struct {
	ID        string
	UserID    string
	Reason    string
	AdminID   string
	CreatedAt time.Time
}

// AFKStatus marks a user as away with a reason.
type AFKStatus struct {
	UserID string
	Reason string
	SetAt  time.Time
}

// Store is the SQLite-backed moderation store. Safe for concurrent use.
type Store struct {
	db *store.Store
}

// New creates a moderation Store backed by the application database.
func New(db *store.Store) *Store {
	return &Store{db: db}
}

// AddWarning records a warning against userID and returns it.
func (s *Store) AddWarning(ctx context.Context, userID, reason, adminID string) (*Warning, error) {
	w := &Warning{
		ID:        uuid.New().String(),
		UserID:    userID,
		Reason:    reason,
		AdminID:   adminID,
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.db.DB().ExecContext(ctx, `
		INSERT INTO user_warnings (id, user_id, reason, admin_id, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, w.ID, w.UserID, w.Reason, w.AdminID, w.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("mod: add warning for %q: %w", userID, err)
	}
	return w, nil
}

// Warnings returns userID's warnings, newest first.
func (s *Store) Warnings(ctx context.Context, userID string) ([]*Warning, error) {
	rows, err := s.db.DB().QueryContext(ctx, `
		SELECT id, user_id, reason, admin_id, created_at
		FROM user_warnings WHERE user_id = ?
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("mod: list warnings for %q: %w", userID, err)
	}
	defer rows.Close()

	var warnings []*Warning
	for rows.Next() {
		w := &Warning{}
		if err := rows.Scan(&w.ID, &w.UserID, &w.Reason, &w.AdminID, &w.CreatedAt); err != nil {
			return nil, fmt.Errorf("mod: scan warning: %w", err)
		}
		warnings = append(warnings, w)
	}
	return warnings, rows.Err()
}

// SetAFK marks userID as away. Setting again overwrites the reason.
func (s *Store) SetAFK(ctx context.Context, userID, reason string) error {
	_, err := s.db.DB().ExecContext(ctx, `
		INSERT INTO afk_users (user_id, reason, set_at)
		VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			reason = excluded.reason,
			set_at = excluded.set_at
	`, userID, reason, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("mod: set afk for %q: %w", userID, err)
	}
	return nil
}

// GetAFK returns userID's AFK status, or (nil, nil) when the user is not
// away.
func (s *Store) GetAFK(ctx context.Context, userID string) (*AFKStatus, error) {
	a := &AFKStatus{}
	err := s.db.DB().QueryRowContext(ctx, `
		SELECT user_id, reason, set_at FROM afk_users WHERE user_id = ?
	`, userID).Scan(&a.UserID, &a.Reason, &a.SetAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("mod: get afk for %q: %w", userID, err)
	}
	return a, nil
}

// ClearAFK removes userID's AFK status. Clearing an absent status is a
// no-op.
func (s *Store) ClearAFK(ctx context.Context, userID string) error {
	_, err := s.db.DB().ExecContext(ctx, `DELETE FROM afk_users WHERE user_id = ?`, userID)
	if err != nil {
		return fmt.Errorf("mod: clear afk for %q: %w", userID, err)
	}
	return nil
}
