// Package xp implements the message-based engagement system: users earn XP
// per message (with a short cooldown), climb a quadratic level curve, and
// hold a named rank tier derived from their level.
package xp

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/Ayomide650/DMS-Assistant/internal/assistant/store"
)

const (
	// PerMessage is the XP awarded per qualifying message.
	PerMessage = 8

	// Cooldown is the minimum spacing between awards for one user.
	Cooldown = 5 * time.Second
)

// rankTier maps an inclusive level range to a rank name.
type rankTier struct {
	name     string
	min, max int
}

var ranks = []rankTier{
	{"Bronze", 1, 4}, {"Silver", 5, 9},
	{"Gold", 10, 14}, {"Platinum", 15, 19},
	{"Diamond", 20, 29}, {"Heroic", 30, 39},
	{"Elite Heroic", 40, 49}, {"Master", 50, 59},
	{"Elite Master", 60, 69}, {"Grandmaster 1", 70, 74},
	{"Grandmaster 2", 75, 79}, {"Grandmaster 3", 80, 84},
	{"Grandmaster 4", 85, 89}, {"Grandmaster 5", 90, 94},
	{"Grandmaster 6", 95, 100},
}

// User is one user's XP record.
type User struct {
	UserID        string
	Username      string
	XP            int
	Level         int
	Rank          string
	LastMessageAt sql.NullTime
}

// Stats summarizes the XP table for the admin stats command.
type Stats struct {
	TotalUsers    int
	TopUser       *User
	ActiveLastDay int
}

// Tracker is the SQLite-backed XP system. Safe for concurrent use.
type Tracker struct {
	db  *store.Store
	now func() time.Time
}

// New creates a Tracker backed by the application database.
func New(db *store.Store) *Tracker {
	return &Tracker{db: db, now: time.Now}
}

// NeededForLevel returns the XP needed to advance from level to level+1.
func NeededForLevel(level int) int {
	if level < 1 {
		return 0
	}
	l := float64(level)
	return int(math.Round(0.9344*l*l + 38.1312*l))
}

// TotalForLevel returns the cumulative XP required to reach level.
func TotalForLevel(level int) int {
	total := 0
	for i := 1; i < level; i++ {
		total += NeededForLevel(i)
	}
	return total
}

// RankForLevel returns the rank tier name for a level. Levels above the top
// tier keep the top rank.
func RankForLevel(level int) string {
	for _, r := range ranks {
		if level >= r.min && level <= r.max {
			return r.name
		}
	}
	return ranks[len(ranks)-1].name
}

// Get returns the user's record, creating a fresh level-1 row on first
// contact. The stored username is refreshed when it has changed.
func (t *Tracker) Get(ctx context.Context, userID, username string) (*User, error) {
	u := &User{}
	err := t.db.DB().QueryRowContext(ctx, `
		SELECT user_id, username, xp, level, rank, last_message_at
		FROM user_xp WHERE user_id = ?
	`, userID).Scan(&u.UserID, &u.Username, &u.XP, &u.Level, &u.Rank, &u.LastMessageAt)

	if errors.Is(err, sql.ErrNoRows) {
		now := t.now().UTC()
		u = &User{UserID: userID, Username: username, XP: 0, Level: 1, Rank: RankForLevel(1)}
		_, err := t.db.DB().ExecContext(ctx, `
			INSERT INTO user_xp (user_id, username, xp, level, rank, created_at, updated_at)
			VALUES (?, ?, 0, 1, ?, ?, ?)
		`, userID, username, u.Rank, now, now)
		if err != nil {
			return nil, fmt.Errorf("xp: create user %q: %w", userID, err)
		}
		return u, nil
	}
	if err != nil {
		return nil, fmt.Errorf("xp: get user %q: %w", userID, err)
	}

	if username != "" && u.Username != username {
		if _, err := t.db.DB().ExecContext(ctx, `
			UPDATE user_xp SET username = ?, updated_at = ? WHERE user_id = ?
		`, username, t.now().UTC(), userID); err == nil {
			u.Username = username
		}
	}
	return u, nil
}

// Award grants the per-message XP to userID, honouring the cooldown, and
// recomputes level and rank. Returns the updated record and whether the
// award levelled the user up. A cooldown hit returns the unchanged record.
func (t *Tracker) Award(ctx context.Context, userID, username string) (*User, bool, error) {
	u, err := t.Get(ctx, userID, username)
	if err != nil {
		return nil, false, err
	}

	now := t.now().UTC()
	if u.LastMessageAt.Valid && now.Sub(u.LastMessageAt.Time) < Cooldown {
		return u, false, nil
	}

	newXP := u.XP + PerMessage
	newLevel := u.Level
	for newXP >= TotalForLevel(newLevel+1) {
		newLevel++
	}
	levelledUp := newLevel > u.Level

	_, err = t.db.DB().ExecContext(ctx, `
		UPDATE user_xp
		SET xp = ?, level = ?, rank = ?, last_message_at = ?, updated_at = ?, username = ?
		WHERE user_id = ?
	`, newXP, newLevel, RankForLevel(newLevel), now, now, u.Username, userID)
	if err != nil {
		return nil, false, fmt.Errorf("xp: award to %q: %w", userID, err)
	}

	u.XP = newXP
	u.Level = newLevel
	u.Rank = RankForLevel(newLevel)
	u.LastMessageAt = sql.NullTime{Time: now, Valid: true}
	return u, levelledUp, nil
}

// Leaderboard returns the top users by XP, highest first.
func (t *Tracker) Leaderboard(ctx context.Context, limit int) ([]*User, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := t.db.DB().QueryContext(ctx, `
		SELECT user_id, username, xp, level, rank, last_message_at
		FROM user_xp ORDER BY xp DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("xp: leaderboard: %w", err)
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		u := &User{}
		if err := rows.Scan(&u.UserID, &u.Username, &u.XP, &u.Level, &u.Rank, &u.LastMessageAt); err != nil {
			return nil, fmt.Errorf("xp: leaderboard scan: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// GetStats aggregates the XP table for the stats command.
func (t *Tracker) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}
	err := t.db.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM user_xp`).Scan(&stats.TotalUsers)
	if err != nil {
		return nil, fmt.Errorf("xp: stats count: %w", err)
	}

	top, err := t.Leaderboard(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(top) > 0 {
		stats.TopUser = top[0]
	}

	cutoff := t.now().UTC().Add(-24 * time.Hour)
	err = t.db.DB().QueryRowContext(ctx,
		`SELECT COUNT(*) FROM user_xp WHERE last_message_at > ?`, cutoff,
	).Scan(&stats.ActiveLastDay)
	if err != nil {
		return nil, fmt.Errorf("xp: stats active: %w", err)
	}
	return stats, nil
}
