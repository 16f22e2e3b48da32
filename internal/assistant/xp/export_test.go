package xp

import "time"

// SetNowFunc overrides the tracker clock. Test-only.
func (t *Tracker) SetNowFunc(f func() time.Time) {
	t.now = f
}
