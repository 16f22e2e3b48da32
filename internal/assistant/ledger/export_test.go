package ledger

import "time"

// SetNowFunc overrides the ledger clock. Test-only.
func (l *Ledger) SetNowFunc(f func() time.Time) {
	l.now = f
}
