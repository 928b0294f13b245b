package queue

import (
	"sync"
	"time"
)

// RateLimits are the per-account report budgets.
type RateLimits struct {
	PerHour int
	PerDay  int
}

// DefaultRateLimits mirrors the service defaults: 10 reports per hour, 50
// per day, per account.
var DefaultRateLimits = RateLimits{PerHour: 10, PerDay: 50}

// RateWindow tracks per-account dispatch timestamps and answers sliding
// hourly/daily budget questions. The invariant: at the instant an action is
// admitted, neither window count exceeds its cap.
type RateWindow struct {
	limits RateLimits

	lk      sync.Mutex
	history map[string][]time.Time
	now     func() time.Time
}

func NewRateWindow(limits RateLimits) *RateWindow {
	if limits.PerHour <= 0 {
		limits.PerHour = DefaultRateLimits.PerHour
	}
	if limits.PerDay <= 0 {
		limits.PerDay = DefaultRateLimits.PerDay
	}
	return &RateWindow{
		limits:  limits,
		history: make(map[string][]time.Time),
		now:     time.Now,
	}
}

// Counts returns the account's dispatches within the last hour and the
// last 24 hours, pruning history older than a day.
func (w *RateWindow) Counts(accountID string) (hourly, daily int) {
	w.lk.Lock()
	defer w.lk.Unlock()
	return w.countsLocked(accountID)
}

func (w *RateWindow) countsLocked(accountID string) (hourly, daily int) {
	now := w.now()
	hourAgo := now.Add(-time.Hour)
	dayAgo := now.Add(-24 * time.Hour)

	kept := w.history[accountID][:0]
	for _, ts := range w.history[accountID] {
		if ts.After(dayAgo) {
			kept = append(kept, ts)
			daily++
			if ts.After(hourAgo) {
				hourly++
			}
		}
	}
	if len(kept) == 0 {
		delete(w.history, accountID)
	} else {
		w.history[accountID] = kept
	}
	return hourly, daily
}

// Allow reports whether the account has headroom in both windows.
func (w *RateWindow) Allow(accountID string) bool {
	w.lk.Lock()
	defer w.lk.Unlock()
	hourly, daily := w.countsLocked(accountID)
	return hourly < w.limits.PerHour && daily < w.limits.PerDay
}

// Record appends a dispatch timestamp for the account.
func (w *RateWindow) Record(accountID string) {
	w.lk.Lock()
	defer w.lk.Unlock()
	w.history[accountID] = append(w.history[accountID], w.now())
}

// Limits returns the configured caps.
func (w *RateWindow) Limits() RateLimits {
	return w.limits
}
