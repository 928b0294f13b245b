package monitor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/termwatch/termwatch/session"
)

// reconnectRegistry tracks per-account recovery attempts. Once an account
// exceeds the attempt budget it is given up for the rest of the run; only
// an operator restart clears that state.
type reconnectRegistry struct {
	m *Monitor

	lk      sync.Mutex
	givenUp map[string]bool

	sleep func(ctx context.Context, d time.Duration) error
}

func (r *reconnectRegistry) init(m *Monitor) {
	r.m = m
	r.givenUp = make(map[string]bool)
	r.sleep = func(ctx context.Context, d time.Duration) error {
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			return nil
		}
	}
}

func (r *reconnectRegistry) reset() {
	r.lk.Lock()
	r.givenUp = make(map[string]bool)
	r.lk.Unlock()
}

func (r *reconnectRegistry) isGivenUp(accountID string) bool {
	r.lk.Lock()
	defer r.lk.Unlock()
	return r.givenUp[accountID]
}

func (r *reconnectRegistry) markGivenUp(accountID string) {
	r.lk.Lock()
	r.givenUp[accountID] = true
	r.lk.Unlock()
}

// supervise runs the recovery loop for one broken session: up to
// ReconnectMaxAttempts tries with exponentially growing delay
// (base, 2·base, 4·base, ...). Returns true once the session is healthy
// again; false when given up, the account needs re-authorization, or the
// run is shutting down.
func (r *reconnectRegistry) supervise(ctx context.Context, accountID string) bool {
	logger := r.m.logger.With("account", accountID)

	if r.isGivenUp(accountID) {
		return false
	}

	max := r.m.cfg.ReconnectMaxAttempts
	for attempt := 1; attempt <= max; attempt++ {
		delay := r.m.cfg.ReconnectBaseDelay << (attempt - 1)
		logger.Info("scheduling reconnect attempt", "attempt", attempt, "max", max, "delay", delay)
		if err := r.sleep(ctx, delay); err != nil {
			return false
		}

		reconnectAttempts.Inc()
		err := r.m.pool.Reconnect(ctx, accountID)
		if err == nil {
			logger.Info("reconnected", "attempt", attempt)
			r.m.notifyf(ctx, "✅ Account %s reconnected (attempt %d)", accountID, attempt)
			return true
		}
		if errors.Is(err, session.ErrAuthRequired) {
			logger.Warn("account requires re-authorization, giving up reconnects")
			r.markGivenUp(accountID)
			reconnectGivenUp.Inc()
			r.m.notifyf(ctx, "🔐 Account %s requires re-authorization; reconnects stopped", accountID)
			return false
		}
		if errors.Is(err, session.ErrNoSession) || ctx.Err() != nil {
			return false
		}
		logger.Warn("reconnect attempt failed", "attempt", attempt, "err", err)
	}

	r.markGivenUp(accountID)
	reconnectGivenUp.Inc()
	logger.Error("reconnect attempts exhausted, giving up", "attempts", max)
	r.m.notifyf(ctx, "❌ Account %s: %d reconnect attempts failed; restart monitoring to retry", accountID, max)
	return false
}
