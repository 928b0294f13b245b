package monitor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/RussellLuo/slidingwindow"

	"github.com/termwatch/termwatch/match"
	"github.com/termwatch/termwatch/session"
)

// ingestGuards caps the push-event rate accepted per account, protecting
// the matching path from a flooding upstream.
type ingestGuards struct {
	limit int64

	lk       sync.Mutex
	limiters map[string]*slidingwindow.Limiter
}

func windowFunc() (slidingwindow.Window, slidingwindow.StopFunc) {
	return slidingwindow.NewLocalWindow()
}

func (g *ingestGuards) init(limit int64) {
	g.limit = limit
	g.limiters = make(map[string]*slidingwindow.Limiter)
}

func (g *ingestGuards) allow(accountID string) bool {
	g.lk.Lock()
	lim, ok := g.limiters[accountID]
	if !ok {
		lim, _ = slidingwindow.NewLimiter(time.Second, g.limit, windowFunc)
		g.limiters[accountID] = lim
	}
	g.lk.Unlock()
	return lim.Allow()
}

// startIngest launches the push read loop for one session. Exactly one
// handler is attached per session; the loop owns resubscription after a
// successful reconnect and exits for good once the supervisor gives up.
func (m *Monitor) startIngest(ctx context.Context, sess *session.Session) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.runIngest(ctx, sess)
	}()
}

func (m *Monitor) runIngest(ctx context.Context, sess *session.Session) {
	logger := m.logger.With("account", sess.AccountID)

	handler := func(msg match.Message) {
		if !m.guards.allow(sess.AccountID) {
			ingestThrottled.WithLabelValues(sess.AccountID).Inc()
			return
		}
		m.processMessage(ctx, sess.AccountID, "push", msg)
	}

	for {
		err := sess.Client().Subscribe(ctx, handler)
		if err == nil || errors.Is(err, context.Canceled) || ctx.Err() != nil {
			return
		}

		streamErrors.Inc()
		logger.Warn("event stream broken", "err", err)
		m.pool.MarkDisconnected(sess.AccountID)
		m.setAccountStatus(sess.AccountID, session.StatusError)
		m.notifyf(ctx, "🔌 Connection lost for account %s, reconnecting", sess.AccountID)

		if !m.reconnect.supervise(ctx, sess.AccountID) {
			return
		}
		m.setAccountStatus(sess.AccountID, session.StatusConnected)
	}
}

func (m *Monitor) setAccountStatus(accountID string, cs session.ConnectStatus) {
	m.lk.Lock()
	m.statuses[accountID] = cs
	connected := 0
	for _, s := range m.statuses {
		if s == session.StatusConnected {
			connected++
		}
	}
	m.lk.Unlock()
	connectedSessions.Set(float64(connected))
}
