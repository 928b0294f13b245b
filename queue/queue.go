// Package queue dispatches corrective report actions for detected term
// hits: admission against per-account rate budgets at enqueue time, a
// single FIFO consumer re-validating budget and age at dispatch time, and a
// uniformly random pre-dispatch delay so reports never fire on a fixed
// cadence.
package queue

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/termwatch/termwatch/channel"
	"github.com/termwatch/termwatch/match"
	"github.com/termwatch/termwatch/notify"
)

// Dispatcher performs the actual report call against the owning account's
// session.
type Dispatcher func(ctx context.Context, accountID, chatID string, messageID int64) error

// PendingAction is a queued, not-yet-decided report task derived from one
// Hit. Created on admission; gone after dispatch, drop, expiry, or failure.
type PendingAction struct {
	ID         string
	AccountID  string
	Channel    channel.Ref
	ChatID     string
	MessageID  int64
	Term       string
	EnqueuedAt time.Time
}

// Outcome of an Enqueue call.
type Outcome string

const (
	OutcomeQueued    Outcome = "queued"
	OutcomeDropped   Outcome = "dropped"
	OutcomeDuplicate Outcome = "duplicate"
)

// Config holds the queue knobs; zero values fall back to the service
// defaults.
type Config struct {
	Tick     time.Duration // consumer interval, default 30s
	TTL      time.Duration // max pending age, default 1h
	DelayMin time.Duration // jitter lower bound, default 60s
	DelayMax time.Duration // jitter upper bound, default 180s
	Limits   RateLimits
}

func (c *Config) setDefaults() {
	if c.Tick <= 0 {
		c.Tick = 30 * time.Second
	}
	if c.TTL <= 0 {
		c.TTL = time.Hour
	}
	if c.DelayMin <= 0 {
		c.DelayMin = 60 * time.Second
	}
	if c.DelayMax < c.DelayMin {
		c.DelayMax = 3 * c.DelayMin
	}
}

// AccountBudget is one account's view in the queue status surface.
type AccountBudget struct {
	ReportsThisHour int  `json:"reportsThisHour"`
	ReportsToday    int  `json:"reportsToday"`
	CanSendMore     bool `json:"canSendMore"`
}

// Status is the queue's externally visible state.
type Status struct {
	QueueLength  int                      `json:"queueLength"`
	IsProcessing bool                     `json:"isProcessing"`
	Accounts     map[string]AccountBudget `json:"perAccount"`
}

// Queue is the admission-controlled report dispatcher. A single consumer
// goroutine owns dispatch; rate history is shared with Enqueue under the
// rate window's own lock, which preserves the never-exceed-cap invariant.
type Queue struct {
	logger   *slog.Logger
	cfg      Config
	rates    *RateWindow
	dispatch Dispatcher
	notifier notify.Notifier

	lk         sync.Mutex
	items      []*PendingAction
	processing bool

	// seen de-duplicates hits delivered by both the push and poll paths;
	// dispatched guards action IDs so no ID ever dispatches twice
	seen       *lru.Cache[string, struct{}]
	dispatched *lru.Cache[string, struct{}]

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
	randF func() float64

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(logger *slog.Logger, cfg Config, dispatch Dispatcher, notifier notify.Notifier) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.setDefaults()
	if notifier == nil {
		notifier = &notify.LogNotifier{Logger: logger}
	}
	seen, _ := lru.New[string, struct{}](8192)
	dispatched, _ := lru.New[string, struct{}](8192)
	return &Queue{
		logger:     logger.With("component", "action-queue"),
		cfg:        cfg,
		rates:      NewRateWindow(cfg.Limits),
		dispatch:   dispatch,
		notifier:   notifier,
		seen:       seen,
		dispatched: dispatched,
		now:        time.Now,
		sleep:      sleepCtx,
		randF:      rand.Float64,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func dedupeKey(accountID, chatID string, messageID int64) string {
	return fmt.Sprintf("%s/%s/%d", accountID, chatID, messageID)
}

// Enqueue admits a hit for the owning account. Admission fails when either
// rate window is at its cap; the action is then dropped immediately and the
// operator notified. Duplicate hits for the same (account, channel,
// message) are absorbed silently.
func (q *Queue) Enqueue(ctx context.Context, accountID string, hit match.Hit) Outcome {
	key := dedupeKey(accountID, hit.ChatID, hit.MessageID)
	if _, dup := q.seen.Get(key); dup {
		q.logger.Debug("duplicate hit absorbed", "account", accountID, "chat", hit.ChatID, "msg", hit.MessageID)
		return OutcomeDuplicate
	}
	q.seen.Add(key, struct{}{})

	if !q.rates.Allow(accountID) {
		actionsDropped.WithLabelValues("rate_limited").Inc()
		q.logger.Warn("report budget exceeded, dropping action", "account", accountID, "term", hit.Term, "channel", hit.Channel)
		q.notifyf(ctx, "⚠️ Report budget exceeded for account %s; report for %q in %s skipped", accountID, hit.Term, hit.Channel)
		return OutcomeDropped
	}

	act := &PendingAction{
		ID:         uuid.NewString(),
		AccountID:  accountID,
		Channel:    hit.Channel,
		ChatID:     hit.ChatID,
		MessageID:  hit.MessageID,
		Term:       hit.Term,
		EnqueuedAt: q.now(),
	}

	q.lk.Lock()
	q.items = append(q.items, act)
	depth := len(q.items)
	q.lk.Unlock()

	actionsEnqueued.Inc()
	queueDepth.Set(float64(depth))
	q.logger.Info("report action queued", "account", accountID, "term", hit.Term, "channel", hit.Channel, "position", depth)
	q.notifyf(ctx, "📋 Report queued for %q in %s (position %d)", hit.Term, hit.Channel, depth)
	return OutcomeQueued
}

// Start launches the single dispatch consumer. Stop must be called to shut
// it down.
func (q *Queue) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	q.cancel = cancel

	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		ticker := time.NewTicker(q.cfg.Tick)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				q.processOne(ctx)
			}
		}
	}()
}

// Stop cancels the consumer. Queued-but-undispatched actions are abandoned,
// not drained: some already-detected hits will not produce a report, which
// is why this logs a warning.
func (q *Queue) Stop() {
	if q.cancel != nil {
		q.cancel()
	}
	q.wg.Wait()

	q.lk.Lock()
	abandoned := len(q.items)
	q.items = nil
	q.lk.Unlock()

	queueDepth.Set(0)
	if abandoned > 0 {
		q.logger.Warn("abandoning queued report actions on shutdown", "count", abandoned)
	}
}

// processOne pops at most one action (FIFO), re-validates age and
// admission, sleeps the randomized delay, and dispatches. Exactly one
// action is ever in flight.
func (q *Queue) processOne(ctx context.Context) {
	q.lk.Lock()
	if q.processing || len(q.items) == 0 {
		q.lk.Unlock()
		return
	}
	act := q.items[0]
	q.items = q.items[1:]
	q.processing = true
	queueDepth.Set(float64(len(q.items)))
	q.lk.Unlock()

	defer func() {
		q.lk.Lock()
		q.processing = false
		q.lk.Unlock()
	}()

	logger := q.logger.With("action", act.ID, "account", act.AccountID, "term", act.Term, "channel", act.Channel)

	if age := q.now().Sub(act.EnqueuedAt); age > q.cfg.TTL {
		actionsDropped.WithLabelValues("expired").Inc()
		logger.Info("report action expired before dispatch", "age", age)
		return
	}

	// budget may have been consumed since enqueue
	if !q.rates.Allow(act.AccountID) {
		actionsDropped.WithLabelValues("rate_limited").Inc()
		logger.Warn("report budget exceeded at dispatch time, dropping action")
		q.notifyf(ctx, "⚠️ Report budget exceeded for account %s; queued report for %q in %s dropped", act.AccountID, act.Term, act.Channel)
		return
	}

	if _, done := q.dispatched.Get(act.ID); done {
		logger.Warn("action already dispatched, skipping")
		return
	}

	delay := q.jitter()
	logger.Info("delaying report dispatch", "delay", delay)
	if err := q.sleep(ctx, delay); err != nil {
		// shutdown while delaying: the action is abandoned
		return
	}

	// past the jitter the dispatch is committed: shutdown does not abort
	// the report call itself
	dctx := context.WithoutCancel(ctx)

	q.dispatched.Add(act.ID, struct{}{})
	if err := q.dispatch(dctx, act.AccountID, act.ChatID, act.MessageID); err != nil {
		actionsFailed.Inc()
		logger.Error("report dispatch failed", "err", err)
		q.notifyf(dctx, "❌ Report for message %d in %s failed: %v", act.MessageID, act.Channel, err)
		return
	}

	q.rates.Record(act.AccountID)
	actionsDispatched.Inc()
	logger.Info("report dispatched", "msg", act.MessageID)
	q.notifyf(dctx, "✅ Report dispatched for message %d in %s", act.MessageID, act.Channel)
}

// jitter samples a uniform delay in [DelayMin, DelayMax].
func (q *Queue) jitter() time.Duration {
	span := q.cfg.DelayMax - q.cfg.DelayMin
	if span <= 0 {
		return q.cfg.DelayMin
	}
	return q.cfg.DelayMin + time.Duration(q.randF()*float64(span))
}

// Status reports queue depth, whether a dispatch is in flight, and every
// known account's remaining budget.
func (q *Queue) Status() Status {
	q.lk.Lock()
	depth := len(q.items)
	processing := q.processing
	q.lk.Unlock()

	st := Status{
		QueueLength:  depth,
		IsProcessing: processing,
		Accounts:     make(map[string]AccountBudget),
	}

	q.rates.lk.Lock()
	accounts := make([]string, 0, len(q.rates.history))
	for id := range q.rates.history {
		accounts = append(accounts, id)
	}
	q.rates.lk.Unlock()

	for _, id := range accounts {
		hourly, daily := q.rates.Counts(id)
		st.Accounts[id] = AccountBudget{
			ReportsThisHour: hourly,
			ReportsToday:    daily,
			CanSendMore:     q.rates.Allow(id),
		}
	}
	return st
}

// Rates exposes the rate window (status surfaces and tests).
func (q *Queue) Rates() *RateWindow {
	return q.rates
}

func (q *Queue) notifyf(ctx context.Context, format string, args ...any) {
	if err := q.notifier.Notify(ctx, fmt.Sprintf(format, args...)); err != nil {
		q.logger.Warn("notification failed", "err", err)
	}
}
