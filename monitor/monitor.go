// Package monitor is the long-running service core: it owns the account
// sessions, the push-event ingest loops, the polling fallback, and the
// reconnect supervisor, and routes detected term hits into the action
// queue.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/termwatch/termwatch/channel"
	"github.com/termwatch/termwatch/match"
	"github.com/termwatch/termwatch/notify"
	"github.com/termwatch/termwatch/queue"
	"github.com/termwatch/termwatch/session"
	"github.com/termwatch/termwatch/stats"
	"github.com/termwatch/termwatch/store"
)

var tracer = otel.Tracer("monitor")

// Config holds the monitor knobs; zero values fall back to the service
// defaults.
type Config struct {
	PollInterval         time.Duration // default 45s
	PollKick             time.Duration // delay before the first poll, default 10s
	PollPageSize         int           // default 20
	ReconnectBaseDelay   time.Duration // default 1s
	ReconnectMaxAttempts int           // default 5
	IngestRateLimit      int64         // push events/s per account, default 100
}

func (c *Config) setDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = 45 * time.Second
	}
	if c.PollKick <= 0 {
		c.PollKick = 10 * time.Second
	}
	if c.PollPageSize <= 0 {
		c.PollPageSize = 20
	}
	if c.ReconnectBaseDelay <= 0 {
		c.ReconnectBaseDelay = time.Second
	}
	if c.ReconnectMaxAttempts <= 0 {
		c.ReconnectMaxAttempts = 5
	}
	if c.IngestRateLimit <= 0 {
		c.IngestRateLimit = 100
	}
}

// Status is the monitor's externally visible state.
type Status struct {
	Active            bool                             `json:"active"`
	ConnectedAccounts int                              `json:"connectedAccounts"`
	TotalAccounts     int                              `json:"totalAccounts"`
	TrackedChannels   int                              `json:"trackedChannels"`
	Terms             int                              `json:"terms"`
	Mode              store.Mode                       `json:"mode"`
	Accounts          map[string]session.ConnectStatus `json:"accounts"`
}

// Monitor ties sessions, matching, stats and the action queue together.
// Start and Stop bracket one monitoring run; the struct is reusable across
// runs.
type Monitor struct {
	logger   *slog.Logger
	cfg      Config
	store    store.Store
	pool     *session.Pool
	queue    *queue.Queue
	stats    *stats.Collector
	notifier notify.Notifier
	redis    *redis.Client

	lk       sync.Mutex
	active   bool
	cancel   context.CancelFunc
	statuses map[string]session.ConnectStatus

	// matching inputs, refreshed from the store on start, on every poll
	// cycle, and explicitly after admin mutations
	tracked     []channel.Ref
	terms       []string
	mode        store.Mode
	resolutions match.Resolutions

	reconnect reconnectRegistry
	guards    ingestGuards
	poller    poller

	wg sync.WaitGroup
}

func New(logger *slog.Logger, cfg Config, st store.Store, pool *session.Pool, q *queue.Queue, collector *stats.Collector, notifier notify.Notifier, rdb *redis.Client) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.setDefaults()
	if notifier == nil {
		notifier = &notify.LogNotifier{Logger: logger}
	}
	m := &Monitor{
		logger:      logger.With("component", "monitor"),
		cfg:         cfg,
		store:       st,
		pool:        pool,
		queue:       q,
		stats:       collector,
		notifier:    notifier,
		redis:       rdb,
		statuses:    make(map[string]session.ConnectStatus),
		resolutions: make(match.Resolutions),
	}
	m.reconnect.init(m)
	m.guards.init(cfg.IngestRateLimit)
	m.poller.init(m)
	return m
}

// Start connects every configured account, arms push ingest on the healthy
// sessions, and launches the poll fallback and the queue consumer. Already
// running is an error.
func (m *Monitor) Start(ctx context.Context) error {
	m.lk.Lock()
	if m.active {
		m.lk.Unlock()
		return fmt.Errorf("monitor already running")
	}
	m.active = true
	m.lk.Unlock()

	snap, err := m.store.Read(ctx)
	if err != nil {
		m.setActive(false)
		return fmt.Errorf("reading configuration: %w", err)
	}
	m.lk.Lock()
	m.tracked = snap.Channels
	m.terms = snap.Terms
	m.mode = snap.Mode
	m.lk.Unlock()

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	m.lk.Lock()
	m.cancel = cancel
	m.lk.Unlock()

	results := m.pool.ConnectAll(runCtx, snap.Accounts)
	connected := 0
	m.lk.Lock()
	m.statuses = make(map[string]session.ConnectStatus, len(results))
	for _, res := range results {
		m.statuses[res.AccountID] = res.Status
		if res.Status == session.StatusConnected {
			connected++
		}
	}
	m.lk.Unlock()
	connectedSessions.Set(float64(connected))

	// both ingest and the poll fallback run over connected sessions, so
	// with none of them up there is nothing to monitor
	if connected == 0 && len(snap.Accounts) > 0 {
		cancel()
		m.setActive(false)
		m.logger.Error("no accounts connected, refusing to start monitoring")
		m.notifyf(ctx, "❌ Monitoring not started: none of %d accounts could connect", len(snap.Accounts))
		return fmt.Errorf("no accounts connected")
	}

	m.resolveUsernames(runCtx, snap.Channels)

	for _, sess := range m.pool.Connected() {
		m.startIngest(runCtx, sess)
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.poller.run(runCtx)
	}()

	m.queue.Start(runCtx)

	m.logger.Info("monitoring started", "accounts", connected, "channels", len(m.tracked), "terms", len(m.terms), "mode", m.mode)
	m.notifyf(runCtx, "▶️ Monitoring started: %d/%d accounts connected, %d channels, %d terms (%s mode)",
		connected, len(snap.Accounts), len(m.tracked), len(m.terms), m.mode)
	return nil
}

// Stop cancels ingest loops, the poller, reconnect timers and the queue
// consumer, then releases every session. Safe to call when not running.
func (m *Monitor) Stop(ctx context.Context) {
	m.lk.Lock()
	if !m.active {
		m.lk.Unlock()
		return
	}
	m.active = false
	cancel := m.cancel
	m.cancel = nil
	m.lk.Unlock()

	if cancel != nil {
		cancel()
	}
	m.wg.Wait()
	m.queue.Stop()
	m.pool.DisconnectAll(ctx)
	m.reconnect.reset()
	connectedSessions.Set(0)

	m.logger.Info("monitoring stopped")
	m.notifyf(ctx, "⏹️ Monitoring stopped")
}

// Active reports whether a monitoring run is in progress.
func (m *Monitor) Active() bool {
	m.lk.Lock()
	defer m.lk.Unlock()
	return m.active
}

func (m *Monitor) setActive(v bool) {
	m.lk.Lock()
	m.active = v
	m.lk.Unlock()
}

// Status snapshots the monitor for the admin API.
func (m *Monitor) Status() Status {
	m.lk.Lock()
	defer m.lk.Unlock()

	st := Status{
		Active:          m.active,
		TotalAccounts:   len(m.statuses),
		TrackedChannels: len(m.tracked),
		Terms:           len(m.terms),
		Mode:            m.mode,
		Accounts:        make(map[string]session.ConnectStatus, len(m.statuses)),
	}
	for id, cs := range m.statuses {
		st.Accounts[id] = cs
		if cs == session.StatusConnected {
			st.ConnectedAccounts++
		}
	}
	return st
}

// Refresh re-reads the matching inputs from the store. Admin handlers call
// this after mutating channels, terms, or mode so a running monitor picks
// the change up immediately rather than on the next poll cycle.
func (m *Monitor) Refresh(ctx context.Context) error {
	return m.refreshConfig(ctx)
}

func (m *Monitor) refreshConfig(ctx context.Context) error {
	snap, err := m.store.Read(ctx)
	if err != nil {
		return err
	}

	m.lk.Lock()
	m.tracked = snap.Channels
	m.terms = snap.Terms
	m.mode = snap.Mode
	m.lk.Unlock()

	m.resolveUsernames(ctx, snap.Channels)
	return nil
}

// resolveUsernames fills the username -> chat ID cache for tracked
// username-form refs, using any healthy session. Failures leave the entry
// unresolved; matching then falls back to username comparison on observed
// messages.
func (m *Monitor) resolveUsernames(ctx context.Context, tracked []channel.Ref) {
	sessions := m.pool.Connected()
	if len(sessions) == 0 {
		return
	}
	client := sessions[0].Client()

	for _, ref := range tracked {
		if !ref.IsUsername() {
			continue
		}
		m.lk.Lock()
		_, known := m.resolutions[ref]
		m.lk.Unlock()
		if known {
			continue
		}
		id, err := client.ResolveChannel(ctx, ref.Username())
		if err != nil {
			m.logger.Debug("channel username resolution failed", "channel", ref, "err", err)
			continue
		}
		m.lk.Lock()
		m.resolutions[ref] = id
		m.lk.Unlock()
		m.logger.Info("resolved channel username", "channel", ref, "chatID", id)
	}
}

func (m *Monitor) matchInputs() (tracked []channel.Ref, terms []string, mode store.Mode, resolved match.Resolutions) {
	m.lk.Lock()
	defer m.lk.Unlock()
	resolved = make(match.Resolutions, len(m.resolutions))
	for k, v := range m.resolutions {
		resolved[k] = v
	}
	return m.tracked, m.terms, m.mode, resolved
}

// processMessage is the single detection path shared by push ingest and the
// poll fallback.
func (m *Monitor) processMessage(ctx context.Context, accountID, source string, msg match.Message) {
	ctx, span := tracer.Start(ctx, "processMessage")
	defer span.End()
	span.SetAttributes(
		attribute.String("account", accountID),
		attribute.String("source", source),
		attribute.String("chat", msg.ChatID),
	)

	messagesProcessed.WithLabelValues(source).Inc()

	tracked, terms, mode, resolved := m.matchInputs()
	hit, ok := match.Eval(msg, terms, tracked, resolved)
	if !ok {
		return
	}

	hitsDetected.Inc()
	span.SetAttributes(attribute.String("term", hit.Term))
	m.logger.Info("term hit detected", "account", accountID, "channel", hit.Channel, "term", hit.Term, "msg", hit.MessageID, "source", source)

	m.stats.Record(ctx, string(hit.Channel), hit.Term)
	m.notifyf(ctx, "🔍 Term %q detected in %s (message %d)", hit.Term, hit.Channel, hit.MessageID)

	if mode != store.ModeRun {
		m.logger.Info("test mode, skipping report", "term", hit.Term, "channel", hit.Channel)
		m.notifyf(ctx, "🧪 Test mode: report for %q in %s not sent", hit.Term, hit.Channel)
		return
	}
	m.queue.Enqueue(ctx, accountID, hit)
}

func (m *Monitor) notifyf(ctx context.Context, format string, args ...any) {
	if err := m.notifier.Notify(ctx, fmt.Sprintf(format, args...)); err != nil {
		m.logger.Warn("notification failed", "err", err)
	}
}
