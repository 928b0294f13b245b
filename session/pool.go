package session

import (
	"context"
	"log/slog"
	"sync"

	"github.com/termwatch/termwatch/store"
)

// Health is a session's connection state as tracked by the pool.
type Health string

const (
	HealthConnected    Health = "connected"
	HealthDisconnected Health = "disconnected"
)

// Session is one live account session. Owned exclusively by the Pool;
// cursor state is advanced only by the poll fallback through AdvanceCursor.
type Session struct {
	AccountID string
	Account   store.Account

	lk      sync.Mutex
	client  Client
	health  Health
	cursors map[string]int64 // channel key -> last seen message ID
}

func (s *Session) Client() Client {
	s.lk.Lock()
	defer s.lk.Unlock()
	return s.client
}

func (s *Session) Health() Health {
	s.lk.Lock()
	defer s.lk.Unlock()
	return s.health
}

func (s *Session) setHealth(h Health) {
	s.lk.Lock()
	defer s.lk.Unlock()
	s.health = h
}

func (s *Session) swapClient(c Client) {
	s.lk.Lock()
	defer s.lk.Unlock()
	s.client = c
	s.health = HealthConnected
}

// Cursor returns the high-water-mark message ID for a channel (zero when
// the channel has not been polled yet).
func (s *Session) Cursor(channelKey string) int64 {
	s.lk.Lock()
	defer s.lk.Unlock()
	return s.cursors[channelKey]
}

// AdvanceCursor moves a channel cursor forward. Attempts to move it
// backwards are ignored.
func (s *Session) AdvanceCursor(channelKey string, id int64) {
	s.lk.Lock()
	defer s.lk.Unlock()
	if id > s.cursors[channelKey] {
		s.cursors[channelKey] = id
	}
}

// Pool owns all account sessions.
type Pool struct {
	logger    *slog.Logger
	newClient ClientFactory

	lk     sync.Mutex
	active map[string]*Session
}

func NewPool(logger *slog.Logger, factory ClientFactory) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		logger:    logger.With("component", "session-pool"),
		newClient: factory,
		active:    make(map[string]*Session),
	}
}

// ConnectAll connects every account, reporting a per-account status.
// Individual failures are captured in the result slice, never returned as
// an error for the batch.
func (p *Pool) ConnectAll(ctx context.Context, accounts []store.Account) []ConnectResult {
	results := make([]ConnectResult, 0, len(accounts))
	for _, acct := range accounts {
		res := p.connectOne(ctx, acct)
		switch res.Status {
		case StatusConnected:
			p.logger.Info("account connected", "account", acct.ID)
		case StatusAuthRequired:
			p.logger.Warn("account requires re-authorization", "account", acct.ID)
		case StatusError:
			p.logger.Warn("account connection failed", "account", acct.ID, "err", res.Err)
		}
		results = append(results, res)
	}
	return results
}

func (p *Pool) connectOne(ctx context.Context, acct store.Account) ConnectResult {
	client := p.newClient(acct)
	if err := client.Connect(ctx); err != nil {
		return ConnectResult{AccountID: acct.ID, Status: StatusError, Err: err}
	}

	ok, err := client.Authorized(ctx)
	if err != nil {
		client.Disconnect(ctx)
		return ConnectResult{AccountID: acct.ID, Status: StatusError, Err: err}
	}
	if !ok {
		client.Disconnect(ctx)
		return ConnectResult{AccountID: acct.ID, Status: StatusAuthRequired}
	}

	p.lk.Lock()
	p.active[acct.ID] = &Session{
		AccountID: acct.ID,
		Account:   acct,
		client:    client,
		health:    HealthConnected,
		cursors:   make(map[string]int64),
	}
	p.lk.Unlock()

	return ConnectResult{AccountID: acct.ID, Status: StatusConnected}
}

// Get returns the session for an account, if the pool holds one.
func (p *Pool) Get(accountID string) (*Session, bool) {
	p.lk.Lock()
	defer p.lk.Unlock()
	s, ok := p.active[accountID]
	return s, ok
}

// Connected returns the sessions currently marked healthy.
func (p *Pool) Connected() []*Session {
	p.lk.Lock()
	defer p.lk.Unlock()
	out := make([]*Session, 0, len(p.active))
	for _, s := range p.active {
		if s.Health() == HealthConnected {
			out = append(out, s)
		}
	}
	return out
}

// Size returns the number of sessions the pool holds, healthy or not.
func (p *Pool) Size() int {
	p.lk.Lock()
	defer p.lk.Unlock()
	return len(p.active)
}

// MarkDisconnected flags a session as unhealthy without removing it; the
// reconnect supervisor decides what happens next.
func (p *Pool) MarkDisconnected(accountID string) {
	p.lk.Lock()
	s, ok := p.active[accountID]
	p.lk.Unlock()
	if ok {
		s.setHealth(HealthDisconnected)
	}
}

// Reconnect builds a fresh client for the account and swaps it into the
// session on success.
func (p *Pool) Reconnect(ctx context.Context, accountID string) error {
	p.lk.Lock()
	s, ok := p.active[accountID]
	p.lk.Unlock()
	if !ok {
		return ErrNoSession
	}

	client := p.newClient(s.Account)
	if err := client.Connect(ctx); err != nil {
		return err
	}
	ok, err := client.Authorized(ctx)
	if err != nil {
		client.Disconnect(ctx)
		return err
	}
	if !ok {
		client.Disconnect(ctx)
		return ErrAuthRequired
	}

	if old := s.Client(); old != nil {
		old.Disconnect(ctx)
	}
	s.swapClient(client)
	return nil
}

// Remove disconnects and drops a single session. Used when an account is
// deleted from the store.
func (p *Pool) Remove(ctx context.Context, accountID string) {
	p.lk.Lock()
	s, ok := p.active[accountID]
	delete(p.active, accountID)
	p.lk.Unlock()
	if ok {
		if err := s.Client().Disconnect(ctx); err != nil {
			p.logger.Warn("disconnect failed", "account", accountID, "err", err)
		}
	}
}

// DisconnectAll releases every session and clears cursor state. Idempotent.
func (p *Pool) DisconnectAll(ctx context.Context) {
	p.lk.Lock()
	active := p.active
	p.active = make(map[string]*Session)
	p.lk.Unlock()

	for id, s := range active {
		if err := s.Client().Disconnect(ctx); err != nil {
			p.logger.Warn("disconnect failed", "account", id, "err", err)
			continue
		}
		p.logger.Info("account disconnected", "account", id)
	}
}
