package session

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/termwatch/termwatch/channel"
	"github.com/termwatch/termwatch/match"
	"github.com/termwatch/termwatch/store"
)

// ReportCall records one Report invocation against a FakeClient.
type ReportCall struct {
	ChatID    string
	MessageID int64
}

// FakeClient is an in-memory Client for tests: push events are injected
// with Push, stream failure with FailStream, history pages with AddHistory.
type FakeClient struct {
	AuthorizedResult bool
	ConnectErr       error
	ReportErr        error

	lk          sync.Mutex
	connected   bool
	history     map[string][]match.Message
	resolutions map[string]string
	reports     []ReportCall

	pushCh chan match.Message
	failCh chan error
}

func NewFakeClient() *FakeClient {
	return &FakeClient{
		AuthorizedResult: true,
		history:          make(map[string][]match.Message),
		resolutions:      make(map[string]string),
		pushCh:           make(chan match.Message, 64),
		failCh:           make(chan error, 1),
	}
}

func (c *FakeClient) Connect(ctx context.Context) error {
	if c.ConnectErr != nil {
		return c.ConnectErr
	}
	c.lk.Lock()
	c.connected = true
	c.lk.Unlock()
	return nil
}

func (c *FakeClient) Authorized(ctx context.Context) (bool, error) {
	return c.AuthorizedResult, nil
}

func (c *FakeClient) Disconnect(ctx context.Context) error {
	c.lk.Lock()
	c.connected = false
	c.lk.Unlock()
	return nil
}

func (c *FakeClient) Connected() bool {
	c.lk.Lock()
	defer c.lk.Unlock()
	return c.connected
}

func (c *FakeClient) Subscribe(ctx context.Context, handler func(msg match.Message)) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-c.failCh:
			return err
		case msg := <-c.pushCh:
			handler(msg)
		}
	}
}

// Push injects a push-delivered message into the subscribed stream.
func (c *FakeClient) Push(msg match.Message) {
	c.pushCh <- msg
}

// FailStream makes the active Subscribe call return with err.
func (c *FakeClient) FailStream(err error) {
	c.failCh <- err
}

// AddHistory appends messages to a channel's pollable history.
func (c *FakeClient) AddHistory(key string, msgs ...match.Message) {
	c.lk.Lock()
	defer c.lk.Unlock()
	c.history[key] = append(c.history[key], msgs...)
}

// SetResolution registers a username -> chat ID mapping.
func (c *FakeClient) SetResolution(username, chatID string) {
	c.lk.Lock()
	defer c.lk.Unlock()
	c.resolutions[username] = chatID
}

func (c *FakeClient) Messages(ctx context.Context, ref channel.Ref, minID int64, limit int) ([]match.Message, error) {
	c.lk.Lock()
	defer c.lk.Unlock()

	var out []match.Message
	for _, msg := range c.history[ref.String()] {
		if msg.MessageID > minID {
			out = append(out, msg)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MessageID < out[j].MessageID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (c *FakeClient) Report(ctx context.Context, chatID string, messageID int64) error {
	if c.ReportErr != nil {
		return c.ReportErr
	}
	c.lk.Lock()
	defer c.lk.Unlock()
	c.reports = append(c.reports, ReportCall{ChatID: chatID, MessageID: messageID})
	return nil
}

// Reports returns a copy of the recorded report calls.
func (c *FakeClient) Reports() []ReportCall {
	c.lk.Lock()
	defer c.lk.Unlock()
	out := make([]ReportCall, len(c.reports))
	copy(out, c.reports)
	return out
}

func (c *FakeClient) ResolveChannel(ctx context.Context, username string) (string, error) {
	c.lk.Lock()
	defer c.lk.Unlock()
	if id, ok := c.resolutions[username]; ok {
		return id, nil
	}
	return "", fmt.Errorf("unknown username %q", username)
}

var _ Client = (*FakeClient)(nil)

// FakeFactory returns a ClientFactory that hands out pre-built fakes by
// account ID, falling back to fresh fakes for unknown accounts.
func FakeFactory(clients map[string]*FakeClient) ClientFactory {
	return func(acct store.Account) Client {
		if c, ok := clients[acct.ID]; ok {
			return c
		}
		return NewFakeClient()
	}
}
