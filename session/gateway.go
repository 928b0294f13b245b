package session

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/carlmjohnson/versioninfo"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/time/rate"

	"github.com/termwatch/termwatch/channel"
	"github.com/termwatch/termwatch/match"
	"github.com/termwatch/termwatch/store"
)

// GatewayClient talks to a message gateway: push events arrive over a
// websocket stream, everything else (history pages, reports, username
// resolution) goes over HTTP.
type GatewayClient struct {
	host      string
	token     string
	accountID string
	logger    *slog.Logger

	http *http.Client
	// paces history fetches so a poll cycle over many channels cannot
	// hammer the gateway
	fetchLimiter *rate.Limiter
}

// GatewayConfig carries the knobs for building per-account gateway clients.
type GatewayConfig struct {
	Host           string
	AdminToken     string
	FetchRateLimit int // history fetches per second, per account
	Logger         *slog.Logger
}

// NewGatewayFactory returns a ClientFactory producing gateway clients.
func NewGatewayFactory(cfg GatewayConfig) ClientFactory {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	limit := cfg.FetchRateLimit
	if limit <= 0 {
		limit = 4
	}
	return func(acct store.Account) Client {
		return &GatewayClient{
			host:         cfg.Host,
			token:        cfg.AdminToken,
			accountID:    acct.ID,
			logger:       logger.With("component", "gateway", "account", acct.ID),
			http:         RobustHTTPClient(logger),
			fetchLimiter: rate.NewLimiter(rate.Limit(limit), 1),
		}
	}
}

// leveledSlog adapts slog to the retryablehttp leveled logger. Client ERROR
// is re-written to WARN because the client retries.
type leveledSlog struct {
	inner *slog.Logger
}

func (l leveledSlog) Error(msg string, keysAndValues ...interface{}) {
	l.inner.Warn(msg, keysAndValues...)
}

func (l leveledSlog) Warn(msg string, keysAndValues ...interface{}) {
	l.inner.Warn(msg, keysAndValues...)
}

func (l leveledSlog) Info(msg string, keysAndValues ...interface{}) {
	l.inner.Info(msg, keysAndValues...)
}

func (l leveledSlog) Debug(msg string, keysAndValues ...interface{}) {
	l.inner.Debug(msg, keysAndValues...)
}

// RobustHTTPClient generates an HTTP client with general-purpose defaults
// around timeouts and retries: connection errors, 5xx (except 501), and 429
// with Retry-After are retried, with intermediate failures logged at WARN.
func RobustHTTPClient(logger *slog.Logger) *http.Client {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 3
	retryClient.RetryWaitMin = 1 * time.Second
	retryClient.RetryWaitMax = 10 * time.Second
	retryClient.Logger = retryablehttp.LeveledLogger(leveledSlog{logger})
	client := retryClient.StandardClient()
	client.Timeout = 20 * time.Second
	return client
}

// WebsocketURLForHost converts an http/https gateway host to its ws/wss
// form. Hosts already in ws form pass through.
func WebsocketURLForHost(host string) string {
	if strings.HasPrefix(host, "ws://") || strings.HasPrefix(host, "wss://") {
		return host
	}
	if strings.HasPrefix(host, "https://") {
		return "wss://" + strings.TrimPrefix(host, "https://")
	}
	if strings.HasPrefix(host, "http://") {
		return "ws://" + strings.TrimPrefix(host, "http://")
	}
	return "wss://" + host
}

func userAgent() string {
	return fmt.Sprintf("termwatchd/%s", versioninfo.Short())
}

// messageFrame is the wire form of a channel message.
type messageFrame struct {
	ChatID    string `json:"chat_id"`
	Username  string `json:"username,omitempty"`
	MessageID int64  `json:"message_id"`
	Text      string `json:"text"`
	SenderID  string `json:"sender_id,omitempty"`
	Time      string `json:"time"`
}

// eventFrame is one push-stream frame; only "message" frames carry a body.
type eventFrame struct {
	Type    string        `json:"type"`
	Message *messageFrame `json:"message,omitempty"`
	Error   string        `json:"error,omitempty"`
}

func (f *messageFrame) normalize() match.Message {
	t, err := time.Parse(time.RFC3339, f.Time)
	if err != nil {
		t = time.Now().UTC()
	}
	return match.Message{
		ChatID:    f.ChatID,
		Username:  strings.TrimPrefix(f.Username, "@"),
		MessageID: f.MessageID,
		Text:      f.Text,
		SenderID:  f.SenderID,
		Time:      t,
	}
}

func (c *GatewayClient) Connect(ctx context.Context) error {
	var out struct {
		Status string `json:"status"`
	}
	if err := c.doJSON(ctx, http.MethodPost, fmt.Sprintf("/v1/sessions/%s/connect", c.accountID), nil, &out); err != nil {
		return fmt.Errorf("connecting session: %w", err)
	}
	return nil
}

func (c *GatewayClient) Authorized(ctx context.Context) (bool, error) {
	var out struct {
		Authorized bool `json:"authorized"`
	}
	if err := c.doJSON(ctx, http.MethodGet, fmt.Sprintf("/v1/sessions/%s", c.accountID), nil, &out); err != nil {
		return false, fmt.Errorf("checking authorization: %w", err)
	}
	return out.Authorized, nil
}

func (c *GatewayClient) Disconnect(ctx context.Context) error {
	err := c.doJSON(ctx, http.MethodPost, fmt.Sprintf("/v1/sessions/%s/disconnect", c.accountID), nil, nil)
	if err != nil {
		return fmt.Errorf("disconnecting session: %w", err)
	}
	return nil
}

// Subscribe dials the push-event stream and delivers every message frame to
// the handler. Blocks until the stream breaks or ctx is cancelled.
func (c *GatewayClient) Subscribe(ctx context.Context, handler func(msg match.Message)) error {
	u := fmt.Sprintf("%s/v1/sessions/%s/events", WebsocketURLForHost(c.host), c.accountID)

	dialer := websocket.DefaultDialer
	hdr := http.Header{"User-Agent": []string{userAgent()}}
	if c.token != "" {
		hdr.Set("Authorization", "Bearer "+c.token)
	}
	con, _, err := dialer.DialContext(ctx, u, hdr)
	if err != nil {
		return fmt.Errorf("dialing event stream: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		t := time.NewTicker(time.Second * 30)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				if err := con.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(time.Second*10)); err != nil {
					c.logger.Warn("failed to ping gateway", "err", err)
				}
			case <-ctx.Done():
				con.Close()
				return
			}
		}
	}()

	c.logger.Info("subscribed to event stream", "host", c.host)

	for {
		_, data, err := con.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("reading event stream: %w", err)
		}

		var frame eventFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.logger.Warn("dropping undecodable event frame", "err", err)
			continue
		}
		switch frame.Type {
		case "message":
			if frame.Message == nil {
				continue
			}
			handler(frame.Message.normalize())
		case "error":
			return fmt.Errorf("gateway error frame: %s", frame.Error)
		default:
			// heartbeats and unknown frame types are ignored
		}
	}
}

func (c *GatewayClient) Messages(ctx context.Context, ref channel.Ref, minID int64, limit int) ([]match.Message, error) {
	if err := c.fetchLimiter.Wait(ctx); err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("channel", ref.String())
	q.Set("min_id", strconv.FormatInt(minID, 10))
	q.Set("limit", strconv.Itoa(limit))

	var out struct {
		Messages []messageFrame `json:"messages"`
	}
	path := fmt.Sprintf("/v1/sessions/%s/messages?%s", c.accountID, q.Encode())
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, fmt.Errorf("fetching messages: %w", err)
	}

	msgs := make([]match.Message, 0, len(out.Messages))
	for i := range out.Messages {
		msgs = append(msgs, out.Messages[i].normalize())
	}
	return msgs, nil
}

func (c *GatewayClient) Report(ctx context.Context, chatID string, messageID int64) error {
	body := map[string]any{
		"chat_id":    chatID,
		"message_id": messageID,
		"reason":     "spam",
	}
	path := fmt.Sprintf("/v1/sessions/%s/reports", c.accountID)
	if err := c.doJSON(ctx, http.MethodPost, path, body, nil); err != nil {
		return fmt.Errorf("filing report: %w", err)
	}
	return nil
}

func (c *GatewayClient) ResolveChannel(ctx context.Context, username string) (string, error) {
	q := url.Values{}
	q.Set("username", strings.TrimPrefix(username, "@"))

	var out struct {
		ChatID string `json:"chat_id"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/v1/resolve?"+q.Encode(), nil, &out); err != nil {
		return "", fmt.Errorf("resolving channel username: %w", err)
	}
	if out.ChatID == "" {
		return "", fmt.Errorf("username %q did not resolve", username)
	}
	return out.ChatID, nil
}

func (c *GatewayClient) doJSON(ctx context.Context, method, path string, body any, out any) error {
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rdr = strings.NewReader(string(b))
	}

	req, err := http.NewRequestWithContext(ctx, method, c.host+path, rdr)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", userAgent())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return ErrAuthRequired
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("gateway returned status %d", resp.StatusCode)
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

var _ Client = (*GatewayClient)(nil)
