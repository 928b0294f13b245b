// Package session owns the set of connected account sessions: connecting
// them in bulk, looking them up by account ID, tracking health and poll
// cursors, and tearing everything down. The actual transport is behind the
// Client interface; the production implementation speaks to a gateway over
// websocket (push events) and HTTP (history, reports, resolution).
package session

import (
	"context"

	"github.com/termwatch/termwatch/channel"
	"github.com/termwatch/termwatch/match"
	"github.com/termwatch/termwatch/store"
)

// ConnectStatus is the per-account outcome of a bulk connect.
type ConnectStatus string

const (
	StatusConnected    ConnectStatus = "connected"
	StatusAuthRequired ConnectStatus = "auth_required"
	StatusError        ConnectStatus = "error"
)

// ConnectResult reports one account's outcome from ConnectAll. A failed
// account never aborts the others.
type ConnectResult struct {
	AccountID string
	Status    ConnectStatus
	Err       error
}

// Client is one account's connection to the message transport.
//
// Subscribe blocks delivering push events until the stream breaks or ctx is
// cancelled; the returned error is the disconnect cause (nil on clean
// cancellation).
type Client interface {
	Connect(ctx context.Context) error
	Authorized(ctx context.Context) (bool, error)
	Disconnect(ctx context.Context) error

	Subscribe(ctx context.Context, handler func(msg match.Message)) error

	// Messages returns up to limit messages in the channel with ID greater
	// than minID, oldest first.
	Messages(ctx context.Context, ref channel.Ref, minID int64, limit int) ([]match.Message, error)

	// Report files a corrective report against one message. Best-effort,
	// at-most-once per caller.
	Report(ctx context.Context, chatID string, messageID int64) error

	// ResolveChannel maps a channel username (without "@") to its canonical
	// chat ID.
	ResolveChannel(ctx context.Context, username string) (string, error)
}

// ClientFactory builds a fresh transport client for an account. Reconnects
// construct a new client rather than reviving a dead one.
type ClientFactory func(acct store.Account) Client
