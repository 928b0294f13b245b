// Package store holds the durable configuration document: managed accounts,
// tracked channels, banned terms, the operating mode, and per-channel
// per-term hit counters.
//
// Every mutating operation is an atomic read-modify-write against the
// backing database. The snapshot returned by Read is a point-in-time copy;
// callers must not assume isolation between a snapshot they read and writes
// made by others afterwards.
package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/termwatch/termwatch/channel"
)

// Mode selects whether detected hits produce real report actions ("run") or
// are only recorded and notified ("test").
type Mode string

const (
	ModeTest Mode = "test"
	ModeRun  Mode = "run"
)

// ParseMode validates an operator-supplied mode string.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeTest, ModeRun:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("unknown mode: %q", s)
	}
}

// NormalizeTerm folds a banned term to its canonical stored form: trimmed
// and lower case. The term set holds only canonical forms, so stats keys
// and hit reports never vary by entry casing.
func NormalizeTerm(term string) string {
	return strings.ToLower(strings.TrimSpace(term))
}

// Account is one managed account whose session observes and acts on
// channels.
type Account struct {
	ID        string
	Phone     string
	UserID    string
	Username  string
	FirstName string
	LastName  string
	AddedAt   time.Time
}

// Snapshot is a full synchronous read of the configuration document.
type Snapshot struct {
	Accounts []Account
	Channels []channel.Ref
	Terms    []string
	Mode     Mode
	// Stats maps tracked-channel key (configured form) -> term -> hit count.
	Stats map[string]map[string]int64
}

type Store interface {
	Read(ctx context.Context) (*Snapshot, error)

	AddAccount(ctx context.Context, acct Account) error
	RemoveAccount(ctx context.Context, accountID string) error

	AddChannel(ctx context.Context, ref channel.Ref) error
	// RemoveChannel also discards that channel's accumulated stats.
	RemoveChannel(ctx context.Context, ref channel.Ref) error

	AddTerms(ctx context.Context, terms []string) error
	RemoveTerms(ctx context.Context, terms []string) error

	SetMode(ctx context.Context, mode Mode) error

	IncrementStat(ctx context.Context, channelKey, term string) error
	ClearStats(ctx context.Context) error
}
