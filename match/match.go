// Package match decides whether an inbound channel message contains a
// banned term. It is pure: no I/O, no clocks, no shared state.
package match

import (
	"strings"
	"time"

	"github.com/termwatch/termwatch/channel"
)

// Message is a normalized inbound channel message. Ephemeral, never
// persisted.
type Message struct {
	ChatID    string
	Username  string // channel username without "@", empty when unknown
	MessageID int64
	Text      string
	SenderID  string
	Time      time.Time
}

// Hit is a single detected term occurrence: at most one per message, the
// first term in term-list order wins.
type Hit struct {
	Channel   channel.Ref // tracked reference in its configured form
	ChatID    string      // channel reference as observed on the message
	Term      string
	MessageID int64
	Time      time.Time
}

// Resolutions maps username-form tracked references to the canonical chat
// ID the session layer resolved them to. Missing or empty entries mean
// unresolved.
type Resolutions map[channel.Ref]string

// Tracked returns the tracked reference the message's channel belongs to,
// if any.
func Tracked(msg Message, tracked []channel.Ref, resolved Resolutions) (channel.Ref, bool) {
	for _, ref := range tracked {
		if ref.ResolvedEqual(resolved[ref], msg.ChatID, msg.Username) {
			return ref, true
		}
	}
	return "", false
}

// Eval scans a message against the term list and tracked-channel list.
// Untracked channels short-circuit before any term scan. Terms are matched
// by case-insensitive substring containment; the first term (in list order)
// that matches produces the Hit.
func Eval(msg Message, terms []string, tracked []channel.Ref, resolved Resolutions) (Hit, bool) {
	if msg.Text == "" || len(terms) == 0 {
		return Hit{}, false
	}
	ref, ok := Tracked(msg, tracked, resolved)
	if !ok {
		return Hit{}, false
	}
	text := strings.ToLower(msg.Text)
	for _, term := range terms {
		if term == "" {
			continue
		}
		if strings.Contains(text, strings.ToLower(term)) {
			return Hit{
				Channel:   ref,
				ChatID:    msg.ChatID,
				Term:      term,
				MessageID: msg.MessageID,
				Time:      msg.Time,
			}, true
		}
	}
	return Hit{}, false
}
