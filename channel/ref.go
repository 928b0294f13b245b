// Package channel implements parsing and identity resolution for tracked
// channel references.
//
// Operators enter a channel in one of three surface forms: a bare numeric
// internal ID ("1234567890"), a full broadcast ID with the -100 prefix
// ("-1001234567890"), or a username ("@channel"). The store keeps whichever
// form was entered; equivalence between forms is decided here, by exact
// rules, never by substring heuristics.
package channel

import (
	"fmt"
	"strings"
)

// Ref is a tracked-channel reference in the surface form the operator
// entered it.
type Ref string

const broadcastPrefix = "-100"

// ParseRef validates an operator-entered channel reference.
func ParseRef(raw string) (Ref, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("empty channel reference")
	}
	if strings.HasPrefix(raw, "@") {
		name := raw[1:]
		if name == "" {
			return "", fmt.Errorf("empty username reference")
		}
		for _, c := range name {
			if !(c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')) {
				return "", fmt.Errorf("invalid username reference: %q", raw)
			}
		}
		return Ref(raw), nil
	}
	digits := raw
	if strings.HasPrefix(digits, broadcastPrefix) {
		digits = digits[len(broadcastPrefix):]
	}
	if digits == "" {
		return "", fmt.Errorf("invalid channel ID: %q", raw)
	}
	for _, c := range digits {
		if c < '0' || c > '9' {
			return "", fmt.Errorf("invalid channel ID: %q", raw)
		}
	}
	return Ref(raw), nil
}

// IsUsername reports whether the reference is in the @username form.
func (r Ref) IsUsername() bool {
	return strings.HasPrefix(string(r), "@")
}

// Username returns the username without the leading "@", folded to lower
// case. Empty for numeric references.
func (r Ref) Username() string {
	if !r.IsUsername() {
		return ""
	}
	return strings.ToLower(string(r)[1:])
}

// BareID returns the numeric ID with any -100 broadcast prefix stripped.
// Empty for username references.
func (r Ref) BareID() string {
	if r.IsUsername() {
		return ""
	}
	return strings.TrimPrefix(string(r), broadcastPrefix)
}

func (r Ref) String() string {
	return string(r)
}

// Equal reports whether two references are the same channel on surface-form
// evidence alone: literal equality, equality after stripping a leading -100
// from either side, or username equality ignoring case. A username reference
// and a numeric reference never compare equal here; linking those requires
// the observed username or a resolver (see Matches and ResolvedEqual).
func Equal(a, b Ref) bool {
	if a == b {
		return true
	}
	if a.IsUsername() != b.IsUsername() {
		return false
	}
	if a.IsUsername() {
		return a.Username() == b.Username()
	}
	return a.BareID() == b.BareID()
}

// Matches reports whether the tracked reference r refers to the channel an
// observed message came from. chatID may be a bare internal ID or a
// -100-prefixed broadcast ID; username is the channel's username without
// "@", or empty when the transport did not carry one.
func (r Ref) Matches(chatID, username string) bool {
	if chatID == "" && username == "" {
		return false
	}
	if r.IsUsername() {
		return username != "" && strings.EqualFold(r.Username(), username)
	}
	if chatID == "" {
		return false
	}
	return Equal(r, Ref(chatID))
}

// ResolvedEqual is Matches for the case where a username reference has been
// resolved to its canonical ID by the session layer: resolvedID is the
// canonical chat ID for r if r is a username reference (empty when
// unresolved).
func (r Ref) ResolvedEqual(resolvedID, chatID, username string) bool {
	if r.Matches(chatID, username) {
		return true
	}
	if r.IsUsername() && resolvedID != "" && chatID != "" {
		return Equal(Ref(resolvedID), Ref(chatID))
	}
	return false
}
