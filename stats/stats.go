// Package stats aggregates term-hit counters over the configuration store
// and renders them for status surfaces.
package stats

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
)

// Backend is the slice of the store the collector needs.
type Backend interface {
	IncrementStat(ctx context.Context, channelKey, term string) error
	ClearStats(ctx context.Context) error
}

// Collector records and summarizes hits. Counters live in the store so they
// survive restarts; the collector adds the read-side shaping.
type Collector struct {
	backend Backend
	logger  *slog.Logger
}

func NewCollector(backend Backend, logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Collector{backend: backend, logger: logger}
}

// Record bumps the counter for one hit. The channel key is the configured
// form of the tracked channel, not whatever identifier the session layer
// observed.
func (c *Collector) Record(ctx context.Context, channelKey, term string) {
	if err := c.backend.IncrementStat(ctx, channelKey, term); err != nil {
		c.logger.Error("failed to record hit counter", "channel", channelKey, "term", term, "err", err)
	}
}

// Clear discards all accumulated counters.
func (c *Collector) Clear(ctx context.Context) error {
	return c.backend.ClearStats(ctx)
}

// Totals summarizes a stats snapshot.
type Totals struct {
	Channels    int    `json:"totalChannels"`
	Terms       int    `json:"uniqueTerms"`
	Hits        int64  `json:"totalHits"`
	TopTerm     string `json:"topTerm,omitempty"`
	TopTermHits int64  `json:"topTermHits,omitempty"`
}

// Summarize computes totals from a channel->term->count snapshot.
func Summarize(stats map[string]map[string]int64) Totals {
	var t Totals
	terms := make(map[string]int64)
	for _, byTerm := range stats {
		if len(byTerm) == 0 {
			continue
		}
		t.Channels++
		for term, n := range byTerm {
			t.Hits += n
			terms[term] += n
		}
	}
	t.Terms = len(terms)
	for term, n := range terms {
		if n > t.TopTermHits || (n == t.TopTermHits && term < t.TopTerm) {
			t.TopTerm = term
			t.TopTermHits = n
		}
	}
	return t
}

// Entry is one (channel, term) counter in a ranked listing.
type Entry struct {
	Channel string `json:"channel"`
	Term    string `json:"term"`
	Count   int64  `json:"count"`
}

// Ranked flattens a stats snapshot into entries sorted by count descending,
// ties broken by channel then term for stable output.
func Ranked(stats map[string]map[string]int64) []Entry {
	var out []Entry
	for ch, byTerm := range stats {
		for term, n := range byTerm {
			out = append(out, Entry{Channel: ch, Term: term, Count: n})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		if out[i].Channel != out[j].Channel {
			return out[i].Channel < out[j].Channel
		}
		return out[i].Term < out[j].Term
	})
	return out
}

// Top returns the first n ranked entries.
func Top(stats map[string]map[string]int64, n int) []Entry {
	ranked := Ranked(stats)
	if n > 0 && len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}

// TermCount is one term's hit total summed across all channels.
type TermCount struct {
	Term  string `json:"term"`
	Count int64  `json:"count"`
}

// ChannelCount is one channel's hit total summed across all terms.
type ChannelCount struct {
	Channel string `json:"channel"`
	Count   int64  `json:"count"`
}

// TopTerms aggregates counts per term across channels and returns the n
// highest, ties broken by term for stable output.
func TopTerms(stats map[string]map[string]int64, n int) []TermCount {
	sums := make(map[string]int64)
	for _, byTerm := range stats {
		for term, c := range byTerm {
			sums[term] += c
		}
	}
	out := make([]TermCount, 0, len(sums))
	for term, c := range sums {
		out = append(out, TermCount{Term: term, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Term < out[j].Term
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// TopChannels aggregates counts per channel across terms and returns the n
// highest, ties broken by channel.
func TopChannels(stats map[string]map[string]int64, n int) []ChannelCount {
	out := make([]ChannelCount, 0, len(stats))
	for ch, byTerm := range stats {
		var sum int64
		for _, c := range byTerm {
			sum += c
		}
		if sum == 0 {
			continue
		}
		out = append(out, ChannelCount{Channel: ch, Count: sum})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Channel < out[j].Channel
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// Formatted renders a human-readable stats report for operator
// notifications.
func Formatted(stats map[string]map[string]int64) string {
	totals := Summarize(stats)
	if totals.Hits == 0 {
		return "No hits recorded."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Hits: %d across %d channels (%d terms)\n", totals.Hits, totals.Channels, totals.Terms)
	for _, e := range Ranked(stats) {
		fmt.Fprintf(&b, "  %s / %q: %d\n", e.Channel, e.Term, e.Count)
	}
	return strings.TrimRight(b.String(), "\n")
}
