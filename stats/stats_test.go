package stats

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/termwatch/termwatch/store"
)

func TestCollectorRecordAndClear(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	st := store.NewMemStore()
	c := NewCollector(st, nil)

	c.Record(ctx, "-1001234567890", "spam")
	c.Record(ctx, "-1001234567890", "spam")
	c.Record(ctx, "@crypto_chat", "casino")

	snap, err := st.Read(ctx)
	require.NoError(t, err)
	assert.EqualValues(2, snap.Stats["-1001234567890"]["spam"])
	assert.EqualValues(1, snap.Stats["@crypto_chat"]["casino"])

	require.NoError(t, c.Clear(ctx))
	snap, err = st.Read(ctx)
	require.NoError(t, err)
	assert.Empty(snap.Stats)
	assert.Zero(Summarize(snap.Stats).Hits)
}

func TestSummarize(t *testing.T) {
	assert := assert.New(t)

	stats := map[string]map[string]int64{
		"-100111": {"spam": 3, "casino": 1},
		"-100222": {"spam": 2},
		"-100333": {},
	}
	totals := Summarize(stats)
	assert.Equal(2, totals.Channels)
	assert.Equal(2, totals.Terms)
	assert.EqualValues(6, totals.Hits)
	assert.Equal("spam", totals.TopTerm)
	assert.EqualValues(5, totals.TopTermHits)
}

func TestRankedOrdering(t *testing.T) {
	assert := assert.New(t)

	stats := map[string]map[string]int64{
		"-100111": {"spam": 1, "casino": 5},
		"-100222": {"spam": 5},
	}
	ranked := Ranked(stats)
	assert.Equal([]Entry{
		{Channel: "-100111", Term: "casino", Count: 5},
		{Channel: "-100222", Term: "spam", Count: 5},
		{Channel: "-100111", Term: "spam", Count: 1},
	}, ranked)

	assert.Len(Top(stats, 2), 2)
}

func TestTopTermsAggregatesAcrossChannels(t *testing.T) {
	assert := assert.New(t)

	stats := map[string]map[string]int64{
		"-100111": {"spam": 2, "casino": 4},
		"-100222": {"spam": 3},
	}

	assert.Equal([]TermCount{
		{Term: "spam", Count: 5},
		{Term: "casino", Count: 4},
	}, TopTerms(stats, 0))

	assert.Equal([]TermCount{{Term: "spam", Count: 5}}, TopTerms(stats, 1))
}

func TestTopChannelsAggregatesAcrossTerms(t *testing.T) {
	assert := assert.New(t)

	stats := map[string]map[string]int64{
		"-100111": {"spam": 2, "casino": 4},
		"-100222": {"spam": 3},
		"-100333": {},
	}

	assert.Equal([]ChannelCount{
		{Channel: "-100111", Count: 6},
		{Channel: "-100222", Count: 3},
	}, TopChannels(stats, 0))

	assert.Equal([]ChannelCount{{Channel: "-100111", Count: 6}}, TopChannels(stats, 1))
}

func TestFormatted(t *testing.T) {
	assert := assert.New(t)

	assert.Equal("No hits recorded.", Formatted(nil))

	out := Formatted(map[string]map[string]int64{"-100111": {"spam": 2}})
	assert.Contains(out, "Hits: 2 across 1 channels (1 terms)")
	assert.Contains(out, `-100111 / "spam": 2`)
}
