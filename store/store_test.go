package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/termwatch/termwatch/channel"
)

func TestMemStoreRoundtrip(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()

	s := NewMemStore()

	require.NoError(s.AddAccount(ctx, Account{ID: "acct1", Phone: "+15550001111"}))
	require.NoError(s.AddAccount(ctx, Account{ID: "acct1"})) // duplicate is a no-op
	require.NoError(s.AddChannel(ctx, channel.Ref("-1001234567890")))
	require.NoError(s.AddChannel(ctx, channel.Ref("@channel1")))
	require.NoError(s.AddTerms(ctx, []string{"spam", "casino", "spam", ""}))
	require.NoError(s.SetMode(ctx, ModeRun))

	snap, err := s.Read(ctx)
	require.NoError(err)
	assert.Len(snap.Accounts, 1)
	assert.Equal("+15550001111", snap.Accounts[0].Phone)
	assert.Equal([]channel.Ref{"-1001234567890", "@channel1"}, snap.Channels)
	assert.Equal([]string{"spam", "casino"}, snap.Terms)
	assert.Equal(ModeRun, snap.Mode)
}

func TestMemStoreSnapshotIsolation(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	s := NewMemStore()
	assert.NoError(s.AddTerms(ctx, []string{"spam"}))

	snap, err := s.Read(ctx)
	assert.NoError(err)
	snap.Terms[0] = "mutated"

	snap2, err := s.Read(ctx)
	assert.NoError(err)
	assert.Equal([]string{"spam"}, snap2.Terms)
}

func TestMemStoreStats(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	s := NewMemStore()
	assert.NoError(s.AddChannel(ctx, channel.Ref("-1001234567890")))
	assert.NoError(s.IncrementStat(ctx, "-1001234567890", "spam"))
	assert.NoError(s.IncrementStat(ctx, "-1001234567890", "spam"))
	assert.NoError(s.IncrementStat(ctx, "-1001234567890", "casino"))

	snap, err := s.Read(ctx)
	assert.NoError(err)
	assert.Equal(int64(2), snap.Stats["-1001234567890"]["spam"])
	assert.Equal(int64(1), snap.Stats["-1001234567890"]["casino"])

	assert.NoError(s.ClearStats(ctx))
	snap, err = s.Read(ctx)
	assert.NoError(err)
	assert.Empty(snap.Stats)
}

func TestMemStoreRemoveChannelDropsStats(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	s := NewMemStore()
	assert.NoError(s.AddChannel(ctx, channel.Ref("77")))
	assert.NoError(s.IncrementStat(ctx, "77", "spam"))
	assert.NoError(s.RemoveChannel(ctx, channel.Ref("77")))

	snap, err := s.Read(ctx)
	assert.NoError(err)
	assert.Empty(snap.Channels)
	assert.Empty(snap.Stats)
}

func TestMemStoreRemoveTerms(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	s := NewMemStore()
	assert.NoError(s.AddTerms(ctx, []string{"spam", "casino", "crypto"}))
	assert.NoError(s.RemoveTerms(ctx, []string{"casino", "nope"}))

	snap, err := s.Read(ctx)
	assert.NoError(err)
	assert.Equal([]string{"spam", "crypto"}, snap.Terms)
}

func TestMemStoreTermsCanonicalForm(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	s := NewMemStore()
	assert.NoError(s.AddTerms(ctx, []string{"Spam", "spam", " CASINO ", "  "}))

	snap, err := s.Read(ctx)
	assert.NoError(err)
	assert.Equal([]string{"spam", "casino"}, snap.Terms)

	// removal matches regardless of entry casing
	assert.NoError(s.RemoveTerms(ctx, []string{"SPAM"}))
	snap, err = s.Read(ctx)
	assert.NoError(err)
	assert.Equal([]string{"casino"}, snap.Terms)
}

func TestNormalizeTerm(t *testing.T) {
	assert := assert.New(t)

	assert.Equal("spam", NormalizeTerm(" Spam "))
	assert.Equal("казино", NormalizeTerm("КАЗИНО"))
	assert.Equal("", NormalizeTerm("   "))
}

func TestParseMode(t *testing.T) {
	assert := assert.New(t)

	m, err := ParseMode("run")
	assert.NoError(err)
	assert.Equal(ModeRun, m)

	_, err = ParseMode("dry")
	assert.Error(err)

	s := NewMemStore()
	assert.Error(s.SetMode(context.Background(), Mode("bogus")))
}
