package session

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/termwatch/termwatch/store"
)

func TestConnectAllPerAccountStatus(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	good := NewFakeClient()
	unauth := NewFakeClient()
	unauth.AuthorizedResult = false
	broken := NewFakeClient()
	broken.ConnectErr = errors.New("dial timeout")

	pool := NewPool(nil, FakeFactory(map[string]*FakeClient{
		"a1": good,
		"a2": unauth,
		"a3": broken,
	}))

	results := pool.ConnectAll(ctx, []store.Account{{ID: "a1"}, {ID: "a2"}, {ID: "a3"}})
	require.Len(t, results, 3)

	byID := map[string]ConnectResult{}
	for _, r := range results {
		byID[r.AccountID] = r
	}
	assert.Equal(StatusConnected, byID["a1"].Status)
	assert.Equal(StatusAuthRequired, byID["a2"].Status)
	assert.Equal(StatusError, byID["a3"].Status)
	assert.Error(byID["a3"].Err)

	// one bad account never blocks the others
	_, ok := pool.Get("a1")
	assert.True(ok)
	_, ok = pool.Get("a3")
	assert.False(ok)
	assert.Len(pool.Connected(), 1)
}

func TestCursorForwardOnly(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	pool := NewPool(nil, FakeFactory(map[string]*FakeClient{"a1": NewFakeClient()}))
	pool.ConnectAll(ctx, []store.Account{{ID: "a1"}})

	s, ok := pool.Get("a1")
	assert.True(ok)

	assert.Equal(int64(0), s.Cursor("77"))
	s.AdvanceCursor("77", 10)
	assert.Equal(int64(10), s.Cursor("77"))
	s.AdvanceCursor("77", 5)
	assert.Equal(int64(10), s.Cursor("77"))
	s.AdvanceCursor("77", 12)
	assert.Equal(int64(12), s.Cursor("77"))
}

func TestDisconnectAllIdempotentAndClearsCursors(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	fake := NewFakeClient()
	pool := NewPool(nil, FakeFactory(map[string]*FakeClient{"a1": fake}))
	pool.ConnectAll(ctx, []store.Account{{ID: "a1"}})

	s, _ := pool.Get("a1")
	s.AdvanceCursor("77", 99)

	pool.DisconnectAll(ctx)
	assert.False(fake.Connected())
	assert.Equal(0, pool.Size())

	// second call is a no-op
	pool.DisconnectAll(ctx)

	// reconnecting starts with fresh cursor state
	pool.ConnectAll(ctx, []store.Account{{ID: "a1"}})
	s2, ok := pool.Get("a1")
	assert.True(ok)
	assert.Equal(int64(0), s2.Cursor("77"))
}

func TestReconnectSwapsClient(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()

	fake := NewFakeClient()
	pool := NewPool(nil, FakeFactory(map[string]*FakeClient{"a1": fake}))
	pool.ConnectAll(ctx, []store.Account{{ID: "a1"}})

	pool.MarkDisconnected("a1")
	s, _ := pool.Get("a1")
	assert.Equal(HealthDisconnected, s.Health())
	assert.Len(pool.Connected(), 0)

	require.NoError(pool.Reconnect(ctx, "a1"))
	assert.Equal(HealthConnected, s.Health())
	assert.Len(pool.Connected(), 1)
}

func TestReconnectAuthRequired(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	fake := NewFakeClient()
	pool := NewPool(nil, FakeFactory(map[string]*FakeClient{"a1": fake}))
	pool.ConnectAll(ctx, []store.Account{{ID: "a1"}})

	fake.AuthorizedResult = false
	pool.MarkDisconnected("a1")
	assert.ErrorIs(pool.Reconnect(ctx, "a1"), ErrAuthRequired)

	assert.ErrorIs(pool.Reconnect(ctx, "nope"), ErrNoSession)
}

func TestWebsocketURLForHost(t *testing.T) {
	assert := assert.New(t)

	assert.Equal("wss://gw.example.com", WebsocketURLForHost("https://gw.example.com"))
	assert.Equal("ws://localhost:8080", WebsocketURLForHost("http://localhost:8080"))
	assert.Equal("wss://gw.example.com", WebsocketURLForHost("wss://gw.example.com"))
	assert.Equal("wss://gw.example.com", WebsocketURLForHost("gw.example.com"))
}
