package queue

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/termwatch/termwatch/match"
)

type captureNotifier struct {
	lk    sync.Mutex
	texts []string
}

func (c *captureNotifier) Notify(ctx context.Context, text string) error {
	c.lk.Lock()
	defer c.lk.Unlock()
	c.texts = append(c.texts, text)
	return nil
}

func (c *captureNotifier) all() []string {
	c.lk.Lock()
	defer c.lk.Unlock()
	return append([]string{}, c.texts...)
}

type captureDispatcher struct {
	lk    sync.Mutex
	calls []string
	err   error
}

func (d *captureDispatcher) dispatch(ctx context.Context, accountID, chatID string, messageID int64) error {
	d.lk.Lock()
	defer d.lk.Unlock()
	if d.err != nil {
		return d.err
	}
	d.calls = append(d.calls, fmt.Sprintf("%s/%s/%d", accountID, chatID, messageID))
	return nil
}

func (d *captureDispatcher) count() int {
	d.lk.Lock()
	defer d.lk.Unlock()
	return len(d.calls)
}

func newTestQueue(cfg Config, disp *captureDispatcher, notif *captureNotifier) *Queue {
	q := New(nil, cfg, disp.dispatch, notif)
	q.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return q
}

func hitFor(chatID string, msgID int64) match.Hit {
	return match.Hit{Channel: "-1001234567890", ChatID: chatID, Term: "casino", MessageID: msgID}
}

func TestEnqueueAndDispatch(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	disp := &captureDispatcher{}
	notif := &captureNotifier{}
	q := newTestQueue(Config{}, disp, notif)

	assert.Equal(OutcomeQueued, q.Enqueue(ctx, "acct-1", hitFor("-1001234567890", 42)))
	assert.Equal(1, q.Status().QueueLength)

	q.processOne(ctx)

	assert.Equal([]string{"acct-1/-1001234567890/42"}, disp.calls)
	st := q.Status()
	assert.Zero(st.QueueLength)
	assert.Equal(1, st.Accounts["acct-1"].ReportsThisHour)
	assert.Equal(1, st.Accounts["acct-1"].ReportsToday)
	assert.True(st.Accounts["acct-1"].CanSendMore)
}

func TestEnqueueDuplicateAbsorbed(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	disp := &captureDispatcher{}
	q := newTestQueue(Config{}, disp, &captureNotifier{})

	assert.Equal(OutcomeQueued, q.Enqueue(ctx, "acct-1", hitFor("-100555", 7)))
	// same message observed again via the poll path
	assert.Equal(OutcomeDuplicate, q.Enqueue(ctx, "acct-1", hitFor("-100555", 7)))
	assert.Equal(1, q.Status().QueueLength)

	// a different account monitoring the same chat gets its own action
	assert.Equal(OutcomeQueued, q.Enqueue(ctx, "acct-2", hitFor("-100555", 7)))
	assert.Equal(2, q.Status().QueueLength)
}

func TestEnqueueDropsAtCap(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	disp := &captureDispatcher{}
	notif := &captureNotifier{}
	q := newTestQueue(Config{Limits: RateLimits{PerHour: 2, PerDay: 50}}, disp, notif)

	q.rates.Record("acct-1")
	q.rates.Record("acct-1")

	assert.Equal(OutcomeDropped, q.Enqueue(ctx, "acct-1", hitFor("-100555", 1)))
	assert.Zero(q.Status().QueueLength)
	require.NotEmpty(t, notif.all())
	assert.Contains(notif.all()[0], "budget exceeded")

	st := q.Status()
	assert.False(st.Accounts["acct-1"].CanSendMore)
}

func TestDispatchRevalidatesBudget(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	disp := &captureDispatcher{}
	notif := &captureNotifier{}
	q := newTestQueue(Config{Limits: RateLimits{PerHour: 1, PerDay: 50}}, disp, notif)

	// both admitted before any dispatch consumed the budget
	assert.Equal(OutcomeQueued, q.Enqueue(ctx, "acct-1", hitFor("-100555", 1)))
	assert.Equal(OutcomeQueued, q.Enqueue(ctx, "acct-1", hitFor("-100555", 2)))

	q.processOne(ctx)
	q.processOne(ctx)

	// only the first survives the dispatch-time check, and the drop is
	// surfaced to the operator
	assert.Equal(1, disp.count())
	assert.Zero(q.Status().QueueLength)

	dropped := false
	for _, text := range notif.all() {
		if strings.Contains(text, "dropped") {
			dropped = true
		}
	}
	assert.True(dropped)
}

func TestDispatchCompletesPastShutdown(t *testing.T) {
	assert := assert.New(t)

	ctx, cancel := context.WithCancel(context.Background())

	var dispatchCtxErr error
	q := New(nil, Config{}, func(dctx context.Context, accountID, chatID string, messageID int64) error {
		dispatchCtxErr = dctx.Err()
		return nil
	}, &captureNotifier{})
	// cancellation lands exactly as the jitter elapses
	q.sleep = func(c context.Context, d time.Duration) error {
		cancel()
		return nil
	}

	q.Enqueue(ctx, "acct-1", hitFor("-100555", 1))
	q.processOne(ctx)

	assert.NoError(dispatchCtxErr)
	assert.Equal(1, q.Status().Accounts["acct-1"].ReportsThisHour)
}

func TestDispatchExpiresStaleActions(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	disp := &captureDispatcher{}
	q := newTestQueue(Config{TTL: time.Hour}, disp, &captureNotifier{})

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	q.now = func() time.Time { return now }

	q.Enqueue(ctx, "acct-1", hitFor("-100555", 1))
	now = now.Add(2 * time.Hour)
	q.processOne(ctx)

	assert.Zero(disp.count())
	assert.Zero(q.Status().QueueLength)
}

func TestDispatchFailureIsTerminal(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	disp := &captureDispatcher{err: fmt.Errorf("session gone")}
	notif := &captureNotifier{}
	q := newTestQueue(Config{}, disp, notif)

	q.Enqueue(ctx, "acct-1", hitFor("-100555", 1))
	q.processOne(ctx)

	// the failed action is not retried and does not consume budget
	assert.Zero(q.Status().QueueLength)
	assert.Zero(q.Status().Accounts["acct-1"].ReportsThisHour)
	q.processOne(ctx)
	assert.Zero(disp.count())
}

func TestJitterBounds(t *testing.T) {
	assert := assert.New(t)

	q := newTestQueue(Config{DelayMin: 60 * time.Second, DelayMax: 180 * time.Second}, &captureDispatcher{}, &captureNotifier{})

	q.randF = func() float64 { return 0 }
	assert.Equal(60*time.Second, q.jitter())

	q.randF = func() float64 { return 0.5 }
	assert.Equal(120*time.Second, q.jitter())

	q.randF = func() float64 { return 0.999 }
	d := q.jitter()
	assert.GreaterOrEqual(d, 60*time.Second)
	assert.Less(d, 180*time.Second)
}

func TestStopAbandonsQueuedActions(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	disp := &captureDispatcher{}
	q := newTestQueue(Config{Tick: time.Hour}, disp, &captureNotifier{})

	q.Enqueue(ctx, "acct-1", hitFor("-100555", 1))
	q.Enqueue(ctx, "acct-1", hitFor("-100555", 2))

	q.Start(ctx)
	q.Stop()

	assert.Zero(q.Status().QueueLength)
	assert.Zero(disp.count())
}

func TestCapsNeverExceeded(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	disp := &captureDispatcher{}
	q := newTestQueue(Config{Limits: RateLimits{PerHour: 3, PerDay: 50}}, disp, &captureNotifier{})

	for i := int64(1); i <= 10; i++ {
		q.Enqueue(ctx, "acct-1", hitFor("-100555", i))
	}
	for i := 0; i < 10; i++ {
		q.processOne(ctx)
	}

	assert.Equal(3, disp.count())
	assert.Equal(3, q.Status().Accounts["acct-1"].ReportsThisHour)
}
