package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateWindowHourlyCap(t *testing.T) {
	assert := assert.New(t)

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	w := NewRateWindow(RateLimits{PerHour: 10, PerDay: 50})
	w.now = func() time.Time { return now }

	for i := 0; i < 10; i++ {
		assert.True(w.Allow("acct-1"), "dispatch %d should be allowed", i)
		w.Record("acct-1")
	}
	assert.False(w.Allow("acct-1"))

	hourly, daily := w.Counts("acct-1")
	assert.Equal(10, hourly)
	assert.Equal(10, daily)

	// an hour later the hourly window has drained but the daily one has not
	now = now.Add(61 * time.Minute)
	assert.True(w.Allow("acct-1"))
	hourly, daily = w.Counts("acct-1")
	assert.Equal(0, hourly)
	assert.Equal(10, daily)
}

func TestRateWindowDailyCap(t *testing.T) {
	assert := assert.New(t)

	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	w := NewRateWindow(RateLimits{PerHour: 10, PerDay: 50})
	w.now = func() time.Time { return now }

	// 10 per hour across 5 hours exhausts the daily budget
	for hour := 0; hour < 5; hour++ {
		for i := 0; i < 10; i++ {
			assert.True(w.Allow("acct-1"))
			w.Record("acct-1")
		}
		now = now.Add(time.Hour)
	}
	assert.False(w.Allow("acct-1"))

	// another account is unaffected
	assert.True(w.Allow("acct-2"))

	// a full day later everything has aged out
	now = now.Add(24 * time.Hour)
	assert.True(w.Allow("acct-1"))
	hourly, daily := w.Counts("acct-1")
	assert.Zero(hourly)
	assert.Zero(daily)
}

func TestRateWindowPrunesOldHistory(t *testing.T) {
	assert := assert.New(t)

	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	w := NewRateWindow(DefaultRateLimits)
	w.now = func() time.Time { return now }

	w.Record("acct-1")
	now = now.Add(25 * time.Hour)
	_, daily := w.Counts("acct-1")
	assert.Zero(daily)

	w.lk.Lock()
	_, present := w.history["acct-1"]
	w.lk.Unlock()
	assert.False(present)
}

func TestRateWindowDefaults(t *testing.T) {
	w := NewRateWindow(RateLimits{})
	assert.Equal(t, DefaultRateLimits, w.Limits())
}
