package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/moolen/faultline/internal/config"
	"github.com/moolen/faultline/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRateLimitConfig() config.RateLimitConfig {
	return config.RateLimitConfig{
		RPM:                30,
		RPD:                14400,
		SafetyMargin:       0.9,
		WaitTimeoutSeconds: 120,
		CacheTTLSeconds:    3600,
		CacheSize:          16,
	}
}

func TestLimiterAcquireUnderLimit(t *testing.T) {
	l := NewLimiter(testRateLimitConfig())

	for i := 0; i < 10; i++ {
		assert.True(t, l.Acquire(context.Background()))
		l.Record()
	}

	stats := l.Stats()
	assert.Equal(t, 10, stats.WindowCount)
	assert.Equal(t, 10, stats.DailyCount)
	assert.Equal(t, 17, stats.Available)
}

func TestLimiterBlocksAtEffectiveLimit(t *testing.T) {
	// RPM 30 with margin 0.9 yields 27 usable slots. The 28th caller
	// must wait, and with an expired context it gives up.
	l := NewLimiter(testRateLimitConfig())

	base := time.Now()
	l.now = func() time.Time { return base }

	for i := 0; i < 27; i++ {
		require.True(t, l.Acquire(context.Background()))
		l.Record()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.False(t, l.Acquire(ctx))
}

func TestLimiterWindowExpiry(t *testing.T) {
	l := NewLimiter(testRateLimitConfig())

	base := time.Now()
	now := base
	l.now = func() time.Time { return now }

	for i := 0; i < 27; i++ {
		l.Record()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	assert.False(t, l.Acquire(ctx))
	cancel()

	// once the window rolls past the recorded requests a slot frees up
	now = base.Add(61 * time.Second)
	assert.True(t, l.Acquire(context.Background()))

	stats := l.Stats()
	assert.Equal(t, 0, stats.WindowCount)
	assert.Equal(t, 27, stats.DailyCount)
}

func TestLimiterDailyBudget(t *testing.T) {
	cfg := testRateLimitConfig()
	cfg.RPD = 10
	l := NewLimiter(cfg)

	base := time.Now()
	now := base
	l.now = func() time.Time { return now }

	// effective daily budget is 9; exhaust it across rolled windows
	for i := 0; i < 9; i++ {
		l.Record()
	}
	now = base.Add(2 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.False(t, l.Acquire(ctx))

	// daily counter resets after 24h
	now = base.Add(25 * time.Hour)
	assert.True(t, l.Acquire(context.Background()))
	assert.Equal(t, 0, l.Stats().DailyCount)
}

func TestCachePutGet(t *testing.T) {
	c, err := NewCache(testRateLimitConfig())
	require.NoError(t, err)

	results := map[string]models.Result{
		"sw-01": {DeviceID: "sw-01", Status: models.StatusCritical, Probability: 0.9},
	}
	key := BatchKey([]byte(`[{"device_id":"sw-01"}]`))
	c.Put(key, results)

	got := c.Get(key)
	require.NotNil(t, got)
	assert.Equal(t, models.StatusCritical, got["sw-01"].Status)

	assert.Nil(t, c.Get(BatchKey([]byte("other"))))

	stats := c.Stats()
	assert.Equal(t, 1, stats.Entries)
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
}

func TestCacheExpiry(t *testing.T) {
	cfg := testRateLimitConfig()
	cfg.CacheTTLSeconds = 60
	c, err := NewCache(cfg)
	require.NoError(t, err)

	base := time.Now()
	now := base
	c.now = func() time.Time { return now }

	key := BatchKey([]byte("payload"))
	c.Put(key, map[string]models.Result{"r1": {DeviceID: "r1"}})
	require.NotNil(t, c.Get(key))

	now = base.Add(61 * time.Second)
	assert.Nil(t, c.Get(key))
	assert.Equal(t, 0, c.Stats().Entries)
}

func TestBatchKeyDeterministic(t *testing.T) {
	a := BatchKey([]byte(`[{"device_id":"a"},{"device_id":"b"}]`))
	b := BatchKey([]byte(`[{"device_id":"a"},{"device_id":"b"}]`))
	other := BatchKey([]byte(`[{"device_id":"b"},{"device_id":"a"}]`))

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, other)
	assert.Len(t, a, 64)
}
