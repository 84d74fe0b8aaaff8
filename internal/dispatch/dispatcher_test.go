package dispatch

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/moolen/faultline/internal/config"
	"github.com/moolen/faultline/internal/models"
	"github.com/moolen/faultline/internal/oracle"
	"github.com/moolen/faultline/internal/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDispatcher(t *testing.T, client oracle.Client, mutate func(*config.Config)) (*Dispatcher, *ratelimit.Limiter) {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Oracle.RetryBaseDelaySeconds = 0.001
	if mutate != nil {
		mutate(cfg)
	}

	limiter := ratelimit.NewLimiter(cfg.RateLimit)
	cache, err := ratelimit.NewCache(cfg.RateLimit)
	require.NoError(t, err)

	d := New(client, limiter, cache, cfg, nil)
	d.sleep = func(time.Duration) {}
	return d, limiter
}

func devices(ids ...string) []oracle.DeviceEvidence {
	out := make([]oracle.DeviceEvidence, 0, len(ids))
	for _, id := range ids {
		out = append(out, oracle.DeviceEvidence{
			DeviceID: id,
			Messages: []string{"interface GigabitEthernet0/1 link down"},
		})
	}
	return out
}

func TestClassifyWithoutCredential(t *testing.T) {
	d, _ := newTestDispatcher(t, nil, nil)

	results := d.Classify(context.Background(), devices("sw-01", "sw-02"))
	require.Len(t, results, 2)
	for _, res := range results {
		assert.Equal(t, models.StatusWarning, res.Status)
		assert.Equal(t, models.SourceDegraded, res.Source)
		assert.Equal(t, 0.3, res.Probability)
		assert.Contains(t, res.Reason, "API key not configured")
	}
}

func TestClassifyEmptyInput(t *testing.T) {
	mock := &oracle.MockClient{}
	d, _ := newTestDispatcher(t, mock, nil)

	results := d.Classify(context.Background(), nil)
	assert.Empty(t, results)
	assert.Equal(t, 0, mock.Calls())
}

func TestClassifyBatchesAndMapsVerdicts(t *testing.T) {
	mock := &oracle.MockClient{Verdicts: map[string]oracle.DeviceVerdict{
		"sw-01": {DeviceID: "sw-01", Status: "CRITICAL", Reason: "outage", ImpactType: "OUTAGE"},
		"sw-02": {DeviceID: "sw-02", Status: "WARNING", Reason: "redundancy lost", ImpactType: "REDUNDANCY_LOST"},
		"sw-03": {DeviceID: "sw-03", Status: "NORMAL", Reason: "ok", ImpactType: "NONE"},
		"sw-04": {DeviceID: "sw-04", Status: "NORMAL", Reason: "ok", ImpactType: "NONE"},
		"sw-05": {DeviceID: "sw-05", Status: "NORMAL", Reason: "ok", ImpactType: "NONE"},
		"sw-06": {DeviceID: "sw-06", Status: "WARNING", Reason: "degraded", ImpactType: "DEGRADED"},
	}}
	d, _ := newTestDispatcher(t, mock, nil)

	// seven devices with batch size five means two oracle calls
	results := d.Classify(context.Background(), devices("sw-03", "sw-01", "sw-07", "sw-05", "sw-02", "sw-06", "sw-04"))
	require.Len(t, results, 7)
	assert.Equal(t, 2, mock.Calls())

	assert.Equal(t, models.StatusCritical, results["sw-01"].Status)
	assert.Equal(t, models.SourceOracle, results["sw-01"].Source)
	assert.Equal(t, 0.9, results["sw-01"].Probability)
	assert.Equal(t, 0.7, results["sw-02"].Probability)
	assert.Equal(t, 0.3, results["sw-03"].Probability)

	// sw-07 had no verdict in the response
	assert.Equal(t, models.SourceDegraded, results["sw-07"].Source)
	assert.Equal(t, "No analysis result from oracle.", results["sw-07"].Reason)
	assert.Equal(t, 0.3, results["sw-07"].Probability)

	// batches are chunked in sorted device order
	reqs := mock.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, "sw-01", reqs[0].Devices[0].DeviceID)
	assert.Len(t, reqs[0].Devices, 5)
	assert.Len(t, reqs[1].Devices, 2)
}

func TestClassifyServesRepeatFromCache(t *testing.T) {
	mock := &oracle.MockClient{Verdicts: map[string]oracle.DeviceVerdict{
		"sw-01": {DeviceID: "sw-01", Status: "CRITICAL", Reason: "outage", ImpactType: "OUTAGE"},
	}}
	d, _ := newTestDispatcher(t, mock, nil)

	first := d.Classify(context.Background(), devices("sw-01"))
	require.Equal(t, models.SourceOracle, first["sw-01"].Source)
	require.Equal(t, 1, mock.Calls())

	second := d.Classify(context.Background(), devices("sw-01"))
	assert.Equal(t, models.SourceCache, second["sw-01"].Source)
	assert.Equal(t, models.StatusCritical, second["sw-01"].Status)
	assert.Equal(t, 1, mock.Calls())
}

func TestClassifySplitsOversizedBatch(t *testing.T) {
	mock := &oracle.MockClient{Verdicts: map[string]oracle.DeviceVerdict{
		"sw-01": {DeviceID: "sw-01", Status: "NORMAL", Reason: "ok", ImpactType: "NONE"},
		"sw-02": {DeviceID: "sw-02", Status: "NORMAL", Reason: "ok", ImpactType: "NONE"},
		"sw-03": {DeviceID: "sw-03", Status: "NORMAL", Reason: "ok", ImpactType: "NONE"},
		"sw-04": {DeviceID: "sw-04", Status: "NORMAL", Reason: "ok", ImpactType: "NONE"},
	}}
	d, _ := newTestDispatcher(t, mock, func(cfg *config.Config) {
		// effective limit of 200 bytes fits two devices but not four
		cfg.Batch.MaxInputBytes = 2000
		cfg.Batch.InputSafetyMargin = 0.1
	})

	results := d.Classify(context.Background(), devices("sw-01", "sw-02", "sw-03", "sw-04"))
	require.Len(t, results, 4)
	assert.Equal(t, 2, mock.Calls())
	for _, req := range mock.Requests() {
		assert.LessOrEqual(t, len(req.Devices), 2)
	}
}

func TestClassifyDegradesOversizedSingleDevice(t *testing.T) {
	mock := &oracle.MockClient{}
	d, _ := newTestDispatcher(t, mock, func(cfg *config.Config) {
		cfg.Batch.MaxInputBytes = 1024
		cfg.Batch.InputSafetyMargin = 0.3
	})

	huge := []oracle.DeviceEvidence{{
		DeviceID: "core-01",
		Messages: []string{strings.Repeat("syslog flood entry ", 100)},
	}}
	results := d.Classify(context.Background(), huge)

	require.Len(t, results, 1)
	assert.Equal(t, models.SourceDegraded, results["core-01"].Source)
	assert.Contains(t, results["core-01"].Reason, "input size limit")
	assert.Equal(t, 0, mock.Calls())
}

func TestClassifyRetriesTransientErrors(t *testing.T) {
	mock := &oracle.MockClient{
		Verdicts: map[string]oracle.DeviceVerdict{
			"sw-01": {DeviceID: "sw-01", Status: "WARNING", Reason: "degraded", ImpactType: "DEGRADED"},
		},
		Errs: []error{&oracle.Error{Kind: oracle.KindUnavailable, Err: assert.AnError}},
	}
	d, _ := newTestDispatcher(t, mock, nil)

	results := d.Classify(context.Background(), devices("sw-01"))
	require.Len(t, results, 1)
	assert.Equal(t, models.SourceOracle, results["sw-01"].Source)
	assert.Equal(t, 2, mock.Calls())
}

func TestClassifyDoesNotRetryAuthErrors(t *testing.T) {
	mock := &oracle.MockClient{
		Errs: []error{
			&oracle.Error{Kind: oracle.KindAuth, Err: assert.AnError},
			&oracle.Error{Kind: oracle.KindAuth, Err: assert.AnError},
		},
	}
	d, _ := newTestDispatcher(t, mock, nil)

	results := d.Classify(context.Background(), devices("sw-01"))
	require.Len(t, results, 1)
	assert.Equal(t, models.SourceDegraded, results["sw-01"].Source)
	assert.Equal(t, 0.2, results["sw-01"].Probability)
	assert.Equal(t, "AI_ERROR", results["sw-01"].ImpactType)
	assert.Contains(t, results["sw-01"].Reason, "Analysis failed")
	assert.Equal(t, 1, mock.Calls())
}

func TestClassifyExhaustedRetriesDegrade(t *testing.T) {
	transient := &oracle.Error{Kind: oracle.KindUnavailable, Err: assert.AnError}
	mock := &oracle.MockClient{
		Errs: []error{transient, transient, transient, transient},
	}
	d, _ := newTestDispatcher(t, mock, nil)

	results := d.Classify(context.Background(), devices("sw-01"))
	require.Len(t, results, 1)
	assert.Equal(t, models.SourceDegraded, results["sw-01"].Source)
	// initial attempt plus MaxRetries
	assert.Equal(t, 4, mock.Calls())
}

// blockingClient parks the first Classify call until released so callers
// with the same batch can pile up behind the in-flight request.
type blockingClient struct {
	mu      sync.Mutex
	calls   int
	entered chan struct{}
	release chan struct{}
}

func (c *blockingClient) Classify(_ context.Context, req oracle.Request) ([]oracle.DeviceVerdict, error) {
	c.mu.Lock()
	c.calls++
	first := c.calls == 1
	c.mu.Unlock()

	if first {
		close(c.entered)
		<-c.release
	}

	out := make([]oracle.DeviceVerdict, 0, len(req.Devices))
	for _, dev := range req.Devices {
		out = append(out, oracle.DeviceVerdict{DeviceID: dev.DeviceID, Status: "NORMAL", Reason: "ok", ImpactType: "NONE"})
	}
	return out, nil
}

func (c *blockingClient) Name() string  { return "blocking" }
func (c *blockingClient) Model() string { return "mock-model" }

func (c *blockingClient) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func TestClassifyCoalescesConcurrentIdenticalBatches(t *testing.T) {
	client := &blockingClient{
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	d, _ := newTestDispatcher(t, client, nil)

	const callers = 8
	results := make([]map[string]models.Result, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = d.Classify(context.Background(), devices("sw-01"))
		}(i)
	}

	// hold the first caller inside the oracle until the rest had time to
	// reach the coalescing point, then let it finish
	<-client.entered
	time.Sleep(50 * time.Millisecond)
	close(client.release)
	wg.Wait()

	assert.Equal(t, 1, client.Calls())
	for i := 0; i < callers; i++ {
		require.Len(t, results[i], 1, i)
		assert.Equal(t, models.StatusNormal, results[i]["sw-01"].Status, i)
	}
}

func TestClassifyDegradesWhenRateLimitExhausted(t *testing.T) {
	mock := &oracle.MockClient{}
	d, limiter := newTestDispatcher(t, mock, func(cfg *config.Config) {
		cfg.RateLimit.RPM = 2
		cfg.RateLimit.SafetyMargin = 1.0
		cfg.RateLimit.WaitTimeoutSeconds = 0.05
	})

	limiter.Record()
	limiter.Record()

	results := d.Classify(context.Background(), devices("sw-01"))
	require.Len(t, results, 1)
	assert.Equal(t, models.SourceDegraded, results["sw-01"].Source)
	assert.Contains(t, results["sw-01"].Reason, "rate limit exceeded")
	assert.Equal(t, 0, mock.Calls())
}
