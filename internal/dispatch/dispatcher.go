// Package dispatch batches unresolved devices into oracle requests and
// shields the oracle behind the shared rate limiter, the response cache,
// and in-flight request coalescing. Every failure mode maps to a
// conservative degraded verdict; dispatch never returns an error to the
// pipeline.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/moolen/faultline/internal/config"
	"github.com/moolen/faultline/internal/logging"
	"github.com/moolen/faultline/internal/metrics"
	"github.com/moolen/faultline/internal/models"
	"github.com/moolen/faultline/internal/oracle"
	"github.com/moolen/faultline/internal/ratelimit"
	"golang.org/x/sync/singleflight"
)

// Probability assigned to fallback outcomes. Fallbacks stay low so they
// rank below genuine rule and oracle hits.
const (
	fallbackConfidence = 0.3
	errorConfidence    = 0.2

	impactUnknown = "UNKNOWN"
	impactError   = "AI_ERROR"
)

// Dispatcher groups devices into batches and resolves each batch through
// the cache or the oracle client.
type Dispatcher struct {
	client  oracle.Client
	limiter *ratelimit.Limiter
	cache   *ratelimit.Cache

	oracleCfg config.OracleConfig
	batchCfg  config.BatchConfig

	waitTimeout time.Duration

	group   singleflight.Group
	metrics *metrics.Metrics
	logger  *logging.Logger

	// sleep is replaceable for backoff tests
	sleep func(time.Duration)
}

// New creates a dispatcher. A nil client means no credential is available;
// every device then receives the manual-analysis fallback without any
// oracle traffic. Metrics may be nil.
func New(client oracle.Client, limiter *ratelimit.Limiter, cache *ratelimit.Cache, cfg *config.Config, m *metrics.Metrics) *Dispatcher {
	if m == nil {
		m = metrics.NewNop()
	}
	return &Dispatcher{
		client:      client,
		limiter:     limiter,
		cache:       cache,
		oracleCfg:   cfg.Oracle,
		batchCfg:    cfg.Batch,
		waitTimeout: cfg.RateLimit.WaitTimeout(),
		metrics:     m,
		logger:      logging.GetLogger("dispatch"),
		sleep:       time.Sleep,
	}
}

// Classify resolves verdicts for all given devices. The returned map
// contains exactly one entry per input device.
func (d *Dispatcher) Classify(ctx context.Context, devices []oracle.DeviceEvidence) map[string]models.Result {
	if len(devices) == 0 {
		return map[string]models.Result{}
	}

	if d.client == nil {
		d.logger.Warn("no oracle credential configured, degrading %d devices", len(devices))
		return d.degraded(devices, "API key not configured. Manual analysis required.",
			impactUnknown, fallbackConfidence)
	}

	// sorted order makes chunking and cache keys deterministic
	sorted := make([]oracle.DeviceEvidence, len(devices))
	copy(sorted, devices)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].DeviceID < sorted[j].DeviceID })

	results := make(map[string]models.Result, len(sorted))
	for start := 0; start < len(sorted); start += d.batchCfg.MaxBatchSize {
		end := start + d.batchCfg.MaxBatchSize
		if end > len(sorted) {
			end = len(sorted)
		}
		for id, res := range d.processBatch(ctx, sorted[start:end]) {
			results[id] = res
		}
	}
	return results
}

// processBatch resolves one batch, splitting it when the serialized
// payload exceeds the input budget.
func (d *Dispatcher) processBatch(ctx context.Context, batch []oracle.DeviceEvidence) map[string]models.Result {
	payload, err := json.Marshal(batch)
	if err != nil {
		// cannot happen with these types, but degrade rather than panic
		return d.degraded(batch, fmt.Sprintf("Analysis failed: %v", err), impactError, errorConfidence)
	}

	limit := int(float64(d.batchCfg.MaxInputBytes) * d.batchCfg.InputSafetyMargin)
	if len(payload) > limit {
		if len(batch) == 1 {
			d.logger.Warn("evidence for %s exceeds input limit (%d > %d bytes)",
				batch[0].DeviceID, len(payload), limit)
			return d.degraded(batch, "Evidence exceeds input size limit. Manual analysis required.",
				impactUnknown, fallbackConfidence)
		}
		d.logger.Info("batch payload too large (%d > %d bytes), splitting %d devices",
			len(payload), limit, len(batch))
		mid := len(batch) / 2
		results := d.processBatch(ctx, batch[:mid])
		for id, res := range d.processBatch(ctx, batch[mid:]) {
			results[id] = res
		}
		return results
	}

	key := ratelimit.BatchKey(payload)

	if cached := d.cache.Get(key); cached != nil {
		d.metrics.CacheHitsTotal.Inc()
		d.logger.Debug("cache hit for batch of %d devices", len(batch))
		results := make(map[string]models.Result, len(cached))
		for id, res := range cached {
			res.Source = models.SourceCache
			results[id] = res
		}
		return results
	}
	d.metrics.CacheMissesTotal.Inc()

	// coalesce concurrent identical batches into one oracle call
	v, _, _ := d.group.Do(key, func() (interface{}, error) {
		return d.callOracle(ctx, key, batch), nil
	})
	return v.(map[string]models.Result)
}

// callOracle performs the rate-limited, retried oracle request for one
// batch and caches successful answers.
func (d *Dispatcher) callOracle(ctx context.Context, key string, batch []oracle.DeviceEvidence) map[string]models.Result {
	if d.limiter.Stats().Available == 0 {
		d.metrics.RateLimitWaitsTotal.Inc()
	}

	waitCtx, cancel := context.WithTimeout(ctx, d.waitTimeout)
	defer cancel()
	if !d.limiter.Acquire(waitCtx) {
		return d.degraded(batch, "Analysis failed: rate limit exceeded.", impactError, errorConfidence)
	}

	d.metrics.OracleBatchSize.Observe(float64(len(batch)))

	verdicts, err := d.classifyWithRetry(ctx, batch)
	if err != nil {
		d.logger.ErrorWithErr("oracle classification failed for batch of %d devices", err, len(batch))
		return d.degraded(batch, fmt.Sprintf("Analysis failed: %v", err), impactError, errorConfidence)
	}

	results := make(map[string]models.Result, len(batch))
	known := make(map[string]bool, len(batch))
	for _, dev := range batch {
		known[dev.DeviceID] = true
	}
	for _, v := range verdicts {
		if !known[v.DeviceID] {
			continue
		}
		status := models.Status(v.Status)
		results[v.DeviceID] = models.Result{
			DeviceID:    v.DeviceID,
			Status:      status,
			Reason:      v.Reason,
			ImpactType:  v.ImpactType,
			Probability: status.Probability(),
			Source:      models.SourceOracle,
		}
	}

	// devices the oracle did not answer for get a conservative fallback
	for _, dev := range batch {
		if _, ok := results[dev.DeviceID]; ok {
			continue
		}
		d.metrics.DegradedTotal.Inc()
		results[dev.DeviceID] = models.Result{
			DeviceID:    dev.DeviceID,
			Status:      models.StatusWarning,
			Reason:      "No analysis result from oracle.",
			ImpactType:  impactUnknown,
			Probability: fallbackConfidence,
			Source:      models.SourceDegraded,
		}
	}

	d.cache.Put(key, results)
	d.logger.Info("oracle classified %d devices", len(results))
	return results
}

// classifyWithRetry issues the request, retrying transient failures with
// capped exponential backoff. Each attempt consumes budget.
func (d *Dispatcher) classifyWithRetry(ctx context.Context, batch []oracle.DeviceEvidence) ([]oracle.DeviceVerdict, error) {
	req := oracle.Request{Devices: batch}

	var lastErr error
	for attempt := 0; attempt <= d.oracleCfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := d.oracleCfg.RetryBaseDelay() << (attempt - 1)
			if ceil := d.oracleCfg.RetryMaxDelay(); delay > ceil {
				delay = ceil
			}
			d.logger.Info("retrying oracle call in %.1fs (attempt %d/%d)",
				delay.Seconds(), attempt, d.oracleCfg.MaxRetries)
			d.sleep(delay)
		}

		d.limiter.Record()
		d.metrics.OracleCallsTotal.Inc()

		verdicts, err := d.client.Classify(ctx, req)
		if err == nil {
			return verdicts, nil
		}
		lastErr = err

		var oerr *oracle.Error
		if errors.As(err, &oerr) {
			d.metrics.OracleErrorsTotal.WithLabelValues(string(oerr.Kind)).Inc()
			if !oerr.Transient() {
				return nil, err
			}
		} else {
			d.metrics.OracleErrorsTotal.WithLabelValues("unknown").Inc()
		}

		if ctx.Err() != nil {
			return nil, lastErr
		}
	}
	return nil, lastErr
}

// degraded produces the fallback verdict for every device in batch.
func (d *Dispatcher) degraded(batch []oracle.DeviceEvidence, reason, impact string, confidence float64) map[string]models.Result {
	results := make(map[string]models.Result, len(batch))
	for _, dev := range batch {
		d.metrics.DegradedTotal.Inc()
		results[dev.DeviceID] = models.Result{
			DeviceID:    dev.DeviceID,
			Status:      models.StatusWarning,
			Reason:      reason,
			ImpactType:  impact,
			Probability: confidence,
			Source:      models.SourceDegraded,
		}
	}
	return results
}
