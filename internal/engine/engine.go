// Package engine orchestrates the root-cause analysis pipeline: evidence
// grouping, silent-failure and cascade suppression, local rule
// classification, oracle dispatch, and the final merge and ranking.
package engine

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/moolen/faultline/internal/config"
	"github.com/moolen/faultline/internal/dispatch"
	"github.com/moolen/faultline/internal/logging"
	"github.com/moolen/faultline/internal/metrics"
	"github.com/moolen/faultline/internal/models"
	"github.com/moolen/faultline/internal/oracle"
	"github.com/moolen/faultline/internal/rules"
	"github.com/moolen/faultline/internal/topology"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Suppression and suspicion probabilities. Suspects rank high; demoted
// downstream symptoms rank at the bottom.
const (
	silentFailureProb     = 0.8
	downstreamSymptomProb = 0.4
	unreachableProb       = 0.2

	impactSilentFailure  = "Network/SilentFailure"
	impactConnectionLost = "Network/ConnectionLost"
	impactUnreachable    = "Network/Unreachable"
)

// Engine runs analyses against a fixed topology. Safe for concurrent use;
// the only shared mutable state lives behind the dispatcher.
type Engine struct {
	graph      *topology.Graph
	classifier *rules.Classifier
	dispatcher *dispatch.Dispatcher

	suppression config.SuppressionConfig
	tiers       config.TierConfig

	metrics *metrics.Metrics
	logger  *logging.Logger
	tracer  trace.Tracer
}

// Report is the outcome of one analysis run.
type Report struct {
	AnalysisID string          `json:"analysis_id"`
	StartedAt  time.Time       `json:"started_at"`
	DurationMS int64           `json:"duration_ms"`
	Results    []models.Result `json:"results"`

	// Counts breaks results down by pipeline source
	Counts map[models.Source]int `json:"counts"`
}

// New creates an engine. Metrics may be nil.
func New(graph *topology.Graph, classifier *rules.Classifier, dispatcher *dispatch.Dispatcher, cfg *config.Config, m *metrics.Metrics) *Engine {
	if m == nil {
		m = metrics.NewNop()
	}
	return &Engine{
		graph:       graph,
		classifier:  classifier,
		dispatcher:  dispatcher,
		suppression: cfg.Suppression,
		tiers:       cfg.Tiers,
		metrics:     m,
		logger:      logging.GetLogger("engine"),
		tracer:      otel.Tracer("faultline/engine"),
	}
}

// Analyze classifies the given evidence set and returns the ranked
// root-cause candidates. Every device present in the evidence appears
// exactly once in the result; silent-failure suspects may add entries for
// devices without evidence of their own. Evidence entries missing a
// device id or message carry no classifiable signal and are excluded
// before grouping. Analyze never fails on account of the oracle; external
// failures degrade individual verdicts instead.
func (e *Engine) Analyze(ctx context.Context, evidence []models.Evidence) *Report {
	start := time.Now()
	analysisID := uuid.NewString()

	ctx, span := e.tracer.Start(ctx, "engine.analyze", trace.WithAttributes(
		attribute.String("analysis.id", analysisID),
		attribute.Int("evidence.count", len(evidence)),
	))
	defer span.End()

	e.metrics.AnalysesTotal.Inc()

	msgMap, deviceIDs := groupByDevice(evidence)
	e.logger.WithFields(
		logging.Field("analysis_id", analysisID),
		logging.Field("devices", len(deviceIDs)),
	).Info("analysis started: %d evidence messages", len(evidence))

	suspects := detectSilentFailures(e.graph, msgMap, e.suppression)

	var results []models.Result
	unresolved := make([]oracle.DeviceEvidence, 0)

	for _, deviceID := range deviceIDs {
		messages := msgMap[deviceID]
		parentID := e.graph.ParentID(deviceID)

		// downstream symptom of a suspected silent failure
		if _, ok := suspects[parentID]; ok && anyConnectionLoss(messages) {
			results = append(results, models.Result{
				DeviceID:    deviceID,
				Status:      models.StatusWarning,
				Reason:      "Downstream symptom of suspected parent failure (parent=" + parentID + ").",
				ImpactType:  impactConnectionLost,
				Probability: downstreamSymptomProb,
				Source:      models.SourceSuppression,
			})
			continue
		}

		// plain cascade: unreachable below an already-alarmed parent
		if _, parentAlarmed := msgMap[parentID]; parentAlarmed && anyUnreachable(messages) {
			results = append(results, models.Result{
				DeviceID:    deviceID,
				Status:      models.StatusWarning,
				Reason:      "Downstream unreachable due to upstream alarm (parent=" + parentID + ").",
				ImpactType:  impactUnreachable,
				Probability: unreachableProb,
				Source:      models.SourceSuppression,
			})
			continue
		}

		verdict, matched := e.classifier.Classify(rules.NewInput(deviceID, messages, e.graph.PSUCount(deviceID, 1)))
		if matched {
			results = append(results, models.Result{
				DeviceID:    deviceID,
				Status:      verdict.Status,
				Reason:      verdict.Reason,
				ImpactType:  verdict.ImpactType,
				Probability: verdict.Status.Probability(),
				Source:      models.SourceLocalRule,
			})
			continue
		}

		unresolved = append(unresolved, e.deviceEvidence(deviceID, messages))
	}

	// suspected parents enter the result set even without own evidence
	for _, parentID := range sortedKeys(suspects) {
		s := suspects[parentID]
		results = append(results, models.Result{
			DeviceID:    parentID,
			Status:      models.StatusWarning,
			Reason:      fmt.Sprintf("Silent failure suspected: %d/%d children affected.", s.EvidenceCount, s.TotalChildren),
			ImpactType:  impactSilentFailure,
			Probability: silentFailureProb,
			Source:      models.SourceSuppression,
			Report:      s.Report,
		})
	}

	if len(unresolved) > 0 {
		e.logger.Info("dispatching %d unresolved devices to oracle", len(unresolved))
		for _, res := range e.dispatcher.Classify(ctx, unresolved) {
			results = append(results, res)
		}
	}

	for i := range results {
		results[i].Tier = e.tier(results[i].Probability)
	}
	rank(results)

	counts := make(map[models.Source]int)
	for _, res := range results {
		counts[res.Source]++
		e.metrics.ResultsTotal.WithLabelValues(string(res.Source)).Inc()
	}

	duration := time.Since(start)
	e.metrics.AnalysisDuration.Observe(duration.Seconds())
	span.SetAttributes(attribute.Int("results.count", len(results)))

	e.logger.WithFields(
		logging.Field("analysis_id", analysisID),
		logging.Field("results", len(results)),
	).Info("analysis completed in %s", duration.Round(time.Millisecond))

	return &Report{
		AnalysisID: analysisID,
		StartedAt:  start.UTC(),
		DurationMS: duration.Milliseconds(),
		Results:    results,
		Counts:     counts,
	}
}

// tier buckets a probability using the configured breakpoints. The
// comparisons are inclusive so a silent-failure suspect at the actionable
// breakpoint lands in tier 1.
func (e *Engine) tier(prob float64) int {
	switch {
	case prob >= e.tiers.Actionable:
		return 1
	case prob >= e.tiers.Suspect:
		return 2
	default:
		return 3
	}
}

// rank orders results by probability descending, tier ascending, then
// device id. Full ordering keeps output deterministic for identical input.
func rank(results []models.Result) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Probability != results[j].Probability {
			return results[i].Probability > results[j].Probability
		}
		if results[i].Tier != results[j].Tier {
			return results[i].Tier < results[j].Tier
		}
		return results[i].DeviceID < results[j].DeviceID
	})
}

// groupByDevice buckets evidence messages per device, preserving message
// order within a device and returning sorted device ids. Entries without
// a device id or message are dropped; a device whose only evidence is
// empty strings does not enter the run at all.
func groupByDevice(evidence []models.Evidence) (map[string][]string, []string) {
	msgMap := make(map[string][]string)
	for _, ev := range evidence {
		if ev.DeviceID == "" || ev.Message == "" {
			continue
		}
		msgMap[ev.DeviceID] = append(msgMap[ev.DeviceID], ev.Message)
	}
	return msgMap, sortedKeys(msgMap)
}

// deviceEvidence assembles the oracle request entry for one device:
// sanitized messages plus topology metadata.
func (e *Engine) deviceEvidence(deviceID string, messages []string) oracle.DeviceEvidence {
	sanitized := make([]string, len(messages))
	for i, m := range messages {
		sanitized[i] = rules.Sanitize(m)
	}

	meta := map[string]string{}
	if node, ok := e.graph.Node(deviceID); ok {
		if node.Type != "" {
			meta["type"] = node.Type
		}
		if node.Metadata.Vendor != "" {
			meta["vendor"] = node.Metadata.Vendor
		}
		if node.Metadata.OS != "" {
			meta["os"] = node.Metadata.OS
		}
		if node.Metadata.PSUCount > 0 {
			meta["psu_count"] = strconv.Itoa(node.Metadata.PSUCount)
		}
		for k, v := range node.Metadata.Extra {
			meta[k] = v
		}
	}
	if len(meta) == 0 {
		meta = nil
	}

	return oracle.DeviceEvidence{
		DeviceID: deviceID,
		Metadata: meta,
		Messages: sanitized,
	}
}

func anyUnreachable(msgs []string) bool {
	for _, m := range msgs {
		if strings.Contains(strings.ToLower(m), "unreachable") {
			return true
		}
	}
	return false
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
