// Package models defines the domain types shared across the Faultline
// analysis pipeline: fault evidence, classification results, and the
// status/tier vocabulary.
package models

import "time"

// Status is the health verdict for a device.
type Status string

const (
	StatusNormal   Status = "NORMAL"
	StatusWarning  Status = "WARNING"
	StatusCritical Status = "CRITICAL"
)

// Valid reports whether s is one of the known status values.
func (s Status) Valid() bool {
	switch s {
	case StatusNormal, StatusWarning, StatusCritical:
		return true
	}
	return false
}

// Probability returns the ranking probability implied by the status.
// Rule and oracle verdicts carry no independent confidence on the wire;
// ranking weight derives from the verdict severity alone.
func (s Status) Probability() float64 {
	switch s {
	case StatusCritical:
		return 0.9
	case StatusWarning:
		return 0.7
	default:
		return 0.3
	}
}

// Source identifies which stage of the pipeline produced a result.
type Source string

const (
	// SourceSuppression marks results produced by cascade/silent-failure
	// analysis over the topology graph
	SourceSuppression Source = "suppression"

	// SourceLocalRule marks results resolved by the deterministic rule table
	SourceLocalRule Source = "local_rule"

	// SourceOracle marks results obtained from the classification oracle
	SourceOracle Source = "oracle"

	// SourceCache marks oracle results served from the response cache
	SourceCache Source = "cache"

	// SourceDegraded marks conservative fallback verdicts emitted when the
	// oracle is unavailable, unauthenticated, or returned no usable answer
	SourceDegraded Source = "degraded"
)

// Evidence is a single reported symptom attributed to one device.
// Evidence values are never mutated after creation.
type Evidence struct {
	DeviceID  string    `json:"device_id"`
	Message   string    `json:"message"`
	Severity  string    `json:"severity"`
	Timestamp time.Time `json:"timestamp"`
}

// Result is one ranked root-cause candidate.
type Result struct {
	DeviceID    string  `json:"device_id"`
	Status      Status  `json:"status"`
	Reason      string  `json:"reason"`
	ImpactType  string  `json:"impact_type"`
	Probability float64 `json:"probability"`

	// Tier is the actionability bucket derived from Probability:
	// 1 = likely root cause, 2 = suspect, 3 = informational/suppressed.
	Tier int `json:"tier"`

	Source Source `json:"source"`

	// Report carries the evidentiary summary for silent-failure suspects
	Report string `json:"report,omitempty"`
}
