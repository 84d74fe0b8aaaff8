// Package oracle implements the external classification backend: the
// request/response contract, the Anthropic-backed client, and a scriptable
// mock for tests. Rate limiting, caching, and batching live in the
// dispatch package; clients here only translate one batch into verdicts.
package oracle

import "context"

// DeviceEvidence is the per-device slice of a classification request.
// Messages must already be sanitized by the caller.
type DeviceEvidence struct {
	DeviceID string            `json:"device_id"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Messages []string          `json:"alerts"`
}

// Request is one batch of devices to classify.
type Request struct {
	Devices []DeviceEvidence
}

// DeviceVerdict is the oracle's answer for one device.
type DeviceVerdict struct {
	DeviceID   string `json:"device_id"`
	Status     string `json:"status"`
	Reason     string `json:"reason"`
	ImpactType string `json:"impact_type"`
}

// Client classifies batches of device evidence.
type Client interface {
	// Classify submits one batch and returns verdicts for the devices the
	// backend answered for. Missing devices are the dispatcher's problem.
	Classify(ctx context.Context, req Request) ([]DeviceVerdict, error)

	// Name identifies the backend implementation.
	Name() string

	// Model returns the configured model identifier.
	Model() string
}
