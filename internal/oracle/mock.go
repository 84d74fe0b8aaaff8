package oracle

import (
	"context"
	"sync"
)

// MockClient is a scriptable Client for tests. Verdicts are returned per
// device id; unknown devices are simply absent from the response, which
// exercises the dispatcher's missing-device handling.
type MockClient struct {
	mu sync.Mutex

	// Verdicts maps device id to the scripted answer.
	Verdicts map[string]DeviceVerdict

	// Errs is consumed one per call; a nil entry means success. When the
	// slice is exhausted calls succeed.
	Errs []error

	calls    int
	requests []Request
}

var _ Client = (*MockClient)(nil)

// Classify implements Client.Classify.
func (m *MockClient) Classify(_ context.Context, req Request) ([]DeviceVerdict, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests = append(m.requests, req)
	call := m.calls
	m.calls++

	if call < len(m.Errs) && m.Errs[call] != nil {
		return nil, m.Errs[call]
	}

	out := make([]DeviceVerdict, 0, len(req.Devices))
	for _, dev := range req.Devices {
		if v, ok := m.Verdicts[dev.DeviceID]; ok {
			out = append(out, v)
		}
	}
	return out, nil
}

// Name implements Client.Name.
func (m *MockClient) Name() string { return "mock" }

// Model implements Client.Model.
func (m *MockClient) Model() string { return "mock-model" }

// Calls returns how many times Classify was invoked.
func (m *MockClient) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Requests returns a copy of all requests seen so far.
func (m *MockClient) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.requests))
	copy(out, m.requests)
	return out
}
