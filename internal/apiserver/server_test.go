package apiserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/moolen/faultline/internal/config"
	"github.com/moolen/faultline/internal/engine"
	"github.com/moolen/faultline/internal/models"
	"github.com/moolen/faultline/internal/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubAnalyzer returns a canned report and records the evidence it saw.
type stubAnalyzer struct {
	report   *engine.Report
	evidence []models.Evidence
}

func (s *stubAnalyzer) Analyze(_ context.Context, evidence []models.Evidence) *engine.Report {
	s.evidence = evidence
	return s.report
}

func newTestServer(t *testing.T, stub *stubAnalyzer) *Server {
	t.Helper()

	cfg := config.DefaultConfig()
	limiter := ratelimit.NewLimiter(cfg.RateLimit)
	cache, err := ratelimit.NewCache(cfg.RateLimit)
	require.NoError(t, err)

	return New(cfg.APIPort, stub, limiter, cache, prometheus.NewRegistry())
}

func TestHandleAnalyze(t *testing.T) {
	stub := &stubAnalyzer{report: &engine.Report{
		AnalysisID: "test-id",
		Results: []models.Result{
			{DeviceID: "sw-01", Status: models.StatusCritical, Probability: 0.9, Tier: 1, Source: models.SourceLocalRule},
		},
		Counts: map[models.Source]int{models.SourceLocalRule: 1},
	}}
	srv := newTestServer(t, stub)

	body := `{"evidence": [{"device_id": "sw-01", "message": "Device Down", "severity": "critical"}]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/analyze", strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var report engine.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, "test-id", report.AnalysisID)
	require.Len(t, report.Results, 1)
	assert.Equal(t, "sw-01", report.Results[0].DeviceID)

	require.Len(t, stub.evidence, 1)
	assert.Equal(t, "Device Down", stub.evidence[0].Message)
}

func TestHandleAnalyzeInvalidBody(t *testing.T) {
	srv := newTestServer(t, &stubAnalyzer{})

	req := httptest.NewRequest(http.MethodPost, "/v1/analyze", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "INVALID_REQUEST")
}

func TestHandleAnalyzeEmptyEvidence(t *testing.T) {
	srv := newTestServer(t, &stubAnalyzer{})

	req := httptest.NewRequest(http.MethodPost, "/v1/analyze", strings.NewReader(`{"evidence": []}`))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleAnalyzeMissingDeviceID(t *testing.T) {
	srv := newTestServer(t, &stubAnalyzer{})

	body := `{"evidence": [{"message": "Device Down"}]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/analyze", strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "device_id")
}

func TestHandleAnalyzeMethodNotAllowed(t *testing.T) {
	srv := newTestServer(t, &stubAnalyzer{})

	req := httptest.NewRequest(http.MethodGet, "/v1/analyze", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandleStats(t *testing.T) {
	srv := newTestServer(t, &stubAnalyzer{})

	req := httptest.NewRequest(http.MethodGet, "/v1/stats", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp statsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 30, resp.RateLimit.RPMLimit)
	assert.Equal(t, 0, resp.Cache.Entries)
}

func TestHealthAndReady(t *testing.T) {
	srv := newTestServer(t, &stubAnalyzer{})

	for _, path := range []string{"/health", "/ready"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestCORSPreflight(t *testing.T) {
	srv := newTestServer(t, &stubAnalyzer{})

	req := httptest.NewRequest(http.MethodOptions, "/v1/analyze", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, &stubAnalyzer{})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}
