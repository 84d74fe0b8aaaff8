package apiserver

import (
	"encoding/json"
	"net/http"

	"github.com/moolen/faultline/internal/models"
	"github.com/moolen/faultline/internal/ratelimit"
)

// analyzeRequest is the POST /v1/analyze request body.
type analyzeRequest struct {
	Evidence []models.Evidence `json:"evidence"`
}

// maxAnalyzeBody bounds the request body size (4 MiB).
const maxAnalyzeBody = 4 << 20

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxAnalyzeBody))
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid JSON body: "+err.Error())
		return
	}
	if len(req.Evidence) == 0 {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "evidence must not be empty")
		return
	}
	for _, ev := range req.Evidence {
		if ev.DeviceID == "" {
			writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "evidence entry without device_id")
			return
		}
	}

	report := s.engine.Analyze(r.Context(), req.Evidence)

	w.Header().Set("Content-Type", "application/json")
	if err := writeJSON(w, report); err != nil {
		s.logger.Error("failed to write analyze response: %v", err)
	}
}

// statsResponse is the GET /v1/stats response body.
type statsResponse struct {
	RateLimit ratelimit.Stats      `json:"rate_limit"`
	Cache     ratelimit.CacheStats `json:"cache"`
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	resp := statsResponse{
		RateLimit: s.limiter.Stats(),
		Cache:     s.cache.Stats(),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := writeJSON(w, resp); err != nil {
		s.logger.Error("failed to write stats response: %v", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = writeJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	// the engine is fully constructed before the server starts, so
	// readiness mirrors liveness
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = writeJSON(w, map[string]string{"status": "ready"})
}
