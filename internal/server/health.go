package server

import (
	"net/http"
	"time"
)

// healthResponse reports datastore connectivity.
type healthResponse struct {
	Status    string `json:"status"`
	LatencyMS int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	startedAt := time.Now()
	err := s.stats.Ping(r.Context())
	latency := time.Since(startedAt).Milliseconds()
	if err != nil {
		if handleContextError(w, err) {
			return
		}
		s.log.Error().Err(err).Msg("health check failed")
		writeJSON(w, http.StatusServiceUnavailable, healthResponse{
			Status:    "unhealthy",
			LatencyMS: latency,
			Error:     "datastore unreachable",
		})
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{
		Status:    "healthy",
		LatencyMS: latency,
	})
}
