package server

import (
	"net/http"

	"github.com/chatlens/chatlens/internal/store"
	"github.com/chatlens/chatlens/internal/timeutil"
)

func (s *Server) handleModelChart(w http.ResponseWriter, r *http.Request) {
	model, ok := requiredParam(w, r, "model")
	if !ok {
		return
	}
	start, end, ok := parseDateRange(w, r)
	if !ok {
		return
	}
	g, ok := parseChartGranularity(w, r, start, end)
	if !ok {
		return
	}
	tz, ok := parseTimezone(w, r)
	if !ok {
		return
	}
	result, err := s.stats.ModelTimeSeries(r.Context(), start, end, model, g, tz)
	if s.writeStoreError(w, r, err) {
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleAgentChart(w http.ResponseWriter, r *http.Request) {
	agent, ok := requiredParam(w, r, "agent")
	if !ok {
		return
	}
	start, end, ok := parseDateRange(w, r)
	if !ok {
		return
	}
	g, ok := parseChartGranularity(w, r, start, end)
	if !ok {
		return
	}
	tz, ok := parseTimezone(w, r)
	if !ok {
		return
	}
	result, err := s.stats.AgentTimeSeries(r.Context(), start, end, agent, g, tz)
	if s.writeStoreError(w, r, err) {
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleMcpToolChart(w http.ResponseWriter, r *http.Request) {
	start, end, ok := parseDateRange(w, r)
	if !ok {
		return
	}
	g, ok := parseChartGranularity(w, r, start, end)
	if !ok {
		return
	}
	tz, ok := parseTimezone(w, r)
	if !ok {
		return
	}
	result, err := s.stats.McpToolStatsChart(r.Context(), start, end, g, tz)
	if s.writeStoreError(w, r, err) {
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// heatmapResponse wraps heatmap cells with the display
// granularity resolved for the range.
type heatmapResponse struct {
	Granularity timeutil.HeatmapGranularity `json:"granularity"`
	Entries     []store.HeatmapEntry        `json:"entries"`
}

func (s *Server) handleRequestHeatmap(w http.ResponseWriter, r *http.Request) {
	start, end, ok := parseDateRange(w, r)
	if !ok {
		return
	}
	tz, ok := parseTimezone(w, r)
	if !ok {
		return
	}
	entries, err := s.stats.RequestHeatmap(r.Context(), start, end, tz)
	if s.writeStoreError(w, r, err) {
		return
	}
	writeJSON(w, http.StatusOK, heatmapResponse{
		Granularity: timeutil.ResolveHeatmapGranularity(start, end),
		Entries:     entries,
	})
}
