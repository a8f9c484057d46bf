package server

import (
	"net/http"
)

// Comparison endpoints take start/end and report the current
// window next to the equal-length window before it.

func (s *Server) handleActiveUsers(w http.ResponseWriter, r *http.Request) {
	p, ok := parsePeriod(w, r)
	if !ok {
		return
	}
	result, err := s.stats.ActiveUsers(r.Context(), p)
	if s.writeStoreError(w, r, err) {
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleConversations(w http.ResponseWriter, r *http.Request) {
	p, ok := parsePeriod(w, r)
	if !ok {
		return
	}
	result, err := s.stats.Conversations(r.Context(), p)
	if s.writeStoreError(w, r, err) {
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleTotalUsers(w http.ResponseWriter, r *http.Request) {
	n, err := s.stats.TotalUserCount(r.Context())
	if s.writeStoreError(w, r, err) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"totalUsers": n})
}

func (s *Server) handleUserBehavior(w http.ResponseWriter, r *http.Request) {
	start, end, ok := parseDateRange(w, r)
	if !ok {
		return
	}
	result, err := s.stats.UserBehaviorStats(r.Context(), start, end)
	if s.writeStoreError(w, r, err) {
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleUserBehaviorDetail(w http.ResponseWriter, r *http.Request) {
	userID, ok := requiredParam(w, r, "user")
	if !ok {
		return
	}
	start, end, ok := parseDateRange(w, r)
	if !ok {
		return
	}
	detail, err := s.stats.UserBehaviorDetail(r.Context(), userID, start, end)
	if s.writeStoreError(w, r, err) {
		return
	}
	if detail == nil {
		writeError(w, http.StatusNotFound, "no activity for user in range")
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (s *Server) handleTokenCounts(w http.ResponseWriter, r *http.Request) {
	p, ok := parsePeriod(w, r)
	if !ok {
		return
	}
	result, err := s.stats.TokenCounts(r.Context(), p)
	if s.writeStoreError(w, r, err) {
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleMessageStats(w http.ResponseWriter, r *http.Request) {
	p, ok := parsePeriod(w, r)
	if !ok {
		return
	}
	result, err := s.stats.MessageStats(r.Context(), p)
	if s.writeStoreError(w, r, err) {
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleModelCatalog(w http.ResponseWriter, r *http.Request) {
	result, err := s.stats.ModelsAndAgents(r.Context())
	if s.writeStoreError(w, r, err) {
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleModelUsage(w http.ResponseWriter, r *http.Request) {
	start, end, ok := parseDateRange(w, r)
	if !ok {
		return
	}
	result, err := s.stats.ModelUsageByProvider(r.Context(), start, end)
	if s.writeStoreError(w, r, err) {
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleModelTable(w http.ResponseWriter, r *http.Request) {
	start, end, ok := parseDateRange(w, r)
	if !ok {
		return
	}
	result, err := s.stats.ModelStatsTable(r.Context(), start, end)
	if s.writeStoreError(w, r, err) {
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleTotalAgents(w http.ResponseWriter, r *http.Request) {
	n, err := s.stats.TotalAgentCount(r.Context())
	if s.writeStoreError(w, r, err) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"totalAgents": n})
}

func (s *Server) handleAgentTable(w http.ResponseWriter, r *http.Request) {
	start, end, ok := parseDateRange(w, r)
	if !ok {
		return
	}
	result, err := s.stats.AgentStatsTable(r.Context(), start, end)
	if s.writeStoreError(w, r, err) {
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleMcpToolCalls(w http.ResponseWriter, r *http.Request) {
	p, ok := parsePeriod(w, r)
	if !ok {
		return
	}
	result, err := s.stats.McpToolCalls(r.Context(), p)
	if s.writeStoreError(w, r, err) {
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleAllToolCalls(w http.ResponseWriter, r *http.Request) {
	p, ok := parsePeriod(w, r)
	if !ok {
		return
	}
	result, err := s.stats.AllToolCalls(r.Context(), p)
	if s.writeStoreError(w, r, err) {
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleMcpToolTable(w http.ResponseWriter, r *http.Request) {
	start, end, ok := parseDateRange(w, r)
	if !ok {
		return
	}
	result, err := s.stats.McpToolStatsTable(r.Context(), start, end)
	if s.writeStoreError(w, r, err) {
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleWebSearch(w http.ResponseWriter, r *http.Request) {
	p, ok := parsePeriod(w, r)
	if !ok {
		return
	}
	result, err := s.stats.WebSearchStats(r.Context(), p)
	if s.writeStoreError(w, r, err) {
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleFilesProcessed(w http.ResponseWriter, r *http.Request) {
	p, ok := parsePeriod(w, r)
	if !ok {
		return
	}
	result, err := s.stats.FilesProcessed(r.Context(), p)
	if s.writeStoreError(w, r, err) {
		return
	}
	writeJSON(w, http.StatusOK, result)
}
