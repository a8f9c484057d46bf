package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
)

// writeJSON writes v as JSON with the given HTTP status code.
// An encoding failure after the header is written cannot be
// reported to the client and is dropped.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response with the given status
// and message.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// handleContextError detects context.Canceled and
// context.DeadlineExceeded errors, returning true so the
// caller stops processing. It does NOT write an HTTP
// response; the withTimeout middleware handles that via
// http.TimeoutHandler (503). Writing here would race with
// the middleware's buffered response.
func handleContextError(_ http.ResponseWriter, err error) bool {
	return errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// writeStoreError maps a datastore failure to an HTTP response.
// Returns true when a response was produced and the handler
// should stop.
func (s *Server) writeStoreError(w http.ResponseWriter, r *http.Request, err error) bool {
	if err == nil {
		return false
	}
	if handleContextError(w, err) {
		return true
	}
	s.log.Error().Err(err).Str("path", r.URL.Path).Msg("datastore query failed")
	writeError(w, http.StatusBadGateway, "upstream unavailable")
	return true
}
