package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"github.com/chatlens/chatlens/internal/config"
	"github.com/chatlens/chatlens/internal/store"
	"github.com/chatlens/chatlens/internal/timeutil"
)

// stubStore returns canned results and records the last period
// it was asked about. Zero value serves zeroed statistics.
type stubStore struct {
	err        error
	lastPeriod timeutil.Period

	activeUsers store.ActiveUsersResult
	behavior    []store.UserBehaviorEntry
	detail      *store.UserBehaviorDetail
	tokens      store.TokenCountResult
	heatmap     []store.HeatmapEntry
	series      []store.TimeSeriesEntry
}

func (s *stubStore) Ping(context.Context) error { return s.err }

func (s *stubStore) ActiveUsers(_ context.Context, p timeutil.Period) (store.ActiveUsersResult, error) {
	s.lastPeriod = p
	return s.activeUsers, s.err
}

func (s *stubStore) Conversations(_ context.Context, p timeutil.Period) (store.ConversationsResult, error) {
	s.lastPeriod = p
	return store.ConversationsResult{}, s.err
}

func (s *stubStore) TotalUserCount(context.Context) (int64, error) { return 42, s.err }

func (s *stubStore) UserBehaviorStats(_ context.Context, _, _ time.Time) ([]store.UserBehaviorEntry, error) {
	return s.behavior, s.err
}

func (s *stubStore) UserBehaviorDetail(_ context.Context, _ string, _, _ time.Time) (*store.UserBehaviorDetail, error) {
	return s.detail, s.err
}

func (s *stubStore) TokenCounts(_ context.Context, p timeutil.Period) (store.TokenCountResult, error) {
	s.lastPeriod = p
	return s.tokens, s.err
}

func (s *stubStore) MessageStats(_ context.Context, p timeutil.Period) (store.MessageStatsResult, error) {
	s.lastPeriod = p
	return store.MessageStatsResult{}, s.err
}

func (s *stubStore) RequestHeatmap(_ context.Context, _, _ time.Time, _ string) ([]store.HeatmapEntry, error) {
	return s.heatmap, s.err
}

func (s *stubStore) ModelsAndAgents(context.Context) ([]store.ModelCatalogEntry, error) {
	return []store.ModelCatalogEntry{}, s.err
}

func (s *stubStore) ModelUsageByProvider(_ context.Context, _, _ time.Time) ([]store.ModelUsageEntry, error) {
	return []store.ModelUsageEntry{}, s.err
}

func (s *stubStore) ModelStatsTable(_ context.Context, _, _ time.Time) ([]store.StatsTableEntry, error) {
	return []store.StatsTableEntry{}, s.err
}

func (s *stubStore) ModelTimeSeries(_ context.Context, _, _ time.Time, _ string, _ timeutil.Granularity, _ string) ([]store.TimeSeriesEntry, error) {
	return s.series, s.err
}

func (s *stubStore) TotalAgentCount(context.Context) (int64, error) { return 7, s.err }

func (s *stubStore) AgentStatsTable(_ context.Context, _, _ time.Time) ([]store.StatsTableEntry, error) {
	return []store.StatsTableEntry{}, s.err
}

func (s *stubStore) AgentTimeSeries(_ context.Context, _, _ time.Time, _ string, _ timeutil.Granularity, _ string) ([]store.TimeSeriesEntry, error) {
	return s.series, s.err
}

func (s *stubStore) McpToolCalls(_ context.Context, p timeutil.Period) (store.McpToolCallsResult, error) {
	s.lastPeriod = p
	return store.McpToolCallsResult{}, s.err
}

func (s *stubStore) AllToolCalls(_ context.Context, p timeutil.Period) (store.AllToolCallsResult, error) {
	s.lastPeriod = p
	return store.AllToolCallsResult{}, s.err
}

func (s *stubStore) McpToolStatsTable(_ context.Context, _, _ time.Time) ([]store.McpToolStatsEntry, error) {
	return []store.McpToolStatsEntry{}, s.err
}

func (s *stubStore) McpToolStatsChart(_ context.Context, _, _ time.Time, _ timeutil.Granularity, _ string) ([]store.McpToolSeriesEntry, error) {
	return []store.McpToolSeriesEntry{}, s.err
}

func (s *stubStore) WebSearchStats(_ context.Context, p timeutil.Period) (store.WebSearchStatsResult, error) {
	s.lastPeriod = p
	return store.WebSearchStatsResult{}, s.err
}

func (s *stubStore) FilesProcessed(_ context.Context, p timeutil.Period) (store.FilesProcessedResult, error) {
	s.lastPeriod = p
	return store.FilesProcessedResult{}, s.err
}

func testConfig() config.Config {
	return config.Config{
		Host:         "127.0.0.1",
		Port:         0,
		WriteTimeout: 5 * time.Second,
		MongoURI:     "mongodb://localhost/test",
	}
}

func newTestServer(t *testing.T, stub *stubStore) *Server {
	t.Helper()
	return New(testConfig(), stub, zerolog.Nop())
}

func get(t *testing.T, srv *Server, path string) (*http.Response, string) {
	t.Helper()
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	resp, err := http.Get(ts.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("reading body: %v", err)
	}
	return resp, string(body)
}

func TestActiveUsersEndpoint(t *testing.T) {
	stub := &stubStore{
		activeUsers: store.ActiveUsersResult{
			CurrentActiveUsers: 12,
			PrevActiveUsers:    9,
		},
	}
	srv := newTestServer(t, stub)

	resp, body := get(t, srv,
		"/api/v1/stats/active-users?start=2024-01-15&end=2024-01-31")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body = %s", resp.StatusCode, body)
	}
	if got := gjson.Get(body, "currentActiveUsers").Int(); got != 12 {
		t.Errorf("currentActiveUsers = %d, want 12", got)
	}
	if got := gjson.Get(body, "prevActiveUsers").Int(); got != 9 {
		t.Errorf("prevActiveUsers = %d, want 9", got)
	}

	// The comparison window precedes the requested one with the
	// same duration.
	p := stub.lastPeriod
	if !p.PrevEnd.Equal(p.Start) {
		t.Error("previous window not contiguous with current")
	}
	if p.Duration() != p.PrevEnd.Sub(p.PrevStart) {
		t.Error("previous window duration differs")
	}
}

func TestDateRangeValidation(t *testing.T) {
	srv := newTestServer(t, &stubStore{})

	tests := []struct {
		name  string
		query string
		want  string
	}{
		{"missing start", "end=2024-01-31", "start is required"},
		{"missing end", "start=2024-01-01", "end is required"},
		{"malformed start", "start=January&end=2024-01-31", "invalid start"},
		{"malformed end", "start=2024-01-01&end=31/01/2024", "invalid end"},
		{"inverted range", "start=2024-02-01&end=2024-01-01", "start must not be after end"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := get(t, srv, "/api/v1/stats/messages?"+tt.query)
			if resp.StatusCode != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", resp.StatusCode)
			}
			if msg := gjson.Get(body, "error").String(); msg == "" {
				t.Error("error response has no error field")
			} else if !containsPrefix(msg, tt.want) {
				t.Errorf("error = %q, want prefix %q", msg, tt.want)
			}
		})
	}
}

func containsPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

func TestRFC3339DatesAccepted(t *testing.T) {
	srv := newTestServer(t, &stubStore{})
	resp, body := get(t, srv,
		"/api/v1/stats/messages?start=2024-01-01T08:00:00Z&end=2024-01-02T08:00:00Z")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body = %s", resp.StatusCode, body)
	}
}

func TestEqualStartAndEndAccepted(t *testing.T) {
	// A degenerate window is empty, not invalid.
	srv := newTestServer(t, &stubStore{})
	resp, _ := get(t, srv,
		"/api/v1/stats/messages?start=2024-01-15&end=2024-01-15")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}

func TestStoreFailureMapsToBadGateway(t *testing.T) {
	stub := &stubStore{err: errors.New("server selection timeout")}
	srv := newTestServer(t, stub)
	resp, body := get(t, srv,
		"/api/v1/stats/active-users?start=2024-01-01&end=2024-01-31")
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", resp.StatusCode)
	}
	if got := gjson.Get(body, "error").String(); got != "upstream unavailable" {
		t.Errorf("error = %q", got)
	}
}

func TestValidationRejectsBeforeStoreCall(t *testing.T) {
	// A failing store must not be reached on invalid input.
	stub := &stubStore{err: errors.New("unreachable")}
	srv := newTestServer(t, stub)
	resp, _ := get(t, srv, "/api/v1/stats/active-users?start=bad&end=2024-01-31")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestUserBehaviorDetailNotFound(t *testing.T) {
	srv := newTestServer(t, &stubStore{detail: nil})
	resp, _ := get(t, srv,
		"/api/v1/stats/user-behavior/detail?user=u-1&start=2024-01-01&end=2024-01-31")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestUserBehaviorDetailRequiresUser(t *testing.T) {
	srv := newTestServer(t, &stubStore{})
	resp, body := get(t, srv,
		"/api/v1/stats/user-behavior/detail?start=2024-01-01&end=2024-01-31")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	if got := gjson.Get(body, "error").String(); got != "user is required" {
		t.Errorf("error = %q", got)
	}
}

func TestModelChartValidation(t *testing.T) {
	srv := newTestServer(t, &stubStore{})

	resp, _ := get(t, srv,
		"/api/v1/stats/model-chart?start=2024-01-01&end=2024-01-31")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing model: status = %d, want 400", resp.StatusCode)
	}

	resp, _ = get(t, srv,
		"/api/v1/stats/model-chart?model=gpt-4o&start=2024-01-01&end=2024-01-31&granularity=week")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad granularity: status = %d, want 400", resp.StatusCode)
	}

	resp, _ = get(t, srv,
		"/api/v1/stats/model-chart?model=gpt-4o&start=2024-01-01&end=2024-01-31&timezone=Mars/Olympus")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad timezone: status = %d, want 400", resp.StatusCode)
	}

	resp, _ = get(t, srv,
		"/api/v1/stats/model-chart?model=gpt-4o&start=2024-01-01&end=2024-01-31&timezone=America/New_York")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("valid request: status = %d, want 200", resp.StatusCode)
	}
}

func TestHeatmapResponseCarriesGranularity(t *testing.T) {
	stub := &stubStore{heatmap: []store.HeatmapEntry{
		{DayOfWeek: 1, TimeSlot: 9, TotalRequests: 30},
	}}
	srv := newTestServer(t, stub)

	tests := []struct {
		name  string
		query string
		want  string
	}{
		{"one day", "start=2024-01-01&end=2024-01-02", "hourly"},
		{"forty days", "start=2024-01-01&end=2024-02-10", "daily"},
		{"two hundred days", "start=2024-01-01&end=2024-07-19", "weekly"},
		{"over two years", "start=2022-01-01&end=2024-03-11", "monthly"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := get(t, srv, "/api/v1/stats/request-heatmap?"+tt.query)
			if resp.StatusCode != http.StatusOK {
				t.Fatalf("status = %d, body = %s", resp.StatusCode, body)
			}
			if got := gjson.Get(body, "granularity").String(); got != tt.want {
				t.Errorf("granularity = %q, want %q", got, tt.want)
			}
			if n := gjson.Get(body, "entries.#").Int(); n != 1 {
				t.Errorf("entries length = %d, want 1", n)
			}
		})
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t, &stubStore{})
	resp, body := get(t, srv, "/api/v1/health")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if got := gjson.Get(body, "status").String(); got != "healthy" {
		t.Errorf("status = %q", got)
	}

	down := newTestServer(t, &stubStore{err: errors.New("no reachable servers")})
	resp, body = get(t, down, "/api/v1/health")
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", resp.StatusCode)
	}
	if got := gjson.Get(body, "status").String(); got != "unhealthy" {
		t.Errorf("status = %q", got)
	}
}

func TestTotalCounters(t *testing.T) {
	srv := newTestServer(t, &stubStore{})

	_, body := get(t, srv, "/api/v1/stats/total-users")
	if got := gjson.Get(body, "totalUsers").Int(); got != 42 {
		t.Errorf("totalUsers = %d, want 42", got)
	}

	_, body = get(t, srv, "/api/v1/stats/total-agents")
	if got := gjson.Get(body, "totalAgents").Int(); got != 7 {
		t.Errorf("totalAgents = %d, want 7", got)
	}
}

func TestRequestIDHeader(t *testing.T) {
	srv := newTestServer(t, &stubStore{})
	resp, _ := get(t, srv, "/api/v1/health")
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("no X-Request-ID header on response")
	}
}

func TestHandlerTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.WriteTimeout = 50 * time.Millisecond
	srv := New(cfg, &stubStore{}, zerolog.Nop())
	srv.handlerDelay = 200 * time.Millisecond

	resp, body := get(t, srv, "/api/v1/stats/total-users")
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", resp.StatusCode)
	}
	if got := gjson.Get(body, "error").String(); got != "request timed out" {
		t.Errorf("error = %q", got)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
}

func TestWriteJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	writeJSON(rec, http.StatusTeapot, map[string]int{"n": 1})
	if rec.Code != http.StatusTeapot {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusTeapot)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	if got := gjson.Get(rec.Body.String(), "n").Int(); got != 1 {
		t.Errorf("body = %q", rec.Body.String())
	}
}
