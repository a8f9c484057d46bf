// Package server exposes the statistics API over HTTP. Every
// endpoint is read-only; the server validates parameters before
// touching the datastore and maps datastore failures to 502.
package server

import (
	"context"
	"fmt"
	"net/http"
	gosync "sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/chatlens/chatlens/internal/config"
	"github.com/chatlens/chatlens/internal/store"
	"github.com/chatlens/chatlens/internal/timeutil"
)

// VersionInfo holds build-time version metadata.
type VersionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
}

// StatsStore is the datastore surface the handlers depend on.
// *store.Store satisfies it; tests substitute a stub.
type StatsStore interface {
	Ping(ctx context.Context) error

	ActiveUsers(ctx context.Context, p timeutil.Period) (store.ActiveUsersResult, error)
	Conversations(ctx context.Context, p timeutil.Period) (store.ConversationsResult, error)
	TotalUserCount(ctx context.Context) (int64, error)
	UserBehaviorStats(ctx context.Context, start, end time.Time) ([]store.UserBehaviorEntry, error)
	UserBehaviorDetail(ctx context.Context, userID string, start, end time.Time) (*store.UserBehaviorDetail, error)

	TokenCounts(ctx context.Context, p timeutil.Period) (store.TokenCountResult, error)
	MessageStats(ctx context.Context, p timeutil.Period) (store.MessageStatsResult, error)
	RequestHeatmap(ctx context.Context, start, end time.Time, tz string) ([]store.HeatmapEntry, error)

	ModelsAndAgents(ctx context.Context) ([]store.ModelCatalogEntry, error)
	ModelUsageByProvider(ctx context.Context, start, end time.Time) ([]store.ModelUsageEntry, error)
	ModelStatsTable(ctx context.Context, start, end time.Time) ([]store.StatsTableEntry, error)
	ModelTimeSeries(ctx context.Context, start, end time.Time, model string, g timeutil.Granularity, tz string) ([]store.TimeSeriesEntry, error)

	TotalAgentCount(ctx context.Context) (int64, error)
	AgentStatsTable(ctx context.Context, start, end time.Time) ([]store.StatsTableEntry, error)
	AgentTimeSeries(ctx context.Context, start, end time.Time, agentName string, g timeutil.Granularity, tz string) ([]store.TimeSeriesEntry, error)

	McpToolCalls(ctx context.Context, p timeutil.Period) (store.McpToolCallsResult, error)
	AllToolCalls(ctx context.Context, p timeutil.Period) (store.AllToolCallsResult, error)
	McpToolStatsTable(ctx context.Context, start, end time.Time) ([]store.McpToolStatsEntry, error)
	McpToolStatsChart(ctx context.Context, start, end time.Time, g timeutil.Granularity, tz string) ([]store.McpToolSeriesEntry, error)
	WebSearchStats(ctx context.Context, p timeutil.Period) (store.WebSearchStatsResult, error)

	FilesProcessed(ctx context.Context, p timeutil.Period) (store.FilesProcessedResult, error)
}

// Server is the HTTP server for the statistics API.
type Server struct {
	mu      gosync.RWMutex
	cfg     config.Config
	stats   StatsStore
	log     zerolog.Logger
	mux     *http.ServeMux
	httpSrv *http.Server
	version VersionInfo
	metrics *metrics

	// loginLimiter throttles password attempts across all
	// clients.
	loginLimiter *rate.Limiter

	// handlerDelay is injected before each timeout-wrapped
	// handler, used only by tests to guarantee handlers
	// exceed a short timeout. Zero in production.
	handlerDelay time.Duration
}

// New creates a new Server.
func New(cfg config.Config, stats StatsStore, log zerolog.Logger, opts ...Option) *Server {
	s := &Server{
		cfg:          cfg,
		stats:        stats,
		log:          log,
		mux:          http.NewServeMux(),
		metrics:      newMetrics(),
		loginLimiter: rate.NewLimiter(rate.Every(time.Second), 5),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

// Option configures a Server.
type Option func(*Server)

// WithVersion sets the build-time version metadata.
func WithVersion(v VersionInfo) Option {
	return func(s *Server) { s.version = v }
}

func (s *Server) routes() {
	s.mux.Handle("POST /api/v1/auth/login", s.withTimeout(s.handleLogin))
	s.mux.Handle("POST /api/v1/auth/verify", s.withTimeout(s.handleVerify))
	s.mux.Handle("POST /api/v1/auth/logout", s.withTimeout(s.handleLogout))

	s.mux.Handle("GET /api/v1/health", s.withTimeout(s.handleHealth))
	s.mux.Handle("GET /api/v1/version", s.withTimeout(s.handleGetVersion))
	s.mux.Handle("GET /metrics", promhttp.Handler())

	s.stat("GET /api/v1/stats/active-users", s.handleActiveUsers)
	s.stat("GET /api/v1/stats/conversations", s.handleConversations)
	s.stat("GET /api/v1/stats/total-users", s.handleTotalUsers)
	s.stat("GET /api/v1/stats/user-behavior", s.handleUserBehavior)
	s.stat("GET /api/v1/stats/user-behavior/detail", s.handleUserBehaviorDetail)

	s.stat("GET /api/v1/stats/input-output-tokens", s.handleTokenCounts)
	s.stat("GET /api/v1/stats/messages", s.handleMessageStats)
	s.stat("GET /api/v1/stats/request-heatmap", s.handleRequestHeatmap)

	s.stat("GET /api/v1/stats/models", s.handleModelCatalog)
	s.stat("GET /api/v1/stats/model-usage", s.handleModelUsage)
	s.stat("GET /api/v1/stats/model-table", s.handleModelTable)
	s.stat("GET /api/v1/stats/model-chart", s.handleModelChart)

	s.stat("GET /api/v1/stats/total-agents", s.handleTotalAgents)
	s.stat("GET /api/v1/stats/agent-table", s.handleAgentTable)
	s.stat("GET /api/v1/stats/agent-chart", s.handleAgentChart)

	s.stat("GET /api/v1/stats/mcp-tool-calls", s.handleMcpToolCalls)
	s.stat("GET /api/v1/stats/tool-calls", s.handleAllToolCalls)
	s.stat("GET /api/v1/stats/mcp-tool-table", s.handleMcpToolTable)
	s.stat("GET /api/v1/stats/mcp-tool-chart", s.handleMcpToolChart)
	s.stat("GET /api/v1/stats/web-search", s.handleWebSearch)

	s.stat("GET /api/v1/stats/files-processed", s.handleFilesProcessed)
}

// stat registers a statistics route behind auth and the write
// timeout.
func (s *Server) stat(pattern string, h http.HandlerFunc) {
	s.mux.Handle(pattern, s.requireAuth(s.withTimeout(h)))
}

func (s *Server) handleGetVersion(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.version)
}

// Handler returns the http.Handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return s.requestID(s.accessLog(s.instrument(s.mux)))
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	srv := &http.Server{
		Addr:        addr,
		Handler:     s.Handler(),
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 120 * time.Second,
	}
	s.mu.Lock()
	s.httpSrv = srv
	s.mu.Unlock()
	s.log.Info().Str("addr", addr).Msg("starting server")
	return srv.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.RLock()
	srv := s.httpSrv
	s.mu.RUnlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}
