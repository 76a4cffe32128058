package http

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"callinsights-server/pkg/config"
	"callinsights-server/pkg/database"
	"callinsights-server/pkg/insights"
	"callinsights-server/pkg/messaging"
	"callinsights-server/pkg/metrics"
	"callinsights-server/pkg/recommend"
	"callinsights-server/pkg/scheduler"
	"callinsights-server/pkg/version"
)

// Middleware wraps a handler. Authentication is an external collaborator
// injected through SetAuthMiddleware; this package carries no token logic.
type Middleware interface {
	Middleware(next http.Handler) http.Handler
}

// Server exposes the REST and WebSocket surface of the service
type Server struct {
	cfg          config.HTTPConfig
	streamingCfg config.StreamingConfig
	logger       *logrus.Logger

	store       database.Store
	engine      *insights.Engine
	recommender *recommend.Recommender
	scheduler   *scheduler.Scheduler
	publisher   messaging.Publisher

	httpServer     *http.Server
	mux            *http.ServeMux
	authMiddleware Middleware
	startTime      time.Time
}

// NewServer wires the API surface over the given collaborators
func NewServer(
	cfg config.HTTPConfig,
	streamingCfg config.StreamingConfig,
	store database.Store,
	engine *insights.Engine,
	recommender *recommend.Recommender,
	sched *scheduler.Scheduler,
	publisher messaging.Publisher,
	logger *logrus.Logger,
) *Server {
	s := &Server{
		cfg:          cfg,
		streamingCfg: streamingCfg,
		logger:       logger,
		store:        store,
		engine:       engine,
		recommender:  recommender,
		scheduler:    sched,
		publisher:    publisher,
		startTime:    time.Now(),
	}

	mux := http.NewServeMux()
	s.mux = mux

	mux.HandleFunc("GET /health", s.HealthHandler)
	mux.HandleFunc("GET /health/live", s.LivenessHandler)
	mux.HandleFunc("GET /health/ready", s.ReadinessHandler)

	if cfg.EnableMetrics && metrics.IsMetricsEnabled() {
		metrics.RegisterHandler(mux)
		logger.Info("Prometheus metrics endpoint enabled at /metrics")
	}

	mux.HandleFunc("POST /api/v1/analyze", s.AnalyzeHandler)
	mux.HandleFunc("POST /api/v1/calls", s.CreateCallHandler)
	mux.HandleFunc("GET /api/v1/calls", s.ListCallsHandler)
	mux.HandleFunc("GET /api/v1/calls/{call_id}", s.GetCallHandler)
	mux.HandleFunc("GET /api/v1/calls/{call_id}/recommendations", s.RecommendationsHandler)
	mux.HandleFunc("GET /api/v1/analytics/agents", s.AgentAnalyticsHandler)
	mux.HandleFunc("POST /api/v1/analytics/recompute", s.RecomputeHandler)
	mux.HandleFunc("GET /ws/sentiment", s.SentimentStreamHandler)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.rootHandler(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return s
}

// rootHandler layers the middleware stack around the mux
func (s *Server) rootHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handler := http.Handler(s.mux)
		if s.authMiddleware != nil {
			handler = s.authMiddleware.Middleware(handler)
		}
		handler = s.instrument(handler)
		handler.ServeHTTP(w, r)
	})
}

// instrument adds the Server header and request metrics
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// WebSocket upgrades need the raw ResponseWriter for hijacking
		if strings.HasPrefix(r.URL.Path, "/ws/") {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		w.Header().Set("Server", version.ServerHeader())

		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		metrics.RecordHTTPRequest(routeLabel(r), r.Method, strconv.Itoa(recorder.status), time.Since(start))
	})
}

// routeLabel returns the matched mux pattern so path parameters never
// explode the metric's label cardinality. Unmatched requests fall back to
// the raw path.
func routeLabel(r *http.Request) string {
	route := r.Pattern
	if _, path, ok := strings.Cut(route, " "); ok {
		route = path
	}
	if route == "" {
		return r.URL.Path
	}
	return route
}

// statusRecorder captures the response status for metrics
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// SetAuthMiddleware installs the externally provided authentication layer
func (s *Server) SetAuthMiddleware(middleware Middleware) {
	s.authMiddleware = middleware
	s.logger.Info("Authentication middleware configured")
}

// Handler exposes the full middleware-wrapped handler, used by tests
func (s *Server) Handler() http.Handler {
	return s.rootHandler()
}

// Start begins serving in a goroutine
func (s *Server) Start() {
	go func() {
		s.logger.WithField("port", s.cfg.Port).Info("HTTP server listening")
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.WithError(err).Error("HTTP server failed")
		}
	}()
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}
