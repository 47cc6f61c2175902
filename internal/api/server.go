// Package api exposes the job store, the runner, and recent logs over HTTP
// using Huma v2 on the standard library mux.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pipeshard/pipeshard/internal/jobs"
	"github.com/pipeshard/pipeshard/internal/logging"
	"github.com/pipeshard/pipeshard/internal/version"
)

// Options configures the API server.
type Options struct {
	Store   jobs.Store
	Runner  *jobs.Runner
	Metrics bool // serve Prometheus metrics at /metrics
}

// Server is the HTTP API server.
type Server struct {
	api        huma.API
	mux        *http.ServeMux
	httpServer *http.Server
	store      jobs.Store
	runner     *jobs.Runner
	logger     *slog.Logger
}

// NewServer builds the server and registers all routes.
func NewServer(opts *Options) *Server {
	mux := http.NewServeMux()

	config := huma.DefaultConfig("Pipeshard API", version.Version)
	config.Info.Description = "Partitioned external-process pipe jobs"
	config.Servers = []*huma.Server{}

	s := &Server{
		api:    humago.New(mux, config),
		mux:    mux,
		store:  opts.Store,
		runner: opts.Runner,
		logger: logging.GetLogger("api"),
	}

	if opts.Metrics {
		mux.Handle("GET /metrics", promhttp.Handler())
	}

	s.registerHealthRoutes()
	s.registerJobRoutes()
	s.registerLogRoutes()
	return s
}

// Start serves until Stop is called.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("API listening", "addr", addr)
	return s.httpServer.ListenAndServe()
}

// Stop shuts the server down gracefully.
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

// API returns the underlying Huma API, used by tests.
func (s *Server) API() huma.API {
	return s.api
}

func (s *Server) registerHealthRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/api/health",
		Summary:     "Health",
		Tags:        []string{"system"},
	}, func(ctx context.Context, _ *struct{}) (*HealthResponse, error) {
		return &HealthResponse{Body: HealthData{Status: "ok", Version: version.Get()}}, nil
	})
}
