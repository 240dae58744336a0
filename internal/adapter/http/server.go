// Package http serves the point catalog, the IPHAN sites proxy, and the
// operational endpoints.
package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/heritage-sites-service/internal/catalog"
	"github.com/couchcryptid/heritage-sites-service/internal/domain"
	"github.com/couchcryptid/heritage-sites-service/internal/viewport"
)

// PointCatalog answers queries over the spreadsheet points.
type PointCatalog interface {
	Search(q domain.Query, bbox *domain.BBox) (catalog.Result, error)
	Get(id string) (domain.Point, error)
}

// SiteSource loads IPHAN sites for a viewport.
type SiteSource interface {
	Load(ctx context.Context, v viewport.Viewport) ([]domain.Point, error)
}

// Deps are the collaborators behind the API routes.
type Deps struct {
	Ready   sharedobs.ReadinessChecker
	Catalog PointCatalog
	Sites   SiteSource
	MinZoom int
}

// Server exposes the API plus health, readiness, and metrics endpoints.
type Server struct {
	httpServer *http.Server
	deps       Deps
	logger     *slog.Logger
}

// NewServer creates an HTTP server with the API and operational routes.
func NewServer(addr string, deps Deps, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      requestID(accessLog(logger)(mux)),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		deps:   deps,
		logger: logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(deps.Ready))
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /api/config", s.handleConfig)
	mux.HandleFunc("GET /api/points", s.handleSearch)
	mux.HandleFunc("GET /api/points/{id}", s.handlePoint)
	mux.HandleFunc("GET /api/points/{id}/directions", s.handleDirections)
	mux.HandleFunc("GET /api/points/{id}/qr.png", s.handleQR)
	mux.HandleFunc("GET /api/sites", s.handleSites)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}
