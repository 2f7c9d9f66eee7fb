// Package httpapi serves the admin and retrieval HTTP API. Every
// operation goes through the shared service layer so the HTTP surface
// and the MCP surface stay behaviorally identical.
package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"

	"github.com/codemaphq/codemap/internal/config"
	"github.com/codemaphq/codemap/internal/service"
)

const (
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 10 * time.Second
)

// Server is the HTTP front end.
type Server struct {
	svc      *service.Service
	cfg      config.HTTPConfig
	logger   *slog.Logger
	validate *validator.Validate
	http     *http.Server
}

// New builds the server and its router.
func New(svc *service.Service, cfg config.HTTPConfig, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		svc:      svc,
		cfg:      cfg,
		logger:   logger,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
	s.http = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.router(),
		ReadHeaderTimeout: readHeaderTimeout,
	}
	return s
}

func (s *Server) router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	if len(s.cfg.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.cfg.CORSOrigins,
			AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		}))
	}

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", s.svc.Metrics().Handler())

	r.Route("/api", func(r chi.Router) {
		r.Route("/registry", func(r chi.Router) {
			r.Get("/", s.handleListRepos)
			r.Post("/", s.handleAddRepo)
			r.Route("/{name}", func(r chi.Router) {
				r.Get("/", s.handleGetRepo)
				r.Put("/", s.handleUpdateRepo)
				r.Delete("/", s.handleRemoveRepo)
				r.Get("/jobs", s.handleListRepoJobs)
				r.Post("/jobs", s.handleTriggerRepoJob)
			})
		})

		r.Route("/jobs", func(r chi.Router) {
			r.Post("/trigger", s.handleTriggerJob)
			r.Post("/cancel", s.handleCancelJob)
			r.Get("/{id}", s.handleGetJob)
		})

		r.Route("/search", func(r chi.Router) {
			r.Post("/hybrid", s.handleHybridSearch)
			r.Post("/docs", s.handleDocSearch)
			r.Post("/pattern", s.handlePatternScan)
		})

		r.Route("/stats", func(r chi.Router) {
			r.Get("/overview", s.handleOverview)
			r.Get("/daemon", s.handleDaemonStatus)
			r.Get("/jobs", s.handleJobStats)
			r.Get("/capabilities", s.handleCapabilities)
		})

		r.Route("/maintenance", func(r chi.Router) {
			r.Get("/vector-indexes", s.handleVectorIndexes)
			r.Get("/vector-indexes/recommendations", s.handleVectorIndexRecommendations)
			r.Post("/vector-indexes/rebuild", s.handleRebuildVectorIndex)
			r.Post("/vector-indexes/switch", s.handleSwitchVectorIndex)
			r.Get("/embedding-status", s.handleEmbeddingStatus)
			r.Post("/embed-missing", s.handleEmbedMissing)
			r.Post("/reembed-table", s.handleReembedTable)
		})
	})

	if s.cfg.EnablePprof {
		r.Route("/debug/pprof", func(r chi.Router) {
			r.Get("/", pprof.Index)
			r.Get("/cmdline", pprof.Cmdline)
			r.Get("/profile", pprof.Profile)
			r.Get("/symbol", pprof.Symbol)
			r.Get("/trace", pprof.Trace)
			r.Get("/{name}", func(w http.ResponseWriter, req *http.Request) {
				pprof.Handler(chi.URLParam(req, "name")).ServeHTTP(w, req)
			})
		})
	}
	return r
}

// logRequests emits one structured line per request.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()))
	})
}

// ListenAndServe runs until ctx is cancelled, then drains connections.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", s.cfg.Addr)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.http.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return <-errCh
	}
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.http.Handler }

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{"status": "ok", "version": s.svc.Version()}
	if err := s.svc.Store().Ping(r.Context()); err != nil {
		status["status"] = "degraded"
		status["db"] = err.Error()
		writeJSON(w, http.StatusServiceUnavailable, status)
		return
	}
	writeJSON(w, http.StatusOK, status)
}
