// Package web exposes the portage API over HTTP: synchronous probe and
// plan endpoints, job management for scans and transfers, and per-job
// server-sent event streams.
package web

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/user/portage/internal/orchestrator"
	"github.com/user/portage/internal/probe"
	"github.com/user/portage/internal/storage"
)

// Server is the HTTP API server.
type Server struct {
	port    int
	log     *slog.Logger
	orch    *orchestrator.Orchestrator
	prober  *probe.Prober
	history *storage.History
	srv     *http.Server
}

// NewServer creates the API server. The history store may be nil when
// persistence is disabled.
func NewServer(port int, log *slog.Logger, orch *orchestrator.Orchestrator, prober *probe.Prober, history *storage.History) *Server {
	return &Server{
		port:    port,
		log:     log,
		orch:    orch,
		prober:  prober,
		history: history,
	}
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/probe", s.handleProbe)
	mux.HandleFunc("/api/scans", s.handleStartScan)
	mux.HandleFunc("/api/plan", s.handlePlan)
	mux.HandleFunc("/api/transfers", s.handleStartTransfer)
	mux.HandleFunc("/api/jobs", s.handleJobs)
	mux.HandleFunc("/api/jobs/", s.handleJob) // /api/jobs/{id}[/cancel|/pause|/resume|/events]
	mux.HandleFunc("/api/history", s.handleHistory)

	return mux
}

// Start runs the server until ctx is done, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.srv = &http.Server{
		Addr:        fmt.Sprintf(":%d", s.port),
		Handler:     s.loggingMiddleware(s.routes()),
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: SSE streams are long-lived.
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := s.srv.Shutdown(shutCtx); err != nil {
			s.log.Warn("server shutdown failed", "error", err)
		}
	}()

	s.log.Info("api server starting", "port", s.port)
	if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debug("request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}
