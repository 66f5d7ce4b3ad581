package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"

	"github.com/akolanti/BidExtract/internal/config"
	"github.com/akolanti/BidExtract/internal/middleware"
	"github.com/akolanti/BidExtract/pkg/logger_i"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// StatusFunc reports what /healthz returns alongside "ok", e.g. the
// progress of the run in flight.
type StatusFunc func() any

type Server struct {
	http   *http.Server
	logger *logger_i.Logger
}

// NewRouter serves /metrics and /healthz; mounts add the run API when the
// process exposes one.
func NewRouter(status StatusFunc, mounts ...func(chi.Router)) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Trace, middleware.Metrics, middleware.RateLimit(middleware.DefaultIPRateLimiter()))

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		body := map[string]any{"status": "ok"}
		if status != nil {
			body["run"] = status()
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(body)
	})
	for _, mount := range mounts {
		mount(r)
	}
	return r
}

func New(listenAddr string, status StatusFunc, mounts ...func(chi.Router)) *Server {
	return &Server{
		http: &http.Server{
			Addr:         listenAddr,
			Handler:      NewRouter(status, mounts...),
			ReadTimeout:  config.ReadTimeout,
			WriteTimeout: config.WriteTimeout,
			IdleTimeout:  config.IdleTimeout,
		},
		logger: logger_i.NewLogger("Server"),
	}
}

// Serve listens until ctx is done, then shuts down gracefully within
// config.ShutdownContextTimeout.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return err
	}
	return s.serve(ctx, ln)
}

func (s *Server) serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Server is listening at", "address", ln.Addr().String())
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			s.logger.Error("Server crashed", "error", err, "addr", s.http.Addr)
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownContextTimeout)
	defer cancel()
	s.http.SetKeepAlivesEnabled(false)
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("Could not shutdown gracefully", "error", err)
		return err
	}
	s.logger.Info("Server stopped")
	return nil
}
