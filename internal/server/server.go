// Package server exposes metrics and gate health over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/goforbroke1006/stagechain"
	"github.com/goforbroke1006/stagechain/internal/logging"
)

const shutdownTimeout = 5 * time.Second

type Server struct {
	http   *http.Server
	logger *logging.Logger
}

// New builds the router: GET /metrics serves metrics, GET /healthz reports the gate.
func New(addr string, metrics http.Handler, gate stagechain.Gate, logger *logging.Logger) *Server {
	return &Server{
		http: &http.Server{
			Addr:              addr,
			Handler:           Router(metrics, gate),
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger.WithComponent("server"),
	}
}

func Router(metrics http.Handler, gate stagechain.Gate) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Method(http.MethodGet, "/metrics", metrics)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		if gate != nil && !gate.Holds() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("gate closed\n"))
			return
		}
		_, _ = w.Write([]byte("ok\n"))
	})
	return r
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("serving metrics", "addr", s.http.Addr)
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	}
}
