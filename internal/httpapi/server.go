// Package httpapi wires the proxy's HTTP surface: the two forwarding
// endpoints named by the wire protocol (/lmstudio, /ollama), /healthz, and
// /metrics.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/stacklok/balancer/internal/admission"
	"github.com/stacklok/balancer/internal/dispatch"
	"github.com/stacklok/balancer/internal/registry"
	"github.com/stacklok/balancer/pkg/logger"
)

// middlewareTimeout bounds a whole proxied request: the default admission
// wait plus the default total timeout of the outbound backend call.
const middlewareTimeout = admission.DefaultQueueTimeout + dispatch.DefaultTotalTimeout
const readHeaderTimeout = 10 * time.Second

// Deps are the running components a ProxyHandler for one service class
// needs: its registry, its admission queue, and the shared dispatcher.
type Deps struct {
	Registry   *registry.Registry
	Admission  *admission.Queue
	Dispatcher *dispatch.Dispatcher
}

// NewRouter builds the top-level router: one ProxyHandler mount per service
// class, plus /healthz and /metrics, wrapped in the standard middleware
// chain.
func NewRouter(classes map[string]Deps, metricsRegistry *prometheus.Registry) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Timeout(middlewareTimeout),
		loggingMiddleware,
	)

	for path, deps := range classes {
		r.Method(http.MethodPost, "/"+path, NewProxyHandler(deps))
	}
	r.Get("/healthz", healthzHandler)
	r.Handle("/metrics", promhttp.HandlerFor(metricsRegistry, promhttp.HandlerOpts{}))

	return r
}

// loggingMiddleware logs each request's method, path, status, and duration
// once it completes, in the teacher's structured-logging idiom.
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		logger.Infow("request completed",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func healthzHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// Server wraps an http.Server with the graceful-shutdown lifecycle the
// teacher's services use.
type Server struct {
	httpServer *http.Server
}

// NewServer builds a Server bound to addr serving handler.
func NewServer(addr string, handler http.Handler) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: readHeaderTimeout,
		},
	}
}

// Run starts listening and blocks until ctx is cancelled, at which point it
// gracefully shuts down and returns.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Infow("http server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server failed: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown failed: %w", err)
	}
	logger.Info("http server stopped")
	return <-errCh
}
