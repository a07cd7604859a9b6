package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/aretw0/mqlua/internal/logging"
	"github.com/aretw0/mqlua/pkg/observability"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Status is the body of GET /status.
type Status struct {
	Version   string                 `json:"version"`
	Tracking  bool                   `json:"tracking"`
	Active    int64                  `json:"active"`
	Lifecycle observability.Snapshot `json:"lifecycle"`
}

// StatusFunc reports the runtime view served on /status.
type StatusFunc func() Status

// NewHandler creates the admin handler: health, status and Prometheus metrics.
func NewHandler(metrics *observability.Metrics, status StatusFunc) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("ok\n"))
	})

	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		var s Status
		if status != nil {
			s = status()
		}
		if metrics != nil {
			s.Lifecycle = metrics.Snapshot()
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(s); err != nil {
			slog.Error("status response encode failed", "err", err)
		}
	})

	if metrics != nil {
		r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{}))
	}
	return r
}

// Server serves the admin handler until its context ends.
type Server struct {
	srv    *http.Server
	logger *slog.Logger
}

// ServerOption configures the Server.
type ServerOption func(*Server)

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer creates a Server listening on addr once started.
func NewServer(addr string, handler http.Handler, opts ...ServerOption) *Server {
	s := &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start binds the listener and serves in the background. The returned
// address is the one actually bound (useful with port 0).
func (s *Server) Start(ctx context.Context) (string, error) {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return "", err
	}
	s.logger.Info("admin endpoint listening", "addr", ln.Addr().String())

	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("admin endpoint stopped", "err", err)
		}
	}()
	go func() {
		<-ctx.Done()
		_ = s.Shutdown()
	}()
	return ln.Addr().String(), nil
}

// Shutdown stops the server, waiting briefly for in-flight requests.
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}
