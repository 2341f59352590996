// Package http serves the worker's operations endpoint: health, readiness,
// Prometheus metrics, scheduled jobs and feature flags. It is not a public
// API and carries no authentication.
package http

import (
	"context"
	"errors"
	"net"
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/admissions-hub/admissions-core/internal/infrastructure/metrics"
	"github.com/admissions-hub/admissions-core/internal/interface/http/handlers"
	"github.com/admissions-hub/admissions-core/pkg/logger"
)

// Config describes the listener.
type Config struct {
	Host string
	Port int

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// EnableMetrics exposes the Prometheus registry on /metrics.
	EnableMetrics bool
}

// DefaultConfig listens on every interface at 9090.
func DefaultConfig() Config {
	return Config{
		Port:            9090,
		ReadTimeout:     5 * time.Second,
		WriteTimeout:    10 * time.Second,
		IdleTimeout:     time.Minute,
		ShutdownTimeout: 10 * time.Second,
		EnableMetrics:   true,
	}
}

// Address is the host:port the server binds.
func (c Config) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Dependencies are what the endpoints report on. Nil fields turn the matching
// endpoint into a stub.
type Dependencies struct {
	Logger *logger.Logger
	Health *handlers.Checker
	Jobs   handlers.JobLister
	Flags  handlers.FlagLister
}

// Server is the operations HTTP server.
type Server struct {
	config  Config
	log     *logger.Logger
	handler http.Handler
}

// NewServer routes the endpoints and wraps them with request IDs, panic
// recovery and debug logging.
func NewServer(cfg Config, deps Dependencies) *Server {
	log := deps.Logger
	if log == nil {
		log = logger.Nop()
	}
	s := &Server{config: cfg, log: log.With(logger.Component("ops_http"))}

	mux := http.NewServeMux()
	mux.Handle("GET /healthz", handlers.Health(deps.Health))
	mux.Handle("GET /readyz", handlers.Ready(deps.Health))
	mux.HandleFunc("GET /livez", handlers.Live)
	mux.Handle("GET /jobs", handlers.Jobs(deps.Jobs))
	mux.Handle("GET /flags", handlers.Flags(deps.Flags))
	if cfg.EnableMetrics {
		mux.Handle("GET /metrics", metrics.Handler())
	}

	s.handler = s.withRequestID(s.recoverPanics(s.logRequests(mux)))
	return s
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler { return s.handler }

// Run serves until ctx is canceled, then drains open requests within
// ShutdownTimeout.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Address())
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:      s.handler,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
		BaseContext:  func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	s.log.Info("ops server listening", logger.String("address", ln.Addr().String()))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	s.log.Info("shutting down ops server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type requestIDKey struct{}

// RequestID returns the ID assigned to the request in ctx.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

func (s *Server) recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if p := recover(); p != nil {
				s.log.Error("ops handler panicked",
					logger.Any("panic", p),
					logger.String("path", r.URL.Path),
					logger.String("stack", string(debug.Stack())),
				)
				handlers.WriteError(w, http.StatusInternalServerError, "internal_error", "unexpected error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// logRequests logs at debug level; probes hit these endpoints constantly.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.Debug("ops request",
			logger.String("method", r.Method),
			logger.String("path", r.URL.Path),
			logger.Int("status", rec.status),
			logger.Duration("duration", time.Since(start)),
			logger.String("request_id", RequestID(r.Context())),
		)
	})
}
