package http

import (
	"Neurologix/backend/go/internal/config"
	"Neurologix/backend/go/pkg/circuitbreaker"
	"Neurologix/backend/go/pkg/httpmiddleware"
	"Neurologix/backend/go/pkg/logger"
	"Neurologix/backend/go/pkg/ratelimiter"
	"context"
	"fmt"
	"net/http"
	"time"
)

const (
	defaultMaxClients  = 10000
	defaultIdleTimeout = 10 * time.Minute
)

// Middleware defines a function to wrap an http.Handler.
type Middleware func(http.Handler) http.Handler

// Server wraps http.Server and applies the configured rate limiting and
// circuit breaking in front of every registered handler.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	log        *logger.Logger
	keyFunc    httpmiddleware.KeyFunc
}

// ServerOption defines a function for configuring a Server.
type ServerOption func(*Server)

// WithAddress sets the address for the server to listen on.
func WithAddress(addr string) ServerOption {
	return func(s *Server) {
		s.httpServer.Addr = addr
	}
}

// WithLogger sets the logger used for lifecycle and breaker transitions.
func WithLogger(log *logger.Logger) ServerOption {
	return func(s *Server) {
		s.log = log
	}
}

// WithRateLimitKey replaces how callers are told apart by the rate limiter.
func WithRateLimitKey(key httpmiddleware.KeyFunc) ServerOption {
	return func(s *Server) {
		s.keyFunc = key
	}
}

// NewServer creates a Server from cfg. The address defaults to
// cfg.Server.Address, then ":8080". WriteTimeout stays zero because answers
// are streamed for as long as the pipeline's request budget allows.
func NewServer(cfg *config.AppConfig, opts ...ServerOption) (*Server, error) {
	mux := http.NewServeMux()
	srv := &Server{
		httpServer: &http.Server{
			Addr:              cfg.Server.Address,
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       2 * time.Minute,
		},
		mux: mux,
		log: logger.Discard(),
	}
	for _, opt := range opts {
		opt(srv)
	}
	if srv.httpServer.Addr == "" {
		srv.httpServer.Addr = ":8080"
	}

	var middlewares []Middleware

	if cfg.Middleware.RateLimiter.Enabled {
		limiter, err := createRateLimiter(cfg.Middleware.RateLimiter)
		if err != nil {
			return nil, fmt.Errorf("failed to create rate limiter: %w", err)
		}
		srv.log.Info(fmt.Sprintf("Enabling Rate Limiter middleware with algorithm: %s", algorithmName(cfg.Middleware.RateLimiter)))
		middlewares = append(middlewares, httpmiddleware.RateLimit(limiter, srv.keyFunc))
	}

	if cfg.Middleware.CircuitBreaker.Enabled {
		breaker, err := createCircuitBreaker(cfg.Middleware.CircuitBreaker, srv.log)
		if err != nil {
			return nil, fmt.Errorf("failed to create circuit breaker: %w", err)
		}
		srv.log.Info("Enabling Circuit Breaker middleware.")
		middlewares = append(middlewares, httpmiddleware.CircuitBreak(breaker))
	}

	var handler http.Handler = mux
	for i := len(middlewares) - 1; i >= 0; i-- {
		handler = middlewares[i](handler)
	}
	srv.httpServer.Handler = handler

	return srv, nil
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Handler returns the fully wrapped handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Handle registers the handler for the given pattern.
func (s *Server) Handle(pattern string, handler http.Handler) {
	s.mux.Handle(pattern, handler)
}

// HandleFunc registers the handler function for the given pattern.
func (s *Server) HandleFunc(pattern string, handler http.HandlerFunc) {
	s.mux.HandleFunc(pattern, handler)
}

// ListenAndServe starts the HTTP server. It returns nil after Shutdown.
func (s *Server) ListenAndServe() error {
	s.log.Info(fmt.Sprintf("Starting server on %s", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func algorithmName(cfg config.RateLimiterConfig) string {
	if cfg.Algorithm == "" {
		return "tokenBucket"
	}
	return cfg.Algorithm
}

// createRateLimiter builds a per-caller limiter from the configuration.
func createRateLimiter(cfg config.RateLimiterConfig) (*ratelimiter.Keyed, error) {
	var factory ratelimiter.Factory
	switch algorithmName(cfg) {
	case "tokenBucket":
		conf := cfg.TokenBucket
		if conf.Rate <= 0 || conf.Capacity <= 0 {
			return nil, fmt.Errorf("tokenBucket rate and capacity must be positive")
		}
		factory = func() ratelimiter.RateLimiter { return ratelimiter.NewTokenBucket(conf.Rate, conf.Capacity) }
	case "fixedWindow":
		conf := cfg.FixedWindow
		window, err := time.ParseDuration(conf.Window)
		if err != nil {
			return nil, fmt.Errorf("invalid fixedWindow duration: %w", err)
		}
		factory = func() ratelimiter.RateLimiter { return ratelimiter.NewFixedWindowCounter(conf.Limit, window) }
	case "slidingCounter":
		conf := cfg.SlidingCounter
		window, err := time.ParseDuration(conf.Window)
		if err != nil {
			return nil, fmt.Errorf("invalid slidingCounter duration: %w", err)
		}
		factory = func() ratelimiter.RateLimiter {
			return ratelimiter.NewSlidingWindowCounter(conf.Limit, window, conf.NumBuckets)
		}
	default:
		return nil, fmt.Errorf("unknown rate limiter algorithm: %s", cfg.Algorithm)
	}

	maxClients := cfg.MaxClients
	if maxClients <= 0 {
		maxClients = defaultMaxClients
	}
	idle := defaultIdleTimeout
	if cfg.IdleTimeout != "" {
		d, err := time.ParseDuration(cfg.IdleTimeout)
		if err != nil {
			return nil, fmt.Errorf("invalid rate limiter idleTimeout: %w", err)
		}
		idle = d
	}
	return ratelimiter.NewKeyed(factory, maxClients, idle)
}

// CreateCircuitBreaker builds a breaker from the configuration and logs its
// transitions. It is shared by the server middleware and outbound clients.
func CreateCircuitBreaker(cfg config.CircuitBreakerConfig, log *logger.Logger) (circuitbreaker.CircuitBreaker, error) {
	return createCircuitBreaker(cfg, log)
}

func createCircuitBreaker(cfg config.CircuitBreakerConfig, log *logger.Logger) (circuitbreaker.CircuitBreaker, error) {
	timeout, err := time.ParseDuration(cfg.Timeout)
	if err != nil {
		return nil, fmt.Errorf("invalid circuit breaker timeout duration: %w", err)
	}
	if log == nil {
		log = logger.Discard()
	}
	return circuitbreaker.New(cfg.FailureThreshold, cfg.SuccessThreshold, timeout,
		circuitbreaker.WithStateChange(func(from, to circuitbreaker.State) {
			log.Warn(fmt.Sprintf("circuit breaker %s -> %s", from, to))
		}),
	), nil
}
