package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	applog "sitereports/internal/log"
	"sitereports/internal/middleware/ratelimit"
	"sitereports/internal/middleware/security"
	"sitereports/internal/middleware/trace"
	"sitereports/internal/services"
)

// Deps are the collaborators the server routes to.
type Deps struct {
	Registry *services.SessionRegistry
	// Ready reports whether backing stores are reachable. Nil means always ready.
	Ready  func(ctx context.Context) error
	Logger *applog.Logger
	// ExportLimit caps downloads per client per minute; zero uses the default.
	ExportLimit int
	// TrustedProxies are CIDRs, beyond loopback and private ranges, whose
	// forwarding headers are believed.
	TrustedProxies []string
}

type Server struct {
	http.Server
	registry *services.SessionRegistry
	ready    func(ctx context.Context) error
	logger   *applog.Logger
	events   *applog.StructuredLogger
	tracer   *trace.Middleware
	limiter  *ratelimit.Limiter
	clientIP *security.ClientIPResolver

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run http.Server.
func NewServer(addr string, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	logger = logger.WithComponent(applog.ComponentHTTP)

	limitCfg := ratelimit.DefaultConfig()
	if deps.ExportLimit > 0 {
		limitCfg.RequestsPerMinute = deps.ExportLimit
	}

	s := &Server{
		registry: deps.Registry,
		ready:    deps.Ready,
		logger:   logger,
		events:   applog.NewStructuredLogger(logger),
		limiter:  ratelimit.NewLimiter(limitCfg),
		clientIP: security.NewClientIPResolver(),
	}
	for _, cidr := range deps.TrustedProxies {
		if err := s.clientIP.AddTrustedProxy(cidr); err != nil {
			logger.Warn("Ignoring trusted proxy", applog.FieldError, err)
		}
	}
	s.tracer = trace.NewMiddleware(s.clientIP.ClientIP)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	reports := http.NewServeMux()
	reports.HandleFunc("GET /reports", s.handleMount)
	reports.HandleFunc("GET /reports/view", s.handleView)
	reports.HandleFunc("POST /reports/filter", s.handleFilter)
	reports.HandleFunc("POST /reports/prefetch", s.handlePrefetch)
	reports.Handle("GET /reports/export", s.limiter.Middleware(s.rateLimitKey, s.onRateLimited)(http.HandlerFunc(s.handleExport)))
	mux.Handle("/reports", security.NoStore(reports))
	mux.Handle("/reports/", security.NoStore(reports))

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	s.Server = http.Server{
		Addr:              addr,
		Handler:           applog.Middleware(logger)(s.tracer.Middleware(headers.Middleware(mux))),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// Shutdown gracefully shuts down the server and its background routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// Metrics returns request tracing counters.
func (s *Server) Metrics() trace.Metrics {
	return s.tracer.GetMetrics()
}

// rateLimitKey prefers the client cookie so users behind one NAT do not share a budget.
func (s *Server) rateLimitKey(r *http.Request) string {
	if id, ok := existingClientID(r); ok {
		return "client:" + id
	}
	return "ip:" + s.clientIP.ClientIP(r)
}

func (s *Server) onRateLimited(w http.ResponseWriter, r *http.Request) {
	applog.FromContext(r.Context()).WarnContext(r.Context(), "Export rate limit exceeded",
		applog.FieldClientIP, s.clientIP.ClientIP(r))
	const msg = "too many exports, try again shortly"
	ErrorResponse(http.StatusTooManyRequests, msg).
		TriggerNotification(NotificationWarning, msg, 5000).
		Write(w)
}
