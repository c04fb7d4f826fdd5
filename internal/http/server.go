package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"cuentas/internal/core"
	applog "cuentas/internal/log"
	"cuentas/internal/middleware/ratelimit"
	"cuentas/internal/middleware/security"
	"cuentas/internal/report"
	"cuentas/internal/services"
)

// Options carries the collaborators of a Server. Service is required; the rest
// fall back to defaults.
type Options struct {
	Service         *services.LedgerService
	Exporter        *report.ExcelExporter
	Limiter         *ratelimit.Limiter
	Logger          *applog.Logger
	DisplayCurrency core.Currency
	// Ready reports whether dependencies (e.g. the database) are reachable.
	Ready func(context.Context) error
	// Now is used for default month/year values.
	Now func() time.Time
}

type Server struct {
	http.Server
	svc      *services.LedgerService
	exporter *report.ExcelExporter
	limiter  *ratelimit.Limiter
	detector *security.Detector
	logger   *applog.Logger
	display  core.Currency
	ready    func(context.Context) error
	now      func() time.Time

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run http.Server.
func NewServer(addr string, opts Options) *Server {
	s := &Server{
		svc:      opts.Service,
		exporter: opts.Exporter,
		limiter:  opts.Limiter,
		detector: security.NewDetector(),
		logger:   opts.Logger,
		display:  opts.DisplayCurrency,
		ready:    opts.Ready,
		now:      opts.Now,
	}
	if s.logger == nil {
		s.logger = applog.New(applog.DefaultConfig())
	}
	s.logger = s.logger.WithComponent(applog.ComponentHTTP)
	if s.limiter == nil {
		s.limiter = ratelimit.NewLimiter(ratelimit.DefaultConfig())
	}
	if s.display == "" {
		s.display = core.COP
	}
	if s.now == nil {
		s.now = time.Now
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("GET /accounts", s.handleListAccounts)
	mux.HandleFunc("POST /accounts", s.handleCreateAccount)
	mux.HandleFunc("GET /accounts/{id}", s.handleGetAccount)
	mux.HandleFunc("PUT /accounts/{id}", s.handleUpdateAccount)
	mux.HandleFunc("DELETE /accounts/{id}", s.handleDeleteAccount)

	for _, kind := range []core.Kind{core.Expense, core.Income} {
		base := "/" + string(kind) + "s"
		mux.HandleFunc("GET "+base, s.handleListTransactions(kind))
		mux.HandleFunc("POST "+base, s.handleCreateTransaction(kind))
		mux.HandleFunc("GET "+base+"/{id}", s.handleGetTransaction(kind))
		mux.HandleFunc("PUT "+base+"/{id}", s.handleUpdateTransaction(kind))
		mux.HandleFunc("DELETE "+base+"/{id}", s.handleDeleteTransaction(kind))
	}

	mux.HandleFunc("GET /summary", s.handleSummary)
	mux.HandleFunc("GET /exchange-rate", s.handleExchangeRate)
	mux.HandleFunc("GET /export/excel", s.handleExportExcel)

	limited := s.limiter.Middleware(s.detector.ClientIP, func(w http.ResponseWriter, r *http.Request) {
		applog.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
			applog.FieldClientIP, s.detector.ClientIP(r),
			applog.FieldPath, r.URL.Path)
		writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "rate limit exceeded"})
	})(mux)
	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())

	s.Server = http.Server{
		Addr:              addr,
		Handler:           s.withRequestLogging(headers.Middleware(limited)),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// withRequestLogging attaches a request-scoped logger and logs completion.
func (s *Server) withRequestLogging(next http.Handler) http.Handler {
	withLogger := applog.Middleware(s.logger, requestID)
	return withLogger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		clientIP := s.detector.ClientIP(r)

		w.Header().Set("X-Request-ID", requestID(r))
		if s.detector.Suspicious(r) {
			applog.FromContext(r.Context()).WarnContext(r.Context(), "Suspicious request",
				applog.FieldClientIP, clientIP,
				applog.FieldPath, r.URL.Path,
				applog.FieldUserAgent, r.Header.Get("User-Agent"))
		}

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		applog.LogHTTPEnd(r.Context(), r, rw.statusCode, time.Since(start).Milliseconds(), clientIP)
	}))
}

// requestID keeps a caller-supplied X-Request-ID and assigns one otherwise.
// The value is stored back on the request so every reader sees the same id.
func requestID(r *http.Request) string {
	if id := r.Header.Get("X-Request-ID"); id != "" {
		return id
	}
	id := uuid.NewString()
	r.Header.Set("X-Request-ID", id)
	return id
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
	wrote      bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wrote {
		rw.statusCode = code
		rw.wrote = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wrote = true
	return rw.ResponseWriter.Write(b)
}

// Shutdown gracefully shuts down the server once.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.logger.LogOp(ctx, applog.OpShutdown, nil, applog.NewFields())
		err = s.Server.Shutdown(ctx)
		s.logger.InfoContext(ctx, "Request guard totals",
			"rate_limited", s.limiter.Rejected(),
			"rate_limit_clients", s.limiter.ActiveClients(),
			"suspicious", s.detector.SuspiciousCount())
	})
	return err
}

// Limiter exposes the rate limiter so its cleanup loop can be supervised.
func (s *Server) Limiter() *ratelimit.Limiter {
	return s.limiter
}
