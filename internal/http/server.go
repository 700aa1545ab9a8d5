package http

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"fintrack/internal/auth"
	"fintrack/internal/cache"
	applog "fintrack/internal/log"
	"fintrack/internal/middleware/cors"
	"fintrack/internal/middleware/ratelimit"
	"fintrack/internal/middleware/security"
	"fintrack/internal/middleware/trace"
	"fintrack/internal/services"
)

// Pinger reports whether the backing database is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// StatsSource is a cache that exposes hit and miss counters.
type StatsSource interface {
	Stats() cache.Stats
}

// Deps is everything the API needs. Users, Ledger, Budgets and Reports are required.
type Deps struct {
	Users   *services.UserService
	Ledger  *services.LedgerService
	Budgets *services.BudgetService
	Reports *services.ReportService
	Tokens  *auth.TokenManager
	DB      Pinger
	Logger  *applog.Logger

	// Caches are reported on /metrics by name.
	Caches map[string]StatsSource

	// UploadDir is served under /uploads/ when set (local picture backend).
	UploadDir      string
	UploadMaxBytes int64

	AuthRequired       bool
	CORSOrigins        []string
	RateLimitPerMinute int
	TrustedProxies     []string
}

type Server struct {
	http.Server
	deps     Deps
	logger   *applog.Logger
	limiter  *ratelimit.Limiter
	tracer   *trace.Middleware
	detector *security.Detector
	audit    *applog.StructuredLogger
	started  time.Time

	shutdownOnce sync.Once
}

// NewServer wires routes and middleware, returning a ready-to-run server.
func NewServer(addr string, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	logger = logger.WithComponent(applog.ComponentHTTP)
	if deps.UploadMaxBytes <= 0 {
		deps.UploadMaxBytes = 5 << 20
	}

	s := &Server{
		deps:     deps,
		logger:   logger,
		detector: security.NewDetector(),
		audit:    applog.NewStructuredLogger(logger),
		started:  time.Now(),
	}
	for _, cidr := range deps.TrustedProxies {
		if err := s.detector.AddTrustedProxy(cidr); err != nil {
			logger.Warn("Ignoring invalid trusted proxy", "cidr", cidr, "error", err)
		}
	}

	limits := ratelimit.DefaultConfig()
	limits.ExemptPaths = []string{"/healthz", "/readyz", "/metrics"}
	if deps.RateLimitPerMinute > 0 {
		limits.RequestsPerMinute = deps.RateLimitPerMinute
	}
	s.limiter = ratelimit.NewLimiter(limits)
	s.tracer = trace.NewMiddleware(s.detector.ExtractClientIP, logger)

	router := s.routes()

	var handler http.Handler = router
	handler = applog.RequestIDMiddleware(func(r *http.Request) string {
		return trace.GetRequestID(r.Context())
	})(handler)
	handler = applog.Middleware(logger)(handler)
	handler = s.limiter.Middleware(s.detector.ExtractClientIP, func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusTooManyRequests, "Rate limit exceeded. Please try again later.")
	})(handler)
	handler = cors.Middleware(deps.CORSOrigins)(handler)
	handler = s.detector.Middleware(handler)
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)
	handler = s.tracer.Middleware(handler)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	r.HandleFunc("/healthz", handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/readyz", s.handleReady).Methods(http.MethodGet)
	r.HandleFunc("/metrics", s.handleMetrics).Methods(http.MethodGet)

	r.HandleFunc("/signup", s.handleSignup).Methods(http.MethodPost)
	r.HandleFunc("/login", s.handleLogin).Methods(http.MethodPost)

	if s.deps.UploadDir != "" {
		files := http.StripPrefix("/uploads/", http.FileServer(http.Dir(s.deps.UploadDir)))
		r.PathPrefix("/uploads/").Handler(security.StaticAssetMiddleware(3600)(noDirectoryListing(files))).
			Methods(http.MethodGet, http.MethodHead)
	}

	guard := auth.NewGuard(s.deps.Tokens, s.deps.AuthRequired, userIDVar, authError)
	api := r.PathPrefix("/api").Subrouter()
	api.Use(guard.Middleware)

	api.HandleFunc("/user/{userId}", s.handleGetUser).Methods(http.MethodGet)
	api.HandleFunc("/user/{userId}", s.handleUpdateUser).Methods(http.MethodPut)

	api.HandleFunc("/transactions/{userId}/export", s.handleExportTransactions).Methods(http.MethodGet)
	api.HandleFunc("/transactions/{userId}", s.handleListTransactions).Methods(http.MethodGet)
	api.HandleFunc("/transactions/{userId}", s.handleCreateTransaction).Methods(http.MethodPost)
	api.HandleFunc("/transactions/{userId}/{id:[0-9]+}", s.handleUpdateTransaction).Methods(http.MethodPut)
	api.HandleFunc("/transactions/{userId}/{id:[0-9]+}", s.handleDeleteTransaction).Methods(http.MethodDelete)

	api.HandleFunc("/budgets/{userId}", s.handleListBudgets).Methods(http.MethodGet)
	api.HandleFunc("/budgets/{userId}", s.handleCreateBudget).Methods(http.MethodPost)
	api.HandleFunc("/budgets/{userId}/{budgetId:[0-9]+}", s.handleUpdateBudget).Methods(http.MethodPut)
	api.HandleFunc("/budgets/{userId}/{budgetId:[0-9]+}", s.handleDeleteBudget).Methods(http.MethodDelete)

	api.HandleFunc("/totalBudget/{userId}", s.handleGetTotalBudget).Methods(http.MethodGet)
	api.HandleFunc("/totalBudget/{userId}", s.handleSetTotalBudget).Methods(http.MethodPost)

	api.HandleFunc("/summary/{userId}", s.handleSummary).Methods(http.MethodGet)
	api.HandleFunc("/dashboard/{userId}", s.handleDashboard).Methods(http.MethodGet)
	api.HandleFunc("/notifications/{userId}", s.handleNotifications).Methods(http.MethodGet)

	return r
}

// noDirectoryListing hides the index pages http.FileServer renders for directories.
func noDirectoryListing(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/") {
			writeError(w, http.StatusNotFound, "Not found")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Shutdown gracefully shuts down the server and the limiter's cleanup loop.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if s.limiter != nil {
			s.limiter.Stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.DB != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.deps.DB.Ping(ctx); err != nil {
			applog.FromContext(r.Context()).WarnContext(r.Context(), "Readiness check failed", "error", err)
			writeError(w, http.StatusServiceUnavailable, "Database unavailable")
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
