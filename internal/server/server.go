// Package server assembles the trustline HTTP API: storage, the trust
// service, middleware chain, and all route groups.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/mbd888/trustline/internal/auth"
	"github.com/mbd888/trustline/internal/config"
	"github.com/mbd888/trustline/internal/health"
	"github.com/mbd888/trustline/internal/idgen"
	"github.com/mbd888/trustline/internal/ledger"
	"github.com/mbd888/trustline/internal/logging"
	"github.com/mbd888/trustline/internal/metrics"
	"github.com/mbd888/trustline/internal/policy"
	"github.com/mbd888/trustline/internal/preflight"
	"github.com/mbd888/trustline/internal/ratelimit"
	"github.com/mbd888/trustline/internal/security"
	"github.com/mbd888/trustline/internal/traces"
	"github.com/mbd888/trustline/internal/trust"
	"github.com/mbd888/trustline/internal/validation"
	"github.com/mbd888/trustline/internal/webhooks"
)

// Server wraps the HTTP server and dependencies
type Server struct {
	cfg           *config.Config
	events        ledger.Store
	policies      policy.Store
	decisions     preflight.Store
	snapshotStore trust.SnapshotStore
	trustService  *trust.Service
	snapshotWrk   *trust.Worker
	resolver      *auth.Resolver
	db            *sql.DB // nil if using in-memory
	checks        *health.Registry
	limiter       *ratelimit.Limiter
	router        *gin.Engine
	httpSrv       *http.Server
	logger        *slog.Logger
	shutdownTrace func(context.Context) error
	cancelRunCtx  context.CancelFunc // cancels background goroutines started in Run

	ready   atomic.Bool // flips false first thing in Shutdown
	healthy atomic.Bool
}

// Option adjusts a Server during New.
type Option func(*Server)

// WithLogger replaces the logger built from config.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// New wires storage, the trust service, and the router from cfg.
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		logger: logging.New(cfg.LogLevel, cfg.LogFormat),
	}

	for _, opt := range opts {
		opt(s)
	}

	// Storage: Postgres if DATABASE_URL set, otherwise in-memory
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}

		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		if err := db.Ping(); err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		s.db = db
		s.events = ledger.NewPostgresStore(db)
		s.policies = policy.NewPostgresStore(db)
		s.decisions = preflight.NewPostgresStore(db)
		s.snapshotStore = trust.NewPostgresSnapshotStore(db)
		s.logger.Info("using PostgreSQL storage", "url", maskDSN(cfg.DatabaseURL))
	} else {
		s.events = ledger.NewMemoryStore()
		s.policies = policy.NewMemoryStore()
		s.decisions = preflight.NewMemoryStore()
		s.snapshotStore = trust.NewMemorySnapshotStore()
		s.logger.Info("using in-memory storage (data will not persist)")
	}

	// Webhooks share the primary storage mode
	var webhookStore webhooks.Store
	if s.db != nil {
		webhookStore = webhooks.NewPostgresStore(s.db)
	} else {
		webhookStore = webhooks.NewMemoryStore()
	}
	dispatcher := webhooks.NewDispatcher(webhookStore)
	emitter := webhooks.NewEmitter(dispatcher, s.logger)

	engine := trust.NewEngine()
	s.trustService = trust.NewService(engine, s.events, s.policies, emitter)

	if cfg.SnapshotInterval > 0 {
		s.snapshotWrk = trust.NewWorker(s.trustService, s.snapshotStore, cfg.SnapshotInterval, s.logger)
	}

	s.resolver = auth.NewResolver(cfg.APIKeys, cfg.AdminSecret, !cfg.IsProduction())
	s.logger.Info("API authentication enabled", "keys", len(cfg.APIKeys), "demoMode", !cfg.IsProduction())

	s.checks = health.NewRegistry()
	if s.db != nil {
		db := s.db
		s.checks.Register("database", func(ctx context.Context) health.Status {
			if err := db.PingContext(ctx); err != nil {
				return health.Status{Name: "database", Healthy: false}
			}
			return health.Status{Name: "database", Healthy: true}
		})
	} else {
		s.checks.Register("storage", func(ctx context.Context) health.Status {
			return health.Status{Name: "storage", Healthy: true, Detail: "in-memory"}
		})
	}

	if cfg.RateLimitPerMinute > 0 {
		burst := cfg.RateLimitPerMinute / 6
		if burst < 1 {
			burst = 1
		}
		s.limiter = ratelimit.New(ratelimit.Config{
			RequestsPerMinute: cfg.RateLimitPerMinute,
			BurstSize:         burst,
			CleanupInterval:   time.Minute,
		})
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes(webhookStore)

	s.healthy.Store(true)

	return s, nil
}

// maskDSN strips the password out of a connection string before it is
// logged.
func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}

// setupMiddleware installs the global chain. Order matters: metrics and
// security headers wrap everything, the request ID must exist before the
// logging middleware reads it, and tenant resolution comes last so rate
// limiting inside /v1 can key on the tenant.
func (s *Server) setupMiddleware() {
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logging.L(c.Request.Context()).Error("panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An unexpected error occurred",
		})
	}))

	s.router.Use(metrics.Middleware())
	s.router.Use(security.HeadersMiddleware())
	s.router.Use(security.CORSMiddleware(s.cfg.AllowedOrigins))
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))
	s.router.Use(s.requestIDMiddleware())
	s.router.Use(s.loggingMiddleware())
	s.router.Use(s.resolver.Middleware())
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// A load balancer may already have assigned one.
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = generateRequestID()
		}

		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		ctx = logging.WithLogger(ctx, s.logger)
		c.Request = c.Request.WithContext(ctx)

		c.Header("X-Request-ID", requestID)

		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		status := c.Writer.Status()
		attrs := []any{
			"method", c.Request.Method,
			"path", path,
			"status", status,
			"latency_ms", time.Since(start).Milliseconds(),
		}

		logger := logging.L(c.Request.Context())
		switch {
		case status >= 500:
			logger.Error("request completed", append(attrs, "client_ip", c.ClientIP())...)
		case status >= 400:
			logger.Warn("request completed", attrs...)
		default:
			logger.Info("request completed", attrs...)
		}
	}
}

func (s *Server) setupRoutes(webhookStore webhooks.Store) {
	// Health & metrics endpoints
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/health/live", s.livenessHandler)
	s.router.GET("/health/ready", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	// API info
	s.router.GET("/api", s.infoHandler)

	// V1 API group: everything below requires a resolved tenant
	v1 := s.router.Group("/v1")
	if s.limiter != nil {
		v1.Use(s.limiter.Middleware())
	}
	v1.Use(auth.RequireTenant())
	v1.Use(validation.AgentParamMiddleware())

	trustHandler := trust.NewHandlerFull(s.trustService, s.snapshotStore)
	trustHandler.RegisterRoutes(v1)

	policyHandler := policy.NewHandler(s.policies)
	policyHandler.RegisterRoutes(v1)

	preflightHandler := preflight.NewHandler(s.trustService, s.policies, s.decisions)
	preflightHandler.RegisterRoutes(v1)

	// Webhook subscription management is an admin surface: subscriptions
	// carry delivery secrets.
	webhookHandler := webhooks.NewHandler(webhookStore)
	adminWebhooks := v1.Group("")
	adminWebhooks.Use(s.resolver.RequireAdmin())
	webhookHandler.RegisterRoutes(adminWebhooks)
}

// HealthResponse for health check endpoints
type HealthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	Checks    map[string]string `json:"checks,omitempty"`
	Timestamp string            `json:"timestamp"`
}

func (s *Server) healthHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	healthy, statuses := s.checks.CheckAll(ctx)

	checks := make(map[string]string, len(statuses))
	for _, st := range statuses {
		switch {
		case !st.Healthy:
			checks[st.Name] = "unhealthy"
		case st.Detail != "":
			checks[st.Name] = st.Detail
		default:
			checks[st.Name] = "healthy"
		}
	}

	status := "healthy"
	httpStatus := http.StatusOK
	if !healthy {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, HealthResponse{
		Status:    status,
		Version:   "0.1.0",
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) livenessHandler(c *gin.Context) {
	if !s.healthy.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func (s *Server) infoHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":        "Trustline",
		"description": "Trust scoring and preflight decisions for AI agents",
		"version":     "0.1.0",
	})
}

// Run serves until the context ends, a signal arrives, or the listener
// fails, then drains through Shutdown.
func (s *Server) Run(ctx context.Context) error {
	// Background goroutines hang off runCtx so Shutdown can stop them.
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

	shutdownTrace, err := traces.Init(runCtx, s.cfg.OTLPEndpoint, s.logger)
	if err != nil {
		s.logger.Warn("failed to initialize tracing", "error", err)
	} else {
		s.shutdownTrace = shutdownTrace
	}

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errChan := make(chan error, 1)

	go func() {
		s.logger.Info("starting server", "port", s.cfg.Port, "env", s.cfg.Env)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// Start periodic trust snapshots
	if s.snapshotWrk != nil {
		go s.snapshotWrk.Start(runCtx)
		s.logger.Info("snapshot worker started", "interval", s.cfg.SnapshotInterval)
	}

	// Start DB pool stats collection
	if s.db != nil {
		go metrics.StartDBStatsCollector(runCtx, s.db, 15*time.Second)
	}

	// Mark as ready after brief delay for startup
	go func() {
		time.Sleep(100 * time.Millisecond)
		s.ready.Store(true)
		s.logger.Info("server ready")
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		s.logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown()
}

// Shutdown drains in-flight requests, then stops the worker, limiter,
// tracer, and database in that order.
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpSrv.Shutdown(ctx); err != nil {
		s.logger.Error("shutdown error", "error", err)
		return err
	}

	if s.snapshotWrk != nil {
		s.snapshotWrk.Stop()
		s.logger.Info("snapshot worker stopped")
	}

	if s.limiter != nil {
		s.limiter.Stop()
	}

	if s.shutdownTrace != nil {
		if err := s.shutdownTrace(ctx); err != nil {
			s.logger.Error("trace shutdown error", "error", err)
		}
	}

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("database close error", "error", err)
		} else {
			s.logger.Info("database connection closed")
		}
	}

	s.logger.Info("server stopped")
	return nil
}

func generateRequestID() string {
	return idgen.WithPrefix("req_")
}
