// Package main wires the gateway's HTTP surface: handler construction,
// middleware chaining, and the listener lifecycle (start, reload, shutdown).
package main

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/openrelay/gateway/adminauth"
	"github.com/openrelay/gateway/api/handlers"
	"github.com/openrelay/gateway/config"
	"github.com/openrelay/gateway/dispatch"
	"github.com/openrelay/gateway/internal/database"
	"github.com/openrelay/gateway/internal/metrics"
	"github.com/openrelay/gateway/internal/ratelimit"
	"github.com/openrelay/gateway/internal/server"
	"github.com/openrelay/gateway/internal/telemetry"
	"github.com/openrelay/gateway/modelid"
	"github.com/openrelay/gateway/provider"
	"github.com/openrelay/gateway/quota"
	"github.com/openrelay/gateway/store"
)

// Server is the gateway's main process: it owns the database connection,
// the dispatch/quota/auth layers built on top of it, every HTTP handler,
// and the two listeners (API, metrics) that expose them.
type Server struct {
	cfg        *config.Config
	configPath string
	logger     *zap.Logger
	otel       *telemetry.Providers

	db          *gorm.DB
	pool        *database.PoolManager
	store       store.Store
	rateLimiter ratelimit.Limiter

	registry   *dispatch.Registry
	dispatcher *dispatch.Dispatcher
	accountant *quota.Accountant
	auth       *adminauth.Authenticator
	families   map[string]provider.Family

	httpManager    *server.Manager
	metricsManager *server.Manager

	healthHandler     *handlers.HealthHandler
	chatHandler       *handlers.ChatHandler
	modelsHandler     *handlers.ModelsHandler
	tokenHandler      *handlers.TokenHandler
	adminAuthHandler  *handlers.AdminAuthHandler
	adminHandler      *handlers.AdminHandler

	metricsCollector *metrics.Collector

	hotReloadManager *config.HotReloadManager
	configAPIHandler *config.ConfigAPIHandler

	wg sync.WaitGroup
}

// NewServer creates a new Server. configPath is the YAML file (if any) the
// hot-reload manager watches for live config changes; it may be empty.
// otel is nil when telemetry is disabled or failed to initialize.
func NewServer(cfg *config.Config, configPath string, logger *zap.Logger, otel *telemetry.Providers) *Server {
	return &Server{
		cfg:        cfg,
		configPath: configPath,
		logger:     logger,
		otel:       otel,
	}
}

// Start brings up the database, domain layers, handlers, and both
// listeners, in dependency order. It returns once the HTTP and metrics
// servers are both accepting connections; it does not block.
func (s *Server) Start() error {
	s.metricsCollector = metrics.NewCollector("gateway", s.logger)

	if err := s.initStore(); err != nil {
		return fmt.Errorf("failed to init store: %w", err)
	}

	if err := s.initDomain(); err != nil {
		return fmt.Errorf("failed to init domain layers: %w", err)
	}

	if err := s.initHandlers(); err != nil {
		return fmt.Errorf("failed to init handlers: %w", err)
	}

	if err := s.initHotReloadManager(); err != nil {
		return fmt.Errorf("failed to init hot reload manager: %w", err)
	}

	if err := s.startHTTPServer(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	if err := s.startMetricsServer(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	s.logger.Info("all servers started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
		zap.Bool("hot_reload_enabled", s.configPath != ""),
	)

	return nil
}

// initStore opens the GORM connection for the configured driver and runs
// AutoMigrate. sqlite is the default so the gateway runs with zero external
// dependencies out of the box.
func (s *Server) initStore() error {
	var dialector gorm.Dialector
	switch s.cfg.Database.Driver {
	case "postgres":
		dialector = postgres.Open(s.cfg.Database.DSN())
	case "mysql":
		dialector = mysql.Open(s.cfg.Database.DSN())
	case "sqlite":
		dialector = sqlite.Open(s.cfg.Database.DSN())
	default:
		return fmt.Errorf("unsupported database driver: %s", s.cfg.Database.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	poolConfig := database.DefaultPoolConfig()
	poolConfig.MaxOpenConns = s.cfg.Database.MaxOpenConns
	poolConfig.MaxIdleConns = s.cfg.Database.MaxIdleConns
	poolConfig.ConnMaxLifetime = s.cfg.Database.ConnMaxLifetime

	pool, err := database.NewPoolManager(db, poolConfig, s.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize connection pool: %w", err)
	}

	if err := store.AutoMigrate(db); err != nil {
		return fmt.Errorf("failed to auto-migrate: %w", err)
	}

	s.db = db
	s.pool = pool
	s.store = store.NewGormStore(db).WithPool(pool)
	return nil
}

// initRateLimiter builds the per-client-IP limiter the HTTP chain enforces.
// When Redis.Addr is set, every gateway replica shares one limiter state
// through Redis; otherwise each replica tracks its own in-process buckets.
func (s *Server) initRateLimiter() error {
	if s.cfg.Redis.Addr != "" {
		limiter, err := ratelimit.NewRedisLimiter(
			ratelimit.RedisOptions{
				Addr:                s.cfg.Redis.Addr,
				Password:            s.cfg.Redis.Password,
				DB:                  s.cfg.Redis.DB,
				PoolSize:            s.cfg.Redis.PoolSize,
				MinIdleConns:        s.cfg.Redis.MinIdleConns,
				HealthCheckInterval: 30 * time.Second,
			},
			s.cfg.Server.RateLimitRPS,
			s.cfg.Server.RateLimitBurst,
			s.logger,
		)
		if err != nil {
			return fmt.Errorf("failed to initialize redis rate limiter: %w", err)
		}
		s.rateLimiter = limiter
		return nil
	}

	s.rateLimiter = ratelimit.NewInProcessLimiter(s.cfg.Server.RateLimitRPS, s.cfg.Server.RateLimitBurst)
	return nil
}

// initDomain builds the dispatch registry, dispatcher, quota accountant,
// admin authenticator, and the provider family table every chat request
// dispatches through.
func (s *Server) initDomain() error {
	// Config.Validate() already restricts Admin.DispatchStrategy to the
	// three Strategy values, so no parsing/validation is needed here.
	strategy := dispatch.Strategy(s.cfg.Admin.DispatchStrategy)
	s.registry = dispatch.NewRegistry(s.store, s.store, strategy)
	if err := s.registry.Reload(context.Background()); err != nil {
		return fmt.Errorf("failed to load provider registry: %w", err)
	}

	redirects := modelid.NewRedirects(s.cfg.Providers.Redirects)
	s.dispatcher = dispatch.NewDispatcher(s.registry, redirects)

	s.accountant = quota.NewAccountant(s.store, s.store)

	s.auth = adminauth.NewAuthenticator(s.store, s.store, s.store, s.store, s.cfg.Admin.IdentityToken)

	const upstreamTimeout = 120 * time.Second
	s.families = map[string]provider.Family{
		"openai":    provider.NewOpenAIFamily(upstreamTimeout),
		"anthropic": provider.NewAnthropicFamily(upstreamTimeout),
		"zhipu":     provider.NewZhipuFamily(upstreamTimeout),
	}

	return nil
}

// initHandlers constructs every HTTP handler from the domain layers
// initDomain built.
func (s *Server) initHandlers() error {
	s.healthHandler = handlers.NewHealthHandler(s.logger)
	s.chatHandler = handlers.NewChatHandler(s.dispatcher, s.families, s.accountant, s.store, s.cfg.Admin.APIKeyLogPolicy, s.metricsCollector, s.logger)
	s.modelsHandler = handlers.NewModelsHandler(s.store, s.store, s.logger)
	s.tokenHandler = handlers.NewTokenHandler(s.store, s.store, s.logger)
	s.adminAuthHandler = handlers.NewAdminAuthHandler(s.auth, s.store, s.store, s.logger)
	s.adminHandler = handlers.NewAdminHandler(s.store, s.store, s.registry, s.logger)

	s.logger.Info("handlers initialized")
	return nil
}

// initHotReloadManager starts the config hot-reload manager and builds the
// configuration inspection/change HTTP API on top of it.
func (s *Server) initHotReloadManager() error {
	opts := []config.HotReloadOption{
		config.WithHotReloadLogger(s.logger),
	}
	if s.configPath != "" {
		opts = append(opts, config.WithConfigPath(s.configPath))
	}

	s.hotReloadManager = config.NewHotReloadManager(s.cfg, opts...)

	s.hotReloadManager.OnChange(func(change config.ConfigChange) {
		s.logger.Info("configuration changed",
			zap.String("path", change.Path),
			zap.String("source", change.Source),
			zap.Bool("requires_restart", change.RequiresRestart),
		)
	})

	s.hotReloadManager.OnReload(func(oldConfig, newConfig *config.Config) {
		s.logger.Info("configuration reloaded")
		s.cfg = newConfig
	})

	ctx := context.Background()
	if err := s.hotReloadManager.Start(ctx); err != nil {
		return fmt.Errorf("failed to start hot reload manager: %w", err)
	}

	s.configAPIHandler = config.NewConfigAPIHandler(s.hotReloadManager)
	return nil
}

// startHTTPServer registers every route on a ServeMux, wraps it in the
// middleware chain, and starts the listener.
func (s *Server) startHTTPServer() error {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.healthHandler.HandleHealth)
	mux.HandleFunc("/healthz", s.healthHandler.HandleHealthz)
	mux.HandleFunc("/ready", s.healthHandler.HandleReady)
	mux.HandleFunc("/readyz", s.healthHandler.HandleReady)
	mux.HandleFunc("/version", s.healthHandler.HandleVersion(Version, BuildTime, GitCommit))

	mux.HandleFunc("POST /v1/chat/completions", s.chatHandler.HandleCompletion)
	mux.HandleFunc("GET /v1/models", s.modelsHandler.HandleList)
	mux.HandleFunc("GET /v1/token/balance", s.tokenHandler.HandleBalance)
	mux.HandleFunc("GET /v1/token/usage", s.tokenHandler.HandleUsage)

	mux.HandleFunc("POST /auth/tui/challenge", s.adminAuthHandler.HandleChallenge)
	mux.HandleFunc("POST /auth/tui/verify", s.adminAuthHandler.HandleVerify)
	mux.HandleFunc("POST /auth/redeem", s.adminAuthHandler.HandleRedeem)
	mux.HandleFunc("POST /auth/logout", s.adminAuthHandler.HandleLogout)
	mux.HandleFunc("GET /auth/session", s.adminAuthHandler.HandleSession)
	mux.HandleFunc("POST /auth/login-codes", s.adminAuthHandler.HandleCreateLoginCode)
	mux.HandleFunc("GET /auth/login-codes/status", s.adminAuthHandler.HandleLoginCodeStatus)
	mux.HandleFunc("GET /auth/keys", s.adminAuthHandler.HandleListKeys)
	mux.HandleFunc("POST /auth/keys", s.adminAuthHandler.HandleCreateKey)
	mux.HandleFunc("DELETE /auth/keys/{fp}", s.adminAuthHandler.HandleDeleteKey)

	mux.HandleFunc("GET /admin/tokens", s.adminHandler.HandleListTokens)
	mux.HandleFunc("POST /admin/tokens", s.adminHandler.HandleCreateToken)
	mux.HandleFunc("GET /admin/tokens/{tok}", s.adminHandler.HandleGetToken)
	mux.HandleFunc("PATCH /admin/tokens/{tok}", s.adminHandler.HandleUpdateToken)
	mux.HandleFunc("DELETE /admin/tokens/{tok}", s.adminHandler.HandleDeleteToken)
	mux.HandleFunc("GET /admin/providers", s.adminHandler.HandleListProviders)
	mux.HandleFunc("POST /admin/providers", s.adminHandler.HandleCreateProvider)
	mux.HandleFunc("GET /admin/providers/{name}", s.adminHandler.HandleGetProvider)
	mux.HandleFunc("DELETE /admin/providers/{name}", s.adminHandler.HandleDeleteProvider)
	mux.HandleFunc("POST /admin/providers/{name}/keys", s.adminHandler.HandleAddKey)
	mux.HandleFunc("DELETE /admin/providers/{name}/keys/{key}", s.adminHandler.HandleDeleteKey)

	if s.configAPIHandler != nil {
		s.configAPIHandler.RegisterRoutes(mux)
		s.logger.Info("configuration API registered")
	}

	if err := s.initRateLimiter(); err != nil {
		return fmt.Errorf("failed to init rate limiter: %w", err)
	}

	skipAuthPaths := []string{
		"/health", "/healthz", "/ready", "/readyz", "/version", "/metrics",
		"/auth/tui/challenge", "/auth/tui/verify", "/auth/redeem", "/auth/login-codes/status",
	}
	handler := Chain(mux,
		Recovery(s.logger),
		RequestID(),
		RequestLogger(s.logger),
		SecurityHeaders(),
		MetricsMiddleware(s.metricsCollector),
		CORS(s.cfg.Server.CORSAllowedOrigins),
		RateLimiter(s.rateLimiter, s.logger),
		GatewayAuth(s.auth, s.store, skipAuthPaths, s.logger),
	)

	if s.cfg.Telemetry.Enabled {
		handler = Chain(handler, OTelTracing())
	}

	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     2 * s.cfg.Server.ReadTimeout,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.httpManager = server.NewManager(handler, serverConfig, s.logger)
	if err := s.httpManager.Start(); err != nil {
		return err
	}

	s.logger.Info("HTTP server started", zap.Int("port", s.cfg.Server.HTTPPort))
	return nil
}

// startMetricsServer starts the Prometheus scrape endpoint on its own port,
// separate from the API listener so scraping never competes with the
// gateway's own rate limits.
func (s *Server) startMetricsServer() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.MetricsPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.metricsManager = server.NewManager(mux, serverConfig, s.logger)
	if err := s.metricsManager.Start(); err != nil {
		return err
	}

	s.logger.Info("metrics server started", zap.Int("port", s.cfg.Server.MetricsPort))
	return nil
}

// WaitForShutdown blocks until a SIGINT/SIGTERM arrives, then runs Shutdown.
func (s *Server) WaitForShutdown() {
	if s.httpManager != nil {
		s.httpManager.WaitForShutdown()
	}
	s.Shutdown()
}

// Shutdown stops the hot-reload manager and both listeners, waits for
// in-flight background work, and closes the database connection.
func (s *Server) Shutdown() {
	s.logger.Info("starting graceful shutdown...")

	ctx := context.Background()

	if s.hotReloadManager != nil {
		if err := s.hotReloadManager.Stop(); err != nil {
			s.logger.Error("hot reload manager shutdown error", zap.Error(err))
		}
	}

	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
	}

	if s.metricsManager != nil {
		if err := s.metricsManager.Shutdown(ctx); err != nil {
			s.logger.Error("metrics server shutdown error", zap.Error(err))
		}
	}

	s.wg.Wait()

	if s.otel != nil {
		if err := s.otel.Shutdown(ctx); err != nil {
			s.logger.Error("telemetry shutdown error", zap.Error(err))
		}
	}

	if s.rateLimiter != nil {
		if err := s.rateLimiter.Close(); err != nil {
			s.logger.Error("rate limiter shutdown error", zap.Error(err))
		}
	}

	if s.pool != nil {
		if err := s.pool.Close(); err != nil {
			s.logger.Error("database pool shutdown error", zap.Error(err))
		}
	} else if s.db != nil {
		if sqlDB, err := s.db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}

	s.logger.Info("graceful shutdown completed")
}
