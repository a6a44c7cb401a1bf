// The recorder server: accepts visit beacons on /save, stores them in the
// configured database and appends one line per visit to the audit log.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"visit-recorder/internal/auditlog"
	"visit-recorder/internal/config"
	httpHandler "visit-recorder/internal/handler/http"
	"visit-recorder/internal/ratelimit"
	"visit-recorder/internal/repository"
	"visit-recorder/internal/repository/memory"
	"visit-recorder/internal/repository/postgres"
	redisRepo "visit-recorder/internal/repository/redis"
	"visit-recorder/internal/repository/sqlstore"
	"visit-recorder/internal/service"
	"visit-recorder/pkg/logger"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

func main() {
	os.Exit(run())
}

// run returns the process exit code, so deferred cleanup runs before exit
func run() int {
	// ========================================================================
	// STEP 1: LOAD CONFIGURATION
	// ========================================================================
	// A .env file is optional; real environment variables win over it.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("Ignoring unreadable .env file: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Printf("Failed to load configuration: %v", err)
		return 1
	}

	appLogger := logger.New(cfg.App.LogLevel)
	appLogger.Info("Starting visit recorder",
		"environment", cfg.App.Environment,
		"port", cfg.Server.Port,
		"storage", cfg.Storage.Backend,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// STEP 2: STORAGE
	// ========================================================================
	repo, err := openRepository(ctx, cfg.Storage)
	if err != nil {
		appLogger.Error("Failed to open storage", "backend", cfg.Storage.Backend, "error", err)
		return 1
	}
	defer repo.Close()

	if err := repo.EnsureSchema(ctx); err != nil {
		appLogger.Error("Failed to create visits table", "error", err)
		return 1
	}
	appLogger.Info("Storage ready", "backend", cfg.Storage.Backend)

	// ========================================================================
	// STEP 3: OPTIONAL REDIS (export cache + rate limiter)
	// ========================================================================
	var (
		cache   service.Cache
		limiter *ratelimit.RateLimiter
	)
	if cfg.Redis.Enabled {
		redisClient, err := redisRepo.InitRedis(cfg.Redis.RedisAddr(), cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			appLogger.Error("Failed to connect to Redis", "addr", cfg.Redis.RedisAddr(), "error", err)
			return 1
		}
		defer redisClient.Close()

		cache = redisRepo.NewExportCache(redisClient, cfg.Redis.CacheTTL)
		if cfg.App.RateLimitEnabled {
			limiter = ratelimit.NewFixedWindowLimiter(redisClient, cfg.App.RateLimitPerMinute, time.Minute)
		}
		appLogger.Info("Redis connection established", "addr", cfg.Redis.RedisAddr())
	}

	// ========================================================================
	// STEP 4: DEPENDENCY INJECTION
	// ========================================================================
	// Storage → Service → Handler
	visitService := service.NewVisitService(repo, cache, auditlog.New(cfg.App.AuditLogPath), appLogger.Logger, service.Options{
		AnonymizeIP:         cfg.App.AnonymizeIP,
		EnsureSchemaOnWrite: cfg.Storage.EnsureSchemaOnWrite,
	})

	handler := httpHandler.NewHandler(visitService, appLogger.Logger, httpHandler.Options{
		MaxBodyBytes:      cfg.App.MaxBodyBytes,
		ExportEnabled:     cfg.App.ExportEnabled,
		CollectorEndpoint: cfg.App.CollectorEndpoint,
	})

	// ========================================================================
	// STEP 5: ROUTES
	// ========================================================================
	save := http.Handler(http.HandlerFunc(handler.SaveVisit))
	if limiter != nil {
		save = httpHandler.RateLimitMiddleware(limiter, appLogger.Logger)(save)
	}

	mux := http.NewServeMux()
	mux.Handle("/save", save)
	mux.Handle("/save.php", save)
	mux.HandleFunc("/export-json", handler.ExportVisits)
	mux.HandleFunc("/collector.js", handler.ServeCollector)
	mux.HandleFunc("/health/live", handler.HealthCheck)
	mux.HandleFunc("/health/ready", handler.Readiness)
	if cfg.App.EnableMetrics {
		mux.Handle("/metrics", promhttp.Handler())
	}

	// Request → Recovery → Logging → RequestID → CORS → Metrics → Timeout → Handler
	finalHandler := httpHandler.Chain(
		httpHandler.RecoveryMiddleware(appLogger.Logger),
		httpHandler.LoggingMiddleware(appLogger.Logger),
		httpHandler.RequestIDMiddleware,
		httpHandler.CORSMiddleware(splitOrigins(cfg.App.AllowedOrigins)),
		httpHandler.MetricsMiddleware,
		httpHandler.TimeoutMiddleware(cfg.Server.WriteTimeout),
	)(mux)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      finalHandler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout + time.Second,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// ========================================================================
	// STEP 6: RUN UNTIL SIGNALLED, THEN DRAIN
	// ========================================================================
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		appLogger.Info("Server starting", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		appLogger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		appLogger.Error("Server stopped with error", "error", err)
		return 1
	}

	appLogger.Info("Server exited gracefully")
	return 0
}

func openRepository(ctx context.Context, cfg config.StorageConfig) (repository.VisitRepository, error) {
	switch cfg.Backend {
	case "memory":
		return memory.NewVisitRepository(), nil
	case "postgres":
		pool, err := postgres.InitDB(ctx, cfg.DSN, cfg.MaxOpenConns, cfg.MaxIdleConns, cfg.ConnMaxLifetime)
		if err != nil {
			return nil, err
		}
		return postgres.NewVisitRepository(pool), nil
	}

	return sqlstore.Open(ctx, cfg.Backend, cfg.DSN, sqlstore.Options{
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	})
}

func splitOrigins(raw string) []string {
	var origins []string
	for _, o := range strings.Split(raw, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}
