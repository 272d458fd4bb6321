// Package main provides the main entry point for the subscription-billing back office
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fibernode/backoffice/app/handlers"
	"github.com/fibernode/backoffice/app/middleware"
	"github.com/fibernode/backoffice/app/router"
	"github.com/fibernode/backoffice/app/scheduler"
	"github.com/fibernode/backoffice/app/services"
	businessflow "github.com/fibernode/backoffice/business_flow"
	"github.com/fibernode/backoffice/config"
	"github.com/fibernode/backoffice/repository"
	"github.com/gofiber/fiber/v3"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Application represents the main application structure
type Application struct {
	router    router.Router
	config    *config.ProductionConfig
	server    *fiber.App
	stopFuncs []func()
}

func main() {
	log.Println("Starting backoffice application...")

	// Load production configuration
	cfg, err := config.LoadProductionConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize application
	app, err := initializeApplication(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}

	// Setup routes
	app.router.SetupRoutes()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Start server in goroutine
	go func() {
		address := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		log.Printf("Server starting on %s", address)

		if err := app.server.Listen(address); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for shutdown signal
	<-sigChan
	log.Println("Shutting down gracefully...")

	// Stop background workers
	for _, fn := range app.stopFuncs {
		fn()
	}

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := app.server.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("Error during shutdown: %v", err)
	}

	log.Println("Server stopped")
}

// initializeDatabase initializes the database connection with connection pooling
func initializeDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.GetDatabaseDSN()), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Get underlying sql.DB for connection pooling configuration
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	// Test the connection
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Printf("Database connection established with %d max open connections, %d max idle connections",
		cfg.MaxOpenConns, cfg.MaxIdleConns)

	return db, nil
}

// initializeCache initializes the Redis client and verifies connectivity
func initializeCache(cfg config.CacheConfig) (*redis.Client, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	opt.DB = cfg.RedisDB

	rc := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rc.Ping(ctx).Err(); err != nil {
		_ = rc.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	log.Printf("Redis connection established to %s (db=%d)", cfg.RedisURL, cfg.RedisDB)
	return rc, nil
}

// startMetricsServer exposes Prometheus metrics on its own listener
func startMetricsServer(cfg config.MetricsConfig) func() {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.Handler())

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: mux,
	}

	go func() {
		log.Printf("Metrics server listening on :%d%s", cfg.Port, cfg.Path)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("Metrics server error: %v", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

// initializeDialer selects the WhatsApp transport dialer by provider
func initializeDialer(cfg config.WhatsAppConfig) (services.TransportDialer, error) {
	switch cfg.Provider {
	case "mock":
		return services.NewMockDialer(), nil
	case "bridge":
		return services.NewBridgeDialer(services.BridgeConfig{
			BaseURL: cfg.BridgeURL,
			APIKey:  cfg.BridgeAPIKey,
			Timeout: cfg.BridgeTimeout,
		}), nil
	default:
		return nil, fmt.Errorf("unknown WhatsApp provider: %s", cfg.Provider)
	}
}

// initializeApplication initializes the main application components
func initializeApplication(cfg *config.ProductionConfig) (*Application, error) {
	var stopFuncs []func()

	// Initialize database
	db, err := initializeDatabase(cfg.Database)
	if err != nil {
		return nil, err
	}

	rc, err := initializeCache(cfg.Cache)
	if err != nil {
		return nil, err
	}

	// Initialize repositories
	userRepo := repository.NewUserRepository(db)
	packageRepo := repository.NewPackageRepository(db)
	customerRepo := repository.NewCustomerRepository(db)
	invoiceRepo := repository.NewInvoiceRepository(db)
	sessionRepo := repository.NewWASessionRepository(db)
	queueRepo := repository.NewMessageQueueRepository(db)
	logRepo := repository.NewMessageLogRepository(db)
	activityRepo := repository.NewActivityLogRepository(db)

	// Token service
	tokenService, err := services.NewTokenService(
		cfg.JWT.AccessTokenTTL,
		cfg.JWT.RefreshTokenTTL,
		cfg.JWT.Issuer,
		cfg.JWT.Audience,
		cfg.JWT.UseRSAKeys,
		cfg.JWT.PrivateKey,
		cfg.JWT.PublicKey,
		cfg.JWT.SecretKey,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize token service: %w", err)
	}

	// Realtime event publisher over Redis, noop when cache is disabled
	var publisher services.RealtimePublisher = services.NoopPublisher{}
	if rc != nil {
		publisher = services.NewRedisPublisher(rc)
	}

	// WhatsApp session registry
	dialer, err := initializeDialer(cfg.WhatsApp)
	if err != nil {
		return nil, err
	}
	registry := services.NewSessionRegistry(dialer, sessionRepo, publisher, cfg.WhatsApp.ReconnectDelay)

	// Reattach accounts that were connected before the last restart
	restoreCtx, restoreCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer restoreCancel()
	if err := registry.RestoreAll(restoreCtx); err != nil {
		log.Printf("Session restore failed: %v", err)
	}

	// Business flows
	invoiceFlow := businessflow.NewInvoiceFlow(invoiceRepo, customerRepo, activityRepo)
	waFlow := businessflow.NewWAFlow(registry, sessionRepo, customerRepo, userRepo, packageRepo, invoiceRepo, queueRepo, logRepo, cfg.Queue.MaxRetries)

	// Queue processor and billing scheduler
	policy := scheduler.RatePolicy{
		MinDelay:      cfg.Queue.MinDelay,
		MaxDelay:      cfg.Queue.MaxDelay,
		Jitter:        cfg.Queue.Jitter,
		BatchSize:     cfg.Queue.BatchSize,
		BatchCooldown: cfg.Queue.BatchCooldown,
		RetryBackoff:  cfg.Queue.RetryBackoff,
		MaxRetries:    cfg.Queue.MaxRetries,
	}
	processor := scheduler.NewQueueProcessor(queueRepo, sessionRepo, logRepo, registry, policy, log.Default())
	billing := scheduler.NewBillingScheduler(
		invoiceFlow,
		customerRepo,
		sessionRepo,
		queueRepo,
		processor,
		policy,
		cfg.Scheduler.DailyHour,
		cfg.Scheduler.Timezone,
		cfg.Scheduler.DrainInterval,
		cfg.Scheduler.LogPath,
	)
	stopFuncs = append(stopFuncs, billing.Start(context.Background()))

	// Metrics endpoint on its own port
	if cfg.Metrics.Enabled {
		stopFuncs = append(stopFuncs, startMetricsServer(cfg.Metrics))
	}

	// HTTP layer
	authMiddleware := middleware.NewAuthMiddleware(tokenService)
	waHandler := handlers.NewWAHandler(waFlow)
	invoiceHandler := handlers.NewInvoiceHandler(invoiceFlow)

	appRouter := router.NewFiberRouter(cfg, authMiddleware, waHandler, invoiceHandler)

	return &Application{
		router:    appRouter,
		config:    cfg,
		server:    appRouter.GetApp(),
		stopFuncs: stopFuncs,
	}, nil
}
