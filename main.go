// Package main provides the main entry point for the Courier message delivery engine
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/relaymark/courier/app/router"
	"github.com/relaymark/courier/app/scheduler"
	"github.com/relaymark/courier/app/services"
	businessflow "github.com/relaymark/courier/business_flow"
	"github.com/relaymark/courier/config"
	"github.com/relaymark/courier/repository"
)

// Application represents the main application structure
type Application struct {
	router    router.Router
	config    *config.ProductionConfig
	server    *fiber.App
	stopFuncs []func()
}

func main() {
	log.Println("Starting Courier delivery engine...")

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
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name, cfg.SSLMode)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Get underlying sql.DB for connection pooling configuration
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	// Configure connection pooling
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	// Test the connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Printf("Database connection established to %s:%d/%s", cfg.Host, cfg.Port, cfg.Name)
	return db, nil
}

// initializeRedis initializes the shared Redis client used for dispatch
// locks and campaign pause flags
func initializeRedis(cfg config.RedisConfig) (*redis.Client, error) {
	opt, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	opt.DB = cfg.DB
	if cfg.Password != "" {
		opt.Password = cfg.Password
	}

	rc := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rc.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	log.Printf("Redis connection established to %s (db=%d)", cfg.URL, cfg.DB)
	return rc, nil
}

// buildTransportRegistry registers every configured provider transport.
// Provider names are what routing configs reference in their primary and
// fallback columns.
func buildTransportRegistry(cfg *config.ProductionConfig) *services.Registry {
	registry := services.NewRegistry()

	if cfg.SMS.Primary.Enabled() {
		registry.Register(services.NewHTTPSMSGateway(cfg.SMS.Primary.Name, cfg.SMS.Primary))
	} else {
		// No real gateway configured; keep the primary name routable
		registry.Register(services.NewMockTransport(cfg.SMS.Primary.Name))
	}
	if cfg.SMS.Secondary.Enabled() {
		registry.Register(services.NewHTTPSMSGateway(cfg.SMS.Secondary.Name, cfg.SMS.Secondary))
	}
	if cfg.Email.Enabled() {
		registry.Register(services.NewSMTPEmailTransport(cfg.Email.Name, cfg.Email))
	}

	log.Printf("Registered provider transports: %v", registry.Names())
	return registry
}

// initializeApplication wires repositories, flows, the dispatcher and the
// operational HTTP surface
func initializeApplication(cfg *config.ProductionConfig) (*Application, error) {
	db, err := initializeDatabase(cfg.Database)
	if err != nil {
		return nil, err
	}

	rdb, err := initializeRedis(cfg.Redis)
	if err != nil {
		return nil, err
	}

	// Repositories
	messageRepo := repository.NewCampaignMessageRepository(db)
	attemptRepo := repository.NewDeliveryAttemptRepository(db)
	routingRepo := repository.NewRoutingConfigRepository(db)
	rateLimitRepo := repository.NewRateLimitRepository(db)
	suppressionRepo := repository.NewSuppressionRepository(db)
	complianceRepo := repository.NewComplianceRepository(db)
	frequencyRepo := repository.NewFrequencyControlRepository(db)
	variantRepo := repository.NewCampaignVariantRepository(db)
	contactRepo := repository.NewContactRepository(db)
	reportRepo := repository.NewDispatchReportRepository(db)

	// Provider transports
	transports := buildTransportRegistry(cfg)

	// Engine flows
	suppressionFlow := businessflow.NewSuppressionFlow(suppressionRepo, complianceRepo)
	complianceFlow := businessflow.NewComplianceFlow(complianceRepo)
	frequencyFlow := businessflow.NewFrequencyFlow(frequencyRepo)
	routingFlow := businessflow.NewRoutingFlow(routingRepo, rateLimitRepo, cfg.ProviderCosts())
	dispatchFlow := businessflow.NewDispatchFlow(
		db,
		transports,
		suppressionFlow,
		complianceFlow,
		frequencyFlow,
		routingFlow,
		messageRepo,
		attemptRepo,
		contactRepo,
		variantRepo,
		reportRepo,
		cfg.Scheduler.ProviderTimeout,
	)

	// Dispatch scheduler
	sched := scheduler.NewDispatchScheduler(
		messageRepo,
		dispatchFlow,
		rdb,
		nil,
		cfg.Scheduler.SweepInterval,
		cfg.Scheduler.BatchSize,
		cfg.Scheduler.WorkerCount,
	)
	stopScheduler := sched.Start(context.Background())

	r := router.NewFiberRouter(cfg, sched, db, rdb)

	return &Application{
		router:    r,
		config:    cfg,
		server:    r.GetApp(),
		stopFuncs: []func(){stopScheduler},
	}, nil
}
