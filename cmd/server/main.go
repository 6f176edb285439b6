package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmartinez0/rewards/internal/api"
	"github.com/jmartinez0/rewards/internal/config"
	"github.com/jmartinez0/rewards/internal/data/postgres"
	"github.com/jmartinez0/rewards/internal/engine"
	"github.com/jmartinez0/rewards/internal/logger"
	"github.com/jmartinez0/rewards/internal/platform/commerce"
	"github.com/jmartinez0/rewards/internal/platform/persistence"
)

func main() {
	// Create base context with cancellation
	appCtx, cancelAppCtx := context.WithCancel(context.Background())
	defer cancelAppCtx()

	// Initialize configuration
	cfg, err := config.LoadConfig("server")
	if err != nil {
		// logger is not initialized yet, so we use fmt
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.NewLogger(cfg)

	// Initialize database with app context (runs migrations on startup)
	postgresDB, err := persistence.NewPostgresDB(appCtx, log, &cfg.Postgres)
	if err != nil {
		log.Error("Failed to initialize PostgreSQL", "error", err)
		os.Exit(1)
	}

	// Initialize the commerce platform client and the post-commit balance
	// mirror worker pool
	adminClient := commerce.NewAdminClient(log, &cfg.Commerce)
	mirror, err := commerce.NewBalanceMirror(log, adminClient, cfg.Mirror.PoolSize, cfg.Commerce.Timeout)
	if err != nil {
		log.Error("Failed to initialize balance mirror", "error", err)
		os.Exit(1)
	}

	// Initialize repositories
	customerRepo := postgres.NewCustomerRepository(log, postgresDB)
	ledgerRepo := postgres.NewLedgerRepository(log, postgresDB)
	settingsRepo := postgres.NewSettingsRepository(log, postgresDB)

	// Initialize the ledger engine
	allocator := engine.NewAllocator(log)
	earn := engine.NewEarnProcessor(log, postgresDB, customerRepo, ledgerRepo, settingsRepo, mirror)
	spend := engine.NewSpendProcessor(log, postgresDB, customerRepo, ledgerRepo, allocator, mirror)
	refund := engine.NewRefundProcessor(log, postgresDB, customerRepo, ledgerRepo, settingsRepo, allocator, adminClient, mirror)
	adjustments := engine.NewAdjustmentProcessor(log, postgresDB, customerRepo, ledgerRepo, settingsRepo, allocator, mirror)
	expirer := engine.NewExpireProcessor(log, postgresDB, customerRepo, ledgerRepo, mirror)
	history := engine.NewHistoryService(log, customerRepo, ledgerRepo)
	program := engine.NewProgramService(log, settingsRepo)

	// Initialize REST server
	server := api.NewServer(log, cfg, api.Services{
		Earn:        earn,
		Spend:       spend,
		Refund:      refund,
		Adjustments: adjustments,
		Expirer:     expirer,
		History:     history,
		Settings:    program,
	})
	log.Info("REST server initialized")

	// Create error channel for server errors
	errChan := make(chan error, 1)

	// Start server in goroutine
	go func() {
		log.Info("Starting HTTP server", "port", cfg.Server.Port)
		if err := server.Start(); err != nil {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	// Set up signal handling
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	// Wait for a shutdown signal or error
	var serverErr error
	select {
	case <-quit:
		log.Info("Shutdown signal received")
	case err := <-errChan:
		log.Error("Server error occurred", "error", err)
		serverErr = err
	}

	// Cancel the application context
	cancelAppCtx()

	// Create a shutdown context with timeout
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancelShutdown()

	// Graceful shutdown sequence
	log.Info("Starting graceful shutdown...")

	// Stop accepting requests first, then drain the mirror pool, then close
	// the database
	if err = server.Stop(shutdownCtx); err != nil {
		log.Error("Error during server shutdown", "error", err)
	}

	mirror.Shutdown()
	postgresDB.Close()

	// Final status
	if serverErr != nil {
		log.Error("HTTP server shutdown with errors", "error", serverErr)
	}
	if err != nil {
		log.Error("Server shutdown completed with errors")
	} else {
		log.Info("Server shutdown completed successfully")
	}
}
