// Package api wires the gin HTTP server: webhook intake from the commerce
// platform and the storefront/admin JSON API.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jmartinez0/rewards/internal/api/handler"
	"github.com/jmartinez0/rewards/internal/config"
)

// Services bundles the engine surfaces the HTTP layer exposes.
type Services struct {
	Earn        handler.EarnService
	Spend       handler.SpendService
	Refund      handler.RefundService
	Adjustments handler.AdjustmentService
	Expirer     handler.ExpireService
	History     handler.HistoryService
	Settings    handler.SettingsService
}

// Server handles HTTP requests and manages the application's lifecycle
type Server struct {
	logger     *slog.Logger
	httpServer *http.Server
	httpRouter *gin.Engine
}

// NewServer creates and configures a new HTTP server with the given services
func NewServer(log *slog.Logger, cfg *config.Config, services Services) *Server {
	if cfg.Application.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	httpRouter := gin.New()

	webhookHandler := handler.NewWebhookHandler(log, services.Earn, services.Spend, services.Refund)
	spendHandler := handler.NewSpendHandler(log, services.Spend)
	customerHandler := handler.NewCustomerHandler(log, services.History, services.Adjustments, services.Expirer)
	settingsHandler := handler.NewSettingsHandler(log, services.Settings)

	setupRouter(log, httpRouter, webhookHandler, spendHandler, customerHandler, settingsHandler)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      httpRouter,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return &Server{
		logger:     log,
		httpServer: httpServer,
		httpRouter: httpRouter,
	}
}

// Start begins listening for HTTP requests
func (s *Server) Start() error {
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	return nil
}

// Stop gracefully shuts down the HTTP server with a timeout
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("stopping HTTP server")

	shutdownCtx, cancel := context.WithTimeout(ctx, s.httpServer.WriteTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to stop HTTP server: %w", err)
	}

	return nil
}
