package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmartinez0/rewards/internal/api/handler"
	"github.com/jmartinez0/rewards/internal/api/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// setupRouter configures API routes and middleware for the application
func setupRouter(
	logger *slog.Logger,
	r *gin.Engine,
	webhookHandler *handler.WebhookHandler,
	spendHandler *handler.SpendHandler,
	customerHandler *handler.CustomerHandler,
	settingsHandler *handler.SettingsHandler,
) {
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.Logger(logger))
	r.Use(middleware.CorrelationID())

	// Platform event intake. Signature verification happens upstream at the
	// edge; these routes only see verified deliveries.
	webhooks := r.Group("/webhooks")
	{
		webhooks.POST("/orders-paid", webhookHandler.OrdersPaid)
		webhooks.POST("/refunds-create", webhookHandler.RefundsCreate)
	}

	// API v1 endpoints
	v1 := r.Group("/api/v1")
	{
		v1.POST("/spend/authorize", spendHandler.Authorize)
		v1.GET("/balance", customerHandler.GetBalanceByRef)

		customers := v1.Group("/customers")
		{
			customers.GET("", customerHandler.List)
			customers.GET("/:id", customerHandler.GetByID)
			customers.GET("/:id/balance", customerHandler.GetBalance)
			customers.GET("/:id/history", customerHandler.GetHistory)
			customers.POST("/:id/adjustments", customerHandler.Adjust)
			customers.POST("/:id/expire", customerHandler.Expire)
		}

		settings := v1.Group("/settings")
		{
			settings.GET("", settingsHandler.Get)
			settings.PUT("", settingsHandler.Update)
		}
	}

	// Health check endpoint for monitoring
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": time.Now().UTC()})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
}
