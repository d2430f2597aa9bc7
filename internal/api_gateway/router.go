package api_gateway

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/giftcert-ledger/internal/api_gateway/handler"
	"github.com/giftcert-ledger/internal/api_gateway/middleware"
	"github.com/giftcert-ledger/internal/platform/metrics"
)

// setupRouter configures API routes and middleware for the application
func setupRouter(
	logger *slog.Logger,
	r *gin.Engine,
	m *metrics.Metrics,
	certificateHandler *handler.CertificateHandler,
	notificationHandler *handler.NotificationHandler,
) {
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.CorrelationID())
	r.Use(middleware.Logger(logger, m))

	v1 := r.Group("/api/v1")
	{
		certificates := v1.Group("/certificates")
		{
			certificates.GET("/:id", certificateHandler.GetByID)
			certificates.POST("/:id/charges", certificateHandler.OpenCharge)
			certificates.POST("/:id/charges/confirm", certificateHandler.ConfirmCharge)
			certificates.PATCH("/:id/amount", certificateHandler.AdjustAmount)
			certificates.POST("/:id/telegram", notificationHandler.SendTelegram)
		}

		v1.POST("/transactions/:id/cancel", certificateHandler.CancelTransaction)
		v1.GET("/notifications/sms/balance", notificationHandler.SMSBalance)
	}

	// Health check endpoint for monitoring
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": time.Now().UTC()})
	})

	if m != nil {
		r.GET("/metrics", gin.WrapH(m.Handler()))
	}
}
