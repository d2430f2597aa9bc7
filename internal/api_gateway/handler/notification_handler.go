package handler

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/giftcert-ledger/internal/api_gateway/service"
	"github.com/giftcert-ledger/internal/domain/shared"
)

// NotificationHandler handles HTTP requests for outbound notifications
type NotificationHandler struct {
	notificationService service.NotificationService
	logger              *slog.Logger
}

func NewNotificationHandler(logger *slog.Logger, notificationService service.NotificationService) *NotificationHandler {
	return &NotificationHandler{
		notificationService: notificationService,
		logger:              logger,
	}
}

// SendTelegram queues a certificate card for a Telegram chat
func (h *NotificationHandler) SendTelegram(c *gin.Context) {
	var req SendTelegramRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.WarnContext(c.Request.Context(), "Invalid request body", "error", err)
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	if err := h.notificationService.SendTelegram(c.Request.Context(), c.Param("id"), req.ChatID, req.ImageURL); err != nil {
		RespondLedgerError(c, h.logger, err)
		return
	}
	RespondAccepted(c, gin.H{"status": "QUEUED"})
}

// SMSBalance reports the SMS provider account balance
func (h *NotificationHandler) SMSBalance(c *gin.Context) {
	balance, err := h.notificationService.SMSBalance(c.Request.Context())
	if err != nil {
		h.logger.ErrorContext(c.Request.Context(), "Failed to fetch SMS balance", "error", err)
		RespondInternalError(c)
		return
	}
	RespondOK(c, SMSBalanceResponse{Balance: balance.StringFixed(shared.MinorUnitExp)})
}
