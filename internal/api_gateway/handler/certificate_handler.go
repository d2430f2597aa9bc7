package handler

import (
	"log/slog"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/giftcert-ledger/internal/api_gateway/service"
	"github.com/giftcert-ledger/internal/domain/shared"
)

// CertificateHandler handles HTTP requests for certificate and transaction operations
type CertificateHandler struct {
	certificateService service.CertificateService
	logger             *slog.Logger
}

// NewCertificateHandler creates a new certificate handler
func NewCertificateHandler(logger *slog.Logger, certificateService service.CertificateService) *CertificateHandler {
	return &CertificateHandler{
		certificateService: certificateService,
		logger:             logger,
	}
}

// GetByID returns the public view of a certificate
func (h *CertificateHandler) GetByID(c *gin.Context) {
	view, err := h.certificateService.GetCertificate(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondLedgerError(c, h.logger, err)
		return
	}
	RespondOK(c, view)
}

// OpenCharge opens a charge and sends the confirm code to the holder
func (h *CertificateHandler) OpenCharge(c *gin.Context) {
	var req OpenChargeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.WarnContext(c.Request.Context(), "Invalid request body", "error", err)
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}
	amount, err := shared.ParseAmount(req.Amount.String())
	if err != nil {
		RespondBadRequest(c, err.Error())
		return
	}

	charge, err := h.certificateService.OpenCharge(c.Request.Context(), c.Param("id"), amount)
	if err != nil {
		RespondLedgerError(c, h.logger, err)
		return
	}
	RespondCreated(c, ChargeResponse{
		Transaction: mapTransactionToResponse(charge.Transaction),
		Balance:     shared.FormatAmount(charge.Certificate.Amount),
	})
}

// ConfirmCharge applies the pending charge when the confirm code matches
func (h *CertificateHandler) ConfirmCharge(c *gin.Context) {
	var req ConfirmChargeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.WarnContext(c.Request.Context(), "Invalid request body", "error", err)
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	confirmation, err := h.certificateService.ConfirmCharge(c.Request.Context(), c.Param("id"), req.ConfirmCode)
	if err != nil {
		RespondLedgerError(c, h.logger, err)
		return
	}
	tr := mapTransactionToResponse(confirmation.Transaction)
	RespondOK(c, BalanceChangeResponse{
		CertID:      confirmation.Certificate.ID,
		Amount:      shared.FormatAmount(confirmation.Certificate.Amount),
		Status:      string(confirmation.Certificate.Status),
		Transaction: &tr,
	})
}

// CancelTransaction cancels an opened transaction; closed ones are returned unchanged
func (h *CertificateHandler) CancelTransaction(c *gin.Context) {
	idParam := c.Param("id")
	tranID, err := strconv.ParseInt(idParam, 10, 64)
	if err != nil || tranID <= 0 {
		RespondBadRequest(c, "Invalid transaction ID")
		return
	}

	t, err := h.certificateService.CancelTransaction(c.Request.Context(), tranID)
	if err != nil {
		RespondLedgerError(c, h.logger, err)
		return
	}
	RespondOK(c, mapTransactionToResponse(t))
}

// AdjustAmount sets the certificate balance directly
func (h *CertificateHandler) AdjustAmount(c *gin.Context) {
	var req AdjustAmountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.WarnContext(c.Request.Context(), "Invalid request body", "error", err)
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}
	amount, err := shared.ParseAmount(req.Amount.String())
	if err != nil {
		RespondBadRequest(c, err.Error())
		return
	}

	adjustment, err := h.certificateService.AdjustAmount(c.Request.Context(), c.Param("id"), amount)
	if err != nil {
		RespondLedgerError(c, h.logger, err)
		return
	}
	resp := BalanceChangeResponse{
		CertID: adjustment.Certificate.ID,
		Amount: shared.FormatAmount(adjustment.Certificate.Amount),
		Status: string(adjustment.Certificate.Status),
	}
	if adjustment.Transaction != nil {
		tr := mapTransactionToResponse(adjustment.Transaction)
		resp.Transaction = &tr
	}
	RespondOK(c, resp)
}
