package handler

import (
	"encoding/json"
	"time"

	"github.com/giftcert-ledger/internal/domain/shared"
	"github.com/giftcert-ledger/internal/domain/transaction"
)

// OpenChargeRequest represents a request to open a charge. Amount is a
// decimal in currency units, as a JSON number or string
type OpenChargeRequest struct {
	Amount json.Number `json:"amount" binding:"required"`
}

// ConfirmChargeRequest represents a request to confirm the pending charge
type ConfirmChargeRequest struct {
	ConfirmCode string `json:"confirm_code" binding:"required,numeric"`
}

// AdjustAmountRequest represents an administrative balance correction
type AdjustAmountRequest struct {
	Amount json.Number `json:"amount" binding:"required"`
}

// SendTelegramRequest represents a request to send a certificate card to a chat
type SendTelegramRequest struct {
	ChatID   string `json:"chat_id" binding:"required"`
	ImageURL string `json:"image_url" binding:"required,url"`
}

// TransactionResponse represents a transaction in API responses
type TransactionResponse struct {
	ID        int64   `json:"id"`
	CertID    string  `json:"cert_id"`
	Amount    string  `json:"amount"`
	Status    string  `json:"status"`
	CreatedAt string  `json:"created_at"`
	SMSID     *string `json:"sms_id,omitempty"`
	SMSSent   *bool   `json:"sms_sent,omitempty"`
	SMSError  *string `json:"sms_error,omitempty"`
}

// ChargeResponse represents an opened charge. The confirm code is only ever
// delivered to the holder's phone
type ChargeResponse struct {
	Transaction TransactionResponse `json:"transaction"`
	Balance     string              `json:"balance"`
}

// BalanceChangeResponse represents the outcome of a confirmation or adjustment
type BalanceChangeResponse struct {
	CertID      string               `json:"cert_id"`
	Amount      string               `json:"amount"`
	Status      string               `json:"status"`
	Transaction *TransactionResponse `json:"transaction,omitempty"`
}

// SMSBalanceResponse represents the SMS provider account balance
type SMSBalanceResponse struct {
	Balance string `json:"balance"`
}

// mapTransactionToResponse maps a ledger transaction to a response DTO
func mapTransactionToResponse(t *transaction.Transaction) TransactionResponse {
	return TransactionResponse{
		ID:        t.ID,
		CertID:    t.CertID,
		Amount:    shared.FormatAmount(t.Amount),
		Status:    string(t.Status),
		CreatedAt: t.CreatedAt.Format(time.RFC3339),
		SMSID:     t.SMSID,
		SMSSent:   t.SMSSent,
		SMSError:  t.SMSError,
	}
}
