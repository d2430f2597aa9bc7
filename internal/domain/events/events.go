// Package events defines the notification payloads published after ledger
// mutations and consumed by the delivery workers.
package events

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Type names an event kind. It travels in the payload (charge events) and in
// the event-type message header (all events).
type Type string

const (
	TypeCertificateCharged  Type = "CERTIFICATE_CHARGED"
	TypeSendTelegramMessage Type = "SEND_TELEGRAM_MESSAGE"
)

const (
	// HeaderEventType is the message header carrying the event Type.
	HeaderEventType = "event-type"
	// HeaderCorrelationID carries the id of the HTTP request that caused the
	// event, when there was one.
	HeaderCorrelationID = "correlation-id"
)

var validate = validator.New()

// ChargeEvent is published to the SMS topic when a charge is opened. It
// carries the confirm code the holder must present to complete the charge.
type ChargeEvent struct {
	Event       Type   `json:"event" validate:"required,eq=CERTIFICATE_CHARGED"`
	CertID      string `json:"cert_id" validate:"required"`
	TranID      int64  `json:"tran_id" validate:"gt=0"`
	CertCode    string `json:"cert_code"`
	ChargeSum   string `json:"charge_sum" validate:"required"`
	ConfirmCode string `json:"confirm_code" validate:"required,numeric"`
	// Phone is passed through as stored; the SMS worker rejects and records
	// numbers it cannot deliver to.
	Phone string    `json:"phone"`
	TS    time.Time `json:"ts"`
}

// Validate checks the payload shape after decoding.
func (e *ChargeEvent) Validate() error {
	if err := validate.Struct(e); err != nil {
		return fmt.Errorf("invalid %s event: %w", TypeCertificateCharged, err)
	}
	return nil
}

// TelegramMessage is published to the Telegram topic, keyed by chat id.
type TelegramMessage struct {
	ChatID   string `json:"chat_id" validate:"required"`
	Text     string `json:"text" validate:"required"`
	ImageURL string `json:"image_url" validate:"required,url"`
}

// Validate checks the payload shape after decoding.
func (m *TelegramMessage) Validate() error {
	if err := validate.Struct(m); err != nil {
		return fmt.Errorf("invalid %s event: %w", TypeSendTelegramMessage, err)
	}
	return nil
}
