// Package journal records notification delivery outcomes for audit. The
// journal is append-only and sits outside the ledger's consistency boundary.
package journal

import (
	"time"
)

// Channel names the delivery medium.
type Channel string

const (
	ChannelSMS      Channel = "sms"
	ChannelTelegram Channel = "telegram"
)

// Entry is one delivery outcome.
type Entry struct {
	Channel   Channel   `json:"channel" bson:"channel"`
	Key       string    `json:"key" bson:"key"` // cert id or chat id
	TranID    int64     `json:"tran_id,omitempty" bson:"tran_id,omitempty"`
	MessageID string    `json:"message_id,omitempty" bson:"message_id,omitempty"`
	Delivered bool      `json:"delivered" bson:"delivered"`
	Error     string    `json:"error,omitempty" bson:"error,omitempty"`
	Attempts  int       `json:"attempts" bson:"attempts"`
	At        time.Time `json:"at" bson:"at"`
}
