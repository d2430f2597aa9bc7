// Package mts is the SMS provider client: message dispatch, delivery status
// polling and account balance.
package mts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/giftcert-ledger/internal/config"
	"github.com/giftcert-ledger/internal/platform/cache"
	"github.com/giftcert-ledger/internal/platform/gateway"
)

const balanceCacheKey = "sms:balance"

// ErrNoMessageID is returned when the provider accepted a send request but
// did not assign a message id.
var ErrNoMessageID = errors.New("provider returned no message id")

// DeliveryStatus is the provider's verdict on one message.
type DeliveryStatus int

const (
	// StatusUnknown covers unrecognized event codes and failed status calls.
	StatusUnknown DeliveryStatus = iota
	StatusDelivered
	StatusFailed
	// StatusNotFound means the provider has not registered the message yet.
	StatusNotFound
)

func (s DeliveryStatus) String() string {
	switch s {
	case StatusDelivered:
		return "delivered"
	case StatusFailed:
		return "failed"
	case StatusNotFound:
		return "not_found"
	}
	return "unknown"
}

// Provider event codes inside a status response.
const (
	eventDelivered = 200
	eventFailed    = 201
)

// CheckResult is the outcome of one status poll.
type CheckResult struct {
	Status DeliveryStatus
	Reason string
}

type Client struct {
	gw     *gateway.Client
	cfg    config.SMSConfig
	cache  cache.Store
	logger *slog.Logger
}

// New builds the client. store may be nil, which disables balance caching.
func New(gw *gateway.Client, cfg config.SMSConfig, store cache.Store, logger *slog.Logger) *Client {
	return &Client{
		gw:     gw,
		cfg:    cfg,
		cache:  store,
		logger: logger.With("component", "mts"),
	}
}

type sendRequest struct {
	Messages []outgoingMessage `json:"messages"`
}

type outgoingMessage struct {
	Content struct {
		ShortText string `json:"short_text"`
	} `json:"content"`
	From struct {
		SMSAddress string `json:"sms_address"`
	} `json:"from"`
	To []recipient `json:"to"`
}

type recipient struct {
	MSISDN string `json:"msisdn"`
}

type sendResponse struct {
	Messages []struct {
		InternalID string `json:"internal_id"`
	} `json:"messages"`
}

// SendSMS normalizes the phone and dispatches text. Gateway errors are
// returned unchanged so callers can tell retriable from abortable failures.
func (c *Client) SendSMS(ctx context.Context, rawPhone, text string) (string, error) {
	phone, err := NormalizePhone(rawPhone)
	if err != nil {
		c.logger.Error("Phone number not recognized", "phone", rawPhone)
		return "", err
	}

	msg := outgoingMessage{To: []recipient{{MSISDN: phone}}}
	msg.Content.ShortText = text
	msg.From.SMSAddress = c.cfg.SenderName

	resp, err := c.gw.Post(ctx, c.cfg.SendPath,
		gateway.WithJSON(sendRequest{Messages: []outgoingMessage{msg}}),
		gateway.WithBasicAuth(c.cfg.Login, c.cfg.Password),
	)
	if err != nil {
		return "", err
	}

	var out sendResponse
	if err := resp.Decode(&out); err != nil || len(out.Messages) == 0 || out.Messages[0].InternalID == "" {
		c.logger.Error("Failed to send SMS", "phone", phone, "status", resp.StatusCode, "body", string(resp.Body))
		return "", ErrNoMessageID
	}
	return out.Messages[0].InternalID, nil
}

type checkRequest struct {
	IntIDs []string `json:"int_ids"`
}

type checkResponse struct {
	EventsInfo []struct {
		EventsInfo []struct {
			Status         int `json:"status"`
			InternalErrors any `json:"internal_errors"`
		} `json:"events_info"`
	} `json:"events_info"`
}

// CheckMessage polls the delivery status of messageID. Failures of the
// status call itself are reported as StatusUnknown, never as an error.
func (c *Client) CheckMessage(ctx context.Context, messageID string) CheckResult {
	resp, err := c.gw.Post(ctx, c.cfg.CheckPath,
		gateway.WithJSON(checkRequest{IntIDs: []string{messageID}}),
		gateway.WithBasicAuth(c.cfg.Login, c.cfg.Password),
		gateway.WithRaiseForStatus(false),
	)
	if err != nil {
		c.logger.Error("Failed to check message status", "message_id", messageID, "error", err)
		return CheckResult{Status: StatusUnknown}
	}
	if resp.StatusCode == http.StatusNotFound {
		return CheckResult{Status: StatusNotFound, Reason: "Message ID not found"}
	}
	if resp.Cause != nil {
		c.logger.Error("Failed to check message status", "message_id", messageID, "error", resp.Cause)
		return CheckResult{Status: StatusUnknown}
	}

	var out checkResponse
	if err := resp.Decode(&out); err != nil || len(out.EventsInfo) == 0 || len(out.EventsInfo[0].EventsInfo) == 0 {
		c.logger.Warn("Unrecognized status response", "message_id", messageID, "body", string(resp.Body))
		return CheckResult{Status: StatusUnknown}
	}

	event := out.EventsInfo[0].EventsInfo[0]
	switch event.Status {
	case eventDelivered:
		return CheckResult{Status: StatusDelivered}
	case eventFailed:
		return CheckResult{Status: StatusFailed, Reason: describeErrors(event.InternalErrors)}
	default:
		c.logger.Warn("Unknown event code", "code", event.Status, "message_id", messageID)
		return CheckResult{Status: StatusUnknown}
	}
}

func describeErrors(v any) string {
	if v == nil {
		return "delivery failed"
	}
	return fmt.Sprint(v)
}

type balanceResponse struct {
	Balance decimal.Decimal `json:"balance"`
}

// Balance returns the account balance, served from cache when fresh. A
// response without a readable balance yields zero.
func (c *Client) Balance(ctx context.Context) (decimal.Decimal, error) {
	if c.cache != nil {
		cached, err := c.cache.Get(ctx, balanceCacheKey)
		if err == nil {
			if d, perr := decimal.NewFromString(cached); perr == nil {
				return d, nil
			}
		} else if !errors.Is(err, cache.ErrCacheMiss) {
			c.logger.Warn("Balance cache read failed", "error", err)
		}
	}

	resp, err := c.gw.Post(ctx, c.cfg.BalancePath,
		gateway.WithBasicAuth(c.cfg.Login, c.cfg.Password),
	)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to fetch SMS balance: %w", err)
	}
	var out balanceResponse
	if err := resp.Decode(&out); err != nil {
		c.logger.Warn("Unrecognized balance response", "body", string(resp.Body), "error", err)
		return decimal.Zero, nil
	}

	if c.cache != nil {
		if err := c.cache.Set(ctx, balanceCacheKey, out.Balance.String(), c.ttl()); err != nil {
			c.logger.Warn("Balance cache write failed", "error", err)
		}
	}
	return out.Balance, nil
}

func (c *Client) ttl() time.Duration {
	if c.cfg.BalanceCacheTTL > 0 {
		return c.cfg.BalanceCacheTTL
	}
	return time.Minute
}
