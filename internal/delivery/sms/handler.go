// Package sms delivers confirm codes for opened charges and writes the
// provider outcome back onto the charge transaction.
package sms

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"text/template"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/giftcert-ledger/internal/config"
	"github.com/giftcert-ledger/internal/delivery"
	"github.com/giftcert-ledger/internal/domain/events"
	"github.com/giftcert-ledger/internal/domain/journal"
	"github.com/giftcert-ledger/internal/domain/transaction"
	"github.com/giftcert-ledger/internal/externals/mts"
	"github.com/giftcert-ledger/internal/platform/gateway"
	"github.com/giftcert-ledger/internal/platform/messaging/consumers"
	"github.com/giftcert-ledger/internal/platform/metrics"
)

const (
	incorrectPhoneText = "Not correct phone number"
	unknownStatusText  = "delivery status unknown"
	simulatedIDPrefix  = "test_"

	defaultCheckAttempts  = 5
	defaultCheckBaseDelay = 5 * time.Second
	defaultCheckMaxDelay  = time.Hour
)

// Sender is the SMS provider.
type Sender interface {
	SendSMS(ctx context.Context, phone, text string) (string, error)
	CheckMessage(ctx context.Context, messageID string) mts.CheckResult
}

// DeliveryRecorder stores the outcome on the charge transaction.
type DeliveryRecorder interface {
	UpdateDelivery(ctx context.Context, tranID int64, d transaction.Delivery) error
}

// TextData is what the message template can reference.
type TextData struct {
	CertCode    string
	ChargeSum   string
	ConfirmCode string
}

type Handler struct {
	topic      string
	sender     Sender
	deliveries DeliveryRecorder
	journal    journal.Repository
	text       *template.Template
	cfg        config.SMSConfig
	logger     *slog.Logger
	metrics    *metrics.Metrics
	jitter     func(d time.Duration) time.Duration
	// newTimer is nil outside tests; the backoff package then uses a real timer.
	newTimer func() backoff.Timer
}

var _ consumers.Processor = (*Handler)(nil)

// NewHandler parses the message template up front so a bad template fails
// at start-up. j may be nil.
func NewHandler(
	topic string,
	sender Sender,
	deliveries DeliveryRecorder,
	j journal.Repository,
	cfg config.SMSConfig,
	logger *slog.Logger,
	m *metrics.Metrics,
) (*Handler, error) {
	text, err := template.New("sms").Option("missingkey=error").Parse(cfg.TextTemplate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse SMS text template: %w", err)
	}
	if cfg.CheckAttempts <= 0 {
		cfg.CheckAttempts = defaultCheckAttempts
	}
	if cfg.CheckBaseDelay <= 0 {
		cfg.CheckBaseDelay = defaultCheckBaseDelay
	}
	if cfg.CheckMaxDelay <= 0 {
		cfg.CheckMaxDelay = defaultCheckMaxDelay
	}
	return &Handler{
		topic:      topic,
		sender:     sender,
		deliveries: deliveries,
		journal:    j,
		text:       text,
		cfg:        cfg,
		logger:     logger.With("component", "sms_worker"),
		metrics:    m,
		jitter:     upToTenPercent,
	}, nil
}

func (h *Handler) Topics() []string {
	return []string{h.topic}
}

// Handle sends the confirm code of one charge event and records the outcome.
// Rejections that a retry cannot fix (bad phone, 4xx) are recorded and
// acknowledged. Exhausted retriable failures and storage errors are returned
// so the message is redelivered after a restart.
func (h *Handler) Handle(ctx context.Context, msg kafka.Message) error {
	var event events.ChargeEvent
	if err := delivery.Decode(msg, &event); err != nil {
		return err
	}
	logger := h.logger.With("cert_id", event.CertID, "tran_id", event.TranID)

	outcome, attempts, err := h.deliver(ctx, &event, logger)
	if err != nil {
		h.metrics.Delivery(string(journal.ChannelSMS), "error")
		return err
	}

	if err := h.deliveries.UpdateDelivery(ctx, event.TranID, outcome); err != nil {
		if errors.Is(err, transaction.ErrTransactionNotFound{}) {
			return fmt.Errorf("%w: %v", consumers.ErrUnprocessable, err)
		}
		return fmt.Errorf("failed to record SMS outcome for transaction %d: %w", event.TranID, err)
	}

	h.metrics.Delivery(string(journal.ChannelSMS), outcomeLabel(outcome))
	delivery.Record(ctx, h.journal, logger, &journal.Entry{
		Channel:   journal.ChannelSMS,
		Key:       event.CertID,
		TranID:    event.TranID,
		MessageID: outcome.MessageID,
		Delivered: outcome.Sent,
		Error:     outcome.Error,
		Attempts:  attempts,
	})
	logger.InfoContext(ctx, "SMS outcome recorded",
		"message_id", outcome.MessageID,
		"sent", outcome.Sent,
		"error", outcome.Error,
		"poll_attempts", attempts)
	return nil
}

func (h *Handler) deliver(ctx context.Context, event *events.ChargeEvent, logger *slog.Logger) (transaction.Delivery, int, error) {
	if !h.cfg.Enabled {
		id := simulatedIDPrefix + uuid.NewString()
		logger.InfoContext(ctx, "SMS sending disabled, simulating delivery", "message_id", id)
		return transaction.Delivery{MessageID: id, Sent: true}, 0, nil
	}

	text, err := h.render(event)
	if err != nil {
		return transaction.Delivery{}, 0, fmt.Errorf("%w: %v", consumers.ErrUnprocessable, err)
	}

	messageID, err := h.sender.SendSMS(ctx, event.Phone, text)
	switch {
	case errors.Is(err, mts.ErrIncorrectPhoneNumber):
		return transaction.Delivery{Error: incorrectPhoneText}, 0, nil
	case gateway.IsAbortable(err), errors.Is(err, mts.ErrNoMessageID):
		logger.WarnContext(ctx, "SMS rejected by provider", "error", err)
		return transaction.Delivery{Error: err.Error()}, 0, nil
	case err != nil:
		return transaction.Delivery{}, 0, fmt.Errorf("failed to send SMS for transaction %d: %w", event.TranID, err)
	}

	result, attempts, err := h.poll(ctx, messageID)
	if err != nil {
		return transaction.Delivery{}, attempts, err
	}

	d := transaction.Delivery{MessageID: messageID}
	switch result.Status {
	case mts.StatusDelivered:
		d.Sent = true
	case mts.StatusFailed, mts.StatusNotFound:
		d.Error = result.Reason
	default:
		d.Error = unknownStatusText
	}
	return d, attempts, nil
}

var errStatusPending = errors.New("delivery status pending")

// poll checks the delivery status, waiting before every check. Only a
// not-yet-found answer is polled again, at most CheckAttempts times.
//
// The waits end on shutdown. The message is then left uncommitted and is
// redelivered after a restart, which sends the SMS to the holder again.
func (h *Handler) poll(ctx context.Context, messageID string) (mts.CheckResult, int, error) {
	result := mts.CheckResult{Status: mts.StatusNotFound, Reason: "Message ID not found"}
	attempts := 0
	armed := false
	check := func() error {
		// The first call only starts the schedule: the provider has no
		// status for a message it has just accepted.
		if !armed {
			armed = true
			return errStatusPending
		}
		attempts++
		result = h.sender.CheckMessage(ctx, messageID)
		if result.Status == mts.StatusNotFound {
			return errStatusPending
		}
		return nil
	}

	schedule := backoff.WithContext(
		backoff.WithMaxRetries(newPollBackOff(h.cfg.CheckBaseDelay, h.cfg.CheckMaxDelay, h.jitter), uint64(h.cfg.CheckAttempts)),
		ctx,
	)
	var timer backoff.Timer
	if h.newTimer != nil {
		timer = h.newTimer()
	}

	err := backoff.RetryNotifyWithTimer(check, schedule, nil, timer)
	if err != nil && !errors.Is(err, errStatusPending) {
		return result, attempts, fmt.Errorf("delivery status poll for %s interrupted: %w", messageID, err)
	}
	return result, attempts, nil
}

// pollBackOff waits min(base*2^n, max) stretched by up to 10%.
type pollBackOff struct {
	schedule *backoff.ExponentialBackOff
	jitter   func(d time.Duration) time.Duration
}

var _ backoff.BackOff = (*pollBackOff)(nil)

func newPollBackOff(base, maxDelay time.Duration, jitter func(time.Duration) time.Duration) *pollBackOff {
	schedule := backoff.NewExponentialBackOff()
	schedule.InitialInterval = min(base, maxDelay)
	schedule.MaxInterval = maxDelay
	schedule.Multiplier = 2
	schedule.RandomizationFactor = 0
	schedule.MaxElapsedTime = 0
	schedule.Reset()
	return &pollBackOff{schedule: schedule, jitter: jitter}
}

func (b *pollBackOff) NextBackOff() time.Duration {
	d := b.schedule.NextBackOff()
	if d == backoff.Stop {
		return d
	}
	return d + b.jitter(d)
}

func (b *pollBackOff) Reset() {
	b.schedule.Reset()
}

func (h *Handler) render(event *events.ChargeEvent) (string, error) {
	var buf bytes.Buffer
	err := h.text.Execute(&buf, TextData{
		CertCode:    event.CertCode,
		ChargeSum:   event.ChargeSum,
		ConfirmCode: event.ConfirmCode,
	})
	if err != nil {
		return "", fmt.Errorf("failed to render SMS text: %w", err)
	}
	return strings.TrimSpace(buf.String()), nil
}

func outcomeLabel(d transaction.Delivery) string {
	if d.Sent {
		return "delivered"
	}
	return "failed"
}

// upToTenPercent is one-sided: a wait is never shorter than its schedule.
func upToTenPercent(d time.Duration) time.Duration {
	if d < 10 {
		return 0
	}
	return time.Duration(rand.Int64N(int64(d / 10)))
}
