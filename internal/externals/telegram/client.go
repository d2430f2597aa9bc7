// Package telegram sends certificate images through the Bot API.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/giftcert-ledger/internal/config"
	"github.com/giftcert-ledger/internal/platform/gateway"
)

type Client struct {
	gw     *gateway.Client
	token  string
	logger *slog.Logger
}

func New(gw *gateway.Client, cfg config.TelegramConfig, logger *slog.Logger) *Client {
	return &Client{
		gw:     gw,
		token:  cfg.Token,
		logger: logger.With("component", "telegram"),
	}
}

type sendPhotoRequest struct {
	ChatID    string `json:"chat_id"`
	Photo     string `json:"photo"`
	Caption   string `json:"caption"`
	ParseMode string `json:"parse_mode"`
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// SendPhoto posts one image with an HTML caption. It never retries a
// rejected message; the returned Response carries the provider reply.
func (c *Client) SendPhoto(ctx context.Context, chatID, imageURL, caption string) (*gateway.Response, error) {
	resp, err := c.gw.Post(ctx, fmt.Sprintf("/bot%s/sendPhoto", c.token),
		gateway.WithJSON(sendPhotoRequest{
			ChatID:    chatID,
			Photo:     imageURL,
			Caption:   caption,
			ParseMode: "HTML",
		}),
		gateway.WithRaiseForStatus(false),
	)
	if err != nil {
		return nil, err
	}
	if resp.Cause != nil {
		return resp, describe(resp)
	}
	return resp, nil
}

func describe(resp *gateway.Response) error {
	var body apiResponse
	if err := resp.Decode(&body); err == nil && body.Description != "" {
		return fmt.Errorf("telegram rejected message (status %d): %s", resp.StatusCode, body.Description)
	}
	if resp.StatusCode == 0 {
		return fmt.Errorf("telegram unreachable: %w", resp.Cause)
	}
	return errors.Join(fmt.Errorf("telegram rejected message (status %d)", resp.StatusCode), resp.Cause)
}
