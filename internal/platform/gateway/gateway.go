// Package gateway is the outbound HTTP client used for every external
// provider call. Each attempt is classified as success, retriable (5xx,
// connection failure, timeout) or abortable (4xx, application-level abort).
// Retriable attempts are repeated up to AllowedRetries times with a constant
// backoff; abortable ones end the retry loop as permanent errors.
package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/giftcert-ledger/internal/config"
	"github.com/giftcert-ledger/internal/platform/metrics"
)

// Config describes one upstream.
type Config struct {
	BaseURL        string
	Timeout        time.Duration
	AllowedRetries int
	Backoff        time.Duration
	// KeepAlive keeps connections warm across calls. When false every call
	// uses a fresh connection that is closed afterwards.
	KeepAlive bool
}

// NewConfig combines a provider base URL with the shared retry policy.
func NewConfig(baseURL string, cfg config.GatewayConfig) Config {
	return Config{
		BaseURL:        baseURL,
		Timeout:        cfg.RequestTimeout,
		AllowedRetries: cfg.AllowedRetries,
		Backoff:        cfg.Backoff,
		KeepAlive:      cfg.KeepAlive,
	}
}

type Client struct {
	cfg        Config
	httpClient *http.Client
	transport  *http.Transport
	logger     *slog.Logger
	metrics    *metrics.Metrics
	// newTimer is nil outside tests; the backoff package then uses a real timer.
	newTimer func() backoff.Timer
}

func New(cfg Config, logger *slog.Logger, m *metrics.Metrics) *Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DisableKeepAlives = !cfg.KeepAlive

	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
		transport: transport,
		logger:    logger.With("component", "gateway", "base_url", cfg.BaseURL),
		metrics:   m,
	}
}

func (c *Client) Get(ctx context.Context, endpoint string, opts ...RequestOption) (*Response, error) {
	return c.Do(ctx, http.MethodGet, endpoint, opts...)
}

func (c *Client) Post(ctx context.Context, endpoint string, opts ...RequestOption) (*Response, error) {
	return c.Do(ctx, http.MethodPost, endpoint, opts...)
}

// Do performs the call under the retry policy.
//
// With raise-for-status on (the default) a final retriable or abortable
// outcome is returned as *RetriableError or *AbortableError. With it off the
// last response is returned with Cause set, and a nil error; when no
// response was ever received the returned Response has StatusCode 0.
func (c *Client) Do(ctx context.Context, method, endpoint string, opts ...RequestOption) (*Response, error) {
	o := buildOptions(opts)
	if o.err != nil {
		return nil, o.err
	}
	target := c.resolve(endpoint)
	defer c.release()

	attempts := 0
	var last Outcome
	call := func() error {
		attempts++
		last = c.attempt(ctx, method, target, o)
		c.metrics.GatewayAttempt(hostOf(target), last.Kind.String())
		switch last.Kind {
		case KindSuccess:
			return nil
		case KindAbortable:
			return backoff.Permanent(last.Cause)
		}
		return last.Cause
	}
	retryLogged := func(err error, wait time.Duration) {
		c.logger.Warn("Retrying external call",
			"method", method,
			"url", target,
			"attempt", attempts,
			"backoff", wait,
			"error", err)
	}

	var timer backoff.Timer
	if c.newTimer != nil {
		timer = c.newTimer()
	}
	err := backoff.RetryNotifyWithTimer(call, c.policy(ctx), retryLogged, timer)
	if err != nil && last.Kind == KindRetriable && ctx.Err() != nil {
		return nil, fmt.Errorf("external call to %s interrupted: %w", target, ctx.Err())
	}

	switch last.Kind {
	case KindSuccess:
		return last.Response, nil
	case KindRetriable:
		if o.raiseForStatus {
			return nil, &RetriableError{Attempts: attempts, Response: last.Response, Cause: last.Cause}
		}
	case KindAbortable:
		if o.raiseForStatus {
			return nil, &AbortableError{Response: last.Response, Cause: last.Cause}
		}
	}

	resp := last.Response
	if resp == nil {
		resp = &Response{}
	}
	resp.Cause = last.Cause
	return resp, nil
}

// policy allows AllowedRetries further attempts after the first one, spaced
// by the configured backoff, and stops waiting as soon as ctx is done.
func (c *Client) policy(ctx context.Context) backoff.BackOffContext {
	retries := uint64(max(c.cfg.AllowedRetries, 0))
	return backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(c.cfg.Backoff), retries),
		ctx,
	)
}

// attempt runs one request and classifies it.
func (c *Client) attempt(ctx context.Context, method, target string, o *requestOptions) Outcome {
	var body io.Reader
	if o.body != nil {
		body = bytes.NewReader(o.body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return abortable(nil, fmt.Errorf("failed to build request: %w", err))
	}
	if o.contentType != "" {
		req.Header.Set("Content-Type", o.contentType)
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range o.headers {
		req.Header.Set(k, v)
	}
	if o.basicAuth {
		req.SetBasicAuth(o.username, o.password)
	}

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		// Connection failures and timeouts are retriable.
		return retriable(nil, err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return retriable(nil, fmt.Errorf("failed to read response body: %w", err))
	}
	resp := &Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Body:       raw,
		Parsed:     parseBody(raw),
	}

	statusErr := &StatusError{Method: method, URL: target, StatusCode: httpResp.StatusCode}
	switch {
	case httpResp.StatusCode >= 500:
		return retriable(resp, statusErr)
	case httpResp.StatusCode >= 400:
		return abortable(resp, statusErr)
	}
	if o.abortCheck != nil {
		if err := o.abortCheck(resp); err != nil {
			return abortable(resp, err)
		}
	}
	return success(resp)
}

// resolve joins endpoint onto the base URL unless it is already absolute.
func (c *Client) resolve(endpoint string) string {
	if strings.Contains(endpoint, "://") {
		return endpoint
	}
	return strings.TrimRight(c.cfg.BaseURL, "/") + "/" + strings.TrimLeft(endpoint, "/")
}

func (c *Client) release() {
	if !c.cfg.KeepAlive {
		c.transport.CloseIdleConnections()
	}
}

// Close drops any pooled connections.
func (c *Client) Close() {
	c.transport.CloseIdleConnections()
}

func hostOf(target string) string {
	u, err := url.Parse(target)
	if err != nil {
		return "unknown"
	}
	return u.Host
}

// IsRetriable reports whether err is a retriable external failure.
func IsRetriable(err error) bool {
	var re *RetriableError
	return errors.As(err, &re)
}

// IsAbortable reports whether err is an abortable external failure.
func IsAbortable(err error) bool {
	var ae *AbortableError
	return errors.As(err, &ae)
}
