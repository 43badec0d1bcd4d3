// Package discord posts rendered messages to Discord channels through the
// bot API.
package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"

	"gitcord/internal/domain"
)

// Config holds Discord client configuration.
type Config struct {
	BaseURL        string
	Token          string
	Timeout        time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

type Client struct {
	httpClient     *http.Client
	baseURL        string
	token          string
	maxAttempts    int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	logger         *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Client {
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.InitialBackoff == 0 {
		cfg.InitialBackoff = time.Second
	}
	if cfg.MaxBackoff == 0 {
		cfg.MaxBackoff = 30 * time.Second
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL:        cfg.BaseURL,
		token:          cfg.Token,
		maxAttempts:    cfg.MaxAttempts,
		initialBackoff: cfg.InitialBackoff,
		maxBackoff:     cfg.MaxBackoff,
		logger:         logger.With("component", "discord"),
	}
}

// Send posts a rendered message to its channel. Transient failures are
// retried with exponential backoff up to the configured attempt count
// before ErrDeliveryUnavailable is surfaced; ErrDeliveryRejected is
// returned immediately and is not retried.
func (c *Client) Send(ctx context.Context, msg *domain.RenderedMessage) error {
	op := func() error {
		err := c.post(ctx, msg)
		if err == nil {
			return nil
		}
		if errors.Is(err, domain.ErrDeliveryRejected) {
			return backoff.Permanent(err)
		}
		c.logger.Warn("delivery failed, will retry",
			"channel_id", msg.ChannelID,
			"event_id", msg.EventID,
			"error", err,
		)
		return err
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.initialBackoff
	bo.MaxInterval = c.maxBackoff

	err := backoff.Retry(op, backoff.WithContext(
		backoff.WithMaxRetries(bo, uint64(c.maxAttempts-1)), ctx))
	if err != nil {
		return fmt.Errorf("send to channel %d: %w", msg.ChannelID, err)
	}
	return nil
}

// ChannelExists checks that the bot can see the channel. Used by the
// follow command before a feed is stored.
func (c *Client) ChannelExists(ctx context.Context, channelID int64) (bool, error) {
	url := fmt.Sprintf("%s/channels/%d", c.baseURL, channelID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("%w: %v", domain.ErrDeliveryUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return false, nil
	case resp.StatusCode >= 500:
		return false, fmt.Errorf("%w: status %d", domain.ErrDeliveryUnavailable, resp.StatusCode)
	case resp.StatusCode >= 400:
		return false, fmt.Errorf("%w: status %d", domain.ErrDeliveryRejected, resp.StatusCode)
	}
	return true, nil
}

func (c *Client) post(ctx context.Context, msg *domain.RenderedMessage) error {
	body, err := json.Marshal(map[string]string{"content": msg.Body})
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	url := fmt.Sprintf("%s/channels/%d/messages", c.baseURL, msg.ChannelID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrDeliveryUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests:
		// Rate limited: wait out Retry-After before handing control back
		// to the retry loop.
		c.waitRetryAfter(ctx, resp.Header.Get("Retry-After"))
		return fmt.Errorf("%w: rate limited", domain.ErrDeliveryUnavailable)
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: status %d", domain.ErrDeliveryUnavailable, resp.StatusCode)
	default:
		return fmt.Errorf("%w: status %d", domain.ErrDeliveryRejected, resp.StatusCode)
	}
}

func (c *Client) waitRetryAfter(ctx context.Context, header string) {
	seconds, err := strconv.ParseFloat(header, 64)
	if err != nil || seconds <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(time.Duration(seconds * float64(time.Second))):
	}
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bot "+c.token)
	req.Header.Set("User-Agent", "gitcord/1.0")
}
