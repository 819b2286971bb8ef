package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/okian/riskgate/internal/domain/model"
	"github.com/okian/riskgate/pkg/logger"
)

const defaultWebhookTimeout = 5 * time.Second

// Webhook POSTs each publication as JSON to a fixed endpoint.
type Webhook struct {
	url    string
	client *http.Client
	header http.Header
	log    logger.Logger
}

// WebhookOption configures a Webhook.
type WebhookOption func(*Webhook)

// WithTimeout bounds a single delivery attempt.
func WithTimeout(d time.Duration) WebhookOption {
	return func(w *Webhook) {
		if d > 0 {
			w.client.Timeout = d
		}
	}
}

// WithHTTPClient replaces the default client. The timeout option still
// applies when given after this one.
func WithHTTPClient(c *http.Client) WebhookOption {
	return func(w *Webhook) {
		if c != nil {
			w.client = c
		}
	}
}

// WithHeader adds a static request header, e.g. an auth token.
func WithHeader(key, value string) WebhookOption {
	return func(w *Webhook) { w.header.Add(key, value) }
}

// WithWebhookLogger overrides the logger.
func WithWebhookLogger(l logger.Logger) WebhookOption {
	return func(w *Webhook) {
		if l != nil {
			w.log = l
		}
	}
}

// NewWebhook returns a publisher targeting url.
func NewWebhook(url string, opts ...WebhookOption) (*Webhook, error) {
	if url == "" {
		return nil, ErrNoEndpoint
	}
	w := &Webhook{
		url:    url,
		client: &http.Client{Timeout: defaultWebhookTimeout},
		header: make(http.Header),
		log:    logger.Get().Named("webhook"),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Name implements worker.Publisher.
func (w *Webhook) Name() string { return "webhook" }

// Publish sends p. Any status outside 2xx is reported as ErrDeliveryRejected
// so the worker can retry.
func (w *Webhook) Publish(ctx context.Context, p model.Publication) error { //nolint:gocritic // hugeParam: matches worker.Publisher
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode publication %s: %w", p.ID, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	for k, vs := range w.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", p.ID)

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("post publication %s: %w", p.ID, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		w.log.Debug(ctx, "webhook rejected publication",
			logger.String("id", p.ID),
			logger.Int("status", resp.StatusCode))
		return fmt.Errorf("%w: status %d", ErrDeliveryRejected, resp.StatusCode)
	}
	return nil
}
