package events

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/abdul-hamid-achik/clearframe/internal/logger"
)

const (
	deliveryTimeout = 10 * time.Second
	maxResponseBody = 1024
	maxAttempts     = 3
)

var ErrCircuitOpen = errors.New("webhook circuit open")

// WebhookPublisher POSTs signed events to a single endpoint.
type WebhookPublisher struct {
	url     string
	secret  string
	client  *http.Client
	breaker *CircuitBreaker
	backoff time.Duration
}

type WebhookOption func(*WebhookPublisher)

func WithHTTPClient(c *http.Client) WebhookOption {
	return func(p *WebhookPublisher) { p.client = c }
}

func WithBackoff(d time.Duration) WebhookOption {
	return func(p *WebhookPublisher) { p.backoff = d }
}

func WithCircuitBreaker(cb *CircuitBreaker) WebhookOption {
	return func(p *WebhookPublisher) { p.breaker = cb }
}

func NewWebhookPublisher(url, secret string, opts ...WebhookOption) *WebhookPublisher {
	p := &WebhookPublisher{
		url:     url,
		secret:  secret,
		client:  &http.Client{Timeout: deliveryTimeout},
		breaker: NewCircuitBreaker(5, 5*time.Minute),
		backoff: 500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *WebhookPublisher) Name() string { return "webhook" }

// HealthCheck fails while the circuit is open.
func (p *WebhookPublisher) HealthCheck(context.Context) error {
	if p.breaker.State() == "open" {
		return ErrCircuitOpen
	}
	return nil
}

func (p *WebhookPublisher) Publish(ctx context.Context, e *Event) error {
	if !p.breaker.Allow() {
		return ErrCircuitOpen
	}

	payload, err := e.Marshal()
	if err != nil {
		return err
	}

	log := logger.FromContext(ctx).With("event_type", e.Type, "event_id", e.ID)

	var lastErr error
	for attempt := range maxAttempts {
		if attempt > 0 {
			delay := p.backoff * time.Duration(1<<uint(attempt-1))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		lastErr = p.deliver(ctx, e, payload)
		if lastErr == nil {
			p.breaker.RecordSuccess()
			log.Debug("webhook delivered", "attempt", attempt+1)
			return nil
		}
		log.Warn("webhook delivery failed", "attempt", attempt+1, "error", lastErr)
	}

	p.breaker.RecordFailure()
	return fmt.Errorf("webhook delivery failed after %d attempts: %w", maxAttempts, lastErr)
}

func (p *WebhookPublisher) deliver(ctx context.Context, e *Event, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(payload))
	if err != nil {
		return err
	}

	timestamp := time.Now()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "clearframe-webhook/1.0")
	req.Header.Set("X-Clearframe-Event", e.Type)
	req.Header.Set("X-Clearframe-Delivery", e.ID)
	if p.secret != "" {
		req.Header.Set(SignatureHeader, Sign(p.secret, timestamp, payload))
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	return fmt.Errorf("status %d: %s", resp.StatusCode, bytes.TrimSpace(body))
}
