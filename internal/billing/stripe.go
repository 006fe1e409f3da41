package billing

import (
	"context"

	"github.com/stripe/stripe-go/v83"
)

// CheckoutSessions is the slice of the Stripe API the service calls.
type CheckoutSessions interface {
	Create(ctx context.Context, params *stripe.CheckoutSessionCreateParams) (*stripe.CheckoutSession, error)
}

// Prices are the Stripe price IDs sold at checkout.
type Prices struct {
	Credits string
	Monthly string
	Yearly  string
}

type Client struct {
	sessions      CheckoutSessions
	webhookSecret string
	prices        Prices
}

// NewClient returns nil when no secret key is configured; a nil *Client
// reports IsConfigured false.
func NewClient(secretKey, webhookSecret string, prices Prices) *Client {
	if secretKey == "" {
		return nil
	}
	return NewClientWithSessions(stripe.NewClient(secretKey).V1CheckoutSessions, webhookSecret, prices)
}

func NewClientWithSessions(sessions CheckoutSessions, webhookSecret string, prices Prices) *Client {
	return &Client{
		sessions:      sessions,
		webhookSecret: webhookSecret,
		prices:        prices,
	}
}

func (c *Client) IsConfigured() bool {
	return c != nil && c.sessions != nil
}

func (c *Client) WebhookSecret() string {
	if c == nil {
		return ""
	}
	return c.webhookSecret
}

func (c *Client) Prices() Prices {
	if c == nil {
		return Prices{}
	}
	return c.prices
}

// planForPrice maps a subscription price back to a plan.
func (c *Client) planForPrice(priceID string) (Plan, bool) {
	switch {
	case c == nil || priceID == "":
		return "", false
	case priceID == c.prices.Monthly:
		return PlanMonthly, true
	case priceID == c.prices.Yearly:
		return PlanYearly, true
	}
	return "", false
}
