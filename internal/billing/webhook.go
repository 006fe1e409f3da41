package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/abdul-hamid-achik/clearframe/internal/logger"
	"github.com/stripe/stripe-go/v83"
	"github.com/stripe/stripe-go/v83/webhook"
)

type WebhookHandler struct {
	service *Service
	secret  string
}

func NewWebhookHandler(service *Service, secret string) *WebhookHandler {
	return &WebhookHandler{
		service: service,
		secret:  secret,
	}
}

func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const maxBodyBytes = int64(65536)
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	log := logger.FromContext(r.Context())

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		log.Error("failed to read webhook body", "error", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	signatureHeader := r.Header.Get("Stripe-Signature")
	if signatureHeader == "" {
		log.Warn("missing stripe signature header")
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	event, err := webhook.ConstructEventWithOptions(payload, signatureHeader, h.secret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		log.Error("webhook signature verification failed", "error", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if err := h.handleEvent(r.Context(), event); err != nil {
		log.Error("failed to handle webhook event", "type", event.Type, "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}

func (h *WebhookHandler) handleEvent(ctx context.Context, event stripe.Event) error {
	log := logger.FromContext(ctx)
	log.Info("processing webhook event", "type", event.Type, "id", event.ID)

	switch event.Type {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded":
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return fmt.Errorf("failed to unmarshal checkout session: %w", err)
		}
		return h.service.HandleCheckoutCompleted(ctx, &session)
	case "customer.subscription.created", "customer.subscription.updated":
		sub, err := unmarshalSubscription(event)
		if err != nil {
			return err
		}
		log.Info("subscription changed", "subscription_id", sub.ID, "status", sub.Status)
		return h.service.HandleSubscription(ctx, sub)
	case "customer.subscription.deleted":
		sub, err := unmarshalSubscription(event)
		if err != nil {
			return err
		}
		log.Info("subscription deleted", "subscription_id", sub.ID)
		return h.service.HandleSubscriptionDeleted(ctx, sub)
	case "invoice.payment_failed":
		var invoice stripe.Invoice
		if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
			return fmt.Errorf("failed to unmarshal invoice: %w", err)
		}
		log.Warn("payment failed", "invoice_id", invoice.ID, "attempt_count", invoice.AttemptCount)
		return nil
	default:
		log.Debug("unhandled event type", "type", event.Type)
		return nil
	}
}

func unmarshalSubscription(event stripe.Event) (*stripe.Subscription, error) {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return nil, fmt.Errorf("failed to unmarshal subscription: %w", err)
	}
	return &sub, nil
}
