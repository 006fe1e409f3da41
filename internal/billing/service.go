package billing

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/abdul-hamid-achik/clearframe/internal/job"
	"github.com/abdul-hamid-achik/clearframe/internal/logger"
	"github.com/abdul-hamid-achik/clearframe/internal/metrics"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v83"
)

var (
	ErrNotConfigured  = errors.New("billing: stripe not configured")
	ErrInvalidRequest = errors.New("billing: invalid request")
)

const (
	CheckoutCredits = "credits"
	CheckoutMonthly = "monthly"
	CheckoutYearly  = "yearly"
)

type CheckoutRequest struct {
	Kind  string `json:"kind" validate:"required,oneof=credits monthly yearly"`
	Packs int64  `json:"packs" validate:"omitempty,min=1,max=100"`
}

type ServiceConfig struct {
	Ledger         Ledger
	Client         *Client
	BaseURL        string
	CreditsPerPack int64
	Now            func() time.Time
}

// Service decides upload entitlements and applies Stripe events to the
// ledger. It satisfies job.Entitlements.
type Service struct {
	ledger         Ledger
	client         *Client
	baseURL        string
	creditsPerPack int64
	validate       *validator.Validate
	now            func() time.Time
}

func NewService(cfg ServiceConfig) *Service {
	s := &Service{
		ledger:         cfg.Ledger,
		client:         cfg.Client,
		baseURL:        cfg.BaseURL,
		creditsPerPack: cfg.CreditsPerPack,
		validate:       validator.New(),
		now:            cfg.Now,
	}
	if s.creditsPerPack <= 0 {
		s.creditsPerPack = 10
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

func (s *Service) IsConfigured() bool {
	return s.client.IsConfigured()
}

func (s *Service) Ledger() Ledger { return s.ledger }

// Reserve debits one upload. Subscriptions, admins and credits put the
// upload in the paid bucket; the trial allowance puts it in the free one.
func (s *Service) Reserve(ctx context.Context, owner uuid.UUID) (job.Entitlement, error) {
	charge, err := s.ledger.Debit(ctx, owner, s.now())
	if err != nil {
		return job.Entitlement{}, err
	}
	metrics.RecordCredits("debit_"+string(charge), 1)

	tier := job.TierPaid
	if charge == ChargeTrial {
		tier = job.TierFree
	}
	return job.Entitlement{Tier: tier, Charge: string(charge)}, nil
}

func (s *Service) Refund(ctx context.Context, owner uuid.UUID, e job.Entitlement) error {
	if err := s.ledger.Refund(ctx, owner, Charge(e.Charge)); err != nil {
		return err
	}
	metrics.RecordCredits("refund_"+e.Charge, 1)
	return nil
}

// AccountView is the account as returned to its owner.
type AccountView struct {
	*Account
	Tier      string `json:"tier"`
	Unlimited bool   `json:"unlimited"`
	CanUpload bool   `json:"can_upload"`
}

func (s *Service) Account(ctx context.Context, user uuid.UUID) (*AccountView, error) {
	a, err := s.ledger.Account(ctx, user)
	if err != nil {
		return nil, err
	}
	now := s.now()
	return &AccountView{
		Account:   a,
		Tier:      a.Tier(now),
		Unlimited: a.Unlimited(now),
		CanUpload: a.CanUpload(now),
	}, nil
}

// CreateCheckoutSession starts a Stripe checkout for a credit pack or a
// subscription and returns the hosted checkout URL.
func (s *Service) CreateCheckoutSession(ctx context.Context, user uuid.UUID, req CheckoutRequest) (string, error) {
	if err := s.validate.Struct(req); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if !s.IsConfigured() {
		return "", ErrNotConfigured
	}

	a, err := s.ledger.Account(ctx, user)
	if err != nil {
		return "", err
	}

	prices := s.client.Prices()
	params := &stripe.CheckoutSessionCreateParams{
		ClientReferenceID: stripe.String(user.String()),
		SuccessURL:        stripe.String(s.baseURL + "/account?checkout=success"),
		CancelURL:         stripe.String(s.baseURL + "/account?checkout=canceled"),
	}
	if a.StripeCustomerID != "" {
		params.Customer = stripe.String(a.StripeCustomerID)
	}

	switch req.Kind {
	case CheckoutCredits:
		packs := max(req.Packs, 1)
		params.Mode = stripe.String(string(stripe.CheckoutSessionModePayment))
		params.LineItems = []*stripe.CheckoutSessionCreateLineItemParams{
			{Price: stripe.String(prices.Credits), Quantity: stripe.Int64(packs)},
		}
		params.Metadata = map[string]string{
			"user_id": user.String(),
			"credits": strconv.FormatInt(packs*s.creditsPerPack, 10),
		}
	default:
		plan, price := PlanMonthly, prices.Monthly
		if req.Kind == CheckoutYearly {
			plan, price = PlanYearly, prices.Yearly
		}
		params.Mode = stripe.String(string(stripe.CheckoutSessionModeSubscription))
		params.LineItems = []*stripe.CheckoutSessionCreateLineItemParams{
			{Price: stripe.String(price), Quantity: stripe.Int64(1)},
		}
		params.SubscriptionData = &stripe.CheckoutSessionCreateSubscriptionDataParams{
			Metadata: map[string]string{
				"user_id": user.String(),
				"plan":    string(plan),
			},
		}
	}

	session, err := s.client.sessions.Create(ctx, params)
	if err != nil {
		return "", fmt.Errorf("failed to create checkout session: %w", err)
	}
	return session.URL, nil
}

// HandleCheckoutCompleted grants the credits of a paid credit-pack session.
// Subscription checkouts are applied by the subscription events.
func (s *Service) HandleCheckoutCompleted(ctx context.Context, session *stripe.CheckoutSession) error {
	if session.Mode != stripe.CheckoutSessionModePayment {
		return nil
	}
	if session.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
		logger.FromContext(ctx).Info("checkout completed without payment", "session_id", session.ID)
		return nil
	}

	userStr := session.Metadata["user_id"]
	if userStr == "" {
		userStr = session.ClientReferenceID
	}
	user, err := uuid.Parse(userStr)
	if err != nil {
		return fmt.Errorf("checkout %s: invalid user id %q", session.ID, userStr)
	}
	credits, err := strconv.ParseInt(session.Metadata["credits"], 10, 64)
	if err != nil || credits <= 0 {
		return fmt.Errorf("checkout %s: invalid credits %q", session.ID, session.Metadata["credits"])
	}

	p := Purchase{
		SessionID:   session.ID,
		UserID:      user,
		Credits:     credits,
		AmountCents: session.AmountTotal,
		Currency:    string(session.Currency),
	}
	if session.Customer != nil {
		p.CustomerID = session.Customer.ID
	}

	granted, err := s.ledger.GrantPurchase(ctx, p)
	if err != nil {
		return err
	}
	if granted {
		metrics.RecordCredits("grant", credits)
		logger.FromContext(ctx).Info("credits granted", "user_id", user.String(), "credits", credits, "session_id", session.ID)
	}
	return nil
}

// HandleSubscription applies a created or updated subscription.
func (s *Service) HandleSubscription(ctx context.Context, sub *stripe.Subscription) error {
	user, err := s.userFromSubscription(ctx, sub)
	if err != nil {
		return err
	}

	plan := Plan(sub.Metadata["plan"])
	if !plan.Valid() || plan == PlanFree {
		var priceID string
		if sub.Items != nil && len(sub.Items.Data) > 0 && sub.Items.Data[0].Price != nil {
			priceID = sub.Items.Data[0].Price.ID
		}
		p, ok := s.client.planForPrice(priceID)
		if !ok {
			p = PlanMonthly
		}
		plan = p
	}

	out := Subscription{
		Plan:           plan,
		Status:         mapStripeStatus(sub.Status),
		SubscriptionID: sub.ID,
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 && sub.Items.Data[0].CurrentPeriodEnd > 0 {
		end := time.Unix(sub.Items.Data[0].CurrentPeriodEnd, 0).UTC()
		out.EndsAt = &end
	}
	if sub.Customer != nil {
		out.CustomerID = sub.Customer.ID
	}
	return s.ledger.SetSubscription(ctx, user, out)
}

func (s *Service) HandleSubscriptionDeleted(ctx context.Context, sub *stripe.Subscription) error {
	user, err := s.userFromSubscription(ctx, sub)
	if err != nil {
		return err
	}
	return s.ledger.SetSubscription(ctx, user, Subscription{
		Plan:   PlanFree,
		Status: SubscriptionCanceled,
	})
}

func (s *Service) userFromSubscription(ctx context.Context, sub *stripe.Subscription) (uuid.UUID, error) {
	if id, ok := sub.Metadata["user_id"]; ok && id != "" {
		return uuid.Parse(id)
	}
	if sub.Customer != nil {
		return s.ledger.UserByCustomer(ctx, sub.Customer.ID)
	}
	return uuid.Nil, fmt.Errorf("could not determine user from subscription %s", sub.ID)
}

func (s *Service) WebhookSecret() string {
	return s.client.WebhookSecret()
}
