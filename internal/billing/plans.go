package billing

import (
	"time"

	"github.com/abdul-hamid-achik/clearframe/internal/job"
	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v83"
)

type Plan string

const (
	PlanFree    Plan = "free"
	PlanMonthly Plan = "monthly"
	PlanYearly  Plan = "yearly"
)

func (p Plan) Valid() bool {
	return p == PlanFree || p == PlanMonthly || p == PlanYearly
}

type SubscriptionStatus string

const (
	SubscriptionNone     SubscriptionStatus = "none"
	SubscriptionActive   SubscriptionStatus = "active"
	SubscriptionTrialing SubscriptionStatus = "trialing"
	SubscriptionPastDue  SubscriptionStatus = "past_due"
	SubscriptionCanceled SubscriptionStatus = "canceled"
	SubscriptionUnpaid   SubscriptionStatus = "unpaid"
)

const (
	// FreeUploads is the trial allowance every new account starts with.
	FreeUploads = 1

	GracePeriod = 3 * 24 * time.Hour // past_due
)

// Charge names what a debit consumed so it can be refunded exactly.
type Charge string

const (
	ChargeUnlimited Charge = "unlimited"
	ChargeCredit    Charge = "credit"
	ChargeTrial     Charge = "trial"
)

type Account struct {
	UserID               uuid.UUID          `json:"user_id"`
	Admin                bool               `json:"admin"`
	Plan                 Plan               `json:"plan"`
	SubscriptionStatus   SubscriptionStatus `json:"subscription_status"`
	SubscriptionEndsAt   *time.Time         `json:"subscription_ends_at,omitempty"`
	StripeCustomerID     string             `json:"-"`
	StripeSubscriptionID string             `json:"-"`
	Credits              int64              `json:"credits"`
	FreeUploadsRemaining int64              `json:"free_uploads_remaining"`
	CreatedAt            time.Time          `json:"created_at"`
	UpdatedAt            time.Time          `json:"updated_at"`
}

func newAccount(user uuid.UUID, now time.Time) *Account {
	return &Account{
		UserID:               user,
		Plan:                 PlanFree,
		SubscriptionStatus:   SubscriptionNone,
		FreeUploadsRemaining: FreeUploads,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
}

// Subscribed reports whether a paid plan is currently in force. A past_due
// subscription keeps working for GracePeriod after its period end.
func (a *Account) Subscribed(now time.Time) bool {
	if a.Plan == PlanFree {
		return false
	}
	switch a.SubscriptionStatus {
	case SubscriptionActive, SubscriptionTrialing:
		return a.SubscriptionEndsAt == nil || now.Before(a.SubscriptionEndsAt.Add(GracePeriod))
	case SubscriptionPastDue:
		return a.SubscriptionEndsAt != nil && now.Before(a.SubscriptionEndsAt.Add(GracePeriod))
	default:
		return false
	}
}

// Unlimited accounts are never debited.
func (a *Account) Unlimited(now time.Time) bool {
	return a.Admin || a.Subscribed(now)
}

// Tier is the storage bucket new uploads land in.
func (a *Account) Tier(now time.Time) string {
	if a.Unlimited(now) || a.Credits > 0 {
		return job.TierPaid
	}
	return job.TierFree
}

func (a *Account) CanUpload(now time.Time) bool {
	return a.Unlimited(now) || a.Credits > 0 || a.FreeUploadsRemaining > 0
}

// Subscription is the subset of a Stripe subscription the ledger keeps.
type Subscription struct {
	Plan           Plan
	Status         SubscriptionStatus
	EndsAt         *time.Time
	CustomerID     string
	SubscriptionID string
}

// Purchase is a completed credit-pack checkout. SessionID makes grants
// idempotent across webhook redeliveries.
type Purchase struct {
	SessionID   string
	UserID      uuid.UUID
	Credits     int64
	AmountCents int64
	Currency    string
	CustomerID  string
}

func mapStripeStatus(status stripe.SubscriptionStatus) SubscriptionStatus {
	switch status {
	case stripe.SubscriptionStatusTrialing:
		return SubscriptionTrialing
	case stripe.SubscriptionStatusActive:
		return SubscriptionActive
	case stripe.SubscriptionStatusPastDue:
		return SubscriptionPastDue
	case stripe.SubscriptionStatusCanceled:
		return SubscriptionCanceled
	case stripe.SubscriptionStatusUnpaid:
		return SubscriptionUnpaid
	default:
		return SubscriptionNone
	}
}
