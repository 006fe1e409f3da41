package billing

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNoEntitlement means nothing is left to spend.
	ErrNoEntitlement   = errors.New("billing: no upload entitlement")
	ErrUnknownCustomer = errors.New("billing: unknown stripe customer")
)

// Ledger stores accounts and moves credits. Debit must be atomic: two
// concurrent debits never spend the same credit.
type Ledger interface {
	// Account returns the user's account, creating a free one on first use.
	Account(ctx context.Context, user uuid.UUID) (*Account, error)
	Debit(ctx context.Context, user uuid.UUID, now time.Time) (Charge, error)
	Refund(ctx context.Context, user uuid.UUID, charge Charge) error
	Grant(ctx context.Context, user uuid.UUID, credits int64) error
	// GrantPurchase credits a checkout once. It reports false when the
	// session was already applied.
	GrantPurchase(ctx context.Context, p Purchase) (bool, error)
	SetSubscription(ctx context.Context, user uuid.UUID, sub Subscription) error
	SetAdmin(ctx context.Context, user uuid.UUID, admin bool) error
	UserByCustomer(ctx context.Context, customerID string) (uuid.UUID, error)
}
