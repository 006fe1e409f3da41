package billing

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type MemoryLedger struct {
	mu        sync.Mutex
	accounts  map[uuid.UUID]*Account
	purchases map[string]Purchase
	now       func() time.Time
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		accounts:  make(map[uuid.UUID]*Account),
		purchases: make(map[string]Purchase),
		now:       time.Now,
	}
}

// account must be called with mu held.
func (l *MemoryLedger) account(user uuid.UUID) *Account {
	a, ok := l.accounts[user]
	if !ok {
		a = newAccount(user, l.now())
		l.accounts[user] = a
	}
	return a
}

func (l *MemoryLedger) Account(ctx context.Context, user uuid.UUID) (*Account, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	a := *l.account(user)
	if a.SubscriptionEndsAt != nil {
		t := *a.SubscriptionEndsAt
		a.SubscriptionEndsAt = &t
	}
	return &a, nil
}

func (l *MemoryLedger) Debit(ctx context.Context, user uuid.UUID, now time.Time) (Charge, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	a := l.account(user)
	switch {
	case a.Unlimited(now):
		return ChargeUnlimited, nil
	case a.Credits > 0:
		a.Credits--
		a.UpdatedAt = now
		return ChargeCredit, nil
	case a.FreeUploadsRemaining > 0:
		a.FreeUploadsRemaining--
		a.UpdatedAt = now
		return ChargeTrial, nil
	}
	return "", ErrNoEntitlement
}

func (l *MemoryLedger) Refund(ctx context.Context, user uuid.UUID, charge Charge) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	a := l.account(user)
	switch charge {
	case ChargeCredit:
		a.Credits++
	case ChargeTrial:
		a.FreeUploadsRemaining++
	}
	return nil
}

func (l *MemoryLedger) Grant(ctx context.Context, user uuid.UUID, credits int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	a := l.account(user)
	a.Credits += credits
	a.UpdatedAt = l.now()
	return nil
}

func (l *MemoryLedger) GrantPurchase(ctx context.Context, p Purchase) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, seen := l.purchases[p.SessionID]; seen {
		return false, nil
	}
	l.purchases[p.SessionID] = p
	a := l.account(p.UserID)
	a.Credits += p.Credits
	if p.CustomerID != "" {
		a.StripeCustomerID = p.CustomerID
	}
	a.UpdatedAt = l.now()
	return true, nil
}

func (l *MemoryLedger) SetSubscription(ctx context.Context, user uuid.UUID, sub Subscription) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	a := l.account(user)
	a.Plan = sub.Plan
	a.SubscriptionStatus = sub.Status
	a.SubscriptionEndsAt = sub.EndsAt
	if sub.CustomerID != "" {
		a.StripeCustomerID = sub.CustomerID
	}
	a.StripeSubscriptionID = sub.SubscriptionID
	a.UpdatedAt = l.now()
	return nil
}

func (l *MemoryLedger) SetAdmin(ctx context.Context, user uuid.UUID, admin bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.account(user).Admin = admin
	return nil
}

func (l *MemoryLedger) UserByCustomer(ctx context.Context, customerID string) (uuid.UUID, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for id, a := range l.accounts {
		if customerID != "" && a.StripeCustomerID == customerID {
			return id, nil
		}
	}
	return uuid.Nil, ErrUnknownCustomer
}
