package billing

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/abdul-hamid-achik/clearframe/internal/job"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

//go:embed schema.sql
var Schema string

type PostgresLedger struct {
	db job.DBTX
}

func NewPostgresLedger(db job.DBTX) *PostgresLedger {
	return &PostgresLedger{db: db}
}

func (l *PostgresLedger) Migrate(ctx context.Context) error {
	if _, err := l.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("migrate accounts: %w", err)
	}
	return nil
}

const ensureAccount = `INSERT INTO accounts (user_id, free_uploads_remaining)
VALUES ($1, $2) ON CONFLICT (user_id) DO NOTHING`

func (l *PostgresLedger) ensure(ctx context.Context, user uuid.UUID) error {
	if _, err := l.db.Exec(ctx, ensureAccount, user, FreeUploads); err != nil {
		return fmt.Errorf("ensure account: %w", err)
	}
	return nil
}

const getAccount = `SELECT user_id, admin, plan, subscription_status, subscription_ends_at,
	COALESCE(stripe_customer_id, ''), COALESCE(stripe_subscription_id, ''),
	credits, free_uploads_remaining, created_at, updated_at
FROM accounts WHERE user_id = $1`

func (l *PostgresLedger) Account(ctx context.Context, user uuid.UUID) (*Account, error) {
	if err := l.ensure(ctx, user); err != nil {
		return nil, err
	}
	var (
		a            Account
		plan, status string
	)
	err := l.db.QueryRow(ctx, getAccount, user).Scan(
		&a.UserID, &a.Admin, &plan, &status, &a.SubscriptionEndsAt,
		&a.StripeCustomerID, &a.StripeSubscriptionID,
		&a.Credits, &a.FreeUploadsRemaining, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	a.Plan = Plan(plan)
	a.SubscriptionStatus = SubscriptionStatus(status)
	return &a, nil
}

const (
	debitCredit = `UPDATE accounts SET credits = credits - 1, updated_at = $2
WHERE user_id = $1 AND credits > 0`
	debitTrial = `UPDATE accounts SET free_uploads_remaining = free_uploads_remaining - 1, updated_at = $2
WHERE user_id = $1 AND free_uploads_remaining > 0`
)

// Debit tries credits before the trial allowance. Each step is a single
// conditional UPDATE so concurrent debits cannot overdraw.
func (l *PostgresLedger) Debit(ctx context.Context, user uuid.UUID, now time.Time) (Charge, error) {
	a, err := l.Account(ctx, user)
	if err != nil {
		return "", err
	}
	if a.Unlimited(now) {
		return ChargeUnlimited, nil
	}
	for _, step := range []struct {
		query  string
		charge Charge
	}{
		{debitCredit, ChargeCredit},
		{debitTrial, ChargeTrial},
	} {
		tag, err := l.db.Exec(ctx, step.query, user, now)
		if err != nil {
			return "", fmt.Errorf("debit %s: %w", step.charge, err)
		}
		if tag.RowsAffected() == 1 {
			return step.charge, nil
		}
	}
	return "", ErrNoEntitlement
}

func (l *PostgresLedger) Refund(ctx context.Context, user uuid.UUID, charge Charge) error {
	var query string
	switch charge {
	case ChargeCredit:
		query = `UPDATE accounts SET credits = credits + 1, updated_at = now() WHERE user_id = $1`
	case ChargeTrial:
		query = `UPDATE accounts SET free_uploads_remaining = free_uploads_remaining + 1, updated_at = now() WHERE user_id = $1`
	default:
		return nil
	}
	if _, err := l.db.Exec(ctx, query, user); err != nil {
		return fmt.Errorf("refund %s: %w", charge, err)
	}
	return nil
}

func (l *PostgresLedger) Grant(ctx context.Context, user uuid.UUID, credits int64) error {
	if err := l.ensure(ctx, user); err != nil {
		return err
	}
	_, err := l.db.Exec(ctx,
		`UPDATE accounts SET credits = credits + $2, updated_at = now() WHERE user_id = $1`,
		user, credits)
	if err != nil {
		return fmt.Errorf("grant credits: %w", err)
	}
	return nil
}

const grantPurchase = `WITH ins AS (
	INSERT INTO credit_purchases (session_id, user_id, credits, amount_cents, currency)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (session_id) DO NOTHING
	RETURNING user_id, credits
)
UPDATE accounts SET
	credits = accounts.credits + ins.credits,
	stripe_customer_id = COALESCE(NULLIF($6, ''), accounts.stripe_customer_id),
	updated_at = now()
FROM ins WHERE accounts.user_id = ins.user_id`

func (l *PostgresLedger) GrantPurchase(ctx context.Context, p Purchase) (bool, error) {
	if err := l.ensure(ctx, p.UserID); err != nil {
		return false, err
	}
	currency := p.Currency
	if currency == "" {
		currency = "usd"
	}
	tag, err := l.db.Exec(ctx, grantPurchase,
		p.SessionID, p.UserID, p.Credits, p.AmountCents, currency, p.CustomerID)
	if err != nil {
		return false, fmt.Errorf("grant purchase: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

const setSubscription = `UPDATE accounts SET
	plan = $2,
	subscription_status = $3,
	subscription_ends_at = $4,
	stripe_customer_id = COALESCE(NULLIF($5, ''), stripe_customer_id),
	stripe_subscription_id = NULLIF($6, ''),
	updated_at = now()
WHERE user_id = $1`

func (l *PostgresLedger) SetSubscription(ctx context.Context, user uuid.UUID, sub Subscription) error {
	if err := l.ensure(ctx, user); err != nil {
		return err
	}
	_, err := l.db.Exec(ctx, setSubscription,
		user, string(sub.Plan), string(sub.Status), sub.EndsAt, sub.CustomerID, sub.SubscriptionID)
	if err != nil {
		return fmt.Errorf("set subscription: %w", err)
	}
	return nil
}

func (l *PostgresLedger) SetAdmin(ctx context.Context, user uuid.UUID, admin bool) error {
	if err := l.ensure(ctx, user); err != nil {
		return err
	}
	if _, err := l.db.Exec(ctx, `UPDATE accounts SET admin = $2, updated_at = now() WHERE user_id = $1`, user, admin); err != nil {
		return fmt.Errorf("set admin: %w", err)
	}
	return nil
}

func (l *PostgresLedger) UserByCustomer(ctx context.Context, customerID string) (uuid.UUID, error) {
	var id uuid.UUID
	err := l.db.QueryRow(ctx, `SELECT user_id FROM accounts WHERE stripe_customer_id = $1`, customerID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, ErrUnknownCustomer
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("lookup customer: %w", err)
	}
	return id, nil
}
