package billing

import (
	"context"

	"github.com/google/uuid"
)

// BillingRepository persists per-receiver billing flag records.
type BillingRepository interface {
	// GetOrCreate returns the record for the pair, creating a zeroed one
	// on first access.
	GetOrCreate(ctx context.Context, referralID, receiverStatusID uuid.UUID) (*BillingRecord, error)
	Update(ctx context.Context, b *BillingRecord) error
}

// CreditRepository persists organization credit balances.
type CreditRepository interface {
	GetBalance(ctx context.Context, orgID uuid.UUID) (*CreditBalance, error)
	// Deduct atomically subtracts amount when the balance covers it,
	// reporting whether the deduction happened.
	Deduct(ctx context.Context, orgID uuid.UUID, amount int64) (bool, error)
	Add(ctx context.Context, orgID uuid.UUID, amount int64, currency string) error
}

// TransactionRepository persists settlement attempts.
type TransactionRepository interface {
	Create(ctx context.Context, t *PaymentTransaction) error
	GetByID(ctx context.Context, id uuid.UUID) (*PaymentTransaction, error)
	Update(ctx context.Context, t *PaymentTransaction) error
	GetSucceededByReceiver(ctx context.Context, receiverStatusID uuid.UUID) (*PaymentTransaction, error)
	ListByReferral(ctx context.Context, referralID uuid.UUID) ([]*PaymentTransaction, error)
}
