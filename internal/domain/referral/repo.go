package referral

import (
	"context"

	"github.com/google/uuid"
)

// ReferralRepository persists referral aggregates.
type ReferralRepository interface {
	Create(ctx context.Context, r *Referral) error
	GetByID(ctx context.Context, id uuid.UUID) (*Referral, error)
	Update(ctx context.Context, r *Referral) error
	ListBySender(ctx context.Context, orgID uuid.UUID, limit, offset int) ([]*Referral, int, error)
}

// ReceiverRepository persists per-target status rows.
type ReceiverRepository interface {
	CreateBatch(ctx context.Context, receivers []*Receiver) error
	GetByID(ctx context.Context, id uuid.UUID) (*Receiver, error)
	ListByReferral(ctx context.Context, referralID uuid.UUID) ([]*Receiver, error)
	ListByDepartment(ctx context.Context, departmentID uuid.UUID, limit, offset int) ([]*Receiver, int, error)
	Update(ctx context.Context, r *Receiver) error
	// ReassignGuest repoints every receiver row for the guest organization
	// at the department and marks it claimed, returning the number of rows
	// changed.
	ReassignGuest(ctx context.Context, guestOrgID, departmentID uuid.UUID) (int, error)
}
