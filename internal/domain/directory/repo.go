package directory

import (
	"context"

	"github.com/google/uuid"
)

type OrganizationRepository interface {
	Create(ctx context.Context, o *Organization) error
	GetByID(ctx context.Context, id uuid.UUID) (*Organization, error)
	Update(ctx context.Context, o *Organization) error
	List(ctx context.Context, limit, offset int) ([]*Organization, int, error)
}

type BranchRepository interface {
	Create(ctx context.Context, b *Branch) error
	GetByID(ctx context.Context, id uuid.UUID) (*Branch, error)
	ListByOrganization(ctx context.Context, orgID uuid.UUID) ([]*Branch, error)
}

type DepartmentRepository interface {
	Create(ctx context.Context, d *Department) error
	GetByID(ctx context.Context, id uuid.UUID) (*Department, error)
	ListByBranch(ctx context.Context, branchID uuid.UUID) ([]*Department, error)
	ListByOrganization(ctx context.Context, orgID uuid.UUID) ([]*Department, error)
}

type GuestOrganizationRepository interface {
	Create(ctx context.Context, g *GuestOrganization) error
	GetByID(ctx context.Context, id uuid.UUID) (*GuestOrganization, error)
	Update(ctx context.Context, g *GuestOrganization) error
	List(ctx context.Context, claimed *bool, limit, offset int) ([]*GuestOrganization, int, error)
}
