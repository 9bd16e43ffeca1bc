package directory

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/medref/medref/internal/platform/apperr"
)

type Service struct {
	orgs     OrganizationRepository
	branches BranchRepository
	depts    DepartmentRepository
	guests   GuestOrganizationRepository
}

func NewService(orgs OrganizationRepository, branches BranchRepository, depts DepartmentRepository, guests GuestOrganizationRepository) *Service {
	return &Service{orgs: orgs, branches: branches, depts: depts, guests: guests}
}

// -- Organization --

func (s *Service) CreateOrganization(ctx context.Context, o *Organization) error {
	if strings.TrimSpace(o.Name) == "" {
		return apperr.Validation("organization name is required")
	}
	o.Active = true
	return s.orgs.Create(ctx, o)
}

func (s *Service) GetOrganization(ctx context.Context, id uuid.UUID) (*Organization, error) {
	o, err := s.orgs.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.NotFound("organization %s not found", id)
	}
	return o, nil
}

func (s *Service) UpdateOrganization(ctx context.Context, o *Organization) error {
	if strings.TrimSpace(o.Name) == "" {
		return apperr.Validation("organization name is required")
	}
	return s.orgs.Update(ctx, o)
}

func (s *Service) ListOrganizations(ctx context.Context, limit, offset int) ([]*Organization, int, error) {
	return s.orgs.List(ctx, limit, offset)
}

// -- Branch --

func (s *Service) CreateBranch(ctx context.Context, b *Branch) error {
	if b.OrganizationID == uuid.Nil {
		return apperr.Validation("organization_id is required")
	}
	if strings.TrimSpace(b.Name) == "" {
		return apperr.Validation("branch name is required")
	}
	return s.branches.Create(ctx, b)
}

func (s *Service) ListBranches(ctx context.Context, orgID uuid.UUID) ([]*Branch, error) {
	return s.branches.ListByOrganization(ctx, orgID)
}

// -- Department --

func (s *Service) CreateDepartment(ctx context.Context, d *Department) error {
	if d.OrganizationID == uuid.Nil || d.BranchID == uuid.Nil {
		return apperr.Validation("organization_id and branch_id are required")
	}
	if strings.TrimSpace(d.Name) == "" {
		return apperr.Validation("department name is required")
	}
	return s.depts.Create(ctx, d)
}

func (s *Service) GetDepartment(ctx context.Context, id uuid.UUID) (*Department, error) {
	d, err := s.depts.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.NotFound("department %s not found", id)
	}
	return d, nil
}

func (s *Service) ListDepartments(ctx context.Context, orgID uuid.UUID) ([]*Department, error) {
	return s.depts.ListByOrganization(ctx, orgID)
}

// -- Target resolution --

// ResolveTargets flattens a sender's selection into concrete department ids
// plus guest descriptors. An organization-only selection expands to every
// department of every branch; a branch selection to the branch's
// departments; a department selection to itself. The output is
// deduplicated. An empty resolved set is a validation error because a
// referral must have at least one receiver at send time.
func (s *Service) ResolveTargets(ctx context.Context, selections []TargetSelection, guests []GuestDescriptor) (*ResolvedTargets, error) {
	seen := make(map[uuid.UUID]struct{})
	var deptIDs []uuid.UUID

	add := func(id uuid.UUID) {
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		deptIDs = append(deptIDs, id)
	}

	for _, sel := range selections {
		switch {
		case sel.DepartmentID != nil:
			d, err := s.depts.GetByID(ctx, *sel.DepartmentID)
			if err != nil {
				return nil, apperr.NotFound("department %s not found", sel.DepartmentID)
			}
			add(d.ID)
		case sel.BranchID != nil:
			depts, err := s.depts.ListByBranch(ctx, *sel.BranchID)
			if err != nil {
				return nil, err
			}
			for _, d := range depts {
				add(d.ID)
			}
		case sel.OrganizationID != uuid.Nil:
			depts, err := s.depts.ListByOrganization(ctx, sel.OrganizationID)
			if err != nil {
				return nil, err
			}
			for _, d := range depts {
				add(d.ID)
			}
		default:
			return nil, apperr.Validation("selection must name an organization, branch, or department")
		}
	}

	guestSeen := make(map[string]struct{})
	var dedupedGuests []GuestDescriptor
	for _, g := range guests {
		if strings.TrimSpace(g.Name) == "" {
			return nil, apperr.Validation("guest organization name is required")
		}
		key := g.dedupKey()
		if _, ok := guestSeen[key]; ok {
			continue
		}
		guestSeen[key] = struct{}{}
		dedupedGuests = append(dedupedGuests, g)
	}

	resolved := &ResolvedTargets{DepartmentIDs: deptIDs, Guests: dedupedGuests}
	if resolved.Empty() {
		return nil, apperr.Validation("referral must have at least one receiver")
	}
	return resolved, nil
}

// -- Guest organizations --

func (s *Service) CreateGuestOrganization(ctx context.Context, g *GuestOrganization) error {
	if strings.TrimSpace(g.Name) == "" {
		return apperr.Validation("guest organization name is required")
	}
	g.Claimed = false
	g.ClaimedDepartmentID = nil
	return s.guests.Create(ctx, g)
}

func (s *Service) GetGuestOrganization(ctx context.Context, id uuid.UUID) (*GuestOrganization, error) {
	g, err := s.guests.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.NotFound("guest organization %s not found", id)
	}
	return g, nil
}

func (s *Service) ListGuestOrganizations(ctx context.Context, claimed *bool, limit, offset int) ([]*GuestOrganization, int, error) {
	return s.guests.List(ctx, claimed, limit, offset)
}

// ClaimGuest marks a guest organization claimed by a registered department.
// Receiver rows pointing at the guest are reassigned by the referral
// service, which calls this inside the same transaction.
func (s *Service) ClaimGuest(ctx context.Context, guestID, departmentID uuid.UUID) (*GuestOrganization, error) {
	g, err := s.guests.GetByID(ctx, guestID)
	if err != nil {
		return nil, apperr.NotFound("guest organization %s not found", guestID)
	}
	if g.Claimed {
		return nil, apperr.Conflict("guest organization is already claimed")
	}
	if _, err := s.depts.GetByID(ctx, departmentID); err != nil {
		return nil, apperr.NotFound("department %s not found", departmentID)
	}

	g.Claimed = true
	g.ClaimedDepartmentID = &departmentID
	if err := s.guests.Update(ctx, g); err != nil {
		return nil, err
	}
	return g, nil
}
