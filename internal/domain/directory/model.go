package directory

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Organization is a registered sender or receiver organization.
type Organization struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Branch is a physical location of an organization.
type Branch struct {
	ID             uuid.UUID `json:"id"`
	OrganizationID uuid.UUID `json:"organization_id"`
	Name           string    `json:"name"`
	Address        *string   `json:"address,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Department is the concrete unit a referral is routed to.
type Department struct {
	ID             uuid.UUID `json:"id"`
	OrganizationID uuid.UUID `json:"organization_id"`
	BranchID       uuid.UUID `json:"branch_id"`
	Name           string    `json:"name"`
	Specialty      *string   `json:"specialty,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// GuestOrganization is an unregistered referral target identified by name
// and contact details only, until it claims a real department.
type GuestOrganization struct {
	ID                  uuid.UUID  `json:"id"`
	Name                string     `json:"name"`
	Email               *string    `json:"email,omitempty"`
	Phone               *string    `json:"phone,omitempty"`
	Fax                 *string    `json:"fax,omitempty"`
	Claimed             bool       `json:"claimed"`
	ClaimedDepartmentID *uuid.UUID `json:"claimed_department_id,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// TargetSelection is one entry of a sender's routing selection. BranchID and
// DepartmentID narrow the selection; an organization-only selection expands
// to every department of every branch.
type TargetSelection struct {
	OrganizationID uuid.UUID  `json:"organization_id"`
	BranchID       *uuid.UUID `json:"branch_id,omitempty"`
	DepartmentID   *uuid.UUID `json:"department_id,omitempty"`
}

// GuestDescriptor is a free-text guest organization entry on a referral.
type GuestDescriptor struct {
	Name  string  `json:"name"`
	Email *string `json:"email,omitempty"`
	Phone *string `json:"phone,omitempty"`
	Fax   *string `json:"fax,omitempty"`
}

// dedupKey normalizes a guest descriptor for deduplication.
func (g GuestDescriptor) dedupKey() string {
	email := ""
	if g.Email != nil {
		email = strings.ToLower(strings.TrimSpace(*g.Email))
	}
	return strings.ToLower(strings.TrimSpace(g.Name)) + "|" + email
}

// ResolvedTargets is the flattened output of target resolution: concrete
// department ids plus guest descriptors, both deduplicated.
type ResolvedTargets struct {
	DepartmentIDs []uuid.UUID       `json:"department_ids"`
	Guests        []GuestDescriptor `json:"guests"`
}

// Empty reports whether resolution produced no targets at all.
func (r ResolvedTargets) Empty() bool {
	return len(r.DepartmentIDs) == 0 && len(r.Guests) == 0
}
