package auth

import (
	"context"

	"github.com/google/uuid"
)

// Known roles.
const (
	RoleAdmin    = "admin"
	RoleSender   = "sender"
	RoleReceiver = "receiver"
)

// Actor is the authenticated caller: a user acting on behalf of an
// organization, optionally scoped to one or more departments.
type Actor struct {
	UserID         string
	OrganizationID uuid.UUID
	DepartmentIDs  []uuid.UUID
	Roles          []string
}

// HasRole reports whether the actor holds the given role. Admin implies
// every role.
func (a *Actor) HasRole(role string) bool {
	for _, r := range a.Roles {
		if r == role || r == RoleAdmin {
			return true
		}
	}
	return false
}

// MemberOfDepartment reports whether the actor belongs to the department.
func (a *Actor) MemberOfDepartment(departmentID uuid.UUID) bool {
	for _, d := range a.DepartmentIDs {
		if d == departmentID {
			return true
		}
	}
	return false
}

// ActorFromContext retrieves the authenticated actor, or nil when the
// request was not authenticated.
func ActorFromContext(ctx context.Context) *Actor {
	actor, _ := ctx.Value(actorKey).(*Actor)
	return actor
}

// ActorToContext returns a child context carrying the actor. Used by tests
// and by middleware.
func ActorToContext(ctx context.Context, actor *Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}
