// Package access decides whether a caller may act on tickets. It has two
// decision points: Authorize answers "may this caller perform this class of
// operation at all" and AuthorizeTicket answers "may this caller act on this
// ticket". Every lifecycle operation calls both, in that order.
package access

import (
	"fmt"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"

	"github.com/spec-kit/support-desk/internal/domain"
	apperrors "github.com/spec-kit/support-desk/pkg/util/errorutil"
)

// Action is a class of ticket operation.
type Action string

const (
	ActionCreate    Action = "create"
	ActionList      Action = "list"
	ActionRead      Action = "read"
	ActionUpdate    Action = "update"
	ActionDelete    Action = "delete"
	ActionSetStatus Action = "set_status"
)

// Role is the casbin subject a caller is evaluated as.
type Role string

const (
	RoleUser  Role = "user"
	RoleStaff Role = "staff"
)

const resourceTicket = "ticket"

const rbacModel = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && r.obj == p.obj && r.act == p.act
`

var defaultPolicies = [][]string{
	{string(RoleUser), resourceTicket, string(ActionCreate)},
	{string(RoleUser), resourceTicket, string(ActionList)},
	{string(RoleUser), resourceTicket, string(ActionRead)},
	{string(RoleStaff), resourceTicket, string(ActionUpdate)},
	{string(RoleStaff), resourceTicket, string(ActionDelete)},
	{string(RoleStaff), resourceTicket, string(ActionSetStatus)},
}

var deniedMessages = map[Action]string{
	ActionUpdate:    "only staff users can update tickets",
	ActionDelete:    "only staff users can delete tickets",
	ActionSetStatus: "only staff users can update ticket status",
}

// Policy evaluates ticket permissions.
type Policy struct {
	enforcer *casbin.SyncedEnforcer
}

// NewPolicy builds the policy with the built-in role table: staff inherit
// every user permission and additionally own update, delete and set_status.
func NewPolicy() (*Policy, error) {
	m, err := model.NewModelFromString(rbacModel)
	if err != nil {
		return nil, fmt.Errorf("parse access model: %w", err)
	}
	enforcer, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("create enforcer: %w", err)
	}
	if _, err := enforcer.AddPolicies(defaultPolicies); err != nil {
		return nil, fmt.Errorf("load policies: %w", err)
	}
	if _, err := enforcer.AddGroupingPolicy(string(RoleStaff), string(RoleUser)); err != nil {
		return nil, fmt.Errorf("load role inheritance: %w", err)
	}
	return &Policy{enforcer: enforcer}, nil
}

// MustNewPolicy is NewPolicy for wiring code that cannot continue without it.
func MustNewPolicy() *Policy {
	p, err := NewPolicy()
	if err != nil {
		panic(err)
	}
	return p
}

// RoleOf maps a user to its casbin role.
func RoleOf(caller *domain.User) Role {
	if caller != nil && caller.IsStaff {
		return RoleStaff
	}
	return RoleUser
}

// IsElevated reports whether the caller has staff privileges.
func IsElevated(caller *domain.User) bool {
	return RoleOf(caller) == RoleStaff
}

// Authorize is the per-class decision. It fails with an authentication error
// when there is no caller and with a permission error when the caller's role
// does not grant action.
func (p *Policy) Authorize(caller *domain.User, action Action) error {
	if caller == nil {
		return apperrors.NewUnauthorized("authentication required")
	}
	allowed, err := p.enforcer.Enforce(string(RoleOf(caller)), resourceTicket, string(action))
	if err != nil {
		return apperrors.NewInternalError(fmt.Errorf("evaluate %s policy: %w", action, err))
	}
	if !allowed {
		msg, ok := deniedMessages[action]
		if !ok {
			msg = fmt.Sprintf("%s not permitted", action)
		}
		return apperrors.NewForbidden(msg)
	}
	return nil
}

// AuthorizeTicket is the per-object decision, made after the ticket is loaded.
// Staff pass unconditionally; anyone else must own the ticket. A ticket the
// caller may not see is reported as missing so its existence does not leak.
func (p *Policy) AuthorizeTicket(caller *domain.User, ticket *domain.Ticket) error {
	if caller == nil {
		return apperrors.NewUnauthorized("authentication required")
	}
	if IsElevated(caller) || ticket.OwnedBy(caller.ID) {
		return nil
	}
	return apperrors.NewNotFound("ticket", nil)
}

// ListScope returns the created_by restriction for listing: nil for staff, the
// caller's own id for everybody else.
func ListScope(caller *domain.User) *string {
	if caller == nil || IsElevated(caller) {
		return nil
	}
	id := caller.ID
	return &id
}
