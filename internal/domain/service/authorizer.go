package service

import (
	"fmt"
	"strings"

	"github.com/ddphuc01/Zabbix-Monitoring/internal/domain/model"
)

// AuthDecision holds the result of an authorization check.
type AuthDecision struct {
	Allowed bool
	Role    model.Role
	Reason  string
}

// Authorizer checks operator actions against the immutable permission table.
type Authorizer struct {
	table *model.PermissionTable
}

// NewAuthorizer creates an Authorizer backed by the given table.
func NewAuthorizer(table *model.PermissionTable) *Authorizer {
	return &Authorizer{table: table}
}

// Authorize decides whether the chat user may perform action. Denials carry a
// message meant to be shown to the user as-is.
func (a *Authorizer) Authorize(externalID string, action model.Action) AuthDecision {
	role, known := a.table.RoleOf(externalID)
	if !known {
		return AuthDecision{
			Allowed: false,
			Reason:  fmt.Sprintf("🔒 Permission denied: you are not registered to use %q", action),
		}
	}
	if !a.table.Allows(role, action) {
		return AuthDecision{
			Allowed: false,
			Role:    role,
			Reason: fmt.Sprintf("🔒 Permission denied: %q requires role %s (your role: %s)",
				action, joinRoles(a.table.RolesFor(action)), role),
		}
	}
	return AuthDecision{Allowed: true, Role: role}
}

// Identify returns the role of a chat user for display purposes.
func (a *Authorizer) Identify(externalID string) (model.Role, bool) {
	return a.table.RoleOf(externalID)
}

// Permitted lists the actions a chat user may perform.
func (a *Authorizer) Permitted(externalID string) []model.Action {
	role, ok := a.table.RoleOf(externalID)
	if !ok {
		return nil
	}
	return a.table.ActionsFor(role)
}

func joinRoles(roles []model.Role) string {
	if len(roles) == 0 {
		return "(none)"
	}
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = string(r)
	}
	return strings.Join(names, " or ")
}
