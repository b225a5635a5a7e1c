package model

import (
	"fmt"
	"sort"
	"strings"
)

type Role string

const (
	RoleAdmin    Role = "admin"
	RoleOperator Role = "operator"
	RoleViewer   Role = "viewer"
)

func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleAdmin, RoleOperator, RoleViewer:
		return r, nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// UserIdentity is a chat-platform user and the role assigned by configuration.
type UserIdentity struct {
	ExternalID string `json:"external_id"`
	Name       string `json:"name"`
	Role       Role   `json:"role"`
}

// DisplayName falls back to the external ID.
func (u UserIdentity) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	return u.ExternalID
}

// PermissionSpec is the configuration input for a PermissionTable.
type PermissionSpec struct {
	Version     string
	DefaultRole Role
	Roles       map[Role][]Action
	Users       map[string]Role
}

// PermissionTable is an immutable role -> actions mapping. It is built once
// at startup and shared read-only.
type PermissionTable struct {
	version     string
	defaultRole Role
	roles       map[Role]map[Action]bool
	users       map[string]Role
}

// DefaultPermissionSpec mirrors the stock bot policy.
func DefaultPermissionSpec() PermissionSpec {
	return PermissionSpec{
		Version:     "default",
		DefaultRole: RoleViewer,
		Roles: map[Role][]Action{
			RoleAdmin:    {ActionDiagnostic, ActionMetrics, ActionAck, ActionRestart, ActionFix, ActionIgnore},
			RoleOperator: {ActionDiagnostic, ActionMetrics, ActionAck, ActionRestart},
			RoleViewer:   {ActionDiagnostic, ActionMetrics, ActionAck},
		},
	}
}

// NewPermissionTable copies spec so later changes to the input have no effect.
func NewPermissionTable(spec PermissionSpec) (*PermissionTable, error) {
	t := &PermissionTable{
		version: spec.Version,
		roles:   make(map[Role]map[Action]bool, len(spec.Roles)),
		users:   make(map[string]Role, len(spec.Users)),
	}
	if spec.DefaultRole != "" {
		r, err := ParseRole(string(spec.DefaultRole))
		if err != nil {
			return nil, fmt.Errorf("default role: %w", err)
		}
		t.defaultRole = r
	}
	// Aliases and case variants are stored in canonical form.
	for role, actions := range spec.Roles {
		r, err := ParseRole(string(role))
		if err != nil {
			return nil, err
		}
		set := t.roles[r]
		if set == nil {
			set = make(map[Action]bool, len(actions))
			t.roles[r] = set
		}
		for _, a := range actions {
			parsed, err := ParseAction(string(a))
			if err != nil {
				return nil, fmt.Errorf("role %s: %w", role, err)
			}
			set[parsed] = true
		}
	}
	for id, role := range spec.Users {
		r, err := ParseRole(string(role))
		if err != nil {
			return nil, fmt.Errorf("user %s: %w", id, err)
		}
		t.users[id] = r
	}
	return t, nil
}

func (t *PermissionTable) Version() string { return t.version }

// RoleOf returns the configured role for an external user ID, or the default
// role. ok is false when the user is unknown and there is no default.
func (t *PermissionTable) RoleOf(externalID string) (Role, bool) {
	if r, ok := t.users[externalID]; ok {
		return r, true
	}
	if t.defaultRole != "" {
		return t.defaultRole, true
	}
	return "", false
}

func (t *PermissionTable) Allows(role Role, action Action) bool {
	return t.roles[role][action]
}

// RolesFor lists the roles allowed to perform action, sorted.
func (t *PermissionTable) RolesFor(action Action) []Role {
	var out []Role
	for role, set := range t.roles {
		if set[action] {
			out = append(out, role)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ActionsFor lists the actions a role may perform in render order.
func (t *PermissionTable) ActionsFor(role Role) []Action {
	var out []Action
	for _, a := range AllActions {
		if t.roles[role][a] {
			out = append(out, a)
		}
	}
	return out
}
