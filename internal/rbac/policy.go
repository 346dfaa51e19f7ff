package rbac

import "mailflow/internal/model"

// Policy is the load-once role -> permission table. It is never mutated after
// construction and is safe for concurrent use.
type Policy struct {
	grants map[string]map[string]struct{}
}

// NewPolicy indexes grant rows by role name.
func NewPolicy(grants []model.RolePermission) *Policy {
	p := &Policy{grants: make(map[string]map[string]struct{})}
	for _, g := range grants {
		codes, ok := p.grants[g.Role]
		if !ok {
			codes = make(map[string]struct{})
			p.grants[g.Role] = codes
		}
		codes[g.PermissionCode] = struct{}{}
	}
	return p
}

// Allows reports whether role holds code, directly or through the wildcard.
func (p *Policy) Allows(role, code string) bool {
	codes, ok := p.grants[role]
	if !ok {
		return false
	}
	if _, ok := codes[model.PermissionWildcard]; ok {
		return true
	}
	_, ok = codes[code]
	return ok
}

// Codes lists the permission codes held by role (wildcard included as-is).
func (p *Policy) Codes(role string) []string {
	codes := make([]string, 0, len(p.grants[role]))
	for c := range p.grants[role] {
		codes = append(codes, c)
	}
	return codes
}

// DefaultGrants is the seed used when the role_permissions table is empty.
func DefaultGrants() []model.RolePermission {
	const (
		widgetNotifications = "dashboard.widget.notifications.view"
		widgetTimeline      = "dashboard.widget.timeline.view"
	)

	grants := []model.RolePermission{
		{Role: RoleAdmin, PermissionCode: model.PermissionWildcard},
		{Role: RoleCoordonnateur, PermissionCode: model.PermissionWildcard},
		{Role: RoleRAF, PermissionCode: model.PermissionWildcard},
		{Role: RoleSecretariat, PermissionCode: widgetTimeline},
		{Role: RoleSecretariat, PermissionCode: "history.read"},
	}
	for _, role := range []string{
		RoleComptable, RoleCaisse, RoleTresorerie, RoleSecretariat,
		RoleLogisticien, RoleAssistantAdmin, RoleReceptionniste,
	} {
		grants = append(grants, model.RolePermission{Role: role, PermissionCode: widgetNotifications})
	}
	return grants
}
