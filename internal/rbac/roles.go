// Package rbac resolves roles, answers permission lookups and guards
// service-scoped workflow actions.
package rbac

import (
	"sort"
	"strings"
)

const (
	RoleAdmin          = "admin"
	RoleCoordonnateur  = "coordonnateur"
	RoleRAF            = "raf"
	RoleComptable      = "comptable"
	RoleCaisse         = "caisse"
	RoleTresorerie     = "tresorerie"
	RoleSecretariat    = "secretariat"
	RoleLogisticien    = "logisticien"
	RoleAssistantAdmin = "assistant_admin"
	RoleReceptionniste = "receptionniste"

	// RoleUser is what unknown role ids resolve to.
	RoleUser = "user"
)

const (
	RoleIDAdmin         = 1
	RoleIDCoordonnateur = 2
	RoleIDSecretariat   = 7
)

const (
	ServiceRAF         = "RAF"
	ServiceComptable   = "COMPTABLE"
	ServiceCaisse      = "CAISSE"
	ServiceTresorerie  = "TRESORERIE"
	ServiceSecretariat = "SEC"
	ServiceLogistique  = "LOGISTIQUE"
)

// RoleCount is the number of fixed roles; ids run from 1 to RoleCount.
const RoleCount = 10

var roleNames = map[int]string{
	1:  RoleAdmin,
	2:  RoleCoordonnateur,
	3:  RoleRAF,
	4:  RoleComptable,
	5:  RoleCaisse,
	6:  RoleTresorerie,
	7:  RoleSecretariat,
	8:  RoleLogisticien,
	9:  RoleAssistantAdmin,
	10: RoleReceptionniste,
}

// Admin and coordination are universally privileged and carry no service.
var expectedServices = map[int]string{
	3: ServiceRAF,
	4: ServiceComptable,
	5: ServiceCaisse,
	6: ServiceTresorerie,
	7: ServiceSecretariat,
	8: ServiceLogistique,
}

// RoleName maps a role id to its canonical name.
func RoleName(roleID int) string {
	if name, ok := roleNames[roleID]; ok {
		return name
	}
	return RoleUser
}

// RoleIDsForService returns the role ids operating within a service code.
func RoleIDsForService(service string) []int {
	svc := NormalizeService(service)
	var ids []int
	for id, s := range expectedServices {
		if s == svc {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	return ids
}

// IsPrivileged is the read-aggregation privilege: admin, coordination and secretariat
// see every mail regardless of service.
func IsPrivileged(roleID int) bool {
	return roleID == RoleIDAdmin || roleID == RoleIDCoordonnateur || roleID == RoleIDSecretariat
}

// IsWorkflowPrivileged reports whether the role may validate or archive any mail.
func IsWorkflowPrivileged(roleID int) bool {
	return roleID == RoleIDAdmin || roleID == RoleIDCoordonnateur
}

// ExpectedService returns the service a role operates within, false for
// roles without service scoping.
func ExpectedService(roleID int) (string, bool) {
	svc, ok := expectedServices[roleID]
	return svc, ok
}

// NormalizeService trims and upper-cases a service code for comparison.
func NormalizeService(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
