// Package rbac defines the role and permission model for dashboard routes.
//
// Roles form a strict privilege ordering (user < admin < super admin) and each
// role's permission set is a superset of the sets below it. The superset
// property is guaranteed by how the resolver builds its tables, not by
// keeping parallel tables in sync by hand.
package rbac

import "strings"

// Role is the canonical, typed role identifier. Raw role strings from the
// backend are parsed exactly once at the system edge via ParseRole; everything
// past that boundary works with the typed value.
type Role string

const (
	// RoleUnknown is the zero value for unparseable role strings. It resolves
	// to an empty permission set (fail-closed).
	RoleUnknown Role = ""

	// RoleUser is a regular authenticated dashboard user.
	RoleUser Role = "user"

	// RoleAdmin can manage queues, jobs, and settings.
	RoleAdmin Role = "admin"

	// RoleSuperAdmin can additionally manage users, permissions, and sessions.
	RoleSuperAdmin Role = "super_admin"
)

// roleLevels orders roles by privilege. Higher level implies every permission
// of the levels below it.
var roleLevels = map[Role]int{
	RoleUser:       1,
	RoleAdmin:      2,
	RoleSuperAdmin: 3,
}

// roleAliases maps the legacy spellings observed in backend payloads to
// canonical roles. Matching is case-insensitive after trimming.
var roleAliases = map[string]Role{
	"user":        RoleUser,
	"viewer":      RoleUser,
	"admin":       RoleAdmin,
	"operator":    RoleAdmin,
	"super_admin": RoleSuperAdmin,
	"superadmin":  RoleSuperAdmin,
	"super-admin": RoleSuperAdmin,
}

// ParseRole normalizes a raw role string into a canonical Role. This is the
// single normalization boundary: unrecognized input yields RoleUnknown, never
// an error, so callers stay fail-closed without special cases.
func ParseRole(raw string) Role {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	if role, ok := roleAliases[normalized]; ok {
		return role
	}
	return RoleUnknown
}

// String returns the canonical role name.
func (r Role) String() string {
	return string(r)
}

// IsValid reports whether the role is one of the canonical roles.
func (r Role) IsValid() bool {
	_, ok := roleLevels[r]
	return ok
}

// Level returns the privilege level of the role. RoleUnknown has level 0,
// below every valid role.
func (r Role) Level() int {
	return roleLevels[r]
}

// AtLeast reports whether the role's privilege level meets or exceeds other's.
// An invalid role is never at least any valid role.
func (r Role) AtLeast(other Role) bool {
	if !r.IsValid() || !other.IsValid() {
		return false
	}
	return r.Level() >= other.Level()
}

// Roles returns all valid roles in ascending privilege order.
func Roles() []Role {
	return []Role{RoleUser, RoleAdmin, RoleSuperAdmin}
}
