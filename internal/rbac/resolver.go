package rbac

// Dashboard actions and resources referenced by the permission tables.
const (
	ActionView   = "view"
	ActionManage = "manage"
	ActionExport = "export"

	ResourceDashboard   = "dashboard"
	ResourceQueues      = "queues"
	ResourceJobs        = "jobs"
	ResourceAuditLogs   = "audit_logs"
	ResourceReports     = "reports"
	ResourceSettings    = "settings"
	ResourceUsers       = "users"
	ResourcePermissions = "permissions"
	ResourceSessions    = "sessions"
	ResourceEndpoints   = "endpoints"
	ResourcePerformance = "performance"
)

// Resolver maps roles to permission sets. The tables are built once at
// construction by accumulation: each role's set is the previous role's set
// plus its own additions, so higher roles are supersets of lower ones by
// construction.
type Resolver struct {
	tables map[Role]Set

	// grantAll is the development-mode override: when set, every permission
	// check passes. It is injected at construction so production builds can
	// disable it deterministically.
	grantAll bool
}

// NewResolver builds the role permission tables. devModeGrantAll enables the
// grant-all override and must be false outside local development.
func NewResolver(devModeGrantAll bool) *Resolver {
	userSet := NewSet(
		Permission{ActionView, ResourceDashboard},
		Permission{ActionView, ResourceQueues},
		Permission{ActionView, ResourceJobs},
		Permission{ActionView, ResourceReports},
		Permission{ActionView, ResourcePerformance},
		Permission{ActionExport, ResourceReports},
	)

	adminSet := userSet.union(
		Permission{ActionView, ResourceAuditLogs},
		Permission{ActionView, ResourceEndpoints},
		Permission{ActionManage, ResourceQueues},
		Permission{ActionManage, ResourceJobs},
		Permission{ActionManage, ResourceSettings},
		Permission{ActionExport, ResourceAuditLogs},
	)

	superAdminSet := adminSet.union(
		Permission{ActionManage, ResourceUsers},
		Permission{ActionManage, ResourcePermissions},
		Permission{ActionManage, ResourceSessions},
		Permission{ActionManage, ResourceEndpoints},
	)

	return &Resolver{
		tables: map[Role]Set{
			RoleUser:       userSet,
			RoleAdmin:      adminSet,
			RoleSuperAdmin: superAdminSet,
		},
		grantAll: devModeGrantAll,
	}
}

// PermissionsFor returns the permission set for a role. Unrecognized roles
// resolve to the empty set (fail-closed). Under the development-mode override
// every role resolves to the full wildcard grant. The returned set is shared
// and must not be mutated by callers.
func (r *Resolver) PermissionsFor(role Role) Set {
	if r.grantAll {
		return NewSet(Permission{Wildcard, Wildcard})
	}
	if set, ok := r.tables[role]; ok {
		return set
	}
	return Set{}
}

// HasPermission reports whether the role grants the permission, honoring
// wildcard entries and the development-mode override.
func (r *Resolver) HasPermission(role Role, perm Permission) bool {
	if r.grantAll {
		return true
	}
	return r.PermissionsFor(role).Contains(perm)
}

// HasAny reports whether the role grants at least one of the permissions.
func (r *Resolver) HasAny(role Role, perms ...Permission) bool {
	if r.grantAll {
		return true
	}
	return r.PermissionsFor(role).ContainsAny(perms...)
}

// HasAll reports whether the role grants every one of the permissions.
func (r *Resolver) HasAll(role Role, perms ...Permission) bool {
	if r.grantAll {
		return true
	}
	return r.PermissionsFor(role).ContainsAll(perms...)
}
