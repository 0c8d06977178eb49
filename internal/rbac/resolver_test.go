package rbac

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolver_SupersetOrdering(t *testing.T) {
	resolver := NewResolver(false)

	// For every pair of roles R1 < R2 in the privilege ordering, the
	// permissions of R2 must include every permission of R1.
	roles := Roles()
	for i := 0; i < len(roles); i++ {
		for j := i + 1; j < len(roles); j++ {
			lower := resolver.PermissionsFor(roles[i])
			higher := resolver.PermissionsFor(roles[j])
			for perm := range lower {
				assert.True(t, higher.Contains(perm),
					"role %s should include %v granted to %s", roles[j], perm, roles[i])
			}
		}
	}
}

func TestResolver_UnknownRoleFailsClosed(t *testing.T) {
	resolver := NewResolver(false)

	set := resolver.PermissionsFor(RoleUnknown)
	assert.Empty(t, set)

	assert.False(t, resolver.HasPermission(RoleUnknown, Permission{ActionView, ResourceDashboard}))
	assert.False(t, resolver.HasPermission(Role("root"), Permission{ActionView, ResourceDashboard}))
}

func TestResolver_HasPermission(t *testing.T) {
	resolver := NewResolver(false)

	tests := []struct {
		name    string
		role    Role
		perm    Permission
		allowed bool
	}{
		{"user views dashboard", RoleUser, Permission{ActionView, ResourceDashboard}, true},
		{"user cannot manage settings", RoleUser, Permission{ActionManage, ResourceSettings}, false},
		{"user cannot view audit logs", RoleUser, Permission{ActionView, ResourceAuditLogs}, false},
		{"admin manages queues", RoleAdmin, Permission{ActionManage, ResourceQueues}, true},
		{"admin views everything user views", RoleAdmin, Permission{ActionView, ResourceReports}, true},
		{"admin cannot manage users", RoleAdmin, Permission{ActionManage, ResourceUsers}, false},
		{"super admin manages users", RoleSuperAdmin, Permission{ActionManage, ResourceUsers}, true},
		{"super admin manages sessions", RoleSuperAdmin, Permission{ActionManage, ResourceSessions}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.allowed, resolver.HasPermission(tt.role, tt.perm))
		})
	}
}

func TestResolver_DevModeGrantsAll(t *testing.T) {
	resolver := NewResolver(true)

	// Every permission passes for every role, including unknown ones.
	assert.True(t, resolver.HasPermission(RoleUnknown, Permission{ActionManage, ResourceUsers}))
	assert.True(t, resolver.HasPermission(RoleUser, Permission{ActionManage, ResourcePermissions}))
	assert.True(t, resolver.HasAny(RoleUnknown, Permission{ActionView, ResourceDashboard}))
	assert.True(t, resolver.HasAll(RoleUnknown,
		Permission{ActionView, ResourceDashboard},
		Permission{ActionManage, ResourceUsers},
	))
}

func TestResolver_HasAnyHasAll(t *testing.T) {
	resolver := NewResolver(false)

	viewQueues := Permission{ActionView, ResourceQueues}
	manageUsers := Permission{ActionManage, ResourceUsers}

	assert.True(t, resolver.HasAny(RoleUser, manageUsers, viewQueues))
	assert.False(t, resolver.HasAny(RoleUser, manageUsers))
	assert.False(t, resolver.HasAny(RoleUser))

	assert.True(t, resolver.HasAll(RoleSuperAdmin, viewQueues, manageUsers))
	assert.False(t, resolver.HasAll(RoleUser, viewQueues, manageUsers))
}

func TestSet_WildcardMatching(t *testing.T) {
	t.Run("wildcard resource grants all resources for the action", func(t *testing.T) {
		set := NewSet(Permission{ActionView, Wildcard})

		for _, resource := range []string{
			ResourceDashboard, ResourceQueues, ResourceJobs, ResourceAuditLogs,
			ResourceReports, ResourceSettings, ResourceUsers,
		} {
			assert.True(t, set.Contains(Permission{ActionView, resource}), resource)
		}
		assert.False(t, set.Contains(Permission{ActionManage, ResourceQueues}))
	})

	t.Run("wildcard action grants all actions for the resource", func(t *testing.T) {
		set := NewSet(Permission{Wildcard, ResourceSettings})

		assert.True(t, set.Contains(Permission{ActionView, ResourceSettings}))
		assert.True(t, set.Contains(Permission{ActionManage, ResourceSettings}))
		assert.False(t, set.Contains(Permission{ActionView, ResourceQueues}))
	})

	t.Run("double wildcard grants everything", func(t *testing.T) {
		set := NewSet(Permission{Wildcard, Wildcard})

		assert.True(t, set.Contains(Permission{ActionManage, ResourceUsers}))
		assert.True(t, set.Contains(Permission{ActionExport, ResourceReports}))
	})

	t.Run("wildcard in the request does not match concrete grants", func(t *testing.T) {
		set := NewSet(Permission{ActionView, ResourceDashboard})

		assert.False(t, set.Contains(Permission{ActionView, Wildcard}))
		assert.False(t, set.Contains(Permission{Wildcard, ResourceDashboard}))
	})
}

func TestSet_UnionDoesNotMutateReceiver(t *testing.T) {
	base := NewSet(Permission{ActionView, ResourceDashboard})
	merged := base.union(Permission{ActionManage, ResourceUsers})

	require.Len(t, base, 1)
	assert.Len(t, merged, 2)
	assert.False(t, base.Contains(Permission{ActionManage, ResourceUsers}))
}
