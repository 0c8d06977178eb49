// Package guard implements the route guard layer: declarative route table
// loading, privilege resolution, and the gin middleware that decides between
// serving content, answering with a validation placeholder, or redirecting.
package guard

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	validation "github.com/jellydator/validation"
	"gopkg.in/yaml.v3"

	apperrors "github.com/opsdash/dashgate/internal/errors"
	"github.com/opsdash/dashgate/internal/rbac"
	customValidation "github.com/opsdash/dashgate/internal/validation"
)

// Privilege is the declared access requirement of a route.
type Privilege string

const (
	// PrivilegeNone marks a route reachable by anonymous and authenticated
	// users alike.
	PrivilegeNone Privilege = "none"

	// PrivilegeAuthenticated requires any authenticated session.
	PrivilegeAuthenticated Privilege = "authenticated"

	// PrivilegeAdmin requires an admin or super admin session.
	PrivilegeAdmin Privilege = "admin"

	// PrivilegeSuperAdmin requires a super admin session.
	PrivilegeSuperAdmin Privilege = "super_admin"
)

// minRoleFor maps a privilege to the minimum role that satisfies it.
// PrivilegeNone has no entry: it imposes no role requirement at all.
var minRoleFor = map[Privilege]rbac.Role{
	PrivilegeAuthenticated: rbac.RoleUser,
	PrivilegeAdmin:         rbac.RoleAdmin,
	PrivilegeSuperAdmin:    rbac.RoleSuperAdmin,
}

// RouteSpec is one declarative route entry as it appears in the table file.
type RouteSpec struct {
	Path      string `yaml:"path"`
	Privilege string `yaml:"privilege"`
	Upstream  string `yaml:"upstream"`
}

// Validate checks if the route spec is well formed.
func (r RouteSpec) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Path,
			validation.Required,
			customValidation.NotBlank,
			validation.By(validateRoutePath),
		),
		validation.Field(&r.Privilege,
			validation.Required,
			validation.In(
				string(PrivilegeNone),
				string(PrivilegeAuthenticated),
				string(PrivilegeAdmin),
				string(PrivilegeSuperAdmin),
			),
		),
	)
}

// validateRoutePath rejects paths that gin cannot register.
func validateRoutePath(value interface{}) error {
	path, ok := value.(string)
	if !ok {
		return validation.NewError("validation_route_path_type", "must be a string")
	}
	if !strings.HasPrefix(path, "/") {
		return validation.NewError("validation_route_path_format", "must start with /")
	}
	return nil
}

// tableFile is the on-disk shape of the route table.
type tableFile struct {
	Routes   []RouteSpec `yaml:"routes"`
	NotFound RouteSpec   `yaml:"not_found"`
}

// Route is a resolved route table entry. The allowed-role set is computed
// once when the table is built, so runtime config mutation cannot widen or
// narrow access.
type Route struct {
	Path         string
	Privilege    Privilege
	Upstream     *url.URL
	allowedRoles map[rbac.Role]struct{}
}

// RequiresAuth reports whether the route demands an authenticated session.
func (r *Route) RequiresAuth() bool {
	return r.Privilege != PrivilegeNone
}

// Allows reports whether the given role satisfies the route's privilege.
// Routes with PrivilegeNone allow every caller, including anonymous ones.
// Invalid roles never satisfy a privileged route (fail-closed).
func (r *Route) Allows(role rbac.Role) bool {
	if r.Privilege == PrivilegeNone {
		return true
	}
	_, ok := r.allowedRoles[role]
	return ok
}

// AllowedRoles returns the roles that satisfy the route's privilege in
// ascending privilege order. Routes with PrivilegeNone return nil.
func (r *Route) AllowedRoles() []rbac.Role {
	if r.Privilege == PrivilegeNone {
		return nil
	}
	var roles []rbac.Role
	for _, role := range rbac.Roles() {
		if _, ok := r.allowedRoles[role]; ok {
			roles = append(roles, role)
		}
	}
	return roles
}

// Table is the resolved route table. It is immutable after construction.
type Table struct {
	routes   []*Route
	notFound *Route
}

// NewTable resolves route specs into an immutable table. Every privilege is
// resolved to its concrete allowed-role set here, not at request time. The
// catch-all entry handles any path absent from the table and must not
// declare a privilege, so it stays reachable without a session.
func NewTable(specs []RouteSpec, notFound RouteSpec) (*Table, error) {
	if len(specs) == 0 {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, "route table has no routes")
	}

	seen := make(map[string]struct{}, len(specs))
	routes := make([]*Route, 0, len(specs))
	for i, spec := range specs {
		route, err := resolveRoute(spec)
		if err != nil {
			return nil, apperrors.Wrap(err, fmt.Sprintf("route %d (%q)", i, spec.Path))
		}
		if _, dup := seen[route.Path]; dup {
			return nil, apperrors.Wrap(apperrors.ErrInvalidInput,
				fmt.Sprintf("duplicate route path %q", route.Path))
		}
		seen[route.Path] = struct{}{}
		routes = append(routes, route)
	}

	if notFound.Path == "" {
		notFound.Path = "/not-found"
	}
	if notFound.Privilege == "" {
		notFound.Privilege = string(PrivilegeNone)
	}
	if Privilege(notFound.Privilege) != PrivilegeNone {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput,
			"catch-all route must not require a privilege")
	}
	catchAll, err := resolveRoute(notFound)
	if err != nil {
		return nil, apperrors.Wrap(err, "catch-all route")
	}

	return &Table{routes: routes, notFound: catchAll}, nil
}

// resolveRoute validates one spec and computes its allowed-role set.
func resolveRoute(spec RouteSpec) (*Route, error) {
	if err := spec.Validate(); err != nil {
		return nil, customValidation.WrapValidationError(err)
	}

	route := &Route{
		Path:      spec.Path,
		Privilege: Privilege(spec.Privilege),
	}

	if spec.Upstream != "" {
		upstream, err := url.Parse(spec.Upstream)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrInvalidInput,
				fmt.Sprintf("invalid upstream URL %q", spec.Upstream))
		}
		if upstream.Scheme != "http" && upstream.Scheme != "https" {
			return nil, apperrors.Wrap(apperrors.ErrInvalidInput,
				fmt.Sprintf("upstream URL %q must use http or https", spec.Upstream))
		}
		route.Upstream = upstream
	}

	if minRole, ok := minRoleFor[route.Privilege]; ok {
		route.allowedRoles = make(map[rbac.Role]struct{})
		for _, role := range rbac.Roles() {
			if role.AtLeast(minRole) {
				route.allowedRoles[role] = struct{}{}
			}
		}
	}

	return route, nil
}

// Load reads and resolves a route table from a YAML file.
func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to read route table file")
	}
	return Parse(data)
}

// Parse resolves a route table from YAML bytes.
func Parse(data []byte) (*Table, error) {
	var file tableFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, "failed to parse route table YAML")
	}
	return NewTable(file.Routes, file.NotFound)
}

// Routes returns the resolved routes in declaration order.
func (t *Table) Routes() []*Route {
	return t.routes
}

// NotFound returns the catch-all route.
func (t *Table) NotFound() *Route {
	return t.notFound
}

// Lookup returns the route registered for an exact path pattern, or the
// catch-all route when the pattern is not in the table.
func (t *Table) Lookup(path string) *Route {
	for _, route := range t.routes {
		if route.Path == path {
			return route
		}
	}
	return t.notFound
}
