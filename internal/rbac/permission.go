package rbac

// Wildcard matches every action or resource when placed in the corresponding
// permission slot.
const Wildcard = "*"

// Permission is an (action, resource) pair. Either slot may hold the Wildcard
// sentinel, meaning "all actions" or "all resources".
type Permission struct {
	Action   string
	Resource string
}

// Matches reports whether p grants the concrete permission other. A slot
// matches by value equality or when p's slot is the wildcard. The wildcard
// only widens the grant side: a wildcard in the requested permission does not
// match a concrete grant.
func (p Permission) Matches(other Permission) bool {
	actionOK := p.Action == Wildcard || p.Action == other.Action
	resourceOK := p.Resource == Wildcard || p.Resource == other.Resource
	return actionOK && resourceOK
}

// Set is a collection of permissions with wildcard-aware membership tests.
type Set map[Permission]struct{}

// NewSet builds a Set from the given permissions.
func NewSet(perms ...Permission) Set {
	set := make(Set, len(perms))
	for _, p := range perms {
		set[p] = struct{}{}
	}
	return set
}

// Contains reports whether the set grants the permission, either by value
// equality or through a wildcard entry.
func (s Set) Contains(perm Permission) bool {
	if _, ok := s[perm]; ok {
		return true
	}
	for granted := range s {
		if granted.Matches(perm) {
			return true
		}
	}
	return false
}

// ContainsAll reports whether every permission is granted.
func (s Set) ContainsAll(perms ...Permission) bool {
	for _, p := range perms {
		if !s.Contains(p) {
			return false
		}
	}
	return true
}

// ContainsAny reports whether at least one permission is granted. An empty
// argument list is never granted.
func (s Set) ContainsAny(perms ...Permission) bool {
	for _, p := range perms {
		if s.Contains(p) {
			return true
		}
	}
	return false
}

// union returns a new Set holding every permission of s and extra. The
// receiver is not modified.
func (s Set) union(extra ...Permission) Set {
	merged := make(Set, len(s)+len(extra))
	for p := range s {
		merged[p] = struct{}{}
	}
	for _, p := range extra {
		merged[p] = struct{}{}
	}
	return merged
}
