package domain

import (
	"fmt"
	"slices"
	"strings"
)

// Role is a coarse-grained permission tag from a closed set.
type Role string

const (
	RoleAdmin  Role = "ADMIN"
	RoleClient Role = "CLIENT"
)

// legacyRolePrefix is accepted on input for compatibility with "ROLE_ADMIN" style tags.
const legacyRolePrefix = "ROLE_"

//nolint:gochecknoglobals
var knownRoles = map[Role]struct{}{
	RoleAdmin:  {},
	RoleClient: {},
}

// ParseRole converts a role tag into a Role.
// Matching is case-insensitive and the legacy "ROLE_" prefix is stripped.
func ParseRole(s string) (Role, error) {
	tag := strings.ToUpper(strings.TrimSpace(s))
	tag = strings.TrimPrefix(tag, legacyRolePrefix)

	role := Role(tag)
	if _, ok := knownRoles[role]; !ok {
		return "", fmt.Errorf("%w: unknown role %q", ErrInvalidInput, s)
	}

	return role, nil
}

// String implements fmt.Stringer.
func (r Role) String() string {
	return string(r)
}

// UnmarshalText implements encoding.TextUnmarshaler so that roles are validated on decode.
func (r *Role) UnmarshalText(text []byte) error {
	role, err := ParseRole(string(text))
	if err != nil {
		return err
	}

	*r = role

	return nil
}

// RoleSet is an unordered collection of roles without duplicates.
type RoleSet map[Role]struct{}

// NewRoleSet builds a RoleSet from the given roles, collapsing duplicates.
func NewRoleSet(roles ...Role) RoleSet {
	set := make(RoleSet, len(roles))
	for _, role := range roles {
		set[role] = struct{}{}
	}

	return set
}

// ParseRoleSet parses each tag with ParseRole.
func ParseRoleSet(tags []string) (RoleSet, error) {
	set := make(RoleSet, len(tags))

	for _, tag := range tags {
		role, err := ParseRole(tag)
		if err != nil {
			return nil, err
		}

		set[role] = struct{}{}
	}

	return set, nil
}

// Has reports whether the set contains role.
func (s RoleSet) Has(role Role) bool {
	_, ok := s[role]

	return ok
}

// Intersects reports whether s and other share at least one role.
func (s RoleSet) Intersects(other RoleSet) bool {
	for role := range other {
		if s.Has(role) {
			return true
		}
	}

	return false
}

// Equal reports set equality, ignoring order.
func (s RoleSet) Equal(other RoleSet) bool {
	if len(s) != len(other) {
		return false
	}

	for role := range s {
		if !other.Has(role) {
			return false
		}
	}

	return true
}

// Slice returns the roles sorted, never nil.
func (s RoleSet) Slice() []Role {
	roles := make([]Role, 0, len(s))
	for role := range s {
		roles = append(roles, role)
	}

	slices.Sort(roles)

	return roles
}

// Strings returns the sorted role tags.
func (s RoleSet) Strings() []string {
	tags := make([]string, 0, len(s))
	for _, role := range s.Slice() {
		tags = append(tags, string(role))
	}

	return tags
}
