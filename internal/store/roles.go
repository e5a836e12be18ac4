// ABOUTME: UserRole enumeration and parsing for identity records
// ABOUTME: Roles distinguish administrative identities from regular users

package store

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidRole is returned when a role string does not match any known role
var ErrInvalidRole = errors.New("invalid role")

// UserRole represents the role assigned to a user
type UserRole string

const (
	RoleRoot  UserRole = "root"
	RoleAdmin UserRole = "admin"
	RoleUser  UserRole = "user"
	RoleGuest UserRole = "guest"
)

// ValidRoles lists all valid user roles
var ValidRoles = []UserRole{
	RoleRoot,
	RoleAdmin,
	RoleUser,
	RoleGuest,
}

// ParseRole converts a role string into a UserRole. Matching is
// case-insensitive; unknown values fail with ErrInvalidRole.
func ParseRole(s string) (UserRole, error) {
	role := UserRole(strings.ToLower(strings.TrimSpace(s)))
	for _, valid := range ValidRoles {
		if role == valid {
			return role, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidRole, s)
}

// IsAdministrative reports whether the role grants administrative access
func (r UserRole) IsAdministrative() bool {
	return r == RoleRoot || r == RoleAdmin
}
