package enums

import "fmt"

// UserRole is the organization-level role of a user. Roles are ordered;
// later entries in validUserRoles carry every right of earlier ones.
type UserRole string

const (
	UserRoleViewer     UserRole = "VIEWER"
	UserRoleManager    UserRole = "MANAGER"
	UserRoleAdmin      UserRole = "ADMIN"
	UserRoleSuperAdmin UserRole = "SUPER_ADMIN"
)

var validUserRoles = []UserRole{
	UserRoleViewer,
	UserRoleManager,
	UserRoleAdmin,
	UserRoleSuperAdmin,
}

// String implements fmt.Stringer.
func (r UserRole) String() string {
	return string(r)
}

// IsValid reports whether the value is a known UserRole.
func (r UserRole) IsValid() bool {
	return r.Rank() >= 0
}

// Rank returns the position of the role in the ordering, or -1 when unknown.
func (r UserRole) Rank() int {
	for i, candidate := range validUserRoles {
		if candidate == r {
			return i
		}
	}
	return -1
}

// IsApprover reports whether the role may decide approval requests.
func (r UserRole) IsApprover() bool {
	return r == UserRoleAdmin || r == UserRoleSuperAdmin
}

// ParseUserRole converts raw input into a UserRole.
func ParseUserRole(value string) (UserRole, error) {
	for _, candidate := range validUserRoles {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid user role %q", value)
}
