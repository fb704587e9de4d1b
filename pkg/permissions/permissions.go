package permissions

import "github.com/angelmondragon/poflow-backend/pkg/enums"

// Permission names a capability checked at an operation boundary.
type Permission string

const (
	POView            Permission = "po:view"
	POCreate          Permission = "po:create"
	POIssueUploadLink Permission = "po:issue_upload_link"
	POReceive         Permission = "po:receive"
	POApprove         Permission = "po:approve"
	POCancel          Permission = "po:cancel"
	OrgManageMembers  Permission = "org:manage_members"
	OrgManageSettings Permission = "org:manage_settings"
)

// minimumRole maps each permission to the lowest role holding it. Roles are
// ordered, so possession is a rank comparison.
var minimumRole = map[Permission]enums.UserRole{
	POView:            enums.UserRoleViewer,
	POCreate:          enums.UserRoleManager,
	POIssueUploadLink: enums.UserRoleManager,
	POReceive:         enums.UserRoleManager,
	POApprove:         enums.UserRoleAdmin,
	POCancel:          enums.UserRoleAdmin,
	OrgManageMembers:  enums.UserRoleAdmin,
	OrgManageSettings: enums.UserRoleAdmin,
}

// Has reports whether role grants perm. Unknown roles and permissions are denied.
func Has(role enums.UserRole, perm Permission) bool {
	floor, ok := minimumRole[perm]
	if !ok {
		return false
	}
	return AtLeast(role, floor)
}

// AtLeast reports whether role ranks at or above floor.
func AtLeast(role, floor enums.UserRole) bool {
	if !role.IsValid() || !floor.IsValid() {
		return false
	}
	return role.Rank() >= floor.Rank()
}

// For lists every permission held by role.
func For(role enums.UserRole) []Permission {
	out := []Permission{}
	for _, perm := range all {
		if Has(role, perm) {
			out = append(out, perm)
		}
	}
	return out
}

var all = []Permission{
	POView,
	POCreate,
	POIssueUploadLink,
	POReceive,
	POApprove,
	POCancel,
	OrgManageMembers,
	OrgManageSettings,
}
