package auth

// Permission represents a named capability in the system.
type Permission string

// Permission constants.
const (
	PermTagRead      Permission = "tag:read"
	PermTagEdit      Permission = "tag:edit"
	PermDeviceManage Permission = "device:manage"
)

// rolePermissions maps each role to its granted permissions.
var rolePermissions = map[Role][]Permission{
	RoleViewer: {
		PermTagRead,
	},
	RoleEditor: {
		PermTagRead,
		PermTagEdit,
	},
	RoleAdmin: {
		PermTagRead,
		PermTagEdit,
		PermDeviceManage,
	},
}

// HasPermission returns true if the given role has the specified permission.
func HasPermission(role Role, perm Permission) bool {
	perms, ok := rolePermissions[role]
	if !ok {
		return false
	}
	for _, p := range perms {
		if p == perm {
			return true
		}
	}
	return false
}

// PermissionsForRole returns all permissions granted to a role.
// Returns nil for unknown roles.
func PermissionsForRole(role Role) []Permission {
	perms := rolePermissions[role]
	if perms == nil {
		return nil
	}
	result := make([]Permission, len(perms))
	copy(result, perms)
	return result
}
