package auth

// Admin role constants.
const (
	RoleViewer     = "viewer"
	RoleAdmin      = "admin"
	RoleSuperAdmin = "superadmin"
)

// WriteRoles returns roles that can modify data.
func WriteRoles() []string {
	return []string{RoleAdmin, RoleSuperAdmin}
}
