package auth

// UserRole is the user's role
type UserRole string

const (
	// RoleTeamMember works on projects of a single company
	RoleTeamMember UserRole = "team_member"
	// RoleCompanyManager owns a company, its members and projects
	RoleCompanyManager UserRole = "company_manager"
	// RoleSystemAdmin approves companies and can see every tenant
	RoleSystemAdmin UserRole = "system_admin"
)

var roleHierarchy = map[UserRole]int{
	RoleTeamMember:     1,
	RoleCompanyManager: 2,
	RoleSystemAdmin:    3,
}

// IsValid checks if the role is one of the predefined valid roles
func (r UserRole) IsValid() bool {
	_, ok := roleHierarchy[r]
	return ok
}

// IsAtLeast checks if this role meets the minimum required level
func (r UserRole) IsAtLeast(minRole UserRole) bool {
	currentLevel, exists := roleHierarchy[r]
	if !exists {
		return false
	}

	minLevel, exists := roleHierarchy[minRole]
	if !exists {
		return false
	}

	return currentLevel >= minLevel
}

// IsTenantScoped is true for roles that must belong to a company
func (r UserRole) IsTenantScoped() bool {
	return r == RoleCompanyManager || r == RoleTeamMember
}

// GetAllRoles returns all predefined roles in hierarchical order
func GetAllRoles() []UserRole {
	return []UserRole{
		RoleTeamMember,
		RoleCompanyManager,
		RoleSystemAdmin,
	}
}

// ParseRole safely parses a string into a UserRole type
func ParseRole(roleStr string) (UserRole, bool) {
	role := UserRole(roleStr)
	return role, role.IsValid()
}
