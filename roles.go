package session

// UserRole is a user's role
type UserRole = string

const (
	// RoleGuest is an anonymous, browser-scoped visitor
	RoleGuest UserRole = "guest"
	// RoleMember is a verified account holder
	RoleMember UserRole = "member"
	// RoleAdmin is an operator role (may impersonate)
	RoleAdmin UserRole = "admin"
	// RoleOwner is the top role (may impersonate)
	RoleOwner UserRole = "owner"
)

// IsValid checks if the role is one of the predefined valid roles
func IsValidRole(r UserRole) bool {
	switch r {
	case RoleGuest, RoleMember, RoleAdmin, RoleOwner:
		return true
	default:
		return false
	}
}

// CanImpersonate reports whether the role carries the impersonation
// capability used by ImpersonationGuard.
func CanImpersonate(r UserRole) bool {
	switch r {
	case RoleAdmin, RoleOwner:
		return true
	default:
		return false
	}
}

// RoleAtLeast checks if role meets the minimum required level
func RoleAtLeast(r, minRole UserRole) bool {
	currentLevel, ok := roleHierarchy[r]
	if !ok {
		return false
	}

	minLevel, ok := roleHierarchy[minRole]
	if !ok {
		return false
	}

	return currentLevel >= minLevel
}

var roleHierarchy = map[UserRole]int{
	RoleGuest:  0,
	RoleMember: 1,
	RoleAdmin:  2,
	RoleOwner:  3,
}

// GetAllRoles returns all predefined roles in hierarchical order
func GetAllRoles() []UserRole {
	return []UserRole{
		RoleGuest,
		RoleMember,
		RoleAdmin,
		RoleOwner,
	}
}

// ParseRole safely parses a string into a UserRole
func ParseRole(roleStr string) (UserRole, bool) {
	role := UserRole(roleStr)
	return role, IsValidRole(role)
}

// PrimaryRole picks the highest-privilege role from a set. The legacy
// convention of treating the first element as primary is gone on purpose:
// ordering is not meaningful here.
func PrimaryRole(roles []UserRole) UserRole {
	primary := RoleGuest
	best := -1
	for _, r := range roles {
		if level, ok := roleHierarchy[r]; ok && level > best {
			best = level
			primary = r
		}
	}
	return primary
}

// IsGuestIdentity reports whether the identity is an anonymous guest. Use
// this instead of positional role checks.
func IsGuestIdentity(identity Identity) bool {
	if identity == nil {
		return true
	}
	if g, ok := identity.(*GuestSession); ok {
		return g != nil
	}
	return identity.Role() == RoleGuest
}
