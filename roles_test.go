package session_test

import (
	"testing"

	session "github.com/goliatone/go-session"
	"github.com/stretchr/testify/assert"
)

func TestIsValidRole(t *testing.T) {
	for _, role := range session.GetAllRoles() {
		assert.True(t, session.IsValidRole(role), "role %q", role)
	}
	assert.False(t, session.IsValidRole("superuser"))
	assert.False(t, session.IsValidRole(""))
}

func TestCanImpersonate(t *testing.T) {
	assert.False(t, session.CanImpersonate(session.RoleGuest))
	assert.False(t, session.CanImpersonate(session.RoleMember))
	assert.True(t, session.CanImpersonate(session.RoleAdmin))
	assert.True(t, session.CanImpersonate(session.RoleOwner))
}

func TestRoleAtLeast(t *testing.T) {
	tests := []struct {
		role    session.UserRole
		minRole session.UserRole
		want    bool
	}{
		{session.RoleOwner, session.RoleAdmin, true},
		{session.RoleAdmin, session.RoleAdmin, true},
		{session.RoleMember, session.RoleAdmin, false},
		{session.RoleGuest, session.RoleMember, false},
		{session.RoleMember, session.RoleGuest, true},
		{"bogus", session.RoleGuest, false},
		{session.RoleOwner, "bogus", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, session.RoleAtLeast(tt.role, tt.minRole),
			"%q at least %q", tt.role, tt.minRole)
	}
}

func TestParseRole(t *testing.T) {
	role, ok := session.ParseRole("admin")
	assert.True(t, ok)
	assert.Equal(t, session.RoleAdmin, role)

	_, ok = session.ParseRole("root")
	assert.False(t, ok)
}

func TestPrimaryRole(t *testing.T) {
	assert.Equal(t, session.RoleOwner,
		session.PrimaryRole([]session.UserRole{session.RoleMember, session.RoleOwner, session.RoleAdmin}))
	assert.Equal(t, session.RoleMember,
		session.PrimaryRole([]session.UserRole{"bogus", session.RoleMember}))
	assert.Equal(t, session.RoleGuest, session.PrimaryRole(nil))
}

func TestIsGuestIdentity(t *testing.T) {
	assert.True(t, session.IsGuestIdentity(nil))
	assert.True(t, session.IsGuestIdentity(session.NewGuestSession()))
	assert.True(t, session.IsGuestIdentity(testIdentity{id: "x", role: session.RoleGuest}))
	assert.False(t, session.IsGuestIdentity(testIdentity{id: "x", role: session.RoleMember}))
}
