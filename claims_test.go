package session_test

import (
	"testing"

	session "github.com/goliatone/go-session"
	"github.com/stretchr/testify/assert"
)

func TestJWTClaimsRoleChecks(t *testing.T) {
	claims := session.JWTClaims{
		Role:  session.RoleAdmin,
		Roles: []string{session.RoleAdmin, session.RoleMember},
	}

	assert.True(t, claims.HasRole("admin"))
	assert.True(t, claims.HasRole("ADMIN"))
	assert.True(t, claims.HasRole("member"))
	assert.False(t, claims.HasRole("owner"))

	assert.True(t, claims.IsAtLeast(session.RoleMember))
	assert.True(t, claims.IsAtLeast(session.RoleAdmin))
	assert.False(t, claims.IsAtLeast(session.RoleOwner))

	assert.True(t, claims.CanImpersonate())
	assert.False(t, session.JWTClaims{Role: session.RoleMember}.CanImpersonate())
}

func TestJWTClaimsGuest(t *testing.T) {
	guest := session.JWTClaims{Role: session.RoleGuest, BrowserID: "browser-1"}
	assert.True(t, guest.IsGuest())
	assert.False(t, guest.IsAtLeast(session.RoleMember))
	assert.True(t, guest.IsAtLeast(session.RoleGuest))

	member := session.JWTClaims{Role: session.RoleMember}
	assert.False(t, member.IsGuest())
}

func TestJWTClaimsTokenUse(t *testing.T) {
	refresh := session.JWTClaims{TokenUse: session.TokenUseRefresh}
	assert.True(t, refresh.IsRefresh())

	access := session.JWTClaims{TokenUse: session.TokenUseAccess}
	assert.False(t, access.IsRefresh())
}

func TestJWTClaimsImpersonation(t *testing.T) {
	impersonated := session.JWTClaims{ActorID: "admin-1"}
	impersonated.Subject = "user-1"
	assert.True(t, impersonated.IsImpersonated())

	selfIssued := session.JWTClaims{ActorID: "user-1"}
	selfIssued.Subject = "user-1"
	assert.False(t, selfIssued.IsImpersonated())

	plain := session.JWTClaims{}
	plain.Subject = "user-1"
	assert.False(t, plain.IsImpersonated())
}
