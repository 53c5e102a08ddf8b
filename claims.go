package session

import (
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Token use values carried in the token_use claim.
const (
	TokenUseAccess  = "access"
	TokenUseRefresh = "refresh"
)

// JWTClaims is the set of claims minted into every token.
type JWTClaims struct {
	jwt.RegisteredClaims
	// Roles holds every role granted to the subject.
	Roles []string `json:"roles,omitempty"`
	// Role is the primary role, resolved at mint time so consumers never
	// depend on list ordering.
	Role string `json:"role,omitempty"`
	// TokenUse distinguishes access from refresh tokens.
	TokenUse string `json:"token_use,omitempty"`
	// BrowserID ties a guest session to its browser identity.
	BrowserID string `json:"browser_id,omitempty"`
	// ActorID is set on impersonation tokens and names the admin acting
	// as the subject.
	ActorID string `json:"actor_id,omitempty"`
	// Plan is the subscription plan active when the token was minted.
	Plan string `json:"plan,omitempty"`
}

// UserID returns the subject.
func (c JWTClaims) UserID() string { return c.Subject }

// TokenID returns the jti, the revocable identity of a refresh token.
func (c JWTClaims) TokenID() string { return c.ID }

// IsRefresh reports whether the claims belong to a refresh token.
func (c JWTClaims) IsRefresh() bool { return c.TokenUse == TokenUseRefresh }

// IsGuest reports whether the claims belong to a guest session.
func (c JWTClaims) IsGuest() bool { return c.Role == RoleGuest }

// IsImpersonated reports whether a different actor minted this session.
func (c JWTClaims) IsImpersonated() bool {
	return c.ActorID != "" && c.ActorID != c.Subject
}

// HasRole reports whether the claims carry the given role.
func (c JWTClaims) HasRole(role string) bool {
	if strings.EqualFold(c.Role, role) {
		return true
	}
	for _, r := range c.Roles {
		if strings.EqualFold(r, role) {
			return true
		}
	}
	return false
}

// IsAtLeast reports whether the primary role meets the minimum level.
func (c JWTClaims) IsAtLeast(minRole string) bool {
	return RoleAtLeast(UserRole(strings.ToLower(c.Role)), UserRole(strings.ToLower(minRole)))
}

// CanImpersonate reports whether the subject may act on behalf of others.
func (c JWTClaims) CanImpersonate() bool {
	return CanImpersonate(UserRole(c.Role))
}
