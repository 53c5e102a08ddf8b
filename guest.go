package session

import (
	"github.com/google/uuid"
)

// GuestLifetimeDays is how long the browser identity cookie survives.
const GuestLifetimeDays = 365

// GuestSession is the identity behind an anonymous browser. It has no
// credentials and no refresh token, only a day scoped access token keyed
// by the browser id.
type GuestSession struct {
	BrowserID string
}

// NewGuestSession mints a fresh browser identity.
func NewGuestSession() *GuestSession {
	return &GuestSession{BrowserID: uuid.NewString()}
}

// GuestSessionFrom reuses an existing browser id when the cookie survived,
// minting a new one otherwise.
func GuestSessionFrom(browserID string) *GuestSession {
	if browserID == "" {
		return NewGuestSession()
	}
	if _, err := uuid.Parse(browserID); err != nil {
		return NewGuestSession()
	}
	return &GuestSession{BrowserID: browserID}
}

// ID implements Identity. Guests are addressed by their browser id.
func (g *GuestSession) ID() string { return g.BrowserID }

// Username implements Identity.
func (g *GuestSession) Username() string { return "guest" }

// Email implements Identity. Guests have none.
func (g *GuestSession) Email() string { return "" }

// Role implements Identity.
func (g *GuestSession) Role() UserRole { return RoleGuest }
