package session

import (
	"time"

	"github.com/goliatone/go-router"
)

// Default cookie names. The access cookie name comes from the config's
// context key so middleware and cookies stay in sync.
const (
	// RefreshCookieSuffix is appended to the access cookie name.
	RefreshCookieSuffix = "-refresh"
	// SecureCookiePrefix is prepended to session cookie names in
	// production, where the Secure attribute is always set. Browsers
	// refuse prefixed cookies over plain http, so a local stack keeps
	// the unprefixed names.
	SecureCookiePrefix = "__Secure-"
	// BrowserIDCookieName carries the guest browser identity.
	BrowserIDCookieName = "browser-id"
)

// CookiePolicy holds the attributes every session cookie is written
// with. Resolve it once at startup, per environment, instead of
// deciding per request.
type CookiePolicy struct {
	Secure   bool
	SameSite string
	Path     string
}

// DefaultCookiePolicy returns the policy for the given environment.
// Local development gets non secure cookies so plain http works.
func DefaultCookiePolicy(production bool) CookiePolicy {
	return CookiePolicy{
		Secure:   production,
		SameSite: "Lax",
		Path:     "/",
	}
}

// CookieWriter writes and clears the session cookies on a response.
type CookieWriter struct {
	accessName string
	policy     CookiePolicy
	clock      Clock
}

// NewCookieWriter builds a writer from config. The cookie names derive
// from the context key, with the secure prefix applied in production.
func NewCookieWriter(cfg Config) *CookieWriter {
	name := cfg.GetContextKey()
	if cfg.IsProduction() {
		name = SecureCookiePrefix + name
	}
	return &CookieWriter{
		accessName: name,
		policy:     cfg.GetCookiePolicy(),
		clock:      SystemClock,
	}
}

// WithClock overrides the wall clock, mostly for tests.
func (w *CookieWriter) WithClock(clock Clock) *CookieWriter {
	if clock != nil {
		w.clock = clock
	}
	return w
}

// AccessCookieName returns the name of the access token cookie.
func (w *CookieWriter) AccessCookieName() string {
	return w.accessName
}

// RefreshCookieName returns the name of the refresh token cookie.
func (w *CookieWriter) RefreshCookieName() string {
	return w.accessName + RefreshCookieSuffix
}

// WriteTokenPair sets the access and, when present, refresh cookies for
// an issued pair.
func (w *CookieWriter) WriteTokenPair(c router.Context, pair *TokenPair, refreshTTL time.Duration) {
	w.set(c, w.AccessCookieName(), pair.AccessToken, pair.ExpiresAt)
	if pair.RefreshToken != "" {
		w.set(c, w.RefreshCookieName(), pair.RefreshToken, w.clock.Now().Add(refreshTTL))
	}
}

// WriteBrowserID persists the guest browser identity for a year.
func (w *CookieWriter) WriteBrowserID(c router.Context, browserID string) {
	w.set(c, BrowserIDCookieName, browserID, w.clock.Now().Add(GuestLifetimeDays*24*time.Hour))
}

// ClearRefresh removes only the refresh cookie. Guest sessions carry no
// refresh token, so a stale one is dropped when a guest token is issued.
func (w *CookieWriter) ClearRefresh(c router.Context) {
	w.clear(c, w.RefreshCookieName())
}

// ClearSession removes the access and refresh cookies. The browser id
// survives a logout so returning visitors keep their guest identity.
func (w *CookieWriter) ClearSession(c router.Context) {
	w.clear(c, w.AccessCookieName())
	w.clear(c, w.RefreshCookieName())
}

func (w *CookieWriter) set(c router.Context, name, value string, expires time.Time) {
	c.Cookie(&router.Cookie{
		Name:     name,
		Value:    value,
		Path:     w.policy.Path,
		Expires:  expires,
		HTTPOnly: true,
		Secure:   w.policy.Secure,
		SameSite: w.policy.SameSite,
	})
}

func (w *CookieWriter) clear(c router.Context, name string) {
	c.Cookie(&router.Cookie{
		Name:     name,
		Value:    "",
		Path:     w.policy.Path,
		Expires:  w.clock.Now().Add(-time.Hour * (24 * 365)),
		HTTPOnly: true,
		Secure:   w.policy.Secure,
		SameSite: w.policy.SameSite,
	})
}
