package session

import "time"

// DefaultContextKey is the locals key and access cookie name used when
// the config does not set one.
const DefaultContextKey = "session"

// SimpleConfig is a plain value implementation of Config for callers
// that resolve their settings elsewhere.
type SimpleConfig struct {
	SigningKey   string
	TokenIssuer  string
	Audience     []string
	RefreshTTL   time.Duration
	ContextKey   string
	CookiePolicy *CookiePolicy
	Production   bool
}

func (c SimpleConfig) GetSigningKey() string { return c.SigningKey }

func (c SimpleConfig) GetIssuer() string { return c.TokenIssuer }

func (c SimpleConfig) GetAudience() []string { return c.Audience }

func (c SimpleConfig) GetRefreshTTL() time.Duration {
	if c.RefreshTTL <= 0 {
		return DefaultRefreshTTL
	}
	return c.RefreshTTL
}

func (c SimpleConfig) GetContextKey() string {
	if c.ContextKey == "" {
		return DefaultContextKey
	}
	return c.ContextKey
}

func (c SimpleConfig) GetCookiePolicy() CookiePolicy {
	if c.CookiePolicy == nil {
		return DefaultCookiePolicy(c.Production)
	}
	return *c.CookiePolicy
}

func (c SimpleConfig) IsProduction() bool { return c.Production }
