package session

import (
	"context"
	"fmt"
	"time"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Identity holds the attributes of an authenticated principal. Guest
// identities implement this too; use IsGuestIdentity rather than inspecting
// role ordering.
type Identity interface {
	ID() string
	Username() string
	Email() string
	Role() UserRole
}

// MultiRoleIdentity exposes the full role set when an identity carries more
// than one role. Role() remains the primary role.
type MultiRoleIdentity interface {
	Identity
	Roles() []UserRole
}

// TokenPair is the result of every session-creating operation. The refresh
// half is opaque to clients; its id lives in the RevocationStore until the
// token is rotated or revoked.
type TokenPair struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	IssuedAt     time.Time `json:"issued_at"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Config holds session issuing options resolved once at startup.
type Config interface {
	GetSigningKey() string
	GetIssuer() string
	GetAudience() []string
	GetRefreshTTL() time.Duration
	GetContextKey() string
	GetCookiePolicy() CookiePolicy
	IsProduction() bool
}

// IdentityProvider verifies credentials and resolves identities. Password
// checks are a collaborator concern; SessionIssuer only ever sees the result.
type IdentityProvider interface {
	VerifyIdentity(ctx context.Context, identifier, password string) (Identity, error)
	FindIdentityByID(ctx context.Context, id string) (Identity, error)
}

// SubscriptionProvider looks up the active billing plan for a user. A nil
// plan means the free tier applies.
type SubscriptionProvider interface {
	ActiveSubscription(ctx context.Context, userID string) (*Plan, error)
}

// ResourceMigrator moves guest-owned resources into a verified account.
// Migration failures never block the session being issued.
type ResourceMigrator interface {
	MigrateGuestResources(ctx context.Context, browserID, userID string, overwrite bool) error
}

// AuditRecorder persists audit records that must not be lost. Unlike
// ActivitySink, a Record failure propagates to the caller.
type AuditRecorder interface {
	Record(ctx context.Context, record AuditRecord) error
}

// AuditEventAdminLogin is the audit event recorded when an admin
// assumes another user's session.
const AuditEventAdminLogin = "AdminLogin"

// AuditRecord captures a privileged action for compliance review.
type AuditRecord struct {
	Event      string         `json:"event"`
	ActorID    string         `json:"actor_id"`
	TargetID   string         `json:"target_id"`
	ClientIP   string         `json:"client_ip,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// AccountManager is the collaborator that owns account creation, email
// verification, and password resets. The controller delegates to it and
// turns the resulting identity into a session.
type AccountManager interface {
	SignUp(ctx context.Context, input SignUpInput) (*SignUpResult, error)
	Verify(ctx context.Context, token string) (Identity, error)
	RequestPasswordReset(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, password string) error
	ResendVerification(ctx context.Context, email string) error
	SignInSocial(ctx context.Context, profile SocialProfile) (Identity, error)
}

// SignUpInput is the account payload handed to the AccountManager.
type SignUpInput struct {
	FirstName             string
	LastName              string
	Email                 string
	Phone                 string
	Password              string
	SkipEmailVerification bool
}

// SignUpResult reports whether the account is immediately usable. Identity is
// nil while email verification is pending.
type SignUpResult struct {
	Identity            Identity
	VerificationPending bool
}

// SocialProfile is an externally verified social login payload. Federation
// protocol handling (OAuth dance, id-token validation) happens upstream.
type SocialProfile struct {
	Provider string
	Subject  string
	Email    string
	Name     string
}

// SocialVerifier exchanges a provider token for a verified profile. The
// implementation owns talking to the provider.
type SocialVerifier interface {
	Verify(ctx context.Context, provider, token string) (*SocialProfile, error)
}

// SocialAccountLinker resolves or creates the local account for a verified
// social profile.
type SocialAccountLinker interface {
	LinkOrCreate(ctx context.Context, profile SocialProfile) (Identity, bool, error)
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] SESSION "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] SESSION "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] SESSION "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] SESSION "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
