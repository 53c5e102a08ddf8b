package session

import (
	"context"
	"reflect"
	"time"

	"github.com/goliatone/go-errors"
)

// MigrationTimeout bounds the guest resource migration call during an
// upgrade. The migrator talks to external storage; past this bound the
// upgrade proceeds without it.
const MigrationTimeout = 10 * time.Second

// Issuer is the session orchestrator. It owns the token codec, the
// revocation store, and the identity provider, and exposes the full
// session lifecycle: login, refresh rotation, logout, guest sessions,
// guest upgrade, and impersonation.
type Issuer struct {
	provider     IdentityProvider
	codec        *TokenCodec
	revocations  RevocationStore
	guard        *ImpersonationGuard
	limiter      *UsageLimiter
	migrator     ResourceMigrator
	activitySink ActivitySink
	logger       Logger
	clock        Clock
}

// NewIssuer returns a new session issuer.
func NewIssuer(provider IdentityProvider, cfg Config, revocations RevocationStore) *Issuer {
	codec := NewTokenCodec(cfg)
	if revocations == nil {
		revocations = NewMemoryRevocationStore(codec.RefreshTTL())
	}
	return &Issuer{
		provider:     provider,
		codec:        codec,
		revocations:  revocations,
		activitySink: noopActivitySink{},
		logger:       &defLogger{},
		clock:        SystemClock,
	}
}

// WithLogger overrides the logger.
func (s *Issuer) WithLogger(logger Logger) *Issuer {
	if logger != nil {
		s.logger = logger
		s.codec.WithLogger(logger)
	}
	return s
}

// WithActivitySink configures an ActivitySink for emitting session events.
func (s *Issuer) WithActivitySink(sink ActivitySink) *Issuer {
	s.activitySink = normalizeActivitySink(sink)
	return s
}

// WithImpersonationGuard enables admin impersonation.
func (s *Issuer) WithImpersonationGuard(guard *ImpersonationGuard) *Issuer {
	s.guard = guard
	return s
}

// WithUsageLimiter wires plan and usage reporting into resolved sessions.
func (s *Issuer) WithUsageLimiter(limiter *UsageLimiter) *Issuer {
	s.limiter = limiter
	return s
}

// WithResourceMigrator wires guest resource migration into upgrades.
func (s *Issuer) WithResourceMigrator(migrator ResourceMigrator) *Issuer {
	s.migrator = migrator
	return s
}

// WithClock overrides the wall clock, mostly for tests.
func (s *Issuer) WithClock(clock Clock) *Issuer {
	if clock != nil {
		s.clock = clock
		s.codec.WithClock(clock)
	}
	return s
}

// Codec exposes the token codec, mostly for middleware wiring.
func (s *Issuer) Codec() *TokenCodec {
	return s.codec
}

// Login verifies credentials and issues a fresh token pair.
func (s *Issuer) Login(ctx context.Context, identifier, password string) (*TokenPair, error) {
	identity, err := s.provider.VerifyIdentity(ctx, identifier, password)
	if err != nil {
		s.logger.Error("login verify identity error: %v", err)
		s.emitEvent(ctx, ActivityEventLoginFailure, ActorRef{Type: "unknown"}, "", map[string]any{
			"identifier": identifier,
			"error":      err.Error(),
		})
		return nil, err
	}

	if identity == nil || reflect.ValueOf(identity).IsZero() {
		s.logger.Error("login identity is nil or zero value")
		s.emitEvent(ctx, ActivityEventLoginFailure, ActorRef{Type: "unknown"}, "", map[string]any{
			"identifier": identifier,
			"error":      ErrIdentityNotFound.Error(),
		})
		return nil, ErrIdentityNotFound
	}

	pair, err := s.issuePair(ctx, identity)
	if err != nil {
		s.emitEvent(ctx, ActivityEventLoginFailure, s.actorFromIdentity(identity), identity.ID(), map[string]any{
			"identifier": identifier,
			"error":      err.Error(),
		})
		return nil, err
	}

	s.emitEvent(ctx, ActivityEventLoginSuccess, s.actorFromIdentity(identity), identity.ID(), map[string]any{
		"identifier": identifier,
	})

	return pair, nil
}

// AdminLogin verifies credentials and additionally requires an admin or
// owner role before issuing tokens.
func (s *Issuer) AdminLogin(ctx context.Context, identifier, password string) (*TokenPair, error) {
	identity, err := s.provider.VerifyIdentity(ctx, identifier, password)
	if err != nil {
		s.emitEvent(ctx, ActivityEventLoginFailure, ActorRef{Type: "unknown"}, "", map[string]any{
			"identifier": identifier,
			"error":      err.Error(),
		})
		return nil, err
	}

	if identity == nil || !CanImpersonate(identity.Role()) {
		s.emitEvent(ctx, ActivityEventLoginFailure, ActorRef{Type: "unknown"}, "", map[string]any{
			"identifier": identifier,
			"error":      "admin role required",
		})
		return nil, ErrUnauthorized
	}

	pair, err := s.issuePair(ctx, identity)
	if err != nil {
		return nil, err
	}

	s.emitEvent(ctx, ActivityEventLoginSuccess, s.actorFromIdentity(identity), identity.ID(), map[string]any{
		"identifier": identifier,
		"admin":      true,
	})

	return pair, nil
}

// Refresh rotates a refresh token. The presented token is consumed
// atomically, so concurrent refreshes of the same token produce exactly
// one new pair. A consumed or unknown token yields ErrTokenRevoked.
func (s *Issuer) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if refreshToken == "" {
		return nil, ErrRefreshTokenMissing
	}

	claims, err := s.codec.VerifyRefreshToken(refreshToken)
	if err != nil {
		return nil, err
	}

	if err := s.revocations.CheckAndRevoke(ctx, claims.Subject, claims.ID); err != nil {
		if errors.Is(err, ErrTokenRevoked) {
			s.emitEvent(ctx, ActivityEventRefreshReuse, ActorRef{ID: claims.Subject, Type: "user"}, claims.Subject, map[string]any{
				"token_id": claims.ID,
			})
		}
		return nil, err
	}

	identity, err := s.provider.FindIdentityByID(ctx, claims.Subject)
	if err != nil {
		return nil, err
	}

	pair, err := s.issuePair(ctx, identity)
	if err != nil {
		return nil, err
	}

	if linker, ok := s.revocations.(RotationLinker); ok {
		if newClaims, err := s.codec.VerifyRefreshToken(pair.RefreshToken); err == nil {
			if err := linker.LinkRotation(ctx, claims.Subject, claims.ID, newClaims.ID); err != nil {
				s.logger.Warn("failed to link rotated token: %v", err)
			}
		}
	}

	s.emitEvent(ctx, ActivityEventRefreshSuccess, s.actorFromIdentity(identity), identity.ID(), nil)

	return pair, nil
}

// Logout revokes the presented refresh token. It is idempotent: a
// missing, malformed, or already revoked token is not an error, the
// caller's cookies get cleared either way.
func (s *Issuer) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}

	claims, err := s.codec.VerifyRefreshToken(refreshToken)
	if err != nil {
		s.logger.Debug("logout with unusable refresh token: %v", err)
		return nil
	}

	if err := s.revocations.Revoke(ctx, claims.Subject, claims.ID); err != nil {
		s.logger.Error("logout revoke error: %v", err)
	}

	s.emitEvent(ctx, ActivityEventLogout, ActorRef{ID: claims.Subject, Type: "user"}, claims.Subject, nil)

	return nil
}

// RevokeAll invalidates every refresh token a user holds.
func (s *Issuer) RevokeAll(ctx context.Context, userID string) error {
	return s.revocations.RevokeAll(ctx, userID)
}

// GuestSession issues an access token for an anonymous browser. Guests
// get no refresh token and never touch the revocation store.
func (s *Issuer) GuestSession(ctx context.Context, browserID string) (*GuestSession, *TokenPair, error) {
	guest := GuestSessionFrom(browserID)

	token, claims, err := s.codec.MintAccessToken(guest, WithBrowserID(guest.BrowserID))
	if err != nil {
		return nil, nil, err
	}

	if guest.BrowserID != browserID {
		var meta map[string]any
		if ip := ClientIPFromContext(ctx); ip != "" {
			meta = map[string]any{"client_ip": ip}
		}
		s.emitEvent(ctx, ActivityEventGuestCreated, ActorRef{ID: guest.BrowserID, Type: "guest"}, guest.BrowserID, meta)
	}

	return guest, &TokenPair{
		AccessToken: token,
		IssuedAt:    claims.IssuedAt.Time,
		ExpiresAt:   claims.ExpiresAt.Time,
	}, nil
}

// UpgradeGuestToUser migrates a browser's guest resources to the given
// user and issues a full token pair. Migration failures are logged and
// swallowed, the upgrade itself must not strand the user without a
// session.
func (s *Issuer) UpgradeGuestToUser(ctx context.Context, browserID string, identity Identity, overwrite bool) (*TokenPair, error) {
	if identity == nil || IsGuestIdentity(identity) {
		return nil, ErrUnauthorized
	}

	if s.migrator != nil && browserID != "" {
		// a stuck migrator must not hold the signup response hostage
		mctx, cancel := context.WithTimeout(ctx, MigrationTimeout)
		if err := s.migrator.MigrateGuestResources(mctx, browserID, identity.ID(), overwrite); err != nil {
			s.logger.Error("guest resource migration failed: %v", err)
		}
		cancel()
	}

	pair, err := s.issuePair(ctx, identity)
	if err != nil {
		return nil, err
	}

	s.emitEvent(ctx, ActivityEventGuestUpgraded, s.actorFromIdentity(identity), identity.ID(), map[string]any{
		"browser_id": browserID,
	})

	return pair, nil
}

// Impersonate issues a token pair for the target user on behalf of an
// authorized actor. The guard writes the audit trail before any token is
// minted.
func (s *Issuer) Impersonate(ctx context.Context, actor Identity, targetID string) (*TokenPair, error) {
	if s.guard == nil {
		return nil, ErrImpersonationDenied
	}

	target, err := s.guard.Authorize(ctx, actor, targetID)
	if err != nil {
		return nil, err
	}

	return s.issuePair(ctx, target, WithActor(actor.ID()))
}

// ImpersonateAs resolves the acting user by id before delegating to
// Impersonate. HTTP handlers use this since they only hold the actor's
// claims, not a full identity.
func (s *Issuer) ImpersonateAs(ctx context.Context, actorID, targetID string) (*TokenPair, error) {
	actor, err := s.provider.FindIdentityByID(ctx, actorID)
	if err != nil {
		if errors.IsNotFound(err) || errors.Is(err, ErrIdentityNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, err
	}
	return s.Impersonate(ctx, actor, targetID)
}

// SessionInfo is what ResolveSession reports back to the client.
type SessionInfo struct {
	UserID    string         `json:"user_id"`
	Username  string         `json:"username,omitempty"`
	Email     string         `json:"email,omitempty"`
	Role      string         `json:"role"`
	IsGuest   bool           `json:"is_guest"`
	ActorID   string         `json:"actor_id,omitempty"`
	ExpiresAt int64          `json:"exp"`
	Usage     *UsageSnapshot `json:"usage,omitempty"`
}

// ResolveSession validates an access token and reports the session it
// represents. Guest tokens resolve without a store lookup. A user token
// whose subject no longer exists is unauthorized.
func (s *Issuer) ResolveSession(ctx context.Context, accessToken string) (*SessionInfo, error) {
	claims, err := s.codec.VerifyAccessToken(accessToken)
	if err != nil {
		return nil, err
	}

	info := &SessionInfo{
		UserID:    claims.Subject,
		Role:      claims.Role,
		IsGuest:   claims.IsGuest(),
		ActorID:   claims.ActorID,
		ExpiresAt: claims.ExpiresAt.Unix(),
	}

	if claims.IsGuest() {
		if s.limiter != nil {
			usage := s.limiter.Snapshot(ctx, claims.Subject)
			info.Usage = &usage
		}
		return info, nil
	}

	identity, err := s.provider.FindIdentityByID(ctx, claims.Subject)
	if err != nil {
		if errors.IsNotFound(err) || errors.Is(err, ErrIdentityNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, err
	}

	info.Username = identity.Username()
	info.Email = identity.Email()
	info.Role = string(identity.Role())

	if s.limiter != nil {
		usage := s.limiter.Snapshot(ctx, identity.ID())
		info.Usage = &usage
	}

	return info, nil
}

// IssueFor mints a token pair for a verified identity. Callers that
// authenticate out of band, like social login or account verification,
// use this to establish the session.
func (s *Issuer) IssueFor(ctx context.Context, identity Identity, opts ...ClaimOption) (*TokenPair, error) {
	if identity == nil {
		return nil, ErrIdentityNotFound
	}
	return s.issuePair(ctx, identity, opts...)
}

func (s *Issuer) issuePair(ctx context.Context, identity Identity, opts ...ClaimOption) (*TokenPair, error) {
	if s.limiter != nil {
		opts = append(opts, WithPlan(s.limiter.PlanFor(ctx, identity.ID()).Name))
	}

	access, accessClaims, err := s.codec.MintAccessToken(identity, opts...)
	if err != nil {
		return nil, err
	}

	refresh, refreshClaims, err := s.codec.MintRefreshToken(identity)
	if err != nil {
		return nil, err
	}

	if err := s.revocations.Track(ctx, identity.ID(), refreshClaims.ID, refreshClaims.ExpiresAt.Time); err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		IssuedAt:     accessClaims.IssuedAt.Time,
		ExpiresAt:    accessClaims.ExpiresAt.Time,
	}, nil
}

func (s *Issuer) actorFromIdentity(identity Identity) ActorRef {
	if identity == nil {
		return ActorRef{Type: "unknown"}
	}
	return ActorRef{ID: identity.ID(), Type: string(identity.Role())}
}

func (s *Issuer) emitEvent(ctx context.Context, event ActivityEventType, actor ActorRef, userID string, meta map[string]any) {
	err := s.activitySink.Record(ctx, ActivityEvent{
		EventType:  event,
		Actor:      actor,
		UserID:     userID,
		Metadata:   meta,
		OccurredAt: s.clock.Now(),
	})
	if err != nil {
		s.logger.Error("activity sink error: %v", err)
	}
}
