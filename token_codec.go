package session

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultRefreshTTL is the refresh token lifetime when the config does not
// override it.
const DefaultRefreshTTL = 30 * 24 * time.Hour

// TokenCodec mints and verifies the two token kinds. Access tokens are
// self contained and expire at end of day. Refresh tokens carry a jti so
// a revocation store can invalidate them individually.
type TokenCodec struct {
	signingKey []byte
	issuer     string
	audience   []string
	refreshTTL time.Duration
	clock      Clock
	logger     Logger
}

// NewTokenCodec creates a codec from config.
func NewTokenCodec(cfg Config) *TokenCodec {
	ttl := cfg.GetRefreshTTL()
	if ttl <= 0 {
		ttl = DefaultRefreshTTL
	}
	return &TokenCodec{
		signingKey: []byte(cfg.GetSigningKey()),
		issuer:     cfg.GetIssuer(),
		audience:   cfg.GetAudience(),
		refreshTTL: ttl,
		clock:      SystemClock,
		logger:     &defLogger{},
	}
}

// WithClock overrides the wall clock, mostly for tests.
func (c *TokenCodec) WithClock(clock Clock) *TokenCodec {
	if clock != nil {
		c.clock = clock
	}
	return c
}

// WithLogger overrides the logger.
func (c *TokenCodec) WithLogger(logger Logger) *TokenCodec {
	if logger != nil {
		c.logger = logger
	}
	return c
}

// RefreshTTL exposes the configured refresh lifetime.
func (c *TokenCodec) RefreshTTL() time.Duration { return c.refreshTTL }

// MintAccessToken creates an access token for the identity, valid until
// 23:59:00 of the current day.
func (c *TokenCodec) MintAccessToken(identity Identity, opts ...ClaimOption) (string, *JWTClaims, error) {
	now := c.clock.Now()
	claims := &JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.ID(),
			Issuer:    c.issuer,
			Audience:  c.audience,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(EndOfDay(now)),
		},
		Role:     string(identity.Role()),
		Roles:    rolesOf(identity),
		TokenUse: TokenUseAccess,
	}
	for _, opt := range opts {
		opt(claims)
	}
	signed, err := c.sign(claims)
	if err != nil {
		return "", nil, err
	}
	return signed, claims, nil
}

// MintRefreshToken creates a refresh token with a fresh jti. The jti is
// what revocation stores track, the token string itself is never stored.
func (c *TokenCodec) MintRefreshToken(identity Identity) (string, *JWTClaims, error) {
	now := c.clock.Now()
	claims := &JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   identity.ID(),
			Issuer:    c.issuer,
			Audience:  c.audience,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.refreshTTL)),
		},
		Role:     string(identity.Role()),
		TokenUse: TokenUseRefresh,
	}
	signed, err := c.sign(claims)
	if err != nil {
		return "", nil, err
	}
	return signed, claims, nil
}

// ClaimOption mutates claims at mint time.
type ClaimOption func(*JWTClaims)

// WithBrowserID stamps the guest browser id into the claims.
func WithBrowserID(browserID string) ClaimOption {
	return func(c *JWTClaims) { c.BrowserID = browserID }
}

// WithActor stamps the impersonating actor into the claims.
func WithActor(actorID string) ClaimOption {
	return func(c *JWTClaims) { c.ActorID = actorID }
}

// WithPlan stamps the subscription plan into the claims.
func WithPlan(plan string) ClaimOption {
	return func(c *JWTClaims) { c.Plan = plan }
}

func (c *TokenCodec) sign(claims *JWTClaims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.signingKey)
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to sign token").
			WithCode(errors.CodeInternal)
	}
	return signed, nil
}

// VerifyAccessToken parses and validates an access token.
func (c *TokenCodec) VerifyAccessToken(raw string) (*JWTClaims, error) {
	claims, err := c.verify(raw)
	if err != nil {
		return nil, err
	}
	if claims.TokenUse != "" && claims.TokenUse != TokenUseAccess {
		return nil, ErrTokenMalformed
	}
	return claims, nil
}

// VerifyRefreshToken parses and validates a refresh token. Whether the
// token is still usable is the revocation store's call, not ours.
func (c *TokenCodec) VerifyRefreshToken(raw string) (*JWTClaims, error) {
	claims, err := c.verify(raw)
	if err != nil {
		return nil, err
	}
	if !claims.IsRefresh() {
		return nil, ErrTokenMalformed
	}
	if claims.ID == "" {
		return nil, ErrTokenMalformed
	}
	return claims, nil
}

func (c *TokenCodec) verify(raw string) (*JWTClaims, error) {
	claims := &JWTClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method", errors.CategoryAuth).
				WithMetadata(map[string]any{"alg": t.Header["alg"]})
		}
		return c.signingKey, nil
	}, jwt.WithTimeFunc(c.clock.Now))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, errors.Wrap(err, errors.CategoryAuth, "malformed token").
			WithTextCode("TOKEN_MALFORMED").
			WithCode(errors.CodeUnauthorized)
	}
	if !token.Valid {
		return nil, ErrTokenMalformed
	}
	return claims, nil
}

func rolesOf(identity Identity) []string {
	if multi, ok := identity.(MultiRoleIdentity); ok {
		return multi.Roles()
	}
	return []string{string(identity.Role())}
}

// HashTokenID one way hashes a refresh jti for at rest storage.
func HashTokenID(tokenID string) string {
	sum := sha256.Sum256([]byte(tokenID))
	return hex.EncodeToString(sum[:])
}
