package session

import (
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
	"github.com/goliatone/go-session/middleware/jwtware"
)

// RouteGuard wires the session issuer into HTTP routes. It builds the
// token middleware, owns cookie handling, and maps session errors to
// JSON responses.
type RouteGuard struct {
	issuer           *Issuer
	cfg              Config
	cookies          *CookieWriter
	Logger           Logger
	AuthErrorHandler func(c router.Context, err error) error
	ErrorHandler     func(c router.Context, err error) error
}

func NewRouteGuard(issuer *Issuer, cfg Config) (*RouteGuard, error) {
	if issuer == nil {
		return nil, errors.New("route guard requires an issuer", errors.CategoryBadInput).
			WithCode(errors.CodeBadRequest)
	}

	g := &RouteGuard{
		issuer:  issuer,
		cfg:     cfg,
		cookies: NewCookieWriter(cfg),
		Logger:  defLogger{},
	}

	g.ErrorHandler = g.defaultErrHandler
	g.AuthErrorHandler = g.defaultAuthErrHandler

	return g, nil
}

// Cookies exposes the cookie writer so controllers share the same policy.
func (g *RouteGuard) Cookies() *CookieWriter {
	return g.cookies
}

// ProtectedRouteOption tweaks the middleware built by ProtectedRoute.
type ProtectedRouteOption func(*jwtware.Config)

// WithGuestAccess lets guest sessions through the middleware.
func WithGuestAccess() ProtectedRouteOption {
	return func(cfg *jwtware.Config) {
		cfg.AllowGuest = true
	}
}

// WithMinimumRole rejects sessions below the given role level.
func WithMinimumRole(role UserRole) ProtectedRouteOption {
	return func(cfg *jwtware.Config) {
		cfg.MinimumRole = string(role)
	}
}

// WithRequiredRole rejects sessions missing the exact role.
func WithRequiredRole(role UserRole) ProtectedRouteOption {
	return func(cfg *jwtware.Config) {
		cfg.RequiredRole = string(role)
	}
}

// ProtectedRoute builds the token-checking middleware. The token is read
// from the Authorization header or the session cookie, validated against
// the issuer's codec, and the claims are stored under the context key.
func (g *RouteGuard) ProtectedRoute(errorHandler func(router.Context, error) error, opts ...ProtectedRouteOption) router.MiddlewareFunc {
	cfg := jwtware.Config{
		ErrorHandler: errorHandler,
		SigningKey: jwtware.SigningKey{
			Key:    []byte(g.cfg.GetSigningKey()),
			JWTAlg: "HS256",
		},
		ContextKey:     g.cookies.AccessCookieName(),
		TokenLookup:    "header:" + router.HeaderAuthorization + ",cookie:" + g.cookies.AccessCookieName(),
		TokenValidator: accessTokenValidator{codec: g.issuer.Codec()},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	return jwtware.New(cfg)
}

// MakeJSONAuthErrorHandler maps middleware failures to JSON errors. When
// optional is true the request proceeds without a session.
func (g *RouteGuard) MakeJSONAuthErrorHandler(optional bool) func(router.Context, error) error {
	return func(ctx router.Context, err error) error {
		var richErr *errors.Error

		if IsTokenExpiredError(err) {
			richErr = ErrTokenExpired
		} else if IsTokenMalformedError(err) {
			richErr = ErrTokenMalformed
		} else {
			richErr = errors.Wrap(err, errors.CategoryAuth, "Invalid session token").
				WithCode(errors.CodeUnauthorized)
		}

		if optional {
			g.Logger.Debug("optional session check failed, proceeding: %s", richErr.Message)
			return ctx.Next()
		}

		return g.AuthErrorHandler(ctx, richErr)
	}
}

// ClaimsFromContext returns the validated claims stored by ProtectedRoute,
// or nil when the request carries no session.
func ClaimsFromContext(ctx router.Context, contextKey string) *JWTClaims {
	val := ctx.Locals(contextKey)
	if val == nil {
		return nil
	}
	claims, ok := val.(*JWTClaims)
	if !ok {
		return nil
	}
	return claims
}

func (g *RouteGuard) defaultAuthErrHandler(c router.Context, err error) error {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		richErr = errors.Wrap(err, errors.CategoryAuth, "An unexpected session error").
			WithCode(errors.CodeUnauthorized)
	}

	g.Logger.Info(
		"session rejected: %s text_code=%s path=%s",
		richErr.Message,
		richErr.TextCode,
		c.OriginalURL(),
	)

	// expired or revoked cookies are useless to the client, drop them
	g.cookies.ClearSession(c)

	return c.JSON(router.StatusUnauthorized, router.ViewContext{
		"error": richErr.Message,
		"code":  richErr.TextCode,
	})
}

func (g *RouteGuard) defaultErrHandler(c router.Context, err error) error {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		richErr = errors.Wrap(err, errors.CategoryInternal, "An unexpected server error occurred").
			WithCode(errors.CodeInternal)
	}

	g.Logger.Info(
		"request error: %s category=%s details=%s",
		richErr.Message,
		richErr.Category,
		print.MaybePrettyJSON(richErr.Metadata),
	)

	switch richErr.Category {
	case errors.CategoryAuth, errors.CategoryAuthz:
		return g.AuthErrorHandler(c, richErr)
	default:
		code := richErr.Code
		if code == 0 {
			code = router.StatusInternalServerError
		}
		return c.JSON(code, router.ViewContext{
			"error": richErr.Message,
			"code":  richErr.TextCode,
		})
	}
}

// accessTokenValidator bridges the token codec into the middleware.
type accessTokenValidator struct {
	codec *TokenCodec
}

func (v accessTokenValidator) Validate(raw string) (jwtware.SessionClaims, error) {
	claims, err := v.codec.VerifyAccessToken(raw)
	if err != nil {
		return nil, err
	}
	return claims, nil
}
