package session

import (
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-router"
	"github.com/goliatone/go-session/middleware/jwtware"
)

// RouteRegistrar captures the router methods used by the controller.
type RouteRegistrar interface {
	Get(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
	Post(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
	Put(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
}

// HTTPController exposes the session lifecycle as a JSON API: signup,
// verification, login, refresh, guest sessions, impersonation, and
// password recovery.
type HTTPController struct {
	Logger       Logger
	Issuer       *Issuer
	Accounts     AccountManager
	Guard        *RouteGuard
	ErrorHandler router.ErrorHandler

	// Social enables the social login route when set.
	Social SocialVerifier
	// Users enables the account status route when set.
	Users         Users
	statusMachine UserStateMachine
}

type HTTPControllerOption func(*HTTPController) *HTTPController

func WithControllerLogger(logger Logger) HTTPControllerOption {
	return func(c *HTTPController) *HTTPController {
		if logger != nil {
			c.Logger = logger
		}
		return c
	}
}

func WithControllerIssuer(issuer *Issuer) HTTPControllerOption {
	return func(c *HTTPController) *HTTPController {
		c.Issuer = issuer
		return c
	}
}

func WithControllerAccounts(accounts AccountManager) HTTPControllerOption {
	return func(c *HTTPController) *HTTPController {
		c.Accounts = accounts
		return c
	}
}

func WithControllerGuard(guard *RouteGuard) HTTPControllerOption {
	return func(c *HTTPController) *HTTPController {
		c.Guard = guard
		return c
	}
}

func WithControllerErrorHandler(handler router.ErrorHandler) HTTPControllerOption {
	return func(c *HTTPController) *HTTPController {
		c.ErrorHandler = handler
		return c
	}
}

// WithControllerSocial mounts the social login route backed by the
// given verifier.
func WithControllerSocial(verifier SocialVerifier) HTTPControllerOption {
	return func(c *HTTPController) *HTTPController {
		c.Social = verifier
		return c
	}
}

// WithControllerUsers mounts the account status route. Transitions run
// through the user state machine built over the given repository.
func WithControllerUsers(users Users, opts ...StateMachineOption) HTTPControllerOption {
	return func(c *HTTPController) *HTTPController {
		c.Users = users
		c.statusMachine = NewUserStateMachine(users, opts...)
		return c
	}
}

func NewHTTPController(opts ...HTTPControllerOption) *HTTPController {
	c := &HTTPController{
		Logger: defLogger{},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Issuer == nil {
		panic("Missing Issuer in session controller...")
	}

	if c.Guard == nil {
		panic("Missing RouteGuard in session controller...")
	}

	if c.Accounts == nil {
		panic("Missing AccountManager in session controller...")
	}

	if c.ErrorHandler == nil {
		c.ErrorHandler = c.Guard.ErrorHandler
	}

	return c
}

// RegisterRoutes mounts the session routes on the given group.
func (c *HTTPController) RegisterRoutes(group RouteRegistrar) {
	group.Post("/signup", c.SignUp)
	group.Post("/verify", c.VerifyEmail)
	group.Post("/login", c.Login)
	group.Post("/admin/login", c.AdminLogin)
	group.Post("/impersonate", c.Impersonate)
	group.Post("/refresh", c.Refresh)
	group.Post("/guest", c.Guest)
	group.Get("/me", c.Me)
	group.Post("/logout", c.Logout)
	group.Post("/password/request", c.PasswordResetRequest)
	group.Post("/password/update", c.PasswordResetUpdate)
	group.Post("/verification/resend", c.ResendVerification)

	if c.Social != nil {
		group.Post("/social/google", c.SocialLogin)
	}

	if c.Users != nil {
		group.Put("/status", c.UpdateUserStatus)
	}
}

// SignUpPayload is the account creation body.
type SignUpPayload struct {
	FirstName             string `form:"first_name" json:"first_name"`
	LastName              string `form:"last_name" json:"last_name"`
	Email                 string `form:"email" json:"email"`
	Phone                 string `form:"phone_number" json:"phone_number"`
	Password              string `form:"password" json:"password"`
	ConfirmPassword       string `form:"confirm_password" json:"confirm_password"`
	SkipEmailVerification bool   `form:"skip_email_verification" json:"skip_email_verification"`
}

// Validate will validate the payload
func (r SignUpPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.FirstName, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.LastName, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.Email, validation.Required, validation.Length(6, 100), is.Email),
		validation.Field(&r.Phone, validation.Length(7, 20)),
		validation.Field(&r.Password, validation.Required, validation.Length(10, 100)),
		validation.Field(
			&r.ConfirmPassword,
			validation.Required,
			validation.Length(10, 100),
			validation.By(ValidateStringEquals(r.Password)),
		),
	)
}

func (c *HTTPController) SignUp(ctx router.Context) error {
	payload := new(SignUpPayload)

	if err := ctx.Bind(payload); err != nil {
		return c.badPayload(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return c.invalidPayload(ctx, err)
	}

	result, err := c.Accounts.SignUp(ctx.Context(), SignUpInput{
		FirstName:             payload.FirstName,
		LastName:              payload.LastName,
		Email:                 payload.Email,
		Phone:                 payload.Phone,
		Password:              payload.Password,
		SkipEmailVerification: payload.SkipEmailVerification,
	})
	if err != nil {
		c.Logger.Error("signup error: %v", err)
		return c.handleError(ctx, err)
	}

	if result.VerificationPending {
		return ctx.JSON(router.StatusOK, router.ViewContext{
			"success":              true,
			"verification_pending": true,
		})
	}

	return c.establishSession(ctx, result.Identity)
}

// VerifyEmailPayload carries the verification token.
type VerifyEmailPayload struct {
	Token string `form:"token" json:"token"`
}

// Validate will validate the payload
func (r VerifyEmailPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Token, validation.Required, is.UUID),
	)
}

func (c *HTTPController) VerifyEmail(ctx router.Context) error {
	payload := new(VerifyEmailPayload)

	if err := ctx.Bind(payload); err != nil {
		return c.badPayload(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return c.invalidPayload(ctx, err)
	}

	identity, err := c.Accounts.Verify(ctx.Context(), payload.Token)
	if err != nil {
		c.Logger.Error("email verification error: %v", err)
		return c.handleError(ctx, err)
	}

	return c.establishSession(ctx, identity)
}

// LoginPayload is the credentials body.
type LoginPayload struct {
	Identifier string `form:"identifier" json:"identifier"`
	Password   string `form:"password" json:"password"`
}

// Validate will run validation rules
func (r LoginPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Identifier, validation.Required),
		validation.Field(&r.Password, validation.Required),
	)
}

func (c *HTTPController) Login(ctx router.Context) error {
	payload := new(LoginPayload)

	if err := ctx.Bind(payload); err != nil {
		return c.badPayload(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return c.invalidPayload(ctx, err)
	}

	pair, err := c.Issuer.Login(ctx.Context(), payload.Identifier, payload.Password)
	if err != nil {
		return c.handleError(ctx, err)
	}

	return c.respondWithSession(ctx, pair)
}

// AdminLogin behaves like Login but requires a role that can
// impersonate. Back office clients use it as their entry point.
func (c *HTTPController) AdminLogin(ctx router.Context) error {
	payload := new(LoginPayload)

	if err := ctx.Bind(payload); err != nil {
		return c.badPayload(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return c.invalidPayload(ctx, err)
	}

	pair, err := c.Issuer.AdminLogin(ctx.Context(), payload.Identifier, payload.Password)
	if err != nil {
		return c.handleError(ctx, err)
	}

	return c.respondWithSession(ctx, pair)
}

// ImpersonatePayload names the user the current admin wants to act as.
type ImpersonatePayload struct {
	UserID string `form:"user_id" json:"user_id"`
}

// Validate will validate the payload
func (r ImpersonatePayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.UserID, validation.Required, is.UUID),
	)
}

func (c *HTTPController) Impersonate(ctx router.Context) error {
	claims := c.sessionClaims(ctx)
	if claims == nil {
		return c.handleError(ctx, ErrUnauthorized)
	}

	payload := new(ImpersonatePayload)

	if err := ctx.Bind(payload); err != nil {
		return c.badPayload(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return c.invalidPayload(ctx, err)
	}

	reqCtx := WithClientIP(ctx.Context(), ClientIP(ctx))
	pair, err := c.Issuer.ImpersonateAs(reqCtx, claims.Subject, payload.UserID)
	if err != nil {
		c.Logger.Error("impersonation error: %v", err)
		return c.handleError(ctx, err)
	}

	return c.respondWithSession(ctx, pair)
}

func (c *HTTPController) Refresh(ctx router.Context) error {
	refreshToken := ctx.Cookies(c.Guard.Cookies().RefreshCookieName())
	if refreshToken == "" {
		body := struct {
			RefreshToken string `form:"refresh_token" json:"refresh_token"`
		}{}
		if err := ctx.Bind(&body); err == nil {
			refreshToken = body.RefreshToken
		}
	}

	if refreshToken == "" {
		return c.handleError(ctx, ErrRefreshTokenMissing)
	}

	pair, err := c.Issuer.Refresh(ctx.Context(), refreshToken)
	if err != nil {
		return c.handleError(ctx, err)
	}

	c.Guard.Cookies().WriteTokenPair(ctx, pair, c.Issuer.Codec().RefreshTTL())

	return ctx.JSON(router.StatusOK, router.ViewContext{
		"success": true,
	})
}

func (c *HTTPController) Guest(ctx router.Context) error {
	browserID := ctx.Cookies(BrowserIDCookieName)
	if browserID == "" {
		browserID = ctx.Query("browser_id", "")
	}

	return c.establishGuestSession(ctx, browserID)
}

// Me reports the current session. Requests with a valid user token get
// their account info, anonymous requests get a fresh guest session, and
// a token for a user that no longer exists clears the cookies.
func (c *HTTPController) Me(ctx router.Context) error {
	raw := c.rawAccessToken(ctx)

	if raw != "" {
		info, err := c.Issuer.ResolveSession(ctx.Context(), raw)
		if err == nil {
			if info.IsGuest {
				c.Guard.Cookies().WriteBrowserID(ctx, info.UserID)
			}
			return ctx.JSON(router.StatusOK, info)
		}

		if !IsTokenExpiredError(err) && !IsTokenMalformedError(err) {
			c.Guard.Cookies().ClearSession(ctx)
			return c.handleError(ctx, err)
		}
		// expired or garbled tokens fall through to a guest session
	}

	browserID := ctx.Cookies(BrowserIDCookieName)
	return c.establishGuestSession(ctx, browserID)
}

func (c *HTTPController) Logout(ctx router.Context) error {
	refreshToken := ctx.Cookies(c.Guard.Cookies().RefreshCookieName())

	if err := c.Issuer.Logout(ctx.Context(), refreshToken); err != nil {
		c.Logger.Error("logout error: %v", err)
	}

	c.Guard.Cookies().ClearSession(ctx)

	return ctx.JSON(router.StatusOK, router.ViewContext{
		"success": true,
	})
}

// PasswordResetRequestPayload holds values for password reset
type PasswordResetRequestPayload struct {
	Email string `form:"email" json:"email"`
}

// Validate will validate the payload
func (r PasswordResetRequestPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
	)
}

func (c *HTTPController) PasswordResetRequest(ctx router.Context) error {
	payload := new(PasswordResetRequestPayload)

	if err := ctx.Bind(payload); err != nil {
		return c.badPayload(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return c.invalidPayload(ctx, err)
	}

	// unknown emails get the same answer as known ones
	if err := c.Accounts.RequestPasswordReset(ctx.Context(), payload.Email); err != nil {
		c.Logger.Error("password reset request error: %v", err)
		return c.handleError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, router.ViewContext{
		"success": true,
	})
}

// PasswordResetUpdatePayload holds values for password reset
type PasswordResetUpdatePayload struct {
	Token           string `form:"token" json:"token"`
	Password        string `form:"password" json:"password"`
	ConfirmPassword string `form:"confirm_password" json:"confirm_password"`
}

// Validate will validate the payload
func (r PasswordResetUpdatePayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Token, validation.Required, is.UUID),
		validation.Field(&r.Password, validation.Required, validation.Length(10, 100)),
		validation.Field(
			&r.ConfirmPassword,
			validation.Required,
			validation.Length(10, 100),
			validation.By(ValidateStringEquals(r.Password)),
		),
	)
}

func (c *HTTPController) PasswordResetUpdate(ctx router.Context) error {
	payload := new(PasswordResetUpdatePayload)

	if err := ctx.Bind(payload); err != nil {
		return c.badPayload(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return c.invalidPayload(ctx, err)
	}

	if err := c.Accounts.ResetPassword(ctx.Context(), payload.Token, payload.Password); err != nil {
		c.Logger.Error("password reset error: %v", err)
		return c.handleError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, router.ViewContext{
		"success": true,
	})
}

func (c *HTTPController) ResendVerification(ctx router.Context) error {
	payload := new(PasswordResetRequestPayload)

	if err := ctx.Bind(payload); err != nil {
		return c.badPayload(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return c.invalidPayload(ctx, err)
	}

	if err := c.Accounts.ResendVerification(ctx.Context(), payload.Email); err != nil {
		c.Logger.Error("resend verification error: %v", err)
		return c.handleError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, router.ViewContext{
		"success": true,
	})
}

// SocialLoginPayload carries the provider issued token.
type SocialLoginPayload struct {
	Token string `form:"token" json:"token"`
}

// Validate will validate the payload
func (r SocialLoginPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Token, validation.Required),
	)
}

// SocialLogin exchanges a verified provider token for a session,
// registering the account on first sight.
func (c *HTTPController) SocialLogin(ctx router.Context) error {
	payload := new(SocialLoginPayload)

	if err := ctx.Bind(payload); err != nil {
		return c.badPayload(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return c.invalidPayload(ctx, err)
	}

	profile, err := c.Social.Verify(ctx.Context(), "google", payload.Token)
	if err != nil {
		c.Logger.Error("social token verification error: %v", err)
		return c.handleError(ctx, ErrUnauthorized)
	}

	identity, err := c.Accounts.SignInSocial(ctx.Context(), *profile)
	if err != nil {
		c.Logger.Error("social sign in error: %v", err)
		return c.handleError(ctx, err)
	}

	return c.establishSession(ctx, identity)
}

// UpdateUserStatusPayload names the account and its target status.
type UpdateUserStatusPayload struct {
	UserID string `form:"user_id" json:"user_id"`
	Status string `form:"status" json:"status"`
	Reason string `form:"reason" json:"reason"`
}

// Validate will validate the payload
func (r UpdateUserStatusPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.UserID, validation.Required, is.UUID),
		validation.Field(&r.Status, validation.Required, validation.In(
			string(UserStatusPending),
			string(UserStatusActive),
			string(UserStatusSuspended),
			string(UserStatusDisabled),
			string(UserStatusArchived),
		)),
	)
}

// UpdateUserStatus moves an account to a new lifecycle status. Only
// sessions with an impersonation capable role may call it.
func (c *HTTPController) UpdateUserStatus(ctx router.Context) error {
	claims := c.sessionClaims(ctx)
	if claims == nil {
		return c.handleError(ctx, ErrUnauthorized)
	}

	if !claims.CanImpersonate() {
		return c.handleError(ctx, ErrUnauthorized)
	}

	payload := new(UpdateUserStatusPayload)

	if err := ctx.Bind(payload); err != nil {
		return c.badPayload(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return c.invalidPayload(ctx, err)
	}

	user, err := c.Users.GetByIdentifier(ctx.Context(), payload.UserID)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return c.handleError(ctx, ErrIdentityNotFound)
		}
		return c.handleError(ctx, err)
	}

	actor := ActorRef{ID: claims.Subject, Type: "user"}

	var opts []TransitionOption
	if payload.Reason != "" {
		opts = append(opts, WithTransitionReason(payload.Reason))
	}

	updated, err := c.statusMachine.Transition(ctx.Context(), actor, user, UserStatus(payload.Status), opts...)
	if err != nil {
		c.Logger.Error("status transition error: %v", err)
		return c.handleError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, router.ViewContext{
		"success": true,
		"user_id": updated.ID.String(),
		"status":  string(updated.Status),
	})
}

// establishSession upgrades any guest resources tied to the browser id
// cookie and answers with a full session.
func (c *HTTPController) establishSession(ctx router.Context, identity Identity) error {
	browserID := ctx.Cookies(BrowserIDCookieName)

	var pair *TokenPair
	var err error

	if browserID != "" {
		pair, err = c.Issuer.UpgradeGuestToUser(ctx.Context(), browserID, identity, false)
	} else {
		pair, err = c.Issuer.IssueFor(ctx.Context(), identity)
	}
	if err != nil {
		return c.handleError(ctx, err)
	}

	return c.respondWithSession(ctx, pair)
}

func (c *HTTPController) establishGuestSession(ctx router.Context, browserID string) error {
	reqCtx := WithClientIP(ctx.Context(), ClientIP(ctx))
	guest, pair, err := c.Issuer.GuestSession(reqCtx, browserID)
	if err != nil {
		return c.handleError(ctx, err)
	}

	cookies := c.Guard.Cookies()
	cookies.WriteTokenPair(ctx, pair, 0)
	cookies.WriteBrowserID(ctx, guest.BrowserID)
	cookies.ClearRefresh(ctx)

	info, err := c.Issuer.ResolveSession(ctx.Context(), pair.AccessToken)
	if err != nil {
		return c.handleError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, info)
}

// respondWithSession writes the cookies for a fresh pair and answers
// with the resolved session info.
func (c *HTTPController) respondWithSession(ctx router.Context, pair *TokenPair) error {
	c.Guard.Cookies().WriteTokenPair(ctx, pair, c.Issuer.Codec().RefreshTTL())

	info, err := c.Issuer.ResolveSession(ctx.Context(), pair.AccessToken)
	if err != nil {
		return c.handleError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, router.ViewContext{
		"success": true,
		"user":    info,
	})
}

func (c *HTTPController) rawAccessToken(ctx router.Context) string {
	lookup := "header:" + router.HeaderAuthorization + ",cookie:" + c.Guard.Cookies().AccessCookieName()
	raw, _ := jwtware.ExtractRawTokenFromContext(ctx, jwtware.GetExtractors(lookup))
	return raw
}

func (c *HTTPController) sessionClaims(ctx router.Context) *JWTClaims {
	if claims := ClaimsFromContext(ctx, c.Guard.Cookies().AccessCookieName()); claims != nil {
		return claims
	}

	raw := c.rawAccessToken(ctx)
	if raw == "" {
		return nil
	}

	claims, err := c.Issuer.Codec().VerifyAccessToken(raw)
	if err != nil {
		return nil
	}
	return claims
}

func (c *HTTPController) badPayload(ctx router.Context, err error) error {
	c.Logger.Error("parse payload: %v", err)
	return ctx.JSON(router.StatusBadRequest, router.ViewContext{
		"error": "Failed to parse request body",
	})
}

func (c *HTTPController) invalidPayload(ctx router.Context, err error) error {
	c.Logger.Error("validate payload: %v", err)
	return ctx.JSON(router.StatusBadRequest, router.ViewContext{
		"error":      "Invalid request payload",
		"validation": FormatValidationErrorToMap(err),
	})
}

func (c *HTTPController) handleError(ctx router.Context, err error) error {
	return c.ErrorHandler(ctx, err)
}

// ValidateStringEquals will check that both values match
func ValidateStringEquals(str string) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if s != str {
			return errors.New("values must match", errors.CategoryValidation)
		}
		return nil
	}
}

// FormatValidationErrorToMap flattens validation errors into a field to
// message map usable in a JSON response.
func FormatValidationErrorToMap(err error) map[string]string {
	out := map[string]string{}

	var verrs validation.Errors
	if errors.As(err, &verrs) {
		for field, ferr := range verrs {
			out[field] = ferr.Error()
		}
		return out
	}

	out["error"] = err.Error()
	return out
}
