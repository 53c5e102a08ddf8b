package session

import (
	"context"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// VerificationSessionTTL bounds how long a verification or reset link
// stays usable.
var VerificationSessionTTL = 24 * time.Hour

// Notifier delivers account emails. Delivery runs after the database
// write, a failed send leaves a valid session the user can retry.
type Notifier interface {
	SendVerification(ctx context.Context, email, sessionID string) error
	SendPasswordReset(ctx context.Context, email, sessionID string) error
}

type noopNotifier struct{}

func (noopNotifier) SendVerification(context.Context, string, string) error  { return nil }
func (noopNotifier) SendPasswordReset(context.Context, string, string) error { return nil }

// LocalAccountManager implements AccountManager over the repository
// manager. Verification and reset links share the password_reset table,
// addressed by session id.
type LocalAccountManager struct {
	repo     RepositoryManager
	notifier Notifier
	logger   Logger
	clock    Clock
}

// NewLocalAccountManager creates the manager.
func NewLocalAccountManager(repo RepositoryManager) *LocalAccountManager {
	return &LocalAccountManager{
		repo:     repo,
		notifier: noopNotifier{},
		logger:   &defLogger{},
		clock:    SystemClock,
	}
}

// WithNotifier wires email delivery.
func (m *LocalAccountManager) WithNotifier(n Notifier) *LocalAccountManager {
	if n != nil {
		m.notifier = n
	}
	return m
}

// WithLogger overrides the logger.
func (m *LocalAccountManager) WithLogger(l Logger) *LocalAccountManager {
	if l != nil {
		m.logger = l
	}
	return m
}

// WithClock overrides the wall clock, mostly for tests.
func (m *LocalAccountManager) WithClock(c Clock) *LocalAccountManager {
	if c != nil {
		m.clock = c
	}
	return m
}

// SignUp creates the account. With SkipEmailVerification the account is
// active immediately and the result carries a usable identity, otherwise
// a verification session is created and mailed out.
func (m *LocalAccountManager) SignUp(ctx context.Context, input SignUpInput) (*SignUpResult, error) {
	if _, err := m.repo.Users().GetByIdentifier(ctx, input.Email); err == nil {
		return nil, ErrIdentityConflict
	} else if !repository.IsRecordNotFound(err) {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to check existing account")
	}

	var created *User
	msg := SignUpMessage{
		FirstName: input.FirstName,
		LastName:  input.LastName,
		Email:     input.Email,
		Phone:     input.Phone,
		Password:  input.Password,
		Verified:  input.SkipEmailVerification,
		OnResponse: func(user *User) {
			created = user
		},
	}

	handler := NewSignUpHandler(m.repo)
	if err := handler.Execute(ctx, msg); err != nil {
		return nil, err
	}

	if input.SkipEmailVerification {
		return &SignUpResult{Identity: identityFromUser(created)}, nil
	}

	if err := m.openSession(ctx, created, true); err != nil {
		return nil, err
	}

	return &SignUpResult{VerificationPending: true}, nil
}

// Verify consumes a verification session and activates the account.
func (m *LocalAccountManager) Verify(ctx context.Context, token string) (Identity, error) {
	sess, user, err := m.consumeSession(ctx, token)
	if err != nil {
		return nil, err
	}

	if err := m.repo.Users().MarkEmailVerified(ctx, user.ID); err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to mark account verified")
	}
	user.Status = UserStatusActive
	user.EmailValidated = true

	m.closeSession(ctx, sess)

	return identityFromUser(user), nil
}

// RequestPasswordReset opens a reset session for the account. An unknown
// email is not an error, callers get the same answer either way.
func (m *LocalAccountManager) RequestPasswordReset(ctx context.Context, email string) error {
	user, err := m.repo.Users().GetByIdentifier(ctx, email)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil
		}
		return errors.Wrap(err, errors.CategoryInternal, "failed to look up account for reset")
	}

	return m.openSession(ctx, user, false)
}

// ResetPassword consumes a reset session and replaces the password. Every
// refresh token the user holds should be revoked by the caller afterwards.
func (m *LocalAccountManager) ResetPassword(ctx context.Context, token, password string) error {
	sess, user, err := m.consumeSession(ctx, token)
	if err != nil {
		return err
	}

	hash, err := HashPassword(password)
	if err != nil {
		return err
	}

	if err := m.repo.Users().ResetPassword(ctx, user.ID, hash); err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to reset password")
	}

	m.closeSession(ctx, sess)

	return nil
}

// SignInSocial resolves a verified social profile to an account, creating
// one on first sign-in. The provider already proved email ownership, so
// new accounts start active with a random, unusable password.
func (m *LocalAccountManager) SignInSocial(ctx context.Context, profile SocialProfile) (Identity, error) {
	if profile.Email == "" {
		return nil, errors.New("social profile carries no email", errors.CategoryBadInput).
			WithTextCode("INVALID_SOCIAL_PROFILE").
			WithCode(errors.CodeBadRequest)
	}

	user, err := m.repo.Users().GetByIdentifier(ctx, profile.Email)
	if err == nil {
		user.EnsureStatus()
		if serr := statusAuthError(user.Status); serr != nil {
			return nil, serr
		}
		return identityFromUser(user), nil
	}
	if !repository.IsRecordNotFound(err) {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to look up social account")
	}

	created, err := m.repo.Users().Register(ctx, &User{
		FirstName:      profile.Name,
		Email:          profile.Email,
		Username:       getUsername("", profile.Email),
		Role:           RoleMember,
		Status:         UserStatusActive,
		EmailValidated: true,
		PasswordHash:   RandomPasswordHash(),
		Metadata: map[string]any{
			"social_provider": profile.Provider,
			"social_subject":  profile.Subject,
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryConflict, "could not create social account")
	}

	return identityFromUser(created), nil
}

// ResendVerification opens a fresh verification session for a pending
// account. Active accounts are a no-op.
func (m *LocalAccountManager) ResendVerification(ctx context.Context, email string) error {
	user, err := m.repo.Users().GetByIdentifier(ctx, email)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil
		}
		return errors.Wrap(err, errors.CategoryInternal, "failed to look up account for verification")
	}

	user.EnsureStatus()
	if user.Status != UserStatusPending {
		return nil
	}

	return m.openSession(ctx, user, true)
}

func (m *LocalAccountManager) openSession(ctx context.Context, user *User, verification bool) error {
	sess := &PasswordReset{
		ID:     uuid.New(),
		UserID: &user.ID,
		Email:  user.Email,
		Status: ResetRequestedStatus,
	}
	err := m.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		_, err := m.repo.PasswordResets().CreateTx(ctx, tx, sess)
		return err
	})
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to create account session")
	}

	var sendErr error
	if verification {
		sendErr = m.notifier.SendVerification(ctx, user.Email, sess.ID.String())
	} else {
		sendErr = m.notifier.SendPasswordReset(ctx, user.Email, sess.ID.String())
	}
	if sendErr != nil {
		m.logger.Error("account notification failed: %v", sendErr)
	}

	return nil
}

func (m *LocalAccountManager) consumeSession(ctx context.Context, token string) (*PasswordReset, *User, error) {
	id, err := uuid.Parse(token)
	if err != nil {
		return nil, nil, ErrTokenMalformed
	}

	sess, err := m.repo.PasswordResets().GetByID(ctx, id.String())
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, nil, ErrTokenRevoked
		}
		return nil, nil, errors.Wrap(err, errors.CategoryInternal, "failed to load account session")
	}

	if sess.Status != ResetRequestedStatus {
		return nil, nil, ErrTokenRevoked
	}

	if sess.CreatedAt != nil && m.clock.Now().Sub(*sess.CreatedAt) > VerificationSessionTTL {
		sess.Status = ResetExpiredStatus
		if err := m.updateSession(ctx, sess); err != nil {
			m.logger.Error("failed to expire account session: %v", err)
		}
		return nil, nil, ErrTokenExpired
	}

	if sess.UserID == nil {
		return nil, nil, ErrIdentityNotFound
	}

	user, err := m.repo.Users().GetByIdentifier(ctx, sess.UserID.String())
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, nil, ErrIdentityNotFound
		}
		return nil, nil, errors.Wrap(err, errors.CategoryInternal, "failed to load account")
	}

	return sess, user, nil
}

func (m *LocalAccountManager) closeSession(ctx context.Context, sess *PasswordReset) {
	now := m.clock.Now()
	sess.Status = ResetChangedStatus
	sess.ResetedAt = &now
	if err := m.updateSession(ctx, sess); err != nil {
		m.logger.Error("failed to close account session: %v", err)
	}
}

func (m *LocalAccountManager) updateSession(ctx context.Context, sess *PasswordReset) error {
	return m.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		_, err := m.repo.PasswordResets().UpdateTx(ctx, tx, sess)
		return err
	})
}
