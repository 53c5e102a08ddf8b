package session_test

import (
	"context"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
	session "github.com/goliatone/go-session"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type MockUserTracker struct {
	mock.Mock
}

func (m *MockUserTracker) GetByIdentifier(ctx context.Context, identifier string) (*session.User, error) {
	args := m.Called(ctx, identifier)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*session.User), args.Error(1)
}

func (m *MockUserTracker) TrackAttemptedLogin(ctx context.Context, user *session.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockUserTracker) TrackSuccessfulLogin(ctx context.Context, user *session.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func notFoundErr(msg string) error {
	return goerrors.New(msg, goerrors.CategoryNotFound)
}

func TestUserProviderVerifyIdentity(t *testing.T) {
	ctx := context.Background()

	t.Run("Successful verification", func(t *testing.T) {
		mockTracker := new(MockUserTracker)
		provider := session.NewUserProvider(mockTracker)

		userID := uuid.New()
		passwordHash, _ := session.HashPassword("password123")
		user := &session.User{
			ID:           userID,
			Username:     "testuser",
			Email:        "test@example.com",
			PasswordHash: passwordHash,
			Role:         session.RoleMember,
			Status:       session.UserStatusActive,
		}

		mockTracker.On("GetByIdentifier", ctx, "test@example.com").Return(user, nil).Once()
		mockTracker.On("TrackSuccessfulLogin", ctx, user).Return(nil).Once()

		identity, err := provider.VerifyIdentity(ctx, "test@example.com", "password123")

		assert.NoError(t, err)
		assert.NotNil(t, identity)
		assert.Equal(t, userID.String(), identity.ID())
		assert.Equal(t, "testuser", identity.Username())
		assert.Equal(t, "test@example.com", identity.Email())
		assert.Equal(t, session.RoleMember, identity.Role())

		mockTracker.AssertExpectations(t)
	})

	t.Run("Invalid password", func(t *testing.T) {
		mockTracker := new(MockUserTracker)
		provider := session.NewUserProvider(mockTracker)

		passwordHash, _ := session.HashPassword("correct_password")
		user := &session.User{
			ID:           uuid.New(),
			Email:        "test@example.com",
			PasswordHash: passwordHash,
			Role:         session.RoleMember,
			Status:       session.UserStatusActive,
		}

		mockTracker.On("GetByIdentifier", ctx, "test@example.com").Return(user, nil).Once()
		mockTracker.On("TrackAttemptedLogin", ctx, user).Return(nil).Once()

		identity, err := provider.VerifyIdentity(ctx, "test@example.com", "wrong_password")

		assert.ErrorIs(t, err, session.ErrMismatchedHashAndPassword)
		assert.Nil(t, identity)

		mockTracker.AssertExpectations(t)
	})

	t.Run("User not found", func(t *testing.T) {
		mockTracker := new(MockUserTracker)
		provider := session.NewUserProvider(mockTracker)

		mockTracker.On("GetByIdentifier", ctx, "nonexistent@example.com").
			Return(nil, notFoundErr("user not found")).Once()

		identity, err := provider.VerifyIdentity(ctx, "nonexistent@example.com", "password123")

		// not found looks the same as a bad password to the caller
		assert.ErrorIs(t, err, session.ErrMismatchedHashAndPassword)
		assert.Nil(t, identity)

		mockTracker.AssertExpectations(t)
	})

	t.Run("Too many login attempts", func(t *testing.T) {
		mockTracker := new(MockUserTracker)
		provider := session.NewUserProvider(mockTracker)

		passwordHash, _ := session.HashPassword("password123")
		now := time.Now()
		user := &session.User{
			ID:             uuid.New(),
			Email:          "test@example.com",
			PasswordHash:   passwordHash,
			Role:           session.RoleMember,
			Status:         session.UserStatusActive,
			LoginAttempts:  session.MaxLoginAttempts + 1,
			LoginAttemptAt: &now,
		}

		mockTracker.On("GetByIdentifier", ctx, "test@example.com").Return(user, nil).Once()

		identity, err := provider.VerifyIdentity(ctx, "test@example.com", "password123")

		assert.ErrorIs(t, err, session.ErrTooManyLoginAttempts)
		assert.Nil(t, identity)

		mockTracker.AssertExpectations(t)
	})

	t.Run("Login attempts cooldown expired", func(t *testing.T) {
		mockTracker := new(MockUserTracker)
		provider := session.NewUserProvider(mockTracker)

		passwordHash, _ := session.HashPassword("password123")
		oldAttempt := time.Now().Add(-48 * time.Hour)
		user := &session.User{
			ID:             uuid.New(),
			Email:          "test@example.com",
			PasswordHash:   passwordHash,
			Role:           session.RoleMember,
			Status:         session.UserStatusActive,
			LoginAttempts:  session.MaxLoginAttempts + 1,
			LoginAttemptAt: &oldAttempt,
		}

		mockTracker.On("GetByIdentifier", ctx, "test@example.com").Return(user, nil).Once()
		mockTracker.On("TrackSuccessfulLogin", ctx, mock.MatchedBy(func(u *session.User) bool {
			return u.ID == user.ID && u.LoginAttempts == 0 // attempts reset
		})).Return(nil).Once()

		identity, err := provider.VerifyIdentity(ctx, "test@example.com", "password123")

		assert.NoError(t, err)
		assert.NotNil(t, identity)

		mockTracker.AssertExpectations(t)
	})

	t.Run("Suspended account", func(t *testing.T) {
		mockTracker := new(MockUserTracker)
		provider := session.NewUserProvider(mockTracker)

		passwordHash, _ := session.HashPassword("password123")
		user := &session.User{
			ID:           uuid.New(),
			Email:        "test@example.com",
			PasswordHash: passwordHash,
			Role:         session.RoleMember,
			Status:       session.UserStatusSuspended,
		}

		mockTracker.On("GetByIdentifier", ctx, "test@example.com").Return(user, nil).Once()

		identity, err := provider.VerifyIdentity(ctx, "test@example.com", "password123")

		assert.Error(t, err)
		assert.Nil(t, identity)
		assert.Contains(t, err.Error(), "suspended")

		mockTracker.AssertExpectations(t)
	})
}

func TestUserProviderFindIdentityByID(t *testing.T) {
	ctx := context.Background()

	t.Run("User found", func(t *testing.T) {
		mockTracker := new(MockUserTracker)
		provider := session.NewUserProvider(mockTracker)

		userID := uuid.New()
		user := &session.User{
			ID:       userID,
			Username: "testuser",
			Email:    "test@example.com",
			Role:     session.RoleAdmin,
			Status:   session.UserStatusActive,
		}

		mockTracker.On("GetByIdentifier", ctx, userID.String()).Return(user, nil).Once()

		identity, err := provider.FindIdentityByID(ctx, userID.String())

		assert.NoError(t, err)
		assert.NotNil(t, identity)
		assert.Equal(t, userID.String(), identity.ID())
		assert.Equal(t, session.RoleAdmin, identity.Role())

		mockTracker.AssertExpectations(t)
	})

	t.Run("User not found", func(t *testing.T) {
		mockTracker := new(MockUserTracker)
		provider := session.NewUserProvider(mockTracker)

		mockTracker.On("GetByIdentifier", ctx, "missing-id").
			Return(nil, notFoundErr("user not found")).Once()

		identity, err := provider.FindIdentityByID(ctx, "missing-id")

		assert.ErrorIs(t, err, session.ErrIdentityNotFound)
		assert.Nil(t, identity)

		mockTracker.AssertExpectations(t)
	})

	t.Run("Invalid role", func(t *testing.T) {
		mockTracker := new(MockUserTracker)
		provider := session.NewUserProvider(mockTracker)

		user := &session.User{
			ID:     uuid.New(),
			Email:  "test@example.com",
			Role:   "invalid_role",
			Status: session.UserStatusActive,
		}

		mockTracker.On("GetByIdentifier", ctx, "test@example.com").Return(user, nil).Once()

		identity, err := provider.FindIdentityByID(ctx, "test@example.com")

		assert.Error(t, err)
		assert.Nil(t, identity)
		assert.Contains(t, err.Error(), "role")

		mockTracker.AssertExpectations(t)
	})
}

func TestUserProviderValidation(t *testing.T) {
	provider := session.NewUserProvider(new(MockUserTracker))

	for _, role := range session.GetAllRoles() {
		t.Run("Valid role: "+role, func(t *testing.T) {
			user := &session.User{
				ID:    uuid.New(),
				Email: "test@example.com",
				Role:  role,
			}

			assert.NoError(t, provider.Validator(user))
		})
	}

	t.Run("Invalid role", func(t *testing.T) {
		user := &session.User{
			ID:    uuid.New(),
			Email: "test@example.com",
			Role:  "invalid_role",
		}

		err := provider.Validator(user)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "role")
	})

	t.Run("Custom validator", func(t *testing.T) {
		customErr := goerrors.New("custom validation error", goerrors.CategoryValidation)
		provider := session.NewUserProvider(new(MockUserTracker))
		provider.Validator = func(u *session.User) error {
			return customErr
		}

		err := provider.Validator(&session.User{ID: uuid.New()})
		assert.Equal(t, customErr, err)
	})
}
