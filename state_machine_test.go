package session_test

import (
	"context"
	"testing"
	"time"

	session "github.com/goliatone/go-session"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeUsers embeds the interface so only the methods a test exercises
// need real bodies.
type fakeUsers struct {
	session.Users

	updateCalls []session.UserStatus
	updateErr   error
	returned    *session.User
}

func (f *fakeUsers) UpdateStatus(ctx context.Context, id uuid.UUID, status session.UserStatus) (*session.User, error) {
	f.updateCalls = append(f.updateCalls, status)
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	if f.returned != nil {
		return f.returned, nil
	}
	return &session.User{ID: id, Status: status}, nil
}

func TestStateMachine_SuspendSetsTimestamp(t *testing.T) {
	repo := &fakeUsers{}
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	user := &session.User{ID: uuid.New(), Status: session.UserStatusActive}

	repo.returned = &session.User{ID: user.ID, Status: session.UserStatusSuspended, SuspendedAt: &now}

	sm := session.NewUserStateMachine(repo, session.WithStateMachineClock(fixedClock(now)))

	result, err := sm.Transition(context.Background(), session.ActorRef{ID: "admin"}, user, session.UserStatusSuspended)
	require.NoError(t, err)
	assert.Equal(t, session.UserStatusSuspended, result.Status)
	require.NotNil(t, result.SuspendedAt)
	assert.Equal(t, now, result.SuspendedAt.UTC())
	assert.Equal(t, []session.UserStatus{session.UserStatusSuspended}, repo.updateCalls)
}

func TestStateMachine_RejectsInvalidTransition(t *testing.T) {
	repo := &fakeUsers{}
	user := &session.User{ID: uuid.New(), Status: session.UserStatusPending}

	sm := session.NewUserStateMachine(repo)

	_, err := sm.Transition(context.Background(), session.ActorRef{}, user, session.UserStatusSuspended)
	require.Error(t, err)
	assert.ErrorIs(t, err, session.ErrInvalidTransition)
	assert.Empty(t, repo.updateCalls)
}

func TestStateMachine_ArchivedIsTerminal(t *testing.T) {
	repo := &fakeUsers{}
	user := &session.User{ID: uuid.New(), Status: session.UserStatusArchived}

	sm := session.NewUserStateMachine(repo)

	_, err := sm.Transition(context.Background(), session.ActorRef{}, user, session.UserStatusActive)
	assert.ErrorIs(t, err, session.ErrTerminalState)
}

func TestStateMachine_ForceBypassesValidation(t *testing.T) {
	repo := &fakeUsers{}
	user := &session.User{ID: uuid.New(), Status: session.UserStatusPending}

	sm := session.NewUserStateMachine(repo)

	result, err := sm.Transition(
		context.Background(),
		session.ActorRef{},
		user,
		session.UserStatusSuspended,
		session.WithForceTransition(),
	)
	require.NoError(t, err)
	assert.Equal(t, session.UserStatusSuspended, result.Status)
}

func TestStateMachine_SameStatusIsNoop(t *testing.T) {
	repo := &fakeUsers{}
	user := &session.User{ID: uuid.New(), Status: session.UserStatusActive}

	sm := session.NewUserStateMachine(repo)

	result, err := sm.Transition(context.Background(), session.ActorRef{}, user, session.UserStatusActive)
	require.NoError(t, err)
	assert.Equal(t, user, result)
	assert.Empty(t, repo.updateCalls)
}

func TestStateMachine_ReinstateClearsTimestamp(t *testing.T) {
	repo := &fakeUsers{}
	now := time.Now()
	user := &session.User{ID: uuid.New(), Status: session.UserStatusSuspended, SuspendedAt: &now}

	sm := session.NewUserStateMachine(repo)

	result, err := sm.Transition(context.Background(), session.ActorRef{}, user, session.UserStatusActive)
	require.NoError(t, err)
	assert.Equal(t, session.UserStatusActive, result.Status)
	assert.Nil(t, result.SuspendedAt)
}

func TestStateMachine_EmitsActivityEvent(t *testing.T) {
	repo := &fakeUsers{}
	sink := &recordingSink{}
	user := &session.User{ID: uuid.New(), Status: session.UserStatusActive}

	sm := session.NewUserStateMachine(repo,
		session.WithStateMachineActivitySink(sink),
		session.WithStateMachineClock(fixedClock(time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC))),
	)

	_, err := sm.Transition(
		context.Background(),
		session.ActorRef{ID: "admin"},
		user,
		session.UserStatusSuspended,
		session.WithTransitionReason("policy"),
	)
	require.NoError(t, err)

	events := sink.byType(session.ActivityEventUserStatusChanged)
	require.Len(t, events, 1)
	assert.Equal(t, user.ID.String(), events[0].UserID)
	assert.Equal(t, session.UserStatusActive, events[0].FromStatus)
	assert.Equal(t, session.UserStatusSuspended, events[0].ToStatus)
	assert.Equal(t, "policy", events[0].Metadata["reason"])
}

func TestStateMachine_LeavingActiveRevokesSessions(t *testing.T) {
	repo := &fakeUsers{}
	store := session.NewMemoryRevocationStore(time.Hour)
	defer store.Stop()

	user := &session.User{ID: uuid.New(), Status: session.UserStatusActive}
	ctx := context.Background()

	require.NoError(t, store.Track(ctx, user.ID.String(), "jti-1", time.Now().Add(time.Hour)))

	sm := session.NewUserStateMachine(repo, session.WithStateMachineSessions(store))

	_, err := sm.Transition(ctx, session.ActorRef{ID: "admin"}, user, session.UserStatusSuspended)
	require.NoError(t, err)

	active, err := store.IsActive(ctx, user.ID.String(), "jti-1")
	require.NoError(t, err)
	assert.False(t, active)
}

func TestStateMachine_CurrentStatusBackfillsZeroValue(t *testing.T) {
	sm := session.NewUserStateMachine(&fakeUsers{})

	assert.Equal(t, session.UserStatus(""), sm.CurrentStatus(nil))
	assert.Equal(t, session.UserStatusActive, sm.CurrentStatus(&session.User{}))
}
