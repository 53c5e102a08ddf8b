package session_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	session "github.com/goliatone/go-session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_TrackAndRotate(t *testing.T) {
	store := session.NewMemoryRevocationStore(time.Hour)
	defer store.Stop()

	ctx := context.Background()
	expiry := time.Now().Add(time.Hour)

	require.NoError(t, store.Track(ctx, "user-1", "jti-1", expiry))

	active, err := store.IsActive(ctx, "user-1", "jti-1")
	require.NoError(t, err)
	assert.True(t, active)

	// first use consumes the token
	require.NoError(t, store.CheckAndRevoke(ctx, "user-1", "jti-1"))

	// second use is a reuse
	err = store.CheckAndRevoke(ctx, "user-1", "jti-1")
	assert.ErrorIs(t, err, session.ErrTokenRevoked)

	active, err = store.IsActive(ctx, "user-1", "jti-1")
	require.NoError(t, err)
	assert.False(t, active)
}

func TestMemoryStore_UnknownTokenIsRevoked(t *testing.T) {
	store := session.NewMemoryRevocationStore(time.Hour)
	defer store.Stop()

	err := store.CheckAndRevoke(context.Background(), "user-1", "never-tracked")
	assert.ErrorIs(t, err, session.ErrTokenRevoked)
}

func TestMemoryStore_ExpiredToken(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	store := session.NewMemoryRevocationStore(time.Hour).
		WithClock(session.ClockFunc(func() time.Time { return now }))
	defer store.Stop()

	ctx := context.Background()
	require.NoError(t, store.Track(ctx, "user-1", "jti-1", now.Add(-time.Minute)))

	err := store.CheckAndRevoke(ctx, "user-1", "jti-1")
	assert.ErrorIs(t, err, session.ErrTokenExpired)

	// the expired token was consumed either way
	err = store.CheckAndRevoke(ctx, "user-1", "jti-1")
	assert.ErrorIs(t, err, session.ErrTokenRevoked)
}

func TestMemoryStore_ConcurrentRotationSingleWinner(t *testing.T) {
	store := session.NewMemoryRevocationStore(time.Hour)
	defer store.Stop()

	ctx := context.Background()
	expiry := time.Now().Add(time.Hour)
	require.NoError(t, store.Track(ctx, "user-1", "jti-1", expiry))

	const racers = 16
	var wg sync.WaitGroup
	results := make(chan error, racers)

	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- store.CheckAndRevoke(ctx, "user-1", "jti-1")
		}()
	}
	wg.Wait()
	close(results)

	winners := 0
	for err := range results {
		if err == nil {
			winners++
		} else {
			assert.ErrorIs(t, err, session.ErrTokenRevoked)
		}
	}
	assert.Equal(t, 1, winners)
}

func TestMemoryStore_CapsActiveTokens(t *testing.T) {
	store := session.NewMemoryRevocationStore(time.Hour)
	defer store.Stop()

	ctx := context.Background()
	expiry := time.Now().Add(time.Hour)

	for i := 0; i < session.MaxActiveTokensPerUser+4; i++ {
		require.NoError(t, store.Track(ctx, "user-1", fmt.Sprintf("jti-%d", i), expiry))
	}

	// the oldest four were evicted
	for i := 0; i < 4; i++ {
		active, err := store.IsActive(ctx, "user-1", fmt.Sprintf("jti-%d", i))
		require.NoError(t, err)
		assert.False(t, active, "jti-%d should be evicted", i)
	}

	// the newest sixteen survive
	for i := 4; i < session.MaxActiveTokensPerUser+4; i++ {
		active, err := store.IsActive(ctx, "user-1", fmt.Sprintf("jti-%d", i))
		require.NoError(t, err)
		assert.True(t, active, "jti-%d should be active", i)
	}
}

func TestMemoryStore_RevokeAll(t *testing.T) {
	store := session.NewMemoryRevocationStore(time.Hour)
	defer store.Stop()

	ctx := context.Background()
	expiry := time.Now().Add(time.Hour)

	require.NoError(t, store.Track(ctx, "user-1", "jti-1", expiry))
	require.NoError(t, store.Track(ctx, "user-1", "jti-2", expiry))
	require.NoError(t, store.Track(ctx, "user-2", "jti-3", expiry))

	require.NoError(t, store.RevokeAll(ctx, "user-1"))

	for _, jti := range []string{"jti-1", "jti-2"} {
		active, err := store.IsActive(ctx, "user-1", jti)
		require.NoError(t, err)
		assert.False(t, active)
	}

	// other users are untouched
	active, err := store.IsActive(ctx, "user-2", "jti-3")
	require.NoError(t, err)
	assert.True(t, active)
}

func TestMemoryStore_RevokeIsIdempotent(t *testing.T) {
	store := session.NewMemoryRevocationStore(time.Hour)
	defer store.Stop()

	ctx := context.Background()
	require.NoError(t, store.Revoke(ctx, "user-1", "never-tracked"))
	require.NoError(t, store.Track(ctx, "user-1", "jti-1", time.Now().Add(time.Hour)))
	require.NoError(t, store.Revoke(ctx, "user-1", "jti-1"))
	require.NoError(t, store.Revoke(ctx, "user-1", "jti-1"))
}
