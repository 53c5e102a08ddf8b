package session

import (
	"context"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

type trackedToken struct {
	hash      string
	expiresAt time.Time
}

type userTokens struct {
	// ordered oldest first so the cap can evict the stalest device
	tokens []trackedToken
}

// MemoryRevocationStore keeps active token ids in process memory. It is
// the default store for single node deployments and for tests. Entries
// expire with the refresh TTL so a quiet user costs nothing.
type MemoryRevocationStore struct {
	mu    sync.Mutex
	cache *ttlcache.Cache[string, *userTokens]
	clock Clock
}

// NewMemoryRevocationStore creates a store whose per user entries live for
// ttl past their last refresh.
func NewMemoryRevocationStore(ttl time.Duration) *MemoryRevocationStore {
	if ttl <= 0 {
		ttl = DefaultRefreshTTL
	}
	cache := ttlcache.New(
		ttlcache.WithTTL[string, *userTokens](ttl),
	)
	go cache.Start()

	return &MemoryRevocationStore{
		cache: cache,
		clock: SystemClock,
	}
}

// WithClock overrides the wall clock, mostly for tests.
func (s *MemoryRevocationStore) WithClock(clock Clock) *MemoryRevocationStore {
	if clock != nil {
		s.clock = clock
	}
	return s
}

// Track implements RevocationStore.
func (s *MemoryRevocationStore) Track(_ context.Context, userID, tokenID string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := s.getOrCreate(userID)
	entry.tokens = append(entry.tokens, trackedToken{
		hash:      HashTokenID(tokenID),
		expiresAt: expiresAt,
	})
	if len(entry.tokens) > MaxActiveTokensPerUser {
		entry.tokens = entry.tokens[len(entry.tokens)-MaxActiveTokensPerUser:]
	}
	s.cache.Set(userID, entry, ttlcache.DefaultTTL)
	return nil
}

// CheckAndRevoke implements RevocationStore. The store mutex makes the
// check and removal atomic, so concurrent refreshes of the same token
// produce exactly one winner.
func (s *MemoryRevocationStore) CheckAndRevoke(_ context.Context, userID, tokenID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := s.get(userID)
	if entry == nil {
		return ErrTokenRevoked
	}
	hash := HashTokenID(tokenID)
	now := s.clock.Now()
	for i, t := range entry.tokens {
		if t.hash != hash {
			continue
		}
		entry.tokens = append(entry.tokens[:i], entry.tokens[i+1:]...)
		s.cache.Set(userID, entry, ttlcache.DefaultTTL)
		if now.After(t.expiresAt) {
			return ErrTokenExpired
		}
		return nil
	}
	return ErrTokenRevoked
}

// Revoke implements RevocationStore.
func (s *MemoryRevocationStore) Revoke(_ context.Context, userID, tokenID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := s.get(userID)
	if entry == nil {
		return nil
	}
	hash := HashTokenID(tokenID)
	for i, t := range entry.tokens {
		if t.hash == hash {
			entry.tokens = append(entry.tokens[:i], entry.tokens[i+1:]...)
			s.cache.Set(userID, entry, ttlcache.DefaultTTL)
			return nil
		}
	}
	return nil
}

// RevokeAll implements RevocationStore.
func (s *MemoryRevocationStore) RevokeAll(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cache.Delete(userID)
	return nil
}

// IsActive implements RevocationStore.
func (s *MemoryRevocationStore) IsActive(_ context.Context, userID, tokenID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := s.get(userID)
	if entry == nil {
		return false, nil
	}
	hash := HashTokenID(tokenID)
	now := s.clock.Now()
	for _, t := range entry.tokens {
		if t.hash == hash {
			return !now.After(t.expiresAt), nil
		}
	}
	return false, nil
}

// Stop halts the background expiry loop.
func (s *MemoryRevocationStore) Stop() {
	s.cache.Stop()
}

func (s *MemoryRevocationStore) get(userID string) *userTokens {
	item := s.cache.Get(userID)
	if item == nil {
		return nil
	}
	return item.Value()
}

func (s *MemoryRevocationStore) getOrCreate(userID string) *userTokens {
	if entry := s.get(userID); entry != nil {
		return entry
	}
	return &userTokens{}
}
