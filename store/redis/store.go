// Package redis provides a Redis backed revocation store for deployments
// where more than one node issues and rotates refresh tokens.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/goliatone/go-errors"
	session "github.com/goliatone/go-session"
	"github.com/redis/go-redis/v9"
)

// RevocationStore tracks active refresh token ids in a per user sorted
// set scored by issue time. Removal count from ZRem gives the atomic
// consume semantics rotation needs.
type RevocationStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	clock  session.Clock
}

// NewRevocationStore creates a store. prefix namespaces the keys, ttl
// bounds how long an idle user's set survives.
func NewRevocationStore(client *redis.Client, prefix string, ttl time.Duration) *RevocationStore {
	if prefix == "" {
		prefix = "session"
	}
	if ttl <= 0 {
		ttl = session.DefaultRefreshTTL
	}
	return &RevocationStore{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		clock:  session.SystemClock,
	}
}

// WithClock overrides the wall clock, mostly for tests.
func (s *RevocationStore) WithClock(clock session.Clock) *RevocationStore {
	if clock != nil {
		s.clock = clock
	}
	return s
}

func (s *RevocationStore) key(userID string) string {
	return fmt.Sprintf("%s:refresh:%s", s.prefix, userID)
}

// Track implements session.RevocationStore.
func (s *RevocationStore) Track(ctx context.Context, userID, tokenID string, expiresAt time.Time) error {
	key := s.key(userID)
	member := s.member(tokenID, expiresAt)

	pipe := s.client.TxPipeline()
	pipe.ZAdd(ctx, key, redis.Z{
		Score:  float64(s.clock.Now().UnixNano()),
		Member: member,
	})
	// cap the set, dropping the oldest entries
	pipe.ZRemRangeByRank(ctx, key, 0, int64(-session.MaxActiveTokensPerUser-1))
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to track refresh token").
			WithCode(errors.CodeInternal)
	}
	return nil
}

// CheckAndRevoke implements session.RevocationStore. ZRem reports how many
// members it removed, so when two rotations race only one sees a 1.
func (s *RevocationStore) CheckAndRevoke(ctx context.Context, userID, tokenID string) error {
	removed, expired, err := s.remove(ctx, userID, tokenID)
	if err != nil {
		return err
	}
	if removed == 0 {
		return session.ErrTokenRevoked
	}
	if expired {
		return session.ErrTokenExpired
	}
	return nil
}

// Revoke implements session.RevocationStore.
func (s *RevocationStore) Revoke(ctx context.Context, userID, tokenID string) error {
	_, _, err := s.remove(ctx, userID, tokenID)
	return err
}

// RevokeAll implements session.RevocationStore.
func (s *RevocationStore) RevokeAll(ctx context.Context, userID string) error {
	if err := s.client.Del(ctx, s.key(userID)).Err(); err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to revoke refresh tokens").
			WithCode(errors.CodeInternal)
	}
	return nil
}

// IsActive implements session.RevocationStore.
func (s *RevocationStore) IsActive(ctx context.Context, userID, tokenID string) (bool, error) {
	members, err := s.activeMembers(ctx, userID)
	if err != nil {
		return false, err
	}
	now := s.clock.Now()
	for _, m := range members {
		expiresAt, ok := parseMember(m, session.HashTokenID(tokenID))
		if !ok {
			continue
		}
		if now.Before(expiresAt) {
			return true, nil
		}
	}
	return false, nil
}

// member encodes hash and expiry together so validity checks need no
// second lookup.
func (s *RevocationStore) member(tokenID string, expiresAt time.Time) string {
	return fmt.Sprintf("%s@%d", session.HashTokenID(tokenID), expiresAt.Unix())
}

func (s *RevocationStore) remove(ctx context.Context, userID, tokenID string) (removed int64, expired bool, err error) {
	members, err := s.activeMembers(ctx, userID)
	if err != nil {
		return 0, false, err
	}
	if len(members) == 0 {
		return 0, false, nil
	}
	now := s.clock.Now()
	hash := session.HashTokenID(tokenID)
	for _, m := range members {
		expiresAt, ok := parseMember(m, hash)
		if !ok {
			continue
		}
		n, err := s.client.ZRem(ctx, s.key(userID), m).Result()
		if err != nil {
			return 0, false, errors.Wrap(err, errors.CategoryInternal, "failed to revoke refresh token").
				WithCode(errors.CodeInternal)
		}
		return n, now.After(expiresAt), nil
	}
	return 0, false, nil
}

func (s *RevocationStore) activeMembers(ctx context.Context, userID string) ([]string, error) {
	members, err := s.client.ZRange(ctx, s.key(userID), 0, -1).Result()
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to read refresh tokens").
			WithCode(errors.CodeInternal)
	}
	return members, nil
}

func parseMember(member, hash string) (time.Time, bool) {
	if len(member) <= len(hash)+1 || member[:len(hash)] != hash || member[len(hash)] != '@' {
		return time.Time{}, false
	}
	var unix int64
	if _, err := fmt.Sscanf(member[len(hash)+1:], "%d", &unix); err != nil {
		return time.Time{}, false
	}
	return time.Unix(unix, 0), true
}
