package session

import (
	"context"
	"database/sql"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// SQLRevocationStore persists refresh token state in a refresh_tokens
// table. Rows are revoked, not deleted, so the table doubles as an audit
// trail of token rotations.
type SQLRevocationStore struct {
	db    *bun.DB
	clock Clock
}

// NewSQLRevocationStore creates a store over the given bun handle.
func NewSQLRevocationStore(db *bun.DB) *SQLRevocationStore {
	return &SQLRevocationStore{
		db:    db,
		clock: SystemClock,
	}
}

// WithClock overrides the wall clock, mostly for tests.
func (s *SQLRevocationStore) WithClock(clock Clock) *SQLRevocationStore {
	if clock != nil {
		s.clock = clock
	}
	return s
}

// Track implements RevocationStore.
func (s *SQLRevocationStore) Track(ctx context.Context, userID, tokenID string, expiresAt time.Time) error {
	record := &RefreshToken{
		ID:        uuid.New(),
		UserID:    userID,
		TokenHash: HashTokenID(tokenID),
		ExpiresAt: expiresAt,
	}
	if _, err := s.db.NewInsert().Model(record).Exec(ctx); err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to track refresh token").
			WithCode(errors.CodeInternal)
	}
	return s.enforceCap(ctx, userID)
}

// CheckAndRevoke implements RevocationStore. A single conditional UPDATE
// is the atomicity primitive: the database lets exactly one concurrent
// refresh flip revoked_at from NULL.
func (s *SQLRevocationStore) CheckAndRevoke(ctx context.Context, userID, tokenID string) error {
	now := s.clock.Now()
	res, err := s.db.NewUpdate().
		Model((*RefreshToken)(nil)).
		Set("revoked_at = ?", now).
		Where("user_id = ?", userID).
		Where("token_hash = ?", HashTokenID(tokenID)).
		Where("revoked_at IS NULL").
		Exec(ctx)
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to consume refresh token").
			WithCode(errors.CodeInternal)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to consume refresh token").
			WithCode(errors.CodeInternal)
	}
	if affected == 0 {
		return ErrTokenRevoked
	}
	// the row was live in the table but may be past its window
	record := &RefreshToken{}
	err = s.db.NewSelect().
		Model(record).
		Where("user_id = ?", userID).
		Where("token_hash = ?", HashTokenID(tokenID)).
		Scan(ctx)
	if err == nil && record.IsExpired(now) {
		return ErrTokenExpired
	}
	return nil
}

// Revoke implements RevocationStore.
func (s *SQLRevocationStore) Revoke(ctx context.Context, userID, tokenID string) error {
	_, err := s.db.NewUpdate().
		Model((*RefreshToken)(nil)).
		Set("revoked_at = ?", s.clock.Now()).
		Where("user_id = ?", userID).
		Where("token_hash = ?", HashTokenID(tokenID)).
		Where("revoked_at IS NULL").
		Exec(ctx)
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to revoke refresh token").
			WithCode(errors.CodeInternal)
	}
	return nil
}

// RevokeAll implements RevocationStore.
func (s *SQLRevocationStore) RevokeAll(ctx context.Context, userID string) error {
	_, err := s.db.NewUpdate().
		Model((*RefreshToken)(nil)).
		Set("revoked_at = ?", s.clock.Now()).
		Where("user_id = ?", userID).
		Where("revoked_at IS NULL").
		Exec(ctx)
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to revoke refresh tokens").
			WithCode(errors.CodeInternal)
	}
	return nil
}

// IsActive implements RevocationStore.
func (s *SQLRevocationStore) IsActive(ctx context.Context, userID, tokenID string) (bool, error) {
	record := &RefreshToken{}
	err := s.db.NewSelect().
		Model(record).
		Where("user_id = ?", userID).
		Where("token_hash = ?", HashTokenID(tokenID)).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, errors.Wrap(err, errors.CategoryInternal, "failed to read refresh token").
			WithCode(errors.CodeInternal)
	}
	if record.IsRevoked() {
		return false, nil
	}
	return !record.IsExpired(s.clock.Now()), nil
}

// LinkRotation implements RotationLinker. The consumed row keeps a
// pointer at the row that replaced it, so the revoked rows form a
// rotation chain per device.
func (s *SQLRevocationStore) LinkRotation(ctx context.Context, userID, oldTokenID, newTokenID string) error {
	successor := &RefreshToken{}
	err := s.db.NewSelect().
		Model(successor).
		Where("user_id = ?", userID).
		Where("token_hash = ?", HashTokenID(newTokenID)).
		Scan(ctx)
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to resolve successor token").
			WithCode(errors.CodeInternal)
	}
	_, err = s.db.NewUpdate().
		Model((*RefreshToken)(nil)).
		Set("replaced_by_id = ?", successor.ID).
		Where("user_id = ?", userID).
		Where("token_hash = ?", HashTokenID(oldTokenID)).
		Exec(ctx)
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to link rotated token").
			WithCode(errors.CodeInternal)
	}
	return nil
}

// enforceCap revokes the oldest live rows past the per user cap.
func (s *SQLRevocationStore) enforceCap(ctx context.Context, userID string) error {
	var live []RefreshToken
	err := s.db.NewSelect().
		Model(&live).
		Where("user_id = ?", userID).
		Where("revoked_at IS NULL").
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to read refresh tokens").
			WithCode(errors.CodeInternal)
	}
	if len(live) <= MaxActiveTokensPerUser {
		return nil
	}
	now := s.clock.Now()
	for _, stale := range live[MaxActiveTokensPerUser:] {
		_, err := s.db.NewUpdate().
			Model((*RefreshToken)(nil)).
			Set("revoked_at = ?", now).
			Where("id = ?", stale.ID).
			Exec(ctx)
		if err != nil {
			return errors.Wrap(err, errors.CategoryInternal, "failed to evict refresh token").
				WithCode(errors.CodeInternal)
		}
	}
	return nil
}
