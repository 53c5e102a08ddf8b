package session

import (
	"context"
	"time"
)

// MaxActiveTokensPerUser caps how many refresh tokens a single user can
// hold. Tracking one more evicts the oldest, which logs out the user's
// least recently refreshed device.
const MaxActiveTokensPerUser = 16

// RevocationStore is the authority on refresh token validity. Tokens are
// addressed by their jti, the token string itself never reaches the store.
//
// CheckAndRevoke is the rotation primitive: it must atomically consume an
// active token so that under concurrent use exactly one caller wins and
// every other caller gets ErrTokenRevoked.
type RevocationStore interface {
	// Track registers a freshly minted token id as active until expiresAt.
	Track(ctx context.Context, userID, tokenID string, expiresAt time.Time) error
	// CheckAndRevoke consumes an active token id. It returns
	// ErrTokenRevoked when the id is unknown, expired, or already consumed.
	CheckAndRevoke(ctx context.Context, userID, tokenID string) error
	// Revoke marks a token id inactive. Revoking an unknown or already
	// revoked id is not an error.
	Revoke(ctx context.Context, userID, tokenID string) error
	// RevokeAll invalidates every active token id the user holds.
	RevokeAll(ctx context.Context, userID string) error
	// IsActive reports whether a token id is still usable.
	IsActive(ctx context.Context, userID, tokenID string) (bool, error)
}

// RotationLinker is an optional extension of RevocationStore. Stores
// that keep revoked rows around implement it to record which token
// superseded a consumed one, so a rotation chain can be walked when
// investigating a stolen token.
type RotationLinker interface {
	// LinkRotation marks newTokenID as the successor of oldTokenID.
	LinkRotation(ctx context.Context, userID, oldTokenID, newTokenID string) error
}
