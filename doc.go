// Package session issues, rotates, and revokes the token pairs that back
// cookie-based user and guest sessions.
//
// Token model:
//   - Access tokens are short-lived, self-contained JWTs that expire at the
//     end of the issuing day. Decoding is purely cryptographic; no store
//     lookup is required to trust one.
//   - Refresh tokens are long-lived and opaque to clients. Their validity is
//     authoritative only through the RevocationStore, and they rotate on
//     every use: refreshing with a token revokes it and registers a new one,
//     so a replayed refresh token always fails.
//
// Guest sessions:
//   - Anonymous visitors get a browser-scoped identity and an access-token
//     only credential. Guest identities never touch the revocation store.
//     Once a guest signs up or verifies an account, UpgradeGuestToUser
//     bridges their browser-scoped resources into the new account; migration
//     failures are logged and swallowed so authentication never depends on
//     data migration.
//
// Impersonation:
//   - ImpersonationGuard lets operators with the impersonation capability
//     obtain a session for another account. The audit record is written
//     before tokens are issued and a failed audit write aborts the call.
//
// Activity sinks:
//   - ActivitySink is a light-weight best-effort emitter for login, refresh,
//     logout, guest, and lifecycle events. Sink errors are logged, never
//     propagated, so telemetry cannot block authentication.
package session
