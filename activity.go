package session

import (
	"context"
	"time"
)

// ActivityEventType enumerates supported activity categories.
type ActivityEventType string

const (
	ActivityEventLoginSuccess         ActivityEventType = "session.login.success"
	ActivityEventLoginFailure         ActivityEventType = "session.login.failure"
	ActivityEventRefreshSuccess       ActivityEventType = "session.refresh.success"
	ActivityEventRefreshReuse         ActivityEventType = "session.refresh.reuse"
	ActivityEventLogout               ActivityEventType = "session.logout"
	ActivityEventGuestCreated         ActivityEventType = "session.guest.created"
	ActivityEventGuestUpgraded        ActivityEventType = "session.guest.upgraded"
	ActivityEventImpersonationSuccess ActivityEventType = "session.impersonation.success"
	ActivityEventImpersonationFailure ActivityEventType = "session.impersonation.failure"
	ActivityEventUserStatusChanged    ActivityEventType = "user.status.changed"
	ActivityEventPasswordResetSuccess ActivityEventType = "session.password.reset"
)

// ActivityEvent captures audit-friendly information about an action.
type ActivityEvent struct {
	EventType  ActivityEventType
	Actor      ActorRef
	UserID     string
	FromStatus UserStatus
	ToStatus   UserStatus
	Metadata   map[string]any
	OccurredAt time.Time
}

// ActivitySink consumes activity events for auditing/telemetry purposes.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

// ActivitySinkFunc adapts a function to the ActivitySink interface.
type ActivitySinkFunc func(ctx context.Context, event ActivityEvent) error

// Record implements ActivitySink.
func (f ActivitySinkFunc) Record(ctx context.Context, event ActivityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

type noopActivitySink struct{}

func (noopActivitySink) Record(context.Context, ActivityEvent) error {
	return nil
}

func normalizeActivitySink(s ActivitySink) ActivitySink {
	if s == nil {
		return noopActivitySink{}
	}
	return s
}
