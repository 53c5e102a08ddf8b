package session

import (
	"context"

	"github.com/goliatone/go-errors"
)

// ImpersonationGuard gates admin impersonation. Issuing a session for
// another user requires an authorized actor and a durable audit record.
// If the audit write fails, no token is issued.
type ImpersonationGuard struct {
	provider     IdentityProvider
	audit        AuditRecorder
	activitySink ActivitySink
	logger       Logger
	clock        Clock
}

// NewImpersonationGuard creates a guard. The audit recorder is mandatory,
// a guard without one refuses every request.
func NewImpersonationGuard(provider IdentityProvider, audit AuditRecorder) *ImpersonationGuard {
	return &ImpersonationGuard{
		provider:     provider,
		audit:        audit,
		activitySink: noopActivitySink{},
		logger:       &defLogger{},
		clock:        SystemClock,
	}
}

// WithActivitySink configures an ActivitySink for emitting impersonation events.
func (g *ImpersonationGuard) WithActivitySink(sink ActivitySink) *ImpersonationGuard {
	g.activitySink = normalizeActivitySink(sink)
	return g
}

// WithLogger overrides the logger.
func (g *ImpersonationGuard) WithLogger(logger Logger) *ImpersonationGuard {
	if logger != nil {
		g.logger = logger
	}
	return g
}

// WithClock overrides the wall clock, mostly for tests.
func (g *ImpersonationGuard) WithClock(clock Clock) *ImpersonationGuard {
	if clock != nil {
		g.clock = clock
	}
	return g
}

// Authorize validates that actor may impersonate the target, records the
// audit trail, and returns the target identity to mint tokens for. The
// audit record is written before any token exists, so a failed audit
// leaves nothing to clean up.
func (g *ImpersonationGuard) Authorize(ctx context.Context, actor Identity, targetID string) (Identity, error) {
	if actor == nil {
		return nil, ErrUnauthorized
	}

	if !CanImpersonate(actor.Role()) {
		g.emit(ctx, ActivityEventImpersonationFailure, actor, targetID, "actor role cannot impersonate")
		return nil, ErrImpersonationDenied.WithMetadata(map[string]any{
			"actor_id":   actor.ID(),
			"actor_role": actor.Role(),
		})
	}

	if targetID == "" || targetID == actor.ID() {
		g.emit(ctx, ActivityEventImpersonationFailure, actor, targetID, "invalid impersonation target")
		return nil, errors.New("invalid impersonation target", errors.CategoryBadInput).
			WithTextCode("INVALID_IMPERSONATION_TARGET").
			WithCode(errors.CodeBadRequest)
	}

	target, err := g.provider.FindIdentityByID(ctx, targetID)
	if err != nil {
		g.emit(ctx, ActivityEventImpersonationFailure, actor, targetID, err.Error())
		if errors.IsNotFound(err) || errors.Is(err, ErrIdentityNotFound) {
			return nil, ErrIdentityNotFound
		}
		return nil, err
	}

	if g.audit == nil {
		g.emit(ctx, ActivityEventImpersonationFailure, actor, targetID, "no audit recorder configured")
		return nil, ErrAuditRequired
	}

	record := AuditRecord{
		Event:      AuditEventAdminLogin,
		ActorID:    actor.ID(),
		TargetID:   target.ID(),
		ClientIP:   ClientIPFromContext(ctx),
		OccurredAt: g.clock.Now(),
	}
	if err := g.audit.Record(ctx, record); err != nil {
		g.logger.Error("impersonation audit write failed: %v", err)
		g.emit(ctx, ActivityEventImpersonationFailure, actor, targetID, err.Error())
		return nil, ErrAuditRequired
	}

	g.emit(ctx, ActivityEventImpersonationSuccess, actor, targetID, "")

	return target, nil
}

func (g *ImpersonationGuard) emit(ctx context.Context, event ActivityEventType, actor Identity, targetID, reason string) {
	meta := map[string]any{"target_id": targetID}
	if reason != "" {
		meta["reason"] = reason
	}
	if ip := ClientIPFromContext(ctx); ip != "" {
		meta["client_ip"] = ip
	}
	err := g.activitySink.Record(ctx, ActivityEvent{
		EventType:  event,
		Actor:      ActorRef{ID: actor.ID(), Type: string(actor.Role())},
		UserID:     targetID,
		Metadata:   meta,
		OccurredAt: g.clock.Now(),
	})
	if err != nil {
		g.logger.Error("activity sink error: %v", err)
	}
}
