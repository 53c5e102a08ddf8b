package session

import (
	"context"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Free tier defaults applied when a user has no active subscription.
const (
	FreePlanName        = "free"
	FreeCharsPerDay     = 5000
	FreeMessagesPerDay  = 5
	FreeSummariesPerDay = 3
)

// Plan describes a subscription's daily allowances.
type Plan struct {
	Name            string `json:"plan"`
	CharsPerDay     int    `json:"char_limit"`
	MessagesPerDay  int    `json:"msg_per_day"`
	SummariesPerDay int    `json:"summary_limit"`
}

// FreePlan returns the default allowances for users without a subscription.
func FreePlan() Plan {
	return Plan{
		Name:            FreePlanName,
		CharsPerDay:     FreeCharsPerDay,
		MessagesPerDay:  FreeMessagesPerDay,
		SummariesPerDay: FreeSummariesPerDay,
	}
}

// UsageSnapshot is what a session reports back to the client alongside
// its identity.
type UsageSnapshot struct {
	Plan               string `json:"plan"`
	CharsPerDay        int    `json:"char_limit"`
	MessagesPerDay     int    `json:"msg_per_day"`
	SummariesPerDay    int    `json:"summary_limit"`
	CharsRemaining     int    `json:"char_remaining"`
	MessagesRemaining  int    `json:"msg_remaining"`
	SummariesRemaining int    `json:"summary_remaining"`
}

// ComputeRemaining derives a snapshot from a plan and today's usage
// counters. Remaining values never go negative.
func ComputeRemaining(plan Plan, charsUsed, messagesUsed, summariesUsed int) UsageSnapshot {
	return UsageSnapshot{
		Plan:               plan.Name,
		CharsPerDay:        plan.CharsPerDay,
		MessagesPerDay:     plan.MessagesPerDay,
		SummariesPerDay:    plan.SummariesPerDay,
		CharsRemaining:     remaining(plan.CharsPerDay, charsUsed),
		MessagesRemaining:  remaining(plan.MessagesPerDay, messagesUsed),
		SummariesRemaining: remaining(plan.SummariesPerDay, summariesUsed),
	}
}

func remaining(allowance, used int) int {
	if used >= allowance {
		return 0
	}
	return allowance - used
}

// UsageCounter tracks per subject daily usage.
type UsageCounter interface {
	// IncrementBy adds to today's counter for a kind of usage and
	// returns the new value. Messages and summaries count one at a
	// time, chars arrive in bulk.
	IncrementBy(ctx context.Context, subjectID, kind string, amount int) (int, error)
	// Used returns today's counter for a kind of usage.
	Used(ctx context.Context, subjectID, kind string) (int, error)
}

// Usage kinds tracked against daily allowances.
const (
	UsageKindChar    = "char"
	UsageKindMessage = "message"
	UsageKindSummary = "summary"
)

// MemoryUsageCounter keeps day scoped counters in process memory. Entries
// expire shortly after the day they count so the cache stays small.
type MemoryUsageCounter struct {
	cache *gocache.Cache
	clock Clock
}

// NewMemoryUsageCounter creates a counter. Counters survive slightly past
// midnight so late requests still see yesterday's totals.
func NewMemoryUsageCounter() *MemoryUsageCounter {
	return &MemoryUsageCounter{
		cache: gocache.New(25*time.Hour, time.Hour),
		clock: SystemClock,
	}
}

// WithClock overrides the wall clock, mostly for tests.
func (c *MemoryUsageCounter) WithClock(clock Clock) *MemoryUsageCounter {
	if clock != nil {
		c.clock = clock
	}
	return c
}

// Increment bumps a counter by one.
func (c *MemoryUsageCounter) Increment(ctx context.Context, subjectID, kind string) (int, error) {
	return c.IncrementBy(ctx, subjectID, kind, 1)
}

// IncrementBy implements UsageCounter.
func (c *MemoryUsageCounter) IncrementBy(_ context.Context, subjectID, kind string, amount int) (int, error) {
	key := c.key(subjectID, kind)
	// Add is a no-op when the key already exists
	_ = c.cache.Add(key, 0, gocache.DefaultExpiration)
	n, err := c.cache.IncrementInt(key, amount)
	if err != nil {
		return 0, err
	}
	return n, nil
}

// Used implements UsageCounter.
func (c *MemoryUsageCounter) Used(_ context.Context, subjectID, kind string) (int, error) {
	if v, ok := c.cache.Get(c.key(subjectID, kind)); ok {
		if n, ok := v.(int); ok {
			return n, nil
		}
	}
	return 0, nil
}

func (c *MemoryUsageCounter) key(subjectID, kind string) string {
	return fmt.Sprintf("%s:%s:%s", dayKey(c.clock.Now()), subjectID, kind)
}

// UsageLimiter combines a plan source and a usage counter into the
// snapshot the session endpoints return.
type UsageLimiter struct {
	subscriptions SubscriptionProvider
	counter       UsageCounter
	logger        Logger
}

// NewUsageLimiter creates a limiter. subscriptions may be nil, in which
// case everyone is on the free plan.
func NewUsageLimiter(subscriptions SubscriptionProvider, counter UsageCounter) *UsageLimiter {
	if counter == nil {
		counter = NewMemoryUsageCounter()
	}
	return &UsageLimiter{
		subscriptions: subscriptions,
		counter:       counter,
		logger:        &defLogger{},
	}
}

// WithLogger overrides the logger.
func (l *UsageLimiter) WithLogger(logger Logger) *UsageLimiter {
	if logger != nil {
		l.logger = logger
	}
	return l
}

// PlanFor resolves the active plan for a subject, falling back to the
// free plan when there is no subscription or the lookup fails.
func (l *UsageLimiter) PlanFor(ctx context.Context, subjectID string) Plan {
	if l.subscriptions == nil {
		return FreePlan()
	}
	plan, err := l.subscriptions.ActiveSubscription(ctx, subjectID)
	if err != nil {
		l.logger.Warn("subscription lookup failed, applying free plan: %v", err)
		return FreePlan()
	}
	if plan == nil {
		return FreePlan()
	}
	return *plan
}

// Snapshot reports the subject's plan and today's remaining allowances.
func (l *UsageLimiter) Snapshot(ctx context.Context, subjectID string) UsageSnapshot {
	plan := l.PlanFor(ctx, subjectID)
	chars := l.used(ctx, subjectID, UsageKindChar)
	messages := l.used(ctx, subjectID, UsageKindMessage)
	summaries := l.used(ctx, subjectID, UsageKindSummary)
	return ComputeRemaining(plan, chars, messages, summaries)
}

// Consume records one unit of usage and reports whether the subject is
// still within its allowance.
func (l *UsageLimiter) Consume(ctx context.Context, subjectID, kind string) (bool, error) {
	return l.ConsumeAmount(ctx, subjectID, kind, 1)
}

// ConsumeAmount records a batch of usage, char counts mostly, and
// reports whether the subject is still within its allowance.
func (l *UsageLimiter) ConsumeAmount(ctx context.Context, subjectID, kind string, amount int) (bool, error) {
	plan := l.PlanFor(ctx, subjectID)
	used, err := l.counter.IncrementBy(ctx, subjectID, kind, amount)
	if err != nil {
		return false, err
	}
	switch kind {
	case UsageKindChar:
		return used <= plan.CharsPerDay, nil
	case UsageKindSummary:
		return used <= plan.SummariesPerDay, nil
	default:
		return used <= plan.MessagesPerDay, nil
	}
}

func (l *UsageLimiter) used(ctx context.Context, subjectID, kind string) int {
	n, err := l.counter.Used(ctx, subjectID, kind)
	if err != nil {
		l.logger.Warn("usage counter read failed: %v", err)
		return 0
	}
	return n
}
