package domain

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventNewMessage       EventType = "new_message"
	EventProfileView      EventType = "profile_view"
	EventInterestReceived EventType = "interest_received"
	EventInterestAccepted EventType = "interest_accepted"
	EventPaymentFailed    EventType = "payment_failed"
	EventPlanExpiring     EventType = "plan_expiring"
)

// Priority controls dispatch order, channel set, and retry budget.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityHigh
	PriorityImmediate
)

func (p Priority) String() string {
	switch p {
	case PriorityImmediate:
		return "immediate"
	case PriorityHigh:
		return "high"
	case PriorityLow:
		return "low"
	}
	return "low"
}

// Rank orders priorities for the queue sort: lower rank dispatches first.
func (p Priority) Rank() int {
	switch p {
	case PriorityImmediate:
		return 0
	case PriorityHigh:
		return 1
	case PriorityLow:
		return 2
	}
	return 2
}

var defaultPriorities = map[EventType]Priority{
	EventNewMessage:       PriorityHigh,
	EventProfileView:      PriorityLow,
	EventInterestReceived: PriorityHigh,
	EventInterestAccepted: PriorityHigh,
	EventPaymentFailed:    PriorityImmediate,
	EventPlanExpiring:     PriorityLow,
}

// DefaultPriorityFor resolves the static per-type priority, falling back to
// PriorityLow for unknown types.
func DefaultPriorityFor(t EventType) Priority {
	if p, ok := defaultPriorities[t]; ok {
		return p
	}
	return PriorityLow
}

// NotificationEvent is the transient event handed to the dispatcher.
// It is never persisted: only the resulting in-app rows are.
type NotificationEvent struct {
	AccountID AccountID
	Type      EventType
	Metadata  map[string]string
	// Priority overrides the per-type default when set.
	Priority *Priority
}

func (e NotificationEvent) EffectivePriority() Priority {
	if e.Priority != nil {
		return *e.Priority
	}
	return DefaultPriorityFor(e.Type)
}

type Channel string

const (
	ChannelInApp Channel = "in_app"
	ChannelEmail Channel = "email"
	ChannelPush  Channel = "push"
)

// TierPolicy configures one priority tier: which channels it may use, how
// many delivery attempts it gets, and the delay between attempts.
type TierPolicy struct {
	Channels      []Channel
	RetryAttempts int
	RetryDelay    time.Duration
}

func (p TierPolicy) AllowsChannel(c Channel) bool {
	for _, ch := range p.Channels {
		if ch == c {
			return true
		}
	}
	return false
}

// DefaultTierPolicies mirrors the production tiers: urgent events reach every
// channel with a tight retry loop, low-priority events stay in-app with a
// patient one.
func DefaultTierPolicies() map[Priority]TierPolicy {
	return map[Priority]TierPolicy{
		PriorityImmediate: {
			Channels:      []Channel{ChannelInApp, ChannelEmail, ChannelPush},
			RetryAttempts: 5,
			RetryDelay:    5 * time.Second,
		},
		PriorityHigh: {
			Channels:      []Channel{ChannelInApp, ChannelPush},
			RetryAttempts: 3,
			RetryDelay:    30 * time.Second,
		},
		PriorityLow: {
			Channels:      []Channel{ChannelInApp},
			RetryAttempts: 2,
			RetryDelay:    2 * time.Minute,
		},
	}
}

// QueuedNotification wraps a NotificationEvent while it waits in the
// dispatcher's in-memory queue. Seq preserves enqueue order inside one
// priority tier. DeliveredOn records channels that already succeeded so a
// retry after a partial failure does not send twice.
type QueuedNotification struct {
	ID            uuid.UUID
	Event         NotificationEvent
	Attempts      int
	NextAttemptAt time.Time
	EnqueuedAt    time.Time
	Seq           uint64
	DeliveredOn   map[Channel]bool
}

// InAppNotification is the persisted in-app channel row.
type InAppNotification struct {
	ID        uuid.UUID
	AccountID AccountID
	Type      EventType
	Title     string
	Body      string
	Metadata  map[string]string
	Read      bool
	CreatedAt time.Time
}
