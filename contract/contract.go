//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"reflect"

	"matchwire/domain"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

type WorkerName string

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// Sink receives live events for one connected client.
type Sink interface {
	Consume(event string, payload any) error
}

// LiveTransport tracks connected clients and pushes events to them.
// IsOnline is a point-in-time check, not a delivery guarantee.
type LiveTransport interface {
	IsOnline(accountID domain.AccountID) bool
	PushToAccount(accountID domain.AccountID, event string, payload any)
}

// EntitlementAction names a quota-gated operation.
type EntitlementAction string

const (
	ActionNewChat     EntitlementAction = "new_chat"
	ActionSendMessage EntitlementAction = "send_message"
)

// MessagingFeature is the plan shape for messaging: disabled, unlimited, or
// bounded per-month/per-chat quotas.
type MessagingFeature struct {
	Allowed          bool
	Unlimited        bool
	NewChatsPerMonth int
	MessagesPerChat  int
}

type PlanFeatures struct {
	Messaging MessagingFeature
}

// EntitlementContext carries the counters an entitlement decision needs.
type EntitlementContext struct {
	ThreadID     string
	MessagesSent int
}

// Entitlements evaluates plan-derived permissions and quotas.
type Entitlements interface {
	CanPerform(ctx context.Context, accountID domain.AccountID, action EntitlementAction, ec EntitlementContext) error
	IncrementUsage(ctx context.Context, accountID domain.AccountID, action EntitlementAction) error
	Features(ctx context.Context, accountID domain.AccountID) (PlanFeatures, error)
}

// Preferences are per-user channel opt-in flags.
type Preferences struct {
	InAppEnabled bool
	EmailEnabled bool
	PushEnabled  bool
}

func (p Preferences) ChannelEnabled(c domain.Channel) bool {
	switch c {
	case domain.ChannelInApp:
		return p.InAppEnabled
	case domain.ChannelEmail:
		return p.EmailEnabled
	case domain.ChannelPush:
		return p.PushEnabled
	}
	return false
}

type PreferenceStore interface {
	GetPreferences(ctx context.Context, accountID domain.AccountID) (Preferences, error)
}

// RenderedTemplate is the notification copy for one event.
type RenderedTemplate struct {
	Title        string
	Body         string
	EmailSubject string
	EmailBody    string
}

type TemplateRenderer interface {
	Render(eventType domain.EventType, metadata map[string]string) (RenderedTemplate, error)
}

// Delivery transports. Each may fail independently of the others.
type EmailSender interface {
	SendEmail(ctx context.Context, accountID domain.AccountID, subject, body string) error
}

type PushSender interface {
	SendPush(ctx context.Context, accountID domain.AccountID, title, body string, metadata map[string]string) error
}

// InAppStore persists the in-app channel rows.
type InAppStore interface {
	Save(ctx context.Context, n domain.InAppNotification) error
}

// InterestChecker reports whether a reciprocal accepted interest exists
// between two accounts, in either direction.
type InterestChecker interface {
	HasMutualAccepted(ctx context.Context, a, b domain.AccountID) (bool, error)
}
