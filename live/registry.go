// Package live tracks connected clients and pushes real-time events to them.
package live

import (
	"fmt"
	"log/slog"
	"sync"

	"matchwire/contract"
	"matchwire/domain"
)

// Registry is the in-process session directory. One sink per connected
// account; reconnecting replaces the previous sink.
type Registry struct {
	mu       sync.RWMutex
	sessions map[domain.AccountID]contract.Sink
	log      *slog.Logger
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		sessions: make(map[domain.AccountID]contract.Sink),
		log:      log,
	}
}

// Register attaches a live connection for an account.
func (r *Registry) Register(accountID domain.AccountID, sink contract.Sink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[accountID] = sink
}

// Unregister disconnects an account. Removing a missing session is harmless.
func (r *Registry) Unregister(accountID domain.AccountID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, accountID)
}

// IsOnline is a point-in-time membership check, not a delivery guarantee.
func (r *Registry) IsOnline(accountID domain.AccountID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.sessions[accountID]
	return ok
}

// PushToAccount delivers an event to the account's live connection if one is
// registered. Push failures are logged and swallowed: a dead socket must
// never fail the caller's request.
func (r *Registry) PushToAccount(accountID domain.AccountID, event string, payload any) {
	r.mu.RLock()
	sink, ok := r.sessions[accountID]
	r.mu.RUnlock()

	if !ok {
		return
	}
	if err := sink.Consume(event, payload); err != nil {
		r.log.Warn(fmt.Sprintf("live push failed for account %s", accountID), "event", event, "error", err)
	}
}

// ChannelSink adapts a Go channel into a Sink. Used by tests and by
// long-poll handlers that drain events for one connection.
type ChannelSink struct {
	Events chan SinkEvent
}

type SinkEvent struct {
	Event   string
	Payload any
}

func NewChannelSink(buffer int) *ChannelSink {
	return &ChannelSink{Events: make(chan SinkEvent, buffer)}
}

// Consume never blocks: a full buffer drops the event and reports it, so a
// slow consumer cannot stall the registry.
func (s *ChannelSink) Consume(event string, payload any) error {
	select {
	case s.Events <- SinkEvent{Event: event, Payload: payload}:
		return nil
	default:
		return fmt.Errorf("sink buffer full, dropping event %s", event)
	}
}
