// Package events provides the in-process publish point decoupling the send
// pipeline from notification dispatch.
//
// The Bus gives best-effort, synchronous fan-out with no delivery, durability
// or retry guarantees. It is not a message broker: events queued downstream
// are lost on process crash.
package events

import (
	"log/slog"
	"sync"

	"matchwire/domain"
)

type Handler func(event domain.NotificationEvent)

// Bus invokes every subscribed handler in registration order. Emit is
// fire-and-forget from the emitter's perspective: handlers must not block
// (the dispatcher's handler only enqueues).
type Bus struct {
	mu       sync.RWMutex
	handlers []Handler
	log      *slog.Logger
}

func NewBus(log *slog.Logger) *Bus {
	return &Bus{log: log}
}

func (b *Bus) Subscribe(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
}

func (b *Bus) Emit(event domain.NotificationEvent) {
	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers))
	copy(handlers, b.handlers)
	b.mu.RUnlock()

	if len(handlers) == 0 {
		b.log.Debug("notification event emitted with no subscribers", "type", event.Type)
	}
	for _, h := range handlers {
		h(event)
	}
}
