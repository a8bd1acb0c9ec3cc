// Package dispatch turns notification events into delivered notifications
// across channels, with priority ordering and bounded retries.
package dispatch

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"matchwire/domain"
)

// Queue is the process-wide work list shared by the enqueue path and the
// periodic consumer. All mutation goes through Enqueue, Requeue and
// DrainReady, each of which holds the mutex for the whole operation.
//
// Ordering: items sort by priority tier (IMMEDIATE first); the sort is
// stable and Seq is monotonic, so enqueue order is preserved within a tier.
type Queue struct {
	mu    sync.Mutex
	items []*domain.QueuedNotification
	seq   uint64
}

func NewQueue() *Queue {
	return &Queue{}
}

func (q *Queue) Enqueue(event domain.NotificationEvent, now time.Time) *domain.QueuedNotification {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.seq++
	item := &domain.QueuedNotification{
		ID:            uuid.New(),
		Event:         event,
		NextAttemptAt: now,
		EnqueuedAt:    now,
		Seq:           q.seq,
		DeliveredOn:   make(map[domain.Channel]bool),
	}
	q.items = append(q.items, item)
	q.sortLocked()
	return item
}

// Requeue puts a failed item back with its bumped attempt counter and
// next-attempt time already set by the dispatcher.
func (q *Queue) Requeue(item *domain.QueuedNotification) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, item)
	q.sortLocked()
}

// DrainReady removes and returns every item whose NextAttemptAt has passed,
// in queue order. Items not yet due stay queued.
func (q *Queue) DrainReady(now time.Time) []*domain.QueuedNotification {
	q.mu.Lock()
	defer q.mu.Unlock()

	var ready []*domain.QueuedNotification
	remaining := q.items[:0]
	for _, item := range q.items {
		if !item.NextAttemptAt.After(now) {
			ready = append(ready, item)
			continue
		}
		remaining = append(remaining, item)
	}
	q.items = remaining
	return ready
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue) sortLocked() {
	sort.SliceStable(q.items, func(i, j int) bool {
		ri, rj := q.items[i].Event.EffectivePriority().Rank(), q.items[j].Event.EffectivePriority().Rank()
		if ri != rj {
			return ri < rj
		}
		return q.items[i].Seq < q.items[j].Seq
	})
}
