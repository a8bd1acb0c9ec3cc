package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"matchwire/contract"
	"matchwire/domain"
)

// Dispatcher drains the priority queue on a fixed interval and attempts
// delivery per channel. It runs as a supervised worker; HandleEvent is the
// EventBus subscriber and may additionally trigger a synchronous flush for
// IMMEDIATE events.
type Dispatcher struct {
	queue     *Queue
	prefs     contract.PreferenceStore
	templates contract.TemplateRenderer
	inApp     contract.InAppStore
	email     contract.EmailSender
	push      contract.PushSender
	policies  map[domain.Priority]domain.TierPolicy

	tick         time.Duration
	sendTimeout  time.Duration
	flushTimeout time.Duration

	// processing single-flights dispatch runs: a tick or an IMMEDIATE
	// trigger that finds a run in progress is a no-op, not an error.
	processing atomic.Bool

	log *slog.Logger
	now func() time.Time
}

type Config struct {
	Tick         time.Duration
	SendTimeout  time.Duration
	FlushTimeout time.Duration
	Policies     map[domain.Priority]domain.TierPolicy
}

func NewDispatcher(cfg Config, queue *Queue, prefs contract.PreferenceStore, templates contract.TemplateRenderer,
	inApp contract.InAppStore, email contract.EmailSender, push contract.PushSender, log *slog.Logger) *Dispatcher {
	policies := cfg.Policies
	if policies == nil {
		policies = domain.DefaultTierPolicies()
	}
	return &Dispatcher{
		queue:        queue,
		prefs:        prefs,
		templates:    templates,
		inApp:        inApp,
		email:        email,
		push:         push,
		policies:     policies,
		tick:         cfg.Tick,
		sendTimeout:  cfg.SendTimeout,
		flushTimeout: cfg.FlushTimeout,
		log:          log,
		now:          time.Now,
	}
}

// HandleEvent enqueues one event. IMMEDIATE events also flush synchronously
// so urgent notifications do not wait for the next tick; the flush is capped
// by flushTimeout so a slow channel cannot block the caller indefinitely.
func (d *Dispatcher) HandleEvent(event domain.NotificationEvent) {
	item := d.queue.Enqueue(event, d.now())
	d.log.Debug("notification queued",
		"account", item.Event.AccountID,
		"type", item.Event.Type,
		"priority", item.Event.EffectivePriority().String())

	if event.EffectivePriority() == domain.PriorityImmediate {
		ctx, cancel := context.WithTimeout(context.Background(), d.flushTimeout)
		defer cancel()
		d.Flush(ctx)
	}
}

// Run is the periodic dispatch loop.
func (d *Dispatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.log.Debug("Stopping worker")
			return ctx.Err()
		case <-ticker.C:
			d.Flush(ctx)
		}
	}
}

// Flush processes every due item once. Overlapping calls collapse: the
// processing flag makes a second concurrent flush a no-op.
func (d *Dispatcher) Flush(ctx context.Context) {
	if !d.processing.CompareAndSwap(false, true) {
		return
	}
	defer d.processing.Store(false)

	ready := d.queue.DrainReady(d.now())
	for _, item := range ready {
		if ctx.Err() != nil {
			// Shutting down mid-flush: put the rest back untouched.
			d.queue.Requeue(item)
			continue
		}
		if err := d.deliver(ctx, item); err != nil {
			d.handleFailure(item, err)
		}
	}
}

// deliver attempts every eligible channel independently: one channel's
// failure must not block another channel's attempt within the same tick.
// Channels that already succeeded on a previous attempt are skipped, so a
// retry after a partial failure cannot double-send.
func (d *Dispatcher) deliver(ctx context.Context, item *domain.QueuedNotification) error {
	priority := item.Event.EffectivePriority()
	policy := d.policies[priority]

	prefs, err := d.prefs.GetPreferences(ctx, item.Event.AccountID)
	if err != nil {
		return fmt.Errorf("preference fetch: %w", err)
	}

	rendered, err := d.templates.Render(item.Event.Type, item.Event.Metadata)
	if err != nil {
		return fmt.Errorf("template render: %w", err)
	}

	var failures []error
	for _, channel := range []domain.Channel{domain.ChannelInApp, domain.ChannelEmail, domain.ChannelPush} {
		if !policy.AllowsChannel(channel) || !prefs.ChannelEnabled(channel) {
			continue
		}
		if item.DeliveredOn[channel] {
			continue
		}
		if err := d.attemptChannel(ctx, channel, item, rendered); err != nil {
			failures = append(failures, fmt.Errorf("%s: %w", channel, err))
			continue
		}
		item.DeliveredOn[channel] = true
	}
	return errors.Join(failures...)
}

func (d *Dispatcher) attemptChannel(ctx context.Context, channel domain.Channel, item *domain.QueuedNotification, rendered contract.RenderedTemplate) error {
	callCtx, cancel := context.WithTimeout(ctx, d.sendTimeout)
	defer cancel()

	event := item.Event
	switch channel {
	case domain.ChannelInApp:
		// The row id is the queued item's id: a retried save overwrites the
		// same row instead of duplicating it.
		return d.inApp.Save(callCtx, domain.InAppNotification{
			ID:        item.ID,
			AccountID: event.AccountID,
			Type:      event.Type,
			Title:     rendered.Title,
			Body:      rendered.Body,
			Metadata:  event.Metadata,
			CreatedAt: item.EnqueuedAt,
		})
	case domain.ChannelEmail:
		subject, body := rendered.EmailSubject, rendered.EmailBody
		if subject == "" {
			subject = rendered.Title
		}
		if body == "" {
			body = rendered.Body
		}
		return d.email.SendEmail(callCtx, event.AccountID, subject, body)
	case domain.ChannelPush:
		return d.push.SendPush(callCtx, event.AccountID, rendered.Title, rendered.Body, event.Metadata)
	}
	return fmt.Errorf("unknown channel %s", channel)
}

// handleFailure requeues with the tier's delay while the attempt budget
// lasts, then drops the item with a terminal log line. A dropped
// notification is never silently lost without that line.
func (d *Dispatcher) handleFailure(item *domain.QueuedNotification, cause error) {
	priority := item.Event.EffectivePriority()
	policy := d.policies[priority]

	item.Attempts++
	if item.Attempts < policy.RetryAttempts {
		item.NextAttemptAt = d.now().Add(policy.RetryDelay)
		d.queue.Requeue(item)
		d.log.Warn("notification delivery failed, will retry",
			"account", item.Event.AccountID,
			"type", item.Event.Type,
			"attempt", item.Attempts,
			"next_attempt_at", item.NextAttemptAt,
			"error", cause)
		return
	}

	d.log.Error("notification dropped after exhausting retries",
		"account", item.Event.AccountID,
		"type", item.Event.Type,
		"priority", priority.String(),
		"attempts", item.Attempts,
		"error", cause)
}
