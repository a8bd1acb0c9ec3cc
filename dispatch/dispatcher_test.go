package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"matchwire/contract"
	"matchwire/domain"
	"matchwire/mocks"
)

type dispatcherFixture struct {
	dispatcher *Dispatcher
	queue      *Queue
	prefs      *mocks.MockPreferenceStore
	templates  *mocks.MockTemplateRenderer
	inApp      *mocks.MockInAppStore
	email      *mocks.MockEmailSender
	push       *mocks.MockPushSender
}

func newDispatcherFixture(t *testing.T, policies map[domain.Priority]domain.TierPolicy) *dispatcherFixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	f := &dispatcherFixture{
		queue:     NewQueue(),
		prefs:     mocks.NewMockPreferenceStore(ctrl),
		templates: mocks.NewMockTemplateRenderer(ctrl),
		inApp:     mocks.NewMockInAppStore(ctrl),
		email:     mocks.NewMockEmailSender(ctrl),
		push:      mocks.NewMockPushSender(ctrl),
	}
	f.dispatcher = NewDispatcher(Config{
		Tick:         50 * time.Millisecond,
		SendTimeout:  time.Second,
		FlushTimeout: time.Second,
		Policies:     policies,
	}, f.queue, f.prefs, f.templates, f.inApp, f.email, f.push, slog.Default())
	return f
}

func allChannelPrefs() contract.Preferences {
	return contract.Preferences{InAppEnabled: true, EmailEnabled: true, PushEnabled: true}
}

func Test_HandleEvent_ImmediateFlushesSynchronously(t *testing.T) {
	req := require.New(t)
	f := newDispatcherFixture(t, nil)

	f.prefs.EXPECT().GetPreferences(gomock.Any(), domain.AccountID("acc-1")).
		Return(contract.Preferences{InAppEnabled: true}, nil)
	f.templates.EXPECT().Render(domain.EventPaymentFailed, gomock.Any()).
		Return(contract.RenderedTemplate{Title: "Payment failed", Body: "..."}, nil)
	f.inApp.EXPECT().Save(gomock.Any(), gomock.Any()).Return(nil)

	// No ticker is running: delivery can only have happened synchronously.
	f.dispatcher.HandleEvent(domain.NotificationEvent{AccountID: "acc-1", Type: domain.EventPaymentFailed})

	req.Zero(f.queue.Len())
}

func Test_Flush_DeliversImmediateBeforeLow(t *testing.T) {
	req := require.New(t)
	f := newDispatcherFixture(t, nil)
	now := time.Now().UTC()

	// LOW first, IMMEDIATE second: delivery order must still invert.
	f.queue.Enqueue(domain.NotificationEvent{AccountID: "low", Type: domain.EventProfileView}, now)
	f.queue.Enqueue(domain.NotificationEvent{AccountID: "urgent", Type: domain.EventPaymentFailed}, now)

	var delivered []domain.AccountID
	f.prefs.EXPECT().GetPreferences(gomock.Any(), gomock.Any()).
		Return(contract.Preferences{InAppEnabled: true}, nil).Times(2)
	f.templates.EXPECT().Render(gomock.Any(), gomock.Any()).
		Return(contract.RenderedTemplate{Title: "t", Body: "b"}, nil).Times(2)
	f.inApp.EXPECT().Save(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, n domain.InAppNotification) error {
			delivered = append(delivered, n.AccountID)
			return nil
		}).Times(2)

	f.dispatcher.Flush(context.Background())

	req.Equal([]domain.AccountID{"urgent", "low"}, delivered)
}

func Test_Flush_RetriesThenDrops(t *testing.T) {
	req := require.New(t)
	policies := map[domain.Priority]domain.TierPolicy{
		domain.PriorityHigh: {
			Channels:      []domain.Channel{domain.ChannelInApp},
			RetryAttempts: 3,
			RetryDelay:    time.Minute,
		},
	}
	f := newDispatcherFixture(t, policies)

	now := time.Now().UTC()
	f.dispatcher.now = func() time.Time { return now }

	f.prefs.EXPECT().GetPreferences(gomock.Any(), gomock.Any()).
		Return(contract.Preferences{InAppEnabled: true}, nil).Times(3)
	f.templates.EXPECT().Render(gomock.Any(), gomock.Any()).
		Return(contract.RenderedTemplate{Title: "t", Body: "b"}, nil).Times(3)
	f.inApp.EXPECT().Save(gomock.Any(), gomock.Any()).
		Return(fmt.Errorf("store unavailable")).Times(3)

	f.queue.Enqueue(domain.NotificationEvent{AccountID: "acc-1", Type: domain.EventNewMessage}, now)

	// Each flush consumes one attempt once the item is due again.
	for attempt := 0; attempt < 3; attempt++ {
		f.dispatcher.Flush(context.Background())
		now = now.Add(2 * time.Minute)
	}

	// Attempt budget exhausted: the item is gone for good.
	req.Zero(f.queue.Len())
	f.dispatcher.Flush(context.Background())
	req.Zero(f.queue.Len())
}

func Test_Flush_PartialFailureDoesNotResendSucceededChannel(t *testing.T) {
	req := require.New(t)
	policies := map[domain.Priority]domain.TierPolicy{
		domain.PriorityImmediate: {
			Channels:      []domain.Channel{domain.ChannelInApp, domain.ChannelEmail},
			RetryAttempts: 2,
			RetryDelay:    time.Minute,
		},
	}
	f := newDispatcherFixture(t, policies)

	now := time.Now().UTC()
	f.dispatcher.now = func() time.Time { return now }

	f.prefs.EXPECT().GetPreferences(gomock.Any(), gomock.Any()).
		Return(allChannelPrefs(), nil).Times(2)
	f.templates.EXPECT().Render(gomock.Any(), gomock.Any()).
		Return(contract.RenderedTemplate{Title: "t", Body: "b", EmailSubject: "s", EmailBody: "eb"}, nil).Times(2)

	// Email succeeds on the first attempt, in-app fails once then recovers.
	// The email channel must be attempted exactly once.
	f.email.EXPECT().SendEmail(gomock.Any(), gomock.Any(), "s", "eb").Return(nil).Times(1)
	gomock.InOrder(
		f.inApp.EXPECT().Save(gomock.Any(), gomock.Any()).Return(fmt.Errorf("flaky")),
		f.inApp.EXPECT().Save(gomock.Any(), gomock.Any()).Return(nil),
	)

	f.queue.Enqueue(domain.NotificationEvent{AccountID: "acc-1", Type: domain.EventPaymentFailed}, now)

	f.dispatcher.Flush(context.Background())
	req.Equal(1, f.queue.Len())

	now = now.Add(2 * time.Minute)
	f.dispatcher.Flush(context.Background())
	req.Zero(f.queue.Len())
}

func Test_Flush_ChannelGatedByPreferencesAndTier(t *testing.T) {
	req := require.New(t)
	policies := map[domain.Priority]domain.TierPolicy{
		domain.PriorityHigh: {
			Channels:      []domain.Channel{domain.ChannelInApp, domain.ChannelPush},
			RetryAttempts: 1,
			RetryDelay:    time.Minute,
		},
	}
	f := newDispatcherFixture(t, policies)
	now := time.Now().UTC()

	// Push disabled by the user, email not in the tier: only in-app fires.
	f.prefs.EXPECT().GetPreferences(gomock.Any(), gomock.Any()).
		Return(contract.Preferences{InAppEnabled: true, EmailEnabled: true}, nil)
	f.templates.EXPECT().Render(gomock.Any(), gomock.Any()).
		Return(contract.RenderedTemplate{Title: "t", Body: "b"}, nil)
	f.inApp.EXPECT().Save(gomock.Any(), gomock.Any()).Return(nil)

	f.queue.Enqueue(domain.NotificationEvent{AccountID: "acc-1", Type: domain.EventNewMessage}, now)
	f.dispatcher.Flush(context.Background())

	req.Zero(f.queue.Len())
}

func Test_Run_PeriodicTickDelivers(t *testing.T) {
	req := require.New(t)
	f := newDispatcherFixture(t, nil)

	delivered := make(chan struct{}, 1)
	f.prefs.EXPECT().GetPreferences(gomock.Any(), gomock.Any()).
		Return(contract.Preferences{InAppEnabled: true}, nil)
	f.templates.EXPECT().Render(gomock.Any(), gomock.Any()).
		Return(contract.RenderedTemplate{Title: "t", Body: "b"}, nil)
	f.inApp.EXPECT().Save(gomock.Any(), gomock.Any()).
		DoAndReturn(func(context.Context, domain.InAppNotification) error {
			delivered <- struct{}{}
			return nil
		})

	f.queue.Enqueue(domain.NotificationEvent{AccountID: "acc-1", Type: domain.EventNewMessage}, time.Now().UTC())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = f.dispatcher.Run(ctx) }()

	select {
	case <-delivered:
	case <-time.After(2 * time.Second):
		t.Fatal("periodic tick never delivered the queued notification")
	}
	req.Eventually(func() bool { return f.queue.Len() == 0 }, time.Second, 10*time.Millisecond)
}
