package services

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"

	"matchwire/dispatch"
	"matchwire/domain"
	"matchwire/entitlement"
	"matchwire/events"
	"matchwire/live"
	"matchwire/moderation"
	"matchwire/repositories"
	"matchwire/resolver"
)

// Full path: mutual interest, thread creation under a bounded plan, an
// offline recipient, and the dispatcher turning the emitted event into a
// stored in-app notification.
func Test_SendMessage_OfflineRecipientGetsInAppNotification(t *testing.T) {
	req := require.New(t)
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	req.NoError(err)
	t.Cleanup(func() { _ = db.Close() })
	log := slog.Default()

	censored, err := moderation.LoadCensoredWords()
	req.NoError(err)
	moderator, err := moderation.NewModerator(censored.Words, '*')
	req.NoError(err)

	accounts := repositories.NewAccountRepository(db)
	interests := repositories.NewInterestRepository(db)
	usage := repositories.NewUsageRepository(db)
	notifications := repositories.NewNotificationRepository(db, log)

	planLookup := func(context.Context, domain.AccountID) (string, error) { return "silver", nil }
	entitlements := entitlement.NewService(entitlement.DefaultPlans(), planLookup, usage)
	registry := live.NewRegistry(log)
	bus := events.NewBus(log)

	service := NewChatService(
		repositories.NewThreadRepository(db, log),
		repositories.NewMessageRepository(db, log),
		resolver.NewParticipantResolver(accounts, log),
		entitlements,
		interests,
		moderation.NewPipeline(moderator, log),
		registry,
		bus,
		log,
	)

	queue := dispatch.NewQueue()
	dispatcher := dispatch.NewDispatcher(dispatch.Config{
		Tick:         time.Hour, // never ticks during the test
		SendTimeout:  time.Second,
		FlushTimeout: time.Second,
	}, queue,
		repositories.NewPreferenceRepository(db),
		dispatch.NewTemplateStore(),
		notifications,
		dispatch.NewLogEmailSender(log),
		dispatch.NewLivePushSender(registry),
		log,
	)
	bus.Subscribe(dispatcher.HandleEvent)

	req.NoError(accounts.SaveAccount(domain.Account{ID: "riya", Role: domain.RoleSelf}))
	req.NoError(accounts.SaveAccount(domain.Account{ID: "arjun", Role: domain.RoleSelf}))
	req.NoError(interests.Save("riya", "arjun", repositories.InterestAccepted))
	req.NoError(interests.Save("arjun", "riya", repositories.InterestAccepted))

	ctx := context.Background()
	riya := domain.AccountID("riya")
	thread, created, err := service.CreateThread(ctx, []domain.AccountID{"riya", "arjun"}, &riya)
	req.NoError(err)
	req.True(created)

	message, err := service.SendMessage(ctx, SendMessageCommand{
		ActorID:  "riya",
		ThreadID: &thread.ID,
		Content:  "Hello",
	})
	req.NoError(err)
	req.False(message.Delivered)

	// new_message is HIGH priority, so delivery waits for a tick.
	dispatcher.Flush(ctx)

	rows, err := notifications.ListRecent("arjun", 10)
	req.NoError(err)
	req.Len(rows, 1)
	req.Equal(domain.EventNewMessage, rows[0].Type)
	req.Equal(message.ID.String(), rows[0].Metadata["messageId"])

	// The sender got nothing.
	senderRows, err := notifications.ListRecent("riya", 10)
	req.NoError(err)
	req.Empty(senderRows)
}
