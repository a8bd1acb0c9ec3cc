package dispatch

import (
	"context"
	"fmt"
	"log/slog"

	"matchwire/contract"
	"matchwire/domain"
)

// LivePushSender delivers push notifications over the live transport. A
// recipient with no open session cannot receive a push, that is an error so
// the dispatcher can retry once they reconnect.
type LivePushSender struct {
	live contract.LiveTransport
}

func NewLivePushSender(live contract.LiveTransport) *LivePushSender {
	return &LivePushSender{live: live}
}

func (s *LivePushSender) SendPush(_ context.Context, accountID domain.AccountID, title, body string, metadata map[string]string) error {
	if !s.live.IsOnline(accountID) {
		return fmt.Errorf("account %s has no live session", accountID)
	}
	s.live.PushToAccount(accountID, "notification:push", map[string]any{
		"title":    title,
		"body":     body,
		"metadata": metadata,
	})
	return nil
}

// LogEmailSender records outbound mail instead of talking to a provider.
// The real gateway sits behind contract.EmailSender in production deployments.
type LogEmailSender struct {
	log *slog.Logger
}

func NewLogEmailSender(log *slog.Logger) *LogEmailSender {
	return &LogEmailSender{log: log}
}

func (s *LogEmailSender) SendEmail(_ context.Context, accountID domain.AccountID, subject, _ string) error {
	s.log.Info("email queued", "accountId", accountID, "subject", subject)
	return nil
}
