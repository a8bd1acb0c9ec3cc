package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"matchwire/contract"
	"matchwire/domain"
	apperrors "matchwire/errors"
	"matchwire/events"
	"matchwire/moderation"
	"matchwire/repositories"
	"matchwire/resolver"
)

// SendMessageCommand carries everything one send needs. ThreadID is
// optional: when nil the thread is found or created from the recipient.
type SendMessageCommand struct {
	ActorID     domain.AccountID
	RecipientID domain.AccountID
	ThreadID    *uuid.UUID
	Content     string
}

// ThreadView pairs a thread with the display profile of the participant
// opposite the requesting account. Profile is nil when unresolvable.
type ThreadView struct {
	Thread  domain.Thread
	Profile *domain.Profile
}

type IChatService interface {
	SendMessage(ctx context.Context, cmd SendMessageCommand) (*domain.Message, error)
	CreateThread(ctx context.Context, participants []domain.AccountID, effective *domain.AccountID) (domain.Thread, bool, error)
	GetThread(ctx context.Context, actorID domain.AccountID, threadID uuid.UUID) (domain.Thread, error)
	ListThreads(ctx context.Context, actorID domain.AccountID, cursor *domain.Cursor, limit int) ([]ThreadView, *domain.Cursor, bool, error)
	ListMessages(ctx context.Context, actorID domain.AccountID, threadID uuid.UUID, cursor *domain.Cursor, limit int) ([]domain.Message, *domain.Cursor, bool, error)
	MarkRead(ctx context.Context, actorID domain.AccountID, threadID uuid.UUID, uptoID *uuid.UUID) (int, error)
}

type ChatService struct {
	threads      repositories.IThreadRepository
	messages     repositories.IMessageRepository
	participants *resolver.ParticipantResolver
	entitlements contract.Entitlements
	interests    contract.InterestChecker
	pipeline     *moderation.Pipeline
	live         contract.LiveTransport
	bus          *events.Bus
	log          *slog.Logger

	now func() time.Time
}

func NewChatService(
	threads repositories.IThreadRepository,
	messages repositories.IMessageRepository,
	participants *resolver.ParticipantResolver,
	entitlements contract.Entitlements,
	interests contract.InterestChecker,
	pipeline *moderation.Pipeline,
	live contract.LiveTransport,
	bus *events.Bus,
	log *slog.Logger,
) *ChatService {
	return &ChatService{
		threads:      threads,
		messages:     messages,
		participants: participants,
		entitlements: entitlements,
		interests:    interests,
		pipeline:     pipeline,
		live:         live,
		bus:          bus,
		log:          log,
		now:          time.Now,
	}
}

// SendMessage runs the full send pipeline. Every gate before Append can
// abort the send with nothing written; failures after Append (live push,
// usage bump) are logged and never fail the call.
func (s *ChatService) SendMessage(ctx context.Context, cmd SendMessageCommand) (*domain.Message, error) {
	sender, err := s.participants.EffectiveAccount(ctx, cmd.ActorID)
	if err != nil {
		return nil, err
	}

	thread, recipient, err := s.resolveThread(ctx, sender, cmd)
	if err != nil {
		return nil, err
	}

	sent, err := s.messages.CountFrom(thread.ID, sender)
	if err != nil {
		return nil, err
	}
	err = s.entitlements.CanPerform(ctx, sender, contract.ActionSendMessage, contract.EntitlementContext{
		ThreadID:     thread.ID.String(),
		MessagesSent: sent,
	})
	if err != nil {
		return nil, err
	}

	verdict := s.pipeline.Check(cmd.Content)
	if verdict.Blocked {
		return nil, &apperrors.MessageBlockedError{
			Violation: verdict.Violation,
			Reason:    verdict.Reason,
		}
	}
	var metadata map[string]string
	if verdict.Flagged {
		metadata = map[string]string{domain.MetadataModerationKey: domain.MetadataModerationFlagged}
	}

	delivered := s.live.IsOnline(recipient)
	message := domain.NewMessage(thread.ID, sender, recipient, verdict.Content, metadata, delivered, s.now().UTC())
	if err := s.messages.Append(message); err != nil {
		return nil, err
	}
	if err := s.threads.Touch(thread.ID, message.CreatedAt); err != nil {
		s.log.Error("touch thread after append", "threadId", thread.ID, "error", err)
	}

	s.live.PushToAccount(recipient, "message:new", message)
	if delivered {
		s.live.PushToAccount(sender, "message:delivered", map[string]string{
			"threadId":  thread.ID.String(),
			"messageId": message.ID.String(),
		})
	}

	s.bus.Emit(domain.NotificationEvent{
		AccountID: recipient,
		Type:      domain.EventNewMessage,
		Metadata: map[string]string{
			"threadId":  thread.ID.String(),
			"messageId": message.ID.String(),
			"senderId":  string(sender),
		},
	})

	if err := s.entitlements.IncrementUsage(ctx, sender, contract.ActionSendMessage); err != nil {
		s.log.Error("increment send usage", "accountId", sender, "error", err)
	}
	return &message, nil
}

// resolveThread loads and validates the target thread, or finds/creates one
// from the recipient when no thread id was given.
func (s *ChatService) resolveThread(ctx context.Context, sender domain.AccountID, cmd SendMessageCommand) (domain.Thread, domain.AccountID, error) {
	if cmd.ThreadID != nil {
		thread, err := s.threads.Get(*cmd.ThreadID)
		if err != nil {
			return domain.Thread{}, "", err
		}
		if !thread.HasParticipant(sender) {
			return domain.Thread{}, "", apperrors.ErrNotAParticipant
		}
		return thread, thread.Other(sender), nil
	}

	recipient, err := s.participants.EffectiveAccount(ctx, cmd.RecipientID)
	if err != nil {
		return domain.Thread{}, "", err
	}
	thread, _, err := s.threads.FindOrCreate(sender, recipient)
	if err != nil {
		return domain.Thread{}, "", err
	}
	return thread, recipient, nil
}

// CreateThread opens (or returns) the thread between the first two effective
// participants. The new-chat quota is charged to the initiator: the effective
// account when supplied, the second participant otherwise. The boolean
// reports whether the thread was newly created.
func (s *ChatService) CreateThread(ctx context.Context, participants []domain.AccountID, effective *domain.AccountID) (domain.Thread, bool, error) {
	if len(participants) < 2 {
		return domain.Thread{}, false, apperrors.ErrTwoParticipants
	}

	first, err := s.participants.EffectiveAccount(ctx, participants[0])
	if err != nil {
		return domain.Thread{}, false, err
	}
	second, err := s.participants.EffectiveAccount(ctx, participants[1])
	if err != nil {
		return domain.Thread{}, false, err
	}

	initiator := second
	if effective != nil {
		initiator, err = s.participants.EffectiveAccount(ctx, *effective)
		if err != nil {
			return domain.Thread{}, false, err
		}
	}

	mutual, err := s.interests.HasMutualAccepted(ctx, first, second)
	if err != nil {
		return domain.Thread{}, false, err
	}
	if !mutual {
		return domain.Thread{}, false, apperrors.ErrMutualMatchRequired
	}

	if err := s.entitlements.CanPerform(ctx, initiator, contract.ActionNewChat, contract.EntitlementContext{}); err != nil {
		return domain.Thread{}, false, err
	}

	thread, created, err := s.threads.FindOrCreate(first, second)
	if err != nil {
		return domain.Thread{}, false, err
	}
	if created {
		if err := s.entitlements.IncrementUsage(ctx, initiator, contract.ActionNewChat); err != nil {
			s.log.Error("increment new chat usage", "accountId", initiator, "error", err)
		}
	}
	return thread, created, nil
}

func (s *ChatService) GetThread(ctx context.Context, actorID domain.AccountID, threadID uuid.UUID) (domain.Thread, error) {
	actor, err := s.participants.EffectiveAccount(ctx, actorID)
	if err != nil {
		return domain.Thread{}, err
	}
	thread, err := s.threads.Get(threadID)
	if err != nil {
		return domain.Thread{}, err
	}
	if !thread.HasParticipant(actor) {
		return domain.Thread{}, apperrors.ErrNotAParticipant
	}
	return thread, nil
}

// ListThreads pages the actor's inbox newest-first and decorates each thread
// with the other participant's profile preview.
func (s *ChatService) ListThreads(ctx context.Context, actorID domain.AccountID, cursor *domain.Cursor, limit int) ([]ThreadView, *domain.Cursor, bool, error) {
	actor, err := s.participants.EffectiveAccount(ctx, actorID)
	if err != nil {
		return nil, nil, false, err
	}
	threads, next, hasMore, err := s.threads.ListByAccount(actor, cursor, limit)
	if err != nil {
		return nil, nil, false, err
	}

	others := lo.Map(threads, func(t domain.Thread, _ int) domain.AccountID {
		return t.Other(actor)
	})
	profiles := s.participants.ProfilesForAccounts(ctx, others)

	views := lo.Map(threads, func(t domain.Thread, _ int) ThreadView {
		return ThreadView{Thread: t, Profile: profiles[t.Other(actor)]}
	})
	return views, next, hasMore, nil
}

func (s *ChatService) ListMessages(ctx context.Context, actorID domain.AccountID, threadID uuid.UUID, cursor *domain.Cursor, limit int) ([]domain.Message, *domain.Cursor, bool, error) {
	actor, err := s.participants.EffectiveAccount(ctx, actorID)
	if err != nil {
		return nil, nil, false, err
	}
	thread, err := s.threads.Get(threadID)
	if err != nil {
		return nil, nil, false, err
	}
	if !thread.HasParticipant(actor) {
		return nil, nil, false, apperrors.ErrNotAParticipant
	}
	return s.messages.List(threadID, cursor, limit)
}

// MarkRead flips unread incoming messages up to uptoID (inclusive) and, when
// anything changed, pushes a read receipt to the other participant.
func (s *ChatService) MarkRead(ctx context.Context, actorID domain.AccountID, threadID uuid.UUID, uptoID *uuid.UUID) (int, error) {
	actor, err := s.participants.EffectiveAccount(ctx, actorID)
	if err != nil {
		return 0, err
	}
	thread, err := s.threads.Get(threadID)
	if err != nil {
		return 0, err
	}
	if !thread.HasParticipant(actor) {
		return 0, apperrors.ErrNotAParticipant
	}

	count, err := s.messages.MarkRead(threadID, actor, uptoID)
	if err != nil {
		return 0, err
	}
	if count > 0 {
		s.live.PushToAccount(thread.Other(actor), "message:read", map[string]any{
			"threadId": threadID.String(),
			"readerId": string(actor),
			"count":    count,
		})
	}
	return count, nil
}
