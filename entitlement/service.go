// Package entitlement evaluates plan-derived permissions and quotas for
// messaging actions. Plans live in a static table; usage counters persist in
// the usage repository.
package entitlement

import (
	"context"
	"time"

	"matchwire/contract"
	"matchwire/domain"
	apperrors "matchwire/errors"
	"matchwire/repositories"
)

// Plan describes one subscription tier's messaging feature.
type Plan struct {
	Name      string
	Messaging contract.MessagingFeature
}

// DefaultPlans is the built-in tier table. A real deployment swaps this for
// plan rows owned by the billing system.
func DefaultPlans() map[string]Plan {
	return map[string]Plan{
		"free": {
			Name:      "free",
			Messaging: contract.MessagingFeature{Allowed: false},
		},
		"silver": {
			Name: "silver",
			Messaging: contract.MessagingFeature{
				Allowed:          true,
				NewChatsPerMonth: 5,
				MessagesPerChat:  50,
			},
		},
		"gold": {
			Name:      "gold",
			Messaging: contract.MessagingFeature{Allowed: true, Unlimited: true},
		},
	}
}

// PlanLookup resolves the plan name of an account. Kept as a function type so
// tests and the billing integration can both provide it.
type PlanLookup func(ctx context.Context, accountID domain.AccountID) (string, error)

type Service struct {
	plans map[string]Plan
	look  PlanLookup
	usage *repositories.UsageRepository
	now   func() time.Time
}

func NewService(plans map[string]Plan, look PlanLookup, usage *repositories.UsageRepository) *Service {
	return &Service{plans: plans, look: look, usage: usage, now: time.Now}
}

func (s *Service) Features(ctx context.Context, accountID domain.AccountID) (contract.PlanFeatures, error) {
	name, err := s.look(ctx, accountID)
	if err != nil {
		return contract.PlanFeatures{}, err
	}
	plan, ok := s.plans[name]
	if !ok {
		// Unknown plans get no messaging, same as free.
		return contract.PlanFeatures{}, nil
	}
	return contract.PlanFeatures{Messaging: plan.Messaging}, nil
}

// CanPerform checks one action against the account's plan and current usage.
// Denials are returned as the user-facing sentinel errors so callers can
// surface them verbatim.
func (s *Service) CanPerform(ctx context.Context, accountID domain.AccountID, action contract.EntitlementAction, ec contract.EntitlementContext) error {
	features, err := s.Features(ctx, accountID)
	if err != nil {
		return err
	}
	messaging := features.Messaging

	if !messaging.Allowed {
		return apperrors.ErrMessagingNotAllowed
	}
	if messaging.Unlimited {
		return nil
	}

	switch action {
	case contract.ActionNewChat:
		count, err := s.usage.Count(accountID, string(action), s.now())
		if err != nil {
			return err
		}
		if count >= uint64(messaging.NewChatsPerMonth) {
			return apperrors.ErrChatLimitExceeded
		}
	case contract.ActionSendMessage:
		if ec.MessagesSent >= messaging.MessagesPerChat {
			return apperrors.ErrMessageLimitExceeded
		}
	}
	return nil
}

func (s *Service) IncrementUsage(_ context.Context, accountID domain.AccountID, action contract.EntitlementAction) error {
	return s.usage.Increment(accountID, string(action), s.now())
}
