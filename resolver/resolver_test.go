package resolver

import (
	"context"
	"log/slog"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"

	"matchwire/domain"
	apperrors "matchwire/errors"
	"matchwire/repositories"
)

func newTestResolver(t *testing.T) (*ParticipantResolver, *repositories.AccountRepository) {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	accounts := repositories.NewAccountRepository(db)
	return NewParticipantResolver(accounts, slog.Default()), accounts
}

func Test_EffectiveAccount_SelfAndCandidateAreIdentity(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	rsv, accounts := newTestResolver(t)

	req.NoError(accounts.SaveAccount(domain.Account{ID: "self-1", Role: domain.RoleSelf}))
	req.NoError(accounts.SaveAccount(domain.Account{ID: "cand-1", Role: domain.RoleCandidate}))

	resolved, err := rsv.EffectiveAccount(ctx, "self-1")
	req.NoError(err)
	req.Equal(domain.AccountID("self-1"), resolved)

	resolved, err = rsv.EffectiveAccount(ctx, "cand-1")
	req.NoError(err)
	req.Equal(domain.AccountID("cand-1"), resolved)
}

func Test_EffectiveAccount_ParentResolvesThroughLink(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	rsv, accounts := newTestResolver(t)

	req.NoError(accounts.SaveAccount(domain.Account{ID: "parent-1", Role: domain.RoleParent}))
	req.NoError(accounts.SaveLink(domain.CandidateLink{
		ParentID: "parent-1", ProfileID: "profile-a", OwnerAccountID: "cand-1", Active: true,
	}))

	resolved, err := rsv.EffectiveAccount(ctx, "parent-1")
	req.NoError(err)
	req.Equal(domain.AccountID("cand-1"), resolved)
}

func Test_EffectiveAccount_GuardianWithoutLinkFailsClosed(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	rsv, accounts := newTestResolver(t)

	req.NoError(accounts.SaveAccount(domain.Account{ID: "guard-1", Role: domain.RoleGuardian}))

	_, err := rsv.EffectiveAccount(ctx, "guard-1")
	req.ErrorIs(err, apperrors.ErrNoLinkedProfile)
}

func Test_ProfilesForAccounts_PartialFailureYieldsNil(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	rsv, accounts := newTestResolver(t)

	// self account with a profile
	req.NoError(accounts.SaveAccount(domain.Account{ID: "self-1", Role: domain.RoleSelf}))
	req.NoError(accounts.SaveProfile(domain.Profile{ID: "p-1", AccountID: "self-1", DisplayName: "Asha"}))

	// parent resolving through a link to a profiled candidate
	req.NoError(accounts.SaveAccount(domain.Account{ID: "parent-1", Role: domain.RoleParent}))
	req.NoError(accounts.SaveAccount(domain.Account{ID: "cand-1", Role: domain.RoleCandidate}))
	req.NoError(accounts.SaveProfile(domain.Profile{ID: "p-2", AccountID: "cand-1", DisplayName: "Ravi"}))
	req.NoError(accounts.SaveLink(domain.CandidateLink{
		ParentID: "parent-1", ProfileID: "p-2", OwnerAccountID: "cand-1", Active: true,
	}))

	// guardian with no link, and an unknown account
	req.NoError(accounts.SaveAccount(domain.Account{ID: "guard-1", Role: domain.RoleGuardian}))

	profiles := rsv.ProfilesForAccounts(ctx, []domain.AccountID{"self-1", "parent-1", "guard-1", "ghost"})
	req.Len(profiles, 4)
	req.NotNil(profiles["self-1"])
	req.Equal("Asha", profiles["self-1"].DisplayName)
	req.NotNil(profiles["parent-1"])
	req.Equal("Ravi", profiles["parent-1"].DisplayName)
	req.Nil(profiles["guard-1"])
	req.Nil(profiles["ghost"])
}
