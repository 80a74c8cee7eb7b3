package service

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclaw/walletlink/internal/config"
	"github.com/openclaw/walletlink/internal/database"
	apperrors "github.com/openclaw/walletlink/internal/errors"
	"github.com/openclaw/walletlink/internal/model"
	"github.com/openclaw/walletlink/internal/repository"
)

const (
	testStartingBalance = 10
	testReferralCredit  = 200
)

func setupLedger(t *testing.T) (*LedgerService, *database.DB) {
	t.Helper()
	db, err := database.Connect(config.DriverSQLite, filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate(context.Background()))

	svc := NewLedgerService(
		db,
		repository.NewPrincipalRepository(db.DB),
		repository.NewReferralRepository(db.DB),
		LedgerConfig{
			StartingBalance:  testStartingBalance,
			ReferralCredit:   testReferralCredit,
			ReferralLinkBase: "https://t.me/walletlink_bot?start=",
		},
	)
	return svc, db
}

func TestLedgerService_EnsurePrincipal(t *testing.T) {
	svc, _ := setupLedger(t)
	ctx := context.Background()

	created, err := svc.EnsurePrincipal(ctx, 1, "jack", "Jack")
	require.NoError(t, err)
	assert.True(t, created)

	require.NoError(t, svc.SetWalletAddress(ctx, 1, "UQaddr"))

	created, err = svc.EnsurePrincipal(ctx, 1, "jack", "Jack Sparrow")
	require.NoError(t, err)
	assert.False(t, created)

	balance, err := svc.GetBalance(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(testStartingBalance), balance)

	addr, err := svc.GetWalletAddress(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "UQaddr", addr.UnwrapOr(""))

	t.Run("rejects non-positive id", func(t *testing.T) {
		_, err := svc.EnsurePrincipal(ctx, 0, "", "")
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidInput))
	})
}

func TestLedgerService_RegisterReferral(t *testing.T) {
	svc, _ := setupLedger(t)
	ctx := context.Background()

	_, err := svc.EnsurePrincipal(ctx, 1, "referrer", "")
	require.NoError(t, err)
	_, err = svc.EnsurePrincipal(ctx, 2, "referral", "")
	require.NoError(t, err)

	require.NoError(t, svc.RegisterReferral(ctx, 1, 2))

	balance, err := svc.GetBalance(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(testStartingBalance+testReferralCredit), balance)

	stats, err := svc.ReferralStats(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.InvitedCount)
	assert.Equal(t, "https://t.me/walletlink_bot?start=1", stats.Link)

	t.Run("duplicate does not double credit", func(t *testing.T) {
		err := svc.RegisterReferral(ctx, 1, 2)
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidReferral))

		balance, err := svc.GetBalance(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, int64(testStartingBalance+testReferralCredit), balance)

		stats, err := svc.ReferralStats(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, 1, stats.InvitedCount)
	})

	t.Run("second referrer cannot claim the same referral", func(t *testing.T) {
		_, err := svc.EnsurePrincipal(ctx, 3, "other", "")
		require.NoError(t, err)

		err = svc.RegisterReferral(ctx, 3, 2)
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidReferral))

		balance, err := svc.GetBalance(ctx, 3)
		require.NoError(t, err)
		assert.Equal(t, int64(testStartingBalance), balance)
	})
}

func TestLedgerService_RegisterReferralInvalid(t *testing.T) {
	svc, _ := setupLedger(t)
	ctx := context.Background()

	_, err := svc.EnsurePrincipal(ctx, 1, "", "")
	require.NoError(t, err)

	tests := []struct {
		name       string
		referrerID int64
		referralID int64
	}{
		{"self referral", 1, 1},
		{"nonexistent referrer", 99, 1},
		{"nonexistent referral", 1, 98},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := svc.RegisterReferral(ctx, tc.referrerID, tc.referralID)
			assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidReferral), "got %v", err)

			balance, err := svc.GetBalance(ctx, 1)
			require.NoError(t, err)
			assert.Equal(t, int64(testStartingBalance), balance)

			stats, err := svc.ReferralStats(ctx, 1)
			require.NoError(t, err)
			assert.Zero(t, stats.InvitedCount)
		})
	}
}

func TestLedgerService_Onboard(t *testing.T) {
	svc, _ := setupLedger(t)
	ctx := context.Background()

	res, err := svc.Onboard(ctx, OnboardParams{ID: 1, Username: "referrer"})
	require.NoError(t, err)
	assert.Equal(t, OnboardResult{Created: true}, res)

	t.Run("new principal with valid token credits referrer", func(t *testing.T) {
		res, err := svc.Onboard(ctx, OnboardParams{ID: 2, ReferrerToken: "1"})
		require.NoError(t, err)
		assert.Equal(t, OnboardResult{Created: true, Referred: true}, res)

		balance, err := svc.GetBalance(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, int64(testStartingBalance+testReferralCredit), balance)
	})

	t.Run("returning principal never triggers a referral", func(t *testing.T) {
		res, err := svc.Onboard(ctx, OnboardParams{ID: 2, ReferrerToken: "1"})
		require.NoError(t, err)
		assert.Equal(t, OnboardResult{}, res)

		balance, err := svc.GetBalance(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, int64(testStartingBalance+testReferralCredit), balance)
	})

	t.Run("bad token is skipped", func(t *testing.T) {
		for id, token := range map[int64]string{3: "abc", 4: "-5", 5: "77", 6: "6"} {
			res, err := svc.Onboard(ctx, OnboardParams{ID: id, ReferrerToken: token})
			require.NoError(t, err, token)
			assert.Equal(t, OnboardResult{Created: true}, res, token)
		}
	})
}

func TestParseReferrerToken(t *testing.T) {
	id, err := ParseReferrerToken(" 12345 ")
	require.NoError(t, err)
	assert.Equal(t, int64(12345), id)

	id, err = ParseReferrerToken("ref_777")
	require.NoError(t, err)
	assert.Equal(t, int64(777), id)

	for _, token := range []string{"", "ref_", "abc", "0", "-1", "1.5", "99999999999999999999"} {
		_, err := ParseReferrerToken(token)
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidReferral), token)
	}
}

func TestLedgerService_SetWalletAddress(t *testing.T) {
	svc, _ := setupLedger(t)
	ctx := context.Background()

	_, err := svc.EnsurePrincipal(ctx, 1, "", "")
	require.NoError(t, err)

	addr, err := svc.GetWalletAddress(ctx, 1)
	require.NoError(t, err)
	assert.True(t, addr.IsNone())

	require.NoError(t, svc.SetWalletAddress(ctx, 1, "UQfirst"))
	require.NoError(t, svc.SetWalletAddress(ctx, 1, "UQfirst"))
	require.NoError(t, svc.SetWalletAddress(ctx, 1, "UQsecond"))

	addr, err = svc.GetWalletAddress(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "UQsecond", addr.UnwrapOr(""))

	t.Run("unknown principal", func(t *testing.T) {
		err := svc.SetWalletAddress(ctx, 42, "UQfirst")
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeNotFound))
	})

	t.Run("empty address", func(t *testing.T) {
		err := svc.SetWalletAddress(ctx, 1, "")
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeMissingRequired))
	})
}

func TestLedgerService_ConcurrentWalletWrites(t *testing.T) {
	svc, _ := setupLedger(t)
	ctx := context.Background()

	addresses := map[int64]string{1: "UQone", 2: "UQtwo"}
	for id := range addresses {
		_, err := svc.EnsurePrincipal(ctx, id, "", "")
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	for id, addr := range addresses {
		wg.Add(1)
		go func(id int64, addr string) {
			defer wg.Done()
			assert.NoError(t, svc.SetWalletAddress(ctx, id, addr))
		}(id, addr)
	}
	wg.Wait()

	for id, want := range addresses {
		got, err := svc.GetWalletAddress(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, want, got.UnwrapOr(""))
	}
}

func TestLedgerService_SubscribedAndTotals(t *testing.T) {
	svc, _ := setupLedger(t)
	ctx := context.Background()

	_, err := svc.Onboard(ctx, OnboardParams{ID: 1})
	require.NoError(t, err)
	_, err = svc.Onboard(ctx, OnboardParams{ID: 2, ReferrerToken: "1"})
	require.NoError(t, err)
	require.NoError(t, svc.SetSubscribed(ctx, 2, true))

	err = svc.SetSubscribed(ctx, 3, true)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeNotFound))

	p, err := svc.GetPrincipal(ctx, 2)
	require.NoError(t, err)
	assert.True(t, p.Subscribed)

	totals, err := svc.Totals(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), totals.Principals)
	assert.Equal(t, int64(1), totals.Subscribed)
	assert.Equal(t, int64(1), totals.Referrals)
	assert.Equal(t, int64(2*testStartingBalance+testReferralCredit), totals.Balance)

	var exported []model.ReferralEdge
	require.NoError(t, svc.ExportReferrals(ctx, func(e model.ReferralEdge) error {
		exported = append(exported, e)
		return nil
	}))
	require.Len(t, exported, 1)
	assert.Equal(t, int64(1), exported[0].ReferrerID)
	assert.Equal(t, int64(testReferralCredit), exported[0].Credit)

	list, total, err := svc.ListPrincipals(ctx, 10, 0)
	require.NoError(t, err)
	assert.Len(t, list, 2)
	assert.Equal(t, 2, total)
}
