package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclaw/walletlink/internal/model"
)

func TestPrincipalRepository_Create(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewPrincipalRepository(db.DB)
	ctx := context.Background()

	params := model.CreatePrincipalParams{ID: 42, Username: "jack", DisplayName: "Jack", Balance: 10}

	created, err := repo.Create(ctx, params)
	require.NoError(t, err)
	assert.True(t, created)

	t.Run("second create is a no-op", func(t *testing.T) {
		params.Balance = 999
		params.DisplayName = "Other"
		created, err := repo.Create(ctx, params)
		require.NoError(t, err)
		assert.False(t, created)

		p, err := repo.FindByID(ctx, 42)
		require.NoError(t, err)
		assert.Equal(t, int64(10), p.Balance)
		assert.Equal(t, "Jack", p.DisplayName)
		assert.Empty(t, p.WalletAddress)
		assert.False(t, p.Subscribed)
	})

	t.Run("returns nil for missing principal", func(t *testing.T) {
		p, err := repo.FindByID(ctx, 7)
		require.NoError(t, err)
		assert.Nil(t, p)
	})
}

func TestPrincipalRepository_SetWalletAddress(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewPrincipalRepository(db.DB)
	ctx := context.Background()
	_, err := repo.Create(ctx, model.CreatePrincipalParams{ID: 1, Balance: 10})
	require.NoError(t, err)

	changed, err := repo.SetWalletAddress(ctx, 1, "UQaddr1")
	require.NoError(t, err)
	assert.True(t, changed)

	t.Run("same address does not change the row", func(t *testing.T) {
		changed, err := repo.SetWalletAddress(ctx, 1, "UQaddr1")
		require.NoError(t, err)
		assert.False(t, changed)
	})

	t.Run("different address overwrites", func(t *testing.T) {
		changed, err := repo.SetWalletAddress(ctx, 1, "UQaddr2")
		require.NoError(t, err)
		assert.True(t, changed)

		p, err := repo.FindByID(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, "UQaddr2", p.WalletAddress)
	})

	t.Run("missing principal reports no change", func(t *testing.T) {
		changed, err := repo.SetWalletAddress(ctx, 2, "UQaddr1")
		require.NoError(t, err)
		assert.False(t, changed)
	})
}

func TestPrincipalRepository_BalanceAndSubscription(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewPrincipalRepository(db.DB)
	ctx := context.Background()
	_, err := repo.Create(ctx, model.CreatePrincipalParams{ID: 1, Balance: 10})
	require.NoError(t, err)

	found, err := repo.AddBalance(ctx, 1, 200)
	require.NoError(t, err)
	assert.True(t, found)

	found, err = repo.SetSubscribed(ctx, 1, true)
	require.NoError(t, err)
	assert.True(t, found)

	p, err := repo.FindByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(210), p.Balance)
	assert.True(t, p.Subscribed)

	found, err = repo.AddBalance(ctx, 99, 200)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestPrincipalRepository_ListAndTotals(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewPrincipalRepository(db.DB)
	ctx := context.Background()
	for id := int64(1); id <= 3; id++ {
		_, err := repo.Create(ctx, model.CreatePrincipalParams{ID: id, Balance: 10})
		require.NoError(t, err)
	}
	_, err := repo.SetWalletAddress(ctx, 2, "UQaddr")
	require.NoError(t, err)
	_, err = repo.SetSubscribed(ctx, 3, true)
	require.NoError(t, err)

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	page, err := repo.FindAll(ctx, 2, 0)
	require.NoError(t, err)
	assert.Len(t, page, 2)

	rest, err := repo.FindAll(ctx, 2, 2)
	require.NoError(t, err)
	assert.Len(t, rest, 1)

	totals, err := repo.Totals(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.LedgerTotals{Principals: 3, WithWallet: 1, Subscribed: 1, Balance: 30}, *totals)
}
