package repository

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"giftbox-rest-api/internal/model"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLite(t *testing.T) *SQLitePlayerRepository {
	t.Helper()
	repo, err := NewSQLitePlayerRepository(filepath.Join(t.TempDir(), "players.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func purchase(id string, kind model.BoosterKind, qty int64) model.BoosterTransaction {
	return model.BoosterTransaction{
		Kind:          kind,
		Quantity:      qty,
		TransactionID: id,
		Timestamp:     time.Now().UnixMilli(),
	}
}

func TestSQLiteGetPlayerMissing(t *testing.T) {
	repo := newTestSQLite(t)

	p, err := repo.GetPlayer(context.Background(), 42)
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestSQLiteApplyGrant(t *testing.T) {
	repo := newTestSQLite(t)
	ctx := context.Background()
	now := time.Now().UnixMilli()

	err := repo.ApplyGrant(ctx, 7, 0, model.GrantUpdate{
		Channel:           model.ChannelFollow,
		GrantTime:         now,
		ClaimsInPeriod:    1,
		LastGiftBoxUpdate: now,
	})
	require.NoError(t, err)

	p, err := repo.GetPlayer(ctx, 7)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.True(t, p.HasFollowed)
	assert.Equal(t, 1, p.GiftBoxClaimsInPeriod)
	assert.Equal(t, int64(1), p.GrantVersion)
	require.NotNil(t, p.LastFollowTime)
	assert.Equal(t, now, *p.LastFollowTime)
	assert.Nil(t, p.LastShareTime)

	// A writer holding the old version loses.
	err = repo.ApplyGrant(ctx, 7, 0, model.GrantUpdate{
		Channel:           model.ChannelShare,
		GrantTime:         now,
		ClaimsInPeriod:    3,
		LastGiftBoxUpdate: now,
	})
	assert.True(t, errors.Is(err, ErrGrantConflict))

	p, err = repo.GetPlayer(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, 1, p.GiftBoxClaimsInPeriod)
	assert.Nil(t, p.LastShareTime)
}

func TestSQLiteCreditBoosterDuplicate(t *testing.T) {
	repo := newTestSQLite(t)
	ctx := context.Background()

	total, err := repo.CreditBooster(ctx, 1, purchase("0xaaa", model.BoosterHammer, 3))
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)

	total, err = repo.CreditBooster(ctx, 1, purchase("0xbbb", model.BoosterHammer, 2))
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)

	_, err = repo.CreditBooster(ctx, 2, purchase("0xaaa", model.BoosterShuffle, 9))
	assert.True(t, errors.Is(err, ErrDuplicateTransaction))

	p, err := repo.GetPlayer(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(5), p.BoosterCount(model.BoosterHammer))
	require.Len(t, p.BoosterTransactions, 2)

	other, err := repo.GetPlayer(ctx, 2)
	require.NoError(t, err)
	assert.Nil(t, other)

	ct, err := repo.FindTransaction(ctx, "0xaaa")
	require.NoError(t, err)
	require.NotNil(t, ct)
	assert.Equal(t, int64(1), ct.FID)
	assert.Equal(t, model.BoosterHammer, ct.Kind)
	assert.Equal(t, model.TxStatusCompleted, ct.Status)

	ct, err = repo.FindTransaction(ctx, "0xccc")
	require.NoError(t, err)
	assert.Nil(t, ct)
}

func TestSQLiteCreditBoosterConcurrent(t *testing.T) {
	repo := newTestSQLite(t)
	ctx := context.Background()

	var (
		wg         sync.WaitGroup
		succeeded  int32
		duplicates int32
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.CreditBooster(ctx, 11, purchase("0xrace", model.BoosterShuffle, 4))
			switch {
			case err == nil:
				atomic.AddInt32(&succeeded, 1)
			case errors.Is(err, ErrDuplicateTransaction):
				atomic.AddInt32(&duplicates, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), succeeded)
	assert.Equal(t, int32(7), duplicates)

	p, err := repo.GetPlayer(ctx, 11)
	require.NoError(t, err)
	assert.Equal(t, int64(4), p.BoosterCount(model.BoosterShuffle))
}

func TestSQLiteDebitBooster(t *testing.T) {
	repo := newTestSQLite(t)
	ctx := context.Background()

	_, err := repo.DebitBooster(ctx, 3, model.BoosterHammer, 1)
	assert.True(t, errors.Is(err, ErrInsufficientInventory))

	_, err = repo.CreditBooster(ctx, 3, purchase("0x01", model.BoosterHammer, 2))
	require.NoError(t, err)

	boosters, err := repo.DebitBooster(ctx, 3, model.BoosterHammer, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(0), boosters["hammer"])

	_, err = repo.DebitBooster(ctx, 3, model.BoosterHammer, 1)
	assert.True(t, errors.Is(err, ErrInsufficientInventory))

	p, err := repo.GetPlayer(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(0), p.BoosterCount(model.BoosterHammer))
	// the purchase log is append-only
	assert.Len(t, p.BoosterTransactions, 1)
}

func TestSQLiteConcurrentDebitNeverNegative(t *testing.T) {
	repo := newTestSQLite(t)
	ctx := context.Background()

	_, err := repo.CreditBooster(ctx, 5, purchase("0x05", model.BoosterExtraMoves, 3))
	require.NoError(t, err)

	var wg sync.WaitGroup
	var used int32
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := repo.DebitBooster(ctx, 5, model.BoosterExtraMoves, 1); err == nil {
				atomic.AddInt32(&used, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(3), used)
	p, err := repo.GetPlayer(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(0), p.BoosterCount(model.BoosterExtraMoves))
}

func TestSQLiteStats(t *testing.T) {
	repo := newTestSQLite(t)
	ctx := context.Background()

	_, err := repo.CreditBooster(ctx, 1, purchase("0x10", model.BoosterShuffle, 1))
	require.NoError(t, err)

	stats, err := repo.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats["total_players"])
	assert.Equal(t, int64(1), stats["total_transactions"])

	n, err := repo.ReconcilePendingTransactions(ctx, time.Minute)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, repo.Ping(ctx))
}
