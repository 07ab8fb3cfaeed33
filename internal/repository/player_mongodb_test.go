package repository

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"giftbox-rest-api/internal/model"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// These tests need a live server: MONGODB_TEST_URI=mongodb://localhost:27017
func newTestMongo(t *testing.T) *MongoDBPlayerRepository {
	t.Helper()
	uri := os.Getenv("MONGODB_TEST_URI")
	if uri == "" {
		t.Skip("MONGODB_TEST_URI not set")
	}

	db := fmt.Sprintf("giftbox_test_%d", time.Now().UnixNano())
	repo, err := NewMongoDBPlayerRepository(uri, db, "players", "consumed_transactions")
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = repo.db.Drop(context.Background())
		repo.Close()
	})
	return repo
}

func TestMongoGrantAndCredit(t *testing.T) {
	repo := newTestMongo(t)
	ctx := context.Background()
	now := time.Now().UnixMilli()

	require.NoError(t, repo.ApplyGrant(ctx, 9, 0, model.GrantUpdate{
		Channel: model.ChannelShare, GrantTime: now, ClaimsInPeriod: 2, LastGiftBoxUpdate: now,
	}))
	err := repo.ApplyGrant(ctx, 9, 0, model.GrantUpdate{
		Channel: model.ChannelShare, GrantTime: now, ClaimsInPeriod: 4, LastGiftBoxUpdate: now,
	})
	assert.True(t, errors.Is(err, ErrGrantConflict))

	total, err := repo.CreditBooster(ctx, 9, purchase("0xm1", model.BoosterHammer, 2))
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)

	_, err = repo.CreditBooster(ctx, 10, purchase("0xm1", model.BoosterHammer, 2))
	assert.True(t, errors.Is(err, ErrDuplicateTransaction))

	p, err := repo.GetPlayer(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, 2, p.GiftBoxClaimsInPeriod)
	assert.Equal(t, int64(2), p.BoosterCount(model.BoosterHammer))
	require.Len(t, p.BoosterTransactions, 1)

	ct, err := repo.FindTransaction(ctx, "0xm1")
	require.NoError(t, err)
	require.NotNil(t, ct)
	assert.Equal(t, model.TxStatusCompleted, ct.Status)

	_, err = repo.DebitBooster(ctx, 9, model.BoosterHammer, 3)
	assert.True(t, errors.Is(err, ErrInsufficientInventory))
	boosters, err := repo.DebitBooster(ctx, 9, model.BoosterHammer, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(0), boosters["hammer"])
}
