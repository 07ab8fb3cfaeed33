package chain

import (
	"context"
	"testing"
	"time"

	"giftbox-rest-api/internal/cache"
	"giftbox-rest-api/internal/catalog"
	"giftbox-rest-api/internal/model"
	"giftbox-rest-api/internal/repository"
	"giftbox-rest-api/internal/service"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mutableWallets struct {
	wallets map[int64][]string
}

func (w *mutableWallets) GetWalletsByFID(ctx context.Context, fid int64) ([]string, error) {
	return append([]string{}, w.wallets[fid]...), nil
}

func paidHammer(t *testing.T) (*fakeReader, *types.Transaction, string) {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	price, err := catalog.Default().Total(model.BoosterHammer, 1)
	require.NoError(t, err)

	reader := newFakeReader()
	tx := signedTx(t, key, testTreasury, price)
	mined(reader, tx, 990, types.ReceiptStatusSuccessful)
	return reader, tx, addressOf(key)
}

func TestVerifyUnreachableWalletStoreIsNotWrongPayer(t *testing.T) {
	reader, tx, _ := paidHammer(t)
	wallets := service.NewWalletService(
		repository.NewUnavailableWalletRepository(errors.New("connection refused")), nil, 0)

	res, err := nativeVerifier(reader, wallets).Verify(context.Background(), request(7, tx, model.BoosterHammer, 1))
	require.Error(t, err)
	assert.NotEqual(t, model.ReasonWrongPayer, res.Reason)
}

func TestVerifySeesWalletLinkedAfterEmptyLookup(t *testing.T) {
	reader, tx, payer := paidHammer(t)
	repo := &mutableWallets{wallets: map[int64][]string{}}
	c := cache.NewMemoryCache()
	t.Cleanup(func() { c.Close() })
	v := nativeVerifier(reader, service.NewWalletService(repo, c, time.Hour))

	res, err := v.Verify(context.Background(), request(7, tx, model.BoosterHammer, 1))
	require.NoError(t, err)
	assert.Equal(t, model.ReasonWrongPayer, res.Reason)

	repo.wallets[7] = []string{payer}
	res, err = v.Verify(context.Background(), request(7, tx, model.BoosterHammer, 1))
	require.NoError(t, err)
	assert.True(t, res.Verified)
}
