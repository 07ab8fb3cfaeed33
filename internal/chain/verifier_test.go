package chain

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"strings"
	"testing"
	"time"

	"giftbox-rest-api/internal/catalog"
	"giftbox-rest-api/internal/model"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testChainID  = big.NewInt(8453)
	testTreasury = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	testToken    = common.HexToAddress("0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913")
)

type fakeReader struct {
	txs       map[common.Hash]*types.Transaction
	pending   map[common.Hash]bool
	receipts  map[common.Hash]*types.Receipt
	head      uint64
	err       error
	blockWait time.Duration
}

func newFakeReader() *fakeReader {
	return &fakeReader{
		txs:      map[common.Hash]*types.Transaction{},
		pending:  map[common.Hash]bool{},
		receipts: map[common.Hash]*types.Receipt{},
		head:     1000,
	}
}

func (f *fakeReader) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	if f.err != nil {
		return nil, f.err
	}
	r, ok := f.receipts[hash]
	if !ok {
		return nil, ethereum.NotFound
	}
	return r, nil
}

func (f *fakeReader) TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error) {
	if f.err != nil {
		return nil, false, f.err
	}
	tx, ok := f.txs[hash]
	if !ok {
		return nil, false, ethereum.NotFound
	}
	return tx, f.pending[hash], nil
}

func (f *fakeReader) BlockNumber(ctx context.Context) (uint64, error) {
	if f.blockWait > 0 {
		select {
		case <-time.After(f.blockWait):
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	if f.err != nil {
		return 0, f.err
	}
	return f.head, nil
}

type fakeWallets map[int64][]string

func (w fakeWallets) Wallets(ctx context.Context, fid int64) ([]string, error) {
	return w[fid], nil
}

type failingWallets struct{}

func (failingWallets) Wallets(ctx context.Context, fid int64) ([]string, error) {
	return nil, errors.New("mysql down")
}

func signedTx(t *testing.T, key *ecdsa.PrivateKey, to common.Address, value *big.Int) *types.Transaction {
	t.Helper()
	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   testChainID,
		Nonce:     1,
		GasTipCap: big.NewInt(1),
		GasFeeCap: big.NewInt(100),
		Gas:       21000,
		To:        &to,
		Value:     value,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(testChainID), key)
	require.NoError(t, err)
	return signed
}

func addressOf(key *ecdsa.PrivateKey) string {
	return strings.ToLower(crypto.PubkeyToAddress(key.PublicKey).Hex())
}

func mined(reader *fakeReader, tx *types.Transaction, block int64, status uint64, logs ...*types.Log) {
	reader.txs[tx.Hash()] = tx
	reader.receipts[tx.Hash()] = &types.Receipt{
		Status:      status,
		TxHash:      tx.Hash(),
		BlockNumber: big.NewInt(block),
		Logs:        logs,
	}
}

func nativeVerifier(reader *fakeReader, wallets WalletResolver) *Verifier {
	return NewVerifier(reader, wallets, catalog.Default(), Config{
		ChainID:          testChainID,
		Treasury:         testTreasury,
		MinConfirmations: 2,
		Timeout:          time.Second,
	})
}

func request(fid int64, tx *types.Transaction, kind model.BoosterKind, qty int64) model.PurchaseRequest {
	return model.PurchaseRequest{FID: fid, Kind: kind, Quantity: qty, TransactionID: tx.Hash().Hex()}
}

func TestVerifyNativePayment(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	price, err := catalog.Default().Total(model.BoosterHammer, 2)
	require.NoError(t, err)

	reader := newFakeReader()
	tx := signedTx(t, key, testTreasury, price)
	mined(reader, tx, 990, types.ReceiptStatusSuccessful)

	v := nativeVerifier(reader, fakeWallets{7: {addressOf(key)}})
	res, err := v.Verify(context.Background(), request(7, tx, model.BoosterHammer, 2))
	require.NoError(t, err)
	assert.True(t, res.Verified)
	assert.Equal(t, uint64(990), res.BlockNumber)
	assert.Equal(t, addressOf(key), res.Payer)
	assert.Equal(t, 0, res.Amount.Cmp(price))
}

func TestVerifyFailureReasons(t *testing.T) {
	key, _ := crypto.GenerateKey()
	stranger, _ := crypto.GenerateKey()
	price, _ := catalog.Default().Total(model.BoosterShuffle, 1)
	wallets := fakeWallets{7: {addressOf(key)}}

	cases := []struct {
		name   string
		setup  func(r *fakeReader) *types.Transaction
		reason model.VerificationReason
	}{
		{
			name: "not found",
			setup: func(r *fakeReader) *types.Transaction {
				return signedTx(t, key, testTreasury, price)
			},
			reason: model.ReasonNotFound,
		},
		{
			name: "pending",
			setup: func(r *fakeReader) *types.Transaction {
				tx := signedTx(t, key, testTreasury, price)
				r.txs[tx.Hash()] = tx
				r.pending[tx.Hash()] = true
				return tx
			},
			reason: model.ReasonUnconfirmed,
		},
		{
			name: "too few confirmations",
			setup: func(r *fakeReader) *types.Transaction {
				tx := signedTx(t, key, testTreasury, price)
				mined(r, tx, 1000, types.ReceiptStatusSuccessful)
				return tx
			},
			reason: model.ReasonUnconfirmed,
		},
		{
			name: "reverted",
			setup: func(r *fakeReader) *types.Transaction {
				tx := signedTx(t, key, testTreasury, price)
				mined(r, tx, 900, types.ReceiptStatusFailed)
				return tx
			},
			reason: model.ReasonReverted,
		},
		{
			name: "payer not linked",
			setup: func(r *fakeReader) *types.Transaction {
				tx := signedTx(t, stranger, testTreasury, price)
				mined(r, tx, 900, types.ReceiptStatusSuccessful)
				return tx
			},
			reason: model.ReasonWrongPayer,
		},
		{
			name: "underpaid",
			setup: func(r *fakeReader) *types.Transaction {
				tx := signedTx(t, key, testTreasury, new(big.Int).Sub(price, big.NewInt(1)))
				mined(r, tx, 900, types.ReceiptStatusSuccessful)
				return tx
			},
			reason: model.ReasonInsufficientAmount,
		},
		{
			name: "paid someone else",
			setup: func(r *fakeReader) *types.Transaction {
				tx := signedTx(t, key, common.HexToAddress("0x01"), price)
				mined(r, tx, 900, types.ReceiptStatusSuccessful)
				return tx
			},
			reason: model.ReasonInsufficientAmount,
		},
		{
			name: "rpc down",
			setup: func(r *fakeReader) *types.Transaction {
				r.err = errors.New("connection refused")
				return signedTx(t, key, testTreasury, price)
			},
			reason: model.ReasonRPCUnavailable,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			reader := newFakeReader()
			tx := tc.setup(reader)

			res, err := nativeVerifier(reader, wallets).Verify(context.Background(), request(7, tx, model.BoosterShuffle, 1))
			require.NoError(t, err)
			assert.False(t, res.Verified)
			assert.Equal(t, tc.reason, res.Reason)
		})
	}
}

func TestVerifyTimeoutIsRetryable(t *testing.T) {
	key, _ := crypto.GenerateKey()
	price, _ := catalog.Default().Total(model.BoosterShuffle, 1)

	reader := newFakeReader()
	reader.blockWait = time.Second
	tx := signedTx(t, key, testTreasury, price)
	mined(reader, tx, 900, types.ReceiptStatusSuccessful)

	v := NewVerifier(reader, fakeWallets{7: {addressOf(key)}}, catalog.Default(), Config{
		ChainID:  testChainID,
		Treasury: testTreasury,
		Timeout:  20 * time.Millisecond,
	})
	res, err := v.Verify(context.Background(), request(7, tx, model.BoosterShuffle, 1))
	require.NoError(t, err)
	assert.Equal(t, model.ReasonRPCUnavailable, res.Reason)
	assert.True(t, res.Reason.Retryable())
}

func TestVerifyMalformedHash(t *testing.T) {
	v := nativeVerifier(newFakeReader(), fakeWallets{})
	res, err := v.Verify(context.Background(), model.PurchaseRequest{
		FID: 1, Kind: model.BoosterShuffle, Quantity: 1, TransactionID: "0xnothex",
	})
	require.NoError(t, err)
	assert.Equal(t, model.ReasonNotFound, res.Reason)
}

func TestVerifyWalletLookupError(t *testing.T) {
	key, _ := crypto.GenerateKey()
	reader := newFakeReader()
	tx := signedTx(t, key, testTreasury, big.NewInt(1))

	_, err := nativeVerifier(reader, failingWallets{}).Verify(context.Background(), request(7, tx, model.BoosterShuffle, 1))
	assert.Error(t, err)
}

func transferLog(from, to common.Address, amount *big.Int) *types.Log {
	return &types.Log{
		Address: testToken,
		Topics: []common.Hash{
			transferTopic,
			common.BytesToHash(from.Bytes()),
			common.BytesToHash(to.Bytes()),
		},
		Data: common.LeftPadBytes(amount.Bytes(), 32),
	}
}

func TestVerifyTokenPayment(t *testing.T) {
	key, _ := crypto.GenerateKey()
	payer := crypto.PubkeyToAddress(key.PublicKey)
	price, _ := catalog.Default().Total(model.BoosterExtraMoves, 3)

	token := testToken
	v := func(r *fakeReader) *Verifier {
		return NewVerifier(r, fakeWallets{9: {addressOf(key)}}, catalog.Default(), Config{
			ChainID:          testChainID,
			Treasury:         testTreasury,
			PaymentToken:     &token,
			MinConfirmations: 1,
		})
	}

	t.Run("split transfers add up", func(t *testing.T) {
		reader := newFakeReader()
		tx := signedTx(t, key, testToken, big.NewInt(0))
		half := new(big.Int).Div(price, big.NewInt(2))
		rest := new(big.Int).Sub(price, half)
		mined(reader, tx, 1000, types.ReceiptStatusSuccessful,
			transferLog(payer, testTreasury, half),
			transferLog(payer, testTreasury, rest),
			transferLog(payer, common.HexToAddress("0x02"), price),
		)

		res, err := v(reader).Verify(context.Background(), request(9, tx, model.BoosterExtraMoves, 3))
		require.NoError(t, err)
		assert.True(t, res.Verified)
		assert.Equal(t, 0, res.Amount.Cmp(price))
	})

	t.Run("native value ignored", func(t *testing.T) {
		reader := newFakeReader()
		tx := signedTx(t, key, testTreasury, price)
		mined(reader, tx, 1000, types.ReceiptStatusSuccessful)

		res, err := v(reader).Verify(context.Background(), request(9, tx, model.BoosterExtraMoves, 3))
		require.NoError(t, err)
		assert.Equal(t, model.ReasonInsufficientAmount, res.Reason)
	})
}
