package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"giftbox-rest-api/internal/model"
	"giftbox-rest-api/internal/repository"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingWallets struct {
	calls int32
}

func (w *countingWallets) GetWalletsByFID(ctx context.Context, fid int64) ([]string, error) {
	atomic.AddInt32(&w.calls, 1)
	if fid == 0 {
		return nil, errors.New("boom")
	}
	return []string{"0xabc"}, nil
}

func TestWalletServiceCaches(t *testing.T) {
	repo := &countingWallets{}
	svc := NewWalletService(repo, newMemoryCache(t), time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		wallets, err := svc.Wallets(ctx, 5)
		require.NoError(t, err)
		assert.Equal(t, []string{"0xabc"}, wallets)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&repo.calls))

	require.NoError(t, svc.Forget(ctx, 5))
	_, err := svc.Wallets(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&repo.calls))

	_, err = svc.Wallets(ctx, 0)
	assert.Error(t, err)
}

func TestTokenLifecycle(t *testing.T) {
	svc := NewTokenService(newMemoryCache(t), time.Hour)
	ctx := context.Background()
	c := newClock()
	svc.now = c.Now

	token, err := svc.GenerateToken(ctx, model.TokenData{FID: 77, IssuedBy: "game"})
	require.NoError(t, err)
	assert.Contains(t, token, TokenPrefix)

	data, err := svc.ValidateToken(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, int64(77), data.FID)

	c.Advance(50 * time.Minute)
	refreshed, err := svc.RefreshToken(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, c.Now().Add(time.Hour), refreshed.ExpiresAt)

	require.NoError(t, svc.RevokeToken(ctx, token))
	_, err = svc.ValidateToken(ctx, token)
	assert.True(t, errors.Is(err, ErrTokenNotFound))

	_, err = svc.ValidateToken(ctx, "nope")
	assert.True(t, errors.Is(err, ErrTokenMalformed))

	_, err = svc.GenerateToken(ctx, model.TokenData{})
	var verr *ValidationError
	assert.True(t, errors.As(err, &verr))
}

func TestTokenExpiry(t *testing.T) {
	svc := NewTokenService(newMemoryCache(t), time.Hour)
	ctx := context.Background()
	c := newClock()
	svc.now = c.Now

	token, err := svc.GenerateToken(ctx, model.TokenData{FID: 1})
	require.NoError(t, err)

	c.Advance(2 * time.Hour)
	_, err = svc.ValidateToken(ctx, token)
	assert.True(t, errors.Is(err, ErrTokenNotFound))
}

func TestReconcileRunNow(t *testing.T) {
	s := NewReconcileScheduler(newStore(t), ReconcileConfig{})
	n, err := s.RunNow(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	last, count := s.LastRun()
	assert.False(t, last.IsZero())
	assert.Zero(t, count)

	s.Start()
	s.Stop()
	s.Stop()
}

type linkableWallets struct {
	mu      sync.Mutex
	wallets map[int64][]string
	calls   int
}

func (w *linkableWallets) link(fid int64, address string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.wallets[fid] = append(w.wallets[fid], address)
}

func (w *linkableWallets) GetWalletsByFID(ctx context.Context, fid int64) ([]string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls++
	return append([]string{}, w.wallets[fid]...), nil
}

func TestWalletServiceDoesNotCacheEmptyLookup(t *testing.T) {
	repo := &linkableWallets{wallets: map[int64][]string{}}
	svc := NewWalletService(repo, newMemoryCache(t), time.Hour)
	ctx := context.Background()

	wallets, err := svc.Wallets(ctx, 5)
	require.NoError(t, err)
	assert.Empty(t, wallets)

	repo.link(5, "0xabc")
	wallets, err = svc.Wallets(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"0xabc"}, wallets)

	// a non-empty result is cached
	_, err = svc.Wallets(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, 2, repo.calls)
}

func TestWalletServiceUnavailableStore(t *testing.T) {
	repo := repository.NewUnavailableWalletRepository(errors.New("dial tcp 127.0.0.1:3306: connection refused"))
	svc := NewWalletService(repo, newMemoryCache(t), time.Hour)

	wallets, err := svc.Wallets(context.Background(), 5)
	assert.Error(t, err)
	assert.Nil(t, wallets)
}
