package service

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"giftbox-rest-api/internal/cache"
	"giftbox-rest-api/internal/repository"

	"github.com/pkg/errors"
)

// WalletService resolves a player's linked wallets through the cache.
type WalletService struct {
	repo  repository.WalletRepository
	cache cache.Cache
	ttl   time.Duration
}

// NewWalletService creates a wallet resolver. cache may be nil.
func NewWalletService(repo repository.WalletRepository, c cache.Cache, ttl time.Duration) *WalletService {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &WalletService{repo: repo, cache: c, ttl: ttl}
}

// errNoWallets keeps an empty lookup out of the cache, so a wallet linked
// right before paying is seen by the next purchase.
var errNoWallets = errors.New("no linked wallets")

// Wallets returns the lowercase wallet addresses linked to fid. Only
// non-empty results are cached.
func (s *WalletService) Wallets(ctx context.Context, fid int64) ([]string, error) {
	if s.cache == nil {
		return s.repo.GetWalletsByFID(ctx, fid)
	}

	key := cache.WalletKeyPrefix + strconv.FormatInt(fid, 10)
	data, err := s.cache.GetOrSet(ctx, key, s.ttl, func() ([]byte, error) {
		wallets, err := s.repo.GetWalletsByFID(ctx, fid)
		if err != nil {
			return nil, err
		}
		if len(wallets) == 0 {
			return nil, errNoWallets
		}
		return json.Marshal(wallets)
	})
	if errors.Is(err, errNoWallets) {
		return []string{}, nil
	}
	if err != nil {
		return nil, err
	}

	var wallets []string
	if err := json.Unmarshal(data, &wallets); err != nil {
		return nil, errors.Wrap(err, "failed to decode cached wallets")
	}
	return wallets, nil
}

// Forget drops the cached wallets of fid.
func (s *WalletService) Forget(ctx context.Context, fid int64) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Delete(ctx, cache.WalletKeyPrefix+strconv.FormatInt(fid, 10))
}
