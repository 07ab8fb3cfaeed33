package service

import (
	"context"
	"encoding/json"
	"time"

	"giftbox-rest-api/internal/cache"
	"giftbox-rest-api/internal/logger"
	"giftbox-rest-api/internal/model"
	"giftbox-rest-api/internal/repository"

	"go.uber.org/zap"
)

// ClaimCheck is the result of checking a transaction id before verification.
type ClaimCheck struct {
	AlreadyUsed bool
	Prior       *model.ConsumedTransaction
}

// IdempotencyGuard rejects payment transactions that were already consumed.
// It only saves work: the store's unique transaction key is what guarantees
// a transaction credits at most once.
type IdempotencyGuard struct {
	repo  repository.PlayerRepository
	cache cache.Cache
	ttl   time.Duration
}

// NewIdempotencyGuard creates a guard. cache may be nil.
func NewIdempotencyGuard(repo repository.PlayerRepository, c cache.Cache, ttl time.Duration) *IdempotencyGuard {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &IdempotencyGuard{repo: repo, cache: c, ttl: ttl}
}

// Claim reports whether transactionID was already consumed, and by whom.
func (g *IdempotencyGuard) Claim(ctx context.Context, transactionID string, fid int64) (ClaimCheck, error) {
	if prior := g.cached(ctx, transactionID); prior != nil {
		logger.Debug("transaction already consumed (cache)",
			zap.String("tx", transactionID), zap.Int64("fid", fid), zap.Int64("prior_fid", prior.FID))
		return ClaimCheck{AlreadyUsed: true, Prior: prior}, nil
	}

	prior, err := g.repo.FindTransaction(ctx, transactionID)
	if err != nil {
		return ClaimCheck{}, persistence("find transaction", err)
	}
	if prior == nil {
		return ClaimCheck{}, nil
	}

	if prior.Status == model.TxStatusCompleted {
		g.Remember(ctx, prior)
	}
	return ClaimCheck{AlreadyUsed: true, Prior: prior}, nil
}

// Prior returns the consumption record of a transaction, or nil if it cannot be read.
func (g *IdempotencyGuard) Prior(ctx context.Context, transactionID string) *model.ConsumedTransaction {
	check, err := g.Claim(ctx, transactionID, 0)
	if err != nil {
		logger.Warn("failed to read prior transaction", zap.String("tx", transactionID), zap.Error(err))
		return nil
	}
	return check.Prior
}

// Remember caches a completed consumption.
func (g *IdempotencyGuard) Remember(ctx context.Context, ct *model.ConsumedTransaction) {
	if g.cache == nil || ct == nil {
		return
	}
	data, err := json.Marshal(ct)
	if err != nil {
		return
	}
	if err := g.cache.Set(ctx, cache.TransactionKeyPrefix+ct.TransactionID, data, g.ttl); err != nil {
		logger.Warn("failed to cache consumed transaction", zap.String("tx", ct.TransactionID), zap.Error(err))
	}
}

func (g *IdempotencyGuard) cached(ctx context.Context, transactionID string) *model.ConsumedTransaction {
	if g.cache == nil {
		return nil
	}
	data, err := g.cache.Get(ctx, cache.TransactionKeyPrefix+transactionID)
	if err != nil {
		if err != cache.ErrCacheMiss {
			logger.Warn("transaction cache unavailable", zap.Error(err))
		}
		return nil
	}
	var ct model.ConsumedTransaction
	if err := json.Unmarshal(data, &ct); err != nil {
		return nil
	}
	return &ct
}
