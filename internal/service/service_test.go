package service

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"giftbox-rest-api/internal/cache"
	"giftbox-rest-api/internal/events"
	"giftbox-rest-api/internal/model"
	"giftbox-rest-api/internal/repository"
	"giftbox-rest-api/internal/rewards"

	"github.com/stretchr/testify/require"
)

// clock is a settable time source shared by the services under test.
type clock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *clock {
	return &clock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newStore(t *testing.T) repository.PlayerRepository {
	t.Helper()
	repo, err := repository.NewSQLitePlayerRepository(filepath.Join(t.TempDir(), "players.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func newMemoryCache(t *testing.T) cache.Cache {
	t.Helper()
	c := cache.NewMemoryCache()
	t.Cleanup(func() { c.Close() })
	return c
}

type harness struct {
	store     repository.PlayerRepository
	clock     *clock
	events    *events.MemoryPublisher
	rewards   *RewardService
	inventory *InventoryService
	purchases *PurchaseService
	verifier  *fakeVerifier
	guard     *IdempotencyGuard
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store:    newStore(t),
		clock:    newClock(),
		events:   &events.MemoryPublisher{},
		verifier: &fakeVerifier{},
	}

	h.rewards = NewRewardService(h.store, rewards.DefaultPolicy(), h.events, 0)
	h.rewards.now = h.clock.Now

	h.inventory = NewInventoryService(h.store, h.events, 100)
	h.inventory.now = h.clock.Now

	h.guard = NewIdempotencyGuard(h.store, newMemoryCache(t), time.Hour)
	h.purchases = NewPurchaseService(h.guard, h.verifier, h.inventory, h.events)
	h.purchases.now = h.clock.Now
	return h
}

type fakeVerifier struct {
	mu     sync.Mutex
	reason model.VerificationReason
	err    error
	calls  int
}

func (f *fakeVerifier) set(reason model.VerificationReason) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reason = reason
}

func (f *fakeVerifier) Verify(ctx context.Context, req model.PurchaseRequest) (model.VerificationResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return model.VerificationResult{}, f.err
	}
	if f.reason != model.ReasonNone {
		return model.VerificationResult{Reason: f.reason}, nil
	}
	return model.VerificationResult{Verified: true, BlockNumber: 12345, Payer: "0xpayer"}, nil
}
