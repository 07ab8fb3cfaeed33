package service

import (
	"context"
	"time"

	"giftbox-rest-api/internal/events"
	"giftbox-rest-api/internal/logger"
	"giftbox-rest-api/internal/metrics"
	"giftbox-rest-api/internal/model"
	"giftbox-rest-api/internal/repository"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Inventory is a player's booster holdings and purchase log.
type Inventory struct {
	FID          int64                      `json:"fid"`
	Boosters     map[string]int64           `json:"boosters"`
	Transactions []model.BoosterTransaction `json:"boosterTransactions"`
}

// InventoryService credits and debits booster counts. Every change is one
// conditional store operation.
type InventoryService struct {
	repo        repository.PlayerRepository
	publisher   events.Publisher
	maxQuantity int64
	now         func() time.Time
}

// NewInventoryService creates a new inventory service.
// Returns nil if repo is nil (required dependency).
func NewInventoryService(repo repository.PlayerRepository, publisher events.Publisher, maxQuantity int64) *InventoryService {
	if repo == nil {
		return nil
	}
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &InventoryService{
		repo:        repo,
		publisher:   publisher,
		maxQuantity: maxQuantity,
		now:         time.Now,
	}
}

func (s *InventoryService) validate(fid int64, kind model.BoosterKind, quantity int64) error {
	if err := validateFID(fid); err != nil {
		return err
	}
	if !kind.Valid() {
		return invalid("boosterKind", "unknown booster")
	}
	if quantity <= 0 {
		return invalid("quantity", "must be positive")
	}
	if s.maxQuantity > 0 && quantity > s.maxQuantity {
		return invalid("quantity", "must not exceed %d", s.maxQuantity)
	}
	return nil
}

// Credit appends tx to the player's log and adds its quantity, once per
// transaction id. Returns the new count of the kind, or
// repository.ErrDuplicateTransaction if the id was already consumed.
func (s *InventoryService) Credit(ctx context.Context, fid int64, tx model.BoosterTransaction) (int64, error) {
	if err := s.validate(fid, tx.Kind, tx.Quantity); err != nil {
		return 0, err
	}
	if tx.Timestamp == 0 {
		tx.Timestamp = model.Millis(s.now())
	}

	total, err := s.repo.CreditBooster(ctx, fid, tx)
	if errors.Is(err, repository.ErrDuplicateTransaction) {
		return 0, err
	}
	if err != nil {
		return 0, persistence("credit booster", err)
	}

	logger.Info("boosters credited",
		zap.Int64("fid", fid), zap.String("kind", tx.Kind.String()),
		zap.Int64("quantity", tx.Quantity), zap.Int64("total", total))
	return total, nil
}

// Use consumes quantity boosters of kind. Returns the player's boosters after
// the debit, or ErrInsufficientInventory with nothing changed.
func (s *InventoryService) Use(ctx context.Context, fid int64, kind model.BoosterKind, quantity int64) (map[string]int64, error) {
	if err := s.validate(fid, kind, quantity); err != nil {
		return nil, err
	}

	boosters, err := s.repo.DebitBooster(ctx, fid, kind, quantity)
	if errors.Is(err, repository.ErrInsufficientInventory) {
		metrics.BoosterUses.WithLabelValues(kind.String(), "insufficient").Inc()
		return nil, ErrInsufficientInventory
	}
	if err != nil {
		metrics.BoosterUses.WithLabelValues(kind.String(), "error").Inc()
		return nil, persistence("debit booster", err)
	}

	metrics.BoosterUses.WithLabelValues(kind.String(), "used").Inc()
	publishEvent(ctx, s.publisher, events.Event{
		Type:       events.BoosterUsed,
		FID:        fid,
		OccurredAt: s.now(),
		Data: map[string]interface{}{
			"kind":      kind.String(),
			"quantity":  quantity,
			"remaining": boosters[kind.String()],
		},
	})
	return boosters, nil
}

// Inventory returns the player's boosters. A player without a record holds nothing.
func (s *InventoryService) Inventory(ctx context.Context, fid int64) (*Inventory, error) {
	if err := validateFID(fid); err != nil {
		return nil, err
	}

	player, err := s.repo.GetPlayer(ctx, fid)
	if err != nil {
		return nil, persistence("load player", err)
	}

	inv := &Inventory{FID: fid, Boosters: map[string]int64{}, Transactions: []model.BoosterTransaction{}}
	for _, kind := range model.AllBoosterKinds() {
		inv.Boosters[kind.String()] = player.BoosterCount(kind)
	}
	if player != nil && player.BoosterTransactions != nil {
		inv.Transactions = player.BoosterTransactions
	}
	return inv, nil
}
