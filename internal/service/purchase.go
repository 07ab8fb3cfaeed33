package service

import (
	"context"
	"strings"
	"time"

	"giftbox-rest-api/internal/events"
	"giftbox-rest-api/internal/logger"
	"giftbox-rest-api/internal/metrics"
	"giftbox-rest-api/internal/model"
	"giftbox-rest-api/internal/repository"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// maxTransactionIDLength is "0x" plus a 32-byte hash in hex.
const maxTransactionIDLength = 66

// PaymentVerifier checks a purchase against the chain.
type PaymentVerifier interface {
	Verify(ctx context.Context, req model.PurchaseRequest) (model.VerificationResult, error)
}

// PurchaseResult is a successful booster purchase.
type PurchaseResult struct {
	FID           int64             `json:"fid"`
	Kind          model.BoosterKind `json:"boosterKind"`
	Quantity      int64             `json:"quantity"`
	TransactionID string            `json:"transactionId"`
	NewTotal      int64             `json:"newTotal"`
	BlockNumber   uint64            `json:"blockNumber"`
}

// PurchaseService turns verified payments into booster credits.
type PurchaseService struct {
	guard     *IdempotencyGuard
	verifier  PaymentVerifier
	inventory *InventoryService
	publisher events.Publisher
	now       func() time.Time
}

// NewPurchaseService creates a purchase service.
func NewPurchaseService(guard *IdempotencyGuard, verifier PaymentVerifier, inventory *InventoryService, publisher events.Publisher) *PurchaseService {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &PurchaseService{
		guard:     guard,
		verifier:  verifier,
		inventory: inventory,
		publisher: publisher,
		now:       time.Now,
	}
}

// NormalizeTransactionID lowercases a 0x-prefixed hex transaction id.
func NormalizeTransactionID(id string) (string, error) {
	id = strings.ToLower(strings.TrimSpace(id))
	if id == "" {
		return "", invalid("transactionId", "is required")
	}
	if !strings.HasPrefix(id, "0x") || len(id) < 3 || len(id) > maxTransactionIDLength {
		return "", invalid("transactionId", "must be a 0x-prefixed hash")
	}
	for _, r := range id[2:] {
		if !(r >= '0' && r <= '9' || r >= 'a' && r <= 'f') {
			return "", invalid("transactionId", "must be hexadecimal")
		}
	}
	return id, nil
}

// Purchase verifies the payment and credits the boosters. Nothing is
// credited unless the payment is verified and the transaction id is unused.
func (s *PurchaseService) Purchase(ctx context.Context, req model.PurchaseRequest) (*PurchaseResult, error) {
	txID, err := NormalizeTransactionID(req.TransactionID)
	if err != nil {
		return nil, err
	}
	req.TransactionID = txID
	if err := s.inventory.validate(req.FID, req.Kind, req.Quantity); err != nil {
		return nil, err
	}

	check, err := s.guard.Claim(ctx, txID, req.FID)
	if err != nil {
		s.count("error")
		return nil, err
	}
	if check.AlreadyUsed {
		s.count("duplicate")
		return nil, &DuplicateTransactionError{TransactionID: txID, Prior: check.Prior}
	}

	started := time.Now()
	result, err := s.verifier.Verify(ctx, req)
	if err != nil {
		s.count("error")
		return nil, persistence("verify payment", err)
	}
	metrics.ObserveVerification(string(result.Reason), started)
	if !result.Verified {
		s.count(string(result.Reason))
		return nil, &VerificationError{Reason: result.Reason}
	}

	now := s.now()
	total, err := s.inventory.Credit(ctx, req.FID, model.BoosterTransaction{
		Kind:          req.Kind,
		Quantity:      req.Quantity,
		TransactionID: txID,
		Timestamp:     model.Millis(now),
	})
	if errors.Is(err, repository.ErrDuplicateTransaction) {
		// lost the race to a concurrent request with the same transaction
		s.count("duplicate")
		return nil, &DuplicateTransactionError{TransactionID: txID, Prior: s.guard.Prior(ctx, txID)}
	}
	if err != nil {
		s.count("error")
		return nil, err
	}

	s.guard.Remember(ctx, &model.ConsumedTransaction{
		TransactionID: txID,
		FID:           req.FID,
		Kind:          req.Kind,
		Quantity:      req.Quantity,
		Timestamp:     model.Millis(now),
		Status:        model.TxStatusCompleted,
	})

	s.count("credited")
	publishEvent(ctx, s.publisher, events.Event{
		Type:       events.BoosterPurchased,
		FID:        req.FID,
		OccurredAt: now,
		Data: map[string]interface{}{
			"kind":          req.Kind.String(),
			"quantity":      req.Quantity,
			"transactionId": txID,
			"payer":         result.Payer,
			"blockNumber":   result.BlockNumber,
			"newTotal":      total,
		},
	})
	logger.Info("booster purchase credited",
		zap.Int64("fid", req.FID), zap.String("tx", txID), zap.String("payer", result.Payer),
		zap.Uint64("block", result.BlockNumber), zap.Int64("total", total))

	return &PurchaseResult{
		FID:           req.FID,
		Kind:          req.Kind,
		Quantity:      req.Quantity,
		TransactionID: txID,
		NewTotal:      total,
		BlockNumber:   result.BlockNumber,
	}, nil
}

func (s *PurchaseService) count(outcome string) {
	metrics.BoosterPurchases.WithLabelValues(outcome).Inc()
}
