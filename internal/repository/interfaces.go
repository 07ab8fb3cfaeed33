package repository

import (
	"context"
	"time"

	"giftbox-rest-api/internal/model"

	"github.com/pkg/errors"
)

var (
	// ErrGrantConflict means the record changed between read and conditional write.
	ErrGrantConflict = errors.New("player record changed concurrently")

	// ErrDuplicateTransaction means the transaction id was already consumed.
	ErrDuplicateTransaction = errors.New("transaction already consumed")

	// ErrInsufficientInventory means a debit would drive a booster count negative.
	ErrInsufficientInventory = errors.New("insufficient booster inventory")
)

// PlayerRepository defines player ledger data access methods. Every mutation
// is a single conditional store operation.
type PlayerRepository interface {
	// GetPlayer returns the player record, or nil if the player has none yet.
	GetPlayer(ctx context.Context, fid int64) (*model.PlayerRecord, error)

	// ApplyGrant writes a reward grant if the stored grant version still equals
	// expectedVersion. Returns ErrGrantConflict otherwise.
	ApplyGrant(ctx context.Context, fid int64, expectedVersion int64, update model.GrantUpdate) error

	// CreditBooster consumes tx.TransactionID, appends tx to the player's log and
	// increments the booster count. Returns the new count, or ErrDuplicateTransaction.
	CreditBooster(ctx context.Context, fid int64, tx model.BoosterTransaction) (int64, error)

	// DebitBooster decrements a booster count if it holds at least quantity.
	// Returns the player's boosters after the debit, or ErrInsufficientInventory.
	DebitBooster(ctx context.Context, fid int64, kind model.BoosterKind, quantity int64) (map[string]int64, error)

	// FindTransaction returns the consumption record of a transaction id, or nil.
	FindTransaction(ctx context.Context, transactionID string) (*model.ConsumedTransaction, error)

	// ReconcilePendingTransactions resolves consumption markers left pending for
	// longer than threshold. Returns how many were resolved.
	ReconcilePendingTransactions(ctx context.Context, threshold time.Duration) (int64, error)

	// GetStats returns statistics about the player store.
	GetStats(ctx context.Context) (map[string]interface{}, error)

	// Ping checks the store is reachable.
	Ping(ctx context.Context) error

	// Close closes the repository connection.
	Close() error
}

// WalletRepository resolves a player's linked wallets.
type WalletRepository interface {
	// GetWalletsByFID returns the active wallet addresses linked to fid.
	GetWalletsByFID(ctx context.Context, fid int64) ([]string, error)
}
