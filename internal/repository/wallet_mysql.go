package repository

import (
	"context"
	"database/sql"
	"strings"

	"giftbox-rest-api/internal/logger"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// MySQLWalletRepository implements WalletRepository using the account database.
type MySQLWalletRepository struct {
	db *sql.DB
}

// NewMySQLWalletRepository creates a new MySQL wallet repository.
func NewMySQLWalletRepository(db *sql.DB) *MySQLWalletRepository {
	return &MySQLWalletRepository{db: db}
}

// GetWalletsByFID returns the active wallets linked to fid, lowercased.
// A player without linked wallets gets an empty slice, not an error.
func (r *MySQLWalletRepository) GetWalletsByFID(ctx context.Context, fid int64) ([]string, error) {
	query := `SELECT wallet_address FROM player_wallets WHERE fid = ? AND is_active = 1 ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query, fid)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get wallets")
	}
	defer rows.Close()

	wallets := []string{}
	for rows.Next() {
		var address string
		if err := rows.Scan(&address); err != nil {
			return nil, errors.Wrap(err, "failed to scan wallet")
		}
		wallets = append(wallets, strings.ToLower(strings.TrimSpace(address)))
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to read wallets")
	}

	logger.Debug("resolved wallets", zap.Int64("fid", fid), zap.Int("count", len(wallets)))
	return wallets, nil
}

// UnavailableWalletRepository stands in for an account database that could
// not be reached. Every lookup fails, so payments are reported as retryable
// instead of being judged against an empty wallet list.
type UnavailableWalletRepository struct {
	cause error
}

// NewUnavailableWalletRepository creates a repository that always fails with cause.
func NewUnavailableWalletRepository(cause error) *UnavailableWalletRepository {
	if cause == nil {
		cause = errors.New("wallet store not configured")
	}
	return &UnavailableWalletRepository{cause: cause}
}

// GetWalletsByFID always returns the unavailability cause.
func (r *UnavailableWalletRepository) GetWalletsByFID(ctx context.Context, fid int64) ([]string, error) {
	return nil, errors.Wrap(r.cause, "wallet store unavailable")
}

// Ensure wallet repositories implement WalletRepository
var (
	_ WalletRepository = (*MySQLWalletRepository)(nil)
	_ WalletRepository = (*UnavailableWalletRepository)(nil)
)
