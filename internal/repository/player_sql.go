package repository

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"time"

	"giftbox-rest-api/internal/model"

	"github.com/pkg/errors"
)

type dialect int

const (
	dialectSQLite dialect = iota
	dialectPostgres
)

// playerSchema is valid for both SQLite and PostgreSQL.
const playerSchema = `
CREATE TABLE IF NOT EXISTS players (
	fid BIGINT PRIMARY KEY,
	last_share_time BIGINT,
	last_follow_time BIGINT,
	last_mini_app_time BIGINT,
	has_followed INTEGER NOT NULL DEFAULT 0,
	gift_box_claims_in_period INTEGER NOT NULL DEFAULT 0,
	last_gift_box_update BIGINT,
	grant_version BIGINT NOT NULL DEFAULT 0,
	created_at BIGINT NOT NULL,
	updated_at BIGINT NOT NULL
);
CREATE TABLE IF NOT EXISTS player_boosters (
	fid BIGINT NOT NULL,
	kind TEXT NOT NULL,
	quantity BIGINT NOT NULL DEFAULT 0 CHECK (quantity >= 0),
	PRIMARY KEY (fid, kind)
);
CREATE TABLE IF NOT EXISTS booster_transactions (
	transaction_id TEXT PRIMARY KEY,
	fid BIGINT NOT NULL,
	kind TEXT NOT NULL,
	quantity BIGINT NOT NULL,
	created_at BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_booster_transactions_fid ON booster_transactions(fid);
`

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// sqlPlayerStore implements PlayerRepository on database/sql. Uniqueness of
// transaction ids is enforced by the booster_transactions primary key, and the
// marker insert and the inventory increment commit in one transaction.
type sqlPlayerStore struct {
	db      *sql.DB
	dialect dialect
}

// rebind rewrites ? placeholders to $n for PostgreSQL.
func (s *sqlPlayerStore) rebind(query string) string {
	if s.dialect != dialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *sqlPlayerStore) createTables(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, playerSchema)
	return err
}

func channelColumn(ch model.Channel) (string, error) {
	switch ch {
	case model.ChannelShare:
		return "last_share_time", nil
	case model.ChannelFollow:
		return "last_follow_time", nil
	case model.ChannelMiniApp:
		return "last_mini_app_time", nil
	}
	return "", errors.Errorf("unknown channel %q", ch)
}

// GetPlayer retrieves the full player record.
func (s *sqlPlayerStore) GetPlayer(ctx context.Context, fid int64) (*model.PlayerRecord, error) {
	query := s.rebind(`
		SELECT fid, last_share_time, last_follow_time, last_mini_app_time, has_followed,
			gift_box_claims_in_period, last_gift_box_update, grant_version
		FROM players WHERE fid = ?`)

	var (
		p                            model.PlayerRecord
		share, follow, mini, giftBox sql.NullInt64
		hasFollowed                  int
	)
	err := s.db.QueryRowContext(ctx, query, fid).Scan(
		&p.FID, &share, &follow, &mini, &hasFollowed,
		&p.GiftBoxClaimsInPeriod, &giftBox, &p.GrantVersion,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get player")
	}

	p.LastShareTime = nullableMillis(share)
	p.LastFollowTime = nullableMillis(follow)
	p.LastMiniAppTime = nullableMillis(mini)
	p.LastGiftBoxUpdate = nullableMillis(giftBox)
	p.HasFollowed = hasFollowed != 0

	if p.Boosters, err = s.boosters(ctx, s.db, fid); err != nil {
		return nil, err
	}
	if p.BoosterTransactions, err = s.transactions(ctx, fid); err != nil {
		return nil, err
	}
	return &p, nil
}

func nullableMillis(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	ms := v.Int64
	return &ms
}

func (s *sqlPlayerStore) boosters(ctx context.Context, q queryer, fid int64) (map[string]int64, error) {
	rows, err := q.QueryContext(ctx, s.rebind(`SELECT kind, quantity FROM player_boosters WHERE fid = ?`), fid)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get boosters")
	}
	defer rows.Close()

	boosters := make(map[string]int64)
	for rows.Next() {
		var kind string
		var quantity int64
		if err := rows.Scan(&kind, &quantity); err != nil {
			return nil, errors.Wrap(err, "failed to scan booster")
		}
		boosters[kind] = quantity
	}
	return boosters, errors.Wrap(rows.Err(), "failed to read boosters")
}

func (s *sqlPlayerStore) transactions(ctx context.Context, fid int64) ([]model.BoosterTransaction, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT transaction_id, kind, quantity, created_at
		FROM booster_transactions WHERE fid = ?
		ORDER BY created_at, transaction_id`), fid)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get booster transactions")
	}
	defer rows.Close()

	txs := []model.BoosterTransaction{}
	for rows.Next() {
		var tx model.BoosterTransaction
		var kind string
		if err := rows.Scan(&tx.TransactionID, &kind, &tx.Quantity, &tx.Timestamp); err != nil {
			return nil, errors.Wrap(err, "failed to scan booster transaction")
		}
		tx.Kind, _ = model.ParseBoosterKind(kind)
		txs = append(txs, tx)
	}
	return txs, errors.Wrap(rows.Err(), "failed to read booster transactions")
}

func (s *sqlPlayerStore) ensurePlayer(ctx context.Context, q queryer, fid int64, now int64) error {
	_, err := q.ExecContext(ctx, s.rebind(`
		INSERT INTO players (fid, created_at, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (fid) DO NOTHING`), fid, now, now)
	return errors.Wrap(err, "failed to ensure player")
}

// ApplyGrant writes a grant guarded by grant_version.
func (s *sqlPlayerStore) ApplyGrant(ctx context.Context, fid int64, expectedVersion int64, update model.GrantUpdate) error {
	column, err := channelColumn(update.Channel)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	now := time.Now().UnixMilli()
	if err := s.ensurePlayer(ctx, tx, fid, now); err != nil {
		return err
	}

	set := column + ` = ?, gift_box_claims_in_period = ?, last_gift_box_update = ?,
		grant_version = grant_version + 1, updated_at = ?`
	if update.Channel == model.ChannelFollow {
		set += `, has_followed = 1`
	}
	res, err := tx.ExecContext(ctx, s.rebind(`UPDATE players SET `+set+` WHERE fid = ? AND grant_version = ?`),
		update.GrantTime, update.ClaimsInPeriod, update.LastGiftBoxUpdate, now, fid, expectedVersion)
	if err != nil {
		return errors.Wrap(err, "failed to apply grant")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to apply grant")
	}
	if n == 0 {
		return ErrGrantConflict
	}

	return errors.Wrap(tx.Commit(), "failed to commit grant")
}

// CreditBooster consumes the transaction id and increments the booster count atomically.
func (s *sqlPlayerStore) CreditBooster(ctx context.Context, fid int64, btx model.BoosterTransaction) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, s.rebind(`
		INSERT INTO booster_transactions (transaction_id, fid, kind, quantity, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (transaction_id) DO NOTHING`),
		btx.TransactionID, fid, btx.Kind.String(), btx.Quantity, btx.Timestamp)
	if err != nil {
		return 0, errors.Wrap(err, "failed to record transaction")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "failed to record transaction")
	}
	if n == 0 {
		return 0, ErrDuplicateTransaction
	}

	now := time.Now().UnixMilli()
	if err := s.ensurePlayer(ctx, tx, fid, now); err != nil {
		return 0, err
	}

	_, err = tx.ExecContext(ctx, s.rebind(`
		INSERT INTO player_boosters (fid, kind, quantity) VALUES (?, ?, ?)
		ON CONFLICT (fid, kind) DO UPDATE SET quantity = player_boosters.quantity + excluded.quantity`),
		fid, btx.Kind.String(), btx.Quantity)
	if err != nil {
		return 0, errors.Wrap(err, "failed to credit booster")
	}

	var total int64
	err = tx.QueryRowContext(ctx, s.rebind(`SELECT quantity FROM player_boosters WHERE fid = ? AND kind = ?`),
		fid, btx.Kind.String()).Scan(&total)
	if err != nil {
		return 0, errors.Wrap(err, "failed to read booster count")
	}

	if _, err := tx.ExecContext(ctx, s.rebind(`UPDATE players SET updated_at = ? WHERE fid = ?`), now, fid); err != nil {
		return 0, errors.Wrap(err, "failed to touch player")
	}

	if err := tx.Commit(); err != nil {
		return 0, errors.Wrap(err, "failed to commit credit")
	}
	return total, nil
}

// DebitBooster decrements only when enough boosters are held.
func (s *sqlPlayerStore) DebitBooster(ctx context.Context, fid int64, kind model.BoosterKind, quantity int64) (map[string]int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, s.rebind(`
		UPDATE player_boosters SET quantity = quantity - ?
		WHERE fid = ? AND kind = ? AND quantity >= ?`),
		quantity, fid, kind.String(), quantity)
	if err != nil {
		return nil, errors.Wrap(err, "failed to debit booster")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, errors.Wrap(err, "failed to debit booster")
	}
	if n == 0 {
		return nil, ErrInsufficientInventory
	}

	boosters, err := s.boosters(ctx, tx, fid)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "failed to commit debit")
	}
	return boosters, nil
}

// FindTransaction looks up a consumed transaction id.
func (s *sqlPlayerStore) FindTransaction(ctx context.Context, transactionID string) (*model.ConsumedTransaction, error) {
	var (
		ct   model.ConsumedTransaction
		kind string
	)
	err := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT transaction_id, fid, kind, quantity, created_at
		FROM booster_transactions WHERE transaction_id = ?`), transactionID).
		Scan(&ct.TransactionID, &ct.FID, &kind, &ct.Quantity, &ct.Timestamp)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find transaction")
	}
	ct.Kind, _ = model.ParseBoosterKind(kind)
	ct.Status = model.TxStatusCompleted
	return &ct, nil
}

// ReconcilePendingTransactions is a no-op: SQL stores never leave pending markers.
func (s *sqlPlayerStore) ReconcilePendingTransactions(ctx context.Context, threshold time.Duration) (int64, error) {
	return 0, nil
}

// GetStats returns statistics about the player tables.
func (s *sqlPlayerStore) GetStats(ctx context.Context) (map[string]interface{}, error) {
	stats := make(map[string]interface{})

	var players, txs int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM players").Scan(&players); err != nil {
		return nil, errors.Wrap(err, "failed to count players")
	}
	stats["total_players"] = players

	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM booster_transactions").Scan(&txs); err != nil {
		return nil, errors.Wrap(err, "failed to count transactions")
	}
	stats["total_transactions"] = txs

	var lastPurchase sql.NullInt64
	if err := s.db.QueryRowContext(ctx, "SELECT MAX(created_at) FROM booster_transactions").Scan(&lastPurchase); err == nil && lastPurchase.Valid {
		stats["last_purchase"] = time.UnixMilli(lastPurchase.Int64).UTC()
	}

	dbStats := s.db.Stats()
	stats["connections"] = map[string]interface{}{
		"open":     dbStats.OpenConnections,
		"in_use":   dbStats.InUse,
		"idle":     dbStats.Idle,
		"max_open": dbStats.MaxOpenConnections,
	}

	return stats, nil
}

// Ping checks the database connection.
func (s *sqlPlayerStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection pool.
func (s *sqlPlayerStore) Close() error {
	return s.db.Close()
}
