package repository

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"giftbox-rest-api/internal/logger"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	_ "modernc.org/sqlite" // Pure Go SQLite driver - no CGO required
)

// SQLitePlayerRepository implements PlayerRepository using SQLite.
// A single connection serialises writers; WAL keeps readers cheap.
type SQLitePlayerRepository struct {
	*sqlPlayerStore
}

// NewSQLitePlayerRepository opens (and creates if needed) the database at dbPath.
func NewSQLitePlayerRepository(dbPath string) (*SQLitePlayerRepository, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrap(err, "failed to create SQLite directory")
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open SQLite")
	}

	// SQLite only supports 1 writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	store := &sqlPlayerStore{db: db, dialect: dialectSQLite}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := store.createTables(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to create tables")
	}

	logger.Info("sqlite player store initialized", zap.String("path", dbPath))
	return &SQLitePlayerRepository{sqlPlayerStore: store}, nil
}

// GetStats adds the database file size to the common statistics.
func (r *SQLitePlayerRepository) GetStats(ctx context.Context) (map[string]interface{}, error) {
	stats, err := r.sqlPlayerStore.GetStats(ctx)
	if err != nil {
		return nil, err
	}

	var pageCount, pageSize int64
	if r.db.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount) == nil &&
		r.db.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize) == nil {
		stats["db_size_bytes"] = pageCount * pageSize
	}
	return stats, nil
}

// Ensure SQLitePlayerRepository implements PlayerRepository
var _ PlayerRepository = (*SQLitePlayerRepository)(nil)
