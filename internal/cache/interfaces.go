package cache

import (
	"context"
	"time"
)

// Cache is the read-through cache shared by wallet lookups, the purchase
// fast path and session tokens. Entries are hints: the player store stays
// authoritative, so a miss or an unavailable backend never changes an outcome.
type Cache interface {
	// Get retrieves a value by key. Returns ErrCacheMiss if not found.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value with the given TTL.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// SetIfAbsent stores a value only if the key is missing. Reports whether it stored.
	SetIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)

	// Delete removes a value by key.
	Delete(ctx context.Context, key string) error

	// Exists checks if a key exists in the cache.
	Exists(ctx context.Context, key string) (bool, error)

	// GetOrSet retrieves a value or computes and stores it if missing.
	// Concurrent callers for the same key share one computation.
	GetOrSet(ctx context.Context, key string, ttl time.Duration, fn func() ([]byte, error)) ([]byte, error)

	// Clear removes all entries owned by this cache.
	Clear(ctx context.Context) error

	// Close releases background resources.
	Close() error
}

// Common cache errors
type CacheError string

func (e CacheError) Error() string { return string(e) }

const (
	// ErrCacheMiss indicates the key was not found in cache.
	ErrCacheMiss CacheError = "cache miss"
)

// Key namespaces.
const (
	WalletKeyPrefix      = "wallets:"
	TransactionKeyPrefix = "tx:"
	TokenKeyPrefix       = "token:"
)
