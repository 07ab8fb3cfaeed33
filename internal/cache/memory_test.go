package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCacheExpiry(t *testing.T) {
	c := NewMemoryCache()
	defer c.Close()

	now := time.Unix(1_700_000_000, 0)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))
	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)

	now = now.Add(2 * time.Minute)
	_, err = c.Get(ctx, "k")
	assert.Equal(t, ErrCacheMiss, err)

	ok, err := c.Exists(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	c.removeExpired()
	assert.Zero(t, c.Len())
}

func TestMemoryCacheSetIfAbsent(t *testing.T) {
	c := NewMemoryCache()
	defer c.Close()
	ctx := context.Background()

	stored, err := c.SetIfAbsent(ctx, "tx:1", []byte("a"), time.Minute)
	require.NoError(t, err)
	assert.True(t, stored)

	stored, err = c.SetIfAbsent(ctx, "tx:1", []byte("b"), time.Minute)
	require.NoError(t, err)
	assert.False(t, stored)

	got, _ := c.Get(ctx, "tx:1")
	assert.Equal(t, []byte("a"), got)
}

func TestMemoryCacheGetOrSetSharesComputation(t *testing.T) {
	c := NewMemoryCache()
	defer c.Close()
	ctx := context.Background()

	var calls int32
	release := make(chan struct{})
	fn := func() ([]byte, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return []byte("computed"), nil
	}

	var wg sync.WaitGroup
	results := make([][]byte, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = c.GetOrSet(ctx, "shared", time.Minute, fn)
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.LessOrEqual(t, atomic.LoadInt32(&calls), int32(5))
	for _, r := range results {
		assert.Equal(t, []byte("computed"), r)
	}

	// cached now
	v, err := c.GetOrSet(ctx, "shared", time.Minute, func() ([]byte, error) {
		t.Fatal("should not recompute")
		return nil, nil
	})
	require.NoError(t, err)
	assert.Equal(t, []byte("computed"), v)
}

func TestMemoryCacheClear(t *testing.T) {
	c := NewMemoryCache()
	defer c.Close()
	ctx := context.Background()

	_ = c.Set(ctx, "a", []byte("1"), time.Minute)
	_ = c.Set(ctx, "b", []byte("2"), time.Minute)
	require.NoError(t, c.Clear(ctx))
	assert.Zero(t, c.Len())
	assert.NoError(t, c.Close())
	assert.NoError(t, c.Close())
}
