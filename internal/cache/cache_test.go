package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/uniform-points/internal/model"
)

func TestNoopSummaryCacheAlwaysMisses(t *testing.T) {
	ctx := context.Background()
	var c NoopSummaryCache

	require.NoError(t, c.Set(ctx, &model.PointSummary{PersonID: 1, Granted: 10}, time.Minute))
	_, ok, err := c.Get(ctx, 1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLocalLockerExcludesConcurrentHolders(t *testing.T) {
	ctx := context.Background()
	l := NewLocalLocker()

	lock, err := l.Obtain(ctx, "grant:2026", time.Minute)
	require.NoError(t, err)

	_, err = l.Obtain(ctx, "grant:2026", time.Minute)
	require.ErrorIs(t, err, ErrNotObtained)

	other, err := l.Obtain(ctx, "grant:2027", time.Minute)
	require.NoError(t, err)
	require.NoError(t, other.Release(ctx))

	require.NoError(t, lock.Release(ctx))
	again, err := l.Obtain(ctx, "grant:2026", time.Minute)
	require.NoError(t, err)
	require.NoError(t, again.Release(ctx))
}

func TestLocalLockerExpires(t *testing.T) {
	ctx := context.Background()
	l := NewLocalLocker()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	stale, err := l.Obtain(ctx, "grant:2026", time.Second)
	require.NoError(t, err)

	now = now.Add(2 * time.Second)
	fresh, err := l.Obtain(ctx, "grant:2026", time.Minute)
	require.NoError(t, err)

	require.NoError(t, stale.Release(ctx))
	_, err = l.Obtain(ctx, "grant:2026", time.Minute)
	require.ErrorIs(t, err, ErrNotObtained, "stale release must not drop a newer holder")
	require.NoError(t, fresh.Release(ctx))
}

func redisAddr(t *testing.T) string {
	addr := os.Getenv("UNIFORMPOINTS_TEST_REDIS_ADDRESS")
	if addr == "" {
		t.Skip("UNIFORMPOINTS_TEST_REDIS_ADDRESS is not set")
	}
	return addr
}

func TestRedisSummaryCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	client, err := NewRedisClient(ctx, redisAddr(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	c := NewRedisSummaryCache(client)
	require.NoError(t, c.Invalidate(ctx, 9001))

	_, ok, err := c.Get(ctx, 9001)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, &model.PointSummary{PersonID: 9001, Granted: 650000, Reserved: 50000}, time.Minute))
	got, ok, err := c.Get(ctx, 9001)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(600000), got.Available())

	require.NoError(t, c.Invalidate(ctx, 9001))
	_, ok, err = c.Get(ctx, 9001)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisLockerExcludesConcurrentHolders(t *testing.T) {
	ctx := context.Background()
	client, err := NewRedisClient(ctx, redisAddr(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	l := NewRedisLocker(client)
	lock, err := l.Obtain(ctx, "test:grant:2026", 5*time.Second)
	require.NoError(t, err)

	_, err = l.Obtain(ctx, "test:grant:2026", 5*time.Second)
	require.ErrorIs(t, err, ErrNotObtained)

	require.NoError(t, lock.Release(ctx))
}

func TestSupersedes(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	cached := &model.PointSummary{PersonID: 1, UpdatedAt: base}

	assert.True(t, Supersedes(&model.PointSummary{UpdatedAt: base}, nil))
	assert.True(t, Supersedes(&model.PointSummary{UpdatedAt: base.Add(time.Microsecond)}, cached))
	assert.False(t, Supersedes(&model.PointSummary{UpdatedAt: base}, cached))
	assert.False(t, Supersedes(&model.PointSummary{UpdatedAt: base.Add(-time.Second)}, cached))
}

func TestRedisSummaryCacheKeepsNewerSummary(t *testing.T) {
	ctx := context.Background()
	client, err := NewRedisClient(ctx, redisAddr(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	c := NewRedisSummaryCache(client)
	require.NoError(t, c.Invalidate(ctx, 9002))
	t.Cleanup(func() { _ = c.Invalidate(ctx, 9002) })

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	fresh := &model.PointSummary{PersonID: 9002, Granted: 650000, Reserved: 50000, UpdatedAt: base.Add(time.Second)}
	stale := &model.PointSummary{PersonID: 9002, Granted: 650000, UpdatedAt: base}

	require.NoError(t, c.Set(ctx, fresh, time.Minute))
	require.NoError(t, c.Set(ctx, stale, time.Minute))

	got, ok, err := c.Get(ctx, 9002)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(600000), got.Available(), "older summary must not replace a newer one")

	newer := &model.PointSummary{PersonID: 9002, Granted: 650000, Reserved: 75000, UpdatedAt: base.Add(2 * time.Second)}
	require.NoError(t, c.Set(ctx, newer, time.Minute))
	got, ok, err = c.Get(ctx, 9002)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(575000), got.Available())
}
