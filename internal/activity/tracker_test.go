package activity

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTracker(t *testing.T, window time.Duration) (*Tracker, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewTracker(client, window, true), mr
}

func TestRecordAndRecentCount(t *testing.T) {
	tracker, _ := setupTracker(t, 4*time.Hour)
	ctx := context.Background()
	now := time.Now()

	for i := 0; i < 3; i++ {
		require.NoError(t, tracker.Record(ctx, now))
	}

	count, err := tracker.RecentCount(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}

func TestRecentCountSpansBuckets(t *testing.T) {
	tracker, _ := setupTracker(t, 4*time.Hour)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, tracker.Record(ctx, now))
	require.NoError(t, tracker.Record(ctx, now.Add(-time.Hour)))
	require.NoError(t, tracker.Record(ctx, now.Add(-3*time.Hour)))

	count, err := tracker.RecentCount(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}

func TestRecentCountExcludesOldBuckets(t *testing.T) {
	tracker, _ := setupTracker(t, 2*time.Hour)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, tracker.Record(ctx, now))
	require.NoError(t, tracker.Record(ctx, now.Add(-6*time.Hour)))

	count, err := tracker.RecentCount(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestBucketsExpire(t *testing.T) {
	tracker, mr := setupTracker(t, 2*time.Hour)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, tracker.Record(ctx, now))
	mr.FastForward(4 * time.Hour)

	count, err := tracker.RecentCount(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func TestDisabledTracker(t *testing.T) {
	tracker := NewTracker(nil, time.Hour, false)
	ctx := context.Background()

	assert.False(t, tracker.IsEnabled())
	require.NoError(t, tracker.Record(ctx, time.Now()))

	count, err := tracker.RecentCount(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}
