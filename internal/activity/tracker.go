// Package activity tracks recent event volume in Redis. The counters
// feed the rule evaluator's context; when Redis is unavailable the
// tracker degrades to zero counts rather than blocking the pipeline.
package activity

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const bucketSize = time.Hour

// Tracker counts events in fixed hourly buckets and sums them over a
// sliding window.
type Tracker struct {
	redis   *redis.Client
	window  time.Duration
	enabled bool
}

// NewTracker creates a tracker summing counts over window. A nil client
// or enabled=false produces a disabled tracker that always reports zero.
func NewTracker(redisClient *redis.Client, window time.Duration, enabled bool) *Tracker {
	if window <= 0 {
		window = 24 * time.Hour
	}
	return &Tracker{
		redis:   redisClient,
		window:  window,
		enabled: enabled,
	}
}

// IsEnabled returns whether the tracker is backed by Redis.
func (t *Tracker) IsEnabled() bool {
	return t.enabled && t.redis != nil
}

// Record counts one event at ts.
func (t *Tracker) Record(ctx context.Context, ts time.Time) error {
	if !t.IsEnabled() {
		return nil
	}

	key := t.bucketKey(ts)
	pipe := t.redis.TxPipeline()
	pipe.Incr(ctx, key)
	// Buckets outlive the window by one slot so a window straddling a
	// bucket boundary still sees full data.
	pipe.Expire(ctx, key, t.window+bucketSize)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to record activity: %w", err)
	}
	return nil
}

// RecentCount sums event counts over the sliding window ending at now.
func (t *Tracker) RecentCount(ctx context.Context, now time.Time) (int64, error) {
	if !t.IsEnabled() {
		return 0, nil
	}

	buckets := int(t.window/bucketSize) + 1
	keys := make([]string, 0, buckets)
	for i := 0; i < buckets; i++ {
		keys = append(keys, t.bucketKey(now.Add(-time.Duration(i)*bucketSize)))
	}

	values, err := t.redis.MGet(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read activity counters: %w", err)
	}

	var total int64
	for _, v := range values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			continue
		}
		total += n
	}
	return total, nil
}

func (t *Tracker) bucketKey(ts time.Time) string {
	return fmt.Sprintf("veridian:activity:%d", ts.UTC().Unix()/int64(bucketSize.Seconds()))
}
