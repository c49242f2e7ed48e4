package placement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrBatchLocked = errors.New("placement: batch locked by another run")

const (
	lockKeyPrefix     = "assignment:lock:"
	resultKeyPrefix   = "assignment:result:"
	deliveryKeyPrefix = "assignment:notified:"
)

// Deletes the lock only if the caller still owns it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

func LockKey(batchID string) string   { return lockKeyPrefix + batchID }
func ResultKey(batchID string) string { return resultKeyPrefix + batchID }

func DeliveryKey(notificationID, channel string) string {
	return deliveryKeyPrefix + notificationID + ":" + channel
}

// RunStore holds the per-batch run lock and the cached summary of the last
// committed run.
type RunStore struct {
	rdb       redis.Cmdable
	lockTTL   time.Duration
	resultTTL time.Duration
}

func NewRunStore(rdb redis.Cmdable, lockTTL, resultTTL time.Duration) *RunStore {
	return &RunStore{rdb: rdb, lockTTL: lockTTL, resultTTL: resultTTL}
}

// Acquire takes the batch lock for token or returns ErrBatchLocked.
func (s *RunStore) Acquire(ctx context.Context, batchID, token string) error {
	ok, err := s.rdb.SetNX(ctx, LockKey(batchID), token, s.lockTTL).Result()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrBatchLocked, batchID)
	}
	return nil
}

// Release drops the lock if token still holds it. An expired or stolen
// lock is left alone.
func (s *RunStore) Release(ctx context.Context, batchID, token string) error {
	if err := releaseScript.Run(ctx, s.rdb, []string{LockKey(batchID)}, token).Err(); err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	return nil
}

// Summary returns the cached summary, or nil when there is none.
func (s *RunStore) Summary(ctx context.Context, batchID string) (*Summary, error) {
	raw, err := s.rdb.Get(ctx, ResultKey(batchID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read cached summary: %w", err)
	}

	var sum Summary
	if err := json.Unmarshal(raw, &sum); err != nil {
		return nil, fmt.Errorf("decode cached summary: %w", err)
	}
	return &sum, nil
}

func (s *RunStore) PutSummary(ctx context.Context, sum *Summary) error {
	data, err := json.Marshal(sum)
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	if err := s.rdb.Set(ctx, ResultKey(sum.BatchID), data, s.resultTTL).Err(); err != nil {
		return fmt.Errorf("cache summary: %w", err)
	}
	return nil
}

func (s *RunStore) Invalidate(ctx context.Context, batchID string) error {
	return s.rdb.Del(ctx, ResultKey(batchID)).Err()
}

// DeliveryLog remembers which channels a notification already went out on,
// so a retried job does not send it twice.
type DeliveryLog struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewDeliveryLog(rdb redis.Cmdable, ttl time.Duration) *DeliveryLog {
	return &DeliveryLog{rdb: rdb, ttl: ttl}
}

func (l *DeliveryLog) Delivered(ctx context.Context, notificationID, channel string) (bool, error) {
	n, err := l.rdb.Exists(ctx, DeliveryKey(notificationID, channel)).Result()
	if err != nil {
		return false, fmt.Errorf("read delivery: %w", err)
	}
	return n > 0, nil
}

func (l *DeliveryLog) MarkDelivered(ctx context.Context, notificationID, channel string) error {
	if err := l.rdb.Set(ctx, DeliveryKey(notificationID, channel), "1", l.ttl).Err(); err != nil {
		return fmt.Errorf("record delivery: %w", err)
	}
	return nil
}
