package pending

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/punchamoorthee/payflow/internal/domain"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "payflow:pending:"

// Redis is a Store backing for deployments that want pending bookkeeping
// to survive a process restart or be shared across replicas. Key TTLs
// mirror the retention window, so Redis expires records on its own even
// between sweeps.
type Redis struct {
	client *redis.Client
	maxAge time.Duration
}

var _ Store = (*Redis)(nil)

func NewRedis(client *redis.Client, maxAge time.Duration) *Redis {
	return &Redis{client: client, maxAge: maxAge}
}

func (r *Redis) Put(ctx context.Context, rec domain.PendingPayment) error {
	encoded, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("pending record encoding failed: %w", err)
	}
	if err := r.client.Set(ctx, redisKeyPrefix+rec.Reference, encoded, r.maxAge).Err(); err != nil {
		return fmt.Errorf("pending record write failed: %w", err)
	}
	return nil
}

func (r *Redis) Get(ctx context.Context, reference string) (domain.PendingPayment, bool, error) {
	raw, err := r.client.Get(ctx, redisKeyPrefix+reference).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.PendingPayment{}, false, nil
	}
	if err != nil {
		return domain.PendingPayment{}, false, fmt.Errorf("pending record read failed: %w", err)
	}
	return decodeRecord(raw)
}

// Remove relies on GETDEL for the atomic take: when two callers race,
// Redis hands the value to exactly one of them.
func (r *Redis) Remove(ctx context.Context, reference string) (domain.PendingPayment, bool, error) {
	raw, err := r.client.GetDel(ctx, redisKeyPrefix+reference).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.PendingPayment{}, false, nil
	}
	if err != nil {
		return domain.PendingPayment{}, false, fmt.Errorf("pending record take failed: %w", err)
	}
	return decodeRecord(raw)
}

// SweepExpired walks the keyspace and deletes records older than maxAge.
// TTLs already cover normal expiry; the sweep exists so a shortened
// retention window takes effect without waiting out old TTLs.
func (r *Redis) SweepExpired(ctx context.Context, now time.Time, maxAge time.Duration) (int, error) {
	removed := 0
	iter := r.client.Scan(ctx, 0, redisKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		raw, err := r.client.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return removed, fmt.Errorf("pending record read failed: %w", err)
		}

		var rec domain.PendingPayment
		if err := json.Unmarshal(raw, &rec); err != nil {
			// Unreadable records are garbage either way.
			r.client.Del(ctx, key)
			removed++
			continue
		}
		if now.Sub(rec.CreatedAt) > maxAge {
			if deleted, err := r.client.Del(ctx, key).Result(); err == nil && deleted > 0 {
				removed++
			}
		}
	}
	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("pending keyspace scan failed: %w", err)
	}
	return removed, nil
}

func (r *Redis) Size(ctx context.Context) (int, error) {
	entries, err := r.Entries(ctx)
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}

func (r *Redis) Entries(ctx context.Context) ([]domain.PendingPayment, error) {
	var entries []domain.PendingPayment
	iter := r.client.Scan(ctx, 0, redisKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		raw, err := r.client.Get(ctx, iter.Val()).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("pending record read failed: %w", err)
		}
		rec, ok, err := decodeRecord(raw)
		if err != nil || !ok {
			continue
		}
		entries = append(entries, rec)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("pending keyspace scan failed: %w", err)
	}
	return entries, nil
}

func decodeRecord(raw []byte) (domain.PendingPayment, bool, error) {
	var rec domain.PendingPayment
	if err := json.Unmarshal(raw, &rec); err != nil {
		return domain.PendingPayment{}, false, fmt.Errorf("pending record decoding failed: %w", err)
	}
	return rec, true, nil
}
