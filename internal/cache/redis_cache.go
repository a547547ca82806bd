package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisCache(rdb *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{rdb: rdb, ttl: ttl}
}

type sentValue struct {
	ProviderMessageID string    `json:"providerMessageId"`
	SentAt            time.Time `json:"sentAt"`
}

func targetKey(targetID string) string {
	return fmt.Sprintf("target:%s", targetID)
}

func (c *RedisCache) StoreSent(ctx context.Context, targetID, providerMessageID string, sentAt time.Time) error {
	val := sentValue{
		ProviderMessageID: providerMessageID,
		SentAt:            sentAt.UTC(),
	}

	b, err := json.Marshal(val)
	if err != nil {
		return err
	}

	return c.rdb.Set(ctx, targetKey(targetID), b, c.ttl).Err()
}

// LookupSent returns the cached send record, or ok=false when the key is
// missing or expired.
func (c *RedisCache) LookupSent(ctx context.Context, targetID string) (providerMessageID string, sentAt time.Time, ok bool, err error) {
	raw, err := c.rdb.Get(ctx, targetKey(targetID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return "", time.Time{}, false, nil
	}
	if err != nil {
		return "", time.Time{}, false, err
	}

	var v sentValue
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", time.Time{}, false, fmt.Errorf("decode sent record: %w", err)
	}
	return v.ProviderMessageID, v.SentAt, true, nil
}
