package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"agromarket-notifier/internal/domain"

	"github.com/go-redis/redis/v8"
)

// RedisListingCache holds per-seller snapshots of the open-auction listing.
// The TTL is a safety net; the usual refresh path is an invalidation signal.
type RedisListingCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisListingCache(client *redis.Client, ttl time.Duration) *RedisListingCache {
	return &RedisListingCache{client: client, ttl: ttl}
}

func (r *RedisListingCache) SetOpenAuctions(ctx context.Context, sellerID string, auctions []*domain.Auction) error {
	data, err := json.Marshal(auctions)
	if err != nil {
		return err
	}

	key := fmt.Sprintf("listings:%s", sellerID)
	return r.client.Set(ctx, key, data, r.ttl).Err()
}

func (r *RedisListingCache) GetOpenAuctions(ctx context.Context, sellerID string) ([]*domain.Auction, bool, error) {
	key := fmt.Sprintf("listings:%s", sellerID)

	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}

	var auctions []*domain.Auction
	if err := json.Unmarshal(data, &auctions); err != nil {
		return nil, false, err
	}
	return auctions, true, nil
}

func (r *RedisListingCache) Invalidate(ctx context.Context, sellerID string) error {
	key := fmt.Sprintf("listings:%s", sellerID)
	return r.client.Del(ctx, key).Err()
}
