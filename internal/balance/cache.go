package balance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// Cache keeps computed balances in Redis behind a per-customer version
// counter. Bumping the counter makes every older entry unreachable.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	group  singleflight.Group
}

// NewCache instantiates the cache helper. A nil client disables caching.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Cache{client: client, ttl: ttl}
}

func versionKey(customerID int64) string {
	return fmt.Sprintf("balance:customer:%d:version", customerID)
}

func entryKey(customerID, version int64) string {
	return fmt.Sprintf("balance:customer:%d:v%d", customerID, version)
}

// Version returns the current version of a customer's balance.
func (c *Cache) Version(ctx context.Context, customerID int64) (int64, error) {
	ver, err := c.client.Get(ctx, versionKey(customerID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return ver, err
}

// Fetch returns the cached balance or computes it with loader. Concurrent
// misses for the same version share one loader call.
func (c *Cache) Fetch(ctx context.Context, customerID int64, loader func(context.Context) (Balance, error)) (Balance, error) {
	if c == nil || c.client == nil {
		return loader(ctx)
	}
	ver, err := c.Version(ctx, customerID)
	if err != nil {
		return Balance{}, fmt.Errorf("balance cache: version: %w", err)
	}
	key := entryKey(customerID, ver)
	payload, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var b Balance
		if err := json.Unmarshal(payload, &b); err == nil {
			return b, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		return Balance{}, fmt.Errorf("balance cache: get: %w", err)
	}

	ch := c.group.DoChan(key, func() (any, error) {
		b, err := loader(ctx)
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(b)
		if err != nil {
			return nil, err
		}
		if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
			return nil, fmt.Errorf("balance cache: set: %w", err)
		}
		return b, nil
	})
	select {
	case <-ctx.Done():
		return Balance{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Balance{}, res.Err
		}
		return res.Val.(Balance), nil
	}
}

// Bump invalidates a customer's cached balance.
func (c *Cache) Bump(ctx context.Context, customerID int64) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Incr(ctx, versionKey(customerID)).Err()
}
