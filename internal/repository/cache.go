package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"bankledger/internal/model"

	"github.com/redis/go-redis/v9"
)

var ErrCacheMiss = errors.New("account not found in cache")

// AccountCache is a read-through cache of account snapshots kept in Redis.
// Keys are namespaced by prefix so several deployments can share a server.
type AccountCache struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

func NewAccountCache(rdb *redis.Client, prefix string, ttl time.Duration) *AccountCache {
	return &AccountCache{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (c *AccountCache) key(id int64) string {
	return fmt.Sprintf("%s_account:%d", c.prefix, id)
}

func (c *AccountCache) Get(ctx context.Context, id int64) (*model.Account, error) {
	data, err := c.rdb.Get(ctx, c.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var acc model.Account
	if err := json.Unmarshal(data, &acc); err != nil {
		return nil, fmt.Errorf("decode cached account %d: %w", id, err)
	}
	return &acc, nil
}

func (c *AccountCache) Set(ctx context.Context, acc *model.Account) error {
	data, err := json.Marshal(acc)
	if err != nil {
		return fmt.Errorf("encode account %d: %w", acc.ID, err)
	}
	if err := c.rdb.Set(ctx, c.key(acc.ID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (c *AccountCache) Delete(ctx context.Context, id int64) error {
	if err := c.rdb.Del(ctx, c.key(id)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
