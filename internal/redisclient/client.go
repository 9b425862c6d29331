package redisclient

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

// pendingMarker holds an idempotency key while the first request is still running
const pendingMarker = "pending"

var ErrKeyInFlight = errors.New("idempotency key is being processed")

type Client struct {
	rdb *redis.Client
}

// NewClient creates a new Redis client
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

func idempotencyKey(scope, key string) string {
	return fmt.Sprintf("idempotency:%s:%s", scope, key)
}

// ClaimIdempotencyKey reserves key for the caller for pendingTTL. It returns the
// id stored by an earlier completed request, or 0 when the caller now owns the key.
// ErrKeyInFlight is returned while another request holds the key.
func (c *Client) ClaimIdempotencyKey(ctx context.Context, scope, key string, pendingTTL time.Duration) (int64, error) {
	k := idempotencyKey(scope, key)

	ok, err := c.rdb.SetNX(ctx, k, pendingMarker, pendingTTL).Result()
	if err != nil {
		return 0, fmt.Errorf("claim idempotency key: %w", err)
	}
	if ok {
		return 0, nil
	}

	val, err := c.rdb.Get(ctx, k).Result()
	if errors.Is(err, redis.Nil) {
		// expired between SETNX and GET; try once more
		return c.ClaimIdempotencyKey(ctx, scope, key, pendingTTL)
	}
	if err != nil {
		return 0, fmt.Errorf("read idempotency key: %w", err)
	}
	if val == pendingMarker {
		return 0, ErrKeyInFlight
	}

	id, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("corrupt idempotency value %q: %w", val, err)
	}
	return id, nil
}

// CompleteIdempotencyKey stores the id produced for a claimed key, replacing
// the pending marker and its short expiry with ttl
func (c *Client) CompleteIdempotencyKey(ctx context.Context, scope, key string, id int64, ttl time.Duration) error {
	return c.rdb.Set(ctx, idempotencyKey(scope, key), strconv.FormatInt(id, 10), ttl).Err()
}

// ReleaseIdempotencyKey frees a claimed key after a failed request so the
// client may retry
func (c *Client) ReleaseIdempotencyKey(ctx context.Context, scope, key string) error {
	return c.rdb.Del(ctx, idempotencyKey(scope, key)).Err()
}

func categoryFeeKey(categoryID int64) string {
	return fmt.Sprintf("fee:category:%d", categoryID)
}

// GetCategoryFee returns a cached category base fee
func (c *Client) GetCategoryFee(ctx context.Context, categoryID int64) (int64, bool, error) {
	val, err := c.rdb.Get(ctx, categoryFeeKey(categoryID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return val, true, nil
}

// SetCategoryFee caches a category base fee
func (c *Client) SetCategoryFee(ctx context.Context, categoryID, fee int64, ttl time.Duration) error {
	return c.rdb.Set(ctx, categoryFeeKey(categoryID), fee, ttl).Err()
}
