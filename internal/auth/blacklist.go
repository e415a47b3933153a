package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/redis/go-redis/v9"
)

// CachedBlacklist layers a Redis lookaside cache over a durable blacklist
// store. Membership is written through on Add; Contains consults the cache
// first and falls back to the durable store on a miss or a Redis error, so
// a dead cache only costs latency, never correctness.
type CachedBlacklist struct {
	store  BlacklistStore
	client *redis.Client
	prefix string
	ttl    time.Duration
}

var _ BlacklistStore = (*CachedBlacklist)(nil)

// NewCachedBlacklist wraps store with a Redis cache. ttl bounds how long a
// positive membership entry lives in Redis; it should exceed the access
// token TTL so revoked tokens stay cached until expiry rejects them anyway.
func NewCachedBlacklist(store BlacklistStore, client *redis.Client, ttl time.Duration) *CachedBlacklist {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &CachedBlacklist{
		store:  store,
		client: client,
		prefix: "phoshare:revoked:",
		ttl:    ttl,
	}
}

func (c *CachedBlacklist) key(token string) string {
	// Tokens are long; key on a digest instead of the literal value.
	sum := sha256.Sum256([]byte(token))
	return c.prefix + hex.EncodeToString(sum[:])
}

func (c *CachedBlacklist) Add(ctx context.Context, token string) error {
	if err := c.store.Add(ctx, token); err != nil {
		return err
	}
	// Cache write failures are tolerated: the durable row already exists.
	_ = c.client.Set(ctx, c.key(token), "1", c.ttl).Err()
	return nil
}

func (c *CachedBlacklist) Contains(ctx context.Context, token string) (bool, error) {
	n, err := c.client.Exists(ctx, c.key(token)).Result()
	if err == nil && n > 0 {
		return true, nil
	}
	// Miss or cache error: the durable store decides.
	revoked, err := c.store.Contains(ctx, token)
	if err != nil {
		return false, err
	}
	if revoked {
		_ = c.client.Set(ctx, c.key(token), "1", c.ttl).Err()
	}
	return revoked, nil
}
