package rankcache

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// HashToken hashes a raw bearer token for storage. Only hashes ever reach
// Redis; the raw tokens are returned to the clients exactly once.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// StoreTokens stores the hashed (mp_token, web_token) pair for a login with
// the configured TTL, replacing any previous pair.
func (c *Cache) StoreTokens(ctx context.Context, login, mpTokenHash, webTokenHash string, ttl time.Duration) error {
	pipe := c.client.TxPipeline()
	pipe.Set(ctx, mpTokenKey(login), mpTokenHash, ttl)
	pipe.Set(ctx, webTokenKey(login), webTokenHash, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("storing tokens: %w", err)
	}
	return nil
}

// CheckMPToken verifies a raw game token against the stored hash. The
// result never distinguishes an absent key from a mismatch.
func (c *Cache) CheckMPToken(ctx context.Context, login, rawToken string) (bool, error) {
	return c.checkToken(ctx, mpTokenKey(login), rawToken)
}

// CheckWebToken verifies a raw website token against the stored hash.
func (c *Cache) CheckWebToken(ctx context.Context, login, rawToken string) (bool, error) {
	return c.checkToken(ctx, webTokenKey(login), rawToken)
}

func (c *Cache) checkToken(ctx context.Context, key, rawToken string) (bool, error) {
	stored, err := c.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("reading token hash: %w", err)
	}
	hashed := HashToken(rawToken)
	return subtle.ConstantTimeCompare([]byte(stored), []byte(hashed)) == 1, nil
}

// TokenTTL reports the remaining lifetime of a login's game token
func (c *Cache) TokenTTL(ctx context.Context, login string) (time.Duration, error) {
	ttl, err := c.client.TTL(ctx, mpTokenKey(login)).Result()
	if err != nil {
		return 0, fmt.Errorf("reading token ttl: %w", err)
	}
	return ttl, nil
}
