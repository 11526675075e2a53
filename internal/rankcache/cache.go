package rankcache

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/obstacle-community/records/internal/config"
	"github.com/obstacle-community/records/internal/domain"
)

// Cache provides the Redis-backed rank cache: per-map sorted sets for
// leaderboards, mappack score keys, auth tokens and the global rankings.
// Everything in here is derived state rebuildable from MySQL.
type Cache struct {
	client *redis.Client
	logger *slog.Logger
}

// New connects to Redis from the configured URL
func New(cfg *config.RedisConfig, logger *slog.Logger) (*Cache, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns
	opts.DialTimeout = cfg.DialTimeout
	opts.ReadTimeout = cfg.ReadTimeout
	opts.WriteTimeout = cfg.WriteTimeout

	client := redis.NewClient(opts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return &Cache{client: client, logger: logger}, nil
}

// NewFromClient wraps an existing client, used by tests
func NewFromClient(client *redis.Client, logger *slog.Logger) *Cache {
	return &Cache{client: client, logger: logger}
}

// Close closes the Redis connection
func (c *Cache) Close() error {
	return c.client.Close()
}

// Client returns the underlying Redis client
func (c *Cache) Client() *redis.Client {
	return c.client
}

// leaderboardKey returns the sorted-set key for a (map, scope) leaderboard
func leaderboardKey(mapID uint32, scope domain.EventScope) string {
	if scope.IsGlobal() {
		return fmt.Sprintf("v3:lb:%d", mapID)
	}
	return fmt.Sprintf("v3:lb:%d:event:%d:%d", mapID, scope.EventID, scope.EditionID)
}

// mappackKey returns the set key holding a mappack's map uids
func mappackKey(scope string) string {
	return "v3:mappack:" + scope
}

// mappackPlayerKey returns the per-player rank sorted set of a mappack
func mappackPlayerKey(scope string, playerID uint32) string {
	return fmt.Sprintf("v3:mappack:%s:player:%d", scope, playerID)
}

// mappackLastRankKey returns the key holding a map's worst rank in a mappack
func mappackLastRankKey(scope, mapUID string) string {
	return fmt.Sprintf("v3:mappack:%s:last_rank:%s", scope, mapUID)
}

// mappackScoresKey returns the aggregate score sorted set of a mappack
func mappackScoresKey(scope string) string {
	return fmt.Sprintf("v3:mappack:%s:scores", scope)
}

// mappacksKey is the registry of ad-hoc mappack ids
const mappacksKey = "v3:mappacks"

func mpTokenKey(login string) string  { return "v3:mp_token:" + login }
func webTokenKey(login string) string { return "v3:web_token:" + login }

const (
	playerRankingKey = "v3:player_ranking"
	mapRankingKey    = "v3:map_ranking"
)

// EditionScope renders an edition's cache scope component
func EditionScope(scope domain.EventScope) string {
	return strconv.FormatUint(uint64(scope.EventID), 10) + ":" + strconv.FormatUint(uint64(scope.EditionID), 10)
}
