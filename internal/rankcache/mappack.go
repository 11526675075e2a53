package rankcache

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// SetMappackMaps replaces the set of map uids composing a mappack
func (c *Cache) SetMappackMaps(ctx context.Context, scope string, uids []string) error {
	key := mappackKey(scope)
	pipe := c.client.TxPipeline()
	pipe.Del(ctx, key)
	if len(uids) > 0 {
		members := make([]interface{}, len(uids))
		for i, uid := range uids {
			members[i] = uid
		}
		pipe.SAdd(ctx, key, members...)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("setting mappack maps: %w", err)
	}
	return nil
}

// MappackMaps returns the map uids of a mappack
func (c *Cache) MappackMaps(ctx context.Context, scope string) ([]string, error) {
	uids, err := c.client.SMembers(ctx, mappackKey(scope)).Result()
	if err != nil {
		return nil, fmt.Errorf("reading mappack maps: %w", err)
	}
	return uids, nil
}

// SetPlayerMapRanks replaces the per-map ranks of one player in a mappack
func (c *Cache) SetPlayerMapRanks(ctx context.Context, scope string, playerID uint32, ranks map[string]int64) error {
	key := mappackPlayerKey(scope, playerID)
	pipe := c.client.TxPipeline()
	pipe.Del(ctx, key)
	for uid, rank := range ranks {
		pipe.ZAdd(ctx, key, redis.Z{Score: float64(rank), Member: uid})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("setting player map ranks: %w", err)
	}
	return nil
}

// PlayerMapRanks returns a player's rank on each mappack map
func (c *Cache) PlayerMapRanks(ctx context.Context, scope string, playerID uint32) (map[string]int64, error) {
	zs, err := c.client.ZRangeWithScores(ctx, mappackPlayerKey(scope, playerID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("reading player map ranks: %w", err)
	}
	out := make(map[string]int64, len(zs))
	for _, z := range zs {
		uid, ok := z.Member.(string)
		if !ok {
			continue
		}
		out[uid] = int64(z.Score)
	}
	return out, nil
}

// SetLastRank stores the worst rank held on a mappack map
func (c *Cache) SetLastRank(ctx context.Context, scope, mapUID string, lastRank int64) error {
	if err := c.client.Set(ctx, mappackLastRankKey(scope, mapUID), lastRank, 0).Err(); err != nil {
		return fmt.Errorf("setting last rank: %w", err)
	}
	return nil
}

// LastRank reads the worst rank held on a mappack map, zero when unset
func (c *Cache) LastRank(ctx context.Context, scope, mapUID string) (int64, error) {
	v, err := c.client.Get(ctx, mappackLastRankKey(scope, mapUID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("reading last rank: %w", err)
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing last rank: %w", err)
	}
	return n, nil
}

// SetMappackScores replaces the aggregate score sorted set of a mappack
func (c *Cache) SetMappackScores(ctx context.Context, scope string, scores map[uint32]float64) error {
	key := mappackScoresKey(scope)
	pipe := c.client.TxPipeline()
	pipe.Del(ctx, key)
	for playerID, score := range scores {
		pipe.ZAdd(ctx, key, redis.Z{Score: score, Member: memberOf(playerID)})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("setting mappack scores: %w", err)
	}
	return nil
}

// MappackScore is one (player, aggregate) pair read back from the cache.
type MappackScore struct {
	PlayerID uint32
	Score    float64
}

// MappackScores returns the mappack aggregate in ascending score order
// (lower aggregate of ranks is better).
func (c *Cache) MappackScores(ctx context.Context, scope string) ([]MappackScore, error) {
	zs, err := c.client.ZRangeWithScores(ctx, mappackScoresKey(scope), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("reading mappack scores: %w", err)
	}
	out := make([]MappackScore, 0, len(zs))
	for _, z := range zs {
		id, err := parseMember(z.Member)
		if err != nil {
			return nil, err
		}
		out = append(out, MappackScore{PlayerID: id, Score: z.Score})
	}
	return out, nil
}

// RegisteredMappacks lists the ad-hoc mappack ids registered for periodic
// score recomputation.
func (c *Cache) RegisteredMappacks(ctx context.Context) ([]string, error) {
	ids, err := c.client.SMembers(ctx, mappacksKey).Result()
	if err != nil {
		return nil, fmt.Errorf("listing registered mappacks: %w", err)
	}
	return ids, nil
}

// RegisterMappack adds an ad-hoc mappack id to the registry
func (c *Cache) RegisterMappack(ctx context.Context, id string) error {
	if err := c.client.SAdd(ctx, mappacksKey, id).Err(); err != nil {
		return fmt.Errorf("registering mappack: %w", err)
	}
	return nil
}
