package rankcache

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// SetRankings atomically replaces the global player and map ranking sorted
// sets. The whole swap runs in one MULTI/EXEC pipeline so observers see
// either the previous rankings or the new ones, never a mix.
func (c *Cache) SetRankings(ctx context.Context, playerScores, mapScores map[uint32]float64) error {
	pipe := c.client.TxPipeline()
	pipe.Del(ctx, playerRankingKey)
	for id, score := range playerScores {
		pipe.ZAdd(ctx, playerRankingKey, redis.Z{Score: score, Member: memberOf(id)})
	}
	pipe.Del(ctx, mapRankingKey)
	for id, score := range mapScores {
		pipe.ZAdd(ctx, mapRankingKey, redis.Z{Score: score, Member: memberOf(id)})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("swapping rankings: %w", err)
	}
	return nil
}

// RankingEntry is one line of a global ranking.
type RankingEntry struct {
	ID    uint32
	Score float64
	Rank  int64
}

// PlayerRanking reads the top of the global player ranking, best first
func (c *Cache) PlayerRanking(ctx context.Context, limit int64) ([]RankingEntry, error) {
	return c.topRanking(ctx, playerRankingKey, limit)
}

// MapRanking reads the top of the global map ranking, best first
func (c *Cache) MapRanking(ctx context.Context, limit int64) ([]RankingEntry, error) {
	return c.topRanking(ctx, mapRankingKey, limit)
}

func (c *Cache) topRanking(ctx context.Context, key string, limit int64) ([]RankingEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	zs, err := c.client.ZRevRangeWithScores(ctx, key, 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("reading ranking: %w", err)
	}
	out := make([]RankingEntry, 0, len(zs))
	for i, z := range zs {
		id, err := parseMember(z.Member)
		if err != nil {
			return nil, err
		}
		out = append(out, RankingEntry{ID: id, Score: z.Score, Rank: int64(i) + 1})
	}
	return out, nil
}
