package rankcache

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/obstacle-community/records/internal/domain"
)

// Entry is one member of a leaderboard sorted set.
type Entry struct {
	PlayerID uint32
	Time     int64
}

// UpdateBest applies a min-wins update for the player's time: the stored
// score only ever decreases (ZADD LT), so a concurrent better time can never
// be overwritten by a worse one.
func (c *Cache) UpdateBest(ctx context.Context, mapID uint32, scope domain.EventScope, playerID uint32, timeMs int64) error {
	key := leaderboardKey(mapID, scope)
	err := c.client.ZAddLT(ctx, key, redis.Z{
		Score:  float64(timeMs),
		Member: memberOf(playerID),
	}).Err()
	if err != nil {
		return fmt.Errorf("updating best time: %w", err)
	}
	return nil
}

// PlayerTime returns the cached best time of a player, with ok=false when
// the player is not in the set.
func (c *Cache) PlayerTime(ctx context.Context, mapID uint32, scope domain.EventScope, playerID uint32) (int64, bool, error) {
	key := leaderboardKey(mapID, scope)
	score, err := c.client.ZScore(ctx, key, memberOf(playerID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("getting player time: %w", err)
	}
	return int64(score), true, nil
}

// PlayerRank returns the player's 1-based rank. Equal times share a rank:
// rank = 1 + number of players with a strictly better time. Zero means the
// player is unranked.
func (c *Cache) PlayerRank(ctx context.Context, mapID uint32, scope domain.EventScope, playerID uint32) (int64, error) {
	key := leaderboardKey(mapID, scope)
	score, err := c.client.ZScore(ctx, key, memberOf(playerID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("getting player score: %w", err)
	}
	return c.rankForTime(ctx, key, score)
}

// RankForTime returns the rank a given time occupies (or would occupy) on
// the leaderboard.
func (c *Cache) RankForTime(ctx context.Context, mapID uint32, scope domain.EventScope, timeMs int64) (int64, error) {
	return c.rankForTime(ctx, leaderboardKey(mapID, scope), float64(timeMs))
}

func (c *Cache) rankForTime(ctx context.Context, key string, score float64) (int64, error) {
	better, err := c.client.ZCount(ctx, key, "-inf",
		"("+strconv.FormatInt(int64(score), 10)).Result()
	if err != nil {
		return 0, fmt.Errorf("counting better times: %w", err)
	}
	return better + 1, nil
}

// Page reads [offset, offset+limit) of the leaderboard in ascending time
// order.
func (c *Cache) Page(ctx context.Context, mapID uint32, scope domain.EventScope, offset, limit int64) ([]Entry, error) {
	if limit <= 0 {
		return nil, nil
	}
	key := leaderboardKey(mapID, scope)
	zs, err := c.client.ZRangeWithScores(ctx, key, offset, offset+limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("reading leaderboard page: %w", err)
	}
	entries := make([]Entry, 0, len(zs))
	for _, z := range zs {
		id, err := parseMember(z.Member)
		if err != nil {
			return nil, err
		}
		entries = append(entries, Entry{PlayerID: id, Time: int64(z.Score)})
	}
	return entries, nil
}

// Count returns the number of ranked players
func (c *Cache) Count(ctx context.Context, mapID uint32, scope domain.EventScope) (int64, error) {
	count, err := c.client.ZCard(ctx, leaderboardKey(mapID, scope)).Result()
	if err != nil {
		return 0, fmt.Errorf("counting leaderboard: %w", err)
	}
	return count, nil
}

// Rebuild drops the leaderboard key and repopulates it from relational best
// times in one pipeline.
func (c *Cache) Rebuild(ctx context.Context, mapID uint32, scope domain.EventScope, bests []Entry) error {
	key := leaderboardKey(mapID, scope)
	pipe := c.client.TxPipeline()
	pipe.Del(ctx, key)
	for _, b := range bests {
		pipe.ZAdd(ctx, key, redis.Z{Score: float64(b.Time), Member: memberOf(b.PlayerID)})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("rebuilding leaderboard: %w", err)
	}
	return nil
}

func memberOf(playerID uint32) string {
	return strconv.FormatUint(uint64(playerID), 10)
}

func parseMember(member interface{}) (uint32, error) {
	s, ok := member.(string)
	if !ok {
		return 0, fmt.Errorf("unexpected member type %T", member)
	}
	id, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("parsing member %q: %w", s, err)
	}
	return uint32(id), nil
}
