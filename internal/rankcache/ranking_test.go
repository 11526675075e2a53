package rankcache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRankingsBestFirst(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	err := cache.SetRankings(ctx,
		map[uint32]float64{1: 2.5, 2: 7.0, 3: 4.0},
		map[uint32]float64{10: 3, 20: 12})
	assert.NoError(t, err)

	players, err := cache.PlayerRanking(ctx, 10)
	assert.NoError(t, err)
	assert.Equal(t, []RankingEntry{
		{ID: 2, Score: 7.0, Rank: 1},
		{ID: 3, Score: 4.0, Rank: 2},
		{ID: 1, Score: 2.5, Rank: 3},
	}, players)

	maps, err := cache.MapRanking(ctx, 1)
	assert.NoError(t, err)
	assert.Equal(t, []RankingEntry{{ID: 20, Score: 12, Rank: 1}}, maps)
}

func TestSetRankingsReplacesPrevious(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	assert.NoError(t, cache.SetRankings(ctx,
		map[uint32]float64{1: 5}, map[uint32]float64{10: 1}))
	assert.NoError(t, cache.SetRankings(ctx,
		map[uint32]float64{2: 3}, map[uint32]float64{20: 2}))

	players, err := cache.PlayerRanking(ctx, 10)
	assert.NoError(t, err)
	assert.Equal(t, []RankingEntry{{ID: 2, Score: 3, Rank: 1}}, players)

	maps, err := cache.MapRanking(ctx, 10)
	assert.NoError(t, err)
	assert.Equal(t, []RankingEntry{{ID: 20, Score: 2, Rank: 1}}, maps)
}
