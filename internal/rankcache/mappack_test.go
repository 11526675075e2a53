package rankcache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMappackMapsRoundTrip(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	err := cache.SetMappackMaps(ctx, "55", []string{"uid_a", "uid_b"})
	assert.NoError(t, err)

	uids, err := cache.MappackMaps(ctx, "55")
	assert.NoError(t, err)
	assert.ElementsMatch(t, []string{"uid_a", "uid_b"}, uids)

	// replacing drops maps no longer in the pack
	assert.NoError(t, cache.SetMappackMaps(ctx, "55", []string{"uid_c"}))
	uids, err = cache.MappackMaps(ctx, "55")
	assert.NoError(t, err)
	assert.Equal(t, []string{"uid_c"}, uids)
}

func TestPlayerMapRanks(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	err := cache.SetPlayerMapRanks(ctx, "55", 42, map[string]int64{
		"uid_a": 3,
		"uid_b": 1,
	})
	assert.NoError(t, err)

	ranks, err := cache.PlayerMapRanks(ctx, "55", 42)
	assert.NoError(t, err)
	assert.Equal(t, map[string]int64{"uid_a": 3, "uid_b": 1}, ranks)
}

func TestLastRank(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	// unset reads as zero
	n, err := cache.LastRank(ctx, "55", "uid_a")
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)

	assert.NoError(t, cache.SetLastRank(ctx, "55", "uid_a", 17))
	n, err = cache.LastRank(ctx, "55", "uid_a")
	assert.NoError(t, err)
	assert.Equal(t, int64(17), n)
}

func TestMappackScoresAscending(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	err := cache.SetMappackScores(ctx, "55", map[uint32]float64{
		1: 12,
		2: 4,
		3: 8,
	})
	assert.NoError(t, err)

	scores, err := cache.MappackScores(ctx, "55")
	assert.NoError(t, err)
	assert.Equal(t, []MappackScore{
		{PlayerID: 2, Score: 4},
		{PlayerID: 3, Score: 8},
		{PlayerID: 1, Score: 12},
	}, scores)
}

func TestRegisteredMappacks(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	ids, err := cache.RegisteredMappacks(ctx)
	assert.NoError(t, err)
	assert.Empty(t, ids)

	assert.NoError(t, cache.RegisterMappack(ctx, "55"))
	assert.NoError(t, cache.RegisterMappack(ctx, "realm"))
	assert.NoError(t, cache.RegisterMappack(ctx, "55"))

	ids, err = cache.RegisteredMappacks(ctx)
	assert.NoError(t, err)
	assert.ElementsMatch(t, []string{"55", "realm"}, ids)
}
