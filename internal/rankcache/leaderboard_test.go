package rankcache

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"

	"github.com/obstacle-community/records/internal/domain"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("starting miniredis: %v", err)
	}
	t.Cleanup(func() {
		mr.Close()
	})

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
	})

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewFromClient(client, logger)
}

func TestUpdateBestKeepsMinimum(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()
	scope := domain.EventScope{}

	assert.NoError(t, cache.UpdateBest(ctx, 1, scope, 42, 30_000))

	timeMs, ok, err := cache.PlayerTime(ctx, 1, scope, 42)
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(30_000), timeMs)

	// worse time must not overwrite the stored best
	assert.NoError(t, cache.UpdateBest(ctx, 1, scope, 42, 45_000))
	timeMs, _, err = cache.PlayerTime(ctx, 1, scope, 42)
	assert.NoError(t, err)
	assert.Equal(t, int64(30_000), timeMs)

	// better time does
	assert.NoError(t, cache.UpdateBest(ctx, 1, scope, 42, 27_500))
	timeMs, _, err = cache.PlayerTime(ctx, 1, scope, 42)
	assert.NoError(t, err)
	assert.Equal(t, int64(27_500), timeMs)
}

func TestPlayerRankTies(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()
	scope := domain.EventScope{}

	assert.NoError(t, cache.UpdateBest(ctx, 7, scope, 1, 30_000))
	assert.NoError(t, cache.UpdateBest(ctx, 7, scope, 2, 30_000))
	assert.NoError(t, cache.UpdateBest(ctx, 7, scope, 3, 32_000))
	assert.NoError(t, cache.UpdateBest(ctx, 7, scope, 4, 28_000))

	// rank is 1 + number of strictly better times, so equal times share a rank
	rank, err := cache.PlayerRank(ctx, 7, scope, 1)
	assert.NoError(t, err)
	assert.Equal(t, int64(2), rank)

	rank, err = cache.PlayerRank(ctx, 7, scope, 2)
	assert.NoError(t, err)
	assert.Equal(t, int64(2), rank)

	rank, err = cache.PlayerRank(ctx, 7, scope, 3)
	assert.NoError(t, err)
	assert.Equal(t, int64(4), rank)

	rank, err = cache.PlayerRank(ctx, 7, scope, 4)
	assert.NoError(t, err)
	assert.Equal(t, int64(1), rank)
}

func TestPlayerRankMissing(t *testing.T) {
	cache := newTestCache(t)

	rank, err := cache.PlayerRank(context.Background(), 7, domain.EventScope{}, 99)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), rank)
}

func TestRankForTime(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()
	scope := domain.EventScope{}

	assert.NoError(t, cache.UpdateBest(ctx, 3, scope, 1, 20_000))
	assert.NoError(t, cache.UpdateBest(ctx, 3, scope, 2, 25_000))

	rank, err := cache.RankForTime(ctx, 3, scope, 22_000)
	assert.NoError(t, err)
	assert.Equal(t, int64(2), rank)

	rank, err = cache.RankForTime(ctx, 3, scope, 19_000)
	assert.NoError(t, err)
	assert.Equal(t, int64(1), rank)

	// a hypothetical time equal to an existing one shares its rank
	rank, err = cache.RankForTime(ctx, 3, scope, 25_000)
	assert.NoError(t, err)
	assert.Equal(t, int64(2), rank)
}

func TestPageOrdering(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()
	scope := domain.EventScope{}

	assert.NoError(t, cache.UpdateBest(ctx, 5, scope, 10, 31_000))
	assert.NoError(t, cache.UpdateBest(ctx, 5, scope, 11, 29_000))
	assert.NoError(t, cache.UpdateBest(ctx, 5, scope, 12, 33_000))

	entries, err := cache.Page(ctx, 5, scope, 0, 10)
	assert.NoError(t, err)
	assert.Equal(t, []Entry{
		{PlayerID: 11, Time: 29_000},
		{PlayerID: 10, Time: 31_000},
		{PlayerID: 12, Time: 33_000},
	}, entries)

	entries, err = cache.Page(ctx, 5, scope, 1, 1)
	assert.NoError(t, err)
	assert.Equal(t, []Entry{{PlayerID: 10, Time: 31_000}}, entries)
}

func TestRebuildReplacesBoard(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()
	scope := domain.EventScope{}

	assert.NoError(t, cache.UpdateBest(ctx, 9, scope, 1, 10_000))
	assert.NoError(t, cache.UpdateBest(ctx, 9, scope, 2, 11_000))

	err := cache.Rebuild(ctx, 9, scope, []Entry{
		{PlayerID: 3, Time: 15_000},
	})
	assert.NoError(t, err)

	count, err := cache.Count(ctx, 9, scope)
	assert.NoError(t, err)
	assert.Equal(t, int64(1), count)

	_, ok, err := cache.PlayerTime(ctx, 9, scope, 1)
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestScopedBoardsAreIndependent(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	global := domain.EventScope{}
	event := domain.EventScope{EventID: 2, EditionID: 1}

	assert.NoError(t, cache.UpdateBest(ctx, 4, global, 1, 20_000))
	assert.NoError(t, cache.UpdateBest(ctx, 4, event, 1, 21_000))

	timeMs, _, err := cache.PlayerTime(ctx, 4, global, 1)
	assert.NoError(t, err)
	assert.Equal(t, int64(20_000), timeMs)

	timeMs, _, err = cache.PlayerTime(ctx, 4, event, 1)
	assert.NoError(t, err)
	assert.Equal(t, int64(21_000), timeMs)
}
