package scores

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"

	"github.com/obstacle-community/records/internal/domain"
	"github.com/obstacle-community/records/internal/maplock"
	"github.com/obstacle-community/records/internal/mysql"
	"github.com/obstacle-community/records/internal/rankcache"
)

func newTestEngine(t *testing.T) (*Engine, sqlmock.Sqlmock, *rankcache.Cache, *maplock.Registry) {
	t.Helper()
	raw, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("opening sqlmock: %v", err)
	}
	t.Cleanup(func() { raw.Close() })

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("starting miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	db := mysql.NewFromDB(sqlx.NewDb(raw, "sqlmock"), logger)
	cache := rankcache.NewFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), logger)
	t.Cleanup(func() { cache.Close() })

	locks := maplock.NewRegistry()
	return NewEngine(db, cache, locks, logger), mock, cache, locks
}

func TestRunRankingSkipsWhenIdle(t *testing.T) {
	engine, mock, cache, _ := newTestEngine(t)
	ctx := context.Background()

	// rankings from a previous run
	assert.NoError(t, cache.SetRankings(ctx, map[uint32]float64{1: 2.0}, map[uint32]float64{10: 3}))

	from := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT record_player_id, map_id, MIN\(time\) AS best`).
		WithArgs(from).
		WillReturnRows(sqlmock.NewRows([]string{"record_player_id", "map_id", "best", "cnt"}))
	mock.ExpectCommit()

	assert.NoError(t, engine.RunRanking(ctx, &from))
	assert.NoError(t, mock.ExpectationsWereMet())

	// nothing changed, so the previous rankings survive untouched
	ranking, err := cache.PlayerRanking(ctx, 10)
	assert.NoError(t, err)
	if assert.Len(t, ranking, 1) {
		assert.Equal(t, uint32(1), ranking[0].ID)
		assert.Equal(t, 2.0, ranking[0].Score)
	}
}

func TestRunRankingRecomputesFromFullTable(t *testing.T) {
	engine, mock, cache, _ := newTestEngine(t)
	ctx := context.Background()

	scoreCols := []string{"record_player_id", "map_id", "best", "cnt"}
	from := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	// only player 2 recorded since the previous run
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT record_player_id, map_id, MIN\(time\) AS best`).
		WithArgs(from).
		WillReturnRows(sqlmock.NewRows(scoreCols).AddRow(2, 10, 31_000, 1))
	mock.ExpectCommit()

	// the recompute still covers the whole table, player 1 included
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT record_player_id, map_id, MIN\(time\) AS best`).
		WillReturnRows(sqlmock.NewRows(scoreCols).
			AddRow(1, 10, 30_000, 4).
			AddRow(2, 10, 31_000, 1))
	mock.ExpectCommit()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE players SET score = \?`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE players SET score = \?`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	assert.NoError(t, engine.RunRanking(ctx, &from))
	assert.NoError(t, mock.ExpectationsWereMet())

	// the player idle since from kept their position at the top
	ranking, err := cache.PlayerRanking(ctx, 10)
	assert.NoError(t, err)
	if assert.Len(t, ranking, 2) {
		assert.Equal(t, uint32(1), ranking[0].ID)
		assert.Equal(t, 1.0, ranking[0].Score)
		assert.Equal(t, uint32(2), ranking[1].ID)
		assert.Equal(t, 0.5, ranking[1].Score)
	}
}

func TestLoadBoardWaitsForMapLock(t *testing.T) {
	engine, mock, _, locks := newTestEngine(t)

	// a finish holds map 10; the board load must not touch storage until
	// the lock frees up
	assert.NoError(t, locks.Lock(context.Background(), 10))
	defer locks.Unlock(10)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := engine.loadBoard(ctx, 10, "uid_a", domain.EventScope{})
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.NoError(t, mock.ExpectationsWereMet())
}
