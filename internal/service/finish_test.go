package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"

	"github.com/obstacle-community/records/internal/config"
	"github.com/obstacle-community/records/internal/domain"
	"github.com/obstacle-community/records/internal/maplock"
	"github.com/obstacle-community/records/internal/mysql"
	"github.com/obstacle-community/records/internal/rankcache"
)

// newTestService wires the service against a mock relational store and an
// in-process redis, the same topology production runs with.
func newTestService(t *testing.T) (*RecordsService, sqlmock.Sqlmock, *rankcache.Cache) {
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

	cursor := &config.CursorConfig{DefaultLimit: 50, MaxLimit: 100}
	return NewRecordsService(db, cache, maplock.NewRegistry(), cursor, logger), mock, cache
}

var mapCols = []string{"id", "game_id", "player_id", "name", "cps_number", "linked_map",
	"bronze_time", "silver_time", "gold_time", "author_time"}

func expectMapByUID(mock sqlmock.Sqlmock, mapID uint32, uid string, cps uint32) {
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .+ FROM maps WHERE game_id = \?`).
		WithArgs(uid).
		WillReturnRows(sqlmock.NewRows(mapCols).
			AddRow(mapID, uid, 1, "Stairs to Nowhere", cps, nil, nil, nil, nil, nil))
	mock.ExpectCommit()
}

var banCols = []string{"id", "player_id", "date_ban", "duration", "reason", "was_reprieved", "banished_by"}

func TestFinishImprovement(t *testing.T) {
	svc, mock, cache := newTestService(t)
	ctx := context.Background()
	scope := domain.EventScope{}

	// the player already holds a 45s best on the board
	assert.NoError(t, cache.UpdateBest(ctx, 10, scope, 7, 45_000))

	expectMapByUID(mock, 10, "uid_a", 3)
	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO players`).WillReturnResult(sqlmock.NewResult(7, 1))
	mock.ExpectQuery(`SELECT .+ FROM current_bans`).WithArgs(7).
		WillReturnRows(sqlmock.NewRows(banCols))
	mock.ExpectQuery(`SELECT MIN\(r\.time\) FROM records r`).WithArgs(10, 7).
		WillReturnRows(sqlmock.NewRows([]string{"best"}).AddRow(45_000))
	mock.ExpectExec(`INSERT INTO records`).WillReturnResult(sqlmock.NewResult(512, 1))
	for i := 0; i < 3; i++ {
		mock.ExpectExec(`INSERT INTO checkpoint_times`).WillReturnResult(sqlmock.NewResult(0, 1))
	}
	mock.ExpectCommit()

	req := &domain.FinishRequest{
		MapUID: "uid_a",
		Time:   41_370,
		Cps:    []int64{10_000, 25_000, 41_370},
	}
	res, err := svc.Finish(ctx, "smokegun", "Smokegun", req, scope, nil)
	assert.NoError(t, err)
	assert.True(t, res.HasImproved)
	assert.Equal(t, int64(45_000), res.OldTime)
	assert.Equal(t, int64(41_370), res.NewTime)
	assert.Equal(t, int64(1), res.CurrentRank)
	assert.NoError(t, mock.ExpectationsWereMet())

	// the cache absorbed the min-wins update
	cached, ok, err := cache.PlayerTime(ctx, 10, scope, 7)
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(41_370), cached)
}

func TestFinishNonImprovement(t *testing.T) {
	svc, mock, cache := newTestService(t)
	ctx := context.Background()
	scope := domain.EventScope{}

	assert.NoError(t, cache.UpdateBest(ctx, 10, scope, 7, 40_000))

	expectMapByUID(mock, 10, "uid_a", 2)
	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO players`).WillReturnResult(sqlmock.NewResult(7, 1))
	mock.ExpectQuery(`SELECT .+ FROM current_bans`).WithArgs(7).
		WillReturnRows(sqlmock.NewRows(banCols))
	mock.ExpectQuery(`SELECT MIN\(r\.time\) FROM records r`).WithArgs(10, 7).
		WillReturnRows(sqlmock.NewRows([]string{"best"}).AddRow(40_000))
	// the slower run is still archived
	mock.ExpectExec(`INSERT INTO records`).WillReturnResult(sqlmock.NewResult(513, 1))
	for i := 0; i < 2; i++ {
		mock.ExpectExec(`INSERT INTO checkpoint_times`).WillReturnResult(sqlmock.NewResult(0, 1))
	}
	mock.ExpectCommit()

	req := &domain.FinishRequest{
		MapUID: "uid_a",
		Time:   43_000,
		Cps:    []int64{20_000, 43_000},
	}
	res, err := svc.Finish(ctx, "smokegun", "Smokegun", req, scope, nil)
	assert.NoError(t, err)
	assert.False(t, res.HasImproved)
	assert.Equal(t, int64(40_000), res.OldTime)
	assert.Equal(t, int64(40_000), res.NewTime)
	assert.NoError(t, mock.ExpectationsWereMet())

	// the board kept the faster time
	cached, ok, err := cache.PlayerTime(ctx, 10, scope, 7)
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(40_000), cached)
}

func TestFinishBannedPlayer(t *testing.T) {
	svc, mock, _ := newTestService(t)
	ctx := context.Background()

	expectMapByUID(mock, 10, "uid_a", 2)
	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO players`).WillReturnResult(sqlmock.NewResult(7, 1))
	mock.ExpectQuery(`SELECT .+ FROM current_bans`).WithArgs(7).
		WillReturnRows(sqlmock.NewRows(banCols).
			AddRow(1, 7, time.Now().UTC(), nil, "cheating", false, 2))
	mock.ExpectRollback()

	req := &domain.FinishRequest{
		MapUID: "uid_a",
		Time:   43_000,
		Cps:    []int64{20_000, 43_000},
	}
	_, err := svc.Finish(ctx, "smokegun", "Smokegun", req, domain.EventScope{}, nil)
	assert.Equal(t, domain.KindBannedPlayer, domain.KindOf(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLeaderboardRebuildsOnDrift(t *testing.T) {
	svc, mock, cache := newTestService(t)
	ctx := context.Background()
	scope := domain.EventScope{}
	recordDate := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	// the cache only knows one of the two ranked players
	assert.NoError(t, cache.UpdateBest(ctx, 10, scope, 1, 30_000))

	expectMapByUID(mock, 10, "uid_a", 2)
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT COUNT\(DISTINCT r\.record_player_id\) FROM records r`).
		WithArgs(10).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT r\.record_player_id, MIN\(r\.time\) AS time FROM records r`).
		WithArgs(10).
		WillReturnRows(sqlmock.NewRows([]string{"record_player_id", "time"}).
			AddRow(1, 30_000).AddRow(2, 31_000))
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT p\.id AS player_id, p\.login`).
		WillReturnRows(sqlmock.NewRows([]string{"player_id", "login", "name", "time", "record_date"}).
			AddRow(1, "ahmad", "Ahmad", 30_000, recordDate).
			AddRow(2, "riolu", "Riolu", 31_000, recordDate))
	mock.ExpectCommit()

	rows, err := svc.Leaderboard(ctx, "uid_a", 0, 10, scope)
	assert.NoError(t, err)
	if assert.Len(t, rows, 2) {
		assert.Equal(t, int64(1), rows[0].Rank)
		assert.Equal(t, "ahmad", rows[0].Login)
		assert.Equal(t, int64(2), rows[1].Rank)
		assert.Equal(t, "riolu", rows[1].Login)
	}
	assert.NoError(t, mock.ExpectationsWereMet())

	// the rebuilt key now carries both players
	total, err := cache.Count(ctx, 10, scope)
	assert.NoError(t, err)
	assert.Equal(t, int64(2), total)
}
