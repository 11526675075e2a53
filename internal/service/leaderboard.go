package service

import (
	"context"
	"fmt"
	"time"

	"github.com/obstacle-community/records/internal/domain"
	"github.com/obstacle-community/records/internal/mysql"
	"github.com/obstacle-community/records/internal/rankcache"
)

// Leaderboard returns one ranked page of a map's leaderboard. When the
// cached sorted set has drifted from the relational truth it is rebuilt
// under the same per-map lock the write path uses, then the page is re-read.
func (s *RecordsService) Leaderboard(ctx context.Context, mapUID string, offset, limit int64, scope domain.EventScope) ([]domain.LeaderboardRow, error) {
	var m *domain.Map
	err := s.db.View(ctx, func(tx *mysql.Tx) error {
		var err error
		m, err = tx.MapByUID(ctx, mapUID)
		return err
	})
	if err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = int64(s.cursor.DefaultLimit)
	}
	if limit > int64(s.cursor.MaxLimit) {
		limit = int64(s.cursor.MaxLimit)
	}
	if offset < 0 {
		offset = 0
	}

	if err := s.reconcile(ctx, m.ID, scope); err != nil {
		return nil, err
	}

	entries, err := s.cache.Page(ctx, m.ID, scope, offset, limit)
	if err != nil {
		return nil, err
	}
	return s.resolvePage(ctx, m.ID, scope, offset, entries)
}

// Overview returns the page of the leaderboard surrounding the caller: the
// podium plus a window centered on the player's rank, or simply the top of
// the board when the player sits high enough.
func (s *RecordsService) Overview(ctx context.Context, mapUID, login string, scope domain.EventScope) ([]domain.LeaderboardRow, error) {
	const (
		topRows    = 3
		windowRows = 5
		smallBoard = 15
	)

	var m *domain.Map
	var player *domain.Player
	err := s.db.View(ctx, func(tx *mysql.Tx) error {
		var err error
		if m, err = tx.MapByUID(ctx, mapUID); err != nil {
			return err
		}
		player, err = tx.PlayerByLogin(ctx, login)
		return err
	})
	if err != nil {
		return nil, err
	}

	if err := s.reconcile(ctx, m.ID, scope); err != nil {
		return nil, err
	}

	total, err := s.cache.Count(ctx, m.ID, scope)
	if err != nil {
		return nil, err
	}
	rank, err := s.cache.PlayerRank(ctx, m.ID, scope, player.ID)
	if err != nil {
		return nil, err
	}

	if total <= smallBoard || (rank > 0 && rank <= smallBoard-windowRows) {
		entries, err := s.cache.Page(ctx, m.ID, scope, 0, smallBoard)
		if err != nil {
			return nil, err
		}
		return s.resolvePage(ctx, m.ID, scope, 0, entries)
	}

	top, err := s.cache.Page(ctx, m.ID, scope, 0, topRows)
	if err != nil {
		return nil, err
	}
	rows, err := s.resolvePage(ctx, m.ID, scope, 0, top)
	if err != nil {
		return nil, err
	}

	start := rank - 1 - windowRows
	if start < topRows {
		start = topRows
	}
	window, err := s.cache.Page(ctx, m.ID, scope, start, 2*windowRows+1)
	if err != nil {
		return nil, err
	}
	windowRowsResolved, err := s.resolvePage(ctx, m.ID, scope, start, window)
	if err != nil {
		return nil, err
	}
	return append(rows, windowRowsResolved...), nil
}

// PersonalBest returns the caller's best record on a map and its splits.
// A nil record means the player has not finished the map.
func (s *RecordsService) PersonalBest(ctx context.Context, mapUID, login string, scope domain.EventScope) (*domain.Record, []domain.CheckpointTime, error) {
	var rec *domain.Record
	var cps []domain.CheckpointTime
	err := s.db.View(ctx, func(tx *mysql.Tx) error {
		m, err := tx.MapByUID(ctx, mapUID)
		if err != nil {
			return err
		}
		player, err := tx.PlayerByLogin(ctx, login)
		if err != nil {
			return err
		}
		rec, cps, err = tx.BestRecordWithCps(ctx, m.ID, player.ID, scope)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return rec, cps, nil
}

// reconcile detects drift between the cached sorted set and the relational
// truth, rebuilding the key under the per-map lock when they disagree.
func (s *RecordsService) reconcile(ctx context.Context, mapID uint32, scope domain.EventScope) error {
	cached, err := s.cache.Count(ctx, mapID, scope)
	if err != nil {
		return err
	}
	var truth int64
	err = s.db.View(ctx, func(tx *mysql.Tx) error {
		var err error
		truth, err = tx.CountRankedPlayers(ctx, mapID, scope)
		return err
	})
	if err != nil {
		return err
	}
	if cached == truth {
		return nil
	}

	s.logger.Info("rank cache drift detected, rebuilding",
		"map_id", mapID, "cached", cached, "truth", truth)
	return s.locks.With(ctx, mapID, func() error {
		return s.RebuildLeaderboard(ctx, mapID, scope)
	})
}

// RebuildLeaderboard repopulates the leaderboard key from relational best
// times. Callers are expected to hold the map lock.
func (s *RecordsService) RebuildLeaderboard(ctx context.Context, mapID uint32, scope domain.EventScope) error {
	var bests []mysql.PlayerBest
	err := s.db.View(ctx, func(tx *mysql.Tx) error {
		var err error
		bests, err = tx.BestTimes(ctx, mapID, scope)
		return err
	})
	if err != nil {
		return err
	}
	entries := make([]rankcache.Entry, len(bests))
	for i, b := range bests {
		entries[i] = rankcache.Entry{PlayerID: b.PlayerID, Time: b.Time}
	}
	return s.cache.Rebuild(ctx, mapID, scope, entries)
}

// resolvePage turns raw cache entries into display rows with shared-tie
// ranks. The first row's rank comes from the cache so a page that begins
// mid-tie carries the tie's rank, not its position.
func (s *RecordsService) resolvePage(ctx context.Context, mapID uint32, scope domain.EventScope, offset int64, entries []rankcache.Entry) ([]domain.LeaderboardRow, error) {
	if len(entries) == 0 {
		return []domain.LeaderboardRow{}, nil
	}

	ids := make([]uint32, len(entries))
	for i, e := range entries {
		ids[i] = e.PlayerID
	}
	var resolved map[uint32]domain.LeaderboardRow
	err := s.db.View(ctx, func(tx *mysql.Tx) error {
		var err error
		resolved, err = tx.LeaderboardRows(ctx, mapID, scope, ids)
		return err
	})
	if err != nil {
		return nil, err
	}

	firstRank, err := s.cache.RankForTime(ctx, mapID, scope, entries[0].Time)
	if err != nil {
		return nil, err
	}
	return AssemblePage(offset, firstRank, entries, resolved), nil
}

// AssemblePage computes the rank column of a page. Positions are
// offset-based; equal times share the rank of the first of their run, and
// the next distinct time takes rank = position + 1.
func AssemblePage(offset, firstRank int64, entries []rankcache.Entry, resolved map[uint32]domain.LeaderboardRow) []domain.LeaderboardRow {
	rows := make([]domain.LeaderboardRow, 0, len(entries))
	rank := firstRank
	for i, e := range entries {
		if i > 0 && e.Time != entries[i-1].Time {
			rank = offset + int64(i) + 1
		}
		row, ok := resolved[e.PlayerID]
		if !ok {
			// cache knows a player the relational page does not; skip,
			// the next reconcile pass drops them
			continue
		}
		row.Rank = rank
		row.Time = e.Time
		rows = append(rows, row)
	}
	return rows
}

// RecordEdge is one edge of the records connection.
type RecordEdge struct {
	Cursor string
	Record domain.Record
}

// RecordsConnection pages records by date after an opaque cursor. It
// returns one page of edges and whether more records follow.
func (s *RecordsService) RecordsConnection(ctx context.Context, after *string, first *int32) ([]RecordEdge, bool, error) {
	limit := s.cursor.DefaultLimit
	if first != nil {
		limit = int(*first)
	}
	if limit <= 0 {
		limit = s.cursor.DefaultLimit
	}
	if limit > s.cursor.MaxLimit {
		limit = s.cursor.MaxLimit
	}

	from, err := cursorStart(after)
	if err != nil {
		return nil, false, err
	}

	var recs []domain.Record
	err = s.db.View(ctx, func(tx *mysql.Tx) error {
		recs, err = tx.RecordsAfter(ctx, from, limit+1)
		return err
	})
	if err != nil {
		return nil, false, err
	}

	hasNext := len(recs) > limit
	if hasNext {
		recs = recs[:limit]
	}
	edges := make([]RecordEdge, len(recs))
	for i, r := range recs {
		edges[i] = RecordEdge{Cursor: domain.EncodeCursor(r.RecordDate), Record: r}
	}
	return edges, hasNext, nil
}

func cursorStart(after *string) (time.Time, error) {
	if after == nil || *after == "" {
		return time.Time{}, nil
	}
	t, err := domain.DecodeCursor(*after)
	if err != nil {
		return time.Time{}, fmt.Errorf("decoding cursor: %w", err)
	}
	return t, nil
}
