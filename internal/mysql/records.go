package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/obstacle-community/records/internal/domain"
)

// scopeFilter returns the WHERE fragment selecting the records visible in a
// scope, and the arguments it binds. With no event scope it reproduces the
// global_records view: records outside any edition plus records of
// transparent editions. With an event scope it reproduces
// global_event_records for that edition.
func scopeFilter(scope domain.EventScope) (string, []interface{}) {
	if scope.IsGlobal() {
		return `NOT EXISTS (
			SELECT 1 FROM event_edition_records eer
			JOIN event_edition ee ON ee.event_id = eer.event_id AND ee.id = eer.edition_id
			WHERE eer.record_id = r.record_id AND ee.is_transparent = 0)`, nil
	}
	return `EXISTS (
		SELECT 1 FROM event_edition_records eer
		WHERE eer.record_id = r.record_id AND eer.event_id = ? AND eer.edition_id = ?)`,
		[]interface{}{scope.EventID, scope.EditionID}
}

// BestTime returns the player's personal best on a map within the scope.
// The second return is false when the player has no visible record there.
func (t *Tx) BestTime(ctx context.Context, mapID, playerID uint32, scope domain.EventScope) (int64, bool, error) {
	filter, args := scopeFilter(scope)
	query := `SELECT MIN(r.time) FROM records r
		WHERE r.map_id = ? AND r.record_player_id = ? AND r.is_hidden = 0 AND ` + filter
	args = append([]interface{}{mapID, playerID}, args...)

	var best sql.NullInt64
	if err := sqlx.GetContext(ctx, t.q, &best, query, args...); err != nil {
		return 0, false, fmt.Errorf("getting best time: %w", err)
	}
	if !best.Valid {
		return 0, false, nil
	}
	return best.Int64, true, nil
}

// CountRankedPlayers counts the distinct players holding a visible record on
// the map within the scope. The leaderboard read path compares this against
// the cardinality of the cached sorted set to detect drift.
func (t *Tx) CountRankedPlayers(ctx context.Context, mapID uint32, scope domain.EventScope) (int64, error) {
	filter, args := scopeFilter(scope)
	query := `SELECT COUNT(DISTINCT r.record_player_id) FROM records r
		WHERE r.map_id = ? AND r.is_hidden = 0 AND ` + filter
	args = append([]interface{}{mapID}, args...)

	var count int64
	if err := sqlx.GetContext(ctx, t.q, &count, query, args...); err != nil {
		return 0, fmt.Errorf("counting ranked players: %w", err)
	}
	return count, nil
}

// PlayerBest is one (player, best time) pair used to rebuild the rank cache.
type PlayerBest struct {
	PlayerID uint32 `db:"record_player_id"`
	Time     int64  `db:"time"`
}

// BestTimes returns every player's personal best on the map within the
// scope, the rows the rank cache is rebuilt from.
func (t *Tx) BestTimes(ctx context.Context, mapID uint32, scope domain.EventScope) ([]PlayerBest, error) {
	filter, args := scopeFilter(scope)
	query := `SELECT r.record_player_id, MIN(r.time) AS time FROM records r
		WHERE r.map_id = ? AND r.is_hidden = 0 AND ` + filter + `
		GROUP BY r.record_player_id`
	args = append([]interface{}{mapID}, args...)

	var bests []PlayerBest
	if err := sqlx.SelectContext(ctx, t.q, &bests, query, args...); err != nil {
		return nil, fmt.Errorf("getting best times: %w", err)
	}
	return bests, nil
}

// LeaderboardRows resolves a page of (player, time) pairs to display rows,
// carrying the date of the record that set each best.
func (t *Tx) LeaderboardRows(ctx context.Context, mapID uint32, scope domain.EventScope, playerIDs []uint32) (map[uint32]domain.LeaderboardRow, error) {
	if len(playerIDs) == 0 {
		return map[uint32]domain.LeaderboardRow{}, nil
	}
	filter, scopeArgs := scopeFilter(scope)
	query := `SELECT p.id AS player_id, p.login, p.name, r.time, MIN(r.record_date) AS record_date
		FROM records r
		JOIN players p ON p.id = r.record_player_id
		JOIN (
			SELECT record_player_id AS pid, MIN(time) AS best FROM records r
			WHERE r.map_id = ? AND r.is_hidden = 0 AND ` + filter + `
			GROUP BY record_player_id
		) b ON b.pid = r.record_player_id AND b.best = r.time
		WHERE r.map_id = ? AND r.is_hidden = 0 AND r.record_player_id IN (?)
		GROUP BY p.id, p.login, p.name, r.time`
	args := append([]interface{}{mapID}, scopeArgs...)
	args = append(args, mapID, playerIDs)
	query, inArgs, err := sqlx.In(query, args...)
	if err != nil {
		return nil, fmt.Errorf("building leaderboard rows query: %w", err)
	}

	rows, err := t.q.QueryxContext(ctx, t.q.Rebind(query), inArgs...)
	if err != nil {
		return nil, fmt.Errorf("getting leaderboard rows: %w", err)
	}
	defer rows.Close()

	out := make(map[uint32]domain.LeaderboardRow, len(playerIDs))
	for rows.Next() {
		var row struct {
			PlayerID   uint32    `db:"player_id"`
			Login      string    `db:"login"`
			Name       string    `db:"name"`
			Time       int64     `db:"time"`
			RecordDate time.Time `db:"record_date"`
		}
		if err := rows.StructScan(&row); err != nil {
			return nil, fmt.Errorf("scanning leaderboard row: %w", err)
		}
		out[row.PlayerID] = domain.LeaderboardRow{
			PlayerID:   row.PlayerID,
			Login:      row.Login,
			Name:       row.Name,
			Time:       row.Time,
			RecordDate: row.RecordDate,
		}
	}
	return out, rows.Err()
}

// BestRecordWithCps returns the player's best visible record on the map and
// its checkpoint splits, for the pb endpoint.
func (t *Tx) BestRecordWithCps(ctx context.Context, mapID, playerID uint32, scope domain.EventScope) (*domain.Record, []domain.CheckpointTime, error) {
	filter, args := scopeFilter(scope)
	query := `SELECT r.record_id, r.map_id, r.record_player_id, r.time, r.respawn_count,
			r.flags, r.record_date, r.is_hidden
		FROM records r
		WHERE r.map_id = ? AND r.record_player_id = ? AND r.is_hidden = 0 AND ` + filter + `
		ORDER BY r.time ASC, r.record_date ASC LIMIT 1`
	args = append([]interface{}{mapID, playerID}, args...)

	var rec domain.Record
	if err := sqlx.GetContext(ctx, t.q, &rec, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("getting best record: %w", err)
	}

	var cps []domain.CheckpointTime
	err := sqlx.SelectContext(ctx, t.q, &cps,
		`SELECT cp_num, map_id, record_id, time FROM checkpoint_times
		 WHERE record_id = ? ORDER BY cp_num ASC`, rec.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("getting checkpoint times: %w", err)
	}
	return &rec, cps, nil
}

// RecordsAfter pages records by date for the cursor connection. Records at
// or before the cursor timestamp are excluded.
func (t *Tx) RecordsAfter(ctx context.Context, after time.Time, limit int) ([]domain.Record, error) {
	var recs []domain.Record
	err := sqlx.SelectContext(ctx, t.q, &recs,
		`SELECT record_id, map_id, record_player_id, time, respawn_count, flags, record_date, is_hidden
		 FROM records WHERE is_hidden = 0 AND record_date > ?
		 ORDER BY record_date ASC LIMIT ?`, after, limit)
	if err != nil {
		return nil, fmt.Errorf("paging records: %w", err)
	}
	return recs, nil
}

// InsertRecord persists one finish and returns the new record id
func (t *WriteTx) InsertRecord(ctx context.Context, rec *domain.Record) (uint32, error) {
	res, err := t.q.ExecContext(ctx,
		`INSERT INTO records (map_id, record_player_id, time, respawn_count, flags, record_date, is_hidden)
		 VALUES (?, ?, ?, ?, ?, ?, 0)`,
		rec.MapID, rec.PlayerID, rec.Time, rec.RespawnCount, rec.Flags, rec.RecordDate)
	if err != nil {
		return 0, fmt.Errorf("inserting record: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading record insert id: %w", err)
	}
	return uint32(id), nil
}

// InsertCheckpointTimes persists the splits of a record
func (t *WriteTx) InsertCheckpointTimes(ctx context.Context, recordID, mapID uint32, cps []int64) error {
	for i, cpTime := range cps {
		_, err := t.q.ExecContext(ctx,
			`INSERT INTO checkpoint_times (cp_num, map_id, record_id, time) VALUES (?, ?, ?, ?)`,
			i, mapID, recordID, cpTime)
		if err != nil {
			return fmt.Errorf("inserting checkpoint time %d: %w", i, err)
		}
	}
	return nil
}

// InsertEventRecord marks a record as submitted in event context
func (t *WriteTx) InsertEventRecord(ctx context.Context, recordID uint32, scope domain.EventScope) error {
	_, err := t.q.ExecContext(ctx,
		`INSERT INTO event_edition_records (record_id, event_id, edition_id) VALUES (?, ?, ?)`,
		recordID, scope.EventID, scope.EditionID)
	if err != nil {
		return fmt.Errorf("inserting event edition record: %w", err)
	}
	return nil
}

// PlayerMapScore is a per-player per-map aggregate consumed by the global
// ranking job.
type PlayerMapScore struct {
	PlayerID uint32 `db:"record_player_id"`
	MapID    uint32 `db:"map_id"`
	Best     int64  `db:"best"`
	Count    int64  `db:"cnt"`
}

// PlayerMapScores aggregates visible records per (player, map), optionally
// restricted to records newer than from.
func (t *Tx) PlayerMapScores(ctx context.Context, from *time.Time) ([]PlayerMapScore, error) {
	query := `SELECT record_player_id, map_id, MIN(time) AS best, COUNT(*) AS cnt
		FROM records WHERE is_hidden = 0`
	var args []interface{}
	if from != nil {
		query += ` AND record_date >= ?`
		args = append(args, *from)
	}
	query += ` GROUP BY record_player_id, map_id`

	var scores []PlayerMapScore
	if err := sqlx.SelectContext(ctx, t.q, &scores, query, args...); err != nil {
		return nil, fmt.Errorf("aggregating player map scores: %w", err)
	}
	return scores, nil
}
