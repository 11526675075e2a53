package scores

import (
	"context"
	"sort"
	"time"

	"github.com/obstacle-community/records/internal/mysql"
)

// RunRanking recomputes the site-wide player and map rankings and swaps
// both ranking keys atomically. The scores always cover the full record
// table; from only serves as a cheap change check, skipping the recompute
// when no record landed since then. A player idle since the previous run
// therefore keeps their position instead of dropping off the board.
func (e *Engine) RunRanking(ctx context.Context, from *time.Time) error {
	if from != nil {
		var recent []mysql.PlayerMapScore
		err := e.db.View(ctx, func(tx *mysql.Tx) error {
			var err error
			recent, err = tx.PlayerMapScores(ctx, from)
			return err
		})
		if err != nil {
			return err
		}
		if len(recent) == 0 {
			e.logger.Info("no new records since previous ranking run, skipping")
			return nil
		}
	}

	var rows []mysql.PlayerMapScore
	err := e.db.View(ctx, func(tx *mysql.Tx) error {
		var err error
		rows, err = tx.PlayerMapScores(ctx, nil)
		return err
	})
	if err != nil {
		return err
	}

	playerScores, mapScores := ComputeRankings(rows)
	if err := e.cache.SetRankings(ctx, playerScores, mapScores); err != nil {
		return err
	}

	err = e.db.Update(ctx, func(tx *mysql.WriteTx) error {
		for id, score := range playerScores {
			if err := tx.UpdatePlayerScore(ctx, id, score); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	e.logger.Info("recomputed global rankings",
		"players", len(playerScores), "maps", len(mapScores))
	return nil
}

// ComputeRankings derives player and map scores from the record aggregates.
// A player earns, on each map they hold a best on, a share proportional to
// how many players they beat there; a map's score is its player count, a
// popularity measure.
func ComputeRankings(rows []mysql.PlayerMapScore) (players, maps map[uint32]float64) {
	byMap := make(map[uint32][]mysql.PlayerMapScore)
	for _, row := range rows {
		byMap[row.MapID] = append(byMap[row.MapID], row)
	}

	players = make(map[uint32]float64)
	maps = make(map[uint32]float64, len(byMap))
	for mapID, board := range byMap {
		sort.Slice(board, func(i, j int) bool { return board[i].Best < board[j].Best })
		n := float64(len(board))
		maps[mapID] = n
		rank := int64(1)
		for i, row := range board {
			if i > 0 && row.Best != board[i-1].Best {
				rank = int64(i) + 1
			}
			players[row.PlayerID] += (n - float64(rank) + 1) / n
		}
	}
	return players, maps
}
