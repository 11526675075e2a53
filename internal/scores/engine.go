package scores

import (
	"context"
	"log/slog"
	"sort"

	"github.com/obstacle-community/records/internal/domain"
	"github.com/obstacle-community/records/internal/maplock"
	"github.com/obstacle-community/records/internal/mysql"
	"github.com/obstacle-community/records/internal/rankcache"
)

// Engine recomputes mappack scores for event editions and registered ad-hoc
// mappacks, writing the results into the cache keys the read path serves
// from.
type Engine struct {
	db     *mysql.DB
	cache  *rankcache.Cache
	locks  *maplock.Registry
	logger *slog.Logger
}

// NewEngine creates a score engine. locks is the same registry the finish
// ingestion path holds, so leaderboard rebuilds never race an in-flight
// finish on the map.
func NewEngine(db *mysql.DB, cache *rankcache.Cache, locks *maplock.Registry, logger *slog.Logger) *Engine {
	return &Engine{db: db, cache: cache, locks: locks, logger: logger}
}

// RunEditions recomputes every edition and every registered ad-hoc mappack.
// One failing edition never aborts the others; errors are logged and the
// sweep continues, leaving that edition's previous cache entries in place.
func (e *Engine) RunEditions(ctx context.Context) {
	var editions []domain.EventEdition
	err := e.db.View(ctx, func(tx *mysql.Tx) error {
		var err error
		editions, err = tx.AllEditions(ctx)
		return err
	})
	if err != nil {
		e.logger.Error("failed to list editions for score sweep", "error", err)
		return
	}

	for _, ed := range editions {
		scope := domain.EventScope{EventID: ed.EventID, EditionID: ed.ID}
		if err := e.recomputeEdition(ctx, scope); err != nil {
			e.logger.Error("failed to recompute edition scores",
				"event_id", ed.EventID, "edition_id", ed.ID, "error", err)
		}
	}

	mappacks, err := e.cache.RegisteredMappacks(ctx)
	if err != nil {
		e.logger.Error("failed to list registered mappacks", "error", err)
		return
	}
	for _, id := range mappacks {
		if err := e.recomputeMappack(ctx, id); err != nil {
			e.logger.Error("failed to recompute mappack scores",
				"mappack_id", id, "error", err)
		}
	}
}

// mapBoard is one map's full best-time board, already in rank order.
type mapBoard struct {
	mapID   uint32
	gameUID string
	bests   []mysql.PlayerBest
}

// recomputeEdition runs the per-edition algorithm: refresh the mappack map
// set, rebuild each map's scoped leaderboard, then derive per-player ranks,
// per-map last ranks and the aggregate score set.
func (e *Engine) recomputeEdition(ctx context.Context, scope domain.EventScope) error {
	cacheScope := rankcache.EditionScope(scope)

	var maps []mysql.EditionMap
	err := e.db.View(ctx, func(tx *mysql.Tx) error {
		var err error
		maps, err = tx.EditionMaps(ctx, scope)
		return err
	})
	if err != nil {
		return err
	}

	uids := make([]string, len(maps))
	for i, m := range maps {
		uids[i] = m.GameUID
	}
	if err := e.cache.SetMappackMaps(ctx, cacheScope, uids); err != nil {
		return err
	}

	boards := make([]mapBoard, 0, len(maps))
	for _, m := range maps {
		board, err := e.loadBoard(ctx, m.MapID, m.GameUID, scope)
		if err != nil {
			return err
		}
		boards = append(boards, board)
	}
	return e.writeScores(ctx, cacheScope, boards)
}

// recomputeMappack runs the same steps for an ad-hoc mappack, whose map set
// already lives in the cache and whose ranks come from the global boards.
func (e *Engine) recomputeMappack(ctx context.Context, mappackID string) error {
	uids, err := e.cache.MappackMaps(ctx, mappackID)
	if err != nil {
		return err
	}

	boards := make([]mapBoard, 0, len(uids))
	for _, uid := range uids {
		var m *domain.Map
		err := e.db.View(ctx, func(tx *mysql.Tx) error {
			var err error
			m, err = tx.MapByUID(ctx, uid)
			return err
		})
		if err != nil {
			if domain.KindOf(err) == domain.KindMapNotFound {
				e.logger.Warn("mappack references unknown map", "mappack_id", mappackID, "map_uid", uid)
				continue
			}
			return err
		}
		board, err := e.loadBoard(ctx, m.ID, uid, domain.EventScope{})
		if err != nil {
			return err
		}
		boards = append(boards, board)
	}
	return e.writeScores(ctx, mappackID, boards)
}

// loadBoard reads a map's best times from the relational truth, refreshes
// the scoped leaderboard key from them, and returns the board rank-ordered.
// The read and the rebuild happen under the map's lock so a finish landing
// in between cannot be erased from the cache.
func (e *Engine) loadBoard(ctx context.Context, mapID uint32, gameUID string, scope domain.EventScope) (mapBoard, error) {
	var bests []mysql.PlayerBest
	err := e.locks.With(ctx, mapID, func() error {
		err := e.db.View(ctx, func(tx *mysql.Tx) error {
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
		return e.cache.Rebuild(ctx, mapID, scope, entries)
	})
	if err != nil {
		return mapBoard{}, err
	}

	sort.Slice(bests, func(i, j int) bool { return bests[i].Time < bests[j].Time })
	return mapBoard{mapID: mapID, gameUID: gameUID, bests: bests}, nil
}

// writeScores derives and stores the per-player rank sets, the per-map last
// ranks and the aggregate score set for one mappack scope.
func (e *Engine) writeScores(ctx context.Context, cacheScope string, boards []mapBoard) error {
	playerRanks := make(map[uint32]map[string]int64)
	lastRanks := make(map[string]int64, len(boards))

	for _, board := range boards {
		ranks := RanksOf(board.bests)
		for playerID, rank := range ranks {
			if playerRanks[playerID] == nil {
				playerRanks[playerID] = make(map[string]int64)
			}
			playerRanks[playerID][board.gameUID] = rank
		}
		lastRanks[board.gameUID] = int64(len(board.bests))
		if err := e.cache.SetLastRank(ctx, cacheScope, board.gameUID, int64(len(board.bests))); err != nil {
			return err
		}
	}

	aggregates := make(map[uint32]float64, len(playerRanks))
	for playerID, ranks := range playerRanks {
		if err := e.cache.SetPlayerMapRanks(ctx, cacheScope, playerID, ranks); err != nil {
			return err
		}
		aggregates[playerID] = Aggregate(ranks, lastRanks)
	}
	return e.cache.SetMappackScores(ctx, cacheScope, aggregates)
}

// RanksOf assigns competition ranks to a board already sorted by time:
// equal times share a rank, the next distinct time takes position + 1.
func RanksOf(sorted []mysql.PlayerBest) map[uint32]int64 {
	ranks := make(map[uint32]int64, len(sorted))
	rank := int64(1)
	for i, b := range sorted {
		if i > 0 && b.Time != sorted[i-1].Time {
			rank = int64(i) + 1
		}
		ranks[b.PlayerID] = rank
	}
	return ranks
}

// Aggregate sums a player's ranks across the mappack; each unfinished map
// contributes its last rank + 1 as the missing-penalty.
func Aggregate(playerRanks map[string]int64, lastRanks map[string]int64) float64 {
	var total int64
	for uid, last := range lastRanks {
		if rank, ok := playerRanks[uid]; ok {
			total += rank
		} else {
			total += last + 1
		}
	}
	return float64(total)
}
