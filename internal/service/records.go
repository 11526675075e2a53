package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/obstacle-community/records/internal/config"
	"github.com/obstacle-community/records/internal/domain"
	"github.com/obstacle-community/records/internal/maplock"
	"github.com/obstacle-community/records/internal/mysql"
	"github.com/obstacle-community/records/internal/rankcache"
)

// RecordBroadcaster pushes record updates to live subscribers. The service
// treats it as optional; a nil hub disables broadcasting.
type RecordBroadcaster interface {
	BroadcastRecord(mapUID string, row domain.LeaderboardRow)
}

// RecordsService implements the finish ingestion write path and the
// leaderboard read path over MySQL truth and the Redis rank cache.
type RecordsService struct {
	db     *mysql.DB
	cache  *rankcache.Cache
	locks  *maplock.Registry
	cursor *config.CursorConfig
	logger *slog.Logger
	hub    RecordBroadcaster
}

// NewRecordsService creates a records service
func NewRecordsService(
	db *mysql.DB,
	cache *rankcache.Cache,
	locks *maplock.Registry,
	cursor *config.CursorConfig,
	logger *slog.Logger,
) *RecordsService {
	return &RecordsService{
		db:     db,
		cache:  cache,
		locks:  locks,
		cursor: cursor,
		logger: logger,
	}
}

// SetHub attaches the live-update hub for record broadcasts
func (s *RecordsService) SetHub(hub RecordBroadcaster) {
	s.hub = hub
}

// ResolveScope validates an event-scoped submission target: the event and
// edition exist and the edition has not expired.
func (s *RecordsService) ResolveScope(ctx context.Context, handle string, editionID uint32) (domain.EventScope, *domain.EventEdition, error) {
	var scope domain.EventScope
	var edition *domain.EventEdition
	err := s.db.View(ctx, func(tx *mysql.Tx) error {
		ev, err := tx.EventByHandle(ctx, handle)
		if err != nil {
			return err
		}
		ed, err := tx.EditionByID(ctx, ev.ID, editionID)
		if err != nil {
			return err
		}
		scope = domain.EventScope{EventID: ev.ID, EditionID: editionID}
		edition = ed
		return nil
	})
	if err != nil {
		return domain.EventScope{}, nil, err
	}
	if edition.HasExpired(time.Now()) {
		return domain.EventScope{}, nil, domain.ErrEventEditionNotFound()
	}
	return scope, edition, nil
}

// ValidateFinish rejects structurally invalid submissions. expectedCps below
// zero means the map's checkpoint count is not yet known.
func ValidateFinish(req *domain.FinishRequest, expectedCps int) error {
	if req.Time < 0 {
		return domain.ErrInvalidFinish("negative time")
	}
	if req.RespawnCount < 0 {
		return domain.ErrInvalidFinish("negative respawn count")
	}
	if len(req.Cps) == 0 {
		return domain.ErrInvalidFinish("no checkpoint times")
	}
	if expectedCps >= 0 && len(req.Cps) != expectedCps {
		return domain.ErrInvalidFinish(
			fmt.Sprintf("expected %d checkpoint times, got %d", expectedCps, len(req.Cps)))
	}
	prev := int64(-1)
	for _, cp := range req.Cps {
		if cp > req.Time {
			return domain.ErrInvalidFinish("checkpoint time exceeds the finish time")
		}
		if cp <= prev {
			return domain.ErrInvalidFinish("checkpoint times are not strictly increasing")
		}
		prev = cp
	}
	return nil
}

// Finish ingests one finish: it serializes with other finishes on the same
// map, persists the record and its splits, and applies a min-wins update to
// the rank cache when the time improves the player's personal best.
func (s *RecordsService) Finish(ctx context.Context, login, playerName string, req *domain.FinishRequest, scope domain.EventScope, edition *domain.EventEdition) (*domain.FinishResult, error) {
	var m *domain.Map
	err := s.db.View(ctx, func(tx *mysql.Tx) error {
		var err error
		m, err = tx.MapByUID(ctx, req.MapUID)
		return err
	})
	if err != nil {
		return nil, err
	}

	expectedCps := -1
	if m.CpsNumber != nil {
		expectedCps = int(*m.CpsNumber)
	}
	if err := ValidateFinish(req, expectedCps); err != nil {
		return nil, err
	}

	if !scope.IsGlobal() {
		if err := s.checkEditionMap(ctx, scope, m.ID); err != nil {
			return nil, err
		}
	}

	if err := s.locks.Lock(ctx, m.ID); err != nil {
		return nil, err
	}
	defer s.locks.Unlock(m.ID)

	var result domain.FinishResult
	result.Login = login
	err = s.db.Update(ctx, func(tx *mysql.WriteTx) error {
		playerID, err := tx.EnsurePlayer(ctx, login, playerName)
		if err != nil {
			return err
		}
		ban, err := tx.CurrentBan(ctx, playerID)
		if err != nil {
			return err
		}
		if ban != nil {
			return domain.ErrBanned(ban)
		}

		if m.CpsNumber == nil {
			// learned on the first successful finish
			if err := tx.SetCpsNumber(ctx, m.ID, uint32(len(req.Cps))); err != nil {
				return err
			}
		}

		oldTime, hadBest, err := tx.BestTime(ctx, m.ID, playerID, scope)
		if err != nil {
			return err
		}

		recordedAt := req.RecordedAt
		if recordedAt.IsZero() {
			recordedAt = time.Now().UTC()
		}
		rec := &domain.Record{
			MapID:        m.ID,
			PlayerID:     playerID,
			Time:         req.Time,
			RespawnCount: req.RespawnCount,
			Flags:        req.Flags,
			RecordDate:   recordedAt,
		}
		recordID, err := tx.InsertRecord(ctx, rec)
		if err != nil {
			return err
		}
		if err := tx.InsertCheckpointTimes(ctx, recordID, m.ID, req.Cps); err != nil {
			return err
		}
		if !scope.IsGlobal() {
			if err := tx.InsertEventRecord(ctx, recordID, scope); err != nil {
				return err
			}
		}

		result.HasImproved = !hadBest || req.Time < oldTime
		if hadBest {
			result.OldTime = oldTime
			result.NewTime = min64(oldTime, req.Time)
		} else {
			result.OldTime = req.Time
			result.NewTime = req.Time
		}
		return s.updateRanks(ctx, scope, edition, m.ID, playerID, hadBest, oldTime, &result)
	})
	if err != nil {
		return nil, err
	}

	if result.HasImproved && s.hub != nil {
		s.hub.BroadcastRecord(m.GameUID, domain.LeaderboardRow{
			Rank:       result.CurrentRank,
			Login:      login,
			Name:       playerName,
			Time:       result.NewTime,
			RecordDate: time.Now().UTC(),
		})
	}
	return &result, nil
}

// updateRanks applies the cache side of an ingestion. Cache failures after
// this point are tolerated: the relational insert is the truth and the next
// leaderboard read reconciles the drift.
func (s *RecordsService) updateRanks(ctx context.Context, scope domain.EventScope, edition *domain.EventEdition, mapID, playerID uint32, hadBest bool, oldTime int64, result *domain.FinishResult) error {
	if hadBest {
		oldRank, err := s.cache.PlayerRank(ctx, mapID, scope, playerID)
		if err != nil {
			s.logger.Warn("failed to read old rank", "map_id", mapID, "error", err)
		}
		result.OldRank = oldRank
	}

	if result.HasImproved {
		if err := s.cache.UpdateBest(ctx, mapID, scope, playerID, result.NewTime); err != nil {
			s.logger.Warn("failed to update rank cache, next read will reconcile",
				"map_id", mapID, "player_id", playerID, "error", err)
			return nil
		}
		// a transparent edition's records also count globally
		if !scope.IsGlobal() && edition != nil && edition.IsTransparent {
			if err := s.cache.UpdateBest(ctx, mapID, domain.EventScope{}, playerID, result.NewTime); err != nil {
				s.logger.Warn("failed to update global rank cache",
					"map_id", mapID, "player_id", playerID, "error", err)
			}
		}
	}

	rank, err := s.cache.PlayerRank(ctx, mapID, scope, playerID)
	if err != nil {
		s.logger.Warn("failed to read current rank", "map_id", mapID, "error", err)
		return nil
	}
	result.CurrentRank = rank
	if !hadBest {
		result.OldRank = rank
	}
	return nil
}

// checkEditionMap verifies that the map is part of the edition's mappack,
// available and not disabled.
func (s *RecordsService) checkEditionMap(ctx context.Context, scope domain.EventScope, mapID uint32) error {
	return s.db.View(ctx, func(tx *mysql.Tx) error {
		entry, err := tx.EditionMapEntry(ctx, scope, mapID)
		if err != nil {
			return err
		}
		if !entry.IsAvailable || entry.IsDisabled {
			return domain.ErrMapNotInEventEdition()
		}
		return nil
	})
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
