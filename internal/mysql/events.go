package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/obstacle-community/records/internal/domain"
)

// EventByHandle retrieves an event by its handle
func (t *Tx) EventByHandle(ctx context.Context, handle string) (*domain.Event, error) {
	var ev domain.Event
	err := sqlx.GetContext(ctx, t.q, &ev,
		`SELECT id, handle, cooldown FROM event WHERE handle = ?`, handle)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrEventNotFound()
		}
		return nil, fmt.Errorf("getting event by handle: %w", err)
	}
	return &ev, nil
}

// EditionByID retrieves one edition of an event
func (t *Tx) EditionByID(ctx context.Context, eventID, editionID uint32) (*domain.EventEdition, error) {
	var ed domain.EventEdition
	err := sqlx.GetContext(ctx, t.q, &ed,
		`SELECT id, event_id, name, start_date, ttl, is_transparent, save_non_event_record
		 FROM event_edition WHERE event_id = ? AND id = ?`, eventID, editionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrEventEditionNotFound()
		}
		return nil, fmt.Errorf("getting event edition: %w", err)
	}
	return &ed, nil
}

// AllEditions lists every known edition, for the score engine sweep
func (t *Tx) AllEditions(ctx context.Context) ([]domain.EventEdition, error) {
	var editions []domain.EventEdition
	err := sqlx.SelectContext(ctx, t.q, &editions,
		`SELECT id, event_id, name, start_date, ttl, is_transparent, save_non_event_record
		 FROM event_edition ORDER BY event_id, id`)
	if err != nil {
		return nil, fmt.Errorf("listing event editions: %w", err)
	}
	return editions, nil
}

// EditionsOfEvent lists the editions of one event
func (t *Tx) EditionsOfEvent(ctx context.Context, eventID uint32) ([]domain.EventEdition, error) {
	var editions []domain.EventEdition
	err := sqlx.SelectContext(ctx, t.q, &editions,
		`SELECT id, event_id, name, start_date, ttl, is_transparent, save_non_event_record
		 FROM event_edition WHERE event_id = ? ORDER BY id`, eventID)
	if err != nil {
		return nil, fmt.Errorf("listing editions of event: %w", err)
	}
	return editions, nil
}

// EditionMap is one map of an edition's mappack with its uid resolved.
type EditionMap struct {
	MapID       uint32 `db:"map_id"`
	GameUID     string `db:"game_id"`
	IsAvailable bool   `db:"bitset_is_available"`
	IsDisabled  bool   `db:"is_disabled"`
}

// EditionMaps lists the maps of an edition's mappack
func (t *Tx) EditionMaps(ctx context.Context, scope domain.EventScope) ([]EditionMap, error) {
	var maps []EditionMap
	err := sqlx.SelectContext(ctx, t.q, &maps,
		`SELECT eem.map_id, m.game_id, eem.bitset_is_available, eem.is_disabled
		 FROM event_edition_maps eem
		 JOIN maps m ON m.id = eem.map_id
		 WHERE eem.event_id = ? AND eem.edition_id = ?`, scope.EventID, scope.EditionID)
	if err != nil {
		return nil, fmt.Errorf("listing edition maps: %w", err)
	}
	return maps, nil
}

// EditionMapEntry returns the mappack entry for one map of the edition, or
// MapNotInEventEdition when the map is not listed.
func (t *Tx) EditionMapEntry(ctx context.Context, scope domain.EventScope, mapID uint32) (*EditionMap, error) {
	var m EditionMap
	err := sqlx.GetContext(ctx, t.q, &m,
		`SELECT eem.map_id, mp.game_id, eem.bitset_is_available, eem.is_disabled
		 FROM event_edition_maps eem
		 JOIN maps mp ON mp.id = eem.map_id
		 WHERE eem.event_id = ? AND eem.edition_id = ? AND eem.map_id = ?`,
		scope.EventID, scope.EditionID, mapID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrMapNotInEventEdition()
		}
		return nil, fmt.Errorf("getting edition map entry: %w", err)
	}
	return &m, nil
}
