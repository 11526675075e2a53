package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/obstacle-community/records/internal/domain"
)

const mapColumns = `id, game_id, player_id, name, cps_number, linked_map,
	bronze_time, silver_time, gold_time, author_time`

// MapByUID retrieves a map by the opaque uid the game engine assigns
func (t *Tx) MapByUID(ctx context.Context, gameUID string) (*domain.Map, error) {
	var m domain.Map
	err := sqlx.GetContext(ctx, t.q, &m,
		`SELECT `+mapColumns+` FROM maps WHERE game_id = ?`, gameUID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrMapNotFound()
		}
		return nil, fmt.Errorf("getting map by uid: %w", err)
	}
	return &m, nil
}

// MapByID retrieves a map by id
func (t *Tx) MapByID(ctx context.Context, id uint32) (*domain.Map, error) {
	var m domain.Map
	err := sqlx.GetContext(ctx, t.q, &m,
		`SELECT `+mapColumns+` FROM maps WHERE id = ?`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrMapNotFound()
		}
		return nil, fmt.Errorf("getting map by id: %w", err)
	}
	return &m, nil
}

// MapsByIDs retrieves a batch of maps in one query, for the data loaders
func (t *Tx) MapsByIDs(ctx context.Context, ids []uint32) (map[uint32]domain.Map, error) {
	if len(ids) == 0 {
		return map[uint32]domain.Map{}, nil
	}
	query, args, err := sqlx.In(`SELECT `+mapColumns+` FROM maps WHERE id IN (?)`, ids)
	if err != nil {
		return nil, fmt.Errorf("building maps batch query: %w", err)
	}
	var maps []domain.Map
	if err := sqlx.SelectContext(ctx, t.q, &maps, t.q.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("getting maps batch: %w", err)
	}
	out := make(map[uint32]domain.Map, len(maps))
	for _, m := range maps {
		out[m.ID] = m
	}
	return out, nil
}

// SetCpsNumber records the checkpoint count learned from the first
// successful finish. Only ever fills a NULL value.
func (t *WriteTx) SetCpsNumber(ctx context.Context, mapID uint32, cpsNumber uint32) error {
	_, err := t.q.ExecContext(ctx,
		`UPDATE maps SET cps_number = ? WHERE id = ? AND cps_number IS NULL`, cpsNumber, mapID)
	if err != nil {
		return fmt.Errorf("setting cps number: %w", err)
	}
	return nil
}
