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

// PlayerByLogin retrieves a player by their game login
func (t *Tx) PlayerByLogin(ctx context.Context, login string) (*domain.Player, error) {
	var p domain.Player
	err := sqlx.GetContext(ctx, t.q, &p,
		`SELECT id, login, name, join_date, zone_path, role_id, score FROM players WHERE login = ?`, login)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrPlayerNotFound()
		}
		return nil, fmt.Errorf("getting player by login: %w", err)
	}
	return &p, nil
}

// PlayerByID retrieves a player by id
func (t *Tx) PlayerByID(ctx context.Context, id uint32) (*domain.Player, error) {
	var p domain.Player
	err := sqlx.GetContext(ctx, t.q, &p,
		`SELECT id, login, name, join_date, zone_path, role_id, score FROM players WHERE id = ?`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrPlayerNotFound()
		}
		return nil, fmt.Errorf("getting player by id: %w", err)
	}
	return &p, nil
}

// PlayersByIDs retrieves a batch of players in one query, for the data
// loaders. Missing ids are simply absent from the result.
func (t *Tx) PlayersByIDs(ctx context.Context, ids []uint32) (map[uint32]domain.Player, error) {
	if len(ids) == 0 {
		return map[uint32]domain.Player{}, nil
	}
	query, args, err := sqlx.In(
		`SELECT id, login, name, join_date, zone_path, role_id, score FROM players WHERE id IN (?)`, ids)
	if err != nil {
		return nil, fmt.Errorf("building players batch query: %w", err)
	}
	var players []domain.Player
	if err := sqlx.SelectContext(ctx, t.q, &players, t.q.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("getting players batch: %w", err)
	}
	out := make(map[uint32]domain.Player, len(players))
	for _, p := range players {
		out[p.ID] = p
	}
	return out, nil
}

// RoleByID retrieves a role and its privilege mask
func (t *Tx) RoleByID(ctx context.Context, id uint8) (*domain.Role, error) {
	var r domain.Role
	err := sqlx.GetContext(ctx, t.q, &r,
		`SELECT id, role_name, privileges FROM role WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("getting role: %w", err)
	}
	return &r, nil
}

// CurrentBan returns the player's active ban, or nil when they are not
// currently banned. The current_bans view filters out elapsed and reprieved
// entries.
func (t *Tx) CurrentBan(ctx context.Context, playerID uint32) (*domain.Banishment, error) {
	var b domain.Banishment
	err := sqlx.GetContext(ctx, t.q, &b,
		`SELECT id, player_id, date_ban, duration, reason, was_reprieved, banished_by
		 FROM current_bans WHERE player_id = ? ORDER BY date_ban DESC LIMIT 1`, playerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting current ban: %w", err)
	}
	return &b, nil
}

// EnsurePlayer looks up a player by login, inserting them on their first
// appearance, and returns the id. The upsert rides on the unique login key,
// so two clients racing on a new login both land on the same row.
func (t *WriteTx) EnsurePlayer(ctx context.Context, login, name string) (uint32, error) {
	res, err := t.q.ExecContext(ctx,
		`INSERT INTO players (login, name, join_date, role_id, score) VALUES (?, ?, ?, 1, 0)
		 ON DUPLICATE KEY UPDATE id = LAST_INSERT_ID(id)`,
		login, name, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("upserting player: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading player id: %w", err)
	}
	return uint32(id), nil
}

// UpdatePlayerScore stores the recomputed aggregate score
func (t *WriteTx) UpdatePlayerScore(ctx context.Context, playerID uint32, score float64) error {
	if _, err := t.q.ExecContext(ctx, `UPDATE players SET score = ? WHERE id = ?`, score, playerID); err != nil {
		return fmt.Errorf("updating player score: %w", err)
	}
	return nil
}
