package graphql

import (
	"context"
	"fmt"

	"github.com/graph-gophers/dataloader/v7"

	"github.com/obstacle-community/records/internal/domain"
	"github.com/obstacle-community/records/internal/mysql"
)

// Loaders batches the per-node player and map lookups a records page fans
// out into. Batching happens per scheduling tick; results are not cached
// across requests.
type Loaders struct {
	Players *dataloader.Loader[uint32, domain.Player]
	Maps    *dataloader.Loader[uint32, domain.Map]
}

// NewLoaders creates the batched loaders backed by the relational store.
func NewLoaders(db *mysql.DB) *Loaders {
	return &Loaders{
		Players: dataloader.NewBatchedLoader(
			playerBatch(db),
			dataloader.WithCache[uint32, domain.Player](&dataloader.NoCache[uint32, domain.Player]{}),
		),
		Maps: dataloader.NewBatchedLoader(
			mapBatch(db),
			dataloader.WithCache[uint32, domain.Map](&dataloader.NoCache[uint32, domain.Map]{}),
		),
	}
}

func playerBatch(db *mysql.DB) dataloader.BatchFunc[uint32, domain.Player] {
	return func(ctx context.Context, ids []uint32) []*dataloader.Result[domain.Player] {
		var players map[uint32]domain.Player
		err := db.View(ctx, func(tx *mysql.Tx) error {
			var err error
			players, err = tx.PlayersByIDs(ctx, ids)
			return err
		})

		results := make([]*dataloader.Result[domain.Player], len(ids))
		for i, id := range ids {
			if err != nil {
				results[i] = &dataloader.Result[domain.Player]{Error: err}
				continue
			}
			player, ok := players[id]
			if !ok {
				results[i] = &dataloader.Result[domain.Player]{Error: fmt.Errorf("player %d not found", id)}
				continue
			}
			results[i] = &dataloader.Result[domain.Player]{Data: player}
		}
		return results
	}
}

func mapBatch(db *mysql.DB) dataloader.BatchFunc[uint32, domain.Map] {
	return func(ctx context.Context, ids []uint32) []*dataloader.Result[domain.Map] {
		var maps map[uint32]domain.Map
		err := db.View(ctx, func(tx *mysql.Tx) error {
			var err error
			maps, err = tx.MapsByIDs(ctx, ids)
			return err
		})

		results := make([]*dataloader.Result[domain.Map], len(ids))
		for i, id := range ids {
			if err != nil {
				results[i] = &dataloader.Result[domain.Map]{Error: err}
				continue
			}
			m, ok := maps[id]
			if !ok {
				results[i] = &dataloader.Result[domain.Map]{Error: fmt.Errorf("map %d not found", id)}
				continue
			}
			results[i] = &dataloader.Result[domain.Map]{Data: m}
		}
		return results
	}
}
