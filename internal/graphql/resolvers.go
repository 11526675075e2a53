package graphql

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	graphql "github.com/graph-gophers/graphql-go"

	"github.com/obstacle-community/records/internal/domain"
	"github.com/obstacle-community/records/internal/mysql"
	"github.com/obstacle-community/records/internal/rankcache"
	"github.com/obstacle-community/records/internal/service"
)

// Resolver is the query root.
type Resolver struct {
	svc     *service.RecordsService
	db      *mysql.DB
	cache   *rankcache.Cache
	loaders *Loaders
}

// NewResolver creates the query root
func NewResolver(svc *service.RecordsService, db *mysql.DB, cache *rankcache.Cache) *Resolver {
	return &Resolver{
		svc:     svc,
		db:      db,
		cache:   cache,
		loaders: NewLoaders(db),
	}
}

// nodeID builds the opaque node identifier exposed to clients, a
// base64-encoded "Kind:id" pair.
func nodeID(kind string, id uint64) graphql.ID {
	raw := fmt.Sprintf("%s:%d", kind, id)
	return graphql.ID(base64.StdEncoding.EncodeToString([]byte(raw)))
}

// Records pages all visible records by date.
func (r *Resolver) Records(ctx context.Context, args struct {
	First *int32
	After *string
}) (*RecordConnectionResolver, error) {
	edges, hasNext, err := r.svc.RecordsConnection(ctx, args.After, args.First)
	if err != nil {
		return nil, err
	}
	return &RecordConnectionResolver{root: r, edges: edges, hasNext: hasNext}, nil
}

// Map looks up a map by its game uid.
func (r *Resolver) Map(ctx context.Context, args struct{ GameUid string }) (*MapResolver, error) {
	var m *domain.Map
	err := r.db.View(ctx, func(tx *mysql.Tx) error {
		var err error
		m, err = tx.MapByUID(ctx, args.GameUid)
		return err
	})
	if err != nil {
		if domain.KindOf(err) == domain.KindMapNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &MapResolver{root: r, m: *m}, nil
}

// Player looks up a player by login.
func (r *Resolver) Player(ctx context.Context, args struct{ Login string }) (*PlayerResolver, error) {
	var p *domain.Player
	err := r.db.View(ctx, func(tx *mysql.Tx) error {
		var err error
		p, err = tx.PlayerByLogin(ctx, args.Login)
		return err
	})
	if err != nil {
		if domain.KindOf(err) == domain.KindPlayerNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &PlayerResolver{p: *p}, nil
}

// Event looks up an event by handle.
func (r *Resolver) Event(ctx context.Context, args struct{ Handle string }) (*EventResolver, error) {
	var ev *domain.Event
	err := r.db.View(ctx, func(tx *mysql.Tx) error {
		var err error
		ev, err = tx.EventByHandle(ctx, args.Handle)
		return err
	})
	if err != nil {
		if domain.KindOf(err) == domain.KindEventNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &EventResolver{root: r, ev: *ev}, nil
}

// PlayerRanking returns the site-wide player ranking top.
func (r *Resolver) PlayerRanking(ctx context.Context, args struct{ Limit *int32 }) ([]*RankedEntryResolver, error) {
	return r.ranking(ctx, args.Limit, r.cache.PlayerRanking)
}

// MapRanking returns the map popularity ranking top.
func (r *Resolver) MapRanking(ctx context.Context, args struct{ Limit *int32 }) ([]*RankedEntryResolver, error) {
	return r.ranking(ctx, args.Limit, r.cache.MapRanking)
}

func (r *Resolver) ranking(ctx context.Context, limit *int32, top func(context.Context, int64) ([]rankcache.RankingEntry, error)) ([]*RankedEntryResolver, error) {
	n := int64(100)
	if limit != nil && *limit > 0 {
		n = int64(*limit)
	}
	entries, err := top(ctx, n)
	if err != nil {
		return nil, err
	}
	resolvers := make([]*RankedEntryResolver, len(entries))
	for i, e := range entries {
		resolvers[i] = &RankedEntryResolver{rank: int32(i) + 1, entry: e}
	}
	return resolvers, nil
}

// RecordConnectionResolver resolves one page of the records connection.
type RecordConnectionResolver struct {
	root    *Resolver
	edges   []service.RecordEdge
	hasNext bool
}

func (c *RecordConnectionResolver) Edges() []*RecordEdgeResolver {
	resolvers := make([]*RecordEdgeResolver, len(c.edges))
	for i, edge := range c.edges {
		resolvers[i] = &RecordEdgeResolver{root: c.root, edge: edge}
	}
	return resolvers
}

func (c *RecordConnectionResolver) PageInfo() *PageInfoResolver {
	info := &PageInfoResolver{hasNext: c.hasNext}
	if len(c.edges) > 0 {
		cursor := c.edges[len(c.edges)-1].Cursor
		info.endCursor = &cursor
	}
	return info
}

// PageInfoResolver resolves connection paging metadata.
type PageInfoResolver struct {
	hasNext   bool
	endCursor *string
}

func (p *PageInfoResolver) HasNextPage() bool  { return p.hasNext }
func (p *PageInfoResolver) EndCursor() *string { return p.endCursor }

// RecordEdgeResolver resolves one edge.
type RecordEdgeResolver struct {
	root *Resolver
	edge service.RecordEdge
}

func (e *RecordEdgeResolver) Node() *RecordResolver {
	return &RecordResolver{root: e.root, rec: e.edge.Record}
}

func (e *RecordEdgeResolver) Cursor() string { return e.edge.Cursor }

// RecordResolver resolves one record node.
type RecordResolver struct {
	root *Resolver
	rec  domain.Record
}

func (r *RecordResolver) ID() graphql.ID {
	return nodeID("Record", uint64(r.rec.ID))
}

func (r *RecordResolver) Time() float64         { return float64(r.rec.Time) }
func (r *RecordResolver) FormattedTime() string { return domain.FormatTime(r.rec.Time) }
func (r *RecordResolver) RespawnCount() int32   { return r.rec.RespawnCount }
func (r *RecordResolver) RecordDate() string    { return r.rec.RecordDate.Format(time.RFC3339) }

func (r *RecordResolver) Player(ctx context.Context) (*PlayerResolver, error) {
	player, err := r.root.loaders.Players.Load(ctx, r.rec.PlayerID)()
	if err != nil {
		return nil, err
	}
	return &PlayerResolver{p: player}, nil
}

func (r *RecordResolver) Map(ctx context.Context) (*MapResolver, error) {
	m, err := r.root.loaders.Maps.Load(ctx, r.rec.MapID)()
	if err != nil {
		return nil, err
	}
	return &MapResolver{root: r.root, m: m}, nil
}

// PlayerResolver resolves a player node.
type PlayerResolver struct {
	p domain.Player
}

func (p *PlayerResolver) ID() graphql.ID {
	return nodeID("Player", uint64(p.p.ID))
}

func (p *PlayerResolver) Login() string       { return p.p.Login }
func (p *PlayerResolver) Name() string        { return p.p.Name }
func (p *PlayerResolver) EscapedName() string { return domain.EscapeName(p.p.Name) }
func (p *PlayerResolver) ZonePath() *string   { return p.p.ZonePath }
func (p *PlayerResolver) Score() float64      { return p.p.Score }

// MapResolver resolves a map node.
type MapResolver struct {
	root *Resolver
	m    domain.Map
}

func (m *MapResolver) ID() graphql.ID {
	return nodeID("Map", uint64(m.m.ID))
}

func (m *MapResolver) GameUid() string { return m.m.GameUID }
func (m *MapResolver) Name() string    { return m.m.Name }

func (m *MapResolver) CpsNumber() *int32 {
	if m.m.CpsNumber == nil {
		return nil
	}
	n := int32(*m.m.CpsNumber)
	return &n
}

func (m *MapResolver) Author(ctx context.Context) (*PlayerResolver, error) {
	player, err := m.root.loaders.Players.Load(ctx, m.m.PlayerID)()
	if err != nil {
		return nil, err
	}
	return &PlayerResolver{p: player}, nil
}

func (m *MapResolver) Medals() *MedalsResolver {
	if m.m.BronzeTime == nil && m.m.SilverTime == nil && m.m.GoldTime == nil && m.m.MillisAuthor == nil {
		return nil
	}
	return &MedalsResolver{m: m.m}
}

// MedalsResolver resolves a map's medal times.
type MedalsResolver struct {
	m domain.Map
}

func millis(v *int64) *float64 {
	if v == nil {
		return nil
	}
	f := float64(*v)
	return &f
}

func (m *MedalsResolver) Bronze() *float64 { return millis(m.m.BronzeTime) }
func (m *MedalsResolver) Silver() *float64 { return millis(m.m.SilverTime) }
func (m *MedalsResolver) Gold() *float64   { return millis(m.m.GoldTime) }
func (m *MedalsResolver) Author() *float64 { return millis(m.m.MillisAuthor) }

// EventResolver resolves an event and its editions.
type EventResolver struct {
	root *Resolver
	ev   domain.Event
}

func (e *EventResolver) ID() graphql.ID {
	return nodeID("Event", uint64(e.ev.ID))
}

func (e *EventResolver) Handle() string { return e.ev.Handle }

func (e *EventResolver) Editions(ctx context.Context) ([]*EventEditionResolver, error) {
	var editions []domain.EventEdition
	err := e.root.db.View(ctx, func(tx *mysql.Tx) error {
		var err error
		editions, err = tx.EditionsOfEvent(ctx, e.ev.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	resolvers := make([]*EventEditionResolver, len(editions))
	for i, ed := range editions {
		resolvers[i] = &EventEditionResolver{root: e.root, ed: ed}
	}
	return resolvers, nil
}

// EventEditionResolver resolves one edition and its mappack aggregate.
type EventEditionResolver struct {
	root *Resolver
	ed   domain.EventEdition
}

func (e *EventEditionResolver) ID() int32         { return int32(e.ed.ID) }
func (e *EventEditionResolver) Name() string      { return e.ed.Name }
func (e *EventEditionResolver) StartDate() string { return e.ed.StartDate.Format(time.RFC3339) }
func (e *EventEditionResolver) Expired() bool     { return e.ed.HasExpired(time.Now()) }

// MappackScores reads the edition's aggregate from the cache, already in
// rank order; ties on the aggregate share a rank.
func (e *EventEditionResolver) MappackScores(ctx context.Context) ([]*MappackScoreResolver, error) {
	scope := rankcache.EditionScope(domain.EventScope{EventID: e.ed.EventID, EditionID: e.ed.ID})
	scores, err := e.root.cache.MappackScores(ctx, scope)
	if err != nil {
		return nil, err
	}

	resolvers := make([]*MappackScoreResolver, len(scores))
	rank := int32(1)
	for i, score := range scores {
		if i > 0 && score.Score != scores[i-1].Score {
			rank = int32(i) + 1
		}
		resolvers[i] = &MappackScoreResolver{root: e.root, rank: rank, score: score}
	}
	return resolvers, nil
}

// MappackScoreResolver resolves one (rank, player, aggregate) line.
type MappackScoreResolver struct {
	root  *Resolver
	rank  int32
	score rankcache.MappackScore
}

func (m *MappackScoreResolver) Rank() int32    { return m.rank }
func (m *MappackScoreResolver) Score() float64 { return m.score.Score }

func (m *MappackScoreResolver) Player(ctx context.Context) (*PlayerResolver, error) {
	player, err := m.root.loaders.Players.Load(ctx, m.score.PlayerID)()
	if err != nil {
		return nil, err
	}
	return &PlayerResolver{p: player}, nil
}

// RankedEntryResolver resolves one line of a site-wide ranking.
type RankedEntryResolver struct {
	rank  int32
	entry rankcache.RankingEntry
}

func (r *RankedEntryResolver) Rank() int32 { return r.rank }

func (r *RankedEntryResolver) ID() graphql.ID {
	return nodeID("Record", uint64(r.entry.ID))
}

func (r *RankedEntryResolver) Score() float64 { return r.entry.Score }
