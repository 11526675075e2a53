package domain

import "time"

// Event is a recurring community event, identified by its handle.
type Event struct {
	ID       uint32 `db:"id" json:"id"`
	Handle   string `db:"handle" json:"handle"`
	Cooldown *uint8 `db:"cooldown" json:"-"`
}

// EventEdition is one instance of an event, keyed by (event_id, id). An
// edition with a TTL expires TTL seconds after StartDate; expiry is observed
// by the write path, never enforced by deletion.
type EventEdition struct {
	ID                 uint32    `db:"id" json:"id"`
	EventID            uint32    `db:"event_id" json:"-"`
	Name               string    `db:"name" json:"name"`
	StartDate          time.Time `db:"start_date" json:"start_date"`
	TTL                *int64    `db:"ttl" json:"ttl,omitempty"`
	IsTransparent      bool      `db:"is_transparent" json:"-"`
	SaveNonEventRecord bool      `db:"save_non_event_record" json:"-"`
}

// HasExpired reports whether the edition's TTL has elapsed at now.
func (e *EventEdition) HasExpired(now time.Time) bool {
	if e.TTL == nil {
		return false
	}
	return e.StartDate.Add(time.Duration(*e.TTL) * time.Second).Before(now)
}

// EventEditionMap ties a map into an edition's mappack.
type EventEditionMap struct {
	EventID     uint32  `db:"event_id"`
	EditionID   uint32  `db:"edition_id"`
	MapID       uint32  `db:"map_id"`
	IsAvailable bool    `db:"bitset_is_available"`
	IsDisabled  bool    `db:"is_disabled"`
	Source      *string `db:"source"`
}

// EventScope selects either the global leaderboard or one edition's.
// The zero value is the global scope.
type EventScope struct {
	EventID   uint32
	EditionID uint32
}

// IsGlobal reports whether the scope targets the global leaderboard.
func (s EventScope) IsGlobal() bool { return s.EventID == 0 }

// MappackScore is one player's aggregate over an edition's mappack.
type MappackScore struct {
	PlayerID uint32  `json:"player_id"`
	Login    string  `json:"login"`
	Score    float64 `json:"score"`
	Rank     int64   `json:"rank"`
}
