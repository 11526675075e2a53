package domain

import "time"

// Record is one finish persisted durably. Records are append-mostly: they may
// be retroactively hidden but are never deleted in normal operation.
type Record struct {
	ID           uint32    `db:"record_id" json:"id"`
	MapID        uint32    `db:"map_id" json:"-"`
	PlayerID     uint32    `db:"record_player_id" json:"-"`
	Time         int64     `db:"time" json:"time"`
	RespawnCount int32     `db:"respawn_count" json:"respawn_count"`
	Flags        uint32    `db:"flags" json:"flags"`
	RecordDate   time.Time `db:"record_date" json:"record_date"`
	IsHidden     bool      `db:"is_hidden" json:"-"`
}

// CheckpointTime is one split of a record, keyed by (record, map, cp index).
type CheckpointTime struct {
	CpNum    uint32 `db:"cp_num" json:"cp_num"`
	MapID    uint32 `db:"map_id" json:"-"`
	RecordID uint32 `db:"record_id" json:"-"`
	Time     int64  `db:"time" json:"time"`
}

// FinishRequest is a finish as received from the game, before validation.
// RecordedAt overrides the record date for staggered submissions whose
// request carried the server-time overlay; zero means "now".
type FinishRequest struct {
	MapUID       string  `json:"map_uid"`
	Time         int64   `json:"time"`
	RespawnCount int32   `json:"respawn_count"`
	Flags        uint32  `json:"flags,omitempty"`
	Cps          []int64 `json:"cps"`

	RecordedAt time.Time `json:"-"`
}

// FinishResult is the ingestion outcome returned to the game client.
type FinishResult struct {
	HasImproved bool   `json:"has_improved"`
	Login       string `json:"login"`
	OldTime     int64  `json:"old"`
	NewTime     int64  `json:"new"`
	CurrentRank int64  `json:"current_rank"`
	OldRank     int64  `json:"old_rank"`
}

// LeaderboardRow is one resolved line of a ranked page.
type LeaderboardRow struct {
	Rank       int64     `json:"rank"`
	PlayerID   uint32    `json:"-"`
	Login      string    `json:"login"`
	Name       string    `json:"nickname"`
	Time       int64     `json:"time"`
	RecordDate time.Time `json:"record_date"`
}

// RankedRecord pairs a record with the player's display info, used by the
// GraphQL connection over records.
type RankedRecord struct {
	Record Record
	Player Player
	Rank   int64
}
