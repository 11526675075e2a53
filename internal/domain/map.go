package domain

// Map is one playable Obstacle map. CpsNumber is unknown until the first
// successful finish fills it in.
type Map struct {
	ID             uint32  `db:"id" json:"id"`
	GameUID        string  `db:"game_id" json:"game_uid"`
	PlayerID       uint32  `db:"player_id" json:"author_id"`
	Name           string  `db:"name" json:"name"`
	CpsNumber      *uint32 `db:"cps_number" json:"cps_number,omitempty"`
	LinkedMap      *uint32 `db:"linked_map" json:"linked_map,omitempty"`
	BronzeTime     *int64  `db:"bronze_time" json:"bronze_time,omitempty"`
	SilverTime     *int64  `db:"silver_time" json:"silver_time,omitempty"`
	GoldTime       *int64  `db:"gold_time" json:"gold_time,omitempty"`
	MillisAuthor   *int64  `db:"author_time" json:"author_time,omitempty"`
}
