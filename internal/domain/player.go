package domain

import "time"

// Role privilege masks. A role grants every privilege whose bit is set.
const (
	PrivPlayer uint8 = 1
	PrivMod    uint8 = 3
	PrivAdmin  uint8 = 255
)

// Player is a known ShootMania account. Players are created on their first
// authenticated appearance.
type Player struct {
	ID       uint32     `db:"id" json:"id"`
	Login    string     `db:"login" json:"login"`
	Name     string     `db:"name" json:"name"`
	JoinDate *time.Time `db:"join_date" json:"join_date,omitempty"`
	ZonePath *string    `db:"zone_path" json:"zone_path,omitempty"`
	RoleID   uint8      `db:"role_id" json:"-"`
	Score    float64    `db:"score" json:"score"`
}

// Role maps a role id to its privilege mask.
type Role struct {
	ID         uint8  `db:"id"`
	RoleName   string `db:"role_name"`
	Privileges uint8  `db:"privileges"`
}

// Allows reports whether the role covers every bit of the required mask.
func (r Role) Allows(required uint8) bool {
	return r.Privileges&required == required
}

// Banishment is one ban entry. A nil Duration means the ban is permanent.
type Banishment struct {
	ID           uint32        `db:"id" json:"id"`
	PlayerID     uint32        `db:"player_id" json:"-"`
	DateBan      time.Time     `db:"date_ban" json:"date_ban"`
	Duration     *int64        `db:"duration" json:"duration,omitempty"`
	Reason       string        `db:"reason" json:"reason"`
	WasReprieved bool          `db:"was_reprieved" json:"-"`
	BanishedBy   uint32        `db:"banished_by" json:"-"`
}

// IsCurrent reports whether the ban is still in force at now.
func (b *Banishment) IsCurrent(now time.Time) bool {
	if b.WasReprieved {
		return false
	}
	if b.Duration == nil {
		return true
	}
	return b.DateBan.Add(time.Duration(*b.Duration) * time.Second).After(now)
}
