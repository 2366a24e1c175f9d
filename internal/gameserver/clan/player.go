package clan

import (
	"slices"
	"time"
)

// PastClan is one entry of a player's clan history.
type PastClan struct {
	Tag      string    `json:"tag"`
	ColorTag string    `json:"color_tag"`
	Leader   bool      `json:"leader"`
	Left     time.Time `json:"left"`
}

// Player is the per-player clan record.
// A player with an empty Clan is "disabled": the record survives leaving a clan.
type Player struct {
	Name        string // canonical, see CleanName
	DisplayName string

	// Clan is the clean tag of the owning clan, "" when not in a clan.
	// A lookup key into the Table, not an owning reference.
	Clan     string
	Leader   bool
	JoinDate time.Time // zero when not in a clan

	PastClans []PastClan

	KDR      float64
	LastSeen time.Time
}

// NewPlayer creates a clanless player record.
func NewPlayer(name string, now time.Time) *Player {
	return &Player{
		Name:        CleanName(name),
		DisplayName: name,
		LastSeen:    now,
	}
}

// InClan reports whether the player currently belongs to a clan.
func (p *Player) InClan() bool {
	return p.Clan != ""
}

// LastSeenDays returns fractional days elapsed since LastSeen.
func (p *Player) LastSeenDays(now time.Time) float64 {
	return now.Sub(p.LastSeen).Hours() / 24
}

// Clone returns a deep copy.
func (p *Player) Clone() *Player {
	cp := *p
	cp.PastClans = slices.Clone(p.PastClans)
	return &cp
}
