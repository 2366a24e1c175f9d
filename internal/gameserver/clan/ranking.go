package clan

import (
	"cmp"
	"slices"
	"time"
)

// Ranking functions take a snapshot and return a new slice; the input is not
// reordered. All sorts are stable: equal keys keep their input order.

// SortClansByKDR orders clans by TotalKDR, highest first.
func SortClansByKDR(clans []*Clan) []*Clan {
	out := slices.Clone(clans)
	slices.SortStableFunc(out, func(a, b *Clan) int {
		return cmp.Compare(b.TotalKDR, a.TotalKDR)
	})
	return out
}

// SortPlayersByKDR orders players by KDR, highest first.
func SortPlayersByKDR(players []*Player) []*Player {
	out := slices.Clone(players)
	slices.SortStableFunc(out, func(a, b *Player) int {
		return cmp.Compare(b.KDR, a.KDR)
	})
	return out
}

// SortPlayersByLastSeen orders players by days since last seen, most recent first.
func SortPlayersByLastSeen(players []*Player, now time.Time) []*Player {
	out := slices.Clone(players)
	slices.SortStableFunc(out, func(a, b *Player) int {
		return cmp.Compare(a.LastSeenDays(now), b.LastSeenDays(now))
	})
	return out
}

// VerifiedOnly keeps verified clans, preserving order.
// Unverified clans never appear in public alliance or rival listings.
func VerifiedOnly(clans []*Clan) []*Clan {
	out := make([]*Clan, 0, len(clans))
	for _, c := range clans {
		if c.Verified {
			out = append(out, c)
		}
	}
	return out
}

// MeanKDR returns the average KDR of players, 0 for none.
// Stats collaborators use it to refresh Clan.TotalKDR.
func MeanKDR(players []*Player) float64 {
	if len(players) == 0 {
		return 0
	}
	var sum float64
	for _, p := range players {
		sum += p.KDR
	}
	return sum / float64(len(players))
}
