package clan

import (
	"cmp"
	"slices"
	"sync"
)

// Table holds the in-memory clan and player indices.
// Thread-safe for its own maps (RWMutex). It enforces no business rules:
// callers validate invariants before importing.
//
// Snapshots keep first-import order so rankings can break ties stably.
type Table struct {
	mu sync.RWMutex

	// Clans by clean tag.
	clans map[string]clanSlot

	// Players by clean name.
	players map[string]playerSlot

	// Import sequence counter.
	seq uint64
}

type clanSlot struct {
	seq  uint64
	clan *Clan
}

type playerSlot struct {
	seq    uint64
	player *Player
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{
		clans:   make(map[string]clanSlot, 128),
		players: make(map[string]playerSlot, 512),
	}
}

// ImportClan inserts or replaces a clan under its clean tag.
// Re-importing keeps the original position in snapshots.
func (t *Table) ImportClan(c *Clan) {
	key := CleanTag(c.Tag)
	c.Tag = key

	t.mu.Lock()
	defer t.mu.Unlock()

	slot, ok := t.clans[key]
	if !ok {
		t.seq++
		slot.seq = t.seq
	}
	slot.clan = c
	t.clans[key] = slot
}

// ImportPlayer inserts or replaces a player under its clean name.
func (t *Table) ImportPlayer(p *Player) {
	key := CleanName(p.Name)
	p.Name = key

	t.mu.Lock()
	defer t.mu.Unlock()

	slot, ok := t.players[key]
	if !ok {
		t.seq++
		slot.seq = t.seq
	}
	slot.player = p
	t.players[key] = slot
}

// Clan returns the clan for tag (any case, color codes allowed).
func (t *Table) Clan(tag string) (*Clan, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	slot, ok := t.clans[CleanTag(tag)]
	return slot.clan, ok
}

// Player returns the player record for name (any case).
func (t *Table) Player(name string) (*Player, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	slot, ok := t.players[CleanName(name)]
	return slot.player, ok
}

// RemoveClan drops a clan from the index. Members are not touched.
func (t *Table) RemoveClan(tag string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := CleanTag(tag)
	if _, ok := t.clans[key]; !ok {
		return false
	}
	delete(t.clans, key)
	return true
}

// RemovePlayer drops a player record from the index.
func (t *Table) RemovePlayer(name string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := CleanName(name)
	if _, ok := t.players[key]; !ok {
		return false
	}
	delete(t.players, key)
	return true
}

// Clans returns a point-in-time slice of all clans in import order.
// The slice is a copy; the pointed-to clans are live.
func (t *Table) Clans() []*Clan {
	t.mu.RLock()
	slots := make([]clanSlot, 0, len(t.clans))
	for _, s := range t.clans {
		slots = append(slots, s)
	}
	t.mu.RUnlock()

	slices.SortFunc(slots, func(a, b clanSlot) int {
		return cmp.Compare(a.seq, b.seq)
	})

	result := make([]*Clan, len(slots))
	for i, s := range slots {
		result[i] = s.clan
	}
	return result
}

// Players returns a point-in-time slice of all players in import order.
func (t *Table) Players() []*Player {
	t.mu.RLock()
	slots := make([]playerSlot, 0, len(t.players))
	for _, s := range t.players {
		slots = append(slots, s)
	}
	t.mu.RUnlock()

	slices.SortFunc(slots, func(a, b playerSlot) int {
		return cmp.Compare(a.seq, b.seq)
	})

	result := make([]*Player, len(slots))
	for i, s := range slots {
		result[i] = s.player
	}
	return result
}

// ClanCount returns the number of clans.
func (t *Table) ClanCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.clans)
}

// PlayerCount returns the number of player records.
func (t *Table) PlayerCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.players)
}

// Clear empties both indices (full reload).
func (t *Table) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()

	clear(t.clans)
	clear(t.players)
	t.seq = 0
}
