package clan

import (
	"maps"
	"slices"
	"time"
)

// Tag length limits (after color codes are stripped).
const (
	DefaultTagMinLength = 2
	DefaultTagMaxLength = 5
)

// Clan is a player clan.
//
// Not safe for concurrent use on its own: live instances are owned by a Table
// and mutated only while the registry lock is held. Callers outside the
// registry receive copies made with Clone.
type Clan struct {
	Tag      string // canonical, see CleanTag
	ColorTag string
	Name     string
	Verified bool

	Founded  time.Time
	LastUsed time.Time

	// TotalKDR is maintained by an external stats collaborator.
	TotalKDR float64

	Allies []string // clean tags
	Rivals []string // clean tags

	// Member clean names. Built from player records; only the lifecycle writes it.
	members map[string]struct{}
}

// New creates a clan with no members.
func New(colorTag, name string, verified bool, now time.Time) *Clan {
	return &Clan{
		Tag:      CleanTag(colorTag),
		ColorTag: colorTag,
		Name:     name,
		Verified: verified,
		Founded:  now,
		LastUsed: now,
		members:  make(map[string]struct{}, 4),
	}
}

// Size returns the number of members.
func (c *Clan) Size() int {
	return len(c.members)
}

// IsMember reports whether the player (any case) belongs to the clan.
func (c *Clan) IsMember(name string) bool {
	_, ok := c.members[CleanName(name)]
	return ok
}

// Members returns the member names sorted alphabetically.
func (c *Clan) Members() []string {
	return slices.Sorted(maps.Keys(c.members))
}

// IsAlly reports whether tag is in the ally list.
func (c *Clan) IsAlly(tag string) bool {
	return slices.Contains(c.Allies, CleanTag(tag))
}

// IsRival reports whether tag is in the rival list.
func (c *Clan) IsRival(tag string) bool {
	return slices.Contains(c.Rivals, CleanTag(tag))
}

// Clone returns a deep copy.
func (c *Clan) Clone() *Clan {
	cp := *c
	cp.Allies = slices.Clone(c.Allies)
	cp.Rivals = slices.Clone(c.Rivals)
	cp.members = maps.Clone(c.members)
	if cp.members == nil {
		cp.members = make(map[string]struct{})
	}
	return &cp
}

func (c *Clan) addMember(name string) {
	if c.members == nil {
		c.members = make(map[string]struct{}, 4)
	}
	c.members[name] = struct{}{}
}

func (c *Clan) removeMember(name string) {
	delete(c.members, name)
}

func (c *Clan) resetMembers() {
	c.members = make(map[string]struct{}, 4)
}

// addRelation appends tag to list if absent.
func addRelation(list []string, tag string) ([]string, bool) {
	if slices.Contains(list, tag) {
		return list, false
	}
	return append(list, tag), true
}

// removeRelation drops tag from list.
func removeRelation(list []string, tag string) ([]string, bool) {
	i := slices.Index(list, tag)
	if i < 0 {
		return list, false
	}
	return slices.Delete(list, i, i+1), true
}
