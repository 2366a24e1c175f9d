package clan

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestLifecycle(t *testing.T, policy Policy) (*Lifecycle, *Table, *testClock) {
	t.Helper()
	tbl := NewTable()
	clk := &testClock{now: t0}
	return NewLifecycle(tbl, policy, clk.Now), tbl, clk
}

// requireConsistent checks membership invariants over the whole table.
func requireConsistent(t *testing.T, tbl *Table) {
	t.Helper()

	for _, c := range tbl.Clans() {
		require.GreaterOrEqual(t, c.Size(), 1, "clan %q is empty", c.Tag)

		leaders := 0
		for _, name := range c.Members() {
			p, ok := tbl.Player(name)
			require.True(t, ok, "member %q of %q has no record", name, c.Tag)
			require.Equal(t, c.Tag, p.Clan, "member %q points elsewhere", name)
			if p.Leader {
				leaders++
			}
		}
		require.Equal(t, 1, leaders, "clan %q leader count", c.Tag)
	}

	for _, p := range tbl.Players() {
		if !p.InClan() {
			require.False(t, p.Leader, "clanless %q is leader", p.Name)
			require.True(t, p.JoinDate.IsZero(), "clanless %q has join date", p.Name)
			continue
		}
		c, ok := tbl.Clan(p.Clan)
		require.True(t, ok, "%q points at missing clan %q", p.Name, p.Clan)
		require.True(t, c.IsMember(p.Name), "%q missing from %q members", p.Name, c.Tag)
	}
}

func mustCreate(t *testing.T, l *Lifecycle, founder, tag string) *Clan {
	t.Helper()
	c, _, err := l.CreateClan(founder, tag, tag+" clan", false, nil)
	require.NoError(t, err)
	return c
}

func TestLifecycle_CreateClan(t *testing.T) {
	l, tbl, _ := newTestLifecycle(t, DefaultPolicy())

	c, ch, err := l.CreateClan("Alice", "&cRED", "Red Hand", false, nil)
	require.NoError(t, err)

	assert.Equal(t, "red", c.Tag)
	assert.Equal(t, "&cRED", c.ColorTag)
	assert.Equal(t, []string{"alice"}, c.Members())
	assert.Equal(t, t0, c.Founded)

	alice, ok := tbl.Player("alice")
	require.True(t, ok)
	assert.Equal(t, "red", alice.Clan)
	assert.True(t, alice.Leader)
	assert.Equal(t, t0, alice.JoinDate)

	assert.ElementsMatch(t, []Write{
		{Kind: KindPlayer, Key: "alice", Created: true},
		{Kind: KindClan, Key: "red", Created: true},
	}, ch.Writes)
	assert.Equal(t, []string{"alice"}, ch.Affiliations)
	requireConsistent(t, tbl)
}

func TestLifecycle_CreateClan_Verification(t *testing.T) {
	tests := []struct {
		name       string
		require    bool
		privileged bool
		want       bool
	}{
		{"required, regular founder", true, false, false},
		{"required, privileged founder", true, true, true},
		{"not required", false, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			policy := DefaultPolicy()
			policy.RequireVerification = tt.require
			l, _, _ := newTestLifecycle(t, policy)

			c, _, err := l.CreateClan("alice", "RED", "Red", tt.privileged, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, c.Verified)
		})
	}
}

func TestLifecycle_CreateClan_DuplicateTagLeavesStateUnchanged(t *testing.T) {
	l, tbl, _ := newTestLifecycle(t, DefaultPolicy())
	mustCreate(t, l, "alice", "RED")

	_, ch, err := l.CreateClan("bob", "red", "Other", false, nil)
	require.ErrorIs(t, err, ErrDuplicateTag)
	assert.True(t, ch.Empty())

	_, _, err = l.CreateClan("bob", "&4ReD", "Other", false, nil)
	require.ErrorIs(t, err, ErrDuplicateTag)

	assert.Equal(t, 1, tbl.ClanCount())
	assert.Equal(t, 1, tbl.PlayerCount(), "founder record must not be created")
	_, ok := tbl.Player("bob")
	assert.False(t, ok)
}

func TestLifecycle_CreateClan_FounderAlreadyInClan(t *testing.T) {
	l, tbl, _ := newTestLifecycle(t, DefaultPolicy())
	mustCreate(t, l, "alice", "RED")

	_, _, err := l.CreateClan("ALICE", "BLU", "Blue", false, nil)
	require.ErrorIs(t, err, ErrAlreadyInClan)
	assert.Equal(t, 1, tbl.ClanCount())
}

func TestLifecycle_CreateClan_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		founder string
		tag     string
		clan    string
		wantErr error
	}{
		{"tag too short", "alice", "R", "Red", ErrInvalidTag},
		{"tag too long", "alice", "REDRED", "Red", ErrInvalidTag},
		{"color codes do not count", "alice", "&cR", "Red", ErrInvalidTag},
		{"bad character", "alice", "R-D", "Red", ErrInvalidTag},
		{"empty clan name", "alice", "RED", "  ", ErrInvalidName},
		{"empty founder", " ", "RED", "Red", ErrInvalidName},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, tbl, _ := newTestLifecycle(t, DefaultPolicy())

			_, _, err := l.CreateClan(tt.founder, tt.tag, tt.clan, false, nil)
			require.ErrorIs(t, err, tt.wantErr)
			assert.Zero(t, tbl.ClanCount())
			assert.Zero(t, tbl.PlayerCount())
		})
	}
}

func TestLifecycle_CreateClan_Gate(t *testing.T) {
	l, tbl, _ := newTestLifecycle(t, DefaultPolicy())

	calls := 0
	reject := func() error {
		calls++
		return errors.New("not enough gold")
	}

	_, _, err := l.CreateClan("alice", "RED", "Red", false, reject)
	require.ErrorIs(t, err, ErrPolicyRejected)
	assert.Equal(t, 1, calls)
	assert.Zero(t, tbl.ClanCount())
	assert.Zero(t, tbl.PlayerCount())

	// Validation runs before the gate: nobody is charged for a bad request.
	mustCreate(t, l, "bob", "BLU")
	_, _, err = l.CreateClan("carol", "BLU", "Blue", false, reject)
	require.ErrorIs(t, err, ErrDuplicateTag)
	assert.Equal(t, 1, calls)
}

func TestLifecycle_AddAndRemoveMember(t *testing.T) {
	l, tbl, clk := newTestLifecycle(t, DefaultPolicy())
	red := mustCreate(t, l, "alice", "RED")

	clk.Advance(time.Hour)
	ch, err := l.AddMember("red", "Bob")
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, ch.Affiliations)

	bob, _ := tbl.Player("bob")
	assert.Equal(t, "red", bob.Clan)
	assert.False(t, bob.Leader)
	assert.Equal(t, t0.Add(time.Hour), bob.JoinDate)
	requireConsistent(t, tbl)

	clk.Advance(time.Hour)
	ch, err = l.RemoveMember("bob")
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, ch.Affiliations)

	assert.False(t, bob.InClan())
	require.Len(t, bob.PastClans, 1)
	assert.Equal(t, PastClan{Tag: "red", ColorTag: "RED", Leader: false, Left: t0.Add(2 * time.Hour)}, bob.PastClans[0])
	assert.Equal(t, []string{"alice"}, red.Members())
	requireConsistent(t, tbl)
}

func TestLifecycle_AddMember_Errors(t *testing.T) {
	l, _, _ := newTestLifecycle(t, DefaultPolicy())
	mustCreate(t, l, "alice", "RED")
	mustCreate(t, l, "bob", "BLU")

	_, err := l.AddMember("red", "bob")
	assert.ErrorIs(t, err, ErrAlreadyInClan)

	_, err = l.AddMember("nope", "carol")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = l.AddMember("red", "")
	assert.ErrorIs(t, err, ErrInvalidName)
}

func TestLifecycle_RemoveMember_LastMemberDisbands(t *testing.T) {
	l, tbl, _ := newTestLifecycle(t, DefaultPolicy())
	mustCreate(t, l, "alice", "RED")

	ch, err := l.RemoveMember("alice")
	require.NoError(t, err)

	_, ok := tbl.Clan("red")
	assert.False(t, ok)

	alice, ok := tbl.Player("alice")
	require.True(t, ok, "player record survives disband")
	assert.False(t, alice.InClan())
	require.Len(t, alice.PastClans, 1)
	assert.True(t, alice.PastClans[0].Leader)

	assert.Contains(t, ch.Writes, Write{Kind: KindClan, Key: "red"})
	requireConsistent(t, tbl)
}

func TestLifecycle_RemoveMember_Errors(t *testing.T) {
	l, _, _ := newTestLifecycle(t, DefaultPolicy())
	_, _, err := l.GetOrCreatePlayer("drifter")
	require.NoError(t, err)

	_, err = l.RemoveMember("ghost")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = l.RemoveMember("drifter")
	assert.ErrorIs(t, err, ErrNotAMember)
}

func TestLifecycle_RemoveMember_LeaderSuccession(t *testing.T) {
	l, tbl, clk := newTestLifecycle(t, DefaultPolicy())
	mustCreate(t, l, "alice", "RED")

	clk.Advance(time.Hour)
	_, err := l.AddMember("red", "carol")
	require.NoError(t, err)
	clk.Advance(time.Hour)
	_, err = l.AddMember("red", "bob")
	require.NoError(t, err)

	_, err = l.RemoveMember("alice")
	require.NoError(t, err)

	carol, _ := tbl.Player("carol")
	bob, _ := tbl.Player("bob")
	assert.True(t, carol.Leader, "earliest joined member takes over")
	assert.False(t, bob.Leader)
	requireConsistent(t, tbl)
}

func TestLifecycle_Disband(t *testing.T) {
	l, tbl, _ := newTestLifecycle(t, DefaultPolicy())
	mustCreate(t, l, "alice", "RED")
	_, err := l.AddMember("red", "bob")
	require.NoError(t, err)

	blu := mustCreate(t, l, "carol", "BLU")
	_, err = l.AddAlly("blu", "red")
	require.NoError(t, err)
	grn := mustCreate(t, l, "dave", "GRN")
	_, err = l.AddRival("grn", "red")
	require.NoError(t, err)

	ch, err := l.Disband("RED")
	require.NoError(t, err)

	_, ok := tbl.Clan("red")
	assert.False(t, ok)
	for _, name := range []string{"alice", "bob"} {
		p, ok := tbl.Player(name)
		require.True(t, ok)
		assert.False(t, p.InClan())
		assert.Len(t, p.PastClans, 1)
	}
	assert.Empty(t, blu.Allies)
	assert.Empty(t, grn.Rivals)
	assert.ElementsMatch(t, []string{"alice", "bob"}, ch.Affiliations)
	requireConsistent(t, tbl)

	_, err = l.Disband("red")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLifecycle_TransferLeadership(t *testing.T) {
	l, tbl, _ := newTestLifecycle(t, DefaultPolicy())
	mustCreate(t, l, "alice", "RED")
	mustCreate(t, l, "carol", "BLU")
	_, err := l.AddMember("red", "bob")
	require.NoError(t, err)

	ch, err := l.TransferLeadership("red", "BOB")
	require.NoError(t, err)
	assert.ElementsMatch(t, []Write{
		{Kind: KindPlayer, Key: "alice"},
		{Kind: KindPlayer, Key: "bob"},
	}, ch.Writes)

	alice, _ := tbl.Player("alice")
	bob, _ := tbl.Player("bob")
	assert.False(t, alice.Leader)
	assert.True(t, bob.Leader)
	requireConsistent(t, tbl)

	// Already leader: no-op.
	ch, err = l.TransferLeadership("red", "bob")
	require.NoError(t, err)
	assert.True(t, ch.Empty())

	_, err = l.TransferLeadership("red", "carol")
	assert.ErrorIs(t, err, ErrNotAMember)
	_, err = l.TransferLeadership("red", "ghost")
	assert.ErrorIs(t, err, ErrNotAMember)
	_, err = l.TransferLeadership("nope", "bob")
	assert.ErrorIs(t, err, ErrNotFound)
	requireConsistent(t, tbl)
}

func TestLifecycle_Verify(t *testing.T) {
	l, tbl, _ := newTestLifecycle(t, DefaultPolicy())
	mustCreate(t, l, "alice", "RED")

	_, err := l.Verify("red", func() error { return errors.New("broke") })
	require.ErrorIs(t, err, ErrPolicyRejected)
	red, _ := tbl.Clan("red")
	assert.False(t, red.Verified)

	ch, err := l.Verify("red", nil)
	require.NoError(t, err)
	assert.True(t, red.Verified)
	assert.Equal(t, []Write{{Kind: KindClan, Key: "red"}}, ch.Writes)

	// Already verified: the gate is not consulted again.
	ch, err = l.Verify("red", func() error { t.Fatal("gate called"); return nil })
	require.NoError(t, err)
	assert.True(t, ch.Empty())
}

func TestLifecycle_Relations(t *testing.T) {
	policy := DefaultPolicy()
	policy.Unrivable = []string{"&cADM"}
	l, tbl, _ := newTestLifecycle(t, policy)
	mustCreate(t, l, "alice", "RED")
	mustCreate(t, l, "bob", "BLU")
	mustCreate(t, l, "root", "ADM")
	red, _ := tbl.Clan("red")

	_, err := l.AddRival("red", "blu")
	require.NoError(t, err)
	assert.True(t, red.IsRival("blu"))

	_, err = l.AddAlly("red", "blu")
	require.NoError(t, err)
	assert.True(t, red.IsAlly("blu"))
	assert.False(t, red.IsRival("blu"), "alliance replaces rivalry")

	ch, err := l.AddAlly("red", "blu")
	require.NoError(t, err)
	assert.True(t, ch.Empty(), "repeated ally is a no-op")

	_, err = l.AddRival("red", "blu")
	require.NoError(t, err)
	assert.False(t, red.IsAlly("blu"), "rivalry replaces alliance")

	_, err = l.RemoveRival("red", "blu")
	require.NoError(t, err)
	assert.Empty(t, red.Rivals)

	_, err = l.AddAlly("red", "red")
	assert.ErrorIs(t, err, ErrSelfRelation)
	_, err = l.AddRival("red", "adm")
	assert.ErrorIs(t, err, ErrPolicyRejected)
	_, err = l.AddAlly("red", "nope")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = l.AddAlly("red", "adm")
	require.NoError(t, err)
	_, err = l.RemoveAlly("red", "adm")
	require.NoError(t, err)
	assert.Empty(t, red.Allies)

	assert.Equal(t, 2, l.RivableClanCount())
	assert.True(t, l.IsUnrivable("ADM"))
}

func TestLifecycle_Touch(t *testing.T) {
	l, tbl, clk := newTestLifecycle(t, DefaultPolicy())
	mustCreate(t, l, "alice", "RED")
	_, _, err := l.GetOrCreatePlayer("drifter")
	require.NoError(t, err)

	clk.Advance(48 * time.Hour)
	ch, err := l.Touch("alice")
	require.NoError(t, err)
	assert.Len(t, ch.Writes, 2)

	alice, _ := tbl.Player("alice")
	red, _ := tbl.Clan("red")
	assert.Equal(t, clk.now, alice.LastSeen)
	assert.Equal(t, clk.now, red.LastUsed)

	ch, err = l.Touch("drifter")
	require.NoError(t, err)
	assert.Equal(t, []Write{{Kind: KindPlayer, Key: "drifter"}}, ch.Writes)

	_, err = l.Touch("ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLifecycle_SetKDR(t *testing.T) {
	l, tbl, _ := newTestLifecycle(t, DefaultPolicy())
	mustCreate(t, l, "alice", "RED")

	_, err := l.SetPlayerKDR("alice", 1.75)
	require.NoError(t, err)
	_, err = l.SetClanKDR("red", 3.5)
	require.NoError(t, err)

	alice, _ := tbl.Player("alice")
	red, _ := tbl.Clan("red")
	assert.InDelta(t, 1.75, alice.KDR, 1e-9)
	assert.InDelta(t, 3.5, red.TotalKDR, 1e-9)

	_, err = l.SetPlayerKDR("ghost", 1)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = l.SetClanKDR("nope", 1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLifecycle_GetOrCreatePlayer(t *testing.T) {
	l, tbl, _ := newTestLifecycle(t, DefaultPolicy())

	p, ch, err := l.GetOrCreatePlayer("Alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", p.Name)
	assert.False(t, p.InClan())
	assert.Equal(t, []Write{{Kind: KindPlayer, Key: "alice", Created: true}}, ch.Writes)

	again, ch, err := l.GetOrCreatePlayer("ALICE")
	require.NoError(t, err)
	assert.Same(t, p, again)
	assert.True(t, ch.Empty())
	assert.Equal(t, 1, tbl.PlayerCount())

	_, _, err = l.GetOrCreatePlayer("  ")
	assert.ErrorIs(t, err, ErrInvalidName)
}

func TestLifecycle_DeletePlayer(t *testing.T) {
	l, tbl, _ := newTestLifecycle(t, DefaultPolicy())
	mustCreate(t, l, "alice", "RED")
	_, err := l.AddMember("red", "bob")
	require.NoError(t, err)

	_, err = l.DeletePlayer("alice")
	require.NoError(t, err)

	_, ok := tbl.Player("alice")
	assert.False(t, ok)
	red, ok := tbl.Clan("red")
	require.True(t, ok)
	assert.Equal(t, []string{"bob"}, red.Members())
	requireConsistent(t, tbl)

	ch, err := l.DeletePlayer("bob")
	require.NoError(t, err)
	_, ok = tbl.Clan("red")
	assert.False(t, ok, "deleting the last member disbands")
	assert.Contains(t, ch.Writes, Write{Kind: KindPlayer, Key: "bob"})
	assert.Contains(t, ch.Writes, Write{Kind: KindClan, Key: "red"})

	_, err = l.DeletePlayer("bob")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLifecycle_Rebuild(t *testing.T) {
	l, tbl, _ := newTestLifecycle(t, DefaultPolicy())

	red := New("RED", "Red", true, t0)
	empty := New("EMP", "Empty", true, t0)
	nolead := New("NOL", "No leader", true, t0)
	twolead := New("TWO", "Two leaders", true, t0)

	member := func(name, tag string, leader bool, joined time.Duration) *Player {
		p := NewPlayer(name, t0)
		p.Clan = tag
		p.Leader = leader
		p.JoinDate = t0.Add(joined)
		return p
	}
	orphan := member("orphan", "gone", true, 0)
	stray := NewPlayer("stray", t0)
	stray.Leader = true

	ch := l.Rebuild(
		[]*Clan{red, empty, nolead, twolead},
		[]*Player{
			member("alice", "red", true, 0),
			member("bob", "red", false, time.Hour),
			member("carol", "nol", false, 2*time.Hour),
			member("dave", "nol", false, time.Hour),
			member("erin", "two", true, 2*time.Hour),
			member("frank", "two", true, time.Hour),
			orphan,
			stray,
		},
	)

	assert.Equal(t, 3, tbl.ClanCount())
	_, ok := tbl.Clan("emp")
	assert.False(t, ok, "memberless clan dropped")

	assert.Equal(t, []string{"alice", "bob"}, red.Members())
	assert.False(t, orphan.InClan())
	assert.False(t, orphan.Leader)
	assert.False(t, stray.Leader)

	dave, _ := tbl.Player("dave")
	assert.True(t, dave.Leader, "earliest joined promoted")
	frank, _ := tbl.Player("frank")
	erin, _ := tbl.Player("erin")
	assert.True(t, frank.Leader)
	assert.False(t, erin.Leader)

	assert.ElementsMatch(t, []Write{
		{Kind: KindPlayer, Key: "orphan"},
		{Kind: KindPlayer, Key: "stray"},
		{Kind: KindClan, Key: "emp"},
		{Kind: KindPlayer, Key: "dave"},
		{Kind: KindPlayer, Key: "erin"},
	}, ch.Writes)
	assert.Empty(t, ch.Affiliations)
	requireConsistent(t, tbl)
}

func TestLifecycle_Rebuild_ReplacesState(t *testing.T) {
	l, tbl, _ := newTestLifecycle(t, DefaultPolicy())
	mustCreate(t, l, "alice", "RED")

	l.Rebuild(nil, nil)

	assert.Zero(t, tbl.ClanCount())
	assert.Zero(t, tbl.PlayerCount())
}

func TestNewLifecycle_NormalizesPolicy(t *testing.T) {
	l := NewLifecycle(NewTable(), Policy{TagMinLength: 3, Unrivable: []string{" &cADM "}}, nil)

	p := l.Policy()
	assert.Equal(t, 3, p.TagMinLength)
	assert.Equal(t, DefaultTagMaxLength, p.TagMaxLength)
	assert.Equal(t, []string{"adm"}, p.Unrivable)
}
