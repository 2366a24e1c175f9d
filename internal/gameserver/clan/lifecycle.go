package clan

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"
	"unicode/utf8"
)

// Policy holds the server rules enforced by the lifecycle.
type Policy struct {
	// RequireVerification makes new clans unverified unless the founder is privileged.
	RequireVerification bool

	TagMinLength int
	TagMaxLength int

	// Unrivable lists clan tags that cannot be declared rivals.
	Unrivable []string
}

// DefaultPolicy returns the policy used when none is configured.
func DefaultPolicy() Policy {
	return Policy{
		RequireVerification: true,
		TagMinLength:        DefaultTagMinLength,
		TagMaxLength:        DefaultTagMaxLength,
	}
}

// Purchase identifies a paid action checked by an economic gate.
type Purchase int

const (
	PurchaseCreation Purchase = iota + 1
	PurchaseVerification
)

func (p Purchase) String() string {
	switch p {
	case PurchaseCreation:
		return "creation"
	case PurchaseVerification:
		return "verification"
	default:
		return fmt.Sprintf("purchase(%d)", int(p))
	}
}

// Gate is a pre-mutation check. A non-nil error rejects the transition
// with ErrPolicyRejected before anything is changed.
type Gate func() error

// Kind is the entity type named by a Write.
type Kind uint8

const (
	KindClan Kind = iota + 1
	KindPlayer
)

func (k Kind) String() string {
	if k == KindClan {
		return "clan"
	}
	return "player"
}

// Write names an entity whose durable copy must be brought in line with memory.
// Created marks entities that did not exist before the transition.
type Write struct {
	Kind    Kind
	Key     string
	Created bool
}

// Changes lists what a transition touched.
type Changes struct {
	Writes []Write

	// Affiliations lists players whose clan changed.
	Affiliations []string
}

// Empty reports whether nothing was touched.
func (c *Changes) Empty() bool {
	return len(c.Writes) == 0 && len(c.Affiliations) == 0
}

func (c *Changes) clan(tag string, created bool) {
	c.add(Write{Kind: KindClan, Key: tag, Created: created})
}

func (c *Changes) player(name string, created bool) {
	c.add(Write{Kind: KindPlayer, Key: name, Created: created})
}

func (c *Changes) add(w Write) {
	for i := range c.Writes {
		if c.Writes[i].Kind == w.Kind && c.Writes[i].Key == w.Key {
			c.Writes[i].Created = c.Writes[i].Created || w.Created
			return
		}
	}
	c.Writes = append(c.Writes, w)
}

func (c *Changes) affiliation(name string) {
	if !slices.Contains(c.Affiliations, name) {
		c.Affiliations = append(c.Affiliations, name)
	}
}

// Lifecycle implements the clan membership state machine over a Table.
//
// It performs no locking and no I/O: the caller holds the registry write lock
// for the whole call and persists the returned Changes afterwards. Every
// method validates before mutating, so an error means nothing changed.
type Lifecycle struct {
	table  *Table
	policy Policy
	now    func() time.Time
}

// NewLifecycle creates a lifecycle bound to table.
func NewLifecycle(table *Table, policy Policy, now func() time.Time) *Lifecycle {
	if now == nil {
		now = time.Now
	}
	if policy.TagMinLength <= 0 {
		policy.TagMinLength = DefaultTagMinLength
	}
	if policy.TagMaxLength < policy.TagMinLength {
		policy.TagMaxLength = max(DefaultTagMaxLength, policy.TagMinLength)
	}
	unrivable := make([]string, 0, len(policy.Unrivable))
	for _, tag := range policy.Unrivable {
		unrivable = append(unrivable, CleanTag(tag))
	}
	policy.Unrivable = unrivable

	return &Lifecycle{table: table, policy: policy, now: now}
}

// Policy returns the effective policy.
func (l *Lifecycle) Policy() Policy {
	return l.policy
}

// GetOrCreatePlayer returns the player record, creating a clanless one if absent.
func (l *Lifecycle) GetOrCreatePlayer(name string) (*Player, Changes, error) {
	var ch Changes
	if CleanName(name) == "" {
		return nil, ch, fmt.Errorf("player name %q: %w", name, ErrInvalidName)
	}
	p := l.getOrCreatePlayer(name, &ch)
	return p, ch, nil
}

// CreateClan founds a clan with founder as sole member and leader.
func (l *Lifecycle) CreateClan(founder, colorTag, name string, privileged bool, gate Gate) (*Clan, Changes, error) {
	var ch Changes

	tag := CleanTag(colorTag)
	if err := l.validateTag(tag); err != nil {
		return nil, ch, err
	}
	if strings.TrimSpace(name) == "" {
		return nil, ch, fmt.Errorf("clan name: %w", ErrInvalidName)
	}
	if CleanName(founder) == "" {
		return nil, ch, fmt.Errorf("founder name %q: %w", founder, ErrInvalidName)
	}
	if _, ok := l.table.Clan(tag); ok {
		return nil, ch, fmt.Errorf("create clan %q: %w", tag, ErrDuplicateTag)
	}
	if p, ok := l.table.Player(founder); ok && p.InClan() {
		return nil, ch, fmt.Errorf("founder %q: %w", founder, ErrAlreadyInClan)
	}
	if gate != nil {
		if err := gate(); err != nil {
			return nil, ch, policyError(err)
		}
	}

	now := l.now()
	p := l.getOrCreatePlayer(founder, &ch)

	verified := !l.policy.RequireVerification || privileged
	c := New(colorTag, strings.TrimSpace(name), verified, now)
	l.attach(c, p, true, now, &ch)
	l.table.ImportClan(c)
	ch.clan(c.Tag, true)

	slog.Info("clan created", "tag", c.Tag, "name", c.Name, "leader", p.Name, "verified", verified)
	return c, ch, nil
}

// AddMember puts player name into the clan.
func (l *Lifecycle) AddMember(tag, name string) (Changes, error) {
	var ch Changes

	c, ok := l.table.Clan(tag)
	if !ok {
		return ch, fmt.Errorf("clan %q: %w", tag, ErrNotFound)
	}
	if CleanName(name) == "" {
		return ch, fmt.Errorf("player name %q: %w", name, ErrInvalidName)
	}
	if p, ok := l.table.Player(name); ok && p.InClan() {
		return ch, fmt.Errorf("add %q to %q: %w", name, c.Tag, ErrAlreadyInClan)
	}

	p := l.getOrCreatePlayer(name, &ch)
	l.attach(c, p, false, l.now(), &ch)

	slog.Info("member added", "tag", c.Tag, "player", p.Name, "members", c.Size())
	return ch, nil
}

// RemoveMember takes the player out of their clan.
// Removing the last member disbands the clan instead.
// A departing leader is replaced by the earliest-joined remaining member.
func (l *Lifecycle) RemoveMember(name string) (Changes, error) {
	var ch Changes

	p, ok := l.table.Player(name)
	if !ok {
		return ch, fmt.Errorf("player %q: %w", name, ErrNotFound)
	}
	if !p.InClan() {
		return ch, fmt.Errorf("player %q: %w", name, ErrNotAMember)
	}

	l.removeMember(p, &ch)
	return ch, nil
}

// Disband destroys the clan and detaches every remaining member.
func (l *Lifecycle) Disband(tag string) (Changes, error) {
	var ch Changes

	c, ok := l.table.Clan(tag)
	if !ok {
		return ch, fmt.Errorf("clan %q: %w", tag, ErrNotFound)
	}

	l.disband(c, &ch)
	return ch, nil
}

// TransferLeadership makes name the sole leader of the clan.
func (l *Lifecycle) TransferLeadership(tag, name string) (Changes, error) {
	var ch Changes

	c, ok := l.table.Clan(tag)
	if !ok {
		return ch, fmt.Errorf("clan %q: %w", tag, ErrNotFound)
	}
	p, ok := l.table.Player(name)
	if !ok || p.Clan != c.Tag || !c.IsMember(p.Name) {
		return ch, fmt.Errorf("promote %q in %q: %w", name, c.Tag, ErrNotAMember)
	}
	if p.Leader {
		return ch, nil
	}

	for _, m := range c.Members() {
		mp, ok := l.table.Player(m)
		if ok && mp.Leader {
			mp.Leader = false
			ch.player(mp.Name, false)
		}
	}
	p.Leader = true
	ch.player(p.Name, false)

	slog.Info("leadership transferred", "tag", c.Tag, "leader", p.Name)
	return ch, nil
}

// Verify marks the clan verified after gate accepts.
func (l *Lifecycle) Verify(tag string, gate Gate) (Changes, error) {
	var ch Changes

	c, ok := l.table.Clan(tag)
	if !ok {
		return ch, fmt.Errorf("clan %q: %w", tag, ErrNotFound)
	}
	if c.Verified {
		return ch, nil
	}
	if gate != nil {
		if err := gate(); err != nil {
			return ch, policyError(err)
		}
	}

	c.Verified = true
	ch.clan(c.Tag, false)

	slog.Info("clan verified", "tag", c.Tag)
	return ch, nil
}

// AddAlly records other as an ally of tag. An existing rivalry is dropped.
func (l *Lifecycle) AddAlly(tag, other string) (Changes, error) {
	var ch Changes

	c, o, err := l.pair(tag, other)
	if err != nil {
		return ch, err
	}

	var added, removed bool
	c.Allies, added = addRelation(c.Allies, o.Tag)
	c.Rivals, removed = removeRelation(c.Rivals, o.Tag)
	if added || removed {
		ch.clan(c.Tag, false)
	}
	return ch, nil
}

// RemoveAlly drops other from the ally list of tag.
func (l *Lifecycle) RemoveAlly(tag, other string) (Changes, error) {
	var ch Changes

	c, o, err := l.pair(tag, other)
	if err != nil {
		return ch, err
	}

	var removed bool
	if c.Allies, removed = removeRelation(c.Allies, o.Tag); removed {
		ch.clan(c.Tag, false)
	}
	return ch, nil
}

// AddRival records other as a rival of tag. An existing alliance is dropped.
func (l *Lifecycle) AddRival(tag, other string) (Changes, error) {
	var ch Changes

	c, o, err := l.pair(tag, other)
	if err != nil {
		return ch, err
	}
	if l.IsUnrivable(o.Tag) {
		return ch, policyError(fmt.Errorf("clan %q cannot be rivaled", o.Tag))
	}

	var added, removed bool
	c.Rivals, added = addRelation(c.Rivals, o.Tag)
	c.Allies, removed = removeRelation(c.Allies, o.Tag)
	if added || removed {
		ch.clan(c.Tag, false)
	}
	return ch, nil
}

// RemoveRival drops other from the rival list of tag.
func (l *Lifecycle) RemoveRival(tag, other string) (Changes, error) {
	var ch Changes

	c, o, err := l.pair(tag, other)
	if err != nil {
		return ch, err
	}

	var removed bool
	if c.Rivals, removed = removeRelation(c.Rivals, o.Tag); removed {
		ch.clan(c.Tag, false)
	}
	return ch, nil
}

// IsUnrivable reports whether tag is protected from rivalries.
func (l *Lifecycle) IsUnrivable(tag string) bool {
	return slices.Contains(l.policy.Unrivable, CleanTag(tag))
}

// RivableClanCount counts clans that may be declared rivals.
func (l *Lifecycle) RivableClanCount() int {
	count := 0
	for _, c := range l.table.Clans() {
		if !l.IsUnrivable(c.Tag) {
			count++
		}
	}
	return count
}

// Touch refreshes the player's last-seen time and their clan's last-used time.
func (l *Lifecycle) Touch(name string) (Changes, error) {
	var ch Changes

	p, ok := l.table.Player(name)
	if !ok {
		return ch, fmt.Errorf("player %q: %w", name, ErrNotFound)
	}

	now := l.now()
	p.LastSeen = now
	ch.player(p.Name, false)

	if p.InClan() {
		if c, ok := l.table.Clan(p.Clan); ok {
			c.LastUsed = now
			ch.clan(c.Tag, false)
		}
	}
	return ch, nil
}

// SetPlayerKDR stores an externally computed KDR for the player.
func (l *Lifecycle) SetPlayerKDR(name string, kdr float64) (Changes, error) {
	var ch Changes

	p, ok := l.table.Player(name)
	if !ok {
		return ch, fmt.Errorf("player %q: %w", name, ErrNotFound)
	}
	p.KDR = kdr
	ch.player(p.Name, false)
	return ch, nil
}

// SetClanKDR stores an externally computed aggregate KDR for the clan.
func (l *Lifecycle) SetClanKDR(tag string, kdr float64) (Changes, error) {
	var ch Changes

	c, ok := l.table.Clan(tag)
	if !ok {
		return ch, fmt.Errorf("clan %q: %w", tag, ErrNotFound)
	}
	c.TotalKDR = kdr
	ch.clan(c.Tag, false)
	return ch, nil
}

// DeletePlayer removes a player record entirely, leaving their clan first.
func (l *Lifecycle) DeletePlayer(name string) (Changes, error) {
	var ch Changes

	p, ok := l.table.Player(name)
	if !ok {
		return ch, fmt.Errorf("player %q: %w", name, ErrNotFound)
	}
	if p.InClan() {
		l.removeMember(p, &ch)
	}

	l.table.RemovePlayer(p.Name)
	ch.player(p.Name, false)

	slog.Info("player record deleted", "player", p.Name)
	return ch, nil
}

// Rebuild replaces the table contents with records loaded from the durable
// store and repairs them: member sets are derived from player records,
// players pointing at unknown clans are detached, memberless clans are dropped
// and every clan ends up with exactly one leader. The repairs are returned as
// Changes so the durable copy can be reconciled.
func (l *Lifecycle) Rebuild(clans []*Clan, players []*Player) Changes {
	var ch Changes

	l.table.Clear()
	for _, c := range clans {
		c.resetMembers()
		l.table.ImportClan(c)
	}
	for _, p := range players {
		l.table.ImportPlayer(p)
	}

	for _, p := range l.table.Players() {
		if !p.InClan() {
			if p.Leader || !p.JoinDate.IsZero() {
				p.Leader = false
				p.JoinDate = time.Time{}
				ch.player(p.Name, false)
			}
			continue
		}

		c, ok := l.table.Clan(p.Clan)
		if !ok {
			slog.Warn("player references unknown clan, detaching", "player", p.Name, "tag", p.Clan)
			p.Clan = ""
			p.Leader = false
			p.JoinDate = time.Time{}
			ch.player(p.Name, false)
			continue
		}
		p.Clan = c.Tag
		c.addMember(p.Name)
	}

	for _, c := range l.table.Clans() {
		if c.Size() == 0 {
			slog.Warn("dropping clan without members", "tag", c.Tag)
			l.table.RemoveClan(c.Tag)
			ch.clan(c.Tag, false)
			continue
		}
		l.fixLeaders(c, &ch)
	}

	return ch
}

func (l *Lifecycle) getOrCreatePlayer(name string, ch *Changes) *Player {
	if p, ok := l.table.Player(name); ok {
		return p
	}
	p := NewPlayer(strings.TrimSpace(name), l.now())
	l.table.ImportPlayer(p)
	ch.player(p.Name, true)
	return p
}

func (l *Lifecycle) attach(c *Clan, p *Player, leader bool, now time.Time, ch *Changes) {
	p.Clan = c.Tag
	p.Leader = leader
	p.JoinDate = now
	c.addMember(p.Name)

	ch.player(p.Name, false)
	ch.affiliation(p.Name)
}

// detach clears the player's affiliation and records it in their history.
// c may be nil when the referenced clan no longer exists.
func (l *Lifecycle) detach(p *Player, c *Clan, ch *Changes) {
	past := PastClan{Tag: p.Clan, ColorTag: p.Clan, Leader: p.Leader, Left: l.now()}
	if c != nil {
		past.ColorTag = c.ColorTag
		c.removeMember(p.Name)
		ch.clan(c.Tag, false)
	}
	p.PastClans = append(p.PastClans, past)
	p.Clan = ""
	p.Leader = false
	p.JoinDate = time.Time{}

	ch.player(p.Name, false)
	ch.affiliation(p.Name)
}

func (l *Lifecycle) removeMember(p *Player, ch *Changes) {
	c, ok := l.table.Clan(p.Clan)
	if !ok {
		l.detach(p, nil, ch)
		return
	}
	if c.Size() <= 1 {
		l.disband(c, ch)
		return
	}

	wasLeader := p.Leader
	l.detach(p, c, ch)
	if wasLeader {
		l.promoteSuccessor(c, ch)
	}

	slog.Info("member removed", "tag", c.Tag, "player", p.Name, "members", c.Size())
}

func (l *Lifecycle) disband(c *Clan, ch *Changes) {
	for _, name := range c.Members() {
		if p, ok := l.table.Player(name); ok {
			l.detach(p, c, ch)
		} else {
			c.removeMember(name)
		}
	}

	for _, other := range l.table.Clans() {
		if other == c {
			continue
		}
		var a, r bool
		other.Allies, a = removeRelation(other.Allies, c.Tag)
		other.Rivals, r = removeRelation(other.Rivals, c.Tag)
		if a || r {
			ch.clan(other.Tag, false)
		}
	}

	l.table.RemoveClan(c.Tag)
	ch.clan(c.Tag, false)

	slog.Info("clan disbanded", "tag", c.Tag, "name", c.Name)
}

// promoteSuccessor makes the earliest-joined member leader (ties by name).
func (l *Lifecycle) promoteSuccessor(c *Clan, ch *Changes) *Player {
	var best *Player
	for _, name := range c.Members() {
		p, ok := l.table.Player(name)
		if !ok {
			continue
		}
		if best == nil || p.JoinDate.Before(best.JoinDate) {
			best = p
		}
	}
	if best == nil {
		return nil
	}
	best.Leader = true
	ch.player(best.Name, false)

	slog.Info("leader promoted", "tag", c.Tag, "leader", best.Name)
	return best
}

// fixLeaders enforces exactly one leader among loaded members.
func (l *Lifecycle) fixLeaders(c *Clan, ch *Changes) {
	var leaders []*Player
	for _, name := range c.Members() {
		if p, ok := l.table.Player(name); ok && p.Leader {
			leaders = append(leaders, p)
		}
	}

	switch len(leaders) {
	case 0:
		slog.Warn("clan has no leader, promoting", "tag", c.Tag)
		l.promoteSuccessor(c, ch)
	case 1:
	default:
		keep := leaders[0]
		for _, p := range leaders[1:] {
			if p.JoinDate.Before(keep.JoinDate) {
				keep = p
			}
		}
		for _, p := range leaders {
			if p != keep {
				p.Leader = false
				ch.player(p.Name, false)
			}
		}
		slog.Warn("clan had several leaders, kept one", "tag", c.Tag, "leader", keep.Name)
	}
}

func (l *Lifecycle) pair(tag, other string) (*Clan, *Clan, error) {
	c, ok := l.table.Clan(tag)
	if !ok {
		return nil, nil, fmt.Errorf("clan %q: %w", tag, ErrNotFound)
	}
	o, ok := l.table.Clan(other)
	if !ok {
		return nil, nil, fmt.Errorf("clan %q: %w", other, ErrNotFound)
	}
	if c.Tag == o.Tag {
		return nil, nil, fmt.Errorf("clan %q: %w", c.Tag, ErrSelfRelation)
	}
	return c, o, nil
}

// validateTag checks clean tag constraints.
func (l *Lifecycle) validateTag(tag string) error {
	n := utf8.RuneCountInString(tag)
	if n < l.policy.TagMinLength || n > l.policy.TagMaxLength {
		return fmt.Errorf("%w: length must be %d-%d", ErrInvalidTag, l.policy.TagMinLength, l.policy.TagMaxLength)
	}
	for _, r := range tag {
		if !isValidTagChar(r) {
			return fmt.Errorf("%w: invalid character %q", ErrInvalidTag, r)
		}
	}
	return nil
}
