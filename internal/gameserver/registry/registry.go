// Package registry is the entry point for everything that reads or changes
// clan state: commands, event handlers and background jobs all go through a
// single Registry built at startup.
//
// Concurrency model: one RWMutex guards the Table and the entities it holds.
// Every transition runs entirely under the write lock, so readers never see a
// half-applied membership change. The lock is released before any call to the
// durable store; writes to the store are serialized per entity instead.
//
// Reload swaps the whole table for the store's contents. It excludes
// mutations for its full run through a second lock, reloadMu, which
// mutations hold shared from the transition until their writes finish.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/udisondev/clanregistry/internal/gameserver/clan"
	"github.com/udisondev/clanregistry/internal/metrics"
)

const (
	// DefaultPersistTimeout bounds one durable store call.
	DefaultPersistTimeout = 5 * time.Second
	// DefaultGateTimeout bounds one purchase charge. The charge runs under
	// the write lock.
	DefaultGateTimeout = 2 * time.Second
)

// Options configures a Registry. Zero values are valid; a zero Policy does
// not require verification. Use clan.DefaultPolicy for the server defaults.
type Options struct {
	Policy   clan.Policy
	Notifier Notifier
	Bans     BanList
	Gate     Gate
	Metrics  *metrics.Metrics

	PersistTimeout time.Duration
	GateTimeout    time.Duration
	Now            func() time.Time
}

// Registry is the clan and clan player registry.
type Registry struct {
	// reloadMu: shared by mutations and Flush, exclusive for Reload.
	// Always taken before mu.
	reloadMu sync.RWMutex

	mu    sync.RWMutex
	table *clan.Table
	life  *clan.Lifecycle

	store    Persistence
	notifier Notifier
	bans     BanList
	gate     Gate
	metrics  *metrics.Metrics
	now      func() time.Time

	persistTimeout time.Duration
	gateTimeout    time.Duration

	// Per-entity store serialization: writeKey -> *sync.Mutex.
	keyLocks sync.Map

	// Writes waiting for retry: writeKey -> created.
	pendingMu sync.Mutex
	pending   map[writeKey]bool
}

// New creates an empty registry. Use Open to build one from the store.
func New(store Persistence, opts Options) *Registry {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.PersistTimeout <= 0 {
		opts.PersistTimeout = DefaultPersistTimeout
	}
	if opts.GateTimeout <= 0 {
		opts.GateTimeout = DefaultGateTimeout
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New(prometheus.NewRegistry())
	}

	table := clan.NewTable()
	return &Registry{
		table:          table,
		life:           clan.NewLifecycle(table, opts.Policy, opts.Now),
		store:          store,
		notifier:       opts.Notifier,
		bans:           opts.Bans,
		gate:           opts.Gate,
		metrics:        opts.Metrics,
		now:            opts.Now,
		persistTimeout: opts.PersistTimeout,
		gateTimeout:    opts.GateTimeout,
		pending:        make(map[writeKey]bool),
	}
}

// Open creates a registry and fills it from the store.
func Open(ctx context.Context, store Persistence, opts Options) (*Registry, error) {
	r := New(store, opts)
	if err := r.Reload(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload discards the in-memory state and rebuilds it from the store.
// Repairs made while rebuilding are written back; failures there are queued
// for retry and do not fail the reload. Mutations wait until it is done.
func (r *Registry) Reload(ctx context.Context) error {
	r.reloadMu.Lock()
	defer r.reloadMu.Unlock()

	clans, players, err := r.store.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("load clans: %w", err)
	}

	r.mu.Lock()
	ch := r.life.Rebuild(clans, players)
	r.mu.Unlock()

	r.updateSizes()

	if err := r.persist(ctx, ch); err != nil {
		slog.Error("writing back load repairs", "error", err)
	}

	clanCount, playerCount := r.Counts()
	slog.Info("clan registry loaded",
		"clans", clanCount,
		"players", playerCount,
		"repairs", len(ch.Writes))
	return nil
}

// --- Lookups ---

// IsClan reports whether a clan with tag exists.
func (r *Registry) IsClan(tag string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.table.Clan(tag)
	return ok
}

// FindClan returns a copy of the clan.
func (r *Registry) FindClan(tag string) (*clan.Clan, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.table.Clan(tag)
	if !ok {
		return nil, fmt.Errorf("clan %q: %w", tag, clan.ErrNotFound)
	}
	return c.Clone(), nil
}

// FindClanPlayer returns a copy of any player record, including players
// who are not in a clan.
func (r *Registry) FindClanPlayer(name string) (*clan.Player, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.table.Player(name)
	if !ok {
		return nil, fmt.Errorf("player %q: %w", name, clan.ErrNotFound)
	}
	return p.Clone(), nil
}

// FindMember returns a copy of the player only while they are in a clan.
func (r *Registry) FindMember(name string) (*clan.Player, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.table.Player(name)
	if !ok || !p.InClan() {
		return nil, fmt.Errorf("clan member %q: %w", name, clan.ErrNotFound)
	}
	return p.Clone(), nil
}

// ClanOf returns a copy of the player's clan.
func (r *Registry) ClanOf(name string) (*clan.Clan, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.table.Player(name)
	if !ok || !p.InClan() {
		return nil, fmt.Errorf("clan of %q: %w", name, clan.ErrNotFound)
	}
	c, ok := r.table.Clan(p.Clan)
	if !ok {
		return nil, fmt.Errorf("clan of %q: %w", name, clan.ErrNotFound)
	}
	return c.Clone(), nil
}

// Members returns copies of the clan's member records sorted by name.
func (r *Registry) Members(tag string) ([]*clan.Player, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.table.Clan(tag)
	if !ok {
		return nil, fmt.Errorf("clan %q: %w", tag, clan.ErrNotFound)
	}
	names := c.Members()
	result := make([]*clan.Player, 0, len(names))
	for _, name := range names {
		if p, ok := r.table.Player(name); ok {
			result = append(result, p.Clone())
		}
	}
	return result, nil
}

// Leader returns a copy of the clan leader's record.
func (r *Registry) Leader(tag string) (*clan.Player, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.table.Clan(tag)
	if !ok {
		return nil, fmt.Errorf("clan %q: %w", tag, clan.ErrNotFound)
	}
	for _, name := range c.Members() {
		if p, ok := r.table.Player(name); ok && p.Leader {
			return p.Clone(), nil
		}
	}
	return nil, fmt.Errorf("leader of %q: %w", c.Tag, clan.ErrNotFound)
}

// ListClans returns copies of all clans in creation/import order.
func (r *Registry) ListClans() []*clan.Clan {
	r.mu.RLock()
	defer r.mu.RUnlock()

	live := r.table.Clans()
	result := make([]*clan.Clan, len(live))
	for i, c := range live {
		result[i] = c.Clone()
	}
	return result
}

// ListAllPlayers returns copies of every player record, including disabled ones.
func (r *Registry) ListAllPlayers() []*clan.Player {
	r.mu.RLock()
	defer r.mu.RUnlock()

	live := r.table.Players()
	result := make([]*clan.Player, len(live))
	for i, p := range live {
		result[i] = p.Clone()
	}
	return result
}

// Counts returns the number of clans and player records.
func (r *Registry) Counts() (clans, players int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.table.ClanCount(), r.table.PlayerCount()
}

// RivableClanCount counts clans that may be declared rivals.
func (r *Registry) RivableClanCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.life.RivableClanCount()
}

// IsBanned asks the ban list about name. Always false without a ban list.
func (r *Registry) IsBanned(ctx context.Context, name string) (bool, error) {
	if r.bans == nil {
		return false, nil
	}
	banned, err := r.bans.IsBanned(ctx, clan.CleanName(name))
	if err != nil {
		return false, fmt.Errorf("ban lookup %q: %w", name, err)
	}
	return banned, nil
}

// --- Rankings ---

// RankedClans returns all clans by total KDR, highest first.
func (r *Registry) RankedClans() []*clan.Clan {
	return clan.SortClansByKDR(r.ListClans())
}

// RankedPlayersByKDR returns all players by KDR, highest first.
func (r *Registry) RankedPlayersByKDR() []*clan.Player {
	return clan.SortPlayersByKDR(r.ListAllPlayers())
}

// RankedPlayersByRecency returns all players, most recently seen first.
func (r *Registry) RankedPlayersByRecency() []*clan.Player {
	return clan.SortPlayersByLastSeen(r.ListAllPlayers(), r.now())
}

// VerifiedAlliancesView returns verified clans ranked by KDR, the public
// listing of alliances and rivalries.
func (r *Registry) VerifiedAlliancesView() []*clan.Clan {
	return clan.VerifiedOnly(r.RankedClans())
}

func (r *Registry) updateSizes() {
	clans, players := r.Counts()
	r.metrics.SetSizes(clans, players)
}
