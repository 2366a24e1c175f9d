package registry

import (
	"context"

	"github.com/udisondev/clanregistry/internal/gameserver/clan"
)

// Persistence is the durable store. The registry owns the live copies; the
// store is the source of truth only across restarts (LoadAll).
type Persistence interface {
	InsertClan(ctx context.Context, c *clan.Clan) error
	UpdateClan(ctx context.Context, c *clan.Clan) error
	DeleteClan(ctx context.Context, tag string) error

	InsertPlayer(ctx context.Context, p *clan.Player) error
	UpdatePlayer(ctx context.Context, p *clan.Player) error
	DeletePlayer(ctx context.Context, name string) error

	// LoadAll returns every stored clan and player record.
	// Clan member sets are not stored; they are derived from player records.
	LoadAll(ctx context.Context) ([]*clan.Clan, []*clan.Player, error)
}

// Notifier is told after a player's clan changes so display state
// (name tags, broadcasts) can refresh. c is nil when the player left.
type Notifier interface {
	AffiliationChanged(p *clan.Player, c *clan.Clan)
}

// BanList records globally banned players by clean name.
type BanList interface {
	Ban(ctx context.Context, name string) error
	Unban(ctx context.Context, name string) error
	IsBanned(ctx context.Context, name string) (bool, error)
}

// Gate charges for a paid action. A non-nil error rejects it.
// Called while the registry write lock is held, with a ctx that expires after
// Options.GateTimeout; implementations must return once ctx is done.
type Gate interface {
	Charge(ctx context.Context, player string, purchase clan.Purchase) error
}

// SnapshotSaver is implemented by stores that can write every clan and
// player in one transaction. Registry.Checkpoint uses it at shutdown.
type SnapshotSaver interface {
	SaveAll(ctx context.Context, clans []*clan.Clan, players []*clan.Player) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(p *clan.Player, c *clan.Clan)

// AffiliationChanged calls f(p, c).
func (f NotifierFunc) AffiliationChanged(p *clan.Player, c *clan.Clan) { f(p, c) }
