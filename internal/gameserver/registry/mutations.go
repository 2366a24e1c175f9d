package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/udisondev/clanregistry/internal/gameserver/clan"
	"github.com/udisondev/clanregistry/internal/metrics"
)

// Mutation operation names used for metrics.
const (
	opGetOrCreate  = "get_or_create_player"
	opCreateClan   = "create_clan"
	opAddMember    = "add_member"
	opRemoveMember = "remove_member"
	opDisband      = "disband"
	opTransfer     = "transfer_leadership"
	opVerify       = "verify"
	opBan          = "ban"
	opAddAlly      = "add_ally"
	opRemoveAlly   = "remove_ally"
	opAddRival     = "add_rival"
	opRemoveRival  = "remove_rival"
	opTouch        = "touch"
	opPlayerKDR    = "update_player_kdr"
	opClanKDR      = "update_clan_kdr"
	opDeletePlayer = "delete_player"
)

// A mutation that returns a *clan.PersistenceError has already been applied
// in memory; the durable write is queued and retried by Flush. CreateClan and
// GetOrCreatePlayer still return the entity in that case.

// GetOrCreatePlayer returns a copy of the player record, creating a clanless
// one if absent.
func (r *Registry) GetOrCreatePlayer(ctx context.Context, name string) (*clan.Player, error) {
	r.reloadMu.RLock()
	defer r.reloadMu.RUnlock()

	r.mu.Lock()
	p, ch, err := r.life.GetOrCreatePlayer(name)
	if p != nil {
		p = p.Clone()
	}
	r.mu.Unlock()

	return p, r.finish(ctx, opGetOrCreate, ch, err)
}

// CreateClan founds a clan with founder as its only member and leader.
// privileged founders get a verified clan even when verification is required.
// The creation price is charged through the gate before anything changes.
func (r *Registry) CreateClan(ctx context.Context, founder, colorTag, name string, privileged bool) (*clan.Clan, error) {
	r.reloadMu.RLock()
	defer r.reloadMu.RUnlock()

	r.mu.Lock()
	c, ch, err := r.life.CreateClan(founder, colorTag, name, privileged, r.gateFor(ctx, founder, clan.PurchaseCreation))
	if c != nil {
		c = c.Clone()
	}
	r.mu.Unlock()

	return c, r.finish(ctx, opCreateClan, ch, err)
}

// AddMember puts the player into the clan, creating their record if needed.
func (r *Registry) AddMember(ctx context.Context, tag, name string) error {
	r.reloadMu.RLock()
	defer r.reloadMu.RUnlock()

	r.mu.Lock()
	ch, err := r.life.AddMember(tag, name)
	r.mu.Unlock()

	return r.finish(ctx, opAddMember, ch, err)
}

// RemoveMember takes the player out of their clan. The last member leaving
// disbands the clan; a departing leader is replaced by the longest-standing
// member.
func (r *Registry) RemoveMember(ctx context.Context, name string) error {
	r.reloadMu.RLock()
	defer r.reloadMu.RUnlock()

	r.mu.Lock()
	ch, err := r.life.RemoveMember(name)
	r.mu.Unlock()

	return r.finish(ctx, opRemoveMember, ch, err)
}

// Disband destroys the clan and detaches its members.
func (r *Registry) Disband(ctx context.Context, tag string) error {
	r.reloadMu.RLock()
	defer r.reloadMu.RUnlock()

	r.mu.Lock()
	ch, err := r.life.Disband(tag)
	r.mu.Unlock()

	return r.finish(ctx, opDisband, ch, err)
}

// TransferLeadership makes name the sole leader of the clan.
func (r *Registry) TransferLeadership(ctx context.Context, tag, name string) error {
	r.reloadMu.RLock()
	defer r.reloadMu.RUnlock()

	r.mu.Lock()
	ch, err := r.life.TransferLeadership(tag, name)
	r.mu.Unlock()

	return r.finish(ctx, opTransfer, ch, err)
}

// Verify marks the clan verified, charging payer the verification price.
func (r *Registry) Verify(ctx context.Context, tag, payer string) error {
	r.reloadMu.RLock()
	defer r.reloadMu.RUnlock()

	r.mu.Lock()
	ch, err := r.life.Verify(tag, r.gateFor(ctx, payer, clan.PurchaseVerification))
	r.mu.Unlock()

	return r.finish(ctx, opVerify, ch, err)
}

// Ban removes the player from their clan (disbanding it when they were the
// last member) and adds them to the ban list. Players without a record are
// only added to the ban list.
func (r *Registry) Ban(ctx context.Context, name string) error {
	if clan.CleanName(name) == "" {
		r.metrics.ObserveOperation(opBan, metrics.ResultRejected)
		return fmt.Errorf("ban %q: %w", name, clan.ErrInvalidName)
	}

	r.reloadMu.RLock()
	defer r.reloadMu.RUnlock()

	r.mu.Lock()
	var ch clan.Changes
	var err error
	if p, ok := r.table.Player(name); ok && p.InClan() {
		ch, err = r.life.RemoveMember(name)
	}
	r.mu.Unlock()

	perr := r.finish(ctx, opBan, ch, err)
	if err != nil {
		return perr
	}

	var berr error
	if r.bans != nil {
		if err := r.bans.Ban(ctx, clan.CleanName(name)); err != nil {
			berr = fmt.Errorf("ban list %q: %w", name, err)
		}
	}
	return errors.Join(perr, berr)
}

// Unban removes the player from the ban list. Clan membership is not restored.
func (r *Registry) Unban(ctx context.Context, name string) error {
	if r.bans == nil {
		return nil
	}
	if err := r.bans.Unban(ctx, clan.CleanName(name)); err != nil {
		return fmt.Errorf("unban %q: %w", name, err)
	}
	return nil
}

// AddAlly records other as an ally of tag, dropping any rivalry between them.
func (r *Registry) AddAlly(ctx context.Context, tag, other string) error {
	r.reloadMu.RLock()
	defer r.reloadMu.RUnlock()

	r.mu.Lock()
	ch, err := r.life.AddAlly(tag, other)
	r.mu.Unlock()

	return r.finish(ctx, opAddAlly, ch, err)
}

// RemoveAlly drops other from the ally list of tag.
func (r *Registry) RemoveAlly(ctx context.Context, tag, other string) error {
	r.reloadMu.RLock()
	defer r.reloadMu.RUnlock()

	r.mu.Lock()
	ch, err := r.life.RemoveAlly(tag, other)
	r.mu.Unlock()

	return r.finish(ctx, opRemoveAlly, ch, err)
}

// AddRival records other as a rival of tag, dropping any alliance between them.
func (r *Registry) AddRival(ctx context.Context, tag, other string) error {
	r.reloadMu.RLock()
	defer r.reloadMu.RUnlock()

	r.mu.Lock()
	ch, err := r.life.AddRival(tag, other)
	r.mu.Unlock()

	return r.finish(ctx, opAddRival, ch, err)
}

// RemoveRival drops other from the rival list of tag.
func (r *Registry) RemoveRival(ctx context.Context, tag, other string) error {
	r.reloadMu.RLock()
	defer r.reloadMu.RUnlock()

	r.mu.Lock()
	ch, err := r.life.RemoveRival(tag, other)
	r.mu.Unlock()

	return r.finish(ctx, opRemoveRival, ch, err)
}

// Touch records activity: the player's last-seen and their clan's last-used
// times move to now.
func (r *Registry) Touch(ctx context.Context, name string) error {
	r.reloadMu.RLock()
	defer r.reloadMu.RUnlock()

	r.mu.Lock()
	ch, err := r.life.Touch(name)
	r.mu.Unlock()

	return r.finish(ctx, opTouch, ch, err)
}

// UpdatePlayerKDR stores an externally computed KDR for the player.
func (r *Registry) UpdatePlayerKDR(ctx context.Context, name string, kdr float64) error {
	r.reloadMu.RLock()
	defer r.reloadMu.RUnlock()

	r.mu.Lock()
	ch, err := r.life.SetPlayerKDR(name, kdr)
	r.mu.Unlock()

	return r.finish(ctx, opPlayerKDR, ch, err)
}

// UpdateClanKDR stores an externally computed aggregate KDR for the clan.
func (r *Registry) UpdateClanKDR(ctx context.Context, tag string, kdr float64) error {
	r.reloadMu.RLock()
	defer r.reloadMu.RUnlock()

	r.mu.Lock()
	ch, err := r.life.SetClanKDR(tag, kdr)
	r.mu.Unlock()

	return r.finish(ctx, opClanKDR, ch, err)
}

// DeletePlayer removes the player record, leaving their clan first.
func (r *Registry) DeletePlayer(ctx context.Context, name string) error {
	r.reloadMu.RLock()
	defer r.reloadMu.RUnlock()

	r.mu.Lock()
	ch, err := r.life.DeletePlayer(name)
	r.mu.Unlock()

	return r.finish(ctx, opDeletePlayer, ch, err)
}

// finish runs after the write lock is released: it records the outcome,
// notifies affected players and persists the touched entities.
func (r *Registry) finish(ctx context.Context, op string, ch clan.Changes, err error) error {
	if err != nil {
		r.metrics.ObserveOperation(op, resultOf(err))
		return err
	}

	r.notify(ch.Affiliations)
	perr := r.persist(ctx, ch)
	r.updateSizes()

	if perr != nil {
		r.metrics.ObserveOperation(op, metrics.ResultError)
		return perr
	}
	r.metrics.ObserveOperation(op, metrics.ResultOK)
	return nil
}

// gateFor binds the configured economic gate to one purchase. The charge is
// cut off after gateTimeout so it cannot hold the write lock indefinitely.
func (r *Registry) gateFor(ctx context.Context, player string, purchase clan.Purchase) clan.Gate {
	if r.gate == nil {
		return nil
	}
	return func() error {
		ctx, cancel := context.WithTimeout(ctx, r.gateTimeout)
		defer cancel()
		return r.gate.Charge(ctx, player, purchase)
	}
}

// notify sends each affected player's current record and clan to the notifier.
func (r *Registry) notify(names []string) {
	if r.notifier == nil || len(names) == 0 {
		return
	}

	type update struct {
		p *clan.Player
		c *clan.Clan
	}
	updates := make([]update, 0, len(names))

	r.mu.RLock()
	for _, name := range names {
		p, ok := r.table.Player(name)
		if !ok {
			continue
		}
		u := update{p: p.Clone()}
		if p.InClan() {
			if c, ok := r.table.Clan(p.Clan); ok {
				u.c = c.Clone()
			}
		}
		updates = append(updates, u)
	}
	r.mu.RUnlock()

	for _, u := range updates {
		r.notifier.AffiliationChanged(u.p, u.c)
	}
}

func resultOf(err error) string {
	switch {
	case errors.Is(err, clan.ErrPersistence):
		return metrics.ResultError
	default:
		return metrics.ResultRejected
	}
}
