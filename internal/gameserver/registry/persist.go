package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/udisondev/clanregistry/internal/gameserver/clan"
)

// writeKey identifies one durable record.
type writeKey struct {
	kind clan.Kind
	key  string
}

// persist brings the durable copy of every touched entity in line with memory.
// Must be called without r.mu held.
func (r *Registry) persist(ctx context.Context, ch clan.Changes) error {
	var errs []error
	for _, w := range ch.Writes {
		if err := r.write(ctx, writeKey{kind: w.Kind, key: w.Key}, w.Created); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// write stores the current in-memory state of one entity. Writes to the same
// entity are serialized, and each sends the latest state rather than the
// state at mutation time, so reordered or retried writes converge.
func (r *Registry) write(ctx context.Context, k writeKey, created bool) error {
	mu := r.keyLock(k)
	mu.Lock()
	defer mu.Unlock()

	// An insert that failed earlier is still owed.
	if pendingCreated, ok := r.pendingState(k); ok && pendingCreated {
		created = true
	}

	op, err := r.writeCurrent(ctx, k, created)
	if err != nil {
		r.enqueue(k, created)
		r.metrics.ObservePersistFailure(op)
		slog.Error("persist failed", "op", op, "key", k.key, "error", err)
		return &clan.PersistenceError{Op: op, Key: k.key, Err: err}
	}

	r.dequeue(k)
	return nil
}

func (r *Registry) writeCurrent(ctx context.Context, k writeKey, created bool) (string, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.persistTimeout)
	defer cancel()

	switch k.kind {
	case clan.KindClan:
		r.mu.RLock()
		c, ok := r.table.Clan(k.key)
		if ok {
			c = c.Clone()
		}
		r.mu.RUnlock()

		switch {
		case !ok:
			return clan.OpDeleteClan, r.store.DeleteClan(ctx, k.key)
		case created:
			return clan.OpInsertClan, r.store.InsertClan(ctx, c)
		default:
			return clan.OpUpdateClan, r.store.UpdateClan(ctx, c)
		}

	default:
		r.mu.RLock()
		p, ok := r.table.Player(k.key)
		if ok {
			p = p.Clone()
		}
		r.mu.RUnlock()

		switch {
		case !ok:
			return clan.OpDeletePlayer, r.store.DeletePlayer(ctx, k.key)
		case created:
			return clan.OpInsertPlayer, r.store.InsertPlayer(ctx, p)
		default:
			return clan.OpUpdatePlayer, r.store.UpdatePlayer(ctx, p)
		}
	}
}

func (r *Registry) keyLock(k writeKey) *sync.Mutex {
	v, _ := r.keyLocks.LoadOrStore(k, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// --- Retry queue ---

func (r *Registry) pendingState(k writeKey) (created, ok bool) {
	r.pendingMu.Lock()
	defer r.pendingMu.Unlock()

	created, ok = r.pending[k]
	return created, ok
}

func (r *Registry) enqueue(k writeKey, created bool) {
	r.pendingMu.Lock()
	defer r.pendingMu.Unlock()

	r.pending[k] = r.pending[k] || created
	r.metrics.PendingWrites.Set(float64(len(r.pending)))
}

func (r *Registry) dequeue(k writeKey) {
	r.pendingMu.Lock()
	defer r.pendingMu.Unlock()

	delete(r.pending, k)
	r.metrics.PendingWrites.Set(float64(len(r.pending)))
}

// Pending returns the number of writes waiting for retry.
func (r *Registry) Pending() int {
	r.pendingMu.Lock()
	defer r.pendingMu.Unlock()
	return len(r.pending)
}

// Flush retries every queued write once. Writes that fail again stay queued.
func (r *Registry) Flush(ctx context.Context) error {
	r.reloadMu.RLock()
	defer r.reloadMu.RUnlock()

	r.pendingMu.Lock()
	keys := make([]writeKey, 0, len(r.pending))
	for k := range r.pending {
		keys = append(keys, k)
	}
	r.pendingMu.Unlock()

	if len(keys) == 0 {
		return nil
	}

	var errs []error
	retried := 0
	for _, k := range keys {
		if err := r.write(ctx, k, false); err != nil {
			errs = append(errs, err)
			continue
		}
		retried++
	}

	r.metrics.PersistRetried.Add(float64(retried))
	if retried > 0 {
		slog.Info("queued writes persisted", "count", retried, "remaining", r.Pending())
	}
	return errors.Join(errs...)
}

// RunFlushLoop retries queued writes every interval.
// Blocks until ctx is canceled, then flushes once more and writes a checkpoint.
func (r *Registry) RunFlushLoop(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	slog.Info("clan flush loop started", "interval", interval)

	for {
		select {
		case <-ctx.Done():
			shutdownCtx := context.WithoutCancel(ctx)
			if err := r.Flush(shutdownCtx); err != nil {
				slog.Error("final clan flush", "pending", r.Pending(), "error", err)
			}
			if err := r.Checkpoint(shutdownCtx); err != nil {
				slog.Error("clan checkpoint", "error", err)
			}
			slog.Info("clan flush loop stopping")
			return nil
		case <-ticker.C:
			if err := r.Flush(ctx); err != nil {
				slog.Warn("clan flush incomplete", "pending", r.Pending(), "error", err)
			}
		}
	}
}

// Checkpoint writes the whole in-memory state in one store transaction when
// the store supports it, and is a no-op otherwise. Deletions are not covered;
// they go through the per-key writes and Flush.
func (r *Registry) Checkpoint(ctx context.Context) error {
	saver, ok := r.store.(SnapshotSaver)
	if !ok {
		return nil
	}

	r.reloadMu.RLock()
	defer r.reloadMu.RUnlock()

	r.mu.RLock()
	live := r.table.Clans()
	clans := make([]*clan.Clan, len(live))
	for i, c := range live {
		clans[i] = c.Clone()
	}
	livePlayers := r.table.Players()
	players := make([]*clan.Player, len(livePlayers))
	for i, p := range livePlayers {
		players[i] = p.Clone()
	}
	r.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, r.persistTimeout)
	defer cancel()
	if err := saver.SaveAll(ctx, clans, players); err != nil {
		return fmt.Errorf("checkpoint %d clans, %d players: %w", len(clans), len(players), err)
	}

	slog.Info("clan checkpoint written", "clans", len(clans), "players", len(players))
	return nil
}
