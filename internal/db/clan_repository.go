package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/udisondev/clanregistry/internal/gameserver/clan"
)

// ClanRepository handles clan and clan player persistence to PostgreSQL.
type ClanRepository struct {
	pool *pgxpool.Pool
}

// NewClanRepository creates a new clan repository.
func NewClanRepository(pool *pgxpool.Pool) *ClanRepository {
	return &ClanRepository{pool: pool}
}

const upsertClanSQL = `INSERT INTO clans
	 (tag, color_tag, name, verified, allies, rivals, founded, last_used, total_kdr)
	 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	 ON CONFLICT (tag) DO UPDATE SET
	  color_tag=$2, name=$3, verified=$4, allies=$5, rivals=$6,
	  founded=$7, last_used=$8, total_kdr=$9`

const updateClanSQL = `UPDATE clans SET
	  color_tag=$2, name=$3, verified=$4, allies=$5, rivals=$6,
	  founded=$7, last_used=$8, total_kdr=$9
	 WHERE tag=$1`

const upsertPlayerSQL = `INSERT INTO clan_players
	 (name, display_name, clan_tag, leader, join_date, past_clans, kdr, last_seen)
	 VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	 ON CONFLICT (name) DO UPDATE SET
	  display_name=$2, clan_tag=$3, leader=$4, join_date=$5,
	  past_clans=$6, kdr=$7, last_seen=$8`

const updatePlayerSQL = `UPDATE clan_players SET
	  display_name=$2, clan_tag=$3, leader=$4, join_date=$5,
	  past_clans=$6, kdr=$7, last_seen=$8
	 WHERE name=$1`

// InsertClan stores a new clan row. Re-inserting an existing tag overwrites it,
// so a retried insert is safe.
func (r *ClanRepository) InsertClan(ctx context.Context, c *clan.Clan) error {
	if _, err := r.pool.Exec(ctx, upsertClanSQL, clanArgs(c)...); err != nil {
		return fmt.Errorf("insert clan %q: %w", c.Tag, err)
	}
	return nil
}

// UpdateClan overwrites a clan row, inserting it if the row is missing.
func (r *ClanRepository) UpdateClan(ctx context.Context, c *clan.Clan) error {
	tag, err := r.pool.Exec(ctx, updateClanSQL, clanArgs(c)...)
	if err != nil {
		return fmt.Errorf("update clan %q: %w", c.Tag, err)
	}
	if tag.RowsAffected() == 0 {
		return r.InsertClan(ctx, c)
	}
	return nil
}

// DeleteClan removes a clan row. Deleting a missing row is not an error.
func (r *ClanRepository) DeleteClan(ctx context.Context, tag string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM clans WHERE tag = $1`, tag); err != nil {
		return fmt.Errorf("delete clan %q: %w", tag, err)
	}
	return nil
}

// InsertPlayer stores a new clan player row (upsert).
func (r *ClanRepository) InsertPlayer(ctx context.Context, p *clan.Player) error {
	if _, err := r.pool.Exec(ctx, upsertPlayerSQL, playerArgs(p)...); err != nil {
		return fmt.Errorf("insert clan player %q: %w", p.Name, err)
	}
	return nil
}

// UpdatePlayer overwrites a clan player row, inserting it if the row is missing.
func (r *ClanRepository) UpdatePlayer(ctx context.Context, p *clan.Player) error {
	tag, err := r.pool.Exec(ctx, updatePlayerSQL, playerArgs(p)...)
	if err != nil {
		return fmt.Errorf("update clan player %q: %w", p.Name, err)
	}
	if tag.RowsAffected() == 0 {
		return r.InsertPlayer(ctx, p)
	}
	return nil
}

// DeletePlayer removes a clan player row.
func (r *ClanRepository) DeletePlayer(ctx context.Context, name string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM clan_players WHERE name = $1`, name); err != nil {
		return fmt.Errorf("delete clan player %q: %w", name, err)
	}
	return nil
}

// LoadAll loads every clan (oldest first) and every clan player.
func (r *ClanRepository) LoadAll(ctx context.Context) ([]*clan.Clan, []*clan.Player, error) {
	clans, err := r.loadClans(ctx)
	if err != nil {
		return nil, nil, err
	}
	players, err := r.loadPlayers(ctx)
	if err != nil {
		return nil, nil, err
	}
	return clans, players, nil
}

func (r *ClanRepository) loadClans(ctx context.Context) ([]*clan.Clan, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT tag, color_tag, name, verified, allies, rivals, founded, last_used, total_kdr
		 FROM clans ORDER BY founded, tag`)
	if err != nil {
		return nil, fmt.Errorf("query clans: %w", err)
	}
	defer rows.Close()

	var result []*clan.Clan
	for rows.Next() {
		var c clan.Clan
		if err := rows.Scan(
			&c.Tag, &c.ColorTag, &c.Name, &c.Verified, &c.Allies, &c.Rivals,
			&c.Founded, &c.LastUsed, &c.TotalKDR,
		); err != nil {
			return nil, fmt.Errorf("scan clans: %w", err)
		}
		result = append(result, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate clans: %w", err)
	}
	return result, nil
}

func (r *ClanRepository) loadPlayers(ctx context.Context) ([]*clan.Player, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT name, display_name, clan_tag, leader, join_date, past_clans, kdr, last_seen
		 FROM clan_players ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("query clan_players: %w", err)
	}
	defer rows.Close()

	var result []*clan.Player
	for rows.Next() {
		var (
			p        clan.Player
			clanTag  *string
			joinDate *time.Time
		)
		if err := rows.Scan(
			&p.Name, &p.DisplayName, &clanTag, &p.Leader, &joinDate,
			&p.PastClans, &p.KDR, &p.LastSeen,
		); err != nil {
			return nil, fmt.Errorf("scan clan_players: %w", err)
		}
		if clanTag != nil {
			p.Clan = *clanTag
		}
		if joinDate != nil {
			p.JoinDate = *joinDate
		}
		result = append(result, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate clan_players: %w", err)
	}
	return result, nil
}

// SaveAll upserts a full snapshot in one transaction. The registry calls it
// for its shutdown checkpoint.
func (r *ClanRepository) SaveAll(ctx context.Context, clans []*clan.Clan, players []*clan.Player) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	batch := &pgx.Batch{}
	for _, c := range clans {
		batch.Queue(upsertClanSQL, clanArgs(c)...)
	}
	for _, p := range players {
		batch.Queue(upsertPlayerSQL, playerArgs(p)...)
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("save clan snapshot: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func clanArgs(c *clan.Clan) []any {
	return []any{
		c.Tag, c.ColorTag, c.Name, c.Verified,
		nonNil(c.Allies), nonNil(c.Rivals),
		c.Founded, c.LastUsed, c.TotalKDR,
	}
}

func playerArgs(p *clan.Player) []any {
	var clanTag *string
	var joinDate *time.Time
	if p.InClan() {
		clanTag = &p.Clan
		if !p.JoinDate.IsZero() {
			joinDate = &p.JoinDate
		}
	}
	pastClans := p.PastClans
	if pastClans == nil {
		pastClans = []clan.PastClan{}
	}
	return []any{
		p.Name, p.DisplayName, clanTag, p.Leader, joinDate,
		pastClans, p.KDR, p.LastSeen,
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
