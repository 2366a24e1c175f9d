package testutil

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/udisondev/clanregistry/internal/gameserver/clan"
)

// ErrStoreDown возвращается MockPersistence при инъекции сбоя.
var ErrStoreDown = errors.New("mock store unavailable")

// MockPersistence: in-memory имплементация durable store для unit тестов.
// Хранит копии сущностей и журнал вызовов. Не требует реального PostgreSQL.
type MockPersistence struct {
	mu      sync.Mutex
	clans   map[string]*clan.Clan
	players map[string]*clan.Player
	calls   []string
	failing map[string]bool // op -> fail every call
}

// NewMockPersistence создаёт пустой MockPersistence.
func NewMockPersistence() *MockPersistence {
	return &MockPersistence{
		clans:   make(map[string]*clan.Clan),
		players: make(map[string]*clan.Player),
		failing: make(map[string]bool),
	}
}

// Seed кладёт записи напрямую, минуя журнал (состояние "до рестарта").
func (m *MockPersistence) Seed(clans []*clan.Clan, players []*clan.Player) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range clans {
		m.clans[c.Tag] = c.Clone()
	}
	for _, p := range players {
		m.players[p.Name] = p.Clone()
	}
}

// Fail включает сбой для операций (clan.OpInsertClan и т.д.); "load" для LoadAll,
// "save_all" для SaveAll.
func (m *MockPersistence) Fail(ops ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, op := range ops {
		m.failing[op] = true
	}
}

// Recover выключает все сбои.
func (m *MockPersistence) Recover() {
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.failing)
}

func (m *MockPersistence) call(op, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing[op] {
		return fmt.Errorf("%s %s: %w", op, key, ErrStoreDown)
	}
	m.calls = append(m.calls, op+":"+key)
	return nil
}

func (m *MockPersistence) InsertClan(_ context.Context, c *clan.Clan) error {
	if err := m.call(clan.OpInsertClan, c.Tag); err != nil {
		return err
	}
	m.mu.Lock()
	m.clans[c.Tag] = c.Clone()
	m.mu.Unlock()
	return nil
}

func (m *MockPersistence) UpdateClan(_ context.Context, c *clan.Clan) error {
	if err := m.call(clan.OpUpdateClan, c.Tag); err != nil {
		return err
	}
	m.mu.Lock()
	m.clans[c.Tag] = c.Clone()
	m.mu.Unlock()
	return nil
}

func (m *MockPersistence) DeleteClan(_ context.Context, tag string) error {
	if err := m.call(clan.OpDeleteClan, tag); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.clans, tag)
	m.mu.Unlock()
	return nil
}

func (m *MockPersistence) InsertPlayer(_ context.Context, p *clan.Player) error {
	if err := m.call(clan.OpInsertPlayer, p.Name); err != nil {
		return err
	}
	m.mu.Lock()
	m.players[p.Name] = p.Clone()
	m.mu.Unlock()
	return nil
}

func (m *MockPersistence) UpdatePlayer(_ context.Context, p *clan.Player) error {
	if err := m.call(clan.OpUpdatePlayer, p.Name); err != nil {
		return err
	}
	m.mu.Lock()
	m.players[p.Name] = p.Clone()
	m.mu.Unlock()
	return nil
}

func (m *MockPersistence) DeletePlayer(_ context.Context, name string) error {
	if err := m.call(clan.OpDeletePlayer, name); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.players, name)
	m.mu.Unlock()
	return nil
}

// SaveAll записывает снимок целиком; в журнале появляется "save_all:<кланы>/<игроки>".
func (m *MockPersistence) SaveAll(_ context.Context, clans []*clan.Clan, players []*clan.Player) error {
	if err := m.call("save_all", fmt.Sprintf("%d/%d", len(clans), len(players))); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range clans {
		m.clans[c.Tag] = c.Clone()
	}
	for _, p := range players {
		m.players[p.Name] = p.Clone()
	}
	return nil
}

// LoadAll возвращает копии: кланы по тегу, игроков по имени.
func (m *MockPersistence) LoadAll(_ context.Context) ([]*clan.Clan, []*clan.Player, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing["load"] {
		return nil, nil, fmt.Errorf("load: %w", ErrStoreDown)
	}

	clans := make([]*clan.Clan, 0, len(m.clans))
	for _, tag := range slices.Sorted(maps.Keys(m.clans)) {
		clans = append(clans, m.clans[tag].Clone())
	}
	players := make([]*clan.Player, 0, len(m.players))
	for _, name := range slices.Sorted(maps.Keys(m.players)) {
		players = append(players, m.players[name].Clone())
	}
	return clans, players, nil
}

// Clan возвращает сохранённую копию клана.
func (m *MockPersistence) Clan(tag string) (*clan.Clan, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.clans[tag]
	if !ok {
		return nil, false
	}
	return c.Clone(), true
}

// Player возвращает сохранённую копию игрока.
func (m *MockPersistence) Player(name string) (*clan.Player, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.players[name]
	if !ok {
		return nil, false
	}
	return p.Clone(), true
}

// Calls возвращает журнал успешных вызовов в виде "op:key".
func (m *MockPersistence) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.calls)
}

// ResetCalls очищает журнал вызовов.
func (m *MockPersistence) ResetCalls() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

// Affiliation описывает одно уведомление о смене клана.
type Affiliation struct {
	Player string
	Clan   string // "" если игрок покинул клан
}

// RecordingNotifier запоминает все уведомления.
type RecordingNotifier struct {
	mu     sync.Mutex
	events []Affiliation
}

// AffiliationChanged записывает событие.
func (n *RecordingNotifier) AffiliationChanged(p *clan.Player, c *clan.Clan) {
	n.mu.Lock()
	defer n.mu.Unlock()
	ev := Affiliation{Player: p.Name}
	if c != nil {
		ev.Clan = c.Tag
	}
	n.events = append(n.events, ev)
}

// Events возвращает копию журнала уведомлений.
func (n *RecordingNotifier) Events() []Affiliation {
	n.mu.Lock()
	defer n.mu.Unlock()
	return slices.Clone(n.events)
}
