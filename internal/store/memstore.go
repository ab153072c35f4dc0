package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"paperback-server/internal/model"
)

// Memstore is a mutex-and-maps implementation of every repository. It backs
// the engine tests and local development; production runs against pgstore.
// Records are copied on the way in and out so callers never alias the stored
// value, and a per-record sequence number keeps creation order stable even
// when timestamps collide.
type Memstore struct {
	mu  sync.RWMutex
	seq int64

	games    map[uuid.UUID]*memRecord[model.Game]
	configs  map[uuid.UUID]*memRecord[model.Config]
	players  map[uuid.UUID]*memRecord[model.Player]
	turns    map[uuid.UUID]*memRecord[model.Turn]
	invites  map[uuid.UUID]*memRecord[model.Invite]
	contacts map[uuid.UUID]*memRecord[model.Contact]
	users    map[uuid.UUID]*memRecord[model.User]
	sessions map[string]uuid.UUID
}

type memRecord[T any] struct {
	seq int64
	val T
}

// NewMemstore returns an empty in-memory store bundle.
func NewMemstore() (*Memstore, *Store) {
	m := &Memstore{
		games:    make(map[uuid.UUID]*memRecord[model.Game]),
		configs:  make(map[uuid.UUID]*memRecord[model.Config]),
		players:  make(map[uuid.UUID]*memRecord[model.Player]),
		turns:    make(map[uuid.UUID]*memRecord[model.Turn]),
		invites:  make(map[uuid.UUID]*memRecord[model.Invite]),
		contacts: make(map[uuid.UUID]*memRecord[model.Contact]),
		users:    make(map[uuid.UUID]*memRecord[model.User]),
		sessions: make(map[string]uuid.UUID),
	}
	s := &Store{
		Games:    (*memGames)(m),
		Configs:  (*memConfigs)(m),
		Players:  (*memPlayers)(m),
		Turns:    (*memTurns)(m),
		Invites:  (*memInvites)(m),
		Contacts: (*memContacts)(m),
		Users:    (*memUsers)(m),
		Sessions: (*memSessions)(m),
	}
	return m, s
}

func (m *Memstore) nextSeq() int64 {
	m.seq++
	return m.seq
}

func clonePlayers(in []*model.Player) []*model.Player {
	out := make([]*model.Player, len(in))
	for i, p := range in {
		cp := *p
		out[i] = &cp
	}
	return out
}

// --- games ---

type memGames Memstore

func (m *memGames) Create(_ context.Context, game *model.Game) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if game.ID == uuid.Nil {
		game.ID = uuid.New()
	}
	now := time.Now()
	if game.CreatedAt.IsZero() {
		game.CreatedAt = now
	}
	game.UpdatedAt = now
	game.Version = 1
	m.games[game.ID] = &memRecord[model.Game]{seq: (*Memstore)(m).nextSeq(), val: *game}
	return nil
}

func (m *memGames) Get(_ context.Context, id uuid.UUID) (*model.Game, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.games[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := rec.val
	return &cp, nil
}

func (m *memGames) Save(_ context.Context, game *model.Game) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.games[game.ID]
	if !ok {
		return ErrNotFound
	}
	if rec.val.Version != game.Version {
		return ErrVersionConflict
	}
	game.Version++
	game.UpdatedAt = time.Now()
	rec.val = *game
	return nil
}

func (m *memGames) Destroy(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.games[id]; !ok {
		return ErrNotFound
	}
	delete(m.games, id)
	return nil
}

func (m *memGames) Find(_ context.Context, filter GameFilter, page Page, desc bool) ([]*model.Game, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	wanted := func(g *model.Game) bool {
		if len(filter.IDs) > 0 {
			found := false
			for _, id := range filter.IDs {
				if id == g.ID {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
		if len(filter.States) > 0 {
			found := false
			for _, s := range filter.States {
				if s == g.State {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
		return true
	}

	type hit struct {
		seq  int64
		game model.Game
	}
	var hits []hit
	for _, rec := range m.games {
		g := rec.val
		if !wanted(&g) {
			continue
		}
		if filter.IsRandom != nil {
			cfg, ok := m.configs[g.ConfigID]
			if !ok || cfg.val.IsRandom != *filter.IsRandom {
				continue
			}
		}
		hits = append(hits, hit{seq: rec.seq, game: g})
	}
	sort.Slice(hits, func(i, j int) bool {
		if desc {
			return hits[i].seq > hits[j].seq
		}
		return hits[i].seq < hits[j].seq
	})

	out := make([]*model.Game, 0, page.Limit)
	for i := page.Skip; i < len(hits) && len(out) < page.Limit; i++ {
		g := hits[i].game
		out = append(out, &g)
	}
	return out, nil
}

// --- configs ---

type memConfigs Memstore

func (m *memConfigs) Create(_ context.Context, config *model.Config) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if config.ID == uuid.Nil {
		config.ID = uuid.New()
	}
	now := time.Now()
	if config.CreatedAt.IsZero() {
		config.CreatedAt = now
	}
	config.UpdatedAt = now
	config.Version = 1
	m.configs[config.ID] = &memRecord[model.Config]{seq: (*Memstore)(m).nextSeq(), val: *config}
	return nil
}

func (m *memConfigs) Get(_ context.Context, id uuid.UUID) (*model.Config, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.configs[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := rec.val
	cp.Slots = append([]model.Slot(nil), rec.val.Slots...)
	return &cp, nil
}

func (m *memConfigs) Save(_ context.Context, config *model.Config) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.configs[config.ID]
	if !ok {
		return ErrNotFound
	}
	if rec.val.Version != config.Version {
		return ErrVersionConflict
	}
	config.Version++
	config.UpdatedAt = time.Now()
	cp := *config
	cp.Slots = append([]model.Slot(nil), config.Slots...)
	rec.val = cp
	return nil
}

func (m *memConfigs) Destroy(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.configs[id]; !ok {
		return ErrNotFound
	}
	delete(m.configs, id)
	return nil
}

// --- players ---

type memPlayers Memstore

func (m *memPlayers) Create(_ context.Context, player *model.Player) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if player.ID == uuid.Nil {
		player.ID = uuid.New()
	}
	now := time.Now()
	if player.CreatedAt.IsZero() {
		player.CreatedAt = now
	}
	player.UpdatedAt = now
	player.Version = 1
	m.players[player.ID] = &memRecord[model.Player]{seq: (*Memstore)(m).nextSeq(), val: *player}
	return nil
}

func (m *memPlayers) Get(_ context.Context, id uuid.UUID) (*model.Player, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.players[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := rec.val
	return &cp, nil
}

func (m *memPlayers) Save(_ context.Context, player *model.Player) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.players[player.ID]
	if !ok {
		return ErrNotFound
	}
	if rec.val.Version != player.Version {
		return ErrVersionConflict
	}
	player.Version++
	player.UpdatedAt = time.Now()
	rec.val = *player
	return nil
}

func (m *memPlayers) Destroy(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.players[id]; !ok {
		return ErrNotFound
	}
	delete(m.players, id)
	return nil
}

func (m *memPlayers) ByGame(_ context.Context, gameID uuid.UUID) ([]*model.Player, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	type hit struct {
		seq    int64
		player model.Player
	}
	var hits []hit
	for _, rec := range m.players {
		if rec.val.GameID == gameID {
			hits = append(hits, hit{seq: rec.seq, player: rec.val})
		}
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].seq < hits[j].seq })
	out := make([]*model.Player, len(hits))
	for i := range hits {
		p := hits[i].player
		out[i] = &p
	}
	return out, nil
}

func (m *memPlayers) ActiveByGameAndUser(_ context.Context, gameID, userID uuid.UUID) (*model.Player, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, rec := range m.players {
		p := rec.val
		if p.GameID == gameID && p.UserID == userID && p.State == model.PlayerActive {
			cp := p
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memPlayers) GameIDsByUser(_ context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	type hit struct {
		seq    int64
		gameID uuid.UUID
	}
	var hits []hit
	for _, rec := range m.players {
		p := rec.val
		if p.UserID == userID && p.State == model.PlayerActive {
			hits = append(hits, hit{seq: rec.seq, gameID: p.GameID})
		}
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].seq > hits[j].seq })
	ids := make([]uuid.UUID, len(hits))
	for i := range hits {
		ids[i] = hits[i].gameID
	}
	return ids, nil
}

func (m *memPlayers) DestroyByGame(_ context.Context, gameID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, rec := range m.players {
		if rec.val.GameID == gameID {
			delete(m.players, id)
		}
	}
	return nil
}

// --- turns ---

type memTurns Memstore

func (m *memTurns) Create(_ context.Context, turn *model.Turn) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if turn.ID == uuid.Nil {
		turn.ID = uuid.New()
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now()
	}
	m.turns[turn.ID] = &memRecord[model.Turn]{seq: (*Memstore)(m).nextSeq(), val: *turn}
	return nil
}

func (m *memTurns) Get(_ context.Context, id uuid.UUID) (*model.Turn, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.turns[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := rec.val
	return &cp, nil
}

func (m *memTurns) byGameSorted(gameID uuid.UUID, desc bool) []*model.Turn {
	type hit struct {
		seq  int64
		turn model.Turn
	}
	var hits []hit
	for _, rec := range m.turns {
		if rec.val.GameID == gameID {
			hits = append(hits, hit{seq: rec.seq, turn: rec.val})
		}
	}
	sort.Slice(hits, func(i, j int) bool {
		if desc {
			return hits[i].seq > hits[j].seq
		}
		return hits[i].seq < hits[j].seq
	})
	out := make([]*model.Turn, len(hits))
	for i := range hits {
		t := hits[i].turn
		out[i] = &t
	}
	return out
}

func (m *memTurns) ByGame(_ context.Context, gameID uuid.UUID, page Page, desc bool) ([]*model.Turn, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	all := m.byGameSorted(gameID, desc)
	out := make([]*model.Turn, 0, page.Limit)
	for i := page.Skip; i < len(all) && len(out) < page.Limit; i++ {
		out = append(out, all[i])
	}
	return out, nil
}

func (m *memTurns) LatestByGame(_ context.Context, gameID uuid.UUID) (*model.Turn, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	all := m.byGameSorted(gameID, true)
	if len(all) == 0 {
		return nil, ErrNotFound
	}
	return all[0], nil
}

func (m *memTurns) DestroyByGame(_ context.Context, gameID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, rec := range m.turns {
		if rec.val.GameID == gameID {
			delete(m.turns, id)
		}
	}
	return nil
}

// --- invites ---

type memInvites Memstore

func (m *memInvites) Create(_ context.Context, invite *model.Invite) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if invite.ID == uuid.Nil {
		invite.ID = uuid.New()
	}
	if invite.CreatedAt.IsZero() {
		invite.CreatedAt = time.Now()
	}
	m.invites[invite.ID] = &memRecord[model.Invite]{seq: (*Memstore)(m).nextSeq(), val: *invite}
	return nil
}

func (m *memInvites) Get(_ context.Context, id uuid.UUID) (*model.Invite, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.invites[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := rec.val
	return &cp, nil
}

func (m *memInvites) ByPlayer(_ context.Context, playerID uuid.UUID) (*model.Invite, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, rec := range m.invites {
		if rec.val.PlayerID == playerID {
			cp := rec.val
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memInvites) DestroyByGame(_ context.Context, gameID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, rec := range m.invites {
		if rec.val.GameID == gameID {
			delete(m.invites, id)
		}
	}
	return nil
}

// --- contacts ---

type memContacts Memstore

func (m *memContacts) Put(_ context.Context, ownerID, contactID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.contacts {
		if rec.val.OwnerID == ownerID && rec.val.ContactID == contactID {
			return nil
		}
	}
	c := model.Contact{
		ID:        uuid.New(),
		OwnerID:   ownerID,
		ContactID: contactID,
		CreatedAt: time.Now(),
	}
	m.contacts[c.ID] = &memRecord[model.Contact]{seq: (*Memstore)(m).nextSeq(), val: c}
	return nil
}

func (m *memContacts) Delete(_ context.Context, ownerID, contactID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, rec := range m.contacts {
		if rec.val.OwnerID == ownerID && rec.val.ContactID == contactID {
			delete(m.contacts, id)
			return true, nil
		}
	}
	return false, nil
}

func (m *memContacts) ByOwner(_ context.Context, ownerID uuid.UUID, page Page) ([]*model.Contact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	type hit struct {
		seq     int64
		contact model.Contact
	}
	var hits []hit
	for _, rec := range m.contacts {
		if rec.val.OwnerID == ownerID {
			hits = append(hits, hit{seq: rec.seq, contact: rec.val})
		}
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].seq > hits[j].seq })
	out := make([]*model.Contact, 0, page.Limit)
	for i := page.Skip; i < len(hits) && len(out) < page.Limit; i++ {
		c := hits[i].contact
		out = append(out, &c)
	}
	return out, nil
}

func (m *memContacts) PurgeAll(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.contacts)
	m.contacts = make(map[uuid.UUID]*memRecord[model.Contact])
	return n, nil
}

// --- users ---

type memUsers Memstore

func (m *memUsers) Create(_ context.Context, user *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}
	m.users[user.ID] = &memRecord[model.User]{seq: (*Memstore)(m).nextSeq(), val: *user}
	return nil
}

func (m *memUsers) Get(_ context.Context, id uuid.UUID) (*model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := rec.val
	return &cp, nil
}

func (m *memUsers) CountByDisplayName(_ context.Context, name string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, rec := range m.users {
		if rec.val.DisplayName == name {
			count++
		}
	}
	return count, nil
}

func (m *memUsers) ByDisplayName(_ context.Context, name string) ([]*model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.User
	for _, rec := range m.users {
		if rec.val.DisplayName == name {
			cp := rec.val
			out = append(out, &cp)
		}
	}
	return out, nil
}

// --- sessions ---

type memSessions Memstore

func (m *memSessions) Put(_ context.Context, token string, userID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[token] = userID
	return nil
}

func (m *memSessions) UserID(_ context.Context, token string) (uuid.UUID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.sessions[token]
	if !ok {
		return uuid.Nil, ErrNotFound
	}
	return id, nil
}

func (m *memSessions) Delete(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, token)
	return nil
}
