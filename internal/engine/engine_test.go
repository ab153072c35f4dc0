package engine

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paperback-server/internal/jobs"
	"paperback-server/internal/message"
	"paperback-server/internal/model"
	"paperback-server/internal/store"
)

// recorder captures notifications so tests can assert on who heard what.
type recorder struct {
	mu    sync.Mutex
	notes []recordedNote
}

type recordedNote struct {
	users []uuid.UUID
	code  message.Code
	ctx   map[string]string
}

func (r *recorder) Send(userIDs []uuid.UUID, code message.Code, ctx map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, recordedNote{users: userIDs, code: code, ctx: ctx})
}

func (r *recorder) has(code message.Code) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, n := range r.notes {
		if n.code == code {
			return true
		}
	}
	return false
}

func (r *recorder) heardBy(code message.Code, userID uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, n := range r.notes {
		if n.code != code {
			continue
		}
		for _, u := range n.users {
			if u == userID {
				return true
			}
		}
	}
	return false
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = nil
}

type fixture struct {
	t     *testing.T
	e     *Engine
	s     *store.Store
	sched *jobs.MemScheduler
	notes *recorder
	clock time.Time
}

func newFixture(t *testing.T) *fixture {
	_, s := store.NewMemstore()
	f := &fixture{
		t:     t,
		s:     s,
		sched: jobs.NewMemScheduler(),
		notes: &recorder{},
		clock: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	log := logrus.New()
	log.SetOutput(io.Discard)
	f.e = New(s, f.sched, f.notes, log, "https://paperback.test")
	f.e.now = func() time.Time { return f.clock }
	f.e.RegisterJobs(f.sched)
	return f
}

func (f *fixture) advanceClock(d time.Duration) {
	f.clock = f.clock.Add(d)
}

func (f *fixture) user(name string) *model.User {
	u := &model.User{ID: uuid.New(), DisplayName: name, CreatedAt: f.clock}
	require.NoError(f.t, f.s.Users.Create(context.Background(), u))
	return u
}

// game creates a game with the given slots (default config when none).
func (f *fixture) game(creator *model.User, slots ...SlotRequest) *CreateGameResult {
	res, err := f.e.CreateGame(context.Background(), creator, &ConfigRequest{Slots: slots})
	require.NoError(f.t, err)
	return res
}

func (f *fixture) getGame(id uuid.UUID) *model.Game {
	g, err := f.s.Games.Get(context.Background(), id)
	require.NoError(f.t, err)
	return g
}

func (f *fixture) join(user *model.User, gameID uuid.UUID) *JoinGameResult {
	res, err := f.e.JoinGame(context.Background(), user, gameID)
	require.NoError(f.t, err)
	return res
}

func (f *fixture) fireLobbyTimeout(gameID uuid.UUID) error {
	g := f.getGame(gameID)
	require.NotEmpty(f.t, g.LobbyTimeoutJob, "no lobby timeout armed")
	return f.sched.Fire(context.Background(), jobs.Handle(g.LobbyTimeoutJob))
}

func (f *fixture) fireTurnTimeout(gameID uuid.UUID) error {
	g := f.getGame(gameID)
	require.NotEmpty(f.t, g.TurnTimeoutJob, "no turn timeout armed")
	return f.sched.Fire(context.Background(), jobs.Handle(g.TurnTimeoutJob))
}

// twoSeats is the smallest joinable setup: the creator plus one open slot.
func twoSeats() []SlotRequest {
	return []SlotRequest{{Type: "creator"}, {Type: "open"}}
}

func threeSeats() []SlotRequest {
	return []SlotRequest{{Type: "creator"}, {Type: "open"}, {Type: "open"}}
}

func assertCode(t *testing.T, err error, code message.Code) {
	t.Helper()
	require.Error(t, err)
	var merr *message.Error
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, code, merr.Code, "got %q", merr.Message())
}

func TestCreateGameDefaults(t *testing.T) {
	assert := assert.New(t)
	f := newFixture(t)
	alice := f.user("alice")

	res := f.game(alice)
	assert.Equal(message.GameCreated, res.Code)

	cfg := res.Game.Config
	assert.Equal(4, cfg.SlotNum)
	assert.Equal(4, cfg.PlayerNum)
	assert.True(cfg.IsRandom)
	assert.Equal(model.DefaultTurnMaxSec, cfg.TurnMaxSec)
	assert.Equal(model.SlotCreator, cfg.Slots[0].Type)
	assert.Equal(alice.ID, cfg.Slots[0].UserID)

	game := f.getGame(res.Game.ObjectID)
	assert.Equal(model.GameLobby, game.State)
	assert.Equal(uuid.Nil, game.CurrentPlayerID)

	// The creator sits in their reserved slot already.
	players, err := f.s.Players.ByGame(context.Background(), game.ID)
	require.NoError(t, err)
	require.Len(t, players, 1)
	assert.Equal(alice.ID, players[0].UserID)
	assert.Equal(0, players[0].Slot)

	// Lobby deadline armed with the auto-start delay.
	job := f.sched.Job(jobs.Handle(game.LobbyTimeoutJob))
	require.NotNil(t, job)
	assert.Equal(jobs.JobLobbyTimeout, job.Name)
	assert.Equal(model.StartGameAutoTimeout, job.Delay)

	// The initial join is silent.
	assert.Empty(f.notes.notes)
}

func TestCreateGameWithInvites(t *testing.T) {
	assert := assert.New(t)
	f := newFixture(t)
	alice := f.user("alice")
	f.user("bob")

	res := f.game(alice,
		SlotRequest{Type: "creator"},
		SlotRequest{Type: "invite", DisplayName: "bob"},
		SlotRequest{Type: "ai", Difficulty: int(model.AIMedium)},
		SlotRequest{Type: "none"},
	)
	cfg := res.Game.Config
	assert.Equal(4, cfg.SlotNum)
	assert.Equal(3, cfg.PlayerNum)
	assert.False(cfg.IsRandom)
	assert.Equal(model.SlotInvite, cfg.Slots[1].Type)
	assert.NotEqual(uuid.Nil, cfg.Slots[1].UserID)
	assert.Equal(model.AIMedium, cfg.Slots[2].Difficulty)
}

func TestCreateGameRejectsBadConfigs(t *testing.T) {
	f := newFixture(t)
	alice := f.user("alice")
	f.user("bob")

	cases := map[string][]SlotRequest{
		"no creator":          {{Type: "open"}},
		"two creators":        {{Type: "creator"}, {Type: "creator"}},
		"unknown type":        {{Type: "creator"}, {Type: "spectator"}},
		"bad ai difficulty":   {{Type: "creator"}, {Type: "ai", Difficulty: 9}},
		"nameless invite":     {{Type: "creator"}, {Type: "invite"}},
		"unresolvable invite": {{Type: "creator"}, {Type: "invite", DisplayName: "nobody"}},
		"duplicate invite": {
			{Type: "creator"},
			{Type: "invite", DisplayName: "bob"},
			{Type: "invite", DisplayName: "bob"},
		},
	}
	for name, slots := range cases {
		_, err := f.e.CreateGame(context.Background(), alice, &ConfigRequest{Slots: slots})
		assertCode(t, err, message.ErrGameInvalidConfig)
		if t.Failed() {
			t.Fatalf("case %q", name)
		}
	}

	_, err := f.e.CreateGame(context.Background(), alice, &ConfigRequest{
		Slots:     twoSeats(),
		FameCards: map[string]int{"No Such Card": 1},
	})
	assertCode(t, err, message.ErrGameInvalidConfig)

	_, err = f.e.CreateGame(context.Background(), alice, &ConfigRequest{
		Slots:      twoSeats(),
		TurnMaxSec: -5,
	})
	assertCode(t, err, message.ErrGameInvalidConfig)
}

// refusingGames rejects every game insert and records destroy calls, so a
// test can see exactly what the createGame rollback touches.
type refusingGames struct {
	store.Games
	destroyed []uuid.UUID
}

func (g *refusingGames) Create(ctx context.Context, game *model.Game) error {
	return errors.New("insert refused")
}

func (g *refusingGames) Destroy(ctx context.Context, id uuid.UUID) error {
	g.destroyed = append(g.destroyed, id)
	return g.Games.Destroy(ctx, id)
}

// trackingConfigs remembers the ids of created configs.
type trackingConfigs struct {
	store.Configs
	created []uuid.UUID
}

func (c *trackingConfigs) Create(ctx context.Context, config *model.Config) error {
	if err := c.Configs.Create(ctx, config); err != nil {
		return err
	}
	c.created = append(c.created, config.ID)
	return nil
}

func TestCreateGameRollsBackOnlyConfigWhenGameInsertFails(t *testing.T) {
	assert := assert.New(t)
	f := newFixture(t)
	alice := f.user("alice")

	games := &refusingGames{Games: f.s.Games}
	configs := &trackingConfigs{Configs: f.s.Configs}
	f.s.Games = games
	f.s.Configs = configs

	_, err := f.e.CreateGame(context.Background(), alice, &ConfigRequest{Slots: twoSeats()})
	assertCode(t, err, message.ErrUnknown)

	// The game row never existed, so the rollback must not try to destroy it.
	assert.Empty(games.destroyed)

	// The config row did exist and is rolled back.
	require.Len(t, configs.created, 1)
	_, err = f.s.Configs.Get(context.Background(), configs.created[0])
	assert.ErrorIs(err, store.ErrNotFound)
}

func TestJoinAutoStartsFullGame(t *testing.T) {
	assert := assert.New(t)
	f := newFixture(t)
	alice := f.user("alice")
	bob := f.user("bob")

	created := f.game(alice, twoSeats()...)
	gameID := created.Game.ObjectID
	lobbyJob := f.getGame(gameID).LobbyTimeoutJob

	res := f.join(bob, gameID)
	assert.Equal(message.GameJoined, res.Code)
	assert.Equal(1, res.Player.Slot)

	game := f.getGame(gameID)
	assert.Equal(model.GameRunning, game.State)

	// Slot 0 (the creator) opens.
	players, err := f.s.Players.ByGame(context.Background(), gameID)
	require.NoError(t, err)
	var slot0 uuid.UUID
	for _, p := range players {
		if p.Slot == 0 {
			slot0 = p.ID
		}
	}
	assert.Equal(slot0, game.CurrentPlayerID)

	// Lobby deadline gone, turn deadline armed for the opener.
	assert.False(f.sched.Pending(jobs.Handle(lobbyJob)))
	job := f.sched.Job(jobs.Handle(game.TurnTimeoutJob))
	require.NotNil(t, job)
	assert.Equal(jobs.JobTurnTimeout, job.Name)
	assert.Equal(time.Duration(created.Game.Config.TurnMaxSec)*time.Second, job.Delay)

	assert.True(f.notes.heardBy(message.GameJoined, alice.ID))
	assert.True(f.notes.has(message.GameStarted))
	assert.True(f.notes.heardBy(message.PlayerTurn, alice.ID))
}

func TestJoinRejections(t *testing.T) {
	f := newFixture(t)
	alice := f.user("alice")
	bob := f.user("bob")
	carol := f.user("carol")

	created := f.game(alice, threeSeats()...)
	gameID := created.Game.ObjectID

	// Already seated.
	_, err := f.e.JoinGame(context.Background(), alice, gameID)
	assertCode(t, err, message.ErrPlayerAlreadyInGame)

	// Unknown game.
	_, err = f.e.JoinGame(context.Background(), bob, uuid.New())
	assertCode(t, err, message.ErrGameNotFound)

	// Running game no longer accepts joins.
	f.join(bob, gameID)
	f.join(carol, gameID)
	dan := f.user("dan")
	_, err = f.e.JoinGame(context.Background(), dan, gameID)
	assertCode(t, err, message.ErrGameInvalidState)
}

func TestJoinWithoutSeatIsFull(t *testing.T) {
	f := newFixture(t)
	alice := f.user("alice")
	f.user("bob")
	carol := f.user("carol")

	// Invite-only game: no open seats for Carol.
	created := f.game(alice,
		SlotRequest{Type: "creator"},
		SlotRequest{Type: "invite", DisplayName: "bob"},
	)
	_, err := f.e.JoinGame(context.Background(), carol, created.Game.ObjectID)
	assertCode(t, err, message.ErrGameFull)
}

func TestInvitedUserTakesReservedSeat(t *testing.T) {
	assert := assert.New(t)
	f := newFixture(t)
	alice := f.user("alice")
	bob := f.user("bob")

	created := f.game(alice,
		SlotRequest{Type: "creator"},
		SlotRequest{Type: "open"},
		SlotRequest{Type: "invite", DisplayName: "bob"},
	)
	res := f.join(bob, created.Game.ObjectID)
	assert.Equal(2, res.Player.Slot)
}

// racingPlayers simulates a concurrent join: right after the first player
// row is created, a rival row lands in the same game.
type racingPlayers struct {
	store.Players
	once        sync.Once
	rival       func()
	failDestroy bool
}

func (p *racingPlayers) Create(ctx context.Context, pl *model.Player) error {
	if err := p.Players.Create(ctx, pl); err != nil {
		return err
	}
	p.once.Do(p.rival)
	return nil
}

func (p *racingPlayers) Destroy(ctx context.Context, id uuid.UUID) error {
	if p.failDestroy {
		return context.DeadlineExceeded
	}
	return p.Players.Destroy(ctx, id)
}

func TestJoinCapacityRaceEvictsLoser(t *testing.T) {
	assert := assert.New(t)
	f := newFixture(t)
	alice := f.user("alice")
	bob := f.user("bob")
	carol := f.user("carol")

	created := f.game(alice, twoSeats()...)
	gameID := created.Game.ObjectID

	raw := f.s.Players
	f.s.Players = &racingPlayers{
		Players: raw,
		rival: func() {
			rival := &model.Player{
				ID:     uuid.New(),
				GameID: gameID,
				UserID: carol.ID,
				State:  model.PlayerActive,
				Slot:   1,
			}
			require.NoError(t, raw.Create(context.Background(), rival))
		},
	}

	_, err := f.e.JoinGame(context.Background(), bob, gameID)
	assertCode(t, err, message.ErrGameFull)

	// The loser's row is gone; the rival keeps the seat.
	players, perr := raw.ByGame(context.Background(), gameID)
	require.NoError(t, perr)
	users := map[uuid.UUID]bool{}
	for _, p := range players {
		users[p.UserID] = true
	}
	assert.True(users[carol.ID])
	assert.False(users[bob.ID])
}

func TestJoinCapacityRaceEvictionFailure(t *testing.T) {
	f := newFixture(t)
	alice := f.user("alice")
	bob := f.user("bob")
	carol := f.user("carol")

	created := f.game(alice, twoSeats()...)
	gameID := created.Game.ObjectID

	raw := f.s.Players
	f.s.Players = &racingPlayers{
		Players:     raw,
		failDestroy: true,
		rival: func() {
			rival := &model.Player{
				ID:     uuid.New(),
				GameID: gameID,
				UserID: carol.ID,
				State:  model.PlayerActive,
				Slot:   1,
			}
			require.NoError(t, raw.Create(context.Background(), rival))
		},
	}

	_, err := f.e.JoinGame(context.Background(), bob, gameID)
	assertCode(t, err, message.ErrGameFullPlayerError)
}

func TestManualStart(t *testing.T) {
	assert := assert.New(t)
	f := newFixture(t)
	alice := f.user("alice")
	bob := f.user("bob")

	created := f.game(alice, threeSeats()...)
	gameID := created.Game.ObjectID
	f.join(bob, gameID)

	// Not the creator, even within the cooldown.
	_, err := f.e.StartGame(context.Background(), bob, gameID)
	assertCode(t, err, message.ErrGameThirdParty)

	// Creator, but too soon.
	_, err = f.e.StartGame(context.Background(), alice, gameID)
	assertCode(t, err, message.ErrGameNotStartable)

	f.advanceClock(model.StartGameManualCooldown + time.Second)
	res, err := f.e.StartGame(context.Background(), alice, gameID)
	require.NoError(t, err)
	assert.Equal(message.GameStarted, res.Code)
	assert.Equal(0, res.Player.Slot)
	assert.Equal(model.GameRunning, f.getGame(gameID).State)
}

func TestManualStartNeedsTwoPlayers(t *testing.T) {
	f := newFixture(t)
	alice := f.user("alice")

	created := f.game(alice, threeSeats()...)
	f.advanceClock(model.StartGameManualCooldown + time.Second)

	_, err := f.e.StartGame(context.Background(), alice, created.Game.ObjectID)
	assertCode(t, err, message.ErrGameInsufficientPlayers)
}

func TestLeaveCreatorAbortsLobby(t *testing.T) {
	assert := assert.New(t)
	f := newFixture(t)
	alice := f.user("alice")
	bob := f.user("bob")

	created := f.game(alice, threeSeats()...)
	gameID := created.Game.ObjectID
	f.join(bob, gameID)
	lobbyJob := f.getGame(gameID).LobbyTimeoutJob

	res, err := f.e.LeaveGame(context.Background(), alice, gameID)
	require.NoError(t, err)
	assert.Equal(message.GameLeft, res.Code)

	game := f.getGame(gameID)
	assert.Equal(model.GameEnded, game.State)
	assert.False(f.sched.Pending(jobs.Handle(lobbyJob)))
	assert.True(f.notes.has(message.GameEnded))
}

func TestLeaveLobbyNonCreatorFreesSeat(t *testing.T) {
	assert := assert.New(t)
	f := newFixture(t)
	alice := f.user("alice")
	bob := f.user("bob")
	carol := f.user("carol")

	created := f.game(alice, threeSeats()...)
	gameID := created.Game.ObjectID
	f.join(bob, gameID)

	_, err := f.e.LeaveGame(context.Background(), bob, gameID)
	require.NoError(t, err)
	assert.Equal(model.GameLobby, f.getGame(gameID).State)

	// The seat is claimable again; rejoining later makes a fresh player row.
	res := f.join(carol, gameID)
	assert.Equal(1, res.Player.Slot)
	rejoined := f.join(bob, gameID)
	assert.Equal(2, rejoined.Player.Slot)
}

func TestLeaveCurrentPlayerHandsOff(t *testing.T) {
	assert := assert.New(t)
	f := newFixture(t)
	alice := f.user("alice")
	bob := f.user("bob")
	carol := f.user("carol")

	created := f.game(alice, threeSeats()...)
	gameID := created.Game.ObjectID
	f.join(bob, gameID)
	joinRes := f.join(carol, gameID) // auto-start, Alice's turn
	_ = joinRes

	before := f.getGame(gameID)
	require.Equal(t, model.GameRunning, before.State)

	_, err := f.e.LeaveGame(context.Background(), alice, gameID)
	require.NoError(t, err)

	game := f.getGame(gameID)
	assert.Equal(model.GameRunning, game.State)
	assert.Equal(before.Turn+1, game.Turn)

	// Next in slot order is Bob (slot 1).
	current, err := f.s.Players.Get(context.Background(), game.CurrentPlayerID)
	require.NoError(t, err)
	assert.Equal(bob.ID, current.UserID)

	// A handoff is not a turn: no Turn record was written.
	turns, err := f.s.Turns.ByGame(context.Background(), gameID, store.Page{Limit: 10}, true)
	require.NoError(t, err)
	assert.Empty(turns)
}

func TestLastLeaverEndsGame(t *testing.T) {
	assert := assert.New(t)
	f := newFixture(t)
	alice := f.user("alice")
	bob := f.user("bob")

	created := f.game(alice, twoSeats()...)
	gameID := created.Game.ObjectID
	f.join(bob, gameID)

	_, err := f.e.LeaveGame(context.Background(), alice, gameID)
	require.NoError(t, err)
	require.Equal(t, model.GameRunning, f.getGame(gameID).State)

	_, err = f.e.LeaveGame(context.Background(), bob, gameID)
	require.NoError(t, err)

	game := f.getGame(gameID)
	assert.Equal(model.GameEnded, game.State)
	assert.Equal(uuid.Nil, game.CurrentPlayerID)
	assert.Empty(game.TurnTimeoutJob)
}

func TestLeaveRejections(t *testing.T) {
	f := newFixture(t)
	alice := f.user("alice")
	bob := f.user("bob")

	created := f.game(alice, threeSeats()...)
	gameID := created.Game.ObjectID

	_, err := f.e.LeaveGame(context.Background(), bob, gameID)
	assertCode(t, err, message.ErrPlayerNotInGame)

	_, err = f.e.LeaveGame(context.Background(), alice, gameID)
	require.NoError(t, err)
	_, err = f.e.LeaveGame(context.Background(), alice, gameID)
	assertCode(t, err, message.ErrGameInvalidState)
}

func TestDeclineInvite(t *testing.T) {
	assert := assert.New(t)
	f := newFixture(t)
	alice := f.user("alice")
	bob := f.user("bob")
	carol := f.user("carol")

	created := f.game(alice,
		SlotRequest{Type: "creator"},
		SlotRequest{Type: "invite", DisplayName: "bob"},
	)
	gameID := created.Game.ObjectID

	// Carol has no invite to decline.
	_, err := f.e.DeclineInvite(context.Background(), carol, gameID)
	assertCode(t, err, message.ErrGameInviteError)

	res, err := f.e.DeclineInvite(context.Background(), bob, gameID)
	require.NoError(t, err)
	assert.Equal(model.SlotOpen, res.Game.Config.Slots[1].Type)
	assert.Equal(uuid.Nil, res.Game.Config.Slots[1].UserID)
	assert.True(res.Game.Config.IsRandom)

	// The freed seat is open to anyone now.
	join := f.join(carol, gameID)
	assert.Equal(1, join.Player.Slot)
}
