package pgstore

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"paperback-server/internal/engine"
	"paperback-server/internal/jobs"
	"paperback-server/internal/message"
	"paperback-server/internal/model"
	"paperback-server/internal/notify"
	"paperback-server/internal/store"
)

// setupStore starts a throwaway postgres container and returns a migrated
// store. Skips when docker is not available.
func setupStore(t *testing.T) *store.Store {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	ctx := context.Background()
	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("paperback_test"),
		tcpostgres.WithUsername("paperback"),
		tcpostgres.WithPassword("paperback"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute)),
	)
	if err != nil {
		t.Skipf("could not start postgres container: %v", err)
	}
	t.Cleanup(func() {
		_ = testcontainers.TerminateContainer(container)
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	log := logrus.New()
	log.SetOutput(io.Discard)

	p, s, err := New(ctx, dsn, log)
	require.NoError(t, err)
	t.Cleanup(p.Close)
	return s
}

func TestGameRoundTrip(t *testing.T) {
	assert := assert.New(t)
	s := setupStore(t)
	ctx := context.Background()

	config := &model.Config{
		Slots: []model.Slot{
			{Type: model.SlotCreator, UserID: uuid.New()},
			{Type: model.SlotOpen},
		},
		SlotNum:    2,
		PlayerNum:  2,
		IsRandom:   true,
		TurnMaxSec: 10,
	}
	require.NoError(t, s.Configs.Create(ctx, config))

	game := &model.Game{
		CreatorID: config.Slots[0].UserID,
		ConfigID:  config.ID,
		State:     model.GameInit,
	}
	require.NoError(t, s.Games.Create(ctx, game))
	assert.NotEqual(uuid.Nil, game.ID)
	assert.False(game.CreatedAt.IsZero())

	got, err := s.Games.Get(ctx, game.ID)
	require.NoError(t, err)
	assert.Equal(game.ID, got.ID)
	assert.Equal(model.GameInit, got.State)
	assert.EqualValues(1, got.Version)

	got.State = model.GameLobby
	require.NoError(t, s.Games.Save(ctx, got))
	assert.EqualValues(2, got.Version)

	reread, err := s.Games.Get(ctx, game.ID)
	require.NoError(t, err)
	assert.Equal(model.GameLobby, reread.State)

	_, err = s.Games.Get(ctx, uuid.New())
	assert.ErrorIs(err, store.ErrNotFound)
}

func TestGameSaveVersionConflict(t *testing.T) {
	assert := assert.New(t)
	s := setupStore(t)
	ctx := context.Background()

	config := &model.Config{Slots: []model.Slot{{Type: model.SlotCreator}}, SlotNum: 1}
	require.NoError(t, s.Configs.Create(ctx, config))
	game := &model.Game{ConfigID: config.ID}
	require.NoError(t, s.Games.Create(ctx, game))

	first, err := s.Games.Get(ctx, game.ID)
	require.NoError(t, err)
	second, err := s.Games.Get(ctx, game.ID)
	require.NoError(t, err)

	require.NoError(t, s.Games.Save(ctx, first))
	assert.ErrorIs(s.Games.Save(ctx, second), store.ErrVersionConflict)

	// A vanished record is reported as such, not as a conflict.
	ghost := &model.Game{ID: uuid.New(), ConfigID: config.ID, Version: 1}
	assert.ErrorIs(s.Games.Save(ctx, ghost), store.ErrNotFound)
}

func TestFindGamesFiltersAndOrders(t *testing.T) {
	assert := assert.New(t)
	s := setupStore(t)
	ctx := context.Background()

	mkGame := func(state model.GameState, isRandom bool) uuid.UUID {
		config := &model.Config{Slots: []model.Slot{{Type: model.SlotCreator}}, IsRandom: isRandom}
		require.NoError(t, s.Configs.Create(ctx, config))
		game := &model.Game{ConfigID: config.ID, State: state}
		require.NoError(t, s.Games.Create(ctx, game))
		return game.ID
	}

	openA := mkGame(model.GameLobby, true)
	mkGame(model.GameLobby, false) // invite-only, filtered out
	mkGame(model.GameRunning, true)
	openB := mkGame(model.GameLobby, true)

	isRandom := true
	games, err := s.Games.Find(ctx, store.GameFilter{
		States:   []model.GameState{model.GameLobby},
		IsRandom: &isRandom,
	}, store.Page{Limit: 10}, false)
	require.NoError(t, err)
	require.Len(t, games, 2)
	assert.Equal(openA, games[0].ID)
	assert.Equal(openB, games[1].ID)

	// Newest first when descending.
	games, err = s.Games.Find(ctx, store.GameFilter{
		States:   []model.GameState{model.GameLobby},
		IsRandom: &isRandom,
	}, store.Page{Limit: 10}, true)
	require.NoError(t, err)
	assert.Equal(openB, games[0].ID)

	// ID narrowing.
	games, err = s.Games.Find(ctx, store.GameFilter{IDs: []uuid.UUID{openA}}, store.Page{Limit: 10}, false)
	require.NoError(t, err)
	require.Len(t, games, 1)
	assert.Equal(openA, games[0].ID)
}

func TestActivePlayerUniqueness(t *testing.T) {
	assert := assert.New(t)
	s := setupStore(t)
	ctx := context.Background()

	config := &model.Config{Slots: []model.Slot{{Type: model.SlotCreator}, {Type: model.SlotOpen}}}
	require.NoError(t, s.Configs.Create(ctx, config))
	game := &model.Game{ConfigID: config.ID, State: model.GameLobby}
	require.NoError(t, s.Games.Create(ctx, game))

	userID := uuid.New()
	p1 := &model.Player{GameID: game.ID, UserID: userID, Slot: 0}
	require.NoError(t, s.Players.Create(ctx, p1))

	// A second active player for the same (game, user) violates the
	// partial unique index.
	p2 := &model.Player{GameID: game.ID, UserID: userID, Slot: 1}
	assert.Error(s.Players.Create(ctx, p2))

	// An inactive duplicate is fine; leave-and-rejoin depends on it.
	p1.State = model.PlayerInactive
	require.NoError(t, s.Players.Save(ctx, p1))
	p3 := &model.Player{GameID: game.ID, UserID: userID, Slot: 1}
	require.NoError(t, s.Players.Create(ctx, p3))

	active, err := s.Players.ActiveByGameAndUser(ctx, game.ID, userID)
	require.NoError(t, err)
	assert.Equal(p3.ID, active.ID)

	ids, err := s.Players.GameIDsByUser(ctx, userID)
	require.NoError(t, err)
	assert.Equal([]uuid.UUID{game.ID}, ids)
}

func TestTurnOrderingAndLatest(t *testing.T) {
	assert := assert.New(t)
	s := setupStore(t)
	ctx := context.Background()

	config := &model.Config{Slots: []model.Slot{{Type: model.SlotCreator}}}
	require.NoError(t, s.Configs.Create(ctx, config))
	game := &model.Game{ConfigID: config.ID}
	require.NoError(t, s.Games.Create(ctx, game))

	_, err := s.Turns.LatestByGame(ctx, game.ID)
	assert.ErrorIs(err, store.ErrNotFound)

	save := "state"
	var last uuid.UUID
	for i := 0; i < 3; i++ {
		turn := &model.Turn{GameID: game.ID, Turn: i, PlayerID: uuid.New(), Save: &save}
		require.NoError(t, s.Turns.Create(ctx, turn))
		last = turn.ID
	}

	latest, err := s.Turns.LatestByGame(ctx, game.ID)
	require.NoError(t, err)
	assert.Equal(last, latest.ID)

	turns, err := s.Turns.ByGame(ctx, game.ID, store.Page{Limit: 2}, true)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(2, turns[0].Turn)
	assert.Equal(1, turns[1].Turn)

	turns, err = s.Turns.ByGame(ctx, game.ID, store.Page{Limit: 2, Skip: 2}, true)
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(0, turns[0].Turn)
}

func TestCascadeDestroy(t *testing.T) {
	assert := assert.New(t)
	s := setupStore(t)
	ctx := context.Background()

	config := &model.Config{Slots: []model.Slot{{Type: model.SlotCreator}}}
	require.NoError(t, s.Configs.Create(ctx, config))
	game := &model.Game{ConfigID: config.ID}
	require.NoError(t, s.Games.Create(ctx, game))
	player := &model.Player{GameID: game.ID, UserID: uuid.New()}
	require.NoError(t, s.Players.Create(ctx, player))
	invite := &model.Invite{GameID: game.ID, PlayerID: player.ID}
	require.NoError(t, s.Invites.Create(ctx, invite))
	require.NoError(t, s.Turns.Create(ctx, &model.Turn{GameID: game.ID, PlayerID: player.ID}))

	require.NoError(t, s.Invites.DestroyByGame(ctx, game.ID))
	require.NoError(t, s.Turns.DestroyByGame(ctx, game.ID))
	require.NoError(t, s.Players.DestroyByGame(ctx, game.ID))
	require.NoError(t, s.Games.Destroy(ctx, game.ID))
	require.NoError(t, s.Configs.Destroy(ctx, config.ID))

	_, err := s.Games.Get(ctx, game.ID)
	assert.ErrorIs(err, store.ErrNotFound)
	_, err = s.Players.Get(ctx, player.ID)
	assert.ErrorIs(err, store.ErrNotFound)
	assert.ErrorIs(s.Games.Destroy(ctx, game.ID), store.ErrNotFound)
}

// TestEngineDestroyGame runs the engine's destroy fan-out against the real
// schema, where deleting a config cascades onto its game row. The fan-out
// must still find every record it destroys.
func TestEngineDestroyGame(t *testing.T) {
	assert := assert.New(t)
	s := setupStore(t)
	ctx := context.Background()

	log := logrus.New()
	log.SetOutput(io.Discard)
	eng := engine.New(s, jobs.NewMemScheduler(), &notify.LogNotifier{Log: log}, log, "")

	config := &model.Config{
		Slots:    []model.Slot{{Type: model.SlotCreator}, {Type: model.SlotOpen}},
		SlotNum:  2,
		IsRandom: true,
	}
	require.NoError(t, s.Configs.Create(ctx, config))
	game := &model.Game{ConfigID: config.ID, State: model.GameRunning}
	require.NoError(t, s.Games.Create(ctx, game))
	player := &model.Player{GameID: game.ID, UserID: uuid.New()}
	require.NoError(t, s.Players.Create(ctx, player))
	require.NoError(t, s.Invites.Create(ctx, &model.Invite{GameID: game.ID, PlayerID: player.ID}))
	require.NoError(t, s.Turns.Create(ctx, &model.Turn{GameID: game.ID, PlayerID: player.ID}))

	require.NoError(t, eng.DestroyGame(ctx, game.ID))

	_, err := s.Games.Get(ctx, game.ID)
	assert.ErrorIs(err, store.ErrNotFound)
	_, err = s.Configs.Get(ctx, config.ID)
	assert.ErrorIs(err, store.ErrNotFound)
	_, err = s.Players.Get(ctx, player.ID)
	assert.ErrorIs(err, store.ErrNotFound)

	err = eng.DestroyGame(ctx, game.ID)
	var merr *message.Error
	require.ErrorAs(t, err, &merr)
	assert.Equal(message.ErrGameNotFound, merr.Code)
}

func TestContactsEdges(t *testing.T) {
	assert := assert.New(t)
	s := setupStore(t)
	ctx := context.Background()

	a, b := uuid.New(), uuid.New()
	require.NoError(t, s.Contacts.Put(ctx, a, b))
	require.NoError(t, s.Contacts.Put(ctx, a, b)) // idempotent
	require.NoError(t, s.Contacts.Put(ctx, b, a))

	edges, err := s.Contacts.ByOwner(ctx, a, store.Page{Limit: 10})
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(b, edges[0].ContactID)

	existed, err := s.Contacts.Delete(ctx, a, b)
	require.NoError(t, err)
	assert.True(existed)
	existed, err = s.Contacts.Delete(ctx, a, b)
	require.NoError(t, err)
	assert.False(existed)

	purged, err := s.Contacts.PurgeAll(ctx)
	require.NoError(t, err)
	assert.Equal(1, purged)
}

func TestUsersAndSessions(t *testing.T) {
	assert := assert.New(t)
	s := setupStore(t)
	ctx := context.Background()

	alice := &model.User{DisplayName: "alice"}
	require.NoError(t, s.Users.Create(ctx, alice))
	require.NoError(t, s.Users.Create(ctx, &model.User{DisplayName: "alice"}))

	n, err := s.Users.CountByDisplayName(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(2, n)

	same, err := s.Users.ByDisplayName(ctx, "alice")
	require.NoError(t, err)
	assert.Len(same, 2)

	require.NoError(t, s.Sessions.Put(ctx, "tok", alice.ID))
	id, err := s.Sessions.UserID(ctx, "tok")
	require.NoError(t, err)
	assert.Equal(alice.ID, id)

	// Re-putting the token moves it to the new user.
	bob := &model.User{DisplayName: "bob"}
	require.NoError(t, s.Users.Create(ctx, bob))
	require.NoError(t, s.Sessions.Put(ctx, "tok", bob.ID))
	id, err = s.Sessions.UserID(ctx, "tok")
	require.NoError(t, err)
	assert.Equal(bob.ID, id)

	require.NoError(t, s.Sessions.Delete(ctx, "tok"))
	_, err = s.Sessions.UserID(ctx, "tok")
	assert.ErrorIs(err, store.ErrNotFound)
}
