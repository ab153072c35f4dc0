package engine

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"paperback-server/internal/jobs"
	"paperback-server/internal/message"
	"paperback-server/internal/model"
)

// CreateGame validates the config, persists config and game, seats the
// creator, and opens the lobby with its timeout armed. Failures after a
// record was persisted roll the earlier records back.
func (e *Engine) CreateGame(ctx context.Context, creator *model.User, req *ConfigRequest) (*CreateGameResult, error) {
	config, merr := e.buildConfig(ctx, creator, req)
	if merr != nil {
		return nil, merr
	}
	if err := e.store.Configs.Create(ctx, config); err != nil {
		return nil, message.WrapError(message.ErrUnknown, err)
	}

	now := e.now()
	game := &model.Game{
		ID:        uuid.New(),
		State:     model.GameInit,
		CreatorID: creator.ID,
		ConfigID:  config.ID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := e.store.Games.Create(ctx, game); err != nil {
		e.destroyQuietly(ctx, uuid.Nil, config.ID)
		return nil, message.WrapError(message.ErrUnknown, err)
	}

	gv := &gameView{game: game, config: config}
	if merr := e.seatCreator(ctx, gv, creator); merr != nil {
		e.destroyQuietly(ctx, game.ID, config.ID)
		return nil, merr
	}

	e.log.WithFields(logrus.Fields{
		"game":    game.ID,
		"creator": creator.ID,
		"slots":   config.SlotNum,
	}).Info("game created")

	return &CreateGameResult{Code: message.GameCreated, Game: newGameView(game, config)}, nil
}

// seatCreator is the lightweight initial join: it seats the creator on their
// reserved slot, opens the lobby, and arms the lobby timeout. Unlike a
// regular join it never notifies, shares contacts, or auto-starts.
func (e *Engine) seatCreator(ctx context.Context, gv *gameView, creator *model.User) *message.Error {
	slot := resolveSlot(gv, creator.ID)
	if slot < 0 {
		return message.NewError(message.ErrGameStartError)
	}
	player, merr := e.createPlayer(ctx, gv, creator.ID, slot)
	if merr != nil {
		return merr
	}
	gv.players = append(gv.players, player)

	handle, err := e.sched.Schedule(ctx, jobs.JobLobbyTimeout, map[string]string{
		jobs.PayloadGameID: gv.game.ID.String(),
	}, model.StartGameAutoTimeout)
	if err != nil {
		return message.WrapError(message.ErrUnknown, err)
	}

	gv.game.State = model.GameLobby
	gv.game.LobbyTimeoutJob = string(handle)
	return e.saveGame(ctx, gv.game)
}

// JoinGame seats the caller in a lobby, shares contacts with everyone
// already seated, and auto-starts the game once the last seat fills. A
// capacity race is resolved after the fact by evicting the losing player.
func (e *Engine) JoinGame(ctx context.Context, user *model.User, gameID uuid.UUID) (*JoinGameResult, error) {
	gv, merr := e.loadGame(ctx, gameID)
	if merr != nil {
		return nil, merr
	}
	if merr := requireState(gv.game, model.GameLobby); merr != nil {
		return nil, merr
	}
	if _, err := e.store.Players.ActiveByGameAndUser(ctx, gameID, user.ID); err == nil {
		return nil, message.NewError(message.ErrPlayerAlreadyInGame)
	}

	slot := resolveSlot(gv, user.ID)
	if slot < 0 {
		return nil, message.NewError(message.ErrGameFull)
	}
	player, merr := e.createPlayer(ctx, gv, user.ID, slot)
	if merr != nil {
		return nil, merr
	}

	// Re-read and count: two joiners may both have passed the slot check.
	players, err := e.store.Players.ByGame(ctx, gameID)
	if err != nil {
		return nil, message.WrapError(message.ErrUnknown, err)
	}
	gv.players = players
	if len(gv.activePlayers()) > gv.config.PlayerNum {
		if err := e.store.Players.Destroy(ctx, player.ID); err != nil {
			return nil, message.WrapError(message.ErrGameFullPlayerError, err)
		}
		return nil, message.NewError(message.ErrGameFull)
	}

	e.shareContacts(ctx, gv, user.ID)

	for _, p := range gv.players {
		if p.State == model.PlayerActive && p.ID != player.ID {
			e.notify.Send([]uuid.UUID{p.UserID}, message.GameJoined, map[string]string{
				"game": gv.game.ID.String(),
			})
		}
	}

	if len(gv.activePlayers()) == gv.config.PlayerNum {
		if _, merr := e.startGame(ctx, gv); merr != nil {
			return nil, merr
		}
	}

	return &JoinGameResult{
		Code:   message.GameJoined,
		Game:   newGameView(gv.game, gv.config),
		Player: newPlayerView(player),
	}, nil
}

func (e *Engine) createPlayer(ctx context.Context, gv *gameView, userID uuid.UUID, slot int) (*model.Player, *message.Error) {
	now := e.now()
	player := &model.Player{
		ID:        uuid.New(),
		GameID:    gv.game.ID,
		UserID:    userID,
		State:     model.PlayerActive,
		Slot:      slot,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := e.store.Players.Create(ctx, player); err != nil {
		return nil, message.WrapError(message.ErrUnknown, err)
	}
	return player, nil
}

// shareContacts records mutual friend edges between the joiner and every
// other active player. Duplicate edges are no-ops in the store.
func (e *Engine) shareContacts(ctx context.Context, gv *gameView, joiner uuid.UUID) {
	for _, p := range gv.players {
		if p.State != model.PlayerActive || p.UserID == joiner {
			continue
		}
		if err := e.store.Contacts.Put(ctx, joiner, p.UserID); err != nil {
			e.log.WithError(err).Warn("contact insert failed")
		}
		if err := e.store.Contacts.Put(ctx, p.UserID, joiner); err != nil {
			e.log.WithError(err).Warn("contact insert failed")
		}
	}
}

// StartGame is the manual start command. Only the creator may call it, only
// in Lobby, only after the manual-start cooldown, and only with at least two
// seated players.
func (e *Engine) StartGame(ctx context.Context, user *model.User, gameID uuid.UUID) (*StartGameResult, error) {
	gv, merr := e.loadGame(ctx, gameID)
	if merr != nil {
		return nil, merr
	}
	if gv.game.CreatorID != user.ID {
		return nil, message.NewError(message.ErrGameThirdParty)
	}
	if merr := requireState(gv.game, model.GameLobby); merr != nil {
		return nil, merr
	}
	if e.now().Before(gv.game.CreatedAt.Add(model.StartGameManualCooldown)) {
		return nil, message.NewError(message.ErrGameNotStartable)
	}
	if len(gv.activePlayers()) < 2 {
		return nil, message.NewError(message.ErrGameInsufficientPlayers)
	}

	current, merr := e.startGame(ctx, gv)
	if merr != nil {
		return nil, merr
	}
	return &StartGameResult{
		Code:   message.GameStarted,
		Game:   newGameView(gv.game, gv.config),
		Player: newPlayerView(current),
	}, nil
}

// startGame flips a lobby into a running game: slot 0 opens, the lobby
// timeout is cancelled, everyone hears about it, and the first turn timer is
// armed.
func (e *Engine) startGame(ctx context.Context, gv *gameView) (*model.Player, *message.Error) {
	if merr := requireState(gv.game, model.GameLobby); merr != nil {
		return nil, merr
	}

	var current *model.Player
	for _, p := range gv.players {
		if p.State == model.PlayerActive && p.Slot == 0 {
			current = p
			break
		}
	}
	if current == nil {
		return nil, message.NewError(message.ErrGameStartError)
	}

	e.cancelJob(ctx, gv.game.LobbyTimeoutJob)
	gv.game.LobbyTimeoutJob = ""
	gv.game.State = model.GameRunning
	gv.game.CurrentPlayerID = current.ID
	if merr := e.saveGame(ctx, gv.game); merr != nil {
		return nil, message.WrapError(message.ErrGameStartError, merr)
	}

	e.notifyAll(gv, message.GameStarted)

	if merr := e.prepareTurn(ctx, gv, current, nil); merr != nil {
		return nil, merr
	}
	return current, nil
}

// LeaveGame flips the caller's player to Inactive. The creator abandoning a
// lobby aborts the game; the current player leaving a running game hands the
// turn off immediately.
func (e *Engine) LeaveGame(ctx context.Context, user *model.User, gameID uuid.UUID) (*LeaveGameResult, error) {
	gv, merr := e.loadGame(ctx, gameID)
	if merr != nil {
		return nil, merr
	}
	if merr := requireState(gv.game, model.GameLobby, model.GameRunning); merr != nil {
		return nil, merr
	}

	player := gv.activePlayerOf(user.ID)
	if player == nil {
		return nil, message.NewError(message.ErrPlayerNotInGame)
	}
	player.State = model.PlayerInactive
	player.UpdatedAt = e.now()
	if err := e.store.Players.Save(ctx, player); err != nil {
		return nil, message.WrapError(message.ErrUnknown, err)
	}

	e.notifyAll(gv, message.GameLeft)

	switch {
	case gv.game.State == model.GameLobby && user.ID == gv.game.CreatorID:
		if merr := e.endGame(ctx, gv, message.GameEnded); merr != nil {
			return nil, merr
		}
	case gv.game.State == model.GameRunning && gv.game.CurrentPlayerID == player.ID:
		if merr := e.advance(ctx, gv, nil, false); merr != nil {
			return nil, merr
		}
	}

	return &LeaveGameResult{Code: message.GameLeft, Game: newGameView(gv.game, gv.config)}, nil
}

// DeclineInvite releases the caller's reserved invite seat back into the
// open pool.
func (e *Engine) DeclineInvite(ctx context.Context, user *model.User, gameID uuid.UUID) (*LeaveGameResult, error) {
	gv, merr := e.loadGame(ctx, gameID)
	if merr != nil {
		return nil, merr
	}
	if merr := requireState(gv.game, model.GameLobby); merr != nil {
		return nil, merr
	}

	found := false
	for i := range gv.config.Slots {
		s := &gv.config.Slots[i]
		if s.Type == model.SlotInvite && s.UserID == user.ID {
			s.Type = model.SlotOpen
			s.UserID = uuid.Nil
			s.DisplayName = ""
			found = true
			break
		}
	}
	if !found {
		return nil, message.NewError(message.ErrGameInviteError)
	}

	gv.config.IsRandom = true
	gv.config.UpdatedAt = e.now()
	if err := e.store.Configs.Save(ctx, gv.config); err != nil {
		return nil, message.WrapError(message.ErrUnknown, err)
	}

	return &LeaveGameResult{Code: message.GameLeft, Game: newGameView(gv.game, gv.config)}, nil
}

// endGame is the single terminal transition: cancel whatever timers remain,
// clear the current player, persist, and tell everyone with the given code.
func (e *Engine) endGame(ctx context.Context, gv *gameView, code message.Code) *message.Error {
	e.cancelJob(ctx, gv.game.LobbyTimeoutJob)
	e.cancelJob(ctx, gv.game.TurnTimeoutJob)
	gv.game.LobbyTimeoutJob = ""
	gv.game.TurnTimeoutJob = ""
	gv.game.State = model.GameEnded
	gv.game.CurrentPlayerID = uuid.Nil
	if merr := e.saveGame(ctx, gv.game); merr != nil {
		return merr
	}
	e.notifyAll(gv, code)
	return nil
}

// prepareTurn hands the turn to a player: sanity-checks the configured turn
// timeout, tells the player it is their move, and arms the turn timer.
func (e *Engine) prepareTurn(ctx context.Context, gv *gameView, player *model.Player, previous *model.Turn) *message.Error {
	if gv.config.TurnMaxSec <= 0 {
		return message.NewError(message.ErrGameInvalidTimeout,
			"timeout", strconv.Itoa(gv.config.TurnMaxSec))
	}

	msgCtx := map[string]string{"game": gv.game.ID.String()}
	if previous != nil {
		msgCtx["previousTurn"] = previous.ID.String()
	}
	e.notify.Send([]uuid.UUID{player.UserID}, message.PlayerTurn, msgCtx)

	handle, err := e.sched.Schedule(ctx, jobs.JobTurnTimeout, map[string]string{
		jobs.PayloadGameID:   gv.game.ID.String(),
		jobs.PayloadPlayerID: player.ID.String(),
	}, time.Duration(gv.config.TurnMaxSec)*time.Second)
	if err != nil {
		return message.WrapError(message.ErrUnknown, err)
	}
	gv.game.TurnTimeoutJob = string(handle)
	return e.saveGame(ctx, gv.game)
}

func (e *Engine) saveGame(ctx context.Context, game *model.Game) *message.Error {
	game.UpdatedAt = e.now()
	if err := e.store.Games.Save(ctx, game); err != nil {
		return message.WrapError(message.ErrUnknown, err)
	}
	return nil
}

// destroyQuietly is createGame's rollback: best effort, log only. A nil
// gameID means the game record never made it to the store, so only the
// config needs removing.
func (e *Engine) destroyQuietly(ctx context.Context, gameID, configID uuid.UUID) {
	if gameID != uuid.Nil {
		if err := e.store.Players.DestroyByGame(ctx, gameID); err != nil {
			e.log.WithError(err).WithField("game", gameID).Warn("rollback: players")
		}
		if err := e.store.Games.Destroy(ctx, gameID); err != nil {
			e.log.WithError(err).WithField("game", gameID).Warn("rollback: game")
		}
	}
	if err := e.store.Configs.Destroy(ctx, configID); err != nil {
		e.log.WithError(err).WithField("config", configID).Warn("rollback: config")
	}
}
