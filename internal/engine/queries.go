package engine

import (
	"context"

	"github.com/google/uuid"

	"paperback-server/internal/message"
	"paperback-server/internal/model"
	"paperback-server/internal/store"
)

// FindGames is the public lobby browser: random games still in Lobby state,
// oldest first, annotated with whether the caller already sits in them and
// how many seats remain.
func (e *Engine) FindGames(ctx context.Context, user *model.User, page store.Page) (*GameListResult, error) {
	page = store.FindGamePaging.Clamp(page)
	random := true
	games, err := e.store.Games.Find(ctx, store.GameFilter{
		States:   []model.GameState{model.GameLobby},
		IsRandom: &random,
	}, page, false)
	if err != nil {
		return nil, message.WrapError(message.ErrUnknown, err)
	}

	out := make([]*GameView, 0, len(games))
	for _, game := range games {
		gv, merr := e.loadGame(ctx, game.ID)
		if merr != nil {
			e.log.WithField("game", game.ID).Debug("skipping unloadable game")
			continue
		}
		view := newGameView(gv.game, gv.config)
		joined := gv.activePlayerOf(user.ID) != nil
		free := freeSlotCount(gv)
		view.Joined = &joined
		view.FreeSlots = &free
		out = append(out, view)
	}
	return &GameListResult{Code: message.GameList, Games: out}, nil
}

// ListGames pages through the caller's own games, newest first. An explicit
// id list narrows the result but never widens it beyond the caller's games.
func (e *Engine) ListGames(ctx context.Context, user *model.User, gameIDs []uuid.UUID, page store.Page) (*GameListResult, error) {
	page = store.GamePaging.Clamp(page)

	own, err := e.store.Players.GameIDsByUser(ctx, user.ID)
	if err != nil {
		return nil, message.WrapError(message.ErrUnknown, err)
	}
	ids := own
	if len(gameIDs) > 0 {
		wanted := make(map[uuid.UUID]bool, len(gameIDs))
		for _, id := range gameIDs {
			wanted[id] = true
		}
		ids = ids[:0:0]
		for _, id := range own {
			if wanted[id] {
				ids = append(ids, id)
			}
		}
	}
	if len(ids) == 0 {
		return &GameListResult{Code: message.GameList, Games: []*GameView{}}, nil
	}

	games, err := e.store.Games.Find(ctx, store.GameFilter{IDs: ids}, page, true)
	if err != nil {
		return nil, message.WrapError(message.ErrUnknown, err)
	}

	out := make([]*GameView, 0, len(games))
	for _, game := range games {
		config, err := e.store.Configs.Get(ctx, game.ConfigID)
		if err != nil {
			return nil, message.WrapError(message.ErrUnknown, err)
		}
		out = append(out, newGameView(game, config))
	}
	return &GameListResult{Code: message.GameList, Games: out}, nil
}

// ListTurns pages through a game's turn history, newest first. Only the
// game's own players may read it.
func (e *Engine) ListTurns(ctx context.Context, user *model.User, gameID uuid.UUID, page store.Page) (*TurnListResult, error) {
	gv, merr := e.loadGame(ctx, gameID)
	if merr != nil {
		return nil, merr
	}

	member := false
	for _, p := range gv.players {
		if p.UserID == user.ID {
			member = true
			break
		}
	}
	if !member {
		return nil, message.NewError(message.ErrTurnThirdParty)
	}

	page = store.TurnPaging.Clamp(page)
	turns, err := e.store.Turns.ByGame(ctx, gameID, page, true)
	if err != nil {
		return nil, message.WrapError(message.ErrUnknown, err)
	}
	return &TurnListResult{Code: message.TurnList, Turns: turns}, nil
}
