package engine

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"paperback-server/internal/message"
	"paperback-server/internal/model"
	"paperback-server/internal/store"
)

// GameTurn accepts the current player's save and rotates the turn, or ends
// the game when the player declares the save final.
func (e *Engine) GameTurn(ctx context.Context, user *model.User, gameID uuid.UUID, save string, final bool) (*TurnResult, error) {
	gv, merr := e.loadGame(ctx, gameID)
	if merr != nil {
		return nil, merr
	}
	if merr := requireState(gv.game, model.GameRunning); merr != nil {
		return nil, merr
	}

	current := gv.playerByID(gv.game.CurrentPlayerID)
	if current == nil || current.State != model.PlayerActive || current.UserID != user.ID {
		return nil, message.NewError(message.ErrTurnNotIt)
	}
	if save == "" {
		return nil, message.NewError(message.ErrTurnInvalidSave)
	}

	turn := &model.Turn{
		ID:        uuid.New(),
		GameID:    gv.game.ID,
		Turn:      gv.game.Turn,
		PlayerID:  current.ID,
		Save:      &save,
		CreatedAt: e.now(),
	}
	if err := e.store.Turns.Create(ctx, turn); err != nil {
		return nil, message.WrapError(message.ErrUnknown, err)
	}

	gv.game.ConsecutiveTurnTimeouts = 0
	if merr := e.advance(ctx, gv, turn, final); merr != nil {
		return nil, merr
	}

	return &TurnResult{Code: message.TurnSaved, Turn: turn}, nil
}

// advance is the shared handoff: cancel the running turn timer, pick who is
// next, bump the turn counter, and either arm the next turn or end the game.
// previous rides along so the next player gets it for context.
func (e *Engine) advance(ctx context.Context, gv *gameView, previous *model.Turn, final bool) *message.Error {
	e.cancelJob(ctx, gv.game.TurnTimeoutJob)
	gv.game.TurnTimeoutJob = ""

	var next *model.Player
	if !final {
		var merr *message.Error
		next, merr = findNextPlayer(gv)
		if merr != nil {
			return merr
		}
	}

	gv.game.Turn++
	if next == nil {
		return e.endGame(ctx, gv, message.GameEnded)
	}

	gv.game.CurrentPlayerID = next.ID
	return e.prepareTurn(ctx, gv, next, previous)
}

// lastValidFor resolves the back-reference a timeout turn carries: the most
// recent turn with a real save, following an earlier timeout's own
// back-reference when needed.
func (e *Engine) lastValidFor(ctx context.Context, gameID uuid.UUID) (uuid.UUID, error) {
	latest, err := e.store.Turns.LatestByGame(ctx, gameID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return uuid.Nil, nil
		}
		return uuid.Nil, err
	}
	if latest.Save != nil {
		return latest.ID, nil
	}
	return latest.LastValidID, nil
}
