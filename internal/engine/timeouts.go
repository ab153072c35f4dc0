package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"paperback-server/internal/jobs"
	"paperback-server/internal/message"
	"paperback-server/internal/model"
)

// Registrar is the handler side of the scheduler; both the redis worker and
// the in-memory test scheduler expose it.
type Registrar interface {
	Register(name string, h jobs.Handler)
}

// RegisterJobs binds the timeout handlers. Call once at wiring time, before
// the scheduler worker starts dispatching.
func (e *Engine) RegisterJobs(r Registrar) {
	r.Register(jobs.JobLobbyTimeout, e.HandleLobbyTimeout)
	r.Register(jobs.JobTurnTimeout, e.HandleTurnTimeout)
}

// HandleLobbyTimeout fires when a lobby hits its deadline: a lobby with a
// real opponent starts, a lonely one ends. Games that already moved on are
// left alone.
func (e *Engine) HandleLobbyTimeout(ctx context.Context, payload map[string]string) error {
	gameID, err := gameIDFromPayload(payload)
	if err != nil {
		return err
	}
	gv, merr := e.loadGame(ctx, gameID)
	if merr != nil {
		if merr.Code == message.ErrGameNotFound {
			return fmt.Errorf("%w: game %s gone", jobs.ErrObsolete, gameID)
		}
		return merr
	}
	if gv.game.State != model.GameLobby {
		return fmt.Errorf("%w: game %s is %s", jobs.ErrObsolete, gameID, gv.game.State)
	}

	gv.game.LobbyTimeoutJob = ""

	if len(gv.activePlayers()) < 2 {
		e.log.WithField("game", gameID).Info("lobby timed out, ending game")
		if merr := e.endGame(ctx, gv, message.GameLobbyTimeout); merr != nil {
			return merr
		}
		return nil
	}

	e.log.WithField("game", gameID).Info("lobby timed out, starting game")
	if _, merr := e.startGame(ctx, gv); merr != nil {
		return merr
	}
	return nil
}

// HandleTurnTimeout fires when the current player sat on their turn too
// long. It records a save-less Turn pointing back at the last real save and
// either rotates onward or, after enough silent rotations, ends the game.
func (e *Engine) HandleTurnTimeout(ctx context.Context, payload map[string]string) error {
	gameID, err := gameIDFromPayload(payload)
	if err != nil {
		return err
	}
	playerID, err := uuid.Parse(payload[jobs.PayloadPlayerID])
	if err != nil {
		return fmt.Errorf("payload missing %s: %w", jobs.PayloadPlayerID, err)
	}

	gv, merr := e.loadGame(ctx, gameID)
	if merr != nil {
		if merr.Code == message.ErrGameNotFound {
			return fmt.Errorf("%w: game %s gone", jobs.ErrObsolete, gameID)
		}
		return merr
	}
	if gv.game.State != model.GameRunning {
		return fmt.Errorf("%w: game %s is %s", jobs.ErrObsolete, gameID, gv.game.State)
	}
	if gv.game.CurrentPlayerID != playerID {
		// The player submitted (or left) while this job was in flight.
		return fmt.Errorf("%w: player %s is no longer current in game %s", jobs.ErrObsolete, playerID, gameID)
	}

	timeoutRounds := (gv.game.ConsecutiveTurnTimeouts + 1) / gv.config.PlayerNum
	gv.game.ConsecutiveTurnTimeouts++

	lastValid, err := e.lastValidFor(ctx, gameID)
	if err != nil {
		return err
	}
	turn := &model.Turn{
		ID:          uuid.New(),
		GameID:      gameID,
		Turn:        gv.game.Turn,
		PlayerID:    playerID,
		LastValidID: lastValid,
		CreatedAt:   e.now(),
	}
	if err := e.store.Turns.Create(ctx, turn); err != nil {
		return err
	}

	e.log.WithFields(logrus.Fields{
		"game":   gameID,
		"player": playerID,
		"rounds": timeoutRounds,
	}).Info("turn timed out")

	if timeoutRounds >= model.GameEndingInactiveRounds {
		gv.game.TurnTimeoutJob = ""
		if merr := e.endGame(ctx, gv, message.GameInactiveTimeout); merr != nil {
			return merr
		}
		return nil
	}

	if merr := e.advance(ctx, gv, turn, false); merr != nil {
		return merr
	}
	return nil
}
