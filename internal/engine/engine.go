// Package engine owns the game lifecycle: lobby filling, turn rotation, and
// the timeout jobs that force progression when players go idle. It runs
// against the store, scheduler, and notifier collaborators and returns coded
// errors for every failure.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"paperback-server/internal/jobs"
	"paperback-server/internal/message"
	"paperback-server/internal/model"
	"paperback-server/internal/notify"
	"paperback-server/internal/store"
)

// Engine coordinates all game operations. Safe for concurrent use: each
// operation is an independent load-mutate-save against the store, whose
// version checks arbitrate races.
type Engine struct {
	store  *store.Store
	sched  jobs.Scheduler
	notify notify.Notifier
	log    *logrus.Logger

	// serverRoot prefixes invite links, e.g. "https://example.com".
	serverRoot string

	// now is swappable for tests.
	now func() time.Time
}

// New wires an engine. Call RegisterJobs before starting the scheduler
// worker so timeout jobs find their handlers.
func New(s *store.Store, sched jobs.Scheduler, n notify.Notifier, log *logrus.Logger, serverRoot string) *Engine {
	return &Engine{
		store:      s,
		sched:      sched,
		notify:     n,
		log:        log,
		serverRoot: serverRoot,
		now:        time.Now,
	}
}

// gameView bundles the records most operations need.
type gameView struct {
	game    *model.Game
	config  *model.Config
	players []*model.Player
}

func (gv *gameView) playerByID(id uuid.UUID) *model.Player {
	for _, p := range gv.players {
		if p.ID == id {
			return p
		}
	}
	return nil
}

func (gv *gameView) activePlayers() []*model.Player {
	var out []*model.Player
	for _, p := range gv.players {
		if p.State == model.PlayerActive {
			out = append(out, p)
		}
	}
	return out
}

// activePlayerOf returns the user's active player in this game, or nil.
func (gv *gameView) activePlayerOf(userID uuid.UUID) *model.Player {
	for _, p := range gv.players {
		if p.UserID == userID && p.State == model.PlayerActive {
			return p
		}
	}
	return nil
}

func (gv *gameView) activeUserIDs() []uuid.UUID {
	var out []uuid.UUID
	for _, p := range gv.players {
		if p.State == model.PlayerActive {
			out = append(out, p.UserID)
		}
	}
	return out
}

// loadGame fetches game, config and players, mapping a missing game to the
// coded not-found error.
func (e *Engine) loadGame(ctx context.Context, gameID uuid.UUID) (*gameView, *message.Error) {
	game, err := e.store.Games.Get(ctx, gameID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, message.NewError(message.ErrGameNotFound)
		}
		return nil, message.WrapError(message.ErrUnknown, err)
	}
	config, err := e.store.Configs.Get(ctx, game.ConfigID)
	if err != nil {
		return nil, message.WrapError(message.ErrUnknown, err)
	}
	players, err := e.store.Players.ByGame(ctx, gameID)
	if err != nil {
		return nil, message.WrapError(message.ErrUnknown, err)
	}
	return &gameView{game: game, config: config, players: players}, nil
}

// invalidState builds the standard wrong-state error carrying the current
// and acceptable state names.
func invalidState(current model.GameState, acceptable ...model.GameState) *message.Error {
	names := ""
	for i, s := range acceptable {
		if i > 0 {
			names += ", "
		}
		names += s.String()
	}
	return message.NewError(message.ErrGameInvalidState,
		"stateName", current.String(),
		"acceptableNames", names,
	)
}

// requireState checks the game is in one of the acceptable states.
func requireState(game *model.Game, acceptable ...model.GameState) *message.Error {
	for _, s := range acceptable {
		if game.State == s {
			return nil
		}
	}
	return invalidState(game.State, acceptable...)
}

// notifyAll sends a game-scoped message to every active player.
func (e *Engine) notifyAll(gv *gameView, code message.Code) {
	e.notify.Send(gv.activeUserIDs(), code, map[string]string{
		"game": gv.game.ID.String(),
	})
}

// cancelJob cancels a scheduler handle, swallowing failures: a stale fire is
// re-checked by the handler anyway.
func (e *Engine) cancelJob(ctx context.Context, handle string) {
	if handle == "" {
		return
	}
	if _, err := e.sched.Cancel(ctx, jobs.Handle(handle)); err != nil {
		e.log.WithError(err).WithField("job", handle).Warn("job cancel failed")
	}
}

func gameIDFromPayload(payload map[string]string) (uuid.UUID, error) {
	raw, ok := payload[jobs.PayloadGameID]
	if !ok {
		return uuid.Nil, fmt.Errorf("payload missing %s", jobs.PayloadGameID)
	}
	return uuid.Parse(raw)
}
