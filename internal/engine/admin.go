package engine

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"paperback-server/internal/message"
	"paperback-server/internal/model"
	"paperback-server/internal/store"
)

// DebugGame dumps everything the engine knows about one game. Administrative
// only; it bypasses membership checks.
func (e *Engine) DebugGame(ctx context.Context, gameID uuid.UUID) (*DebugGameResult, error) {
	gv, merr := e.loadGame(ctx, gameID)
	if merr != nil {
		return nil, merr
	}

	turns, err := e.store.Turns.ByGame(ctx, gameID, store.Page{Limit: store.TurnPaging.Max}, true)
	if err != nil {
		return nil, message.WrapError(message.ErrUnknown, err)
	}

	players := make([]*PlayerView, 0, len(gv.players))
	var invites []*model.Invite
	for _, p := range gv.players {
		players = append(players, newPlayerView(p))
		if inv, err := e.store.Invites.ByPlayer(ctx, p.ID); err == nil {
			invites = append(invites, inv)
		}
	}

	return &DebugGameResult{
		Game:    gv.game,
		Config:  gv.config,
		Players: players,
		Turns:   turns,
		Invites: invites,
	}, nil
}

// DestroyGame cascades a game away: jobs cancelled, then invites, turns,
// players, the game record, and finally its config. The game row must go
// before the config; the schema cascades config deletes onto games.
// Destruction continues past a failing branch; the first error is surfaced.
func (e *Engine) DestroyGame(ctx context.Context, gameID uuid.UUID) error {
	game, err := e.store.Games.Get(ctx, gameID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return message.NewError(message.ErrGameNotFound)
		}
		return message.WrapError(message.ErrUnknown, err)
	}
	e.cancelJob(ctx, game.LobbyTimeoutJob)
	e.cancelJob(ctx, game.TurnTimeoutJob)

	var first error
	keep := func(err error) {
		if err != nil && first == nil {
			first = err
		}
	}
	keep(e.store.Invites.DestroyByGame(ctx, gameID))
	keep(e.store.Turns.DestroyByGame(ctx, gameID))
	keep(e.store.Players.DestroyByGame(ctx, gameID))
	keep(e.store.Games.Destroy(ctx, gameID))
	keep(e.store.Configs.Destroy(ctx, game.ConfigID))
	if first != nil {
		return message.WrapError(message.ErrUnknown, first)
	}

	e.log.WithField("game", gameID).Info("game destroyed")
	return nil
}

// PurgeRandomGames destroys every random game regardless of state. Meant for
// wiping test debris from shared environments.
func (e *Engine) PurgeRandomGames(ctx context.Context) (*PurgeResult, error) {
	random := true
	purged := 0
	for {
		games, err := e.store.Games.Find(ctx, store.GameFilter{IsRandom: &random},
			store.Page{Limit: purgeBatch}, false)
		if err != nil {
			return nil, message.WrapError(message.ErrUnknown, err)
		}
		if len(games) == 0 {
			break
		}
		for _, g := range games {
			if err := e.DestroyGame(ctx, g.ID); err != nil {
				return nil, err
			}
			purged++
		}
		if len(games) < purgeBatch {
			break
		}
	}
	return &PurgeResult{Purged: purged}, nil
}

const purgeBatch = 100

// PurgeContacts drops every friend edge in the system.
func (e *Engine) PurgeContacts(ctx context.Context) (*PurgeResult, error) {
	n, err := e.store.Contacts.PurgeAll(ctx)
	if err != nil {
		return nil, message.WrapError(message.ErrUnknown, err)
	}
	return &PurgeResult{Purged: n}, nil
}
