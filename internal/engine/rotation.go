package engine

import (
	"github.com/google/uuid"

	"paperback-server/internal/message"
	"paperback-server/internal/model"
)

// findNextPlayer picks who plays after the current player: the active player
// in the smallest slot at or after the current player's slot, wrapping to the
// smallest active slot overall. The current player is never picked again, so
// a game down to one active player gets (nil, nil): no next player, which
// ends the game. Requires a current player to rotate from.
func findNextPlayer(gv *gameView) (*model.Player, *message.Error) {
	if gv.game.CurrentPlayerID == uuid.Nil {
		return nil, message.NewError(message.ErrPlayerNextNoCurrent)
	}
	current := gv.playerByID(gv.game.CurrentPlayerID)
	if current == nil {
		return nil, message.NewError(message.ErrPlayerNotFound)
	}

	var successor, wrap *model.Player
	for _, p := range gv.players {
		if p.ID == current.ID || p.State != model.PlayerActive {
			continue
		}
		if p.Slot >= current.Slot && (successor == nil || p.Slot < successor.Slot) {
			successor = p
		}
		if wrap == nil || p.Slot < wrap.Slot {
			wrap = p
		}
	}
	if successor != nil {
		return successor, nil
	}
	return wrap, nil
}
