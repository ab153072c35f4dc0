package engine

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"paperback-server/internal/message"
	"paperback-server/internal/model"
	"paperback-server/internal/store"
)

// GetInvite returns the caller's shareable join link for a game, creating
// the underlying invite on first use. The link is stable: asking again
// returns the same invite.
func (e *Engine) GetInvite(ctx context.Context, user *model.User, gameID uuid.UUID) (*InviteResult, error) {
	gv, merr := e.loadGame(ctx, gameID)
	if merr != nil {
		return nil, merr
	}

	player := gv.activePlayerOf(user.ID)
	if player == nil {
		return nil, message.NewError(message.ErrGameInviteError)
	}

	invite, err := e.store.Invites.ByPlayer(ctx, player.ID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return nil, message.WrapError(message.ErrGameInviteError, err)
		}
		invite = &model.Invite{
			ID:        uuid.New(),
			GameID:    gameID,
			PlayerID:  player.ID,
			CreatedAt: e.now(),
		}
		if err := e.store.Invites.Create(ctx, invite); err != nil {
			return nil, message.WrapError(message.ErrGameInviteError, err)
		}
	}

	return &InviteResult{
		Code:   message.GameInvite,
		Link:   e.serverRoot + "/join/" + invite.ID.String(),
		Invite: invite,
	}, nil
}
