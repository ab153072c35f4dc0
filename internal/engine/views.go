package engine

import (
	"time"

	"github.com/google/uuid"

	"paperback-server/internal/message"
	"paperback-server/internal/model"
)

// GameView is the client-facing shape of a game. Joined and FreeSlots are
// only populated by the public lobby browser.
type GameView struct {
	ObjectID      uuid.UUID       `json:"objectId"`
	State         model.GameState `json:"state"`
	Turn          int             `json:"turn"`
	Creator       uuid.UUID       `json:"creator"`
	CurrentPlayer uuid.UUID       `json:"currentPlayer,omitempty"`
	Config        *model.Config   `json:"config"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
	Joined        *bool           `json:"joined,omitempty"`
	FreeSlots     *int            `json:"freeSlots,omitempty"`
}

func newGameView(game *model.Game, config *model.Config) *GameView {
	return &GameView{
		ObjectID:      game.ID,
		State:         game.State,
		Turn:          game.Turn,
		Creator:       game.CreatorID,
		CurrentPlayer: game.CurrentPlayerID,
		Config:        config,
		CreatedAt:     game.CreatedAt,
		UpdatedAt:     game.UpdatedAt,
	}
}

// PlayerView is the client-facing shape of a player.
type PlayerView struct {
	ObjectID  uuid.UUID         `json:"objectId"`
	User      uuid.UUID         `json:"user"`
	State     model.PlayerState `json:"state"`
	Slot      int               `json:"slot"`
	CreatedAt time.Time         `json:"createdAt"`
}

func newPlayerView(p *model.Player) *PlayerView {
	return &PlayerView{
		ObjectID:  p.ID,
		User:      p.UserID,
		State:     p.State,
		Slot:      p.Slot,
		CreatedAt: p.CreatedAt,
	}
}

// UserView is the identity subset exposed through contact listings.
type UserView struct {
	ObjectID    uuid.UUID `json:"objectId"`
	DisplayName string    `json:"displayName"`
}

// CreateGameResult answers createGame.
type CreateGameResult struct {
	Code message.Code `json:"code"`
	Game *GameView    `json:"game"`
}

// JoinGameResult answers joinGame.
type JoinGameResult struct {
	Code   message.Code `json:"code"`
	Game   *GameView    `json:"game"`
	Player *PlayerView  `json:"player"`
}

// StartGameResult answers a manual startGame, naming the opening player.
type StartGameResult struct {
	Code   message.Code `json:"code"`
	Game   *GameView    `json:"game"`
	Player *PlayerView  `json:"player"`
}

// LeaveGameResult answers leaveGame and declineInvite.
type LeaveGameResult struct {
	Code message.Code `json:"code"`
	Game *GameView    `json:"game"`
}

// TurnResult answers gameTurn.
type TurnResult struct {
	Code message.Code `json:"code"`
	Turn *model.Turn  `json:"turn"`
}

// InviteResult answers getInvite with a shareable link.
type InviteResult struct {
	Code   message.Code  `json:"code"`
	Link   string        `json:"link"`
	Invite *model.Invite `json:"invite"`
}

// GameListResult answers findGames and listGames.
type GameListResult struct {
	Code  message.Code `json:"code"`
	Games []*GameView  `json:"games"`
}

// TurnListResult answers listTurns.
type TurnListResult struct {
	Code  message.Code  `json:"code"`
	Turns []*model.Turn `json:"turns"`
}

// ContactListResult answers listFriends.
type ContactListResult struct {
	Code     message.Code `json:"code"`
	Contacts []*UserView  `json:"contacts"`
}

// ContactDeletedResult answers deleteFriend.
type ContactDeletedResult struct {
	Code message.Code `json:"code"`
}

// AvailabilityResult answers checkNameFree.
type AvailabilityResult struct {
	Code      message.Code `json:"code"`
	Available bool         `json:"available"`
}

// DebugGameResult is the administrative full dump of one game.
type DebugGameResult struct {
	Game    *model.Game     `json:"game"`
	Config  *model.Config   `json:"config"`
	Players []*PlayerView   `json:"players"`
	Turns   []*model.Turn   `json:"turns"`
	Invites []*model.Invite `json:"invites"`
}

// PurgeResult reports how many records an administrative purge removed.
type PurgeResult struct {
	Purged int `json:"purged"`
}
