package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// GameState tracks a game's lifecycle. States only ever advance.
type GameState int

const (
	GameInit GameState = iota
	GameLobby
	GameRunning
	GameEnded
)

// String renders the state the way client-facing messages expect it,
// e.g. "Lobby (1)".
func (s GameState) String() string {
	name := "invalid"
	switch s {
	case GameInit:
		name = "Init"
	case GameLobby:
		name = "Lobby"
	case GameRunning:
		name = "Running"
	case GameEnded:
		name = "Ended"
	}
	return fmt.Sprintf("%s (%d)", name, int(s))
}

// PlayerState distinguishes participating players from ones that left.
type PlayerState int

const (
	PlayerActive PlayerState = iota
	PlayerInactive
)

// AIDifficulty levels for AI-occupied slots.
type AIDifficulty int

const (
	AINone AIDifficulty = iota
	AIEasy
	AIMedium
	AIHard
)

// SlotType describes how a configured seat gets filled.
type SlotType string

const (
	SlotCreator SlotType = "creator"
	SlotOpen    SlotType = "open"
	SlotInvite  SlotType = "invite"
	SlotAI      SlotType = "ai"
	SlotNone    SlotType = "none"
)

// FameCardNames is the closed set of card names a config may reference.
var FameCardNames = []string{
	"The Chinatown Connection",
	"Dead Planet",
	"Vicious Triangle",
	"Lady of the West",
}

// Timing and sizing constants shared by the engine and its job handlers.
const (
	// StartGameManualCooldown is how long after creation the creator must
	// wait before a manual start is accepted.
	StartGameManualCooldown = 7 * time.Second

	// StartGameAutoTimeout is the lobby deadline: games still waiting for a
	// second player by then are ended by the lobby-timeout job.
	StartGameAutoTimeout = 20 * time.Second

	// GameEndingInactiveRounds is how many full rotations without a single
	// real save it takes before the game is force-ended.
	GameEndingInactiveRounds = 2

	// MaxSlots bounds the configured slot list.
	MaxSlots = 16

	// DefaultTurnMaxSec applies when createGame omits turnMaxSec.
	DefaultTurnMaxSec = 10
)

// Slot is one configured seat. UserID is set for creator slots (at creation)
// and invite slots (resolved from the invitee's display name).
type Slot struct {
	Type        SlotType     `json:"type"`
	DisplayName string       `json:"displayName,omitempty"`
	UserID      uuid.UUID    `json:"userId,omitempty"`
	Difficulty  AIDifficulty `json:"difficulty,omitempty"`
}

// Config is a game's immutable setup. The only mutation allowed after
// creation is an invite slot turning into an open one via decline-invite.
type Config struct {
	ID         uuid.UUID      `json:"objectId"`
	Slots      []Slot         `json:"slots"`
	SlotNum    int            `json:"slotNum"`
	PlayerNum  int            `json:"playerNum"`
	IsRandom   bool           `json:"isRandom"`
	TurnMaxSec int            `json:"turnMaxSec"`
	FameCards  map[string]int `json:"fameCards"`
	CreatedAt  time.Time      `json:"createdAt"`
	UpdatedAt  time.Time      `json:"updatedAt"`
	Version    int64          `json:"-"`
}

// Game is the root lifecycle record. CurrentPlayerID is unset until the game
// starts and cleared again when it ends. The two job fields hold opaque
// scheduler handles for the pending lobby/turn timeout.
type Game struct {
	ID                      uuid.UUID `json:"objectId"`
	State                   GameState `json:"state"`
	Turn                    int       `json:"turn"`
	CreatorID               uuid.UUID `json:"creator"`
	ConfigID                uuid.UUID `json:"config"`
	CurrentPlayerID         uuid.UUID `json:"currentPlayer,omitempty"`
	ConsecutiveTurnTimeouts int       `json:"consecutiveTurnTimeouts"`
	LobbyTimeoutJob         string    `json:"lobbyTimeoutJob,omitempty"`
	TurnTimeoutJob          string    `json:"turnTimeoutJob,omitempty"`
	CreatedAt               time.Time `json:"createdAt"`
	UpdatedAt               time.Time `json:"updatedAt"`
	Version                 int64     `json:"-"`
}

// Player binds a user to a game and a slot. Leaving flips State to Inactive;
// the row itself is never removed outside a full game destroy. Slot is fixed
// for the player's lifetime even if the config's slot later changes type.
type Player struct {
	ID        uuid.UUID   `json:"objectId"`
	GameID    uuid.UUID   `json:"game"`
	UserID    uuid.UUID   `json:"user"`
	State     PlayerState `json:"state"`
	Slot      int         `json:"slot"`
	CreatedAt time.Time   `json:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt"`
	Version   int64       `json:"-"`
}

// Turn records one accepted submission or one forced timeout. Save is nil for
// timeout turns; LastValidID then points (possibly through another timeout
// turn) at the most recent turn that carried a real save.
type Turn struct {
	ID          uuid.UUID `json:"objectId"`
	GameID      uuid.UUID `json:"game"`
	Turn        int       `json:"turn"`
	PlayerID    uuid.UUID `json:"player"`
	Save        *string   `json:"save"`
	LastValidID uuid.UUID `json:"lastValid,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Invite is the shareable join handle, created lazily for a player and stable
// for the game's lifetime.
type Invite struct {
	ID        uuid.UUID `json:"objectId"`
	GameID    uuid.UUID `json:"game"`
	PlayerID  uuid.UUID `json:"player"`
	CreatedAt time.Time `json:"createdAt"`
}

// Contact is a one-directional friend edge; joins create both directions.
type Contact struct {
	ID        uuid.UUID `json:"objectId"`
	OwnerID   uuid.UUID `json:"owner"`
	ContactID uuid.UUID `json:"contact"`
	CreatedAt time.Time `json:"createdAt"`
}

// User is the minimal identity view this service needs; account management
// lives elsewhere.
type User struct {
	ID          uuid.UUID `json:"objectId"`
	DisplayName string    `json:"displayName"`
	CreatedAt   time.Time `json:"createdAt"`
}
