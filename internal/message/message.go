package message

import "strings"

// Code is a stable numeric message code shared with clients. Success codes sit
// below 1000, error codes at 1000 and above. The values are part of the wire
// contract and must not be renumbered.
type Code int

const (
	Availability Code = 1

	GameCreated Code = 100
	GameStarted Code = 101
	GameEnded   Code = 102
	GameJoined  Code = 103
	GameLeft    Code = 104
	GameInvite  Code = 105
	GameList    Code = 106

	GameLobbyTimeout    Code = 120
	GameInactiveTimeout Code = 121

	PlayerTurn Code = 200

	TurnSaved Code = 300
	TurnList  Code = 301

	ContactList    Code = 400
	ContactDeleted Code = 401

	ErrInvalidParameter Code = 1001
	ErrUnknown          Code = 1002
	ErrUserNotFound     Code = 1004

	ErrGameInvalidState        Code = 1100
	ErrGameNotStartable        Code = 1101
	ErrGameStartError          Code = 1102
	ErrGameInsufficientPlayers Code = 1103
	ErrGameNotFound            Code = 1104
	ErrGameInviteError         Code = 1105
	ErrGameFull                Code = 1106
	ErrGameFullPlayerError     Code = 1107
	ErrGameThirdParty          Code = 1108
	ErrGameInvalidTimeout      Code = 1109
	ErrGameInvalidConfig       Code = 1110

	ErrPlayerAlreadyInGame Code = 1200
	ErrPlayerNotInGame     Code = 1201
	ErrPlayerNotFound      Code = 1204
	ErrPlayerNextNoCurrent Code = 1205

	ErrTurnThirdParty  Code = 1300
	ErrTurnNotIt       Code = 1301
	ErrTurnInvalidSave Code = 1302

	ErrContactNotFound Code = 1404
)

// templates holds the client-facing message for each code that carries one.
// Template variables use {{name}} and are resolved from a flat context map.
var templates = map[Code]string{
	GameStarted:         "Game {{game}} has started!",
	GameEnded:           "Game {{game}} has ended!",
	GameLobbyTimeout:    "Game {{game}} timed out, nobody joined!",
	GameInactiveTimeout: "Game {{game}} ran out!",
	PlayerTurn:          "It's your turn in game {{game}}!",

	ErrInvalidParameter:        "Invalid parameter",
	ErrUserNotFound:            "User not found.",
	ErrGameInvalidState:        "Game state '{{stateName}}' does not accept this operation. Supported states: {{acceptableNames}}",
	ErrGameNotStartable:        "Game is not startable yet.",
	ErrGameStartError:          "Unable to start game.",
	ErrGameInsufficientPlayers: "Not enough players to start the game.",
	ErrGameNotFound:            "Game not found.",
	ErrGameInviteError:         "Unable to get invite.",
	ErrGameFull:                "Unable to join, game is full.",
	ErrGameFullPlayerError:     "Game is too full, but unable to remove player.",
	ErrGameThirdParty:          "Unable to start a third party game.",
	ErrGameInvalidTimeout:      "Invalid game timeout: {{timeout}}",
	ErrGameInvalidConfig:       "Invalid game configuration: {{reason}}",
	ErrPlayerAlreadyInGame:     "Player already in game.",
	ErrPlayerNotInGame:         "Player not in game.",
	ErrPlayerNotFound:          "Player not found.",
	ErrPlayerNextNoCurrent:     "Unable to find next player, no current player",
	ErrTurnThirdParty:          "Unable to list third party turns.",
	ErrTurnNotIt:               "Game turn invalid, it's not your turn!",
	ErrTurnInvalidSave:         "Invalid turn save.",
	ErrContactNotFound:         "Contact not found.",
}

// Template returns the raw message template for a code, or "" if the code
// carries no client-facing text.
func (c Code) Template() string {
	return templates[c]
}

// IsError reports whether the code belongs to the error range.
func (c Code) IsError() bool {
	return c >= 1000
}

// Render resolves a code's template against a flat context map. Variables
// without a context entry are left in place so a malformed call site is
// visible rather than silently blank.
func Render(c Code, ctx map[string]string) string {
	tpl := templates[c]
	if tpl == "" || len(ctx) == 0 {
		return tpl
	}
	for key, val := range ctx {
		tpl = strings.ReplaceAll(tpl, "{{"+key+"}}", val)
	}
	return tpl
}
