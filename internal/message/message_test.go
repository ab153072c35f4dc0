package message

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodeValues(t *testing.T) {
	assert := assert.New(t)

	// Wire-contract spot checks. These numbers are shared with deployed
	// clients and must never drift.
	assert.Equal(Code(1), Availability)
	assert.Equal(Code(100), GameCreated)
	assert.Equal(Code(101), GameStarted)
	assert.Equal(Code(120), GameLobbyTimeout)
	assert.Equal(Code(121), GameInactiveTimeout)
	assert.Equal(Code(200), PlayerTurn)
	assert.Equal(Code(300), TurnSaved)
	assert.Equal(Code(401), ContactDeleted)
	assert.Equal(Code(1001), ErrInvalidParameter)
	assert.Equal(Code(1100), ErrGameInvalidState)
	assert.Equal(Code(1106), ErrGameFull)
	assert.Equal(Code(1107), ErrGameFullPlayerError)
	assert.Equal(Code(1205), ErrPlayerNextNoCurrent)
	assert.Equal(Code(1301), ErrTurnNotIt)
	assert.Equal(Code(1404), ErrContactNotFound)
}

func TestIsError(t *testing.T) {
	assert := assert.New(t)

	assert.False(GameCreated.IsError())
	assert.False(ContactDeleted.IsError())
	assert.True(ErrInvalidParameter.IsError())
	assert.True(ErrContactNotFound.IsError())
}

func TestRender(t *testing.T) {
	assert := assert.New(t)

	msg := Render(GameStarted, map[string]string{"game": "abc123"})
	assert.Equal("Game abc123 has started!", msg)

	msg = Render(ErrGameInvalidState, map[string]string{
		"stateName":       "Running (2)",
		"acceptableNames": "Lobby (1)",
	})
	assert.Equal("Game state 'Running (2)' does not accept this operation. Supported states: Lobby (1)", msg)
}

func TestRenderLeavesUnknownVariables(t *testing.T) {
	assert := assert.New(t)

	msg := Render(ErrGameInvalidTimeout, map[string]string{"unrelated": "x"})
	assert.Contains(msg, "{{timeout}}")
}

func TestRenderWithoutTemplate(t *testing.T) {
	assert.Equal(t, "", Render(GameCreated, map[string]string{"game": "x"}))
}

func TestErrorRendersTemplate(t *testing.T) {
	assert := assert.New(t)

	err := NewError(ErrGameFull)
	assert.Equal("Unable to join, game is full.", err.Error())
	assert.Equal(err.Error(), err.Message())
}

func TestErrorContextPairs(t *testing.T) {
	err := NewError(ErrGameInvalidConfig, "reason", "duplicate invite")
	assert.Equal(t, "Invalid game configuration: duplicate invite", err.Error())
}

func TestWrapErrorKeepsCause(t *testing.T) {
	assert := assert.New(t)

	cause := fmt.Errorf("connection refused")
	err := WrapError(ErrUnknown, cause)
	assert.ErrorIs(err, cause)
	assert.Equal("connection refused", err.Error())
}

func TestAsError(t *testing.T) {
	assert := assert.New(t)

	coded := NewError(ErrGameNotFound)
	assert.Same(coded, AsError(coded))

	wrapped := fmt.Errorf("outer: %w", coded)
	assert.Same(coded, AsError(wrapped))

	plain := errors.New("boom")
	got := AsError(plain)
	assert.Equal(ErrUnknown, got.Code)
	assert.ErrorIs(got, plain)
}
