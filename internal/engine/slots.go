package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"paperback-server/internal/message"
	"paperback-server/internal/model"
)

// ConfigRequest is the raw slot setup a client sends with createGame. An
// empty request gets the default setup: the creator plus three open seats.
type ConfigRequest struct {
	Slots      []SlotRequest  `json:"slots"`
	FameCards  map[string]int `json:"fameCards"`
	TurnMaxSec int            `json:"turnMaxSec"`
}

// SlotRequest is one requested seat.
type SlotRequest struct {
	Type        string `json:"type"`
	DisplayName string `json:"displayName"`
	Difficulty  int    `json:"difficulty"`
}

func invalidConfig(reason string) *message.Error {
	return message.NewError(message.ErrGameInvalidConfig, "reason", reason)
}

// buildConfig validates a config request and resolves it into a Config
// record. Invite display names are resolved to users here so a bad invite
// fails the whole createGame instead of leaving a dead seat.
func (e *Engine) buildConfig(ctx context.Context, creator *model.User, req *ConfigRequest) (*model.Config, *message.Error) {
	reqSlots := req.Slots
	if len(reqSlots) == 0 {
		reqSlots = []SlotRequest{
			{Type: string(model.SlotCreator)},
			{Type: string(model.SlotOpen)},
			{Type: string(model.SlotOpen)},
			{Type: string(model.SlotOpen)},
		}
	}
	if len(reqSlots) > model.MaxSlots {
		return nil, invalidConfig(fmt.Sprintf("at most %d slots allowed", model.MaxSlots))
	}

	slots := make([]model.Slot, 0, len(reqSlots))
	seen := map[uuid.UUID]bool{creator.ID: true}
	creators := 0
	players := 0
	isRandom := false

	for _, rs := range reqSlots {
		switch model.SlotType(rs.Type) {
		case model.SlotCreator:
			creators++
			players++
			slots = append(slots, model.Slot{
				Type:        model.SlotCreator,
				DisplayName: creator.DisplayName,
				UserID:      creator.ID,
			})

		case model.SlotOpen:
			isRandom = true
			players++
			slots = append(slots, model.Slot{Type: model.SlotOpen})

		case model.SlotInvite:
			if rs.DisplayName == "" {
				return nil, invalidConfig("invite slot without display name")
			}
			users, err := e.store.Users.ByDisplayName(ctx, rs.DisplayName)
			if err != nil {
				return nil, message.WrapError(message.ErrUnknown, err)
			}
			if len(users) == 0 {
				return nil, invalidConfig("no user named " + rs.DisplayName)
			}
			if len(users) > 1 {
				return nil, invalidConfig("display name " + rs.DisplayName + " is ambiguous")
			}
			if seen[users[0].ID] {
				return nil, invalidConfig("duplicate invite for " + rs.DisplayName)
			}
			seen[users[0].ID] = true
			players++
			slots = append(slots, model.Slot{
				Type:        model.SlotInvite,
				DisplayName: rs.DisplayName,
				UserID:      users[0].ID,
			})

		case model.SlotAI:
			diff := model.AIDifficulty(rs.Difficulty)
			if diff < model.AIEasy || diff > model.AIHard {
				return nil, invalidConfig(fmt.Sprintf("invalid AI difficulty %d", rs.Difficulty))
			}
			players++
			slots = append(slots, model.Slot{Type: model.SlotAI, Difficulty: diff})

		case model.SlotNone:
			slots = append(slots, model.Slot{Type: model.SlotNone})

		default:
			return nil, invalidConfig("unknown slot type " + rs.Type)
		}
	}
	if creators != 1 {
		return nil, invalidConfig("exactly one creator slot required")
	}

	for name, count := range req.FameCards {
		if !knownFameCard(name) {
			return nil, invalidConfig("unknown fame card " + name)
		}
		if count < 0 {
			return nil, invalidConfig("negative fame card count for " + name)
		}
	}

	turnMaxSec := req.TurnMaxSec
	if turnMaxSec == 0 {
		turnMaxSec = model.DefaultTurnMaxSec
	}
	if turnMaxSec < 0 {
		return nil, invalidConfig(fmt.Sprintf("invalid turnMaxSec %d", req.TurnMaxSec))
	}

	now := e.now()
	return &model.Config{
		ID:         uuid.New(),
		Slots:      slots,
		SlotNum:    len(slots),
		PlayerNum:  players,
		IsRandom:   isRandom,
		TurnMaxSec: turnMaxSec,
		FameCards:  req.FameCards,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

func knownFameCard(name string) bool {
	for _, n := range model.FameCardNames {
		if n == name {
			return true
		}
	}
	return false
}

// occupiedSlots reports which slot indexes are held by active players.
func occupiedSlots(players []*model.Player) map[int]bool {
	out := make(map[int]bool)
	for _, p := range players {
		if p.State == model.PlayerActive {
			out[p.Slot] = true
		}
	}
	return out
}

// resolveSlot picks the seat a joining user should take: their reserved
// creator/invite slot when one is free, else the first free open slot.
// Returns -1 when no seat is available.
func resolveSlot(gv *gameView, userID uuid.UUID) int {
	taken := occupiedSlots(gv.players)
	for i, s := range gv.config.Slots {
		if taken[i] {
			continue
		}
		if (s.Type == model.SlotCreator || s.Type == model.SlotInvite) && s.UserID == userID {
			return i
		}
	}
	for i, s := range gv.config.Slots {
		if taken[i] {
			continue
		}
		if s.Type == model.SlotOpen {
			return i
		}
	}
	return -1
}

// freeSlotCount counts unoccupied open slots. Reserved creator and invite
// seats are spoken for and never count as free.
func freeSlotCount(gv *gameView) int {
	taken := occupiedSlots(gv.players)
	free := 0
	for i, s := range gv.config.Slots {
		if s.Type == model.SlotOpen && !taken[i] {
			free++
		}
	}
	return free
}
