// Package store defines the document-store collaborator the engine runs
// against: typed repositories over create/get/query/count/save/destroy, with
// per-record optimistic versioning. Every method performs privileged access
// internally; callers never choose a privilege level.
package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"paperback-server/internal/model"
)

var (
	// ErrNotFound is returned by Get/Save/Destroy when the record is gone.
	ErrNotFound = errors.New("store: record not found")

	// ErrVersionConflict is returned by Save when the record changed since
	// it was loaded. Callers treat it as a lost race.
	ErrVersionConflict = errors.New("store: version conflict")
)

// GameFilter narrows game queries. Zero fields match everything.
type GameFilter struct {
	IDs      []uuid.UUID
	States   []model.GameState
	IsRandom *bool
}

// Games holds the Game records.
type Games interface {
	Create(ctx context.Context, game *model.Game) error
	Get(ctx context.Context, id uuid.UUID) (*model.Game, error)
	Save(ctx context.Context, game *model.Game) error
	Destroy(ctx context.Context, id uuid.UUID) error
	Find(ctx context.Context, filter GameFilter, page Page, desc bool) ([]*model.Game, error)
}

// Configs holds the Config records.
type Configs interface {
	Create(ctx context.Context, config *model.Config) error
	Get(ctx context.Context, id uuid.UUID) (*model.Config, error)
	Save(ctx context.Context, config *model.Config) error
	Destroy(ctx context.Context, id uuid.UUID) error
}

// Players holds the Player records.
type Players interface {
	Create(ctx context.Context, player *model.Player) error
	Get(ctx context.Context, id uuid.UUID) (*model.Player, error)
	Save(ctx context.Context, player *model.Player) error
	Destroy(ctx context.Context, id uuid.UUID) error
	// ByGame returns all players of a game in creation order.
	ByGame(ctx context.Context, gameID uuid.UUID) ([]*model.Player, error)
	// ActiveByGameAndUser returns the user's active player in the game, or
	// ErrNotFound. At most one such player exists at any time.
	ActiveByGameAndUser(ctx context.Context, gameID, userID uuid.UUID) (*model.Player, error)
	// GameIDsByUser returns ids of games where the user has an active player,
	// newest first.
	GameIDsByUser(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)
	DestroyByGame(ctx context.Context, gameID uuid.UUID) error
}

// Turns holds the Turn records.
type Turns interface {
	Create(ctx context.Context, turn *model.Turn) error
	Get(ctx context.Context, id uuid.UUID) (*model.Turn, error)
	// ByGame returns the game's turns paged, newest first when desc.
	ByGame(ctx context.Context, gameID uuid.UUID, page Page, desc bool) ([]*model.Turn, error)
	// LatestByGame returns the most recent turn, or ErrNotFound.
	LatestByGame(ctx context.Context, gameID uuid.UUID) (*model.Turn, error)
	DestroyByGame(ctx context.Context, gameID uuid.UUID) error
}

// Invites holds the Invite records.
type Invites interface {
	Create(ctx context.Context, invite *model.Invite) error
	Get(ctx context.Context, id uuid.UUID) (*model.Invite, error)
	// ByPlayer returns the player's invite, or ErrNotFound.
	ByPlayer(ctx context.Context, playerID uuid.UUID) (*model.Invite, error)
	DestroyByGame(ctx context.Context, gameID uuid.UUID) error
}

// Contacts holds the friend edges.
type Contacts interface {
	// Put inserts the owner->contact edge; an existing edge is a no-op.
	Put(ctx context.Context, ownerID, contactID uuid.UUID) error
	// Delete removes the owner->contact edge, reporting whether it existed.
	Delete(ctx context.Context, ownerID, contactID uuid.UUID) (bool, error)
	ByOwner(ctx context.Context, ownerID uuid.UUID, page Page) ([]*model.Contact, error)
	// PurgeAll drops every edge, returning how many were removed.
	PurgeAll(ctx context.Context) (int, error)
}

// Users reads the identity records this service depends on.
type Users interface {
	Create(ctx context.Context, user *model.User) error
	Get(ctx context.Context, id uuid.UUID) (*model.User, error)
	CountByDisplayName(ctx context.Context, name string) (int, error)
	// ByDisplayName returns every user carrying the display name.
	ByDisplayName(ctx context.Context, name string) ([]*model.User, error)
}

// Sessions maps opaque session tokens to users.
type Sessions interface {
	Put(ctx context.Context, token string, userID uuid.UUID) error
	UserID(ctx context.Context, token string) (uuid.UUID, error)
	Delete(ctx context.Context, token string) error
}

// Store bundles the repositories an engine instance runs against.
type Store struct {
	Games    Games
	Configs  Configs
	Players  Players
	Turns    Turns
	Invites  Invites
	Contacts Contacts
	Users    Users
	Sessions Sessions
}
