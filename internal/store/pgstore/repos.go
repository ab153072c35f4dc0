package pgstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"paperback-server/internal/model"
	"paperback-server/internal/store"
)

// guardedUpdate runs a version-checked update and translates a miss into
// not-found or conflict by re-checking existence.
func (p *Pgstore) guardedUpdate(ctx context.Context, table, query string, args ...any) error {
	tag, err := p.pool.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	var exists bool
	// args[0] is always the record id.
	err = p.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE id = $1)`, table),
		args[0]).Scan(&exists)
	if err != nil {
		return err
	}
	if exists {
		return store.ErrVersionConflict
	}
	return store.ErrNotFound
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}

// --- games ---

type pgGames Pgstore

func (p *pgGames) Create(ctx context.Context, game *model.Game) error {
	if game.ID == uuid.Nil {
		game.ID = uuid.New()
	}
	now := time.Now()
	if game.CreatedAt.IsZero() {
		game.CreatedAt = now
	}
	game.UpdatedAt = now
	game.Version = 1
	doc, err := marshalDoc(game)
	if err != nil {
		return err
	}
	_, err = p.pool.Exec(ctx,
		`INSERT INTO games (id, config_id, state, version, doc) VALUES ($1, $2, $3, 1, $4)`,
		game.ID, game.ConfigID, int(game.State), doc)
	return err
}

func (p *pgGames) Get(ctx context.Context, id uuid.UUID) (*model.Game, error) {
	var doc []byte
	var version int64
	err := p.pool.QueryRow(ctx,
		`SELECT doc, version FROM games WHERE id = $1`, id).Scan(&doc, &version)
	if err != nil {
		return nil, notFound(err)
	}
	var game model.Game
	if err := unmarshalDoc(doc, &game); err != nil {
		return nil, err
	}
	game.Version = version
	return &game, nil
}

func (p *pgGames) Save(ctx context.Context, game *model.Game) error {
	game.UpdatedAt = time.Now()
	doc, err := marshalDoc(game)
	if err != nil {
		return err
	}
	err = (*Pgstore)(p).guardedUpdate(ctx, "games",
		`UPDATE games SET doc = $3, state = $4, version = version + 1
		 WHERE id = $1 AND version = $2`,
		game.ID, game.Version, doc, int(game.State))
	if err != nil {
		return err
	}
	game.Version++
	return nil
}

func (p *pgGames) Destroy(ctx context.Context, id uuid.UUID) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM games WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (p *pgGames) Find(ctx context.Context, filter store.GameFilter, page store.Page, desc bool) ([]*model.Game, error) {
	var conds []string
	var args []any

	if len(filter.IDs) > 0 {
		args = append(args, filter.IDs)
		conds = append(conds, fmt.Sprintf("g.id = ANY($%d)", len(args)))
	}
	if len(filter.States) > 0 {
		states := make([]int, len(filter.States))
		for i, s := range filter.States {
			states[i] = int(s)
		}
		args = append(args, states)
		conds = append(conds, fmt.Sprintf("g.state = ANY($%d)", len(args)))
	}
	if filter.IsRandom != nil {
		args = append(args, *filter.IsRandom)
		conds = append(conds, fmt.Sprintf("c.is_random = $%d", len(args)))
	}

	query := `SELECT g.doc, g.version FROM games g JOIN configs c ON c.id = g.config_id`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	dir := "ASC"
	if desc {
		dir = "DESC"
	}
	args = append(args, page.Limit, page.Skip)
	query += fmt.Sprintf(" ORDER BY g.seq %s LIMIT $%d OFFSET $%d", dir, len(args)-1, len(args))

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Game
	for rows.Next() {
		var doc []byte
		var version int64
		if err := rows.Scan(&doc, &version); err != nil {
			return nil, err
		}
		var game model.Game
		if err := unmarshalDoc(doc, &game); err != nil {
			return nil, err
		}
		game.Version = version
		out = append(out, &game)
	}
	return out, rows.Err()
}

// --- configs ---

type pgConfigs Pgstore

func (p *pgConfigs) Create(ctx context.Context, config *model.Config) error {
	if config.ID == uuid.Nil {
		config.ID = uuid.New()
	}
	now := time.Now()
	if config.CreatedAt.IsZero() {
		config.CreatedAt = now
	}
	config.UpdatedAt = now
	config.Version = 1
	doc, err := marshalDoc(config)
	if err != nil {
		return err
	}
	_, err = p.pool.Exec(ctx,
		`INSERT INTO configs (id, is_random, version, doc) VALUES ($1, $2, 1, $3)`,
		config.ID, config.IsRandom, doc)
	return err
}

func (p *pgConfigs) Get(ctx context.Context, id uuid.UUID) (*model.Config, error) {
	var doc []byte
	var version int64
	err := p.pool.QueryRow(ctx,
		`SELECT doc, version FROM configs WHERE id = $1`, id).Scan(&doc, &version)
	if err != nil {
		return nil, notFound(err)
	}
	var config model.Config
	if err := unmarshalDoc(doc, &config); err != nil {
		return nil, err
	}
	config.Version = version
	return &config, nil
}

func (p *pgConfigs) Save(ctx context.Context, config *model.Config) error {
	config.UpdatedAt = time.Now()
	doc, err := marshalDoc(config)
	if err != nil {
		return err
	}
	err = (*Pgstore)(p).guardedUpdate(ctx, "configs",
		`UPDATE configs SET doc = $3, is_random = $4, version = version + 1
		 WHERE id = $1 AND version = $2`,
		config.ID, config.Version, doc, config.IsRandom)
	if err != nil {
		return err
	}
	config.Version++
	return nil
}

func (p *pgConfigs) Destroy(ctx context.Context, id uuid.UUID) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM configs WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// --- players ---

type pgPlayers Pgstore

func (p *pgPlayers) Create(ctx context.Context, player *model.Player) error {
	if player.ID == uuid.Nil {
		player.ID = uuid.New()
	}
	now := time.Now()
	if player.CreatedAt.IsZero() {
		player.CreatedAt = now
	}
	player.UpdatedAt = now
	player.Version = 1
	doc, err := marshalDoc(player)
	if err != nil {
		return err
	}
	_, err = p.pool.Exec(ctx,
		`INSERT INTO players (id, game_id, user_id, state, slot, version, doc)
		 VALUES ($1, $2, $3, $4, $5, 1, $6)`,
		player.ID, player.GameID, player.UserID, int(player.State), player.Slot, doc)
	return err
}

func (p *pgPlayers) Get(ctx context.Context, id uuid.UUID) (*model.Player, error) {
	var doc []byte
	var version int64
	err := p.pool.QueryRow(ctx,
		`SELECT doc, version FROM players WHERE id = $1`, id).Scan(&doc, &version)
	if err != nil {
		return nil, notFound(err)
	}
	return scanPlayer(doc, version)
}

func scanPlayer(doc []byte, version int64) (*model.Player, error) {
	var player model.Player
	if err := unmarshalDoc(doc, &player); err != nil {
		return nil, err
	}
	player.Version = version
	return &player, nil
}

func (p *pgPlayers) Save(ctx context.Context, player *model.Player) error {
	player.UpdatedAt = time.Now()
	doc, err := marshalDoc(player)
	if err != nil {
		return err
	}
	err = (*Pgstore)(p).guardedUpdate(ctx, "players",
		`UPDATE players SET doc = $3, state = $4, version = version + 1
		 WHERE id = $1 AND version = $2`,
		player.ID, player.Version, doc, int(player.State))
	if err != nil {
		return err
	}
	player.Version++
	return nil
}

func (p *pgPlayers) Destroy(ctx context.Context, id uuid.UUID) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM players WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (p *pgPlayers) ByGame(ctx context.Context, gameID uuid.UUID) ([]*model.Player, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT doc, version FROM players WHERE game_id = $1 ORDER BY seq ASC`, gameID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Player
	for rows.Next() {
		var doc []byte
		var version int64
		if err := rows.Scan(&doc, &version); err != nil {
			return nil, err
		}
		player, err := scanPlayer(doc, version)
		if err != nil {
			return nil, err
		}
		out = append(out, player)
	}
	return out, rows.Err()
}

func (p *pgPlayers) ActiveByGameAndUser(ctx context.Context, gameID, userID uuid.UUID) (*model.Player, error) {
	var doc []byte
	var version int64
	err := p.pool.QueryRow(ctx,
		`SELECT doc, version FROM players WHERE game_id = $1 AND user_id = $2 AND state = 0`,
		gameID, userID).Scan(&doc, &version)
	if err != nil {
		return nil, notFound(err)
	}
	return scanPlayer(doc, version)
}

func (p *pgPlayers) GameIDsByUser(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT game_id FROM players WHERE user_id = $1 AND state = 0 ORDER BY seq DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (p *pgPlayers) DestroyByGame(ctx context.Context, gameID uuid.UUID) error {
	_, err := p.pool.Exec(ctx, `DELETE FROM players WHERE game_id = $1`, gameID)
	return err
}

// --- turns ---

type pgTurns Pgstore

func (p *pgTurns) Create(ctx context.Context, turn *model.Turn) error {
	if turn.ID == uuid.Nil {
		turn.ID = uuid.New()
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now()
	}
	doc, err := marshalDoc(turn)
	if err != nil {
		return err
	}
	_, err = p.pool.Exec(ctx,
		`INSERT INTO turns (id, game_id, doc) VALUES ($1, $2, $3)`,
		turn.ID, turn.GameID, doc)
	return err
}

func (p *pgTurns) Get(ctx context.Context, id uuid.UUID) (*model.Turn, error) {
	var doc []byte
	err := p.pool.QueryRow(ctx, `SELECT doc FROM turns WHERE id = $1`, id).Scan(&doc)
	if err != nil {
		return nil, notFound(err)
	}
	var turn model.Turn
	if err := unmarshalDoc(doc, &turn); err != nil {
		return nil, err
	}
	return &turn, nil
}

func (p *pgTurns) ByGame(ctx context.Context, gameID uuid.UUID, page store.Page, desc bool) ([]*model.Turn, error) {
	dir := "ASC"
	if desc {
		dir = "DESC"
	}
	rows, err := p.pool.Query(ctx,
		fmt.Sprintf(`SELECT doc FROM turns WHERE game_id = $1 ORDER BY seq %s LIMIT $2 OFFSET $3`, dir),
		gameID, page.Limit, page.Skip)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Turn
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var turn model.Turn
		if err := unmarshalDoc(doc, &turn); err != nil {
			return nil, err
		}
		out = append(out, &turn)
	}
	return out, rows.Err()
}

func (p *pgTurns) LatestByGame(ctx context.Context, gameID uuid.UUID) (*model.Turn, error) {
	var doc []byte
	err := p.pool.QueryRow(ctx,
		`SELECT doc FROM turns WHERE game_id = $1 ORDER BY seq DESC LIMIT 1`, gameID).Scan(&doc)
	if err != nil {
		return nil, notFound(err)
	}
	var turn model.Turn
	if err := unmarshalDoc(doc, &turn); err != nil {
		return nil, err
	}
	return &turn, nil
}

func (p *pgTurns) DestroyByGame(ctx context.Context, gameID uuid.UUID) error {
	_, err := p.pool.Exec(ctx, `DELETE FROM turns WHERE game_id = $1`, gameID)
	return err
}

// --- invites ---

type pgInvites Pgstore

func (p *pgInvites) Create(ctx context.Context, invite *model.Invite) error {
	if invite.ID == uuid.Nil {
		invite.ID = uuid.New()
	}
	if invite.CreatedAt.IsZero() {
		invite.CreatedAt = time.Now()
	}
	doc, err := marshalDoc(invite)
	if err != nil {
		return err
	}
	_, err = p.pool.Exec(ctx,
		`INSERT INTO invites (id, game_id, player_id, doc) VALUES ($1, $2, $3, $4)`,
		invite.ID, invite.GameID, invite.PlayerID, doc)
	return err
}

func (p *pgInvites) Get(ctx context.Context, id uuid.UUID) (*model.Invite, error) {
	var doc []byte
	err := p.pool.QueryRow(ctx, `SELECT doc FROM invites WHERE id = $1`, id).Scan(&doc)
	if err != nil {
		return nil, notFound(err)
	}
	var invite model.Invite
	if err := unmarshalDoc(doc, &invite); err != nil {
		return nil, err
	}
	return &invite, nil
}

func (p *pgInvites) ByPlayer(ctx context.Context, playerID uuid.UUID) (*model.Invite, error) {
	var doc []byte
	err := p.pool.QueryRow(ctx, `SELECT doc FROM invites WHERE player_id = $1`, playerID).Scan(&doc)
	if err != nil {
		return nil, notFound(err)
	}
	var invite model.Invite
	if err := unmarshalDoc(doc, &invite); err != nil {
		return nil, err
	}
	return &invite, nil
}

func (p *pgInvites) DestroyByGame(ctx context.Context, gameID uuid.UUID) error {
	_, err := p.pool.Exec(ctx, `DELETE FROM invites WHERE game_id = $1`, gameID)
	return err
}

// --- contacts ---

type pgContacts Pgstore

func (p *pgContacts) Put(ctx context.Context, ownerID, contactID uuid.UUID) error {
	contact := &model.Contact{
		ID:        uuid.New(),
		OwnerID:   ownerID,
		ContactID: contactID,
		CreatedAt: time.Now(),
	}
	doc, err := marshalDoc(contact)
	if err != nil {
		return err
	}
	_, err = p.pool.Exec(ctx,
		`INSERT INTO contacts (id, owner_id, contact_id, doc) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (owner_id, contact_id) DO NOTHING`,
		contact.ID, ownerID, contactID, doc)
	return err
}

func (p *pgContacts) Delete(ctx context.Context, ownerID, contactID uuid.UUID) (bool, error) {
	tag, err := p.pool.Exec(ctx,
		`DELETE FROM contacts WHERE owner_id = $1 AND contact_id = $2`, ownerID, contactID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (p *pgContacts) ByOwner(ctx context.Context, ownerID uuid.UUID, page store.Page) ([]*model.Contact, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT doc FROM contacts WHERE owner_id = $1 ORDER BY seq DESC LIMIT $2 OFFSET $3`,
		ownerID, page.Limit, page.Skip)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Contact
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var contact model.Contact
		if err := unmarshalDoc(doc, &contact); err != nil {
			return nil, err
		}
		out = append(out, &contact)
	}
	return out, rows.Err()
}

func (p *pgContacts) PurgeAll(ctx context.Context) (int, error) {
	tag, err := p.pool.Exec(ctx, `DELETE FROM contacts`)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// --- users ---

type pgUsers Pgstore

func (p *pgUsers) Create(ctx context.Context, user *model.User) error {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}
	doc, err := marshalDoc(user)
	if err != nil {
		return err
	}
	_, err = p.pool.Exec(ctx,
		`INSERT INTO users (id, display_name, doc) VALUES ($1, $2, $3)`,
		user.ID, user.DisplayName, doc)
	return err
}

func (p *pgUsers) Get(ctx context.Context, id uuid.UUID) (*model.User, error) {
	var doc []byte
	err := p.pool.QueryRow(ctx, `SELECT doc FROM users WHERE id = $1`, id).Scan(&doc)
	if err != nil {
		return nil, notFound(err)
	}
	var user model.User
	if err := unmarshalDoc(doc, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (p *pgUsers) CountByDisplayName(ctx context.Context, name string) (int, error) {
	var n int
	err := p.pool.QueryRow(ctx,
		`SELECT count(*) FROM users WHERE display_name = $1`, name).Scan(&n)
	return n, err
}

func (p *pgUsers) ByDisplayName(ctx context.Context, name string) ([]*model.User, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT doc FROM users WHERE display_name = $1 ORDER BY seq ASC`, name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.User
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var user model.User
		if err := unmarshalDoc(doc, &user); err != nil {
			return nil, err
		}
		out = append(out, &user)
	}
	return out, rows.Err()
}

// --- sessions ---

type pgSessions Pgstore

func (p *pgSessions) Put(ctx context.Context, token string, userID uuid.UUID) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO sessions (token, user_id) VALUES ($1, $2)
		 ON CONFLICT (token) DO UPDATE SET user_id = EXCLUDED.user_id`,
		token, userID)
	return err
}

func (p *pgSessions) UserID(ctx context.Context, token string) (uuid.UUID, error) {
	var id uuid.UUID
	err := p.pool.QueryRow(ctx,
		`SELECT user_id FROM sessions WHERE token = $1`, token).Scan(&id)
	if err != nil {
		return uuid.Nil, notFound(err)
	}
	return id, nil
}

func (p *pgSessions) Delete(ctx context.Context, token string) error {
	_, err := p.pool.Exec(ctx, `DELETE FROM sessions WHERE token = $1`, token)
	return err
}
