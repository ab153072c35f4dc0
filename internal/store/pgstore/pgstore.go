// Package pgstore backs the store interfaces with PostgreSQL. Records are
// kept as jsonb documents alongside the handful of columns the queries
// filter and sort on; optimistic versioning rides in a separate column
// guarded by conditional updates.
package pgstore

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // database/sql driver for goose
	"github.com/pressly/goose/v3"
	"github.com/sirupsen/logrus"

	"paperback-server/internal/store"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Pgstore owns the connection pool. Use New to build one together with the
// repository bundle.
type Pgstore struct {
	pool *pgxpool.Pool
	log  *logrus.Logger
}

// New connects, migrates, and returns the repository bundle.
func New(ctx context.Context, dsn string, log *logrus.Logger) (*Pgstore, *store.Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("pgstore: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("pgstore: ping: %w", err)
	}

	p := &Pgstore{pool: pool, log: log}
	if err := p.migrate(dsn); err != nil {
		pool.Close()
		return nil, nil, err
	}

	s := &store.Store{
		Games:    (*pgGames)(p),
		Configs:  (*pgConfigs)(p),
		Players:  (*pgPlayers)(p),
		Turns:    (*pgTurns)(p),
		Invites:  (*pgInvites)(p),
		Contacts: (*pgContacts)(p),
		Users:    (*pgUsers)(p),
		Sessions: (*pgSessions)(p),
	}
	return p, s, nil
}

// migrate applies the embedded goose migrations. Goose wants database/sql,
// so migrations run over a short-lived stdlib connection.
func (p *Pgstore) migrate(dsn string) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("pgstore: open for migrate: %w", err)
	}
	defer db.Close()

	goose.SetBaseFS(migrations)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("pgstore: set dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("pgstore: migrate: %w", err)
	}
	p.log.Info("database migrations applied")
	return nil
}

// Close releases the pool.
func (p *Pgstore) Close() {
	p.pool.Close()
}

// Health reports pool liveness and basic stats for the health endpoint.
func (p *Pgstore) Health(ctx context.Context) map[string]string {
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	if err := p.pool.Ping(ctx); err != nil {
		return map[string]string{"status": "down", "error": err.Error()}
	}
	stat := p.pool.Stat()
	return map[string]string{
		"status":           "up",
		"total_conns":      fmt.Sprint(stat.TotalConns()),
		"idle_conns":       fmt.Sprint(stat.IdleConns()),
		"acquired_conns":   fmt.Sprint(stat.AcquiredConns()),
		"max_conns":        fmt.Sprint(stat.MaxConns()),
		"acquire_count":    fmt.Sprint(stat.AcquireCount()),
		"acquire_duration": stat.AcquireDuration().String(),
	}
}

func marshalDoc(v any) ([]byte, error) {
	doc, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("pgstore: marshal: %w", err)
	}
	return doc, nil
}

func unmarshalDoc(doc []byte, v any) error {
	if err := json.Unmarshal(doc, v); err != nil {
		return fmt.Errorf("pgstore: unmarshal: %w", err)
	}
	return nil
}
