// Package jobs provides the delayed-task collaborator behind lobby and turn
// timeouts: schedule a named job with a payload and a delay, keep the handle,
// cancel it when the deadline no longer applies.
package jobs

import (
	"context"
	"errors"
	"time"
)

// Handle identifies a scheduled job for cancellation. Opaque to callers; the
// engine stores it on the Game record.
type Handle string

// Handler executes a due job. Returning an error wrapping ErrObsolete means
// the job's precondition was invalidated by a faster operation; the worker
// logs it quietly and never retries.
type Handler func(ctx context.Context, payload map[string]string) error

// ErrObsolete marks a job that fired against state which has already moved
// on. Expected under racing cancellation, not an operator concern.
var ErrObsolete = errors.New("jobs: job obsolete")

// Job names dispatched by the engine.
const (
	JobLobbyTimeout = "game:lobbyTimeout"
	JobTurnTimeout  = "game:turnTimeout"
)

// Payload keys.
const (
	PayloadGameID   = "gameId"
	PayloadPlayerID = "playerId"
)

// Scheduler is the delayed-job collaborator.
type Scheduler interface {
	// Schedule enqueues a named job to run after delay.
	Schedule(ctx context.Context, name string, payload map[string]string, delay time.Duration) (Handle, error)
	// Cancel removes a pending job, reporting whether it was still pending.
	// Cancelling an already-fired or unknown handle is not an error.
	Cancel(ctx context.Context, handle Handle) (bool, error)
}

// Registry maps job names to handlers. Both scheduler implementations embed
// one; registration happens at wiring time, before the worker starts.
type Registry struct {
	handlers map[string]Handler
}

// Register binds a handler to a job name, replacing any previous binding.
func (r *Registry) Register(name string, h Handler) {
	if r.handlers == nil {
		r.handlers = make(map[string]Handler)
	}
	r.handlers[name] = h
}

func (r *Registry) handler(name string) Handler {
	return r.handlers[name]
}
