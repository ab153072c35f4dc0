// Package server exposes the engine over HTTP: an RPC-style function
// endpoint, a websocket push channel, and a health probe.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"paperback-server/internal/engine"
	"paperback-server/internal/notify"
	"paperback-server/internal/store"
)

// HealthReporter is implemented by stores that can report backend health.
type HealthReporter interface {
	Health(ctx context.Context) map[string]string
}

// Config carries the server's wiring-time settings.
type Config struct {
	Port int

	// MasterKey guards administrative functions. Empty disables them.
	MasterKey string

	// RateLimit is requests per caller per second on the function endpoint.
	RateLimit int
}

type Server struct {
	log     *logrus.Logger
	store   *store.Store
	engine  *engine.Engine
	hub     *notify.Hub
	limiter *RateLimiter
	health  HealthReporter
	cfg     Config
}

// New assembles the HTTP server around an engine.
func New(log *logrus.Logger, st *store.Store, eng *engine.Engine, hub *notify.Hub, health HealthReporter, cfg Config) *http.Server {
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 20
	}
	s := &Server{
		log:     log,
		store:   st,
		engine:  eng,
		hub:     hub,
		limiter: NewRateLimiter(cfg.RateLimit, time.Second),
		health:  health,
		cfg:     cfg,
	}
	go s.limiterCleanupTask()

	return &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.RegisterRoutes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
}

// limiterCleanupTask drops rate-limit state for callers that went quiet.
func (s *Server) limiterCleanupTask() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		s.limiter.Cleanup()
	}
}
