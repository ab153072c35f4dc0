package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"paperback-server/internal/engine"
	"paperback-server/internal/jobs"
	"paperback-server/internal/notify"
	"paperback-server/internal/server"
	"paperback-server/internal/store/pgstore"
)

func main() {
	log := logrus.New()
	if level, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil {
		log.SetLevel(level)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pg, st, err := pgstore.New(ctx, os.Getenv("DATABASE_URL"), log)
	if err != nil {
		log.WithError(err).Fatal("database setup failed")
	}
	defer pg.Close()

	redisOpts, err := redis.ParseURL(os.Getenv("REDIS_URL"))
	if err != nil {
		log.WithError(err).Fatal("invalid REDIS_URL")
	}
	rdb := redis.NewClient(redisOpts)
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.WithError(err).Fatal("redis ping failed")
	}

	sched := jobs.NewRedisScheduler(rdb, log)
	hub := notify.NewHub(log)

	eng := engine.New(st, sched, hub, log, os.Getenv("SERVER_ROOT"))
	eng.RegisterJobs(sched)
	go sched.Run(ctx)

	port, _ := strconv.Atoi(os.Getenv("PORT"))
	if port == 0 {
		port = 8080
	}
	httpServer := server.New(log, st, eng, hub, pg, server.Config{
		Port:      port,
		MasterKey: os.Getenv("MASTER_KEY"),
	})

	go func() {
		<-ctx.Done()
		log.Info("shutdown signal received")
		stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("http server forced to shut down")
		}
	}()

	log.WithField("port", port).Info("server listening")
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.WithError(err).Fatal("http server error")
	}
	log.Info("graceful shutdown complete")
}
