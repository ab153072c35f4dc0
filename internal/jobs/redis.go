package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	delayedSetKey = "jobs:delayed"
	jobKeyPrefix  = "jobs:job:"

	pollInterval = 250 * time.Millisecond
	pollBatch    = 16

	// jobTTL caps how long an orphaned payload hash can linger if the
	// process dies between ZREM and DEL.
	jobTTL = 24 * time.Hour
)

// RedisScheduler keeps pending jobs in a Redis sorted set scored by due time,
// with the payload in a hash per job. A single worker loop polls for due
// members; ZREM arbitrates dispatch so concurrent workers never double-fire.
type RedisScheduler struct {
	Registry

	rdb *redis.Client
	log *logrus.Logger
}

// NewRedisScheduler builds a scheduler over an existing client. Run must be
// started for jobs to fire.
func NewRedisScheduler(rdb *redis.Client, log *logrus.Logger) *RedisScheduler {
	return &RedisScheduler{rdb: rdb, log: log}
}

type jobEnvelope struct {
	Name    string            `json:"name"`
	Payload map[string]string `json:"payload,omitempty"`
}

// Schedule enqueues the job and returns its handle.
func (s *RedisScheduler) Schedule(ctx context.Context, name string, payload map[string]string, delay time.Duration) (Handle, error) {
	id := uuid.New().String()
	body, err := json.Marshal(jobEnvelope{Name: name, Payload: payload})
	if err != nil {
		return "", err
	}

	due := time.Now().Add(delay)
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, jobKeyPrefix+id, body, jobTTL)
	pipe.ZAdd(ctx, delayedSetKey, redis.Z{
		Score:  float64(due.UnixMilli()),
		Member: id,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return "", err
	}

	s.log.WithFields(logrus.Fields{"job": id, "name": name, "delay": delay}).
		Debug("job scheduled")
	return Handle(id), nil
}

// Cancel removes a pending job. Returns false when the job already fired or
// never existed.
func (s *RedisScheduler) Cancel(ctx context.Context, handle Handle) (bool, error) {
	if handle == "" {
		return false, nil
	}
	removed, err := s.rdb.ZRem(ctx, delayedSetKey, string(handle)).Result()
	if err != nil {
		return false, err
	}
	s.rdb.Del(ctx, jobKeyPrefix+string(handle))
	return removed > 0, nil
}

// Pending reports whether a handle still refers to a scheduled job.
func (s *RedisScheduler) Pending(ctx context.Context, handle Handle) (bool, error) {
	_, err := s.rdb.ZScore(ctx, delayedSetKey, string(handle)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Run polls for due jobs until the context is cancelled. Dispatch ownership
// is decided by ZREM: whichever worker removes the member runs the job.
func (s *RedisScheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.drainDue(ctx)
		}
	}
}

func (s *RedisScheduler) drainDue(ctx context.Context) {
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)
	ids, err := s.rdb.ZRangeByScore(ctx, delayedSetKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   now,
		Count: pollBatch,
	}).Result()
	if err != nil {
		if ctx.Err() == nil {
			s.log.WithError(err).Warn("job poll failed")
		}
		return
	}

	for _, id := range ids {
		removed, err := s.rdb.ZRem(ctx, delayedSetKey, id).Result()
		if err != nil || removed == 0 {
			continue // another worker claimed it, or it was cancelled
		}
		s.dispatch(ctx, id)
	}
}

func (s *RedisScheduler) dispatch(ctx context.Context, id string) {
	key := jobKeyPrefix + id
	body, err := s.rdb.Get(ctx, key).Bytes()
	s.rdb.Del(ctx, key)
	if err != nil {
		s.log.WithError(err).WithField("job", id).Warn("job payload missing")
		return
	}

	var env jobEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		s.log.WithError(err).WithField("job", id).Warn("job payload malformed")
		return
	}

	h := s.handler(env.Name)
	if h == nil {
		s.log.WithFields(logrus.Fields{"job": id, "name": env.Name}).
			Warn("no handler for job")
		return
	}

	if err := h(ctx, env.Payload); err != nil {
		if errors.Is(err, ErrObsolete) {
			s.log.WithFields(logrus.Fields{"job": id, "name": env.Name}).
				Debug("job obsolete, skipped")
			return
		}
		s.log.WithError(err).WithFields(logrus.Fields{"job": id, "name": env.Name}).
			Error("job failed")
		return
	}
	s.log.WithFields(logrus.Fields{"job": id, "name": env.Name}).Debug("job done")
}
