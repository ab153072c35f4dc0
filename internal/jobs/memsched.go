package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemScheduler records scheduled jobs without running them; tests fire due
// jobs by hand with Fire. It implements Scheduler.
type MemScheduler struct {
	Registry

	mu   sync.Mutex
	jobs map[Handle]*MemJob
}

// MemJob is a captured schedule call.
type MemJob struct {
	Handle  Handle
	Name    string
	Payload map[string]string
	Delay   time.Duration
}

// NewMemScheduler returns an empty manual scheduler.
func NewMemScheduler() *MemScheduler {
	return &MemScheduler{jobs: make(map[Handle]*MemJob)}
}

func (s *MemScheduler) Schedule(_ context.Context, name string, payload map[string]string, delay time.Duration) (Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := Handle(uuid.New().String())
	s.jobs[h] = &MemJob{Handle: h, Name: name, Payload: payload, Delay: delay}
	return h, nil
}

func (s *MemScheduler) Cancel(_ context.Context, handle Handle) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[handle]; !ok {
		return false, nil
	}
	delete(s.jobs, handle)
	return true, nil
}

// Pending reports whether the handle still refers to a scheduled job.
func (s *MemScheduler) Pending(handle Handle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.jobs[handle]
	return ok
}

// Job returns the captured job for a handle, or nil.
func (s *MemScheduler) Job(handle Handle) *MemJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[handle]
}

// ByName returns all pending jobs with the given name, in no fixed order.
func (s *MemScheduler) ByName(name string) []*MemJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*MemJob
	for _, j := range s.jobs {
		if j.Name == name {
			out = append(out, j)
		}
	}
	return out
}

// Fire removes the job and runs its registered handler, returning the
// handler's error. Firing an unknown handle returns ErrObsolete.
func (s *MemScheduler) Fire(ctx context.Context, handle Handle) error {
	s.mu.Lock()
	job, ok := s.jobs[handle]
	if ok {
		delete(s.jobs, handle)
	}
	s.mu.Unlock()

	if !ok {
		return ErrObsolete
	}
	h := s.handler(job.Name)
	if h == nil {
		return ErrObsolete
	}
	return h(ctx, job.Payload)
}
