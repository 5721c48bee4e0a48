package jobs

import (
	"context"
	"sync"

	"github.com/jonboulle/clockwork"
)

// Registry is an in-process Store guarded by a single mutex.
type Registry struct {
	mu    sync.Mutex
	clock clockwork.Clock
	jobs  map[string]*Job
}

// NewRegistry creates an empty registry. A nil clock uses real time.
func NewRegistry(clock clockwork.Clock) *Registry {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Registry{clock: clock, jobs: make(map[string]*Job)}
}

func (r *Registry) Create(_ context.Context) (Job, error) {
	job := New(r.clock.Now().UTC())

	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[job.ID] = &job
	return job.Clone(), nil
}

func (r *Registry) Update(_ context.Context, id string, mutate func(*Job)) (Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok {
		return Job{}, ErrNotFound
	}
	mutate(job)
	job.UpdatedAt = r.clock.Now().UTC()
	return job.Clone(), nil
}

func (r *Registry) AppendUpdate(ctx context.Context, id string, u Update, limit int) error {
	_, err := r.Update(ctx, id, func(j *Job) { j.PushUpdate(u, limit) })
	return err
}

func (r *Registry) Get(_ context.Context, id string) (Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok {
		return Job{}, ErrNotFound
	}
	return job.Clone(), nil
}
