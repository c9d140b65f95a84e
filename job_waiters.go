package main

import (
	"context"
	"sort"
	"sync"
)

// jobRegistry tracks in-flight conversions. Waiters are notified once the
// last running job leaves the registry.
type jobRegistry struct {
	mu      sync.Mutex
	jobs    map[*ConversionJob]struct{}
	waiters []chan struct{}
}

func newJobRegistry() *jobRegistry {
	return &jobRegistry{jobs: make(map[*ConversionJob]struct{})}
}

func (r *jobRegistry) add(job *ConversionJob) {
	r.mu.Lock()
	r.jobs[job] = struct{}{}
	r.mu.Unlock()
}

func (r *jobRegistry) remove(job *ConversionJob) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.jobs, job)
	if len(r.jobs) > 0 {
		return
	}
	for _, ch := range r.waiters {
		close(ch)
	}
	r.waiters = nil
}

// Len returns the number of running jobs.
func (r *jobRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.jobs)
}

// Snapshot lists running jobs, oldest first.
func (r *jobRegistry) Snapshot() []JobView {
	r.mu.Lock()
	jobs := make([]*ConversionJob, 0, len(r.jobs))
	for j := range r.jobs {
		jobs = append(jobs, j)
	}
	r.mu.Unlock()

	sort.Slice(jobs, func(a, b int) bool { return jobs[a].StartedAt.Before(jobs[b].StartedAt) })
	views := make([]JobView, 0, len(jobs))
	for _, j := range jobs {
		views = append(views, j.View())
	}
	return views
}

// Wait blocks until no job is running or ctx is done.
func (r *jobRegistry) Wait(ctx context.Context) error {
	r.mu.Lock()
	if len(r.jobs) == 0 {
		r.mu.Unlock()
		return nil
	}
	ch := make(chan struct{})
	r.waiters = append(r.waiters, ch)
	r.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		r.unregisterWaiter(ch)
		return ctx.Err()
	}
}

func (r *jobRegistry) unregisterWaiter(ch chan struct{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, c := range r.waiters {
		if c == ch {
			r.waiters = append(r.waiters[:i], r.waiters[i+1:]...)
			return
		}
	}
}
