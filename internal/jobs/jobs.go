// Package jobs runs named, cancellable background jobs. The zone
// controller uses it for per-zone countdowns; cancellation is synchronous
// so a caller can tear down a job before touching the state it guards.
package jobs

import (
	"context"
	"errors"
	"sync"
	"time"
)

var ErrJobRunning = errors.New("a job with this key is already running")

type JobFunc func(ctx context.Context)

type job struct {
	cancel context.CancelFunc
	done   chan struct{}
}

type JobManager struct {
	mu   sync.Mutex
	jobs map[string]*job
}

func NewJobManager() *JobManager {
	return &JobManager{
		jobs: make(map[string]*job),
	}
}

// StartJob launches execute on its own goroutine with a context that is
// cancelled on CancelJob, CancelAll, or after timeoutPeriod. A second job
// with the same key is rejected while the first is running.
func (m *JobManager) StartJob(key string, timeoutPeriod time.Duration, execute JobFunc) error {
	m.mu.Lock()
	if _, exists := m.jobs[key]; exists {
		m.mu.Unlock()
		return ErrJobRunning
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeoutPeriod)
	j := &job{cancel: cancel, done: make(chan struct{})}
	m.jobs[key] = j
	m.mu.Unlock()

	go func() {
		defer close(j.done)
		defer cancel()
		// remove only our own entry; the key may already belong to a
		// successor job started after we were cancelled
		defer m.removeIf(key, j)

		execute(ctx)
	}()

	return nil
}

// CancelJob cancels the job's context and joins its goroutine: when it
// returns, execute has returned and no further work runs under that key.
// Calling it from inside the job's own execute would deadlock.
func (m *JobManager) CancelJob(key string) bool {
	m.mu.Lock()
	j, exists := m.jobs[key]
	delete(m.jobs, key)
	m.mu.Unlock()

	if !exists {
		return false
	}

	j.cancel()
	<-j.done
	return true
}

func (m *JobManager) CancelAll() {
	m.mu.Lock()
	stopped := make([]*job, 0, len(m.jobs))
	for key, j := range m.jobs {
		stopped = append(stopped, j)
		delete(m.jobs, key)
	}
	m.mu.Unlock()

	for _, j := range stopped {
		j.cancel()
		<-j.done
	}
}

func (m *JobManager) IsRunning(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, exists := m.jobs[key]
	return exists
}

func (m *JobManager) removeIf(key string, j *job) {
	m.mu.Lock()
	if current, exists := m.jobs[key]; exists && current == j {
		delete(m.jobs, key)
	}
	m.mu.Unlock()
}
