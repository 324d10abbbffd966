package state

import (
	"fmt"
	"os"
	"sync"
	"time"

	"relaybot/internal/relaybot/domain"
	"relaybot/internal/relaybot/progress"
	apperrors "relaybot/pkg/errors"
	"relaybot/pkg/logger"
)

// Registry is the arena of live and finished jobs, the only mutable
// structure shared across jobs. One mutex guards the map; the per-job
// record behind each entry carries its own locks, so no blocking I/O
// ever happens while the map lock is held.
type Registry struct {
	tracks map[string]*Track
	mu     sync.RWMutex
	logger *logger.Logger
}

func NewRegistry() *Registry {
	r := &Registry{
		tracks: make(map[string]*Track),
		logger: logger.WithField("component", "registry"),
	}

	r.logger.Debug("registry initialized")
	return r
}

// Create registers a new job and returns its live record. The job is
// stored as a copy; callers mutate it only through the returned Track.
func (r *Registry) Create(job *domain.Job, handle progress.Handle) (*Track, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tracks[job.ID]; exists {
		r.logger.Warn("job id collision on create", "jobId", job.ID)
		return nil, fmt.Errorf("job %s already exists", job.ID)
	}

	tk := newTrack(job, handle)
	r.tracks[job.ID] = tk

	r.logger.Debug("job registered", "jobId", job.ID, "url", job.SourceURL, "totalJobs", len(r.tracks))
	return tk, nil
}

// Get returns a copy of the job's current state.
func (r *Registry) Get(id string) (*domain.Job, bool) {
	r.mu.RLock()
	tk, exists := r.tracks[id]
	r.mu.RUnlock()

	if !exists {
		return nil, false
	}
	return tk.Job(), true
}

// Progress returns the job's most recent progress snapshot.
func (r *Registry) Progress(id string) (progress.Snapshot, bool) {
	r.mu.RLock()
	tk, exists := r.tracks[id]
	r.mu.RUnlock()

	if !exists {
		return progress.Snapshot{}, false
	}
	return tk.LastSnapshot(), true
}

// RequestCancel flags the job for cooperative cancellation and fires
// its context. Returns ErrJobNotFound when the id is unknown.
// Cancelling a job that already reached a terminal state is a no-op;
// the state is never resurrected.
func (r *Registry) RequestCancel(id string) error {
	r.mu.RLock()
	tk, exists := r.tracks[id]
	r.mu.RUnlock()

	if !exists {
		r.logger.Debug("cancel requested for unknown job", "jobId", id)
		return apperrors.ErrJobNotFound
	}

	_ = tk.Update(func(j *domain.Job) error {
		j.MarkCancelRequested()
		return nil
	})
	tk.Cancel()

	r.logger.Info("cancel requested", "jobId", id)
	return nil
}

// List returns copies of all jobs, running and finished.
func (r *Registry) List() []*domain.Job {
	r.mu.RLock()
	defer r.mu.RUnlock()

	jobs := make([]*domain.Job, 0, len(r.tracks))
	for _, tk := range r.tracks {
		jobs = append(jobs, tk.Job())
	}
	return jobs
}

// ReapOlderThan removes the working directories of jobs whose start
// time predates the cutoff, whatever state they are in, and drops the
// registry records of the terminal ones among them. Victims are
// collected under the lock; directory removal happens after it is
// released. Returns the number of directories removed.
func (r *Registry) ReapOlderThan(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)

	type victim struct {
		id      string
		workDir string
	}
	var victims []victim

	r.mu.Lock()
	for id, tk := range r.tracks {
		job := tk.Job()
		if !job.StartedAt.Before(cutoff) {
			continue
		}
		victims = append(victims, victim{id: id, workDir: job.WorkDir})
		if job.State.Terminal() {
			delete(r.tracks, id)
		}
	}
	r.mu.Unlock()

	removed := 0
	for _, v := range victims {
		if v.workDir == "" {
			continue
		}
		if _, err := os.Stat(v.workDir); os.IsNotExist(err) {
			continue
		}
		if err := os.RemoveAll(v.workDir); err != nil {
			r.logger.Warn("failed to remove stale workdir", "jobId", v.id, "dir", v.workDir, "error", err)
			continue
		}
		removed++
		r.logger.Info("reaped stale workdir", "jobId", v.id, "dir", v.workDir)
	}

	return removed
}
