package state

import (
	"context"
	"sync"

	"relaybot/internal/relaybot/domain"
	"relaybot/internal/relaybot/progress"
	"relaybot/pkg/logger"
)

// Track is the live execution record for one job. It owns the job's
// cancellation context, the dedup set of already-routed paths, the
// status handle and the most recent progress snapshot. The pipeline
// driver and external command handlers share it through the Registry.
type Track struct {
	id string

	job   *domain.Job
	jobMu sync.RWMutex

	processed map[string]struct{}
	procMu    sync.Mutex

	handle progress.Handle

	snap   progress.Snapshot
	snapMu sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc

	logger *logger.Logger
}

func newTrack(job *domain.Job, handle progress.Handle) *Track {
	ctx, cancel := context.WithCancel(context.Background())

	return &Track{
		id:        job.ID,
		job:       job.DeepCopy(),
		processed: make(map[string]struct{}),
		handle:    handle,
		ctx:       ctx,
		cancel:    cancel,
		logger:    logger.WithField("jobId", job.ID),
	}
}

func (t *Track) ID() string {
	return t.id
}

// Context is the job's cancellation signal. It fires when cancel is
// requested and never otherwise.
func (t *Track) Context() context.Context {
	return t.ctx
}

// Handle returns the job's single status slot.
func (t *Track) Handle() progress.Handle {
	return t.handle
}

// Job returns a deep copy of the current job state.
func (t *Track) Job() *domain.Job {
	t.jobMu.RLock()
	defer t.jobMu.RUnlock()

	return t.job.DeepCopy()
}

// Update applies fn to the job record under the job lock. fn must not
// block; state transitions and counter bumps only.
func (t *Track) Update(fn func(*domain.Job) error) error {
	t.jobMu.Lock()
	defer t.jobMu.Unlock()

	return fn(t.job)
}

// MarkProcessed adds path to the processed set. Returns true when the
// path was newly added, false when some other routing of the same path
// got there first. Check and insert happen under one lock.
func (t *Track) MarkProcessed(path string) bool {
	t.procMu.Lock()
	defer t.procMu.Unlock()

	if _, seen := t.processed[path]; seen {
		return false
	}
	t.processed[path] = struct{}{}
	return true
}

// IsProcessed reports membership without inserting.
func (t *Track) IsProcessed(path string) bool {
	t.procMu.Lock()
	defer t.procMu.Unlock()

	_, seen := t.processed[path]
	return seen
}

func (t *Track) ProcessedCount() int {
	t.procMu.Lock()
	defer t.procMu.Unlock()

	return len(t.processed)
}

// SetSnapshot records the most recent progress observation so status
// queries can show live numbers without touching the pipeline.
func (t *Track) SetSnapshot(s progress.Snapshot) {
	t.snapMu.Lock()
	t.snap = s
	t.snapMu.Unlock()
}

func (t *Track) LastSnapshot() progress.Snapshot {
	t.snapMu.RLock()
	defer t.snapMu.RUnlock()

	return t.snap
}

// Cancel fires the job's cancellation context. Idempotent.
func (t *Track) Cancel() {
	t.cancel()
}

// CancelRequested reports whether the cancellation context has fired.
func (t *Track) CancelRequested() bool {
	select {
	case <-t.ctx.Done():
		return true
	default:
		return false
	}
}
