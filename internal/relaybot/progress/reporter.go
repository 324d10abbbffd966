package progress

import (
	stderrors "errors"
	"sync"
	"time"

	"relaybot/pkg/errors"
	"relaybot/pkg/logger"
)

// Reporter is the throttled, idempotent sink between the pipeline and
// a job's status handle. At most one emission per updateInterval
// reaches the handle, except snapshots marked Final, which always go
// through so the user never ends on a stale penultimate message. All
// emissions to one handle are serialized, so progress callbacks firing
// on transport goroutines cannot interleave with the pipeline driver.
//
// Handle implementations must be comparable; the reporter keys its
// per-handle state by the handle value.
type Reporter struct {
	interval time.Duration
	logger   *logger.Logger

	mu    sync.Mutex
	slots map[Handle]*slot
}

type slot struct {
	mu       sync.Mutex
	lastEmit time.Time
	lastText string
}

func NewReporter(updateInterval time.Duration) *Reporter {
	return &Reporter{
		interval: updateInterval,
		logger:   logger.WithField("component", "reporter"),
		slots:    make(map[Handle]*slot),
	}
}

// Emit renders snap onto the handle, subject to throttling and text
// deduplication. A transport "content unchanged" rejection counts as
// success. Edit failures are surfaced but callers are expected to
// treat them as non-fatal; a lost status update never aborts a job.
func (r *Reporter) Emit(h Handle, snap Snapshot) error {
	if h == nil {
		return nil
	}

	sl := r.slotFor(h)
	sl.mu.Lock()
	defer sl.mu.Unlock()

	now := time.Now()
	if !snap.Final {
		if now.Sub(sl.lastEmit) < r.interval {
			return nil
		}
		if snap.Text == sl.lastText {
			return nil
		}
	}

	err := h.Edit(snap.Text)
	if err != nil && !stderrors.Is(err, errors.ErrNotModified) {
		r.logger.Warn("status edit failed", "phase", string(snap.Phase), "error", err)
		return err
	}

	sl.lastEmit = now
	sl.lastText = snap.Text

	if snap.Final && (snap.Phase == PhaseComplete || snap.Phase == PhaseFailed) {
		r.forget(h)
	}
	return nil
}

func (r *Reporter) slotFor(h Handle) *slot {
	r.mu.Lock()
	defer r.mu.Unlock()

	sl, ok := r.slots[h]
	if !ok {
		sl = &slot{}
		r.slots[h] = sl
	}
	return sl
}

// forget drops per-handle state once the job's terminal snapshot is
// out, the handle will never be written again.
func (r *Reporter) forget(h Handle) {
	r.mu.Lock()
	delete(r.slots, h)
	r.mu.Unlock()
}
