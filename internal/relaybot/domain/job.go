package domain

import (
	"fmt"
	"time"
)

type JobState string

const (
	StateRunning         JobState = "RUNNING"
	StateCancelRequested JobState = "CANCEL_REQUESTED"
	StateDone            JobState = "DONE"
	StateFailed          JobState = "FAILED"
)

// Terminal reports whether the state admits no further transitions.
func (s JobState) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// CanTransitionTo reports whether the forward transition s -> next is
// allowed. Transitions are monotonic: RUNNING may move to any of the
// other three, CANCEL_REQUESTED only to a terminal state, and terminal
// states never move again.
func (s JobState) CanTransitionTo(next JobState) bool {
	switch s {
	case StateRunning:
		return next == StateCancelRequested || next == StateDone || next == StateFailed
	case StateCancelRequested:
		return next == StateDone || next == StateFailed
	default:
		return false
	}
}

// FileStats counts the terminal category of every file a job routed.
// Each discovered file lands in exactly one bucket.
type FileStats struct {
	Relayed   int // relayed and deleted
	Skipped   int // over the relay size ceiling, kept on disk
	Abandoned int // cancelled mid-stabilization, kept on disk
	Failed    int // relay failed, deleted anyway
}

func (f FileStats) Total() int {
	return f.Relayed + f.Skipped + f.Abandoned + f.Failed
}

type Job struct {
	ID           string    // Short unique identifier for job tracking
	SourceURL    string    // Remote link being processed, immutable
	UserID       int64     // Platform user who submitted the link
	ChatID       int64     // Chat the status message lives in
	WorkDir      string    // Exclusive on-disk scratch directory
	State        JobState  // Current lifecycle state
	FailureCause string    // Terminal failure description (empty unless FAILED)
	Files        FileStats // Per-file outcome counters
	StartedAt    time.Time // Job creation timestamp
	EndedAt      *time.Time
}

func (j *Job) IsActive() bool {
	return !j.State.Terminal()
}

// MarkCancelRequested flags the job for cooperative cancellation. On a
// job that is already cancelling or already terminal this is a no-op;
// a finished job is never resurrected.
func (j *Job) MarkCancelRequested() {
	if j.State == StateRunning {
		j.State = StateCancelRequested
	}
}

// Complete marks the job done. A cancelled job also ends here, the
// cancellation shows up in the status summary rather than the state.
func (j *Job) Complete() error {
	if !j.State.CanTransitionTo(StateDone) {
		return fmt.Errorf("cannot complete job in state %s", j.State)
	}
	j.State = StateDone
	now := time.Now()
	j.EndedAt = &now
	return nil
}

// Fail marks the job failed with a user-visible cause
func (j *Job) Fail(cause string) error {
	if !j.State.CanTransitionTo(StateFailed) {
		return fmt.Errorf("cannot fail job in state %s", j.State)
	}
	j.State = StateFailed
	j.FailureCause = cause
	now := time.Now()
	j.EndedAt = &now
	return nil
}

// Duration returns how long the job has been running or took to complete
func (j *Job) Duration() time.Duration {
	if j.EndedAt != nil {
		return j.EndedAt.Sub(j.StartedAt)
	}
	return time.Since(j.StartedAt)
}

// DeepCopy creates a deep copy of the job
func (j *Job) DeepCopy() *Job {
	if j == nil {
		return nil
	}

	cp := *j

	if j.EndedAt != nil {
		endedAtCopy := *j.EndedAt
		cp.EndedAt = &endedAtCopy
	}

	return &cp
}
