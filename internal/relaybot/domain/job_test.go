package domain

import (
	"testing"
	"time"
)

func TestStateTransitionMatrix(t *testing.T) {
	tests := []struct {
		from    JobState
		to      JobState
		allowed bool
	}{
		{StateRunning, StateCancelRequested, true},
		{StateRunning, StateDone, true},
		{StateRunning, StateFailed, true},
		{StateCancelRequested, StateDone, true},
		{StateCancelRequested, StateFailed, true},
		{StateCancelRequested, StateRunning, false},
		{StateDone, StateFailed, false},
		{StateDone, StateRunning, false},
		{StateDone, StateCancelRequested, false},
		{StateFailed, StateDone, false},
		{StateFailed, StateCancelRequested, false},
	}

	for _, tt := range tests {
		if got := tt.from.CanTransitionTo(tt.to); got != tt.allowed {
			t.Errorf("CanTransitionTo(%s -> %s) = %v, want %v", tt.from, tt.to, got, tt.allowed)
		}
	}
}

func TestJobLifecycle(t *testing.T) {
	job := &Job{
		ID:        "ab12cd34",
		SourceURL: "https://mega.nz/file/AAAA#BBBB",
		State:     StateRunning,
		StartedAt: time.Now(),
	}

	// RUNNING -> CANCEL_REQUESTED
	job.MarkCancelRequested()
	if job.State != StateCancelRequested {
		t.Errorf("Expected state CANCEL_REQUESTED, got %v", job.State)
	}

	// cancelling again changes nothing
	job.MarkCancelRequested()
	if job.State != StateCancelRequested {
		t.Errorf("Expected state CANCEL_REQUESTED after repeat, got %v", job.State)
	}

	// CANCEL_REQUESTED -> DONE (a cancelled job still completes)
	if err := job.Complete(); err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if job.State != StateDone {
		t.Errorf("Expected state DONE, got %v", job.State)
	}
	if job.EndedAt == nil {
		t.Error("Expected end time to be set")
	}

	// no transition out of DONE
	if err := job.Fail("too late"); err == nil {
		t.Error("Expected error failing a DONE job")
	}
	if job.State != StateDone {
		t.Errorf("DONE state must not change, got %v", job.State)
	}

	// cancel on a finished job does not resurrect it
	job.MarkCancelRequested()
	if job.State != StateDone {
		t.Errorf("cancel on DONE job mutated state to %v", job.State)
	}
}

func TestJobFail(t *testing.T) {
	tests := []struct {
		name        string
		initial     JobState
		expectError bool
	}{
		{"RUNNING to FAILED", StateRunning, false},
		{"CANCEL_REQUESTED to FAILED", StateCancelRequested, false},
		{"DONE to FAILED (invalid)", StateDone, true},
		{"FAILED to FAILED (invalid)", StateFailed, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := &Job{ID: "test-fail", State: tt.initial}

			err := job.Fail("retrieval exploded")

			if tt.expectError {
				if err == nil {
					t.Error("Expected error but got none")
				}
				return
			}
			if err != nil {
				t.Errorf("Expected no error, got %v", err)
			}
			if job.State != StateFailed {
				t.Errorf("Expected state FAILED, got %v", job.State)
			}
			if job.FailureCause != "retrieval exploded" {
				t.Errorf("Expected failure cause to be recorded, got %q", job.FailureCause)
			}
			if job.EndedAt == nil {
				t.Error("Expected end time to be set")
			}
		})
	}
}

func TestStateTerminal(t *testing.T) {
	tests := []struct {
		state    JobState
		terminal bool
	}{
		{StateRunning, false},
		{StateCancelRequested, false},
		{StateDone, true},
		{StateFailed, true},
	}

	for _, tt := range tests {
		if got := tt.state.Terminal(); got != tt.terminal {
			t.Errorf("Terminal() for %v: expected %v, got %v", tt.state, tt.terminal, got)
		}
	}
}

func TestFileStatsTotal(t *testing.T) {
	stats := FileStats{Relayed: 3, Skipped: 1, Abandoned: 2, Failed: 1}
	if stats.Total() != 7 {
		t.Errorf("Total() = %d, want 7", stats.Total())
	}
}

func TestJobDeepCopy(t *testing.T) {
	endedAt := time.Now()
	original := &Job{
		ID:        "ab12cd34",
		SourceURL: "https://mega.nz/folder/AAAA#BBBB",
		UserID:    42,
		ChatID:    -100123,
		WorkDir:   "/data/downloads/user_42_ab12cd34",
		State:     StateRunning,
		Files:     FileStats{Relayed: 2},
		StartedAt: time.Now(),
		EndedAt:   &endedAt,
	}

	cp := original.DeepCopy()

	if cp.ID != original.ID || cp.SourceURL != original.SourceURL || cp.WorkDir != original.WorkDir {
		t.Error("fields not copied correctly")
	}

	// state independence
	original.State = StateDone
	if cp.State != StateRunning {
		t.Error("Deep copy failed: state was not properly copied")
	}

	// counter independence
	original.Files.Relayed = 99
	if cp.Files.Relayed != 2 {
		t.Error("Deep copy failed: file stats shared")
	}

	// time pointer independence
	if original.EndedAt == cp.EndedAt {
		t.Error("EndedAt should be different pointers")
	}
	if cp.EndedAt == nil || !cp.EndedAt.Equal(*original.EndedAt) {
		t.Error("EndedAt values should be equal")
	}

	var nilJob *Job
	if nilJob.DeepCopy() != nil {
		t.Error("DeepCopy of nil should be nil")
	}
}
