package pipeline

import (
	"context"
	"os"
	"time"
)

// WaitStable polls path's size every poll until the size has held
// still for a full window, then returns true. A missing path is
// treated as not yet arrived and keeps the wait alive; if the entry
// disappears mid-wait the settle clock restarts when it comes back.
// There is no upper bound on the wait, only ctx cancellation, which
// returns false immediately.
//
// onSample, when non-nil, is invoked with the observed size each time
// it changes, which gives callers a cheap growth feed for progress
// reporting.
func WaitStable(ctx context.Context, path string, window, poll time.Duration, onSample func(size int64)) bool {
	var (
		lastSize       int64 = -1
		unchangedSince time.Time
	)
	for {
		if ctx.Err() != nil {
			return false
		}
		info, err := os.Stat(path)
		if err != nil {
			lastSize = -1
			unchangedSince = time.Time{}
			if !sleep(ctx, poll) {
				return false
			}
			continue
		}
		now := time.Now()
		if size := info.Size(); size != lastSize {
			lastSize = size
			unchangedSince = now
			if onSample != nil {
				onSample(size)
			}
		} else if now.Sub(unchangedSince) >= window {
			return true
		}
		if !sleep(ctx, poll) {
			return false
		}
	}
}

// sleep blocks for d and reports false if ctx fired first.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
