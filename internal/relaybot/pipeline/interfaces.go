package pipeline

import (
	"context"
	"time"
)

// Fetcher retrieves a remote link's content into destDir, populating
// the directory incrementally while it runs. The call blocks until the
// retrieval finishes and must return promptly once ctx is cancelled.
// A refusal to overwrite an existing local path is reported as
// *errors.ConflictError so the caller can clear it and retry.
type Fetcher interface {
	Fetch(ctx context.Context, url, destDir string) error
}

// Metadata travels with a file into the relay transport.
type Metadata struct {
	Caption string
}

// SendResult reports how a relay was performed.
type SendResult struct {
	// LiveProgress is false when the transport had to fall back to a
	// mode that cannot invoke the progress callback.
	LiveProgress bool
}

// ProgressFunc receives monotonically non-decreasing sent byte counts
// while a relay is in flight. It may be invoked from the transport's
// own goroutine.
type ProgressFunc func(bytesSent, bytesTotal int64)

// RelayClient sends one local file to a destination chat, synchronously.
type RelayClient interface {
	Send(ctx context.Context, chatID int64, filePath string, meta Metadata, onProgress ProgressFunc) (SendResult, error)
}

// Prober reports a media file's playback duration, zero when unknown.
type Prober interface {
	Duration(ctx context.Context, path string) time.Duration
}
