package progress

import "time"

// Phase identifies which leg of the pipeline a snapshot describes.
type Phase string

const (
	PhaseFetching Phase = "FETCHING"
	PhaseRelaying Phase = "RELAYING"
	PhaseComplete Phase = "COMPLETE"
	PhaseFailed   Phase = "FAILED"
)

// Unknown marks a byte total or ETA that cannot be computed yet.
const Unknown = -1

// Snapshot is one rendered progress observation. It is emitted through
// a Reporter and never persisted.
type Snapshot struct {
	Phase      Phase
	Final      bool // terminal for its phase, bypasses the emit throttle
	Label      string
	BytesDone  int64
	BytesTotal int64 // Unknown while a fetch is still growing the file
	Rate       float64
	ETA        time.Duration // Unknown when the rate gives no estimate
	Text       string        // fully rendered status text
}

// Handle is the single editable status slot a job renders into. A job
// owns exactly one handle for its whole life. Implementations report
// platform "content unchanged" rejections as errors.ErrNotModified.
type Handle interface {
	Edit(text string) error
}
