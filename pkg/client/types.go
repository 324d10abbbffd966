// Package client talks to the relaybot admin API. The types here are
// the wire shapes the server emits; the CLI renders them.
package client

import "time"

// FileStats mirrors the per-file outcome counters of a job.
type FileStats struct {
	Relayed   int `json:"relayed"`
	Skipped   int `json:"skipped"`
	Abandoned int `json:"abandoned"`
	Failed    int `json:"failed"`
}

// Job is one job record as reported by the admin API.
type Job struct {
	ID           string     `json:"id"`
	SourceURL    string     `json:"source_url"`
	UserID       int64      `json:"user_id"`
	ChatID       int64      `json:"chat_id"`
	WorkDir      string     `json:"work_dir"`
	State        string     `json:"state"`
	FailureCause string     `json:"failure_cause,omitempty"`
	Files        FileStats  `json:"files"`
	StartedAt    time.Time  `json:"started_at"`
	EndedAt      *time.Time `json:"ended_at,omitempty"`
	Duration     string     `json:"duration"`
}

// Progress is the most recent progress observation of a job.
type Progress struct {
	Phase      string  `json:"phase"`
	Final      bool    `json:"final"`
	Label      string  `json:"label,omitempty"`
	BytesDone  int64   `json:"bytes_done"`
	BytesTotal int64   `json:"bytes_total"`
	Rate       float64 `json:"rate"`
	Text       string  `json:"text,omitempty"`
}

// JobDetail is a job plus its live progress, when any was recorded.
type JobDetail struct {
	Job
	Progress *Progress `json:"progress,omitempty"`
}

// Health is the daemon liveness report.
type Health struct {
	Status     string `json:"status"`
	ActiveJobs int    `json:"active_jobs"`
}

// CleanupResult reports how many workdirs a cleanup pass removed.
type CleanupResult struct {
	Removed int `json:"removed"`
}
