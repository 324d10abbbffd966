// Package probe reads media playback metadata through ffprobe.
package probe

import (
	"context"
	"encoding/json"
	"os/exec"
	"strconv"
	"time"

	"relaybot/pkg/logger"
)

// probeTimeout bounds one ffprobe invocation.
const probeTimeout = 15 * time.Second

// FFProbe shells out to ffprobe for media durations. A host without
// ffprobe still works, durations just come back as zero.
type FFProbe struct {
	binary string
	logger *logger.Logger
}

func NewFFProbe() *FFProbe {
	log := logger.WithField("component", "probe")
	bin, err := exec.LookPath("ffprobe")
	if err != nil {
		log.Warn("ffprobe not found in PATH, media durations will be unavailable")
		bin = ""
	}
	return &FFProbe{binary: bin, logger: log}
}

type probeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Duration returns the playback duration of path, or zero when the
// probe fails, times out or the container carries no duration.
func (p *FFProbe) Duration(ctx context.Context, path string) time.Duration {
	if p.binary == "" {
		return 0
	}
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, p.binary,
		"-v", "quiet", "-print_format", "json", "-show_format", path).Output()
	if err != nil {
		p.logger.Debug("ffprobe failed", "path", path, "error", err)
		return 0
	}

	var parsed probeOutput
	if err := json.Unmarshal(out, &parsed); err != nil {
		p.logger.Debug("ffprobe output unreadable", "path", path, "error", err)
		return 0
	}
	secs, err := strconv.ParseFloat(parsed.Format.Duration, 64)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs * float64(time.Second))
}
