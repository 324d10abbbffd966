// Package format renders byte counts, rates, durations and progress
// bars for status messages.
package format

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

const (
	barFilled = "▓"
	barEmpty  = "░"
)

// Size renders a byte count in binary units ("1.5 GiB").
func Size(n int64) string {
	if n <= 0 {
		return "0 B"
	}
	return humanize.IBytes(uint64(n))
}

// Rate renders a transfer rate ("12 MiB/s").
func Rate(bytesPerSec float64) string {
	if bytesPerSec <= 0 {
		return "0 B/s"
	}
	return humanize.IBytes(uint64(bytesPerSec)) + "/s"
}

// HMS renders a duration as HH:MM:SS. Negative durations render as zero.
func HMS(d time.Duration) string {
	secs := int64(math.Round(d.Seconds()))
	if secs < 0 {
		secs = 0
	}
	return fmt.Sprintf("%02d:%02d:%02d", secs/3600, (secs%3600)/60, secs%60)
}

// Bar renders a progress bar of the given rune length, pct clamped to
// [0, 100].
func Bar(pct float64, length int) string {
	if length < 1 {
		return ""
	}
	pct = math.Max(0, math.Min(100, pct))
	filled := int(math.Round(float64(length) * pct / 100.0))
	return strings.Repeat(barFilled, filled) + strings.Repeat(barEmpty, length-filled)
}

// Percent renders a percentage the way the progress lines expect it,
// right-aligned with one decimal ("  7.5%").
func Percent(pct float64) string {
	return fmt.Sprintf("%5.1f%%", math.Max(0, math.Min(100, pct)))
}
