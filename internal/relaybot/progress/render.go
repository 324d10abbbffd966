package progress

import (
	"fmt"
	"time"

	"relaybot/pkg/format"
)

// Render helpers build every status text the pipeline emits. All texts
// target the platform's Markdown parse mode; file names go in backticks.

func RenderJobStarted(jobID, url string) string {
	return fmt.Sprintf("🔗 Job `%s` started\nProcessing `%s`", jobID, url)
}

func RenderQueued(jobID string) string {
	return fmt.Sprintf("🔔 Job queued: `%s` — I'll update this message as I download & upload.", jobID)
}

// RenderFetching shows a file still growing in the working directory.
// The total is unknown during a fetch, so there is no bar, just the
// received byte count and the observed growth rate.
func RenderFetching(name string, received int64, rate float64) string {
	text := fmt.Sprintf("⬇️ Downloading: `%s`\n\n📦 Received: `%s`", name, format.Size(received))
	if rate > 0 {
		text += fmt.Sprintf("\n⚡ Speed: `%s`", format.Rate(rate))
	}
	return text
}

// RenderFetched announces a stabilized file. mediaDuration is zero for
// non-media files and for probe failures.
func RenderFetched(name string, size int64, mediaDuration time.Duration) string {
	text := fmt.Sprintf("✅ Downloaded: `%s`\n📦 Size: `%s`\n", name, format.Size(size))
	if mediaDuration > 0 {
		text += fmt.Sprintf("⏱ Duration: `%s`\n", format.HMS(mediaDuration))
	}
	return text
}

// RenderTooLarge extends a fetched announcement with the skip notice
// for files over the relay ceiling. The local path stays in the text
// because the file is deliberately left on disk.
func RenderTooLarge(fetchedText string, limit int64, path string) string {
	return fetchedText + fmt.Sprintf("\n⚠️ File exceeds relay limit (`%s`). Skipping upload.\nLocal path: `%s`", format.Size(limit), path)
}

func RenderRelaying(name string, done, total int64, rate float64, eta time.Duration, etaKnown bool, barLen int) string {
	pct := 0.0
	if total > 0 {
		pct = float64(done) / float64(total) * 100
	}
	etaText := "--:--:--"
	if etaKnown {
		etaText = format.HMS(eta)
	}
	return fmt.Sprintf("📤 Uploading: `%s`\n\nProgress: %s `%s`\n⚡ Speed: `%s` | ETA: `%s`\n",
		name, format.Percent(pct), format.Bar(pct, barLen), format.Rate(rate), etaText)
}

func RenderRelayComplete(name string, size int64, elapsed time.Duration, barLen int) string {
	avg := 0.0
	if secs := elapsed.Seconds(); secs > 0 {
		avg = float64(size) / secs
	}
	return fmt.Sprintf("✅ Upload complete: `%s`\n\nProgress: 100%% `%s`\nAvg speed: `%s` | Time: `%s`",
		name, format.Bar(100, barLen), format.Rate(avg), format.HMS(elapsed))
}

// RenderRelayed is the plain completion notice used when the transport
// could not report live progress.
func RenderRelayed(name string, size int64) string {
	return fmt.Sprintf("✅ Uploaded: `%s`\nSize: `%s`", name, format.Size(size))
}

func RenderRelayFailed(name string, err error) string {
	return fmt.Sprintf("⚠️ Failed to upload `%s`: %v", name, err)
}

// RenderComplete is the job's terminal summary after a full drain.
func RenderComplete(relayed, skipped, failed int) string {
	if relayed == 0 && skipped == 0 && failed == 0 {
		return "⚠️ No downloadable content found."
	}
	text := fmt.Sprintf("🏁 Job complete: `%d` file(s) relayed.", relayed)
	if skipped > 0 {
		text += fmt.Sprintf("\n⚠️ Skipped (too large): `%d`", skipped)
	}
	if failed > 0 {
		text += fmt.Sprintf("\n⚠️ Failed to relay: `%d`", failed)
	}
	return text
}

// RenderCancelled is the terminal summary of a cancelled job.
func RenderCancelled(relayed, abandoned int) string {
	text := fmt.Sprintf("🛑 Job cancelled. `%d` file(s) relayed before cancel.", relayed)
	if abandoned > 0 {
		text += fmt.Sprintf("\n📂 `%d` unfinished file(s) left on disk.", abandoned)
	}
	return text
}

// RenderFailure is the terminal summary of a failed job.
func RenderFailure(cause string) string {
	return fmt.Sprintf("❌ Job failed: %s", cause)
}
