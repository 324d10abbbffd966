package state

import (
	"os"
	"path/filepath"
	"time"

	"relaybot/pkg/logger"
)

// SweepWorkdirs removes entries directly under root whose modification
// time predates maxAge. This catches directories left behind by runs
// that crashed before their jobs ever reached the registry; directories
// a live job is still writing into have fresh mtimes and are spared.
// Returns the number of entries removed.
func SweepWorkdirs(root string, maxAge time.Duration) int {
	log := logger.WithField("component", "cleanup")
	cutoff := time.Now().Add(-maxAge)

	entries, err := os.ReadDir(root)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn("failed to read download root", "dir", root, "error", err)
		}
		return 0
	}

	removed := 0
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}

		path := filepath.Join(root, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			log.Warn("failed to remove stale entry", "path", path, "error", err)
			continue
		}
		removed++
		log.Info("swept stale entry", "path", path, "age", time.Since(info.ModTime()).Round(time.Minute))
	}

	return removed
}
