// Package fetch retrieves Mega.nz links by shelling out to the megadl
// tool from megatools.
package fetch

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strings"

	apperrors "relaybot/pkg/errors"
	"relaybot/pkg/logger"
)

// existsRegex matches megadl's refusal to overwrite a local path.
var existsRegex = regexp.MustCompile(`File already exists at (.+)`)

// MegaClient runs megadl for link retrieval. One client is shared by
// all jobs; megadl itself is invoked once per retrieval attempt.
type MegaClient struct {
	binary string
	logger *logger.Logger
}

// NewMegaClient locates megadl in PATH and fails when it is missing,
// so a misconfigured host is caught at startup rather than on the
// first job.
func NewMegaClient() (*MegaClient, error) {
	bin, err := exec.LookPath("megadl")
	if err != nil {
		return nil, fmt.Errorf("megadl not found in PATH: %w", err)
	}
	return &MegaClient{
		binary: bin,
		logger: logger.WithField("component", "fetch"),
	}, nil
}

// Fetch downloads url into destDir and blocks until megadl exits. The
// process is killed when ctx fires. A refusal to overwrite an existing
// local path is returned as *errors.ConflictError so the caller can
// clear it and retry.
func (c *MegaClient) Fetch(ctx context.Context, url, destDir string) error {
	cmd := exec.CommandContext(ctx, c.binary, "--path", destDir, url)

	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	c.logger.Debug("starting megadl", "url", url, "destDir", destDir)
	err := cmd.Run()
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	text := output.String()
	if m := existsRegex.FindStringSubmatch(text); m != nil {
		return &apperrors.ConflictError{Path: strings.TrimSpace(m[1])}
	}
	if msg := lastNonEmptyLine(text); msg != "" {
		c.logger.Warn("megadl failed", "url", url, "output", msg)
		return fmt.Errorf("megadl failed: %s", msg)
	}
	return fmt.Errorf("megadl failed: %w", err)
}

// lastNonEmptyLine extracts the most useful line of tool output;
// megadl prints progress noise first and the actual error last.
func lastNonEmptyLine(text string) string {
	lines := strings.Split(text, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return ""
}
