package fetch_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relaybot/internal/relaybot/fetch"
	apperrors "relaybot/pkg/errors"
)

// stubMegadl installs a shell script named megadl at the front of PATH
// and returns a client that resolves to it.
func stubMegadl(t *testing.T, script string) *fetch.MegaClient {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "megadl")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0755))
	t.Setenv("PATH", dir+string(os.PathListSeparator)+os.Getenv("PATH"))

	client, err := fetch.NewMegaClient()
	require.NoError(t, err)
	return client
}

func TestNewMegaClientMissingBinary(t *testing.T) {
	t.Setenv("PATH", t.TempDir())

	_, err := fetch.NewMegaClient()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "megadl not found")
}

func TestFetchPassesArguments(t *testing.T) {
	argsFile := filepath.Join(t.TempDir(), "args.txt")
	client := stubMegadl(t, fmt.Sprintf("echo \"$@\" > %q\nexit 0\n", argsFile))

	dest := t.TempDir()
	require.NoError(t, client.Fetch(context.Background(), "https://mega.nz/file/abc#key", dest))

	args, err := os.ReadFile(argsFile)
	require.NoError(t, err)
	assert.Contains(t, string(args), "--path "+dest)
	assert.Contains(t, string(args), "https://mega.nz/file/abc#key")
}

func TestFetchConflictDetected(t *testing.T) {
	client := stubMegadl(t, "echo 'ERROR: File already exists at /tmp/existing.bin' >&2\nexit 1\n")

	err := client.Fetch(context.Background(), "https://mega.nz/file/abc#key", t.TempDir())
	require.Error(t, err)
	require.True(t, apperrors.IsConflict(err))

	path, ok := apperrors.ConflictPath(err)
	require.True(t, ok)
	assert.Equal(t, "/tmp/existing.bin", path)
}

func TestFetchUnknownErrorSurfacesLastLine(t *testing.T) {
	client := stubMegadl(t, "echo 'transferring...'\necho 'ERROR: Login failed' >&2\nexit 2\n")

	err := client.Fetch(context.Background(), "https://mega.nz/file/abc#key", t.TempDir())
	require.Error(t, err)
	assert.False(t, apperrors.IsConflict(err))
	assert.Contains(t, err.Error(), "Login failed")
}

func TestFetchCancelKillsProcess(t *testing.T) {
	client := stubMegadl(t, "sleep 30\nexit 0\n")

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := client.Fetch(ctx, "https://mega.nz/file/abc#key", t.TempDir())
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, elapsed, 5*time.Second, "megadl should be killed, not waited out")
}

func TestFetchSilentFailureWrapsExitError(t *testing.T) {
	client := stubMegadl(t, "exit 3\n")

	err := client.Fetch(context.Background(), "https://mega.nz/file/abc#key", t.TempDir())
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "megadl failed:"))
}
