package errors

import (
	"errors"
	"fmt"
)

var (
	ErrJobNotFound = errors.New("job not found")

	// ErrNotModified is returned by status editors when the platform
	// rejects an edit because the text is already current. Callers
	// treat it as success.
	ErrNotModified = errors.New("message is not modified")
)

// ConflictError reports that the retrieval tool refused to run because
// a file from an earlier attempt already exists locally. Path is the
// location the tool reported.
type ConflictError struct {
	Path string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("local file already exists: %s", e.Path)
}

// IsConflict reports whether err is or wraps a ConflictError.
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}

// ConflictPath extracts the conflicting path from err, if any.
func ConflictPath(err error) (string, bool) {
	var ce *ConflictError
	if errors.As(err, &ce) {
		return ce.Path, true
	}
	return "", false
}
