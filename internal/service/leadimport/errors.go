package leadimport

import (
	"errors"
	"fmt"
)

// Sentinel errors for the lead import service layer.
var (
	// ErrStoreUnavailable means the lead store cannot be reached at all. It is
	// fatal to the remainder of a batch, unlike a per-record ValidationError.
	ErrStoreUnavailable  = errors.New("lead store unavailable")
	ErrInvalidTransition = errors.New("invalid import session transition")
	ErrSessionNotFound   = errors.New("import session not found")
	ErrCommitInProgress  = errors.New("another import is being committed for this organization")
	ErrFileTooLarge      = errors.New("file exceeds the upload size limit")
	ErrNoStorage         = errors.New("upload storage is not configured")
	ErrNoExtractor       = errors.New("screenshot extraction is not configured")
)

// ValidationError is a per-record rejection by the lead store. The batch
// records it and moves on.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// IsUnavailable reports whether err means the lead store is unreachable.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}
