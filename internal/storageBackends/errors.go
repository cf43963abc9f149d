package storageBackends

import (
	"errors"
	"fmt"
)

var ErrNotFound = errors.New("not found")
var ErrRepositoryNotFound = fmt.Errorf("repository not found: %w", ErrNotFound)
var ErrSessionNotFound = fmt.Errorf("upload session not found: %w", ErrNotFound)
var ErrBlobNotFound = fmt.Errorf("blob not found: %w", ErrNotFound)

var ErrDigestMissing = errors.New("digest is required")
var ErrDigestInvalid = errors.New("digest does not match uploaded content")

// OffsetConflictError rejects an append whose start offset differs from the
// session length. The session is left untouched.
type OffsetConflictError struct {
	CurrentLength int64
	Offset        int64
}

func NewOffsetConflictError(currentLength int64, offset int64) *OffsetConflictError {
	return &OffsetConflictError{
		CurrentLength: currentLength,
		Offset:        offset,
	}
}

func (e *OffsetConflictError) Error() string {
	return fmt.Sprintf("offset conflict: upload is at %d, chunk starts at %d", e.CurrentLength, e.Offset)
}

// CheckOffset returns an *OffsetConflictError unless offset continues the
// upload exactly.
func CheckOffset(currentLength int64, offset int64) error {
	if offset != currentLength {
		return NewOffsetConflictError(currentLength, offset)
	}

	return nil
}
