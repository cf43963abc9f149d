package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/avast/retry-go"
	"github.com/the127/blobyard/internal/storageBackends"
)

type CompleteUpload struct {
	Repository string
	SessionId  string
	Data       []byte
	Digest     string

	// Range is nil for monolithic uploads; the offset is then not checked.
	Range *storageBackends.ByteRange

	// AllowMissingDigest turns a completion without digest into an append
	// that leaves the session in progress.
	AllowMissingDigest bool
}

// CompleteUploadResponse has Completed set when a blob was created and
// Resumed set when a digestless request only appended its data.
type CompleteUploadResponse struct {
	Completed *storageBackends.CompletedUpload
	Resumed   *storageBackends.UploadStatus
}

func HandleCompleteUpload(ctx context.Context, command CompleteUpload) (*CompleteUploadResponse, error) {
	backend := getBackend(ctx)

	if command.Digest == "" && command.AllowMissingDigest {
		status, err := appendWithoutDigest(ctx, backend, command)
		if err != nil {
			return nil, err
		}

		return &CompleteUploadResponse{Resumed: status}, nil
	}

	completed, err := backend.CompleteUpload(ctx, command.Repository, command.SessionId, command.Data, command.Digest, command.Range)
	if err != nil {
		return nil, fmt.Errorf("completing upload: %w", err)
	}

	return &CompleteUploadResponse{Completed: completed}, nil
}

const digestlessAppendAttempts = 10

func appendWithoutDigest(ctx context.Context, backend storageBackends.StorageBackend, command CompleteUpload) (*storageBackends.UploadStatus, error) {
	if command.Range != nil {
		status, err := backend.AppendChunk(ctx, command.Repository, command.SessionId, *command.Range, command.Data)
		if err != nil {
			return nil, fmt.Errorf("appending digestless completion: %w", err)
		}

		return status, nil
	}

	current, err := backend.GetUploadStatus(ctx, command.Repository, command.SessionId)
	if err != nil {
		return nil, fmt.Errorf("getting upload status: %w", err)
	}

	// without a range the data goes wherever the upload currently ends, so a
	// concurrent append only moves the offset this request lands at
	offset := current.Length

	var status *storageBackends.UploadStatus
	err = retry.Do(
		func() error {
			var appendErr error
			status, appendErr = backend.AppendChunk(ctx, command.Repository, command.SessionId, rangeAt(offset, len(command.Data)), command.Data)
			return appendErr
		},
		retry.Attempts(digestlessAppendAttempts),
		retry.Delay(0),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			var conflict *storageBackends.OffsetConflictError
			if errors.As(err, &conflict) {
				offset = conflict.CurrentLength
				return true
			}
			return false
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("appending digestless completion: %w", err)
	}

	return status, nil
}

func rangeAt(offset int64, length int) storageBackends.ByteRange {
	end := offset + int64(length) - 1
	if end < offset {
		end = offset
	}

	return storageBackends.ByteRange{Start: offset, End: end}
}
