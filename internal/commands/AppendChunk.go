package commands

import (
	"context"
	"fmt"

	"github.com/the127/blobyard/internal/storageBackends"
)

type AppendChunk struct {
	Repository string
	SessionId  string
	Range      storageBackends.ByteRange
	Data       []byte
}

func HandleAppendChunk(ctx context.Context, command AppendChunk) (*storageBackends.UploadStatus, error) {
	status, err := getBackend(ctx).AppendChunk(ctx, command.Repository, command.SessionId, command.Range, command.Data)
	if err != nil {
		return nil, fmt.Errorf("appending chunk: %w", err)
	}

	return status, nil
}
