package commands

import (
	"context"
	"fmt"

	"github.com/the127/blobyard/internal/storageBackends"
)

type DeleteUpload struct {
	Repository string
	SessionId  string
}

func HandleDeleteUpload(ctx context.Context, command DeleteUpload) (*storageBackends.UploadStatus, error) {
	status, err := getBackend(ctx).DeleteUpload(ctx, command.Repository, command.SessionId)
	if err != nil {
		return nil, fmt.Errorf("deleting upload: %w", err)
	}

	return status, nil
}
