package commands

import (
	"context"
	"fmt"

	"github.com/the127/blobyard/internal/storageBackends"
)

type StartUpload struct {
	Repository string
}

func HandleStartUpload(ctx context.Context, command StartUpload) (*storageBackends.UploadStatus, error) {
	status, err := getBackend(ctx).StartUpload(ctx, command.Repository)
	if err != nil {
		return nil, fmt.Errorf("starting upload: %w", err)
	}

	return status, nil
}
