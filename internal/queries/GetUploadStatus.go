package queries

import (
	"context"
	"fmt"

	"github.com/the127/blobyard/internal/storageBackends"
)

type GetUploadStatus struct {
	Repository string
	SessionId  string
}

func HandleGetUploadStatus(ctx context.Context, query GetUploadStatus) (*storageBackends.UploadStatus, error) {
	status, err := getBackend(ctx).GetUploadStatus(ctx, query.Repository, query.SessionId)
	if err != nil {
		return nil, fmt.Errorf("getting upload status: %w", err)
	}

	return status, nil
}
