package queries

import (
	"context"
	"fmt"

	"github.com/the127/blobyard/internal/storageBackends"
)

type HeadBlob struct {
	Repository string
	Digest     string
}

func HandleHeadBlob(ctx context.Context, query HeadBlob) (*storageBackends.BlobInfo, error) {
	info, err := getBackend(ctx).HeadBlob(ctx, query.Repository, query.Digest)
	if err != nil {
		return nil, fmt.Errorf("checking blob: %w", err)
	}

	return info, nil
}
