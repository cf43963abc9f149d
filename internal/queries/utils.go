package queries

import (
	"context"

	"github.com/The127/ioc"
	"github.com/the127/blobyard/internal/middlewares"
	"github.com/the127/blobyard/internal/storageBackends"
)

func getBackend(ctx context.Context) storageBackends.StorageBackend {
	scope := middlewares.GetScope(ctx)
	return ioc.GetDependency[storageBackends.StorageBackend](scope)
}
