package setup

import (
	"fmt"

	"github.com/The127/ioc"
	"github.com/the127/blobyard/internal/config"
	"github.com/the127/blobyard/internal/metrics"
	"github.com/the127/blobyard/internal/services/kv"
	"github.com/the127/blobyard/internal/storageBackends"
	"github.com/the127/blobyard/internal/storageBackends/directory"
	"github.com/the127/blobyard/internal/storageBackends/inmemory"
	"github.com/the127/blobyard/internal/storageBackends/kvstore"
	"github.com/the127/blobyard/internal/storageBackends/postgres"
)

// Storage selects the backend once for the whole process. The returned
// backend is the unwrapped variant so callers can check for Preparer.
func Storage(dc *ioc.DependencyCollection, c config.StorageConfig, kvStore kv.Store, collector *metrics.Collector) storageBackends.StorageBackend {
	backend, err := newBackend(c, kvStore)
	if err != nil {
		panic(fmt.Errorf("failed to create storage backend: %w", err))
	}

	registered := backend
	if collector != nil {
		registered = metrics.Instrument(backend, collector)
	}

	ioc.RegisterSingleton(dc, func(_ *ioc.DependencyProvider) storageBackends.StorageBackend {
		return registered
	})

	return backend
}

func newBackend(c config.StorageConfig, kvStore kv.Store) (storageBackends.StorageBackend, error) {
	options := storageBackends.Options{
		VerifyDigest: c.VerifyDigest,
	}

	switch c.Mode {
	case config.StorageModeInMemory:
		return inmemory.New(options)

	case config.StorageModeDirectory:
		return directory.New(c.Directory, options)

	case config.StorageModeKv:
		return kvstore.New(kvStore, options)

	case config.StorageModePostgres:
		return postgres.New(c.Postgres, options)

	default:
		return nil, fmt.Errorf("unsupported storage mode: %s", c.Mode)
	}
}
