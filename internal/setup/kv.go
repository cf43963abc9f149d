package setup

import (
	"fmt"

	"github.com/The127/ioc"
	"github.com/the127/blobyard/internal/config"
	"github.com/the127/blobyard/internal/services/kv"
)

func Kv(dc *ioc.DependencyCollection, kvConfig config.KvConfig) kv.Store {
	var store kv.Store

	switch kvConfig.Mode {
	case config.KvModeInMemory:
		store = kv.NewMemoryStore()

	case config.KvModeRedis:
		store = kv.NewRedisStore(kvConfig)

	default:
		panic(fmt.Errorf("unsupported kv mode: %s", kvConfig.Mode))
	}

	ioc.RegisterSingleton(dc, func(_ *ioc.DependencyProvider) kv.Store {
		return store
	})

	return store
}
