package setup

import (
	"context"
	"testing"

	"github.com/The127/ioc"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"
	"github.com/the127/blobyard/internal/config"
	"github.com/the127/blobyard/internal/metrics"
	"github.com/the127/blobyard/internal/services/kv"
	"github.com/the127/blobyard/internal/storageBackends"
	"github.com/the127/blobyard/internal/utils/pointer"
)

type SetupTestSuite struct {
	suite.Suite
}

func TestSetupTestSuite(t *testing.T) {
	t.Parallel()
	suite.Run(t, new(SetupTestSuite))
}

func (s *SetupTestSuite) TestStorageRegistersInstrumentedBackend() {
	// arrange
	dc := ioc.NewDependencyCollection()
	collector := Metrics(dc, config.MetricsConfig{Enabled: pointer.To(true)}, prometheus.NewRegistry())
	s.Require().NotNil(collector)

	// act
	raw := Storage(dc, config.StorageConfig{Mode: config.StorageModeInMemory}, kv.NewMemoryStore(), collector)

	// assert
	registered := ioc.GetDependency[storageBackends.StorageBackend](dc.BuildProvider().NewScope())
	s.NotSame(raw, registered)

	_, err := registered.StartUpload(context.Background(), "lib/app")
	s.Require().NoError(err)
}

func (s *SetupTestSuite) TestMetricsDisabled() {
	// arrange
	dc := ioc.NewDependencyCollection()

	// act
	collector := Metrics(dc, config.MetricsConfig{Enabled: pointer.To(false)}, prometheus.NewRegistry())

	// assert
	s.Nil(collector)
}

func (s *SetupTestSuite) TestStorageWithoutMetricsRegistersRawBackend() {
	// arrange
	dc := ioc.NewDependencyCollection()
	var collector *metrics.Collector

	// act
	raw := Storage(dc, config.StorageConfig{Mode: config.StorageModeKv}, kv.NewMemoryStore(), collector)

	// assert
	registered := ioc.GetDependency[storageBackends.StorageBackend](dc.BuildProvider().NewScope())
	s.Equal(raw, registered)
	_, ok := raw.(storageBackends.Preparer)
	s.True(ok)
}

func (s *SetupTestSuite) TestUnsupportedStorageModePanics() {
	// arrange
	dc := ioc.NewDependencyCollection()

	// act & assert
	s.Panics(func() {
		Storage(dc, config.StorageConfig{Mode: "s3"}, kv.NewMemoryStore(), nil)
	})
}
