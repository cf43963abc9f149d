package config

import (
	"testing"

	"github.com/stretchr/testify/suite"
	"github.com/the127/blobyard/internal/utils/pointer"
)

type ConfigTestSuite struct {
	suite.Suite
}

func TestConfigTestSuite(t *testing.T) {
	suite.Run(t, new(ConfigTestSuite))
}

func (s *ConfigTestSuite) SetupTest() {
	C = Config{}
}

func (s *ConfigTestSuite) TestTransformEnv() {
	// act
	key, value := transformEnv("BLOBYARD_STORAGE_VERIFYDIGEST", "true")

	// assert
	s.Equal("storage.verifydigest", key)
	s.Equal("true", value)
}

func (s *ConfigTestSuite) TestTransformEnvSplitsLists() {
	// act
	key, value := transformEnv("BLOBYARD_SERVER_ALLOWEDORIGINS", "http://a http://b")

	// assert
	s.Equal("server.allowedorigins", key)
	s.Equal([]string{"http://a", "http://b"}, value)
}

func (s *ConfigTestSuite) TestDevelopmentDefaults() {
	// act
	setDefaultsOrPanic()

	// assert
	s.Equal("localhost", C.Server.Host)
	s.Equal(8080, C.Server.Port)
	s.Equal("http://localhost:8080", C.Server.ExternalUrl)
	s.Equal("localhost", C.Server.ExternalDomain)
	s.Equal(StorageModeInMemory, C.Storage.Mode)
	s.Equal(KvModeInMemory, C.Kv.Mode)
	s.Equal("/metrics", C.Metrics.Path)
	s.True(C.Metrics.IsEnabled())
	s.False(C.Storage.VerifyDigest)
	s.False(C.Storage.AllowDigestlessCompletion)
}

func (s *ConfigTestSuite) TestDirectoryDefaults() {
	// arrange
	C.Storage.Mode = StorageModeDirectory
	C.Storage.Directory.Path = "/var/lib/blobyard"

	// act
	setDefaultsOrPanic()

	// assert
	s.Equal("/var/lib/blobyard/.uploads", C.Storage.Directory.TempPath)
}

func (s *ConfigTestSuite) TestDirectoryRequiresPath() {
	// arrange
	C.Storage.Mode = StorageModeDirectory

	// act & assert
	s.Panics(setDefaultsOrPanic)
}

func (s *ConfigTestSuite) TestPostgresDefaults() {
	// arrange
	C.Storage.Mode = StorageModePostgres
	C.Storage.Postgres.Username = "blobyard"

	// act
	setDefaultsOrPanic()

	// assert
	s.Equal("localhost", C.Storage.Postgres.Host)
	s.Equal(5432, C.Storage.Postgres.Port)
	s.Equal("blobyard", C.Storage.Postgres.Database)
	s.Equal("disable", C.Storage.Postgres.SslMode)
}

func (s *ConfigTestSuite) TestUnsupportedStorageModePanics() {
	// arrange
	C.Storage.Mode = "s3"

	// act & assert
	s.Panics(setDefaultsOrPanic)
}

func (s *ConfigTestSuite) TestRedisDefaults() {
	// arrange
	C.Kv.Mode = KvModeRedis

	// act
	setDefaultsOrPanic()

	// assert
	s.Equal("localhost", C.Kv.Redis.Host)
	s.Equal(6379, C.Kv.Redis.Port)
}

func (s *ConfigTestSuite) TestMetricsCanBeDisabled() {
	// arrange
	C.Metrics.Enabled = pointer.To(false)

	// act
	setDefaultsOrPanic()

	// assert
	s.False(C.Metrics.IsEnabled())
}
