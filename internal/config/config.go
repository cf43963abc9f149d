package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/the127/blobyard/internal/args"
	"github.com/the127/blobyard/internal/utils/pointer"
	"github.com/the127/blobyard/internal/utils/validate"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Server  ServerConfig
	Storage StorageConfig
	Kv      KvConfig
	Metrics MetricsConfig
}

type ServerConfig struct {
	Port           int `validate:"min=1,max=65535"`
	Host           string
	ExternalUrl    string `validate:"url"`
	ExternalDomain string
	AllowedOrigins []string
}

type StorageMode string

const (
	StorageModeInMemory  StorageMode = "memory"
	StorageModeDirectory StorageMode = "directory"
	StorageModeKv        StorageMode = "kv"
	StorageModePostgres  StorageMode = "postgres"
)

type StorageConfig struct {
	Mode      StorageMode `validate:"oneof=memory directory kv postgres"`
	Directory DirectoryStorageConfig
	Postgres  PostgresStorageConfig

	// VerifyDigest recomputes the digest of completed uploads.
	VerifyDigest bool

	// AllowDigestlessCompletion turns a PUT without digest into an append.
	AllowDigestlessCompletion bool
}

type DirectoryStorageConfig struct {
	Path     string
	TempPath string
}

type PostgresStorageConfig struct {
	Host     string
	Port     int
	Database string
	Username string
	Password string
	SslMode  string `koanf:"sslmode"`
}

type KvMode string

const (
	KvModeInMemory KvMode = "memory"
	KvModeRedis    KvMode = "redis"
)

type KvConfig struct {
	Mode  KvMode `validate:"oneof=memory redis"`
	Redis struct {
		Host     string
		Port     int
		Username string
		Password string
		Database int
	}
}

type MetricsConfig struct {
	Enabled *bool
	Path    string `validate:"startswith=/"`
}

func (c MetricsConfig) IsEnabled() bool {
	return pointer.DerefOrZero(c.Enabled)
}

var C Config

var k = koanf.New(".")

func Init() {
	if args.ConfigFilePath() != "" {
		_, err := os.Stat(args.ConfigFilePath())
		if err != nil {
			panic(fmt.Errorf("failed to stat config file: %w", err))
		}

		err = k.Load(file.Provider(args.ConfigFilePath()), yaml.Parser())
		if err != nil {
			panic(fmt.Errorf("failed to load config file: %w", err))
		}
	}

	err := k.Load(env.Provider(".", env.Opt{
		Prefix:        "BLOBYARD_",
		TransformFunc: transformEnv,
	}), nil)
	if err != nil {
		panic(fmt.Errorf("failed to load env provider: %w", err))
	}

	err = k.Unmarshal("", &C)
	if err != nil {
		panic(fmt.Errorf("failed to unmarshal config: %w", err))
	}

	setDefaultsOrPanic()

	err = validate.Validate(C)
	if err != nil {
		panic(fmt.Errorf("invalid config: %w", err))
	}
}

func transformEnv(k, v string) (string, any) {
	k = strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(k, "BLOBYARD_")), "_", ".")

	if strings.Contains(v, " ") {
		return k, strings.Split(v, " ")
	}

	return k, v
}

func setDefaultsOrPanic() {
	setServerDefaultsOrPanic()
	setStorageDefaultsOrPanic()
	setKvDefaultsOrPanic()
	setMetricsDefaults()
}

func setServerDefaultsOrPanic() {
	if C.Server.Host == "" {
		if args.IsProduction() {
			panic("Server.Host must be set in production.")
		}

		C.Server.Host = "localhost"
	}

	if C.Server.Port == 0 {
		C.Server.Port = 8080
	}

	if C.Server.ExternalUrl == "" {
		if args.IsProduction() {
			panic("Server.ExternalUrl must be set in production.")
		}

		C.Server.ExternalUrl = fmt.Sprintf("http://%s:%d", C.Server.Host, C.Server.Port)
	}

	if C.Server.ExternalDomain == "" {
		externalUrl, err := url.Parse(C.Server.ExternalUrl)
		if err != nil {
			panic(fmt.Errorf("failed to parse external url: %w", err))
		}

		C.Server.ExternalDomain = externalUrl.Hostname()
	}
}

func setStorageDefaultsOrPanic() {
	if C.Storage.Mode == "" {
		if args.IsProduction() {
			panic("Storage.Mode must be set in production.")
		}

		C.Storage.Mode = StorageModeInMemory
	}

	switch C.Storage.Mode {
	case StorageModeInMemory, StorageModeKv:
		return

	case StorageModeDirectory:
		setStorageDirectoryDefaultsOrPanic()

	case StorageModePostgres:
		setStoragePostgresDefaultsOrPanic()

	default:
		panic(fmt.Errorf("unsupported storage mode: %s", C.Storage.Mode))
	}
}

func setStorageDirectoryDefaultsOrPanic() {
	if C.Storage.Directory.Path == "" {
		panic("Storage.Directory.Path must be set.")
	}

	if C.Storage.Directory.TempPath == "" {
		C.Storage.Directory.TempPath = C.Storage.Directory.Path + "/.uploads"
	}
}

func setStoragePostgresDefaultsOrPanic() {
	if C.Storage.Postgres.Host == "" {
		if args.IsProduction() {
			panic("Storage.Postgres.Host must be set in production.")
		}

		C.Storage.Postgres.Host = "localhost"
	}

	if C.Storage.Postgres.Port == 0 {
		C.Storage.Postgres.Port = 5432
	}

	if C.Storage.Postgres.Database == "" {
		C.Storage.Postgres.Database = "blobyard"
	}

	if C.Storage.Postgres.Username == "" {
		panic("Storage.Postgres.Username must be set.")
	}

	if C.Storage.Postgres.SslMode == "" {
		if args.IsProduction() {
			C.Storage.Postgres.SslMode = "require"
		} else {
			C.Storage.Postgres.SslMode = "disable"
		}
	}
}

func setKvDefaultsOrPanic() {
	if C.Kv.Mode == "" {
		if args.IsProduction() {
			panic("Kv.Mode must be set in production.")
		}

		C.Kv.Mode = KvModeInMemory
	}

	switch C.Kv.Mode {
	case KvModeInMemory:
		return

	case KvModeRedis:
		setKvRedisDefaultsOrPanic()

	default:
		panic(fmt.Errorf("unsupported kv mode: %s", C.Kv.Mode))
	}
}

func setKvRedisDefaultsOrPanic() {
	if C.Kv.Redis.Host == "" {
		if args.IsProduction() {
			panic("Kv.Redis.Host must be set in production.")
		}

		C.Kv.Redis.Host = "localhost"
	}

	if C.Kv.Redis.Port == 0 {
		C.Kv.Redis.Port = 6379
	}
}

func setMetricsDefaults() {
	if C.Metrics.Enabled == nil {
		C.Metrics.Enabled = pointer.To(true)
	}

	if C.Metrics.Path == "" {
		C.Metrics.Path = "/metrics"
	}
}
