package config

import (
	"time"

	"github.com/rs/zerolog"
)

type Config interface {
	EnvConfig
	HTTPConfig
	StorageConfig
	QueryConfig
	FakeAPIConfig
}

type EnvConfig interface {
	GetAppName() string
	GetEnv() string
	GetLogLevel() zerolog.Level
}

type HTTPConfig interface {
	GetAPIBaseURL() string
	GetHTTPTimeout() time.Duration
	GetUserAgent() string
}

type StorageConfig interface {
	GetStorageDriver() string
	GetStoragePath() string
	GetRedisURL() string
}

type QueryConfig interface {
	GetQueryStaleTime() time.Duration
}

type FakeAPIConfig interface {
	GetFakeAPIAddr() string
	GetFakeAPISecret() string
}

type mainConfig struct {
	EnvVars
}

// New returns a configuration backed by environment variables only.
func New() Config {
	return mainConfig{}
}

// Load resolves configuration in priority order: defaults -> file -> env.
// An empty path falls back to the CONFIG_FILE variable; when both are
// empty it is equivalent to New.
func Load(path string) (Config, error) {
	if path == "" {
		path = GetEnv(configFileVar, "")
	}
	if path == "" {
		return New(), nil
	}
	file, err := readFile(path)
	if err != nil {
		return nil, err
	}
	return mainConfig{EnvVars{file: file}}, nil
}
