package config

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	configFileVar    = "CONFIG_FILE"
	appNameVar       = "APP_NAME"
	envVar           = "ENV"
	logLevelVar      = "LOG_LEVEL"
	apiBaseURLVar    = "API_BASE_URL"
	httpTimeoutVar   = "HTTP_TIMEOUT"
	userAgentVar     = "USER_AGENT"
	storageDriverVar = "STORAGE_DRIVER"
	storagePathVar   = "STORAGE_PATH"
	redisURLVar      = "REDIS_URL"
	queryStaleVar    = "QUERY_STALE_TIME"
	fakeAPIAddrVar   = "FAKE_API_ADDR"
	fakeAPISecretVar = "FAKE_API_SECRET"
)

// EnvVars reads settings from the environment. Values from an optional
// YAML file replace the built-in defaults.
type EnvVars struct {
	file fileConfig
}

var _ EnvConfig = EnvVars{}
var _ HTTPConfig = EnvVars{}
var _ StorageConfig = EnvVars{}

func (e EnvVars) GetAppName() string {
	return GetEnv(appNameVar, orDefault(e.file.App.Name, "ClubNorte"))
}

func (e EnvVars) GetEnv() string {
	return strings.ToUpper(GetEnv(envVar, orDefault(e.file.App.Env, "DEV")))
}

func (e EnvVars) GetLogLevel() zerolog.Level {
	level, err := zerolog.ParseLevel(GetEnv(logLevelVar, orDefault(e.file.App.LogLevel, "info")))
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return level
}

// GetAPIBaseURL returns the REST API root (e.g., "https://api.clubnorte.com").
// Endpoint paths are appended to it, so trailing slashes are trimmed.
func (e EnvVars) GetAPIBaseURL() string {
	return strings.TrimRight(GetEnv(apiBaseURLVar, orDefault(e.file.API.BaseURL, "http://localhost:8080")), "/")
}

func (e EnvVars) GetHTTPTimeout() time.Duration {
	return getDuration(httpTimeoutVar, e.file.API.Timeout, 15*time.Second)
}

func (e EnvVars) GetUserAgent() string {
	return GetEnv(userAgentVar, orDefault(e.file.API.UserAgent, "clubnorte-cli"))
}

func (e EnvVars) GetStorageDriver() string {
	return strings.ToLower(GetEnv(storageDriverVar, orDefault(e.file.Storage.Driver, "sqlite")))
}

func (e EnvVars) GetStoragePath() string {
	return GetEnv(storagePathVar, orDefault(e.file.Storage.Path, "./data/clubnorte.db"))
}

func (e EnvVars) GetRedisURL() string {
	return GetEnv(redisURLVar, orDefault(e.file.Storage.RedisURL, "localhost:6379"))
}

func (e EnvVars) GetQueryStaleTime() time.Duration {
	return getDuration(queryStaleVar, e.file.Query.StaleTime, 30*time.Second)
}

func (e EnvVars) GetFakeAPIAddr() string {
	return GetEnv(fakeAPIAddrVar, orDefault(e.file.FakeAPI.Addr, ":8080"))
}

func (e EnvVars) GetFakeAPISecret() string {
	return GetEnv(fakeAPISecretVar, orDefault(e.file.FakeAPI.Secret, "clubnorte-dev-secret"))
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}

func getDuration(envVar, fileValue string, defaultValue time.Duration) time.Duration {
	raw := GetEnv(envVar, fileValue)
	if raw == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return defaultValue
	}
	return d
}

func orDefault(value, defaultValue string) string {
	if value == "" {
		return defaultValue
	}
	return value
}
