package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/PicoHBK/clubnorte/internal/config"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const testYAML = `
app:
  name: Kiosco
  log_level: debug
api:
  base_url: https://api.example.com/
  timeout: 5s
storage:
  driver: memory
query:
  stale_time: 1m
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clubnorte.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestNew_Defaults(t *testing.T) {
	c := config.New()

	require.Equal(t, "ClubNorte", c.GetAppName())
	require.Equal(t, "DEV", c.GetEnv())
	require.Equal(t, zerolog.InfoLevel, c.GetLogLevel())
	require.Equal(t, "http://localhost:8080", c.GetAPIBaseURL())
	require.Equal(t, 15*time.Second, c.GetHTTPTimeout())
	require.Equal(t, "sqlite", c.GetStorageDriver())
	require.Equal(t, 30*time.Second, c.GetQueryStaleTime())
}

func TestNew_EnvOverrides(t *testing.T) {
	t.Setenv("API_BASE_URL", "http://api.local:9000/")
	t.Setenv("HTTP_TIMEOUT", "2s")
	t.Setenv("STORAGE_DRIVER", "Redis")
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("ENV", "prod")

	c := config.New()

	require.Equal(t, "http://api.local:9000", c.GetAPIBaseURL())
	require.Equal(t, 2*time.Second, c.GetHTTPTimeout())
	require.Equal(t, "redis", c.GetStorageDriver())
	require.Equal(t, zerolog.WarnLevel, c.GetLogLevel())
	require.Equal(t, "PROD", c.GetEnv())
}

func TestNew_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("HTTP_TIMEOUT", "soon")
	t.Setenv("LOG_LEVEL", "loud")

	c := config.New()

	require.Equal(t, 15*time.Second, c.GetHTTPTimeout())
	require.Equal(t, zerolog.InfoLevel, c.GetLogLevel())
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := writeConfig(t, testYAML)

	t.Run("file values replace defaults", func(t *testing.T) {
		c, err := config.Load(path)
		require.NoError(t, err)
		require.Equal(t, "Kiosco", c.GetAppName())
		require.Equal(t, "https://api.example.com", c.GetAPIBaseURL())
		require.Equal(t, 5*time.Second, c.GetHTTPTimeout())
		require.Equal(t, "memory", c.GetStorageDriver())
		require.Equal(t, time.Minute, c.GetQueryStaleTime())
		require.Equal(t, zerolog.DebugLevel, c.GetLogLevel())
	})

	t.Run("env wins over file", func(t *testing.T) {
		t.Setenv("APP_NAME", "Caja 1")
		c, err := config.Load(path)
		require.NoError(t, err)
		require.Equal(t, "Caja 1", c.GetAppName())
	})

	t.Run("CONFIG_FILE is used when no path given", func(t *testing.T) {
		t.Setenv("CONFIG_FILE", path)
		c, err := config.Load("")
		require.NoError(t, err)
		require.Equal(t, "memory", c.GetStorageDriver())
	})
}

func TestLoad_Errors(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "read config file")

	_, err = config.Load(writeConfig(t, "app: [broken"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "parse config file")
}
