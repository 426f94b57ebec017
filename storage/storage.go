// Package storage provides the durable key/value storage that session
// stores persist their slice into, and the backends behind it.
package storage

import (
	"context"
	"encoding/json"

	"github.com/PicoHBK/clubnorte/internal/config"
	"github.com/PicoHBK/clubnorte/internal/errors"
	"github.com/PicoHBK/clubnorte/storage/memstore"
	"github.com/PicoHBK/clubnorte/storage/redisstore"
	"github.com/PicoHBK/clubnorte/storage/sqlitestore"
	"github.com/rs/zerolog"
)

// ErrNotFound is returned by Get when the key has never been set or was deleted.
var ErrNotFound = errors.ErrNotFound

const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
)

// Storage is a durable key/value store. Implementations must handle
// concurrent access safely; concurrent writers are last-writer-wins.
type Storage interface {
	// Get returns the value for key or ErrNotFound
	Get(ctx context.Context, key string) ([]byte, error)

	// Set creates or replaces the value for key
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases the underlying resources
	Close() error
}

var (
	_ Storage = (*memstore.Store)(nil)
	_ Storage = (*sqlitestore.Store)(nil)
	_ Storage = (*redisstore.Store)(nil)
)

// Open selects a backend from configuration.
func Open(ctx context.Context, cfg config.StorageConfig, logger zerolog.Logger) (Storage, error) {
	switch cfg.GetStorageDriver() {
	case DriverMemory:
		logger.Debug().Str("driver", DriverMemory).Msg("Opening storage")
		return memstore.New(), nil
	case DriverSQLite:
		logger.Debug().Str("driver", DriverSQLite).Str("path", cfg.GetStoragePath()).Msg("Opening storage")
		s, err := sqlitestore.Open(ctx, cfg.GetStoragePath())
		if err != nil {
			return nil, errors.Wrapf(err, "open sqlite storage")
		}
		return s, nil
	case DriverRedis:
		logger.Debug().Str("driver", DriverRedis).Msg("Opening storage")
		s, err := redisstore.Open(ctx, cfg.GetRedisURL())
		if err != nil {
			return nil, errors.Wrapf(err, "open redis storage")
		}
		return s, nil
	}
	return nil, errors.Wrapf(errors.ErrUnsupportedDriver, "driver %q", cfg.GetStorageDriver())
}

// GetJSON reads key and decodes it into v. It reports false when the key is absent.
func GetJSON(ctx context.Context, s Storage, key string, v any) (bool, error) {
	raw, err := s.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, errors.Wrapf(err, "decode %s", key)
	}
	return true, nil
}

// SetJSON encodes v and stores it under key.
func SetJSON(ctx context.Context, s Storage, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "encode %s", key)
	}
	return s.Set(ctx, key, raw)
}
