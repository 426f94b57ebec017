package redisstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/PicoHBK/clubnorte/internal/errors"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "clubnorte:"

// Store keeps values in redis under a fixed prefix. Keys never expire;
// logout deletes them explicitly.
type Store struct {
	client *redis.Client
}

// Open connects from a redis:// URL or a bare host:port.
func Open(ctx context.Context, redisURL string) (*Store, error) {
	var client *redis.Client
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		client = redis.NewClient(opt)
	} else {
		client = redis.NewClient(&redis.Options{Addr: redisURL})
	}
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return New(client), nil
}

// New wraps an existing client.
func New(client *redis.Client) *Store {
	return &Store{client: client}
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := s.client.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, errors.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get %s", key)
	}
	return v, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	return errors.Wrapf(s.client.Set(ctx, keyPrefix+key, value, 0).Err(), "set %s", key)
}

func (s *Store) Delete(ctx context.Context, key string) error {
	return errors.Wrapf(s.client.Del(ctx, keyPrefix+key).Err(), "delete %s", key)
}

func (s *Store) Close() error {
	return s.client.Close()
}
