// Package redisprefs keeps preferences in Redis so several machines
// signed into the same account can share pins and recent emoji.
package redisprefs

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Store is a prefs.KV backed by a Redis hash.
type Store struct {
	client *redis.Client
	key    string
}

// New connects to the Redis server at url and stores preferences in the
// hash named by key.
func New(ctx context.Context, url, key string) (*Store, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewWithClient(client, key), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *redis.Client, key string) *Store {
	return &Store{client: client, key: key}
}

func (s *Store) GetPref(ctx context.Context, field string) (string, bool, error) {
	v, err := s.client.HGet(ctx, s.key, field).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (s *Store) SetPref(ctx context.Context, field, value string) error {
	return s.client.HSet(ctx, s.key, field, value).Err()
}

func (s *Store) DeletePref(ctx context.Context, field string) error {
	return s.client.HDel(ctx, s.key, field).Err()
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.client.Close()
}
