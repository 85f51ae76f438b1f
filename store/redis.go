// This file is part of fabricd, a peer-to-peer object fabric in Golang.
//
// SPDX-License-Identifier: AGPL3.0-or-later

package store

import (
	"context"

	redis "github.com/go-redis/redis/v8"
)

// RedisStore uses a Redis server for key/value object storage,
// addressed by a plain "host:port" dsn.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to the Redis instance at addr.
func NewRedisStore(addr string) (*RedisStore, error) {
	if addr == "" {
		return nil, ErrInvalidSpec
	}
	return &RedisStore{
		client: redis.NewClient(&redis.Options{Addr: addr}),
	}, nil
}

// Put implements ObjectStore.
func (s *RedisStore) Put(id string, data []byte) error {
	return s.client.Set(context.Background(), id, data, 0).Err()
}

// Get implements ObjectStore.
func (s *RedisStore) Get(id string) ([]byte, error) {
	data, err := s.client.Get(context.Background(), id).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, errNotFound(id)
		}
		return nil, err
	}
	return data, nil
}

// Exists implements ObjectStore.
func (s *RedisStore) Exists(id string) (bool, error) {
	n, err := s.client.Exists(context.Background(), id).Result()
	return n > 0, err
}

// Evict implements ObjectStore.
func (s *RedisStore) Evict(id string) error {
	return s.client.Del(context.Background(), id).Err()
}

// Close implements ObjectStore.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
