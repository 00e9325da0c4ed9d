package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "smartshare:room:"

// RedisStore keeps snapshots as JSON strings in Redis.
type RedisStore struct {
	rdb *redis.Client
}

// OpenRedis connects to the server in dsn and checks that it answers.
func OpenRedis(ctx context.Context, dsn string) (*RedisStore, error) {
	opts, err := redis.ParseURL(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("could not connect to redis: %w", err)
	}

	return &RedisStore{rdb: rdb}, nil
}

func (s *RedisStore) Load(ctx context.Context, room string) (Snapshot, error) {
	v, err := s.rdb.Get(ctx, redisKeyPrefix+room).Bytes()
	if errors.Is(err, redis.Nil) {
		return Snapshot{}, ErrNotFound
	}
	if err != nil {
		return Snapshot{}, err
	}

	var snap Snapshot
	if err := json.Unmarshal(v, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("decode snapshot of %s: %w", room, err)
	}
	return snap, nil
}

func (s *RedisStore) Save(ctx context.Context, snap Snapshot) error {
	v, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, redisKeyPrefix+snap.Room, v, 0).Err()
}

func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
