package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/telhawk-systems/trailhawk/internal/models"
)

// RedisStore keeps each record as a JSON string that Redis expires at the
// record's TTL.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore creates a store on an existing client.
func NewRedisStore(client redis.UniversalClient, prefix string) (*RedisStore, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	if prefix == "" {
		prefix = "trailhawk:event:"
	}
	return &RedisStore{client: client, prefix: prefix}, nil
}

// NewRedisStoreFromURL parses a redis:// URL and verifies the connection.
func NewRedisStoreFromURL(ctx context.Context, url, prefix string) (*RedisStore, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return NewRedisStore(client, prefix)
}

// Name implements Store.
func (s *RedisStore) Name() string { return "redis" }

// Put implements Store.
func (s *RedisStore) Put(ctx context.Context, record *models.PersistenceRecord) (Response, error) {
	if err := validate(record); err != nil {
		return Response{}, err
	}

	data, err := json.Marshal(record)
	if err != nil {
		return Response{}, fmt.Errorf("marshal record: %w", err)
	}

	key := s.key(record)
	var exists *redis.IntCmd
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		exists = pipe.Exists(ctx, key)
		pipe.Set(ctx, key, data, 0)
		pipe.ExpireAt(ctx, key, record.ExpiresAt())
		return nil
	})
	if err != nil {
		return Response{}, fmt.Errorf("set %s: %w", key, err)
	}

	return Response{Backend: s.Name(), Target: s.prefix, Key: key, Replaced: exists.Val() > 0}, nil
}

// Get loads a stored record. It returns redis.Nil when the key is absent or expired.
func (s *RedisStore) Get(ctx context.Context, eventID, eventTime string) (*models.PersistenceRecord, error) {
	data, err := s.client.Get(ctx, s.prefix+models.RecordKey(eventID, eventTime)).Bytes()
	if err != nil {
		return nil, err
	}
	var record models.PersistenceRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("unmarshal record: %w", err)
	}
	return &record, nil
}

// Close releases the client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) key(record *models.PersistenceRecord) string {
	return s.prefix + record.Key()
}
