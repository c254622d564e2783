package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"commerce-sync/internal/model"
)

var unlockIfOwnerScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	else
		return 0
	end
`)

// RedisStore keeps the result ledger and store locks in Redis so several
// sync processes share them.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
	logger    *slog.Logger
}

// RedisConfig holds configuration for the Redis store.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// NewRedisStore connects to Redis and pings it.
func NewRedisStore(cfg RedisConfig, logger *slog.Logger) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     10,
		MinIdleConns: 2,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}

	s := NewRedisStoreWithClient(client, cfg.KeyPrefix, logger)
	s.logger.Info("redis store ready", "addr", cfg.Addr, "db", cfg.DB, "prefix", s.keyPrefix)
	return s, nil
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(client *redis.Client, keyPrefix string, logger *slog.Logger) *RedisStore {
	if keyPrefix == "" {
		keyPrefix = "commerce-sync"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisStore{
		client:    client,
		keyPrefix: keyPrefix,
		logger:    logger.With("component", "cache"),
	}
}

func (s *RedisStore) resultsKey() string {
	return s.keyPrefix + ":results"
}

func (s *RedisStore) lockKey(storeID string) string {
	return s.keyPrefix + ":lock:" + storeID
}

// Record stores result in the results hash, keyed by store id.
func (s *RedisStore) Record(ctx context.Context, result model.SyncResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	return s.client.HSet(ctx, s.resultsKey(), result.StoreID, data).Err()
}

// Latest returns the latest result of a store.
func (s *RedisStore) Latest(ctx context.Context, storeID string) (*model.SyncResult, error) {
	data, err := s.client.HGet(ctx, s.resultsKey(), storeID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, err
	}

	var result model.SyncResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to decode result of %s: %w", storeID, err)
	}
	return &result, nil
}

// All returns every recorded result ordered by store id. Undecodable entries are skipped.
func (s *RedisStore) All(ctx context.Context) ([]model.SyncResult, error) {
	entries, err := s.client.HGetAll(ctx, s.resultsKey()).Result()
	if err != nil {
		return nil, err
	}

	out := make([]model.SyncResult, 0, len(entries))
	for storeID, data := range entries {
		var result model.SyncResult
		if err := json.Unmarshal([]byte(data), &result); err != nil {
			s.logger.Warn("skipping undecodable result", "store_id", storeID, "error", err)
			continue
		}
		out = append(out, result)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StoreID < out[j].StoreID })
	return out, nil
}

// TryLock sets the lock key only if it does not exist. The owner may re-take its own lock.
func (s *RedisStore) TryLock(ctx context.Context, storeID, owner string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.lockKey(storeID), owner, ttl).Result()
	if err != nil {
		return false, err
	}
	if ok {
		return true, nil
	}

	holder, err := s.client.Get(ctx, s.lockKey(storeID)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return holder == owner, nil
}

// Unlock deletes the lock key if owner still holds it.
func (s *RedisStore) Unlock(ctx context.Context, storeID, owner string) error {
	return unlockIfOwnerScript.Run(ctx, s.client, []string{s.lockKey(storeID)}, owner).Err()
}

// Close closes the Redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

var _ Store = (*RedisStore)(nil)
