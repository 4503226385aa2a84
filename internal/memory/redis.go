package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/jaisveenkaur/insiteforge/internal/metrics"
)

// RedisStore keeps domain memory in Redis for multi-process
// deployments. Updates are serialized in-process; across processes the
// policy is last-write-wins, which is acceptable because records are
// merged sets and a lost concurrent write only delays, never corrupts,
// a preference.
type RedisStore struct {
	client   *redis.Client
	themeCap int
	logger   *zap.Logger
	mu       sync.Mutex
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(addr string, themeCap int, logger *zap.Logger) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     os.Getenv("REDIS_PASSWORD"),
		DB:           0,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return &RedisStore{client: client, themeCap: themeCap, logger: logger}, nil
}

func redisKey(key string) string {
	if key == "" {
		key = "default"
	}
	return "insiteforge:memory:" + key
}

// Load fetches the record; a missing key yields an empty record.
func (s *RedisStore) Load(ctx context.Context, key string) (*Record, error) {
	data, err := s.client.Get(ctx, redisKey(key)).Bytes()
	if err == redis.Nil {
		return Empty(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load memory record: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		s.logger.Warn("memory record corrupt in redis, starting empty",
			zap.String("key", key), zap.Error(err))
		metrics.MemoryLoadFailures.Inc()
		return Empty(), nil
	}
	return &rec, nil
}

// Update merges and writes back under the store mutex.
func (s *RedisStore) Update(ctx context.Context, key string, summary RunSummary) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.Load(ctx, key)
	if err != nil {
		return nil, err
	}
	updated := merge(rec, summary, s.themeCap)

	data, err := json.Marshal(updated)
	if err != nil {
		return nil, fmt.Errorf("marshal memory record: %w", err)
	}
	if err := s.client.Set(ctx, redisKey(key), data, 0).Err(); err != nil {
		return nil, fmt.Errorf("save memory record: %w", err)
	}

	s.logger.Info("domain memory updated",
		zap.String("key", key),
		zap.Int("kpis", len(updated.PreferredKPIs)),
		zap.Int("themes", len(updated.PastThemes)),
	)
	metrics.MemoryUpdates.Inc()
	return updated, nil
}

func (s *RedisStore) Close() error { return s.client.Close() }
