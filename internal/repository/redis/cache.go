package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"visit-recorder/internal/domain"
	"visit-recorder/internal/metrics"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix     = "visits:export"
	generationKey = keyPrefix + ":generation"
)

// ExportCache keeps rendered export pages in Redis (cache-aside).
//
// Every page key embeds a generation number. Recording a visit bumps the
// generation, so later lookups miss and stale pages simply age out via TTL.
// A page is stored under the generation its lookup missed on, never a newer one.
type ExportCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewExportCache(client *redis.Client, ttl time.Duration) *ExportCache {
	return &ExportCache{
		client: client,
		ttl:    ttl,
	}
}

// GetExport returns a cached page, or nil on a cache miss, together with the
// generation it looked under. Pass that generation to SetExport.
func (c *ExportCache) GetExport(ctx context.Context, limit, offset int) ([]*domain.Visit, int64, error) {
	start := time.Now()
	defer func() {
		metrics.CacheOperationDuration.WithLabelValues("get").Observe(time.Since(start).Seconds())
	}()

	gen, err := c.generation(ctx)
	if err != nil {
		return nil, 0, err
	}

	data, err := c.client.Get(ctx, pageKey(gen, limit, offset)).Bytes()
	if errors.Is(err, redis.Nil) {
		metrics.RecordCacheMiss()
		return nil, gen, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("redis get error: %w", err)
	}

	metrics.RecordCacheHit()

	var visits []*domain.Visit
	if err := json.Unmarshal(data, &visits); err != nil {
		return nil, 0, fmt.Errorf("failed to unmarshal cached export: %w", err)
	}
	return visits, gen, nil
}

// SetExport stores a page under gen. When visits were recorded since gen was
// read, the page lands under a generation nobody looks up anymore.
func (c *ExportCache) SetExport(ctx context.Context, gen int64, limit, offset int, visits []*domain.Visit) error {
	start := time.Now()
	defer func() {
		metrics.CacheOperationDuration.WithLabelValues("set").Observe(time.Since(start).Seconds())
	}()

	data, err := json.Marshal(visits)
	if err != nil {
		return fmt.Errorf("failed to marshal export: %w", err)
	}

	if err := c.client.Set(ctx, pageKey(gen, limit, offset), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set error: %w", err)
	}
	return nil
}

// Invalidate makes every cached page unreachable
func (c *ExportCache) Invalidate(ctx context.Context) error {
	start := time.Now()
	defer func() {
		metrics.CacheOperationDuration.WithLabelValues("invalidate").Observe(time.Since(start).Seconds())
	}()

	if err := c.client.Incr(ctx, generationKey).Err(); err != nil {
		return fmt.Errorf("redis incr error: %w", err)
	}
	return nil
}

func (c *ExportCache) generation(ctx context.Context) (int64, error) {
	gen, err := c.client.Get(ctx, generationKey).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, fmt.Errorf("redis get generation error: %w", err)
	}
	return gen, nil
}

func pageKey(gen int64, limit, offset int) string {
	return fmt.Sprintf("%s:%d:%d:%d", keyPrefix, gen, limit, offset)
}

// InitRedis creates a new Redis client
func InitRedis(addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,

		PoolSize:     10,
		MinIdleConns: 2,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return client, nil
}
