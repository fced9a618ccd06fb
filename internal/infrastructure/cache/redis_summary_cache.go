package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	appmetering "github.com/propfolio/backend/internal/application/metering"
	"github.com/propfolio/backend/internal/domain/metering"
	"github.com/redis/go-redis/v9"
)

// RedisSummaryCache implements the summary cache on Redis. This is the
// production choice for distributed deployments where multiple instances
// serve admission checks against the same tenants.
type RedisSummaryCache struct {
	client    *redis.Client
	keyPrefix string
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// NewRedisSummaryCache creates a new Redis-backed summary cache
func NewRedisSummaryCache(cfg RedisConfig) (*RedisSummaryCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisSummaryCache{
		client:    client,
		keyPrefix: "usage:summary:",
	}, nil
}

// NewRedisSummaryCacheWithClient creates a cache with an existing Redis
// client. This is useful for testing or when sharing a client across
// components.
func NewRedisSummaryCacheWithClient(client *redis.Client, keyPrefix string) *RedisSummaryCache {
	if keyPrefix == "" {
		keyPrefix = "usage:summary:"
	}
	return &RedisSummaryCache{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

func (c *RedisSummaryCache) key(tenantID uuid.UUID, period time.Time) string {
	return c.keyPrefix + tenantID.String() + ":" + metering.PeriodKey(period)
}

// Get retrieves a cached summary; (nil, nil) on a cache miss
func (c *RedisSummaryCache) Get(ctx context.Context, tenantID uuid.UUID, period time.Time) (*metering.MonthlySummary, error) {
	data, err := c.client.Get(ctx, c.key(tenantID, period)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read cached summary: %w", err)
	}

	var summary metering.MonthlySummary
	if err := json.Unmarshal(data, &summary); err != nil {
		// A corrupt entry behaves as a miss; the next recompute overwrites it
		return nil, nil
	}
	return &summary, nil
}

// Set caches a summary with a TTL
func (c *RedisSummaryCache) Set(ctx context.Context, summary *metering.MonthlySummary, ttl time.Duration) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to serialize summary: %w", err)
	}

	if err := c.client.Set(ctx, c.key(summary.TenantID, summary.Period), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache summary: %w", err)
	}
	return nil
}

// Invalidate removes a cached summary
func (c *RedisSummaryCache) Invalidate(ctx context.Context, tenantID uuid.UUID, period time.Time) error {
	if err := c.client.Del(ctx, c.key(tenantID, period)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate cached summary: %w", err)
	}
	return nil
}

// Close closes the Redis client
func (c *RedisSummaryCache) Close() error {
	return c.client.Close()
}

// Ensure RedisSummaryCache implements SummaryCache
var _ appmetering.SummaryCache = (*RedisSummaryCache)(nil)
