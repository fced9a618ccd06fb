package cache

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/propfolio/backend/internal/domain/metering"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemorySummaryCache(t *testing.T) {
	ctx := context.Background()
	tenantID := uuid.New()
	july := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)

	t.Run("round-trips a summary", func(t *testing.T) {
		cache := NewInMemorySummaryCache()
		defer cache.Close()

		summary := cachedSummary(tenantID, july)
		require.NoError(t, cache.Set(ctx, summary, 5*time.Minute))

		found, err := cache.Get(ctx, tenantID, july)
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, int64(40), found.Usage(metering.ServiceSMS).Used)
	})

	t.Run("miss returns nil without error", func(t *testing.T) {
		cache := NewInMemorySummaryCache()
		defer cache.Close()

		found, err := cache.Get(ctx, uuid.New(), july)
		require.NoError(t, err)
		assert.Nil(t, found)
	})

	t.Run("expired entries behave as misses", func(t *testing.T) {
		cache := NewInMemorySummaryCache()
		defer cache.Close()

		require.NoError(t, cache.Set(ctx, cachedSummary(tenantID, july), -time.Second))

		found, err := cache.Get(ctx, tenantID, july)
		require.NoError(t, err)
		assert.Nil(t, found)
	})

	t.Run("invalidate removes the entry", func(t *testing.T) {
		cache := NewInMemorySummaryCache()
		defer cache.Close()

		require.NoError(t, cache.Set(ctx, cachedSummary(tenantID, july), 5*time.Minute))
		require.NoError(t, cache.Invalidate(ctx, tenantID, july))

		found, err := cache.Get(ctx, tenantID, july)
		require.NoError(t, err)
		assert.Nil(t, found)
		assert.Equal(t, 0, cache.Size())
	})

	t.Run("cleanup drops expired entries", func(t *testing.T) {
		cache := NewInMemorySummaryCache()
		defer cache.Close()

		require.NoError(t, cache.Set(ctx, cachedSummary(tenantID, july), -time.Second))
		require.NoError(t, cache.Set(ctx, cachedSummary(uuid.New(), july), 5*time.Minute))
		require.Equal(t, 2, cache.Size())

		cache.cleanup()

		assert.Equal(t, 1, cache.Size())
	})

	t.Run("close is idempotent", func(t *testing.T) {
		cache := NewInMemorySummaryCache()
		require.NoError(t, cache.Close())
		require.NoError(t, cache.Close())
	})
}
