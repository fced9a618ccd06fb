package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/propfolio/backend/internal/application/alerting"
	appmetering "github.com/propfolio/backend/internal/application/metering"
	"github.com/propfolio/backend/internal/application/settlement"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// Lifecycle tests only; the swept services have their own behavior tests in
// the application packages. Intervals are long enough that no tick fires.

func TestAlertSweepSchedulerLifecycle(t *testing.T) {
	ctx := context.Background()

	t.Run("starts and stops", func(t *testing.T) {
		s := NewAlertSweepScheduler(&alerting.AlertService{}, zap.NewNop(), AlertSweepSchedulerConfig{
			Enabled:       true,
			SweepInterval: time.Hour,
			SweepTimeout:  time.Minute,
		})

		require.NoError(t, s.Start(ctx))
		assert.True(t, s.IsRunning())

		stopCtx, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		require.NoError(t, s.Stop(stopCtx))
		assert.False(t, s.IsRunning())
	})

	t.Run("disabled scheduler never runs", func(t *testing.T) {
		s := NewAlertSweepScheduler(&alerting.AlertService{}, zap.NewNop(), AlertSweepSchedulerConfig{
			Enabled: false,
		})

		require.NoError(t, s.Start(ctx))
		assert.False(t, s.IsRunning())
	})

	t.Run("start is idempotent", func(t *testing.T) {
		s := NewAlertSweepScheduler(&alerting.AlertService{}, zap.NewNop(), DefaultAlertSweepSchedulerConfig())

		require.NoError(t, s.Start(ctx))
		require.NoError(t, s.Start(ctx))

		stopCtx, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		require.NoError(t, s.Stop(stopCtx))
		require.NoError(t, s.Stop(stopCtx))
	})

	t.Run("immediate sweep on a stopped scheduler is refused", func(t *testing.T) {
		s := NewAlertSweepScheduler(&alerting.AlertService{}, zap.NewNop(), DefaultAlertSweepSchedulerConfig())
		assert.ErrorIs(t, s.TriggerImmediateSweep(ctx), ErrSchedulerNotRunning)
	})
}

func TestSettlementSchedulerLifecycle(t *testing.T) {
	ctx := context.Background()

	t.Run("starts and stops", func(t *testing.T) {
		s := NewSettlementScheduler(&settlement.SettlementService{}, zap.NewNop(), SettlementSchedulerConfig{
			Enabled:       true,
			CheckInterval: time.Hour,
			SettleTimeout: time.Minute,
		})

		require.NoError(t, s.Start(ctx))
		assert.True(t, s.IsRunning())

		stopCtx, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		require.NoError(t, s.Stop(stopCtx))
		assert.False(t, s.IsRunning())
	})

	t.Run("disabled scheduler never runs", func(t *testing.T) {
		s := NewSettlementScheduler(&settlement.SettlementService{}, zap.NewNop(), SettlementSchedulerConfig{
			Enabled: false,
		})

		require.NoError(t, s.Start(ctx))
		assert.False(t, s.IsRunning())
	})

	t.Run("immediate settlement on a stopped scheduler is refused", func(t *testing.T) {
		s := NewSettlementScheduler(&settlement.SettlementService{}, zap.NewNop(), DefaultSettlementSchedulerConfig())
		assert.ErrorIs(t, s.TriggerImmediateSettlement(ctx), ErrSchedulerNotRunning)
	})
}

func TestRetentionSchedulerLifecycle(t *testing.T) {
	ctx := context.Background()

	t.Run("starts and stops", func(t *testing.T) {
		s := NewRetentionScheduler(&appmetering.TrackerService{}, zap.NewNop(), RetentionSchedulerConfig{
			Enabled:      true,
			Retention:    24 * time.Hour,
			PurgeHour:    3,
			PurgeTimeout: time.Minute,
		})

		require.NoError(t, s.Start(ctx))
		assert.True(t, s.IsRunning())

		stopCtx, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		require.NoError(t, s.Stop(stopCtx))
		assert.False(t, s.IsRunning())
	})

	t.Run("disabled scheduler never runs", func(t *testing.T) {
		s := NewRetentionScheduler(&appmetering.TrackerService{}, zap.NewNop(), RetentionSchedulerConfig{
			Enabled: false,
		})

		require.NoError(t, s.Start(ctx))
		assert.False(t, s.IsRunning())
	})

	t.Run("immediate purge on a stopped scheduler is refused", func(t *testing.T) {
		s := NewRetentionScheduler(&appmetering.TrackerService{}, zap.NewNop(), DefaultRetentionSchedulerConfig())
		assert.ErrorIs(t, s.TriggerImmediatePurge(ctx), ErrSchedulerNotRunning)
	})
}

func TestDefaultSchedulerConfigs(t *testing.T) {
	alertCfg := DefaultAlertSweepSchedulerConfig()
	assert.True(t, alertCfg.Enabled)
	assert.Equal(t, time.Hour, alertCfg.SweepInterval)

	settleCfg := DefaultSettlementSchedulerConfig()
	assert.True(t, settleCfg.Enabled)
	assert.Equal(t, 6*time.Hour, settleCfg.CheckInterval)

	retentionCfg := DefaultRetentionSchedulerConfig()
	assert.True(t, retentionCfg.Enabled)
	assert.Equal(t, 3, retentionCfg.PurgeHour)
}
