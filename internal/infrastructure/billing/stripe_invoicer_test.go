package billing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStripeConfigValidate(t *testing.T) {
	t.Run("rejects missing secret key", func(t *testing.T) {
		cfg := DefaultStripeConfig()
		assert.Error(t, cfg.Validate())
	})

	t.Run("accepts a test key in test mode", func(t *testing.T) {
		cfg := DefaultStripeConfig()
		cfg.SecretKey = "sk_test_abc123"
		assert.NoError(t, cfg.Validate())
	})

	t.Run("rejects a live key in test mode", func(t *testing.T) {
		cfg := DefaultStripeConfig()
		cfg.SecretKey = "sk_live_abc123"
		assert.Error(t, cfg.Validate())
	})

	t.Run("rejects a test key in live mode", func(t *testing.T) {
		cfg := DefaultStripeConfig()
		cfg.IsTestMode = false
		cfg.SecretKey = "sk_test_abc123"
		assert.Error(t, cfg.Validate())
	})

	t.Run("requires a currency", func(t *testing.T) {
		cfg := &StripeConfig{SecretKey: "sk_test_abc123", IsTestMode: true}
		assert.Error(t, cfg.Validate())
	})
}

func TestNewStripeInvoicer(t *testing.T) {
	t.Run("rejects invalid configuration", func(t *testing.T) {
		_, err := NewStripeInvoicer(DefaultStripeConfig(), nil)
		assert.Error(t, err)
	})

	t.Run("accepts valid configuration with nil logger", func(t *testing.T) {
		cfg := DefaultStripeConfig()
		cfg.SecretKey = "sk_test_abc123"
		invoicer, err := NewStripeInvoicer(cfg, nil)
		require.NoError(t, err)
		assert.NotNil(t, invoicer)
	})
}

func TestToMinorUnits(t *testing.T) {
	tests := []struct {
		name   string
		amount string
		want   int64
	}{
		{"whole euros", "6", 600},
		{"cents", "3.45", 345},
		{"sub-cent rounds half up", "0.005", 1},
		{"sub-cent rounds down", "0.004", 0},
		{"zero", "0", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			amount, err := decimal.NewFromString(tt.amount)
			require.NoError(t, err)
			assert.Equal(t, tt.want, toMinorUnits(amount))
		})
	}
}
