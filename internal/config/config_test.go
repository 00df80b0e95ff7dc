package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, cfg.Backend.Timeout)
	assert.Equal(t, CartDriverMemory, cfg.Cart.Driver)
	assert.True(t, decimal.NewFromInt(200).Equal(cfg.Shipping.FallbackCost))
	assert.Equal(t, "INR", cfg.Payment.Currency)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("BACKEND_BASE_URL", "https://pickles.example/api")
	t.Setenv("BACKEND_TIMEOUT", "45s")
	t.Setenv("CART_DRIVER", CartDriverRedis)
	t.Setenv("SHIPPING_FALLBACK_COST", "149.50")
	t.Setenv("OFFERS_POLL_INTERVAL", "not-a-duration")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://pickles.example/api", cfg.Backend.BaseURL)
	assert.Equal(t, 45*time.Second, cfg.Backend.Timeout)
	assert.Equal(t, CartDriverRedis, cfg.Cart.Driver)
	assert.Equal(t, "149.5", cfg.Shipping.FallbackCost.String())
	assert.Equal(t, time.Minute, cfg.Offers.PollInterval)
}

func TestLoad_UnknownCartDriver(t *testing.T) {
	t.Setenv("CART_DRIVER", "sessionStorage")

	_, err := Load()
	assert.Error(t, err)
}
