package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setServerEnv(t *testing.T) {
	t.Setenv("PORT", "8080")
	t.Setenv("POSTGRES_USER", "postgres")
	t.Setenv("POSTGRES_PASSWORD", "postgres")
	t.Setenv("POSTGRES_DB", "app")
	t.Setenv("POSTGRES_HOST", "localhost")
	t.Setenv("POSTGRES_PORT", "5433")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("GO_ENV", "dev")
}

func TestLoad_OK(t *testing.T) {
	setServerEnv(t)
	t.Setenv("CART_CACHE_TTL", "30s")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 5433, cfg.PostgresPort)
	assert.Equal(t, 30*time.Second, cfg.CartCacheTTL)
	assert.Equal(t, "", cfg.RedisAddr)
}

func TestLoad_MissingSecret(t *testing.T) {
	setServerEnv(t)
	t.Setenv("JWT_SECRET", "")

	_, err := Load()
	assert.EqualError(t, err, "JWT_SECRET is required")
}

func TestLoad_PortNotNumber(t *testing.T) {
	setServerEnv(t)
	t.Setenv("POSTGRES_PORT", "abc")

	_, err := Load()
	assert.ErrorContains(t, err, "POSTGRES_PORT must be number")
}

func TestLoadClient_Defaults(t *testing.T) {
	t.Setenv("STOREFRONT_TAX_RATE", "")
	t.Setenv("STOREFRONT_VALIDATOR_CONCURRENCY", "")

	cfg, err := LoadClient()
	require.NoError(t, err)
	assert.Equal(t, "0.18", cfg.TaxRate.String())
	assert.Equal(t, "50", cfg.DeliveryFee.String())
	assert.Equal(t, "500", cfg.FreeDeliveryThreshold.String())
	assert.Equal(t, 4, cfg.ValidatorConcurrency)
	assert.Equal(t, 10*time.Second, cfg.APITimeout)
}

func TestLoadClient_InvalidConcurrency(t *testing.T) {
	t.Setenv("STOREFRONT_VALIDATOR_CONCURRENCY", "0")

	_, err := LoadClient()
	assert.Error(t, err)
}

func TestLoad_DatabaseURLSkipsPostgresKeys(t *testing.T) {
	setServerEnv(t)
	for _, k := range []string{"POSTGRES_USER", "POSTGRES_PASSWORD", "POSTGRES_DB", "POSTGRES_HOST", "POSTGRES_PORT"} {
		t.Setenv(k, "")
	}
	t.Setenv("DATABASE_URL", "postgres://u:p@db:5432/app")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres://u:p@db:5432/app", cfg.DSN())
}

func TestConfig_DSN(t *testing.T) {
	setServerEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "host=localhost port=5433 user=postgres password=postgres dbname=app sslmode=disable", cfg.DSN())
}
