package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{"APP_ENV", "HTTP_PORT", "STORE_DRIVER", "PRODUCT_CACHE_TTL", "PLACEMENT_CONCURRENCY", "MONGO_TRANSACTIONS"} {
		t.Setenv(k, "")
	}
	cfg := Load()

	assert.Equal(t, "dev", cfg.AppEnv)
	assert.Equal(t, 9091, cfg.HTTPPort)
	assert.Equal(t, DriverMemory, cfg.StoreDriver)
	assert.Equal(t, 30*time.Second, cfg.ProductCacheTTL)
	assert.Equal(t, 8, cfg.PlacementConcurrency)
	assert.False(t, cfg.MongoTransactions)
	assert.Equal(t, ":9091", cfg.Addr())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("HTTP_PORT", "8088")
	t.Setenv("STORE_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "postgres://localhost/storefront")
	t.Setenv("PRODUCT_CACHE_TTL", "2m")
	t.Setenv("MONGO_TRANSACTIONS", "true")
	t.Setenv("PLACEMENT_CONCURRENCY", "not-a-number")

	cfg := Load()
	assert.Equal(t, 8088, cfg.HTTPPort)
	assert.Equal(t, DriverPostgres, cfg.StoreDriver)
	assert.Equal(t, 2*time.Minute, cfg.ProductCacheTTL)
	assert.True(t, cfg.MongoTransactions)
	assert.Equal(t, 8, cfg.PlacementConcurrency)
}

func TestValidate(t *testing.T) {
	base := Config{StoreDriver: DriverMemory, JWTSecret: "s", HTTPPort: 9091, PlacementConcurrency: 1}
	require.NoError(t, base.Validate())

	mongo := base
	mongo.StoreDriver = DriverMongo
	assert.ErrorContains(t, mongo.Validate(), "MONGO_URI")

	pg := base
	pg.StoreDriver = DriverPostgres
	assert.ErrorContains(t, pg.Validate(), "DATABASE_URL")

	unknown := base
	unknown.StoreDriver = "sqlite"
	assert.ErrorContains(t, unknown.Validate(), "unknown STORE_DRIVER")

	noSecret := base
	noSecret.JWTSecret = ""
	assert.ErrorContains(t, noSecret.Validate(), "JWT_SECRET")
}
