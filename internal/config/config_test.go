package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tournevent/huolala/internal/config"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "1.0", cfg.APIVersion)
	assert.False(t, cfg.Sandbox)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
	assert.Equal(t, config.StoreSQLite, cfg.TokenStore)
	assert.Equal(t, time.Duration(0), cfg.ExpiryLeeway)
	assert.Equal(t, "huolala:token:", cfg.RedisKeyPrefix)
	assert.False(t, cfg.OTELEnabled)
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("HUOLALA_APP_KEY", "AK1")
	t.Setenv("HUOLALA_APP_SECRET", "S1")
	t.Setenv("HUOLALA_SANDBOX", "true")
	t.Setenv("HUOLALA_TIMEOUT", "2s")
	t.Setenv("TOKEN_STORE", "redis")
	t.Setenv("TOKEN_EXPIRY_LEEWAY", "1m")
	t.Setenv("REDIS_DB", "3")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "AK1", cfg.AppKey)
	assert.True(t, cfg.Sandbox)
	assert.Equal(t, 2*time.Second, cfg.Timeout)
	assert.Equal(t, config.StoreRedis, cfg.TokenStore)
	assert.Equal(t, time.Minute, cfg.ExpiryLeeway)
	assert.Equal(t, 3, cfg.RedisDB)

	client := cfg.ClientConfig()
	assert.Equal(t, "AK1", client.AppKey())
	assert.Equal(t, "S1", client.AppSecret())
	assert.True(t, client.Sandbox())
}

func TestLoad_UnknownTokenStore(t *testing.T) {
	t.Setenv("TOKEN_STORE", "etcd")

	_, err := config.Load()
	assert.ErrorContains(t, err, "etcd")
}

func TestLoad_InvalidDuration(t *testing.T) {
	t.Setenv("HUOLALA_TIMEOUT", "soon")

	_, err := config.Load()
	assert.Error(t, err)
}

func TestAttributes_OmitSecret(t *testing.T) {
	t.Setenv("HUOLALA_APP_KEY", "AK1")
	t.Setenv("HUOLALA_APP_SECRET", "S1")

	cfg, err := config.Load()
	require.NoError(t, err)

	for _, attr := range cfg.Attributes() {
		assert.NotEqual(t, "S1", attr.Value.Emit(), "attribute %s leaks the secret", attr.Key)
	}
}
