package config

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_HappyPath(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "config_test")
	require.NoError(t, err)
	defer os.RemoveAll(tempDir)

	tempConfigsSubDir := filepath.Join(tempDir, "configs")
	err = os.Mkdir(tempConfigsSubDir, 0755)
	require.NoError(t, err)

	testAppName := "TestApp"
	testPort := 9090
	testLogLevel := "debug"
	testAdminURL := "https://example-shop.test/admin/api/graphql.json"

	envContent := fmt.Sprintf(
		"APP_NAME=%s\nSERVER_PORT=%d\nLOG_LEVEL=%s\nCOMMERCE_ADMIN_URL=%s\n",
		testAppName, testPort, testLogLevel, testAdminURL,
	)
	envFilePath := filepath.Join(tempConfigsSubDir, "test_happy.env")
	err = os.WriteFile(envFilePath, []byte(envContent), 0644)
	require.NoError(t, err)

	originalWD, err := os.Getwd()
	require.NoError(t, err)
	defer func() {
		_ = os.Chdir(originalWD)
	}()
	require.NoError(t, os.Chdir(tempDir))

	cfg, err := LoadConfig("test_happy")
	require.NoError(t, err)
	require.NotNil(t, cfg)

	// Values from the file override the defaults
	assert.Equal(t, testAppName, cfg.Application.Name)
	assert.Equal(t, testPort, cfg.Server.Port)
	assert.Equal(t, testLogLevel, cfg.Logging.Level)
	assert.Equal(t, testAdminURL, cfg.Commerce.AdminURL)

	// Untouched values fall back to the defaults
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, int32(20), cfg.Postgres.MaxConns)
	assert.Equal(t, "migrations/postgres", cfg.Postgres.MigrationsPath)
	assert.Equal(t, 8, cfg.Mirror.PoolSize)
	assert.Equal(t, 10*time.Second, cfg.Commerce.Timeout)
}

func TestLoadConfig_Defaults(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "config_test_defaults")
	require.NoError(t, err)
	defer os.RemoveAll(tempDir)

	originalWD, err := os.Getwd()
	require.NoError(t, err)
	defer func() {
		_ = os.Chdir(originalWD)
	}()
	require.NoError(t, os.Chdir(tempDir))

	cfg, err := LoadConfig("does_not_exist")
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "rewards-ledger", cfg.Application.Name)
	assert.Equal(t, "development", cfg.Application.Env)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Empty(t, cfg.Commerce.AccessToken)
}

func TestConfigValidate(t *testing.T) {
	valid := func() *Config {
		v := viper.New()
		setDefaults(v)
		return &Config{
			Server: ServerConfig{
				Port:            v.GetInt("SERVER_PORT"),
				ShutdownTimeout: v.GetDuration("SERVER_SHUTDOWN_TIMEOUT"),
				ReadTimeout:     v.GetDuration("SERVER_READ_TIMEOUT"),
				WriteTimeout:    v.GetDuration("SERVER_WRITE_TIMEOUT"),
				IdleTimeout:     v.GetDuration("SERVER_IDLE_TIMEOUT"),
			},
			Postgres: PostgresConfig{
				URL:             v.GetString("POSTGRES_URL"),
				MaxConns:        int32(v.GetInt("POSTGRES_MAX_CONNS")),
				MinConns:        int32(v.GetInt("POSTGRES_MIN_CONNS")),
				ConnMaxLifetime: v.GetDuration("POSTGRES_MAX_CONN_LIFETIME"),
				ConnMaxIdleTime: v.GetDuration("POSTGRES_MAX_CONN_IDLE_TIME"),
			},
			Commerce: CommerceConfig{
				AdminURL: v.GetString("COMMERCE_ADMIN_URL"),
				Timeout:  v.GetDuration("COMMERCE_TIMEOUT"),
			},
			Mirror: MirrorConfig{
				PoolSize: v.GetInt("MIRROR_POOL_SIZE"),
			},
		}
	}

	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, valid().validate())
	})

	t.Run("missing postgres url", func(t *testing.T) {
		cfg := valid()
		cfg.Postgres.URL = ""
		err := cfg.validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "POSTGRES_URL is required")
	})

	t.Run("bad server port", func(t *testing.T) {
		cfg := valid()
		cfg.Server.Port = 0
		err := cfg.validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "SERVER_PORT must be greater than 0")
	})

	t.Run("bad mirror pool size", func(t *testing.T) {
		cfg := valid()
		cfg.Mirror.PoolSize = 0
		err := cfg.validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "MIRROR_POOL_SIZE must be greater than 0")
	})
}
