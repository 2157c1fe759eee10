package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"seatwarden/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	cfg := Config{Database: DatabaseConfig{Path: "seatwarden.db"}}
	cfg.applyDefaults()
	return cfg
}

func TestLoadConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	t.Setenv("SEATWARDEN_TEST_KEY", "secret-from-env")
	yamlContent := `
database:
  path: "test.db"
holds:
  ttl:
    cart: 10m
    approval_pending: 72h
sweeper:
  interval: 5s
api:
  enabled: true
  auth:
    enabled: true
    api_keys:
      - key: "${SEATWARDEN_TEST_KEY}"
        name: "web"
        tenant: "acme"
        permissions: ["read", "write"]
`
	require.NoError(t, os.WriteFile(configPath, []byte(yamlContent), 0o644))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, "test.db", cfg.Database.Path)
	assert.Equal(t, 10*time.Minute, cfg.Holds.TTL.Cart)
	assert.Equal(t, models.DefaultPaymentPendingTTL, cfg.Holds.TTL.PaymentPending)
	assert.Equal(t, 72*time.Hour, cfg.Holds.TTL.ApprovalPending)
	assert.Equal(t, 5*time.Second, cfg.Sweeper.Interval)
	assert.True(t, cfg.API.HTTP.Enabled)
	require.Len(t, cfg.API.Auth.APIKeys, 1)
	assert.Equal(t, "secret-from-env", cfg.API.Auth.APIKeys[0].Key)
	assert.Equal(t, "acme", cfg.API.Auth.APIKeys[0].Tenant)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid config", mutate: func(*Config) {}},
		{name: "missing database path", mutate: func(c *Config) { c.Database.Path = "" }, wantErr: true},
		{name: "ttl ordering", mutate: func(c *Config) { c.Holds.TTL.Cart = time.Hour }, wantErr: true},
		{name: "negative ttl", mutate: func(c *Config) { c.Holds.TTL.PaymentPending = -time.Second }, wantErr: true},
		{name: "zero sweep interval", mutate: func(c *Config) { c.Sweeper.Interval = 0 }, wantErr: true},
		{name: "negative retries", mutate: func(c *Config) { c.Concurrency.MaxRetries = -1 }, wantErr: true},
		{name: "sample ratio above one", mutate: func(c *Config) { c.Tracing.SampleRatio = 1.5 }, wantErr: true},
		{
			name: "duplicate api key",
			mutate: func(c *Config) {
				c.API.Auth.Enabled = true
				c.API.Auth.APIKeys = []APIClientKey{{Key: "k", Name: "a"}, {Key: "k", Name: "b"}}
			},
			wantErr: true,
		},
		{
			name: "backup without storage",
			mutate: func(c *Config) {
				c.Backup.Enabled = true
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.applyDefaults()

	assert.Equal(t, models.DefaultCartTTL, cfg.Holds.TTL.Cart)
	assert.Equal(t, models.DefaultApprovalPendingTTL, cfg.Holds.TTL.ApprovalPending)
	assert.Equal(t, models.DefaultSweepInterval, cfg.Sweeper.Interval)
	assert.Equal(t, models.DefaultSweepBatchSize, cfg.Sweeper.BatchSize)
	assert.Equal(t, models.DefaultMaxRetries, cfg.Concurrency.MaxRetries)
	assert.Equal(t, 8081, cfg.API.GRPC.Port)
	assert.Equal(t, "x-api-key", cfg.API.Auth.HeaderAPIKey)
	assert.Equal(t, "seatwarden:notifications", cfg.Redis.QueueKey)
	assert.True(t, cfg.Sweeper.IsEnabled())
	assert.Zero(t, cfg.Tracing.SampleRatio)

	traced := &Config{Tracing: TracingConfig{Enabled: true}}
	traced.applyDefaults()
	assert.Equal(t, 1.0, traced.Tracing.SampleRatio)
}

func TestHoldTTLFor(t *testing.T) {
	ttl := HoldTTLConfig{Cart: time.Minute, PaymentPending: 2 * time.Minute, ApprovalPending: time.Hour}
	assert.Equal(t, time.Minute, ttl.For(models.HoldCart))
	assert.Equal(t, 2*time.Minute, ttl.For(models.HoldPaymentPending))
	assert.Equal(t, time.Hour, ttl.For(models.HoldApprovalPending))
	assert.Zero(t, ttl.For(models.HoldType("NOPE")))
}
