package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"seatwarden/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App         AppConfig         `yaml:"app"`
	Database    DatabaseConfig    `yaml:"database"`
	Redis       RedisConfig       `yaml:"redis"`
	Backup      BackupConfig      `yaml:"backup"`
	Monitoring  MonitoringConfig  `yaml:"monitoring"`
	Logging     LoggingConfig     `yaml:"logging"`
	API         APIConfig         `yaml:"api"`
	Holds       HoldsConfig       `yaml:"holds"`
	Sweeper     SweeperConfig     `yaml:"sweeper"`
	Concurrency ConcurrencyConfig `yaml:"concurrency"`
	Seed        SeedConfig        `yaml:"seed"`
	Tracing     TracingConfig     `yaml:"tracing"`
}

type APIConfig struct {
	Enabled   bool               `yaml:"enabled"`
	HTTP      APIHTTPConfig      `yaml:"http"`
	GRPC      APIGRPCConfig      `yaml:"grpc"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIHTTPConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

type APIGRPCConfig struct {
	Enabled    bool         `yaml:"enabled"`
	Port       int          `yaml:"port"`
	Reflection bool         `yaml:"reflection"`
	TLS        APITLSConfig `yaml:"tls"`
}

type APITLSConfig struct {
	Enabled           bool   `yaml:"enabled"`
	CertFile          string `yaml:"cert_file"`
	KeyFile           string `yaml:"key_file"`
	ClientCAFile      string `yaml:"client_ca_file"`
	RequireClientCert bool   `yaml:"require_client_cert"`
}

type APIAuthConfig struct {
	Enabled      bool           `yaml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	HeaderExtra  string         `yaml:"header_extra"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

// APIClientKey is one API caller. Tenant is recorded on everything the caller creates.
type APIClientKey struct {
	Key         string   `yaml:"key"`
	Extra       string   `yaml:"extra"`
	Name        string   `yaml:"name"`
	Tenant      string   `yaml:"tenant"`
	Permissions []string `yaml:"permissions"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
	QueueKey string `yaml:"queue_key"`
}

type BackupConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Interval      time.Duration `yaml:"interval"`
	RetentionDays int           `yaml:"retention_days"`
	StoragePath   string        `yaml:"storage_path"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

// HoldsConfig maps hold types to their time-to-live.
type HoldsConfig struct {
	TTL HoldTTLConfig `yaml:"ttl"`
}

type HoldTTLConfig struct {
	Cart            time.Duration `yaml:"cart"`
	PaymentPending  time.Duration `yaml:"payment_pending"`
	ApprovalPending time.Duration `yaml:"approval_pending"`
}

// For returns the TTL for t, or zero for unknown types.
func (c HoldTTLConfig) For(t models.HoldType) time.Duration {
	switch t {
	case models.HoldCart:
		return c.Cart
	case models.HoldPaymentPending:
		return c.PaymentPending
	case models.HoldApprovalPending:
		return c.ApprovalPending
	default:
		return 0
	}
}

type SweeperConfig struct {
	Enabled   *bool         `yaml:"enabled"`
	Interval  time.Duration `yaml:"interval"`
	BatchSize int           `yaml:"batch_size"`
}

// IsEnabled defaults to true when the key is absent.
func (c SweeperConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

type ConcurrencyConfig struct {
	MaxRetries   int           `yaml:"max_retries"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
}

// TracingConfig controls the OpenTelemetry tracer provider. Spans go to an
// OTLP/gRPC collector when Endpoint is set.
type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Endpoint    string  `yaml:"endpoint"`
	Insecure    bool    `yaml:"insecure"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

type SeedConfig struct {
	DeparturesFile string `yaml:"departures_file"`
}

// Load reads the YAML file at configPath after loading an optional .env file.
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}

	ttl := c.Holds.TTL
	if ttl.Cart <= 0 || ttl.PaymentPending <= 0 || ttl.ApprovalPending <= 0 {
		return errors.New("hold ttls must be positive")
	}
	if ttl.Cart > ttl.PaymentPending || ttl.PaymentPending > ttl.ApprovalPending {
		return fmt.Errorf("hold ttls must satisfy cart <= payment_pending <= approval_pending (got %s, %s, %s)",
			ttl.Cart, ttl.PaymentPending, ttl.ApprovalPending)
	}

	if c.Sweeper.Interval <= 0 {
		return errors.New("sweeper interval must be positive")
	}
	if c.Concurrency.MaxRetries < 0 {
		return errors.New("concurrency max_retries must not be negative")
	}

	if c.API.Auth.Enabled {
		seen := make(map[string]bool, len(c.API.Auth.APIKeys))
		for _, k := range c.API.Auth.APIKeys {
			if k.Key == "" {
				return fmt.Errorf("api key for client %q is empty", k.Name)
			}
			if seen[k.Key] {
				return fmt.Errorf("duplicate api key for client %q", k.Name)
			}
			seen[k.Key] = true
		}
	}

	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return fmt.Errorf("tracing sample_ratio must be within [0, 1] (got %v)", c.Tracing.SampleRatio)
	}

	if c.Backup.Enabled && c.Backup.StoragePath == "" {
		return errors.New("backup storage path is required when backups are enabled")
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "seatwarden"
	}
	if c.API.GRPC.Port == 0 {
		c.API.GRPC.Port = 8081
	}
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if !c.API.HTTP.Enabled && c.API.Enabled {
		c.API.HTTP.Enabled = true
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}
	if c.API.Auth.HeaderExtra == "" {
		c.API.Auth.HeaderExtra = "x-api-extra"
	}
	if c.Redis.QueueKey == "" {
		c.Redis.QueueKey = "seatwarden:notifications"
	}

	if c.Holds.TTL.Cart == 0 {
		c.Holds.TTL.Cart = models.DefaultCartTTL
	}
	if c.Holds.TTL.PaymentPending == 0 {
		c.Holds.TTL.PaymentPending = models.DefaultPaymentPendingTTL
	}
	if c.Holds.TTL.ApprovalPending == 0 {
		c.Holds.TTL.ApprovalPending = models.DefaultApprovalPendingTTL
	}

	if c.Sweeper.Interval == 0 {
		c.Sweeper.Interval = models.DefaultSweepInterval
	}
	if c.Sweeper.BatchSize == 0 {
		c.Sweeper.BatchSize = models.DefaultSweepBatchSize
	}

	if c.Concurrency.MaxRetries == 0 {
		c.Concurrency.MaxRetries = models.DefaultMaxRetries
	}
	if c.Concurrency.InitialDelay == 0 {
		c.Concurrency.InitialDelay = time.Millisecond
	}
	if c.Concurrency.MaxDelay == 0 {
		c.Concurrency.MaxDelay = 50 * time.Millisecond
	}

	if c.Backup.Interval == 0 {
		c.Backup.Interval = 24 * time.Hour
	}

	if c.Tracing.Enabled && c.Tracing.SampleRatio == 0 {
		c.Tracing.SampleRatio = 1
	}
}
