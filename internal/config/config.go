package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	API       APIConfig       `mapstructure:"api"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Messaging MessagingConfig `mapstructure:"messaging"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Delivery  DeliveryConfig  `mapstructure:"delivery"`
	Security  SecurityConfig  `mapstructure:"security"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Bootstrap BootstrapConfig `mapstructure:"bootstrap"`
}

// APIConfig holds REST API server configuration.
type APIConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds PostgreSQL connection configuration.
type DatabaseConfig struct {
	URL            string        `mapstructure:"url"`
	PoolMin        int32         `mapstructure:"pool_min"`
	PoolMax        int32         `mapstructure:"pool_max"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level     string `mapstructure:"level"`
	Format    string `mapstructure:"format"`
	Output    string `mapstructure:"output"`
	FilePath  string `mapstructure:"file_path"`
	MaxSizeMB int    `mapstructure:"max_size_mb"`
	MaxFiles  int    `mapstructure:"max_files"`
}

// AuthConfig holds JWT configuration for API callers.
type AuthConfig struct {
	SigningKey        string        `mapstructure:"signing_key"`
	AccessTokenExpiry time.Duration `mapstructure:"access_token_expiry"`
	Issuer            string        `mapstructure:"issuer"`
	Audience          string        `mapstructure:"audience"`
}

// RedisConfig holds Redis connection and rate limit configuration.
// An empty Addr disables Redis-backed rate limiting.
type RedisConfig struct {
	Addr           string        `mapstructure:"addr"`
	Password       string        `mapstructure:"password"`
	DB             int           `mapstructure:"db"`
	TestSendLimit  int           `mapstructure:"test_send_limit"`
	TestSendWindow time.Duration `mapstructure:"test_send_window"`
}

// MessagingConfig holds the tenant, template and search settings used by the
// messaging core.
type MessagingConfig struct {
	SystemTenant            string `mapstructure:"system_tenant"`
	DefaultTransportAccount string `mapstructure:"default_transport_account"`
	ReadTrackingURL         string `mapstructure:"read_tracking_url"`
	ReadCodeParam           string `mapstructure:"read_code_param"`
	MaxSearchPageSize       int    `mapstructure:"max_search_page_size"`
	LanguagePolicy          string `mapstructure:"language_policy"`
	TestEventType           string `mapstructure:"test_event_type"`
}

// CacheConfig holds reference data cache TTLs.
type CacheConfig struct {
	ReferenceTTL time.Duration `mapstructure:"reference_ttl"`
	SSLModeTTL   time.Duration `mapstructure:"ssl_mode_ttl"`
}

// DeliveryConfig holds background delivery configuration.
type DeliveryConfig struct {
	Interval    time.Duration `mapstructure:"interval"`
	MaxRetries  int           `mapstructure:"max_retries"`
	Concurrency int           `mapstructure:"concurrency"`
	SendTimeout time.Duration `mapstructure:"send_timeout"`
	Sink        string        `mapstructure:"sink"`
	SinkDir     string        `mapstructure:"sink_dir"`
}

// SecurityConfig holds the key used to encrypt transport credentials at rest.
type SecurityConfig struct {
	CredentialsKey string `mapstructure:"credentials_key"`
}

// MetricsConfig holds the Prometheus listener address for the delivery worker.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// BootstrapConfig controls startup seeding of the system tenant.
type BootstrapConfig struct {
	SeedSystemTenant bool                     `mapstructure:"seed_system_tenant"`
	SystemTransport  SystemTransportBootstrap `mapstructure:"system_transport"`
}

// SystemTransportBootstrap describes the system default transport created on
// first boot. Its user name is messaging.default_transport_account.
type SystemTransportBootstrap struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Password        string `mapstructure:"password"`
	SSLMode         string `mapstructure:"ssl_mode"`
	FromAddress     string `mapstructure:"from_address"`
	FromDisplayName string `mapstructure:"from_display_name"`
}

// Load reads configuration from the given config directory path.
// It looks for a file named "config.yaml" in that directory.
// Environment variables with prefix MESSAGING_ override file values.
// For example, MESSAGING_DATABASE_URL overrides database.url.
// A .env file in the working directory, if present, is loaded first.
func Load(configPath string) (*Config, error) {
	// Missing .env is the normal case outside local development.
	_ = godotenv.Load()

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)

	v.SetEnvPrefix("MESSAGING")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the settings the services cannot start without.
func (c *Config) Validate() error {
	if c.Messaging.SystemTenant == "" {
		return fmt.Errorf("messaging.system_tenant is required")
	}
	if c.Messaging.MaxSearchPageSize < 1 {
		return fmt.Errorf("messaging.max_search_page_size must be at least 1, got %d", c.Messaging.MaxSearchPageSize)
	}
	switch c.Messaging.LanguagePolicy {
	case "auto_create", "reject":
	default:
		return fmt.Errorf("messaging.language_policy must be auto_create or reject, got %q", c.Messaging.LanguagePolicy)
	}
	if c.Delivery.MaxRetries < 1 {
		return fmt.Errorf("delivery.max_retries must be at least 1, got %d", c.Delivery.MaxRetries)
	}
	switch c.Delivery.Sink {
	case "smtp", "stdout", "file":
	default:
		return fmt.Errorf("delivery.sink must be smtp, stdout or file, got %q", c.Delivery.Sink)
	}
	return nil
}
