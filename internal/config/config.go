package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// developmentJWTSecret signs tokens when no secret is configured outside production.
const developmentJWTSecret = "super_secret_key_for_pos_system_dev"

// Config holds all application configuration
type Config struct {
	App         AppConfig
	Database    DatabaseConfig
	Log         LogConfig
	JWT         JWTConfig
	HTTP        HTTPConfig
	Sales       SalesConfig
	Returns     ReturnsConfig
	Adjustments AdjustmentsConfig
	Redis       RedisConfig
	Kafka       KafkaConfig
	AI          AIConfig
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name              string
	Env               string
	Port              string
	BaseURL           string
	AllowRegistration bool
	UploadDir         string
	WebDir            string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Driver          string // mysql or sqlite
	DSN             string
	LogLevel        string // silent, error, warn, info
	ConnectAttempts int
	RetryDelay      time.Duration
	MaxOpenConns    int
	MaxIdleConns    int
	SlowThreshold   time.Duration
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string
	Format string
	Output string
}

// JWTConfig holds token signing settings
type JWTConfig struct {
	Secret     string
	Expiration time.Duration
}

// HTTPConfig holds HTTP server settings
type HTTPConfig struct {
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	ShutdownTimeout  time.Duration
	CORSAllowOrigins []string
}

// SalesConfig holds checkout settings
type SalesConfig struct {
	TaxRate decimal.Decimal
}

// ReturnsConfig holds the returns workflow settings
type ReturnsConfig struct {
	ApprovalThreshold decimal.Decimal
	// EnforceReturnable validates requested quantities against what is
	// still returnable instead of the sold quantity alone.
	EnforceReturnable bool
	LockSaleRows      bool
	PendingCountTTL   time.Duration
}

// AdjustmentsConfig holds the inventory adjustment settings
type AdjustmentsConfig struct {
	ApprovalThreshold decimal.Decimal
	PendingCountTTL   time.Duration
}

// RedisConfig holds cache connection settings
type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

// KafkaConfig holds event publishing settings
type KafkaConfig struct {
	Enabled      bool
	Brokers      []string
	Topic        string
	WriteTimeout time.Duration
}

// AIConfig holds the assistant settings
type AIConfig struct {
	GeminiAPIKey string
	Model        string
}

// Load reads configuration with the following priority (highest first):
//  1. Environment variables with POS_ prefix (e.g. POS_DATABASE_DSN),
//     including those loaded from a .env file
//  2. config.toml
//  3. Built-in defaults
func Load() (*Config, error) {
	// A missing .env is fine, the real environment still applies.
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	return FromViper(v)
}

// FromViper builds a Config from an already populated viper instance.
func FromViper(v *viper.Viper) (*Config, error) {
	v.SetEnvPrefix("POS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	taxRate, err := decimalKey(v, "sales.tax_rate")
	if err != nil {
		return nil, err
	}
	returnsThreshold, err := decimalKey(v, "returns.approval_threshold")
	if err != nil {
		return nil, err
	}
	adjustmentsThreshold, err := decimalKey(v, "adjustments.approval_threshold")
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		App: AppConfig{
			Name:              v.GetString("app.name"),
			Env:               v.GetString("app.env"),
			Port:              v.GetString("app.port"),
			BaseURL:           v.GetString("app.base_url"),
			AllowRegistration: v.GetBool("app.allow_registration"),
			UploadDir:         v.GetString("app.upload_dir"),
			WebDir:            v.GetString("app.web_dir"),
		},
		Database: DatabaseConfig{
			Driver:          v.GetString("database.driver"),
			DSN:             v.GetString("database.dsn"),
			LogLevel:        v.GetString("database.log_level"),
			ConnectAttempts: v.GetInt("database.connect_attempts"),
			RetryDelay:      v.GetDuration("database.retry_delay"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			SlowThreshold:   v.GetDuration("database.slow_threshold"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		JWT: JWTConfig{
			Secret:     v.GetString("jwt.secret"),
			Expiration: v.GetDuration("jwt.expiration"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:      v.GetDuration("http.read_timeout"),
			WriteTimeout:     v.GetDuration("http.write_timeout"),
			ShutdownTimeout:  v.GetDuration("http.shutdown_timeout"),
			CORSAllowOrigins: v.GetStringSlice("http.cors_allow_origins"),
		},
		Sales: SalesConfig{TaxRate: taxRate},
		Returns: ReturnsConfig{
			ApprovalThreshold: returnsThreshold,
			EnforceReturnable: v.GetBool("returns.enforce_returnable"),
			LockSaleRows:      v.GetBool("returns.lock_sale_rows"),
			PendingCountTTL:   v.GetDuration("returns.pending_count_ttl"),
		},
		Adjustments: AdjustmentsConfig{
			ApprovalThreshold: adjustmentsThreshold,
			PendingCountTTL:   v.GetDuration("adjustments.pending_count_ttl"),
		},
		Redis: RedisConfig{
			Enabled:  v.GetBool("redis.enabled"),
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Kafka: KafkaConfig{
			Enabled:      v.GetBool("kafka.enabled"),
			Brokers:      v.GetStringSlice("kafka.brokers"),
			Topic:        v.GetString("kafka.topic"),
			WriteTimeout: v.GetDuration("kafka.write_timeout"),
		},
		AI: AIConfig{
			GeminiAPIKey: v.GetString("ai.gemini_api_key"),
			Model:        v.GetString("ai.model"),
		},
	}

	if cfg.JWT.Secret == "" && !cfg.IsProduction() {
		cfg.JWT.Secret = developmentJWTSecret
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "autoparts-pos")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("app.base_url", "http://localhost:8080")
	v.SetDefault("app.allow_registration", false)
	v.SetDefault("app.upload_dir", "./uploads")
	v.SetDefault("app.web_dir", "./web")

	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.log_level", "warn")
	v.SetDefault("database.connect_attempts", 5)
	v.SetDefault("database.retry_delay", 2*time.Second)
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.slow_threshold", 200*time.Millisecond)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output", "stdout")

	v.SetDefault("jwt.expiration", 24*time.Hour)

	v.SetDefault("http.read_timeout", 15*time.Second)
	v.SetDefault("http.write_timeout", 15*time.Second)
	v.SetDefault("http.shutdown_timeout", 10*time.Second)
	v.SetDefault("http.cors_allow_origins", []string{"http://localhost:5173"})

	v.SetDefault("sales.tax_rate", "0.16")

	v.SetDefault("returns.approval_threshold", "1000")
	v.SetDefault("returns.enforce_returnable", true)
	v.SetDefault("returns.lock_sale_rows", true)
	v.SetDefault("returns.pending_count_ttl", 30*time.Second)

	v.SetDefault("adjustments.approval_threshold", "500")
	v.SetDefault("adjustments.pending_count_ttl", 30*time.Second)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "pos.events")
	v.SetDefault("kafka.write_timeout", 5*time.Second)

	v.SetDefault("ai.model", "gemini-2.0-flash-001")
}

func decimalKey(v *viper.Viper, key string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(v.GetString(key))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s must be a decimal number: %w", key, err)
	}
	return d, nil
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	switch c.Database.Driver {
	case "mysql", "sqlite":
	default:
		return fmt.Errorf("database.driver must be mysql or sqlite, got %q", c.Database.Driver)
	}
	if c.Database.ConnectAttempts <= 0 {
		return fmt.Errorf("database.connect_attempts must be positive")
	}
	if c.Sales.TaxRate.IsNegative() || c.Sales.TaxRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("sales.tax_rate must be in [0, 1)")
	}
	if c.Returns.ApprovalThreshold.IsNegative() {
		return fmt.Errorf("returns.approval_threshold cannot be negative")
	}
	if c.Adjustments.ApprovalThreshold.IsNegative() {
		return fmt.Errorf("adjustments.approval_threshold cannot be negative")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers is required when kafka is enabled")
	}

	if c.App.Env == "production" {
		if len(c.JWT.Secret) < 32 {
			return fmt.Errorf("jwt.secret must be at least 32 characters in production")
		}
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required in production")
		}
		if c.App.AllowRegistration {
			return fmt.Errorf("app.allow_registration cannot be enabled in production")
		}
	}
	return nil
}

// IsProduction reports whether the app runs in production mode.
func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}
