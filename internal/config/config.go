// Package config loads the service configuration from a YAML file with
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/gighire/backend/internal/models"
)

const (
	MinPort = 1
	MaxPort = 65535

	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Store       StoreConfig       `yaml:"store"`
	Redis       RedisConfig       `yaml:"redis"`
	Auth        AuthConfig        `yaml:"auth"`
	Logging     LoggingConfig     `yaml:"logging"`
	Marketplace MarketplaceConfig `yaml:"marketplace"`
	Sweeps      SweepConfig       `yaml:"sweeps"`
	Notify      NotifyConfig      `yaml:"notify"`
	Payment     PaymentConfig     `yaml:"payment"`
	AutoRelease AutoReleaseConfig `yaml:"auto_release"`
}

type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	CORSOrigins     []string      `yaml:"cors_origins"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

func (s ServerConfig) Addr() string { return fmt.Sprintf("%s:%d", s.Host, s.Port) }

type StoreConfig struct {
	Driver      string `yaml:"driver"`
	DatabaseURL string `yaml:"database_url"`
	Migrate     bool   `yaml:"migrate"`
}

// RedisConfig is optional. With no address the sweep lock is process local.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type AuthConfig struct {
	JWTSecret         string        `yaml:"jwt_secret"`
	TokenTTL          time.Duration `yaml:"token_ttl"`
	AutoVerifyWorkers bool          `yaml:"auto_verify_workers"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type MarketplaceConfig struct {
	AcceptanceWindow   time.Duration `yaml:"acceptance_window"`
	CancellationWindow time.Duration `yaml:"cancellation_window"`
}

type SweepConfig struct {
	AutoReleaseInterval     time.Duration `yaml:"auto_release_interval"`
	SelectionExpiryInterval time.Duration `yaml:"selection_expiry_interval"`
	JobExpiryInterval       time.Duration `yaml:"job_expiry_interval"`
	LockTTL                 time.Duration `yaml:"lock_ttl"`
	BatchSize               int           `yaml:"batch_size"`
	MaxWorkers              int           `yaml:"max_workers"`
}

type NotifyConfig struct {
	Sender     string        `yaml:"sender"`
	WebhookURL string        `yaml:"webhook_url"`
	Timeout    time.Duration `yaml:"timeout"`
	AMQPURL    string        `yaml:"amqp_url"`
	Exchange   string        `yaml:"exchange"`
	RoutingKey string        `yaml:"routing_key"`
}

// PaymentConfig selects the gateway. An empty BaseURL uses the sandbox.
type PaymentConfig struct {
	BaseURL     string        `yaml:"base_url"`
	SecretKey   string        `yaml:"secret_key"`
	CallbackURL string        `yaml:"callback_url"`
	Timeout     time.Duration `yaml:"timeout"`
}

func (p PaymentConfig) Sandbox() bool { return p.BaseURL == "" }

// AutoReleaseConfig seeds the rule table on first start. Rules wins over
// SeedDefaults when both are set.
type AutoReleaseConfig struct {
	SeedDefaults bool                     `yaml:"seed_defaults"`
	Rules        []models.AutoReleaseRule `yaml:"rules"`
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			CORSOrigins:     []string{"http://localhost:3000"},
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 20 * time.Second,
		},
		Store:   StoreConfig{Driver: DriverPostgres, Migrate: true},
		Auth:    AuthConfig{TokenTTL: 24 * time.Hour},
		Logging: LoggingConfig{Level: "info", Format: "json"},
		Marketplace: MarketplaceConfig{
			AcceptanceWindow:   time.Hour,
			CancellationWindow: 24 * time.Hour,
		},
		Sweeps: SweepConfig{
			AutoReleaseInterval:     30 * time.Minute,
			SelectionExpiryInterval: 5 * time.Minute,
			JobExpiryInterval:       15 * time.Minute,
			LockTTL:                 5 * time.Minute,
			BatchSize:               500,
			MaxWorkers:              10,
		},
		Notify:      NotifyConfig{Sender: "log", Timeout: 10 * time.Second},
		Payment:     PaymentConfig{Timeout: 15 * time.Second},
		AutoRelease: AutoReleaseConfig{SeedDefaults: true},
	}
}

// Load reads .env if present, then the YAML file at path (skipped when
// empty), then environment overrides.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str("HOST", &c.Server.Host)
	str("STORE_DRIVER", &c.Store.Driver)
	str("DATABASE_URL", &c.Store.DatabaseURL)
	str("REDIS_ADDR", &c.Redis.Addr)
	str("REDIS_PASSWORD", &c.Redis.Password)
	str("JWT_SECRET", &c.Auth.JWTSecret)
	str("LOG_LEVEL", &c.Logging.Level)
	str("LOG_FORMAT", &c.Logging.Format)
	str("NOTIFY_SENDER", &c.Notify.Sender)
	str("NOTIFY_WEBHOOK_URL", &c.Notify.WebhookURL)
	str("AMQP_URL", &c.Notify.AMQPURL)
	str("PAYMENT_BASE_URL", &c.Payment.BaseURL)
	str("PAYMENT_SECRET_KEY", &c.Payment.SecretKey)
	str("PAYMENT_CALLBACK_URL", &c.Payment.CallbackURL)

	if v, ok := lookup("PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PORT: %w", err)
		}
		c.Server.Port = port
	}
	if v, ok := lookup("CORS_ORIGINS"); ok && v != "" {
		c.Server.CORSOrigins = strings.Split(v, ",")
	}
	if v, ok := lookup("AUTO_VERIFY_WORKERS"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("AUTO_VERIFY_WORKERS: %w", err)
		}
		c.Auth.AutoVerifyWorkers = b
	}
	return nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		errs = append(errs, fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort))
	}
	switch c.Store.Driver {
	case DriverPostgres:
		if c.Store.DatabaseURL == "" {
			errs = append(errs, errors.New("database_url is required for the postgres driver"))
		}
	case DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown store driver %q", c.Store.Driver))
	}
	if len(c.Auth.JWTSecret) < 16 {
		errs = append(errs, errors.New("jwt_secret must be at least 16 characters"))
	}
	if c.Marketplace.AcceptanceWindow <= 0 {
		errs = append(errs, errors.New("acceptance_window must be positive"))
	}
	if c.Marketplace.CancellationWindow < 0 {
		errs = append(errs, errors.New("cancellation_window must not be negative"))
	}
	switch c.Notify.Sender {
	case "log":
	case "webhook":
		if c.Notify.WebhookURL == "" {
			errs = append(errs, errors.New("webhook_url is required for the webhook sender"))
		}
	case "amqp":
		if c.Notify.AMQPURL == "" || c.Notify.Exchange == "" {
			errs = append(errs, errors.New("amqp_url and exchange are required for the amqp sender"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown notify sender %q", c.Notify.Sender))
	}
	if !c.Payment.Sandbox() && c.Payment.SecretKey == "" {
		errs = append(errs, errors.New("payment secret_key is required with a base_url"))
	}
	return errors.Join(errs...)
}
