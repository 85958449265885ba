// AngelaMos | 2026
// config.go

package config

import (
	"fmt"
	"sync"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	App       AppConfig       `koanf:"app"`
	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	Redis     RedisConfig     `koanf:"redis"`
	Session   SessionConfig   `koanf:"session"`
	RateLimit RateLimitConfig `koanf:"rate_limit"`
	CORS      CORSConfig      `koanf:"cors"`
	Log       LogConfig       `koanf:"log"`
	Otel      OtelConfig      `koanf:"otel"`
	Provider  ProviderConfig  `koanf:"provider"`
	Outbox    OutboxConfig    `koanf:"outbox"`
}

type AppConfig struct {
	Name        string `koanf:"name"`
	Version     string `koanf:"version"`
	Environment string `koanf:"environment"`
}

type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	IdleTimeout     time.Duration `koanf:"idle_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

type DatabaseConfig struct {
	URL             string        `koanf:"url"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `koanf:"conn_max_idle_time"`
	AutoMigrate     bool          `koanf:"auto_migrate"`
}

type RedisConfig struct {
	URL          string `koanf:"url"`
	PoolSize     int    `koanf:"pool_size"`
	MinIdleConns int    `koanf:"min_idle_conns"`
}

type SessionConfig struct {
	PrivateKeyPath string        `koanf:"private_key_path"`
	PublicKeyPath  string        `koanf:"public_key_path"`
	TokenExpire    time.Duration `koanf:"token_expire"`
	ClockSkew      time.Duration `koanf:"clock_skew"`
	Issuer         string        `koanf:"issuer"`
	Audience       string        `koanf:"audience"`
	CookieName     string        `koanf:"cookie_name"`
	CookieSecure   bool          `koanf:"cookie_secure"`
}

type RateLimitConfig struct {
	Requests int           `koanf:"requests"`
	Window   time.Duration `koanf:"window"`
	Burst    int           `koanf:"burst"`
}

type CORSConfig struct {
	AllowedOrigins   []string `koanf:"allowed_origins"`
	AllowedMethods   []string `koanf:"allowed_methods"`
	AllowedHeaders   []string `koanf:"allowed_headers"`
	AllowCredentials bool     `koanf:"allow_credentials"`
	MaxAge           int      `koanf:"max_age"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

type OtelConfig struct {
	Endpoint    string  `koanf:"endpoint"`
	ServiceName string  `koanf:"service_name"`
	Enabled     bool    `koanf:"enabled"`
	Insecure    bool    `koanf:"insecure"`
	SampleRate  float64 `koanf:"sample_rate"`
}

// ProviderConfig selects mock implementations for the external
// collaborators (identity verification, billing checkout, drive storage).
// Real integrations are deployment concerns, not state machine concerns.
type ProviderConfig struct {
	IdentityMock bool   `koanf:"identity_mock"`
	BillingMock  bool   `koanf:"billing_mock"`
	DriveMock    bool   `koanf:"drive_mock"`
	CheckoutURL  string `koanf:"checkout_url"`
}

type OutboxConfig struct {
	PollInterval time.Duration `koanf:"poll_interval"`
	BatchSize    int           `koanf:"batch_size"`
}

var (
	cfg  *Config
	once sync.Once
)

func Load(configPath string) (*Config, error) {
	var loadErr error

	once.Do(func() {
		k := koanf.New(".")

		if err := loadDefaults(k); err != nil {
			loadErr = fmt.Errorf("load defaults: %w", err)
			return
		}

		if configPath != "" {
			if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
				loadErr = fmt.Errorf("load config file: %w", err)
				return
			}
		}

		if err := k.Load(env.Provider("", ".", envKeyReplacer), nil); err != nil {
			loadErr = fmt.Errorf("load env vars: %w", err)
			return
		}

		cfg = &Config{}
		if err := k.Unmarshal("", cfg); err != nil {
			loadErr = fmt.Errorf("unmarshal config: %w", err)
			return
		}

		if err := validate(cfg); err != nil {
			loadErr = fmt.Errorf("validate config: %w", err)
			return
		}
	})

	if loadErr != nil {
		return nil, loadErr
	}

	return cfg, nil
}

func Get() *Config {
	if cfg == nil {
		panic("config not loaded: call Load() first")
	}
	return cfg
}

func loadDefaults(k *koanf.Koanf) error {
	defaults := map[string]any{
		"app.name":        "TenFold",
		"app.version":     "1.0.0",
		"app.environment": "development",

		"server.host":             "0.0.0.0",
		"server.port":             8000,
		"server.read_timeout":     "30s",
		"server.write_timeout":    "30s",
		"server.idle_timeout":     "120s",
		"server.shutdown_timeout": "15s",

		"database.max_open_conns":     25,
		"database.max_idle_conns":     5,
		"database.conn_max_lifetime":  "1h",
		"database.conn_max_idle_time": "30m",
		"database.auto_migrate":       true,

		"redis.pool_size":      10,
		"redis.min_idle_conns": 5,

		"session.token_expire":     "168h",
		"session.clock_skew":       "300s",
		"session.issuer":           "tenfold",
		"session.audience":         "tenfold-web",
		"session.cookie_name":      "access_token",
		"session.cookie_secure":    true,
		"session.private_key_path": "keys/private.pem",
		"session.public_key_path":  "keys/public.pem",

		"rate_limit.requests": 100,
		"rate_limit.window":   "1m",
		"rate_limit.burst":    20,

		"cors.allowed_origins": []string{"http://localhost:8000"},
		"cors.allowed_methods": []string{
			"GET",
			"POST",
			"PUT",
			"PATCH",
			"DELETE",
			"OPTIONS",
		},
		"cors.allowed_headers": []string{
			"Accept",
			"Authorization",
			"Content-Type",
			"X-Request-ID",
		},
		"cors.allow_credentials": true,
		"cors.max_age":           300,

		"log.level":  "info",
		"log.format": "json",

		"otel.enabled":      false,
		"otel.insecure":     true,
		"otel.sample_rate":  0.1,
		"otel.service_name": "tenfold-api",

		"provider.identity_mock": false,
		"provider.billing_mock":  false,
		"provider.drive_mock":    false,
		"provider.checkout_url":  "https://checkout.stripe.com/pay",

		"outbox.poll_interval": "1s",
		"outbox.batch_size":    32,
	}

	for key, value := range defaults {
		if err := k.Set(key, value); err != nil {
			return fmt.Errorf("set default %s: %w", key, err)
		}
	}

	return nil
}

var envKeyMap = map[string]string{
	"DATABASE_URL":             "database.url",
	"DATABASE_AUTO_MIGRATE":    "database.auto_migrate",
	"REDIS_URL":                "redis.url",
	"ENVIRONMENT":              "app.environment",
	"HOST":                     "server.host",
	"PORT":                     "server.port",
	"LOG_LEVEL":                "log.level",
	"LOG_FORMAT":               "log.format",
	"SESSION_PRIVATE_KEY_PATH": "session.private_key_path",
	"SESSION_PUBLIC_KEY_PATH":  "session.public_key_path",
	"SESSION_TOKEN_EXPIRE":     "session.token_expire",
	"SESSION_ISSUER":           "session.issuer",
	"SESSION_AUDIENCE":         "session.audience",
	"SESSION_COOKIE_SECURE":    "session.cookie_secure",
	"RATE_LIMIT_REQUESTS":      "rate_limit.requests",
	"RATE_LIMIT_WINDOW":        "rate_limit.window",
	"RATE_LIMIT_BURST":         "rate_limit.burst",
	"OTEL_ENDPOINT":            "otel.endpoint",
	"OTEL_SERVICE_NAME":        "otel.service_name",
	"OTEL_ENABLED":             "otel.enabled",
	"OTEL_INSECURE":            "otel.insecure",
	"OTEL_SAMPLE_RATE":         "otel.sample_rate",
	"USE_MOCK_IDENTITY":        "provider.identity_mock",
	"USE_MOCK_BILLING":         "provider.billing_mock",
	"USE_MOCK_DRIVE":           "provider.drive_mock",
	"OUTBOX_POLL_INTERVAL":     "outbox.poll_interval",
	"OUTBOX_BATCH_SIZE":        "outbox.batch_size",
}

func envKeyReplacer(s string) string {
	if mapped, ok := envKeyMap[s]; ok {
		return mapped
	}
	return ""
}

func validate(c *Config) error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.Session.PrivateKeyPath == "" {
		return fmt.Errorf("SESSION_PRIVATE_KEY_PATH is required")
	}

	if c.Session.PublicKeyPath == "" {
		return fmt.Errorf("SESSION_PUBLIC_KEY_PATH is required")
	}

	if c.CORS.AllowCredentials {
		for _, origin := range c.CORS.AllowedOrigins {
			if origin == "*" {
				return fmt.Errorf(
					"CORS wildcard '*' cannot be used with AllowCredentials",
				)
			}
		}
	}

	if c.App.Environment == "production" {
		if c.Otel.Enabled && c.Otel.Insecure {
			return fmt.Errorf("OTEL_INSECURE must be false in production")
		}
		if c.Provider.IdentityMock || c.Provider.BillingMock ||
			c.Provider.DriveMock {
			return fmt.Errorf("mock providers cannot be enabled in production")
		}
	}

	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server.read_timeout must be positive")
	}

	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server.write_timeout must be positive")
	}

	if c.Outbox.PollInterval <= 0 {
		return fmt.Errorf("outbox.poll_interval must be positive")
	}

	return nil
}

func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}
