// Package config loads the service configuration from defaults, an optional
// YAML file and CHECKOUT_* environment variables.
package config

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/fjod/go_checkout/internal/delivery"
)

const EnvPrefix = "CHECKOUT"

const minKeyBytes = 32

type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Server   ServerConfig   `mapstructure:"server"`
	Checkout CheckoutConfig `mapstructure:"checkout"`
	Payment  PaymentConfig  `mapstructure:"payment"`
	Delivery DeliveryConfig `mapstructure:"delivery"`
	Regions  RegionsConfig  `mapstructure:"regions"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Database DatabaseConfig `mapstructure:"database"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Log      LogConfig      `mapstructure:"log"`
	Security SecurityConfig `mapstructure:"security"`
}

type AppConfig struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"` // development, production
}

type ServerConfig struct {
	Port            string          `mapstructure:"port"`
	ReadTimeout     time.Duration   `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration   `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration   `mapstructure:"shutdown_timeout"`
	RateLimit       RateLimitConfig `mapstructure:"rate_limit"`
}

type RateLimitConfig struct {
	Enabled bool    `mapstructure:"enabled"`
	Rate    float64 `mapstructure:"rate"` // submissions per second per client IP
	Burst   int     `mapstructure:"burst"`
}

type CheckoutConfig struct {
	PayloadParam string        `mapstructure:"payload_param"`
	Currency     string        `mapstructure:"currency"`
	Placeholders string        `mapstructure:"placeholders"` // default, strict
	ClearDelay   time.Duration `mapstructure:"clear_delay"`
	Guard        string        `mapstructure:"guard"` // memory, redis
	GuardTTL     time.Duration `mapstructure:"guard_ttl"`
	ResultWait   time.Duration `mapstructure:"result_wait"`
	// StorefrontURL is where the shopper returns after checkout.
	StorefrontURL string `mapstructure:"storefront_url"`
}

type PaymentConfig struct {
	BackendURL string        `mapstructure:"backend_url"`
	Strategy   string        `mapstructure:"strategy"` // hosted, widget
	CSRFHeader string        `mapstructure:"csrf_header"`
	Timeout    time.Duration `mapstructure:"timeout"`
	WidgetURL  string        `mapstructure:"widget_url"`
	// WidgetScript and PublicKey configure the embedded payment form.
	WidgetScript    string        `mapstructure:"widget_script"`
	PublicKey       string        `mapstructure:"public_key"`
	ConfirmationTTL time.Duration `mapstructure:"confirmation_ttl"`
}

type DeliveryConfig struct {
	ShippingFeeMinor int64            `mapstructure:"shipping_fee_minor"`
	Stores           []delivery.Store `mapstructure:"stores"`
}

type RegionsConfig struct {
	APIURL  string        `mapstructure:"api_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

func (r RedisConfig) Enabled() bool {
	return r.Addr != ""
}

type DatabaseConfig struct {
	Driver     string `mapstructure:"driver"` // sqlite, postgres
	SQLitePath string `mapstructure:"sqlite_path"`
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	User       string `mapstructure:"user"`
	Password   string `mapstructure:"password"`
	Name       string `mapstructure:"name"`
	SSLMode    string `mapstructure:"sslmode"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type SecurityConfig struct {
	// CSRFKeyB64 and SessionKeyB64 are base64 encoded, at least 32 bytes decoded.
	CSRFKeyB64    string `mapstructure:"csrf_key"`
	SessionKeyB64 string `mapstructure:"session_key"`
	CookieSecure  bool   `mapstructure:"cookie_secure"`
	CookieDomain  string `mapstructure:"cookie_domain"`

	CSRFKey    []byte `mapstructure:"-"`
	SessionKey []byte `mapstructure:"-"`
	// Generated is true when a key was invented for development.
	Generated bool `mapstructure:"-"`
}

func (c *Config) IsDevelopment() bool {
	return c.App.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}

// SubmitDisabledReason is non-empty when submissions cannot work with this
// configuration. The checkout page still renders.
func (c *Config) SubmitDisabledReason() string {
	var reasons []string
	if c.Payment.BackendURL == "" {
		reasons = append(reasons, "payment.backend_url is not set")
	}
	if c.Security.Generated && c.IsProduction() {
		reasons = append(reasons, "security keys are not set")
	}
	return strings.Join(reasons, "; ")
}

// Load reads the configuration. Warnings describe fallbacks that were applied
// and should be logged once at startup.
func Load(configPath string) (*Config, []string, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	var warnings []string
	var generated bool
	cfg.Security.CSRFKey, generated = decodeKey(cfg.Security.CSRFKeyB64)
	if generated {
		warnings = append(warnings, "security.csrf_key missing or shorter than 32 bytes, generated a random key; forms break on restart")
		cfg.Security.Generated = true
	}
	cfg.Security.SessionKey, generated = decodeKey(cfg.Security.SessionKeyB64)
	if generated {
		warnings = append(warnings, "security.session_key missing or shorter than 32 bytes, generated a random key; sessions break on restart")
		cfg.Security.Generated = true
	}

	if err := cfg.validate(); err != nil {
		return nil, nil, err
	}
	return &cfg, warnings, nil
}

func (c *Config) validate() error {
	switch c.Payment.Strategy {
	case "hosted", "widget":
	default:
		return fmt.Errorf("invalid payment.strategy %q", c.Payment.Strategy)
	}
	switch c.Checkout.Guard {
	case "memory":
	case "redis":
		if !c.Redis.Enabled() {
			return errors.New("checkout.guard is redis but redis.addr is empty")
		}
	default:
		return fmt.Errorf("invalid checkout.guard %q", c.Checkout.Guard)
	}
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("invalid database.driver %q", c.Database.Driver)
	}
	if c.Delivery.ShippingFeeMinor < 0 {
		return errors.New("delivery.shipping_fee_minor must not be negative")
	}
	return nil
}

func decodeKey(encoded string) ([]byte, bool) {
	if encoded != "" {
		key, err := base64.StdEncoding.DecodeString(encoded)
		if err == nil && len(key) >= minKeyBytes {
			return key, false
		}
	}
	key := make([]byte, minKeyBytes)
	if _, err := rand.Read(key); err != nil {
		panic(fmt.Sprintf("crypto/rand unavailable: %v", err))
	}
	return key, true
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "checkout-web")
	v.SetDefault("app.env", "development")

	v.SetDefault("server.port", "8080")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.rate_limit.enabled", true)
	v.SetDefault("server.rate_limit.rate", 1)
	v.SetDefault("server.rate_limit.burst", 5)

	v.SetDefault("checkout.payload_param", "data")
	v.SetDefault("checkout.currency", "PEN")
	v.SetDefault("checkout.placeholders", "default")
	v.SetDefault("checkout.clear_delay", "3s")
	v.SetDefault("checkout.guard", "memory")
	v.SetDefault("checkout.guard_ttl", "1m")
	v.SetDefault("checkout.result_wait", "5s")
	v.SetDefault("checkout.storefront_url", "/")

	v.SetDefault("payment.backend_url", "")
	v.SetDefault("payment.strategy", "hosted")
	v.SetDefault("payment.csrf_header", "X-CSRFToken")
	v.SetDefault("payment.timeout", "15s")
	v.SetDefault("payment.widget_url", "/checkout/widget")
	v.SetDefault("payment.widget_script", "https://sandbox-checkout.izipay.pe/payments/v1/js/index.js")
	v.SetDefault("payment.public_key", "")
	v.SetDefault("payment.confirmation_ttl", "30m")

	def := delivery.DefaultConfig()
	v.SetDefault("delivery.shipping_fee_minor", def.ShippingFeeMinor)
	stores := make([]map[string]string, 0, len(def.Stores))
	for _, s := range def.Stores {
		stores = append(stores, map[string]string{"id": s.ID, "name": s.Name, "address": s.Address})
	}
	v.SetDefault("delivery.stores", stores)

	v.SetDefault("regions.api_url", "")
	v.SetDefault("regions.timeout", "3s")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.sqlite_path", "./checkout.db")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "checkout")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "checkout")
	v.SetDefault("database.sslmode", "disable")

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "checkout-attempts")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("security.csrf_key", "")
	v.SetDefault("security.session_key", "")
	v.SetDefault("security.cookie_secure", false)
	v.SetDefault("security.cookie_domain", "")
}

// DeliveryConfig converts the loaded settings for the delivery controller.
func (c *Config) DeliveryConfig() delivery.Config {
	cfg := delivery.DefaultConfig()
	cfg.ShippingFeeMinor = c.Delivery.ShippingFeeMinor
	if len(c.Delivery.Stores) > 0 {
		cfg.Stores = c.Delivery.Stores
	}
	return cfg
}
