package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Config holds the complete application configuration, loadable from
// environment variables (MARTEK_ prefix), flags, or YAML config files.
type Config struct {
	Addr              string  `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL       string  `usage:"PostgreSQL connection URL (MARTEK_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	TaxRate           float64 `default:"0.16" usage:"Tax fraction applied when intake payloads omit the subtotal/tax breakdown" flag:"tax-rate"`
	OrderNumberPrefix string  `default:"MTK" usage:"Prefix for generated order numbers" flag:"order-number-prefix"`
	GatewayPublicKey  string  `usage:"Public key handed to the checkout frontend (MARTEK_GATEWAY_PUBLIC_KEY)" flag:"gateway-public-key"`
	WebhookSecret     string  `usage:"Shared HMAC secret for gateway webhook signatures (MARTEK_WEBHOOK_SECRET)" flag:"webhook-secret"`
	SyncAPIKey        string  `usage:"API key authorizing payment-status updates (MARTEK_SYNC_API_KEY)" flag:"sync-api-key"`
	RateLimit         RateLimitConfig
	CORS              CORSConfig
	Graceful          GracefulConfig
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// TaxRateDecimal returns the configured tax rate as a decimal.
func (c *Config) TaxRateDecimal() decimal.Decimal {
	return decimal.NewFromFloat(c.TaxRate)
}

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "MARTEK",
		Files:     []string{"config.yaml", "/etc/martek/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if cfg.DatabaseURL == "" {
		return nil, errors.New("database URL is required: set MARTEK_DATABASE_URL or DATABASE_URL")
	}
	if cfg.TaxRate < 0 || cfg.TaxRate >= 1 {
		return nil, errors.Errorf("tax rate %v out of range [0, 1)", cfg.TaxRate)
	}

	return &cfg, nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's MARTEK_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
