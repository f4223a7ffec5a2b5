package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

// Config holds the complete application configuration, loadable from
// environment variables (CHECKOUT_ prefix), flags, or YAML config files.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL string `usage:"PostgreSQL connection URL (CHECKOUT_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	// PlatformBaseURL is the backend hosting the pricing, wallet, payment,
	// and booking collaborator endpoints.
	PlatformBaseURL string        `usage:"Base URL of the platform backend" flag:"platform-base-url"`
	PlatformTimeout time.Duration `default:"15s" usage:"Per-request timeout for platform calls" flag:"platform-timeout"`
	Quote           QuoteConfig
	Redis           RedisConfig
	Referral        ReferralConfig
	RateLimit       RateLimitConfig
	CORS            CORSConfig
	Graceful        GracefulConfig
}

// QuoteConfig controls the pricing-preview reconciler.
type QuoteConfig struct {
	DebounceWindow time.Duration `default:"300ms" usage:"Quiet window before a draft edit triggers a quote" flag:"quote-debounce"`
}

// RedisConfig controls the optional Redis-backed decision store. An empty
// Addr falls back to the in-process store.
type RedisConfig struct {
	Addr     string        `default:"" usage:"Redis address for the decision store (empty disables Redis)"`
	Password string        `default:"" usage:"Redis password"`
	DB       int           `default:"0" usage:"Redis database number"`
	TTL      time.Duration `default:"24h" usage:"Decision record expiry"`
}

// ReferralConfig sizes the bloom prefilter for referral code validation.
type ReferralConfig struct {
	FilterCapacity uint    `default:"1000000" usage:"Expected referral code count" flag:"referral-capacity"`
	FilterFPRate   float64 `default:"0.01" usage:"Bloom filter false positive rate" flag:"referral-fp-rate"`
}

// RateLimitConfig controls the per-client rate limiter.
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

// LoadConfig loads configuration from environment variables and YAML config
// files, then applies platform-provided defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "CHECKOUT",
		Files:     []string{"config.yaml", "/etc/checkout/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if cfg.DatabaseURL == "" {
		return nil, errors.New("database URL is required: set CHECKOUT_DATABASE_URL or DATABASE_URL")
	}
	if cfg.PlatformBaseURL == "" {
		return nil, errors.New("platform base URL is required: set CHECKOUT_PLATFORM_BASE_URL")
	}

	return &cfg, nil
}

// applyPlatformDefaults maps standard deployment environment variables like
// DATABASE_URL and PORT to the CHECKOUT_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if c.Redis.Addr == "" {
		if v := os.Getenv("REDIS_URL"); v != "" {
			c.Redis.Addr = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
