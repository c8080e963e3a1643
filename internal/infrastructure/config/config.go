package config

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
)

const (
	StorageMongo  = "mongo"
	StorageMemory = "memory"

	minSecretLen = 32
)

type Config struct {
	Port      string `env:"PORT,      default=8080"`
	Env       string `env:"ENV,       default=development"`
	JWTSecret string `env:"JWT_SECRET"`
	LogLevel  string `env:"LOG_LEVEL, default=info"`
	Storage   string `env:"STORAGE,   default=mongo"`

	// MemorySeedFile is a JSON fixture of listings and carts loaded at
	// startup when Storage is memory.
	MemorySeedFile string `env:"MEMORY_SEED_FILE"`

	// AuthRateLimit is the number of auth requests allowed per client IP per
	// minute, with bursts of up to AuthRateBurst.
	AuthRateLimit   int           `env:"AUTH_RATE_LIMIT,  default=20"`
	AuthRateBurst   int           `env:"AUTH_RATE_BURST,  default=5"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT, default=15s"`

	Tokens        TokenConfig
	Mongo         MongoConfig
	Redis         RedisConfig
	Stripe        StripeConfig
	Bids          BidConfig
	Notifications NotificationConfig
}

type TokenConfig struct {
	SessionTTL time.Duration `env:"TOKEN_SESSION_TTL, default=10h"`
	ResetTTL   time.Duration `env:"TOKEN_RESET_TTL,   default=10m"`
}

type MongoConfig struct {
	URI      string        `env:"MONGO_URI,     default=mongodb://localhost:27017"`
	Database string        `env:"MONGO_DB,      default=campus_marketplace"`
	Timeout  time.Duration `env:"MONGO_TIMEOUT, default=10s"`
}

type RedisConfig struct {
	Addr         string        `env:"REDIS_ADDR,           default=localhost:6379"`
	Password     string        `env:"REDIS_PASSWORD"`
	DB           int           `env:"REDIS_DB,             default=0"`
	PoolSize     int           `env:"REDIS_POOL_SIZE,      default=10"`
	MinIdleConns int           `env:"REDIS_MIN_IDLE_CONNS, default=2"`
	OpTimeout    time.Duration `env:"REDIS_OP_TIMEOUT,     default=2s"`
	DedupTTL     time.Duration `env:"REDIS_DEDUP_TTL,      default=72h"`
}

type StripeConfig struct {
	SecretKey     string `env:"STRIPE_SECRET_KEY"`
	WebhookSecret string `env:"STRIPE_WEBHOOK_SECRET"`

	// AllowEmptyWebhookSecret accepts webhooks signed with an empty secret.
	// Development only; anyone can produce such a signature.
	AllowEmptyWebhookSecret bool `env:"STRIPE_WEBHOOK_ALLOW_EMPTY_SECRET, default=false"`
	Currency      string `env:"PAYMENT_CURRENCY, default=usd"`

	// AppBaseURL is where the hosted checkout sends the buyer back to.
	AppBaseURL string `env:"APP_BASE_URL, default=http://localhost:3000"`

	// APIURL overrides the Stripe API endpoint, e.g. for stripe-mock.
	APIURL string `env:"STRIPE_API_URL"`
}

type BidConfig struct {
	PendingTTL    time.Duration `env:"BID_PENDING_TTL,    default=168h"`
	PaymentWindow time.Duration `env:"BID_PAYMENT_WINDOW, default=72h"`
	SweepInterval time.Duration `env:"BID_SWEEP_INTERVAL, default=15m"`
}

type NotificationConfig struct {
	Workers int `env:"NOTIFICATION_WORKERS, default=4"`
}

// IsProduction reports whether the service runs with production safeguards.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// Validate checks the settings that cannot be defaulted. Outside production
// an empty STRIPE_SECRET_KEY is tolerated so the service can run against
// stripe-mock or without payments. An empty webhook secret needs
// STRIPE_WEBHOOK_ALLOW_EMPTY_SECRET, which production refuses.
func (c *Config) Validate() error {
	var errs []error

	if len(c.JWTSecret) < minSecretLen {
		errs = append(errs, fmt.Errorf("JWT_SECRET must be at least %d characters", minSecretLen))
	}
	switch c.Storage {
	case StorageMongo, StorageMemory:
	default:
		errs = append(errs, fmt.Errorf("STORAGE must be %q or %q, got %q", StorageMongo, StorageMemory, c.Storage))
	}
	if c.Storage != StorageMemory && c.MemorySeedFile != "" {
		errs = append(errs, errors.New("MEMORY_SEED_FILE requires STORAGE=memory"))
	}
	if c.IsProduction() {
		if c.Storage == StorageMemory {
			errs = append(errs, errors.New("STORAGE=memory is not allowed in production"))
		}
		if c.Stripe.SecretKey == "" {
			errs = append(errs, errors.New("STRIPE_SECRET_KEY is required in production"))
		}
		if c.Stripe.WebhookSecret == "" {
			errs = append(errs, errors.New("STRIPE_WEBHOOK_SECRET is required in production"))
		}
		if c.Stripe.AllowEmptyWebhookSecret {
			errs = append(errs, errors.New("STRIPE_WEBHOOK_ALLOW_EMPTY_SECRET is not allowed in production"))
		}
	} else if c.Stripe.WebhookSecret == "" && !c.Stripe.AllowEmptyWebhookSecret {
		errs = append(errs, errors.New("STRIPE_WEBHOOK_SECRET is required unless STRIPE_WEBHOOK_ALLOW_EMPTY_SECRET=true"))
	}
	if c.Notifications.Workers <= 0 {
		errs = append(errs, errors.New("NOTIFICATION_WORKERS must be positive"))
	}

	return errors.Join(errs...)
}

// Load reads configuration from environment variables using go-envconfig.
func Load(ctx context.Context) (*Config, error) {
	return LoadWith(ctx, envconfig.OsLookuper())
}

// LoadWith reads configuration from l and validates it.
func LoadWith(ctx context.Context, l envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: l,
	}); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &cfg, nil
}
