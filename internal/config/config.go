package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog/log"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	Port                   int    `env:"PORT" envDefault:"8080"`
	DatabaseDriver         string `env:"DATABASE_DRIVER" envDefault:"postgres"`
	DatabaseURL            string `env:"DATABASE_URL,required"`
	RedisURL               string `env:"REDIS_URL,required"`
	TelegramToken          string `env:"TELEGRAM_TOKEN,required"`
	BotUsername            string `env:"BOT_USERNAME,required"`
	SubscriptionChannel    string `env:"SUBSCRIPTION_CHANNEL"`
	ProviderURL            string `env:"PROVIDER_URL,required"`
	OpsTokenHash           string `env:"OPS_TOKEN_HASH"`
	StartingBalance        int64  `env:"STARTING_BALANCE" envDefault:"10"`
	ReferralCredit         int64  `env:"REFERRAL_CREDIT" envDefault:"200"`
	SessionTimeoutSeconds  int    `env:"SESSION_TIMEOUT_SECONDS" envDefault:"180"`
	PollIntervalMs         int    `env:"POLL_INTERVAL_MS" envDefault:"1000"`
	ProviderCallTimeoutMs  int    `env:"PROVIDER_CALL_TIMEOUT_MS" envDefault:"5000"`
	SessionRetentionSecs   int    `env:"SESSION_RETENTION_SECONDS" envDefault:"600"`
	ConnectRateLimitPerMin int    `env:"CONNECT_RATE_LIMIT_PER_MIN" envDefault:"5"`
	Testnet                bool   `env:"TESTNET" envDefault:"false"`
	LogLevel               string `env:"LOG_LEVEL" envDefault:"info"`
	TelegramDebug          bool   `env:"TELEGRAM_DEBUG" envDefault:"false"`

	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`
}

func (c *Config) SessionTimeout() time.Duration {
	return time.Duration(c.SessionTimeoutSeconds) * time.Second
}

func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

func (c *Config) ProviderCallTimeout() time.Duration {
	return time.Duration(c.ProviderCallTimeoutMs) * time.Millisecond
}

func (c *Config) SessionRetention() time.Duration {
	return time.Duration(c.SessionRetentionSecs) * time.Second
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// ReferralLinkBase is the deep link prefix; the referrer id is appended verbatim.
func (c *Config) ReferralLinkBase() string {
	return fmt.Sprintf("https://t.me/%s?start=", strings.TrimPrefix(c.BotUsername, "@"))
}

func (c *Config) Validate() error {
	switch c.DatabaseDriver {
	case DriverPostgres, DriverSQLite:
	default:
		return fmt.Errorf("DATABASE_DRIVER must be %q or %q, got %q", DriverPostgres, DriverSQLite, c.DatabaseDriver)
	}

	if c.SessionTimeoutSeconds <= 0 {
		return fmt.Errorf("SESSION_TIMEOUT_SECONDS must be positive")
	}
	if c.PollIntervalMs <= 0 {
		return fmt.Errorf("POLL_INTERVAL_MS must be positive")
	}
	if c.PollInterval() >= c.SessionTimeout() {
		return fmt.Errorf("POLL_INTERVAL_MS must be shorter than the session timeout")
	}
	if c.ProviderCallTimeoutMs <= 0 {
		return fmt.Errorf("PROVIDER_CALL_TIMEOUT_MS must be positive")
	}
	if c.StartingBalance < 0 || c.ReferralCredit < 0 {
		return fmt.Errorf("STARTING_BALANCE and REFERRAL_CREDIT must not be negative")
	}

	if c.OpsTokenHash != "" {
		if !strings.HasPrefix(c.OpsTokenHash, "$2a$") &&
			!strings.HasPrefix(c.OpsTokenHash, "$2b$") &&
			!strings.HasPrefix(c.OpsTokenHash, "$2y$") {
			return fmt.Errorf("OPS_TOKEN_HASH must be a bcrypt hash (generate with: go run scripts/hash-token.go <token>)")
		}
	} else {
		log.Warn().Msg("OPS_TOKEN_HASH is empty: ops API is disabled")
	}

	if c.SubscriptionChannel == "" {
		log.Warn().Msg("SUBSCRIPTION_CHANNEL is empty: subscription gate disabled")
	}
	if c.DatabaseDriver == DriverSQLite {
		log.Warn().Msg("DATABASE_DRIVER=sqlite: intended for local runs only")
	}

	return nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}

// DatabaseConfig is the subset walletctl needs; it does not require the bot
// or provider settings.
type DatabaseConfig struct {
	Driver          string `env:"DATABASE_DRIVER" envDefault:"postgres"`
	URL             string `env:"DATABASE_URL,required"`
	StartingBalance int64  `env:"STARTING_BALANCE" envDefault:"10"`
	ReferralCredit  int64  `env:"REFERRAL_CREDIT" envDefault:"200"`
	BotUsername     string `env:"BOT_USERNAME"`
}

func LoadDatabase() (*DatabaseConfig, error) {
	var cfg DatabaseConfig
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	switch cfg.Driver {
	case DriverPostgres, DriverSQLite:
	default:
		return nil, fmt.Errorf("DATABASE_DRIVER must be %q or %q, got %q", DriverPostgres, DriverSQLite, cfg.Driver)
	}
	return &cfg, nil
}
