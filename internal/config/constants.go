package config

import "time"

// Database connection pool settings
const (
	DBMaxOpenConns    = 25
	DBMaxIdleConns    = 5
	DBConnMaxLifetime = 5 * time.Minute
)

// HTTP server timeouts
const (
	ServerRequestTimeout  = 60 * time.Second
	ServerReadTimeout     = 15 * time.Second
	ServerIdleTimeout     = 120 * time.Second
	ServerShutdownTimeout = 30 * time.Second
)

// Database ping timeout for health checks
const DBPingTimeout = 5 * time.Second

// Background job intervals
const (
	CleanupJobInterval = time.Minute
	StatsJobInterval   = 30 * time.Second
)

// Telegram API allows roughly 30 messages per second per bot.
const (
	TelegramSendsPerSecond = 25
	TelegramSendBurst      = 5
)

// Ledger writes issued from a session commit get their own deadline so a
// cancelled poll context never aborts a write halfway.
const LedgerWriteTimeout = 10 * time.Second

// Ops API limits per client IP
const (
	OpsRateLimit       = 120
	OpsRateLimitWindow = time.Minute
)
