package redis

import "time"

// Config holds Redis connection and behavior settings
type Config struct {
	// URL is the Redis connection URL (e.g., redis://localhost:6379)
	URL string

	// Pool settings
	PoolSize     int
	MinIdleConns int

	// GameTTL applies to a game and everything hanging off it (cards, moves).
	// Zero keeps games forever.
	GameTTL time.Duration

	// PaymentTTL bounds how long a used payment tx hash is remembered.
	// Zero keeps it forever, which is what replay protection wants.
	PaymentTTL time.Duration

	// MaxTxRetries bounds optimistic transaction retries under contention
	MaxTxRetries int
}

// DefaultConfig returns sensible defaults for Redis configuration
func DefaultConfig() Config {
	return Config{
		URL:          "redis://localhost:6379",
		PoolSize:     10,
		MinIdleConns: 2,
		GameTTL:      30 * 24 * time.Hour,
		PaymentTTL:   0,
		MaxTxRetries: 16,
	}
}
