// Package config reads server settings from the environment and .env files.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/mcoot/dealgame/internal/api"
	"github.com/mcoot/dealgame/internal/factory"
	"github.com/mcoot/dealgame/internal/services/auth"
	"github.com/mcoot/dealgame/internal/services/payment"
	redisstorage "github.com/mcoot/dealgame/internal/storage/redis"
	"github.com/mcoot/dealgame/internal/storage/sqldb"
)

// Config is everything the server binary needs
type Config struct {
	Server   api.ServerConfig
	App      factory.Config
	LogLevel slog.Level

	// FeedCleanupInterval is how often idle feed hubs are stopped
	FeedCleanupInterval time.Duration
}

// Load reads the given .env files (missing files are skipped) and then the
// process environment. Real environment variables win over file values.
func Load(envFiles ...string) (*Config, error) {
	fileVars := map[string]string{}
	for _, file := range envFiles {
		vars, err := godotenv.Read(file)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", file, err)
		}
		for k, v := range vars {
			fileVars[k] = v
		}
	}

	return Parse(func(key string) string {
		if v, ok := os.LookupEnv(key); ok {
			return v
		}
		return fileVars[key]
	})
}

// Parse builds a Config from a variable lookup
func Parse(getenv func(string) string) (*Config, error) {
	p := parser{getenv: getenv}

	cfg := &Config{
		Server:              api.DefaultServerConfig(),
		FeedCleanupInterval: p.duration("FEED_CLEANUP_INTERVAL", 5*time.Minute),
	}
	cfg.Server.Host = getenv("HOST")
	cfg.Server.Port = p.int("PORT", cfg.Server.Port)
	cfg.LogLevel = p.logLevel("LOG_LEVEL")

	app := factory.Config{StorageType: strings.ToLower(getenv("STORAGE_TYPE"))}
	switch app.StorageType {
	case factory.StorageTypeRedis:
		redisCfg := redisstorage.DefaultConfig()
		redisCfg.URL = p.required("REDIS_URL")
		redisCfg.GameTTL = p.duration("REDIS_GAME_TTL", redisCfg.GameTTL)
		app.RedisConfig = &redisCfg
	case factory.StorageTypeSQL:
		sqlCfg := sqldb.DefaultConfig()
		if driver := getenv("SQL_DRIVER"); driver != "" {
			sqlCfg.Driver = driver
		}
		if dsn := getenv("SQL_DSN"); dsn != "" {
			sqlCfg.DSN = dsn
		}
		app.SQLConfig = &sqlCfg
	}

	app.Auth = auth.Config{
		JWKSURL:    getenv("JWT_JWKS_URL"),
		HMACSecret: getenv("JWT_HMAC_SECRET"),
		Issuer:     getenv("JWT_ISSUER"),
		Audience:   getenv("JWT_AUDIENCE"),
		Leeway:     p.duration("JWT_LEEWAY", 0),
		KeySet: auth.KeySetConfig{
			TTL:                p.duration("JWKS_CACHE_TTL", 0),
			MinRefreshInterval: p.duration("JWKS_MIN_REFRESH", 0),
		},
	}
	if app.Auth.JWKSURL == "" && app.Auth.HMACSecret == "" {
		p.errs = append(p.errs, errors.New("one of JWT_JWKS_URL or JWT_HMAC_SECRET is required"))
	}

	if rpcURL := getenv("RPC_URL"); rpcURL != "" {
		app.Payment = &payment.Config{
			RPCURL:        rpcURL,
			TokenContract: p.required("PYUSD_CONTRACT"),
			Treasury:      p.required("TREASURY_ADDRESS"),
			Timeout:       p.duration("RPC_TIMEOUT", 0),
		}
	}
	app.RequirePaymentForStandard = p.bool("REQUIRE_PAYMENT")

	if cfg.FeedCleanupInterval <= 0 {
		p.errs = append(p.errs, errors.New("FEED_CLEANUP_INTERVAL must be positive"))
	}

	cfg.App = app
	if err := errors.Join(p.errs...); err != nil {
		return nil, err
	}
	return cfg, nil
}

// parser collects every bad variable instead of stopping at the first
type parser struct {
	getenv func(string) string
	errs   []error
}

func (p *parser) required(key string) string {
	v := p.getenv(key)
	if v == "" {
		p.errs = append(p.errs, fmt.Errorf("%s is required", key))
	}
	return v
}

func (p *parser) int(key string, fallback int) int {
	v := p.getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return n
}

func (p *parser) bool(key string) bool {
	v := p.getenv(key)
	if v == "" {
		return false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
	}
	return b
}

func (p *parser) duration(key string, fallback time.Duration) time.Duration {
	v := p.getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return d
}

func (p *parser) logLevel(key string) slog.Level {
	v := p.getenv(key)
	if v == "" {
		return slog.LevelInfo
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(v)); err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return slog.LevelInfo
	}
	return level
}
