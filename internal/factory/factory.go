package factory

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/mcoot/dealgame/internal/dependencies/clock"
	"github.com/mcoot/dealgame/internal/dependencies/random"
	"github.com/mcoot/dealgame/internal/feed"
	"github.com/mcoot/dealgame/internal/services/auth"
	"github.com/mcoot/dealgame/internal/services/banker"
	"github.com/mcoot/dealgame/internal/services/cases"
	"github.com/mcoot/dealgame/internal/services/game"
	"github.com/mcoot/dealgame/internal/services/payment"
	"github.com/mcoot/dealgame/internal/storage"
	"github.com/mcoot/dealgame/internal/storage/memory"
	redisstorage "github.com/mcoot/dealgame/internal/storage/redis"
	"github.com/mcoot/dealgame/internal/storage/sqldb"
)

// Storage type constants
const (
	StorageTypeMemory = "memory"
	StorageTypeRedis  = "redis"
	StorageTypeSQL    = "sql"
)

// App contains all wired application components
type App struct {
	Storage storage.Storage

	// External dependencies
	Clock  clock.Clock
	Random random.Random

	// Services
	Generator      *cases.Generator
	Banker         *banker.Banker
	Payments       payment.Service
	Verifier       auth.PrincipalVerifier
	Feed           *feed.Manager
	GameController *game.Controller
}

// Config holds configuration for the application factory
type Config struct {
	// Logger is the application logger (optional)
	// If nil, a no-op logger is used
	Logger *slog.Logger

	// StorageType selects the storage backend ("memory", "redis" or "sql")
	// If empty, defaults to "memory"
	StorageType string
	// RedisConfig is required if StorageType is "redis"
	RedisConfig *redisstorage.Config
	// SQLConfig is required if StorageType is "sql"
	SQLConfig *sqldb.Config

	// Auth must enable at least one of JWKS or HMAC verification
	Auth auth.Config

	// Payment enables on-chain entry fees and payouts. Nil disables payments,
	// which rejects contract mode games and winnings claims.
	Payment *payment.Config
	// RequirePaymentForStandard makes standard games pay an entry fee too
	RequirePaymentForStandard bool
}

// New creates a new application with all dependencies wired
func New(cfg Config) (*App, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}

	clk := clock.New()
	rnd := random.New()

	verifier, err := newVerifier(cfg.Auth, clk, logger)
	if err != nil {
		return nil, fmt.Errorf("auth: %w", err)
	}

	var payments payment.Service = payment.Disabled{}
	if cfg.Payment != nil {
		client, err := payment.NewRPCClient(*cfg.Payment, logger)
		if err != nil {
			return nil, fmt.Errorf("payment: %w", err)
		}
		payments = client
	} else if cfg.RequirePaymentForStandard {
		return nil, errors.New("RequirePaymentForStandard needs a Payment config")
	}

	store, err := newStorage(cfg)
	if err != nil {
		return nil, err
	}

	return newWithDependencies(store, clk, rnd, verifier, payments, cfg.RequirePaymentForStandard, logger), nil
}

func newStorage(cfg Config) (storage.Storage, error) {
	storageType := cfg.StorageType
	if storageType == "" {
		storageType = StorageTypeMemory
	}

	switch storageType {
	case StorageTypeMemory:
		return memory.New(), nil
	case StorageTypeRedis:
		if cfg.RedisConfig == nil {
			return nil, errors.New("RedisConfig required when StorageType is redis")
		}
		return redisstorage.New(*cfg.RedisConfig)
	case StorageTypeSQL:
		if cfg.SQLConfig == nil {
			return nil, errors.New("SQLConfig required when StorageType is sql")
		}
		return sqldb.New(*cfg.SQLConfig)
	default:
		return nil, fmt.Errorf("invalid StorageType %q: must be 'memory', 'redis' or 'sql'", storageType)
	}
}

func newVerifier(cfg auth.Config, clk clock.Clock, logger *slog.Logger) (*auth.Verifier, error) {
	// Left as a nil interface when JWKS is off so HS256-only setups work
	var keys auth.KeyProvider
	if cfg.JWKSURL != "" {
		fetcher := &auth.HTTPFetcher{
			URL:    cfg.JWKSURL,
			Client: &http.Client{Timeout: 10 * time.Second},
		}
		keys = auth.NewKeySet(fetcher, clk, cfg.KeySet, logger)
	}
	return auth.NewVerifier(cfg, keys, clk, logger)
}

// newWithDependencies creates an App with the given dependencies (useful for testing)
func newWithDependencies(
	store storage.Storage,
	clk clock.Clock,
	rnd random.Random,
	verifier auth.PrincipalVerifier,
	payments payment.Service,
	requirePayment bool,
	logger *slog.Logger,
) *App {
	generator := cases.New(rnd)
	bank := banker.New(rnd)
	feedManager := feed.NewManager(logger)
	gameController := game.NewController(store, generator, bank, clk, logger).
		WithPayments(payments, requirePayment).
		WithNotifier(feedManager)

	return &App{
		Storage:        store,
		Clock:          clk,
		Random:         rnd,
		Generator:      generator,
		Banker:         bank,
		Payments:       payments,
		Verifier:       verifier,
		Feed:           feedManager,
		GameController: gameController,
	}
}

// Close disconnects feed clients and releases the chain connection and
// the storage backend
func (a *App) Close() error {
	a.Feed.Close()
	if closer, ok := a.Payments.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			return err
		}
	}
	return a.Storage.Close()
}
