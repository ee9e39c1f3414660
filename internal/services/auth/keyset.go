package auth

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/MicahParks/jwkset"

	"github.com/mcoot/dealgame/internal/dependencies/clock"
)

// Fetcher retrieves the current set of signing keys as raw JWK objects
type Fetcher interface {
	Fetch(ctx context.Context) ([]json.RawMessage, error)
}

// HTTPFetcher fetches a JWKS document over HTTP
type HTTPFetcher struct {
	URL    string
	Client *http.Client
}

func (f *HTTPFetcher) Fetch(ctx context.Context) ([]json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.URL, nil)
	if err != nil {
		return nil, err
	}
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("jwks endpoint returned %d", resp.StatusCode)
	}

	// Keys stay raw so one bad entry does not reject the whole set
	var doc struct {
		Keys []json.RawMessage `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode jwks: %w", err)
	}
	return doc.Keys, nil
}

// KeySetConfig controls key caching
type KeySetConfig struct {
	// TTL is how long fetched keys are trusted before a refetch
	TTL time.Duration

	// MinRefreshInterval rate-limits refetches triggered by unknown key IDs
	MinRefreshInterval time.Duration
}

// DefaultKeySetConfig returns sensible cache settings
func DefaultKeySetConfig() KeySetConfig {
	return KeySetConfig{
		TTL:                time.Hour,
		MinRefreshInterval: time.Minute,
	}
}

// KeySet caches verification keys by key ID. One KeySet is shared by all
// requests; it refetches when its keys expire or an unknown kid shows up.
type KeySet struct {
	fetcher Fetcher
	clock   clock.Clock
	cfg     KeySetConfig
	logger  *slog.Logger

	mu          sync.Mutex
	keys        jwkset.Storage
	fetchedAt   time.Time
	lastAttempt time.Time
}

// NewKeySet creates an empty KeySet; keys are fetched on first use
func NewKeySet(fetcher Fetcher, clock clock.Clock, cfg KeySetConfig, logger *slog.Logger) *KeySet {
	defaults := DefaultKeySetConfig()
	if cfg.TTL <= 0 {
		cfg.TTL = defaults.TTL
	}
	if cfg.MinRefreshInterval <= 0 {
		cfg.MinRefreshInterval = defaults.MinRefreshInterval
	}
	return &KeySet{
		fetcher: fetcher,
		clock:   clock,
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "jwks")),
	}
}

// Key returns the public key for kid
func (k *KeySet) Key(ctx context.Context, kid string) (crypto.PublicKey, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.keys == nil || clock.Expired(k.clock, k.fetchedAt.Add(k.cfg.TTL)) {
		if err := k.refresh(ctx); err != nil && k.keys == nil {
			return nil, err
		}
	}

	if key, ok := k.lookup(ctx, kid); ok {
		return key, nil
	}

	if !clock.Expired(k.clock, k.lastAttempt.Add(k.cfg.MinRefreshInterval)) {
		return nil, fmt.Errorf("%w: unknown key id %q", ErrInvalidToken, kid)
	}
	if err := k.refresh(ctx); err != nil {
		return nil, err
	}
	if key, ok := k.lookup(ctx, kid); ok {
		return key, nil
	}
	return nil, fmt.Errorf("%w: unknown key id %q", ErrInvalidToken, kid)
}

// lookup must be called with mu held
func (k *KeySet) lookup(ctx context.Context, kid string) (crypto.PublicKey, bool) {
	jwk, err := k.keys.KeyRead(ctx, kid)
	if err != nil {
		return nil, false
	}
	return jwk.Key(), true
}

// refresh must be called with mu held. On failure the previous keys stay in place.
func (k *KeySet) refresh(ctx context.Context) error {
	k.lastAttempt = k.clock.Now()

	raw, err := k.fetcher.Fetch(ctx)
	if err != nil {
		k.logger.Error("failed to fetch signing keys", slog.String("error", err.Error()))
		return fmt.Errorf("%w: %v", ErrKeySetUnavailable, err)
	}

	keys := jwkset.NewMemoryStorage()
	count := 0
	for i, entry := range raw {
		jwk, err := parseJWK(entry)
		if err != nil {
			k.logger.Warn("skipping unusable signing key",
				slog.Int("position", i),
				slog.String("error", err.Error()))
			continue
		}
		if err := keys.KeyWrite(ctx, jwk); err != nil {
			return fmt.Errorf("store signing key: %w", err)
		}
		count++
	}

	k.keys = keys
	k.fetchedAt = k.lastAttempt
	k.logger.Info("signing keys refreshed", slog.Int("count", count))
	return nil
}

// parseJWK accepts RSA and EC public keys that carry a key ID
func parseJWK(raw json.RawMessage) (jwkset.JWK, error) {
	jwk, err := jwkset.NewJWKFromRawJSON(raw, jwkset.JWKMarshalOptions{}, jwkset.JWKValidateOptions{})
	if err != nil {
		return jwkset.JWK{}, err
	}
	if jwk.Marshal().KID == "" {
		return jwkset.JWK{}, errors.New("missing key id")
	}

	switch key := jwk.Key().(type) {
	case *rsa.PublicKey:
		if key.E < 3 {
			return jwkset.JWK{}, errors.New("invalid rsa exponent")
		}
	case *ecdsa.PublicKey:
		// Rejects points off the curve
		if _, err := key.ECDH(); err != nil {
			return jwkset.JWK{}, fmt.Errorf("invalid ec key: %w", err)
		}
	default:
		return jwkset.JWK{}, fmt.Errorf("unsupported key type %q", jwk.Marshal().KTY)
	}
	return jwk, nil
}
