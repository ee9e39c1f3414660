// Package auth turns bearer tokens into wallet principals.
package auth

import (
	"context"
	"crypto"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mcoot/dealgame/internal/dependencies/clock"
	"github.com/mcoot/dealgame/internal/model"
	"github.com/mcoot/dealgame/internal/wallet"
)

var (
	ErrInvalidToken      = errors.New("invalid token")
	ErrMissingPrincipal  = errors.New("token carries no wallet address")
	ErrKeySetUnavailable = errors.New("signing keys unavailable")
	ErrNotConfigured     = errors.New("no token verification method configured")
)

// PrincipalVerifier resolves a bearer token to the wallet it was issued for
type PrincipalVerifier interface {
	VerifyPrincipal(ctx context.Context, token string) (model.Principal, error)
}

// KeyProvider looks up asymmetric verification keys by key ID
type KeyProvider interface {
	Key(ctx context.Context, kid string) (crypto.PublicKey, error)
}

// Config holds token validation settings
type Config struct {
	// JWKSURL enables RS256/ES256 tokens signed by the identity provider
	JWKSURL string

	// HMACSecret enables HS256 tokens; meant for local development
	HMACSecret string

	Issuer   string
	Audience string

	// Leeway tolerates clock skew on exp and nbf
	Leeway time.Duration

	KeySet KeySetConfig
}

// Claims are the token claims the server understands
type Claims struct {
	jwt.RegisteredClaims
	Address string `json:"address,omitempty"`
}

// Verifier validates JWTs and extracts the wallet principal
type Verifier struct {
	keys   KeyProvider
	secret []byte
	cfg    Config
	clock  clock.Clock
	logger *slog.Logger
}

var _ PrincipalVerifier = (*Verifier)(nil)

// NewVerifier creates a Verifier. keys may be nil when only HMAC tokens are accepted.
func NewVerifier(cfg Config, keys KeyProvider, clock clock.Clock, logger *slog.Logger) (*Verifier, error) {
	if keys == nil && cfg.HMACSecret == "" {
		return nil, ErrNotConfigured
	}
	v := &Verifier{
		keys:   keys,
		cfg:    cfg,
		clock:  clock,
		logger: logger.With(slog.String("component", "auth")),
	}
	if cfg.HMACSecret != "" {
		v.secret = []byte(cfg.HMACSecret)
	}
	return v, nil
}

func (v *Verifier) methods() []string {
	var methods []string
	if v.keys != nil {
		methods = append(methods, jwt.SigningMethodRS256.Alg(), jwt.SigningMethodES256.Alg())
	}
	if v.secret != nil {
		methods = append(methods, jwt.SigningMethodHS256.Alg())
	}
	return methods
}

// VerifyPrincipal checks the token signature and time claims and returns
// the normalised wallet address from the address claim, falling back to sub.
func (v *Verifier) VerifyPrincipal(ctx context.Context, token string) (model.Principal, error) {
	if token == "" {
		return "", fmt.Errorf("%w: empty token", ErrInvalidToken)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods(v.methods()),
		jwt.WithTimeFunc(v.clock.Now),
		jwt.WithExpirationRequired(),
	}
	if v.cfg.Leeway > 0 {
		opts = append(opts, jwt.WithLeeway(v.cfg.Leeway))
	}
	if v.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.cfg.Issuer))
	}
	if v.cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(v.cfg.Audience))
	}

	var claims Claims
	_, err := jwt.NewParser(opts...).ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return v.keyFor(ctx, t)
	})
	if err != nil {
		if errors.Is(err, ErrKeySetUnavailable) {
			return "", ErrKeySetUnavailable
		}
		v.logger.Debug("token rejected", slog.String("error", err.Error()))
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	address := claims.Address
	if address == "" {
		address = claims.Subject
	}
	if address == "" {
		return "", ErrMissingPrincipal
	}
	normalized, err := wallet.Normalize(address)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidToken, model.ErrInvalidPrincipal)
	}
	return model.Principal(normalized), nil
}

func (v *Verifier) keyFor(ctx context.Context, t *jwt.Token) (any, error) {
	switch t.Method.(type) {
	case *jwt.SigningMethodHMAC:
		if v.secret == nil {
			return nil, errors.New("hmac tokens not accepted")
		}
		return v.secret, nil
	case *jwt.SigningMethodRSA, *jwt.SigningMethodECDSA:
		if v.keys == nil {
			return nil, errors.New("asymmetric tokens not accepted")
		}
		kid, _ := t.Header["kid"].(string)
		return v.keys.Key(ctx, kid)
	default:
		return nil, fmt.Errorf("unexpected signing method %s", t.Method.Alg())
	}
}

// SignDevToken issues an HS256 token for address. Used by the CLI and tests
// against servers running with an HMAC secret.
func SignDevToken(secret string, address model.Principal, now time.Time, ttl time.Duration) (string, error) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   address.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Address: address.String(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
