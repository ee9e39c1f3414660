package auth

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/MicahParks/jwkset"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/suite"

	"github.com/mcoot/dealgame/internal/dependencies/mocks"
	"github.com/mcoot/dealgame/internal/model"
	"github.com/mcoot/dealgame/internal/testutil"
	"github.com/mcoot/dealgame/internal/wallet"
)

const (
	testSecret  = "local-dev-secret"
	testAddress = "0x52908400098527886e0f7030069857d2e4169ee7"
)

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// jwksServer serves a mutable key set and counts fetches
type jwksServer struct {
	mu      sync.Mutex
	keys    []jwkset.JWKMarshal
	fail    bool
	fetches int
	srv     *httptest.Server
}

func newJWKSServer() *jwksServer {
	s := &jwksServer{}
	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.fetches++
		if s.fail {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(jwkset.JWKSMarshal{Keys: s.keys})
	}))
	return s
}

func (s *jwksServer) setKeys(keys ...jwkset.JWKMarshal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys = keys
}

func (s *jwksServer) setFail(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = fail
}

func (s *jwksServer) fetchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetches
}

func publicJWK(kid string, alg jwkset.ALG, key any) jwkset.JWKMarshal {
	jwk, err := jwkset.NewJWKFromKey(key, jwkset.JWKOptions{
		Metadata: jwkset.JWKMetadataOptions{KID: kid, ALG: alg},
	})
	if err != nil {
		panic(err)
	}
	return jwk.Marshal()
}

func rsaJWK(kid string, key *rsa.PublicKey) jwkset.JWKMarshal {
	return publicJWK(kid, jwkset.AlgRS256, key)
}

func ecJWK(kid string, key *ecdsa.PublicKey) jwkset.JWKMarshal {
	return publicJWK(kid, jwkset.AlgES256, key)
}

type VerifierSuite struct {
	suite.Suite
	clock  *mocks.MockClock
	jwks   *jwksServer
	keys   *KeySet
	rsaKey *rsa.PrivateKey
	rsaAlt *rsa.PrivateKey
	ecKey  *ecdsa.PrivateKey
}

func TestVerifierSuite(t *testing.T) {
	suite.Run(t, new(VerifierSuite))
}

func (s *VerifierSuite) SetupSuite() {
	var err error
	s.rsaKey, err = rsa.GenerateKey(rand.Reader, 2048)
	s.Require().NoError(err)
	s.rsaAlt, err = rsa.GenerateKey(rand.Reader, 2048)
	s.Require().NoError(err)
	s.ecKey, err = ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	s.Require().NoError(err)
}

func (s *VerifierSuite) SetupTest() {
	s.clock = mocks.NewMockClock(baseTime)
	s.jwks = newJWKSServer()
	s.jwks.setKeys(rsaJWK("rsa-1", &s.rsaKey.PublicKey), ecJWK("ec-1", &s.ecKey.PublicKey))
	s.keys = NewKeySet(&HTTPFetcher{URL: s.jwks.srv.URL}, s.clock, KeySetConfig{
		TTL:                10 * time.Minute,
		MinRefreshInterval: time.Minute,
	}, testutil.NopLogger())
}

func (s *VerifierSuite) TearDownTest() {
	s.jwks.srv.Close()
}

func (s *VerifierSuite) hmacVerifier(cfg Config) *Verifier {
	cfg.HMACSecret = testSecret
	v, err := NewVerifier(cfg, nil, s.clock, testutil.NopLogger())
	s.Require().NoError(err)
	return v
}

func (s *VerifierSuite) jwksVerifier() *Verifier {
	v, err := NewVerifier(Config{}, s.keys, s.clock, testutil.NopLogger())
	s.Require().NoError(err)
	return v
}

func (s *VerifierSuite) claims(address string) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(baseTime),
			ExpiresAt: jwt.NewNumericDate(baseTime.Add(time.Hour)),
		},
		Address: address,
	}
}

func (s *VerifierSuite) sign(method jwt.SigningMethod, kid string, key any, claims Claims) string {
	token := jwt.NewWithClaims(method, claims)
	if kid != "" {
		token.Header["kid"] = kid
	}
	signed, err := token.SignedString(key)
	s.Require().NoError(err)
	return signed
}

func (s *VerifierSuite) hs256(claims Claims) string {
	return s.sign(jwt.SigningMethodHS256, "", []byte(testSecret), claims)
}

// =============================================================================
// HMAC tokens
// =============================================================================

func (s *VerifierSuite) TestChecksummedAddressIsNormalised() {
	v := s.hmacVerifier(Config{})
	token := s.hs256(s.claims(wallet.Checksum(testAddress)))

	principal, err := v.VerifyPrincipal(context.Background(), token)

	s.Require().NoError(err)
	s.Equal(model.Principal(testAddress), principal)
}

func (s *VerifierSuite) TestSubjectUsedWhenAddressMissing() {
	v := s.hmacVerifier(Config{})
	claims := s.claims("")
	claims.Subject = testAddress

	principal, err := v.VerifyPrincipal(context.Background(), s.hs256(claims))

	s.Require().NoError(err)
	s.Equal(model.Principal(testAddress), principal)
}

func (s *VerifierSuite) TestMissingPrincipal() {
	v := s.hmacVerifier(Config{})

	_, err := v.VerifyPrincipal(context.Background(), s.hs256(s.claims("")))

	s.ErrorIs(err, ErrMissingPrincipal)
}

func (s *VerifierSuite) TestMalformedAddressRejected() {
	v := s.hmacVerifier(Config{})

	_, err := v.VerifyPrincipal(context.Background(), s.hs256(s.claims("alice")))

	s.ErrorIs(err, ErrInvalidToken)
	s.ErrorIs(err, model.ErrInvalidPrincipal)
}

func (s *VerifierSuite) TestEmptyToken() {
	v := s.hmacVerifier(Config{})

	_, err := v.VerifyPrincipal(context.Background(), "")

	s.ErrorIs(err, ErrInvalidToken)
}

func (s *VerifierSuite) TestGarbageToken() {
	v := s.hmacVerifier(Config{})

	_, err := v.VerifyPrincipal(context.Background(), "not.a.jwt")

	s.ErrorIs(err, ErrInvalidToken)
}

func (s *VerifierSuite) TestWrongSecretRejected() {
	v := s.hmacVerifier(Config{})
	token := s.sign(jwt.SigningMethodHS256, "", []byte("other-secret"), s.claims(testAddress))

	_, err := v.VerifyPrincipal(context.Background(), token)

	s.ErrorIs(err, ErrInvalidToken)
}

func (s *VerifierSuite) TestUnsignedTokenRejected() {
	v := s.hmacVerifier(Config{})
	token := s.sign(jwt.SigningMethodNone, "", jwt.UnsafeAllowNoneSignatureType, s.claims(testAddress))

	_, err := v.VerifyPrincipal(context.Background(), token)

	s.ErrorIs(err, ErrInvalidToken)
}

func (s *VerifierSuite) TestExpiryUsesInjectedClock() {
	v := s.hmacVerifier(Config{})
	token := s.hs256(s.claims(testAddress))

	_, err := v.VerifyPrincipal(context.Background(), token)
	s.Require().NoError(err)

	s.clock.Advance(2 * time.Hour)
	_, err = v.VerifyPrincipal(context.Background(), token)
	s.ErrorIs(err, ErrInvalidToken)
}

func (s *VerifierSuite) TestLeewayToleratesSkew() {
	v := s.hmacVerifier(Config{Leeway: 5 * time.Minute})
	token := s.hs256(s.claims(testAddress))

	s.clock.Advance(time.Hour + time.Minute)
	_, err := v.VerifyPrincipal(context.Background(), token)

	s.NoError(err)
}

func (s *VerifierSuite) TestNotBeforeHonoured() {
	v := s.hmacVerifier(Config{})
	claims := s.claims(testAddress)
	claims.NotBefore = jwt.NewNumericDate(baseTime.Add(10 * time.Minute))
	token := s.hs256(claims)

	_, err := v.VerifyPrincipal(context.Background(), token)
	s.ErrorIs(err, ErrInvalidToken)

	s.clock.Advance(15 * time.Minute)
	_, err = v.VerifyPrincipal(context.Background(), token)
	s.NoError(err)
}

func (s *VerifierSuite) TestExpirationRequired() {
	v := s.hmacVerifier(Config{})
	claims := s.claims(testAddress)
	claims.ExpiresAt = nil

	_, err := v.VerifyPrincipal(context.Background(), s.hs256(claims))

	s.ErrorIs(err, ErrInvalidToken)
}

func (s *VerifierSuite) TestIssuerAndAudience() {
	v := s.hmacVerifier(Config{Issuer: "https://id.example", Audience: "dealgame"})

	good := s.claims(testAddress)
	good.Issuer = "https://id.example"
	good.Audience = jwt.ClaimStrings{"dealgame"}
	_, err := v.VerifyPrincipal(context.Background(), s.hs256(good))
	s.NoError(err)

	wrongIssuer := good
	wrongIssuer.Issuer = "https://evil.example"
	_, err = v.VerifyPrincipal(context.Background(), s.hs256(wrongIssuer))
	s.ErrorIs(err, ErrInvalidToken)

	wrongAudience := good
	wrongAudience.Audience = jwt.ClaimStrings{"other"}
	_, err = v.VerifyPrincipal(context.Background(), s.hs256(wrongAudience))
	s.ErrorIs(err, ErrInvalidToken)
}

func (s *VerifierSuite) TestSignDevTokenRoundTrip() {
	v := s.hmacVerifier(Config{})
	token, err := SignDevToken(testSecret, model.Principal(testAddress), baseTime, time.Hour)
	s.Require().NoError(err)

	principal, err := v.VerifyPrincipal(context.Background(), token)

	s.Require().NoError(err)
	s.Equal(model.Principal(testAddress), principal)
}

func (s *VerifierSuite) TestNewVerifierNeedsAMethod() {
	_, err := NewVerifier(Config{}, nil, s.clock, testutil.NopLogger())

	s.ErrorIs(err, ErrNotConfigured)
}

// =============================================================================
// JWKS tokens
// =============================================================================

func (s *VerifierSuite) TestRS256FromKeySet() {
	v := s.jwksVerifier()
	token := s.sign(jwt.SigningMethodRS256, "rsa-1", s.rsaKey, s.claims(testAddress))

	principal, err := v.VerifyPrincipal(context.Background(), token)

	s.Require().NoError(err)
	s.Equal(model.Principal(testAddress), principal)
}

func (s *VerifierSuite) TestES256FromKeySet() {
	v := s.jwksVerifier()
	token := s.sign(jwt.SigningMethodES256, "ec-1", s.ecKey, s.claims(testAddress))

	principal, err := v.VerifyPrincipal(context.Background(), token)

	s.Require().NoError(err)
	s.Equal(model.Principal(testAddress), principal)
}

func (s *VerifierSuite) TestHMACRejectedWithoutSecret() {
	v := s.jwksVerifier()

	_, err := v.VerifyPrincipal(context.Background(), s.hs256(s.claims(testAddress)))

	s.ErrorIs(err, ErrInvalidToken)
}

func (s *VerifierSuite) TestWrongRSAKeyRejected() {
	v := s.jwksVerifier()
	token := s.sign(jwt.SigningMethodRS256, "rsa-1", s.rsaAlt, s.claims(testAddress))

	_, err := v.VerifyPrincipal(context.Background(), token)

	s.ErrorIs(err, ErrInvalidToken)
}

func (s *VerifierSuite) TestKeysCachedWithinTTL() {
	v := s.jwksVerifier()
	token := s.sign(jwt.SigningMethodRS256, "rsa-1", s.rsaKey, s.claims(testAddress))

	for range 3 {
		_, err := v.VerifyPrincipal(context.Background(), token)
		s.Require().NoError(err)
	}

	s.Equal(1, s.jwks.fetchCount())
}

func (s *VerifierSuite) TestKeysRefetchedAfterTTL() {
	v := s.jwksVerifier()
	token := s.sign(jwt.SigningMethodRS256, "rsa-1", s.rsaKey, s.claims(testAddress))

	_, err := v.VerifyPrincipal(context.Background(), token)
	s.Require().NoError(err)

	s.clock.Advance(11 * time.Minute)
	_, err = v.VerifyPrincipal(context.Background(), token)
	s.Require().NoError(err)

	s.Equal(2, s.jwks.fetchCount())
}

func (s *VerifierSuite) TestUnknownKidRefreshIsRateLimited() {
	v := s.jwksVerifier()
	token := s.sign(jwt.SigningMethodRS256, "rsa-2", s.rsaAlt, s.claims(testAddress))

	_, err := v.VerifyPrincipal(context.Background(), token)
	s.ErrorIs(err, ErrInvalidToken)
	s.Equal(1, s.jwks.fetchCount())

	// Key rotated in, but a refetch is not allowed yet
	s.jwks.setKeys(rsaJWK("rsa-1", &s.rsaKey.PublicKey), rsaJWK("rsa-2", &s.rsaAlt.PublicKey))
	_, err = v.VerifyPrincipal(context.Background(), token)
	s.ErrorIs(err, ErrInvalidToken)
	s.Equal(1, s.jwks.fetchCount())

	s.clock.Advance(time.Minute)
	principal, err := v.VerifyPrincipal(context.Background(), token)
	s.Require().NoError(err)
	s.Equal(model.Principal(testAddress), principal)
	s.Equal(2, s.jwks.fetchCount())
}

func (s *VerifierSuite) TestKeySetUnavailable() {
	s.jwks.setFail(true)
	v := s.jwksVerifier()
	token := s.sign(jwt.SigningMethodRS256, "rsa-1", s.rsaKey, s.claims(testAddress))

	_, err := v.VerifyPrincipal(context.Background(), token)

	s.ErrorIs(err, ErrKeySetUnavailable)
}

func (s *VerifierSuite) TestStaleKeysServedWhenRefreshFails() {
	v := s.jwksVerifier()
	claims := s.claims(testAddress)
	claims.ExpiresAt = jwt.NewNumericDate(baseTime.Add(24 * time.Hour))
	token := s.sign(jwt.SigningMethodRS256, "rsa-1", s.rsaKey, claims)

	_, err := v.VerifyPrincipal(context.Background(), token)
	s.Require().NoError(err)

	s.jwks.setFail(true)
	s.clock.Advance(time.Hour)
	_, err = v.VerifyPrincipal(context.Background(), token)

	s.NoError(err)
	s.Equal(2, s.jwks.fetchCount())
}

func TestParseJWKRejectsUnsupported(t *testing.T) {
	cases := map[string]string{
		"symmetric": `{"kty":"oct","kid":"sym","k":"c2VjcmV0"}`,
		"curve":     `{"kty":"EC","kid":"curve","crv":"P-521","x":"AQ","y":"AQ"}`,
		"empty":     `{"kty":"RSA","kid":"empty","n":"","e":"AQAB"}`,
		"offcurve":  `{"kty":"EC","kid":"offcurve","crv":"P-256","x":"AQ","y":"AQ"}`,
		"nokid":     `{"kty":"RSA","n":"AQAB","e":"AQAB"}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := parseJWK(json.RawMessage(raw)); err == nil {
				t.Fatalf("expected error for %s", name)
			}
		})
	}
}

func TestKeySetSkipsUnusableKeys(t *testing.T) {
	rsaKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	good, err := json.Marshal(rsaJWK("good", &rsaKey.PublicKey))
	if err != nil {
		t.Fatal(err)
	}

	fetcher := staticFetcher{json.RawMessage(`{"kty":"oct","kid":"bad","k":"c2VjcmV0"}`), good}
	keys := NewKeySet(fetcher, mocks.NewMockClock(baseTime), KeySetConfig{}, testutil.NopLogger())

	key, err := keys.Key(context.Background(), "good")
	if err != nil {
		t.Fatalf("good key: %v", err)
	}
	if _, ok := key.(*rsa.PublicKey); !ok {
		t.Fatalf("good key has type %T", key)
	}
	if _, err := keys.Key(context.Background(), "bad"); err == nil {
		t.Fatal("expected bad key to be skipped")
	}
}

// staticFetcher serves a fixed key list
type staticFetcher []json.RawMessage

func (f staticFetcher) Fetch(ctx context.Context) ([]json.RawMessage, error) {
	return f, nil
}
