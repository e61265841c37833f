package validator

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/big"
	"strings"
	"time"

	"github.com/boogy/health-journal/pkg/config"
	"github.com/boogy/health-journal/pkg/keyset"
	"github.com/boogy/health-journal/pkg/token"
	"github.com/boogy/health-journal/pkg/types"
	"github.com/golang-jwt/jwt/v5"
)

// Algorithm is the only accepted "alg" header value.
const Algorithm = "RS256"

var (
	ErrUnsupportedAlgorithm = errors.New("unsupported signing algorithm")
	ErrUnknownSigningKey    = errors.New("unknown signing key")
	ErrInvalidSignature     = errors.New("invalid signature")
	ErrTokenExpired         = errors.New("token expired")
	ErrInvalidIssuer        = errors.New("invalid issuer")
)

// KeySource supplies verification keys. *keyset.Provider implements it.
type KeySource interface {
	Current(ctx context.Context) (*keyset.KeySet, error)
	Refresh(ctx context.Context) (*keyset.KeySet, error)
}

type TokenValidatorInterface interface {
	Validate(ctx context.Context, tokenString string) (*token.Token, error)
	ValidateSubject(ctx context.Context, tokenString string) (string, error)
}

type TokenValidator struct {
	ExpectedIssuer string
	Keys           KeySource
	now            func() time.Time
}

type Option func(*TokenValidator)

// WithClock replaces time.Now for the expiry check.
func WithClock(now func() time.Time) Option {
	return func(v *TokenValidator) {
		v.now = now
	}
}

func NewTokenValidator(cfg *config.Config, keys KeySource, opts ...Option) *TokenValidator {
	v := &TokenValidator{
		ExpectedIssuer: cfg.Issuer(),
		Keys:           keys,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate runs every check in order and returns the decoded token only when
// all of them pass.
func (v *TokenValidator) Validate(ctx context.Context, tokenString string) (*token.Token, error) {
	tok, err := token.Parse(tokenString)
	if err != nil {
		return nil, err
	}

	if tok.Header.Algorithm != Algorithm {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, tok.Header.Algorithm)
	}

	jwk, err := v.signingKey(ctx, tok.Header.KeyID)
	if err != nil {
		return nil, err
	}

	pub, err := PublicKey(jwk)
	if err != nil {
		return nil, fmt.Errorf("%w: kid %q: %v", ErrUnknownSigningKey, jwk.KeyID, err)
	}

	// Strict decoding rejects non-zero trailing bits, so every bit of the
	// segment is covered by the signature check.
	sig, err := base64.RawURLEncoding.Strict().DecodeString(tok.RawSignature())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if err := jwt.SigningMethodRS256.Verify(tok.SigningInput(), sig, pub); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	exp, err := tok.Claims.ExpiresAt()
	if err != nil {
		return nil, err
	}
	if expired(v.now(), exp) {
		return nil, fmt.Errorf("%w: exp %d", ErrTokenExpired, exp)
	}

	iss, err := tok.Claims.Issuer()
	if err != nil {
		return nil, err
	}
	if iss != v.ExpectedIssuer {
		return nil, fmt.Errorf("%w: %q", ErrInvalidIssuer, iss)
	}

	if _, err := tok.Claims.Subject(); err != nil {
		return nil, err
	}

	return tok, nil
}

// ValidateSubject validates tokenString and returns its "sub" claim.
func (v *TokenValidator) ValidateSubject(ctx context.Context, tokenString string) (string, error) {
	tok, err := v.Validate(ctx, tokenString)
	if err != nil {
		return "", err
	}
	return tok.Claims.Subject()
}

// signingKey looks kid up in the current set and, on a miss, once more after a
// forced refresh in case the provider rotated keys since the last fetch.
func (v *TokenValidator) signingKey(ctx context.Context, kid string) (types.JSONWebKey, error) {
	if kid == "" {
		return types.JSONWebKey{}, fmt.Errorf("%w: token has no kid", ErrUnknownSigningKey)
	}

	ks, err := v.Keys.Current(ctx)
	if err != nil {
		return types.JSONWebKey{}, err
	}
	if key, ok := ks.Lookup(kid); ok {
		return key, nil
	}

	slog.Debug("Unknown kid, forcing key set refresh", "kid", kid)
	ks, err = v.Keys.Refresh(ctx)
	if err != nil {
		return types.JSONWebKey{}, err
	}
	if key, ok := ks.Lookup(kid); ok {
		return key, nil
	}
	return types.JSONWebKey{}, fmt.Errorf("%w: kid %q", ErrUnknownSigningKey, kid)
}

// expired reports now_ms > exp*1000 without scaling exp, so extreme values
// cannot overflow.
func expired(now time.Time, exp int64) bool {
	sec := now.Unix()
	return sec > exp || (sec == exp && now.Nanosecond() >= int(time.Millisecond))
}

// PublicKey rebuilds an RSA public key from a JWK's unsigned big-endian modulus
// and exponent.
func PublicKey(jwk types.JSONWebKey) (*rsa.PublicKey, error) {
	if jwk.KeyType != "RSA" {
		return nil, fmt.Errorf("unsupported key type %q", jwk.KeyType)
	}
	if jwk.Algorithm != "" && jwk.Algorithm != Algorithm {
		return nil, fmt.Errorf("key is for algorithm %q", jwk.Algorithm)
	}
	if jwk.Use != "" && jwk.Use != "sig" {
		return nil, fmt.Errorf("key use is %q", jwk.Use)
	}

	nBytes, err := decodeUint(jwk.N)
	if err != nil {
		return nil, fmt.Errorf("failed to decode modulus: %w", err)
	}
	eBytes, err := decodeUint(jwk.E)
	if err != nil {
		return nil, fmt.Errorf("failed to decode exponent: %w", err)
	}

	n := new(big.Int).SetBytes(nBytes)
	e := new(big.Int).SetBytes(eBytes)
	if n.Sign() == 0 {
		return nil, errors.New("modulus is zero")
	}
	if !e.IsInt64() || e.Int64() < 2 || e.Int64() > math.MaxInt32 {
		return nil, errors.New("exponent out of range")
	}

	return &rsa.PublicKey{N: n, E: int(e.Int64())}, nil
}

func decodeUint(s string) ([]byte, error) {
	s = strings.TrimRight(s, "=")
	if s == "" {
		return nil, errors.New("empty value")
	}
	return base64.RawURLEncoding.DecodeString(s)
}
