package handler

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/boogy/health-journal/pkg/config"
	"github.com/boogy/health-journal/pkg/keyset"
	"github.com/boogy/health-journal/pkg/principal"
	"github.com/boogy/health-journal/pkg/types"
	"github.com/boogy/health-journal/pkg/validator"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testTokenPath = "/auth/token"

var testNow = time.Date(2025, 5, 19, 12, 0, 0, 0, time.UTC)

type staticFetcher struct {
	jwks *types.JWKS
}

func (f staticFetcher) Fetch(context.Context) (*types.JWKS, error) {
	return f.jwks, nil
}

// MockResolver is a mock implementation of PrincipalResolver
type MockResolver struct {
	mock.Mock
}

func (m *MockResolver) Resolve(ctx context.Context, subject, email string) (int64, error) {
	args := m.Called(ctx, subject, email)
	return args.Get(0).(int64), args.Error(1)
}

type gateFixture struct {
	key      *rsa.PrivateKey
	resolver *MockResolver
	gate     *Gate
}

func newGateFixture(t *testing.T) *gateFixture {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	jwks := &types.JWKS{Keys: []types.JSONWebKey{{
		KeyID:     "k1",
		KeyType:   "RSA",
		Algorithm: "RS256",
		Use:       "sig",
		N:         base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes()),
		E:         base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.PublicKey.E)).Bytes()),
	}}}

	cfg := &config.Config{Cognito: &config.Cognito{Region: "us-east-2", UserPoolID: "us-east-2_Test"}}
	keys := keyset.NewProvider(staticFetcher{jwks: jwks})
	v := validator.NewTokenValidator(cfg, keys, validator.WithClock(func() time.Time { return testNow }))

	resolver := &MockResolver{}
	return &gateFixture{key: key, resolver: resolver, gate: NewGate(v, resolver, testTokenPath)}
}

func (f *gateFixture) sign(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = "k1"
	s, err := tok.SignedString(f.key)
	require.NoError(t, err)
	return s
}

func claimsFor(exp time.Time) jwt.MapClaims {
	return jwt.MapClaims{
		"sub":   "abc-123",
		"email": "a@b.com",
		"iss":   "https://cognito-idp.us-east-2.amazonaws.com/us-east-2_Test",
		"exp":   exp.Unix(),
	}
}

func authedRequest(method, path, tok string) *http.Request {
	r := httptest.NewRequest(method, path, nil)
	if tok != "" {
		r.Header.Set("Authorization", "Bearer "+tok)
	}
	return r
}

func TestGateAllowsValidToken(t *testing.T) {
	f := newGateFixture(t)
	f.resolver.On("Resolve", mock.Anything, "abc-123", "a@b.com").Return(int64(42), nil).Once()

	d := f.gate.Decide(authedRequest(http.MethodGet, "/meals", f.sign(t, claimsFor(testNow.Add(time.Hour)))))

	require.True(t, d.Allow)
	require.NotNil(t, d.Principal)
	assert.Equal(t, "42", d.Principal.String())
	f.resolver.AssertExpectations(t)
}

func TestGateRejectsExpiredToken(t *testing.T) {
	f := newGateFixture(t)

	d := f.gate.Decide(authedRequest(http.MethodGet, "/meals", f.sign(t, claimsFor(testNow.Add(-10*time.Second)))))

	assert.False(t, d.Allow)
	assert.Equal(t, http.StatusUnauthorized, d.Status)
	assert.ErrorIs(t, d.Reason, validator.ErrTokenExpired)
	f.resolver.AssertNotCalled(t, "Resolve", mock.Anything, mock.Anything, mock.Anything)
}

func TestGateRejectsMissingHeader(t *testing.T) {
	f := newGateFixture(t)

	for _, header := range []string{"", "Basic abc", "bearer abc", "Bearer "} {
		r := httptest.NewRequest(http.MethodGet, "/foods", nil)
		if header != "" {
			r.Header.Set("Authorization", header)
		}
		d := f.gate.Decide(r)
		assert.False(t, d.Allow, header)
		assert.Equal(t, http.StatusUnauthorized, d.Status, header)
		assert.ErrorIs(t, d.Reason, ErrEmptyToken, header)
	}
}

func TestGateAllowsPreflightAndPublicPaths(t *testing.T) {
	f := newGateFixture(t)

	for _, r := range []*http.Request{
		authedRequest(http.MethodOptions, "/meals", "garbage"),
		authedRequest(http.MethodOptions, "/meals", ""),
		authedRequest(http.MethodPost, testTokenPath, ""),
		authedRequest(http.MethodGet, HealthPath, ""),
	} {
		d := f.gate.Decide(r)
		assert.True(t, d.Allow, r.Method+" "+r.URL.Path)
		assert.Nil(t, d.Principal)
	}
	f.resolver.AssertNotCalled(t, "Resolve", mock.Anything, mock.Anything, mock.Anything)
}

func TestGateRejectsMissingEmail(t *testing.T) {
	f := newGateFixture(t)
	claims := claimsFor(testNow.Add(time.Hour))
	delete(claims, "email")

	d := f.gate.Decide(authedRequest(http.MethodGet, "/meals", f.sign(t, claims)))

	assert.False(t, d.Allow)
	assert.Equal(t, http.StatusUnauthorized, d.Status)
}

func TestGateRejectsOversizedToken(t *testing.T) {
	f := newGateFixture(t)

	d := f.gate.Decide(authedRequest(http.MethodGet, "/meals", strings.Repeat("a", MaxTokenLength+1)))

	assert.Equal(t, http.StatusUnauthorized, d.Status)
	assert.ErrorIs(t, d.Reason, ErrTokenTooLarge)
}

func TestGateResolverFailureIs500(t *testing.T) {
	f := newGateFixture(t)
	f.resolver.On("Resolve", mock.Anything, "abc-123", "a@b.com").
		Return(int64(0), errors.Join(principal.ErrPersistence, errors.New("connection refused")))

	d := f.gate.Decide(authedRequest(http.MethodGet, "/meals", f.sign(t, claimsFor(testNow.Add(time.Hour)))))

	assert.False(t, d.Allow)
	assert.Equal(t, http.StatusInternalServerError, d.Status)
}

func TestGateMiddleware(t *testing.T) {
	f := newGateFixture(t)
	f.resolver.On("Resolve", mock.Anything, "abc-123", "a@b.com").Return(int64(7), nil)

	var seen principal.Principal
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = principal.FromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	h := f.gate.Middleware(next)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, authedRequest(http.MethodGet, "/meals", f.sign(t, claimsFor(testNow.Add(time.Hour)))))
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, int64(7), seen.UserID)

	w = httptest.NewRecorder()
	h.ServeHTTP(w, authedRequest(http.MethodGet, "/meals", "not.a.token"))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, w.Body.String())
}

func TestDescribeRejection(t *testing.T) {
	assert.Equal(t, "token_expired", describeRejection(validator.ErrTokenExpired))
	assert.Equal(t, "key_set_unavailable", describeRejection(keyset.ErrKeySetFetch))
	assert.Equal(t, "missing_bearer_token", describeRejection(ErrEmptyToken))
}
