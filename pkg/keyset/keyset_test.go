package keyset

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/boogy/health-journal/pkg/cache"
	"github.com/boogy/health-journal/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFetcher struct {
	mu    sync.Mutex
	calls atomic.Int32
	jwks  *types.JWKS
	err   error
}

func (f *fakeFetcher) Fetch(_ context.Context) (*types.JWKS, error) {
	f.calls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.jwks, f.err
}

func (f *fakeFetcher) respond(jwks *types.JWKS, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jwks, f.err = jwks, err
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2025, 5, 19, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func jwksWith(kids ...string) *types.JWKS {
	jwks := &types.JWKS{}
	for _, kid := range kids {
		jwks.Keys = append(jwks.Keys, types.JSONWebKey{KeyID: kid, KeyType: "RSA", Algorithm: "RS256", Use: "sig", N: "AQAB", E: "AQAB"})
	}
	return jwks
}

func TestKeySetLookup(t *testing.T) {
	jwks := jwksWith("a", "b")
	jwks.Keys = append(jwks.Keys, types.JSONWebKey{KeyID: "a", N: "second"})
	ks := NewKeySet(jwks, time.Time{})

	key, ok := ks.Lookup("a")
	require.True(t, ok)
	assert.Equal(t, "AQAB", key.N, "first key with a duplicate kid wins")

	_, ok = ks.Lookup("A")
	assert.False(t, ok)
	_, ok = ks.Lookup("")
	assert.False(t, ok)

	assert.Equal(t, 3, ks.Len())
	assert.Same(t, jwks, ks.JWKS())
}

func TestCurrentCachesWithinTTL(t *testing.T) {
	clock := newTestClock()
	fetcher := &fakeFetcher{jwks: jwksWith("k1")}
	p := NewProvider(fetcher, WithClock(clock.Now))

	first, err := p.Current(context.Background())
	require.NoError(t, err)
	assert.Equal(t, clock.Now(), first.FetchedAt())

	clock.Advance(59 * time.Minute)
	second, err := p.Current(context.Background())
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, int32(1), fetcher.calls.Load())
}

func TestCurrentRefreshesAfterTTL(t *testing.T) {
	clock := newTestClock()
	fetcher := &fakeFetcher{jwks: jwksWith("k1")}
	p := NewProvider(fetcher, WithClock(clock.Now))

	_, err := p.Current(context.Background())
	require.NoError(t, err)

	fetcher.respond(jwksWith("k2"), nil)
	clock.Advance(time.Hour + time.Millisecond)

	ks, err := p.Current(context.Background())
	require.NoError(t, err)
	_, ok := ks.Lookup("k2")
	assert.True(t, ok)
	assert.Equal(t, int32(2), fetcher.calls.Load())
}

func TestCurrentConcurrentColdStartFetchesOnce(t *testing.T) {
	fetcher := &fakeFetcher{jwks: jwksWith("k1")}
	p := NewProvider(fetcher)

	const n = 64
	var wg sync.WaitGroup
	start := make(chan struct{})
	results := make([]*KeySet, n)
	errs := make([]error, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			results[i], errs[i] = p.Current(context.Background())
		}(i)
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), fetcher.calls.Load())
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Same(t, results[0], results[i], "every caller observes the same snapshot")
	}
}

func TestCurrentConcurrentStaleFetchesOnce(t *testing.T) {
	clock := newTestClock()
	fetcher := &fakeFetcher{jwks: jwksWith("k1")}
	p := NewProvider(fetcher, WithClock(clock.Now))

	_, err := p.Current(context.Background())
	require.NoError(t, err)
	clock.Advance(2 * time.Hour)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := p.Current(context.Background())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(2), fetcher.calls.Load())
}

func TestCurrentServesStaleSetOnFailure(t *testing.T) {
	clock := newTestClock()
	fetcher := &fakeFetcher{jwks: jwksWith("k1")}
	p := NewProvider(fetcher, WithClock(clock.Now), WithMinRefreshInterval(30*time.Second))

	original, err := p.Current(context.Background())
	require.NoError(t, err)

	fetcher.respond(nil, errors.New("connection refused"))
	clock.Advance(2 * time.Hour)

	ks, err := p.Current(context.Background())
	require.NoError(t, err)
	assert.Same(t, original, ks)
	assert.Equal(t, int32(2), fetcher.calls.Load())

	// Backoff: no network attempt until the interval has passed.
	clock.Advance(10 * time.Second)
	_, err = p.Current(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), fetcher.calls.Load())

	fetcher.respond(jwksWith("k2"), nil)
	clock.Advance(30 * time.Second)
	ks, err = p.Current(context.Background())
	require.NoError(t, err)
	_, ok := ks.Lookup("k2")
	assert.True(t, ok)
	assert.Equal(t, int32(3), fetcher.calls.Load())
}

func TestCurrentFailsWithoutAnySet(t *testing.T) {
	clock := newTestClock()
	fetcher := &fakeFetcher{err: errors.New("timeout")}
	p := NewProvider(fetcher, WithClock(clock.Now))

	ks, err := p.Current(context.Background())
	assert.Nil(t, ks)
	assert.ErrorIs(t, err, ErrKeySetFetch)
	assert.Contains(t, err.Error(), "timeout")

	// Within the interval the previous error is returned without a new attempt.
	_, err = p.Current(context.Background())
	assert.ErrorIs(t, err, ErrKeySetFetch)
	assert.Equal(t, int32(1), fetcher.calls.Load())

	fetcher.respond(jwksWith("k1"), nil)
	clock.Advance(DefaultMinRefreshInterval)
	ks, err = p.Current(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, ks.Len())
}

func TestRefreshIsThrottled(t *testing.T) {
	clock := newTestClock()
	fetcher := &fakeFetcher{jwks: jwksWith("k1")}
	p := NewProvider(fetcher, WithClock(clock.Now), WithMinRefreshInterval(30*time.Second))

	first, err := p.Current(context.Background())
	require.NoError(t, err)

	fetcher.respond(jwksWith("k1", "k2"), nil)
	ks, err := p.Refresh(context.Background())
	require.NoError(t, err)
	assert.Same(t, first, ks)
	assert.Equal(t, int32(1), fetcher.calls.Load())

	clock.Advance(31 * time.Second)
	ks, err = p.Refresh(context.Background())
	require.NoError(t, err)
	_, ok := ks.Lookup("k2")
	assert.True(t, ok)
	assert.Equal(t, int32(2), fetcher.calls.Load())
}

func TestRefreshWithoutThrottle(t *testing.T) {
	fetcher := &fakeFetcher{jwks: jwksWith("k1")}
	p := NewProvider(fetcher, WithMinRefreshInterval(0))

	_, err := p.Current(context.Background())
	require.NoError(t, err)
	_, err = p.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), fetcher.calls.Load())
}

func TestFallbackStore(t *testing.T) {
	store := cache.NewMemoryCache()
	const key = "https://issuer/.well-known/jwks.json"

	warm := NewProvider(&fakeFetcher{jwks: jwksWith("k1")}, WithFallback(store, key, 24*time.Hour))
	_, err := warm.Current(context.Background())
	require.NoError(t, err)

	// A new process with the identity provider down.
	clock := newTestClock()
	failing := &fakeFetcher{err: errors.New("503")}
	cold := NewProvider(failing, WithFallback(store, key, 24*time.Hour), WithClock(clock.Now))

	ks, err := cold.Current(context.Background())
	require.NoError(t, err)
	_, ok := ks.Lookup("k1")
	assert.True(t, ok)
	assert.True(t, ks.FetchedAt().IsZero())

	// The adopted set is stale, so recovery is attempted once the backoff passes.
	failing.respond(jwksWith("k2"), nil)
	clock.Advance(DefaultMinRefreshInterval)
	ks, err = cold.Current(context.Background())
	require.NoError(t, err)
	_, ok = ks.Lookup("k2")
	assert.True(t, ok)
}

func TestFallbackStoreEmpty(t *testing.T) {
	p := NewProvider(&fakeFetcher{err: errors.New("503")},
		WithFallback(cache.NewMemoryCache(), "key", time.Hour))

	_, err := p.Current(context.Background())
	assert.ErrorIs(t, err, ErrKeySetFetch)
}

func TestFetcherReturningNil(t *testing.T) {
	p := NewProvider(&fakeFetcher{})

	_, err := p.Current(context.Background())
	assert.ErrorIs(t, err, ErrKeySetFetch)
}

func TestHTTPFetcher(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		expectErr string
	}{
		{
			name:   "valid document",
			status: http.StatusOK,
			body:   `{"keys":[{"kty":"RSA","e":"AQAB","use":"sig","kid":"k1","alg":"RS256","n":"AQAB"}]}`,
		},
		{
			name:      "non-200",
			status:    http.StatusServiceUnavailable,
			body:      `{"keys":[]}`,
			expectErr: "non-200",
		},
		{
			name:      "invalid json",
			status:    http.StatusOK,
			body:      `{"keys":`,
			expectErr: "failed to parse JWKS",
		},
		{
			name:      "no keys",
			status:    http.StatusOK,
			body:      `{"keys":[]}`,
			expectErr: "no keys",
		},
		{
			name:      "oversized",
			status:    http.StatusOK,
			body:      `{"keys":[],"pad":"` + strings.Repeat("x", MaxDocumentSize) + `"}`,
			expectErr: "exceeds",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/.well-known/jwks.json", r.URL.Path)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			fetcher := NewHTTPFetcher(server.URL+"/.well-known/jwks.json", time.Second)
			jwks, err := fetcher.Fetch(context.Background())
			if tt.expectErr != "" {
				assert.ErrorContains(t, err, tt.expectErr)
				assert.Nil(t, jwks)
				return
			}
			require.NoError(t, err)
			require.Len(t, jwks.Keys, 1)
			assert.Equal(t, "k1", jwks.Keys[0].KeyID)
			assert.Equal(t, "RS256", jwks.Keys[0].Algorithm)
		})
	}
}

func TestHTTPFetcherTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	fetcher := NewHTTPFetcher(server.URL, 50*time.Millisecond)
	_, err := fetcher.Fetch(context.Background())
	assert.Error(t, err)
}
