// Package keyset caches the identity provider's signing keys.
//
// The current set is an immutable snapshot behind an atomic pointer, so
// lookups never block. Network refreshes are collapsed through singleflight:
// concurrent callers that find the snapshot stale share one fetch.
package keyset

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/boogy/health-journal/pkg/cache"
	"github.com/boogy/health-journal/pkg/types"
	"golang.org/x/sync/singleflight"
)

// ErrKeySetFetch is returned only when no key set has ever been obtained.
var ErrKeySetFetch = errors.New("key set fetch failed")

const (
	DefaultTTL                = time.Hour
	DefaultMinRefreshInterval = 30 * time.Second
)

// KeySet is an immutable snapshot of the published keys.
type KeySet struct {
	jwks      *types.JWKS
	byKID     map[string]types.JSONWebKey
	fetchedAt time.Time
}

// NewKeySet indexes jwks by kid. On duplicate kids the first key wins.
func NewKeySet(jwks *types.JWKS, fetchedAt time.Time) *KeySet {
	ks := &KeySet{
		jwks:      jwks,
		byKID:     make(map[string]types.JSONWebKey, len(jwks.Keys)),
		fetchedAt: fetchedAt,
	}
	for _, key := range jwks.Keys {
		if _, dup := ks.byKID[key.KeyID]; !dup {
			ks.byKID[key.KeyID] = key
		}
	}
	return ks
}

// Lookup matches kid exactly.
func (ks *KeySet) Lookup(kid string) (types.JSONWebKey, bool) {
	key, ok := ks.byKID[kid]
	return key, ok
}

func (ks *KeySet) Len() int { return len(ks.jwks.Keys) }

func (ks *KeySet) FetchedAt() time.Time { return ks.fetchedAt }

func (ks *KeySet) JWKS() *types.JWKS { return ks.jwks }

// Provider owns the current KeySet.
type Provider struct {
	fetcher            Fetcher
	ttl                time.Duration
	minRefreshInterval time.Duration
	now                func() time.Time

	fallback    cache.Cache
	fallbackKey string
	fallbackTTL time.Duration

	current atomic.Pointer[KeySet]
	group   singleflight.Group

	// Guarded by mu. Only touched from inside a flight.
	mu          sync.Mutex
	lastAttempt time.Time
	lastErr     error
}

type Option func(*Provider)

// WithTTL sets the age after which Current refreshes.
func WithTTL(ttl time.Duration) Option {
	return func(p *Provider) {
		if ttl > 0 {
			p.ttl = ttl
		}
	}
}

// WithMinRefreshInterval sets the minimum time between network attempts while a
// key set is held, for forced refreshes and after a failed attempt.
func WithMinRefreshInterval(d time.Duration) Option {
	return func(p *Provider) {
		if d >= 0 {
			p.minRefreshInterval = d
		}
	}
}

// WithFallback persists every fetched set under key and reads it back when the
// provider has nothing else to serve.
func WithFallback(store cache.Cache, key string, ttl time.Duration) Option {
	return func(p *Provider) {
		p.fallback = store
		p.fallbackKey = key
		p.fallbackTTL = ttl
	}
}

func WithClock(now func() time.Time) Option {
	return func(p *Provider) {
		p.now = now
	}
}

func NewProvider(fetcher Fetcher, opts ...Option) *Provider {
	p := &Provider{
		fetcher:            fetcher,
		ttl:                DefaultTTL,
		minRefreshInterval: DefaultMinRefreshInterval,
		now:                time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Current returns the cached set, refreshing it first when older than the TTL.
// A failed refresh still returns the previous set with a nil error.
func (p *Provider) Current(ctx context.Context) (*KeySet, error) {
	if ks := p.current.Load(); ks != nil && p.fresh(ks) {
		return ks, nil
	}
	return p.refresh(ctx, false)
}

// Refresh fetches regardless of age, unless the last network attempt was
// within the minimum refresh interval.
func (p *Provider) Refresh(ctx context.Context) (*KeySet, error) {
	return p.refresh(ctx, true)
}

func (p *Provider) fresh(ks *KeySet) bool {
	return p.now().Sub(ks.fetchedAt) <= p.ttl
}

func (p *Provider) refresh(ctx context.Context, forced bool) (*KeySet, error) {
	// The fetch is shared, so no single caller's cancellation may abort it.
	// The fetcher's own timeout bounds it instead.
	flightCtx := context.WithoutCancel(ctx)

	v, err, shared := p.group.Do("jwks", func() (any, error) {
		return p.load(flightCtx, forced)
	})
	if shared {
		slog.Debug("Joined in-flight JWKS refresh")
	}
	if err != nil {
		return nil, err
	}
	return v.(*KeySet), nil
}

func (p *Provider) load(ctx context.Context, forced bool) (*KeySet, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	ks := p.current.Load()
	sinceAttempt := now.Sub(p.lastAttempt)
	throttled := !p.lastAttempt.IsZero() && sinceAttempt < p.minRefreshInterval

	// A flight that finished just before this one may already have done the work.
	if ks != nil {
		if !forced && p.fresh(ks) {
			return ks, nil
		}
		if throttled && (forced || p.lastErr != nil) {
			return ks, nil
		}
	} else if throttled && p.lastErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeySetFetch, p.lastErr)
	}

	p.lastAttempt = now
	jwks, err := p.fetcher.Fetch(ctx)
	if err == nil && jwks == nil {
		err = errors.New("fetcher returned no key set")
	}
	if err != nil {
		p.lastErr = err
		return p.afterFailure(ctx, ks, err)
	}
	p.lastErr = nil

	fetched := NewKeySet(jwks, now)
	p.current.Store(fetched)
	slog.Info("Refreshed JWKS", "keys", fetched.Len(), "forced", forced)

	if p.fallback != nil {
		p.fallback.Set(ctx, p.fallbackKey, jwks, p.fallbackTTL)
	}
	return fetched, nil
}

// afterFailure decides what to serve after a failed fetch. Caller holds mu.
func (p *Provider) afterFailure(ctx context.Context, ks *KeySet, fetchErr error) (*KeySet, error) {
	if ks != nil {
		slog.Warn("JWKS refresh failed, serving previous key set",
			"error", fetchErr, "age", p.now().Sub(ks.fetchedAt))
		return ks, nil
	}

	if p.fallback != nil {
		if jwks, found := p.fallback.Get(ctx, p.fallbackKey); found && jwks != nil && len(jwks.Keys) > 0 {
			// Adopted with a zero fetch time so it is always stale and replaced
			// by the first successful fetch.
			adopted := NewKeySet(jwks, time.Time{})
			p.current.Store(adopted)
			slog.Warn("JWKS fetch failed, serving key set from fallback store",
				"error", fetchErr, "keys", adopted.Len())
			return adopted, nil
		}
	}

	slog.Error("JWKS fetch failed and no key set is available", "error", fetchErr)
	return nil, fmt.Errorf("%w: %v", ErrKeySetFetch, fetchErr)
}
