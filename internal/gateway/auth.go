package gateway

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// tokenCache caches the OAuth bearer token until shortly before expiry.
// Reads are a lock-free atomic load; refresh is serialized by a mutex and
// runs the HTTP call outside any read path, then swaps the whole value in.
type tokenCache struct {
	cur     atomic.Pointer[cachedToken]
	mu      sync.Mutex
	fetch   func(ctx context.Context) (token string, ttl time.Duration, err error)
	nowFunc func() time.Time

	// skew is subtracted from the provider TTL so we refresh before the
	// token actually dies mid-request.
	skew time.Duration
}

type cachedToken struct {
	value   string
	expires time.Time
}

func newTokenCache(fetch func(ctx context.Context) (string, time.Duration, error)) *tokenCache {
	return &tokenCache{fetch: fetch, nowFunc: time.Now, skew: 60 * time.Second}
}

// Token returns a valid bearer token, refreshing if the cached one expired.
func (c *tokenCache) Token(ctx context.Context) (string, error) {
	if t := c.cur.Load(); t != nil && c.nowFunc().Before(t.expires) {
		return t.value, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	// Another caller may have refreshed while we waited for the lock.
	if t := c.cur.Load(); t != nil && c.nowFunc().Before(t.expires) {
		return t.value, nil
	}

	value, ttl, err := c.fetch(ctx)
	if err != nil {
		return "", err
	}
	if ttl > c.skew {
		ttl -= c.skew
	}
	c.cur.Store(&cachedToken{value: value, expires: c.nowFunc().Add(ttl)})
	return value, nil
}

// Invalidate drops the cached token so the next call fetches a fresh one.
func (c *tokenCache) Invalidate() {
	c.cur.Store(nil)
}
