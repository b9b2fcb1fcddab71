package gateway

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestTokenCacheReusesUntilExpiry(t *testing.T) {
	var calls int32
	c := newTokenCache(func(ctx context.Context) (string, time.Duration, error) {
		atomic.AddInt32(&calls, 1)
		return "tok-1", 10 * time.Minute, nil
	})

	now := time.Now()
	c.nowFunc = func() time.Time { return now }

	for i := 0; i < 5; i++ {
		tok, err := c.Token(context.Background())
		if err != nil {
			t.Fatalf("Token: %v", err)
		}
		if tok != "tok-1" {
			t.Fatalf("token = %q, want tok-1", tok)
		}
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("fetch calls = %d, want 1", n)
	}
}

func TestTokenCacheRefreshesAfterExpiry(t *testing.T) {
	var calls int32
	c := newTokenCache(func(ctx context.Context) (string, time.Duration, error) {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			return "tok-1", 2 * time.Minute, nil
		}
		return "tok-2", 10 * time.Minute, nil
	})

	now := time.Now()
	c.nowFunc = func() time.Time { return now }

	if tok, _ := c.Token(context.Background()); tok != "tok-1" {
		t.Fatalf("first token = %q", tok)
	}

	// TTL 2m minus 60s skew: expired after 90s.
	now = now.Add(90 * time.Second)
	tok, err := c.Token(context.Background())
	if err != nil {
		t.Fatalf("Token after expiry: %v", err)
	}
	if tok != "tok-2" {
		t.Errorf("token = %q, want tok-2", tok)
	}
}

func TestTokenCacheFetchErrorNotCached(t *testing.T) {
	var calls int32
	c := newTokenCache(func(ctx context.Context) (string, time.Duration, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			return "", 0, errors.New("boom")
		}
		return "tok-ok", 10 * time.Minute, nil
	})

	if _, err := c.Token(context.Background()); err == nil {
		t.Fatal("expected first fetch to fail")
	}
	tok, err := c.Token(context.Background())
	if err != nil {
		t.Fatalf("second fetch: %v", err)
	}
	if tok != "tok-ok" {
		t.Errorf("token = %q, want tok-ok", tok)
	}
}

func TestTokenCacheSingleRefreshUnderContention(t *testing.T) {
	var calls int32
	c := newTokenCache(func(ctx context.Context) (string, time.Duration, error) {
		atomic.AddInt32(&calls, 1)
		time.Sleep(10 * time.Millisecond)
		return "tok", 10 * time.Minute, nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.Token(context.Background()); err != nil {
				t.Errorf("Token: %v", err)
			}
		}()
	}
	wg.Wait()

	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("fetch calls = %d, want 1", n)
	}
}

func TestTokenCacheInvalidate(t *testing.T) {
	var calls int32
	c := newTokenCache(func(ctx context.Context) (string, time.Duration, error) {
		atomic.AddInt32(&calls, 1)
		return "tok", 10 * time.Minute, nil
	})

	c.Token(context.Background())
	c.Invalidate()
	c.Token(context.Background())

	if n := atomic.LoadInt32(&calls); n != 2 {
		t.Errorf("fetch calls = %d, want 2", n)
	}
}
