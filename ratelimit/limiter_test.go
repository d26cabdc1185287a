package ratelimit

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(t *testing.T, cfg Config) *Limiter {
	t.Helper()
	l, err := NewLimiter(cfg)
	require.NoError(t, err, "test failed: could not create limiter")
	t.Cleanup(l.Stop)
	return l
}

func loginRequest(remoteAddr, xff string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/account/login", nil)
	req.RemoteAddr = remoteAddr
	if xff != "" {
		req.Header.Set("X-Forwarded-For", xff)
	}
	return req
}

func TestLimiter_Allow(t *testing.T) {
	l := newTestLimiter(t, Config{Attempts: 3, Window: time.Hour})

	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow("192.0.2.1"), "attempt %d should pass", i)
	}
	assert.False(t, l.Allow("192.0.2.1"), "attempts used up")
	assert.True(t, l.Allow("192.0.2.2"), "buckets are per client")
}

func TestLimiter_Refill(t *testing.T) {
	clock := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	l := newTestLimiter(t, Config{Attempts: 2, Window: time.Minute})
	l.now = func() time.Time { return clock }

	assert.True(t, l.Allow("192.0.2.1"))
	assert.True(t, l.Allow("192.0.2.1"))
	assert.False(t, l.Allow("192.0.2.1"))

	clock = clock.Add(30 * time.Second)
	assert.True(t, l.Allow("192.0.2.1"), "one attempt comes back every window/attempts")
	assert.False(t, l.Allow("192.0.2.1"))
}

func TestLimiter_Sweep(t *testing.T) {
	clock := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	l := newTestLimiter(t, Config{Attempts: 1, Window: time.Hour, IdleTTL: time.Minute})
	l.now = func() time.Time { return clock }

	assert.True(t, l.Allow("192.0.2.1"))
	assert.False(t, l.Allow("192.0.2.1"))

	clock = clock.Add(2 * time.Minute)
	l.sweep()
	assert.Empty(t, l.clients)
	assert.True(t, l.Allow("192.0.2.1"), "a forgotten client starts with a full bucket")
}

func TestLimiter_ClientIP(t *testing.T) {
	tests := []struct {
		name       string
		proxies    []string
		remoteAddr string
		xff        string
		want       string
	}{
		{"peer address", nil, "203.0.113.9:5123", "", "203.0.113.9"},
		{"forwarded header from untrusted peer is ignored", nil, "203.0.113.9:5123", "198.51.100.7", "203.0.113.9"},
		{"trusted proxy", []string{"10.0.0.0/8"}, "10.0.0.1:80", "198.51.100.7", "198.51.100.7"},
		{"chain of trusted proxies", []string{"10.0.0.0/8", "172.16.0.5"}, "10.0.0.1:80", "198.51.100.7, 172.16.0.5, 10.0.0.2", "198.51.100.7"},
		{"client cannot prepend hops", []string{"10.0.0.0/8"}, "10.0.0.1:80", "1.2.3.4, 198.51.100.7", "198.51.100.7"},
		{"trusted proxy without header", []string{"10.0.0.1"}, "10.0.0.1:80", "", "10.0.0.1"},
		{"malformed hop stops the walk", []string{"10.0.0.0/8"}, "10.0.0.1:80", "junk", "10.0.0.1"},
		{"ipv4 mapped peer", []string{"10.0.0.0/8"}, "[::ffff:10.0.0.1]:80", "198.51.100.7", "198.51.100.7"},
		{"ipv6 peer", nil, "[2001:db8::1]:443", "", "2001:db8::1"},
		{"peer without port", nil, "203.0.113.9", "", "203.0.113.9"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			l := newTestLimiter(t, Config{TrustedProxies: test.proxies})
			assert.Equal(t, test.want, l.ClientIP(loginRequest(test.remoteAddr, test.xff)))
		})
	}
}

func TestNewLimiter_InvalidProxy(t *testing.T) {
	for _, entry := range []string{"not-an-ip", "10.0.0.0/33"} {
		_, err := NewLimiter(Config{TrustedProxies: []string{entry}})
		assert.Error(t, err, entry)
	}
}

func TestLimiter_Middleware(t *testing.T) {
	l := newTestLimiter(t, Config{Attempts: 2, Window: time.Minute})
	handler := l.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, loginRequest("192.0.2.1:1234", ""))
		codes = append(codes, rec.Code)
		if rec.Code == http.StatusTooManyRequests {
			assert.JSONEq(t, `{"message": "too many requests, try again later"}`, rec.Body.String())
		}
	}
	assert.Equal(t, []int{http.StatusNoContent, http.StatusNoContent, http.StatusTooManyRequests}, codes)
}

func TestLimiter_MiddlewareIgnoresSpoofedForwardedFor(t *testing.T) {
	l := newTestLimiter(t, Config{Attempts: 2, Window: time.Minute})
	handler := l.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	allowed := 0
	for i := 0; i < 50; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, loginRequest("203.0.113.9:5123", fmt.Sprintf("198.51.100.%d", i)))
		if rec.Code == http.StatusNoContent {
			allowed++
		}
	}
	assert.Equal(t, 2, allowed, "a rotating X-Forwarded-For must not buy fresh attempts")
}
