// Per-IP rate limiting for the admin control plane. A manual ritual
// trigger disturbs every citizen in the district, so each caller gets
// a fixed allowance of triggers per window.
package api

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimiter grants each remote IP a fixed number of requests per
// window. The window starts on an IP's first request and resets after
// it elapses.
type RateLimiter struct {
	mu        sync.Mutex
	allow     map[string]*allowance
	perWindow int
	window    time.Duration
}

type allowance struct {
	left     int
	windowAt time.Time
}

// NewRateLimiter creates a limiter allowing perWindow requests per
// window per IP.
func NewRateLimiter(perWindow int, window time.Duration) *RateLimiter {
	rl := &RateLimiter{
		allow:     make(map[string]*allowance),
		perWindow: perWindow,
		window:    window,
	}
	go rl.sweep()
	return rl
}

// sweep drops allowances idle for two full windows so the map does not
// grow with one-off callers.
func (rl *RateLimiter) sweep() {
	for {
		time.Sleep(time.Hour)
		rl.mu.Lock()
		now := time.Now()
		for ip, a := range rl.allow {
			if now.Sub(a.windowAt) > 2*rl.window {
				delete(rl.allow, ip)
			}
		}
		rl.mu.Unlock()
	}
}

// Allow consumes one request from the IP's allowance, reporting whether
// it was within limits.
func (rl *RateLimiter) Allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	a, ok := rl.allow[ip]
	if !ok || now.Sub(a.windowAt) >= rl.window {
		rl.allow[ip] = &allowance{left: rl.perWindow - 1, windowAt: now}
		return true
	}
	if a.left > 0 {
		a.left--
		return true
	}
	return false
}

// RetryAfter reports how many seconds remain until the IP's window
// resets.
func (rl *RateLimiter) RetryAfter(ip string) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	a, ok := rl.allow[ip]
	if !ok {
		return 0
	}
	remaining := rl.window - time.Since(a.windowAt)
	if remaining < 0 {
		return 0
	}
	return int(remaining.Seconds()) + 1
}

// clientIP prefers the first X-Forwarded-For hop (the city runs behind
// a reverse proxy in production) and falls back to the connection
// address with the port stripped.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// RateLimitMiddleware rejects callers past their allowance with a 429
// and a Retry-After hint.
func RateLimitMiddleware(rl *RateLimiter, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if !rl.Allow(ip) {
			w.Header().Set("Retry-After", strconv.Itoa(rl.RetryAfter(ip)))
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next(w, r)
	}
}
