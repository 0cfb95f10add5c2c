package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/fakhrymubarak/weather-forecast-viewer/internal/config"
	"github.com/fakhrymubarak/weather-forecast-viewer/internal/model"
	"golang.org/x/time/rate"
)

// visitor holds the rate limiter and last seen time for a specific IP address.
type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter limits requests per client IP. A request over the limit gets a
// 429 with the standard error envelope.
type RateLimiter struct {
	rate     rate.Limit
	burst    int
	idle     time.Duration
	visitors map[string]*visitor // key: ip
	mu       sync.Mutex
	now      func() time.Time
}

// NewRateLimiter allows rps requests per second per IP with the given burst.
// Visitors not seen for idle are dropped by Cleanup.
func NewRateLimiter(rps float64, burst int, idle time.Duration) *RateLimiter {
	return &RateLimiter{
		rate:     rate.Limit(rps),
		burst:    burst,
		idle:     idle,
		visitors: make(map[string]*visitor),
		now:      time.Now,
	}
}

// NewRefreshRateLimiter builds the limiter guarding the refresh trigger from config.
func NewRefreshRateLimiter() *RateLimiter {
	rps, burst := config.GetRefreshRateLimiterConfig()
	return NewRateLimiter(rps, burst, config.GetRateLimiterCleanupTimeout())
}

// getLimiter returns the rate limiter for the given IP address, creating one if it does not exist.
func (rl *RateLimiter) getLimiter(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	v, exists := rl.visitors[ip]
	if !exists {
		limiter := rate.NewLimiter(rl.rate, rl.burst)
		rl.visitors[ip] = &visitor{limiter, rl.now()}
		return limiter
	}
	v.lastSeen = rl.now()
	return v.limiter
}

// Cleanup removes visitors that have not been seen for longer than the idle timeout.
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for ip, v := range rl.visitors {
		if rl.now().Sub(v.lastSeen) > rl.idle {
			delete(rl.visitors, ip)
		}
	}
}

// StartCleanup runs Cleanup every interval until ctx is done.
func (rl *RateLimiter) StartCleanup(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				rl.Cleanup()
			}
		}
	}()
}

// Reset clears all visitor state. Used primarily for testing.
func (rl *RateLimiter) Reset() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for k := range rl.visitors {
		delete(rl.visitors, k)
	}
}

func (rl *RateLimiter) visitorCount() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.visitors)
}

// getIP extracts the client's IP address from the HTTP request, considering X-Forwarded-For headers.
func getIP(r *http.Request) string {
	xff := r.Header.Get("X-Forwarded-For")
	if xff != "" {
		ips := strings.Split(xff, ",")
		return strings.TrimSpace(ips[0])
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr // fallback
	}
	return ip
}

// Middleware enforces the per-IP limit in front of next.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.getLimiter(getIP(r)).Allow() {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			errMsg := fmt.Sprintf("Rate limit exceeded: max %d refresh requests in a burst per user/IP", rl.burst)
			resp := model.Response{
				Error:   &errMsg,
				Message: "Too Many Requests",
			}
			_ = json.NewEncoder(w).Encode(resp)
			return
		}
		next.ServeHTTP(w, r)
	})
}
