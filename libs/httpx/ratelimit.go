package httpx

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

type RateLimiter struct {
	limit    int
	window   time.Duration
	mu       sync.Mutex
	visitors map[string]*visitor
}

type visitor struct {
	count     int
	resetTime time.Time
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	if limit <= 0 {
		limit = 60
	}
	if window <= 0 {
		window = time.Minute
	}
	return &RateLimiter{
		limit:    limit,
		window:   window,
		visitors: map[string]*visitor{},
	}
}

func (rl *RateLimiter) Middleware() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			now := time.Now()
			remaining, reset, ok := rl.allow(clientKey(r), now)
			setLimitHeaders(w, rl.limit, int64(remaining))
			if !ok {
				w.Header().Set("Retry-After", strconv.Itoa(int(reset.Sub(now).Seconds())+1))
				WriteError(w, r, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// allow counts one hit for key and reports the remaining budget and the end of
// the current window. Expired visitors are swept once the map grows large.
func (rl *RateLimiter) allow(key string, now time.Time) (int, time.Time, bool) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if len(rl.visitors) > 10000 {
		for k, v := range rl.visitors {
			if now.After(v.resetTime) {
				delete(rl.visitors, k)
			}
		}
	}

	v := rl.visitors[key]
	if v == nil || now.After(v.resetTime) {
		v = &visitor{count: 1, resetTime: now.Add(rl.window)}
		rl.visitors[key] = v
		return rl.limit - 1, v.resetTime, true
	}

	if v.count >= rl.limit {
		return 0, v.resetTime, false
	}
	v.count++
	return rl.limit - v.count, v.resetTime, true
}

func setLimitHeaders(w http.ResponseWriter, limit int, remaining int64) {
	if remaining < 0 {
		remaining = 0
	}
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
}

func clientKey(r *http.Request) string {
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		parts := strings.Split(ip, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		return host
	}
	return r.RemoteAddr
}
