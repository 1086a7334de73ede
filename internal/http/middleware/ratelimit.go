package middleware

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const visitorIdleExpiry = 3 * time.Minute

// visitorRegistry hands out one token bucket per client IP. Document
// registration fans out into chunked model calls, so the trigger surface is
// throttled well before the pipeline is.
type visitorRegistry struct {
	mu       sync.Mutex
	limiters map[string]*visitorLimiter
	rps      rate.Limit
	burst    int
}

type visitorLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newVisitorRegistry(rps float64, burst int) *visitorRegistry {
	return &visitorRegistry{
		limiters: make(map[string]*visitorLimiter),
		rps:      rate.Limit(rps),
		burst:    burst,
	}
}

func (v *visitorRegistry) allow(ip string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	entry, ok := v.limiters[ip]
	if !ok {
		entry = &visitorLimiter{limiter: rate.NewLimiter(v.rps, v.burst)}
		v.limiters[ip] = entry
	}
	entry.lastSeen = time.Now()
	return entry.limiter.Allow()
}

func (v *visitorRegistry) sweep() {
	v.mu.Lock()
	defer v.mu.Unlock()
	for ip, entry := range v.limiters {
		if time.Since(entry.lastSeen) > visitorIdleExpiry {
			delete(v.limiters, ip)
		}
	}
}

func RateLimit(rps float64, burst int) func(http.Handler) http.Handler {
	if rps <= 0 {
		rps = 20
	}
	if burst <= 0 {
		burst = 40
	}
	registry := newVisitorRegistry(rps, burst)

	go func() {
		ticker := time.NewTicker(60 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			registry.sweep()
		}
	}()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !registry.allow(clientIP(r.RemoteAddr)) {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", "1")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"error":{"code":"rate_limited","message":"too many requests"},"request_id":"` + GetRequestID(r.Context()) + `"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil || host == "" {
		return remoteAddr
	}
	return host
}
