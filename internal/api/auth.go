package api

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"sync"

	"golang.org/x/time/rate"

	"github.com/tinywideclouds/go-notifylight/pkg/wire"
)

// RateLimit configures the per-key token bucket. A zero Rate disables
// limiting.
type RateLimit struct {
	Rate  rate.Limit
	Burst int
}

// APIKeyAuth checks the X-API-Key header against a fixed key set and
// meters each key separately.
type APIKeyAuth struct {
	keys   [][]byte
	limit  RateLimit
	logger *slog.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func NewAPIKeyAuth(keys []string, limit RateLimit, logger *slog.Logger) *APIKeyAuth {
	a := &APIKeyAuth{
		limit:    limit,
		logger:   logger.With("component", "APIKeyAuth"),
		limiters: make(map[string]*rate.Limiter),
	}
	for _, k := range keys {
		if k != "" {
			a.keys = append(a.keys, []byte(k))
		}
	}
	return a
}

// Middleware rejects unauthenticated requests with 401 and throttled ones
// with 429.
func (a *APIKeyAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(wire.APIKeyHeader)
		if key == "" {
			writeStatus(w, http.StatusUnauthorized, "API key required")
			return
		}
		if !a.valid(key) {
			a.logger.Warn("Rejected request with invalid API key", "path", r.URL.Path, "remote", r.RemoteAddr)
			writeStatus(w, http.StatusUnauthorized, "Invalid API key")
			return
		}
		if !a.allow(key) {
			w.Header().Set("Retry-After", "1")
			writeStatus(w, http.StatusTooManyRequests, "Rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// valid compares against every key so timing does not reveal which one
// matched.
func (a *APIKeyAuth) valid(key string) bool {
	candidate := []byte(key)
	match := 0
	for _, k := range a.keys {
		match |= subtle.ConstantTimeCompare(candidate, k)
	}
	return match == 1
}

func (a *APIKeyAuth) allow(key string) bool {
	if a.limit.Rate <= 0 {
		return true
	}
	a.mu.Lock()
	l, ok := a.limiters[key]
	if !ok {
		l = rate.NewLimiter(a.limit.Rate, max(a.limit.Burst, 1))
		a.limiters[key] = l
	}
	a.mu.Unlock()
	return l.Allow()
}
