package middleware

import (
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/movewell/physio-platform/internal/authn"
)

// Allower decides whether a request tagged with the given identity may
// proceed.
type Allower interface {
	Allow(identity string) bool
}

// FixedWindow is an in-memory fixed-window rate limiter. Counters reset
// at window boundaries and are not shared across processes.
type FixedWindow struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu      sync.Mutex
	counts  map[string]int
	started time.Time
}

// NewFixedWindow allows limit requests per identity per window.
func NewFixedWindow(limit int, window time.Duration) *FixedWindow {
	return &FixedWindow{
		limit:  limit,
		window: window,
		now:    time.Now,
		counts: make(map[string]int),
	}
}

func (f *FixedWindow) Allow(identity string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := f.now()
	if now.Sub(f.started) >= f.window {
		f.counts = make(map[string]int)
		f.started = now
	}
	if f.counts[identity] >= f.limit {
		return false
	}
	f.counts[identity]++
	return true
}

// RateLimit keys on the authenticated user id when present, falling back
// to the client IP. Returns 429 when the limiter rejects the request.
func RateLimit(limiter Allower) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := clientKey(r)
			if !limiter.Allow(key) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				w.Write([]byte(`{"ok":false,"error":"rate limit exceeded"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientKey(r *http.Request) string {
	if id, ok := authn.IdentityFromContext(r.Context()); ok && id.UserID != "" {
		return "user:" + id.UserID
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return "ip:" + r.RemoteAddr
	}
	return "ip:" + host
}
