package admin

import (
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	staleLimiterTTL = 10 * time.Minute
	cleanupInterval = time.Minute
)

// Rule limits requests whose path starts with Prefix. An empty Prefix
// matches every path.
type Rule struct {
	Prefix string
	RPS    rate.Limit
	Burst  int
}

// DefaultRules keep the status endpoints cheap to scrape but hard to flood.
var DefaultRules = []Rule{
	{Prefix: "/healthz", RPS: 10, Burst: 20},
	{Prefix: "/metrics", RPS: 2, Burst: 5},
	{Prefix: "", RPS: 1, Burst: 5},
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimitMiddleware applies a token bucket per (rule, client IP).
type RateLimitMiddleware struct {
	mu         sync.Mutex
	limiters   map[string]*limiterEntry
	rules      []Rule
	trustProxy bool
	logger     *slog.Logger
	nowFunc    func() time.Time
	stopOnce   sync.Once
	stopCh     chan struct{}
}

// NewRateLimitMiddleware starts a background sweep of idle limiters; call
// Stop to end it. When trustProxy is set the client IP is taken from
// X-Forwarded-For or X-Real-IP.
func NewRateLimitMiddleware(rules []Rule, trustProxy bool, logger *slog.Logger) *RateLimitMiddleware {
	if len(rules) == 0 {
		rules = DefaultRules
	}
	rl := &RateLimitMiddleware{
		limiters:   make(map[string]*limiterEntry),
		rules:      rules,
		trustProxy: trustProxy,
		logger:     logger,
		nowFunc:    time.Now,
		stopCh:     make(chan struct{}),
	}
	go rl.cleanupLoop()
	return rl
}

func (rl *RateLimitMiddleware) Stop() {
	rl.stopOnce.Do(func() {
		close(rl.stopCh)
	})
}

func (rl *RateLimitMiddleware) cleanupLoop() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stopCh:
			return
		case <-ticker.C:
			rl.evictStale()
		}
	}
}

func (rl *RateLimitMiddleware) evictStale() {
	now := rl.nowFunc()
	rl.mu.Lock()
	defer rl.mu.Unlock()

	for key, entry := range rl.limiters {
		if now.Sub(entry.lastSeen) > staleLimiterTTL {
			delete(rl.limiters, key)
		}
	}
}

func (rl *RateLimitMiddleware) LimiterCount() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.limiters)
}

func (rl *RateLimitMiddleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rule, ok := rl.match(r.URL.Path)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}
		clientIP := rl.clientIP(r)
		if !rl.limiter(rule, clientIP).Allow() {
			w.Header().Set("Retry-After", "1")
			http.Error(w, `{"error":"rate limit exceeded"}`, http.StatusTooManyRequests)
			rl.logger.Warn("status API rate limit exceeded",
				"path", r.URL.Path,
				"client_ip", clientIP,
			)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimitMiddleware) match(path string) (Rule, bool) {
	for _, rule := range rl.rules {
		if rule.Prefix == "" || strings.HasPrefix(path, rule.Prefix) {
			return rule, true
		}
	}
	return Rule{}, false
}

func (rl *RateLimitMiddleware) limiter(rule Rule, clientIP string) *rate.Limiter {
	key := rule.Prefix + "|" + clientIP
	now := rl.nowFunc()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if entry, ok := rl.limiters[key]; ok {
		entry.lastSeen = now
		return entry.limiter
	}
	l := rate.NewLimiter(rule.RPS, max(rule.Burst, 1))
	rl.limiters[key] = &limiterEntry{limiter: l, lastSeen: now}
	return l
}

func (rl *RateLimitMiddleware) clientIP(r *http.Request) string {
	if rl.trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			return strings.TrimSpace(first)
		}
		if xri := r.Header.Get("X-Real-IP"); xri != "" {
			return strings.TrimSpace(xri)
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
