package admin

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func request(h http.Handler, path, remote string, headers map[string]string) int {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.RemoteAddr = remote
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec.Code
}

func TestRateLimitMiddleware_BlocksExcessiveRequests(t *testing.T) {
	rl := NewRateLimitMiddleware([]Rule{{Prefix: "/status", RPS: 0.001, Burst: 2}}, false, testLogger())
	defer rl.Stop()
	h := rl.Wrap(okHandler())

	assert.Equal(t, http.StatusOK, request(h, "/status", "10.0.0.1:1234", nil))
	assert.Equal(t, http.StatusOK, request(h, "/status", "10.0.0.1:1234", nil))
	assert.Equal(t, http.StatusTooManyRequests, request(h, "/status", "10.0.0.1:1234", nil))

	// Another client has its own bucket.
	assert.Equal(t, http.StatusOK, request(h, "/status", "10.0.0.2:1234", nil))
	// Paths outside every rule are not limited.
	assert.Equal(t, http.StatusOK, request(h, "/other", "10.0.0.1:1234", nil))
}

func TestRateLimitMiddleware_RulesAreIndependent(t *testing.T) {
	rl := NewRateLimitMiddleware([]Rule{
		{Prefix: "/metrics", RPS: 0.001, Burst: 1},
		{Prefix: "", RPS: 0.001, Burst: 1},
	}, false, testLogger())
	defer rl.Stop()
	h := rl.Wrap(okHandler())

	assert.Equal(t, http.StatusOK, request(h, "/metrics", "10.0.0.1:1", nil))
	assert.Equal(t, http.StatusTooManyRequests, request(h, "/metrics", "10.0.0.1:1", nil))
	assert.Equal(t, http.StatusOK, request(h, "/status", "10.0.0.1:1", nil))
}

func TestRateLimitMiddleware_ProxyHeaders(t *testing.T) {
	rules := []Rule{{Prefix: "", RPS: 0.001, Burst: 1}}

	trusting := NewRateLimitMiddleware(rules, true, testLogger())
	defer trusting.Stop()
	h := trusting.Wrap(okHandler())
	assert.Equal(t, http.StatusOK, request(h, "/status", "10.0.0.9:1", map[string]string{"X-Forwarded-For": "1.1.1.1, 10.0.0.9"}))
	assert.Equal(t, http.StatusOK, request(h, "/status", "10.0.0.9:1", map[string]string{"X-Forwarded-For": "2.2.2.2"}))
	assert.Equal(t, http.StatusTooManyRequests, request(h, "/status", "10.0.0.9:1", map[string]string{"X-Real-IP": "1.1.1.1"}))

	direct := NewRateLimitMiddleware(rules, false, testLogger())
	defer direct.Stop()
	h = direct.Wrap(okHandler())
	assert.Equal(t, http.StatusOK, request(h, "/status", "10.0.0.9:1", map[string]string{"X-Forwarded-For": "1.1.1.1"}))
	assert.Equal(t, http.StatusTooManyRequests, request(h, "/status", "10.0.0.9:1", map[string]string{"X-Forwarded-For": "2.2.2.2"}))
}

func TestRateLimitMiddleware_EvictsStaleLimiters(t *testing.T) {
	rl := NewRateLimitMiddleware(nil, false, testLogger())
	defer rl.Stop()
	now := time.Now()
	rl.nowFunc = func() time.Time { return now }

	h := rl.Wrap(okHandler())
	request(h, "/status", "10.0.0.1:1", nil)
	request(h, "/status", "10.0.0.2:1", nil)
	assert.Equal(t, 2, rl.LimiterCount())

	now = now.Add(staleLimiterTTL + time.Second)
	rl.evictStale()
	assert.Equal(t, 0, rl.LimiterCount())
}
