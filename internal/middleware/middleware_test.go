package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/lifeline/backend/internal/config"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestCORSPreflight(t *testing.T) {
	rec := httptest.NewRecorder()
	CORS(okHandler).ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/v1/chat/message", nil))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRateLimiterBlocksAfterLimit(t *testing.T) {
	l := NewRateLimiter(config.RateLimitConfig{Enabled: true, Calls: 2, Period: time.Minute})
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	h := l.Handler(okHandler)

	send := func(ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/chat/message", nil)
		req.Header.Set("X-Forwarded-For", ip+", 10.0.0.1")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	first := send("1.2.3.4")
	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "2", first.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "1", first.Header().Get("X-RateLimit-Remaining"))

	assert.Equal(t, http.StatusOK, send("1.2.3.4").Code)

	blocked := send("1.2.3.4")
	require.Equal(t, http.StatusTooManyRequests, blocked.Code)
	assert.Equal(t, "30", blocked.Header().Get("Retry-After"))
	assert.Equal(t, "0", blocked.Header().Get("X-RateLimit-Remaining"))

	assert.Equal(t, http.StatusOK, send("5.6.7.8").Code, "other clients have their own bucket")

	now = now.Add(31 * time.Second)
	assert.Equal(t, http.StatusOK, send("1.2.3.4").Code)
}

func TestRateLimiterSkipsHealth(t *testing.T) {
	l := NewRateLimiter(config.RateLimitConfig{Enabled: true, Calls: 1, Period: time.Hour})
	h := l.Handler(okHandler)

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.168.1.9:5555"
	assert.Equal(t, "192.168.1.9", ClientIP(req))

	req.Header.Set("X-Real-IP", "8.8.8.8")
	assert.Equal(t, "8.8.8.8", ClientIP(req))

	req.Header.Set("X-Forwarded-For", " 9.9.9.9 , 8.8.8.8")
	assert.Equal(t, "9.9.9.9", ClientIP(req))
}

type httpObservations struct {
	routes   []string
	statuses []int
}

func (h *httpObservations) RecordHTTP(_, route string, status int, _ time.Duration) {
	h.routes = append(h.routes, route)
	h.statuses = append(h.statuses, status)
}

func TestRequestLoggerUsesRoutePattern(t *testing.T) {
	obs := &httpObservations{}
	r := chi.NewRouter()
	r.Use(RequestLogger(nil, obs))
	r.Get("/api/v1/chat/session/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/chat/session/abc", nil))

	assert.Equal(t, []string{"/api/v1/chat/session/{id}"}, obs.routes)
	assert.Equal(t, []int{http.StatusNotFound}, obs.statuses)
}
