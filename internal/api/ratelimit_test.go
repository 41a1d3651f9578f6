package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remote     string
		xff        string
		trustProxy bool
		want       string
	}{
		{"remote address", "10.0.0.7:5123", "", false, "10.0.0.7"},
		{"forwarded header ignored", "10.0.0.7:5123", "1.2.3.4", false, "10.0.0.7"},
		{"trusted proxy", "10.0.0.1:443", "1.2.3.4", true, "1.2.3.4"},
		{"trusted proxy appends last", "10.0.0.1:443", "6.6.6.6, 1.2.3.4", true, "1.2.3.4"},
		{"empty trailing entry", "10.0.0.1:443", "1.2.3.4, ", true, "10.0.0.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			assert.Equal(t, tt.want, clientIP(req, tt.trustProxy))
		})
	}
}

func TestRateLimit_ForwardedHeaderDoesNotResetBucket(t *testing.T) {
	rl := NewRateLimiter(1, time.Hour)
	h := RateLimitMiddleware(rl, false, func(w http.ResponseWriter, r *http.Request) {})

	codes := make([]int, 0, 2)
	for _, xff := range []string{"1.1.1.1", "2.2.2.2"} {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/event", nil)
		req.RemoteAddr = "10.0.0.7:5123"
		req.Header.Set("X-Forwarded-For", xff)
		rec := httptest.NewRecorder()
		h(rec, req)
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusTooManyRequests}, codes)
}
