package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tramboard/tramboard/internal/api/middleware"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func requestFrom(addr, path string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, path, http.NoBody)
	req.RemoteAddr = addr
	return req
}

func TestRateLimitByIP_AllowsWithinLimit(t *testing.T) {
	handler := middleware.RateLimitByIP(5)(okHandler())

	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, requestFrom("192.168.1.1:12345", "/v1/departures"))
		assert.Equal(t, http.StatusOK, rec.Code, "request %d should be allowed", i+1)
	}
}

func TestRateLimitByIP_BlocksOverLimit(t *testing.T) {
	handler := middleware.RequestID(middleware.RateLimitByIP(2)(okHandler()))

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, requestFrom("10.0.0.1:12345", "/v1/departures"))
		assert.Equal(t, http.StatusOK, rec.Code)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, requestFrom("10.0.0.1:12345", "/v1/departures"))

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "too-many-requests")
	assert.Contains(t, rec.Body.String(), "/v1/departures")
}

func TestRateLimitByIP_SeparateClients(t *testing.T) {
	handler := middleware.RateLimitByIP(1)(okHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, requestFrom("172.16.0.1:1000", "/"))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, requestFrom("172.16.0.1:1001", "/"))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code, "same host, different port")

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, requestFrom("172.16.0.2:1000", "/"))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimitByIP_NonPositiveUsesDefault(t *testing.T) {
	handler := middleware.RateLimitByIP(0)(okHandler())

	for i := 0; i < middleware.DefaultRequestsPerMinute; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, requestFrom("198.51.100.9:80", "/"))
		if !assert.Equal(t, http.StatusOK, rec.Code) {
			return
		}
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, requestFrom("198.51.100.9:80", "/"))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}
