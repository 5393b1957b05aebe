package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"

	"github.com/tramboard/tramboard/internal/api/models"
)

// DefaultRequestsPerMinute is used when a non-positive limit is configured.
const DefaultRequestsPerMinute = 120

// RateLimitByIP limits each client address to requestsPerMinute requests.
// The key is the address left by chi's RealIP middleware.
func RateLimitByIP(requestsPerMinute int) func(http.Handler) http.Handler {
	if requestsPerMinute <= 0 {
		requestsPerMinute = DefaultRequestsPerMinute
	}
	return httprate.Limit(
		requestsPerMinute,
		time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByRealIP),
		httprate.WithLimitHandler(rateLimitExceeded),
	)
}

// rateLimitExceeded writes a 429 problem. httprate does not expose the
// window reset, so Retry-After is the full window.
func rateLimitExceeded(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Retry-After", strconv.Itoa(int(time.Minute/time.Second)))
	models.NewTooManyRequests(GetRequestID(r.Context()), "rate limit exceeded, try again later").
		WithInstance(r.URL.Path).
		Write(w)
}
