package middleware

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/onboarding/onboarding-service/infrastructure/http/response"
	"github.com/onboarding/onboarding-service/infrastructure/service/logger"
	"github.com/onboarding/onboarding-service/infrastructure/service/ratelimit"
)

type RateLimitMiddleware struct {
	rateLimitService ratelimit.RateLimitService
	logger           logger.Logger
}

func NewRateLimitMiddleware(rateLimitService ratelimit.RateLimitService, log logger.Logger) *RateLimitMiddleware {
	if rateLimitService == nil {
		rateLimitService = ratelimit.NewNoopRateLimitService()
	}
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &RateLimitMiddleware{
		rateLimitService: rateLimitService,
		logger:           log,
	}
}

// RateLimit keys on the authenticated user, falling back to the client IP.
// A limiter failure lets the request through.
func (m *RateLimitMiddleware) RateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		key := "ip:" + getClientIP(r)
		if claims := GetUserClaims(ctx); claims != nil {
			key = "user:" + claims.UserID
		}

		allowed, retryAfter, err := m.rateLimitService.Allow(ctx, key)
		if err != nil {
			m.logger.Error(ctx, "Failed to check rate limit", err, map[string]interface{}{"key": key})
			next.ServeHTTP(w, r)
			return
		}

		if !allowed {
			m.logger.Warn(ctx, "Rate limit exceeded", map[string]interface{}{
				"key":  key,
				"path": r.URL.Path,
			})
			w.Header().Set("Retry-After", retryAfterSeconds(retryAfter))
			response.Error(w, http.StatusTooManyRequests, "Too many requests. Please try again later.")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// retryAfterSeconds rounds up to whole seconds, never below one.
func retryAfterSeconds(d time.Duration) string {
	seconds := int(math.Ceil(d.Seconds()))
	if seconds < 1 {
		seconds = 1
	}
	return strconv.Itoa(seconds)
}

// getClientIP extracts client IP from request
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return strings.TrimSpace(strings.Split(xff, ",")[0])
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
