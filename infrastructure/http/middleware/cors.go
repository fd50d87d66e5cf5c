package middleware

import (
	"net/http"

	"github.com/rs/cors"
)

// CORSMiddleware lets browsers on allowedOrigins call the API. Origins are
// exact matches (scheme, host and optional port).
func CORSMiddleware(next http.Handler, allowedOrigins []string, allowCredentials bool) http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{
			"Authorization",
			"Content-Type",
			CorrelationIDHeader,
			"Idempotency-Key",
		},
		ExposedHeaders:   []string{CorrelationIDHeader},
		AllowCredentials: allowCredentials,
		MaxAge:           600,
	}).Handler(next)
}
