package router

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/onboarding/onboarding-service/infrastructure/http/handler"
	"github.com/onboarding/onboarding-service/infrastructure/http/middleware"
	"github.com/onboarding/onboarding-service/infrastructure/http/response"
)

type Handlers struct {
	Auth         *handler.AuthHandler
	Notification *handler.NotificationHandler
	AuthMW       *middleware.AuthMiddleware
	RateLimitMW  *middleware.RateLimitMiddleware // optional
}

type CORSConfig struct {
	Enabled          bool
	AllowedOrigins   []string
	AllowCredentials bool
}

// New builds the route table and wraps it with correlation IDs and, when
// enabled, CORS.
func New(h Handlers, cors CORSConfig) http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		response.Success(w, http.StatusOK, "healthy", nil)
	}).Methods(http.MethodGet)

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.Use(h.AuthMW.RequireAuth)
	v1.HandleFunc("/auth/me", h.Auth.Me).Methods(http.MethodGet)
	var sendEmail http.Handler = http.HandlerFunc(h.Notification.SendEmail)
	if h.RateLimitMW != nil {
		sendEmail = h.RateLimitMW.RateLimit(sendEmail)
	}
	v1.Handle("/notifications/email", sendEmail).Methods(http.MethodPost)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	var root http.Handler = r
	if cors.Enabled && len(cors.AllowedOrigins) > 0 {
		root = middleware.CORSMiddleware(root, cors.AllowedOrigins, cors.AllowCredentials)
	}
	return middleware.CorrelationIDMiddleware(root)
}
