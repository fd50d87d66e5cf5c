package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/onboarding/onboarding-service/application/port/outbound"
	"github.com/onboarding/onboarding-service/infrastructure/http/response"
	"github.com/onboarding/onboarding-service/infrastructure/service/logger"
)

type contextKey string

const authUserKey contextKey = "auth_user"

// TokenValidator is the part of the token service the middleware needs.
type TokenValidator interface {
	ValidateToken(token string) outbound.ValidationOutcome
}

type AuthMiddleware struct {
	tokens TokenValidator
	logger logger.Logger
}

func NewAuthMiddleware(tokens TokenValidator, log logger.Logger) *AuthMiddleware {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &AuthMiddleware{
		tokens: tokens,
		logger: log,
	}
}

// RequireAuth answers every rejected token with the same 401. The rejection
// reason only goes to the log.
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r.Header.Get("Authorization"))
		if !ok {
			response.Unauthorized(w, "Authorization header required")
			return
		}

		outcome := m.tokens.ValidateToken(token)
		if !outcome.IsValid() {
			logger.LogAuthEvent(r.Context(), m.logger, "token_rejected", "", false, map[string]interface{}{
				"reason": string(outcome.Reason),
				"path":   r.URL.Path,
			})
			response.Unauthorized(w, "Invalid or expired token")
			return
		}

		ctx := context.WithValue(r.Context(), authUserKey, outcome.Claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetUserClaims retrieves user claims from context
func GetUserClaims(ctx context.Context) *outbound.TokenClaims {
	if claims, ok := ctx.Value(authUserKey).(*outbound.TokenClaims); ok {
		return claims
	}
	return nil
}

func bearerToken(header string) (string, bool) {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}
