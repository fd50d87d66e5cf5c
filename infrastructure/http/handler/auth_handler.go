package handler

import (
	"net/http"
	"time"

	"github.com/onboarding/onboarding-service/infrastructure/http/middleware"
	"github.com/onboarding/onboarding-service/infrastructure/http/response"
)

type AuthHandler struct{}

func NewAuthHandler() *AuthHandler {
	return &AuthHandler{}
}

type MeResponse struct {
	UserID    string    `json:"user_id"`
	Role      string    `json:"role"`
	TokenID   string    `json:"token_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Me echoes the identity carried by the validated access token.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetUserClaims(r.Context())
	if claims == nil {
		response.Unauthorized(w, "User not authenticated")
		return
	}

	response.Success(w, http.StatusOK, "success", MeResponse{
		UserID:    claims.UserID,
		Role:      claims.UserRole,
		TokenID:   claims.TokenID,
		ExpiresAt: claims.ExpiresAt,
	})
}
