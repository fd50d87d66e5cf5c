package outbound

import (
	"time"

	"github.com/onboarding/onboarding-service/domain/entity"
)

// TokenClaims is the claim set carried by an access token.
type TokenClaims struct {
	UserID    string    `json:"userId"`
	UserRole  string    `json:"userRole"`
	TokenID   string    `json:"jti"`
	Issuer    string    `json:"iss"`
	Audience  string    `json:"aud"`
	IssuedAt  time.Time `json:"iat"`
	ExpiresAt time.Time `json:"exp"`
}

// RejectionReason classifies why a token failed validation. It is meant for
// diagnostics; the public contract only says "invalid".
type RejectionReason string

const (
	ReasonNone          RejectionReason = ""
	ReasonMalformed     RejectionReason = "malformed"
	ReasonBadSignature  RejectionReason = "bad_signature"
	ReasonWrongIssuer   RejectionReason = "wrong_issuer"
	ReasonWrongAudience RejectionReason = "wrong_audience"
	ReasonExpired       RejectionReason = "expired"
)

func (r RejectionReason) String() string {
	if r == ReasonNone {
		return "none"
	}
	return string(r)
}

// ValidationOutcome is either valid (Claims set) or rejected (Reason set).
type ValidationOutcome struct {
	Claims *TokenClaims
	Reason RejectionReason
	// Err is the parser error behind a rejection, when there is one.
	Err error
}

func Valid(claims *TokenClaims) ValidationOutcome {
	return ValidationOutcome{Claims: claims}
}

func Rejected(reason RejectionReason, err error) ValidationOutcome {
	return ValidationOutcome{Reason: reason, Err: err}
}

func (o ValidationOutcome) IsValid() bool {
	return o.Reason == ReasonNone && o.Claims != nil
}

type TokenService interface {
	GenerateToken(identity entity.Identity) (string, error)
	// ValidateToken never fails; every problem becomes a rejection.
	ValidateToken(token string) ValidationOutcome
	// ValidateAccessToken collapses every rejection into ErrInvalidToken.
	ValidateAccessToken(token string) (*TokenClaims, error)
}
