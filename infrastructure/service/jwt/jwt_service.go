package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/onboarding/onboarding-service/application/port/outbound"
	"github.com/onboarding/onboarding-service/domain/entity"
	apperr "github.com/onboarding/onboarding-service/domain/error"
	"github.com/onboarding/onboarding-service/infrastructure/config"
)

var (
	ErrInvalidToken  = errors.New("invalid token")
	ErrMissingSecret = errors.New("jwt signing secret is required")

	errUnexpectedSigningMethod = errors.New("unexpected signing method")
)

// accessClaims is the wire form of outbound.TokenClaims.
type accessClaims struct {
	UserID   string `json:"userId"`
	UserRole string `json:"userRole"`
	jwt.RegisteredClaims
}

// JWTService issues and validates HS256 access tokens. It holds no mutable
// state and is safe for concurrent use.
type JWTService struct {
	secret   []byte
	issuer   string
	audience string
	expiry   time.Duration
	now      func() time.Time
	parser   *jwt.Parser
}

type Option func(*JWTService)

// WithClock replaces time.Now, for issuing and for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(s *JWTService) {
		s.now = now
	}
}

func NewJWTService(cfg config.SigningConfig, opts ...Option) (*JWTService, error) {
	if len(cfg.SecretKey) == 0 {
		return nil, ErrMissingSecret
	}

	secret := make([]byte, len(cfg.SecretKey))
	copy(secret, cfg.SecretKey)

	service := &JWTService{
		secret:   secret,
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		expiry:   cfg.ExpiryDuration,
		now:      time.Now,
		// Registered claims are checked by hand so the rejection order is ours.
		parser: jwt.NewParser(
			jwt.WithoutClaimsValidation(),
			jwt.WithStrictDecoding(),
		),
	}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

func (s *JWTService) GenerateToken(identity entity.Identity) (string, error) {
	if !identity.IsValid() {
		return "", apperr.ErrInvalidIdentity("identity id is empty")
	}

	now := s.now()
	claims := accessClaims{
		UserID:   identity.ID,
		UserRole: identity.Role.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    s.issuer,
			Audience:  jwt.ClaimStrings{s.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiry)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.secret)
	if err != nil {
		return "", apperr.ErrTokenSigning(err)
	}
	return tokenString, nil
}

// ValidateToken checks structure, signature, issuer, audience and expiry in
// that order and reports the first failure. It never panics and never
// returns an error.
func (s *JWTService) ValidateToken(tokenString string) (outcome outbound.ValidationOutcome) {
	defer func() {
		if r := recover(); r != nil {
			outcome = outbound.Rejected(outbound.ReasonMalformed, fmt.Errorf("token validation panicked: %v", r))
		}
	}()

	claims := &accessClaims{}
	if _, err := s.parser.ParseWithClaims(tokenString, claims, s.keyFunc); err != nil {
		return outbound.Rejected(s.classify(tokenString, err), err)
	}

	if claims.UserID == "" || claims.ExpiresAt == nil {
		return outbound.Rejected(outbound.ReasonMalformed, errors.New("token is missing userId or exp"))
	}
	if claims.Issuer != s.issuer {
		return outbound.Rejected(outbound.ReasonWrongIssuer, fmt.Errorf("issuer %q not accepted", claims.Issuer))
	}
	if !containsAudience(claims.Audience, s.audience) {
		return outbound.Rejected(outbound.ReasonWrongAudience, fmt.Errorf("audience %v not accepted", []string(claims.Audience)))
	}
	// No leeway: a token is dead at exp, not after it.
	if !s.now().Before(claims.ExpiresAt.Time) {
		return outbound.Rejected(outbound.ReasonExpired, jwt.ErrTokenExpired)
	}

	return outbound.Valid(toTokenClaims(claims, s.audience))
}

// ValidateAccessToken is the public form of ValidateToken: every rejection
// reason becomes ErrInvalidToken.
func (s *JWTService) ValidateAccessToken(tokenString string) (*outbound.TokenClaims, error) {
	outcome := s.ValidateToken(tokenString)
	if !outcome.IsValid() {
		return nil, ErrInvalidToken
	}
	return outcome.Claims, nil
}

func (s *JWTService) keyFunc(token *jwt.Token) (interface{}, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok || token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
		return nil, fmt.Errorf("%w: %v", errUnexpectedSigningMethod, token.Header["alg"])
	}
	return s.secret, nil
}

// classify maps a parser error to a rejection reason. The parser reports an
// undecodable signature segment as malformed; when header and payload are
// intact that is a signature problem.
func (s *JWTService) classify(tokenString string, err error) outbound.RejectionReason {
	switch {
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return outbound.ReasonBadSignature
	case errors.Is(err, jwt.ErrTokenMalformed) && s.headerAndPayloadIntact(tokenString):
		return outbound.ReasonBadSignature
	default:
		return outbound.ReasonMalformed
	}
}

func (s *JWTService) headerAndPayloadIntact(tokenString string) bool {
	token, _, err := s.parser.ParseUnverified(tokenString, &accessClaims{})
	if err != nil || token == nil {
		return false
	}
	_, keyErr := s.keyFunc(token)
	return keyErr == nil
}

func containsAudience(audience jwt.ClaimStrings, want string) bool {
	for _, aud := range audience {
		if aud == want {
			return true
		}
	}
	return false
}

func toTokenClaims(claims *accessClaims, audience string) *outbound.TokenClaims {
	result := &outbound.TokenClaims{
		UserID:    claims.UserID,
		UserRole:  claims.UserRole,
		TokenID:   claims.ID,
		Issuer:    claims.Issuer,
		Audience:  audience,
		ExpiresAt: claims.ExpiresAt.Time,
	}
	if claims.IssuedAt != nil {
		result.IssuedAt = claims.IssuedAt.Time
	}
	return result
}
