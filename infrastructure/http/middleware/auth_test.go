package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onboarding/onboarding-service/application/port/outbound"
	"github.com/onboarding/onboarding-service/infrastructure/service/logger"
)

type stubValidator struct {
	outcome outbound.ValidationOutcome
	seen    string
}

func (s *stubValidator) ValidateToken(token string) outbound.ValidationOutcome {
	s.seen = token
	return s.outcome
}

func TestRequireAuth_StoresClaims(t *testing.T) {
	claims := &outbound.TokenClaims{UserID: "42", UserRole: "Admin"}
	validator := &stubValidator{outcome: outbound.Valid(claims)}
	mw := NewAuthMiddleware(validator, nil)

	var got *outbound.TokenClaims
	h := mw.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = GetUserClaims(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "bearer  abc.def.ghi ")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "abc.def.ghi", validator.seen)
	require.NotNil(t, got)
	assert.Equal(t, "42", got.UserID)
}

func TestRequireAuth_LogsReasonButAnswersUniformly(t *testing.T) {
	var buf bytes.Buffer
	log := logger.NewStructuredLogger(logger.LoggerConfig{Level: "info", Format: "json", Output: &buf})

	reasons := []outbound.RejectionReason{
		outbound.ReasonMalformed,
		outbound.ReasonBadSignature,
		outbound.ReasonWrongIssuer,
		outbound.ReasonWrongAudience,
		outbound.ReasonExpired,
	}

	var bodies []string
	for _, reason := range reasons {
		buf.Reset()
		mw := NewAuthMiddleware(&stubValidator{outcome: outbound.Rejected(reason, nil)}, log)
		h := mw.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("handler must not run for a rejected token")
		}))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer token")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, buf.String(), string(reason))
		bodies = append(bodies, rec.Body.String())
	}

	for _, body := range bodies[1:] {
		assert.Equal(t, bodies[0], body)
	}
}

func TestGetUserClaims_Empty(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Nil(t, GetUserClaims(req.Context()))
}

func TestCorrelationIDMiddleware(t *testing.T) {
	var seen string
	h := CorrelationIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = logger.CorrelationID(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get(CorrelationIDHeader))
}
