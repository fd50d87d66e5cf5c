package router

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onboarding/onboarding-service/application/port/outbound"
	"github.com/onboarding/onboarding-service/application/usecase"
	"github.com/onboarding/onboarding-service/domain/entity"
	apperr "github.com/onboarding/onboarding-service/domain/error"
	"github.com/onboarding/onboarding-service/domain/valueobject"
	"github.com/onboarding/onboarding-service/infrastructure/config"
	"github.com/onboarding/onboarding-service/infrastructure/http/handler"
	"github.com/onboarding/onboarding-service/infrastructure/http/middleware"
	"github.com/onboarding/onboarding-service/infrastructure/service/jwt"
)

type stubPublisher struct {
	mu       sync.Mutex
	messages []outbound.NotificationMessage
	outcome  valueobject.DeliveryOutcome
}

func (s *stubPublisher) Publish(ctx context.Context, msg outbound.NotificationMessage) valueobject.DeliveryOutcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
	return s.outcome
}

func (s *stubPublisher) Close(ctx context.Context) error { return nil }

type envelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type fixture struct {
	handler   http.Handler
	tokens    *jwt.JWTService
	publisher *stubPublisher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	tokens, err := jwt.NewJWTService(config.SigningConfig{
		SecretKey:      []byte("router-test-secret-0123456789"),
		Issuer:         "onboarding",
		Audience:       "onboarding-clients",
		ExpiryDuration: time.Hour,
	})
	require.NoError(t, err)

	publisher := &stubPublisher{outcome: valueobject.Delivered("email-notify", 1, 12, 1, "generated-key")}
	uc := usecase.NewEmailNotificationUseCase(publisher, nil)

	h := New(Handlers{
		Auth:         handler.NewAuthHandler(),
		Notification: handler.NewNotificationHandler(uc, nil),
		AuthMW:       middleware.NewAuthMiddleware(tokens, nil),
	}, CORSConfig{Enabled: true, AllowedOrigins: []string{"https://app.example.com"}})

	return &fixture{handler: h, tokens: tokens, publisher: publisher}
}

func (f *fixture) token(t *testing.T) string {
	t.Helper()
	token, err := f.tokens.GenerateToken(entity.NewIdentity("42", "Admin"))
	require.NoError(t, err)
	return token
}

func (f *fixture) do(req *http.Request) (*httptest.ResponseRecorder, envelope) {
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	var body envelope
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	return rec, body
}

func emailRequest(t *testing.T, token string, body interface{}) *http.Request {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/v1/notifications/email", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func TestHealth(t *testing.T) {
	f := newFixture(t)

	rec, body := f.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, body.Status)
	assert.NotEmpty(t, rec.Header().Get(middleware.CorrelationIDHeader))
}

func TestCorrelationIDIsPropagated(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(middleware.CorrelationIDHeader, "req-123")
	rec, _ := f.do(req)
	assert.Equal(t, "req-123", rec.Header().Get(middleware.CorrelationIDHeader))
}

func TestMe(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+f.token(t))
	rec, body := f.do(req)

	require.Equal(t, http.StatusOK, rec.Code)
	var me handler.MeResponse
	require.NoError(t, json.Unmarshal(body.Data, &me))
	assert.Equal(t, "42", me.UserID)
	assert.Equal(t, "Admin", me.Role)
	assert.NotEmpty(t, me.TokenID)
}

func TestRequireAuth_UniformRejection(t *testing.T) {
	f := newFixture(t)
	valid := f.token(t)

	expired, err := jwt.NewJWTService(config.SigningConfig{
		SecretKey:      []byte("router-test-secret-0123456789"),
		Issuer:         "onboarding",
		Audience:       "onboarding-clients",
		ExpiryDuration: -time.Minute,
	})
	require.NoError(t, err)
	expiredToken, err := expired.GenerateToken(entity.NewIdentity("42", "Admin"))
	require.NoError(t, err)

	tests := map[string]string{
		"missing header": "",
		"not bearer":     "Basic abc",
		"empty bearer":   "Bearer ",
		"malformed":      "Bearer not-a-token",
		"bad signature":  "Bearer " + valid[:len(valid)-2] + "xx",
		"expired":        "Bearer " + expiredToken,
	}

	for name, header := range tests {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/v1/auth/me", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			rec, body := f.do(req)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.False(t, body.Status)
			assert.NotContains(t, rec.Body.String(), "expired_token")
			assert.NotContains(t, rec.Body.String(), "bad_signature")
		})
	}
}

func TestSendEmail_Accepted(t *testing.T) {
	f := newFixture(t)

	req := emailRequest(t, f.token(t), map[string]interface{}{
		"email":    "new.hire@example.com",
		"subject":  "Welcome",
		"template": "welcome",
		"data":     map[string]interface{}{"first_name": "Ada"},
	})
	req.Header.Set(handler.IdempotencyKeyHeader, "welcome-42")
	rec, body := f.do(req)

	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	var delivery handler.DeliveryResponse
	require.NoError(t, json.Unmarshal(body.Data, &delivery))
	assert.Equal(t, valueobject.DeliveryStatusDelivered, delivery.Status)
	assert.Equal(t, int64(12), delivery.Offset)

	require.Len(t, f.publisher.messages, 1)
	assert.Equal(t, "new.hire@example.com", f.publisher.messages[0].RoutingKey)
	assert.Equal(t, "welcome-42", f.publisher.messages[0].IdempotencyKey)
}

func TestSendEmail_DeliveryFailed(t *testing.T) {
	f := newFixture(t)
	f.publisher.outcome = valueobject.Failed("broker unreachable",
		apperr.ErrNotificationFailed("broker unreachable", errors.New("dial tcp")), 3, "k")

	rec, body := f.do(emailRequest(t, f.token(t), map[string]interface{}{
		"email": "a@example.com", "subject": "Hi", "template": "welcome",
	}))

	require.Equal(t, http.StatusBadGateway, rec.Code)
	var delivery handler.DeliveryResponse
	require.NoError(t, json.Unmarshal(body.Data, &delivery))
	assert.Equal(t, valueobject.DeliveryStatusFailed, delivery.Status)
	assert.Equal(t, 3, delivery.Attempts)
	assert.Equal(t, "broker unreachable", delivery.Reason)
}

func TestSendEmail_PublisherClosed(t *testing.T) {
	f := newFixture(t)
	f.publisher.outcome = valueobject.Failed("publisher is closed", apperr.ErrPublisherClosed(), 0, "k")

	rec, _ := f.do(emailRequest(t, f.token(t), map[string]interface{}{
		"email": "a@example.com", "subject": "Hi", "template": "welcome",
	}))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSendEmail_InvalidRequests(t *testing.T) {
	f := newFixture(t)
	token := f.token(t)

	t.Run("unauthenticated", func(t *testing.T) {
		rec, _ := f.do(emailRequest(t, "", map[string]interface{}{"email": "a@example.com"}))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("bad json", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/v1/notifications/email", bytes.NewBufferString("{"))
		req.Header.Set("Authorization", "Bearer "+token)
		rec, _ := f.do(req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("bad email", func(t *testing.T) {
		rec, _ := f.do(emailRequest(t, token, map[string]interface{}{
			"email": "nope", "subject": "Hi", "template": "welcome",
		}))
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("missing template", func(t *testing.T) {
		rec, _ := f.do(emailRequest(t, token, map[string]interface{}{
			"email": "a@example.com", "subject": "Hi",
		}))
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("bad idempotency key", func(t *testing.T) {
		req := emailRequest(t, token, map[string]interface{}{
			"email": "a@example.com", "subject": "Hi", "template": "welcome",
		})
		req.Header.Set(handler.IdempotencyKeyHeader, "has space")
		rec, _ := f.do(req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	assert.Empty(t, f.publisher.messages)
}

func TestMethodNotAllowed(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/notifications/email", nil)
	req.Header.Set("Authorization", "Bearer "+f.token(t))
	rec, _ := f.do(req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodOptions, "/v1/notifications/email", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "Authorization, Content-Type, Idempotency-Key")
	rec, _ := f.do(req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}

type allowOnce struct{ seen map[string]int }

func (a *allowOnce) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	a.seen[key]++
	return a.seen[key] == 1, 30 * time.Second, nil
}

func (a *allowOnce) Close() error { return nil }

func TestSendEmail_RateLimitedPerUser(t *testing.T) {
	f := newFixture(t)
	limiter := &allowOnce{seen: make(map[string]int)}

	uc := usecase.NewEmailNotificationUseCase(f.publisher, nil)
	h := New(Handlers{
		Auth:         handler.NewAuthHandler(),
		Notification: handler.NewNotificationHandler(uc, nil),
		AuthMW:       middleware.NewAuthMiddleware(f.tokens, nil),
		RateLimitMW:  middleware.NewRateLimitMiddleware(limiter, nil),
	}, CORSConfig{})

	body := map[string]interface{}{"email": "a@example.com", "subject": "Hi", "template": "welcome"}
	token := f.token(t)

	first := httptest.NewRecorder()
	h.ServeHTTP(first, emailRequest(t, token, body))
	second := httptest.NewRecorder()
	h.ServeHTTP(second, emailRequest(t, token, body))

	assert.Equal(t, http.StatusAccepted, first.Code)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, "30", second.Header().Get("Retry-After"))
	assert.Equal(t, 2, limiter.seen["user:42"])
	assert.Len(t, f.publisher.messages, 1)
}
