package error

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetHTTPStatusCode(t *testing.T) {
	cause := errors.New("dial tcp 127.0.0.1:9093: connection refused")

	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "invalid identity", err: ErrInvalidIdentity("empty id"), want: http.StatusUnauthorized},
		{name: "signing failure", err: ErrTokenSigning(cause), want: http.StatusInternalServerError},
		{name: "invalid email", err: ErrInvalidEmail("nope"), want: http.StatusBadRequest},
		{name: "serialize", err: ErrNotificationSerialize(cause), want: http.StatusBadRequest},
		{name: "key conflict", err: ErrIdempotencyConflict("welcome"), want: http.StatusConflict},
		{name: "in progress", err: ErrDeliveryInProgress("welcome"), want: http.StatusConflict},
		{name: "closed", err: ErrPublisherClosed(), want: http.StatusServiceUnavailable},
		{name: "backpressure", err: ErrNotificationBackpressure(cause), want: http.StatusServiceUnavailable},
		{name: "delivery failed", err: ErrNotificationFailed("timeout", cause), want: http.StatusBadGateway},
		{name: "external service", err: ErrExternalService("kafka", cause), want: http.StatusBadGateway},
		{name: "configuration", err: ErrConfigurationError("Kafka", cause), want: http.StatusInternalServerError},
		{name: "plain error", err: cause, want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GetHTTPStatusCode(tt.err))
		})
	}
}

func TestAppError_WrapsCause(t *testing.T) {
	missing := errors.New("KAFKA_SASL_PASSWORD is required")
	err := ErrConfigurationError("Kafka", missing)

	assert.ErrorIs(t, err, missing)
	assert.True(t, errors.Is(err, NewAppError(ErrCodeConfigurationError, "", "", nil)))
	assert.False(t, errors.Is(err, NewAppError(ErrCodeExternalServiceError, "", "", nil)))
	assert.Equal(t, "SERVER_6003: Configuration error (Config: Kafka)", err.Error())
}
