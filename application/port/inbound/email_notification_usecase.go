package inbound

import (
	"context"

	"github.com/onboarding/onboarding-service/domain/valueobject"
)

type SendEmailRequest struct {
	Email          string                 `json:"email"`
	Subject        string                 `json:"subject"`
	Template       string                 `json:"template"`
	Data           map[string]interface{} `json:"data,omitempty"`
	IdempotencyKey string                 `json:"idempotency_key,omitempty"`
	// RequestedBy scopes IdempotencyKey to one sender.
	RequestedBy string `json:"requested_by,omitempty"`
}

type EmailNotificationUseCase interface {
	// SendEmailNotification returns an error only for invalid requests.
	// Delivery problems are reported through the outcome.
	SendEmailNotification(ctx context.Context, req SendEmailRequest) (valueobject.DeliveryOutcome, error)
}
