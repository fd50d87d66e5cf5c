package usecase

import (
	"context"
	"strings"

	"github.com/onboarding/onboarding-service/application/port/inbound"
	"github.com/onboarding/onboarding-service/application/port/outbound"
	"github.com/onboarding/onboarding-service/domain/entity"
	apperr "github.com/onboarding/onboarding-service/domain/error"
	"github.com/onboarding/onboarding-service/domain/valueobject"
	"github.com/onboarding/onboarding-service/infrastructure/service/logger"
)

type EmailNotificationUseCase struct {
	publisher outbound.NotificationPublisher
	logger    logger.Logger
}

func NewEmailNotificationUseCase(publisher outbound.NotificationPublisher, log logger.Logger) *EmailNotificationUseCase {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &EmailNotificationUseCase{
		publisher: publisher,
		logger:    log,
	}
}

func (uc *EmailNotificationUseCase) SendEmailNotification(ctx context.Context, req inbound.SendEmailRequest) (valueobject.DeliveryOutcome, error) {
	email, err := valueobject.NewEmailAddress(req.Email)
	if err != nil {
		return valueobject.DeliveryOutcome{}, apperr.ErrInvalidEmail(req.Email)
	}
	if strings.TrimSpace(req.Subject) == "" {
		return valueobject.DeliveryOutcome{}, apperr.ErrMissingField("subject")
	}
	if strings.TrimSpace(req.Template) == "" {
		return valueobject.DeliveryOutcome{}, apperr.ErrMissingField("template")
	}

	notification := entity.NewEmailNotification(email.String(), req.Subject, req.Template, req.Data)

	outcome := uc.publisher.Publish(ctx, outbound.NotificationMessage{
		RoutingKey:     email.String(),
		Payload:        notification,
		IdempotencyKey: req.IdempotencyKey,
		Scope:          req.RequestedBy,
		Fingerprint:    notification.ContentFingerprint(),
	})

	fields := map[string]interface{}{
		"notification_id": notification.ID,
		"template":        notification.Template,
		"status":          string(outcome.Status),
		"attempts":        outcome.Attempts,
	}
	if outcome.IsDelivered() {
		uc.logger.Info(ctx, "Email notification queued", fields)
	} else {
		fields["reason"] = outcome.Reason
		uc.logger.Warn(ctx, "Email notification not queued", fields)
	}

	return outcome, nil
}
