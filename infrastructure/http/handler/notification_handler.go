package handler

import (
	"encoding/json"
	"net/http"

	"github.com/onboarding/onboarding-service/application/port/inbound"
	"github.com/onboarding/onboarding-service/domain/valueobject"
	"github.com/onboarding/onboarding-service/infrastructure/http/middleware"
	"github.com/onboarding/onboarding-service/infrastructure/http/response"
	"github.com/onboarding/onboarding-service/infrastructure/http/validator"
	"github.com/onboarding/onboarding-service/infrastructure/service/logger"
)

const IdempotencyKeyHeader = "Idempotency-Key"

type NotificationHandler struct {
	useCase inbound.EmailNotificationUseCase
	logger  logger.Logger
}

func NewNotificationHandler(useCase inbound.EmailNotificationUseCase, log logger.Logger) *NotificationHandler {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &NotificationHandler{
		useCase: useCase,
		logger:  log,
	}
}

type SendEmailRequest struct {
	Email    string                 `json:"email"`
	Subject  string                 `json:"subject"`
	Template string                 `json:"template"`
	Data     map[string]interface{} `json:"data"`
}

type DeliveryResponse struct {
	Status         valueobject.DeliveryStatus `json:"status"`
	Topic          string                     `json:"topic,omitempty"`
	Partition      int                        `json:"partition"`
	Offset         int64                      `json:"offset"`
	Attempts       int                        `json:"attempts"`
	IdempotencyKey string                     `json:"idempotency_key"`
	Duplicate      bool                       `json:"duplicate"`
	Reason         string                     `json:"reason,omitempty"`
}

// SendEmail answers 202 once the broker acknowledged the message. A failed
// delivery is reported with the outcome as data.
func (h *NotificationHandler) SendEmail(w http.ResponseWriter, r *http.Request) {
	var req SendEmailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body")
		return
	}

	if !validator.ValidateEmail(req.Email) {
		response.UnprocessableEntity(w, "Invalid email format")
		return
	}
	if !validator.ValidateRequired(req.Subject) {
		response.UnprocessableEntity(w, "Subject is required")
		return
	}
	if !validator.ValidateRequired(req.Template) {
		response.UnprocessableEntity(w, "Template is required")
		return
	}

	idempotencyKey := r.Header.Get(IdempotencyKeyHeader)
	if !validator.ValidateIdempotencyKey(idempotencyKey) {
		response.BadRequest(w, "Invalid Idempotency-Key header")
		return
	}

	fields := map[string]interface{}{"template": req.Template}
	requestedBy := ""
	if claims := middleware.GetUserClaims(r.Context()); claims != nil {
		requestedBy = claims.UserID
		fields["requested_by"] = requestedBy
	}

	outcome, err := h.useCase.SendEmailNotification(r.Context(), inbound.SendEmailRequest{
		Email:          req.Email,
		Subject:        req.Subject,
		Template:       req.Template,
		Data:           req.Data,
		IdempotencyKey: idempotencyKey,
		RequestedBy:    requestedBy,
	})
	if err != nil {
		h.logger.Warn(r.Context(), "Rejected email notification request", mergeFields(fields, "error", err.Error()))
		response.AppError(w, err, nil)
		return
	}

	body := DeliveryResponse{
		Status:         outcome.Status,
		Topic:          outcome.Topic,
		Partition:      outcome.Partition,
		Offset:         outcome.Offset,
		Attempts:       outcome.Attempts,
		IdempotencyKey: outcome.IdempotencyKey,
		Duplicate:      outcome.Duplicate,
		Reason:         outcome.Reason,
	}

	if !outcome.IsDelivered() {
		h.logger.Warn(r.Context(), "Email notification delivery failed", mergeFields(fields, "reason", outcome.Reason))
		response.AppError(w, outcome.Err, body)
		return
	}

	response.Success(w, http.StatusAccepted, "accepted", body)
}

func mergeFields(fields map[string]interface{}, key string, value interface{}) map[string]interface{} {
	merged := make(map[string]interface{}, len(fields)+1)
	for k, v := range fields {
		merged[k] = v
	}
	merged[key] = value
	return merged
}
