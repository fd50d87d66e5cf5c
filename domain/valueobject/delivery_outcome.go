package valueobject

import "time"

type DeliveryStatus string

const (
	DeliveryStatusDelivered DeliveryStatus = "delivered"
	DeliveryStatusFailed    DeliveryStatus = "failed"
)

// DeliveryOutcome is the result of a single publish call. A failed outcome
// is a value, not an error: the caller decides whether to retry, alert or
// drop.
type DeliveryOutcome struct {
	Status         DeliveryStatus `json:"status"`
	Topic          string         `json:"topic,omitempty"`
	Partition      int            `json:"partition"`
	Offset         int64          `json:"offset"`
	Attempts       int            `json:"attempts"`
	IdempotencyKey string         `json:"idempotency_key,omitempty"`
	// Duplicate is set when the delivery was already recorded and nothing
	// was sent again.
	Duplicate   bool      `json:"duplicate,omitempty"`
	DeliveredAt time.Time `json:"delivered_at,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	Err         error     `json:"-"`
}

func Delivered(topic string, partition int, offset int64, attempts int, key string) DeliveryOutcome {
	return DeliveryOutcome{
		Status:         DeliveryStatusDelivered,
		Topic:          topic,
		Partition:      partition,
		Offset:         offset,
		Attempts:       attempts,
		IdempotencyKey: key,
		DeliveredAt:    time.Now().UTC(),
	}
}

func Failed(reason string, err error, attempts int, key string) DeliveryOutcome {
	return DeliveryOutcome{
		Status:         DeliveryStatusFailed,
		Attempts:       attempts,
		IdempotencyKey: key,
		Reason:         reason,
		Err:            err,
	}
}

func (o DeliveryOutcome) IsDelivered() bool {
	return o.Status == DeliveryStatusDelivered
}
