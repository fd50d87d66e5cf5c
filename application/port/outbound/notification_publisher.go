package outbound

import (
	"context"
	"time"

	"github.com/onboarding/onboarding-service/domain/valueobject"
)

// NotificationMessage is serialized once and handed to the stream. Messages
// with the same RoutingKey land on the same partition.
type NotificationMessage struct {
	RoutingKey string
	Payload    interface{}
	// IdempotencyKey stays constant across retries. Generated when empty.
	IdempotencyKey string
	// Scope is who the idempotency key belongs to, usually the
	// authenticated user. Keys never collide across scopes or routing keys.
	Scope string
	// Fingerprint identifies the content a caller-supplied key was first
	// used with. When empty the serialized payload is hashed instead.
	Fingerprint string
}

type NotificationPublisher interface {
	Publish(ctx context.Context, msg NotificationMessage) valueobject.DeliveryOutcome
	// Close stops accepting messages and flushes in-flight ones within a
	// bounded wait.
	Close(ctx context.Context) error
}

type DeliveryState string

const (
	DeliveryPending   DeliveryState = "pending"
	DeliveryCompleted DeliveryState = "delivered"
)

// DeliveryRecord is what the ledger remembers about an idempotency key.
type DeliveryRecord struct {
	State       DeliveryState `json:"state"`
	Fingerprint string        `json:"fingerprint"`
	Topic       string        `json:"topic,omitempty"`
	Partition   int           `json:"partition"`
	Offset      int64         `json:"offset"`
	DeliveredAt time.Time     `json:"delivered_at,omitempty"`
}

// DeliveryLedger remembers idempotency keys so a message is sent at most
// once per key.
type DeliveryLedger interface {
	// Reserve atomically claims key with a pending record. When the key is
	// already held it returns the existing record and false.
	Reserve(ctx context.Context, key string, pending DeliveryRecord) (*DeliveryRecord, bool, error)
	// Complete replaces the reservation with the acknowledged delivery.
	Complete(ctx context.Context, key string, record DeliveryRecord) error
	// Release drops a reservation whose send definitely failed.
	Release(ctx context.Context, key string) error
}
