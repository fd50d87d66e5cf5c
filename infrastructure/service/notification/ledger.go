package notification

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/onboarding/onboarding-service/application/port/outbound"
)

const ledgerKeyPrefix = "notify:delivery:"

// deliveryKey scopes a caller-supplied idempotency key to its sender and
// recipient. The result is used both as the ledger key and as the header
// consumers deduplicate on.
func deliveryKey(scope, routingKey, idempotencyKey string) string {
	sum := sha256.Sum256([]byte(scope + "\x00" + routingKey + "\x00" + idempotencyKey))
	return hex.EncodeToString(sum[:])
}

func fingerprint(value []byte) string {
	sum := sha256.Sum256(value)
	return hex.EncodeToString(sum[:])
}

// noopLedger never remembers anything. Used when no Redis is configured.
type noopLedger struct{}

func NewNoopDeliveryLedger() outbound.DeliveryLedger {
	return noopLedger{}
}

func (noopLedger) Reserve(ctx context.Context, key string, pending outbound.DeliveryRecord) (*outbound.DeliveryRecord, bool, error) {
	return nil, true, nil
}

func (noopLedger) Complete(ctx context.Context, key string, record outbound.DeliveryRecord) error {
	return nil
}

func (noopLedger) Release(ctx context.Context, key string) error {
	return nil
}

// RedisDeliveryLedger keeps delivery keys in Redis. A pending reservation
// lives for pendingTTL so a crashed sender cannot hold a key forever; an
// acknowledged delivery is kept for ttl.
type RedisDeliveryLedger struct {
	client     *redis.Client
	ttl        time.Duration
	pendingTTL time.Duration
}

// NewRedisDeliveryLedger connects to redisURL and fails if Redis does not
// answer a ping within five seconds.
func NewRedisDeliveryLedger(redisURL string, ttl, pendingTTL time.Duration) (*RedisDeliveryLedger, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisDeliveryLedgerWithClient(client, ttl, pendingTTL), nil
}

func NewRedisDeliveryLedgerWithClient(client *redis.Client, ttl, pendingTTL time.Duration) *RedisDeliveryLedger {
	return &RedisDeliveryLedger{client: client, ttl: ttl, pendingTTL: pendingTTL}
}

func (l *RedisDeliveryLedger) Reserve(ctx context.Context, key string, pending outbound.DeliveryRecord) (*outbound.DeliveryRecord, bool, error) {
	raw, err := json.Marshal(pending)
	if err != nil {
		return nil, false, fmt.Errorf("failed to encode delivery ledger entry: %w", err)
	}

	// The holder can expire between SETNX and GET; one more round settles it.
	for i := 0; i < 2; i++ {
		reserved, err := l.client.SetNX(ctx, ledgerKeyPrefix+key, raw, l.pendingTTL).Result()
		if err != nil {
			return nil, false, fmt.Errorf("failed to reserve delivery ledger entry: %w", err)
		}
		if reserved {
			return nil, true, nil
		}

		existing, err := l.get(ctx, key)
		if err != nil {
			return nil, false, err
		}
		if existing != nil {
			return existing, false, nil
		}
	}
	return nil, false, fmt.Errorf("delivery ledger entry %q changed while reserving", key)
}

func (l *RedisDeliveryLedger) Complete(ctx context.Context, key string, record outbound.DeliveryRecord) error {
	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode delivery ledger entry: %w", err)
	}
	if err := l.client.Set(ctx, ledgerKeyPrefix+key, raw, l.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write delivery ledger: %w", err)
	}
	return nil
}

func (l *RedisDeliveryLedger) Release(ctx context.Context, key string) error {
	if err := l.client.Del(ctx, ledgerKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("failed to release delivery ledger entry: %w", err)
	}
	return nil
}

func (l *RedisDeliveryLedger) Close() error {
	return l.client.Close()
}

func (l *RedisDeliveryLedger) get(ctx context.Context, key string) (*outbound.DeliveryRecord, error) {
	raw, err := l.client.Get(ctx, ledgerKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read delivery ledger: %w", err)
	}

	var record outbound.DeliveryRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, fmt.Errorf("corrupt delivery ledger entry %q: %w", key, err)
	}
	return &record, nil
}
