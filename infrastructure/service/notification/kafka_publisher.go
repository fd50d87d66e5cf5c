package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/twmb/franz-go/pkg/kgo"
	"golang.org/x/sync/semaphore"

	"github.com/onboarding/onboarding-service/application/port/outbound"
	apperr "github.com/onboarding/onboarding-service/domain/error"
	"github.com/onboarding/onboarding-service/domain/valueobject"
	"github.com/onboarding/onboarding-service/infrastructure/config"
	"github.com/onboarding/onboarding-service/infrastructure/service/logger"
)

const ledgerWriteTimeout = 2 * time.Second

// KafkaPublisher delivers notification messages to one topic through an
// idempotent producer, with a cap on concurrent sends. It owns its
// transport; nothing else may write through it.
type KafkaPublisher struct {
	transport Transport
	ledger    outbound.DeliveryLedger
	logger    logger.Logger

	topic          string
	flushTimeout   time.Duration
	publishTimeout time.Duration
	inFlight       *semaphore.Weighted

	mu      sync.RWMutex
	closed  bool
	pending sync.WaitGroup
}

type PublisherOption func(*KafkaPublisher)

// WithTransport replaces the Kafka producer.
func WithTransport(t Transport) PublisherOption {
	return func(p *KafkaPublisher) {
		p.transport = t
	}
}

// WithDeliveryLedger replaces the ledger chosen from configuration.
func WithDeliveryLedger(l outbound.DeliveryLedger) PublisherOption {
	return func(p *KafkaPublisher) {
		p.ledger = l
	}
}

// NewKafkaPublisher validates cfg and builds a ready publisher, or returns
// an error and nothing.
func NewKafkaPublisher(cfg config.KafkaConfig, log logger.Logger, opts ...PublisherOption) (*KafkaPublisher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.NewNopLogger()
	}

	p := &KafkaPublisher{
		logger:         log.WithFields(map[string]interface{}{"component": "notification_publisher"}),
		topic:          cfg.Topic,
		flushTimeout:   cfg.FlushTimeout,
		publishTimeout: cfg.PublishTimeout(),
		inFlight:       semaphore.NewWeighted(int64(cfg.MaxInFlight)),
	}
	for _, opt := range opts {
		opt(p)
	}

	if p.ledger == nil {
		if cfg.LedgerRedisURL == "" {
			p.ledger = NewNoopDeliveryLedger()
		} else {
			// A reservation outlives any publish that could still deliver it.
			ledger, err := NewRedisDeliveryLedger(cfg.LedgerRedisURL, cfg.LedgerTTL, cfg.PublishTimeout()+cfg.FlushTimeout)
			if err != nil {
				return nil, apperr.ErrExternalService("redis delivery ledger", err)
			}
			p.ledger = ledger
		}
	}

	if p.transport == nil {
		transport, err := NewKafkaTransport(cfg)
		if err != nil {
			closeQuietly(p.ledger)
			return nil, apperr.ErrExternalService("kafka", err)
		}
		p.transport = transport
	}

	return p, nil
}

// Publish serializes msg.Payload to JSON and sends it keyed by
// msg.RoutingKey. It blocks while MaxInFlight sends are already running and
// returns once the broker acknowledged, the producer gave up, or the
// publish timeout passed.
func (p *KafkaPublisher) Publish(ctx context.Context, msg outbound.NotificationMessage) valueobject.DeliveryOutcome {
	key := msg.IdempotencyKey
	if key == "" {
		key = uuid.NewString()
	}
	fields := map[string]interface{}{
		"topic":           p.topic,
		"idempotency_key": key,
	}

	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		err := apperr.ErrPublisherClosed()
		p.logger.Warn(ctx, "Notification rejected, publisher is closed", fields)
		return valueobject.Failed("publisher is closed", err, 0, key)
	}
	p.pending.Add(1)
	p.mu.RUnlock()
	defer p.pending.Done()

	ctx, cancel := context.WithTimeout(ctx, p.publishTimeout)
	defer cancel()

	value, err := json.Marshal(msg.Payload)
	if err != nil {
		p.logger.Error(ctx, "Notification payload could not be serialized", err, fields)
		return valueobject.Failed("payload serialization failed: "+err.Error(), apperr.ErrNotificationSerialize(err), 0, key)
	}

	headerKey := key
	var reservation *outbound.DeliveryRecord
	ledgerKey := ""
	if msg.IdempotencyKey != "" {
		ledgerKey = deliveryKey(msg.Scope, msg.RoutingKey, msg.IdempotencyKey)
		headerKey = ledgerKey
		content := msg.Fingerprint
		if content == "" {
			content = fingerprint(value)
		}
		reservation = &outbound.DeliveryRecord{State: outbound.DeliveryPending, Fingerprint: content}
		if outcome, proceed := p.reserve(ctx, ledgerKey, key, *reservation, fields); !proceed {
			return outcome
		}
	}

	if err := p.inFlight.Acquire(ctx, 1); err != nil {
		p.logger.Warn(ctx, "Gave up waiting for in-flight capacity", fields)
		if ledgerKey != "" {
			p.release(ctx, ledgerKey, fields)
		}
		return valueobject.Failed("no in-flight capacity: "+err.Error(), apperr.ErrNotificationBackpressure(err), 0, key)
	}
	defer p.inFlight.Release(1)

	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(msg.RoutingKey),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: IdempotencyHeader, Value: []byte(headerKey)},
		},
	}

	start := time.Now()
	acked, err := p.transport.Send(ctx, record)
	if err != nil {
		reason := err.Error()
		switch {
		case ledgerKey == "":
		case ctx.Err() != nil:
			// The producer may still deliver it; the reservation expires on its own.
		default:
			p.release(ctx, ledgerKey, fields)
		}
		p.logger.Error(ctx, "Notification delivery failed", err, mergeFields(fields, map[string]interface{}{
			"elapsed_ms": time.Since(start).Milliseconds(),
		}))
		return valueobject.Failed(reason, apperr.ErrNotificationFailed(reason, err), 1, key)
	}

	return p.delivered(ctx, ledgerKey, reservation, key, acked, start, fields)
}

// Close stops accepting messages, waits up to FlushTimeout for in-flight
// publishes and buffered records, then releases the transport.
func (p *KafkaPublisher) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, p.flushTimeout)
	defer cancel()

	drained := make(chan struct{})
	go func() {
		p.pending.Wait()
		close(drained)
	}()

	var err error
	select {
	case <-drained:
	case <-ctx.Done():
		err = fmt.Errorf("flush did not finish with messages in flight: %w", ctx.Err())
		p.logger.Error(ctx, "Publisher flush timed out", err, nil)
	}

	if ferr := p.transport.Flush(ctx); ferr != nil && err == nil {
		err = fmt.Errorf("failed to flush transport: %w", ferr)
	}
	if cerr := p.transport.Close(); cerr != nil && err == nil {
		err = fmt.Errorf("failed to close transport: %w", cerr)
	}
	closeQuietly(p.ledger)

	p.logger.Info(context.Background(), "Notification publisher closed", nil)
	return err
}

func (p *KafkaPublisher) delivered(ctx context.Context, ledgerKey string, reservation *outbound.DeliveryRecord, key string, acked *kgo.Record, start time.Time, fields map[string]interface{}) valueobject.DeliveryOutcome {
	topic := acked.Topic
	if topic == "" {
		topic = p.topic
	}
	outcome := valueobject.Delivered(topic, int(acked.Partition), acked.Offset, 1, key)

	if ledgerKey != "" {
		record := *reservation
		record.State = outbound.DeliveryCompleted
		record.Topic = outcome.Topic
		record.Partition = outcome.Partition
		record.Offset = outcome.Offset
		record.DeliveredAt = outcome.DeliveredAt

		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ledgerWriteTimeout)
		defer cancel()
		if err := p.ledger.Complete(lctx, ledgerKey, record); err != nil {
			p.logger.Warn(ctx, "Failed to record delivery", mergeFields(fields, map[string]interface{}{"error": err.Error()}))
		}
	}

	p.logger.Info(ctx, "Notification delivered", mergeFields(fields, map[string]interface{}{
		"partition": outcome.Partition,
		"offset":    outcome.Offset,
	}))
	logger.LogPerformance(ctx, p.logger, "notification_publish", time.Since(start), nil)
	return outcome
}

// reserve claims ledgerKey before sending. It reports false with the outcome
// to return when the key was already used. A ledger failure is logged and
// the send goes ahead.
func (p *KafkaPublisher) reserve(ctx context.Context, ledgerKey, key string, pending outbound.DeliveryRecord, fields map[string]interface{}) (valueobject.DeliveryOutcome, bool) {
	existing, reserved, err := p.ledger.Reserve(ctx, ledgerKey, pending)
	if err != nil {
		p.logger.Warn(ctx, "Delivery ledger unavailable, sending without reservation", mergeFields(fields, map[string]interface{}{"error": err.Error()}))
		return valueobject.DeliveryOutcome{}, true
	}
	if reserved || existing == nil {
		return valueobject.DeliveryOutcome{}, true
	}

	switch {
	case existing.Fingerprint != pending.Fingerprint:
		p.logger.Warn(ctx, "Idempotency key reused with different content", fields)
		return valueobject.Failed("idempotency key was already used for a different notification", apperr.ErrIdempotencyConflict(key), 0, key), false
	case existing.State == outbound.DeliveryCompleted:
		outcome := valueobject.Delivered(existing.Topic, existing.Partition, existing.Offset, 0, key)
		outcome.Duplicate = true
		outcome.DeliveredAt = existing.DeliveredAt
		p.logger.Info(ctx, "Notification already delivered, skipping send", fields)
		return outcome, false
	default:
		p.logger.Warn(ctx, "Notification with this idempotency key is still in flight", fields)
		return valueobject.Failed("a delivery with this idempotency key is in progress", apperr.ErrDeliveryInProgress(key), 0, key), false
	}
}

func (p *KafkaPublisher) release(ctx context.Context, ledgerKey string, fields map[string]interface{}) {
	lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ledgerWriteTimeout)
	defer cancel()
	if err := p.ledger.Release(lctx, ledgerKey); err != nil {
		p.logger.Warn(ctx, "Failed to release delivery reservation", mergeFields(fields, map[string]interface{}{"error": err.Error()}))
	}
}

func mergeFields(base, extra map[string]interface{}) map[string]interface{} {
	merged := make(map[string]interface{}, len(base)+len(extra))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range extra {
		merged[k] = v
	}
	return merged
}

func closeQuietly(v interface{}) {
	if c, ok := v.(io.Closer); ok {
		_ = c.Close()
	}
}
