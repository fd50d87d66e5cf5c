package notification

import (
	"context"
	"crypto/tls"
	"fmt"
	"hash/crc32"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/sasl/plain"

	"github.com/onboarding/onboarding-service/infrastructure/config"
)

// IdempotencyHeader carries the delivery key of a message so consumers can
// drop duplicates a caller produced by publishing the same key twice.
const IdempotencyHeader = "idempotency-key"

// Brokers keep idempotent sequence numbers in order for at most this many
// produce requests in flight per connection.
const maxIdempotentInflight = 5

// Transport sends a single record and returns it as the broker acknowledged
// it, with Partition and Offset filled in. It is the seam the publisher is
// tested through.
type Transport interface {
	Send(ctx context.Context, record *kgo.Record) (*kgo.Record, error)
	// Flush waits for every buffered record to be acknowledged or failed.
	Flush(ctx context.Context) error
	Close() error
}

type kafkaTransport struct {
	client *kgo.Client
}

type produceResult struct {
	record *kgo.Record
	err    error
}

// NewKafkaTransport builds an idempotent SASL/PLAIN producer that waits for
// all in-sync replicas. Retries happen inside the client with the producer id
// and sequence numbers kept, so the broker drops a batch it already appended.
func NewKafkaTransport(cfg config.KafkaConfig) (Transport, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client, err := kgo.NewClient(producerOptions(cfg)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}
	return &kafkaTransport{client: client}, nil
}

func producerOptions(cfg config.KafkaConfig) []kgo.Opt {
	inflight := cfg.MaxInFlight
	if inflight > maxIdempotentInflight {
		inflight = maxIdempotentInflight
	}

	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.BootstrapServers...),
		kgo.SASL(plain.Auth{
			User: cfg.SASLUsername,
			Pass: cfg.SASLPassword,
		}.AsMechanism()),
		kgo.DefaultProduceTopic(cfg.Topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.MaxProduceRequestsInflightPerBroker(inflight),
		kgo.RecordRetries(cfg.MaxRetries),
		kgo.RetryBackoffFn(fixedBackoff(cfg.RetryBackoff)),
		kgo.ProduceRequestTimeout(cfg.WriteTimeout),
		kgo.RecordDeliveryTimeout(cfg.DeliveryTimeout()),
		kgo.ProducerLinger(cfg.BatchTimeout),
		kgo.RecordPartitioner(kgo.StickyKeyPartitioner(crc32Partition)),
	}
	if cfg.TLSEnabled {
		opts = append(opts, kgo.DialTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12}))
	}
	return opts
}

func fixedBackoff(d time.Duration) func(int) time.Duration {
	return func(int) time.Duration {
		return d
	}
}

// crc32Partition is librdkafka's consistent partitioner, so a recipient
// lands on the same partition whichever producer wrote it.
func crc32Partition(key []byte, partitions int) int {
	return int(crc32.ChecksumIEEE(key) % uint32(partitions))
}

// Send returns when the record is acknowledged, fails for good, or ctx ends.
// In the last case the record may still be delivered later.
func (t *kafkaTransport) Send(ctx context.Context, record *kgo.Record) (*kgo.Record, error) {
	done := make(chan produceResult, 1)
	t.client.Produce(ctx, record, func(r *kgo.Record, err error) {
		done <- produceResult{record: r, err: err}
	})

	select {
	case res := <-done:
		return res.record, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (t *kafkaTransport) Flush(ctx context.Context) error {
	return t.client.Flush(ctx)
}

// Close fails whatever is still buffered; call Flush first.
func (t *kafkaTransport) Close() error {
	t.client.Close()
	return nil
}
