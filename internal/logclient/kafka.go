package logclient

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/sasl/plain"
	"github.com/twmb/franz-go/pkg/sasl/scram"
)

// partition is fixed: the internal topic this core writes is always
// single-partition.
const partition = int32(0)

// Config configures the franz-go-backed Client.
type Config struct {
	Brokers       []string
	Topic         string
	SASLMechanism string // "PLAIN", "SCRAM-SHA-256", "SCRAM-SHA-512", or ""
	SASLUser      string
	SASLPassword  string
	TLSEnabled    bool
	TLSSkipVerify bool
}

// KafkaClient is the franz-go implementation of Client, used directly
// against partition 0 of the internal topic without a consumer group;
// the sequenced writer manages its own offsets via the Store's
// loaded_offset, not a committed group position.
type KafkaClient struct {
	client *kgo.Client
	adm    *kadm.Client
	topic  string
}

// connectionOpts translates cfg's broker, SASL and TLS settings into
// franz-go options, shared by the single-partition Client and the
// group-based Consumer.
func (cfg Config) connectionOpts() ([]kgo.Opt, error) {
	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
	}

	switch cfg.SASLMechanism {
	case "PLAIN":
		mechanism := plain.Auth{User: cfg.SASLUser, Pass: cfg.SASLPassword}
		opts = append(opts, kgo.SASL(mechanism.AsMechanism()))
	case "SCRAM-SHA-256":
		mechanism := scram.Auth{User: cfg.SASLUser, Pass: cfg.SASLPassword}
		opts = append(opts, kgo.SASL(mechanism.AsSha256Mechanism()))
	case "SCRAM-SHA-512":
		mechanism := scram.Auth{User: cfg.SASLUser, Pass: cfg.SASLPassword}
		opts = append(opts, kgo.SASL(mechanism.AsSha512Mechanism()))
	case "":
		// No SASL
	default:
		return nil, fmt.Errorf("logclient: unsupported SASL mechanism %q", cfg.SASLMechanism)
	}

	if cfg.TLSEnabled {
		opts = append(opts, kgo.DialTLSConfig(&tls.Config{
			InsecureSkipVerify: cfg.TLSSkipVerify, // #nosec G402 -- operator-controlled flag
		}))
	}

	return opts, nil
}

// New builds a Client against cfg.Topic's single partition.
func New(cfg Config) (*KafkaClient, error) {
	opts, err := cfg.connectionOpts()
	if err != nil {
		return nil, err
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("logclient: create client: %w", err)
	}

	return &KafkaClient{
		client: client,
		adm:    kadm.NewClient(client),
		topic:  cfg.Topic,
	}, nil
}

// ListOffsets lists the topic's end offset via the admin client.
func (k *KafkaClient) ListOffsets(ctx context.Context) (int64, error) {
	ends, err := k.adm.ListEndOffsets(ctx, k.topic)
	if err != nil {
		if isUnknownTopic(err) {
			return 0, ErrUnknownTopicOrPartition
		}
		return 0, fmt.Errorf("%w: list end offsets: %v", ErrBackend, err)
	}

	offset, ok := ends.Lookup(k.topic, partition)
	if !ok {
		return 0, ErrUnknownTopicOrPartition
	}
	if offset.Err != nil {
		if isUnknownTopic(offset.Err) {
			return 0, ErrUnknownTopicOrPartition
		}
		return 0, fmt.Errorf("%w: %v", ErrBackend, offset.Err)
	}
	return offset.Offset, nil
}

// ProduceRecordBatch produces records as one batch via ProduceSync and
// returns the first record's assigned offset.
func (k *KafkaClient) ProduceRecordBatch(ctx context.Context, records []Record) (int64, error) {
	if len(records) == 0 {
		return 0, fmt.Errorf("logclient: empty record batch")
	}

	krecords := make([]*kgo.Record, len(records))
	for i, r := range records {
		krecords[i] = &kgo.Record{
			Topic:     k.topic,
			Partition: partition,
			Key:       r.Key,
			Value:     r.Value,
		}
	}

	results := k.client.ProduceSync(ctx, krecords...)
	if err := results.FirstErr(); err != nil {
		return 0, fmt.Errorf("%w: produce: %v", ErrBackend, err)
	}

	return results[0].Record.Offset, nil
}

// FetchRange consumes [start, end) directly on partition 0, outside of any
// consumer group. Catch-up reads are driven entirely by the Store's
// loaded_offset, never a committed group position.
func (k *KafkaClient) FetchRange(ctx context.Context, start, end int64, fn func(FetchedRecord) error) error {
	if start >= end {
		return nil
	}

	k.client.AddConsumePartitions(map[string]map[int32]kgo.Offset{
		k.topic: {partition: kgo.NewOffset().At(start)},
	})
	defer k.client.RemoveConsumePartitions(map[string][]int32{k.topic: {partition}})

	next := start
	for next < end {
		fetches := k.client.PollFetches(ctx)
		if err := fetches.Err(); err != nil {
			if isUnknownTopic(err) {
				return ErrUnknownTopicOrPartition
			}
			return fmt.Errorf("%w: fetch: %v", ErrBackend, err)
		}

		var rangeErr error
		fetches.EachRecord(func(rec *kgo.Record) {
			if rangeErr != nil || rec.Offset < start || rec.Offset >= end {
				return
			}
			if err := fn(FetchedRecord{Offset: rec.Offset, Key: rec.Key, Value: rec.Value}); err != nil {
				rangeErr = err
				return
			}
			next = rec.Offset + 1
		})
		if rangeErr != nil {
			return rangeErr
		}
	}
	return nil
}

// Close shuts down the underlying franz-go client.
func (k *KafkaClient) Close() {
	k.client.Close()
}

func isUnknownTopic(err error) bool {
	return errors.Is(err, kerr.UnknownTopicOrPartition)
}
