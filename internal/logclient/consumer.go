package logclient

import (
	"context"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"
)

// ConsumerConfig configures a group-based Consumer. Unlike the Client, a
// Consumer tracks its position with a committed group offset, the shape a
// long-running tailer (the replicate command) wants, where the single-
// partition Client's explicit offset ranges would force the caller to
// persist its own position.
type ConsumerConfig struct {
	Config

	GroupID       string
	FromBeginning bool // start from the earliest offset on first run
}

// Consumer tails the internal topic within a consumer group, committing
// offsets only when the caller says the batch was fully handled.
type Consumer struct {
	client *kgo.Client
	topic  string
}

// NewConsumer builds a Consumer for cfg.Topic.
func NewConsumer(cfg ConsumerConfig) (*Consumer, error) {
	opts, err := cfg.connectionOpts()
	if err != nil {
		return nil, err
	}
	opts = append(opts,
		kgo.ConsumeTopics(cfg.Topic),
		kgo.ConsumerGroup(cfg.GroupID),
		kgo.DisableAutoCommit(),
	)

	if cfg.FromBeginning {
		opts = append(opts, kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()))
	} else {
		opts = append(opts, kgo.ConsumeResetOffset(kgo.NewOffset().AtEnd()))
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("logclient: create consumer: %w", err)
	}

	return &Consumer{client: client, topic: cfg.Topic}, nil
}

// Poll blocks for the next batch of records, or until ctx is done.
func (c *Consumer) Poll(ctx context.Context) ([]FetchedRecord, error) {
	fetches := c.client.PollFetches(ctx)
	if errs := fetches.Errors(); len(errs) > 0 {
		for _, e := range errs {
			if e.Err != nil {
				return nil, fmt.Errorf("%w: fetch on %s[%d]: %v", ErrBackend, e.Topic, e.Partition, e.Err)
			}
		}
	}

	var records []FetchedRecord
	fetches.EachRecord(func(rec *kgo.Record) {
		records = append(records, FetchedRecord{
			Offset: rec.Offset,
			Key:    rec.Key,
			Value:  rec.Value,
		})
	})
	return records, nil
}

// CommitOffsets commits the group's position past everything Poll returned.
func (c *Consumer) CommitOffsets(ctx context.Context) error {
	return c.client.CommitUncommittedOffsets(ctx)
}

// Close shuts down the consumer.
func (c *Consumer) Close() {
	c.client.Close()
}
