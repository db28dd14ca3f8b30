// Package logclient is the external collaborator the sequenced writer
// depends on: list the internal topic's end offset, produce a record
// batch, and fetch a range of records for catch-up. The topic this core
// talks to is always a single partition, so every method below is scoped
// implicitly to partition 0 of the configured topic.
package logclient

import (
	"context"
	"errors"
)

// ErrUnknownTopicOrPartition is returned when the backend reports the
// configured topic/partition does not exist.
var ErrUnknownTopicOrPartition = errors.New("logclient: unknown topic or partition")

// ErrBackend wraps any other non-success response from the log backend.
var ErrBackend = errors.New("logclient: backend error")

// Record is a single key/value pair to produce. A nil Value is a
// tombstone.
type Record struct {
	Key   []byte
	Value []byte
}

// FetchedRecord is a single record read back from the log, stamped with
// the offset it was found at.
type FetchedRecord struct {
	Offset int64
	Key    []byte
	Value  []byte
}

// Client is the interface the sequenced writer and the coordinator
// runtime depend on. The franz-go-backed implementation lives in
// kafka.go; fake.go provides an in-memory implementation for tests,
// including one that can be instructed to misreport a produce's base
// offset to exercise the retry path.
type Client interface {
	// ListOffsets returns the current end offset (one past the last
	// written record) of the internal topic's single partition.
	ListOffsets(ctx context.Context) (int64, error)

	// ProduceRecordBatch produces records as a single batch and returns
	// the offset the first record landed at; subsequent records in the
	// batch land at consecutive offsets.
	ProduceRecordBatch(ctx context.Context, records []Record) (baseOffset int64, err error)

	// FetchRange reads offsets in [start, end) in order and invokes fn
	// once per record. fn is called synchronously and in offset order;
	// FetchRange returns once end has been reached or ctx is done.
	FetchRange(ctx context.Context, start, end int64, fn func(FetchedRecord) error) error

	// Close releases any underlying connection.
	Close()
}
