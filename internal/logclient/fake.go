package logclient

import (
	"context"
	"sync"
)

// FakeClient is an in-memory Client backing the sequenced writer's unit
// tests. It supports scripting a wrong base offset on the Nth produce call
// to exercise the offset-mismatch retry path, simulating another writer
// racing the record into the predicted slot.
type FakeClient struct {
	mu      sync.Mutex
	records []FetchedRecord

	// Intercepts, keyed by the 1-indexed call number of ProduceRecordBatch,
	// let a test force a specific (wrong) base offset to be reported while
	// still appending the record(s) at their true offset.
	intercepts  map[int]int64
	produceCall int

	closed bool
}

// NewFake returns an empty FakeClient.
func NewFake() *FakeClient {
	return &FakeClient{intercepts: make(map[int]int64)}
}

// InterceptBaseOffset arranges for the callNumber'th ProduceRecordBatch
// call (1-indexed) to report wrongOffset as its base offset instead of the
// true one, simulating a race with another writer.
func (f *FakeClient) InterceptBaseOffset(callNumber int, wrongOffset int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.intercepts[callNumber] = wrongOffset
}

// ListOffsets returns one past the last stored record's offset.
func (f *FakeClient) ListOffsets(ctx context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.records)), nil
}

// ProduceRecordBatch appends records at consecutive offsets starting at
// the current end of the log, and reports the base offset a test has
// scripted via InterceptBaseOffset, if any, for this call.
func (f *FakeClient) ProduceRecordBatch(ctx context.Context, records []Record) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	base := int64(len(f.records))
	for i, r := range records {
		f.records = append(f.records, FetchedRecord{
			Offset: base + int64(i),
			Key:    r.Key,
			Value:  r.Value,
		})
	}

	f.produceCall++
	if wrong, ok := f.intercepts[f.produceCall]; ok {
		return wrong, nil
	}
	return base, nil
}

// FetchRange replays stored records in [start, end).
func (f *FakeClient) FetchRange(ctx context.Context, start, end int64, fn func(FetchedRecord) error) error {
	f.mu.Lock()
	snapshot := make([]FetchedRecord, len(f.records))
	copy(snapshot, f.records)
	f.mu.Unlock()

	for _, rec := range snapshot {
		if rec.Offset < start {
			continue
		}
		if rec.Offset >= end {
			break
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return nil
}

// Close marks the fake closed; idempotent.
func (f *FakeClient) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}
