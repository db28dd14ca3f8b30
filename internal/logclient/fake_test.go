package logclient

import (
	"context"
	"testing"
)

func TestFakeProduceAssignsConsecutiveOffsets(t *testing.T) {
	f := NewFake()
	ctx := context.Background()

	base, err := f.ProduceRecordBatch(ctx, []Record{{Key: []byte("a")}, {Key: []byte("b")}})
	if err != nil {
		t.Fatalf("ProduceRecordBatch: %v", err)
	}
	if base != 0 {
		t.Fatalf("expected base offset 0, got %d", base)
	}

	end, err := f.ListOffsets(ctx)
	if err != nil || end != 2 {
		t.Fatalf("expected end offset 2, got %d, err=%v", end, err)
	}
}

func TestFakeInterceptReportsWrongOffsetOnce(t *testing.T) {
	f := NewFake()
	ctx := context.Background()
	f.InterceptBaseOffset(1, 99)

	base, err := f.ProduceRecordBatch(ctx, []Record{{Key: []byte("a")}})
	if err != nil {
		t.Fatalf("ProduceRecordBatch: %v", err)
	}
	if base != 99 {
		t.Fatalf("expected intercepted offset 99, got %d", base)
	}

	base2, err := f.ProduceRecordBatch(ctx, []Record{{Key: []byte("b")}})
	if err != nil {
		t.Fatalf("ProduceRecordBatch: %v", err)
	}
	if base2 != 1 {
		t.Fatalf("expected real offset 1 on second call, got %d", base2)
	}
}

func TestFakeFetchRangeReplaysInOrder(t *testing.T) {
	f := NewFake()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if _, err := f.ProduceRecordBatch(ctx, []Record{{Key: []byte{byte(i)}}}); err != nil {
			t.Fatalf("ProduceRecordBatch: %v", err)
		}
	}

	var seen []int64
	err := f.FetchRange(ctx, 1, 4, func(rec FetchedRecord) error {
		seen = append(seen, rec.Offset)
		return nil
	})
	if err != nil {
		t.Fatalf("FetchRange: %v", err)
	}
	if len(seen) != 3 || seen[0] != 1 || seen[2] != 3 {
		t.Fatalf("unexpected offsets: %v", seen)
	}
}
