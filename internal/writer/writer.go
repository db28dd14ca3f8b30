// Package writer implements the sequenced writer: the coordinator-shard
// component that turns register/config/delete requests into a totally
// ordered sequence of records on the internal topic while keeping a Store
// projection in sync.
//
// The Writer that mutations are sent to represents the coordinator's view:
// it holds the write and wait permits and drives the only Store replica
// that mutations are applied to directly. internal/coordinator is what
// turns this into the "shard 0 is special, others dispatch to it" runtime
// model; replica shards hold a Writer of their own that they use only for
// ReadSync. A Writer on its own has no notion of other shards.
package writer

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/srctl/srnode/internal/applier"
	"github.com/srctl/srnode/internal/codec"
	"github.com/srctl/srnode/internal/logclient"
	"github.com/srctl/srnode/internal/metrics"
	"github.com/srctl/srnode/internal/store"
)

// DefaultRetryBudget is the number of offset-mismatch collisions a
// sequenced write tolerates before failing with ErrExhaustedRetries.
const DefaultRetryBudget = 5

// Config configures a Writer.
type Config struct {
	NodeID      string
	RetryBudget int // <=0 defaults to DefaultRetryBudget
	Logger      *zap.Logger
	Metrics     *metrics.WriterMetrics
}

// Writer is the sequenced writer for one coordinator shard. It is safe for
// concurrent use by multiple callers; the write and wait permits inside it
// serialize the operations that need serializing while letting unrelated
// reads of the underlying Store proceed without taking either permit.
type Writer struct {
	log     logclient.Client
	store   *store.Store
	nodeID  string
	retries int
	logger  *zap.Logger
	metrics *metrics.WriterMetrics

	writeSem chan struct{} // binary permit: one mutation in flight
	waitSem  chan struct{} // binary permit: one catch-up in flight

	observedTail atomic.Int64 // highest offset reported via AdvanceOffset
}

// New builds a Writer over st, driven by log. st is mutated only through
// this Writer (and the Applier it calls internally) from this point on.
func New(log logclient.Client, st *store.Store, cfg Config) *Writer {
	budget := cfg.RetryBudget
	if budget <= 0 {
		budget = DefaultRetryBudget
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{
		log:      log,
		store:    st,
		nodeID:   cfg.NodeID,
		retries:  budget,
		logger:   logger,
		metrics:  cfg.Metrics,
		writeSem: make(chan struct{}, 1),
		waitSem:  make(chan struct{}, 1),
	}
}

// Store returns the Writer's underlying Store, for read-only accessors
// called directly by upper layers. Listings that must observe remote writes
// require a ReadSync first.
func (w *Writer) Store() *store.Store { return w.store }

func acquire(ctx context.Context, sem chan struct{}) error {
	select {
	case sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrAborted, ctx.Err())
	}
}

func release(sem chan struct{}) { <-sem }

// WaitFor catches the Store up to at least offset, fetching and applying
// records in [loaded+1, offset+1) if it isn't there yet. It holds the wait
// permit independently of the write permit so a slow catch-up never starves
// an unrelated mutation.
func (w *Writer) WaitFor(ctx context.Context, offset int64) error {
	if err := acquire(ctx, w.waitSem); err != nil {
		return err
	}
	defer release(w.waitSem)
	return w.waitForLocked(ctx, offset)
}

func (w *Writer) waitForLocked(ctx context.Context, offset int64) error {
	loaded := w.store.LoadedOffset()
	if offset <= loaded {
		return nil
	}

	start := loaded + 1
	err := w.log.FetchRange(ctx, start, offset+1, func(rec logclient.FetchedRecord) error {
		if err := applier.Apply(w.store, rec.Offset, rec.Key, rec.Value); err != nil {
			w.metrics.IncApplyError()
			return err
		}
		w.metrics.SetLoadedOffset(w.store.LoadedOffset())
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %v", ErrAborted, ctx.Err())
		}
		return fmt.Errorf("%w: fetch range [%d,%d): %v", ErrBackend, start, offset+1, err)
	}
	return nil
}

// ReadSync catches the local Store up to the current tail of the internal
// topic, establishing read-your-writes for whichever shard calls it.
// Handlers that enumerate state call this first.
func (w *Writer) ReadSync(ctx context.Context) error {
	end, err := w.log.ListOffsets(ctx)
	if err != nil {
		return translateLogErr(err)
	}
	return w.WaitFor(ctx, end-1)
}

// AdvanceOffset notifies the Writer that a record at offset has been
// observed elsewhere, typically via an internal/replicasync broadcast after
// the coordinator produced something. It never triggers a fetch itself;
// shards catch up lazily, only when a local read calls ReadSync. The value
// only tracks the highest offset known to exist, for status reporting.
func (w *Writer) AdvanceOffset(offset int64) {
	cur := w.observedTail.Load()
	for offset > cur && !w.observedTail.CompareAndSwap(cur, offset) {
		cur = w.observedTail.Load()
	}
}

// ObservedTail returns the highest offset AdvanceOffset has recorded.
func (w *Writer) ObservedTail() int64 { return w.observedTail.Load() }

func translateLogErr(err error) error {
	if errors.Is(err, logclient.ErrUnknownTopicOrPartition) {
		return fmt.Errorf("%w: %w", ErrUnknownTopicOrPartition, err)
	}
	return fmt.Errorf("%w: %w", ErrBackend, err)
}

// sequencedWrite is the optimistic produce-and-check loop: catch up to the
// tail, predict the next offset, run do (which may decide the request is a
// no-op, build+produce a record, and report whether the produced offset
// matched the prediction), and retry on mismatch up to the configured
// budget. A mismatch means another writer's record landed at the predicted
// slot; after the next catch-up that record is visible locally and often
// makes the retried request a no-op.
func sequencedWrite[T any](ctx context.Context, w *Writer, op string, do func(writeAt int64) (T, bool, error)) (T, error) {
	var zero T

	if err := acquire(ctx, w.writeSem); err != nil {
		return zero, err
	}
	defer release(w.writeSem)

	for attempt := 0; attempt <= w.retries; attempt++ {
		end, err := w.log.ListOffsets(ctx)
		if err != nil {
			w.metrics.ObserveMutation(op, "backend_error")
			return zero, translateLogErr(err)
		}
		if err := w.WaitFor(ctx, end-1); err != nil {
			w.metrics.ObserveMutation(op, "backend_error")
			return zero, err
		}

		writeAt := w.store.LoadedOffset() + 1
		result, retry, err := do(writeAt)
		if err != nil {
			w.metrics.ObserveMutation(op, classify(err))
			return zero, err
		}
		if !retry {
			w.metrics.ObserveMutation(op, "ok")
			return result, nil
		}

		w.metrics.IncRetry()
		w.logger.Warn("sequenced write collided, retrying",
			zap.String("op", op), zap.Int64("write_at", writeAt), zap.Int("attempt", attempt))
	}

	w.metrics.ObserveMutation(op, "retry_exhausted")
	return zero, fmt.Errorf("%w: op=%s after %d attempts", ErrExhaustedRetries, op, w.retries+1)
}

func classify(err error) string {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, store.ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrCompatibilityViolation):
		return "compatibility_violation"
	default:
		return "backend_error"
	}
}

// WriteSubjectVersion registers definition/schemaType under subject,
// returning an existing schema ID if the pair is already known. Idempotent.
func (w *Writer) WriteSubjectVersion(ctx context.Context, subject, definition, schemaType string) (int64, error) {
	return sequencedWrite(ctx, w, "register", func(writeAt int64) (int64, bool, error) {
		proj := w.store.ProjectIDs(subject, definition, schemaType)
		if !proj.Inserted {
			return proj.ID, false, nil
		}

		key, err := codec.EncodeSchemaKey(writeAt, w.nodeID, subject, proj.Version)
		if err != nil {
			return 0, false, fmt.Errorf("writer: encode schema key: %w", err)
		}
		val, err := codec.EncodeSchemaValue(subject, proj.Version, proj.ID, schemaType, definition, nil, false)
		if err != nil {
			return 0, false, fmt.Errorf("writer: encode schema value: %w", err)
		}

		base, err := w.log.ProduceRecordBatch(ctx, []logclient.Record{{Key: key, Value: val}})
		if err != nil {
			return 0, false, translateLogErr(err)
		}
		if base != writeAt {
			return 0, true, nil
		}
		if err := applier.Apply(w.store, base, key, val); err != nil {
			return 0, false, fmt.Errorf("writer: apply own write: %w", err)
		}
		w.metrics.SetLoadedOffset(w.store.LoadedOffset())
		return proj.ID, false, nil
	})
}

// WriteConfig sets the compatibility level globally (subject == "") or for
// subject. It returns false without producing a record if the requested
// level is already explicitly set.
func (w *Writer) WriteConfig(ctx context.Context, subject, compat string) (bool, error) {
	return sequencedWrite(ctx, w, "config", func(writeAt int64) (bool, bool, error) {
		current, isSet := w.store.GetRawCompatibility(subject)
		if isSet && current == compat {
			return false, false, nil
		}

		key, err := codec.EncodeConfigKey(writeAt, w.nodeID, subject)
		if err != nil {
			return false, false, fmt.Errorf("writer: encode config key: %w", err)
		}
		val, err := codec.EncodeConfigValue(compat)
		if err != nil {
			return false, false, fmt.Errorf("writer: encode config value: %w", err)
		}

		base, err := w.log.ProduceRecordBatch(ctx, []logclient.Record{{Key: key, Value: val}})
		if err != nil {
			return false, false, translateLogErr(err)
		}
		if base != writeAt {
			return false, true, nil
		}
		if err := applier.Apply(w.store, base, key, val); err != nil {
			return false, false, fmt.Errorf("writer: apply own write: %w", err)
		}
		w.metrics.SetLoadedOffset(w.store.LoadedOffset())
		return true, false, nil
	})
}

// DeleteSubjectVersion soft-deletes a single version: it always rewrites
// the version record with deleted=true, even if it was already deleted,
// since the write is what makes the deletion durable and replay-visible
// rather than a Store-only flag flip.
func (w *Writer) DeleteSubjectVersion(ctx context.Context, subject string, version int64) (bool, error) {
	return sequencedWrite(ctx, w, "delete_version", func(writeAt int64) (bool, bool, error) {
		entry, err := w.store.GetSubjectSchema(subject, version, true)
		if err != nil {
			return false, false, wrapNotFound(err)
		}

		key, err := codec.EncodeSchemaKey(writeAt, w.nodeID, subject, version)
		if err != nil {
			return false, false, fmt.Errorf("writer: encode schema key: %w", err)
		}
		val, err := codec.EncodeSchemaValue(subject, version, entry.ID, entry.SchemaType, entry.Definition, nil, true)
		if err != nil {
			return false, false, fmt.Errorf("writer: encode schema value: %w", err)
		}

		base, err := w.log.ProduceRecordBatch(ctx, []logclient.Record{{Key: key, Value: val}})
		if err != nil {
			return false, false, translateLogErr(err)
		}
		if base != writeAt {
			return false, true, nil
		}
		if err := applier.Apply(w.store, base, key, val); err != nil {
			return false, false, fmt.Errorf("writer: apply own write: %w", err)
		}
		w.metrics.SetLoadedOffset(w.store.LoadedOffset())
		return true, false, nil
	})
}

// DeleteSubjectImpermanent soft-deletes every version of subject, returning
// the affected versions. If the subject is already flagged deleted it is a
// no-op that returns the current version list without writing.
func (w *Writer) DeleteSubjectImpermanent(ctx context.Context, subject string) ([]int64, error) {
	return sequencedWrite(ctx, w, "delete_subject", func(writeAt int64) ([]int64, bool, error) {
		versions, err := w.store.GetVersions(subject, true)
		if err != nil {
			return nil, false, wrapNotFound(err)
		}
		if w.store.IsSubjectDeleted(subject) {
			return versions, false, nil
		}

		var maxVersion int64
		for _, v := range versions {
			if v > maxVersion {
				maxVersion = v
			}
		}

		key, err := codec.EncodeDeleteSubjectKey(writeAt, w.nodeID, subject)
		if err != nil {
			return nil, false, fmt.Errorf("writer: encode delete_subject key: %w", err)
		}
		val, err := codec.EncodeDeleteSubjectValue(subject, maxVersion)
		if err != nil {
			return nil, false, fmt.Errorf("writer: encode delete_subject value: %w", err)
		}

		base, err := w.log.ProduceRecordBatch(ctx, []logclient.Record{{Key: key, Value: val}})
		if err != nil {
			return nil, false, translateLogErr(err)
		}
		if base != writeAt {
			return nil, true, nil
		}
		if err := applier.Apply(w.store, base, key, val); err != nil {
			return nil, false, fmt.Errorf("writer: apply own write: %w", err)
		}
		w.metrics.SetLoadedOffset(w.store.LoadedOffset())
		return versions, false, nil
	})
}

// DeleteSubjectPermanent tombstones the log records produced for the prior
// sequenced operations against subject (or just version, if non-nil). It
// does not use sequencing: it reads the Store's sequence markers, builds
// one tombstone batch, produces it, and replays the tombstones locally
// exactly as the Applier would for any other record. Tombstones are
// order-insensitive and idempotent, so no offset check is needed.
func (w *Writer) DeleteSubjectPermanent(ctx context.Context, subject string, version *int64) ([]int64, error) {
	if err := acquire(ctx, w.writeSem); err != nil {
		return nil, err
	}
	defer release(w.writeSem)

	var markers []store.SequenceMarker
	if version != nil {
		markers = w.store.GetSubjectVersionWrittenAt(subject, *version)
	} else {
		markers = w.store.GetSubjectWrittenAt(subject)
	}
	if len(markers) == 0 {
		return nil, fmt.Errorf("writer: permanent delete %q: %w", subject, ErrNotFound)
	}

	records := make([]logclient.Record, len(markers))
	for i, m := range markers {
		key, err := tombstoneKey(m)
		if err != nil {
			return nil, fmt.Errorf("writer: build tombstone key: %w", err)
		}
		records[i] = logclient.Record{Key: key, Value: nil}
	}

	base, err := w.log.ProduceRecordBatch(ctx, records)
	if err != nil {
		w.metrics.ObserveMutation("delete_permanent", "backend_error")
		return nil, translateLogErr(err)
	}

	versionSet := make(map[int64]struct{})
	for i, m := range markers {
		if err := applier.Apply(w.store, base+int64(i), records[i].Key, nil); err != nil {
			return nil, fmt.Errorf("writer: apply tombstone: %w", err)
		}
		if m.KeyType == codec.KeyTypeSchema {
			versionSet[m.Version] = struct{}{}
		}
	}
	w.metrics.SetLoadedOffset(w.store.LoadedOffset())
	w.metrics.ObserveMutation("delete_permanent", "ok")

	versions := make([]int64, 0, len(versionSet))
	for v := range versionSet {
		versions = append(versions, v)
	}
	slices.Sort(versions)
	return versions, nil
}

func tombstoneKey(m store.SequenceMarker) ([]byte, error) {
	switch m.KeyType {
	case codec.KeyTypeSchema:
		return codec.EncodeSchemaKey(m.Offset, m.Node, m.Subject, m.Version)
	case codec.KeyTypeConfig:
		return codec.EncodeConfigKey(m.Offset, m.Node, m.Subject)
	case codec.KeyTypeDeleteSubject:
		return codec.EncodeDeleteSubjectKey(m.Offset, m.Node, m.Subject)
	default:
		return nil, fmt.Errorf("writer: unsupported marker key type %q", m.KeyType)
	}
}

func wrapNotFound(err error) error {
	return fmt.Errorf("%w: %w", ErrNotFound, err)
}
