// Package coordinator turns a set of independent Writer/Store pairs into
// the "shard 0 is special, everyone else dispatches to it" runtime model.
// Shard 0 owns the one Writer allowed to produce sequenced records; every
// other shard holds only its own Store replica and a ReadSync-capable
// Writer of its own, and routes every mutating call through a channel to
// shard 0 rather than touching its Store directly.
//
// The dispatch channel plus a single goroutine draining it keeps exactly
// one mutation in flight process-wide, which is what makes shard 0's
// offset predictions trustworthy.
package coordinator

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/srctl/srnode/internal/logclient"
	"github.com/srctl/srnode/internal/metrics"
	"github.com/srctl/srnode/internal/replicasync"
	"github.com/srctl/srnode/internal/store"
	"github.com/srctl/srnode/internal/writer"
)

// Config configures a Coordinator.
type Config struct {
	NodeID      string
	Shards      int // <=0 defaults to 1
	RetryBudget int
	Logger      *zap.Logger
	Metrics     *metrics.WriterMetrics
}

// Shard is one worker's replica: its own Store and a Writer bound to that
// Store, used only to run ReadSync against the shared log. Shard 0's
// Writer additionally produces every mutation the Coordinator dispatches.
type Shard struct {
	ID     int
	store  *store.Store
	writer *writer.Writer
}

// Store returns this shard's local Store replica.
func (s *Shard) Store() *store.Store { return s.store }

// ReadSync catches this shard's Store up to the current log tail and
// establishes read-your-writes for whichever shard calls it.
func (s *Shard) ReadSync(ctx context.Context) error { return s.writer.ReadSync(ctx) }

// ObservedTail returns the highest offset this shard has learned about via
// internal/replicasync, without fetching anything.
func (s *Shard) ObservedTail() int64 { return s.writer.ObservedTail() }

// Coordinator owns shard 0's Writer plus every shard's read replica, and
// the replicasync.Hub that keeps non-coordinator shards apprised of the
// latest offset without having them eagerly fetch it.
type Coordinator struct {
	cfg    Config
	shards []*Shard
	hub    *replicasync.Hub
	cmdCh  chan func()
	logger *zap.Logger
}

// New constructs a Coordinator with cfg.Shards independent Store/Writer
// pairs, all driven by the same log client.
func New(log logclient.Client, cfg Config) *Coordinator {
	if cfg.Shards <= 0 {
		cfg.Shards = 1
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Coordinator{
		cfg:    cfg,
		hub:    replicasync.NewHub(),
		cmdCh:  make(chan func(), 32),
		logger: logger,
	}
	for i := 0; i < cfg.Shards; i++ {
		st := store.New()
		w := writer.New(log, st, writer.Config{
			NodeID:      fmt.Sprintf("%s-shard%d", cfg.NodeID, i),
			RetryBudget: cfg.RetryBudget,
			Logger:      logger.Named(fmt.Sprintf("shard%d", i)),
			Metrics:     cfg.Metrics,
		})
		c.shards = append(c.shards, &Shard{ID: i, store: st, writer: w})
	}
	return c
}

// ShardCount returns the number of shards this coordinator runs.
func (c *Coordinator) ShardCount() int { return len(c.shards) }

// Shard returns shard i's read-only handle. Shard 0 is the coordinator
// itself; every other index is a replica.
func (c *Coordinator) Shard(i int) *Shard { return c.shards[i%len(c.shards)] }

// Bootstrap catches every shard's Store up to the log's tail at startup.
// Stores start empty and are populated by replaying the internal topic
// from offset 0.
func (c *Coordinator) Bootstrap(ctx context.Context) error {
	for _, sh := range c.shards {
		if err := sh.ReadSync(ctx); err != nil {
			return fmt.Errorf("coordinator: bootstrap shard %d: %w", sh.ID, err)
		}
	}
	return nil
}

// Run drains shard 0's dispatch queue on the calling goroutine and starts
// one listener goroutine per replica shard to apply replicasync broadcasts.
// It blocks until ctx is done.
func (c *Coordinator) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 1; i < len(c.shards); i++ {
		sub := c.hub.Subscribe(i)
		wg.Add(1)
		go func(sh *Shard, sub <-chan int64) {
			defer wg.Done()
			for {
				select {
				case offset := <-sub:
					sh.writer.AdvanceOffset(offset)
				case <-ctx.Done():
					return
				}
			}
		}(c.shards[i], sub)
	}
	defer func() {
		for i := 1; i < len(c.shards); i++ {
			c.hub.Unsubscribe(i)
		}
		wg.Wait()
	}()

	for {
		select {
		case req := <-c.cmdCh:
			req()
		case <-ctx.Done():
			return
		}
	}
}

// dispatch runs fn against shard 0's Writer on the coordinator's command
// loop and blocks for the result, then broadcasts the (possibly advanced)
// loaded offset to every other shard.
func dispatch[T any](ctx context.Context, c *Coordinator, fn func(*writer.Writer) (T, error)) (T, error) {
	var zero T
	type outcome struct {
		v   T
		err error
	}
	respCh := make(chan outcome, 1)
	req := func() {
		v, err := fn(c.shards[0].writer)
		c.hub.Broadcast(c.shards[0].store.LoadedOffset())
		respCh <- outcome{v, err}
	}

	select {
	case c.cmdCh <- req:
	case <-ctx.Done():
		return zero, ctx.Err()
	}

	select {
	case r := <-respCh:
		return r.v, r.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// WriteSubjectVersion dispatches a schema registration to shard 0.
func (c *Coordinator) WriteSubjectVersion(ctx context.Context, subject, definition, schemaType string) (int64, error) {
	return dispatch(ctx, c, func(w *writer.Writer) (int64, error) {
		return w.WriteSubjectVersion(ctx, subject, definition, schemaType)
	})
}

// WriteConfig dispatches a compatibility-level write to shard 0.
func (c *Coordinator) WriteConfig(ctx context.Context, subject, compat string) (bool, error) {
	return dispatch(ctx, c, func(w *writer.Writer) (bool, error) {
		return w.WriteConfig(ctx, subject, compat)
	})
}

// DeleteSubjectVersion dispatches a single-version soft delete to shard 0.
func (c *Coordinator) DeleteSubjectVersion(ctx context.Context, subject string, version int64) (bool, error) {
	return dispatch(ctx, c, func(w *writer.Writer) (bool, error) {
		return w.DeleteSubjectVersion(ctx, subject, version)
	})
}

// DeleteSubjectImpermanent dispatches a whole-subject soft delete to shard 0.
func (c *Coordinator) DeleteSubjectImpermanent(ctx context.Context, subject string) ([]int64, error) {
	return dispatch(ctx, c, func(w *writer.Writer) ([]int64, error) {
		return w.DeleteSubjectImpermanent(ctx, subject)
	})
}

// DeleteSubjectPermanent dispatches a permanent (tombstoning) delete to
// shard 0.
func (c *Coordinator) DeleteSubjectPermanent(ctx context.Context, subject string, version *int64) ([]int64, error) {
	return dispatch(ctx, c, func(w *writer.Writer) ([]int64, error) {
		return w.DeleteSubjectPermanent(ctx, subject, version)
	})
}
