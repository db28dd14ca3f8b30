// Package replicator streams schema changes from one registry's internal
// topic to another registry's REST API. It decodes each record with the same
// codec the writer node uses, so anything the sequenced writer can produce
// (registrations, config changes, soft deletes, tombstones) replays cleanly
// onto the target.
package replicator

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/srctl/srnode/internal/client"
	"github.com/srctl/srnode/internal/codec"
	"github.com/srctl/srnode/internal/logclient"
	"github.com/srctl/srnode/internal/output"
)

// Config holds replicator configuration.
type Config struct {
	SourceClient       client.RegistryClient
	TargetClient       client.RegistryClient
	Consumer           *logclient.Consumer
	Filter             string // subject glob pattern
	PreserveIDs        bool
	InitialSync        bool
	SourceRegistryName string
	TargetRegistryName string
}

// Stats tracks replication counters. All fields are updated atomically, so
// the status reporter and metrics server can read them while the streaming
// loop runs.
type Stats struct {
	StartTime time.Time

	schemas   atomic.Int64
	configs   atomic.Int64
	deletes   atomic.Int64
	modes     atomic.Int64
	errors    atomic.Int64
	processed atomic.Int64
	filtered  atomic.Int64

	lastOffset    atomic.Int64
	lastEventUnix atomic.Int64
}

// StatsSnapshot is a point-in-time copy of the counters.
type StatsSnapshot struct {
	Uptime            time.Duration
	SchemasReplicated int64
	ConfigsReplicated int64
	DeletesReplicated int64
	ModesReplicated   int64
	Errors            int64
	EventsProcessed   int64
	EventsFiltered    int64
	LastOffset        int64
	LastEventTime     time.Time
}

func (s *Stats) IncrSchemas()   { s.schemas.Add(1) }
func (s *Stats) IncrConfigs()   { s.configs.Add(1) }
func (s *Stats) IncrDeletes()   { s.deletes.Add(1) }
func (s *Stats) IncrModes()     { s.modes.Add(1) }
func (s *Stats) IncrErrors()    { s.errors.Add(1) }
func (s *Stats) IncrProcessed() { s.processed.Add(1) }
func (s *Stats) IncrFiltered()  { s.filtered.Add(1) }

func (s *Stats) SetOffset(offset int64) { s.lastOffset.Store(offset) }

func (s *Stats) SetLastEventTime(t time.Time) { s.lastEventUnix.Store(t.UnixNano()) }

// Snapshot returns a point-in-time copy of the stats.
func (s *Stats) Snapshot() StatsSnapshot {
	snap := StatsSnapshot{
		Uptime:            time.Since(s.StartTime),
		SchemasReplicated: s.schemas.Load(),
		ConfigsReplicated: s.configs.Load(),
		DeletesReplicated: s.deletes.Load(),
		ModesReplicated:   s.modes.Load(),
		Errors:            s.errors.Load(),
		EventsProcessed:   s.processed.Load(),
		EventsFiltered:    s.filtered.Load(),
		LastOffset:        s.lastOffset.Load(),
	}
	if nanos := s.lastEventUnix.Load(); nanos != 0 {
		snap.LastEventTime = time.Unix(0, nanos)
	}
	return snap
}

// Replicator manages continuous schema replication.
type Replicator struct {
	cfg   Config
	stats *Stats
}

// New creates a new Replicator.
func New(cfg Config) *Replicator {
	return &Replicator{
		cfg:   cfg,
		stats: &Stats{StartTime: time.Now()},
	}
}

// GetStats returns the replication stats.
func (r *Replicator) GetStats() *Stats {
	return r.stats
}

// Run starts the replication loop. Blocks until ctx is cancelled.
func (r *Replicator) Run(ctx context.Context) error {
	if r.cfg.InitialSync {
		output.Step("Performing initial sync from %s to %s...", r.cfg.SourceRegistryName, r.cfg.TargetRegistryName)
		if err := r.performInitialSync(ctx); err != nil {
			return fmt.Errorf("initial sync failed: %w", err)
		}
		output.Success("Initial sync complete")
	}

	output.Step("Entering streaming replication mode...")

	pollBackoff := time.Second
	const maxPollBackoff = 30 * time.Second

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		records, err := r.cfg.Consumer.Poll(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			output.Warning("Poll error (retrying in %s): %v", pollBackoff, err)
			r.stats.IncrErrors()
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(pollBackoff):
			}
			// Exponential backoff on consecutive poll errors, capped at 30s
			pollBackoff = pollBackoff * 2
			if pollBackoff > maxPollBackoff {
				pollBackoff = maxPollBackoff
			}
			continue
		}
		pollBackoff = time.Second

		batchOK := true
		for _, record := range records {
			event, err := codec.Decode(record.Key, record.Value)
			if err != nil {
				output.Warning("Parse error at offset %d: %v", record.Offset, err)
				r.stats.IncrErrors()
				continue
			}
			if event == nil {
				continue // NOOP or empty
			}
			event.Offset = record.Offset

			r.stats.IncrProcessed()

			if r.cfg.Filter != "" && event.Subject != "" {
				if !matchGlob(strings.ToLower(event.Subject), strings.ToLower(r.cfg.Filter)) {
					r.stats.IncrFiltered()
					continue
				}
			}

			// Apply with up to maxEventRetries retries. An event that still
			// fails is counted as an error and the loop moves on, leaving the
			// batch's offsets uncommitted.
			if err := r.applyWithRetry(ctx, event, maxEventRetries); err != nil {
				output.Error("Failed to apply %s event for %s at offset %d: %v",
					event.Type, event.Subject, event.Offset, err)
				r.stats.IncrErrors()
				batchOK = false
			}

			r.stats.SetOffset(event.Offset)
			r.stats.SetLastEventTime(time.Now())
		}

		// Only commit offsets if the entire batch succeeded; on failure the
		// offsets stay uncommitted so the events replay on restart.
		if len(records) > 0 && batchOK {
			if err := r.cfg.Consumer.CommitOffsets(ctx); err != nil {
				output.Warning("Failed to commit offsets: %v", err)
			}
		}
	}
}

const (
	// maxEventRetries is the number of retry attempts for transient errors.
	// With exponential backoff capped at 30s (1+2+4+8+16+5*30 seconds), this
	// gives roughly 3 minutes of retries before giving up.
	maxEventRetries = 10
	maxRetryBackoff = 30 * time.Second
)

// applyWithRetry applies an event with exponential backoff retries. Network
// and server errors retry aggressively to ride out transient outages; only
// 400 and 422 responses fail fast (see isNonRetryableError).
func (r *Replicator) applyWithRetry(ctx context.Context, event *codec.Event, maxRetries int) error {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt-1)) * time.Second
			if backoff > maxRetryBackoff {
				backoff = maxRetryBackoff
			}
			output.Warning("Retry %d/%d for %s %s v%d (backoff %s): %v",
				attempt, maxRetries, event.Type, event.Subject, event.Version, backoff, lastErr)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		lastErr = r.applyEvent(ctx, event)
		if lastErr == nil {
			if attempt > 0 {
				output.Success("Recovered after %d retries for %s %s v%d",
					attempt, event.Type, event.Subject, event.Version)
			}
			return nil
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}

		if isNonRetryableError(lastErr) {
			return lastErr
		}
	}
	return lastErr
}

// isNonRetryableError returns true for errors that won't resolve by retrying:
// 422 (incompatible or invalid schema) and 400 (bad request). Everything else
// (network errors, timeouts, 5xx) is assumed transient.
func isNonRetryableError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "status 422") || strings.Contains(msg, "status 400")
}

// applyEvent applies a single decoded event to the target registry.
func (r *Replicator) applyEvent(ctx context.Context, event *codec.Event) error {
	_ = ctx // reserved for future use

	switch event.Type {
	case codec.KeyTypeSchema:
		return r.applySchemaEvent(event)
	case codec.KeyTypeConfig:
		return r.applyConfigEvent(event)
	case codec.KeyTypeMode:
		return r.applyModeEvent(event)
	case codec.KeyTypeDeleteSubject, codec.KeyTypeClearSubject:
		return r.applyDeleteEvent(event)
	}
	return nil
}

func (r *Replicator) applySchemaEvent(event *codec.Event) error {
	if event.Tombstone || event.Deleted {
		if event.Subject == "" {
			return nil
		}
		// Soft-deleted or tombstoned schema: delete on target
		permanent := event.Tombstone
		_, err := r.cfg.TargetClient.DeleteSubject(event.Subject, permanent)
		if err != nil {
			// Subject may not exist on target yet, or target in IMPORT mode
			if strings.Contains(err.Error(), "not found") || strings.Contains(err.Error(), "405") {
				return nil
			}
			return fmt.Errorf("failed to delete %s: %w", event.Subject, err)
		}
		r.stats.IncrDeletes()
		return nil
	}

	refs := make([]client.SchemaReference, len(event.References))
	for i, ref := range event.References {
		refs[i] = client.SchemaReference{
			Name:    ref.Name,
			Subject: ref.Subject,
			Version: int(ref.Version),
		}
	}

	schema := &client.Schema{
		Schema:     event.Definition,
		SchemaType: event.SchemaType,
		References: refs,
	}

	if r.cfg.PreserveIDs {
		schema.ID = int(event.SchemaID)
		// Preserving IDs requires the subject to be in IMPORT mode
		_ = r.cfg.TargetClient.SetSubjectMode(event.Subject, "IMPORT")
	}

	_, err := r.cfg.TargetClient.RegisterSchema(event.Subject, schema)
	if err != nil {
		// Idempotent: "already registered" is not an error
		if isAlreadyExistsError(err) {
			return nil
		}
		return fmt.Errorf("failed to register %s v%d: %w", event.Subject, event.Version, err)
	}

	if r.cfg.PreserveIDs {
		_ = r.cfg.TargetClient.SetSubjectMode(event.Subject, "READWRITE")
	}

	r.stats.IncrSchemas()
	return nil
}

func (r *Replicator) applyConfigEvent(event *codec.Event) error {
	if event.Subject == "" {
		if err := r.cfg.TargetClient.SetConfig(event.Compatibility); err != nil {
			return fmt.Errorf("failed to set global config: %w", err)
		}
	} else {
		if err := r.cfg.TargetClient.SetSubjectConfig(event.Subject, event.Compatibility); err != nil {
			return fmt.Errorf("failed to set config for %s: %w", event.Subject, err)
		}
	}
	r.stats.IncrConfigs()
	return nil
}

func (r *Replicator) applyModeEvent(event *codec.Event) error {
	if event.Subject == "" {
		// Skip global mode changes -- don't override IMPORT mode on target
		return nil
	}
	if err := r.cfg.TargetClient.SetSubjectMode(event.Subject, event.Mode); err != nil {
		// Subject may not exist yet
		if strings.Contains(err.Error(), "not found") {
			return nil
		}
		return fmt.Errorf("failed to set mode for %s: %w", event.Subject, err)
	}
	r.stats.IncrModes()
	return nil
}

func (r *Replicator) applyDeleteEvent(event *codec.Event) error {
	if event.Subject == "" {
		// Skip empty subject deletes (internal SR bookkeeping)
		return nil
	}
	_, err := r.cfg.TargetClient.DeleteSubject(event.Subject, false)
	if err != nil {
		if strings.Contains(err.Error(), "not found") || strings.Contains(err.Error(), "405") {
			return nil
		}
		return fmt.Errorf("failed to delete subject %s: %w", event.Subject, err)
	}
	r.stats.IncrDeletes()
	return nil
}

// performInitialSync does a full clone from source to target.
func (r *Replicator) performInitialSync(ctx context.Context) error {
	source := r.cfg.SourceClient
	target := r.cfg.TargetClient

	subjects, err := source.GetSubjects(false)
	if err != nil {
		return fmt.Errorf("failed to get source subjects: %w", err)
	}

	if r.cfg.Filter != "" {
		subjects = filterSubjects(subjects, r.cfg.Filter)
	}

	output.Info("Initial sync: %d subjects to replicate", len(subjects))

	bar := progressbar.NewOptions(len(subjects),
		progressbar.OptionSetDescription("Syncing"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionClearOnFinish(),
	)

	for _, subj := range subjects {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		bar.Add(1)

		versions, err := source.GetVersions(subj, false)
		if err != nil {
			output.Warning("Skipping %s: %v", subj, err)
			continue
		}

		if r.cfg.PreserveIDs {
			_ = target.SetSubjectMode(subj, "IMPORT")
		}

		for _, v := range versions {
			schema, err := source.GetSchema(subj, strconv.Itoa(v))
			if err != nil {
				output.Warning("Skipping %s v%d: %v", subj, v, err)
				continue
			}

			regSchema := &client.Schema{
				Schema:     schema.Schema,
				SchemaType: schema.SchemaType,
				References: schema.References,
				Metadata:   schema.Metadata,
				RuleSet:    schema.RuleSet,
			}
			if r.cfg.PreserveIDs {
				regSchema.ID = schema.ID
			}

			_, err = target.RegisterSchema(subj, regSchema)
			if err != nil && !isAlreadyExistsError(err) {
				output.Warning("Failed to register %s v%d: %v", subj, v, err)
				r.stats.IncrErrors()
			} else {
				r.stats.IncrSchemas()
			}
		}

		if r.cfg.PreserveIDs {
			_ = target.SetSubjectMode(subj, "READWRITE")
		}
	}

	return nil
}

func isAlreadyExistsError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "already exists") ||
		strings.Contains(msg, "already registered")
}

// filterSubjects filters subjects by a glob pattern.
func filterSubjects(subjects []string, pattern string) []string {
	var filtered []string
	pattern = strings.ToLower(pattern)
	for _, subj := range subjects {
		if matchGlob(strings.ToLower(subj), pattern) {
			filtered = append(filtered, subj)
		}
	}
	return filtered
}

// matchGlob performs simple glob matching supporting the * wildcard.
func matchGlob(s, pattern string) bool {
	if pattern == "*" {
		return true
	}

	parts := strings.Split(pattern, "*")
	if len(parts) == 1 {
		return s == pattern
	}

	if parts[0] != "" && !strings.HasPrefix(s, parts[0]) {
		return false
	}

	if parts[len(parts)-1] != "" && !strings.HasSuffix(s, parts[len(parts)-1]) {
		return false
	}

	idx := len(parts[0])
	for i := 1; i < len(parts)-1; i++ {
		if parts[i] == "" {
			continue
		}
		newIdx := strings.Index(s[idx:], parts[i])
		if newIdx < 0 {
			return false
		}
		idx += newIdx + len(parts[i])
	}

	return true
}
