// Package store holds the in-memory projection of the internal topic: the
// subjects, schema versions, IDs and compatibility levels derived from it.
// It is read by the sequenced writer to make tentative decisions before a
// record is produced, and mutated only by the applier package, both during
// boot catch-up and after a successful produce.
package store

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/srctl/srnode/internal/codec"
)

// ErrNotFound is returned by lookups against a subject or version the Store
// has no record of.
var ErrNotFound = errors.New("store: not found")

// DefaultCompatibility is the global compatibility level assumed until a
// CONFIG record with no subject is applied.
const DefaultCompatibility = "BACKWARD"

// SequenceMarker locates a record on the internal topic by the coordinates
// needed to reconstruct its key: the offset it landed at, the node that
// wrote it, and the key type. Permanent delete uses these to build
// tombstones for every record a subject ever produced.
type SequenceMarker struct {
	Offset  int64
	Node    string
	KeyType codec.KeyType
	Subject string
	Version int64
}

// ProjectResult is the tentative outcome of registering a schema, computed
// without mutating the Store.
type ProjectResult struct {
	ID       int64
	Version  int64
	Inserted bool
}

// SchemaEntry is a single subject/version's projected state.
type SchemaEntry struct {
	ID         int64
	SchemaType string
	Definition string
	Deleted    bool
}

type versionEntry struct {
	id         int64
	schemaType string
	definition string
	deleted    bool
}

type subjectState struct {
	versions    map[int64]*versionEntry
	maxVersion  int64
	deletedFlag bool
	compat      *string
	markers     []SequenceMarker
}

func (s *subjectState) empty() bool {
	return len(s.versions) == 0 && !s.deletedFlag && s.compat == nil && len(s.markers) == 0
}

// dropMarkers removes every marker matching the predicate. Tombstones erase
// the records they target, so the markers locating those records go with
// them; a subject whose last marker is dropped becomes eligible for cleanup.
func (s *subjectState) dropMarkers(match func(SequenceMarker) bool) {
	kept := s.markers[:0]
	for _, m := range s.markers {
		if !match(m) {
			kept = append(kept, m)
		}
	}
	s.markers = kept
	if len(s.markers) == 0 {
		s.markers = nil
	}
}

type defKey struct {
	definition string
	schemaType string
}

// Store is safe for concurrent use. The sequenced writer and the applier
// are expected to serialize mutations themselves (single coordinator
// permit); RWMutex here guards concurrent reads from other goroutines
// (e.g. the status API) against in-flight mutations.
type Store struct {
	mu sync.RWMutex

	subjects map[string]*subjectState
	defIndex map[defKey]int64
	nextID   int64

	globalCompat string
	loadedOffset int64
}

// New returns an empty Store with loadedOffset = -1 (nothing applied yet).
func New() *Store {
	return &Store{
		subjects:     make(map[string]*subjectState),
		defIndex:     make(map[defKey]int64),
		globalCompat: "",
		loadedOffset: -1,
	}
}

func (s *Store) subject(name string) *subjectState {
	st, ok := s.subjects[name]
	if !ok {
		st = &subjectState{versions: make(map[int64]*versionEntry)}
		s.subjects[name] = st
	}
	return st
}

func (s *Store) cleanup(name string) {
	if st, ok := s.subjects[name]; ok && st.empty() {
		delete(s.subjects, name)
	}
}

// ProjectIDs previews the outcome of registering (subject, definition,
// type) without committing anything. If the subject already carries a
// version with this exact (definition, type), that version is returned
// with Inserted=false, and the writer's register op must treat this as a
// no-op. Otherwise Inserted=true and ID/Version are what the writer should
// encode into the record it produces.
func (s *Store) ProjectIDs(subject, definition, schemaType string) ProjectResult {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if st, ok := s.subjects[subject]; ok {
		for v, entry := range st.versions {
			if entry.definition == definition && entry.schemaType == schemaType {
				return ProjectResult{ID: entry.id, Version: v, Inserted: false}
			}
		}
	}

	id := s.nextID + 1
	if existing, ok := s.defIndex[defKey{definition, schemaType}]; ok {
		id = existing
	}

	var nextVersion int64 = 1
	if st, ok := s.subjects[subject]; ok {
		nextVersion = st.maxVersion + 1
	}

	return ProjectResult{ID: id, Version: nextVersion, Inserted: true}
}

// GetSubjectSchema returns the entry for (subject, version). If
// includeDeleted is false and the version is soft-deleted, it fails
// ErrNotFound, matching a REST 404 on a deleted version requested without
// the deleted=true query flag.
func (s *Store) GetSubjectSchema(subject string, version int64, includeDeleted bool) (SchemaEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.subjects[subject]
	if !ok {
		return SchemaEntry{}, fmt.Errorf("subject %q: %w", subject, ErrNotFound)
	}
	entry, ok := st.versions[version]
	if !ok || (entry.deleted && !includeDeleted) {
		return SchemaEntry{}, fmt.Errorf("subject %q version %d: %w", subject, version, ErrNotFound)
	}
	return SchemaEntry{
		ID:         entry.id,
		SchemaType: entry.schemaType,
		Definition: entry.definition,
		Deleted:    entry.deleted,
	}, nil
}

// GetVersions lists a subject's versions in ascending order. It fails
// ErrNotFound only when the subject has never been seen; an existing
// subject with every version filtered out by includeDeleted=false returns
// an empty, non-error slice.
func (s *Store) GetVersions(subject string, includeDeleted bool) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.subjects[subject]
	if !ok {
		return nil, fmt.Errorf("subject %q: %w", subject, ErrNotFound)
	}

	versions := make([]int64, 0, len(st.versions))
	for v, entry := range st.versions {
		if entry.deleted && !includeDeleted {
			continue
		}
		versions = append(versions, v)
	}
	slices.Sort(versions)
	return versions, nil
}

// IsSubjectDeleted reports the subject-level soft-delete flag set by
// delete_subject_impermanent, independent of any individual version's
// deleted flag.
func (s *Store) IsSubjectDeleted(subject string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.subjects[subject]
	return ok && st.deletedFlag
}

// GetCompatibility returns the per-subject override if one is set,
// otherwise the global level. An empty subject always returns the global
// level.
func (s *Store) GetCompatibility(subject string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.compatibilityLocked(subject)
}

func (s *Store) compatibilityLocked(subject string) string {
	global := s.globalCompat
	if global == "" {
		global = DefaultCompatibility
	}
	if subject == "" {
		return global
	}
	if st, ok := s.subjects[subject]; ok && st.compat != nil {
		return *st.compat
	}
	return global
}

// GetRawCompatibility returns the compatibility level explicitly written
// for subject (or the global entry when subject == ""), and whether
// anything has been written yet. Unlike GetCompatibility, an unset entry
// is reported as such rather than defaulted. The write path needs this
// to decide whether setting a level is a no-op, since the very first
// write must proceed even when the requested level happens to equal
// DefaultCompatibility.
func (s *Store) GetRawCompatibility(subject string) (level string, isSet bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if subject == "" {
		return s.globalCompat, s.globalCompat != ""
	}
	if st, ok := s.subjects[subject]; ok && st.compat != nil {
		return *st.compat, true
	}
	return "", false
}

// GetSubjectWrittenAt returns every sequence marker recorded for any key
// belonging to subject: every schema version write, its config override,
// and its delete_subject record. Permanent delete of a whole subject uses
// this to build its tombstone batch.
func (s *Store) GetSubjectWrittenAt(subject string) []SequenceMarker {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.subjects[subject]
	if !ok {
		return nil
	}
	out := make([]SequenceMarker, len(st.markers))
	copy(out, st.markers)
	return out
}

// GetSubjectVersionWrittenAt returns only the markers for schema_key
// records at a specific version, used when permanent delete targets a
// single version rather than the whole subject.
func (s *Store) GetSubjectVersionWrittenAt(subject string, version int64) []SequenceMarker {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.subjects[subject]
	if !ok {
		return nil
	}
	var out []SequenceMarker
	for _, m := range st.markers {
		if m.KeyType == codec.KeyTypeSchema && m.Version == version {
			out = append(out, m)
		}
	}
	return out
}

// LoadedOffset returns the highest offset applied so far.
func (s *Store) LoadedOffset() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadedOffset
}

// --- mutation surface, called only by the applier ---

// RecordMarker appends a sequence marker for subject. The applier calls it
// only for non-tombstone SCHEMA, CONFIG and DELETE_SUBJECT records, before
// the type-specific mutation runs.
func (s *Store) RecordMarker(offset int64, node string, keyType codec.KeyType, subject string, version int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.subject(subject)
	st.markers = append(st.markers, SequenceMarker{
		Offset:  offset,
		Node:    node,
		KeyType: keyType,
		Subject: subject,
		Version: version,
	})
}

// UpsertVersion applies a non-tombstone schema_value: creates or overwrites
// the version entry and registers the (definition, type) -> id mapping.
func (s *Store) UpsertVersion(subject string, version, id int64, schemaType, definition string, deleted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.subject(subject)
	st.versions[version] = &versionEntry{
		id:         id,
		schemaType: schemaType,
		definition: definition,
		deleted:    deleted,
	}
	if version > st.maxVersion {
		st.maxVersion = version
	}
	if id > s.nextID {
		s.nextID = id
	}
	s.defIndex[defKey{definition, schemaType}] = id
}

// RemoveVersion applies a tombstone for a schema_key: the version is
// permanently erased (not merely flagged deleted) along with its sequence
// markers, and the subject is purged from the Store entirely once it has no
// versions, no subject-level delete flag, and no compatibility override
// left.
func (s *Store) RemoveVersion(subject string, version int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.subjects[subject]
	if !ok {
		return
	}
	delete(st.versions, version)
	st.dropMarkers(func(m SequenceMarker) bool {
		return m.KeyType == codec.KeyTypeSchema && m.Version == version
	})
	s.cleanup(subject)
}

// SetCompatibility applies a non-tombstone config_value. An empty subject
// sets the global level; otherwise it sets the subject's override.
func (s *Store) SetCompatibility(subject, level string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if subject == "" {
		s.globalCompat = level
		return
	}
	st := s.subject(subject)
	st.compat = &level
}

// ClearCompatibility applies a tombstone for a config_key. Clearing the
// global entry resets it to DefaultCompatibility; clearing a per-subject
// entry reverts that subject to the global level.
func (s *Store) ClearCompatibility(subject string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if subject == "" {
		s.globalCompat = ""
		return
	}
	if st, ok := s.subjects[subject]; ok {
		st.compat = nil
		st.dropMarkers(func(m SequenceMarker) bool { return m.KeyType == codec.KeyTypeConfig })
		s.cleanup(subject)
	}
}

// MarkSubjectDeleted applies a non-tombstone delete_subject_value.
func (s *Store) MarkSubjectDeleted(subject string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.subject(subject)
	st.deletedFlag = true
}

// ClearSubjectDeleted applies a tombstone for a delete_subject_key.
func (s *Store) ClearSubjectDeleted(subject string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st, ok := s.subjects[subject]; ok {
		st.deletedFlag = false
		st.dropMarkers(func(m SequenceMarker) bool { return m.KeyType == codec.KeyTypeDeleteSubject })
		s.cleanup(subject)
	}
}

// SetLoadedOffset advances the applied-offset watermark. Callers must only
// ever move it forward; out-of-order calls are ignored rather than treated
// as an error, since catch-up readers and the coordinator's own apply path
// can race harmlessly on the same value.
func (s *Store) SetLoadedOffset(offset int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if offset > s.loadedOffset {
		s.loadedOffset = offset
	}
}

// Snapshot captures comparable state for the replay-equality tests:
// replaying the internal topic from offset 0 on any worker must produce a
// Store equal to the coordinator's at the same offset.
type Snapshot struct {
	Subjects     map[string]SubjectSnapshot
	GlobalCompat string
	LoadedOffset int64
}

// SubjectSnapshot is one subject's comparable state.
type SubjectSnapshot struct {
	Versions  map[int64]SchemaEntry
	Deleted   bool
	Compat    string
	HasCompat bool
}

// Snapshot returns a deep, comparable copy of the Store's state.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Subjects:     make(map[string]SubjectSnapshot, len(s.subjects)),
		GlobalCompat: s.globalCompat,
		LoadedOffset: s.loadedOffset,
	}
	for name, st := range s.subjects {
		sub := SubjectSnapshot{
			Versions: make(map[int64]SchemaEntry, len(st.versions)),
			Deleted:  st.deletedFlag,
		}
		if st.compat != nil {
			sub.Compat = *st.compat
			sub.HasCompat = true
		}
		for v, entry := range st.versions {
			sub.Versions[v] = SchemaEntry{
				ID:         entry.id,
				SchemaType: entry.schemaType,
				Definition: entry.definition,
				Deleted:    entry.deleted,
			}
		}
		snap.Subjects[name] = sub
	}
	return snap
}

// Equal reports whether two snapshots represent the same logical Store
// state. LoadedOffset is compared too, per the invariant that it is
// derived deterministically from the same replayed records.
func (a Snapshot) Equal(b Snapshot) bool {
	if a.GlobalCompat != b.GlobalCompat || a.LoadedOffset != b.LoadedOffset {
		return false
	}
	if len(a.Subjects) != len(b.Subjects) {
		return false
	}
	for name, as := range a.Subjects {
		bs, ok := b.Subjects[name]
		if !ok || as.Deleted != bs.Deleted || as.HasCompat != bs.HasCompat || as.Compat != bs.Compat {
			return false
		}
		if len(as.Versions) != len(bs.Versions) {
			return false
		}
		for v, ae := range as.Versions {
			be, ok := bs.Versions[v]
			if !ok || ae != be {
				return false
			}
		}
	}
	return true
}
