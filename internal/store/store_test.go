package store

import (
	"errors"
	"testing"

	"github.com/srctl/srnode/internal/codec"
)

func TestProjectIDsNewSubject(t *testing.T) {
	s := New()
	res := s.ProjectIDs("s1", `{"type":"string"}`, "AVRO")
	if !res.Inserted || res.Version != 1 {
		t.Fatalf("unexpected preview: %+v", res)
	}
}

func TestProjectIDsDedupWithinSubject(t *testing.T) {
	s := New()
	s.RecordMarker(0, "n1", codec.KeyTypeSchema, "s1", 1)
	s.UpsertVersion("s1", 1, 1, "AVRO", "D", false)

	res := s.ProjectIDs("s1", "D", "AVRO")
	if res.Inserted || res.ID != 1 || res.Version != 1 {
		t.Fatalf("expected no-op dedup, got %+v", res)
	}
}

func TestProjectIDsCrossSubjectDedup(t *testing.T) {
	s := New()
	s.UpsertVersion("s1", 1, 7, "AVRO", "D", false)

	res := s.ProjectIDs("s2", "D", "AVRO")
	if !res.Inserted || res.ID != 7 || res.Version != 1 {
		t.Fatalf("expected cross-subject dedup of id, got %+v", res)
	}
}

func TestSoftDeleteThenReregisterReturnsOriginalID(t *testing.T) {
	s := New()
	s.UpsertVersion("s1", 1, 3, "AVRO", "D", false)
	s.UpsertVersion("s1", 1, 3, "AVRO", "D", true) // soft-delete rewrite

	res := s.ProjectIDs("s1", "D", "AVRO")
	if res.Inserted || res.ID != 3 || res.Version != 1 {
		t.Fatalf("expected dedup against soft-deleted version, got %+v", res)
	}
}

func TestGetVersionsContiguousAndFiltered(t *testing.T) {
	s := New()
	s.UpsertVersion("s1", 1, 1, "AVRO", "D1", false)
	s.UpsertVersion("s1", 2, 2, "AVRO", "D2", false)
	s.UpsertVersion("s1", 1, 1, "AVRO", "D1", true) // soft-delete v1

	active, err := s.GetVersions("s1", false)
	if err != nil || len(active) != 1 || active[0] != 2 {
		t.Fatalf("expected [2], got %v, err=%v", active, err)
	}

	all, err := s.GetVersions("s1", true)
	if err != nil || len(all) != 2 || all[0] != 1 || all[1] != 2 {
		t.Fatalf("expected [1 2], got %v, err=%v", all, err)
	}
}

func TestGetVersionsUnknownSubjectNotFound(t *testing.T) {
	s := New()
	if _, err := s.GetVersions("missing", true); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCompatibilityDefaultAndOverride(t *testing.T) {
	s := New()
	if got := s.GetCompatibility(""); got != DefaultCompatibility {
		t.Fatalf("expected default %q, got %q", DefaultCompatibility, got)
	}

	s.SetCompatibility("", "FULL")
	if got := s.GetCompatibility(""); got != "FULL" {
		t.Fatalf("expected FULL, got %q", got)
	}
	if got := s.GetCompatibility("s1"); got != "FULL" {
		t.Fatalf("subject with no override should inherit global, got %q", got)
	}

	s.SetCompatibility("s1", "NONE")
	if got := s.GetCompatibility("s1"); got != "NONE" {
		t.Fatalf("expected override NONE, got %q", got)
	}

	s.ClearCompatibility("s1")
	if got := s.GetCompatibility("s1"); got != "FULL" {
		t.Fatalf("clearing override should revert to global, got %q", got)
	}
}

func TestPermanentDeleteEmptiesSubject(t *testing.T) {
	s := New()
	s.RecordMarker(0, "n1", codec.KeyTypeSchema, "s1", 1)
	s.UpsertVersion("s1", 1, 1, "AVRO", "D1", false)
	s.RecordMarker(1, "n1", codec.KeyTypeConfig, "s1", 0)
	s.SetCompatibility("s1", "FULL")
	s.RecordMarker(2, "n1", codec.KeyTypeDeleteSubject, "s1", 0)
	s.MarkSubjectDeleted("s1")

	markers := s.GetSubjectWrittenAt("s1")
	if len(markers) != 3 {
		t.Fatalf("expected 3 markers, got %d", len(markers))
	}

	s.RemoveVersion("s1", 1)
	s.ClearCompatibility("s1")
	s.ClearSubjectDeleted("s1")

	if _, err := s.GetVersions("s1", true); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected subject to be purged, got err=%v", err)
	}
}

func TestSnapshotEqualAfterIdenticalReplay(t *testing.T) {
	build := func() *Store {
		s := New()
		s.UpsertVersion("s1", 1, 1, "AVRO", "D1", false)
		s.UpsertVersion("s1", 2, 2, "AVRO", "D2", false)
		s.SetCompatibility("", "FULL")
		s.SetLoadedOffset(1)
		return s
	}

	a, b := build(), build()
	if !a.Snapshot().Equal(b.Snapshot()) {
		t.Fatal("expected identical replays to produce equal snapshots")
	}

	b.SetLoadedOffset(2)
	if a.Snapshot().Equal(b.Snapshot()) {
		t.Fatal("expected differing loaded offsets to break equality")
	}
}

func TestLoadedOffsetMonotonic(t *testing.T) {
	s := New()
	s.SetLoadedOffset(5)
	s.SetLoadedOffset(2)
	if s.LoadedOffset() != 5 {
		t.Fatalf("expected loaded offset to stay at 5, got %d", s.LoadedOffset())
	}
}
