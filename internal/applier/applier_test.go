package applier

import (
	"testing"

	"github.com/srctl/srnode/internal/codec"
	"github.com/srctl/srnode/internal/store"
)

func TestApplySchemaThenTombstone(t *testing.T) {
	st := store.New()

	key, _ := codec.EncodeSchemaKey(0, "n1", "s1", 1)
	val, _ := codec.EncodeSchemaValue("s1", 1, 1, "AVRO", "D1", nil, false)
	if err := Apply(st, 0, key, val); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	versions, err := st.GetVersions("s1", false)
	if err != nil || len(versions) != 1 || versions[0] != 1 {
		t.Fatalf("expected [1], got %v, err=%v", versions, err)
	}
	if st.LoadedOffset() != 0 {
		t.Fatalf("expected loaded offset 0, got %d", st.LoadedOffset())
	}

	if err := Apply(st, 1, key, nil); err != nil {
		t.Fatalf("Apply tombstone: %v", err)
	}
	if _, err := st.GetVersions("s1", true); err == nil {
		t.Fatal("expected subject to be purged after tombstone")
	}
	if st.LoadedOffset() != 1 {
		t.Fatalf("expected loaded offset 1, got %d", st.LoadedOffset())
	}
}

func TestApplyConfigSetAndClear(t *testing.T) {
	st := store.New()

	key, _ := codec.EncodeConfigKey(0, "n1", "s1")
	val, _ := codec.EncodeConfigValue("FULL")
	if err := Apply(st, 0, key, val); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if got := st.GetCompatibility("s1"); got != "FULL" {
		t.Fatalf("expected FULL, got %q", got)
	}

	if err := Apply(st, 1, key, nil); err != nil {
		t.Fatalf("Apply tombstone: %v", err)
	}
	if got := st.GetCompatibility("s1"); got != store.DefaultCompatibility {
		t.Fatalf("expected reversion to default, got %q", got)
	}
}

func TestApplyDeleteSubjectSetAndClear(t *testing.T) {
	st := store.New()

	key, _ := codec.EncodeDeleteSubjectKey(0, "n1", "s1")
	val, _ := codec.EncodeDeleteSubjectValue("s1", 1)
	if err := Apply(st, 0, key, val); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if !st.IsSubjectDeleted("s1") {
		t.Fatal("expected subject marked deleted")
	}

	if err := Apply(st, 1, key, nil); err != nil {
		t.Fatalf("Apply tombstone: %v", err)
	}
	if st.IsSubjectDeleted("s1") {
		t.Fatal("expected delete marker cleared")
	}
}

func TestApplyNoopAdvancesOffsetOnly(t *testing.T) {
	st := store.New()
	if err := Apply(st, 4, []byte(`{"keytype":"NOOP"}`), nil); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if st.LoadedOffset() != 4 {
		t.Fatalf("expected loaded offset 4, got %d", st.LoadedOffset())
	}
}

// MODE records appear on production internal topics but are outside the
// writer's scope: applying one must advance the offset without recording a
// sequence marker, or a later permanent delete of the subject would try to
// tombstone a record kind it cannot rebuild a key for.
func TestApplyModeAdvancesOffsetWithoutMarker(t *testing.T) {
	st := store.New()
	if err := Apply(st, 2, []byte(`{"keytype":"MODE","subject":"s1"}`), []byte(`{"mode":"IMPORT"}`)); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if st.LoadedOffset() != 2 {
		t.Fatalf("expected loaded offset 2, got %d", st.LoadedOffset())
	}
	if markers := st.GetSubjectWrittenAt("s1"); len(markers) != 0 {
		t.Fatalf("expected no markers for a MODE record, got %v", markers)
	}
}

func TestReplayFromZeroMatchesIncrementalApply(t *testing.T) {
	type record struct {
		key, value []byte
	}
	var records []record
	add := func(k, v []byte) { records = append(records, record{k, v}) }

	k0, _ := codec.EncodeSchemaKey(0, "n1", "s1", 1)
	v0, _ := codec.EncodeSchemaValue("s1", 1, 1, "AVRO", "D1", nil, false)
	add(k0, v0)

	k1, _ := codec.EncodeConfigKey(1, "n1", "s1")
	v1, _ := codec.EncodeConfigValue("FULL")
	add(k1, v1)

	coordinator := store.New()
	for i, r := range records {
		if err := Apply(coordinator, int64(i), r.key, r.value); err != nil {
			t.Fatalf("Apply: %v", err)
		}
	}

	replica := store.New()
	for i, r := range records {
		if err := Apply(replica, int64(i), r.key, r.value); err != nil {
			t.Fatalf("Apply: %v", err)
		}
	}

	if !coordinator.Snapshot().Equal(replica.Snapshot()) {
		t.Fatal("expected replay from 0 to reproduce the coordinator's Store")
	}
}
