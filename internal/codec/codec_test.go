package codec

import "testing"

func TestSchemaRoundTrip(t *testing.T) {
	key, err := EncodeSchemaKey(42, "node-1", "s1", 3)
	if err != nil {
		t.Fatalf("EncodeSchemaKey: %v", err)
	}
	refs := []Reference{{Name: "ref", Subject: "s0", Version: 1}}
	val, err := EncodeSchemaValue("s1", 3, 7, "AVRO", `{"type":"string"}`, refs, false)
	if err != nil {
		t.Fatalf("EncodeSchemaValue: %v", err)
	}

	ev, err := Decode(key, val)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if ev == nil {
		t.Fatal("Decode returned nil event")
	}
	if ev.Type != KeyTypeSchema || ev.Subject != "s1" || ev.Version != 3 || ev.Seq != 42 || ev.Node != "node-1" {
		t.Fatalf("unexpected key fields: %+v", ev)
	}
	if ev.SchemaID != 7 || ev.SchemaType != "AVRO" || ev.Definition != `{"type":"string"}` || ev.Deleted {
		t.Fatalf("unexpected value fields: %+v", ev)
	}
	if len(ev.References) != 1 || ev.References[0] != refs[0] {
		t.Fatalf("references did not round-trip: %+v", ev.References)
	}
	if ev.Tombstone {
		t.Fatal("non-tombstone decoded as tombstone")
	}
}

func TestSchemaTombstone(t *testing.T) {
	key, _ := EncodeSchemaKey(1, "n", "s1", 1)
	ev, err := Decode(key, nil)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !ev.Tombstone {
		t.Fatal("expected tombstone")
	}
	if ev.Subject != "s1" || ev.Version != 1 {
		t.Fatalf("tombstone lost key fields: %+v", ev)
	}
}

func TestConfigRoundTrip(t *testing.T) {
	key, _ := EncodeConfigKey(5, "node-2", "")
	val, _ := EncodeConfigValue("BACKWARD")

	ev, err := Decode(key, val)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if ev.Type != KeyTypeConfig || ev.Subject != "" || ev.Compatibility != "BACKWARD" {
		t.Fatalf("unexpected config event: %+v", ev)
	}

	tomb, err := Decode(key, nil)
	if err != nil {
		t.Fatalf("Decode tombstone: %v", err)
	}
	if !tomb.Tombstone {
		t.Fatal("expected config tombstone")
	}
}

func TestDeleteSubjectRoundTrip(t *testing.T) {
	key, _ := EncodeDeleteSubjectKey(9, "n", "s1")
	val, _ := EncodeDeleteSubjectValue("s1", 4)

	ev, err := Decode(key, val)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if ev.Type != KeyTypeDeleteSubject || ev.Subject != "s1" || ev.DeleteVersion != 4 {
		t.Fatalf("unexpected delete_subject event: %+v", ev)
	}

	tomb, err := Decode(key, nil)
	if err != nil {
		t.Fatalf("Decode tombstone: %v", err)
	}
	if !tomb.Tombstone {
		t.Fatal("expected delete_subject tombstone")
	}
}

func TestDecodeNoopAndEmpty(t *testing.T) {
	ev, err := Decode(nil, nil)
	if err != nil || ev != nil {
		t.Fatalf("empty key should decode to (nil, nil), got (%+v, %v)", ev, err)
	}

	noopKey := []byte(`{"keytype":"NOOP"}`)
	ev, err = Decode(noopKey, []byte(`{}`))
	if err != nil || ev != nil {
		t.Fatalf("NOOP should decode to (nil, nil), got (%+v, %v)", ev, err)
	}
}

func TestDecodeModePassthrough(t *testing.T) {
	key := []byte(`{"keytype":"MODE","subject":"s1"}`)
	val := []byte(`{"mode":"IMPORT"}`)

	ev, err := Decode(key, val)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if ev.Type != KeyTypeMode || ev.Subject != "s1" || ev.Mode != "IMPORT" {
		t.Fatalf("unexpected MODE event: %+v", ev)
	}
}
