// Package codec encodes and decodes the typed key/value pairs written to
// and read from the schema registry's internal topic.
//
// The wire format is the same self-describing, JSON-tagged shape the real
// Confluent-compatible _schemas topic uses (a "keytype" discriminator plus a
// plain JSON value), extended with the seq/node fields the sequenced writer
// needs to detect that a record landed at an unexpected offset (see
// schemaKey.Seq).
package codec

import (
	"encoding/json"
	"fmt"
)

// KeyType discriminates the kind of record stored on the internal topic.
type KeyType string

const (
	KeyTypeSchema        KeyType = "SCHEMA"
	KeyTypeConfig        KeyType = "CONFIG"
	KeyTypeDeleteSubject KeyType = "DELETE_SUBJECT"
	KeyTypeNoop          KeyType = "NOOP"

	// KeyTypeMode and KeyTypeClearSubject appear on real-world _schemas
	// topics (subject/global mode changes) but are not part of this core's
	// write surface. They decode to passthrough Events so that a topic
	// produced by a full Confluent-compatible registry can still be read
	// and replicated without the Applier choking on unknown records.
	KeyTypeMode         KeyType = "MODE"
	KeyTypeClearSubject KeyType = "CLEAR_SUBJECT"
)

const keyMagic = 1

// Reference is a schema reference carried on a SCHEMA value, opaque to this
// core beyond round-tripping it.
type Reference struct {
	Name    string `json:"name"`
	Subject string `json:"subject"`
	Version int64  `json:"version"`
}

// schemaKey is the wire shape of a SCHEMA record's key.
type schemaKey struct {
	KeyType KeyType `json:"keytype"`
	Subject string  `json:"subject"`
	Version int64   `json:"version"`
	Magic   int     `json:"magic"`
	Seq     int64   `json:"seq"`
	Node    string  `json:"node"`
}

// schemaValue is the wire shape of a SCHEMA record's value.
type schemaValue struct {
	Subject    string      `json:"subject"`
	Version    int64       `json:"version"`
	ID         int64       `json:"id"`
	SchemaType string      `json:"schemaType,omitempty"`
	Schema     string      `json:"schema"`
	References []Reference `json:"references,omitempty"`
	Deleted    bool        `json:"deleted"`
}

// configKey is the wire shape of a CONFIG record's key. Subject is empty
// for the global config entry.
type configKey struct {
	KeyType KeyType `json:"keytype"`
	Subject string  `json:"subject,omitempty"`
	Magic   int     `json:"magic"`
	Seq     int64   `json:"seq"`
	Node    string  `json:"node"`
}

type configValue struct {
	CompatibilityLevel string `json:"compatibilityLevel"`
}

// deleteSubjectKey is the wire shape of a DELETE_SUBJECT record's key.
type deleteSubjectKey struct {
	KeyType KeyType `json:"keytype"`
	Subject string  `json:"subject"`
	Magic   int     `json:"magic"`
	Seq     int64   `json:"seq"`
	Node    string  `json:"node"`
}

type deleteSubjectValue struct {
	Subject string `json:"subject"`
	Version int64  `json:"version"`
}

// modeKey/modeValue only need to decode far enough to build a passthrough
// Event.
type modeKey struct {
	KeyType KeyType `json:"keytype"`
	Subject string  `json:"subject,omitempty"`
}

type modeValue struct {
	Mode string `json:"mode"`
}

// Event is the unified, decoded form of a record on the internal topic.
// The Applier consumes Events; the sequenced writer constructs the
// key/value pairs that, once encoded, produce Events identical to what a
// replay of the topic would yield.
type Event struct {
	Type    KeyType
	Subject string
	Version int64
	Seq     int64
	Node    string

	// Offset is not part of the wire record; the replicator stamps it in
	// after Decode returns. The Applier takes the offset as a separate
	// argument and leaves this field unset.
	Offset int64

	// Tombstone is true when the record's value is absent (nil/empty).
	Tombstone bool

	// SCHEMA fields.
	SchemaID   int64
	SchemaType string
	Definition string
	References []Reference
	Deleted    bool

	// CONFIG fields.
	Compatibility string

	// DELETE_SUBJECT fields.
	DeleteVersion int64

	// MODE passthrough (decode-only, outside the writer's scope).
	Mode string
}

// Decode parses a raw record's key and value into an Event. It returns
// (nil, nil) for NOOP records, empty keys, and unrecognized key types.
// MODE and CLEAR_SUBJECT records decode to passthrough Events.
func Decode(key, value []byte) (*Event, error) {
	if len(key) == 0 {
		return nil, nil
	}

	var probe struct {
		KeyType KeyType `json:"keytype"`
	}
	if err := json.Unmarshal(key, &probe); err != nil {
		return nil, fmt.Errorf("codec: parse key: %w", err)
	}

	switch probe.KeyType {
	case KeyTypeNoop, "":
		return nil, nil

	case KeyTypeSchema:
		var k schemaKey
		if err := json.Unmarshal(key, &k); err != nil {
			return nil, fmt.Errorf("codec: parse SCHEMA key: %w", err)
		}
		ev := &Event{
			Type:    KeyTypeSchema,
			Subject: k.Subject,
			Version: k.Version,
			Seq:     k.Seq,
			Node:    k.Node,
		}
		if len(value) == 0 {
			ev.Tombstone = true
			return ev, nil
		}
		var v schemaValue
		if err := json.Unmarshal(value, &v); err != nil {
			return nil, fmt.Errorf("codec: parse SCHEMA value: %w", err)
		}
		ev.SchemaID = v.ID
		ev.SchemaType = v.SchemaType
		if ev.SchemaType == "" {
			ev.SchemaType = "AVRO"
		}
		ev.Definition = v.Schema
		ev.References = v.References
		ev.Deleted = v.Deleted
		return ev, nil

	case KeyTypeConfig:
		var k configKey
		if err := json.Unmarshal(key, &k); err != nil {
			return nil, fmt.Errorf("codec: parse CONFIG key: %w", err)
		}
		ev := &Event{
			Type:    KeyTypeConfig,
			Subject: k.Subject,
			Seq:     k.Seq,
			Node:    k.Node,
		}
		if len(value) == 0 {
			ev.Tombstone = true
			return ev, nil
		}
		var v configValue
		if err := json.Unmarshal(value, &v); err != nil {
			return nil, fmt.Errorf("codec: parse CONFIG value: %w", err)
		}
		ev.Compatibility = v.CompatibilityLevel
		return ev, nil

	case KeyTypeDeleteSubject:
		var k deleteSubjectKey
		if err := json.Unmarshal(key, &k); err != nil {
			return nil, fmt.Errorf("codec: parse DELETE_SUBJECT key: %w", err)
		}
		ev := &Event{
			Type:    KeyTypeDeleteSubject,
			Subject: k.Subject,
			Seq:     k.Seq,
			Node:    k.Node,
		}
		if len(value) == 0 {
			ev.Tombstone = true
			return ev, nil
		}
		var v deleteSubjectValue
		if err := json.Unmarshal(value, &v); err != nil {
			return nil, fmt.Errorf("codec: parse DELETE_SUBJECT value: %w", err)
		}
		ev.DeleteVersion = v.Version
		return ev, nil

	case KeyTypeMode, KeyTypeClearSubject:
		var k modeKey
		if err := json.Unmarshal(key, &k); err != nil {
			return nil, fmt.Errorf("codec: parse MODE key: %w", err)
		}
		ev := &Event{Type: probe.KeyType, Subject: k.Subject}
		if len(value) != 0 {
			var v modeValue
			if err := json.Unmarshal(value, &v); err == nil {
				ev.Mode = v.Mode
			}
		} else {
			ev.Tombstone = true
		}
		return ev, nil

	default:
		return nil, nil
	}
}

// EncodeSchemaKey builds the key for a SCHEMA record.
func EncodeSchemaKey(seq int64, node, subject string, version int64) ([]byte, error) {
	return json.Marshal(schemaKey{
		KeyType: KeyTypeSchema,
		Subject: subject,
		Version: version,
		Magic:   keyMagic,
		Seq:     seq,
		Node:    node,
	})
}

// EncodeSchemaValue builds the value for a SCHEMA record.
func EncodeSchemaValue(subject string, version, id int64, schemaType, definition string, refs []Reference, deleted bool) ([]byte, error) {
	return json.Marshal(schemaValue{
		Subject:    subject,
		Version:    version,
		ID:         id,
		SchemaType: schemaType,
		Schema:     definition,
		References: refs,
		Deleted:    deleted,
	})
}

// EncodeConfigKey builds the key for a CONFIG record. An empty subject
// denotes the global config entry.
func EncodeConfigKey(seq int64, node, subject string) ([]byte, error) {
	return json.Marshal(configKey{
		KeyType: KeyTypeConfig,
		Subject: subject,
		Magic:   keyMagic,
		Seq:     seq,
		Node:    node,
	})
}

// EncodeConfigValue builds the value for a CONFIG record.
func EncodeConfigValue(compat string) ([]byte, error) {
	return json.Marshal(configValue{CompatibilityLevel: compat})
}

// EncodeDeleteSubjectKey builds the key for a DELETE_SUBJECT record.
func EncodeDeleteSubjectKey(seq int64, node, subject string) ([]byte, error) {
	return json.Marshal(deleteSubjectKey{
		KeyType: KeyTypeDeleteSubject,
		Subject: subject,
		Magic:   keyMagic,
		Seq:     seq,
		Node:    node,
	})
}

// EncodeDeleteSubjectValue builds the value for a DELETE_SUBJECT record.
func EncodeDeleteSubjectValue(subject string, version int64) ([]byte, error) {
	return json.Marshal(deleteSubjectValue{Subject: subject, Version: version})
}
