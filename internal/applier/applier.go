// Package applier turns a single record read off the internal topic into a
// Store mutation. It is the one place that understands how a decoded
// codec.Event maps onto store.Store, and it is exercised identically by
// boot-time catch-up, the coordinator's post-write apply, and a replica's
// lazy read_sync catch-up.
package applier

import (
	"fmt"

	"github.com/srctl/srnode/internal/codec"
	"github.com/srctl/srnode/internal/store"
)

// Apply decodes key/value and folds the resulting event into st at offset.
// A nil event (NOOP, empty key, an unrecognized key type) is a valid no-op:
// the offset watermark still advances, since the record genuinely occupied
// that slot in the log.
func Apply(st *store.Store, offset int64, key, value []byte) error {
	ev, err := codec.Decode(key, value)
	if err != nil {
		return fmt.Errorf("applier: decode offset %d: %w", offset, err)
	}
	if ev != nil {
		applyEvent(st, offset, ev)
	}
	st.SetLoadedOffset(offset)
	return nil
}

func applyEvent(st *store.Store, offset int64, ev *codec.Event) {
	// Only the three record kinds the writer produces get sequence markers,
	// and only for non-tombstones: a tombstone erases prior records rather
	// than persisting new state, so the Store drops the erased records'
	// markers as part of the matching clear instead.
	switch ev.Type {
	case codec.KeyTypeSchema:
		if ev.Tombstone {
			st.RemoveVersion(ev.Subject, ev.Version)
			return
		}
		st.RecordMarker(offset, ev.Node, ev.Type, ev.Subject, ev.Version)
		st.UpsertVersion(ev.Subject, ev.Version, ev.SchemaID, ev.SchemaType, ev.Definition, ev.Deleted)

	case codec.KeyTypeConfig:
		if ev.Tombstone {
			st.ClearCompatibility(ev.Subject)
			return
		}
		st.RecordMarker(offset, ev.Node, ev.Type, ev.Subject, ev.Version)
		st.SetCompatibility(ev.Subject, ev.Compatibility)

	case codec.KeyTypeDeleteSubject:
		if ev.Tombstone {
			st.ClearSubjectDeleted(ev.Subject)
			return
		}
		st.RecordMarker(offset, ev.Node, ev.Type, ev.Subject, ev.Version)
		st.MarkSubjectDeleted(ev.Subject)

	default:
		// MODE/CLEAR_SUBJECT and anything else decode-only: no Store
		// mutation and no marker, only the offset watermark advances.
	}
}
