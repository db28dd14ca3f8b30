package writer

import "errors"

// Error kinds the writer surfaces. Each is a sentinel so callers can test
// with errors.Is; the writer always wraps the underlying cause with %w so
// the original error (a logclient or store error) remains inspectable too.
var (
	// ErrBackend wraps any log-client call that returned a non-success
	// response. The core never retries this kind itself.
	ErrBackend = errors.New("writer: backend error")

	// ErrNotFound surfaces a Store lookup against a subject or version it
	// has no record of. REST layers map this to 404.
	ErrNotFound = errors.New("writer: not found")

	// ErrCompatibilityViolation is reserved for a compatibility checker
	// placed in front of schema projection; nothing in this package raises
	// it yet, but callers can already branch on the kind.
	ErrCompatibilityViolation = errors.New("writer: compatibility violation")

	// ErrExhaustedRetries is raised when a sequenced write collides with
	// another writer's record more times than the configured retry budget.
	ErrExhaustedRetries = errors.New("writer: exhausted retry budget")

	// ErrAborted is raised when the caller's context is cancelled while the
	// writer is waiting on a permit or a catch-up fetch. A cancellation that
	// interrupts a list-offsets or produce call surfaces as ErrBackend.
	ErrAborted = errors.New("writer: aborted")

	// ErrUnknownTopicOrPartition is raised by ReadSync when the log reports
	// no such topic/partition.
	ErrUnknownTopicOrPartition = errors.New("writer: unknown topic or partition")
)
