package records

import "errors"

// Sentinel errors surfaced by the edit session and deletion coordinator.
// Per-attachment storage failures are never returned as errors; they are
// counted into the structured summaries instead.
var (
	// ErrValidation marks a pre-flight rejection (missing identifiers);
	// no remote call has been attempted when it is returned.
	ErrValidation = errors.New("validation failed")

	// ErrStaleOperation means an undo referenced a pending operation that
	// no longer exists.
	ErrStaleOperation = errors.New("pending operation not found")

	// ErrUnknownRecord means the referenced history record is not in the
	// edit buffer.
	ErrUnknownRecord = errors.New("history record not found in edit buffer")

	// ErrRecordMarked rejects edits to a record that is pending deletion.
	ErrRecordMarked = errors.New("record is marked for deletion")

	// ErrUnknownAttachment means the referenced attachment is not linked
	// to the record in the edit buffer.
	ErrUnknownAttachment = errors.New("attachment not found on record")
)
