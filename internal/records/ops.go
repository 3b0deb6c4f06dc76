package records

import (
	"fmt"

	"clinic-records-server/internal/models"
)

// OpKind identifies a pending operation variant.
type OpKind string

const (
	OpAttach       OpKind = "attach"
	OpDetach       OpKind = "detach"
	OpDeleteRecord OpKind = "delete-record"
)

// PendingOp is one not-yet-committed storage-affecting intent recorded while
// the user edits the buffer. It is a closed sum: exactly AttachOp, DetachOp
// and DeleteRecordOp implement it, each carrying the data needed to commit
// or reverse it.
type PendingOp interface {
	Kind() OpKind
	// RecordID is the session-local id of the history record the operation
	// targets. Session ids stay stable across timestamp re-sorts.
	RecordID() int
	// Describe returns a human-readable intent for confirmation dialogs.
	Describe() string

	pendingOp()
}

// AttachOp links a file that is already uploaded to remote storage into a
// history record. Reversing it deletes the uploaded object.
type AttachOp struct {
	Record int
	Ref    models.AttachmentRef
}

func (op AttachOp) Kind() OpKind  { return OpAttach }
func (op AttachOp) RecordID() int { return op.Record }
func (op AttachOp) Describe() string {
	return fmt.Sprintf("attach %q", op.Ref.FileName)
}
func (op AttachOp) pendingOp() {}

// DetachOp removes a link from the buffer. The remote object is deliberately
// left in place until commit; reversing it only restores the link.
type DetachOp struct {
	Record int
	Ref    models.AttachmentRef
}

func (op DetachOp) Kind() OpKind  { return OpDetach }
func (op DetachOp) RecordID() int { return op.Record }
func (op DetachOp) Describe() string {
	return fmt.Sprintf("remove %q", op.Ref.FileName)
}
func (op DetachOp) pendingOp() {}

// DeleteRecordOp marks a whole history record for removal, capturing the
// attachment set it carried at the moment of marking.
type DeleteRecordOp struct {
	Record int
	Title  string
	Refs   []models.AttachmentRef
}

func (op DeleteRecordOp) Kind() OpKind  { return OpDeleteRecord }
func (op DeleteRecordOp) RecordID() int { return op.Record }
func (op DeleteRecordOp) Describe() string {
	if len(op.Refs) == 0 {
		return fmt.Sprintf("delete record %q", op.Title)
	}
	return fmt.Sprintf("delete record %q and its %d attached file(s)", op.Title, len(op.Refs))
}
func (op DeleteRecordOp) pendingOp() {}
