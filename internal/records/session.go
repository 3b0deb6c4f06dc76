package records

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"time"

	"github.com/brunoga/deep"
	"go.uber.org/zap"

	"clinic-records-server/internal/models"
	"clinic-records-server/internal/storage"
)

// PatientStore is the persistence collaborator for the lifecycle core. The
// core only sequences calls around it; the schema belongs to the repository.
type PatientStore interface {
	LoadPatient(ctx context.Context, patientID string) (*models.Patient, error)
	SavePatient(ctx context.Context, patient *models.Patient) error
	DeletePatient(ctx context.Context, patientID, clinicID string) error
}

// bufferedRecord is one history record inside the edit buffer. The id is
// session-local and stays stable while the history re-sorts on timestamp
// changes, so pending operations never dangle.
type bufferedRecord struct {
	id     int
	record models.HistoryRecord
	marked bool // pending deletion; visible but locked against edits
}

// Session is the staged lifecycle manager for one patient edit screen: an
// in-memory edit buffer, the pending operation log, and the commit/rollback
// engine over both. A session is exclusively owned by the edit screen that
// opened it and is never shared.
//
// Nothing touches remote storage or the database until Commit; Rollback
// restores the buffer to the snapshot taken at Open (or at the last
// successful Commit).
type Session struct {
	store  storage.ObjectStore
	repo   PatientStore
	logger *zap.Logger

	patient  models.Patient // working scalar fields; History unused
	records  []*bufferedRecord
	baseline models.Patient // last-loaded/last-committed snapshot
	log      []PendingOp
	nextID   int

	// Keys uploaded during this session. An entry outlives its attach
	// log entry (supersession, undo) so the rollback and cleanup sweeps
	// still find the object.
	uploads map[string]bool
}

// Open creates an edit session over a freshly loaded patient. The patient
// tree is deep-copied; the caller's value is never mutated.
func Open(patient *models.Patient, store storage.ObjectStore, repo PatientStore, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Session{
		store:    store,
		repo:     repo,
		logger:   logger,
		baseline: deep.MustCopy(*patient),
		uploads:  make(map[string]bool),
	}
	s.resetToBaseline()
	return s
}

// resetToBaseline rebuilds the working buffer from the snapshot and clears
// the pending operation log.
func (s *Session) resetToBaseline() {
	working := deep.MustCopy(s.baseline)
	s.patient = working
	s.patient.History = nil
	s.records = s.records[:0]
	s.nextID = 0
	for i := range working.History {
		s.nextID++
		s.records = append(s.records, &bufferedRecord{id: s.nextID, record: working.History[i]})
	}
	s.sortRecords()
	s.log = nil
}

// sortRecords keeps history in presentation order, newest first.
func (s *Session) sortRecords() {
	sort.SliceStable(s.records, func(i, j int) bool {
		return s.records[i].record.RecordedAt.After(s.records[j].record.RecordedAt)
	})
}

func (s *Session) find(recordID int) *bufferedRecord {
	for _, br := range s.records {
		if br.id == recordID {
			return br
		}
	}
	return nil
}

// export assembles the buffer back into a models.Patient in display order,
// including records still marked for deletion.
func (s *Session) export() models.Patient {
	out := deep.MustCopy(s.patient)
	out.History = nil
	for _, br := range s.records {
		out.History = append(out.History, deep.MustCopy(br.record))
	}
	return out
}

// PatientID returns the id of the patient under edit.
func (s *Session) PatientID() string { return s.patient.ID }

// Patient returns the working copy of the patient's scalar fields.
func (s *Session) Patient() models.Patient {
	p := deep.MustCopy(s.patient)
	p.History = nil
	return p
}

// RecordView is one buffer entry as presented to the caller.
type RecordView struct {
	ID                int                  `json:"id"`
	Record            models.HistoryRecord `json:"record"`
	MarkedForDeletion bool                 `json:"markedForDeletion"`
}

// Records returns the buffered history in presentation order. Records marked
// for deletion remain visible so the caller can render them as pending
// removal.
func (s *Session) Records() []RecordView {
	views := make([]RecordView, 0, len(s.records))
	for _, br := range s.records {
		views = append(views, RecordView{
			ID:                br.id,
			Record:            deep.MustCopy(br.record),
			MarkedForDeletion: br.marked,
		})
	}
	return views
}

// SetField applies a scalar field edit to the buffer.
func (s *Session) SetField(name, value string) error {
	switch name {
	case "firstName":
		s.patient.FirstName = value
	case "lastName":
		s.patient.LastName = value
	case "phoneNumber":
		s.patient.PhoneNumber = value
	case "address":
		s.patient.Address = value
	case "notes":
		s.patient.Notes = value
	default:
		return fmt.Errorf("%w: unknown field %q", ErrValidation, name)
	}
	return nil
}

// SetDateOfBirth updates the patient's date of birth in the buffer.
func (s *Session) SetDateOfBirth(t *time.Time) {
	s.patient.DateOfBirth = t
}

// AddRecord appends a new history record to the buffer and returns its
// session-local id. The history re-sorts by timestamp, newest first.
func (s *Session) AddRecord(record models.HistoryRecord) int {
	s.nextID++
	br := &bufferedRecord{id: s.nextID, record: record}
	s.records = append(s.records, br)
	s.sortRecords()
	return br.id
}

// UpdateRecord edits the scalar fields of a buffered record.
func (s *Session) UpdateRecord(recordID int, recordType models.HistoryRecordType, title, summary string) error {
	br := s.find(recordID)
	if br == nil {
		return ErrUnknownRecord
	}
	if br.marked {
		return ErrRecordMarked
	}
	if recordType != "" {
		br.record.RecordType = recordType
	}
	if title != "" {
		br.record.Title = title
	}
	if summary != "" {
		br.record.Summary = summary
	}
	return nil
}

// UpdateRecordTimestamp changes a record's timestamp and re-sorts the
// history, newest first.
func (s *Session) UpdateRecordTimestamp(recordID int, recordedAt time.Time) error {
	br := s.find(recordID)
	if br == nil {
		return ErrUnknownRecord
	}
	if br.marked {
		return ErrRecordMarked
	}
	br.record.RecordedAt = recordedAt
	s.sortRecords()
	return nil
}

// IsRecordMarkedForDeletion reports whether the record is pending deletion.
func (s *Session) IsRecordMarkedForDeletion(recordID int) bool {
	br := s.find(recordID)
	return br != nil && br.marked
}

// HasUnsavedChanges is true iff the buffer differs from the last
// loaded/committed snapshot or the pending operation log is non-empty.
func (s *Session) HasUnsavedChanges() bool {
	if len(s.log) > 0 {
		return true
	}
	for _, br := range s.records {
		if br.marked {
			return true
		}
	}
	current := s.export()
	return !reflect.DeepEqual(current, s.baseline)
}

// PendingOps returns the ordered pending operation log for display.
func (s *Session) PendingOps() []PendingOp {
	out := make([]PendingOp, len(s.log))
	copy(out, s.log)
	return out
}

// supersede drops any earlier log entry recording an intent for the same
// (record, storage key) pair. A new operation over an existing one replaces
// it rather than stacking contradictory entries.
func (s *Session) supersede(recordID int, storageKey string) {
	kept := s.log[:0]
	for _, op := range s.log {
		if op.RecordID() == recordID && opTouchesKey(op, storageKey) {
			continue
		}
		kept = append(kept, op)
	}
	s.log = kept
}

func opTouchesKey(op PendingOp, storageKey string) bool {
	switch v := op.(type) {
	case AttachOp:
		return v.Ref.StorageKey == storageKey
	case DetachOp:
		return v.Ref.StorageKey == storageKey
	}
	return false
}

// pendingDetach returns the detach entry for the pair, if any.
func (s *Session) pendingDetach(recordID int, storageKey string) (DetachOp, bool) {
	for _, op := range s.log {
		if d, ok := op.(DetachOp); ok && d.Record == recordID && d.Ref.StorageKey == storageKey {
			return d, true
		}
	}
	return DetachOp{}, false
}

// RecordAttach links an already-uploaded object into a buffered record and
// logs the attach intent. If the same object was detached earlier in this
// session the two entries cancel: the link is simply restored, since the
// remote object predates the session and must survive a rollback.
func (s *Session) RecordAttach(recordID int, ref models.AttachmentRef) error {
	br := s.find(recordID)
	if br == nil {
		return ErrUnknownRecord
	}
	if br.marked {
		return ErrRecordMarked
	}
	if detach, ok := s.pendingDetach(recordID, ref.StorageKey); ok {
		s.supersede(recordID, ref.StorageKey)
		br.record.Attachments = append(br.record.Attachments, detach.Ref)
		return nil
	}
	s.supersede(recordID, ref.StorageKey)
	br.record.Attachments = append(br.record.Attachments, ref)
	s.log = append(s.log, AttachOp{Record: recordID, Ref: ref})
	s.uploads[ref.StorageKey] = true
	return nil
}

// RecordDetach removes an attachment link from the buffer and logs the
// detach intent. The remote object is not touched until commit.
func (s *Session) RecordDetach(recordID int, storageKey string) error {
	br := s.find(recordID)
	if br == nil {
		return ErrUnknownRecord
	}
	if br.marked {
		return ErrRecordMarked
	}
	idx := -1
	for i, ref := range br.record.Attachments {
		if ref.StorageKey == storageKey {
			idx = i
			break
		}
	}
	if idx < 0 {
		return ErrUnknownAttachment
	}
	ref := br.record.Attachments[idx]
	br.record.Attachments = append(br.record.Attachments[:idx], br.record.Attachments[idx+1:]...)
	s.supersede(recordID, storageKey)
	s.log = append(s.log, DetachOp{Record: recordID, Ref: ref})
	return nil
}

// RecordDeleteRecord marks a buffered record for deletion, capturing the
// attachment set it carries at this moment. The record stays visible in the
// buffer but is locked against further edits.
//
// The deletion supersedes any pending per-ref entry for the record: an
// earlier detach folds its ref back into the capture so the object still
// goes away with the record, and an earlier attach rides along as a
// regular attachment.
func (s *Session) RecordDeleteRecord(recordID int) error {
	br := s.find(recordID)
	if br == nil {
		return ErrUnknownRecord
	}
	if br.marked {
		return ErrRecordMarked
	}
	kept := s.log[:0]
	for _, op := range s.log {
		if op.RecordID() != recordID {
			kept = append(kept, op)
			continue
		}
		if detach, ok := op.(DetachOp); ok {
			br.record.Attachments = append(br.record.Attachments, detach.Ref)
		}
	}
	s.log = kept
	refs := make([]models.AttachmentRef, len(br.record.Attachments))
	copy(refs, br.record.Attachments)
	br.marked = true
	s.log = append(s.log, DeleteRecordOp{Record: recordID, Title: br.record.Title, Refs: refs})
	return nil
}

// Undo removes one pending operation and reverses its buffer-visible effect:
// re-links a detached ref, un-marks a deleted record, or unlinks and forgets
// an attach. Returns ErrStaleOperation for an out-of-range index.
func (s *Session) Undo(opIndex int) error {
	if opIndex < 0 || opIndex >= len(s.log) {
		return ErrStaleOperation
	}
	op := s.log[opIndex]
	s.log = append(s.log[:opIndex], s.log[opIndex+1:]...)
	s.reverseBufferEffect(op)
	return nil
}

func (s *Session) reverseBufferEffect(op PendingOp) {
	br := s.find(op.RecordID())
	if br == nil {
		return
	}
	switch v := op.(type) {
	case AttachOp:
		for i, ref := range br.record.Attachments {
			if ref.StorageKey == v.Ref.StorageKey {
				br.record.Attachments = append(br.record.Attachments[:i], br.record.Attachments[i+1:]...)
				break
			}
		}
	case DetachOp:
		br.record.Attachments = append(br.record.Attachments, v.Ref)
	case DeleteRecordOp:
		br.marked = false
	}
}
