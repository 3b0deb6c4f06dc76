package records

import (
	"context"
	"fmt"

	"github.com/brunoga/deep"
	"go.uber.org/zap"

	"clinic-records-server/internal/models"
)

// CommitSummary reports per-operation-type outcomes of a commit sweep.
// Remote failures never abort the sweep; they are counted here and the
// affected object keys are reported so an operator can chase orphans.
type CommitSummary struct {
	AttachesCommitted  int      `json:"attachesCommitted"`
	DetachesCommitted  int      `json:"detachesCommitted"`
	DetachesFailed     int      `json:"detachesFailed"`
	RecordsRemoved     int      `json:"recordsRemoved"`
	RecordFilesDeleted int      `json:"recordFilesDeleted"`
	RecordFilesFailed  int      `json:"recordFilesFailed"`
	OrphanedKeys       []string `json:"orphanedKeys,omitempty"`
}

// RollbackSummary reports the outcome of a rollback sweep.
type RollbackSummary struct {
	OpsReversed    int `json:"opsReversed"`
	UploadsDeleted int `json:"uploadsDeleted"`
	UploadsFailed  int `json:"uploadsFailed"`
}

// Commit applies the pending operation log to remote storage in recorded
// order, one remote call at a time, then persists the buffer and snapshots
// it as the new baseline.
//
// Attach entries need no remote action (the object is already uploaded);
// they only finalize the link. A detach whose remote delete fails keeps the
// ref in the saved record: a reference to storage that still holds data is
// never silently dropped. A record deletion removes the record even when
// some of its files could not be deleted; the keys left behind are reported
// as orphaned.
//
// On an unchanged buffer with an empty log Commit is a no-op returning a
// zero-count summary.
func (s *Session) Commit(ctx context.Context) (CommitSummary, error) {
	var summary CommitSummary
	if s.patient.ID == "" {
		return summary, fmt.Errorf("%w: patient id required", ErrValidation)
	}
	if len(s.log) == 0 && len(s.uploads) == 0 && !s.HasUnsavedChanges() {
		return summary, nil
	}

	for _, op := range s.log {
		switch v := op.(type) {
		case AttachOp:
			summary.AttachesCommitted++
		case DetachOp:
			delete(s.uploads, v.Ref.StorageKey)
			if err := s.store.Delete(ctx, v.Ref.StorageKey); err != nil {
				// Storage still holds the object, so the saved record
				// keeps pointing at it.
				s.logger.Warn("detach delete failed, keeping reference",
					zap.String("patientId", s.patient.ID),
					zap.String("key", v.Ref.StorageKey),
					zap.Error(err))
				if br := s.find(v.Record); br != nil && !br.marked {
					br.record.Attachments = append(br.record.Attachments, v.Ref)
				} else {
					// The record itself is going away; nowhere to keep
					// the link, so report the key as orphaned.
					summary.OrphanedKeys = append(summary.OrphanedKeys, v.Ref.StorageKey)
				}
				summary.DetachesFailed++
				continue
			}
			summary.DetachesCommitted++
		case DeleteRecordOp:
			// The capture can lag the buffer when a pending detach was
			// undone after the mark; the buffer is authoritative for
			// which files go down with the record.
			refs := v.Refs
			if br := s.find(v.Record); br != nil {
				refs = br.record.Attachments
			}
			for _, ref := range refs {
				delete(s.uploads, ref.StorageKey)
				if err := s.store.Delete(ctx, ref.StorageKey); err != nil {
					s.logger.Warn("record deletion left orphaned object",
						zap.String("patientId", s.patient.ID),
						zap.String("key", ref.StorageKey),
						zap.Error(err))
					summary.RecordFilesFailed++
					summary.OrphanedKeys = append(summary.OrphanedKeys, ref.StorageKey)
					continue
				}
				summary.RecordFilesDeleted++
			}
			// The record goes away regardless of per-file outcomes.
			s.removeRecord(v.Record)
			summary.RecordsRemoved++
		}
	}
	s.log = nil

	persisted := s.export()
	if err := s.repo.SavePatient(ctx, &persisted); err != nil {
		// Remote deletes already happened; the buffer keeps the new state
		// so a retried Commit only re-runs the save.
		return summary, fmt.Errorf("save patient %s: %w", s.patient.ID, err)
	}
	s.sweepLeftoverUploads(ctx, &persisted, &summary)
	s.baseline = deep.MustCopy(persisted)
	return summary, nil
}

// sweepLeftoverUploads settles the session's uploads after a save. Keys the
// persisted patient references are finalized; the rest (their attach entry
// was undone) are unreferenced and get deleted, with failures reported as
// orphaned.
func (s *Session) sweepLeftoverUploads(ctx context.Context, persisted *models.Patient, summary *CommitSummary) {
	if len(s.uploads) == 0 {
		return
	}
	referenced := make(map[string]bool)
	for _, rec := range persisted.History {
		for _, ref := range rec.Attachments {
			referenced[ref.StorageKey] = true
		}
	}
	for key := range s.uploads {
		if referenced[key] {
			delete(s.uploads, key)
			continue
		}
		if err := s.store.Delete(ctx, key); err != nil {
			s.logger.Warn("could not delete unreferenced upload",
				zap.String("patientId", s.patient.ID),
				zap.String("key", key),
				zap.Error(err))
			summary.OrphanedKeys = append(summary.OrphanedKeys, key)
			continue
		}
		delete(s.uploads, key)
	}
}

// Rollback reverses the pending operation log in reverse order, then forces
// the buffer back to the last loaded/committed snapshot and clears the log.
//
// Only this session's uploads have a remote-visible effect to undo: their
// objects are deleted best-effort, since the session is being abandoned
// either way. The final snapshot restore runs even when individual
// reversals failed, so the caller never sees an inconsistent buffer. On an
// unchanged buffer with an empty log Rollback is a no-op.
func (s *Session) Rollback(ctx context.Context) RollbackSummary {
	var summary RollbackSummary
	if len(s.log) == 0 && len(s.uploads) == 0 && !s.HasUnsavedChanges() {
		return summary
	}

	for i := len(s.log) - 1; i >= 0; i-- {
		op := s.log[i]
		if attach, ok := op.(AttachOp); ok {
			s.discardUpload(ctx, attach.Ref.StorageKey, &summary)
		}
		s.reverseBufferEffect(op)
		summary.OpsReversed++
	}
	// Uploads whose attach entry was superseded or undone have no log
	// entry left; their objects go too.
	for key := range s.uploads {
		s.discardUpload(ctx, key, &summary)
	}

	// Whatever the per-op reversals did, the buffer ends up as the
	// known-good snapshot.
	s.resetToBaseline()
	return summary
}

func (s *Session) discardUpload(ctx context.Context, key string, summary *RollbackSummary) {
	if !s.uploads[key] {
		return
	}
	delete(s.uploads, key)
	if err := s.store.Delete(ctx, key); err != nil {
		s.logger.Warn("rollback could not delete uploaded object",
			zap.String("patientId", s.patient.ID),
			zap.String("key", key),
			zap.Error(err))
		summary.UploadsFailed++
		return
	}
	summary.UploadsDeleted++
}

// CleanupOrphanedFiles deletes every object uploaded during the session and
// not yet committed, including uploads whose attach entry was later
// superseded or undone. Callers invoke it opportunistically on sessions
// abandoned without an explicit save or discard; it is best-effort only.
func (s *Session) CleanupOrphanedFiles(ctx context.Context) (deleted, failed int) {
	for key := range s.uploads {
		if err := s.store.Delete(ctx, key); err != nil {
			s.logger.Warn("orphan cleanup delete failed",
				zap.String("patientId", s.patient.ID),
				zap.String("key", key),
				zap.Error(err))
			failed++
			continue
		}
		delete(s.uploads, key)
		deleted++
	}
	return deleted, failed
}

func (s *Session) removeRecord(recordID int) {
	for i, br := range s.records {
		if br.id == recordID {
			s.records = append(s.records[:i], s.records[i+1:]...)
			return
		}
	}
}
