package records

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"clinic-records-server/internal/storage"
)

// DeletionOutcome is the result of a cascading patient deletion.
type DeletionOutcome struct {
	FilesDeleted    int  `json:"filesDeleted"`
	FilesNotDeleted int  `json:"filesNotDeleted"`
	Deleted         bool `json:"deleted"` // database record removed
}

// DeletionCoordinator removes a patient and every attachment the patient
// transitively owns, tolerating partial storage failures. It does not go
// through an edit session; deletion is a one-shot operation that can simply
// be re-invoked after a failed non-forced attempt.
type DeletionCoordinator struct {
	Store  storage.ObjectStore
	Repo   PatientStore
	Logger *zap.Logger
}

// NewDeletionCoordinator creates a DeletionCoordinator.
func NewDeletionCoordinator(store storage.ObjectStore, repo PatientStore, logger *zap.Logger) *DeletionCoordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DeletionCoordinator{Store: store, Repo: repo, Logger: logger}
}

// DeletePatient deletes every attachment across every history record of the
// patient, then the database record itself. Storage failures do not stop the
// enumeration; they are counted. Without force, any storage failure aborts
// before the database is touched so the operator can retry or escalate to
// force mode. With force the database record is removed regardless of how
// many files could not be deleted.
func (c *DeletionCoordinator) DeletePatient(ctx context.Context, patientID, clinicID string, force bool) (DeletionOutcome, error) {
	var outcome DeletionOutcome
	if patientID == "" {
		return outcome, fmt.Errorf("%w: patient id required", ErrValidation)
	}
	if clinicID == "" {
		return outcome, fmt.Errorf("%w: clinic id required", ErrValidation)
	}

	patient, err := c.Repo.LoadPatient(ctx, patientID)
	if err != nil {
		return outcome, fmt.Errorf("load patient %s: %w", patientID, err)
	}

	for _, record := range patient.History {
		for _, ref := range record.Attachments {
			if err := c.Store.Delete(ctx, ref.StorageKey); err != nil {
				c.Logger.Warn("cascading deletion could not delete object",
					zap.String("patientId", patientID),
					zap.String("key", ref.StorageKey),
					zap.Error(err))
				outcome.FilesNotDeleted++
				continue
			}
			outcome.FilesDeleted++
		}
	}

	if !force && outcome.FilesNotDeleted > 0 {
		// Leave the patient row intact for a retry or a forced attempt.
		return outcome, nil
	}

	if err := c.Repo.DeletePatient(ctx, patientID, clinicID); err != nil {
		return outcome, fmt.Errorf("delete patient %s: %w", patientID, err)
	}
	outcome.Deleted = true
	return outcome, nil
}
