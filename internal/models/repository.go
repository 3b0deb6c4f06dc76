package models

import (
	"context"

	"gorm.io/gorm"
)

// PatientRepository wraps database access for patients and their history
// trees. The staged lifecycle core drives it through the records.PatientStore
// interface; it never reaches into GORM directly.
type PatientRepository struct {
	DB *gorm.DB
}

// NewPatientRepository creates a new PatientRepository.
func NewPatientRepository(db *gorm.DB) *PatientRepository {
	return &PatientRepository{DB: db}
}

// LoadPatient fetches a patient with the full history tree, newest record
// first.
func (r *PatientRepository) LoadPatient(ctx context.Context, patientID string) (*Patient, error) {
	var patient Patient
	err := r.DB.WithContext(ctx).
		Preload("History", func(db *gorm.DB) *gorm.DB {
			return db.Order("recorded_at desc")
		}).
		Preload("History.Attachments").
		First(&patient, "id = ?", patientID).Error
	if err != nil {
		return nil, err
	}
	return &patient, nil
}

// SavePatient persists the patient's scalar fields and replaces the stored
// history tree with the one on the given patient. Replacement runs in a
// transaction so a half-saved tree is never visible.
func (r *PatientRepository) SavePatient(ctx context.Context, patient *Patient) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("History").Save(patient).Error; err != nil {
			return err
		}

		var recordIDs []string
		if err := tx.Model(&HistoryRecord{}).Where("patient_id = ?", patient.ID).
			Pluck("id", &recordIDs).Error; err != nil {
			return err
		}
		if len(recordIDs) > 0 {
			if err := tx.Where("history_record_id IN ?", recordIDs).
				Delete(&AttachmentRef{}).Error; err != nil {
				return err
			}
			if err := tx.Where("patient_id = ?", patient.ID).
				Delete(&HistoryRecord{}).Error; err != nil {
				return err
			}
		}

		for i := range patient.History {
			record := &patient.History[i]
			record.PatientID = patient.ID
			if err := tx.Create(record).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// DeletePatient removes the patient row and its history tree. The clinic ID
// must match the owning clinic; a mismatch is reported as a not-found error.
func (r *PatientRepository) DeletePatient(ctx context.Context, patientID, clinicID string) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var patient Patient
		if err := tx.First(&patient, "id = ? AND clinic_id = ?", patientID, clinicID).Error; err != nil {
			return err
		}

		var recordIDs []string
		if err := tx.Model(&HistoryRecord{}).Where("patient_id = ?", patientID).
			Pluck("id", &recordIDs).Error; err != nil {
			return err
		}
		if len(recordIDs) > 0 {
			if err := tx.Where("history_record_id IN ?", recordIDs).
				Delete(&AttachmentRef{}).Error; err != nil {
				return err
			}
			if err := tx.Where("patient_id = ?", patientID).
				Delete(&HistoryRecord{}).Error; err != nil {
				return err
			}
		}
		return tx.Delete(&patient).Error
	})
}
