package models

import (
	"time"
)

// Patient represents a patient belonging to a clinic.
type Patient struct {
	BaseModel
	ClinicID    string     `gorm:"size:36;index;not null" json:"clinicId"`
	FirstName   string     `gorm:"size:100" json:"firstName"`
	LastName    string     `gorm:"size:100" json:"lastName"`
	DateOfBirth *time.Time `json:"dateOfBirth,omitempty"`
	PhoneNumber string     `json:"phoneNumber,omitempty"`
	Address     string     `json:"address,omitempty"`
	Notes       string     `gorm:"type:text" json:"notes,omitempty"`

	// Relations
	Clinic  Clinic          `gorm:"foreignKey:ClinicID" json:"-"`
	History []HistoryRecord `gorm:"foreignKey:PatientID" json:"history,omitempty"`
}

// HistoryRecordType represents the type of medical history record
type HistoryRecordType string

const (
	RecordTypeConsultation  HistoryRecordType = "ConsultationNote"
	RecordTypeLabResult     HistoryRecordType = "LabResult"
	RecordTypePrescription  HistoryRecordType = "Prescription"
	RecordTypeImagingReport HistoryRecordType = "ImagingReport"
	RecordTypeVaccination   HistoryRecordType = "VaccinationRecord"
)

// HistoryRecord is one entry in a patient's medical history. Records are
// presented newest first; any attached files live in remote object storage
// and are linked through AttachmentRef rows.
type HistoryRecord struct {
	BaseModel
	PatientID  string            `gorm:"size:36;index" json:"patientId"`
	RecordType HistoryRecordType `gorm:"size:50" json:"recordType"`
	RecordedAt time.Time         `json:"recordedAt"`
	Title      string            `gorm:"size:255;not null" json:"title"`
	Summary    string            `gorm:"type:text" json:"summary"`

	Attachments []AttachmentRef `gorm:"foreignKey:HistoryRecordID" json:"attachments,omitempty"`
}

// AttachmentRef links a history record to one object in remote storage.
// StorageKey is the opaque object key; the bytes themselves are never
// stored in the database.
type AttachmentRef struct {
	BaseModel
	HistoryRecordID string `gorm:"size:36;index" json:"historyRecordId"`
	StorageKey      string `gorm:"size:512;not null" json:"storageKey"`
	URL             string `gorm:"size:1024" json:"url"`
	FileName        string `gorm:"size:255" json:"fileName"`
	FileType        string `gorm:"size:100" json:"fileType"`
	FileSize        int64  `json:"fileSize"`
}
