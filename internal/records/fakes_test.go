package records

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/brunoga/deep"

	"clinic-records-server/internal/models"
)

// fakePatientStore is an in-memory PatientStore for engine tests.
type fakePatientStore struct {
	mu          sync.Mutex
	patients    map[string]models.Patient
	saveCalls   int
	deleteCalls int
	saveErr     error
}

func newFakePatientStore(patients ...models.Patient) *fakePatientStore {
	f := &fakePatientStore{patients: make(map[string]models.Patient)}
	for _, p := range patients {
		f.patients[p.ID] = deep.MustCopy(p)
	}
	return f
}

func (f *fakePatientStore) LoadPatient(ctx context.Context, patientID string) (*models.Patient, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.patients[patientID]
	if !ok {
		return nil, errors.New("patient not found")
	}
	out := deep.MustCopy(p)
	return &out, nil
}

func (f *fakePatientStore) SavePatient(ctx context.Context, patient *models.Patient) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saveCalls++
	if f.saveErr != nil {
		return f.saveErr
	}
	f.patients[patient.ID] = deep.MustCopy(*patient)
	return nil
}

func (f *fakePatientStore) DeletePatient(ctx context.Context, patientID, clinicID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteCalls++
	p, ok := f.patients[patientID]
	if !ok || p.ClinicID != clinicID {
		return errors.New("patient not found")
	}
	delete(f.patients, patientID)
	return nil
}

func (f *fakePatientStore) has(patientID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.patients[patientID]
	return ok
}

func (f *fakePatientStore) saved(patientID string) models.Patient {
	f.mu.Lock()
	defer f.mu.Unlock()
	return deep.MustCopy(f.patients[patientID])
}

func bytesReader(s string) io.Reader { return strings.NewReader(s) }

func attachment(key string) models.AttachmentRef {
	return models.AttachmentRef{
		StorageKey: key,
		URL:        "memory://" + key,
		FileName:   key + ".pdf",
		FileType:   "application/pdf",
	}
}

// testPatient builds the two-record fixture used across the engine tests:
// the newer record carries attachments a and b, the older one carries c.
func testPatient() models.Patient {
	newer := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	older := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	return models.Patient{
		BaseModel: models.BaseModel{ID: "patient-1"},
		ClinicID:  "clinic-1",
		FirstName: "Ada",
		LastName:  "Nowak",
		History: []models.HistoryRecord{
			{
				BaseModel:   models.BaseModel{ID: "rec-new"},
				PatientID:   "patient-1",
				RecordType:  models.RecordTypeConsultation,
				RecordedAt:  newer,
				Title:       "Follow-up visit",
				Attachments: []models.AttachmentRef{attachment("a"), attachment("b")},
			},
			{
				BaseModel:   models.BaseModel{ID: "rec-old"},
				PatientID:   "patient-1",
				RecordType:  models.RecordTypeLabResult,
				RecordedAt:  older,
				Title:       "Blood panel",
				Attachments: []models.AttachmentRef{attachment("c")},
			},
		},
	}
}
