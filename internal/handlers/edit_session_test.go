package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/brunoga/deep"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clinic-records-server/internal/models"
	"clinic-records-server/internal/storage"
)

type fakePatientStore struct {
	mu       sync.Mutex
	patients map[string]models.Patient
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
	f.patients[patient.ID] = deep.MustCopy(*patient)
	return nil
}

func (f *fakePatientStore) DeletePatient(ctx context.Context, patientID, clinicID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.patients, patientID)
	return nil
}

func seedPatient() models.Patient {
	return models.Patient{
		BaseModel: models.BaseModel{ID: "p1"},
		ClinicID:  "c1",
		FirstName: "Ada",
		LastName:  "Nowak",
		History: []models.HistoryRecord{
			{
				BaseModel:  models.BaseModel{ID: "r1"},
				PatientID:  "p1",
				RecordType: models.RecordTypeConsultation,
				RecordedAt: time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC),
				Title:      "Follow-up visit",
				Attachments: []models.AttachmentRef{
					{StorageKey: "a", FileName: "a.pdf"},
					{StorageKey: "b", FileName: "b.pdf"},
				},
			},
			{
				BaseModel:   models.BaseModel{ID: "r2"},
				PatientID:   "p1",
				RecordType:  models.RecordTypeLabResult,
				RecordedAt:  time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC),
				Title:       "Blood panel",
				Attachments: []models.AttachmentRef{{StorageKey: "c", FileName: "c.pdf"}},
			},
		},
	}
}

func setupSessionRouter(t *testing.T) (*gin.Engine, *storage.MemoryStore, *fakePatientStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	store := storage.NewMemoryStore()
	repo := newFakePatientStore(seedPatient())
	handler := NewEditSessionHandler(repo, store, NewSessionManager(), nil)

	router := gin.New()
	grp := router.Group("/api/v1/patients/:id/edit-session")
	grp.POST("", handler.OpenSession)
	grp.GET("", handler.GetSession)
	grp.PATCH("/fields", handler.UpdateFields)
	grp.POST("/records", handler.AddRecord)
	grp.DELETE("/records/:recordId", handler.MarkRecordDeleted)
	grp.POST("/records/:recordId/attachments", handler.UploadAttachment)
	grp.DELETE("/records/:recordId/attachments", handler.DetachAttachment)
	grp.GET("/pending", handler.ListPendingOps)
	grp.POST("/pending/:index/undo", handler.UndoPendingOp)
	grp.POST("/save", handler.Save)
	grp.POST("/discard", handler.Discard)
	grp.POST("/cleanup", handler.Cleanup)
	return router, store, repo
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var resp struct {
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Data
}

func sessionRecordIDs(t *testing.T, data map[string]any) []int {
	t.Helper()
	raw, ok := data["records"].([]any)
	require.True(t, ok)
	ids := make([]int, 0, len(raw))
	for _, r := range raw {
		ids = append(ids, int(r.(map[string]any)["id"].(float64)))
	}
	return ids
}

func TestOpenSessionConflictsWhenAlreadyOpen(t *testing.T) {
	router, _, _ := setupSessionRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/v1/patients/p1/edit-session", nil)
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(t, router, http.MethodPost, "/api/v1/patients/p1/edit-session", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestOpenSessionUnknownPatient(t *testing.T) {
	router, _, _ := setupSessionRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/v1/patients/missing/edit-session", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestSessionEndpointsRequireOpenSession(t *testing.T) {
	router, _, _ := setupSessionRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/v1/patients/p1/edit-session/save", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSaveFlowAppliesPendingOperations(t *testing.T) {
	router, store, repo := setupSessionRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/v1/patients/p1/edit-session", nil)
	require.Equal(t, http.StatusCreated, w.Code)
	ids := sessionRecordIDs(t, decodeData(t, w))
	require.Len(t, ids, 2)

	// Detach b from the newer record, mark the older one for deletion.
	w = doJSON(t, router, http.MethodDelete,
		fmt.Sprintf("/api/v1/patients/p1/edit-session/records/%d/attachments?key=b", ids[0]), nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = doJSON(t, router, http.MethodDelete,
		fmt.Sprintf("/api/v1/patients/p1/edit-session/records/%d", ids[1]), nil)
	require.Equal(t, http.StatusOK, w.Code)

	// Nothing remote happened yet.
	assert.Empty(t, store.DeleteCalls())

	w = doJSON(t, router, http.MethodGet, "/api/v1/patients/p1/edit-session/pending", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodPost, "/api/v1/patients/p1/edit-session/save", nil)
	require.Equal(t, http.StatusOK, w.Code)

	assert.ElementsMatch(t, []string{"b", "c"}, store.DeleteCalls())
	saved, err := repo.LoadPatient(context.Background(), "p1")
	require.NoError(t, err)
	require.Len(t, saved.History, 1)
	assert.Equal(t, "Follow-up visit", saved.History[0].Title)

	// The session is closed after a successful save.
	w = doJSON(t, router, http.MethodGet, "/api/v1/patients/p1/edit-session", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDiscardFlowRestoresBuffer(t *testing.T) {
	router, store, repo := setupSessionRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/v1/patients/p1/edit-session", nil)
	require.Equal(t, http.StatusCreated, w.Code)
	ids := sessionRecordIDs(t, decodeData(t, w))

	w = doJSON(t, router, http.MethodDelete,
		fmt.Sprintf("/api/v1/patients/p1/edit-session/records/%d/attachments?key=b", ids[0]), nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodPost, "/api/v1/patients/p1/edit-session/discard", nil)
	require.Equal(t, http.StatusOK, w.Code)

	assert.Empty(t, store.DeleteCalls())
	saved, err := repo.LoadPatient(context.Background(), "p1")
	require.NoError(t, err)
	assert.Len(t, saved.History[0].Attachments, 2)
}

func TestUploadAttachmentLinksIntoBuffer(t *testing.T) {
	router, store, _ := setupSessionRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/v1/patients/p1/edit-session", nil)
	require.Equal(t, http.StatusCreated, w.Code)
	ids := sessionRecordIDs(t, decodeData(t, w))

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "xray.png")
	require.NoError(t, err)
	_, err = part.Write([]byte("image-bytes"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost,
		fmt.Sprintf("/api/v1/patients/p1/edit-session/records/%d/attachments", ids[0]), &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	data := decodeData(t, rec)
	key, _ := data["storageKey"].(string)
	require.NotEmpty(t, key)
	assert.True(t, store.Exists(key))

	// Discard deletes the now-unwanted upload.
	w = doJSON(t, router, http.MethodPost, "/api/v1/patients/p1/edit-session/discard", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, store.Exists(key))
}

func TestUndoEndpointRejectsStaleIndex(t *testing.T) {
	router, _, _ := setupSessionRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/v1/patients/p1/edit-session", nil)
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(t, router, http.MethodPost, "/api/v1/patients/p1/edit-session/pending/7/undo", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
