package handlers

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"clinic-records-server/internal/models"
	"clinic-records-server/internal/records"
	"clinic-records-server/internal/storage"
	"clinic-records-server/internal/utils"
)

// EditSessionHandler drives the staged lifecycle of one patient edit screen:
// open, edit the buffer, record attachment intents, then save or discard.
type EditSessionHandler struct {
	Repo     records.PatientStore
	Store    storage.ObjectStore
	Sessions *SessionManager
	Logger   *zap.Logger
}

// NewEditSessionHandler creates a new EditSessionHandler.
func NewEditSessionHandler(repo records.PatientStore, store storage.ObjectStore, sessions *SessionManager, logger *zap.Logger) *EditSessionHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EditSessionHandler{Repo: repo, Store: store, Sessions: sessions, Logger: logger}
}

// sessionView is the buffer state returned to the edit screen.
type sessionView struct {
	Patient           models.Patient       `json:"patient"`
	Records           []records.RecordView `json:"records"`
	PendingOps        []pendingOpView      `json:"pendingOps"`
	HasUnsavedChanges bool                 `json:"hasUnsavedChanges"`
}

type pendingOpView struct {
	Index       int            `json:"index"`
	Kind        records.OpKind `json:"kind"`
	RecordID    int            `json:"recordId"`
	Description string         `json:"description"`
}

func buildSessionView(s *records.Session) sessionView {
	view := sessionView{
		Patient:           s.Patient(),
		Records:           s.Records(),
		PendingOps:        []pendingOpView{},
		HasUnsavedChanges: s.HasUnsavedChanges(),
	}
	for i, op := range s.PendingOps() {
		view.PendingOps = append(view.PendingOps, pendingOpView{
			Index:       i,
			Kind:        op.Kind(),
			RecordID:    op.RecordID(),
			Description: op.Describe(),
		})
	}
	return view
}

func (h *EditSessionHandler) session(c *gin.Context) (*records.Session, bool) {
	s, ok := h.Sessions.Get(c.Param("id"))
	if !ok {
		utils.NotFound(c, "No open edit session for this patient")
		return nil, false
	}
	return s, true
}

func respondSessionError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, records.ErrUnknownRecord),
		errors.Is(err, records.ErrUnknownAttachment),
		errors.Is(err, records.ErrStaleOperation):
		utils.NotFound(c, err.Error())
	case errors.Is(err, records.ErrRecordMarked),
		errors.Is(err, records.ErrValidation):
		utils.BadRequest(c, err.Error())
	default:
		utils.InternalServerError(c, err.Error())
	}
}

func parseRecordID(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("recordId"))
	if err != nil {
		utils.BadRequest(c, "Invalid record id: "+c.Param("recordId"))
		return 0, false
	}
	return id, true
}

// OpenSession loads the patient and opens an edit session over it.
func (h *EditSessionHandler) OpenSession(c *gin.Context) {
	patientID := c.Param("id")
	patient, err := h.Repo.LoadPatient(c.Request.Context(), patientID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.NotFound(c, "Patient not found")
		} else {
			utils.InternalServerError(c, "Failed to load patient: "+err.Error())
		}
		return
	}

	s := records.Open(patient, h.Store, h.Repo, h.Logger)
	if !h.Sessions.Put(patientID, s) {
		utils.Conflict(c, "Patient already has an open edit session")
		return
	}
	utils.Created(c, "Edit session opened", buildSessionView(s))
}

// GetSession returns the current buffer view.
func (h *EditSessionHandler) GetSession(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	utils.Success(c, "Edit session state", buildSessionView(s))
}

// UpdateFieldsRequest carries scalar field edits for the buffer.
type UpdateFieldsRequest struct {
	Fields      map[string]string `json:"fields"`
	DateOfBirth *string           `json:"dateOfBirth,omitempty"`
}

// UpdateFields applies scalar field edits to the edit buffer.
func (h *EditSessionHandler) UpdateFields(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	var req UpdateFieldsRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}
	for name, value := range req.Fields {
		if err := s.SetField(name, value); err != nil {
			respondSessionError(c, err)
			return
		}
	}
	if req.DateOfBirth != nil {
		if *req.DateOfBirth == "" {
			s.SetDateOfBirth(nil)
		} else {
			dob, err := time.Parse(time.RFC3339, *req.DateOfBirth)
			if err != nil {
				utils.BadRequest(c, "Invalid dateOfBirth, expected RFC 3339")
				return
			}
			s.SetDateOfBirth(&dob)
		}
	}
	utils.Success(c, "Fields updated", buildSessionView(s))
}

// AddRecordRequest carries a new history record for the buffer.
type AddRecordRequest struct {
	RecordType models.HistoryRecordType `json:"recordType" binding:"required"`
	RecordedAt string                   `json:"recordedAt"`
	Title      string                   `json:"title" binding:"required"`
	Summary    string                   `json:"summary"`
}

// AddRecord appends a new history record to the buffer.
func (h *EditSessionHandler) AddRecord(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	var req AddRecordRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}
	recordedAt := time.Now()
	if req.RecordedAt != "" {
		var err error
		recordedAt, err = time.Parse(time.RFC3339, req.RecordedAt)
		if err != nil {
			utils.BadRequest(c, "Invalid recordedAt, expected RFC 3339")
			return
		}
	}
	id := s.AddRecord(models.HistoryRecord{
		PatientID:  s.PatientID(),
		RecordType: req.RecordType,
		RecordedAt: recordedAt,
		Title:      req.Title,
		Summary:    req.Summary,
	})
	utils.Created(c, "Record added to buffer", gin.H{"recordId": id})
}

// UpdateRecordRequest carries edits for a buffered history record.
type UpdateRecordRequest struct {
	RecordType models.HistoryRecordType `json:"recordType,omitempty"`
	RecordedAt string                   `json:"recordedAt,omitempty"`
	Title      string                   `json:"title,omitempty"`
	Summary    string                   `json:"summary,omitempty"`
}

// UpdateRecord edits a buffered history record.
func (h *EditSessionHandler) UpdateRecord(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	recordID, ok := parseRecordID(c)
	if !ok {
		return
	}
	var req UpdateRecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, "Invalid request payload: "+err.Error())
		return
	}
	if err := s.UpdateRecord(recordID, req.RecordType, req.Title, req.Summary); err != nil {
		respondSessionError(c, err)
		return
	}
	if req.RecordedAt != "" {
		recordedAt, err := time.Parse(time.RFC3339, req.RecordedAt)
		if err != nil {
			utils.BadRequest(c, "Invalid recordedAt, expected RFC 3339")
			return
		}
		if err := s.UpdateRecordTimestamp(recordID, recordedAt); err != nil {
			respondSessionError(c, err)
			return
		}
	}
	utils.Success(c, "Record updated", buildSessionView(s))
}

// MarkRecordDeleted marks a buffered record for deletion. The record stays
// visible as pending removal until save.
func (h *EditSessionHandler) MarkRecordDeleted(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	recordID, ok := parseRecordID(c)
	if !ok {
		return
	}
	if err := s.RecordDeleteRecord(recordID); err != nil {
		respondSessionError(c, err)
		return
	}
	utils.Success(c, "Record marked for deletion", buildSessionView(s))
}

// UploadAttachment uploads a file to remote storage and links it into a
// buffered record as a pending attach.
func (h *EditSessionHandler) UploadAttachment(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	recordID, ok := parseRecordID(c)
	if !ok {
		return
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		utils.BadRequest(c, "Error retrieving file from form: "+err.Error())
		return
	}
	defer file.Close()

	key := fmt.Sprintf("patients/%s/%s", s.PatientID(), uuid.New().String())
	obj, err := h.Store.Upload(c.Request.Context(), key, file, storage.UploadOptions{
		FileName:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
	})
	if err != nil {
		utils.InternalServerError(c, "Failed to upload file: "+err.Error())
		return
	}

	ref := models.AttachmentRef{
		StorageKey: obj.Key,
		URL:        obj.URL,
		FileName:   obj.FileName,
		FileType:   obj.ContentType,
		FileSize:   obj.Size,
	}
	if err := s.RecordAttach(recordID, ref); err != nil {
		// The upload is already remote; try not to leave it orphaned.
		if delErr := h.Store.Delete(c.Request.Context(), obj.Key); delErr != nil {
			h.Logger.Warn("could not delete rejected upload",
				zap.String("key", obj.Key), zap.Error(delErr))
		}
		respondSessionError(c, err)
		return
	}
	utils.Created(c, "File attached", ref)
}

// DetachAttachment removes an attachment link from the buffer. The remote
// object is not deleted until save.
func (h *EditSessionHandler) DetachAttachment(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	recordID, ok := parseRecordID(c)
	if !ok {
		return
	}
	key := c.Query("key")
	if key == "" {
		utils.BadRequest(c, "Query parameter 'key' is required")
		return
	}
	if err := s.RecordDetach(recordID, key); err != nil {
		respondSessionError(c, err)
		return
	}
	utils.Success(c, "Attachment detached", buildSessionView(s))
}

// ListPendingOps returns the pending operations for confirmation dialogs.
func (h *EditSessionHandler) ListPendingOps(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	utils.Success(c, "Pending operations", buildSessionView(s).PendingOps)
}

// UndoPendingOp removes one pending operation and reverses its effect on
// the buffer.
func (h *EditSessionHandler) UndoPendingOp(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		utils.BadRequest(c, "Invalid operation index: "+c.Param("index"))
		return
	}
	if err := s.Undo(index); err != nil {
		respondSessionError(c, err)
		return
	}
	utils.Success(c, "Operation undone", buildSessionView(s))
}

// Save commits the pending operation log and persists the buffer. On
// success the session is closed.
func (h *EditSessionHandler) Save(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	summary, err := s.Commit(c.Request.Context())
	if err != nil {
		if errors.Is(err, records.ErrValidation) {
			utils.BadRequest(c, err.Error())
			return
		}
		utils.InternalServerError(c, "Save failed: "+err.Error())
		return
	}
	h.Sessions.Remove(c.Param("id"))
	utils.Success(c, "Changes saved", summary)
}

// Discard rolls back the pending operation log, restores the buffer, and
// closes the session.
func (h *EditSessionHandler) Discard(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	summary := s.Rollback(c.Request.Context())
	h.Sessions.Remove(c.Param("id"))
	utils.Success(c, "Changes discarded", summary)
}

// Cleanup sweeps the remote objects uploaded by still-pending attaches and
// closes the session. Callers use it for sessions abandoned without an
// explicit save or discard.
func (h *EditSessionHandler) Cleanup(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	deleted, failed := s.CleanupOrphanedFiles(c.Request.Context())
	h.Sessions.Remove(c.Param("id"))
	utils.Success(c, "Orphaned files cleaned up", gin.H{
		"deleted": deleted,
		"failed":  failed,
	})
}
