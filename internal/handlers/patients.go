package handlers

import (
	"errors"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"clinic-records-server/internal/models"
	"clinic-records-server/internal/records"
	"clinic-records-server/internal/utils"
)

// PatientHandler handles patient CRUD and cascading deletion.
type PatientHandler struct {
	DB          *gorm.DB
	Repo        *models.PatientRepository
	Coordinator *records.DeletionCoordinator
}

// NewPatientHandler creates a new PatientHandler.
func NewPatientHandler(db *gorm.DB, repo *models.PatientRepository, coordinator *records.DeletionCoordinator) *PatientHandler {
	return &PatientHandler{DB: db, Repo: repo, Coordinator: coordinator}
}

// CreatePatientRequest represents the request body for creating a patient.
type CreatePatientRequest struct {
	ClinicID    string `json:"clinicId" binding:"required,uuid"`
	FirstName   string `json:"firstName" binding:"required"`
	LastName    string `json:"lastName" binding:"required"`
	DateOfBirth string `json:"dateOfBirth"`
	PhoneNumber string `json:"phoneNumber"`
	Address     string `json:"address"`
}

// CreatePatient creates a new patient for a clinic.
func (h *PatientHandler) CreatePatient(c *gin.Context) {
	var req CreatePatientRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	var clinic models.Clinic
	if err := h.DB.First(&clinic, "id = ?", req.ClinicID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.NotFound(c, "Clinic not found")
		} else {
			utils.InternalServerError(c, "Database error verifying clinic: "+err.Error())
		}
		return
	}

	patient := models.Patient{
		ClinicID:    req.ClinicID,
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		PhoneNumber: req.PhoneNumber,
		Address:     req.Address,
	}
	if req.DateOfBirth != "" {
		dob, err := time.Parse(time.RFC3339, req.DateOfBirth)
		if err != nil {
			utils.BadRequest(c, "Invalid dateOfBirth, expected RFC 3339")
			return
		}
		patient.DateOfBirth = &dob
	}

	if err := h.DB.Create(&patient).Error; err != nil {
		utils.InternalServerError(c, "Failed to create patient: "+err.Error())
		return
	}
	utils.Created(c, "Patient created successfully", patient)
}

// GetPatients lists patients, optionally filtered by clinic.
func (h *PatientHandler) GetPatients(c *gin.Context) {
	query := h.DB.Order("last_name, first_name")
	if clinicID := c.Query("clinicId"); clinicID != "" {
		query = query.Where("clinic_id = ?", clinicID)
	}
	var patients []models.Patient
	if err := query.Find(&patients).Error; err != nil {
		utils.InternalServerError(c, "Failed to fetch patients: "+err.Error())
		return
	}
	utils.Success(c, "Patients fetched successfully", patients)
}

// GetPatientByID fetches a patient with the full history tree.
func (h *PatientHandler) GetPatientByID(c *gin.Context) {
	patient, err := h.Repo.LoadPatient(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.NotFound(c, "Patient not found")
		} else {
			utils.InternalServerError(c, "Failed to fetch patient: "+err.Error())
		}
		return
	}
	utils.Success(c, "Patient fetched successfully", patient)
}

// DeletePatient removes a patient and every attachment across the history
// tree. Without force=true, any storage failure leaves the patient row
// untouched and the outcome reports the counts so the operator can retry.
func (h *PatientHandler) DeletePatient(c *gin.Context) {
	patientID := c.Param("id")
	clinicID := c.Query("clinicId")
	force := strings.EqualFold(c.Query("force"), "true")

	outcome, err := h.Coordinator.DeletePatient(c.Request.Context(), patientID, clinicID, force)
	if err != nil {
		switch {
		case errors.Is(err, records.ErrValidation):
			utils.BadRequest(c, err.Error())
		case errors.Is(err, gorm.ErrRecordNotFound):
			utils.NotFound(c, "Patient not found")
		default:
			utils.InternalServerError(c, "Deletion failed: "+err.Error())
		}
		return
	}
	if !outcome.Deleted {
		utils.Success(c, "Deletion aborted: some attachments could not be removed", outcome)
		return
	}
	utils.Success(c, "Patient deleted", outcome)
}
