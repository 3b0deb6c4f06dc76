package handlers

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"clinic-records-server/internal/models"
	"clinic-records-server/internal/utils"
)

// ClinicHandler handles clinic related requests.
type ClinicHandler struct {
	DB *gorm.DB
}

// NewClinicHandler creates a new ClinicHandler.
func NewClinicHandler(db *gorm.DB) *ClinicHandler {
	return &ClinicHandler{DB: db}
}

// CreateClinicRequest represents the request body for creating a clinic.
type CreateClinicRequest struct {
	Name        string `json:"name" binding:"required"`
	Address     string `json:"address"`
	PhoneNumber string `json:"phoneNumber"`
}

// CreateClinic creates a new clinic.
func (h *ClinicHandler) CreateClinic(c *gin.Context) {
	var req CreateClinicRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}
	clinic := models.Clinic{
		Name:        req.Name,
		Address:     req.Address,
		PhoneNumber: req.PhoneNumber,
	}
	if err := h.DB.Create(&clinic).Error; err != nil {
		utils.InternalServerError(c, "Failed to create clinic: "+err.Error())
		return
	}
	utils.Created(c, "Clinic created successfully", clinic)
}

// GetClinics lists all clinics.
func (h *ClinicHandler) GetClinics(c *gin.Context) {
	var clinics []models.Clinic
	if err := h.DB.Order("name").Find(&clinics).Error; err != nil {
		utils.InternalServerError(c, "Failed to fetch clinics: "+err.Error())
		return
	}
	utils.Success(c, "Clinics fetched successfully", clinics)
}
