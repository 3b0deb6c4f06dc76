package routes

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"clinic-records-server/internal/config"
	"clinic-records-server/internal/handlers"
	"clinic-records-server/internal/models"
	"clinic-records-server/internal/records"
	"clinic-records-server/internal/storage"
)

// SetupRoutes configures the application routes.
func SetupRoutes(router *gin.Engine, db *gorm.DB, store storage.ObjectStore, cfg *config.Config, logger *zap.Logger) {
	repo := models.NewPatientRepository(db)
	coordinator := records.NewDeletionCoordinator(store, repo, logger)
	sessions := handlers.NewSessionManager()

	clinicHandler := handlers.NewClinicHandler(db)
	patientHandler := handlers.NewPatientHandler(db, repo, coordinator)
	sessionHandler := handlers.NewEditSessionHandler(repo, store, sessions, logger)

	api := router.Group("/api/v1")
	{
		clinicRoutes := api.Group("/clinics")
		{
			clinicRoutes.POST("", clinicHandler.CreateClinic)
			clinicRoutes.GET("", clinicHandler.GetClinics)
		}

		patientRoutes := api.Group("/patients")
		{
			patientRoutes.POST("", patientHandler.CreatePatient)
			patientRoutes.GET("", patientHandler.GetPatients)
			patientRoutes.GET("/:id", patientHandler.GetPatientByID)

			// Cascading deletion: removes the patient row and every
			// attachment the patient owns, honoring ?force=true.
			patientRoutes.DELETE("/:id", patientHandler.DeletePatient)

			// Staged edit session: all edits go through an in-memory
			// buffer; remote storage is only touched on save/discard.
			sessionRoutes := patientRoutes.Group("/:id/edit-session")
			{
				sessionRoutes.POST("", sessionHandler.OpenSession)
				sessionRoutes.GET("", sessionHandler.GetSession)
				sessionRoutes.PATCH("/fields", sessionHandler.UpdateFields)
				sessionRoutes.POST("/records", sessionHandler.AddRecord)
				sessionRoutes.PUT("/records/:recordId", sessionHandler.UpdateRecord)
				sessionRoutes.DELETE("/records/:recordId", sessionHandler.MarkRecordDeleted)
				sessionRoutes.POST("/records/:recordId/attachments", sessionHandler.UploadAttachment)
				sessionRoutes.DELETE("/records/:recordId/attachments", sessionHandler.DetachAttachment)
				sessionRoutes.GET("/pending", sessionHandler.ListPendingOps)
				sessionRoutes.POST("/pending/:index/undo", sessionHandler.UndoPendingOp)
				sessionRoutes.POST("/save", sessionHandler.Save)
				sessionRoutes.POST("/discard", sessionHandler.Discard)
				sessionRoutes.POST("/cleanup", sessionHandler.Cleanup)
			}
		}
	}

	// Simple health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "UP"})
	})
}
