// Package routes assembles the gin engine: global middleware, the two
// role-gated page trees and the operational endpoints.
package routes

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/techzone/intervention-manager/controllers"
	"github.com/techzone/intervention-manager/metrics"
	"github.com/techzone/intervention-manager/middleware"
	"github.com/techzone/intervention-manager/models"
	"github.com/techzone/intervention-manager/services"
	"github.com/techzone/intervention-manager/sessions"
	"github.com/techzone/intervention-manager/templates"
	"github.com/techzone/intervention-manager/utils"
	"gorm.io/gorm"
)

// Deps are the collaborators the handlers need, built once in main
type Deps struct {
	DB            *gorm.DB
	Sessions      *sessions.Manager
	Auth          *services.AuthService
	Interventions *services.InterventionService
	Directory     *services.DirectoryService
	Dashboard     *services.DashboardService
	// UploadDir enables GET /uploads/:filename when photos are stored locally
	UploadDir          string
	CORSAllowedOrigins []string
}

// New builds the HTTP handler
func New(deps Deps) (*gin.Engine, error) {
	tmpl, err := templates.Load()
	if err != nil {
		return nil, err
	}
	if deps.DB == nil || deps.Sessions == nil || deps.Auth == nil {
		return nil, fmt.Errorf("routes: database, session manager and auth service are required")
	}

	router := gin.New()
	router.SetHTMLTemplate(tmpl)
	router.MaxMultipartMemory = utils.MaxFileSize

	router.Use(
		middleware.RequestID(),
		middleware.RequestLogger(),
		metrics.GinMiddleware(),
		middleware.Recovery(),
		middleware.ErrorHandler(),
	)

	if len(deps.CORSAllowedOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:     deps.CORSAllowedOrigins,
			AllowMethods:     []string{"GET", "POST"},
			AllowHeaders:     []string{"Origin", "Content-Type", middleware.RequestIDKey},
			ExposeHeaders:    []string{middleware.RequestIDKey},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	health := controllers.NewHealthController(deps.DB)
	router.GET("/health", health.HealthCheck)
	router.GET("/health/database", health.DatabaseStatus)
	router.GET("/metrics", metrics.Handler())

	authController := controllers.NewAuthController(deps.Auth, deps.Sessions)
	admin := controllers.NewAdminController(deps.Interventions, deps.Directory, deps.Dashboard)
	technician := controllers.NewTechnicianController(deps.Interventions, deps.Dashboard)

	app := router.Group("/", middleware.LoadSession(deps.Sessions))
	app.GET("/", authController.Home)

	auth := app.Group("/auth")
	{
		auth.GET("/login", authController.ShowLogin)
		auth.POST("/login", authController.Login)
		auth.GET("/logout", authController.Logout)
	}

	if deps.UploadDir != "" {
		uploads := controllers.NewUploadController(deps.UploadDir)
		app.GET("/uploads/:filename", middleware.RequireAuth(), uploads.GetUploadedImage)
	}

	adminGroup := app.Group("/admin", middleware.RequireRole(deps.Auth, models.RoleAdmin))
	{
		adminGroup.GET("/dashboard", admin.Dashboard)

		adminGroup.GET("/interventions", admin.ListInterventions)
		adminGroup.POST("/interventions", admin.CreateIntervention)
		adminGroup.GET("/interventions/nouvelle", admin.NewIntervention)
		adminGroup.GET("/interventions/:id", admin.ShowIntervention)
		adminGroup.POST("/interventions/:id/annuler", admin.CancelIntervention)
		adminGroup.POST("/interventions/:id/attribuer", admin.AssignTechnician)

		adminGroup.GET("/techniciens", admin.ListTechnicians)
		adminGroup.POST("/techniciens", admin.CreateTechnician)
		adminGroup.POST("/techniciens/:id/activation", admin.SetTechnicianActive)

		adminGroup.GET("/clients", admin.ListClients)
		adminGroup.POST("/clients", admin.CreateClient)
		adminGroup.GET("/clients/:id", admin.ShowClient)
		adminGroup.POST("/clients/:id", admin.UpdateClient)
	}

	technicianGroup := app.Group("/technicien", middleware.RequireRole(deps.Auth, models.RoleTechnician))
	{
		technicianGroup.GET("/dashboard", technician.Dashboard)
		technicianGroup.GET("/interventions/:id", technician.ShowIntervention)
		technicianGroup.POST("/interventions/:id/commencer", technician.StartIntervention)
		technicianGroup.POST("/interventions/:id/terminer", technician.CompleteIntervention)
		technicianGroup.POST("/interventions/:id/update", technician.UpdateIntervention)
		technicianGroup.POST("/interventions/:id/photo", technician.UploadPhoto)
	}

	router.NoRoute(middleware.LoadSession(deps.Sessions), func(c *gin.Context) {
		middleware.RenderError(c, http.StatusNotFound)
	})

	return router, nil
}
