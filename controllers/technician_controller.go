package controllers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/techzone/intervention-manager/services"
)

const (
	technicianDashboardPage          = "technician_dashboard.html"
	technicianInterventionDetailPage = "technician_intervention_detail.html"
)

type outcomeForm struct {
	ProblemFound  string `form:"problem_found"`
	WorkPerformed string `form:"work_performed"`
	Comments      string `form:"comments"`
}

func (f outcomeForm) outcome() services.Outcome {
	return services.Outcome{
		ProblemFound:  f.ProblemFound,
		WorkPerformed: f.WorkPerformed,
		Comments:      f.Comments,
	}
}

// TechnicianController serves the /technicien pages. Every intervention it
// touches is scoped to the signed-in technician by the service layer.
type TechnicianController struct {
	interventions *services.InterventionService
	dashboard     *services.DashboardService
}

// NewTechnicianController creates a TechnicianController
func NewTechnicianController(interventions *services.InterventionService, dashboard *services.DashboardService) *TechnicianController {
	return &TechnicianController{interventions: interventions, dashboard: dashboard}
}

// Dashboard handles GET /technicien/dashboard
func (tc *TechnicianController) Dashboard(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	dashboard, err := tc.dashboard.Technician(c.Request.Context(), actor)
	if err != nil {
		abortWithError(c, err)
		return
	}

	render(c, http.StatusOK, technicianDashboardPage, gin.H{"Title": "My interventions", "Dashboard": dashboard})
}

// ShowIntervention handles GET /technicien/interventions/:id
func (tc *TechnicianController) ShowIntervention(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	tc.renderDetail(c, http.StatusOK, id, nil)
}

// StartIntervention handles POST /technicien/interventions/:id/commencer
func (tc *TechnicianController) StartIntervention(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := parseID(c)
	if !ok {
		return
	}

	if err := tc.interventions.Start(c.Request.Context(), actor, id); err != nil {
		abortWithError(c, err)
		return
	}

	c.Redirect(http.StatusFound, detailPath(id))
}

// CompleteIntervention handles POST /technicien/interventions/:id/terminer
func (tc *TechnicianController) CompleteIntervention(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := parseID(c)
	if !ok {
		return
	}

	var form outcomeForm
	if verr := bindForm(c, &form); verr != nil {
		tc.renderDetail(c, http.StatusUnprocessableEntity, id, verr)
		return
	}

	if err := tc.interventions.Complete(c.Request.Context(), actor, id, form.outcome()); err != nil {
		abortWithError(c, err)
		return
	}

	c.Redirect(http.StatusFound, "/technicien/dashboard")
}

// UpdateIntervention handles POST /technicien/interventions/:id/update
func (tc *TechnicianController) UpdateIntervention(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := parseID(c)
	if !ok {
		return
	}

	var form outcomeForm
	if verr := bindForm(c, &form); verr != nil {
		tc.renderDetail(c, http.StatusUnprocessableEntity, id, verr)
		return
	}

	if err := tc.interventions.UpdateNotes(c.Request.Context(), actor, id, form.outcome()); err != nil {
		abortWithError(c, err)
		return
	}

	c.Redirect(http.StatusFound, detailPath(id))
}

// UploadPhoto handles POST /technicien/interventions/:id/photo
func (tc *TechnicianController) UploadPhoto(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := parseID(c)
	if !ok {
		return
	}

	// A missing file reaches the service as nil and is reported as a form error
	fileHeader, err := c.FormFile("photo")
	if err != nil && !errors.Is(err, http.ErrMissingFile) {
		tc.renderDetail(c, http.StatusUnprocessableEntity, id, &services.ValidationError{Field: "photo", Message: "The upload could not be read"})
		return
	}

	if err := tc.interventions.AttachPhoto(c.Request.Context(), actor, id, fileHeader); err != nil {
		if verr, ok := asValidation(err); ok {
			tc.renderDetail(c, http.StatusUnprocessableEntity, id, verr)
			return
		}
		abortWithError(c, err)
		return
	}

	c.Redirect(http.StatusFound, detailPath(id))
}

func (tc *TechnicianController) renderDetail(c *gin.Context, status int, id uint, verr *services.ValidationError) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	intervention, err := tc.interventions.Get(c.Request.Context(), actor, id)
	if err != nil {
		abortWithError(c, err)
		return
	}

	data := gin.H{"Title": intervention.Title, "Intervention": intervention}
	if verr != nil {
		data["Error"] = verr
	}
	render(c, status, technicianInterventionDetailPage, data)
}

func detailPath(id uint) string {
	return fmt.Sprintf("/technicien/interventions/%d", id)
}
