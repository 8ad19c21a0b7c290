package controllers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/techzone/intervention-manager/services"
)

const (
	adminDashboardPage          = "admin_dashboard.html"
	adminInterventionsPage      = "admin_interventions.html"
	adminNewInterventionPage    = "admin_intervention_new.html"
	adminInterventionDetailPage = "admin_intervention_detail.html"
	adminTechniciansPage        = "admin_technicians.html"
	adminClientsPage            = "admin_clients.html"
	adminClientDetailPage       = "admin_client_detail.html"
)

type interventionForm struct {
	Title        string `form:"title" validate:"required"`
	Description  string `form:"description" validate:"required"`
	ClientID     uint   `form:"client_id" validate:"required"`
	Priority     string `form:"priority" validate:"omitempty,oneof=low normal high urgent"`
	ScheduledAt  string `form:"scheduled_at"`
	TechnicianID uint   `form:"technician_id"`
}

type assignForm struct {
	TechnicianID uint `form:"technician_id" validate:"required"`
}

type technicianForm struct {
	Name     string `form:"name" validate:"required"`
	Email    string `form:"email" validate:"required,email"`
	Password string `form:"password" validate:"required,min=8"`
}

type activationForm struct {
	Active bool `form:"active"`
}

type clientForm struct {
	Name      string `form:"name" validate:"required"`
	Email     string `form:"email" validate:"omitempty,email"`
	Phone     string `form:"phone"`
	Address   string `form:"address"`
	Latitude  string `form:"latitude"`
	Longitude string `form:"longitude"`
}

func (f clientForm) input() services.ClientInput {
	return services.ClientInput{
		Name:      f.Name,
		Email:     f.Email,
		Phone:     f.Phone,
		Address:   f.Address,
		Latitude:  f.Latitude,
		Longitude: f.Longitude,
	}
}

// AdminController serves the /admin pages
type AdminController struct {
	interventions *services.InterventionService
	directory     *services.DirectoryService
	dashboard     *services.DashboardService
}

// NewAdminController creates an AdminController
func NewAdminController(interventions *services.InterventionService, directory *services.DirectoryService, dashboard *services.DashboardService) *AdminController {
	return &AdminController{interventions: interventions, directory: directory, dashboard: dashboard}
}

// Dashboard handles GET /admin/dashboard
func (ac *AdminController) Dashboard(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	dashboard, err := ac.dashboard.Admin(c.Request.Context(), actor)
	if err != nil {
		abortWithError(c, err)
		return
	}

	render(c, http.StatusOK, adminDashboardPage, gin.H{"Title": "Dashboard", "Dashboard": dashboard})
}

// ListInterventions handles GET /admin/interventions
func (ac *AdminController) ListInterventions(c *gin.Context) {
	ac.renderInterventions(c, http.StatusOK, nil)
}

// NewIntervention handles GET /admin/interventions/nouvelle
func (ac *AdminController) NewIntervention(c *gin.Context) {
	ac.renderNewIntervention(c, http.StatusOK, nil)
}

// CreateIntervention handles POST /admin/interventions. A technician picked
// on the form is checked first and assigned right after creation.
func (ac *AdminController) CreateIntervention(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	var form interventionForm
	if verr := bindForm(c, &form); verr != nil {
		ac.renderNewIntervention(c, http.StatusUnprocessableEntity, verr)
		return
	}

	if form.TechnicianID != 0 {
		if err := ac.interventions.CheckTechnician(c.Request.Context(), actor, form.TechnicianID); err != nil {
			if verr, ok := asValidation(err); ok {
				ac.renderNewIntervention(c, http.StatusUnprocessableEntity, verr)
				return
			}
			abortWithError(c, err)
			return
		}
	}

	intervention, err := ac.interventions.Create(c.Request.Context(), actor, services.InterventionInput{
		Title:       form.Title,
		Description: form.Description,
		ClientID:    form.ClientID,
		Priority:    form.Priority,
		ScheduledAt: form.ScheduledAt,
	})
	if err != nil {
		if verr, ok := asValidation(err); ok {
			ac.renderNewIntervention(c, http.StatusUnprocessableEntity, verr)
			return
		}
		abortWithError(c, err)
		return
	}

	if form.TechnicianID != 0 {
		err := ac.interventions.AssignTechnician(c.Request.Context(), actor, intervention.ID, form.TechnicianID)
		if err != nil {
			if verr, ok := asValidation(err); ok {
				ac.renderInterventionDetail(c, http.StatusUnprocessableEntity, intervention.ID, verr)
				return
			}
			abortWithError(c, err)
			return
		}
	}

	c.Redirect(http.StatusFound, "/admin/interventions")
}

// ShowIntervention handles GET /admin/interventions/:id
func (ac *AdminController) ShowIntervention(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	ac.renderInterventionDetail(c, http.StatusOK, id, nil)
}

// CancelIntervention handles POST /admin/interventions/:id/annuler
func (ac *AdminController) CancelIntervention(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := parseID(c)
	if !ok {
		return
	}

	if err := ac.interventions.Cancel(c.Request.Context(), actor, id); err != nil {
		abortWithError(c, err)
		return
	}

	c.Redirect(http.StatusFound, "/admin/interventions")
}

// AssignTechnician handles POST /admin/interventions/:id/attribuer
func (ac *AdminController) AssignTechnician(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := parseID(c)
	if !ok {
		return
	}

	var form assignForm
	if verr := bindForm(c, &form); verr != nil {
		ac.renderInterventions(c, http.StatusUnprocessableEntity, verr)
		return
	}

	if err := ac.interventions.AssignTechnician(c.Request.Context(), actor, id, form.TechnicianID); err != nil {
		if verr, ok := asValidation(err); ok {
			ac.renderInterventions(c, http.StatusUnprocessableEntity, verr)
			return
		}
		abortWithError(c, err)
		return
	}

	c.Redirect(http.StatusFound, "/admin/interventions")
}

// ListTechnicians handles GET /admin/techniciens
func (ac *AdminController) ListTechnicians(c *gin.Context) {
	ac.renderTechnicians(c, http.StatusOK, nil)
}

// CreateTechnician handles POST /admin/techniciens
func (ac *AdminController) CreateTechnician(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	var form technicianForm
	if verr := bindForm(c, &form); verr != nil {
		ac.renderTechnicians(c, http.StatusUnprocessableEntity, verr)
		return
	}

	_, err := ac.directory.CreateTechnician(c.Request.Context(), actor, services.TechnicianInput{
		Name:     form.Name,
		Email:    form.Email,
		Password: form.Password,
	})
	if err != nil {
		if verr, ok := asValidation(err); ok {
			ac.renderTechnicians(c, http.StatusUnprocessableEntity, verr)
			return
		}
		abortWithError(c, err)
		return
	}

	c.Redirect(http.StatusFound, "/admin/techniciens")
}

// SetTechnicianActive handles POST /admin/techniciens/:id/activation
func (ac *AdminController) SetTechnicianActive(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := parseID(c)
	if !ok {
		return
	}

	var form activationForm
	if verr := bindForm(c, &form); verr != nil {
		ac.renderTechnicians(c, http.StatusUnprocessableEntity, verr)
		return
	}

	if err := ac.directory.SetTechnicianActive(c.Request.Context(), actor, id, form.Active); err != nil {
		abortWithError(c, err)
		return
	}

	c.Redirect(http.StatusFound, "/admin/techniciens")
}

// ListClients handles GET /admin/clients
func (ac *AdminController) ListClients(c *gin.Context) {
	ac.renderClients(c, http.StatusOK, nil)
}

// CreateClient handles POST /admin/clients
func (ac *AdminController) CreateClient(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	var form clientForm
	if verr := bindForm(c, &form); verr != nil {
		ac.renderClients(c, http.StatusUnprocessableEntity, verr)
		return
	}

	if _, err := ac.directory.CreateClient(c.Request.Context(), actor, form.input()); err != nil {
		if verr, ok := asValidation(err); ok {
			ac.renderClients(c, http.StatusUnprocessableEntity, verr)
			return
		}
		abortWithError(c, err)
		return
	}

	c.Redirect(http.StatusFound, "/admin/clients")
}

// ShowClient handles GET /admin/clients/:id
func (ac *AdminController) ShowClient(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	ac.renderClientDetail(c, http.StatusOK, id, nil)
}

// UpdateClient handles POST /admin/clients/:id
func (ac *AdminController) UpdateClient(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := parseID(c)
	if !ok {
		return
	}

	var form clientForm
	if verr := bindForm(c, &form); verr != nil {
		ac.renderClientDetail(c, http.StatusUnprocessableEntity, id, verr)
		return
	}

	if _, err := ac.directory.UpdateClient(c.Request.Context(), actor, id, form.input()); err != nil {
		if verr, ok := asValidation(err); ok {
			ac.renderClientDetail(c, http.StatusUnprocessableEntity, id, verr)
			return
		}
		abortWithError(c, err)
		return
	}

	c.Redirect(http.StatusFound, fmt.Sprintf("/admin/clients/%d", id))
}

func (ac *AdminController) renderInterventions(c *gin.Context, status int, verr *services.ValidationError) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	interventions, err := ac.interventions.List(c.Request.Context(), actor)
	if err != nil {
		abortWithError(c, err)
		return
	}
	technicians, err := ac.directory.ListActiveTechnicians(c.Request.Context(), actor)
	if err != nil {
		abortWithError(c, err)
		return
	}

	data := gin.H{"Title": "Interventions", "Interventions": interventions, "Technicians": technicians}
	if verr != nil {
		data["Error"] = verr
	}
	render(c, status, adminInterventionsPage, data)
}

func (ac *AdminController) renderNewIntervention(c *gin.Context, status int, verr *services.ValidationError) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	clients, err := ac.directory.ListClients(c.Request.Context(), actor)
	if err != nil {
		abortWithError(c, err)
		return
	}
	technicians, err := ac.directory.ListActiveTechnicians(c.Request.Context(), actor)
	if err != nil {
		abortWithError(c, err)
		return
	}

	data := gin.H{"Title": "New intervention", "Clients": clients, "Technicians": technicians}
	if verr != nil {
		data["Error"] = verr
	}
	render(c, status, adminNewInterventionPage, data)
}

func (ac *AdminController) renderInterventionDetail(c *gin.Context, status int, id uint, verr *services.ValidationError) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	intervention, err := ac.interventions.Get(c.Request.Context(), actor, id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	technicians, err := ac.directory.ListActiveTechnicians(c.Request.Context(), actor)
	if err != nil {
		abortWithError(c, err)
		return
	}

	data := gin.H{"Title": intervention.Title, "Intervention": intervention, "Technicians": technicians}
	if verr != nil {
		data["Error"] = verr
	}
	render(c, status, adminInterventionDetailPage, data)
}

func (ac *AdminController) renderTechnicians(c *gin.Context, status int, verr *services.ValidationError) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	technicians, err := ac.directory.ListTechnicians(c.Request.Context(), actor)
	if err != nil {
		abortWithError(c, err)
		return
	}

	data := gin.H{"Title": "Technicians", "Technicians": technicians}
	if verr != nil {
		data["Error"] = verr
	}
	render(c, status, adminTechniciansPage, data)
}

func (ac *AdminController) renderClients(c *gin.Context, status int, verr *services.ValidationError) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	clients, err := ac.directory.ListClients(c.Request.Context(), actor)
	if err != nil {
		abortWithError(c, err)
		return
	}

	data := gin.H{"Title": "Clients", "Clients": clients}
	if verr != nil {
		data["Error"] = verr
	}
	render(c, status, adminClientsPage, data)
}

func (ac *AdminController) renderClientDetail(c *gin.Context, status int, id uint, verr *services.ValidationError) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	client, err := ac.directory.GetClient(c.Request.Context(), actor, id)
	if err != nil {
		abortWithError(c, err)
		return
	}

	data := gin.H{"Title": client.Name, "Client": client}
	if verr != nil {
		data["Error"] = verr
	}
	render(c, status, adminClientDetailPage, data)
}
