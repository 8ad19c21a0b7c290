package services

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/techzone/intervention-manager/metrics"
	"github.com/techzone/intervention-manager/models"
	"github.com/techzone/intervention-manager/utils"
	"gorm.io/gorm"
)

// scheduleLayouts are the accepted forms of a scheduled date, the first being
// what an HTML datetime-local input submits
var scheduleLayouts = []string{"2006-01-02T15:04", "2006-01-02 15:04", "2006-01-02"}

// InterventionInput is the admin form for a new intervention
type InterventionInput struct {
	Title       string
	Description string
	ClientID    uint
	Priority    string
	ScheduledAt string
}

// Outcome is what a technician reports about the work done
type Outcome struct {
	ProblemFound  string
	WorkPerformed string
	Comments      string
}

// InterventionService runs the intervention lifecycle. Every write that depends
// on the current status or owner is one conditional UPDATE, so two concurrent
// requests can never both move the same intervention.
type InterventionService struct {
	db     *gorm.DB
	images ImageService
	now    func() time.Time
}

// NewInterventionService creates an InterventionService
func NewInterventionService(db *gorm.DB, images ImageService) *InterventionService {
	return &InterventionService{db: db, images: images, now: time.Now}
}

// Create registers a pending, unassigned intervention
func (s *InterventionService) Create(ctx context.Context, actor Actor, input InterventionInput) (*models.Intervention, error) {
	if err := actor.requireRole(models.RoleAdmin); err != nil {
		return nil, err
	}

	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, invalid("title", "Title is required")
	}
	description := strings.TrimSpace(input.Description)
	if description == "" {
		return nil, invalid("description", "Description is required")
	}
	if input.ClientID == 0 {
		return nil, invalid("client_id", "Client is required")
	}

	priority := strings.TrimSpace(input.Priority)
	if priority == "" {
		priority = models.PriorityNormal
	}
	if !models.ValidPriority(priority) {
		return nil, invalid("priority", "Priority must be one of low, normal, high, urgent")
	}

	scheduledAt, err := parseSchedule(input.ScheduledAt)
	if err != nil {
		return nil, err
	}

	var clients int64
	if err := s.db.WithContext(ctx).Model(&models.Client{}).Where("id = ?", input.ClientID).Count(&clients).Error; err != nil {
		return nil, fmt.Errorf("failed to check client: %w", err)
	}
	if clients == 0 {
		return nil, invalid("client_id", "Client does not exist")
	}

	now := s.now()
	intervention := &models.Intervention{
		Title:       title,
		Description: description,
		Status:      models.StatusPending,
		Priority:    priority,
		ScheduledAt: scheduledAt,
		ClientID:    input.ClientID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.db.WithContext(ctx).Omit("Client", "Technician").Create(intervention).Error; err != nil {
		return nil, fmt.Errorf("failed to create intervention: %w", err)
	}

	metrics.ObserveTransition("create")
	log.Info().Uint("user_id", actor.ID).Uint("intervention_id", intervention.ID).Msg("intervention created")
	return intervention, nil
}

// AssignTechnician hands an open intervention to an active technician and
// moves it to in_progress. Assigning a terminal intervention does nothing.
func (s *InterventionService) AssignTechnician(ctx context.Context, actor Actor, id, technicianID uint) error {
	if err := actor.requireRole(models.RoleAdmin); err != nil {
		return err
	}
	if technicianID == 0 {
		return invalid("technician_id", "Technician is required")
	}

	// The eligibility of the technician is part of the update predicate so a
	// deactivation cannot slip in between a check and the write
	res := s.db.WithContext(ctx).Model(&models.Intervention{}).
		Where("id = ? AND status IN ?", id, models.OpenStatuses).
		Where("EXISTS (SELECT 1 FROM users WHERE users.id = ? AND users.role = ? AND users.active = ?)",
			technicianID, models.RoleTechnician, true).
		Updates(map[string]interface{}{
			"technician_id": technicianID,
			"status":        models.StatusInProgress,
			"updated_at":    s.now(),
		})
	if res.Error == nil && res.RowsAffected == 0 {
		if err := s.CheckTechnician(ctx, actor, technicianID); err != nil {
			return err
		}
	}
	return s.settle(ctx, res, "assign", actor, id, nil)
}

// CheckTechnician reports whether technicianID names an active technician
// that work can be assigned to
func (s *InterventionService) CheckTechnician(ctx context.Context, actor Actor, technicianID uint) error {
	if err := actor.requireRole(models.RoleAdmin); err != nil {
		return err
	}
	if technicianID == 0 {
		return invalid("technician_id", "Technician is required")
	}

	var technicians int64
	err := s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ? AND role = ? AND active = ?", technicianID, models.RoleTechnician, true).
		Count(&technicians).Error
	if err != nil {
		return fmt.Errorf("failed to check technician: %w", err)
	}
	if technicians == 0 {
		return invalid("technician_id", "Technician must be an active technician")
	}
	return nil
}

// Cancel closes an open intervention. Cancelling a terminal one is a no-op.
func (s *InterventionService) Cancel(ctx context.Context, actor Actor, id uint) error {
	if err := actor.requireRole(models.RoleAdmin); err != nil {
		return err
	}

	res := s.db.WithContext(ctx).Model(&models.Intervention{}).
		Where("id = ? AND status IN ?", id, models.OpenStatuses).
		Updates(map[string]interface{}{
			"status":     models.StatusCancelled,
			"updated_at": s.now(),
		})
	return s.settle(ctx, res, "cancel", actor, id, nil)
}

// Start marks the technician's own intervention as in progress and records
// now as its start time. Starting it again moves started_at forward.
func (s *InterventionService) Start(ctx context.Context, actor Actor, id uint) error {
	if err := actor.requireRole(models.RoleTechnician); err != nil {
		return err
	}

	now := s.now()
	res := s.db.WithContext(ctx).Model(&models.Intervention{}).
		Where("id = ? AND technician_id = ? AND status IN ?", id, actor.ID, models.OpenStatuses).
		Updates(map[string]interface{}{
			"status":     models.StatusInProgress,
			"started_at": now,
			"updated_at": now,
		})
	return s.settle(ctx, res, "start", actor, id, &actor.ID)
}

// Complete closes the technician's own intervention with its outcome. When
// the intervention was already closed, by a cancel for instance, its status
// is left alone but the outcome is still stored.
func (s *InterventionService) Complete(ctx context.Context, actor Actor, id uint, outcome Outcome) error {
	if err := actor.requireRole(models.RoleTechnician); err != nil {
		return err
	}

	now := s.now()
	res := s.db.WithContext(ctx).Model(&models.Intervention{}).
		Where("id = ? AND technician_id = ? AND status IN ?", id, actor.ID, models.OpenStatuses).
		Updates(map[string]interface{}{
			"status":         models.StatusDone,
			"finished_at":    now,
			"problem_found":  outcome.ProblemFound,
			"work_performed": outcome.WorkPerformed,
			"comments":       outcome.Comments,
			"updated_at":     now,
		})
	if res.Error == nil && res.RowsAffected == 0 {
		return s.UpdateNotes(ctx, actor, id, outcome)
	}
	return s.settle(ctx, res, "complete", actor, id, &actor.ID)
}

// UpdateNotes rewrites the outcome fields of the technician's own
// intervention without touching its status
func (s *InterventionService) UpdateNotes(ctx context.Context, actor Actor, id uint, outcome Outcome) error {
	if err := actor.requireRole(models.RoleTechnician); err != nil {
		return err
	}

	res := s.db.WithContext(ctx).Model(&models.Intervention{}).
		Where("id = ? AND technician_id = ?", id, actor.ID).
		Updates(map[string]interface{}{
			"problem_found":  outcome.ProblemFound,
			"work_performed": outcome.WorkPerformed,
			"comments":       outcome.Comments,
			"updated_at":     s.now(),
		})
	return s.settle(ctx, res, "notes", actor, id, &actor.ID)
}

// AttachPhoto stores a PNG for the technician's own intervention, replacing
// any previous photo
func (s *InterventionService) AttachPhoto(ctx context.Context, actor Actor, id uint, fileHeader *multipart.FileHeader) error {
	if err := actor.requireRole(models.RoleTechnician); err != nil {
		return err
	}

	previous, err := s.ownedPhotoKey(ctx, id, actor.ID)
	if err != nil {
		return err
	}

	key, err := s.images.UploadImage(ctx, fileHeader)
	if err != nil {
		var uploadErr *utils.FileUploadError
		if errors.As(err, &uploadErr) {
			return invalid("photo", uploadErr.Message)
		}
		return err
	}

	res := s.db.WithContext(ctx).Model(&models.Intervention{}).
		Where("id = ? AND technician_id = ?", id, actor.ID).
		Updates(map[string]interface{}{
			"photo_key":  key,
			"updated_at": s.now(),
		})
	if res.Error != nil || res.RowsAffected == 0 {
		s.discardImage(ctx, key)
	}
	if res.Error != nil {
		return fmt.Errorf("failed to attach photo to intervention %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}

	if previous != "" {
		s.discardImage(ctx, previous)
	}

	metrics.ObserveTransition("photo")
	log.Info().Uint("user_id", actor.ID).Uint("intervention_id", id).Msg("intervention photo attached")
	return nil
}

// Get loads one intervention with its client and technician. Technicians only
// see their own interventions; anything else is ErrNotFound.
func (s *InterventionService) Get(ctx context.Context, actor Actor, id uint) (*models.Intervention, error) {
	query, err := s.scoped(ctx, actor)
	if err != nil {
		return nil, err
	}

	var intervention models.Intervention
	err = query.Preload("Client").Preload("Technician").Where("interventions.id = ?", id).First(&intervention).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load intervention %d: %w", id, err)
	}

	s.resolvePhotoURL(ctx, &intervention)
	return &intervention, nil
}

// List returns the interventions visible to actor, newest first
func (s *InterventionService) List(ctx context.Context, actor Actor) ([]models.Intervention, error) {
	query, err := s.scoped(ctx, actor)
	if err != nil {
		return nil, err
	}

	var interventions []models.Intervention
	err = query.Preload("Client").Preload("Technician").
		Order("created_at DESC, id DESC").
		Find(&interventions).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list interventions: %w", err)
	}
	return interventions, nil
}

// scoped returns a query limited to what actor may see
func (s *InterventionService) scoped(ctx context.Context, actor Actor) (*gorm.DB, error) {
	query := s.db.WithContext(ctx).Model(&models.Intervention{})
	switch actor.Role {
	case models.RoleAdmin:
		if actor.ID == 0 {
			return nil, ErrForbidden
		}
		return query, nil
	case models.RoleTechnician:
		if actor.ID == 0 {
			return nil, ErrForbidden
		}
		return query.Where("technician_id = ?", actor.ID), nil
	default:
		return nil, ErrForbidden
	}
}

// settle interprets the result of a conditional update. When no row matched,
// an existence read scoped to the same owner tells a missing (or foreign)
// intervention from one whose status no longer allows the transition.
func (s *InterventionService) settle(ctx context.Context, res *gorm.DB, transition string, actor Actor, id uint, ownerID *uint) error {
	if res.Error != nil {
		return fmt.Errorf("failed to %s intervention %d: %w", transition, id, res.Error)
	}

	if res.RowsAffected == 0 {
		query := s.db.WithContext(ctx).Model(&models.Intervention{}).Where("id = ?", id)
		if ownerID != nil {
			query = query.Where("technician_id = ?", *ownerID)
		}
		var count int64
		if err := query.Count(&count).Error; err != nil {
			return fmt.Errorf("failed to check intervention %d: %w", id, err)
		}
		if count == 0 {
			return ErrNotFound
		}
		log.Debug().Uint("user_id", actor.ID).Uint("intervention_id", id).Str("transition", transition).Msg("transition skipped on closed intervention")
		return nil
	}

	metrics.ObserveTransition(transition)
	log.Info().Uint("user_id", actor.ID).Uint("intervention_id", id).Str("transition", transition).Msg("intervention updated")
	return nil
}

func (s *InterventionService) ownedPhotoKey(ctx context.Context, id, technicianID uint) (string, error) {
	var intervention models.Intervention
	err := s.db.WithContext(ctx).Select("id", "photo_key").
		Where("id = ? AND technician_id = ?", id, technicianID).
		First(&intervention).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to load intervention %d: %w", id, err)
	}
	if intervention.PhotoKey == nil {
		return "", nil
	}
	return *intervention.PhotoKey, nil
}

func (s *InterventionService) resolvePhotoURL(ctx context.Context, intervention *models.Intervention) {
	if intervention.PhotoKey == nil || *intervention.PhotoKey == "" {
		return
	}
	url, err := s.images.GetImageURL(ctx, *intervention.PhotoKey)
	if err != nil {
		log.Warn().Err(err).Uint("intervention_id", intervention.ID).Msg("failed to resolve photo URL")
		return
	}
	intervention.PhotoURL = url
}

func (s *InterventionService) discardImage(ctx context.Context, key string) {
	if err := s.images.DeleteImage(ctx, key); err != nil {
		log.Warn().Err(err).Str("image_key", key).Msg("failed to delete image")
	}
}

func parseSchedule(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	for _, layout := range scheduleLayouts {
		if t, err := time.ParseInLocation(layout, raw, time.Local); err == nil {
			return &t, nil
		}
	}
	return nil, invalid("scheduled_at", "Scheduled date is not a valid date")
}
