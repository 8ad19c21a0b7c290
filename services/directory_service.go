package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/techzone/intervention-manager/models"
	"github.com/techzone/intervention-manager/utils"
	"gorm.io/gorm"
)

// ClientInput is the admin form for a client. Optional fields are stored as
// NULL when left blank.
type ClientInput struct {
	Name      string
	Email     string
	Phone     string
	Address   string
	Latitude  string
	Longitude string
}

// TechnicianInput is the admin form for a new technician account
type TechnicianInput struct {
	Name     string
	Email    string
	Password string
}

// DirectoryService manages clients and technician accounts. Every method is
// restricted to administrators.
type DirectoryService struct {
	db         *gorm.DB
	bcryptCost int
}

// NewDirectoryService creates a DirectoryService hashing passwords with bcryptCost
func NewDirectoryService(db *gorm.DB, bcryptCost int) *DirectoryService {
	return &DirectoryService{db: db, bcryptCost: bcryptCost}
}

// CreateClient registers a new client
func (s *DirectoryService) CreateClient(ctx context.Context, actor Actor, input ClientInput) (*models.Client, error) {
	if err := actor.requireRole(models.RoleAdmin); err != nil {
		return nil, err
	}

	client := &models.Client{}
	if err := applyClientInput(client, input); err != nil {
		return nil, err
	}

	if err := s.db.WithContext(ctx).Create(client).Error; err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	log.Info().Uint("user_id", actor.ID).Uint("client_id", client.ID).Msg("client created")
	return client, nil
}

// UpdateClient replaces every editable field of a client
func (s *DirectoryService) UpdateClient(ctx context.Context, actor Actor, id uint, input ClientInput) (*models.Client, error) {
	client, err := s.GetClient(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	if err := applyClientInput(client, input); err != nil {
		return nil, err
	}

	// Select("*") so cleared optional fields are written back as NULL
	if err := s.db.WithContext(ctx).Model(client).Select("*").Omit("created_at").Updates(client).Error; err != nil {
		return nil, fmt.Errorf("failed to update client %d: %w", id, err)
	}

	log.Info().Uint("user_id", actor.ID).Uint("client_id", client.ID).Msg("client updated")
	return client, nil
}

// GetClient loads one client
func (s *DirectoryService) GetClient(ctx context.Context, actor Actor, id uint) (*models.Client, error) {
	if err := actor.requireRole(models.RoleAdmin); err != nil {
		return nil, err
	}

	var client models.Client
	err := s.db.WithContext(ctx).First(&client, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load client %d: %w", id, err)
	}
	return &client, nil
}

// ListClients returns every client ordered by name
func (s *DirectoryService) ListClients(ctx context.Context, actor Actor) ([]models.Client, error) {
	if err := actor.requireRole(models.RoleAdmin); err != nil {
		return nil, err
	}

	var clients []models.Client
	if err := s.db.WithContext(ctx).Order("name ASC, id ASC").Find(&clients).Error; err != nil {
		return nil, fmt.Errorf("failed to list clients: %w", err)
	}
	return clients, nil
}

// CreateTechnician opens a technician account. The role is always technician,
// whatever the form carried.
func (s *DirectoryService) CreateTechnician(ctx context.Context, actor Actor, input TechnicianInput) (*models.User, error) {
	if err := actor.requireRole(models.RoleAdmin); err != nil {
		return nil, err
	}

	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, invalid("name", "Name is required")
	}
	email := normalizeEmail(input.Email)
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, invalid("email", "Email is not valid")
	}
	if len(input.Password) < utils.MinPasswordLength {
		return nil, invalid("password", fmt.Sprintf("Password must be at least %d characters", utils.MinPasswordLength))
	}

	var existing int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("email = ?", email).Count(&existing).Error; err != nil {
		return nil, fmt.Errorf("failed to check email: %w", err)
	}
	if existing > 0 {
		return nil, invalid("email", "A user with this email already exists")
	}

	hash, err := utils.HashPassword(input.Password, s.bcryptCost)
	if err != nil {
		return nil, err
	}

	technician := &models.User{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         models.RoleTechnician,
		Active:       true,
	}
	if err := s.db.WithContext(ctx).Create(technician).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, invalid("email", "A user with this email already exists")
		}
		return nil, fmt.Errorf("failed to create technician: %w", err)
	}

	log.Info().Uint("user_id", actor.ID).Uint("technician_id", technician.ID).Msg("technician created")
	return technician, nil
}

// ListTechnicians returns every technician, active or not, ordered by name
func (s *DirectoryService) ListTechnicians(ctx context.Context, actor Actor) ([]models.User, error) {
	return s.listTechnicians(ctx, actor, false)
}

// ListActiveTechnicians returns the technicians that can be assigned work
func (s *DirectoryService) ListActiveTechnicians(ctx context.Context, actor Actor) ([]models.User, error) {
	return s.listTechnicians(ctx, actor, true)
}

func (s *DirectoryService) listTechnicians(ctx context.Context, actor Actor, activeOnly bool) ([]models.User, error) {
	if err := actor.requireRole(models.RoleAdmin); err != nil {
		return nil, err
	}

	query := s.db.WithContext(ctx).Where("role = ?", models.RoleTechnician)
	if activeOnly {
		query = query.Where("active = ?", true)
	}

	var technicians []models.User
	if err := query.Order("name ASC, id ASC").Find(&technicians).Error; err != nil {
		return nil, fmt.Errorf("failed to list technicians: %w", err)
	}
	return technicians, nil
}

// SetTechnicianActive enables or disables a technician account. A disabled
// technician can no longer log in, and any open session stops passing the
// role gate on its next request.
func (s *DirectoryService) SetTechnicianActive(ctx context.Context, actor Actor, id uint, active bool) error {
	if err := actor.requireRole(models.RoleAdmin); err != nil {
		return err
	}

	res := s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ? AND role = ?", id, models.RoleTechnician).
		Update("active", active)
	if res.Error != nil {
		return fmt.Errorf("failed to update technician %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}

	log.Info().Uint("user_id", actor.ID).Uint("technician_id", id).Bool("active", active).Msg("technician activation changed")
	return nil
}

func applyClientInput(client *models.Client, input ClientInput) error {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return invalid("name", "Name is required")
	}

	email := optionalString(input.Email)
	if email != nil {
		if _, err := mail.ParseAddress(*email); err != nil {
			return invalid("email", "Email is not valid")
		}
	}

	latitude, err := optionalFloat("latitude", "Latitude", input.Latitude, 90)
	if err != nil {
		return err
	}
	longitude, err := optionalFloat("longitude", "Longitude", input.Longitude, 180)
	if err != nil {
		return err
	}

	client.Name = name
	client.Email = email
	client.Phone = optionalString(input.Phone)
	client.Address = optionalString(input.Address)
	client.Latitude = latitude
	client.Longitude = longitude
	return nil
}

func optionalString(raw string) *string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	return &raw
}

func optionalFloat(field, label, raw string, limit float64) (*float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v < -limit || v > limit {
		return nil, invalid(field, fmt.Sprintf("%s must be a number between -%g and %g", label, limit, limit))
	}
	return &v, nil
}
