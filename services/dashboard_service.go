package services

import (
	"context"
	"fmt"

	"github.com/techzone/intervention-manager/models"
	"gorm.io/gorm"
)

// recentLimit is how many interventions the admin dashboard lists
const recentLimit = 10

// StatusCounts holds intervention counts per status. Total is always the sum
// of the others since all come from the same grouped query.
type StatusCounts struct {
	Total      int64
	Pending    int64
	InProgress int64
	Done       int64
	Cancelled  int64
}

// AdminDashboard is what the admin home page shows
type AdminDashboard struct {
	Counts            StatusCounts
	ActiveTechnicians int64
	Clients           int64
	Recent            []models.Intervention
}

// TechnicianDashboard is what a technician home page shows
type TechnicianDashboard struct {
	Counts        StatusCounts
	Interventions []models.Intervention
}

// DashboardService computes dashboard statistics
type DashboardService struct {
	db *gorm.DB
}

// NewDashboardService creates a DashboardService
func NewDashboardService(db *gorm.DB) *DashboardService {
	return &DashboardService{db: db}
}

// Admin returns global counts and the most recently created interventions
func (s *DashboardService) Admin(ctx context.Context, actor Actor) (*AdminDashboard, error) {
	if err := actor.requireRole(models.RoleAdmin); err != nil {
		return nil, err
	}

	db := s.db.WithContext(ctx)
	dashboard := &AdminDashboard{}

	counts, err := countByStatus(db.Model(&models.Intervention{}))
	if err != nil {
		return nil, err
	}
	dashboard.Counts = counts

	err = db.Model(&models.User{}).
		Where("role = ? AND active = ?", models.RoleTechnician, true).
		Count(&dashboard.ActiveTechnicians).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count technicians: %w", err)
	}

	if err := db.Model(&models.Client{}).Count(&dashboard.Clients).Error; err != nil {
		return nil, fmt.Errorf("failed to count clients: %w", err)
	}

	err = db.Preload("Client").Preload("Technician").
		Order("created_at DESC, id DESC").
		Limit(recentLimit).
		Find(&dashboard.Recent).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load recent interventions: %w", err)
	}

	return dashboard, nil
}

// Technician returns the actor's own interventions and their counts
func (s *DashboardService) Technician(ctx context.Context, actor Actor) (*TechnicianDashboard, error) {
	if err := actor.requireRole(models.RoleTechnician); err != nil {
		return nil, err
	}

	db := s.db.WithContext(ctx)
	dashboard := &TechnicianDashboard{}

	counts, err := countByStatus(db.Model(&models.Intervention{}).Where("technician_id = ?", actor.ID))
	if err != nil {
		return nil, err
	}
	dashboard.Counts = counts

	err = db.Preload("Client").
		Where("technician_id = ?", actor.ID).
		Order("created_at DESC, id DESC").
		Find(&dashboard.Interventions).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load technician interventions: %w", err)
	}

	return dashboard, nil
}

func countByStatus(query *gorm.DB) (StatusCounts, error) {
	var rows []struct {
		Status string
		Count  int64
	}
	if err := query.Select("status, COUNT(*) AS count").Group("status").Scan(&rows).Error; err != nil {
		return StatusCounts{}, fmt.Errorf("failed to count interventions: %w", err)
	}

	var counts StatusCounts
	for _, row := range rows {
		counts.Total += row.Count
		switch row.Status {
		case models.StatusPending:
			counts.Pending = row.Count
		case models.StatusInProgress:
			counts.InProgress = row.Count
		case models.StatusDone:
			counts.Done = row.Count
		case models.StatusCancelled:
			counts.Cancelled = row.Count
		}
	}
	return counts, nil
}
