package services

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/techzone/intervention-manager/models"
	"github.com/techzone/intervention-manager/utils"
	"gorm.io/gorm"
)

// SeedAdmin creates the bootstrap administrator when no user holds email yet.
// It reports whether an account was created.
func SeedAdmin(ctx context.Context, db *gorm.DB, email, password string, cost int) (bool, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return false, nil
	}

	var existing int64
	if err := db.WithContext(ctx).Model(&models.User{}).Where("email = ?", email).Count(&existing).Error; err != nil {
		return false, fmt.Errorf("failed to check seed admin: %w", err)
	}
	if existing > 0 {
		return false, nil
	}

	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return false, err
	}

	admin := &models.User{
		Name:         "Administrateur",
		Email:        email,
		PasswordHash: hash,
		Role:         models.RoleAdmin,
		Active:       true,
	}
	if err := db.WithContext(ctx).Create(admin).Error; err != nil {
		return false, fmt.Errorf("failed to create seed admin: %w", err)
	}

	log.Info().Str("email", email).Msg("seed administrator created")
	return true, nil
}
