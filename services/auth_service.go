package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/techzone/intervention-manager/metrics"
	"github.com/techzone/intervention-manager/models"
	"github.com/techzone/intervention-manager/utils"
	"gorm.io/gorm"
)

// AuthService verifies credentials and reloads users for the session gate
type AuthService struct {
	db *gorm.DB
	// dummyHash is compared against when the email is unknown so that
	// a miss costs the same bcrypt work as a wrong password
	dummyHash string
}

// NewAuthService creates an AuthService hashing its timing guard with cost
func NewAuthService(db *gorm.DB, cost int) (*AuthService, error) {
	hash, err := utils.HashPassword("timing-guard-password", cost)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare auth service: %w", err)
	}
	return &AuthService{db: db, dummyHash: hash}, nil
}

// Authenticate returns the active user matching email and password.
// Unknown email, inactive account and wrong password all yield ErrInvalidCredentials.
func (s *AuthService) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	email = normalizeEmail(email)

	var user models.User
	err := s.db.WithContext(ctx).
		Where("email = ? AND active = ?", email, true).
		First(&user).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("failed to look up user: %w", err)
		}
		utils.CheckPasswordHash(password, s.dummyHash)
		metrics.ObserveLogin("failure")
		return nil, ErrInvalidCredentials
	}

	if !utils.CheckPasswordHash(password, user.PasswordHash) {
		metrics.ObserveLogin("failure")
		log.Info().Uint("user_id", user.ID).Msg("login rejected: wrong password")
		return nil, ErrInvalidCredentials
	}

	metrics.ObserveLogin("success")
	return &user, nil
}

// FindActiveUser loads an active user by id, or ErrNotFound
func (s *AuthService) FindActiveUser(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).
		Where("id = ? AND active = ?", id, true).
		First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user %d: %w", id, err)
	}
	return &user, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
