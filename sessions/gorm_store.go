package sessions

import (
	"context"
	"errors"
	"time"

	"github.com/techzone/intervention-manager/models"
	"gorm.io/gorm"
)

// GormStore keeps sessions in the sessions table
type GormStore struct {
	db *gorm.DB
}

// NewGormStore creates a store on db. The sessions table must already be migrated.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Save(ctx context.Context, sess *Session) error {
	row := models.Session{
		ID:        sess.ID,
		UserID:    sess.Data.UserID,
		Name:      sess.Data.Name,
		Email:     sess.Data.Email,
		Role:      sess.Data.Role,
		ExpiresAt: sess.ExpiresAt,
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

func (s *GormStore) Load(ctx context.Context, id string) (*Session, error) {
	var row models.Session
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &Session{
		ID: row.ID,
		Data: Data{
			UserID: row.UserID,
			Name:   row.Name,
			Email:  row.Email,
			Role:   row.Role,
		},
		ExpiresAt: row.ExpiresAt,
	}, nil
}

func (s *GormStore) Touch(ctx context.Context, id string, expiresAt time.Time) error {
	result := s.db.WithContext(ctx).Model(&models.Session{}).
		Where("id = ?", id).
		Update("expires_at", expiresAt)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) Destroy(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Session{}).Error
}

func (s *GormStore) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	result := s.db.WithContext(ctx).Where("expires_at <= ?", now).Delete(&models.Session{})
	return result.RowsAffected, result.Error
}
