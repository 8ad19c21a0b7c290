package models

import "time"

// Session is a server-side login session. The browser only holds a signed
// reference to ID.
type Session struct {
	ID        string    `gorm:"primaryKey;size:64" json:"id"`
	UserID    uint      `gorm:"not null;index" json:"user_id"`
	Name      string    `gorm:"not null" json:"name"`
	Email     string    `gorm:"not null" json:"email"`
	Role      string    `gorm:"not null" json:"role"`
	ExpiresAt time.Time `gorm:"not null;index" json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for the Session model
func (Session) TableName() string {
	return "sessions"
}

// All returns every model managed by AutoMigrate, in dependency order
func All() []interface{} {
	return []interface{}{&User{}, &Client{}, &Intervention{}, &Session{}}
}
