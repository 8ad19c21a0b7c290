package models

import (
	"time"
)

// User roles
const (
	RoleAdmin      = "admin"
	RoleTechnician = "technician"
)

// User represents an account in the system (admin or technician)
type User struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Name         string    `gorm:"not null" json:"name"`
	Email        string    `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string    `gorm:"column:password_hash;not null" json:"-"` // bcrypt hash, never serialized
	Role         string    `gorm:"not null;index" json:"role"`            // "admin" or "technician"
	Active       bool      `gorm:"not null;default:true" json:"active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TableName specifies the table name for the User model
func (User) TableName() string {
	return "users"
}

// IsAdmin reports whether the user holds the admin role
func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// IsTechnician reports whether the user holds the technician role
func (u User) IsTechnician() bool {
	return u.Role == RoleTechnician
}
