package services

import (
	"errors"

	"github.com/techzone/intervention-manager/models"
)

var (
	// ErrNotFound is returned when a record does not exist or is not visible to the actor
	ErrNotFound = errors.New("record not found")
	// ErrForbidden is returned when the actor's role may not run the operation
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidCredentials is returned for every failed login, whatever the cause
	ErrInvalidCredentials = errors.New("invalid email or password")
)

// ValidationError reports user input that cannot be accepted
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func invalid(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// Actor is the authenticated user on whose behalf an operation runs
type Actor struct {
	ID   uint
	Role string
}

// ActorFromUser builds an Actor from a persisted user
func ActorFromUser(u *models.User) Actor {
	return Actor{ID: u.ID, Role: u.Role}
}

func (a Actor) requireRole(role string) error {
	if a.ID == 0 || a.Role != role {
		return ErrForbidden
	}
	return nil
}
