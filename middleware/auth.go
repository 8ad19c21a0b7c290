package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/techzone/intervention-manager/models"
	"github.com/techzone/intervention-manager/services"
	"github.com/techzone/intervention-manager/sessions"
)

// LoginPath is where anonymous visitors of protected pages are sent
const LoginPath = "/auth/login"

const (
	sessionKey = "session"
	userKey    = "user"
)

// UserLookup reloads a user for the role gate
type UserLookup interface {
	FindActiveUser(ctx context.Context, id uint) (*models.User, error)
}

// LoadSession resolves the session cookie on every request and exposes its
// identity to handlers and templates. Requests without a live session pass
// through anonymous.
func LoadSession(m *sessions.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, err := m.Resolve(c.Request.Context(), c.Writer, c.Request)
		switch {
		case err == nil:
			c.Set(sessionKey, sess)
		case !errors.Is(err, sessions.ErrNotFound):
			log.Warn().Err(err).Str("request_id", c.GetString(RequestIDKey)).Msg("failed to resolve session")
		}
		c.Next()
	}
}

// RequireAuth redirects anonymous requests to the login page
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if CurrentSession(c) == nil {
			c.Redirect(http.StatusFound, LoginPath)
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequireRole lets through only sessions whose user still exists, is active
// and holds role. The session payload is not trusted: the user is reloaded
// from the database on every request.
func RequireRole(lookup UserLookup, role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess := CurrentSession(c)
		if sess == nil {
			c.Redirect(http.StatusFound, LoginPath)
			c.Abort()
			return
		}

		user, err := lookup.FindActiveUser(c.Request.Context(), sess.Data.UserID)
		if err != nil {
			if errors.Is(err, services.ErrNotFound) {
				log.Info().Uint("user_id", sess.Data.UserID).Msg("session user missing or inactive")
				c.Status(http.StatusForbidden)
				c.Abort()
				return
			}
			_ = c.Error(err)
			c.Abort()
			return
		}

		if user.Role != role {
			c.Status(http.StatusForbidden)
			c.Abort()
			return
		}

		c.Set(userKey, user)
		c.Next()
	}
}

// CurrentSession returns the resolved session, or nil for anonymous requests
func CurrentSession(c *gin.Context) *sessions.Session {
	value, exists := c.Get(sessionKey)
	if !exists {
		return nil
	}
	sess, _ := value.(*sessions.Session)
	return sess
}

// GetCurrentUser returns the user verified by RequireRole
func GetCurrentUser(c *gin.Context) (*models.User, error) {
	value, exists := c.Get(userKey)
	if !exists {
		return nil, &AuthError{Code: "MISSING_USER", Message: "User not found in context"}
	}

	user, ok := value.(*models.User)
	if !ok {
		return nil, &AuthError{Code: "INVALID_USER", Message: "User is not in the expected format"}
	}

	return user, nil
}

// AuthError represents an authentication error
type AuthError struct {
	Code    string
	Message string
}

func (e *AuthError) Error() string {
	return e.Message
}
