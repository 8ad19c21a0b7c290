package controllers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/techzone/intervention-manager/middleware"
	"github.com/techzone/intervention-manager/models"
	"github.com/techzone/intervention-manager/services"
	"github.com/techzone/intervention-manager/sessions"
)

const loginPage = "login.html"

// Authenticator verifies login credentials
type Authenticator interface {
	Authenticate(ctx context.Context, email, password string) (*models.User, error)
}

type loginForm struct {
	Email    string `form:"email"`
	Password string `form:"password"`
}

// AuthController handles sign-in, sign-out and the home redirect
type AuthController struct {
	auth     Authenticator
	sessions *sessions.Manager
}

// NewAuthController creates an AuthController
func NewAuthController(auth Authenticator, manager *sessions.Manager) *AuthController {
	return &AuthController{auth: auth, sessions: manager}
}

// Home handles GET / - sends each visitor to the page matching their role
func (ac *AuthController) Home(c *gin.Context) {
	c.Redirect(http.StatusFound, homePath(middleware.CurrentSession(c)))
}

// ShowLogin handles GET /auth/login
func (ac *AuthController) ShowLogin(c *gin.Context) {
	render(c, http.StatusOK, loginPage, gin.H{"Title": "Sign in"})
}

// Login handles POST /auth/login. Every failure gets the same message so the
// page does not reveal which accounts exist.
func (ac *AuthController) Login(c *gin.Context) {
	var form loginForm
	_ = c.ShouldBind(&form)

	user, err := ac.auth.Authenticate(c.Request.Context(), form.Email, form.Password)
	if err != nil {
		if !errors.Is(err, services.ErrInvalidCredentials) {
			abortWithError(c, err)
			return
		}
		render(c, http.StatusUnauthorized, loginPage, gin.H{
			"Title": "Sign in",
			"Error": &services.ValidationError{Message: "Invalid email or password"},
		})
		return
	}

	sess, err := ac.sessions.Create(c.Request.Context(), c.Writer, c.Request, sessions.Data{
		UserID: user.ID,
		Name:   user.Name,
		Email:  user.Email,
		Role:   user.Role,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}

	log.Info().Uint("user_id", user.ID).Str("role", user.Role).Msg("user logged in")
	c.Redirect(http.StatusFound, homePath(sess))
}

// Logout handles GET /auth/logout
func (ac *AuthController) Logout(c *gin.Context) {
	if err := ac.sessions.Destroy(c.Request.Context(), c.Writer, c.Request); err != nil {
		log.Warn().Err(err).Msg("failed to destroy session")
	}
	c.Redirect(http.StatusFound, middleware.LoginPath)
}

func homePath(sess *sessions.Session) string {
	if sess == nil {
		return middleware.LoginPath
	}
	switch sess.Data.Role {
	case models.RoleAdmin:
		return "/admin/dashboard"
	case models.RoleTechnician:
		return "/technicien/dashboard"
	default:
		return middleware.LoginPath
	}
}
