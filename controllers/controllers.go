// Package controllers holds the gin handlers. Handlers render HTML pages and
// translate service errors into status codes; the services own the rules.
package controllers

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/techzone/intervention-manager/middleware"
	"github.com/techzone/intervention-manager/services"
)

var validate = newValidator()

var fieldLabels = map[string]string{
	"title":         "Title",
	"description":   "Description",
	"client_id":     "Client",
	"technician_id": "Technician",
	"priority":      "Priority",
	"name":          "Name",
	"email":         "Email",
	"password":      "Password",
}

func newValidator() *validator.Validate {
	v := validator.New()
	// Report fields by their form name so messages match the inputs
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("form"), ",", 2)[0]
		if name == "" || name == "-" {
			return field.Name
		}
		return name
	})
	return v
}

// bindForm binds the posted form into form and validates it. The returned
// error is nil when the form is acceptable.
func bindForm(c *gin.Context, form interface{}) *services.ValidationError {
	if err := c.ShouldBind(form); err != nil {
		return &services.ValidationError{Message: "The form contains invalid values"}
	}

	err := validate.Struct(form)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return &services.ValidationError{Message: "The form contains invalid values"}
	}

	fe := fieldErrs[0]
	label, ok := fieldLabels[fe.Field()]
	if !ok {
		label = fe.Field()
	}

	var message string
	switch fe.Tag() {
	case "required":
		message = fmt.Sprintf("%s is required", label)
	case "email":
		message = fmt.Sprintf("%s must be a valid email address", label)
	case "min":
		message = fmt.Sprintf("%s must be at least %s characters", label, fe.Param())
	case "oneof":
		message = fmt.Sprintf("%s must be one of %s", label, strings.ReplaceAll(fe.Param(), " ", ", "))
	default:
		message = fmt.Sprintf("%s is not valid", label)
	}
	return &services.ValidationError{Field: fe.Field(), Message: message}
}

// render executes page with the signed-in identity added for the layout
func render(c *gin.Context, status int, page string, data gin.H) {
	if data == nil {
		data = gin.H{}
	}
	if sess := middleware.CurrentSession(c); sess != nil {
		data["CurrentUser"] = &sess.Data
	}
	c.HTML(status, page, data)
}

// abortWithError maps a service error to the matching error page. Anything
// unexpected is attached to the context and becomes a logged 500.
func abortWithError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrNotFound):
		c.Status(http.StatusNotFound)
	case errors.Is(err, services.ErrForbidden):
		c.Status(http.StatusForbidden)
	default:
		_ = c.Error(err)
	}
	c.Abort()
}

// asValidation returns err as a ValidationError when it is one
func asValidation(err error) (*services.ValidationError, bool) {
	var validationErr *services.ValidationError
	if errors.As(err, &validationErr) {
		return validationErr, true
	}
	return nil, false
}

// parseID reads the :id path parameter. Malformed ids answer 404.
func parseID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.Status(http.StatusNotFound)
		c.Abort()
		return 0, false
	}
	return uint(id), true
}

// currentActor returns the actor verified by the role gate
func currentActor(c *gin.Context) (services.Actor, bool) {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		_ = c.Error(err)
		c.Abort()
		return services.Actor{}, false
	}
	return services.ActorFromUser(user), true
}
