package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	// RequestIDKey is the context key and header carrying the request id
	RequestIDKey = "X-Request-ID"
	// ErrorTemplate is the page rendered for every error status
	ErrorTemplate = "error.html"
)

var errorMessages = map[int]string{
	http.StatusForbidden:           "You do not have access to this page.",
	http.StatusNotFound:            "The page you are looking for does not exist.",
	http.StatusInternalServerError: "Something went wrong. Please try again later.",
}

// RequestID tags each request with an id, reusing one sent by a proxy
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDKey)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(RequestIDKey, id)
		c.Header(RequestIDKey, id)
		c.Next()
	}
}

// RequestLogger logs each request with method, path, status, latency and user
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		var event *zerolog.Event
		switch {
		case status >= http.StatusInternalServerError:
			event = log.Error()
		case status >= http.StatusBadRequest:
			event = log.Warn()
		default:
			event = log.Info()
		}

		event = event.
			Str("request_id", c.GetString(RequestIDKey)).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("latency", time.Since(start))
		if sess := CurrentSession(c); sess != nil {
			event = event.Uint("user_id", sess.Data.UserID)
		}
		event.Msg("request")
	}
}

// Recovery turns panics into the generic error page. Panic details are
// logged, never sent to the client.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error().
					Str("request_id", c.GetString(RequestIDKey)).
					Str("path", c.Request.URL.Path).
					Interface("panic", r).
					Msg("panic recovered")
				c.Abort()
				if !c.Writer.Written() {
					RenderError(c, http.StatusInternalServerError)
				}
			}
		}()
		c.Next()
	}
}

// ErrorHandler logs errors attached with c.Error and renders the error page
// for them, and for aborted requests that set an error status without a body.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 {
			err := c.Errors.Last()
			event := log.Error().
				Str("request_id", c.GetString(RequestIDKey)).
				Str("path", c.FullPath()).
				Str("method", c.Request.Method).
				Err(err.Err)
			if sess := CurrentSession(c); sess != nil {
				event = event.Uint("user_id", sess.Data.UserID)
			}
			event.Msg("unhandled error")

			if !c.Writer.Written() {
				RenderError(c, http.StatusInternalServerError)
			}
			return
		}

		status := c.Writer.Status()
		if c.IsAborted() && status >= http.StatusBadRequest && !c.Writer.Written() {
			RenderError(c, status)
		}
	}
}

// RenderError writes the error page for status
func RenderError(c *gin.Context, status int) {
	message, ok := errorMessages[status]
	if !ok {
		message = http.StatusText(status)
	}

	data := gin.H{
		"Title":     http.StatusText(status),
		"Status":    status,
		"Message":   message,
		"RequestID": c.GetString(RequestIDKey),
	}
	if sess := CurrentSession(c); sess != nil {
		data["CurrentUser"] = &sess.Data
	}
	c.HTML(status, ErrorTemplate, data)
}
