package web

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"sitecontent/internal/assets"
	"sitecontent/internal/core"
	"sitecontent/internal/syncjob"
	"sitecontent/internal/upload"
	"sitecontent/pkg/domain"
)

// Envelope is the shape of every JSON response.
type Envelope struct {
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
	Data       any    `json:"data"`
}

func respond(c *gin.Context, status int, message string, data any) {
	c.JSON(status, Envelope{StatusCode: status, Message: message, Data: data})
}

func fail(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, Envelope{StatusCode: status, Message: message})
}

// failErr maps err onto the error taxonomy. Internal errors are logged and
// reported without detail.
func (s *Server) failErr(c *gin.Context, err error) {
	var maxBytes *http.MaxBytesError
	switch {
	case domain.IsNotFound(err), errors.Is(err, domain.ErrUnknownCollection), errors.Is(err, assets.ErrNotFound):
		fail(c, http.StatusNotFound, err.Error())
	case domain.IsValidation(err):
		fail(c, http.StatusBadRequest, err.Error())
	case domain.IsConflict(err):
		fail(c, http.StatusConflict, err.Error())
	case errors.Is(err, upload.ErrTooLarge), errors.As(err, &maxBytes):
		fail(c, http.StatusRequestEntityTooLarge, "File too large")
	case errors.Is(err, core.ErrInvalidCredentials):
		fail(c, http.StatusUnauthorized, err.Error())
	case errors.Is(err, syncjob.ErrQueueFull):
		fail(c, http.StatusServiceUnavailable, err.Error())
	default:
		s.logger.Error("request failed", "method", c.Request.Method, "path", c.Request.URL.Path, "error", err)
		fail(c, http.StatusInternalServerError, "internal error")
	}
}
