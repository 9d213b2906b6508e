package handlers

import (
	"errors"
	"net/http"

	"github.com/carebridge/carebridge-api/internal/models"
	"github.com/carebridge/carebridge-api/internal/services"
	"github.com/carebridge/carebridge-api/internal/store"
	"github.com/gin-gonic/gin"
)

func errorStatus(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, models.ErrEntryNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrDuplicate),
		errors.Is(err, store.ErrConflict),
		errors.Is(err, models.ErrInvalidTransition),
		errors.Is(err, models.ErrAlreadyInQueue),
		errors.Is(err, models.ErrDoctorBusy),
		errors.Is(err, models.ErrQueueNotActive):
		return http.StatusConflict
	case errors.Is(err, services.ErrInvalidReport),
		errors.Is(err, services.ErrNoSymptoms),
		errors.Is(err, services.ErrPredictionRejected):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrChatDisabled), errors.Is(err, services.ErrPredictionDisabled):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// respondError maps domain and store errors onto the API's status codes.
// Unexpected errors are logged and hidden behind a generic message.
func (h *Handler) respondError(c *gin.Context, err error) {
	status := errorStatus(err)
	if status == http.StatusInternalServerError {
		h.Log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
		c.JSON(status, gin.H{"message": "internal server error"})
		return
	}
	c.JSON(status, gin.H{"message": err.Error()})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"message": msg})
}

func forbidden(c *gin.Context) {
	c.JSON(http.StatusForbidden, gin.H{"message": "You do not have access to this resource"})
}
