package handler

import (
	"errors"
	"net/http"

	"civichat/internal/transport/httpdto"
	civichat_errors "civichat/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// respondError maps sentinel errors to HTTP statuses. Unknown errors
// become a generic 500 and are left on the gin context for the error
// middleware to log.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, civichat_errors.ErrUnauthenticated):
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
	case errors.Is(err, civichat_errors.ErrNotParticipant):
		c.JSON(http.StatusForbidden, httpdto.NewErrorResponse("not a participant", "NOT_PARTICIPANT"))
	case errors.Is(err, civichat_errors.ErrForbidden):
		c.JSON(http.StatusForbidden, httpdto.NewErrorResponse("forbidden", "FORBIDDEN"))
	case errors.Is(err, civichat_errors.ErrNotFound):
		c.JSON(http.StatusNotFound, httpdto.NewErrorResponse("not found", "NOT_FOUND"))
	case errors.Is(err, civichat_errors.ErrInvalidCallState):
		c.JSON(http.StatusConflict, httpdto.NewErrorResponse("invalid call state", "INVALID_CALL_STATE"))
	case errors.Is(err, civichat_errors.ErrConflict):
		c.JSON(http.StatusConflict, httpdto.NewErrorResponse("conflict", "CONFLICT"))
	case errors.Is(err, civichat_errors.ErrValidation):
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("validation failed", "VALIDATION_FAILED"))
	case errors.Is(err, civichat_errors.ErrUnavailable):
		c.JSON(http.StatusServiceUnavailable, httpdto.NewErrorResponse("temporarily unavailable", "UNAVAILABLE"))
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, httpdto.NewErrorResponse("internal error", "INTERNAL_ERROR"))
	}
}

func parseUUIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid "+name, "VALIDATION_FAILED"))
		return uuid.Nil, false
	}
	return id, true
}
