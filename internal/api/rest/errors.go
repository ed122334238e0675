package rest

import (
	"context"
	"errors"
	"net/http"

	"github.com/KevinKickass/CorrectorMux/internal/mux"
	"github.com/KevinKickass/CorrectorMux/internal/types"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// statusFor maps driver errors to HTTP status and API error code.
func statusFor(err error) (int, string) {
	var incomplete *mux.IncompleteGroupError
	switch {
	case errors.As(err, &incomplete):
		return http.StatusConflict, types.CodeConflict
	case errors.Is(err, mux.ErrValidation):
		return http.StatusBadRequest, types.CodeBadRequest
	case errors.Is(err, mux.ErrNotPowered), errors.Is(err, mux.ErrNotReady):
		return http.StatusConflict, types.CodeConflict
	case errors.Is(err, mux.ErrCommunication), errors.Is(err, context.DeadlineExceeded):
		return http.StatusBadGateway, types.CodeGateway
	default:
		return http.StatusInternalServerError, types.CodeInternal
	}
}

// respondError writes err; id is the command id or uuid.Nil for queries.
func (s *Server) respondError(c *gin.Context, id uuid.UUID, message string, err error) {
	status, code := statusFor(err)
	details := gin.H{"error": err.Error()}
	if id != uuid.Nil {
		details["command_id"] = id
	}
	c.JSON(status, types.NewErrorResponse(code, message, details))
}
