package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/TheGojiOG/mc-server-wrapper/internal/backup"
	"github.com/TheGojiOG/mc-server-wrapper/internal/models"
	"github.com/TheGojiOG/mc-server-wrapper/internal/server"
)

// StatusFor maps supervisor and storage errors to HTTP status codes.
func StatusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, server.ErrInvalidLine):
		return http.StatusBadRequest
	case errors.Is(err, server.ErrNotRunning), errors.Is(err, server.ErrAlreadyStopping):
		return http.StatusConflict
	case errors.Is(err, server.ErrRejectedBusy):
		return http.StatusLocked
	case errors.Is(err, backup.ErrBackupNotFound):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// errorCode is a stable identifier clients can switch on.
func errorCode(err error) string {
	switch {
	case errors.Is(err, server.ErrInvalidLine):
		return "invalid_line"
	case errors.Is(err, server.ErrNotRunning):
		return "not_running"
	case errors.Is(err, server.ErrAlreadyStopping):
		return "already_stopping"
	case errors.Is(err, server.ErrRejectedBusy):
		return "rejected_busy"
	case errors.Is(err, server.ErrRestartFailed):
		return "restart_failed"
	case errors.Is(err, server.ErrArchive):
		return "archive_failed"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return ""
	}
}

func respondError(c *gin.Context, err error) {
	_ = c.Error(err)
	c.JSON(StatusFor(err), models.ErrorResponse{Error: err.Error(), Code: errorCode(err)})
}
