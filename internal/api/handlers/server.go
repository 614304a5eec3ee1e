package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/TheGojiOG/mc-server-wrapper/internal/console"
	"github.com/TheGojiOG/mc-server-wrapper/internal/models"
	"github.com/TheGojiOG/mc-server-wrapper/internal/server"
)

// ProducerHTTP tags console input submitted through the REST API.
const ProducerHTTP = "http"

// Supervisor is the part of server.Supervisor the API drives.
type Supervisor interface {
	Status() server.Status
	ListPlayers() ([]server.Player, error)
	Stop() error
	Backup() (*server.BackupResult, error)
	Submit(ctx context.Context, producer, line string) error
	SendAndAwaitEcho(ctx context.Context, producer, line string) (server.Event, error)
}

// ServerHandler handles lifecycle and command requests for the supervised server
type ServerHandler struct {
	sup           Supervisor
	submitTimeout time.Duration
}

// NewServerHandler creates a new server handler
func NewServerHandler(sup Supervisor, submitTimeout time.Duration) *ServerHandler {
	if submitTimeout <= 0 {
		submitTimeout = 5 * time.Second
	}
	return &ServerHandler{sup: sup, submitTimeout: submitTimeout}
}

// GetStatus returns the supervisor status
// GET /api/v1/status
func (h *ServerHandler) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.sup.Status())
}

// ListPlayers returns the players currently online
// GET /api/v1/players
func (h *ServerHandler) ListPlayers(c *gin.Context) {
	players, err := h.sup.ListPlayers()
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.NewPlayersResponse(players))
}

// StopServer stops the server and waits for it to exit
// POST /api/v1/stop
func (h *ServerHandler) StopServer(c *gin.Context) {
	if err := h.sup.Stop(); err != nil {
		respondError(c, err)
		return
	}
	st := h.sup.Status()
	c.JSON(http.StatusOK, models.StopResponse{Status: st.State, LastExit: st.LastExit})
}

// RunBackup performs a stop, archive, restart cycle. A failed archive with a
// successful restart is still a 200 carrying archive_error.
// POST /api/v1/backup
func (h *ServerHandler) RunBackup(c *gin.Context) {
	result, err := h.sup.Backup()
	if result == nil {
		respondError(c, err)
		return
	}

	resp := models.NewBackupResponse(result, err)
	status := http.StatusOK
	if !result.Restarted {
		_ = c.Error(err)
		status = http.StatusInternalServerError
	}
	c.JSON(status, resp)
}

// ExecuteCommand sends one line to the server console
// POST /api/v1/command
func (h *ServerHandler) ExecuteCommand(c *gin.Context) {
	var req models.CommandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: err.Error(), Code: "invalid_request"})
		return
	}

	command, err := console.ValidateCommand(req.Command)
	if err != nil {
		respondError(c, err)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.submitTimeout)
	defer cancel()

	resp := models.CommandResponse{Command: command}
	if req.WaitAck {
		ev, err := h.sup.SendAndAwaitEcho(ctx, ProducerHTTP, command)
		if err != nil {
			resp.Error = err.Error()
			_ = c.Error(err)
			c.JSON(StatusFor(err), resp)
			return
		}
		resp.Ack = ev.Text
	} else if err := h.sup.Submit(ctx, ProducerHTTP, command); err != nil {
		resp.Error = err.Error()
		_ = c.Error(err)
		c.JSON(StatusFor(err), resp)
		return
	}

	resp.Success = true
	c.JSON(http.StatusOK, resp)
}

// LegacyListPlayers keeps the original wrapper's contract: a bare JSON
// array of player names.
// GET /list-players
func (h *ServerHandler) LegacyListPlayers(c *gin.Context) {
	players, err := h.sup.ListPlayers()
	if err != nil {
		_ = c.Error(err)
		c.String(http.StatusInternalServerError,
			"Something went wrong while trying to fetch the list of players online: %v", err)
		return
	}
	c.JSON(http.StatusOK, models.PlayerNames(players))
}

// LegacyStop stops the server and answers 204 No Content.
// GET /stop
func (h *ServerHandler) LegacyStop(c *gin.Context) {
	if err := h.sup.Stop(); err != nil {
		_ = c.Error(err)
		c.String(http.StatusInternalServerError,
			"Something went wrong while trying to stop the server: %v", strings.TrimSpace(err.Error()))
		return
	}
	c.Status(http.StatusNoContent)
}
