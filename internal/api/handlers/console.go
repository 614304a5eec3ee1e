package handlers

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/TheGojiOG/mc-server-wrapper/internal/api/middleware"
	"github.com/TheGojiOG/mc-server-wrapper/internal/console"
	"github.com/TheGojiOG/mc-server-wrapper/internal/models"
	ws "github.com/TheGojiOG/mc-server-wrapper/internal/websocket"
)

const historicalLines = 100

// ConsoleHandler handles console-related HTTP and WebSocket requests
type ConsoleHandler struct {
	sup            Supervisor
	ring           *console.RingBuffer
	commandHistory *console.CommandHistory
	hub            *ws.Hub
	dropped        func() uint64
	allowedOrigins []string
	submitTimeout  time.Duration
}

// ConsoleDeps groups what the console handler reads from.
type ConsoleDeps struct {
	Supervisor     Supervisor
	Ring           *console.RingBuffer
	History        *console.CommandHistory
	Hub            *ws.Hub
	Dropped        func() uint64
	AllowedOrigins []string
	SubmitTimeout  time.Duration
}

// NewConsoleHandler creates a new console handler
func NewConsoleHandler(deps ConsoleDeps) *ConsoleHandler {
	h := &ConsoleHandler{
		sup:            deps.Supervisor,
		ring:           deps.Ring,
		commandHistory: deps.History,
		hub:            deps.Hub,
		dropped:        deps.Dropped,
		allowedOrigins: deps.AllowedOrigins,
		submitTimeout:  deps.SubmitTimeout,
	}
	if h.dropped == nil {
		h.dropped = func() uint64 { return 0 }
	}
	if h.submitTimeout <= 0 {
		h.submitTimeout = 5 * time.Second
	}
	return h
}

// GetOutput returns buffered console output, optionally filtered
// GET /api/v1/console/output?lines=200&filter=errors
func (h *ConsoleHandler) GetOutput(c *gin.Context) {
	filter, err := console.NewOutputFilter(c.Query("filter"), c.Query("pattern"), c.Query("case_sensitive") == "true")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	lines := h.ring.GetLines()
	if n := queryLimit(c, "lines", 0); n > 0 {
		lines = h.ring.GetLast(n)
	}
	lines = filter.FilterLines(lines)
	if lines == nil {
		lines = []string{}
	}

	c.JSON(http.StatusOK, models.ConsoleHistoryResponse{
		Lines:   lines,
		Count:   len(lines),
		Dropped: h.dropped(),
	})
}

// GetCommandHistory returns recently submitted commands
// GET /api/v1/console/history?producer=http
func (h *ConsoleHandler) GetCommandHistory(c *gin.Context) {
	limit := queryLimit(c, "limit", 50)

	var (
		commands []console.CommandRecord
		err      error
	)
	if producer := c.Query("producer"); producer != "" {
		commands, err = h.commandHistory.GetProducerCommands(producer, limit)
	} else {
		commands, err = h.commandHistory.GetRecentCommands(limit)
	}
	if err != nil {
		log.Printf("[Console] Failed to get command history: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get command history"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"commands": commands,
		"count":    len(commands),
	})
}

// SearchCommandHistory searches command history
// GET /api/v1/console/history/search?q=keyword
func (h *ConsoleHandler) SearchCommandHistory(c *gin.Context) {
	query := c.Query("q")
	commands, err := h.commandHistory.SearchCommands(query, queryLimit(c, "limit", 50))
	if err != nil {
		log.Printf("[Console] Failed to search command history: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to search command history"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"commands": commands,
		"count":    len(commands),
		"query":    query,
	})
}

// GetAutocomplete returns command autocomplete suggestions
// GET /api/v1/console/autocomplete?prefix=say
func (h *ConsoleHandler) GetAutocomplete(c *gin.Context) {
	suggestions, err := h.commandHistory.GetAutocomplete(c.Query("prefix"), 10)
	if err != nil {
		log.Printf("[Console] Failed to get autocomplete: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get autocomplete"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"suggestions": suggestions,
	})
}

// HandleConsoleWebSocket streams console output and accepts commands
// WS /ws/console
func (h *ConsoleHandler) HandleConsoleWebSocket(c *gin.Context) {
	upgrader := buildUpgrader(h.allowedOrigins)
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		log.Printf("[Console] Failed to upgrade WebSocket: %v (origin=%s)", err, c.Request.Header.Get("Origin"))
		return
	}

	client := &ws.Client{
		ID:         uuid.New().String(),
		RemoteAddr: c.ClientIP(),
		Conn:       conn,
		Room:       ws.RoomConsole,
		Send:       make(chan *ws.Message, 1024),
		Hub:        h.hub,
	}

	select {
	case h.hub.Register <- client:
	case <-h.hub.Done():
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
		conn.Close()
		return
	}

	for _, line := range h.ring.GetLast(historicalLines) {
		client.SendMessage("console_output", map[string]any{
			"line":       line,
			"historical": true,
		})
	}
	client.SendMessage("session_info", map[string]any{
		"client_id": client.ID,
		"viewers":   h.hub.GetRoomSize(ws.RoomConsole),
		"status":    h.sup.Status(),
	})

	go client.WritePump()
	go client.ReadPump(h.handleClientMessage)
}

func (h *ConsoleHandler) handleClientMessage(client *ws.Client, msg ws.Message) {
	switch msg.Type {
	case "command", "execute_command":
		h.handleExecuteCommand(client, msg)
	case "request_history":
		h.handleRequestHistory(client, msg)
	default:
		log.Printf("[Console] Unknown message type: %s", msg.Type)
	}
}

func (h *ConsoleHandler) handleExecuteCommand(client *ws.Client, msg ws.Message) {
	payload, ok := msg.Payload.(map[string]any)
	if !ok {
		client.SendMessage("error", map[string]any{"message": "Invalid payload"})
		return
	}
	raw, _ := payload["command"].(string)
	command, err := console.ValidateCommand(raw)
	if err != nil {
		client.SendMessage("error", map[string]any{"message": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.submitTimeout)
	defer cancel()

	if err := h.sup.Submit(ctx, "ws:"+client.ID, command); err != nil {
		client.SendMessage("error", map[string]any{
			"message": fmt.Sprintf("Failed to execute command: %v", err),
			"code":    errorCode(err),
		})
		return
	}
	client.SendMessage("command_sent", map[string]any{"command": command})
}

func (h *ConsoleHandler) handleRequestHistory(client *ws.Client, msg ws.Message) {
	lines := historicalLines
	if payload, ok := msg.Payload.(map[string]any); ok {
		if l, ok := payload["lines"].(float64); ok && l > 0 {
			lines = int(l)
		}
	}
	client.SendMessage("historical_output", map[string]any{
		"lines": h.ring.GetLast(lines),
	})
}

func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return middleware.IsOriginAllowed(r.Header.Get("Origin"), allowedOrigins)
		},
	}
}

// queryLimit reads a positive integer query parameter.
func queryLimit(c *gin.Context, name string, def int) int {
	if v := c.Query(name); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			return parsed
		}
	}
	return def
}
