package handlers

import (
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/TheGojiOG/mc-server-wrapper/internal/audit"
	"github.com/TheGojiOG/mc-server-wrapper/internal/logging"
)

// ActivityHandler exposes the activity log and player sessions
type ActivityHandler struct {
	activity *logging.ActivityLogger
	sessions *audit.SessionStore
}

func NewActivityHandler(activity *logging.ActivityLogger, sessions *audit.SessionStore) *ActivityHandler {
	return &ActivityHandler{activity: activity, sessions: sessions}
}

// parseSince accepts an RFC 3339 timestamp or a duration such as "24h".
func parseSince(value string) (time.Time, bool) {
	if value == "" {
		return time.Time{}, true
	}
	if d, err := time.ParseDuration(value); err == nil {
		return time.Now().Add(-d), true
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, true
	}
	return time.Time{}, false
}

// ListActivities returns logged activity
// GET /api/v1/activity?type=player.join&since=24h&limit=100
func (h *ActivityHandler) ListActivities(c *gin.Context) {
	since, ok := parseSince(c.Query("since"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "since must be a duration or RFC 3339 time"})
		return
	}

	activities, err := h.activity.GetActivities(c.Query("type"), since, queryLimit(c, "limit", 100))
	if err != nil {
		log.Printf("[Activity] Failed to query activities: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to query activities"})
		return
	}
	if activities == nil {
		activities = []*logging.Activity{}
	}

	c.JSON(http.StatusOK, gin.H{
		"activities": activities,
		"count":      len(activities),
	})
}

// GetActivityStats counts activity per type
// GET /api/v1/activity/stats?since=168h
func (h *ActivityHandler) GetActivityStats(c *gin.Context) {
	since, ok := parseSince(c.Query("since"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "since must be a duration or RFC 3339 time"})
		return
	}

	stats, err := h.activity.GetActivityStats(since)
	if err != nil {
		log.Printf("[Activity] Failed to get stats: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get activity stats"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"stats": stats})
}

// ListSessions returns recent player sessions
// GET /api/v1/players/sessions?player=Steve
func (h *ActivityHandler) ListSessions(c *gin.Context) {
	sessions, err := h.sessions.Recent(c.Query("player"), queryLimit(c, "limit", 50))
	if err != nil {
		log.Printf("[Activity] Failed to query sessions: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to query sessions"})
		return
	}
	if sessions == nil {
		sessions = []audit.PlayerSession{}
	}

	c.JSON(http.StatusOK, gin.H{
		"sessions": sessions,
		"count":    len(sessions),
	})
}
