package handlers

import (
	"log"
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/TheGojiOG/mc-server-wrapper/internal/config"
	"github.com/TheGojiOG/mc-server-wrapper/internal/logging"
)

type SettingsHandler struct {
	cfg        *config.Config
	configPath string
	mu         sync.Mutex
}

type SettingsPayload struct {
	Security config.SecurityConfig `json:"security"`
	Logging  config.LoggingConfig  `json:"logging"`
}

type SettingsResponse struct {
	Security        config.SecurityConfig `json:"security"`
	Logging         config.LoggingConfig  `json:"logging"`
	Metrics         config.MetricsConfig  `json:"metrics"`
	Backup          config.BackupConfig   `json:"backup"`
	RequiresRestart bool                  `json:"requires_restart"`
}

func NewSettingsHandler(cfg *config.Config, configPath string) *SettingsHandler {
	if configPath == "" {
		configPath = config.GetConfigPath()
	}
	return &SettingsHandler{
		cfg:        cfg,
		configPath: configPath,
	}
}

func (h *SettingsHandler) response(requiresRestart bool) SettingsResponse {
	return SettingsResponse{
		Security:        h.cfg.Security,
		Logging:         h.cfg.Logging,
		Metrics:         h.cfg.Metrics,
		Backup:          h.cfg.Backup,
		RequiresRestart: requiresRestart,
	}
}

// GetSettings returns the editable settings. Credentials never leave the
// process: their fields are excluded from JSON.
func (h *SettingsHandler) GetSettings(c *gin.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c.JSON(http.StatusOK, h.response(false))
}

// UpdateSettings persists security and logging settings. The log level
// applies immediately; everything else on the next start.
func (h *SettingsHandler) UpdateSettings(c *gin.Context) {
	var payload SettingsPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	payload.Security.CORS.AllowedOrigins = normalizeList(payload.Security.CORS.AllowedOrigins)
	payload.Security.CORS.AllowedMethods = normalizeList(payload.Security.CORS.AllowedMethods)
	payload.Logging.Level = strings.ToLower(strings.TrimSpace(payload.Logging.Level))

	h.mu.Lock()
	defer h.mu.Unlock()

	if payload.Security.RateLimit.RequestsPerMinute <= 0 {
		payload.Security.RateLimit.RequestsPerMinute = h.cfg.Security.RateLimit.RequestsPerMinute
	}
	if payload.Logging.Level == "" {
		payload.Logging.Level = h.cfg.Logging.Level
	}

	updated := *h.cfg
	updated.Security = payload.Security
	updated.Logging = payload.Logging

	switch payload.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown log level " + payload.Logging.Level})
		return
	}

	if err := config.Save(&updated, h.configPath); err != nil {
		log.Printf("[Settings] Failed to save settings: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save settings", "details": err.Error()})
		return
	}

	h.cfg.Security = updated.Security
	h.cfg.Logging = updated.Logging
	logging.SetLevel(h.cfg.Logging.Level)

	c.JSON(http.StatusOK, h.response(true))
}

func normalizeList(values []string) []string {
	if len(values) == 0 {
		return values
	}
	cleaned := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		cleaned = append(cleaned, trimmed)
	}
	return cleaned
}
