package handlers

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/TheGojiOG/mc-server-wrapper/internal/config"
)

func TestUpdateSettings(t *testing.T) {
	cfg := config.Default()
	cfg.Backup.Destinations = []config.DestinationConfig{{Type: "s3", Bucket: "worlds", SecretKey: "enc:abc"}}
	path := filepath.Join(t.TempDir(), "config.yaml")

	h := NewSettingsHandler(cfg, path)
	r := gin.New()
	r.GET("/settings", h.GetSettings)
	r.PUT("/settings", h.UpdateSettings)

	w := doRequest(t, r, http.MethodGet, "/settings", "")
	if strings.Contains(w.Body.String(), "enc:abc") {
		t.Fatalf("settings response leaked a secret: %s", w.Body.String())
	}

	body := `{"security":{"cors":{"allowed_origins":[" https://a.example ","https://a.example",""]},"rate_limit":{"enabled":true}},"logging":{"level":"DEBUG"}}`
	w = doRequest(t, r, http.MethodPut, "/settings", body)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	if got := cfg.Security.CORS.AllowedOrigins; len(got) != 1 || got[0] != "https://a.example" {
		t.Fatalf("expected normalized origins, got %v", got)
	}
	if cfg.Security.RateLimit.RequestsPerMinute != config.Default().Security.RateLimit.RequestsPerMinute {
		t.Fatalf("expected rate limit to keep its default, got %d", cfg.Security.RateLimit.RequestsPerMinute)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("expected debug level, got %q", cfg.Logging.Level)
	}

	saved, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("expected config to be saved: %v", err)
	}
	if !strings.Contains(string(saved), "enc:abc") {
		t.Fatalf("expected encrypted secret to be kept on disk")
	}

	w = doRequest(t, r, http.MethodPut, "/settings", `{"logging":{"level":"loud"}}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown level, got %d", w.Code)
	}
}
