package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/TheGojiOG/mc-server-wrapper/internal/api/handlers"
	"github.com/TheGojiOG/mc-server-wrapper/internal/api/middleware"
	"github.com/TheGojiOG/mc-server-wrapper/internal/audit"
	"github.com/TheGojiOG/mc-server-wrapper/internal/backup"
	"github.com/TheGojiOG/mc-server-wrapper/internal/config"
	"github.com/TheGojiOG/mc-server-wrapper/internal/console"
	"github.com/TheGojiOG/mc-server-wrapper/internal/logging"
	"github.com/TheGojiOG/mc-server-wrapper/internal/websocket"
)

// Deps is everything the router serves from.
type Deps struct {
	Config     *config.Config
	ConfigPath string
	Supervisor handlers.Supervisor
	Ring       *console.RingBuffer
	History    *console.CommandHistory
	Dropped    func() uint64
	Hub        *websocket.Hub
	Backups    *backup.Manager
	Activity   *logging.ActivityLogger
	Sessions   *audit.SessionStore
	// Metrics is mounted at Config.Metrics.Path when set.
	Metrics http.Handler
}

// SetupRouter configures and returns the HTTP router
func SetupRouter(deps Deps) *gin.Engine {
	cfg := deps.Config
	debug := cfg.Logging.Level == "debug"
	if debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Global middleware
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger())
	router.Use(middleware.CORS(cfg.Security.CORS))
	router.Use(middleware.RateLimit(cfg.Security.RateLimit.Enabled, cfg.Security.RateLimit.RequestsPerMinute))
	router.Use(middleware.SecurityHeaders(cfg.Server.TLS.Enabled))
	router.Use(middleware.ContentSecurityPolicy(debug))

	submitTimeout := cfg.Process.EchoTimeout
	serverHandler := handlers.NewServerHandler(deps.Supervisor, submitTimeout)
	consoleHandler := handlers.NewConsoleHandler(handlers.ConsoleDeps{
		Supervisor:     deps.Supervisor,
		Ring:           deps.Ring,
		History:        deps.History,
		Hub:            deps.Hub,
		Dropped:        deps.Dropped,
		AllowedOrigins: cfg.Security.CORS.AllowedOrigins,
		SubmitTimeout:  submitTimeout,
	})
	settingsHandler := handlers.NewSettingsHandler(cfg, deps.ConfigPath)

	v1 := router.Group("/api/v1")
	{
		v1.GET("/status", serverHandler.GetStatus)
		v1.GET("/players", serverHandler.ListPlayers)
		v1.POST("/stop", serverHandler.StopServer)
		v1.POST("/backup", serverHandler.RunBackup)
		v1.POST("/command", serverHandler.ExecuteCommand)

		v1.GET("/console/output", consoleHandler.GetOutput)
		if deps.History != nil {
			v1.GET("/console/history", consoleHandler.GetCommandHistory)
			v1.GET("/console/history/search", consoleHandler.SearchCommandHistory)
			v1.GET("/console/autocomplete", consoleHandler.GetAutocomplete)
		}

		if deps.Backups != nil {
			backupHandler := handlers.NewBackupHandler(deps.Backups, cfg.Backup.RetentionCount)
			backups := v1.Group("/backups")
			backups.GET("", backupHandler.ListBackups)
			backups.GET("/retention", backupHandler.GetRetentionStats)
			backups.GET("/:id", backupHandler.GetBackup)
			backups.DELETE("/:id", backupHandler.DeleteBackup)
		}

		if deps.Activity != nil && deps.Sessions != nil {
			activityHandler := handlers.NewActivityHandler(deps.Activity, deps.Sessions)
			v1.GET("/activity", activityHandler.ListActivities)
			v1.GET("/activity/stats", activityHandler.GetActivityStats)
			v1.GET("/players/sessions", activityHandler.ListSessions)
		}

		v1.GET("/settings", settingsHandler.GetSettings)
		v1.PUT("/settings", settingsHandler.UpdateSettings)
	}

	if deps.Hub != nil {
		router.GET("/ws/console", consoleHandler.HandleConsoleWebSocket)
	}

	// Endpoints of the original wrapper, kept for existing scripts.
	router.GET("/list-players", serverHandler.LegacyListPlayers)
	router.GET("/stop", serverHandler.LegacyStop)

	if deps.Metrics != nil && cfg.Metrics.Enabled {
		router.GET(cfg.Metrics.Path, gin.WrapH(deps.Metrics))
	}

	started := time.Now()
	router.GET("/health", func(c *gin.Context) {
		st := deps.Supervisor.Status()
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"server":  st.State,
			"ready":   st.Ready,
			"uptime":  time.Since(started).Round(time.Second).String(),
			"version": Version,
		})
	})

	return router
}

// Version is set at build time.
var Version = "dev"
