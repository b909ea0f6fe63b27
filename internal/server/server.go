// Package server exposes the TherapyBridge HTTP API.
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/therapybridge/therapybridge/internal/auth"
	"github.com/therapybridge/therapybridge/internal/cleanup"
	"github.com/therapybridge/therapybridge/internal/config"
	"github.com/therapybridge/therapybridge/internal/metrics"
	"github.com/therapybridge/therapybridge/internal/models"
	"github.com/therapybridge/therapybridge/internal/pipeline"
)

// Options holds the dependencies the API server needs.
type Options struct {
	DB      *gorm.DB
	Config  *config.Config
	Issuer  *auth.TokenIssuer
	Refresh *auth.RefreshStore
	Queue   *pipeline.Queue
	Cleanup *cleanup.Service
	Log     zerolog.Logger
}

// Server is the HTTP API.
type Server struct {
	db      *gorm.DB
	cfg     *config.Config
	issuer  *auth.TokenIssuer
	refresh *auth.RefreshStore
	queue   *pipeline.Queue
	cleanup *cleanup.Service
	log     zerolog.Logger
	router  *gin.Engine
}

// New builds the server and registers all routes.
func New(opts Options) (*Server, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("server: db is required")
	}
	if opts.Config == nil {
		return nil, fmt.Errorf("server: config is required")
	}
	if opts.Issuer == nil {
		return nil, fmt.Errorf("server: token issuer is required")
	}
	s := &Server{
		db:      opts.DB,
		cfg:     opts.Config,
		issuer:  opts.Issuer,
		refresh: opts.Refresh,
		queue:   opts.Queue,
		cleanup: opts.Cleanup,
		log:     opts.Log.With().Str("component", "server").Logger(),
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(s.requestID())
	router.Use(s.requestLog())
	s.registerRoutes(router)
	s.router = router
	return s, nil
}

// Router returns the underlying handler, used by tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// Start runs the server. It blocks until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: s.router,
	}

	go func() {
		<-ctx.Done()
		srv.Shutdown(context.Background())
	}()

	s.log.Info().Str("addr", addr).Msg("api listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}

// registerRoutes wires the route tree. Everything under /api except the
// auth endpoints requires a valid access token.
func (s *Server) registerRoutes(router *gin.Engine) {
	router.GET("/healthz", s.handleHealth)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	perMinute := s.perMinuteLimit(s.cfg.RateLimit.DefaultPerMinute)
	uploadLimit := s.perHourLimit("upload", s.cfg.RateLimit.UploadPerHour)
	extractLimit := s.perHourLimit("extract", s.cfg.RateLimit.ExtractPerHour)

	api := router.Group("/api", perMinute)

	pub := api.Group("/auth")
	pub.POST("/signup", s.handleSignup)
	pub.POST("/login", s.handleLogin)
	pub.POST("/refresh", s.handleRefresh)
	pub.POST("/logout", s.handleLogout)

	priv := api.Group("", auth.RequireAuth(s.issuer))

	priv.POST("/sessions/upload", uploadLimit, s.handleSessionUpload)
	priv.GET("/sessions", s.handleSessionList)
	priv.GET("/sessions/:id", s.handleSessionGet)
	priv.DELETE("/sessions/:id", auth.RequireRole(models.RoleAdmin), s.handleSessionDelete)
	priv.GET("/sessions/:id/notes", s.handleSessionNotes)
	priv.POST("/sessions/:id/extract-notes", extractLimit, s.handleExtractNotes)

	priv.GET("/patients", s.handlePatientList)
	priv.POST("/patients", s.handlePatientCreate)
	priv.GET("/patients/:id", s.handlePatientGet)
	priv.PUT("/patients/:id", s.handlePatientUpdate)
	priv.DELETE("/patients/:id", s.handlePatientDelete)

	priv.GET("/patients/:id/goals", s.handleGoalList)
	priv.POST("/patients/:id/goals", s.handleGoalCreate)
	priv.GET("/goals/:id", s.handleGoalGet)
	priv.PUT("/goals/:id", s.handleGoalUpdate)
	priv.DELETE("/goals/:id", s.handleGoalDelete)
	priv.POST("/goals/:id/milestones", s.handleMilestoneCreate)
	priv.POST("/milestones/:id/toggle", s.handleMilestoneToggle)

	priv.GET("/templates", s.handleTemplateList)
	priv.POST("/templates", s.handleTemplateCreate)
	priv.PUT("/templates/:id", s.handleTemplateUpdate)
	priv.DELETE("/templates/:id", s.handleTemplateDelete)

	priv.GET("/conversations", s.handleConversationList)
	priv.POST("/conversations", s.handleConversationCreate)
	priv.GET("/conversations/:id", s.handleConversationGet)
	priv.POST("/conversations/:id/messages", s.handleMessageCreate)
	priv.DELETE("/conversations/:id", s.handleConversationDelete)

	priv.GET("/analytics/overview", s.handleAnalyticsOverview)
	priv.GET("/analytics/patients/:id", s.handleAnalyticsPatient)

	priv.GET("/exports/sessions.csv", s.handleExportSessionsCSV)
	priv.GET("/exports/sessions/:id", s.handleExportSessionJSON)
	priv.GET("/exports/patients.csv", s.handleExportPatientsCSV)

	admin := priv.Group("/admin", auth.RequireRole(models.RoleAdmin))
	admin.POST("/cleanup", s.handleAdminCleanup)
	admin.GET("/cleanup/preview", s.handleAdminCleanupPreview)
	admin.GET("/jobs", s.handleAdminJobs)
}

// handleHealth reports liveness and database reachability.
func (s *Server) handleHealth(c *gin.Context) {
	sqlDB, err := s.db.DB()
	if err == nil {
		err = sqlDB.Ping()
	}
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "database": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
