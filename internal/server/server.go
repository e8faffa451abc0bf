package server

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/expvar"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/emilythestrangee/feedbackloop/backend/internal/config"
	"github.com/emilythestrangee/feedbackloop/backend/internal/handlers"
	"github.com/emilythestrangee/feedbackloop/backend/internal/middleware"
)

type Server struct {
	cfg     *config.Config
	deps    handlers.Deps
	handler *handlers.Handler
}

func New(cfg *config.Config, deps handlers.Deps) *Server {
	return &Server{
		cfg:     cfg,
		deps:    deps,
		handler: handlers.NewHandler(deps),
	}
}

// NewServer creates and configures a new server
func NewServer(cfg *config.Config, deps handlers.Deps) *http.Server {
	s := New(cfg, deps)

	server := &http.Server{
		Addr:         "0.0.0.0:" + cfg.Port,
		Handler:      s.RegisterRoutes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	log.WithField("port", cfg.Port).Info("server configured")
	return server
}

// RegisterRoutes sets up all application routes
func (s *Server) RegisterRoutes() *gin.Engine {
	if s.cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	logger := log.StandardLogger()
	r.Use(middleware.RequestLogger(logger), middleware.Recovery(logger))

	// CORS configuration
	corsCfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowHeaders:  []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		ExposeHeaders: []string{"Content-Length", "Content-Disposition"},
		MaxAge:        12 * time.Hour,
	}
	if len(s.cfg.CORSOrigins) == 0 || (len(s.cfg.CORSOrigins) == 1 && s.cfg.CORSOrigins[0] == "*") {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = s.cfg.CORSOrigins
		corsCfg.AllowCredentials = true
	}
	r.Use(cors.New(corsCfg))

	// Health check endpoint
	r.GET("/health", s.health)

	h := s.handler
	requireAuth := middleware.AuthMiddleware(s.deps.Tokens)

	// API routes
	api := r.Group("/api")
	api.Use(middleware.OptionalAuth(s.deps.Tokens))
	{
		api.POST("/users", h.User.GetOrCreateUser)
		api.GET("/users/:id", h.User.GetUserProfile)

		api.POST("/auth/signup", h.Auth.Signup)
		api.POST("/auth/login", h.Auth.Login)
		api.GET("/me", requireAuth, h.Auth.GetMe)

		api.GET("/feedback", h.Feedback.ListFeedback)
		api.POST("/feedback", h.Feedback.CreateFeedback)
		api.GET("/feedback/:id", h.Feedback.GetFeedback)
		api.DELETE("/feedback/:id", requireAuth, h.Feedback.DeleteFeedback)

		api.POST("/votes", h.Vote.CastVote)

		api.POST("/comments", h.Comment.CreateComment)
		api.PATCH("/comments/:id", requireAuth, h.Comment.UpdateComment)
		api.DELETE("/comments/:id", requireAuth, h.Comment.DeleteComment)

		// Admin routes (verified token of an admin user)
		admin := api.Group("")
		admin.Use(requireAuth, middleware.RequireAdmin(s.deps.Repo))
		{
			admin.PATCH("/feedback/:id", h.Feedback.UpdateFeedback)
			admin.GET("/admin/weekly-summary", h.Admin.WeeklySummary)
			admin.GET("/admin/posts/:id/audit", h.Admin.AuditPost)
			admin.GET("/admin/debug/vars", expvar.Handler())
		}
	}

	return r
}

func (s *Server) health(c *gin.Context) {
	stats := s.deps.Repo.Health(c.Request.Context())
	if stats["status"] != "up" {
		c.JSON(http.StatusServiceUnavailable, stats)
		return
	}
	c.JSON(http.StatusOK, stats)
}
