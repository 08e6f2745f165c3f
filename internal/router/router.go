package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/readspace/ielts-backend/internal/config"
	"github.com/readspace/ielts-backend/internal/handler"
	"github.com/readspace/ielts-backend/internal/middleware"
	"github.com/readspace/ielts-backend/internal/model"
	"github.com/readspace/ielts-backend/internal/response"
	"github.com/readspace/ielts-backend/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth    *handler.AuthHandler
	Session *handler.SessionHandler
	Attempt *handler.AttemptHandler
	WS      *handler.WSHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	authService *service.AuthService,
	handlers *Handlers,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID", "Retry-After"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	// Rate limiter for auth routes (30 requests per minute per IP).
	authLimiter := middleware.NewRateLimiter(30, time.Minute)

	// ─── 1. Auth Group (Public, Rate Limited) ──────────────────────────
	auth := router.Group("/api/v1/auth")
	auth.Use(authLimiter.Middleware())
	{
		auth.POST("/login", handlers.Auth.Login)
		auth.POST("/logout", middleware.RequireJWT(authService), handlers.Auth.Logout)
		auth.GET("/me", middleware.RequireJWT(authService), handlers.Auth.Me)
	}

	// ─── 2. Session Group (JWT) ────────────────────────────────────────
	sessions := router.Group("/api/v1/sessions")
	sessions.Use(middleware.RequireJWT(authService))
	{
		sessions.GET("", handlers.Session.List)
		sessions.GET("/:session_id", handlers.Session.Get)

		// Lifecycle transitions are manager-only.
		manage := sessions.Group("")
		manage.Use(middleware.RequireRole(model.RoleTeacher, model.RoleAdmin))
		{
			manage.POST("", handlers.Session.Create)
			manage.POST("/:session_id/waiting", handlers.Session.StartWaiting)
			manage.POST("/:session_id/start", handlers.Session.Start)
			manage.POST("/:session_id/complete", handlers.Session.Complete)
			manage.POST("/:session_id/cancel", handlers.Session.Cancel)
		}

		// Students fetch their attempt lazily after a late join.
		sessions.POST("/:session_id/attempt",
			middleware.RequireRole(model.RoleStudent),
			middleware.CheckSingleDeviceSession(authService),
			handlers.Attempt.GetOrCreate)
	}

	// ─── 3. Attempt Group (JWT) ────────────────────────────────────────
	attempts := router.Group("/api/v1/attempts")
	attempts.Use(middleware.RequireJWT(authService))
	{
		attempts.GET("/:attempt_id", handlers.Attempt.Get)
		attempts.POST("/:attempt_id/force-submit",
			middleware.RequireRole(model.RoleTeacher, model.RoleAdmin),
			handlers.Attempt.ForceSubmit)

		// Student writes additionally enforce the single-device login.
		write := attempts.Group("")
		write.Use(
			middleware.RequireRole(model.RoleStudent),
			middleware.CheckSingleDeviceSession(authService),
		)
		{
			write.PUT("/:attempt_id/answers", handlers.Attempt.SubmitAnswer)
			write.PUT("/:attempt_id/progress", handlers.Attempt.UpdateProgress)
			write.POST("/:attempt_id/violations", handlers.Attempt.RecordViolation)
			write.POST("/:attempt_id/highlights", handlers.Attempt.RecordHighlight)
			write.POST("/:attempt_id/submit", handlers.Attempt.Submit)
		}
	}

	// ─── 4. WebSocket Group (?token= Auth) ─────────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireWSAuth(authService))
	{
		ws.GET("/sessions/:session_id", handlers.WS.SessionStream)
	}

	return router
}
