package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/invigilo/invigilo-backend/internal/config"
	"github.com/invigilo/invigilo-backend/internal/handler"
	"github.com/invigilo/invigilo-backend/internal/middleware"
	"github.com/invigilo/invigilo-backend/internal/model"
	"github.com/invigilo/invigilo-backend/internal/response"
	"github.com/invigilo/invigilo-backend/internal/service"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth       *handler.AuthHandler
	User       *handler.UserHandler
	Exam       *handler.ExamHandler
	Question   *handler.QuestionHandler
	Enrollment *handler.EnrollmentHandler
	Session    *handler.SessionHandler
	Proctoring *handler.ProctoringHandler
	WS         *handler.WSHandler
	System     *handler.SystemHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	authService *service.AuthService,
	limiter *middleware.Limiter,
	handlers *Handlers,
	pool *pgxpool.Pool,
	rdb *redis.Client,
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
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())

	// Apply brotli middleware globally.
	router.Use(middleware.Brotli())

	// Health check verifies both stores before reporting ok.
	router.GET("/health", func(c *gin.Context) {
		ctx := c.Request.Context()
		if err := pool.Ping(ctx); err != nil {
			response.Fail(c, http.StatusServiceUnavailable, response.ErrInternal)
			return
		}
		if err := rdb.Ping(ctx).Err(); err != nil {
			response.Fail(c, http.StatusServiceUnavailable, response.ErrInternal)
			return
		}
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	requireAuth := middleware.RequireAuth(authService)

	// ─── 1. Auth Group ─────────────────────────────────────────────────
	auth := router.Group("/api/auth")
	{
		auth.POST("/register", handlers.Auth.Register)
		auth.POST("/login", limiter.LoginRateLimit(), handlers.Auth.Login)
		auth.POST("/refresh", handlers.Auth.Refresh)

		auth.POST("/logout", requireAuth, handlers.Auth.Logout)
		auth.GET("/me", requireAuth, handlers.Auth.Me)
	}

	// ─── 2. Authenticated API ──────────────────────────────────────────
	api := router.Group("/api")
	api.Use(requireAuth)
	{
		// Profile media
		api.POST("/users/me/photo", handlers.User.UploadPhoto)
		api.GET("/users/me/photo", handlers.User.GetPhotoURL)

		// Exams visible to the caller
		api.GET("/exams", handlers.Exam.ListMine)
		api.GET("/exams/:exam_id", handlers.Exam.Get)

		api.GET("/enrollments/my", handlers.Enrollment.ListMine)

		// Exam attempts
		sessions := api.Group("/sessions")
		{
			sessions.POST("/start", handlers.Session.Start)
			sessions.GET("/:session_id", handlers.Session.Get)
			sessions.POST("/:session_id/heartbeat", limiter.HeartbeatRateLimit(), handlers.Session.Heartbeat)
			sessions.GET("/:session_id/questions", handlers.Question.Deliver)
			sessions.POST("/:session_id/answers", handlers.Session.SaveAnswer)
			sessions.GET("/:session_id/answers", handlers.Session.ListAnswers)
			sessions.POST("/:session_id/submit", handlers.Session.Submit)
			sessions.POST("/:session_id/verify-identity", handlers.Session.VerifyIdentity)

			// Proctor/admin session control; authorisation is enforced inside.
			sessions.POST("/:session_id/suspend", handlers.Session.Suspend)
			sessions.POST("/:session_id/reinstate", handlers.Session.Reinstate)
			sessions.POST("/:session_id/grade", handlers.Session.GradeShortAnswer)
		}

		// Proctor review surface
		proctoring := api.Group("/proctoring")
		{
			proctoring.GET("/sessions/:session_id/events", handlers.Proctoring.ListEvents)
			proctoring.GET("/sessions/:session_id/summary", handlers.Proctoring.GetSummary)
			proctoring.GET("/sessions/:session_id/behavior-events", handlers.Proctoring.ListBehaviorEvents)
			proctoring.POST("/sessions/:session_id/flag", handlers.Proctoring.Flag)
			proctoring.DELETE("/sessions/:session_id/flag", handlers.Proctoring.ClearFlag)
			proctoring.PUT("/sessions/:session_id/note", handlers.Proctoring.SetNote)
			proctoring.GET("/exams/:exam_id/monitor", handlers.Proctoring.Monitor)
		}
	}

	// ─── 3. Admin Group ────────────────────────────────────────────────
	adminAPI := router.Group("/api/admin")
	adminAPI.Use(requireAuth, middleware.RequireRole(model.RoleAdmin))
	{
		// Accounts
		adminAPI.GET("/users", handlers.User.ListUsers)
		adminAPI.POST("/users", handlers.User.CreateUser)
		adminAPI.PUT("/users/:user_id/role", handlers.User.UpdateRole)
		adminAPI.DELETE("/users/:user_id", handlers.User.DeactivateUser)

		// Exam management
		adminAPI.GET("/exams", handlers.Exam.List)
		adminAPI.POST("/exams", handlers.Exam.Create)
		adminAPI.GET("/exams/:exam_id", handlers.Exam.Get)
		adminAPI.PUT("/exams/:exam_id", handlers.Exam.Update)
		adminAPI.DELETE("/exams/:exam_id", handlers.Exam.Delete)
		adminAPI.POST("/exams/:exam_id/publish", handlers.Exam.Publish)

		// Proctor roster
		adminAPI.GET("/exams/:exam_id/proctors", handlers.Exam.ListProctors)
		adminAPI.POST("/exams/:exam_id/proctors", handlers.Exam.AssignProctor)
		adminAPI.DELETE("/exams/:exam_id/proctors/:proctor_id", handlers.Exam.UnassignProctor)

		// Question authoring
		adminAPI.GET("/exams/:exam_id/questions", handlers.Question.List)
		adminAPI.POST("/exams/:exam_id/questions", handlers.Question.Add)
		adminAPI.PUT("/exams/:exam_id/questions/:question_id", handlers.Question.Update)
		adminAPI.DELETE("/exams/:exam_id/questions/:question_id", handlers.Question.Delete)

		// Enrollments
		adminAPI.GET("/exams/:exam_id/enrollments", handlers.Enrollment.ListByExam)
		adminAPI.POST("/exams/:exam_id/enrollments", handlers.Enrollment.Enroll)
		adminAPI.POST("/exams/:exam_id/enrollments/bulk", handlers.Enrollment.BulkEnroll)
		adminAPI.DELETE("/enrollments/:enrollment_id", handlers.Enrollment.Unenroll)

		// System monitoring
		adminAPI.GET("/system/metrics", handlers.System.SystemMetricsSSE)
	}

	// ─── 4. Realtime ───────────────────────────────────────────────────
	router.GET("/ws", requireAuth, handlers.WS.Stream)

	return router
}
