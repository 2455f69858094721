package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ignatzorin/escrow-backend/internal/config"
	"github.com/ignatzorin/escrow-backend/internal/http/handlers"
	"github.com/ignatzorin/escrow-backend/internal/http/middleware"
	"github.com/ignatzorin/escrow-backend/internal/service"
)

func SetupRouter(
	cfg *config.Config,
	projectHandler *handlers.ProjectHandler,
	milestoneHandler *handlers.MilestoneHandler,
	paymentHandler *handlers.PaymentHandler,
	disputeHandler *handlers.DisputeHandler,
	mediaHandler *handlers.MediaHandler,
	wsHandler *handlers.WSHandler,
	healthHandler *handlers.HealthHandler,
	tokenManager *service.TokenManager,
) *gin.Engine {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.Default()
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.CORSMiddleware(cfg.AllowedOrigins))

	r.GET("/health", healthHandler.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.StaticFS("/media", http.Dir(cfg.MediaStoragePath))

	api := r.Group("/api")
	api.GET("/ws", wsHandler.Handle)

	protected := api.Group("")
	protected.Use(middleware.AuthMiddleware(tokenManager))
	protected.Use(middleware.RateLimitMiddleware(cfg.RateLimitLimit, cfg.RateLimitPeriod))
	{
		protected.POST("/projects", projectHandler.Create)
		protected.GET("/projects", projectHandler.ListMine)
		protected.GET("/projects/:id", middleware.UUIDValidator("id"), projectHandler.Get)
		protected.POST("/projects/:id/cancel", middleware.UUIDValidator("id"), projectHandler.Cancel)

		// Согласование плана этапов
		protected.GET("/projects/:id/milestones", middleware.UUIDValidator("id"), milestoneHandler.ListLedger)
		protected.PUT("/projects/:id/milestones", middleware.UUIDValidator("id"), milestoneHandler.ReplaceLedger)
		protected.POST("/projects/:id/milestones/approve", middleware.UUIDValidator("id"), milestoneHandler.ApprovePlan)
		protected.GET("/projects/:id/approval", middleware.UUIDValidator("id"), milestoneHandler.ApprovalState)

		// Жизненный цикл этапа
		protected.GET("/milestones/:id", middleware.UUIDValidator("id"), milestoneHandler.Get)
		protected.POST("/milestones/:id/start", middleware.UUIDValidator("id"), milestoneHandler.Start)
		protected.POST("/milestones/:id/submit", middleware.UUIDValidator("id"), milestoneHandler.Submit)
		protected.POST("/milestones/:id/approve", middleware.UUIDValidator("id"), milestoneHandler.Approve)
		protected.POST("/milestones/:id/request-changes", middleware.UUIDValidator("id"), milestoneHandler.RequestChanges)
		protected.GET("/milestones/:id/history", middleware.UUIDValidator("id"), milestoneHandler.History)

		// Деньги
		protected.POST("/milestones/:id/fund", middleware.UUIDValidator("id"), paymentHandler.Fund)
		protected.POST("/milestones/:id/pay", middleware.UUIDValidator("id"), paymentHandler.Pay)
		protected.GET("/projects/:id/payments", middleware.UUIDValidator("id"), paymentHandler.ListByProject)

		// Споры
		protected.POST("/projects/:id/disputes", middleware.UUIDValidator("id"), disputeHandler.Create)
		protected.GET("/projects/:id/disputes", middleware.UUIDValidator("id"), disputeHandler.ListByProject)
		protected.GET("/disputes", disputeHandler.ListOpen)
		protected.GET("/disputes/:id", middleware.UUIDValidator("id"), disputeHandler.Get)
		protected.POST("/disputes/:id/updates", middleware.UUIDValidator("id"), disputeHandler.AddUpdate)
		protected.POST("/disputes/:id/review", middleware.UUIDValidator("id"), disputeHandler.StartReview)
		protected.POST("/disputes/:id/resolve", middleware.UUIDValidator("id"), disputeHandler.Resolve)

		// Вложения
		protected.POST("/media", mediaHandler.Upload)
		protected.DELETE("/media/:id", middleware.UUIDValidator("id"), mediaHandler.Delete)
	}

	return r
}
