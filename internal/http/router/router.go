package router

import (
	"github.com/gin-gonic/gin"

	"github.com/devlinkhq/marketplace-backend/internal/config"
	"github.com/devlinkhq/marketplace-backend/internal/http/handlers"
	"github.com/devlinkhq/marketplace-backend/internal/http/middleware"
	"github.com/devlinkhq/marketplace-backend/internal/service"
)

func SetupRouter(
	cfg *config.Config,
	authHandler *handlers.AuthHandler,
	accountHandler *handlers.AccountHandler,
	projectHandler *handlers.ProjectHandler,
	proposalHandler *handlers.ProposalHandler,
	milestoneHandler *handlers.MilestoneHandler,
	escrowHandler *handlers.EscrowHandler,
	disputeHandler *handlers.DisputeHandler,
	notificationHandler *handlers.NotificationHandler,
	webhookHandler *handlers.WebhookHandler,
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

	api := r.Group("/api")

	authGroup := api.Group("/auth")
	authGroup.Use(middleware.RateLimitMiddleware(5, cfg.RateLimitPeriod))
	{
		authGroup.POST("/register", authHandler.Register)
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/refresh", authHandler.Refresh)
	}

	// The processor authenticates with its signature, not a bearer token.
	api.POST("/webhooks/stripe", webhookHandler.HandleStripe)

	api.GET("/ws", wsHandler.Handle)
	api.GET("/projects/open", projectHandler.ListOpen)

	protected := api.Group("/")
	protected.Use(middleware.AuthMiddleware(tokenManager))
	{
		protected.GET("/account", accountHandler.Me)
		protected.POST("/account/payout-account", accountHandler.ConnectPayoutAccount)
		protected.POST("/account/billing-profile", accountHandler.SetBillingProfile)

		protected.POST("/projects", projectHandler.Create)
		protected.GET("/projects", projectHandler.ListOwn)
		protected.GET("/projects/:id", middleware.UUIDValidator("id"), projectHandler.Get)
		protected.POST("/projects/:id/open", middleware.UUIDValidator("id"), projectHandler.Open)

		protected.POST("/projects/:id/proposals", middleware.UUIDValidator("id"), proposalHandler.Submit)
		protected.GET("/projects/:id/proposals", middleware.UUIDValidator("id"), proposalHandler.ListForProject)
		protected.GET("/proposals", proposalHandler.ListOwn)
		protected.POST("/proposals/:id/withdraw", middleware.UUIDValidator("id"), proposalHandler.Withdraw)
		protected.POST("/proposals/:id/accept", middleware.UUIDValidator("id"), proposalHandler.Accept)

		protected.POST("/milestones/:id/start", middleware.UUIDValidator("id"), milestoneHandler.Start)
		protected.POST("/milestones/:id/ready", middleware.UUIDValidator("id"), milestoneHandler.Ready)
		protected.POST("/milestones/:id/approve", middleware.UUIDValidator("id"), milestoneHandler.Approve)
		protected.POST("/milestones/:id/dispute", middleware.UUIDValidator("id"), milestoneHandler.Dispute)

		protected.POST("/milestones/:id/escrow", middleware.UUIDValidator("id"), escrowHandler.Fund)
		protected.GET("/milestones/:id/escrow", middleware.UUIDValidator("id"), escrowHandler.Get)
		protected.POST("/milestones/:id/escrow/release", middleware.UUIDValidator("id"), escrowHandler.Release)
		protected.GET("/transactions", escrowHandler.ListTransactions)

		protected.GET("/disputes", disputeHandler.List)
		protected.GET("/disputes/:id", middleware.UUIDValidator("id"), disputeHandler.Get)

		protected.GET("/notifications", notificationHandler.List)
		protected.GET("/notifications/unread-count", notificationHandler.CountUnread)
		protected.POST("/notifications/read-all", notificationHandler.MarkAllRead)
		protected.POST("/notifications/:id/read", middleware.UUIDValidator("id"), notificationHandler.MarkRead)
	}

	admin := api.Group("/")
	admin.Use(middleware.AuthMiddleware(tokenManager))
	admin.Use(middleware.RequireRole("admin"))
	{
		admin.POST("/disputes/:id/resolve", middleware.UUIDValidator("id"), disputeHandler.Resolve)
		admin.POST("/disputes/:id/close", middleware.UUIDValidator("id"), disputeHandler.Close)
	}

	return r
}
