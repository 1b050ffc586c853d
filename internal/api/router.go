package api

import (
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/mmmaly/chcemvediet-sub000/internal/api/handlers"
	"github.com/mmmaly/chcemvediet-sub000/internal/api/middleware"
	"github.com/mmmaly/chcemvediet-sub000/internal/config"
	"github.com/mmmaly/chcemvediet-sub000/internal/services"
	"github.com/mmmaly/chcemvediet-sub000/pkg/metrics"
)

// Deps carries the already-wired services the handlers work against. The
// caller owns construction so the scheduler and the API share one instance
// of each.
type Deps struct {
	LogService   *services.LogService
	Inforequests *services.InforequestService
	Router       *services.RouterService
	Mail         *services.MailService
	Attachments  *services.AttachmentService
	Obligees     *services.ObligeeService
	Collector    *metrics.Collector
}

// SetupRouter initializes and returns the Gin router with all routes configured
func SetupRouter(cfg *config.Config, deps Deps) (*gin.Engine, *middleware.APIKeyManager, error) {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()

	router.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Split(cfg.CORSOrigins, ","),
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", middleware.APIKeyHeader, middleware.SessionHeader},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	apiKeyManager, err := middleware.NewAPIKeyManager(cfg.DataDir)
	if err != nil {
		return nil, nil, err
	}

	inforequestHandler := handlers.NewInforequestHandler(deps.Inforequests, deps.LogService)
	emailHandler := handlers.NewEmailHandler(deps.Router, deps.Mail, deps.LogService)
	obligeeHandler := handlers.NewObligeeHandler(deps.Obligees, deps.LogService)
	attachmentHandler := handlers.NewAttachmentHandler(deps.Attachments, deps.LogService)
	webhookHandler := handlers.NewWebhookHandler(deps.Mail, deps.LogService)
	statusHandler := handlers.NewStatusHandler(deps.Collector, deps.LogService)

	// Health check endpoint (no auth required)
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	{
		api.Use(middleware.APIKeyMiddleware(apiKeyManager))

		inforequests := api.Group("/inforequests")
		{
			inforequests.POST("", inforequestHandler.Create)
			inforequests.GET("", inforequestHandler.List)
			inforequests.GET("/:id", inforequestHandler.Get)
			inforequests.POST("/:id/actions", inforequestHandler.AddAction)
			inforequests.POST("/:id/close", inforequestHandler.Close)
			inforequests.POST("/:id/branches/:branchID/extend", inforequestHandler.ExtendDeadline)
			inforequests.GET("/:id/emails", emailHandler.ListUndecided)
		}

		drafts := api.Group("/drafts")
		{
			drafts.GET("/:id", inforequestHandler.GetDraft)
			drafts.DELETE("/:id", inforequestHandler.DeleteDraft)
		}

		emails := api.Group("/emails")
		{
			emails.POST("/:id/decide", emailHandler.Decide)
			emails.POST("/:id/mark", emailHandler.Mark)
			emails.DELETE("/:id", emailHandler.Unassign)
		}

		messages := api.Group("/messages")
		{
			messages.GET("/unassigned", emailHandler.ListUnassigned)
			messages.GET("/:id", emailHandler.GetMessage)
		}

		obligees := api.Group("/obligees")
		{
			obligees.POST("", obligeeHandler.Create)
			obligees.GET("", obligeeHandler.List)
			obligees.GET("/:id", obligeeHandler.Get)
			obligees.PUT("/:id/active", obligeeHandler.SetActive)
		}

		attachments := api.Group("/attachments")
		{
			attachments.POST("", attachmentHandler.Upload)
			attachments.GET("", attachmentHandler.ListSession)
			attachments.GET("/:id", attachmentHandler.Download)
		}

		webhooks := api.Group("/webhooks")
		{
			webhooks.POST("/recipient-status", webhookHandler.RecipientStatus)
		}

		status := api.Group("/status")
		{
			status.GET("/metrics", statusHandler.Metrics)
			status.GET("/logs", statusHandler.Logs)
		}
	}

	return router, apiKeyManager, nil
}
