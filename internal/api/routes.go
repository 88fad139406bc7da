package api

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"socialdraft/internal/api/middleware"
	"socialdraft/internal/auth"
	"socialdraft/internal/config"
	"socialdraft/internal/generation"
	"socialdraft/internal/identity"
)

// RegisterRoutes wires every API endpoint onto the router.
func RegisterRoutes(
	router *gin.Engine,
	cfg *config.Config,
	db *gorm.DB,
	verifier *auth.Verifier,
	identitySvc *identity.Service,
	generator *generation.Client,
	asynqClient *asynq.Client,
	redisClient *redis.Client,
	logger *slog.Logger,
) error {
	webhookHandler, err := NewWebhookHandler(identitySvc, cfg.Identity.WebhookSecret, logger)
	if err != nil {
		return err
	}
	templateHandler := NewTemplateHandler(db, identitySvc)
	generateHandler := NewGenerateHandler(db, identitySvc, generator, redisClient, cfg.Generate.RateLimitPerHour)
	postHandler := NewPostHandler(db, identitySvc, asynqClient)
	wsHandler := NewWsHandler(redisClient, verifier, identitySvc, logger, cfg.WS.AllowedOrigins)
	authMiddleware := middleware.AuthMiddleware(verifier)

	v1 := router.Group("/v1")
	{
		v1.GET("/ws", wsHandler.HandleConnection)
		v1.POST("/webhooks/identity", webhookHandler.HandleIdentityEvent)

		templateGroup := v1.Group("/templates")
		templateGroup.Use(authMiddleware)
		{
			templateGroup.GET("", templateHandler.ListTemplates)
			templateGroup.POST("", templateHandler.CreateTemplate)
			templateGroup.GET("/:id", templateHandler.GetTemplate)
			templateGroup.PUT("/:id", templateHandler.UpdateTemplate)
			templateGroup.PATCH("/:id", templateHandler.UpdateTemplate)
			templateGroup.DELETE("/:id", templateHandler.DeleteTemplate)
		}

		v1.POST("/generate-content", authMiddleware, generateHandler.GenerateContent)

		postGroup := v1.Group("/posts")
		postGroup.Use(authMiddleware)
		{
			postGroup.GET("", postHandler.ListPosts)
			postGroup.POST("", postHandler.CreatePost)
			postGroup.GET("/:id", postHandler.GetPost)
			postGroup.PATCH("/:id", postHandler.UpdatePost)
			postGroup.DELETE("/:id", postHandler.DeletePost)
			postGroup.POST("/:id/publish", postHandler.PublishPost)
		}
	}

	return nil
}
