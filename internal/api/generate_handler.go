package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"socialdraft/internal/api/middleware"
	"socialdraft/internal/database"
	"socialdraft/internal/generation"
	"socialdraft/internal/identity"
)

// generateTimeout bounds one outbound generation call so a slow provider
// cannot hold a server worker indefinitely.
const generateTimeout = 30 * time.Second

// ContentGenerator is the outbound text-generation dependency of the
// pipeline, injected so tests can count calls.
type ContentGenerator interface {
	Configured() bool
	Generate(ctx context.Context, req generation.Request) (string, error)
}

// GenerateHandler runs the content-generation pipeline: resolve the
// caller, resolve the template's platform prompt, call the provider,
// classify failures.
type GenerateHandler struct {
	db               *gorm.DB
	identitySvc      *identity.Service
	generator        ContentGenerator
	redis            redis.UniversalClient
	rateLimitPerHour int
}

// NewGenerateHandler constructs the handler. redisClient may be nil; the
// hourly cap is then not enforced.
func NewGenerateHandler(
	db *gorm.DB,
	identitySvc *identity.Service,
	generator ContentGenerator,
	redisClient redis.UniversalClient,
	rateLimitPerHour int,
) *GenerateHandler {
	return &GenerateHandler{
		db:               db,
		identitySvc:      identitySvc,
		generator:        generator,
		redis:            redisClient,
		rateLimitPerHour: rateLimitPerHour,
	}
}

type generateContentRequest struct {
	TemplateID string `json:"templateId" binding:"required"`
	Platform   string `json:"platform" binding:"required"`
	RawContent string `json:"rawContent" binding:"required"`
}

type generateContentResponse struct {
	GeneratedContent string                   `json:"generatedContent"`
	Template         generateTemplateMetadata `json:"template"`
}

type generateTemplateMetadata struct {
	ID       string            `json:"id"`
	Name     string            `json:"name"`
	Platform database.Platform `json:"platform"`
	Prompt   string            `json:"prompt"`
}

// GenerateContent handles POST /v1/generate-content.
func (h *GenerateHandler) GenerateContent(c *gin.Context) {
	logger := middleware.LoggerFromContext(c)

	externalID, ok := middleware.ExternalIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	// Credential presence is checked before any other work.
	if h.generator == nil || !h.generator.Configured() {
		Internal(c, "content generation is not configured")
		return
	}

	user, err := h.identitySvc.EnsureUser(c.Request.Context(), externalID)
	if err != nil {
		logger.Error("resolve user failed", logAttr(err))
		NotFound(c, "user not found")
		return
	}

	var req generateContentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "missing required fields")
		return
	}
	platform, err := database.ParsePlatform(req.Platform)
	if err != nil {
		BadRequest(c, "invalid platform")
		return
	}

	if !h.allowRequest(c.Request.Context(), user.ID) {
		TooManyRequests(c, "generation rate limit exceeded")
		return
	}

	template, prompt, err := h.resolvePrompt(c.Request.Context(), req.TemplateID, user.ID, platform)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "template not found")
			return
		}
		logger.Error("resolve template failed", logAttr(err))
		Internal(c, "failed to query template")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), generateTimeout)
	defer cancel()

	generated, err := h.generator.Generate(ctx, generation.Request{
		Prompt:     prompt.Prompt,
		RawContent: req.RawContent,
		Platform:   platform,
	})
	if err != nil {
		h.replyGenerationError(c, err)
		return
	}

	logger.Info("content generated",
		slog.String("user_id", user.ID),
		slog.String("platform", string(platform)),
	)
	c.JSON(http.StatusOK, generateContentResponse{
		GeneratedContent: generated,
		Template: generateTemplateMetadata{
			ID:       template.ID,
			Name:     template.Name,
			Platform: prompt.Platform,
			Prompt:   prompt.Prompt,
		},
	})
}

// resolvePrompt loads the template scoped to the owner and the prompt for
// the requested platform. A foreign template, an unknown id, and a
// template without a prompt for the platform all look the same.
func (h *GenerateHandler) resolvePrompt(
	ctx context.Context,
	templateID, userID string,
	platform database.Platform,
) (*database.Template, *database.PlatformTemplate, error) {
	var template database.Template
	if err := h.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", templateID, userID).
		First(&template).Error; err != nil {
		return nil, nil, err
	}

	var prompt database.PlatformTemplate
	if err := h.db.WithContext(ctx).
		Where("template_id = ? AND platform = ?", template.ID, platform).
		First(&prompt).Error; err != nil {
		return nil, nil, err
	}

	return &template, &prompt, nil
}

// allowRequest enforces the per-user hourly cap. Redis being down fails
// open: generation availability should not hinge on the limiter.
func (h *GenerateHandler) allowRequest(ctx context.Context, userID string) bool {
	if h.redis == nil || h.rateLimitPerHour <= 0 {
		return true
	}
	key := "rate:generate:" + userID + ":" + time.Now().UTC().Format("2006010215")
	count, err := incrWithTTL(ctx, h.redis, key, time.Hour)
	if err != nil {
		return true
	}
	return count <= int64(h.rateLimitPerHour)
}

func (h *GenerateHandler) replyGenerationError(c *gin.Context, err error) {
	logger := middleware.LoggerFromContext(c)
	switch {
	case errors.Is(err, generation.ErrMissingAPIKey), errors.Is(err, generation.ErrInvalidAPIKey):
		logger.Error("generation credential rejected", logAttr(err))
		Internal(c, "content generation is not configured correctly")
	case errors.Is(err, generation.ErrRateLimited):
		logger.Warn("generation rate limited by provider")
		TooManyRequests(c, "generation service is rate limited, please try again later")
	case errors.Is(err, generation.ErrUnavailable):
		logger.Warn("generation service unavailable")
		Unavailable(c, "generation service is temporarily unavailable, please try again later")
	case errors.Is(err, generation.ErrEmptyGeneration):
		logger.Error("generation returned no content")
		Internal(c, "no content was generated")
	default:
		logger.Error("generation failed", logAttr(err))
		Internal(c, "failed to generate content")
	}
}
