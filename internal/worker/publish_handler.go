package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"socialdraft/internal/database"
	"socialdraft/internal/generation"
	"socialdraft/internal/tasks"
)

// ContentGenerator is the outbound dependency of the publish pipeline.
type ContentGenerator interface {
	Generate(ctx context.Context, req generation.Request) (string, error)
}

// PublishTaskHandler consumes post:publish tasks: it generates the
// per-platform outputs, stores them as PostTemplate rows and flips the
// post to PUBLISHED.
type PublishTaskHandler struct {
	db          *gorm.DB
	generator   ContentGenerator
	redisClient *redis.Client
	logger      *slog.Logger
}

// NewPublishTaskHandler creates the task handler.
func NewPublishTaskHandler(
	db *gorm.DB,
	generator ContentGenerator,
	redisClient *redis.Client,
	logger *slog.Logger,
) *PublishTaskHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PublishTaskHandler{
		db:          db,
		generator:   generator,
		redisClient: redisClient,
		logger:      logger,
	}
}

// ProcessTask implements asynq.Handler.
func (h *PublishTaskHandler) ProcessTask(ctx context.Context, t *asynq.Task) (retErr error) {
	log := h.logger

	var payload tasks.PostPublishPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		log.Error("unmarshal task payload failed", slog.Any("error", err))
		return err
	}

	log = log.With(
		slog.String("correlation_id", payload.CorrelationID),
		slog.String("post_id", payload.PostID),
	)
	log.Info("starting post publish task")

	var post database.Post
	if err := h.db.WithContext(ctx).First(&post, "id = ?", payload.PostID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Warn("post not found, skipping task")
			return nil
		}
		log.Error("query post failed", slog.Any("error", err))
		return err
	}

	log = log.With(slog.String("user_id", post.UserID))

	defer func() {
		if retErr == nil {
			return
		}
		if !isFinalAsynqAttempt(ctx) {
			return
		}

		notify := PublishNotifyMessage{
			Status:        "error",
			PostID:        post.ID,
			CorrelationID: payload.CorrelationID,
			ErrorMessage:  strings.TrimSpace(retErr.Error()),
		}
		if err := publishNotify(ctx, h.redisClient, post.UserID, notify); err != nil {
			log.Error("publish error notification failed", slog.Any("error", err))
		}
	}()

	platforms := make([]database.Platform, 0, len(payload.Targets))
	outputs := make([]database.PostTemplate, 0, len(payload.Targets))
	for _, target := range payload.Targets {
		prompt, err := h.resolvePrompt(ctx, target.TemplateID, post.UserID, target.Platform)
		if err != nil {
			log.Error("resolve platform prompt failed",
				slog.String("template_id", target.TemplateID),
				slog.String("platform", string(target.Platform)),
				slog.Any("error", err),
			)
			return err
		}

		generated, err := h.generator.Generate(ctx, generation.Request{
			Prompt:     prompt.Prompt,
			RawContent: post.Content,
			Platform:   target.Platform,
		})
		if err != nil {
			log.Error("generate platform content failed",
				slog.String("platform", string(target.Platform)),
				slog.Any("error", err),
			)
			return err
		}

		platforms = append(platforms, target.Platform)
		outputs = append(outputs, database.PostTemplate{
			PostID:           post.ID,
			TemplateID:       target.TemplateID,
			Platform:         target.Platform,
			GeneratedContent: generated,
		})
	}

	now := time.Now()
	err := h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, out := range outputs {
			// One output row per (post, platform); re-publishing replaces it.
			if err := tx.Where("post_id = ? AND platform = ?", out.PostID, out.Platform).
				Delete(&database.PostTemplate{}).Error; err != nil {
				return err
			}
			out := out
			if err := tx.Create(&out).Error; err != nil {
				return err
			}
		}
		return tx.Model(&database.Post{}).
			Where("id = ?", post.ID).
			Updates(map[string]any{
				"status":       database.PostStatusPublished,
				"published_at": now,
			}).Error
	})
	if err != nil {
		log.Error("store publish results failed", slog.Any("error", err))
		return err
	}

	notify := PublishNotifyMessage{
		Status:        "published",
		PostID:        post.ID,
		CorrelationID: payload.CorrelationID,
		Platforms:     platforms,
	}
	if err := publishNotify(ctx, h.redisClient, post.UserID, notify); err != nil {
		log.Error("publish success notification failed", slog.Any("error", err))
	}

	log.Info("post published", slog.Int("platforms", len(platforms)))
	return nil
}

func (h *PublishTaskHandler) resolvePrompt(
	ctx context.Context,
	templateID, userID string,
	platform database.Platform,
) (*database.PlatformTemplate, error) {
	var prompt database.PlatformTemplate
	if err := h.db.WithContext(ctx).
		Joins("JOIN templates ON templates.id = platform_templates.template_id").
		Where("platform_templates.template_id = ? AND platform_templates.platform = ? AND templates.user_id = ?",
			templateID, platform, userID).
		First(&prompt).Error; err != nil {
		return nil, fmt.Errorf("resolve prompt: %w", err)
	}
	return &prompt, nil
}

func isFinalAsynqAttempt(ctx context.Context) bool {
	retried, ok := asynq.GetRetryCount(ctx)
	if !ok {
		return true
	}
	maxRetry, ok := asynq.GetMaxRetry(ctx)
	if !ok {
		return true
	}
	return retried >= maxRetry
}
