package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"gorm.io/gorm"

	"socialdraft/internal/api/middleware"
	"socialdraft/internal/database"
	"socialdraft/internal/identity"
	"socialdraft/internal/tasks"
)

// PostHandler owns the post drafting surface and hands finished drafts to
// the publish queue.
type PostHandler struct {
	db          *gorm.DB
	identitySvc *identity.Service
	asynqClient *asynq.Client
}

// NewPostHandler constructs the handler.
func NewPostHandler(db *gorm.DB, identitySvc *identity.Service, asynqClient *asynq.Client) *PostHandler {
	return &PostHandler{db: db, identitySvc: identitySvc, asynqClient: asynqClient}
}

type createPostRequest struct {
	Title    string `json:"title" binding:"required"`
	Content  string `json:"content" binding:"required"`
	ImageURL string `json:"imageUrl"`
}

type updatePostRequest struct {
	Title    *string `json:"title"`
	Content  *string `json:"content"`
	ImageURL *string `json:"imageUrl"`
}

type publishTargetInput struct {
	Platform   string `json:"platform" binding:"required"`
	TemplateID string `json:"templateId" binding:"required"`
}

type publishPostRequest struct {
	Targets     []publishTargetInput `json:"targets" binding:"required"`
	ScheduledAt *time.Time           `json:"scheduledAt"`
}

type postTemplateResponse struct {
	ID               string            `json:"id"`
	TemplateID       string            `json:"templateId"`
	Platform         database.Platform `json:"platform"`
	GeneratedContent string            `json:"generatedContent,omitempty"`
}

type postResponse struct {
	ID            string                 `json:"id"`
	Title         string                 `json:"title"`
	Content       string                 `json:"content"`
	Status        database.PostStatus    `json:"status"`
	ImageURL      string                 `json:"imageUrl,omitempty"`
	ScheduledAt   *time.Time             `json:"scheduledAt,omitempty"`
	PublishedAt   *time.Time             `json:"publishedAt,omitempty"`
	CreatedAt     time.Time              `json:"createdAt"`
	UpdatedAt     time.Time              `json:"updatedAt"`
	PostTemplates []postTemplateResponse `json:"postTemplates"`
}

func (h *PostHandler) resolveUser(c *gin.Context) (*database.User, bool) {
	externalID, ok := middleware.ExternalIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return nil, false
	}
	user, err := h.identitySvc.EnsureUser(c.Request.Context(), externalID)
	if err != nil {
		middleware.LoggerFromContext(c).Error("resolve user failed", logAttr(err))
		Internal(c, "failed to resolve user")
		return nil, false
	}
	return user, true
}

// ListPosts returns the caller's posts newest-first.
func (h *PostHandler) ListPosts(c *gin.Context) {
	user, ok := h.resolveUser(c)
	if !ok {
		return
	}

	var posts []database.Post
	if err := h.db.WithContext(c.Request.Context()).
		Where("user_id = ?", user.ID).
		Preload("PostTemplates").
		Order("created_at DESC").
		Find(&posts).Error; err != nil {
		Internal(c, "failed to list posts")
		return
	}

	items := make([]postResponse, 0, len(posts))
	for _, p := range posts {
		items = append(items, newPostResponse(p))
	}
	c.JSON(http.StatusOK, items)
}

// CreatePost stores a new draft.
func (h *PostHandler) CreatePost(c *gin.Context) {
	user, ok := h.resolveUser(c)
	if !ok {
		return
	}

	var req createPostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	post := database.Post{
		UserID:   user.ID,
		Title:    req.Title,
		Content:  req.Content,
		ImageURL: req.ImageURL,
		Status:   database.PostStatusDraft,
	}
	if err := h.db.WithContext(c.Request.Context()).Create(&post).Error; err != nil {
		Internal(c, "failed to create post")
		return
	}

	c.JSON(http.StatusCreated, newPostResponse(post))
}

// GetPost returns one owned post with its per-platform outputs.
func (h *PostHandler) GetPost(c *gin.Context) {
	user, ok := h.resolveUser(c)
	if !ok {
		return
	}

	post, err := h.postForUser(c.Request.Context(), c.Param("id"), user.ID)
	if err != nil {
		h.replyPostLookupError(c, err)
		return
	}

	c.JSON(http.StatusOK, newPostResponse(*post))
}

// UpdatePost edits a draft. Published posts stay editable; the stored
// per-platform outputs are untouched until the next publish.
func (h *PostHandler) UpdatePost(c *gin.Context) {
	user, ok := h.resolveUser(c)
	if !ok {
		return
	}

	var req updatePostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	post, err := h.postForUser(c.Request.Context(), c.Param("id"), user.ID)
	if err != nil {
		h.replyPostLookupError(c, err)
		return
	}

	updates := map[string]any{}
	if req.Title != nil {
		if *req.Title == "" {
			BadRequest(c, "title must not be empty")
			return
		}
		updates["title"] = *req.Title
	}
	if req.Content != nil {
		if *req.Content == "" {
			BadRequest(c, "content must not be empty")
			return
		}
		updates["content"] = *req.Content
	}
	if req.ImageURL != nil {
		updates["image_url"] = *req.ImageURL
	}

	ctx := c.Request.Context()
	if len(updates) > 0 {
		if err := h.db.WithContext(ctx).Model(post).Updates(updates).Error; err != nil {
			Internal(c, "failed to update post")
			return
		}
	}

	reloaded, err := h.postForUser(ctx, post.ID, user.ID)
	if err != nil {
		Internal(c, "failed to reload post")
		return
	}
	c.JSON(http.StatusOK, newPostResponse(*reloaded))
}

// DeletePost removes an owned post and its per-platform outputs.
func (h *PostHandler) DeletePost(c *gin.Context) {
	user, ok := h.resolveUser(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	err := h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var post database.Post
		if err := tx.Where("id = ? AND user_id = ?", c.Param("id"), user.ID).
			First(&post).Error; err != nil {
			return err
		}
		if err := tx.Where("post_id = ?", post.ID).
			Delete(&database.PostTemplate{}).Error; err != nil {
			return err
		}
		return tx.Delete(&post).Error
	})
	if err != nil {
		h.replyPostLookupError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// PublishPost validates the per-platform targets and enqueues the publish
// task. A future scheduledAt defers processing and marks the post
// SCHEDULED; otherwise it is PENDING and processed immediately.
func (h *PostHandler) PublishPost(c *gin.Context) {
	user, ok := h.resolveUser(c)
	if !ok {
		return
	}

	var req publishPostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	if len(req.Targets) == 0 {
		BadRequest(c, "at least one publish target is required")
		return
	}

	ctx := c.Request.Context()
	post, err := h.postForUser(ctx, c.Param("id"), user.ID)
	if err != nil {
		h.replyPostLookupError(c, err)
		return
	}

	targets := make([]tasks.PublishTarget, 0, len(req.Targets))
	seen := make(map[database.Platform]struct{}, len(req.Targets))
	for _, t := range req.Targets {
		platform, err := database.ParsePlatform(t.Platform)
		if err != nil {
			BadRequest(c, "invalid platform")
			return
		}
		if _, dup := seen[platform]; dup {
			BadRequest(c, "duplicate publish target platform")
			return
		}
		seen[platform] = struct{}{}

		// Each target template must be owned and carry a prompt for the
		// platform; unknown and foreign ids look identical.
		var prompt database.PlatformTemplate
		if err := h.db.WithContext(ctx).
			Joins("JOIN templates ON templates.id = platform_templates.template_id").
			Where("platform_templates.template_id = ? AND platform_templates.platform = ? AND templates.user_id = ?",
				t.TemplateID, platform, user.ID).
			First(&prompt).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				NotFound(c, "template not found")
				return
			}
			Internal(c, "failed to query template")
			return
		}

		targets = append(targets, tasks.PublishTarget{Platform: platform, TemplateID: t.TemplateID})
	}

	status := database.PostStatusPending
	var opts []asynq.Option
	opts = append(opts, asynq.MaxRetry(5))
	if req.ScheduledAt != nil && req.ScheduledAt.After(time.Now()) {
		status = database.PostStatusScheduled
		opts = append(opts, asynq.ProcessAt(*req.ScheduledAt))
	}

	correlationID := middleware.GetCorrelationID(c)
	task, err := tasks.NewPostPublishTask(post.ID, targets, correlationID)
	if err != nil {
		Internal(c, "failed to create task")
		return
	}

	updates := map[string]any{"status": status}
	if status == database.PostStatusScheduled {
		updates["scheduled_at"] = *req.ScheduledAt
	}
	if err := h.db.WithContext(ctx).Model(post).Updates(updates).Error; err != nil {
		Internal(c, "failed to update post status")
		return
	}

	info, err := h.asynqClient.Enqueue(task, opts...)
	if err != nil {
		Internal(c, "failed to enqueue publish")
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"message": "publish request accepted",
		"task_id": info.ID,
		"status":  status,
	})
}

func (h *PostHandler) postForUser(ctx context.Context, postID, userID string) (*database.Post, error) {
	var post database.Post
	if err := h.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", postID, userID).
		Preload("PostTemplates").
		First(&post).Error; err != nil {
		return nil, err
	}
	return &post, nil
}

func (h *PostHandler) replyPostLookupError(c *gin.Context, err error) {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		NotFound(c, "post not found")
		return
	}
	middleware.LoggerFromContext(c).Error("post operation failed", logAttr(err))
	Internal(c, "failed to query post")
}

func newPostResponse(p database.Post) postResponse {
	templates := make([]postTemplateResponse, 0, len(p.PostTemplates))
	for _, pt := range p.PostTemplates {
		templates = append(templates, postTemplateResponse{
			ID:               pt.ID,
			TemplateID:       pt.TemplateID,
			Platform:         pt.Platform,
			GeneratedContent: pt.GeneratedContent,
		})
	}
	return postResponse{
		ID:            p.ID,
		Title:         p.Title,
		Content:       p.Content,
		Status:        p.Status,
		ImageURL:      p.ImageURL,
		ScheduledAt:   p.ScheduledAt,
		PublishedAt:   p.PublishedAt,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
		PostTemplates: templates,
	}
}
