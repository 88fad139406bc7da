package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"socialdraft/internal/api/middleware"
	"socialdraft/internal/database"
	"socialdraft/internal/identity"
)

// TemplateHandler owns the template CRUD surface. Every operation is
// scoped to the caller's rows; a foreign id and a nonexistent id are
// indistinguishable to the client.
type TemplateHandler struct {
	db          *gorm.DB
	identitySvc *identity.Service
}

// NewTemplateHandler constructs the handler.
func NewTemplateHandler(db *gorm.DB, identitySvc *identity.Service) *TemplateHandler {
	return &TemplateHandler{db: db, identitySvc: identitySvc}
}

type platformPromptInput struct {
	Platform string `json:"platform" binding:"required"`
	Prompt   string `json:"prompt" binding:"required"`
}

type createTemplateRequest struct {
	Name            string                `json:"name" binding:"required"`
	Description     string                `json:"description"`
	PlatformPrompts []platformPromptInput `json:"platformPrompts"`
	// Single-platform convenience shape.
	Platform string `json:"platform"`
	Prompt   string `json:"prompt"`
}

type updateTemplateRequest struct {
	Name            string                `json:"name" binding:"required"`
	Description     *string               `json:"description"`
	IsDefault       *bool                 `json:"isDefault"`
	PlatformPrompts []platformPromptInput `json:"platformPrompts"`
}

type platformTemplateResponse struct {
	ID        string            `json:"id"`
	Platform  database.Platform `json:"platform"`
	Prompt    string            `json:"prompt"`
	CreatedAt time.Time         `json:"createdAt"`
	UpdatedAt time.Time         `json:"updatedAt"`
}

type templateResponse struct {
	ID                string                     `json:"id"`
	Name              string                     `json:"name"`
	Description       string                     `json:"description,omitempty"`
	IsDefault         bool                       `json:"isDefault"`
	CreatedAt         time.Time                  `json:"createdAt"`
	UpdatedAt         time.Time                  `json:"updatedAt"`
	PlatformTemplates []platformTemplateResponse `json:"platformTemplates"`
}

// resolveUser maps the authenticated external id to the local user row,
// provisioning it lazily on first use.
func (h *TemplateHandler) resolveUser(c *gin.Context) (*database.User, bool) {
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

// ListTemplates returns the caller's templates newest-first, optionally
// narrowed to those with a prompt for the given platform.
func (h *TemplateHandler) ListTemplates(c *gin.Context) {
	user, ok := h.resolveUser(c)
	if !ok {
		return
	}

	query := h.db.WithContext(c.Request.Context()).
		Where("user_id = ?", user.ID).
		Preload("PlatformTemplates").
		Order("created_at DESC")

	if raw := c.Query("platform"); raw != "" {
		platform, err := database.ParsePlatform(raw)
		if err != nil {
			BadRequest(c, "invalid platform")
			return
		}
		query = query.Where(
			"id IN (?)",
			h.db.Model(&database.PlatformTemplate{}).
				Select("template_id").
				Where("platform = ?", platform),
		)
	}

	var templates []database.Template
	if err := query.Find(&templates).Error; err != nil {
		Internal(c, "failed to list templates")
		return
	}

	items := make([]templateResponse, 0, len(templates))
	for _, t := range templates {
		items = append(items, newTemplateResponse(t))
	}
	c.JSON(http.StatusOK, items)
}

// CreateTemplate stores a new template with its platform prompts.
func (h *TemplateHandler) CreateTemplate(c *gin.Context) {
	user, ok := h.resolveUser(c)
	if !ok {
		return
	}

	var req createTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	prompts := req.PlatformPrompts
	if len(prompts) == 0 {
		if req.Platform == "" || req.Prompt == "" {
			BadRequest(c, "at least one platform prompt is required")
			return
		}
		prompts = []platformPromptInput{{Platform: req.Platform, Prompt: req.Prompt}}
	}

	children, err := buildPlatformTemplates(prompts)
	if err != nil {
		BadRequest(c, err.Error())
		return
	}

	model := database.Template{
		Name:              req.Name,
		Description:       req.Description,
		UserID:            user.ID,
		PlatformTemplates: children,
	}

	if err := h.db.WithContext(c.Request.Context()).Create(&model).Error; err != nil {
		Internal(c, "failed to create template")
		return
	}

	c.JSON(http.StatusOK, newTemplateResponse(model))
}

// GetTemplate returns one owned template with its prompts.
func (h *TemplateHandler) GetTemplate(c *gin.Context) {
	user, ok := h.resolveUser(c)
	if !ok {
		return
	}

	model, err := h.templateForUser(c, c.Param("id"), user.ID)
	if err != nil {
		h.replyTemplateLookupError(c, err)
		return
	}

	c.JSON(http.StatusOK, newTemplateResponse(*model))
}

// UpdateTemplate updates name/description/prompts and handles the default
// flag: setting it flips every other default off in the same transaction,
// so at most one default per user survives the call.
func (h *TemplateHandler) UpdateTemplate(c *gin.Context) {
	user, ok := h.resolveUser(c)
	if !ok {
		return
	}

	var req updateTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	var children []database.PlatformTemplate
	if req.PlatformPrompts != nil {
		var err error
		children, err = buildPlatformTemplates(req.PlatformPrompts)
		if err != nil {
			BadRequest(c, err.Error())
			return
		}
	}

	ctx := c.Request.Context()
	templateID := c.Param("id")

	var updated database.Template
	err := h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var model database.Template
		if err := tx.Where("id = ? AND user_id = ?", templateID, user.ID).
			First(&model).Error; err != nil {
			return err
		}

		updates := map[string]any{"name": req.Name}
		if req.Description != nil {
			updates["description"] = *req.Description
		}
		if req.IsDefault != nil {
			if *req.IsDefault {
				if err := tx.Model(&database.Template{}).
					Where("user_id = ? AND id <> ? AND is_default = ?", user.ID, model.ID, true).
					Update("is_default", false).Error; err != nil {
					return err
				}
			}
			updates["is_default"] = *req.IsDefault
		}

		if err := tx.Model(&model).Updates(updates).Error; err != nil {
			return err
		}

		if children != nil {
			if err := tx.Where("template_id = ?", model.ID).
				Delete(&database.PlatformTemplate{}).Error; err != nil {
				return err
			}
			for i := range children {
				children[i].TemplateID = model.ID
			}
			if err := tx.Create(&children).Error; err != nil {
				return err
			}
		}

		return tx.Where("id = ?", model.ID).
			Preload("PlatformTemplates").
			First(&updated).Error
	})
	if err != nil {
		h.replyTemplateLookupError(c, err)
		return
	}

	c.JSON(http.StatusOK, newTemplateResponse(updated))
}

// DeleteTemplate removes an owned template and its platform prompts.
func (h *TemplateHandler) DeleteTemplate(c *gin.Context) {
	user, ok := h.resolveUser(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	templateID := c.Param("id")

	err := h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var model database.Template
		if err := tx.Where("id = ? AND user_id = ?", templateID, user.ID).
			First(&model).Error; err != nil {
			return err
		}
		if err := tx.Where("template_id = ?", model.ID).
			Delete(&database.PlatformTemplate{}).Error; err != nil {
			return err
		}
		return tx.Delete(&model).Error
	})
	if err != nil {
		h.replyTemplateLookupError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *TemplateHandler) templateForUser(c *gin.Context, templateID, userID string) (*database.Template, error) {
	var model database.Template
	if err := h.db.WithContext(c.Request.Context()).
		Where("id = ? AND user_id = ?", templateID, userID).
		Preload("PlatformTemplates").
		First(&model).Error; err != nil {
		return nil, err
	}
	return &model, nil
}

func (h *TemplateHandler) replyTemplateLookupError(c *gin.Context, err error) {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		NotFound(c, "template not found")
		return
	}
	middleware.LoggerFromContext(c).Error("template operation failed", logAttr(err))
	Internal(c, "failed to query template")
}

func buildPlatformTemplates(prompts []platformPromptInput) ([]database.PlatformTemplate, error) {
	if len(prompts) == 0 {
		return nil, errors.New("at least one platform prompt is required")
	}

	seen := make(map[database.Platform]struct{}, len(prompts))
	children := make([]database.PlatformTemplate, 0, len(prompts))
	for _, p := range prompts {
		platform, err := database.ParsePlatform(p.Platform)
		if err != nil {
			return nil, errors.New("invalid platform")
		}
		if p.Prompt == "" {
			return nil, errors.New("prompt is required for every platform")
		}
		if _, dup := seen[platform]; dup {
			return nil, fmt.Errorf("duplicate prompt for platform %s", platform)
		}
		seen[platform] = struct{}{}
		children = append(children, database.PlatformTemplate{
			Platform: platform,
			Prompt:   p.Prompt,
		})
	}
	return children, nil
}

func newTemplateResponse(t database.Template) templateResponse {
	prompts := make([]platformTemplateResponse, 0, len(t.PlatformTemplates))
	for _, pt := range t.PlatformTemplates {
		prompts = append(prompts, platformTemplateResponse{
			ID:        pt.ID,
			Platform:  pt.Platform,
			Prompt:    pt.Prompt,
			CreatedAt: pt.CreatedAt,
			UpdatedAt: pt.UpdatedAt,
		})
	}
	return templateResponse{
		ID:                t.ID,
		Name:              t.Name,
		Description:       t.Description,
		IsDefault:         t.IsDefault,
		CreatedAt:         t.CreatedAt,
		UpdatedAt:         t.UpdatedAt,
		PlatformTemplates: prompts,
	}
}
