package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"socialdraft/internal/database"
	"socialdraft/internal/identity"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s-%s?mode=memory&cache=shared", t.Name(), uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func newIdentityService(db *gorm.DB) *identity.Service {
	return identity.NewService(db, slog.Default())
}

// newAuthedContext builds a test context carrying the external id the
// auth middleware would have injected.
func newAuthedContext(t *testing.T, externalID, method, target string, body any) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	var reader *bytes.Buffer
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewBuffer(raw)
	} else {
		reader = &bytes.Buffer{}
	}

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(method, target, reader)
	c.Request.Header.Set("Content-Type", "application/json")
	c.Set("externalID", externalID)
	return c, w
}

func decodeTemplate(t *testing.T, w *httptest.ResponseRecorder) templateResponse {
	t.Helper()
	var resp templateResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode template response: %v body=%s", err, w.Body.String())
	}
	return resp
}

func TestListTemplates_SeedsDefaultsOnFirstUse(t *testing.T) {
	db := newTestDB(t)
	h := NewTemplateHandler(db, newIdentityService(db))

	c, w := newAuthedContext(t, "ext-fresh", http.MethodGet, "/v1/templates", nil)
	h.ListTemplates(c)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d body=%s", w.Code, w.Body.String())
	}

	var items []templateResponse
	if err := json.Unmarshal(w.Body.Bytes(), &items); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(items) != len(identity.DefaultTemplates()) {
		t.Fatalf("expected %d seeded templates got %d", len(identity.DefaultTemplates()), len(items))
	}
	for _, item := range items {
		if len(item.PlatformTemplates) != 2 {
			t.Fatalf("template %q: expected prompts for both platforms, got %d", item.Name, len(item.PlatformTemplates))
		}
	}
}

func TestListTemplates_PlatformFilter(t *testing.T) {
	db := newTestDB(t)
	h := NewTemplateHandler(db, newIdentityService(db))

	user := database.User{ExternalID: "ext-1", Email: "a@b.com"}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	linkedinOnly := database.Template{
		Name:   "LinkedIn only",
		UserID: user.ID,
		PlatformTemplates: []database.PlatformTemplate{
			{Platform: database.PlatformLinkedIn, Prompt: "p"},
		},
	}
	twitterOnly := database.Template{
		Name:   "Twitter only",
		UserID: user.ID,
		PlatformTemplates: []database.PlatformTemplate{
			{Platform: database.PlatformTwitter, Prompt: "p"},
		},
	}
	if err := db.Create(&linkedinOnly).Error; err != nil {
		t.Fatalf("create template: %v", err)
	}
	if err := db.Create(&twitterOnly).Error; err != nil {
		t.Fatalf("create template: %v", err)
	}

	c, w := newAuthedContext(t, "ext-1", http.MethodGet, "/v1/templates?platform=twitter", nil)
	h.ListTemplates(c)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d body=%s", w.Code, w.Body.String())
	}
	var items []templateResponse
	if err := json.Unmarshal(w.Body.Bytes(), &items); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(items) != 1 || items[0].Name != "Twitter only" {
		t.Fatalf("expected only the twitter template, got %+v", items)
	}

	c, w = newAuthedContext(t, "ext-1", http.MethodGet, "/v1/templates?platform=myspace", nil)
	h.ListTemplates(c)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown platform got %d", w.Code)
	}
}

func TestCreateTemplate_Validation(t *testing.T) {
	db := newTestDB(t)
	h := NewTemplateHandler(db, newIdentityService(db))

	cases := []struct {
		name string
		body map[string]any
	}{
		{"missing name", map[string]any{"platform": "LINKEDIN", "prompt": "p"}},
		{"no prompts", map[string]any{"name": "Empty"}},
		{"unknown platform", map[string]any{
			"name":            "Bad",
			"platformPrompts": []map[string]string{{"platform": "MYSPACE", "prompt": "p"}},
		}},
		{"duplicate platform", map[string]any{
			"name": "Dup",
			"platformPrompts": []map[string]string{
				{"platform": "LINKEDIN", "prompt": "a"},
				{"platform": "LINKEDIN", "prompt": "b"},
			},
		}},
	}

	for _, tc := range cases {
		c, w := newAuthedContext(t, "ext-1", http.MethodPost, "/v1/templates", tc.body)
		h.CreateTemplate(c)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400 got %d body=%s", tc.name, w.Code, w.Body.String())
		}
	}
}

func TestCreateTemplate_ConvenienceShape(t *testing.T) {
	db := newTestDB(t)
	h := NewTemplateHandler(db, newIdentityService(db))

	body := map[string]any{
		"name":     "One platform",
		"platform": "linkedin",
		"prompt":   "Write it properly",
	}
	c, w := newAuthedContext(t, "ext-1", http.MethodPost, "/v1/templates", body)
	h.CreateTemplate(c)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d body=%s", w.Code, w.Body.String())
	}
	resp := decodeTemplate(t, w)
	if len(resp.PlatformTemplates) != 1 {
		t.Fatalf("expected one platform prompt got %d", len(resp.PlatformTemplates))
	}
	if resp.PlatformTemplates[0].Platform != database.PlatformLinkedIn {
		t.Fatalf("expected LINKEDIN got %s", resp.PlatformTemplates[0].Platform)
	}
}

func TestGetTemplate_ForeignIDLooksNonexistent(t *testing.T) {
	db := newTestDB(t)
	h := NewTemplateHandler(db, newIdentityService(db))

	owner := database.User{ExternalID: "ext-owner", Email: "owner@b.com"}
	if err := db.Create(&owner).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	tpl := database.Template{Name: "Private", UserID: owner.ID}
	if err := db.Create(&tpl).Error; err != nil {
		t.Fatalf("create template: %v", err)
	}

	get := func(externalID, templateID string) *httptest.ResponseRecorder {
		c, w := newAuthedContext(t, externalID, http.MethodGet, "/v1/templates/"+templateID, nil)
		c.Params = gin.Params{{Key: "id", Value: templateID}}
		h.GetTemplate(c)
		return w
	}

	foreign := get("ext-intruder", tpl.ID)
	missing := get("ext-intruder", uuid.NewString())

	if foreign.Code != http.StatusNotFound || missing.Code != http.StatusNotFound {
		t.Fatalf("expected 404/404 got %d/%d", foreign.Code, missing.Code)
	}
	if foreign.Body.String() != missing.Body.String() {
		t.Fatalf("foreign and missing lookups must be indistinguishable: %s vs %s",
			foreign.Body.String(), missing.Body.String())
	}
}

func TestUpdateTemplate_DefaultFlip(t *testing.T) {
	db := newTestDB(t)
	svc := newIdentityService(db)
	h := NewTemplateHandler(db, svc)

	user, err := svc.EnsureUser(context.Background(), "ext-1")
	if err != nil {
		t.Fatalf("ensure user: %v", err)
	}

	var seeded []database.Template
	if err := db.Where("user_id = ?", user.ID).Order("name").Find(&seeded).Error; err != nil {
		t.Fatalf("load templates: %v", err)
	}
	var current, next database.Template
	for _, tpl := range seeded {
		if tpl.IsDefault {
			current = tpl
		} else if next.ID == "" {
			next = tpl
		}
	}
	if current.ID == "" || next.ID == "" {
		t.Fatalf("seed did not produce a default plus others")
	}

	body := map[string]any{"name": next.Name, "isDefault": true}
	c, w := newAuthedContext(t, "ext-1", http.MethodPatch, "/v1/templates/"+next.ID, body)
	c.Params = gin.Params{{Key: "id", Value: next.ID}}
	h.UpdateTemplate(c)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d body=%s", w.Code, w.Body.String())
	}
	if resp := decodeTemplate(t, w); !resp.IsDefault {
		t.Fatalf("updated template should be the default")
	}

	var defaults []database.Template
	if err := db.Where("user_id = ? AND is_default = ?", user.ID, true).Find(&defaults).Error; err != nil {
		t.Fatalf("load defaults: %v", err)
	}
	if len(defaults) != 1 || defaults[0].ID != next.ID {
		t.Fatalf("expected exactly one default (%s), got %+v", next.ID, defaults)
	}
}

func TestUpdateTemplate_ReplacesPrompts(t *testing.T) {
	db := newTestDB(t)
	h := NewTemplateHandler(db, newIdentityService(db))

	user := database.User{ExternalID: "ext-1", Email: "a@b.com"}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	tpl := database.Template{
		Name:   "Original",
		UserID: user.ID,
		PlatformTemplates: []database.PlatformTemplate{
			{Platform: database.PlatformLinkedIn, Prompt: "old"},
			{Platform: database.PlatformTwitter, Prompt: "old"},
		},
	}
	if err := db.Create(&tpl).Error; err != nil {
		t.Fatalf("create template: %v", err)
	}

	body := map[string]any{
		"name": "Renamed",
		"platformPrompts": []map[string]string{
			{"platform": "TWITTER", "prompt": "fresh"},
		},
	}
	c, w := newAuthedContext(t, "ext-1", http.MethodPatch, "/v1/templates/"+tpl.ID, body)
	c.Params = gin.Params{{Key: "id", Value: tpl.ID}}
	h.UpdateTemplate(c)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d body=%s", w.Code, w.Body.String())
	}
	resp := decodeTemplate(t, w)
	if resp.Name != "Renamed" {
		t.Fatalf("expected renamed template got %q", resp.Name)
	}
	if len(resp.PlatformTemplates) != 1 || resp.PlatformTemplates[0].Prompt != "fresh" {
		t.Fatalf("expected prompts replaced, got %+v", resp.PlatformTemplates)
	}

	var remaining int64
	if err := db.Model(&database.PlatformTemplate{}).
		Where("template_id = ?", tpl.ID).Count(&remaining).Error; err != nil {
		t.Fatalf("count prompts: %v", err)
	}
	if remaining != 1 {
		t.Fatalf("expected old prompts deleted, %d rows remain", remaining)
	}
}

func TestDeleteTemplate_RemovesPrompts(t *testing.T) {
	db := newTestDB(t)
	h := NewTemplateHandler(db, newIdentityService(db))

	user := database.User{ExternalID: "ext-1", Email: "a@b.com"}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	tpl := database.Template{
		Name:   "Doomed",
		UserID: user.ID,
		PlatformTemplates: []database.PlatformTemplate{
			{Platform: database.PlatformLinkedIn, Prompt: "p"},
		},
	}
	if err := db.Create(&tpl).Error; err != nil {
		t.Fatalf("create template: %v", err)
	}

	del := func() *httptest.ResponseRecorder {
		c, w := newAuthedContext(t, "ext-1", http.MethodDelete, "/v1/templates/"+tpl.ID, nil)
		c.Params = gin.Params{{Key: "id", Value: tpl.ID}}
		h.DeleteTemplate(c)
		return w
	}

	if w := del(); w.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d body=%s", w.Code, w.Body.String())
	}

	var prompts int64
	if err := db.Model(&database.PlatformTemplate{}).
		Where("template_id = ?", tpl.ID).Count(&prompts).Error; err != nil {
		t.Fatalf("count prompts: %v", err)
	}
	if prompts != 0 {
		t.Fatalf("expected platform prompts removed, %d remain", prompts)
	}

	if w := del(); w.Code != http.StatusNotFound {
		t.Fatalf("second delete: expected 404 got %d", w.Code)
	}
}
