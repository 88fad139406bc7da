package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"gorm.io/gorm"

	"socialdraft/internal/database"
)

func seedPostUser(t *testing.T, db *gorm.DB, externalID string) database.User {
	t.Helper()
	user := database.User{ExternalID: externalID, Email: externalID + "@b.com"}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	return user
}

func seedPost(t *testing.T, db *gorm.DB, userID string) database.Post {
	t.Helper()
	post := database.Post{
		UserID:  userID,
		Title:   "Draft",
		Content: "raw content",
		Status:  database.PostStatusDraft,
	}
	if err := db.Create(&post).Error; err != nil {
		t.Fatalf("create post: %v", err)
	}
	return post
}

func withParamID(c *gin.Context, id string) {
	c.Params = gin.Params{{Key: "id", Value: id}}
}

func TestCreatePost(t *testing.T) {
	db := newTestDB(t)
	h := NewPostHandler(db, newIdentityService(db), nil)

	body := map[string]any{"title": "Launch", "content": "we shipped"}
	c, w := newAuthedContext(t, "ext-1", http.MethodPost, "/v1/posts", body)
	h.CreatePost(c)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d body=%s", w.Code, w.Body.String())
	}
	var resp postResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != database.PostStatusDraft {
		t.Fatalf("new posts start as drafts, got %s", resp.Status)
	}

	c, w = newAuthedContext(t, "ext-1", http.MethodPost, "/v1/posts", map[string]any{"title": "no content"})
	h.CreatePost(c)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing content got %d", w.Code)
	}
}

func TestGetPost_OwnershipScoped(t *testing.T) {
	db := newTestDB(t)
	h := NewPostHandler(db, newIdentityService(db), nil)

	owner := seedPostUser(t, db, "ext-owner")
	post := seedPost(t, db, owner.ID)

	get := func(externalID, postID string) *httptest.ResponseRecorder {
		c, w := newAuthedContext(t, externalID, http.MethodGet, "/v1/posts/"+postID, nil)
		withParamID(c, postID)
		h.GetPost(c)
		return w
	}

	if w := get("ext-owner", post.ID); w.Code != http.StatusOK {
		t.Fatalf("owner read: expected 200 got %d body=%s", w.Code, w.Body.String())
	}

	foreign := get("ext-intruder", post.ID)
	missing := get("ext-intruder", uuid.NewString())
	if foreign.Code != http.StatusNotFound || missing.Code != http.StatusNotFound {
		t.Fatalf("expected 404/404 got %d/%d", foreign.Code, missing.Code)
	}
	if foreign.Body.String() != missing.Body.String() {
		t.Fatalf("foreign and missing posts must be indistinguishable")
	}
}

func TestUpdatePost_PartialFields(t *testing.T) {
	db := newTestDB(t)
	h := NewPostHandler(db, newIdentityService(db), nil)

	owner := seedPostUser(t, db, "ext-1")
	post := seedPost(t, db, owner.ID)

	patch := func(body map[string]any) *httptest.ResponseRecorder {
		c, w := newAuthedContext(t, "ext-1", http.MethodPatch, "/v1/posts/"+post.ID, body)
		withParamID(c, post.ID)
		h.UpdatePost(c)
		return w
	}

	w := patch(map[string]any{"title": "Renamed"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d body=%s", w.Code, w.Body.String())
	}
	var resp postResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Title != "Renamed" || resp.Content != "raw content" {
		t.Fatalf("expected only the title changed, got %+v", resp)
	}

	if w := patch(map[string]any{"content": ""}); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty content got %d", w.Code)
	}
}

func TestDeletePost_RemovesOutputs(t *testing.T) {
	db := newTestDB(t)
	h := NewPostHandler(db, newIdentityService(db), nil)

	owner := seedPostUser(t, db, "ext-1")
	post := seedPost(t, db, owner.ID)
	output := database.PostTemplate{
		PostID:           post.ID,
		TemplateID:       uuid.NewString(),
		Platform:         database.PlatformLinkedIn,
		GeneratedContent: "x",
	}
	if err := db.Create(&output).Error; err != nil {
		t.Fatalf("create output: %v", err)
	}

	c, w := newAuthedContext(t, "ext-1", http.MethodDelete, "/v1/posts/"+post.ID, nil)
	withParamID(c, post.ID)
	h.DeletePost(c)
	c.Writer.WriteHeaderNow()

	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204 got %d body=%s", w.Code, w.Body.String())
	}

	var outputs int64
	if err := db.Model(&database.PostTemplate{}).
		Where("post_id = ?", post.ID).Count(&outputs).Error; err != nil {
		t.Fatalf("count outputs: %v", err)
	}
	if outputs != 0 {
		t.Fatalf("expected outputs removed, %d remain", outputs)
	}
}

func TestPublishPost_TargetValidation(t *testing.T) {
	db := newTestDB(t)
	h := NewPostHandler(db, newIdentityService(db), nil)

	owner := seedPostUser(t, db, "ext-1")
	post := seedPost(t, db, owner.ID)
	tpl := database.Template{
		Name:   "LinkedIn only",
		UserID: owner.ID,
		PlatformTemplates: []database.PlatformTemplate{
			{Platform: database.PlatformLinkedIn, Prompt: "p"},
		},
	}
	if err := db.Create(&tpl).Error; err != nil {
		t.Fatalf("create template: %v", err)
	}

	other := seedPostUser(t, db, "ext-other")
	foreign := database.Template{
		Name:   "Foreign",
		UserID: other.ID,
		PlatformTemplates: []database.PlatformTemplate{
			{Platform: database.PlatformLinkedIn, Prompt: "p"},
		},
	}
	if err := db.Create(&foreign).Error; err != nil {
		t.Fatalf("create template: %v", err)
	}

	publish := func(body map[string]any) *httptest.ResponseRecorder {
		c, w := newAuthedContext(t, "ext-1", http.MethodPost, "/v1/posts/"+post.ID+"/publish", body)
		withParamID(c, post.ID)
		h.PublishPost(c)
		return w
	}

	cases := []struct {
		name string
		body map[string]any
		want int
	}{
		{"no targets", map[string]any{"targets": []map[string]string{}}, http.StatusBadRequest},
		{"unknown platform", map[string]any{"targets": []map[string]string{
			{"platform": "MYSPACE", "templateId": tpl.ID},
		}}, http.StatusBadRequest},
		{"duplicate platform", map[string]any{"targets": []map[string]string{
			{"platform": "LINKEDIN", "templateId": tpl.ID},
			{"platform": "LINKEDIN", "templateId": tpl.ID},
		}}, http.StatusBadRequest},
		{"platform without prompt", map[string]any{"targets": []map[string]string{
			{"platform": "TWITTER", "templateId": tpl.ID},
		}}, http.StatusNotFound},
		{"foreign template", map[string]any{"targets": []map[string]string{
			{"platform": "LINKEDIN", "templateId": foreign.ID},
		}}, http.StatusNotFound},
	}
	for _, tc := range cases {
		if w := publish(tc.body); w.Code != tc.want {
			t.Fatalf("%s: expected %d got %d body=%s", tc.name, tc.want, w.Code, w.Body.String())
		}
	}

	var reloaded database.Post
	if err := db.First(&reloaded, "id = ?", post.ID).Error; err != nil {
		t.Fatalf("reload post: %v", err)
	}
	if reloaded.Status != database.PostStatusDraft {
		t.Fatalf("rejected publish must not change status, got %s", reloaded.Status)
	}
}

func TestPublishPost_Enqueues(t *testing.T) {
	db := newTestDB(t)
	mr := miniredis.RunT(t)
	asynqClient := asynq.NewClient(asynq.RedisClientOpt{Addr: mr.Addr()})
	defer asynqClient.Close()

	h := NewPostHandler(db, newIdentityService(db), asynqClient)

	owner := seedPostUser(t, db, "ext-1")
	post := seedPost(t, db, owner.ID)
	tpl := database.Template{
		Name:   "Both platforms",
		UserID: owner.ID,
		PlatformTemplates: []database.PlatformTemplate{
			{Platform: database.PlatformLinkedIn, Prompt: "p"},
			{Platform: database.PlatformTwitter, Prompt: "p"},
		},
	}
	if err := db.Create(&tpl).Error; err != nil {
		t.Fatalf("create template: %v", err)
	}

	body := map[string]any{"targets": []map[string]string{
		{"platform": "LINKEDIN", "templateId": tpl.ID},
		{"platform": "TWITTER", "templateId": tpl.ID},
	}}
	c, w := newAuthedContext(t, "ext-1", http.MethodPost, "/v1/posts/"+post.ID+"/publish", body)
	withParamID(c, post.ID)
	h.PublishPost(c)

	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202 got %d body=%s", w.Code, w.Body.String())
	}

	var reloaded database.Post
	if err := db.First(&reloaded, "id = ?", post.ID).Error; err != nil {
		t.Fatalf("reload post: %v", err)
	}
	if reloaded.Status != database.PostStatusPending {
		t.Fatalf("expected PENDING got %s", reloaded.Status)
	}
}

func TestPublishPost_FutureScheduleMarksScheduled(t *testing.T) {
	db := newTestDB(t)
	mr := miniredis.RunT(t)
	asynqClient := asynq.NewClient(asynq.RedisClientOpt{Addr: mr.Addr()})
	defer asynqClient.Close()

	h := NewPostHandler(db, newIdentityService(db), asynqClient)

	owner := seedPostUser(t, db, "ext-1")
	post := seedPost(t, db, owner.ID)
	tpl := database.Template{
		Name:   "LinkedIn",
		UserID: owner.ID,
		PlatformTemplates: []database.PlatformTemplate{
			{Platform: database.PlatformLinkedIn, Prompt: "p"},
		},
	}
	if err := db.Create(&tpl).Error; err != nil {
		t.Fatalf("create template: %v", err)
	}

	scheduledAt := time.Now().Add(2 * time.Hour).UTC()
	body := map[string]any{
		"targets":     []map[string]string{{"platform": "LINKEDIN", "templateId": tpl.ID}},
		"scheduledAt": scheduledAt.Format(time.RFC3339),
	}
	c, w := newAuthedContext(t, "ext-1", http.MethodPost, "/v1/posts/"+post.ID+"/publish", body)
	withParamID(c, post.ID)
	h.PublishPost(c)

	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202 got %d body=%s", w.Code, w.Body.String())
	}

	var reloaded database.Post
	if err := db.First(&reloaded, "id = ?", post.ID).Error; err != nil {
		t.Fatalf("reload post: %v", err)
	}
	if reloaded.Status != database.PostStatusScheduled {
		t.Fatalf("expected SCHEDULED got %s", reloaded.Status)
	}
	if reloaded.ScheduledAt == nil {
		t.Fatalf("scheduled_at not stored")
	}
}
