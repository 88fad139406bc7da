package tasks

import (
	"encoding/json"

	"github.com/hibiken/asynq"

	"socialdraft/internal/database"
)

// Task type constants keep queue producers and consumers in sync.
const (
	TypePostPublish = "post:publish"
)

// PublishTarget names one platform a post should be published to and the
// template whose prompt drives its generation.
type PublishTarget struct {
	Platform   database.Platform `json:"platform"`
	TemplateID string            `json:"template_id"`
}

// PostPublishPayload describes the minimum information needed to publish
// a post.
type PostPublishPayload struct {
	PostID        string          `json:"post_id"`
	Targets       []PublishTarget `json:"targets"`
	CorrelationID string          `json:"correlation_id"`
}

// NewPostPublishTask builds a publish task for one post.
func NewPostPublishTask(postID string, targets []PublishTarget, correlationID string) (*asynq.Task, error) {
	payload, err := json.Marshal(PostPublishPayload{
		PostID:        postID,
		Targets:       targets,
		CorrelationID: correlationID,
	})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypePostPublish, payload), nil
}
