package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"socialdraft/internal/database"
)

// PublishNotifyMessage is the WebSocket message protocol for publish
// outcomes, forwarded to the frontend via Redis pub/sub. Field names are
// part of the client contract.
type PublishNotifyMessage struct {
	Status        string              `json:"status"`
	PostID        string              `json:"post_id"`
	CorrelationID string              `json:"correlation_id"`
	Platforms     []database.Platform `json:"platforms,omitempty"`
	ErrorMessage  string              `json:"error_message,omitempty"`
}

// NotifyChannel names the pub/sub channel carrying one user's publish
// notifications. The WebSocket handler subscribes to the same name.
func NotifyChannel(userID string) string {
	return "user_notify:" + userID
}

func publishNotify(ctx context.Context, client *redis.Client, userID string, msg PublishNotifyMessage) error {
	if client == nil {
		return nil
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal notify message: %w", err)
	}
	return client.Publish(ctx, NotifyChannel(userID), payload).Err()
}
