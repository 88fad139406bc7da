package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"socialdraft/internal/database"
)

const systemPrompt = "You are a professional social media content generator. " +
	"You transform raw content into platform-optimized posts following specific guidelines and prompts."

// Output ceilings differ by platform to reflect their character budgets.
const (
	maxTokensLinkedIn = 1000
	maxTokensTwitter  = 300
	temperature       = 0.7
)

// Request describes one content-generation call.
type Request struct {
	Prompt     string
	RawContent string
	Platform   database.Platform
}

// Client wraps the hosted text-generation API. A Client with no credential
// is still constructible; Generate fails fast with ErrMissingAPIKey so the
// rest of the service keeps working.
type Client struct {
	api   *openai.Client
	model string
}

// NewClient builds a client from a credential and model name. An empty
// credential yields an unconfigured client.
func NewClient(apiKey, model string) *Client {
	c := &Client{model: model}
	if strings.TrimSpace(apiKey) != "" {
		c.api = openai.NewClient(apiKey)
	}
	return c
}

// NewClientWithConfig builds a client from a full provider config.
// Tests point BaseURL at a local stub server.
func NewClientWithConfig(cfg openai.ClientConfig, model string) *Client {
	return &Client{api: openai.NewClientWithConfig(cfg), model: model}
}

// Configured reports whether an outbound credential is present. Presence
// only; validity surfaces as ErrInvalidAPIKey on the first real call.
func (c *Client) Configured() bool {
	return c != nil && c.api != nil
}

// Generate composes the final prompt and submits it as a two-message
// exchange. The returned text is trimmed.
func (c *Client) Generate(ctx context.Context, req Request) (string, error) {
	if !c.Configured() {
		return "", ErrMissingAPIKey
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: ComposePrompt(req.Prompt, req.RawContent, req.Platform)},
		},
		MaxTokens:   maxTokensFor(req.Platform),
		Temperature: temperature,
	})
	if err != nil {
		return "", classify(err)
	}

	if len(resp.Choices) == 0 {
		return "", ErrEmptyGeneration
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", ErrEmptyGeneration
	}
	return content, nil
}

// ComposePrompt concatenates the template prompt, the quoted raw content,
// and a trailing instruction naming the target platform.
func ComposePrompt(prompt, rawContent string, platform database.Platform) string {
	return fmt.Sprintf(
		"%s\n\nRaw content to transform:\n\"%s\"\n\nPlease generate content that follows the above instructions for %s.",
		prompt, rawContent, platform,
	)
}

func maxTokensFor(platform database.Platform) int {
	if platform == database.PlatformLinkedIn {
		return maxTokensLinkedIn
	}
	return maxTokensTwitter
}

// classify folds provider errors into the package taxonomy, keeping the
// provider's message out of anything a handler would echo to a client.
func classify(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == 401:
			return fmt.Errorf("%w: %v", ErrInvalidAPIKey, apiErr.HTTPStatusCode)
		case apiErr.HTTPStatusCode == 429:
			return ErrRateLimited
		case apiErr.HTTPStatusCode >= 500:
			return ErrUnavailable
		}
	}
	return fmt.Errorf("%w: %v", ErrGenerationFailed, err)
}
