package generation

import "errors"

// Failure categories surfaced by the generation client. Handlers map these
// to HTTP statuses; the provider's own error text never leaves the server.
var (
	// ErrMissingAPIKey means no outbound credential is configured at all.
	ErrMissingAPIKey = errors.New("text-generation api key is not configured")
	// ErrInvalidAPIKey means the provider rejected the configured credential.
	ErrInvalidAPIKey = errors.New("text-generation api key is invalid")
	// ErrRateLimited means the provider reported rate limiting.
	ErrRateLimited = errors.New("text-generation rate limit exceeded")
	// ErrUnavailable means the provider reported a transient outage.
	ErrUnavailable = errors.New("text-generation service temporarily unavailable")
	// ErrEmptyGeneration means the call succeeded but returned no content.
	ErrEmptyGeneration = errors.New("no content generated")
	// ErrGenerationFailed covers everything else.
	ErrGenerationFailed = errors.New("content generation failed")
)
