package identity

import "socialdraft/internal/database"

// TemplateSeed describes one starter template with its per-platform prompts.
type TemplateSeed struct {
	Name        string
	Description string
	IsDefault   bool
	Prompts     []PromptSeed
}

// PromptSeed pairs a platform with its prompt text.
type PromptSeed struct {
	Platform database.Platform
	Prompt   string
}

// DefaultTemplates returns the starter set seeded for every new user.
func DefaultTemplates() []TemplateSeed {
	return []TemplateSeed{
		{
			Name:        "Professional LinkedIn",
			Description: "Transform content into professional LinkedIn posts with business insights",
			IsDefault:   true,
			Prompts: []PromptSeed{
				{
					Platform: database.PlatformLinkedIn,
					Prompt: `Transform the following content into a professional LinkedIn post.

Guidelines:
- Use a professional, business-focused tone
- Include industry insights and thought leadership
- Keep it engaging but authoritative
- Use bullet points or numbered lists when appropriate
- End with a call-to-action or question to encourage engagement
- Maximum 1300 characters

Content to transform:`,
				},
				{
					Platform: database.PlatformTwitter,
					Prompt: `Transform the following content into a professional Twitter post.

Guidelines:
- Use a professional but conversational tone
- Focus on key insights and takeaways
- Use relevant hashtags (2-3 max)
- Keep it concise and impactful
- Include a call-to-action when appropriate
- Maximum 280 characters

Content to transform:`,
				},
			},
		},
		{
			Name:        "Casual & Friendly",
			Description: "Make content more casual and approachable for social media",
			Prompts: []PromptSeed{
				{
					Platform: database.PlatformLinkedIn,
					Prompt: `Transform the following content into a casual, friendly LinkedIn post.

Guidelines:
- Use a warm, approachable tone
- Make it conversational and relatable
- Include personal anecdotes or examples when relevant
- Use emojis sparingly but effectively
- Ask engaging questions to spark conversation
- Keep it authentic and human
- Maximum 1300 characters

Content to transform:`,
				},
				{
					Platform: database.PlatformTwitter,
					Prompt: `Transform the following content into a casual, friendly Twitter post.

Guidelines:
- Use a warm, conversational tone
- Make it relatable and engaging
- Use emojis to add personality
- Include relevant hashtags (2-3 max)
- Ask questions to encourage interaction
- Keep it fun and approachable
- Maximum 280 characters

Content to transform:`,
				},
			},
		},
		{
			Name:        "Educational & Informative",
			Description: "Transform content into educational posts that teach and inform",
			Prompts: []PromptSeed{
				{
					Platform: database.PlatformLinkedIn,
					Prompt: `Transform the following content into an educational LinkedIn post.

Guidelines:
- Focus on teaching and providing value
- Break down complex concepts into digestible points
- Use "Did you know?" or "Here's what I learned" formats
- Include actionable tips or insights
- Use numbered lists or bullet points for clarity
- Encourage learning and discussion
- Maximum 1300 characters

Content to transform:`,
				},
				{
					Platform: database.PlatformTwitter,
					Prompt: `Transform the following content into an educational Twitter thread or post.

Guidelines:
- Focus on teaching and providing value
- Break down information into digestible chunks
- Use "Pro tip:" or "Quick fact:" formats
- Include actionable insights
- Use relevant hashtags for education topics
- Encourage learning and questions
- Maximum 280 characters (or plan for a thread)

Content to transform:`,
				},
			},
		},
	}
}
