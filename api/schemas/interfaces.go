// File: api/schemas/interfaces.go
package schemas

import (
	"context"
)

// -- Store Interface --

// EpisodeStore persists finished and in-flight episodes. Implementations must
// treat SaveEpisode as an upsert keyed by the episode id, since the executor
// may save the same episode after every step and once more at termination.
type EpisodeStore interface {
	// SaveEpisode writes the full episode record, replacing any earlier version.
	SaveEpisode(ctx context.Context, ep *Episode) error
	// LoadEpisode reads a single episode by id.
	LoadEpisode(ctx context.Context, episodeID string) (*Episode, error)
	// ListEpisodes returns summaries, newest first. A non-positive limit means no limit.
	ListEpisodes(ctx context.Context, limit int) ([]EpisodeSummary, error)
	// Close releases the underlying connection, if any.
	Close() error
}

// -- LLM Client Schemas & Interface --

// ModelTier allows for selecting a large language model based on a preference
// for speed versus advanced capabilities.
type ModelTier string

const (
	TierFast     ModelTier = "fast"     // Prefers a faster, potentially less capable model.
	TierPowerful ModelTier = "powerful" // Prefers a more capable, potentially slower model.
)

// GenerationOptions controls sampling and output format of a single request.
type GenerationOptions struct {
	Temperature     float64 `json:"temperature"`
	TopP            float64 `json:"top_p"`
	ForceJSONFormat bool    `json:"force_json_format"` // Ask the provider for a JSON-only response.
}

// Attachment is a binary input sent alongside the user prompt (e.g. a screenshot).
type Attachment struct {
	MIMEType string `json:"mime_type"`
	Data     []byte `json:"-"`
}

// GenerationRequest encapsulates a complete request to the LLM.
type GenerationRequest struct {
	SystemPrompt string            `json:"system_prompt"`
	UserPrompt   string            `json:"user_prompt"`
	Attachments  []Attachment      `json:"attachments,omitempty"`
	Tier         ModelTier         `json:"tier"`
	Options      GenerationOptions `json:"options"`
}

// LLMClient defines a standard interface for interacting with a Large Language
// Model, abstracting the specifics of the underlying provider.
type LLMClient interface {
	// Generate produces a text completion based on the provided request.
	Generate(ctx context.Context, req GenerationRequest) (string, error)
	// Close cleans up any resources held by the client.
	Close() error
}
