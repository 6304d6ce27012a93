// File: internal/llmclient/openai.go
package llmclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"

	"github.com/xkilldash9x/droidpilot/api/schemas"
	"github.com/xkilldash9x/droidpilot/internal/config"
)

// DashScopeBaseURL is the OpenAI-compatible endpoint serving Qwen models.
const DashScopeBaseURL = "https://dashscope.aliyuncs.com/compatible-mode/v1"

// OpenAIClient implements schemas.LLMClient for any OpenAI-compatible chat
// endpoint (OpenAI itself, DashScope).
type OpenAIClient struct {
	model  llms.Model
	cfg    config.LLMModelConfig
	logger *zap.Logger
}

// NewOpenAIClient builds a langchaingo client. DashScope gets its
// compatible-mode endpoint unless one is configured.
func NewOpenAIClient(cfg config.LLMModelConfig, logger *zap.Logger) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%s API key is required", cfg.Provider)
	}
	opts := []openai.Option{
		openai.WithToken(cfg.APIKey),
		openai.WithModel(cfg.Model),
	}
	baseURL := cfg.Endpoint
	if baseURL == "" && cfg.Provider == config.ProviderDashScope {
		baseURL = DashScopeBaseURL
	}
	if baseURL != "" {
		opts = append(opts, openai.WithBaseURL(baseURL))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s client: %w", cfg.Provider, err)
	}
	return newOpenAIClient(llm, cfg, logger), nil
}

func newOpenAIClient(model llms.Model, cfg config.LLMModelConfig, logger *zap.Logger) *OpenAIClient {
	return &OpenAIClient{model: model, cfg: cfg, logger: logger.Named("llm_client." + cfg.Provider)}
}

// Generate sends one system and one user message and returns the first choice.
func (c *OpenAIClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	var messages []llms.MessageContent
	if req.SystemPrompt != "" {
		messages = append(messages, llms.MessageContent{
			Role:  llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextPart(req.SystemPrompt)},
		})
	}
	user := llms.MessageContent{
		Role:  llms.ChatMessageTypeHuman,
		Parts: []llms.ContentPart{llms.TextPart(req.UserPrompt)},
	}
	for _, a := range req.Attachments {
		user.Parts = append(user.Parts, llms.BinaryPart(a.MIMEType, a.Data))
	}
	messages = append(messages, user)

	opts := []llms.CallOption{llms.WithTemperature(req.Options.Temperature)}
	if req.Options.TopP > 0 {
		opts = append(opts, llms.WithTopP(req.Options.TopP))
	}
	if req.Options.ForceJSONFormat {
		opts = append(opts, llms.WithJSONMode())
	}

	start := time.Now()
	resp, err := c.model.GenerateContent(ctx, messages, opts...)
	if err != nil {
		return "", fmt.Errorf("%s generation failed: %w", c.cfg.Provider, err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", errors.New("model returned no choices")
	}
	c.logger.Info("LLM generation complete",
		zap.String("model", c.cfg.Model),
		zap.Duration("duration", time.Since(start)),
		zap.String("stop_reason", resp.Choices[0].StopReason))
	return resp.Choices[0].Content, nil
}

// Close is a no-op.
func (c *OpenAIClient) Close() error { return nil }

var _ schemas.LLMClient = (*OpenAIClient)(nil)
