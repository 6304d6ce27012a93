// File: internal/llmclient/gemini_test.go
package llmclient

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/genai"
)

type mockGenerator struct {
	mock.Mock
}

func (m *mockGenerator) GenerateContent(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	args := m.Called(ctx, model, contents, cfg)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*genai.GenerateContentResponse), args.Error(1)
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: genai.NewContentFromText(text, genai.RoleModel),
		}},
		UsageMetadata: &genai.GenerateContentResponseUsageMetadata{PromptTokenCount: 10, CandidatesTokenCount: 5, TotalTokenCount: 15},
	}
}

func TestNewGeminiClient(t *testing.T) {
	t.Run("should require an API key", func(t *testing.T) {
		cfg := getValidLLMConfig()
		cfg.APIKey = ""
		_, err := NewGeminiClient(context.Background(), cfg, zaptest.NewLogger(t))
		assert.ErrorContains(t, err, "API key is required")
	})
}

func TestGeminiClientGenerate(t *testing.T) {
	ctx := context.Background()

	t.Run("should build the request and return the candidate text", func(t *testing.T) {
		gen := new(mockGenerator)
		client := newGeminiClient(gen, getValidLLMConfig(), zaptest.NewLogger(t))

		gen.On("GenerateContent", mock.Anything, "test-model",
			mock.MatchedBy(func(contents []*genai.Content) bool {
				if len(contents) != 1 || contents[0].Role != genai.RoleUser || len(contents[0].Parts) != 2 {
					return false
				}
				return contents[0].Parts[0].Text == "Task: open settings" &&
					contents[0].Parts[1].InlineData != nil &&
					contents[0].Parts[1].InlineData.MIMEType == "image/png"
			}),
			mock.MatchedBy(func(cfg *genai.GenerateContentConfig) bool {
				return cfg.ResponseMIMEType == "application/json" &&
					*cfg.Temperature == float32(0.2) &&
					*cfg.TopP == float32(0.8) &&
					cfg.SystemInstruction.Parts[0].Text == "You operate an Android phone."
			}),
		).Return(textResponse(`{"plan": []}`), nil).Once()

		out, err := client.Generate(ctx, sampleRequest())
		require.NoError(t, err)
		assert.Equal(t, `{"plan": []}`, out)
		gen.AssertExpectations(t)
	})

	t.Run("should retry rate limiting", func(t *testing.T) {
		gen := new(mockGenerator)
		client := newGeminiClient(gen, getValidLLMConfig(), zaptest.NewLogger(t))
		client.maxElapsed = 10 * time.Second

		gen.On("GenerateContent", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(nil, genai.APIError{Code: 429, Message: "quota"}).Once()
		gen.On("GenerateContent", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(textResponse("ok"), nil).Once()

		out, err := client.Generate(ctx, sampleRequest())
		require.NoError(t, err)
		assert.Equal(t, "ok", out)
		gen.AssertNumberOfCalls(t, "GenerateContent", 2)
	})

	t.Run("should not retry client errors", func(t *testing.T) {
		gen := new(mockGenerator)
		client := newGeminiClient(gen, getValidLLMConfig(), zaptest.NewLogger(t))

		gen.On("GenerateContent", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(nil, genai.APIError{Code: 400, Message: "bad model"}).Once()

		_, err := client.Generate(ctx, sampleRequest())
		require.Error(t, err)
		gen.AssertNumberOfCalls(t, "GenerateContent", 1)
	})

	t.Run("should fail on an empty candidate list", func(t *testing.T) {
		gen := new(mockGenerator)
		client := newGeminiClient(gen, getValidLLMConfig(), zaptest.NewLogger(t))
		gen.On("GenerateContent", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(&genai.GenerateContentResponse{}, nil).Once()

		_, err := client.Generate(ctx, sampleRequest())
		assert.ErrorContains(t, err, "no candidates")
	})

	t.Run("should stop on safety blocks", func(t *testing.T) {
		gen := new(mockGenerator)
		client := newGeminiClient(gen, getValidLLMConfig(), zaptest.NewLogger(t))
		gen.On("GenerateContent", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(&genai.GenerateContentResponse{Candidates: []*genai.Candidate{{FinishReason: genai.FinishReasonSafety}}}, nil).Once()

		_, err := client.Generate(ctx, sampleRequest())
		assert.ErrorContains(t, err, "blocked")
		gen.AssertNumberOfCalls(t, "GenerateContent", 1)
	})
}
