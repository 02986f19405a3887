package analyzer

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/pario-ai/lens/pkg/models"
)

// OpenAI analyzes articles through any OpenAI-compatible chat completions API.
type OpenAI struct {
	client openai.Client
	model  string
}

// NewOpenAI creates an analyzer for the given endpoint and model.
func NewOpenAI(baseURL, apiKey, model string, timeout time.Duration) (*OpenAI, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("analyzer API key is required")
	}
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(&http.Client{Timeout: timeout}),
		// Retries are a caller decision.
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAI{client: openai.NewClient(opts...), model: model}, nil
}

// Analyze implements Analyzer.
func (o *OpenAI) Analyze(ctx context.Context, in Input) (models.AnalysisResult, error) {
	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(o.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(buildSystemPrompt()),
			openai.UserMessage(buildUserPrompt(in)),
		},
	})
	if err != nil {
		return models.AnalysisResult{}, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return models.AnalysisResult{}, fmt.Errorf("%w: empty choices", ErrMalformedResponse)
	}
	return ParseResult(resp.Choices[0].Message.Content)
}
