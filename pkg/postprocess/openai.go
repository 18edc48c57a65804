package postprocess

import (
	"context"
	"fmt"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

// OpenAIBackend completes post-processing prompts through an
// OpenAI-compatible chat-completions endpoint. Mistral is served by the same
// backend with BaseURL pointed at Mistral's OpenAI-compatible API.
type OpenAIBackend struct {
	client       oai.Client
	defaultModel string
}

// NewOpenAIBackend constructs a backend for the OpenAI chat-completions API.
// An empty baseURL uses OpenAI's default; pass Mistral's API base to reuse
// this backend for the Mistral PostProcessor.
func NewOpenAIBackend(apiKey, baseURL, defaultModel string) *OpenAIBackend {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAIBackend{client: oai.NewClient(opts...), defaultModel: defaultModel}
}

// Complete implements Backend.
func (b *OpenAIBackend) Complete(ctx context.Context, prompt, text, model string) (string, error) {
	if model == "" {
		model = b.defaultModel
	}

	params := oai.ChatCompletionNewParams{
		Model: shared.ChatModel(model),
		Messages: []oai.ChatCompletionMessageParamUnion{
			oai.SystemMessage(prompt),
			oai.UserMessage(text),
		},
	}

	resp, err := b.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("postprocess/openai: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("postprocess/openai: empty choices in response")
	}
	return resp.Choices[0].Message.Content, nil
}

var _ Backend = (*OpenAIBackend)(nil)
