package translate

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

// defaultPrompt is the system prompt used when the endpoint config does not
// override it. {target_lang} is replaced with the language name.
const defaultPrompt = "You are a professional subtitle translator. Translate the user's text to {target_lang}. " +
	"Preserve line breaks and do not add commentary; output only the translation."

// OpenAI translates through an OpenAI-compatible chat endpoint.
type OpenAI struct {
	client oai.Client
	model  string
	prompt string
}

// OpenAIOption configures an [OpenAI].
type OpenAIOption func(*openaiConfig)

type openaiConfig struct {
	baseURL string
	prompt  string
	timeout time.Duration
}

// WithOpenAIBaseURL overrides the default API base URL.
func WithOpenAIBaseURL(url string) OpenAIOption {
	return func(c *openaiConfig) { c.baseURL = url }
}

// WithOpenAIPrompt overrides the system prompt template.
func WithOpenAIPrompt(prompt string) OpenAIOption {
	return func(c *openaiConfig) { c.prompt = prompt }
}

// WithOpenAITimeout sets a per-request HTTP timeout.
func WithOpenAITimeout(d time.Duration) OpenAIOption {
	return func(c *openaiConfig) { c.timeout = d }
}

// NewOpenAI creates an OpenAI-backed translation service.
func NewOpenAI(apiKey, model string, opts ...OpenAIOption) (*OpenAI, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai translator: apiKey must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("openai translator: model must not be empty")
	}

	cfg := &openaiConfig{prompt: defaultPrompt, timeout: 30 * time.Second}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{Timeout: cfg.timeout}))

	return &OpenAI{
		client: oai.NewClient(reqOpts...),
		model:  model,
		prompt: cfg.prompt,
	}, nil
}

var _ Service = (*OpenAI)(nil)

// Translate implements [Service].
func (o *OpenAI) Translate(ctx context.Context, text, targetLang string) (string, error) {
	prompt := strings.ReplaceAll(o.prompt, "{target_lang}", langName(targetLang))

	resp, err := o.client.Chat.Completions.New(ctx, oai.ChatCompletionNewParams{
		Model: shared.ChatModel(o.model),
		Messages: []oai.ChatCompletionMessageParamUnion{
			oai.SystemMessage(prompt),
			oai.UserMessage(text),
		},
	})
	if err != nil {
		var apiErr *oai.Error
		if errors.As(err, &apiErr) {
			return "", &StatusError{Service: "openai", Status: apiErr.StatusCode}
		}
		return "", fmt.Errorf("openai translation: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai translation: empty choices in response")
	}
	out := strings.TrimSpace(resp.Choices[0].Message.Content)
	if out == "" {
		return "", fmt.Errorf("openai translation: empty completion")
	}
	return out, nil
}
