package recognizer

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const (
	OpenAIName         = "openai"
	openAIDefaultModel = "gpt-4o"
)

// OpenAIConfig holds configuration for the OpenAI client. BaseURL may point at
// any OpenAI-compatible endpoint.
type OpenAIConfig struct {
	APIKey     string
	Model      string
	BaseURL    string
	MaxTokens  int
	Timeout    time.Duration
	HTTPClient *http.Client
}

// OpenAI recognizes pages with a vision-capable chat completion model.
type OpenAI struct {
	apiKey  string
	model   string
	baseURL string
	maxTok  int
	client  openai.Client
}

// NewOpenAI creates a new OpenAI recognizer. SDK retries are disabled; the
// transcription pipeline owns retry policy.
func NewOpenAI(cfg OpenAIConfig) *OpenAI {
	if cfg.Model == "" {
		cfg.Model = openAIDefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAI{
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		baseURL: cfg.BaseURL,
		maxTok:  cfg.MaxTokens,
		client:  openai.NewClient(opts...),
	}
}

// Name returns the client identifier.
func (c *OpenAI) Name() string {
	return OpenAIName
}

// Model returns the configured model.
func (c *OpenAI) Model() string {
	return c.model
}

// Recognize sends the image as a data URL alongside the prompt.
func (c *OpenAI) Recognize(ctx context.Context, req Request) (string, error) {
	dataURL := "data:" + req.mimeType() + ";base64," + base64.StdEncoding.EncodeToString(req.Image)

	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
				openai.TextContentPart(req.Prompt),
				openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
					URL: dataURL,
				}),
			}),
		},
		Temperature: openai.Float(req.Temperature),
	}
	if c.maxTok > 0 {
		params.MaxCompletionTokens = openai.Int(int64(c.maxTok))
	}

	requestID := uuid.NewString()
	completion, err := c.client.Chat.Completions.New(ctx, params, option.WithHeader("X-Client-Request-Id", requestID))
	if err != nil {
		return "", mapOpenAIError(err, requestID)
	}

	if len(completion.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	msg := completion.Choices[0].Message
	if msg.Refusal != "" {
		return "", fmt.Errorf("%w: %s", ErrModelRefusal, msg.Refusal)
	}
	return strings.TrimSpace(msg.Content), nil
}

func mapOpenAIError(err error, requestID string) error {
	var apiErr *openai.Error
	if !errors.As(err, &apiErr) {
		return err
	}

	out := &APIError{
		Provider:   OpenAIName,
		StatusCode: apiErr.StatusCode,
		Type:       apiErr.Type,
		Code:       apiErr.Code,
		Message:    apiErr.Message,
		RequestID:  requestID,
	}
	if apiErr.Response != nil {
		out.RetryAfter = parseRetryAfter(apiErr.Response.Header.Get("Retry-After"))
	}
	if out.Message == "" {
		out.Message = http.StatusText(apiErr.StatusCode)
	}
	return out
}
