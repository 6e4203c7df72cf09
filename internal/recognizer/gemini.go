package recognizer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"
)

const (
	GeminiName         = "gemini"
	geminiDefaultModel = "gemini-2.5-flash"
)

// GeminiConfig holds configuration for the Gemini client.
type GeminiConfig struct {
	APIKey     string
	Model      string
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Gemini recognizes pages with a Gemini multimodal model.
type Gemini struct {
	apiKey string
	model  string
	client *genai.Client
}

// NewGemini creates a new Gemini recognizer.
func NewGemini(ctx context.Context, cfg GeminiConfig) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini: missing API key")
	}
	if cfg.Model == "" {
		cfg.Model = geminiDefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	cc := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpClient,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("gemini: %w", err)
	}
	return &Gemini{apiKey: cfg.APIKey, model: cfg.Model, client: client}, nil
}

// Name returns the client identifier.
func (g *Gemini) Name() string {
	return GeminiName
}

// Model returns the configured model.
func (g *Gemini) Model() string {
	return g.model
}

// Recognize sends the image inline with the prompt.
func (g *Gemini) Recognize(ctx context.Context, req Request) (string, error) {
	parts := []*genai.Part{
		genai.NewPartFromBytes(req.Image, req.mimeType()),
		genai.NewPartFromText(req.Prompt),
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	res, err := g.client.Models.GenerateContent(ctx, g.model, contents, &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(req.Temperature)),
	})
	if err != nil {
		return "", mapGeminiError(err)
	}

	if res.PromptFeedback != nil && res.PromptFeedback.BlockReason != "" {
		return "", fmt.Errorf("%w: %s", ErrModelRefusal, res.PromptFeedback.BlockReason)
	}
	return strings.TrimSpace(res.Text()), nil
}

func mapGeminiError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &APIError{
			Provider:   GeminiName,
			StatusCode: apiErr.Code,
			Type:       apiErr.Status,
			Message:    apiErr.Message,
		}
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		return &APIError{
			Provider:   GeminiName,
			StatusCode: apiErrPtr.Code,
			Type:       apiErrPtr.Status,
			Message:    apiErrPtr.Message,
		}
	}
	return err
}
