package translate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/blacktop/xpublish/internal/logutil"
)

const (
	defaultModel = "gemini-3-flash-preview"
	apiVersion   = "v1beta"

	// Prompt is prepended to the text to translate.
	Prompt = "Translate this from Russian to English without any explenations I want pure output: "
)

// ErrMissingAPIKey is returned when no API key is configured.
var ErrMissingAPIKey = errors.New("GEMINI_API_KEY is required for translation")

// Translator turns text into its translation.
type Translator interface {
	Translate(ctx context.Context, text string) (string, error)
}

// Config holds configuration for the Gemini client.
type Config struct {
	APIKey string
	Model  string
	// BaseURL overrides the Gemini API endpoint.
	BaseURL string
}

// Gemini translates text with one generateContent call per request.
type Gemini struct {
	client *genai.Client
	model  string
}

// NewGemini creates a Gemini translator. No request is sent until Translate.
func NewGemini(ctx context.Context, cfg Config) (*Gemini, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}

	timeout := 60 * time.Second
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{
			BaseURL:    cfg.BaseURL,
			APIVersion: apiVersion,
			Timeout:    &timeout,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &Gemini{client: client, model: model}, nil
}

// Translate returns the translation of text. Blank text is returned as is
// without calling the API.
func (g *Gemini) Translate(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return text, nil
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(Prompt+text), nil)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	if len(resp.Candidates) == 0 {
		return "", errors.New("gemini returned no candidates")
	}

	translated := strings.TrimSpace(resp.Text())
	logutil.Debugf("translated %d chars into %d chars", len(text), len(translated))
	return translated, nil
}

var _ Translator = (*Gemini)(nil)
