package codegen

import (
	"context"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"
)

const providerGemini = "gemini"

type GeminiConfig struct {
	APIKey      string
	Model       string
	Temperature float64
	Timeout     time.Duration
}

// modelCaller is the slice of *genai.Models the generator uses.
type modelCaller interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content,
		config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

type GeminiGenerator struct {
	models      modelCaller
	model       string
	temperature float64
	timeout     time.Duration
}

func NewGeminiGenerator(ctx context.Context, cfg GeminiConfig) (*GeminiGenerator, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  strings.TrimSpace(cfg.APIKey),
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return newGeminiGenerator(client.Models, cfg), nil
}

func newGeminiGenerator(models modelCaller, cfg GeminiConfig) *GeminiGenerator {
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "gemini-2.5-flash"
	}
	return &GeminiGenerator{
		models:      models,
		model:       model,
		temperature: cfg.Temperature,
		timeout:     cfg.Timeout,
	}
}

func (g *GeminiGenerator) Generate(ctx context.Context, prompt string) (Completion, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	resp, err := g.models.GenerateContent(ctx, g.model,
		[]*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)},
		&genai.GenerateContentConfig{Temperature: genai.Ptr(float32(g.temperature))},
	)
	if err != nil {
		return Completion{}, &GenerationError{Provider: providerGemini, Model: g.model, Err: err}
	}
	if resp == nil || len(resp.Candidates) == 0 {
		return Completion{}, &GenerationError{Provider: providerGemini, Model: g.model, Err: fmt.Errorf("empty response candidates")}
	}
	return Completion{Text: resp.Text(), Provider: providerGemini, Model: g.model}, nil
}
