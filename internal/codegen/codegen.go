package codegen

import (
	"context"
	"fmt"
	"strings"

	"github.com/askframe/askframe/internal/config"
)

type Completion struct {
	Text     string `json:"text"`
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

// Generator turns one prompt into one raw completion. Implementations do not
// retry or cache.
type Generator interface {
	Generate(ctx context.Context, prompt string) (Completion, error)
}

type GenerationError struct {
	Provider string
	Model    string
	Err      error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation via %s (%s) failed: %v", e.Provider, e.Model, e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// New builds the generator selected by cfg.AI.Provider.
func New(ctx context.Context, cfg config.Config) (Generator, error) {
	if err := cfg.ValidateAI(); err != nil {
		return nil, err
	}
	switch strings.ToLower(strings.TrimSpace(cfg.AI.Provider)) {
	case config.ProviderGemini:
		return NewGeminiGenerator(ctx, GeminiConfig{
			APIKey:      cfg.AI.APIKey,
			Model:       cfg.AI.Model,
			Temperature: cfg.AI.Temperature,
			Timeout:     cfg.AI.Timeout,
		})
	case config.ProviderOpenAI:
		return NewOpenAIGenerator(OpenAIConfig{
			BaseURL:     cfg.AI.BaseURL,
			APIKey:      cfg.AI.APIKey,
			Model:       cfg.AI.Model,
			Temperature: cfg.AI.Temperature,
			Timeout:     cfg.AI.Timeout,
		})
	default:
		return nil, &config.ConfigurationError{Key: "ASKFRAME_AI_PROVIDER", Reason: fmt.Sprintf("unsupported provider %q", cfg.AI.Provider)}
	}
}
