package llm

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"
)

const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
	ProviderFake   = "fake"
)

// Config selects and tunes the provider built by New.
type Config struct {
	Provider string
	APIKey   string
	Model    string
	BaseURL  string
	RPS      float64
	Burst    int
	Retries  int
	Timeout  time.Duration
	Logger   *log.Logger
}

// New builds the provider client wrapped in the standard middleware chain:
// logging, retry, rate limit, per-attempt timeout. A missing key yields ErrNoCredential.
func New(ctx context.Context, cfg Config) (LLMClient, error) {
	var (
		base LLMClient
		err  error
	)
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case ProviderFake:
		base = NewFakeClient()
	case ProviderOpenAI:
		base, err = NewOpenAIClient(cfg.APIKey, cfg.Model, cfg.BaseURL)
	case ProviderGemini, "":
		base, err = NewGeminiClient(ctx, cfg.APIKey, cfg.Model)
	default:
		return nil, fmt.Errorf("llm: unknown provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	retries := cfg.Retries
	if retries <= 0 {
		retries = 2
	}
	return Wrap(base,
		WithLogging(cfg.Logger),
		Retry(retries, 500*time.Millisecond),
		RateLimit(cfg.RPS, cfg.Burst),
		Timeout(cfg.Timeout),
	), nil
}
