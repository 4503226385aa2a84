package report

import (
	"context"
	"errors"
	"fmt"
	"os"

	openai "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ErrGenerationUnavailable means no prose backend is configured; the
// assembler renders the templated form instead.
var ErrGenerationUnavailable = errors.New("prose generation unavailable")

// Generator phrases the prose sections of a report from structured
// facts. The engine treats this as an invoked capability: any failure
// or timeout falls back to templated rendering, never fails the run.
type Generator interface {
	Generate(ctx context.Context, facts string) (string, error)
}

// NoopGenerator always reports unavailable, forcing templated output.
// Used when no API endpoint is configured and throughout tests.
type NoopGenerator struct{}

func (NoopGenerator) Generate(ctx context.Context, facts string) (string, error) {
	return "", ErrGenerationUnavailable
}

// OpenAIGenerator phrases prose through an OpenAI-compatible chat
// endpoint (hosted or a local llama.cpp server). Calls are rate
// limited and bounded by the caller's context deadline.
type OpenAIGenerator struct {
	client  openai.Client
	model   string
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewOpenAIGenerator builds a generator from OPENAI_BASE_URL /
// OPENAI_API_KEY. Returns nil when no key is configured.
func NewOpenAIGenerator(model string, rpm int, logger *zap.Logger) *OpenAIGenerator {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if base := os.Getenv("OPENAI_BASE_URL"); base != "" {
		opts = append(opts, option.WithBaseURL(base))
	}
	if rpm <= 0 {
		rpm = 30
	}
	return &OpenAIGenerator{
		client:  openai.NewClient(opts...),
		model:   model,
		limiter: rate.NewLimiter(rate.Limit(float64(rpm)/60), 1),
		logger:  logger,
	}
}

const systemPrompt = `You are a retail analytics writer. Rewrite the structured findings
you are given as two or three crisp executive-summary sentences for a
product and growth team. Do not invent numbers or claims absent from
the input.`

// Generate phrases the given facts. The context deadline caps both the
// limiter wait and the API call.
func (g *OpenAIGenerator) Generate(ctx context.Context, facts string) (string, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("generation rate limit: %w", err)
	}
	completion, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(facts),
		},
		Model: openai.ChatModel(g.model),
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}
	return completion.Choices[0].Message.Content, nil
}
