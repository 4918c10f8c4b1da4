package utils

import (
	"context"
	"log"
	"regexp"
	"time"

	"github.com/sashabaranov/go-openai"
)

// LLMClient wraps the chat-completion API used for email drafting, owner
// extraction, and fit scoring. Single-shot calls only, no streaming.
type LLMClient struct {
	client      *openai.Client
	model       string
	temperature float32
	logger      *log.Logger
}

type LLMConfig struct {
	APIKey      string
	Model       string  // default: gpt-4o-mini
	Temperature float32 // default: 0.7
}

func NewLLMClient(cfg LLMConfig, logger *log.Logger) *LLMClient {
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.7
	}
	if logger == nil {
		logger = log.Default()
	}
	return &LLMClient{
		client:      openai.NewClient(cfg.APIKey),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		logger:      logger,
	}
}

// Generate runs one completion for the prompt and returns the raw text.
// Failures come back as ExternalServiceError so callers can tally and
// retry them.
func (c *LLMClient) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	if maxTokens == 0 {
		maxTokens = 800
	}

	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: c.temperature,
		MaxTokens:   maxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", &ExternalServiceError{Service: "text-generation", Err: err}
	}
	if len(resp.Choices) == 0 {
		return "", &ExternalServiceError{Service: "text-generation", Err: errNoChoices}
	}

	c.logger.Printf("LLM completion: model=%s tokens=%d elapsed=%s",
		c.model, resp.Usage.TotalTokens, time.Since(start).Round(time.Millisecond))
	return resp.Choices[0].Message.Content, nil
}

var errNoChoices = &emptyCompletionError{}

type emptyCompletionError struct{}

func (e *emptyCompletionError) Error() string { return "completion returned no choices" }

var jsonObjectRe = regexp.MustCompile(`(?s)\{.*\}`)

// ExtractJSONObject pulls the first JSON object out of a completion. Models
// wrap JSON in prose or code fences often enough that this is worth doing
// before unmarshalling.
func ExtractJSONObject(raw string) (string, bool) {
	match := jsonObjectRe.FindString(raw)
	return match, match != ""
}
