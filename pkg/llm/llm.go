// Package llm turns a snapshot and a user query into a chat answer.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/waypoint-ai/waypoint/pkg/models"
)

// SystemPrompt restricts the model to the facts in the snapshot.
const SystemPrompt = `You are a travel assistant. ONLY use the data in 'snapshot' to answer queries.
Do NOT invent details or assume new facts. Provide concise, actionable answers.
Mention ETA, distances, traffic hotspots, alternate routes, and weather along the route if relevant.
If unsure about something, reply: "I don't have live info for X".`

// Responder answers a query using only the data in snap.
type Responder interface {
	GenerateResponse(ctx context.Context, snap *models.Snapshot, query string) (string, error)
}

// Config holds the chat-completion provider configuration.
type Config struct {
	BaseURL      string
	APIKey       string
	Model        string
	Temperature  float32
	MaxTokens    int
	MaxRetries   int
	RetryBackoff time.Duration
	Timeout      time.Duration
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL:      "https://api.openai.com/v1",
		Model:        openai.GPT3Dot5Turbo,
		Temperature:  0.3,
		MaxTokens:    300,
		MaxRetries:   2,
		RetryBackoff: time.Second,
		Timeout:      30 * time.Second,
	}
}

// OpenAI answers queries with an OpenAI-compatible chat completion API.
type OpenAI struct {
	client *openai.Client
	cfg    Config
}

// NewOpenAI creates an OpenAI responder. Unset fields take their defaults.
func NewOpenAI(cfg Config) *OpenAI {
	def := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = def.Temperature
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = def.MaxTokens
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.RetryBackoff == 0 {
		cfg.RetryBackoff = def.RetryBackoff
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = def.Timeout
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	clientConfig.BaseURL = cfg.BaseURL
	return &OpenAI{client: openai.NewClientWithConfig(clientConfig), cfg: cfg}
}

// GenerateResponse implements Responder.
func (o *OpenAI) GenerateResponse(ctx context.Context, snap *models.Snapshot, query string) (string, error) {
	data, err := json.Marshal(snap)
	if err != nil {
		return "", fmt.Errorf("encode snapshot: %w", err)
	}
	req := openai.ChatCompletionRequest{
		Model: o.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: SystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: "Snapshot: " + string(data) + "\nQuery: " + query},
		},
		Temperature: o.cfg.Temperature,
		MaxTokens:   o.cfg.MaxTokens,
	}

	var answer string
	err = o.doWithRetry(ctx, func() error {
		callCtx, cancel := context.WithTimeout(ctx, o.cfg.Timeout)
		defer cancel()
		resp, err := o.client.CreateChatCompletion(callCtx, req)
		if err != nil {
			return err
		}
		if len(resp.Choices) == 0 {
			return errors.New("empty chat response")
		}
		answer = strings.TrimSpace(resp.Choices[0].Message.Content)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	return answer, nil
}

// doWithRetry runs fn with exponential backoff.
func (o *OpenAI) doWithRetry(ctx context.Context, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt < o.cfg.MaxRetries; attempt++ {
		if lastErr = fn(); lastErr == nil {
			return nil
		}
		if attempt == o.cfg.MaxRetries-1 {
			break
		}
		wait := time.Duration(math.Pow(2, float64(attempt))) * o.cfg.RetryBackoff
		slog.Debug("chat completion failed, retrying", "attempt", attempt+1, "wait", wait, "error", lastErr)
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}

// Fallback answers with Primary and, if that fails, with Secondary.
type Fallback struct {
	Primary   Responder
	Secondary Responder
}

// GenerateResponse implements Responder.
func (f Fallback) GenerateResponse(ctx context.Context, snap *models.Snapshot, query string) (string, error) {
	answer, err := f.Primary.GenerateResponse(ctx, snap, query)
	if err == nil {
		return answer, nil
	}
	slog.Warn("primary responder failed, using fallback", "error", err)
	return f.Secondary.GenerateResponse(ctx, snap, query)
}
