package question

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "claude-3-5-haiku-latest"

// Config controls the LLM-backed question source.
type Config struct {
	APIKey    string
	Model     string
	MaxTokens int64
}

// Client generates questions and summaries through the Anthropic API.
// API failures surface as errors; the orchestrator substitutes the heuristic
// templates so generation problems never stall a run.
type Client struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	logger    *zap.Logger
}

// NewClient builds an LLM question source. The API key must be non-empty;
// callers without a key should use HeuristicSource instead.
func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("llm question source requires an API key")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 2048
	}
	return &Client{
		client:    anthropic.NewClient(option.WithAPIKey(cfg.APIKey)),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		logger:    logger,
	}, nil
}

// Generate asks the model for about target specific research questions,
// one per line, and returns them deduplicated case-insensitively.
func (c *Client) Generate(ctx context.Context, topic, docContext string, target int) ([]string, error) {
	prompt := fmt.Sprintf(
		"You are a research assistant. Given a topic and context excerpts, produce a diverse, "+
			"non-overlapping list of about %d specific questions that, if answered, would comprehensively "+
			"cover the topic. Avoid duplicates or trivial rephrasings. Output one question per line with "+
			"no numbering.\n\nTopic: %s\n\nContext excerpts:\n%s\n\nQuestions:",
		target, topic, docContext,
	)

	text, err := c.complete(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("generate questions: %w", err)
	}

	seen := make(map[string]struct{})
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.Trim(line, "-•* \t")
		if line == "" {
			continue
		}
		key := strings.ToLower(line)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, line)
		if len(out) == target {
			break
		}
	}
	c.logger.Debug("llm generated questions", zap.String("topic", topic), zap.Int("count", len(out)))
	return out, nil
}

// Summarize produces a structured summary of the topic from context excerpts.
func (c *Client) Summarize(ctx context.Context, topic, docContext string) (string, error) {
	prompt := fmt.Sprintf(
		"You are a careful researcher. Write a clear, structured summary of the topic using the context "+
			"excerpts. Cover definitions, key ideas, applications, trade-offs, and open questions. Be concise "+
			"but complete.\n\nTopic: %s\n\nContext excerpts:\n%s\n\nSummary:",
		topic, docContext,
	)
	text, err := c.complete(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("summarize topic: %w", err)
	}
	return strings.TrimSpace(text), nil
}

func (c *Client) complete(ctx context.Context, prompt string) (string, error) {
	resp, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: c.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic message: %w", err)
	}
	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return sb.String(), nil
}
