package openai

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"
)

const finishReasonStop = "stop"

// CompleterConfig holds the generation settings of a Completer.
type CompleterConfig struct {
	Model       string
	MaxTokens   int64
	Temperature *float64
	// StopSequence ends generation. The server strips it from the text; the
	// Completer puts it back so callers can rely on seeing it.
	StopSequence string
}

// Completer turns a prompt into raw completion text.
type Completer struct {
	client Client
	cfg    CompleterConfig

	mu    sync.Mutex
	usage TokenUsage
	calls int
}

// NewCompleter creates a Completer using client.
func NewCompleter(client Client, cfg CompleterConfig) *Completer {
	return &Completer{client: client, cfg: cfg}
}

// Complete sends prompt and returns the completion text. When the server
// reports a stop termination the stop sequence is appended.
func (c *Completer) Complete(ctx context.Context, prompt string) (string, error) {
	req := CompletionRequest{
		Model:       c.cfg.Model,
		Prompt:      prompt,
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: c.cfg.Temperature,
	}
	if c.cfg.StopSequence != "" {
		req.Stop = []string{c.cfg.StopSequence}
	}

	resp, err := c.client.CreateCompletion(ctx, req)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.usage.Add(resp.Usage)
	c.calls++
	c.mu.Unlock()

	text := resp.Text
	if c.cfg.StopSequence != "" && resp.FinishReason == finishReasonStop &&
		!strings.HasSuffix(text, c.cfg.StopSequence) {
		text += c.cfg.StopSequence
	}
	return text, nil
}

// Usage returns the tokens consumed so far.
func (c *Completer) Usage() TokenUsage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.usage
}

// LogUsage logs accumulated token usage.
func (c *Completer) LogUsage() {
	c.mu.Lock()
	defer c.mu.Unlock()
	zap.L().Info("openai: token usage",
		zap.String("model", c.cfg.Model),
		zap.Int("calls", c.calls),
		zap.Int64("prompt_tokens", c.usage.PromptTokens),
		zap.Int64("completion_tokens", c.usage.CompletionTokens),
	)
}
