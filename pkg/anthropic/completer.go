package anthropic

import (
	"context"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
)

const stopReasonStopSequence = "stop_sequence"

// CompleterConfig holds the generation settings of a Completer.
type CompleterConfig struct {
	Model       string
	MaxTokens   int64
	Temperature *float64
	// StopSequence ends generation. The API strips it from the text; the
	// Completer puts it back so callers can rely on seeing it.
	StopSequence string
}

// Completer sends a prompt as a single user message and returns the reply
// text.
type Completer struct {
	client Client
	cfg    CompleterConfig

	mu    sync.Mutex
	usage TokenUsage
}

// NewCompleter creates a Completer using client.
func NewCompleter(client Client, cfg CompleterConfig) *Completer {
	return &Completer{client: client, cfg: cfg}
}

// Complete returns the reply to prompt. When the reply ended on the stop
// sequence, the sequence is appended.
func (c *Completer) Complete(ctx context.Context, prompt string) (string, error) {
	req := MessageRequest{
		Model:       c.cfg.Model,
		MaxTokens:   c.cfg.MaxTokens,
		Messages:    []Message{{Role: "user", Content: prompt}},
		Temperature: c.cfg.Temperature,
	}
	if c.cfg.StopSequence != "" {
		req.StopSequences = []string{c.cfg.StopSequence}
	}

	resp, err := c.client.CreateMessage(ctx, req)
	if err != nil {
		return "", err
	}
	if resp == nil {
		return "", eris.New("anthropic: empty response")
	}

	c.mu.Lock()
	c.usage.Add(resp.Usage)
	c.mu.Unlock()

	text := resp.Text()
	if resp.StopReason == stopReasonStopSequence && resp.StopSequence != "" &&
		!strings.HasSuffix(text, resp.StopSequence) {
		text += resp.StopSequence
	}
	return text, nil
}

// Usage returns the tokens consumed so far.
func (c *Completer) Usage() TokenUsage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.usage
}

// LogUsage logs accumulated usage and its estimated cost.
func (c *Completer) LogUsage() {
	c.Usage().LogCost(c.cfg.Model, "classify")
}
