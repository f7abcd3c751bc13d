// Package openai wraps the legacy completions endpoint of OpenAI-compatible
// servers (OpenAI, LM Studio, vLLM, llama.cpp).
package openai

import (
	"context"
	"net/http"
	"time"

	sdk "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Client defines the completion operations used by the classifier.
type Client interface {
	CreateCompletion(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}

// CompletionRequest is our own request type for CreateCompletion.
type CompletionRequest struct {
	Model       string
	Prompt      string
	Stop        []string
	MaxTokens   int64
	Temperature *float64
}

// CompletionResponse is the first choice of a completion.
type CompletionResponse struct {
	ID           string
	Model        string
	Text         string
	FinishReason string
	Usage        TokenUsage
}

// TokenUsage tracks token consumption.
type TokenUsage struct {
	PromptTokens     int64
	CompletionTokens int64
}

// Add accumulates other into u.
func (u *TokenUsage) Add(other TokenUsage) {
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
}

// Option configures the client.
type Option func(*clientOpts)

type clientOpts struct {
	baseURL    string
	maxRetries int
	timeout    time.Duration
}

// WithBaseURL points the client at an OpenAI-compatible server.
func WithBaseURL(url string) Option {
	return func(o *clientOpts) {
		o.baseURL = url
	}
}

// WithMaxRetries sets how often the SDK retries 408/429/5xx responses.
func WithMaxRetries(n int) Option {
	return func(o *clientOpts) {
		o.maxRetries = n
	}
}

// WithTimeout bounds each request.
func WithTimeout(d time.Duration) Option {
	return func(o *clientOpts) {
		o.timeout = d
	}
}

// sdkClient implements Client using the official openai-go SDK.
type sdkClient struct {
	client sdk.Client
}

// NewClient creates a Client. Local servers accept any non-empty key.
func NewClient(apiKey string, opts ...Option) Client {
	o := clientOpts{maxRetries: 2}
	for _, fn := range opts {
		fn(&o)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(o.maxRetries),
		option.WithMiddleware(logMiddleware),
	}
	if o.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(o.baseURL))
	}
	if o.timeout > 0 {
		reqOpts = append(reqOpts, option.WithRequestTimeout(o.timeout))
	}

	return &sdkClient{client: sdk.NewClient(reqOpts...)}
}

func (c *sdkClient) CreateCompletion(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	params := sdk.CompletionNewParams{
		Model:  sdk.CompletionNewParamsModel(req.Model),
		Prompt: sdk.CompletionNewParamsPromptUnion{OfString: sdk.String(req.Prompt)},
	}
	if len(req.Stop) > 0 {
		params.Stop = sdk.CompletionNewParamsStopUnion{OfStringArray: req.Stop}
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = sdk.Int(req.MaxTokens)
	}
	if req.Temperature != nil {
		params.Temperature = sdk.Float(*req.Temperature)
	}

	resp, err := c.client.Completions.New(ctx, params)
	if err != nil {
		return nil, eris.Wrap(err, "openai: create completion")
	}
	if len(resp.Choices) == 0 {
		return nil, eris.Errorf("openai: completion %s has no choices", resp.ID)
	}

	choice := resp.Choices[0]
	return &CompletionResponse{
		ID:           resp.ID,
		Model:        resp.Model,
		Text:         choice.Text,
		FinishReason: string(choice.FinishReason),
		Usage: TokenUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
		},
	}, nil
}

func logMiddleware(req *http.Request, next option.MiddlewareNext) (*http.Response, error) {
	start := time.Now()
	resp, err := next(req)
	fields := []zap.Field{
		zap.String("method", req.Method),
		zap.String("path", req.URL.Path),
		zap.Duration("duration", time.Since(start)),
	}
	if resp != nil {
		fields = append(fields, zap.Int("status", resp.StatusCode))
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	zap.L().Debug("openai: request", fields...)
	return resp, err
}
