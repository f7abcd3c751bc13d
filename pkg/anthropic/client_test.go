package anthropic

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockClient implements Client for testing.
type MockClient struct {
	mock.Mock
}

func (m *MockClient) CreateMessage(ctx context.Context, req MessageRequest) (*MessageResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*MessageResponse), args.Error(1)
}

func textResponse(text, stopReason, stopSequence string) *MessageResponse {
	return &MessageResponse{
		ID:           "msg_123",
		Model:        "claude-haiku-4-5-20251001",
		Content:      []ContentBlock{{Type: "text", Text: text}},
		StopReason:   stopReason,
		StopSequence: stopSequence,
		Usage:        TokenUsage{InputTokens: 300, OutputTokens: 10},
	}
}

func testCompleterConfig() CompleterConfig {
	return CompleterConfig{
		Model:        "claude-haiku-4-5-20251001",
		MaxTokens:    256,
		StopSequence: "[END]",
	}
}

func TestCompleter_ReappendsStopSequence(t *testing.T) {
	mc := new(MockClient)
	mc.On("CreateMessage", mock.Anything, mock.MatchedBy(func(r MessageRequest) bool {
		return r.Model == "claude-haiku-4-5-20251001" && r.MaxTokens == 256 &&
			len(r.Messages) == 1 && r.Messages[0].Role == "user" && r.Messages[0].Content == "prompt" &&
			len(r.StopSequences) == 1 && r.StopSequences[0] == "[END]"
	})).Return(textResponse("[BEG]excel, ツール開発", "stop_sequence", "[END]"), nil).Once()

	got, err := NewCompleter(mc, testCompleterConfig()).Complete(context.Background(), "prompt")
	require.NoError(t, err)
	assert.Equal(t, "[BEG]excel, ツール開発[END]", got)
	mc.AssertExpectations(t)
}

func TestCompleter_EndTurnUntouched(t *testing.T) {
	mc := new(MockClient)
	mc.On("CreateMessage", mock.Anything, mock.Anything).
		Return(textResponse("[BEG]excel", "end_turn", ""), nil).Once()

	got, err := NewCompleter(mc, testCompleterConfig()).Complete(context.Background(), "prompt")
	require.NoError(t, err)
	assert.Equal(t, "[BEG]excel", got)
}

func TestCompleter_MultipleTextBlocks(t *testing.T) {
	mc := new(MockClient)
	resp := textResponse("[BEG]excel", "stop_sequence", "[END]")
	resp.Content = append(resp.Content, ContentBlock{Type: "text", Text: ", vba"})
	mc.On("CreateMessage", mock.Anything, mock.Anything).Return(resp, nil).Once()

	got, err := NewCompleter(mc, testCompleterConfig()).Complete(context.Background(), "prompt")
	require.NoError(t, err)
	assert.Equal(t, "[BEG]excel, vba[END]", got)
}

func TestCompleter_Error(t *testing.T) {
	mc := new(MockClient)
	mc.On("CreateMessage", mock.Anything, mock.Anything).Return(nil, errors.New("overloaded")).Once()

	c := NewCompleter(mc, testCompleterConfig())
	_, err := c.Complete(context.Background(), "prompt")
	require.Error(t, err)
	assert.Equal(t, TokenUsage{}, c.Usage())
}

func TestCompleter_AccumulatesUsage(t *testing.T) {
	mc := new(MockClient)
	mc.On("CreateMessage", mock.Anything, mock.Anything).
		Return(textResponse("[BEG]a", "stop_sequence", "[END]"), nil).Times(3)

	c := NewCompleter(mc, testCompleterConfig())
	for range 3 {
		_, err := c.Complete(context.Background(), "prompt")
		require.NoError(t, err)
	}
	assert.Equal(t, TokenUsage{InputTokens: 900, OutputTokens: 30}, c.Usage())
	assert.NotPanics(t, c.LogUsage)
}

func TestEstimateCost_Haiku(t *testing.T) {
	u := TokenUsage{InputTokens: 1_000_000, OutputTokens: 1_000_000}
	assert.InDelta(t, 6.00, u.EstimateCost("claude-haiku-4-5-20251001"), 0.001)
}

func TestEstimateCost_Sonnet(t *testing.T) {
	u := TokenUsage{InputTokens: 500_000, OutputTokens: 100_000}
	assert.InDelta(t, 3.00, u.EstimateCost("claude-sonnet-4-5-20250929"), 0.001)
}

func TestEstimateCost_UnknownModel(t *testing.T) {
	u := TokenUsage{InputTokens: 1_000_000, OutputTokens: 1_000_000}
	assert.Equal(t, 0.0, u.EstimateCost("gemma-3-4b-it"))
}

func TestLogCost_DoesNotPanic(t *testing.T) {
	u := TokenUsage{InputTokens: 100, OutputTokens: 50}
	assert.NotPanics(t, func() { u.LogCost("claude-haiku-4-5-20251001", "classify") })
}
