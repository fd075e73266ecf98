package chat

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/hscore/internal/model"
	"github.com/sells-group/hscore/internal/store"
	"github.com/sells-group/hscore/pkg/anthropic"
)

// --- Anthropic Mock ---

type mockAnthropicClient struct {
	mock.Mock
}

func (m *mockAnthropicClient) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*anthropic.MessageResponse), args.Error(1)
}

// lastRequest returns the request from the most recent CreateMessage call.
func (m *mockAnthropicClient) lastRequest() anthropic.MessageRequest {
	calls := m.Calls
	return calls[len(calls)-1].Arguments.Get(1).(anthropic.MessageRequest)
}

// --- Source Mock ---

type mockSource struct {
	mock.Mock
}

func (m *mockSource) CurrentSnapshot(ctx context.Context) (*model.Snapshot, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Snapshot), args.Error(1)
}

func (m *mockSource) ListSubzones(ctx context.Context, snapshotID string, filter store.SubzoneFilter) ([]model.ScoredSubzone, error) {
	args := m.Called(ctx, snapshotID, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.ScoredSubzone), args.Error(1)
}

func textResponse(text string) *anthropic.MessageResponse {
	return &anthropic.MessageResponse{
		Model:   "claude-haiku-4-5-20251001",
		Content: []anthropic.ContentBlock{{Type: "text", Text: text}},
		Usage:   anthropic.TokenUsage{InputTokens: 100, OutputTokens: 20},
	}
}
