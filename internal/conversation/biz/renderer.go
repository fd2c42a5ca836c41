package biz

import (
	"context"

	"go.uber.org/zap"

	"github.com/lk2023060901/agent-bridge/internal/conversation/types"
	apperrors "github.com/lk2023060901/agent-bridge/internal/pkg/errors"
	"github.com/lk2023060901/agent-bridge/internal/pkg/logger"
)

// Renderer sends adapter output to the chat surface and builds the updated history
type Renderer struct {
	logger *logger.Logger
}

// NewRenderer creates a renderer
func NewRenderer(log *logger.Logger) *Renderer {
	if log == nil {
		log = logger.L()
	}
	return &Renderer{logger: log.Named("renderer")}
}

// Render appends the user utterance and messages to history and emits one activity per
// assistant text and one card per tool result. Tool results must follow their call.
func (r *Renderer) Render(ctx context.Context, sender Sender, utterance string, messages, history []types.Message) ([]types.Message, error) {
	updated := make([]types.Message, 0, len(history)+1+len(messages))
	updated = append(updated, history...)
	updated = append(updated, types.UserMessage(utterance))
	updated = append(updated, messages...)

	calls := make(map[string]types.ToolCall)
	for _, m := range messages {
		switch m.Role {
		case types.RoleAssistant:
			if m.Content != "" {
				if err := sender.SendText(ctx, m.Content); err != nil {
					return nil, err
				}
			}
			if !m.HasToolCalls() {
				continue
			}
			for _, tc := range m.ToolCalls {
				calls[tc.ID] = tc
			}

		case types.RoleTool:
			tc, ok := calls[m.ToolCallID]
			if !ok {
				return nil, apperrors.Newf(apperrors.ErrUnmatchedToolResult,
					"tool result without a prior tool call, call id: %s", m.ToolCallID)
			}
			delete(calls, m.ToolCallID)

			if err := sender.SendToolCall(ctx, tc.Name, tc.Arguments, m.Content); err != nil {
				return nil, err
			}

		default:
			r.logger.WithContext(ctx).Debug("skipping message", zap.String("role", string(m.Role)))
		}
	}

	return updated, nil
}
