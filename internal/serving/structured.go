package serving

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/lk2023060901/agent-bridge/internal/conversation/types"
	apperrors "github.com/lk2023060901/agent-bridge/internal/pkg/errors"
)

// responses 接口的 input item
type inputItem map[string]interface{}

type responsesRequest struct {
	Model string      `json:"model"`
	Input []inputItem `json:"input"`
}

func (c *Client) queryStructuredTurn(ctx context.Context, token string, messages []types.Message) ([]types.Message, error) {
	req := responsesRequest{
		Model: c.config.EndpointName,
		Input: ToResponsesInput(messages),
	}

	body, err := c.doJSON(ctx, http.MethodPost, c.config.BaseURL()+"/serving-endpoints/responses", token, req)
	if err != nil {
		return nil, err
	}

	if !gjson.ValidBytes(body) {
		return nil, apperrors.New(apperrors.ErrBackendProtocol, "responses endpoint returned invalid JSON")
	}
	return ParseResponsesOutput(body), nil
}

// ToResponsesInput 把规范消息转换为 responses 格式的 input
func ToResponsesInput(messages []types.Message) []inputItem {
	items := make([]inputItem, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case types.RoleUser:
			items = append(items, inputItem{"role": "user", "content": m.Content})

		case types.RoleAssistant:
			for _, tc := range m.ToolCalls {
				items = append(items, inputItem{
					"type":      "function_call",
					"id":        tc.ID,
					"call_id":   tc.ID,
					"name":      tc.Name,
					"arguments": tc.Arguments,
				})
			}
			// 带工具调用的 assistant 消息只有非空文本才追加 message item
			if !m.HasToolCalls() || m.Content != "" {
				items = append(items, assistantItem(m.Content))
			}

		case types.RoleTool:
			items = append(items, inputItem{
				"type":    "function_call_output",
				"call_id": m.ToolCallID,
				"output":  m.Content,
			})
		}
	}
	return items
}

func assistantItem(text string) inputItem {
	return inputItem{
		"type": "message",
		"id":   uuid.NewString(),
		"role": "assistant",
		"content": []map[string]string{
			{"type": "output_text", "text": text},
		},
	}
}

// ParseResponsesOutput 按顺序遍历 output，生成规范消息
func ParseResponsesOutput(body []byte) []types.Message {
	var out []types.Message

	gjson.GetBytes(body, "output").ForEach(func(_, item gjson.Result) bool {
		switch item.Get("type").String() {
		case "message":
			var text string
			item.Get("content").ForEach(func(_, part gjson.Result) bool {
				if part.Get("type").String() == "output_text" {
					text += part.Get("text").String()
				}
				return true
			})
			if text != "" {
				out = append(out, types.AssistantMessage(text))
			}

		case "function_call":
			out = append(out, types.Message{
				Role: types.RoleAssistant,
				ToolCalls: []types.ToolCall{{
					ID:        item.Get("call_id").String(),
					Name:      item.Get("name").String(),
					Arguments: item.Get("arguments").String(),
				}},
			})

		case "function_call_output":
			out = append(out, types.ToolResultMessage(item.Get("call_id").String(), rawString(item.Get("output"))))
		}
		return true
	})

	return out
}

// rawString 字符串取值，其它 JSON 类型保留原文
func rawString(r gjson.Result) string {
	if r.Type == gjson.String {
		return r.String()
	}
	return r.Raw
}
