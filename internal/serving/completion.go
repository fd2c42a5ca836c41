package serving

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"
	"github.com/tidwall/gjson"

	"github.com/lk2023060901/agent-bridge/internal/conversation/types"
	apperrors "github.com/lk2023060901/agent-bridge/internal/pkg/errors"
)

// captureDoer 记录响应原文，chat-agent 的顶层 messages 字段不在 go-openai 的响应结构里
type captureDoer struct {
	inner  openai.HTTPDoer
	status int
	body   []byte
}

func (d *captureDoer) Do(req *http.Request) (*http.Response, error) {
	resp, err := d.inner.Do(req)
	if err != nil || resp.Body == nil {
		return resp, err
	}
	data, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, err
	}
	d.status = resp.StatusCode
	d.body = data
	resp.Body = io.NopCloser(bytes.NewReader(data))
	return resp, nil
}

func (c *Client) queryCompletion(ctx context.Context, token string, messages []types.Message) ([]types.Message, error) {
	doer := &captureDoer{inner: c.httpClient}

	cfg := openai.DefaultConfig(token)
	cfg.BaseURL = c.config.BaseURL() + "/serving-endpoints"
	cfg.HTTPClient = doer
	client := openai.NewClientWithConfig(cfg)

	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    c.config.EndpointName,
		Messages: ToCompletionMessages(messages),
	})
	// 2xx 但 go-openai 解不开（非 OpenAI 结构的内容片段）时按原文解析
	decoded := err == nil
	if !decoded && !doer.succeeded() {
		return nil, apperrors.Wrap(err, apperrors.ErrBackendTransport, "chat completion")
	}

	if agentMsgs := gjson.GetBytes(doer.body, "messages"); agentMsgs.IsArray() && len(agentMsgs.Array()) > 0 {
		return parseAgentMessages(agentMsgs), nil
	}
	if !decoded || gjson.GetBytes(doer.body, "choices.0.message.content").IsArray() {
		return ParseCompletionBody(doer.body), nil
	}
	return ParseCompletion(resp), nil
}

func (d *captureDoer) succeeded() bool {
	return d.status >= 200 && d.status < 300 && gjson.ValidBytes(d.body)
}

// ToCompletionMessages 原样转换为 chat completion 消息
func ToCompletionMessages(messages []types.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		msg := openai.ChatCompletionMessage{
			Role:       string(m.Role),
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			})
		}
		out = append(out, msg)
	}
	return out
}

// ParseCompletion 取第一个 choice 的文本内容与 tool calls
func ParseCompletion(resp openai.ChatCompletionResponse) []types.Message {
	if len(resp.Choices) == 0 {
		return nil
	}

	choice := resp.Choices[0].Message
	msg := types.AssistantMessage(choice.Content)
	for _, tc := range choice.ToolCalls {
		msg.ToolCalls = append(msg.ToolCalls, types.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return []types.Message{msg}
}

// ParseCompletionBody 从响应原文取第一个 choice；列表内容只拼接 type 为 text 的片段
func ParseCompletionBody(body []byte) []types.Message {
	choice := gjson.GetBytes(body, "choices.0.message")
	if !choice.Exists() {
		return nil
	}

	msg := types.AssistantMessage(textContent(choice.Get("content")))
	choice.Get("tool_calls").ForEach(func(_, tc gjson.Result) bool {
		msg.ToolCalls = append(msg.ToolCalls, types.ToolCall{
			ID:        tc.Get("id").String(),
			Name:      tc.Get("function.name").String(),
			Arguments: tc.Get("function.arguments").String(),
		})
		return true
	})
	return []types.Message{msg}
}

func textContent(content gjson.Result) string {
	if !content.IsArray() {
		if content.Type == gjson.Null {
			return ""
		}
		return content.String()
	}

	var sb strings.Builder
	content.ForEach(func(_, part gjson.Result) bool {
		if part.Get("type").String() == "text" {
			sb.WriteString(part.Get("text").String())
		}
		return true
	})
	return sb.String()
}

// parseAgentMessages 解析 chat-agent 响应的 messages 数组
func parseAgentMessages(arr gjson.Result) []types.Message {
	var out []types.Message
	arr.ForEach(func(_, m gjson.Result) bool {
		msg := types.Message{
			Role:       types.Role(m.Get("role").String()),
			ToolCallID: m.Get("tool_call_id").String(),
		}
		if content := m.Get("content"); content.Type != gjson.Null {
			msg.Content = rawString(content)
		}
		m.Get("tool_calls").ForEach(func(_, tc gjson.Result) bool {
			msg.ToolCalls = append(msg.ToolCalls, types.ToolCall{
				ID:        tc.Get("id").String(),
				Name:      tc.Get("function.name").String(),
				Arguments: tc.Get("function.arguments").String(),
			})
			return true
		})
		out = append(out, msg)
		return true
	})
	return out
}
