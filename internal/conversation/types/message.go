package types

// Role 消息角色
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall 后端发起的一次工具调用，由同一历史中的 tool 消息消费一次
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Message 规范化后的对话消息
// ToolCalls 只出现在 assistant 消息上，ToolCallID 只出现在 tool 消息上
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// UserMessage 构造用户消息
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// AssistantMessage 构造 assistant 文本消息
func AssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// ToolResultMessage 构造工具结果消息
func ToolResultMessage(callID, output string) Message {
	return Message{Role: RoleTool, Content: output, ToolCallID: callID}
}

// HasToolCalls 是否携带工具调用
func (m Message) HasToolCalls() bool {
	return m.Role == RoleAssistant && len(m.ToolCalls) > 0
}

// History 按时间排序的对话历史，只追加不截断
type History []Message

// Append 返回追加后的新历史，不修改原切片底层数组
func (h History) Append(msgs ...Message) History {
	out := make(History, 0, len(h)+len(msgs))
	out = append(out, h...)
	return append(out, msgs...)
}
