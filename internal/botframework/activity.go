package botframework

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Activity 类型
const (
	ActivityTypeMessage            = "message"
	ActivityTypeInvoke             = "invoke"
	ActivityTypeInvokeResponse     = "invokeResponse"
	ActivityTypeConversationUpdate = "conversationUpdate"
	ActivityTypeTrace              = "trace"
	ActivityTypeTyping             = "typing"
)

// Invoke 名称
const (
	InvokeVerifyState   = "signin/verifyState"
	InvokeTokenExchange = "signin/tokenExchange"
)

const (
	ChannelEmulator = "emulator"
	ChannelMSTeams  = "msteams"
)

// ChannelAccount 用户或 bot
type ChannelAccount struct {
	ID          string `json:"id"`
	Name        string `json:"name,omitempty"`
	AADObjectID string `json:"aadObjectId,omitempty"`
	Role        string `json:"role,omitempty"`
}

// ConversationAccount 会话
type ConversationAccount struct {
	ID               string `json:"id"`
	Name             string `json:"name,omitempty"`
	IsGroup          bool   `json:"isGroup,omitempty"`
	ConversationType string `json:"conversationType,omitempty"`
	TenantID         string `json:"tenantId,omitempty"`
}

// Attachment 卡片等附件
type Attachment struct {
	ContentType string      `json:"contentType"`
	Content     interface{} `json:"content,omitempty"`
	ContentURL  string      `json:"contentUrl,omitempty"`
	Name        string      `json:"name,omitempty"`
}

// Activity Bot Framework activity（只包含用到的字段）
type Activity struct {
	Type         string              `json:"type"`
	ID           string              `json:"id,omitempty"`
	Timestamp    *time.Time          `json:"timestamp,omitempty"`
	ServiceURL   string              `json:"serviceUrl,omitempty"`
	ChannelID    string              `json:"channelId,omitempty"`
	From         ChannelAccount      `json:"from"`
	Conversation ConversationAccount `json:"conversation"`
	Recipient    ChannelAccount      `json:"recipient"`
	Text         string              `json:"text,omitempty"`
	TextFormat   string              `json:"textFormat,omitempty"`
	Locale       string              `json:"locale,omitempty"`
	InputHint    string              `json:"inputHint,omitempty"`
	Attachments  []Attachment        `json:"attachments,omitempty"`
	ReplyToID    string              `json:"replyToId,omitempty"`
	Name         string              `json:"name,omitempty"`
	Label        string              `json:"label,omitempty"`
	Value        json.RawMessage     `json:"value,omitempty"`
	ValueType    string              `json:"valueType,omitempty"`
	MembersAdded []ChannelAccount    `json:"membersAdded,omitempty"`
	ChannelData  json.RawMessage     `json:"channelData,omitempty"`
}

// ConversationReference 回复所需的会话定位信息
type ConversationReference struct {
	ActivityID   string              `json:"activityId,omitempty"`
	User         ChannelAccount      `json:"user"`
	Bot          ChannelAccount      `json:"bot"`
	Conversation ConversationAccount `json:"conversation"`
	ChannelID    string              `json:"channelId"`
	ServiceURL   string              `json:"serviceUrl"`
	Locale       string              `json:"locale,omitempty"`
}

// Reference 从入站 activity 提取会话引用
func (a *Activity) Reference() ConversationReference {
	return ConversationReference{
		ActivityID:   a.ID,
		User:         a.From,
		Bot:          a.Recipient,
		Conversation: a.Conversation,
		ChannelID:    a.ChannelID,
		ServiceURL:   a.ServiceURL,
		Locale:       a.Locale,
	}
}

// VerifyStateCode 读取 signin/verifyState 的 magic code
func (a *Activity) VerifyStateCode() string {
	if len(a.Value) == 0 {
		return ""
	}
	var v struct {
		State string `json:"state"`
	}
	if err := json.Unmarshal(a.Value, &v); err != nil {
		return ""
	}
	return v.State
}

// IsVerifyState 是否 signin/verifyState invoke
func (a *Activity) IsVerifyState() bool {
	return a.Type == ActivityTypeInvoke && a.Name == InvokeVerifyState
}

// NewMessage 基于会话引用构造出站消息
func NewMessage(ref ConversationReference) *Activity {
	now := time.Now().UTC()
	return &Activity{
		Type:         ActivityTypeMessage,
		ID:           uuid.NewString(),
		Timestamp:    &now,
		ChannelID:    ref.ChannelID,
		ServiceURL:   ref.ServiceURL,
		From:         ref.Bot,
		Recipient:    ref.User,
		Conversation: ref.Conversation,
		ReplyToID:    ref.ActivityID,
		Locale:       ref.Locale,
		InputHint:    "acceptingInput",
	}
}

// NewText 文本消息
func NewText(ref ConversationReference, text string) *Activity {
	a := NewMessage(ref)
	a.Text = text
	a.TextFormat = "markdown"
	return a
}

// NewAttachment 附件消息
func NewAttachment(ref ConversationReference, att Attachment) *Activity {
	a := NewMessage(ref)
	a.Attachments = []Attachment{att}
	return a
}

// NewTrace emulator 下的调试 trace
func NewTrace(ref ConversationReference, name, label, valueType string, value interface{}) *Activity {
	a := NewMessage(ref)
	a.Type = ActivityTypeTrace
	a.Name = name
	a.Label = label
	a.ValueType = valueType
	a.InputHint = ""
	if data, err := json.Marshal(value); err == nil {
		a.Value = data
	}
	return a
}
