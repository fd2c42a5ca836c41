package botframework

const (
	ContentTypeAdaptiveCard = "application/vnd.microsoft.card.adaptive"
	ContentTypeOAuthCard    = "application/vnd.microsoft.card.oauth"
)

// Fact FactSet 中的一项
type Fact struct {
	Title string `json:"title"`
	Value string `json:"value"`
}

// ToolCallCard 工具调用卡片：名称、参数、结果
func ToolCallCard(name, arguments, output string) Attachment {
	card := map[string]interface{}{
		"$schema": "http://adaptivecards.io/schemas/adaptive-card.json",
		"type":    "AdaptiveCard",
		"version": "1.5",
		"body": []interface{}{
			map[string]interface{}{
				"type":   "TextBlock",
				"text":   "Agent Tool Call",
				"weight": "Bolder",
				"size":   "Medium",
			},
			map[string]interface{}{
				"type": "FactSet",
				"facts": []Fact{
					{Title: "Tool", Value: name},
					{Title: "Params", Value: arguments},
					{Title: "Result", Value: output},
				},
			},
		},
	}
	return Attachment{ContentType: ContentTypeAdaptiveCard, Content: card}
}

// CardAction 卡片按钮
type CardAction struct {
	Type  string `json:"type"`
	Title string `json:"title"`
	Value string `json:"value"`
	Text  string `json:"text,omitempty"`
}

// OAuthCard 登录卡片
type OAuthCard struct {
	Text           string       `json:"text"`
	ConnectionName string       `json:"connectionName"`
	Buttons        []CardAction `json:"buttons"`
}

// SignInCard 构造 OAuth 登录卡片
func SignInCard(connectionName, text, title, signInLink string) Attachment {
	return Attachment{
		ContentType: ContentTypeOAuthCard,
		Content: OAuthCard{
			Text:           text,
			ConnectionName: connectionName,
			Buttons: []CardAction{{
				Type:  "signin",
				Title: title,
				Value: signInLink,
			}},
		},
	}
}
