package model

type ChatRole string

const (
	ChatRoleUser      ChatRole = "user"
	ChatRoleAssistant ChatRole = "assistant"
	ChatRoleSystem    ChatRole = "system"
)

type ChatMessage struct {
	Role    ChatRole `json:"role"`
	Content string   `json:"content"`
}

type Audience string

const (
	AudienceChild    Audience = "child"
	AudienceTeen     Audience = "teen"
	AudienceAdult    Audience = "adult"
	AudienceEducator Audience = "educator"
)
