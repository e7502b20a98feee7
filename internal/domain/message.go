package domain

// Chat roles as understood by OpenAI-compatible chat-completions APIs.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is a single role-tagged turn exchanged with the completion API.
// The JSON shape matches the wire format of the chat-completions request body,
// so messages are marshalled as-is without re-encoding.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
