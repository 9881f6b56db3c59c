package domain

// ConversationID identifies one chat thread. Telegram chats use the decimal
// chat id, WebSocket sessions use "ws:<uuid>".
type ConversationID string

type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
	Name    string `json:"name,omitempty"`
}

// IsEmpty reports whether the message carries no content.
func (m ChatMessage) IsEmpty() bool {
	return m.Content == ""
}

type Role string

const (
	UserRole      Role = "user"
	AssistantRole Role = "assistant"
	SystemRole    Role = "system"
)

// HistoryStore keeps the rolling dialogue per conversation.
type HistoryStore interface {
	Append(id ConversationID, message ChatMessage)
	Messages(id ConversationID) []ChatMessage
	RemoveLast(id ConversationID)
	Clear(id ConversationID)
}
