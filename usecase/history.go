package usecase

import (
	"sync"

	"github.com/satriahrh/cocoa-fruit/chatrelay/domain"
)

// MemoryHistory is the in-process history store. Each conversation is an
// ordered slice mutated only through Append, RemoveLast and Clear.
type MemoryHistory struct {
	mu    sync.RWMutex
	chats map[domain.ConversationID][]domain.ChatMessage
}

func NewMemoryHistory() *MemoryHistory {
	return &MemoryHistory{
		chats: make(map[domain.ConversationID][]domain.ChatMessage),
	}
}

// Append adds message to the end of the conversation. Empty messages are ignored.
func (h *MemoryHistory) Append(id domain.ConversationID, message domain.ChatMessage) {
	if message.IsEmpty() {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.chats[id] = append(h.chats[id], message)
}

// Messages returns a copy of the conversation, oldest first, or nil.
func (h *MemoryHistory) Messages(id domain.ConversationID) []domain.ChatMessage {
	h.mu.RLock()
	defer h.mu.RUnlock()
	msgs := h.chats[id]
	if len(msgs) == 0 {
		return nil
	}
	out := make([]domain.ChatMessage, len(msgs))
	copy(out, msgs)
	return out
}

// RemoveLast undoes the most recent Append.
func (h *MemoryHistory) RemoveLast(id domain.ConversationID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	msgs, ok := h.chats[id]
	if !ok || len(msgs) == 0 {
		return
	}
	h.chats[id] = msgs[:len(msgs)-1]
}

func (h *MemoryHistory) Clear(id domain.ConversationID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.chats, id)
}

// lastN keeps the most recent n messages; n <= 0 keeps everything.
func lastN(messages []domain.ChatMessage, n int) []domain.ChatMessage {
	if n <= 0 || len(messages) <= n {
		return messages
	}
	return messages[len(messages)-n:]
}
