package websocket

import (
	"strings"
	"time"

	"github.com/satriahrh/cocoa-fruit/chatrelay/domain"
)

const Source = "websocket"

// Event types on the wire. Clients send "prompt"; the server sends the rest.
const (
	EventSession = "session"
	EventPrompt  = "prompt"
	EventMessage = "message"
	EventEdit    = "edit"
	EventDelete  = "delete"
	EventPhoto   = "photo"
	EventVoice   = "voice"
	EventError   = "error"
)

// Event is one JSON frame exchanged with a console client.
type Event struct {
	Type         string    `json:"type"`
	Conversation string    `json:"conversation,omitempty"`
	ID           int64     `json:"id,omitempty"`
	Text         string    `json:"text,omitempty"`
	Format       string    `json:"format,omitempty"`
	URL          string    `json:"url,omitempty"`
	Audio        []byte    `json:"audio,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

func formatName(format domain.Format) string {
	if format == domain.FormatMarkdown {
		return "markdown"
	}
	return "plain"
}

// ParsePrompt reduces console input to an inbound event. "/image a cat" is
// the image command; anything else goes to the default command.
func ParsePrompt(conversation domain.ConversationID, text string) domain.Inbound {
	in := domain.Inbound{
		Conversation: conversation,
		ChatType:     domain.PrivateChat,
		Command:      "default",
		Prompt:       strings.TrimSpace(text),
		Source:       Source,
	}
	if strings.HasPrefix(in.Prompt, "/") {
		head, rest, _ := strings.Cut(in.Prompt[1:], " ")
		if head != "" {
			in.Command = strings.ToLower(head)
			in.Prompt = strings.TrimSpace(rest)
		}
	}
	return in
}
