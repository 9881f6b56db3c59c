package domain

import "context"

// MessageID is the transport handle of a message already shown to the user.
type MessageID int64

type Format int

const (
	FormatPlain Format = iota
	FormatMarkdown
)

// Transport is the display side of a conversation.
type Transport interface {
	SendMessage(ctx context.Context, conversation ConversationID, text string) (MessageID, error)
	EditMessage(ctx context.Context, conversation ConversationID, id MessageID, text string, format Format) error
	DeleteMessage(ctx context.Context, conversation ConversationID, id MessageID) error
	SendPhoto(ctx context.Context, conversation ConversationID, url string) error
}

// VoiceSender is implemented by transports able to deliver audio replies.
type VoiceSender interface {
	SendVoice(ctx context.Context, conversation ConversationID, audio []byte) error
}

type ChatType string

const (
	PrivateChat ChatType = "private"
	GroupChat   ChatType = "group"
)

// Inbound is a transport event already reduced to a command and a prompt.
// An empty Command means nothing in the event addressed the bot.
type Inbound struct {
	Conversation ConversationID
	ChatType     ChatType
	Command      string
	Prompt       string
	SenderName   string
	Source       string
}

func (in Inbound) Actionable() bool {
	return in.Command != ""
}

// InboundHandler accepts inbound events from a transport adapter.
type InboundHandler interface {
	HandleInbound(ctx context.Context, in Inbound)
}

// Job is a unit of work bound to one conversation.
type Job func(ctx context.Context)

// Dispatcher runs jobs so that jobs of the same conversation never overlap.
type Dispatcher interface {
	Dispatch(ctx context.Context, conversation ConversationID, job Job) error
	Close() error
}
