package telegram

import (
	"context"
	"fmt"
	"strconv"

	"github.com/satriahrh/cocoa-fruit/chatrelay/domain"
)

// Transport adapts Client to domain.Transport and domain.VoiceSender.
type Transport struct {
	client *Client
}

func NewTransport(client *Client) *Transport {
	return &Transport{client: client}
}

func ConversationID(chatID int64) domain.ConversationID {
	return domain.ConversationID(strconv.FormatInt(chatID, 10))
}

func chatID(conversation domain.ConversationID) (int64, error) {
	id, err := strconv.ParseInt(string(conversation), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("not a telegram conversation: %q", conversation)
	}
	return id, nil
}

func parseMode(format domain.Format) string {
	if format == domain.FormatMarkdown {
		return "Markdown"
	}
	return ""
}

func (t *Transport) SendMessage(ctx context.Context, conversation domain.ConversationID, text string) (domain.MessageID, error) {
	id, err := chatID(conversation)
	if err != nil {
		return 0, err
	}
	msg, err := t.client.SendMessage(ctx, id, text, "")
	if err != nil {
		return 0, err
	}
	return domain.MessageID(msg.MessageID), nil
}

func (t *Transport) EditMessage(ctx context.Context, conversation domain.ConversationID, messageID domain.MessageID, text string, format domain.Format) error {
	id, err := chatID(conversation)
	if err != nil {
		return err
	}
	return t.client.EditMessageText(ctx, id, int64(messageID), text, parseMode(format))
}

func (t *Transport) DeleteMessage(ctx context.Context, conversation domain.ConversationID, messageID domain.MessageID) error {
	id, err := chatID(conversation)
	if err != nil {
		return err
	}
	return t.client.DeleteMessage(ctx, id, int64(messageID))
}

func (t *Transport) SendPhoto(ctx context.Context, conversation domain.ConversationID, url string) error {
	id, err := chatID(conversation)
	if err != nil {
		return err
	}
	return t.client.SendPhoto(ctx, id, url)
}

func (t *Transport) SendVoice(ctx context.Context, conversation domain.ConversationID, audio []byte) error {
	id, err := chatID(conversation)
	if err != nil {
		return err
	}
	return t.client.SendVoice(ctx, id, audio)
}
