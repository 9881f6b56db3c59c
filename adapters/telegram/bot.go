package telegram

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/cocoa-fruit/chatrelay/domain"
	"github.com/satriahrh/cocoa-fruit/chatrelay/utils/log"
)

// Bot turns Telegram updates into inbound events.
type Bot struct {
	client      *Client
	username    string
	handler     domain.InboundHandler
	transcriber domain.Transcriber
}

// NewBot creates a bot. transcriber may be nil, in which case voice notes are
// ignored.
func NewBot(client *Client, username string, handler domain.InboundHandler, transcriber domain.Transcriber) *Bot {
	return &Bot{
		client:      client,
		username:    username,
		handler:     handler,
		transcriber: transcriber,
	}
}

// HandleUpdate processes one update. It only blocks for voice transcription;
// generation runs on the handler's dispatcher. It never panics.
func (b *Bot) HandleUpdate(ctx context.Context, update Update) {
	msg := update.Message
	if msg == nil {
		return
	}
	ctx = log.WithSource(ctx, Source)
	defer func() {
		if r := recover(); r != nil {
			log.WithCtx(ctx).Error("panic while handling update",
				zap.Any("panic", r), zap.Int64("update_id", update.UpdateID))
		}
	}()
	in := PreparePrompt(msg, b.username)

	if msg.Voice != nil && in.Prompt == "" {
		if in.ChatType != domain.PrivateChat || b.transcriber == nil {
			return
		}
		text, err := b.transcribe(ctx, msg.Voice)
		if err != nil {
			log.WithCtx(ctx).Warn("failed to transcribe voice note", zap.Error(err), zap.Int64("update_id", update.UpdateID))
			return
		}
		in.Command = "default"
		in.Prompt = text
	}
	b.handler.HandleInbound(ctx, in)
}

func (b *Bot) transcribe(ctx context.Context, voice *Voice) (string, error) {
	file, err := b.client.GetFile(ctx, voice.FileID)
	if err != nil {
		return "", err
	}
	audio, err := b.client.DownloadFile(ctx, file.FilePath)
	if err != nil {
		return "", err
	}
	text, err := b.transcriber.Transcribe(ctx, audio)
	if err != nil {
		return "", fmt.Errorf("transcribe voice note: %w", err)
	}
	return text, nil
}

// Poller long-polls getUpdates and feeds every update to the bot.
type Poller struct {
	client  *Client
	bot     *Bot
	timeout int
	backoff time.Duration
}

func NewPoller(client *Client, bot *Bot, timeout int) *Poller {
	if timeout <= 0 {
		timeout = 30
	}
	return &Poller{client: client, bot: bot, timeout: timeout, backoff: 3 * time.Second}
}

// Run polls until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	logger := log.WithCtx(log.WithSource(ctx, Source))
	logger.Info("telegram polling started", zap.Int("timeout", p.timeout))

	var offset int64
	for {
		updates, err := p.client.GetUpdates(ctx, offset, p.timeout)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				logger.Info("telegram polling stopped")
				return nil
			}
			logger.Warn("getUpdates failed", zap.Error(err))
			select {
			case <-ctx.Done():
				logger.Info("telegram polling stopped")
				return nil
			case <-time.After(p.backoff):
			}
			continue
		}
		for _, update := range updates {
			if update.UpdateID >= offset {
				offset = update.UpdateID + 1
			}
			p.bot.HandleUpdate(ctx, update)
		}
	}
}
