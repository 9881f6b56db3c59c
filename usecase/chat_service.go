package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/satriahrh/cocoa-fruit/chatrelay/domain"
	"github.com/satriahrh/cocoa-fruit/chatrelay/utils/log"
)

const (
	DefaultMaxParseErrors = 5

	Placeholder   = "⌛..."
	ErrorPrefix   = "❗ "
	EmptyResponse = "(empty model response)"
	ClearedText   = "🧹 Conversation cleared."
)

// State is the lifecycle of one delivery.
type State int

const (
	StateStarted State = iota
	StateAwaitingBackend
	StateStreaming
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateStarted:
		return "started"
	case StateAwaitingBackend:
		return "awaiting_backend"
	case StateStreaming:
		return "streaming"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Backend groups the generation capabilities. Any of them may be nil; the
// matching flow then fails with a user-visible message.
type Backend struct {
	Chat   domain.ChatGenerator
	Stream domain.TextStreamer
	Images domain.ImageGenerator
	Voice  domain.Synthesizer
}

type Options struct {
	PhraseThreshold int
	// HistoryWindow bounds how many messages are replayed as context; 0 means all.
	HistoryWindow  int
	MaxParseErrors int
}

// ChatService delivers generated replies into a transport, one prompt at a time.
type ChatService struct {
	history domain.HistoryStore
	backend Backend
	opts    Options
}

func NewChatService(history domain.HistoryStore, backend Backend, opts Options) *ChatService {
	if opts.PhraseThreshold <= 0 {
		opts.PhraseThreshold = DefaultPhraseThreshold
	}
	if opts.MaxParseErrors == 0 {
		opts.MaxParseErrors = DefaultMaxParseErrors
	}
	return &ChatService{history: history, backend: backend, opts: opts}
}

var (
	errChatUnavailable   = errors.New("chat generation is not configured")
	errStreamUnavailable = errors.New("streaming generation is not configured")
	errImageUnavailable  = errors.New("image generation is not configured")
)

// Converse is the default context-carrying flow.
func (s *ChatService) Converse(ctx context.Context, t domain.Transport, in domain.Inbound) State {
	state, _ := s.converse(ctx, t, in)
	return state
}

// Speak runs Converse and then sends the reply as synthesized audio.
func (s *ChatService) Speak(ctx context.Context, t domain.Transport, in domain.Inbound) State {
	state, reply := s.converse(ctx, t, in)
	if state != StateCompleted {
		return state
	}
	s.sendVoice(ctx, t, in.Conversation, reply)
	return state
}

func (s *ChatService) converse(ctx context.Context, t domain.Transport, in domain.Inbound) (State, string) {
	placeholder, ok := s.start(ctx, t, in.Conversation)
	if !ok {
		return StateFailed, ""
	}
	if s.backend.Chat == nil {
		return s.fail(ctx, t, in.Conversation, placeholder, errChatUnavailable), ""
	}

	userMsg := domain.ChatMessage{Role: domain.UserRole, Content: in.Prompt, Name: in.SenderName}
	appended := !userMsg.IsEmpty()
	s.history.Append(in.Conversation, userMsg)

	log.WithCtx(ctx).Debug("awaiting chat reply", zap.String("state", StateAwaitingBackend.String()))
	window := lastN(s.history.Messages(in.Conversation), s.opts.HistoryWindow)
	reply, err := s.backend.Chat.GenerateChatReply(ctx, window)
	if err == nil && strings.TrimSpace(reply.Content) == "" {
		err = &domain.GenerationError{Kind: domain.KindBackend, Message: EmptyResponse}
	}
	if err != nil {
		if appended {
			s.history.RemoveLast(in.Conversation)
		}
		return s.fail(ctx, t, in.Conversation, placeholder, err), ""
	}

	reply.Role = domain.AssistantRole
	s.history.Append(in.Conversation, reply)
	s.edit(ctx, t, in.Conversation, placeholder, reply.Content, domain.FormatMarkdown)
	return StateCompleted, reply.Content
}

// Story streams a context-free completion into the placeholder. Nothing is
// committed to history.
func (s *ChatService) Story(ctx context.Context, t domain.Transport, in domain.Inbound) State {
	logger := log.WithCtx(ctx)
	placeholder, ok := s.start(ctx, t, in.Conversation)
	if !ok {
		return StateFailed
	}
	if s.backend.Stream == nil {
		return s.fail(ctx, t, in.Conversation, placeholder, errStreamUnavailable)
	}

	stream, err := s.backend.Stream.GenerateTextStream(ctx, in.Prompt)
	if err != nil {
		return s.fail(ctx, t, in.Conversation, placeholder, err)
	}
	defer stream.Close()
	logger.Debug("stream opened", zap.String("state", StateStreaming.String()))

	agg := NewAggregator(s.opts.PhraseThreshold)
	deliver := func() {
		for {
			flush, ok := agg.Next()
			if !ok {
				return
			}
			if err := t.EditMessage(ctx, in.Conversation, placeholder, flush.Text, domain.FormatPlain); err != nil {
				logger.Warn("failed to edit streamed message", zap.Error(err), zap.Int("length", len(flush.Text)))
			}
			agg.Ack()
		}
	}

	parseErrors := 0
	for {
		line, ok := stream.Next()
		if !ok {
			break
		}
		done, err := agg.Feed(line)
		if err != nil {
			if !domain.IsKind(err, domain.KindStreamParse) {
				return s.failPartial(ctx, t, in.Conversation, placeholder, agg, err)
			}
			parseErrors++
			logger.Warn("skipping unreadable stream line", zap.Error(err), zap.Int("consecutive", parseErrors))
			if s.opts.MaxParseErrors > 0 && parseErrors >= s.opts.MaxParseErrors {
				abort := &domain.GenerationError{
					Kind:    domain.KindStreamParse,
					Message: fmt.Sprintf("stream aborted after %d unreadable fragments", parseErrors),
					Err:     err,
				}
				return s.failPartial(ctx, t, in.Conversation, placeholder, agg, abort)
			}
			continue
		}
		parseErrors = 0
		deliver()
		if done {
			break
		}
	}
	if err := stream.Err(); err != nil {
		return s.failPartial(ctx, t, in.Conversation, placeholder, agg, err)
	}

	agg.Close()
	deliver()
	if agg.Displayed() == "" {
		s.edit(ctx, t, in.Conversation, placeholder, EmptyResponse, domain.FormatPlain)
	}
	return StateCompleted
}

// Imagine sends one photo per generated image and removes the placeholder
// once the first photo is out.
func (s *ChatService) Imagine(ctx context.Context, t domain.Transport, in domain.Inbound) State {
	logger := log.WithCtx(ctx)
	placeholder, ok := s.start(ctx, t, in.Conversation)
	if !ok {
		return StateFailed
	}
	if s.backend.Images == nil {
		return s.fail(ctx, t, in.Conversation, placeholder, errImageUnavailable)
	}

	images, err := s.backend.Images.GenerateImages(ctx, in.Prompt)
	if err != nil {
		return s.fail(ctx, t, in.Conversation, placeholder, err)
	}
	urls := make([]string, 0, len(images))
	for _, img := range images {
		if img.URL != "" {
			urls = append(urls, img.URL)
		}
	}
	if len(urls) == 0 {
		return s.fail(ctx, t, in.Conversation, placeholder,
			&domain.GenerationError{Kind: domain.KindBackend, Message: "no images returned"})
	}

	deletePlaceholder := placeholderDeleter(t, in.Conversation, placeholder)
	var sent atomic.Int32
	var g errgroup.Group
	for _, url := range urls {
		g.Go(func() error {
			if err := t.SendPhoto(ctx, in.Conversation, url); err != nil {
				return fmt.Errorf("send photo: %w", err)
			}
			sent.Add(1)
			deletePlaceholder(ctx)
			return nil
		})
	}
	err = g.Wait()
	if sent.Load() == 0 {
		return s.fail(ctx, t, in.Conversation, placeholder, err)
	}
	if err != nil {
		logger.Warn("some images were not delivered", zap.Error(err), zap.Int32("sent", sent.Load()), zap.Int("total", len(urls)))
	}

	s.history.Append(in.Conversation, domain.ChatMessage{Role: domain.UserRole, Content: in.Prompt, Name: in.SenderName})
	s.history.Append(in.Conversation, domain.ChatMessage{
		Role:    domain.AssistantRole,
		Content: fmt.Sprintf("[generated %d image(s) for: %s]", sent.Load(), in.Prompt),
	})
	return StateCompleted
}

// Reset drops the conversation context.
func (s *ChatService) Reset(ctx context.Context, t domain.Transport, in domain.Inbound) State {
	s.history.Clear(in.Conversation)
	if _, err := t.SendMessage(ctx, in.Conversation, ClearedText); err != nil {
		log.WithCtx(ctx).Warn("failed to confirm history clear", zap.Error(err))
	}
	return StateCompleted
}

// placeholderDeleter returns a delete action that hits the transport at most once.
func placeholderDeleter(t domain.Transport, conversation domain.ConversationID, id domain.MessageID) func(context.Context) {
	var once sync.Once
	return func(ctx context.Context) {
		once.Do(func() {
			if err := t.DeleteMessage(ctx, conversation, id); err != nil {
				log.WithCtx(ctx).Warn("failed to delete placeholder", zap.Error(err))
			}
		})
	}
}

func (s *ChatService) start(ctx context.Context, t domain.Transport, conversation domain.ConversationID) (domain.MessageID, bool) {
	id, err := t.SendMessage(ctx, conversation, Placeholder)
	if err != nil {
		log.WithCtx(ctx).Error("failed to send placeholder", zap.Error(err))
		return 0, false
	}
	return id, true
}

func (s *ChatService) fail(ctx context.Context, t domain.Transport, conversation domain.ConversationID, placeholder domain.MessageID, err error) State {
	genErr := domain.BackendError(err)
	log.WithCtx(ctx).Error("generation failed", zap.String("kind", genErr.Kind.String()), zap.Error(err))
	s.edit(ctx, t, conversation, placeholder, UserMessage(genErr), domain.FormatPlain)
	return StateFailed
}

// failPartial keeps already streamed text visible above the error.
func (s *ChatService) failPartial(ctx context.Context, t domain.Transport, conversation domain.ConversationID, placeholder domain.MessageID, agg *Aggregator, err error) State {
	shown := agg.Displayed()
	if shown == "" {
		return s.fail(ctx, t, conversation, placeholder, err)
	}
	genErr := domain.BackendError(err)
	log.WithCtx(ctx).Error("stream failed", zap.String("kind", genErr.Kind.String()), zap.Error(err), zap.Int("shown", len(shown)))
	s.edit(ctx, t, conversation, placeholder, shown+"\n\n"+UserMessage(genErr), domain.FormatPlain)
	return StateFailed
}

// edit updates the placeholder, retrying as plain text when Markdown is rejected.
func (s *ChatService) edit(ctx context.Context, t domain.Transport, conversation domain.ConversationID, id domain.MessageID, text string, format domain.Format) {
	err := t.EditMessage(ctx, conversation, id, text, format)
	if err != nil && format == domain.FormatMarkdown {
		log.WithCtx(ctx).Debug("markdown edit rejected, retrying as plain text", zap.Error(err))
		err = t.EditMessage(ctx, conversation, id, text, domain.FormatPlain)
	}
	if err != nil {
		log.WithCtx(ctx).Error("failed to edit message", zap.Error(err))
	}
}

func (s *ChatService) sendVoice(ctx context.Context, t domain.Transport, conversation domain.ConversationID, text string) {
	logger := log.WithCtx(ctx)
	sender, ok := t.(domain.VoiceSender)
	if !ok || s.backend.Voice == nil {
		if _, err := t.SendMessage(ctx, conversation, ErrorPrefix+"voice replies are not available here"); err != nil {
			logger.Warn("failed to report missing voice support", zap.Error(err))
		}
		return
	}
	audio, err := s.backend.Voice.Synthesize(ctx, text)
	if err == nil {
		err = sender.SendVoice(ctx, conversation, audio)
	}
	if err != nil {
		logger.Error("voice reply failed", zap.Error(err))
		if _, sendErr := t.SendMessage(ctx, conversation, ErrorPrefix+err.Error()); sendErr != nil {
			logger.Warn("failed to report voice failure", zap.Error(sendErr))
		}
	}
}

// UserMessage renders an error the way it is shown in the chat.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	return ErrorPrefix + err.Error()
}
