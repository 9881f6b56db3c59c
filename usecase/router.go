package usecase

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/satriahrh/cocoa-fruit/chatrelay/domain"
	"github.com/satriahrh/cocoa-fruit/chatrelay/utils/log"
)

// Flow is the handler an inbound event resolves to.
type Flow int

const (
	FlowNone Flow = iota
	FlowChat
	FlowStory
	FlowImage
	FlowVoice
	FlowClear
	FlowHelp
)

func (f Flow) String() string {
	switch f {
	case FlowNone:
		return "none"
	case FlowChat:
		return "chat"
	case FlowStory:
		return "story"
	case FlowImage:
		return "image"
	case FlowVoice:
		return "voice"
	case FlowClear:
		return "clear"
	case FlowHelp:
		return "help"
	default:
		return fmt.Sprintf("flow(%d)", int(f))
	}
}

// Classifier picks a flow for a prompt that arrived without an explicit command.
type Classifier func(prompt string) Flow

var imageKeywords = []string{"image", "img", "picture"}

// KeywordClassifier sends prompts mentioning images to the image flow and
// everything else to chat.
func KeywordClassifier(prompt string) Flow {
	lower := strings.ToLower(prompt)
	for _, kw := range imageKeywords {
		if strings.Contains(lower, kw) {
			return FlowImage
		}
	}
	return FlowChat
}

var commandFlows = map[string]Flow{
	"chat":    FlowChat,
	"ask":     FlowChat,
	"image":   FlowImage,
	"img":     FlowImage,
	"imagine": FlowImage,
	"story":   FlowStory,
	"stream":  FlowStory,
	"speak":   FlowVoice,
	"voice":   FlowVoice,
}

const HelpText = `Send me a message and I will answer in context.

/image <prompt> – generate pictures
/story <prompt> – stream a completion as it is written
/speak <prompt> – answer with a voice message
/clear – forget this conversation`

// Router resolves inbound events to flows and runs them on the dispatcher.
// Replies go back through the transport mounted for the event's source.
type Router struct {
	svc        *ChatService
	dispatcher domain.Dispatcher
	classify   Classifier

	mu         sync.RWMutex
	transports map[string]domain.Transport
}

func NewRouter(svc *ChatService, dispatcher domain.Dispatcher, classify Classifier) *Router {
	if classify == nil {
		classify = KeywordClassifier
	}
	return &Router{
		svc:        svc,
		dispatcher: dispatcher,
		classify:   classify,
		transports: make(map[string]domain.Transport),
	}
}

// Mount registers the transport used to answer events from source.
func (r *Router) Mount(source string, t domain.Transport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transports[source] = t
}

func (r *Router) transport(source string) (domain.Transport, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.transports[source]
	return t, ok
}

// Resolve maps an inbound event to a flow. Commands win over classification;
// events without a command or without a prompt resolve to FlowNone.
func (r *Router) Resolve(in domain.Inbound) Flow {
	if !in.Actionable() {
		return FlowNone
	}
	cmd := strings.ToLower(in.Command)
	switch cmd {
	case "clear", "reset":
		return FlowClear
	case "start", "help":
		return FlowHelp
	}
	prompt := strings.TrimSpace(in.Prompt)
	if prompt == "" {
		return FlowNone
	}
	if flow, ok := commandFlows[cmd]; ok {
		return flow
	}
	return r.classify(prompt)
}

// HandleInbound is the transport entry point. It never blocks on generation
// and never panics into the caller.
func (r *Router) HandleInbound(ctx context.Context, in domain.Inbound) {
	ctx = log.WithConversation(log.WithSource(ctx, in.Source), string(in.Conversation))
	flow := r.Resolve(in)
	if flow == FlowNone {
		log.WithCtx(ctx).Debug("ignoring inbound event", zap.String("command", in.Command))
		return
	}
	in.Prompt = strings.TrimSpace(in.Prompt)
	t, ok := r.transport(in.Source)
	if !ok {
		log.WithCtx(ctx).Error("no transport mounted for source", zap.String("flow", flow.String()))
		return
	}

	job := func(jobCtx context.Context) {
		jobCtx = log.WithRequest(log.WithConversation(log.WithSource(jobCtx, in.Source), string(in.Conversation)), uuid.NewString())
		logger := log.WithCtx(jobCtx)
		defer func() {
			if rec := recover(); rec != nil {
				logger.Error("flow panicked", zap.Any("panic", rec), zap.String("flow", flow.String()))
			}
		}()
		logger.Info("handling prompt", zap.String("flow", flow.String()), zap.Int("prompt_len", len(in.Prompt)))
		state := r.run(jobCtx, t, flow, in)
		logger.Info("prompt handled", zap.String("flow", flow.String()), zap.String("state", state.String()))
	}
	if err := r.dispatcher.Dispatch(ctx, in.Conversation, job); err != nil {
		log.WithCtx(ctx).Error("failed to dispatch prompt", zap.Error(err), zap.String("flow", flow.String()))
	}
}

func (r *Router) run(ctx context.Context, t domain.Transport, flow Flow, in domain.Inbound) State {
	switch flow {
	case FlowChat:
		return r.svc.Converse(ctx, t, in)
	case FlowStory:
		return r.svc.Story(ctx, t, in)
	case FlowImage:
		return r.svc.Imagine(ctx, t, in)
	case FlowVoice:
		return r.svc.Speak(ctx, t, in)
	case FlowClear:
		return r.svc.Reset(ctx, t, in)
	case FlowHelp:
		if _, err := t.SendMessage(ctx, in.Conversation, HelpText); err != nil {
			log.WithCtx(ctx).Warn("failed to send help", zap.Error(err))
			return StateFailed
		}
		return StateCompleted
	default:
		return StateFailed
	}
}
