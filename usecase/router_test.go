package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satriahrh/cocoa-fruit/chatrelay/domain"
)

// inlineDispatcher runs jobs on the caller's goroutine.
type inlineDispatcher struct {
	jobs int
	err  error
}

func (d *inlineDispatcher) Dispatch(ctx context.Context, _ domain.ConversationID, job domain.Job) error {
	if d.err != nil {
		return d.err
	}
	d.jobs++
	job(ctx)
	return nil
}

func (d *inlineDispatcher) Close() error { return nil }

func TestRouter_Resolve(t *testing.T) {
	r := NewRouter(nil, &inlineDispatcher{}, nil)

	tests := []struct {
		name    string
		command string
		prompt  string
		want    Flow
	}{
		{name: "not addressed", command: "", prompt: "hello", want: FlowNone},
		{name: "default chat", command: "default", prompt: "how are you", want: FlowChat},
		{name: "default image keyword", command: "default", prompt: "draw me a Picture of a cat", want: FlowImage},
		{name: "empty prompt", command: "default", prompt: "   ", want: FlowNone},
		{name: "image command", command: "image", prompt: "a cat", want: FlowImage},
		{name: "img alias", command: "IMG", prompt: "a cat", want: FlowImage},
		{name: "ask", command: "ask", prompt: "what is an image sensor", want: FlowChat},
		{name: "story", command: "story", prompt: "a dragon", want: FlowStory},
		{name: "speak", command: "speak", prompt: "hello", want: FlowVoice},
		{name: "clear without prompt", command: "clear", want: FlowClear},
		{name: "reset", command: "reset", prompt: "ignored", want: FlowClear},
		{name: "help", command: "start", want: FlowHelp},
		{name: "image command without prompt", command: "image", want: FlowNone},
		{name: "unknown command classifies", command: "whatever", prompt: "hi there", want: FlowChat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.Resolve(domain.Inbound{Command: tt.command, Prompt: tt.prompt}))
		})
	}
}

func TestRouter_CustomClassifier(t *testing.T) {
	r := NewRouter(nil, &inlineDispatcher{}, func(string) Flow { return FlowStory })

	assert.Equal(t, FlowStory, r.Resolve(domain.Inbound{Command: "default", Prompt: "anything"}))
	assert.Equal(t, FlowChat, r.Resolve(domain.Inbound{Command: "chat", Prompt: "anything"}))
}

func TestRouter_HandleInbound(t *testing.T) {
	history := NewMemoryHistory()
	svc := NewChatService(history, Backend{Chat: &fakeChat{reply: "pong"}}, Options{})
	dispatcher := &inlineDispatcher{}
	tr := &fakeTransport{}
	r := NewRouter(svc, dispatcher, nil)
	r.Mount("test", tr)

	r.HandleInbound(context.Background(), domain.Inbound{Conversation: conv, Command: "default", Prompt: "  ping  ", Source: "test"})

	assert.Equal(t, 1, dispatcher.jobs)
	assert.Equal(t, "pong", tr.last().Text)
	assert.Equal(t, "ping", history.Messages(conv)[0].Content)
}

func TestRouter_IgnoresUnaddressedEvents(t *testing.T) {
	dispatcher := &inlineDispatcher{}
	tr := &fakeTransport{}
	r := NewRouter(NewChatService(NewMemoryHistory(), Backend{}, Options{}), dispatcher, nil)
	r.Mount("test", tr)

	r.HandleInbound(context.Background(), domain.Inbound{Conversation: conv, ChatType: domain.GroupChat, Prompt: "chatter", Source: "test"})

	assert.Zero(t, dispatcher.jobs)
	assert.Empty(t, tr.ops, "no placeholder for ignored events")
}

func TestRouter_UnknownSource(t *testing.T) {
	dispatcher := &inlineDispatcher{}
	r := NewRouter(NewChatService(NewMemoryHistory(), Backend{}, Options{}), dispatcher, nil)

	r.HandleInbound(context.Background(), domain.Inbound{Conversation: conv, Command: "default", Prompt: "hi", Source: "nowhere"})

	assert.Zero(t, dispatcher.jobs)
}

func TestRouter_HelpAndDispatchFailure(t *testing.T) {
	tr := &fakeTransport{}
	r := NewRouter(NewChatService(NewMemoryHistory(), Backend{}, Options{}), &inlineDispatcher{}, nil)
	r.Mount("test", tr)

	r.HandleInbound(context.Background(), domain.Inbound{Conversation: conv, Command: "help", Source: "test"})
	require.Len(t, tr.ops, 1)
	assert.Equal(t, HelpText, tr.ops[0].Text)

	failing := NewRouter(NewChatService(NewMemoryHistory(), Backend{}, Options{}), &inlineDispatcher{err: errors.New("queue full")}, nil)
	failing.Mount("test", tr)
	assert.NotPanics(t, func() {
		failing.HandleInbound(context.Background(), domain.Inbound{Conversation: conv, Command: "help", Source: "test"})
	})
	assert.Len(t, tr.ops, 1)
}

func TestRouter_RecoversFromPanickingFlow(t *testing.T) {
	r := NewRouter(NewChatService(NewMemoryHistory(), Backend{Chat: panicChat{}}, Options{}), &inlineDispatcher{}, nil)
	r.Mount("test", &fakeTransport{})

	assert.NotPanics(t, func() {
		r.HandleInbound(context.Background(), domain.Inbound{Conversation: conv, Command: "chat", Prompt: "hi", Source: "test"})
	})
}

type panicChat struct{}

func (panicChat) GenerateChatReply(context.Context, []domain.ChatMessage) (domain.ChatMessage, error) {
	panic("backend exploded")
}

func TestFlowAndStateNames(t *testing.T) {
	assert.Equal(t, "image", FlowImage.String())
	assert.Equal(t, "awaiting_backend", StateAwaitingBackend.String())
	assert.Equal(t, "flow(99)", Flow(99).String())
}
