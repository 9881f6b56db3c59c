package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/satriahrh/cocoa-fruit/chatrelay/domain"
)

type op struct {
	Kind   string
	ID     domain.MessageID
	Text   string
	Format domain.Format
}

// fakeTransport records every display operation in order.
type fakeTransport struct {
	mu        sync.Mutex
	nextID    domain.MessageID
	ops       []op
	failSend  bool
	failPhoto map[string]bool
	rejectMD  bool
	voices    [][]byte
}

func (f *fakeTransport) SendMessage(_ context.Context, _ domain.ConversationID, text string) (domain.MessageID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSend {
		return 0, errors.New("send failed")
	}
	f.nextID++
	f.ops = append(f.ops, op{Kind: "send", ID: f.nextID, Text: text})
	return f.nextID, nil
}

func (f *fakeTransport) EditMessage(_ context.Context, _ domain.ConversationID, id domain.MessageID, text string, format domain.Format) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rejectMD && format == domain.FormatMarkdown {
		return errors.New("can't parse entities")
	}
	f.ops = append(f.ops, op{Kind: "edit", ID: id, Text: text, Format: format})
	return nil
}

func (f *fakeTransport) DeleteMessage(_ context.Context, _ domain.ConversationID, id domain.MessageID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, op{Kind: "delete", ID: id})
	return nil
}

func (f *fakeTransport) SendPhoto(_ context.Context, _ domain.ConversationID, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failPhoto[url] {
		return fmt.Errorf("photo %s rejected", url)
	}
	f.ops = append(f.ops, op{Kind: "photo", Text: url})
	return nil
}

func (f *fakeTransport) count(kind string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, o := range f.ops {
		if o.Kind == kind {
			n++
		}
	}
	return n
}

func (f *fakeTransport) last() op {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ops[len(f.ops)-1]
}

func (f *fakeTransport) edits() []op {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []op
	for _, o := range f.ops {
		if o.Kind == "edit" {
			out = append(out, o)
		}
	}
	return out
}

// voiceTransport adds domain.VoiceSender.
type voiceTransport struct {
	fakeTransport
}

func (v *voiceTransport) SendVoice(_ context.Context, _ domain.ConversationID, audio []byte) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.voices = append(v.voices, audio)
	return nil
}

type fakeChat struct {
	mu    sync.Mutex
	reply string
	err   error
	seen  [][]domain.ChatMessage
}

func (f *fakeChat) GenerateChatReply(_ context.Context, history []domain.ChatMessage) (domain.ChatMessage, error) {
	f.mu.Lock()
	f.seen = append(f.seen, history)
	f.mu.Unlock()
	if f.err != nil {
		return domain.ChatMessage{}, f.err
	}
	return domain.ChatMessage{Role: domain.AssistantRole, Content: f.reply}, nil
}

type sliceStream struct {
	lines  []string
	err    error
	closed bool
}

func (s *sliceStream) Next() (string, bool) {
	if len(s.lines) == 0 {
		return "", false
	}
	line := s.lines[0]
	s.lines = s.lines[1:]
	return line, true
}

func (s *sliceStream) Err() error   { return s.err }
func (s *sliceStream) Close() error { s.closed = true; return nil }

type fakeStreamer struct {
	stream *sliceStream
	err    error
}

func (f *fakeStreamer) GenerateTextStream(context.Context, string) (domain.LineStream, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.stream, nil
}

type fakeImages struct {
	images []domain.Image
	err    error
}

func (f *fakeImages) GenerateImages(context.Context, string) ([]domain.Image, error) {
	return f.images, f.err
}

type fakeVoice struct {
	audio []byte
	err   error
}

func (f *fakeVoice) Synthesize(context.Context, string) ([]byte, error) {
	return f.audio, f.err
}
