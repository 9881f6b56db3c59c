package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"

	"google.golang.org/genai"

	"github.com/satriahrh/cocoa-fruit/chatrelay/domain"
)

// GeminiClient serves the chat and streaming flows from Gemini. Streamed
// chunks are re-encoded as completion-stream lines so the aggregator sees one
// wire format regardless of provider.
type GeminiClient struct {
	client       *genai.Client
	model        string
	systemPrompt string
	temperature  float32
}

func NewGeminiClient(ctx context.Context, model, systemPrompt string, temperature float64) (*GeminiClient, error) {
	client, err := genai.NewClient(
		ctx,
		&genai.ClientConfig{
			HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
		},
	)
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}

	return &GeminiClient{
		client:       client,
		model:        model,
		systemPrompt: systemPrompt,
		temperature:  float32(temperature),
	}, nil
}

// GenerateChatReply implements domain.ChatGenerator.
func (g *GeminiClient) GenerateChatReply(ctx context.Context, history []domain.ChatMessage) (domain.ChatMessage, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model, toGeminiContents(history), g.config())
	if err != nil {
		return domain.ChatMessage{}, domain.BackendError(fmt.Errorf("generate content: %w", err))
	}

	return domain.ChatMessage{
		Role:    domain.AssistantRole,
		Content: resp.Text(),
	}, nil
}

// GenerateTextStream implements domain.TextStreamer.
func (g *GeminiClient) GenerateTextStream(ctx context.Context, prompt string) (domain.LineStream, error) {
	seq := g.client.Models.GenerateContentStream(ctx, g.model, genai.Text(prompt), g.config())
	return newGeminiStream(seq), nil
}

func (g *GeminiClient) config() *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{Temperature: &g.temperature}
	if g.systemPrompt != "" {
		cfg.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: g.systemPrompt}},
		}
	}
	return cfg
}

func toGeminiContents(history []domain.ChatMessage) []*genai.Content {
	contents := make([]*genai.Content, 0, len(history))
	for _, msg := range history {
		role := genai.RoleModel
		if msg.Role == domain.UserRole {
			role = genai.RoleUser
		}
		contents = append(contents, &genai.Content{
			Role: role,
			Parts: []*genai.Part{
				{Text: msg.Content},
			},
		})
	}
	return contents
}

// geminiStream pulls from a genai response iterator and yields
// `data: {"choices":[{"text":...}]}` lines followed by `data: [DONE]`.
type geminiStream struct {
	next       func() (*genai.GenerateContentResponse, error, bool)
	stop       func()
	err        error
	terminated bool
}

func newGeminiStream(seq iter.Seq2[*genai.GenerateContentResponse, error]) *geminiStream {
	next, stop := iter.Pull2(seq)
	return &geminiStream{next: next, stop: stop}
}

func (s *geminiStream) Next() (string, bool) {
	if s.terminated || s.err != nil {
		return "", false
	}
	resp, err, ok := s.next()
	if !ok {
		s.terminated = true
		return "data: [DONE]", true
	}
	if err != nil {
		s.err = domain.BackendError(fmt.Errorf("stream content: %w", err))
		return "", false
	}
	text := ""
	if resp != nil {
		text = resp.Text()
	}
	return encodeCompletionLine(text), true
}

func (s *geminiStream) Err() error {
	return s.err
}

func (s *geminiStream) Close() error {
	s.terminated = true
	s.stop()
	return nil
}

type completionChunk struct {
	Choices []completionChoice `json:"choices"`
}

type completionChoice struct {
	Text string `json:"text"`
}

func encodeCompletionLine(text string) string {
	b, _ := json.Marshal(completionChunk{Choices: []completionChoice{{Text: text}}})
	return "data: " + string(b)
}
