package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/cocoa-fruit/chatrelay/domain"
	"github.com/satriahrh/cocoa-fruit/chatrelay/utils/log"
)

type OpenAIConfig struct {
	APIKey          string
	BaseURL         string
	ChatModel       string
	CompletionModel string
	MaxTokens       int
	Temperature     float64
	ImageCount      int
	ImageSize       string
	SystemPrompt    string
	Timeout         time.Duration
}

// OpenAIClient talks to the chat, completion and image endpoints of an
// OpenAI-compatible API.
type OpenAIClient struct {
	cfg          OpenAIConfig
	httpClient   *http.Client
	streamClient *http.Client
}

func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.ImageCount <= 0 {
		cfg.ImageCount = 2
	}
	if cfg.ImageSize == "" {
		cfg.ImageSize = "512x512"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	// Unary requests get a context deadline. Streams only bound the wait for
	// response headers; the body runs on the caller's context.
	streamTransport := http.DefaultTransport.(*http.Transport).Clone()
	streamTransport.ResponseHeaderTimeout = cfg.Timeout
	return &OpenAIClient{
		cfg:          cfg,
		httpClient:   &http.Client{},
		streamClient: &http.Client{Transport: streamTransport},
	}
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	Name    string `json:"name,omitempty"`
}

type chatRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature float64         `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message openAIMessage `json:"message"`
	} `json:"choices"`
	Error *apiError `json:"error,omitempty"`
}

type completionRequest struct {
	Model       string  `json:"model"`
	Prompt      string  `json:"prompt"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
	Temperature float64 `json:"temperature"`
	Stream      bool    `json:"stream"`
}

type imageRequest struct {
	Prompt string `json:"prompt"`
	N      int    `json:"n"`
	Size   string `json:"size,omitempty"`
}

type imageResponse struct {
	Data  []domain.Image `json:"data"`
	Error *apiError      `json:"error,omitempty"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

type errorEnvelope struct {
	Error *apiError `json:"error"`
}

// GenerateChatReply implements domain.ChatGenerator.
func (c *OpenAIClient) GenerateChatReply(ctx context.Context, history []domain.ChatMessage) (domain.ChatMessage, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	messages := make([]openAIMessage, 0, len(history)+1)
	if c.cfg.SystemPrompt != "" {
		messages = append(messages, openAIMessage{Role: string(domain.SystemRole), Content: c.cfg.SystemPrompt})
	}
	for _, msg := range history {
		messages = append(messages, openAIMessage{Role: string(msg.Role), Content: msg.Content, Name: msg.Name})
	}

	var parsed chatResponse
	start := time.Now()
	if err := c.postJSON(ctx, "/chat/completions", chatRequest{
		Model:       c.cfg.ChatModel,
		Messages:    messages,
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: c.cfg.Temperature,
	}, &parsed); err != nil {
		return domain.ChatMessage{}, err
	}
	if parsed.Error != nil {
		return domain.ChatMessage{}, &domain.GenerationError{Kind: domain.KindBackend, Type: parsed.Error.Type, Message: parsed.Error.Message}
	}
	if len(parsed.Choices) == 0 {
		return domain.ChatMessage{}, &domain.GenerationError{Kind: domain.KindBackend, Message: "no completion returned"}
	}

	content := strings.TrimSpace(parsed.Choices[0].Message.Content)
	log.WithCtx(ctx).Debug("chat completion finished",
		zap.String("model", c.cfg.ChatModel),
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("response_len", len(content)))
	return domain.ChatMessage{Role: domain.AssistantRole, Content: content}, nil
}

// GenerateTextStream implements domain.TextStreamer over the legacy
// completions endpoint with stream=true.
func (c *OpenAIClient) GenerateTextStream(ctx context.Context, prompt string) (domain.LineStream, error) {
	payload, err := json.Marshal(completionRequest{
		Model:       c.cfg.CompletionModel,
		Prompt:      prompt,
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: c.cfg.Temperature,
		Stream:      true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal completion request: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	req, err := c.newRequest(ctx, "/completions", payload)
	if err != nil {
		cancel()
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.streamClient.Do(req)
	if err != nil {
		cancel()
		return nil, domain.BackendError(fmt.Errorf("completion stream request failed: %w", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer cancel()
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return nil, statusError(resp.StatusCode, body)
	}
	return newLineStream(resp.Body, cancel), nil
}

// GenerateImages implements domain.ImageGenerator.
func (c *OpenAIClient) GenerateImages(ctx context.Context, prompt string) ([]domain.Image, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	var parsed imageResponse
	if err := c.postJSON(ctx, "/images/generations", imageRequest{
		Prompt: prompt,
		N:      c.cfg.ImageCount,
		Size:   c.cfg.ImageSize,
	}, &parsed); err != nil {
		return nil, err
	}
	if parsed.Error != nil {
		return nil, &domain.GenerationError{Kind: domain.KindBackend, Type: parsed.Error.Type, Message: parsed.Error.Message}
	}
	return parsed.Data, nil
}

func (c *OpenAIClient) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.cfg.Timeout)
}

func (c *OpenAIClient) newRequest(ctx context.Context, path string, payload []byte) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create openai request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	return req, nil
}

func (c *OpenAIClient) postJSON(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal openai request: %w", err)
	}
	req, err := c.newRequest(ctx, path, payload)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.BackendError(fmt.Errorf("openai request failed: %w", err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.BackendError(fmt.Errorf("failed reading openai response: %w", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(resp.StatusCode, raw)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &domain.GenerationError{
			Kind:    domain.KindBackend,
			Message: "failed to parse openai response: " + truncate(string(raw), 400),
			Err:     err,
		}
	}
	return nil
}

// statusError turns a non-2xx response into a GenerationError, keeping the
// API's error type and message when the body carries them.
func statusError(status int, body []byte) error {
	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err == nil && env.Error != nil && env.Error.Message != "" {
		return &domain.GenerationError{Kind: domain.KindBackend, Status: status, Type: env.Error.Type, Message: env.Error.Message}
	}
	msg := strings.TrimSpace(truncate(string(body), 400))
	if msg == "" {
		msg = http.StatusText(status)
	}
	return &domain.GenerationError{Kind: domain.KindBackend, Status: status, Message: msg}
}

func truncate(s string, maxChars int) string {
	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}
	return string(runes[:maxChars])
}
