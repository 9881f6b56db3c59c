package domain

import "context"

// ChatGenerator produces the next assistant turn for a dialogue.
type ChatGenerator interface {
	GenerateChatReply(ctx context.Context, history []ChatMessage) (ChatMessage, error)
}

// TextStreamer opens a streaming completion for a single prompt.
type TextStreamer interface {
	GenerateTextStream(ctx context.Context, prompt string) (LineStream, error)
}

// LineStream yields raw protocol lines ("data: {...}", "data: [DONE]") in
// arrival order. It is single pass.
type LineStream interface {
	Next() (string, bool)
	Err() error
	Close() error
}

type ImageGenerator interface {
	GenerateImages(ctx context.Context, prompt string) ([]Image, error)
}

type Image struct {
	URL string `json:"url"`
}

// Synthesizer turns text into playable audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// Transcriber turns a recorded voice note into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte) (string, error)
}
