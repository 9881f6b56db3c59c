package usecase

import (
	"encoding/json"
	"strings"
	"unicode/utf8"

	"github.com/satriahrh/cocoa-fruit/chatrelay/domain"
)

const (
	DefaultPhraseThreshold = 30

	streamDataPrefix = "data:"
	streamTerminator = "[DONE]"
)

// Flush is one display update. Text is everything shown so far, not a delta.
type Flush struct {
	Text  string
	Final bool
}

// Aggregator turns raw completion-stream lines into phrase-sized flush events.
//
// Deltas accumulate in pending until they reach the threshold, then move to
// ready. Next hands out ready text one flush at a time; the caller must Ack a
// flush once it is displayed before the next one is released.
type Aggregator struct {
	threshold int

	pending    strings.Builder
	pendingLen int
	ready      strings.Builder
	displayed  string

	delivering bool
	done       bool
}

func NewAggregator(threshold int) *Aggregator {
	if threshold <= 0 {
		threshold = DefaultPhraseThreshold
	}
	return &Aggregator{threshold: threshold}
}

// Feed consumes one raw line. It reports true once the terminator has been
// seen; later lines are ignored. A StreamParse error leaves the buffer intact.
func (a *Aggregator) Feed(line string) (bool, error) {
	if a.done {
		return true, nil
	}
	payload, ok := streamPayload(line)
	if !ok {
		return false, nil
	}
	if payload == streamTerminator {
		a.Close()
		return true, nil
	}
	delta, err := parseFragment(payload)
	if err != nil {
		return false, err
	}
	a.Append(delta)
	return false, nil
}

// Append adds a text delta verbatim.
func (a *Aggregator) Append(delta string) {
	if delta == "" || a.done {
		return
	}
	a.pending.WriteString(delta)
	a.pendingLen += utf8.RuneCountInString(delta)
	if a.pendingLen >= a.threshold {
		a.promote()
	}
}

// Close ends the stream: whatever is still pending becomes ready regardless
// of the threshold.
func (a *Aggregator) Close() {
	if a.done {
		return
	}
	a.done = true
	if a.pendingLen > 0 {
		a.promote()
	}
}

// Next returns the next flush when ready text exists and no flush is in flight.
func (a *Aggregator) Next() (Flush, bool) {
	if a.delivering || a.ready.Len() == 0 {
		return Flush{}, false
	}
	a.displayed += a.ready.String()
	a.ready.Reset()
	a.delivering = true
	return Flush{Text: a.displayed, Final: a.done && a.pendingLen == 0}, true
}

// Ack releases the serialization guard after a flush has been displayed.
func (a *Aggregator) Ack() {
	a.delivering = false
}

func (a *Aggregator) Done() bool {
	return a.done
}

// Displayed is the text handed out through flushes so far.
func (a *Aggregator) Displayed() string {
	return a.displayed
}

// Text is everything received so far, flushed or not.
func (a *Aggregator) Text() string {
	return a.displayed + a.ready.String() + a.pending.String()
}

func (a *Aggregator) promote() {
	a.ready.WriteString(a.pending.String())
	a.pending.Reset()
	a.pendingLen = 0
}

// streamPayload strips the SSE framing. ok is false for anything that is not a
// non-empty data field: blank lines, comments, other fields and stray text.
func streamPayload(line string) (string, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, streamDataPrefix) {
		return "", false
	}
	payload := strings.TrimSpace(strings.TrimPrefix(line, streamDataPrefix))
	return payload, payload != ""
}

type streamChunk struct {
	Choices []struct {
		Text  *string `json:"text"`
		Delta *struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Error json.RawMessage `json:"error"`
}

type streamError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// parseFragment extracts the text delta of one chunk. Missing choices or text
// yield an empty delta.
func parseFragment(payload string) (string, error) {
	var chunk streamChunk
	if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
		return "", &domain.GenerationError{
			Kind:    domain.KindStreamParse,
			Message: "unreadable stream fragment: " + truncate(payload, 120),
			Err:     err,
		}
	}
	if len(chunk.Error) > 0 && string(chunk.Error) != "null" {
		return "", streamBackendError(chunk.Error)
	}
	if len(chunk.Choices) == 0 {
		return "", nil
	}
	choice := chunk.Choices[0]
	switch {
	case choice.Text != nil:
		return *choice.Text, nil
	case choice.Delta != nil:
		return choice.Delta.Content, nil
	default:
		return "", nil
	}
}

func streamBackendError(raw json.RawMessage) error {
	var obj streamError
	if err := json.Unmarshal(raw, &obj); err == nil && obj.Message != "" {
		return &domain.GenerationError{Kind: domain.KindBackend, Type: obj.Type, Message: obj.Message}
	}
	var msg string
	if err := json.Unmarshal(raw, &msg); err == nil && msg != "" {
		return &domain.GenerationError{Kind: domain.KindBackend, Message: msg}
	}
	return &domain.GenerationError{Kind: domain.KindBackend, Message: "stream reported an error: " + truncate(string(raw), 120)}
}

func truncate(s string, maxChars int) string {
	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}
	return string(runes[:maxChars])
}
