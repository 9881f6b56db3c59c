package llm

import (
	"errors"
	"iter"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/satriahrh/cocoa-fruit/chatrelay/domain"
)

func textResponse(s string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Role: genai.RoleModel, Parts: []*genai.Part{{Text: s}}},
		}},
	}
}

func seqOf(responses []*genai.GenerateContentResponse, tail error) iter.Seq2[*genai.GenerateContentResponse, error] {
	return func(yield func(*genai.GenerateContentResponse, error) bool) {
		for _, r := range responses {
			if !yield(r, nil) {
				return
			}
		}
		if tail != nil {
			yield(nil, tail)
		}
	}
}

func collect(s domain.LineStream) []string {
	var lines []string
	for {
		line, ok := s.Next()
		if !ok {
			return lines
		}
		lines = append(lines, line)
	}
}

func TestGeminiStream_EncodesCompletionLines(t *testing.T) {
	s := newGeminiStream(seqOf([]*genai.GenerateContentResponse{textResponse("Hel"), textResponse(`lo "go"`)}, nil))
	defer s.Close()

	assert.Equal(t, []string{
		`data: {"choices":[{"text":"Hel"}]}`,
		`data: {"choices":[{"text":"lo \"go\""}]}`,
		`data: [DONE]`,
	}, collect(s))
	assert.NoError(t, s.Err())
}

func TestGeminiStream_SurfacesErrors(t *testing.T) {
	s := newGeminiStream(seqOf([]*genai.GenerateContentResponse{textResponse("partial")}, errors.New("quota exhausted")))
	defer s.Close()

	assert.Equal(t, []string{`data: {"choices":[{"text":"partial"}]}`}, collect(s))
	require.Error(t, s.Err())
	assert.True(t, domain.IsKind(s.Err(), domain.KindBackend))
	assert.Contains(t, s.Err().Error(), "quota exhausted")
}

func TestGeminiStream_CloseEarly(t *testing.T) {
	s := newGeminiStream(seqOf([]*genai.GenerateContentResponse{textResponse("a"), textResponse("b")}, nil))

	_, ok := s.Next()
	require.True(t, ok)
	assert.NoError(t, s.Close())
	_, ok = s.Next()
	assert.False(t, ok)
}

func TestToGeminiContents(t *testing.T) {
	contents := toGeminiContents([]domain.ChatMessage{
		{Role: domain.UserRole, Content: "hi"},
		{Role: domain.AssistantRole, Content: "hello"},
	})

	require.Len(t, contents, 2)
	assert.Equal(t, genai.RoleUser, contents[0].Role)
	assert.Equal(t, genai.RoleModel, contents[1].Role)
	assert.Equal(t, "hello", contents[1].Parts[0].Text)
}
