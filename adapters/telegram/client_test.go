package telegram

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satriahrh/cocoa-fruit/chatrelay/domain"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/bot", srv.URL+"/file", 2*time.Second)
}

func TestSendMessage_ReturnsMessageID(t *testing.T) {
	var got map[string]any
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/bot/sendMessage", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = io.WriteString(w, `{"ok":true,"result":{"message_id":42,"chat":{"id":7,"type":"private"}}}`)
	})

	msg, err := c.SendMessage(context.Background(), 7, "hello", "")
	require.NoError(t, err)
	assert.Equal(t, int64(42), msg.MessageID)
	assert.Equal(t, "hello", got["text"])
	assert.EqualValues(t, 7, got["chat_id"])
	assert.NotContains(t, got, "parse_mode")
}

func TestEditMessageText_NotModifiedIsNotAnError(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"ok":false,"error_code":400,"description":"Bad Request: message is not modified"}`)
	})

	assert.NoError(t, c.EditMessageText(context.Background(), 7, 42, "same", "Markdown"))
}

func TestCall_ReturnsAPIError(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = io.WriteString(w, `{"ok":false,"error_code":403,"description":"Forbidden: bot was blocked by the user"}`)
	})

	err := c.DeleteMessage(context.Background(), 7, 42)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "deleteMessage", apiErr.Method)
	assert.Equal(t, http.StatusForbidden, apiErr.Code)
	assert.Contains(t, err.Error(), "blocked")
}

func TestGetUpdates_DecodesMessages(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.EqualValues(t, 5, body["offset"])
		_, _ = io.WriteString(w, `{"ok":true,"result":[{"update_id":5,"message":{"message_id":1,"chat":{"id":9,"type":"group"},"text":"/image@relaybot cat","entities":[{"type":"bot_command","offset":0,"length":15}]}}]}`)
	})

	updates, err := c.GetUpdates(context.Background(), 5, 0)
	require.NoError(t, err)
	require.Len(t, updates, 1)
	require.NotNil(t, updates[0].Message)
	assert.Equal(t, int64(9), updates[0].Message.Chat.ID)
	assert.Equal(t, "bot_command", updates[0].Message.Entities[0].Type)
}

func TestSendVoice_UploadsMultipart(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "7", r.FormValue("chat_id"))
		f, _, err := r.FormFile("voice")
		require.NoError(t, err)
		data, _ := io.ReadAll(f)
		assert.Equal(t, "OggS", string(data))
		_, _ = io.WriteString(w, `{"ok":true,"result":{"message_id":3,"chat":{"id":7,"type":"private"}}}`)
	})

	assert.NoError(t, c.SendVoice(context.Background(), 7, []byte("OggS")))
}

func TestDownloadFile(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/bot/getFile":
			_, _ = io.WriteString(w, `{"ok":true,"result":{"file_id":"abc","file_path":"voice/file_1.oga"}}`)
		case "/file/voice/file_1.oga":
			_, _ = io.WriteString(w, "audio-bytes")
		default:
			http.NotFound(w, r)
		}
	})

	f, err := c.GetFile(context.Background(), "abc")
	require.NoError(t, err)
	data, err := c.DownloadFile(context.Background(), f.FilePath)
	require.NoError(t, err)
	assert.Equal(t, "audio-bytes", string(data))
}

func TestTransport_EditUsesParseMode(t *testing.T) {
	var modes []string
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		mode, _ := body["parse_mode"].(string)
		modes = append(modes, mode)
		_, _ = io.WriteString(w, `{"ok":true,"result":true}`)
	})
	tr := NewTransport(c)

	require.NoError(t, tr.EditMessage(context.Background(), "7", 1, "*bold*", domain.FormatMarkdown))
	require.NoError(t, tr.EditMessage(context.Background(), "7", 1, "plain", domain.FormatPlain))
	assert.Equal(t, []string{"Markdown", ""}, modes)
}

func TestTransport_RejectsForeignConversation(t *testing.T) {
	tr := NewTransport(NewClient("http://127.0.0.1:0", "", time.Second))

	_, err := tr.SendMessage(context.Background(), "ws:abc", "hi")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "not a telegram conversation"))
}
