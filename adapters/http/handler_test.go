package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satriahrh/cocoa-fruit/chatrelay/adapters/telegram"
)

type fakeBot struct {
	mu      sync.Mutex
	updates []telegram.Update
}

func (f *fakeBot) HandleUpdate(_ context.Context, update telegram.Update) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, update)
}

type fixedCounter int

func (c fixedCounter) ActiveConversations() int { return int(c) }

func newEcho(h *Handler) *echo.Echo {
	e := echo.New()
	h.Register(e)
	return e
}

func TestWebhook_DeliversUpdate(t *testing.T) {
	bot := &fakeBot{}
	e := newEcho(NewHandler(context.Background(), bot, "s3cret", nil))

	body := `{"update_id":77,"message":{"message_id":1,"chat":{"id":5,"type":"private"},"text":"hi"}}`
	req := httptest.NewRequest(http.MethodPost, WebhookPath("s3cret"), strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, bot.updates, 1)
	assert.Equal(t, int64(77), bot.updates[0].UpdateID)
	assert.Equal(t, "hi", bot.updates[0].Message.Text)
}

func TestWebhook_RejectsWrongSecret(t *testing.T) {
	bot := &fakeBot{}
	e := newEcho(NewHandler(context.Background(), bot, "s3cret", nil))

	req := httptest.NewRequest(http.MethodPost, WebhookPath("guess"), strings.NewReader(`{"update_id":1}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, bot.updates)
}

func TestWebhook_RejectsMalformedBody(t *testing.T) {
	bot := &fakeBot{}
	e := newEcho(NewHandler(context.Background(), bot, "s3cret", nil))

	req := httptest.NewRequest(http.MethodPost, WebhookPath("s3cret"), strings.NewReader(`{"update_id":`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, bot.updates)
}

func TestHealthCheck(t *testing.T) {
	e := newEcho(NewHandler(context.Background(), nil, "", fixedCounter(3)))

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.EqualValues(t, 3, body["active_conversations"])
}

func TestRegister_NoWebhookWithoutBot(t *testing.T) {
	e := newEcho(NewHandler(context.Background(), nil, "", nil))

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, WebhookPath(""), nil))

	assert.NotEqual(t, http.StatusOK, rec.Code)
}
