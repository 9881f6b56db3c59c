package http

import (
	"context"
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/satriahrh/cocoa-fruit/chatrelay/adapters/telegram"
	"github.com/satriahrh/cocoa-fruit/chatrelay/utils/log"
)

// UpdateHandler consumes decoded Telegram updates.
type UpdateHandler interface {
	HandleUpdate(ctx context.Context, update telegram.Update)
}

// ConversationCounter reports how many conversations have a live worker.
type ConversationCounter interface {
	ActiveConversations() int
}

type Handler struct {
	root    context.Context
	bot     UpdateHandler
	secret  string
	counter ConversationCounter
	started time.Time
}

// NewHandler creates the webhook and health handler. Updates are handled
// under root rather than the request context since replies outlive the request.
func NewHandler(root context.Context, bot UpdateHandler, secret string, counter ConversationCounter) *Handler {
	return &Handler{
		root:    root,
		bot:     bot,
		secret:  secret,
		counter: counter,
		started: time.Now(),
	}
}

// WebhookPath is the route Telegram is told to post updates to.
func WebhookPath(secret string) string {
	return "/telegram/" + secret
}

// Register mounts the routes on e.
func (h *Handler) Register(e *echo.Echo) {
	api := e.Group("/api/v1")
	api.GET("/health", h.HealthCheck)
	if h.bot != nil {
		e.POST("/telegram/:secret", h.Webhook)
	}
}

// Webhook accepts one Telegram update.
func (h *Handler) Webhook(c echo.Context) error {
	if subtle.ConstantTimeCompare([]byte(c.Param("secret")), []byte(h.secret)) != 1 {
		return echo.NewHTTPError(http.StatusNotFound)
	}

	var update telegram.Update
	if err := c.Bind(&update); err != nil {
		log.WithCtx(c.Request().Context()).Warn("failed to decode telegram update", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid update")
	}

	h.bot.HandleUpdate(h.root, update)
	return c.NoContent(http.StatusOK)
}

func (h *Handler) HealthCheck(c echo.Context) error {
	body := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"service":   "chatrelay",
		"uptime":    time.Since(h.started).Round(time.Second).String(),
	}
	if h.counter != nil {
		body["active_conversations"] = h.counter.ActiveConversations()
	}
	return c.JSON(http.StatusOK, body)
}
