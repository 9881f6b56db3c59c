package websocket

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/satriahrh/cocoa-fruit/chatrelay/domain"
	"github.com/satriahrh/cocoa-fruit/chatrelay/utils/log"
)

// Handler upgrades "/ws" requests; each connection is its own conversation.
func (s *Server) Handler(c echo.Context) error {
	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	conversation := domain.ConversationID("ws:" + uuid.NewString())
	client := NewClient(s.root, conn, conversation, s.handler)
	s.hub.Register(client)
	defer s.hub.Unregister(client)

	client.Run()
	if err := s.hub.emit(conversation, Event{Type: EventSession}); err != nil {
		log.WithCtx(client.Context()).Warn("Failed to announce session", zap.Error(err))
	}

	<-client.Context().Done()
	return nil
}
