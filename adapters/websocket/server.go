package websocket

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/satriahrh/cocoa-fruit/chatrelay/domain"
)

type Server struct {
	root     context.Context
	upgrader websocket.Upgrader
	handler  domain.InboundHandler
	hub      *Hub
}

// NewServer creates the console endpoint. Clients live under root and are
// closed when it is cancelled.
func NewServer(root context.Context, hub *Hub, handler domain.InboundHandler) *Server {
	return &Server{
		root:     root,
		upgrader: websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		handler:  handler,
		hub:      hub,
	}
}

func (s *Server) GetHub() *Hub {
	return s.hub
}
