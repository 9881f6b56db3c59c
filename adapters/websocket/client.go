package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/satriahrh/cocoa-fruit/chatrelay/domain"
	"github.com/satriahrh/cocoa-fruit/chatrelay/utils/log"
)

type Client struct {
	conn         *websocket.Conn
	conversation domain.ConversationID
	handler      domain.InboundHandler
	send         chan []byte
	ctx          context.Context
	cancel       context.CancelFunc
	mu           sync.RWMutex
	closed       bool
}

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 64 * 1024
)

// NewClient creates a new WebSocket client bound to one conversation.
func NewClient(parent context.Context, conn *websocket.Conn, conversation domain.ConversationID, handler domain.InboundHandler) *Client {
	ctx := log.WithConversation(log.WithSource(parent, Source), string(conversation))
	ctx, cancel := context.WithCancel(ctx)
	return &Client{
		conn:         conn,
		conversation: conversation,
		handler:      handler,
		send:         make(chan []byte, 256),
		ctx:          ctx,
		cancel:       cancel,
	}
}

func (c *Client) Run() {
	c.setupHandlers()

	go c.readPump()
	go c.writePump()
}

func (c *Client) setupHandlers() {
	c.conn.SetCloseHandler(func(code int, text string) error {
		log.WithCtx(c.ctx).Debug("WebSocket connection closed", zap.Int("code", code), zap.String("text", text))
		c.Close()
		return nil
	})

	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
}

// Close gracefully closes the client connection
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	c.closed = true
	c.cancel()
	c.conn.Close()
	close(c.send)
}

// IsClosed returns true if the client connection is closed
func (c *Client) IsClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// Context is cancelled once the connection is closed.
func (c *Client) Context() context.Context {
	return c.ctx
}

func (c *Client) Conversation() domain.ConversationID {
	return c.conversation
}

// readPump turns prompt frames into inbound events.
func (c *Client) readPump() {
	defer c.Close()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.WithCtx(c.ctx).Error("WebSocket error", zap.Error(err))
			}
			return
		}

		var ev Event
		if err := json.Unmarshal(message, &ev); err != nil || ev.Type != EventPrompt {
			log.WithCtx(c.ctx).Debug("Ignoring frame", zap.ByteString("message", message))
			c.emitError(`expected {"type":"prompt","text":"..."}`)
			continue
		}
		c.handler.HandleInbound(c.ctx, ParsePrompt(c.conversation, ev.Text))
	}
}

// writePump drains the send channel and keeps the connection alive with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.WithCtx(c.ctx).Error("Failed to write message", zap.Error(err))
				return
			}

		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				log.WithCtx(c.ctx).Debug("Failed to send ping", zap.Error(err))
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

// SendMessage queues a frame. A client that cannot keep up is disconnected.
func (c *Client) SendMessage(message []byte) error {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return websocket.ErrCloseSent
	}
	select {
	case c.send <- message:
		c.mu.RUnlock()
		return nil
	default:
		c.mu.RUnlock()
		c.Close()
		return websocket.ErrCloseSent
	}
}

func (c *Client) emitError(text string) {
	payload, err := json.Marshal(Event{Type: EventError, Conversation: string(c.conversation), Text: text, Timestamp: time.Now().UTC()})
	if err != nil {
		return
	}
	_ = c.SendMessage(payload)
}
