package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/satriahrh/cocoa-fruit/chatrelay/domain"
	"github.com/satriahrh/cocoa-fruit/chatrelay/utils/log"
)

// Hub tracks connected clients by conversation and implements
// domain.Transport and domain.VoiceSender on top of them.
type Hub struct {
	mu      sync.RWMutex
	clients map[domain.ConversationID]*Client
	nextID  atomic.Int64
}

func NewHub() *Hub {
	return &Hub{clients: make(map[domain.ConversationID]*Client)}
}

// Register adds a client to the hub
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client.conversation] = client
	log.WithCtx(client.ctx).Debug("New client registered")
}

// Unregister removes a client from the hub and closes it.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	if h.clients[client.conversation] == client {
		delete(h.clients, client.conversation)
	}
	h.mu.Unlock()
	client.Close()
	log.WithCtx(client.ctx).Debug("Client unregistered")
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// CloseAll disconnects every client.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for key, client := range h.clients {
		clients = append(clients, client)
		delete(h.clients, key)
	}
	h.mu.Unlock()
	for _, client := range clients {
		client.Close()
	}
}

func (h *Hub) emit(conversation domain.ConversationID, ev Event) error {
	h.mu.RLock()
	client, ok := h.clients[conversation]
	h.mu.RUnlock()
	if !ok {
		return fmt.Errorf("websocket client %s is not connected", conversation)
	}
	ev.Conversation = string(conversation)
	ev.Timestamp = time.Now().UTC()
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", ev.Type, err)
	}
	return client.SendMessage(payload)
}

func (h *Hub) SendMessage(_ context.Context, conversation domain.ConversationID, text string) (domain.MessageID, error) {
	id := h.nextID.Add(1)
	if err := h.emit(conversation, Event{Type: EventMessage, ID: id, Text: text, Format: formatName(domain.FormatPlain)}); err != nil {
		return 0, err
	}
	return domain.MessageID(id), nil
}

func (h *Hub) EditMessage(_ context.Context, conversation domain.ConversationID, id domain.MessageID, text string, format domain.Format) error {
	return h.emit(conversation, Event{Type: EventEdit, ID: int64(id), Text: text, Format: formatName(format)})
}

func (h *Hub) DeleteMessage(_ context.Context, conversation domain.ConversationID, id domain.MessageID) error {
	return h.emit(conversation, Event{Type: EventDelete, ID: int64(id)})
}

func (h *Hub) SendPhoto(_ context.Context, conversation domain.ConversationID, url string) error {
	return h.emit(conversation, Event{Type: EventPhoto, ID: h.nextID.Add(1), URL: url})
}

func (h *Hub) SendVoice(_ context.Context, conversation domain.ConversationID, audio []byte) error {
	return h.emit(conversation, Event{Type: EventVoice, ID: h.nextID.Add(1), Audio: audio})
}
