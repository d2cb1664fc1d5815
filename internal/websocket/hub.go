package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/jmr-leaderboard/internal/domain"
)

// Message types
const (
	MessageTypeRankingUpdate = "ranking_update"
	MessageTypeSubscribe     = "subscribe"
	MessageTypeUnsubscribe   = "unsubscribe"
	MessageTypeSubscribed    = "subscribed"
	MessageTypeUnsubscribed  = "unsubscribed"
	MessageTypePing          = "ping"
	MessageTypePong          = "pong"
	MessageTypeError         = "error"
)

// Message is the envelope of every frame sent to clients
type Message struct {
	Type      string       `json:"type"`
	Mode      *domain.Mode `json:"mode,omitempty"`
	Data      any          `json:"data,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
}

// Hub tracks connected clients and their mode subscriptions
type Hub struct {
	clients    map[domain.Mode]map[*Client]struct{}
	allClients map[*Client]struct{}

	register    chan *Client
	unregister  chan *Client
	broadcast   chan *Message
	subscribe   chan subscription
	unsubscribe chan subscription

	mu     sync.RWMutex
	done   chan struct{}
	logger *slog.Logger
}

type subscription struct {
	client *Client
	mode   domain.Mode
}

// NewHub creates a new Hub
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients:     make(map[domain.Mode]map[*Client]struct{}),
		allClients:  make(map[*Client]struct{}),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		broadcast:   make(chan *Message, 256),
		subscribe:   make(chan subscription, 64),
		unsubscribe: make(chan subscription, 64),
		done:        make(chan struct{}),
		logger:      logger,
	}
}

// Run serves hub requests until ctx is cancelled
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("websocket hub started")
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			h.logger.Info("websocket hub stopped")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.allClients[client] = struct{}{}
			h.mu.Unlock()
			h.logger.Debug("client registered", "client_id", client.id)

		case client := <-h.unregister:
			h.drop(client)
			h.logger.Debug("client unregistered", "client_id", client.id)

		case sub := <-h.subscribe:
			h.mu.Lock()
			if _, ok := h.allClients[sub.client]; ok {
				if h.clients[sub.mode] == nil {
					h.clients[sub.mode] = make(map[*Client]struct{})
				}
				h.clients[sub.mode][sub.client] = struct{}{}
			}
			h.mu.Unlock()

		case sub := <-h.unsubscribe:
			h.mu.Lock()
			h.removeSubscription(sub.client, sub.mode)
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.fanOut(message)
		}
	}
}

func (h *Hub) drop(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.allClients[client]; !ok {
		return
	}
	delete(h.allClients, client)
	for mode := range h.clients {
		h.removeSubscription(client, mode)
	}
	close(client.send)
}

// removeSubscription expects h.mu to be held
func (h *Hub) removeSubscription(client *Client, mode domain.Mode) {
	subs, ok := h.clients[mode]
	if !ok {
		return
	}
	delete(subs, client)
	if len(subs) == 0 {
		delete(h.clients, mode)
	}
}

// shutdown closes connections; each read pump then exits on its own.
func (h *Hub) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.allClients {
		client.conn.Close()
	}
	h.allClients = make(map[*Client]struct{})
	h.clients = make(map[domain.Mode]map[*Client]struct{})
}

func (h *Hub) fanOut(message *Message) {
	data, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("failed to marshal message", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	targets := h.allClients
	if message.Mode != nil {
		targets = h.clients[*message.Mode]
	}
	for client := range targets {
		select {
		case client.send <- data:
		default:
			h.logger.Warn("client buffer full, skipping", "client_id", client.id)
		}
	}
}

// BroadcastRankingUpdate queues a refreshed view for the mode's subscribers.
// The update is dropped when the queue is full.
func (h *Hub) BroadcastRankingUpdate(mode domain.Mode, view domain.RankingView) {
	message := &Message{
		Type:      MessageTypeRankingUpdate,
		Mode:      &mode,
		Data:      view,
		Timestamp: time.Now(),
	}

	select {
	case h.broadcast <- message:
	default:
		h.logger.Warn("broadcast channel full, dropping ranking update", "mode", mode)
	}
}

// Register adds a client to the hub
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

// Unregister removes a client from the hub
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Subscribe adds a client to a mode's subscribers
func (h *Hub) Subscribe(client *Client, mode domain.Mode) {
	select {
	case h.subscribe <- subscription{client: client, mode: mode}:
	case <-h.done:
	}
}

// Unsubscribe removes a client from a mode's subscribers
func (h *Hub) Unsubscribe(client *Client, mode domain.Mode) {
	select {
	case h.unsubscribe <- subscription{client: client, mode: mode}:
	case <-h.done:
	}
}

// GetSubscriberCount returns the number of subscribers of a mode
func (h *Hub) GetSubscriberCount(mode domain.Mode) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[mode])
}

// GetTotalConnections returns the total number of connected clients
func (h *Hub) GetTotalConnections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.allClients)
}
