package websocket

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/jmr-leaderboard/internal/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1024
	sendBuffer     = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Game clients and dashboards connect from any origin.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Client is one websocket connection
type Client struct {
	id     string
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	logger *slog.Logger
}

// ClientMessage is a request frame from a client
type ClientMessage struct {
	Type string       `json:"type"`
	Mode *domain.Mode `json:"mode,omitempty"`
}

func newClient(hub *Hub, conn *websocket.Conn, logger *slog.Logger) *Client {
	id := uuid.NewString()
	return &Client{
		id:     id,
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		logger: logger.With("client_id", id),
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn("websocket read failed", "error", err)
			}
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.reply(MessageTypeError, nil, map[string]string{"error": "invalid message format"})
			continue
		}
		c.handle(msg)
	}
}

func (c *Client) handle(msg ClientMessage) {
	switch msg.Type {
	case MessageTypeSubscribe, MessageTypeUnsubscribe:
		if msg.Mode == nil || !msg.Mode.Valid() {
			c.reply(MessageTypeError, nil, map[string]string{"error": domain.ErrInvalidMode.Error()})
			return
		}
		if msg.Type == MessageTypeSubscribe {
			c.hub.Subscribe(c, *msg.Mode)
			c.reply(MessageTypeSubscribed, msg.Mode, nil)
		} else {
			c.hub.Unsubscribe(c, *msg.Mode)
			c.reply(MessageTypeUnsubscribed, msg.Mode, nil)
		}

	case MessageTypePing:
		c.reply(MessageTypePong, nil, nil)

	default:
		c.logger.Debug("unknown message type", "type", msg.Type)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			// One frame per message; clients parse each frame as JSON.
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// reply queues a direct answer. It never blocks the read loop.
func (c *Client) reply(kind string, mode *domain.Mode, data any) {
	payload, err := json.Marshal(Message{Type: kind, Mode: mode, Data: data, Timestamp: time.Now()})
	if err != nil {
		return
	}
	select {
	case c.send <- payload:
	default:
	}
}

// ServeWs upgrades the request and attaches the connection to hub
func ServeWs(hub *Hub, logger *slog.Logger, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := newClient(hub, conn, logger)
	if !hub.Register(client) {
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}
