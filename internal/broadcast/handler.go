package broadcast

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pingPeriod     = 25 * time.Second
	pongWait       = pingPeriod * 2
	maxMessageSize = 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// controlFrame is the client->server subscribe/unsubscribe protocol
// (spec §4.11).
type controlFrame struct {
	Op    string `json:"op"`
	Topic string `json:"topic"`
}

// Handler upgrades HTTP connections into hub-registered WebSocket
// clients. Grounded on backendService/websocket.Handler's
// HandleWebSocket/readPump/writePump split, with the teacher's fixed
// "dashboard" channel model replaced by the spec's explicit
// subscribe/unsubscribe control protocol and hello frame.
type Handler struct {
	hub *Hub
	log *zap.Logger
}

// NewHandler builds a Handler bound to hub.
func NewHandler(hub *Hub, log *zap.Logger) *Handler {
	return &Handler{hub: hub, log: log}
}

// ServeWS is the gin handler for the /ws route.
func (h *Handler) ServeWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("broadcast: upgrade failed", zap.Error(err))
		return
	}

	client := newClient(generateClientID(), conn)
	h.hub.Register <- client

	go h.writePump(client)
	go h.readPump(client)
}

func (h *Handler) readPump(c *Client) {
	defer func() {
		h.hub.Unregister <- c
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	h.sendHello(c)

	for {
		_, raw, err := c.Conn.ReadMessage()
		if err != nil {
			return
		}
		h.handleControlFrame(c, raw)
	}
}

func (h *Handler) handleControlFrame(c *Client, raw []byte) {
	var frame controlFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		h.sendJSON(c, gin.H{"ok": false, "error": "invalid_json"})
		return
	}

	switch frame.Op {
	case "subscribe":
		h.hub.Subscribe(c, frame.Topic)
		h.sendJSON(c, gin.H{"ok": true, "subscribed": frame.Topic})
	case "unsubscribe":
		h.hub.Unsubscribe(c, frame.Topic)
		h.sendJSON(c, gin.H{"ok": true, "unsubscribed": frame.Topic})
	default:
		h.sendJSON(c, gin.H{"ok": false, "error": "unknown_op"})
	}
}

func (h *Handler) sendHello(c *Client) {
	h.sendJSON(c, gin.H{"ok": true, "hello": "degenter-ws", "path": "/ws"})
}

func (h *Handler) sendJSON(c *Client, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	select {
	case c.Send <- b:
	default:
		h.log.Warn("broadcast: client send buffer full on control reply", zap.String("client_id", c.ID))
	}
}

func (h *Handler) writePump(c *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func generateClientID() string {
	return "ws-" + uuid.NewString()
}
