package ws

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/QsSama-W/nimingChat/internal/chat"
	"github.com/QsSama-W/nimingChat/internal/domain"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	sendBuffer = 256
)

// EventHandler receives what a client reads off its socket.
// *chat.Dispatcher satisfies it.
type EventHandler interface {
	Connect(p chat.Peer) bool
	Dispatch(p chat.Peer, f domain.Frame)
	Disconnect(p chat.Peer)
}

// Client represents a single websocket connection
type Client struct {
	id      string
	token   string
	hub     *Hub
	handler EventHandler
	conn    *websocket.Conn
	send    chan []byte
}

// NewClient creates a client with a fresh connection id. token is the
// session token presented at upgrade time.
func NewClient(hub *Hub, handler EventHandler, conn *websocket.Conn, token string) *Client {
	return &Client{
		id:      uuid.NewString(),
		token:   token,
		hub:     hub,
		handler: handler,
		conn:    conn,
		send:    make(chan []byte, sendBuffer),
	}
}

// ID returns the connection id.
func (c *Client) ID() string {
	return c.id
}

// SessionToken returns the token the connection was opened with.
func (c *Client) SessionToken() string {
	return c.token
}

// Serve registers the client and runs it until the socket closes. A
// connection without a valid session gets login_required but stays open;
// every event it sends is checked again.
func (c *Client) Serve() {
	c.hub.Register(c)
	go c.WritePump()

	if !c.handler.Connect(c) {
		c.hub.log.Debug("connection without session", "conn", c.id)
	}
	c.ReadPump()
}

// ReadPump pumps frames from the websocket connection to the handler
func (c *Client) ReadPump() {
	defer func() {
		c.handler.Disconnect(c)
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.hub.readLimit)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Debug("websocket closed unexpectedly", "conn", c.id, "err", err)
			}
			break
		}

		var frame domain.Frame
		if err := json.Unmarshal(message, &frame); err != nil {
			// Silent continue - frame content is never logged
			continue
		}
		c.handler.Dispatch(c, frame)
	}
}

// WritePump pumps messages from the hub to the websocket connection.
// Each queued event goes out as its own text frame.
func (c *Client) WritePump() {
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
				// Hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
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
