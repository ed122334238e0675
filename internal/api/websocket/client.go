package websocket

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Time allowed for the auth message after connecting
	authWait = 10 * time.Second

	// Maximum message size allowed from peer
	maxMessageSize = 8192

	// Send channel buffer size
	sendBufferSize = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Client represents a WebSocket client connection
type Client struct {
	hub  *Hub
	conn *websocket.Conn

	// send carries broadcasts and is closed by the hub; replies carries
	// answers to this client's own requests and is never closed.
	send     chan []byte
	replies  chan []byte
	logger   *zap.Logger
	username string
	role     string
}

// run authenticates the client and then pumps messages until the
// connection ends.
func (c *Client) run() {
	defer c.conn.Close()

	c.conn.SetReadLimit(maxMessageSize)
	if !c.authenticate() {
		return
	}

	if !c.hub.registerClient(c) {
		return
	}
	defer c.hub.unregisterClient(c)

	// writePump ist ab hier der einzige Schreiber
	go c.writePump()

	if c.hub.snapshots != nil {
		c.queue(NewSnapshotMessage(c.hub.snapshots.Snapshot()))
	}
	c.readPump()
}

// authenticate reads the first message, which must be an auth message
// with a valid token, and answers it directly.
func (c *Client) authenticate() bool {
	c.conn.SetReadDeadline(time.Now().Add(authWait))

	var msg clientMessage
	if err := c.conn.ReadJSON(&msg); err != nil {
		c.logger.Debug("WebSocket closed before authentication", zap.Error(err))
		return false
	}

	if msg.Type != MessageTypeAuth {
		c.writeDirect(NewMessage(MessageTypeAuthFailed, AuthFailedData{Reason: "First message must be authentication"}))
		return false
	}
	if msg.Token == "" {
		c.writeDirect(NewMessage(MessageTypeAuthFailed, AuthFailedData{Reason: "Missing token in auth message"}))
		return false
	}

	claims, err := c.hub.validator.ValidateToken(msg.Token)
	if err != nil {
		c.logger.Warn("WebSocket authentication failed",
			zap.Error(err),
			zap.String("remote_addr", c.conn.RemoteAddr().String()))
		c.writeDirect(NewMessage(MessageTypeAuthFailed, AuthFailedData{Reason: "Invalid or expired token"}))
		return false
	}

	c.username = claims.Subject
	c.role = string(claims.Role)
	c.conn.SetReadDeadline(time.Time{})

	if err := c.writeDirect(NewMessage(MessageTypeAuthSuccess, AuthSuccessData{Username: c.username, Role: c.role})); err != nil {
		return false
	}
	c.logger.Info("WebSocket client authenticated",
		zap.String("remote_addr", c.conn.RemoteAddr().String()),
		zap.String("username", c.username))
	return true
}

// writeDirect writes msg on the connection. Only valid before writePump runs.
func (c *Client) writeDirect(msg Message) error {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(msg)
}

// queue hands a reply to writePump without blocking.
func (c *Client) queue(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		c.logger.Error("Failed to marshal message", zap.Error(err))
		return
	}
	select {
	case c.replies <- data:
	default:
		c.logger.Warn("Client send buffer full, message dropped",
			zap.String("message_type", string(msg.Type)))
	}
}

// readPump handles client requests after authentication
func (c *Client) readPump() {
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg clientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseNormalClosure) {
				c.logger.Warn("WebSocket read error",
					zap.Error(err),
					zap.String("remote_addr", c.conn.RemoteAddr().String()))
			}
			return
		}
		c.handleMessage(msg)
	}
}

func (c *Client) handleMessage(msg clientMessage) {
	switch msg.Type {
	case MessageTypeSnapshotRequest:
		if c.hub.snapshots == nil {
			c.queue(NewMessage(MessageTypeError, "snapshots not available"))
			return
		}
		c.queue(NewSnapshotMessage(c.hub.snapshots.Snapshot()))
	default:
		c.queue(NewMessage(MessageTypeError, "unknown message type "+string(msg.Type)))
	}
}

// writePump handles writing messages to the WebSocket connection
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
				// Hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case message := <-c.replies:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
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

// ServeWs handles WebSocket upgrade requests. Clients must authenticate
// with their first message.
func ServeWs(hub *Hub, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.logger.Error("WebSocket upgrade error",
			zap.Error(err),
			zap.String("remote_addr", r.RemoteAddr))
		return
	}

	client := &Client{
		hub:     hub,
		conn:    conn,
		send:    make(chan []byte, sendBufferSize),
		replies: make(chan []byte, sendBufferSize),
		logger:  hub.logger,
	}

	go client.run()
}
