package hub

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"live-trivia-service/internal/domain"
)

// sendQueueSize bounds the per-connection outbound queue; a client that falls
// this far behind is dropped by the broadcaster.
const sendQueueSize = 256

// Client binds one live socket to (session code, participant id, display
// name). It carries no scoring authority and dies with the connection.
type Client struct {
	ID            string
	SessionCode   string
	ParticipantID int64
	DisplayName   string

	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

func newClient(h *Hub, conn *websocket.Conn, code string, participantID int64, name string) *Client {
	return &Client{
		ID:            uuid.NewString(),
		SessionCode:   code,
		ParticipantID: participantID,
		DisplayName:   name,
		hub:           h,
		conn:          conn,
		send:          make(chan []byte, sendQueueSize),
	}
}

// readPump consumes inbound messages until the socket fails. Liveness pings
// are answered here; everything else goes to the installed handler.
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.hub.log.Warn().Err(err).Str("client", c.ID).Msg("websocket read failed")
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.hub.log.Warn().Err(err).Str("client", c.ID).Msg("malformed inbound message")
			continue
		}

		switch msg.Type {
		case domain.MsgPing:
			c.hub.ReplyDirect(c, domain.EventPong, "pong")
		default:
			if c.hub.onMessage != nil {
				c.hub.onMessage(c, msg)
			}
		}
	}
}

// writePump is the only goroutine writing to the socket. It drains the send
// queue and emits a close frame when the hub drops the client.
func (c *Client) writePump() {
	defer c.conn.Close()

	for data := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
	_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}
