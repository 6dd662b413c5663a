// Package hub owns the set of live participant connections per session and
// fans events out to them. It knows nothing about scoring; the only coupling
// to the engine is the host-disconnect callback and the inbound message
// handler installed at wiring time.
package hub

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"live-trivia-service/internal/domain"
)

// Message is the wire envelope for both directions.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// MessageHandler processes inbound messages that need engine state, such as
// resynchronization requests.
type MessageHandler func(c *Client, msg Message)

// Hub is the connection registry. One mutex guards the whole client set so a
// broadcast can never observe a half-updated registry.
type Hub struct {
	log zerolog.Logger

	mu       sync.Mutex
	sessions map[string]map[*Client]struct{}

	onMessage  MessageHandler
	onHostGone func(code string)
}

func New(log zerolog.Logger) *Hub {
	return &Hub{
		log:      log,
		sessions: make(map[string]map[*Client]struct{}),
	}
}

// SetMessageHandler installs the handler for inbound non-ping messages.
// Must be called before the first Register.
func (h *Hub) SetMessageHandler(fn MessageHandler) {
	h.onMessage = fn
}

// SetHostDisconnectHandler installs the callback invoked when the host
// sentinel connection for a session goes away. Must be called before the
// first Register.
func (h *Hub) SetHostDisconnectHandler(fn func(code string)) {
	h.onHostGone = fn
}

func normalize(code string) string {
	return strings.ToLower(strings.TrimSpace(code))
}

// Register binds a socket to a session and starts its pumps.
func (h *Hub) Register(conn *websocket.Conn, sessionCode string, participantID int64, displayName string) *Client {
	c := newClient(h, conn, normalize(sessionCode), participantID, displayName)

	h.mu.Lock()
	clients, ok := h.sessions[c.SessionCode]
	if !ok {
		clients = make(map[*Client]struct{})
		h.sessions[c.SessionCode] = clients
	}
	clients[c] = struct{}{}
	total := len(clients)
	h.mu.Unlock()

	h.log.Info().Str("session", c.SessionCode).Str("client", c.ID).
		Int64("participant", participantID).Str("name", displayName).
		Int("session_clients", total).Msg("client registered")

	go c.writePump()
	go c.readPump()
	return c
}

// Unregister removes the connection. A departing host sentinel triggers the
// force-finish callback; a departing player is announced to the rest of the
// session.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	removed := h.removeLocked(c)
	h.mu.Unlock()
	if !removed {
		return
	}

	h.log.Info().Str("session", c.SessionCode).Str("client", c.ID).
		Int64("participant", c.ParticipantID).Msg("client unregistered")

	if c.ParticipantID == domain.HostParticipantID {
		if h.onHostGone != nil {
			h.onHostGone(c.SessionCode)
		}
		return
	}
	h.BroadcastToSession(c.SessionCode, domain.EventPlayerUpdate, domain.PlayerUpdatePayload{
		Action: "left",
		Player: domain.Participant{ID: c.ParticipantID, Name: c.DisplayName},
	})
}

// removeLocked deletes the client and closes its send queue exactly once.
// Callers must hold h.mu.
func (h *Hub) removeLocked(c *Client) bool {
	clients, ok := h.sessions[c.SessionCode]
	if !ok {
		return false
	}
	if _, ok := clients[c]; !ok {
		return false
	}
	delete(clients, c)
	if len(clients) == 0 {
		delete(h.sessions, c.SessionCode)
	}
	close(c.send)
	return true
}

// BroadcastToSession serializes the event once and delivers it to every
// connection of the session. A connection with a full send queue is dropped
// rather than allowed to block the dispatch path.
func (h *Hub) BroadcastToSession(code, eventType string, payload any) {
	data, err := marshalEvent(eventType, payload)
	if err != nil {
		h.log.Error().Err(err).Str("event", eventType).Msg("marshal broadcast failed")
		return
	}
	code = normalize(code)

	var dropped []*Client
	h.mu.Lock()
	for c := range h.sessions[code] {
		select {
		case c.send <- data:
		default:
			h.removeLocked(c)
			dropped = append(dropped, c)
		}
	}
	h.mu.Unlock()

	for _, c := range dropped {
		h.log.Warn().Str("session", code).Str("client", c.ID).
			Int64("participant", c.ParticipantID).Msg("send queue full, dropping connection")
	}
}

// ReplyDirect sends an event to a single connection, bypassing the broadcast
// path so a resync never wakes unrelated clients. The send happens under the
// registry lock: a client that has already been removed (and its send queue
// closed) is silently skipped.
func (h *Hub) ReplyDirect(c *Client, eventType string, payload any) {
	data, err := marshalEvent(eventType, payload)
	if err != nil {
		h.log.Error().Err(err).Str("event", eventType).Msg("marshal reply failed")
		return
	}

	dropped := false
	h.mu.Lock()
	if _, ok := h.sessions[c.SessionCode][c]; !ok {
		h.mu.Unlock()
		return
	}
	select {
	case c.send <- data:
	default:
		h.removeLocked(c)
		dropped = true
	}
	h.mu.Unlock()

	if dropped {
		h.log.Warn().Str("session", c.SessionCode).Str("client", c.ID).Msg("send queue full on direct reply, dropping connection")
	}
}

// IsHostConnected reports whether the host sentinel has a live connection.
func (h *Hub) IsHostConnected(code string) bool {
	code = normalize(code)
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.sessions[code] {
		if c.ParticipantID == domain.HostParticipantID {
			return true
		}
	}
	return false
}

// ConnectedParticipants lists the participant ids with live connections.
func (h *Hub) ConnectedParticipants(code string) []int64 {
	code = normalize(code)
	h.mu.Lock()
	defer h.mu.Unlock()
	ids := make([]int64, 0, len(h.sessions[code]))
	for c := range h.sessions[code] {
		ids = append(ids, c.ParticipantID)
	}
	return ids
}

func marshalEvent(eventType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Message{Type: eventType, Payload: raw})
}
