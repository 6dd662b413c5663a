package http

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"live-trivia-service/internal/app"
	"live-trivia-service/internal/domain"
	"live-trivia-service/internal/hub"
)

// WSHandler upgrades participant connections and wires them into the hub.
// It also installs the hub's engine callbacks: resync requests are answered
// with a direct game_state_sync, and a host disconnect force-finishes the
// session.
type WSHandler struct {
	ctrl     *app.Controller
	hub      *hub.Hub
	upgrader websocket.Upgrader
	log      zerolog.Logger
}

func NewWSHandler(ctrl *app.Controller, h *hub.Hub, log zerolog.Logger) *WSHandler {
	ws := &WSHandler{
		ctrl: ctrl,
		hub:  h,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		log: log,
	}
	h.SetMessageHandler(ws.handleMessage)
	h.SetHostDisconnectHandler(ctrl.HandleHostDisconnect)
	return ws
}

// RegisterRoutes mounts the websocket endpoint.
func (ws *WSHandler) RegisterRoutes(r gin.IRouter) {
	r.GET("/ws/:code/:participantID", ws.ServeWS)
}

// ServeWS validates that the participant belongs to the session, upgrades the
// connection, and hands it to the hub.
func (ws *WSHandler) ServeWS(c *gin.Context) {
	code := app.NormalizeCode(c.Param("code"))
	participantID, err := strconv.ParseInt(c.Param("participantID"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid participant id"})
		return
	}
	name := c.Query("name")

	snap, err := ws.ctrl.GameState(c.Request.Context(), code)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	if participantID != domain.HostParticipantID {
		player := snap.Player(participantID)
		if player == nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "participant not found in session"})
			return
		}
		if name == "" {
			name = player.Name
		}
	}

	conn, err := ws.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		ws.log.Warn().Err(err).Str("session", code).Msg("websocket upgrade failed")
		return
	}

	client := ws.hub.Register(conn, code, participantID, name)

	// Reconnecting clients get state immediately instead of waiting for the
	// next broadcast.
	ws.hub.ReplyDirect(client, domain.EventGameStateSync, syncPayload(snap))
}

// handleMessage answers resynchronization requests with a direct reply so a
// reconnect never wakes unrelated connections.
func (ws *WSHandler) handleMessage(c *hub.Client, msg hub.Message) {
	switch msg.Type {
	case domain.MsgPlayerReady, domain.MsgRequestGameState:
		snap, err := ws.ctrl.GameState(context.Background(), c.SessionCode)
		if err != nil {
			ws.hub.ReplyDirect(c, domain.EventError, gin.H{"message": err.Error()})
			return
		}
		ws.hub.ReplyDirect(c, domain.EventGameStateSync, syncPayload(snap))
	default:
		ws.hub.ReplyDirect(c, domain.EventError, gin.H{"message": "unsupported message type"})
	}
}

func syncPayload(snap *domain.SessionSnapshot) domain.GameStateSyncPayload {
	return domain.GameStateSyncPayload{
		GameStatus:           snap.Status,
		CurrentQuestionIndex: snap.CurrentQuestionIndex,
		CurrentQuestion:      snap.CurrentQuestion,
		Players:              snap.Players,
	}
}
