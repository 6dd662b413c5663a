package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"live-trivia-service/internal/app"
)

// userIDHeader carries the authenticated requester id, stamped by the
// upstream auth layer. Authentication itself lives outside this service.
const userIDHeader = "X-User-ID"

// GameHandler exposes the control-plane operations: each route maps 1:1 to a
// Controller operation and returns its outcome synchronously.
type GameHandler struct {
	ctrl *app.Controller
	log  zerolog.Logger
}

func NewGameHandler(ctrl *app.Controller, log zerolog.Logger) *GameHandler {
	return &GameHandler{ctrl: ctrl, log: log}
}

// RegisterRoutes mounts the game API under /api/games.
func (h *GameHandler) RegisterRoutes(r gin.IRouter) {
	games := r.Group("/api/games")
	games.POST("", h.CreateSession)
	games.POST("/:code/activate", h.ActivateSession)
	games.POST("/:code/advance", h.AdvanceQuestion)
	games.POST("/:code/join", h.JoinSession)
	games.POST("/:code/answer", h.SubmitAnswer)
	games.GET("/:code", h.GetSession)
}

type createSessionRequest struct {
	QuizID int64 `json:"quiz_id" binding:"required"`
}

func (h *GameHandler) CreateSession(c *gin.Context) {
	userID, ok := requesterID(c)
	if !ok {
		return
	}
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rec, err := h.ctrl.CreateSession(c.Request.Context(), req.QuizID, userID)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, rec)
}

func (h *GameHandler) ActivateSession(c *gin.Context) {
	userID, ok := requesterID(c)
	if !ok {
		return
	}
	if err := h.ctrl.ActivateSession(c.Request.Context(), c.Param("code"), userID); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "session activated"})
}

func (h *GameHandler) AdvanceQuestion(c *gin.Context) {
	userID, ok := requesterID(c)
	if !ok {
		return
	}
	if err := h.ctrl.AdvanceQuestion(c.Request.Context(), c.Param("code"), userID); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "advanced"})
}

type joinSessionRequest struct {
	Name string `json:"name" binding:"required"`
}

func (h *GameHandler) JoinSession(c *gin.Context) {
	var req joinSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	p, err := h.ctrl.JoinSession(c.Request.Context(), c.Param("code"), req.Name)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, p)
}

type submitAnswerRequest struct {
	ParticipantID int64 `json:"participant_id" binding:"required"`
	QuestionID    int64 `json:"question_id" binding:"required"`
	OptionID      int64 `json:"option_id" binding:"required"`
	TimeSpent     int   `json:"time_spent"`
}

func (h *GameHandler) SubmitAnswer(c *gin.Context) {
	var req submitAnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rec, err := h.ctrl.SubmitAnswer(c.Request.Context(), c.Param("code"),
		req.ParticipantID, req.QuestionID, req.OptionID, req.TimeSpent)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "answer submitted", "points": rec.Points})
}

func (h *GameHandler) GetSession(c *gin.Context) {
	snap, err := h.ctrl.GameState(c.Request.Context(), c.Param("code"))
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, snap)
}

func requesterID(c *gin.Context) (int64, bool) {
	raw := c.GetHeader(userIDHeader)
	if raw == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing " + userIDHeader + " header"})
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid " + userIDHeader + " header"})
		return 0, false
	}
	return id, true
}
