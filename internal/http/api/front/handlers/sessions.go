package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tatlabs/tatserver/internal/analysis"
	"github.com/tatlabs/tatserver/internal/models"
	"github.com/tatlabs/tatserver/internal/session"
	"gorm.io/gorm"
)

// SessionHandler drives the test session lifecycle.
type SessionHandler struct {
	sessions *session.Service
	analysis *analysis.Service
}

// NewSessionHandler constructs a SessionHandler.
func NewSessionHandler(sessions *session.Service, analysisSvc *analysis.Service) *SessionHandler {
	return &SessionHandler{sessions: sessions, analysis: analysisSvc}
}

// Get returns a session with its authoritative remaining time.
func (h *SessionHandler) Get(c *gin.Context) {
	userID := getUserID(c)
	sessionID, ok := parseIDParam(c, "id")
	if userID == 0 || !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session id"})
		return
	}

	sess, errLoad := h.sessions.Load(c.Request.Context(), sessionID, userID)
	if errLoad != nil {
		if errors.Is(errLoad, session.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "load session failed"})
		return
	}
	c.JSON(http.StatusOK, formatSession(sess))
}

// completeSessionRequest defines the request body for completion.
type completeSessionRequest struct {
	Story string `json:"story"`
}

// Complete submits the story and finishes the session.
func (h *SessionHandler) Complete(c *gin.Context) {
	userID := getUserID(c)
	sessionID, ok := parseIDParam(c, "id")
	if userID == 0 || !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session id"})
		return
	}

	var body completeSessionRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(body.Story) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "story is required"})
		return
	}

	sess, errComplete := h.sessions.Complete(c.Request.Context(), sessionID, userID, body.Story)
	if errComplete != nil {
		h.writeTransitionError(c, errComplete)
		return
	}
	c.JSON(http.StatusOK, formatSession(sess))
}

// Abandon finishes the session without a story.
func (h *SessionHandler) Abandon(c *gin.Context) {
	userID := getUserID(c)
	sessionID, ok := parseIDParam(c, "id")
	if userID == 0 || !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session id"})
		return
	}

	sess, errAbandon := h.sessions.Abandon(c.Request.Context(), sessionID, userID)
	if errAbandon != nil {
		h.writeTransitionError(c, errAbandon)
		return
	}
	c.JSON(http.StatusOK, formatSession(sess))
}

// Pause suspends the countdown.
func (h *SessionHandler) Pause(c *gin.Context) {
	userID := getUserID(c)
	sessionID, ok := parseIDParam(c, "id")
	if userID == 0 || !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session id"})
		return
	}

	sess, errPause := h.sessions.Pause(c.Request.Context(), sessionID, userID)
	if errPause != nil {
		h.writeTransitionError(c, errPause)
		return
	}
	c.JSON(http.StatusOK, formatSession(sess))
}

// Resume restarts the countdown of a paused session.
func (h *SessionHandler) Resume(c *gin.Context) {
	userID := getUserID(c)
	sessionID, ok := parseIDParam(c, "id")
	if userID == 0 || !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session id"})
		return
	}

	sess, errResume := h.sessions.Resume(c.Request.Context(), sessionID, userID)
	if errResume != nil {
		h.writeTransitionError(c, errResume)
		return
	}
	c.JSON(http.StatusOK, formatSession(sess))
}

// Analysis returns the LLM analysis for a completed session, producing it on
// first request.
func (h *SessionHandler) Analysis(c *gin.Context) {
	userID := getUserID(c)
	sessionID, ok := parseIDParam(c, "id")
	if userID == 0 || !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session id"})
		return
	}

	result, errAnalyze := h.analysis.AnalyzeSession(c.Request.Context(), sessionID, userID)
	if errAnalyze != nil {
		switch {
		case errors.Is(errAnalyze, gorm.ErrRecordNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		case errors.Is(errAnalyze, analysis.ErrNotCompleted):
			c.JSON(http.StatusConflict, gin.H{"error": "session not completed"})
		case errors.Is(errAnalyze, analysis.ErrUnavailable):
			c.JSON(http.StatusBadGateway, gin.H{"error": "analysis temporarily unavailable"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "analysis failed"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"session_id": result.SessionID,
		"result":     result.Result,
		"model":      result.Model,
		"created_at": result.CreatedAt,
	})
}

// writeTransitionError maps session transition errors to HTTP responses.
func (h *SessionHandler) writeTransitionError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
	case errors.Is(err, session.ErrSessionFinished):
		c.JSON(http.StatusConflict, gin.H{"error": "session already finished"})
	case errors.Is(err, session.ErrNotActive):
		c.JSON(http.StatusConflict, gin.H{"error": "session is not active"})
	case errors.Is(err, session.ErrNotPaused):
		c.JSON(http.StatusConflict, gin.H{"error": "session is not paused"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "session update failed"})
	}
}

// formatSession converts a session model to a response payload.
func formatSession(sess *models.TestSession) gin.H {
	return gin.H{
		"id":                sess.ID,
		"test_id":           sess.TestID,
		"status":            sess.Status,
		"started_at":        sess.StartedAt,
		"completed_at":      sess.CompletedAt,
		"duration_seconds":  sess.DurationSeconds,
		"remaining_seconds": session.Remaining(sess, time.Now().UTC()),
		"story":             sess.Story,
	}
}
