// Package handlers provides HTTP API request handlers.
package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/agent-relay/backend/internal/model"
	"github.com/agent-relay/backend/internal/session"
)

// SessionHandler handles HTTP requests for session management.
type SessionHandler struct {
	manager *session.Manager
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(manager *session.Manager) *SessionHandler {
	return &SessionHandler{manager: manager}
}

// CreateSessionRequest represents the request body for creating a session.
type CreateSessionRequest struct {
	Cwd     string `json:"cwd" binding:"required"`
	Name    string `json:"name"`
	Context string `json:"context"`
}

// SessionResponse represents a session in API responses.
type SessionResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Cwd         string `json:"cwd"`
	State       string `json:"state"`
	Subscribers int    `json:"subscribers"`
	CreatedAt   string `json:"createdAt"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error details.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func toSessionResponse(s model.SessionSummary) *SessionResponse {
	return &SessionResponse{
		ID:          s.ID,
		Name:        s.Name,
		Cwd:         s.Cwd,
		State:       string(s.State),
		Subscribers: s.Subscribers,
		CreatedAt:   s.CreatedAt.Format(time.RFC3339),
	}
}

// sendError sends an error response with the appropriate status code.
func sendError(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// Create handles POST /api/sessions - creates a new session.
func (h *SessionHandler) Create(c *gin.Context) {
	var req CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body: "+err.Error())
		return
	}

	sess, err := h.manager.Create(&model.CreateSessionRequest{
		Name:    req.Name,
		Cwd:     req.Cwd,
		Context: req.Context,
	})
	if err != nil {
		if errors.Is(err, model.ErrCwdRequired) {
			sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
			return
		}
		if errors.Is(err, model.ErrSessionLimit) {
			sendError(c, http.StatusTooManyRequests, "LIMIT_EXCEEDED", err.Error())
			return
		}
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to create session: "+err.Error())
		return
	}

	c.JSON(http.StatusCreated, toSessionResponse(sess.Summary()))
}

// List handles GET /api/sessions - lists all live sessions.
func (h *SessionHandler) List(c *gin.Context) {
	sessions := h.manager.List()
	response := make([]*SessionResponse, 0, len(sessions))
	for _, sess := range sessions {
		response = append(response, toSessionResponse(sess.Summary()))
	}
	c.JSON(http.StatusOK, response)
}

// Get handles GET /api/sessions/:id - gets a specific session with its
// full message log.
func (h *SessionHandler) Get(c *gin.Context) {
	sessionID := c.Param("id")
	if sessionID == "" {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Session ID is required")
		return
	}

	sess, ok := h.manager.Get(sessionID)
	if !ok {
		sendError(c, http.StatusNotFound, "SESSION_NOT_FOUND", "Session "+sessionID+" not found")
		return
	}

	c.JSON(http.StatusOK, sess.Snapshot())
}

// Delete handles DELETE /api/sessions/:id - closes a session.
func (h *SessionHandler) Delete(c *gin.Context) {
	sessionID := c.Param("id")
	if sessionID == "" {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Session ID is required")
		return
	}

	if _, ok := h.manager.Get(sessionID); !ok {
		sendError(c, http.StatusNotFound, "SESSION_NOT_FOUND", "Session "+sessionID+" not found")
		return
	}

	h.manager.Close(sessionID)
	c.Status(http.StatusNoContent)
}

// RegisterRoutes registers the session handler routes on a Gin router group.
func (h *SessionHandler) RegisterRoutes(rg *gin.RouterGroup) {
	sessions := rg.Group("/sessions")
	{
		sessions.POST("", h.Create)
		sessions.GET("", h.List)
		sessions.GET("/:id", h.Get)
		sessions.DELETE("/:id", h.Delete)
	}
}
