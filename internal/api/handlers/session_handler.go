package handlers

import (
	"errors"
	"net/http"

	"agromarket-notifier/internal/services"
	"agromarket-notifier/pkg/logger"

	"github.com/labstack/echo/v4"
)

type SessionHandler struct {
	sessions *services.SessionManager
	log      logger.Logger
}

type LoginRequest struct {
	UserID string `json:"user_id"`
	Token  string `json:"token"`
}

type LoginResponse struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
}

func NewSessionHandler(sessions *services.SessionManager, log logger.Logger) *SessionHandler {
	return &SessionHandler{
		sessions: sessions,
		log:      log,
	}
}

func (h *SessionHandler) Login(c echo.Context) error {
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		h.log.Error("Failed to bind login request", "error", err)
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}

	session, err := h.sessions.Login(c.Request().Context(), req.UserID, req.Token)
	if err != nil {
		if errors.Is(err, services.ErrInvalidCredentials) {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "user_id and token required"})
		}
		h.log.Error("Failed to start session", "user_id", req.UserID, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to start session"})
	}

	h.log.Info("Session created", "session_id", session.ID, "user_id", session.UserID)
	return c.JSON(http.StatusCreated, LoginResponse{
		SessionID: session.ID,
		UserID:    session.UserID,
	})
}

func (h *SessionHandler) Logout(c echo.Context) error {
	sessionID := c.Param("id")

	if err := h.sessions.Logout(c.Request().Context(), sessionID); err != nil {
		h.log.Error("Failed to end session", "session_id", sessionID, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to end session"})
	}

	return c.NoContent(http.StatusNoContent)
}
