// Package api exposes the assistant over HTTP.
package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/Chative-Billing-Assistant/agent/contract"
)

const DefaultThreadID = "default_user"

// ChatService is the assistant as seen by the transport.
type ChatService interface {
	HandleMessage(ctx context.Context, threadID, text string) ([]contractx.VisibleMessage, error)
	History(ctx context.Context, threadID string) ([]contractx.VisibleMessage, error)
}

type Handler struct {
	svc             ChatService
	defaultThreadID string
}

func NewHandler(svc ChatService, defaultThreadID string) *Handler {
	if strings.TrimSpace(defaultThreadID) == "" {
		defaultThreadID = DefaultThreadID
	}
	return &Handler{svc: svc, defaultThreadID: defaultThreadID}
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.POST("/chat", h.Chat)
	e.GET("/threads/:thread_id/messages", h.ThreadMessages)
	e.GET("/health", h.Health)
}

type ChatRequest struct {
	Message  string `json:"message"`
	ThreadID string `json:"thread_id"`
}

// Chat runs one turn and returns the messages it made visible.
func (h *Handler) Chat(c echo.Context) error {
	var req ChatRequest
	if err := c.Bind(&req); err != nil {
		return h.fail(c, "", fmt.Errorf("%w: malformed request body: %v", contractx.ErrValidation, err))
	}
	threadID := strings.TrimSpace(req.ThreadID)
	if threadID == "" {
		threadID = h.defaultThreadID
	}

	log.Info().Str("thread_id", threadID).Int("message_len", len(req.Message)).Msg("chat request received")
	msgs, err := h.svc.HandleMessage(c.Request().Context(), threadID, req.Message)
	if err != nil {
		return h.fail(c, threadID, err)
	}
	return c.JSON(http.StatusOK, nonNil(msgs))
}

func (h *Handler) ThreadMessages(c echo.Context) error {
	threadID := c.Param("thread_id")
	msgs, err := h.svc.History(c.Request().Context(), threadID)
	if err != nil {
		return h.fail(c, threadID, err)
	}
	return c.JSON(http.StatusOK, nonNil(msgs))
}

func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) fail(c echo.Context, threadID string, err error) error {
	appErr := classify(err)
	log.Error().
		Err(err).
		Str("thread_id", threadID).
		Str("error_code", appErr.Code).
		Int("status", appErr.Status).
		Msg("chat request failed")
	return c.JSON(appErr.Status, appErr.Body())
}

func nonNil(msgs []contractx.VisibleMessage) []contractx.VisibleMessage {
	if msgs == nil {
		return []contractx.VisibleMessage{}
	}
	return msgs
}
