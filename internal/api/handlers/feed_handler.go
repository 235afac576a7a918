package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"agromarket-notifier/internal/domain"
	"agromarket-notifier/internal/services"
	"agromarket-notifier/pkg/logger"

	"github.com/labstack/echo/v4"
)

const feedHeartbeat = 15 * time.Second

// FeedHandler streams a session's live feed to the browser over SSE: alerts
// from the dispatcher plus invalidation and reveal signals off the bus,
// filtered down to the requesting session.
type FeedHandler struct {
	sessions *services.SessionManager
	feeds    *services.FeedManager
	bus      domain.SignalBus
	log      logger.Logger
}

func NewFeedHandler(sessions *services.SessionManager, feeds *services.FeedManager,
	bus domain.SignalBus, log logger.Logger) *FeedHandler {
	return &FeedHandler{
		sessions: sessions,
		feeds:    feeds,
		bus:      bus,
		log:      log,
	}
}

func (h *FeedHandler) StreamFeed(c echo.Context) error {
	sessionID := c.Param("id")

	session, ok := h.sessions.Session(sessionID)
	if !ok {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "No active session"})
	}

	alerts, cancelAlerts := h.feeds.Subscribe(sessionID)
	defer cancelAlerts()
	reveals, cancelReveals := h.bus.Subscribe(domain.TopicReveal)
	defer cancelReveals()
	lists, cancelLists := h.bus.Subscribe(domain.TopicAuctionList)
	defer cancelLists()
	details, cancelDetails := h.bus.Subscribe(domain.TopicAuctionDetail)
	defer cancelDetails()

	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, "text/event-stream")
	resp.Header().Set("Cache-Control", "no-cache")
	resp.Header().Set("Connection", "keep-alive")
	resp.WriteHeader(http.StatusOK)
	resp.Flush()

	h.log.Info("Feed stream open", "session_id", sessionID, "user_id", session.UserID)

	heartbeat := time.NewTicker(feedHeartbeat)
	defer heartbeat.Stop()

	ctx := c.Request().Context()

	for {
		select {
		case msg, open := <-alerts:
			if !open {
				// Session logged out; end the stream.
				return nil
			}
			if err := writeFrame(resp, msg); err != nil {
				return nil
			}

		case sig, open := <-reveals:
			if !open {
				return nil
			}
			if sig.SessionID != sessionID {
				continue
			}
			if err := writeFrame(resp, feedSignal("reveal", sig)); err != nil {
				return nil
			}

		case sig, open := <-lists:
			if !open {
				return nil
			}
			if sig.UserID != session.UserID {
				continue
			}
			if err := writeFrame(resp, feedSignal("invalidate", sig)); err != nil {
				return nil
			}

		case sig, open := <-details:
			if !open {
				return nil
			}
			if sig.UserID != session.UserID {
				continue
			}
			if err := writeFrame(resp, feedSignal("invalidate", sig)); err != nil {
				return nil
			}

		case <-heartbeat.C:
			if _, err := fmt.Fprint(resp, ": ping\n\n"); err != nil {
				return nil
			}
			resp.Flush()
			if err := h.sessions.Touch(ctx, sessionID); err != nil {
				h.log.Warn("Failed to refresh session TTL", "session_id", sessionID, "error", err)
			}

		case <-ctx.Done():
			return nil
		}
	}
}

func feedSignal(msgType string, sig domain.Signal) domain.FeedMessage {
	return domain.FeedMessage{
		Type:      msgType,
		Topic:     sig.Topic,
		AuctionID: sig.AuctionID,
		Timestamp: time.Now(),
	}
}

func writeFrame(resp *echo.Response, msg domain.FeedMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(resp, "data: %s\n\n", data); err != nil {
		return err
	}
	resp.Flush()
	return nil
}
