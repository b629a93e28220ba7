package handlers

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/mediadash/backend/internal/core/services"
	"github.com/mediadash/backend/internal/domain"
	"github.com/mediadash/backend/internal/infrastructure/logger"
)

const dashWriteTimeout = 10 * time.Second

// DashHandler serves the /dashws status feed.
type DashHandler struct {
	feed   *services.StatusFeed
	logger *logger.Logger
}

func NewDashHandler(feed *services.StatusFeed, logger *logger.Logger) *DashHandler {
	return &DashHandler{feed: feed, logger: logger}
}

func (h *DashHandler) Handle(c *websocket.Conn) {
	remote := c.RemoteAddr().String()
	h.logger.Infow("dashws_connected", "remote", remote, "server_id", h.feed.ServerID())

	// Stream goroutines share the connection with error replies from Handle.
	var writeMu sync.Mutex
	send := func(env domain.Envelope) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		c.SetWriteDeadline(time.Now().Add(dashWriteTimeout))
		return c.WriteJSON(env)
	}

	session := h.feed.NewSession(context.Background(), send)

	// Unblock the read loop when a stream fails to write.
	stop := make(chan struct{})
	watcherDone := make(chan struct{})
	go func() {
		defer close(watcherDone)
		select {
		case <-session.Done():
			c.Close()
		case <-stop:
		}
	}()
	defer func() {
		close(stop)
		<-watcherDone
		session.Close()
		h.logger.Infow("dashws_disconnected", "remote", remote)
	}()

	for {
		msgType, msg, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Warnw("dashws_read_failed", "remote", remote, "error", err)
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		if err := session.Handle(msg); err != nil && !errors.Is(err, services.ErrFeedUnknownCommand) {
			h.logger.Warnw("dashws_command_failed", "remote", remote, "error", err)
			return
		}
	}
}
