package api

import (
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	wsReadLimit    = 64 * 1024
	wsPongWait     = 60 * time.Second
	wsPingInterval = 50 * time.Second
	wsWriteWait    = 10 * time.Second
)

// newTurnUpgrader accepts browser sockets from the frontend origin or the
// serving host. Clients that send no Origin header are not browsers and pass.
func newTurnUpgrader(allowedOrigin string) websocket.Upgrader {
	allowedOrigin = strings.TrimRight(strings.TrimSpace(allowedOrigin), "/")

	return websocket.Upgrader{
		ReadBufferSize:  4 * 1024,
		WriteBufferSize: 4 * 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			if allowedOrigin != "" && strings.EqualFold(strings.TrimRight(origin, "/"), allowedOrigin) {
				return true
			}
			u, err := url.Parse(origin)
			if err != nil {
				return false
			}
			return strings.EqualFold(u.Host, r.Host)
		},
	}
}

type wsClientFrame struct {
	Type          string `json:"type"`
	Message       string `json:"message"`
	UsePerplexity bool   `json:"usePerplexity"`
}

// handleConversationWebsocket runs turns over a socket bound to one
// conversation. Frames are handled in order, so a client cannot overlap turns.
func (h *Handler) handleConversationWebsocket(c *gin.Context) {
	id := c.Param("id")
	ip := clientIP(c)

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.String("conversation_id", id), zap.Error(err))
		return
	}
	defer conn.Close()

	var writeMu sync.Mutex
	sendJSON := func(payload interface{}) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		return conn.WriteJSON(payload)
	}

	conn.SetReadLimit(wsReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(wsPingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				writeMu.Lock()
				err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait))
				writeMu.Unlock()
				if err != nil {
					return
				}
			}
		}
	}()

	for {
		var frame wsClientFrame
		if err := conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Warn("websocket read failed", zap.String("conversation_id", id), zap.Error(err))
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))

		switch frame.Type {
		case "ping":
			if err := sendJSON(gin.H{"type": "pong"}); err != nil {
				return
			}
		case "message":
			if h.turnLimiter != nil && !h.turnLimiter.Allow(ip) {
				if err := sendJSON(gin.H{"type": "error", "status": http.StatusTooManyRequests, "error": msgTooManyRequests}); err != nil {
					return
				}
				continue
			}
			result, err := h.chat.SendMessage(c.Request.Context(), id, frame.Message, frame.UsePerplexity)
			if err != nil {
				status, body := turnErrorResponse(err)
				if status >= http.StatusInternalServerError {
					h.logger.Error("error processing message", zap.String("conversation_id", id), zap.Error(err))
				}
				if err := sendJSON(gin.H{"type": "error", "status": status, "error": body["error"]}); err != nil {
					return
				}
				continue
			}
			if err := sendJSON(gin.H{
				"type":           "message",
				"message":        result.Message,
				"conversationId": result.ConversationID,
			}); err != nil {
				return
			}
		default:
			if err := sendJSON(gin.H{"type": "error", "status": http.StatusBadRequest, "error": "unsupported frame type"}); err != nil {
				return
			}
		}
	}
}
