package service

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tieubaoca/edu-assistant/types"
	"go.uber.org/zap"
)

const (
	wsReadLimit  = 512 * 1024
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 50 * time.Second
	wsWriteWait  = 10 * time.Second
)

type WebSocketService struct {
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

func NewWebSocketService(logger *zap.Logger) *WebSocketService {
	return &WebSocketService{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins (adjust for production)
			},
		},
		logger: logger,
	}
}

// wsConn serializes writes; gorilla connections allow one concurrent writer.
type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsConn) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return c.conn.WriteJSON(v)
}

func (c *wsConn) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait))
}

func (c *wsConn) writeError(msg string) error {
	return c.writeJSON(types.WebSocketResponse{
		Type:    types.TypeWebsocketError,
		Payload: types.WebSocketErrorResponse{Error: msg},
	})
}

// HandleChat upgrades the request and answers chat messages with chat until
// the client disconnects. Answers are streamed as chunk messages followed by
// one chat message holding the full answer.
func (s *WebSocketService) HandleChat(w http.ResponseWriter, r *http.Request, chat ChatService) {
	raw, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer raw.Close()
	conn := &wsConn{conn: raw}

	raw.SetReadLimit(wsReadLimit)
	raw.SetReadDeadline(time.Now().Add(wsPongWait))
	raw.SetPongHandler(func(string) error {
		raw.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go func() {
		ticker := time.NewTicker(wsPingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := conn.ping(); err != nil {
					cancel()
					return
				}
			}
		}
	}()

	for {
		_, p, err := raw.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("websocket read error", zap.Error(err))
			}
			return
		}
		raw.SetReadDeadline(time.Now().Add(wsPongWait))

		var req types.WebsocketRequest
		if err := json.Unmarshal(p, &req); err != nil {
			s.logger.Debug("invalid websocket message", zap.Error(err))
			conn.writeError("invalid message")
			continue
		}

		switch req.Type {
		case types.TypeWebsocketChat:
			if err := s.answer(ctx, conn, chat, req.Payload); err != nil {
				return
			}
		case types.TypeWebsocketPing:
			if err := conn.writeJSON(types.WebSocketResponse{Type: types.TypeWebsocketPong}); err != nil {
				return
			}
		default:
			conn.writeError("unknown message type " + req.Type)
		}
	}
}

// answer runs one chat turn. It returns an error only when the connection
// can no longer be written to.
func (s *WebSocketService) answer(ctx context.Context, conn *wsConn, chat ChatService, raw any) error {
	payloadBytes, err := json.Marshal(raw)
	if err != nil {
		return conn.writeError("invalid chat payload")
	}
	var payload types.WebSocketChatPayload
	if err := json.Unmarshal(payloadBytes, &payload); err != nil || len(payload.Messages) == 0 {
		return conn.writeError("invalid chat payload")
	}

	var (
		full     strings.Builder
		writeErr error
	)
	err = chat.ChatStream(ctx, payload.Messages, func(delta string) {
		full.WriteString(delta)
		if writeErr != nil {
			return
		}
		writeErr = conn.writeJSON(types.WebSocketResponse{
			Type:    types.TypeWebsocketChunk,
			Payload: types.WebSocketChatResponse{Message: delta},
		})
	})
	if writeErr != nil {
		return writeErr
	}
	if err != nil {
		s.logger.Error("chat failed", zap.Error(err))
		return conn.writeError("failed to generate an answer")
	}
	return conn.writeJSON(types.WebSocketResponse{
		Type:    types.TypeWebsocketChat,
		Payload: types.WebSocketChatResponse{Message: full.String()},
	})
}
