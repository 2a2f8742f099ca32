package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/kishlaychandan/feedback-backend/internal/feedback"
	"github.com/kishlaychandan/feedback-backend/internal/model"
)

const (
	wsHistoryTurns   = 10
	wsMessageTimeout = time.Minute
	wsReadLimit      = 64 << 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type WSMessage struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// HandleWebSocket runs every "message" frame through the feedback pipeline
// and keeps a rolling history for the socket.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	zoneID := strings.TrimSpace(q.Get("zoneId"))
	if zoneID == "" {
		writeJSONError(w, http.StatusBadRequest, "zoneId is required")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(wsReadLimit)

	session := &chatSession{
		conn:      conn,
		handler:   h,
		zoneID:    zoneID,
		sessionID: strings.TrimSpace(q.Get("sessionId")),
		clientIP:  clientIP(r),
	}
	session.run()
}

type chatSession struct {
	conn      *websocket.Conn
	handler   *Handler
	zoneID    string
	sessionID string
	clientIP  string
	history   []model.Turn
}

func (s *chatSession) run() {
	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("websocket read failed", "zone_id", s.zoneID, "error", err)
			}
			return
		}

		var msg WSMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			s.sendError("invalid message format")
			continue
		}

		switch msg.Type {
		case "message":
			s.handleMessage(msg.Content)
		default:
			s.sendError("unsupported message type")
		}
	}
}

func (s *chatSession) handleMessage(content string) {
	ctx, cancel := context.WithTimeout(context.Background(), wsMessageTimeout)
	defer cancel()

	history := make([]model.Turn, len(s.history))
	copy(history, s.history)

	resp, err := s.handler.svc.Handle(ctx, feedback.Request{
		Message:   content,
		ZoneID:    s.zoneID,
		SessionID: s.sessionID,
		History:   history,
		ClientIP:  s.clientIP,
		RequestID: uuid.NewString(),
	})
	if err != nil {
		var fe *feedback.Error
		if errors.As(err, &fe) {
			s.sendError(fe.Message)
			return
		}
		slog.Error("websocket feedback failed", "zone_id", s.zoneID, "error", err)
		s.sendError("internal error")
		return
	}

	if s.sessionID == "" {
		s.sessionID = resp.SessionID
	}
	s.remember(model.Turn{Role: model.RoleUser, Text: resp.OriginalMessage})
	s.remember(model.Turn{Role: model.RoleAssistant, Text: resp.Response})
	s.send(WSMessage{Type: "response", Data: resp})
}

func (s *chatSession) remember(t model.Turn) {
	s.history = append(s.history, t)
	if n := len(s.history); n > wsHistoryTurns {
		s.history = append([]model.Turn(nil), s.history[n-wsHistoryTurns:]...)
	}
}

func (s *chatSession) send(msg WSMessage) {
	if err := s.conn.WriteJSON(msg); err != nil {
		slog.Warn("websocket write failed", "zone_id", s.zoneID, "error", err)
	}
}

func (s *chatSession) sendError(message string) {
	s.send(WSMessage{Type: "error", Content: message})
}
