package conversation

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mjchen/parley/internal/model/chat"
	conversationService "github.com/mjchen/parley/internal/service/conversation"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

type inboundFrame struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
}

type outboundFrame struct {
	Type      string `json:"type"`
	TurnID    string `json:"turnId,omitempty"`
	Content   string `json:"content,omitempty"`
	Error     string `json:"error,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// handleWebSocket serves the websocket variant of the message exchange: the
// client sends {"type":"message","message":"..."} frames and receives delta,
// message, and error frames. Exchanges remain single-flight; frames arriving
// while one is running are answered with an error frame.
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := h.lookup(w, r)
	if !ok {
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[ws] upgrade failed for conversation=%s: %v", ctrl.ID(), err)
		return
	}
	defer conn.Close()

	log.Printf("[ws] connection opened for conversation=%s", ctrl.ID())

	for {
		var frame inboundFrame
		if err := conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[ws] read error for conversation=%s: %v", ctrl.ID(), err)
			}
			return
		}

		switch frame.Type {
		case "message":
			h.serveExchange(conn, ctrl, frame.Message, r)
		case "ping":
			writeFrame(conn, outboundFrame{Type: "pong"})
		default:
			writeFrame(conn, outboundFrame{Type: "error", Error: "unknown frame type"})
		}
	}
}

func (h *Handler) serveExchange(conn *websocket.Conn, ctrl *conversationService.Controller, message string, r *http.Request) {
	if strings.TrimSpace(message) == "" {
		writeFrame(conn, outboundFrame{Type: "error", Error: "message is required"})
		return
	}

	final, err := ctrl.Submit(r.Context(), message, func(turn chat.Turn) {
		writeFrame(conn, outboundFrame{Type: "delta", TurnID: turn.ID, Content: turn.Text})
	})
	if err != nil {
		writeFrame(conn, outboundFrame{Type: "error", TurnID: final.ID, Content: final.Text, Error: err.Error()})
		return
	}

	writeFrame(conn, outboundFrame{Type: "message", TurnID: final.ID, Content: final.Text})
}

func writeFrame(conn *websocket.Conn, frame outboundFrame) {
	frame.Timestamp = time.Now().UnixMilli()
	data, err := json.Marshal(frame)
	if err != nil {
		log.Printf("[ws] failed to marshal frame: %v", err)
		return
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		log.Printf("[ws] failed to write frame: %v", err)
	}
}
