package conversation

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/mjchen/parley/internal/model/chat"
	conversationService "github.com/mjchen/parley/internal/service/conversation"
	"github.com/mjchen/parley/pkg/utils"
)

// streamEvent is one frame of a streamed exchange, shared by the SSE and
// websocket transports.
type streamEvent struct {
	Event          string `json:"event"`
	ConversationID string `json:"conversationId,omitempty"`
	TurnID         string `json:"turnId,omitempty"`
	Content        string `json:"content,omitempty"`
	Finished       bool   `json:"finished,omitempty"`
	Error          string `json:"error,omitempty"`
}

// handleSendMessage runs one exchange and streams the placeholder updates
// back over Server-Sent Events. Each delta frame carries the whole
// accumulated text, not an increment: the UI renders replacements.
func (h *Handler) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := h.lookup(w, r)
	if !ok {
		return
	}

	var payload struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(payload.Message) == "" {
		utils.RespondError(w, http.StatusBadRequest, "message is required")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	utils.SetupSSEHeaders(w)

	conversationID := ctrl.ID()
	if active, hasPersona := ctrl.ActivePersona(); hasPersona {
		utils.SendSSEChunk(w, flusher, streamEvent{
			Event:          "start",
			ConversationID: conversationID,
			Content:        fmt.Sprintf("%s is typing", active.Name),
		})
	}

	final, err := ctrl.Submit(r.Context(), payload.Message, func(turn chat.Turn) {
		utils.SendSSEChunk(w, flusher, streamEvent{
			Event:          "delta",
			ConversationID: conversationID,
			TurnID:         turn.ID,
			Content:        turn.Text,
		})
	})
	if err != nil {
		status := "exchange failed"
		if errors.Is(err, conversationService.ErrExchangeInFlight) {
			status = "another exchange is in progress"
		}
		log.Printf("[sse] exchange error for conversation=%s: %v", conversationID, err)
		utils.SendSSEChunk(w, flusher, streamEvent{
			Event:          "error",
			ConversationID: conversationID,
			TurnID:         final.ID,
			Content:        final.Text,
			Error:          status,
		})
		return
	}

	utils.SendSSEChunk(w, flusher, streamEvent{
		Event:          "message",
		ConversationID: conversationID,
		TurnID:         final.ID,
		Content:        final.Text,
	})
	utils.SendSSEChunk(w, flusher, streamEvent{
		Event:          "end",
		ConversationID: conversationID,
		Finished:       true,
	})

	log.Printf("[sse] completed exchange for conversation=%s", conversationID)
}
