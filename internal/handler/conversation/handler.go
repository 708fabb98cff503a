package conversation

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	conversationService "github.com/mjchen/parley/internal/service/conversation"
	"github.com/mjchen/parley/pkg/utils"
)

// Handler exposes conversations over HTTP.
type Handler struct {
	manager *conversationService.Manager
}

// New creates the conversation handler.
func New(manager *conversationService.Manager) *Handler {
	return &Handler{manager: manager}
}

// RegisterRoutes mounts the conversation routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/conversations", h.handleCreate)
	r.Get("/conversations/{conversationID}", h.handleGet)
	r.Post("/conversations/{conversationID}/messages", h.handleSendMessage)
	r.Get("/conversations/{conversationID}/ws", h.handleWebSocket)
	r.Put("/conversations/{conversationID}/persona", h.handleSwitchPersona)
	r.Post("/conversations/{conversationID}/reset", h.handleReset)
	r.Delete("/conversations/{conversationID}/error", h.handleDismissError)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		PersonaID string `json:"personaId"`
	}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			utils.RespondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	// Explicit persona beats the remembered preference cookie; the
	// controller falls back to the catalog head when both are absent.
	personaID := payload.PersonaID
	if personaID == "" {
		personaID = readPersonaCookie(r)
	}

	ctrl, err := h.manager.Create(r.Context(), personaID)
	if err != nil {
		if errors.Is(err, conversationService.ErrNoPersonas) {
			utils.RespondError(w, http.StatusServiceUnavailable, "no personas configured")
			return
		}
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if active, ok := ctrl.ActivePersona(); ok {
		setPersonaCookie(w, active.ID)
	}
	utils.RespondJSON(w, http.StatusCreated, ctrl.Snapshot())
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := h.lookup(w, r)
	if !ok {
		return
	}
	utils.RespondJSON(w, http.StatusOK, ctrl.Snapshot())
}

func (h *Handler) handleSwitchPersona(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := h.lookup(w, r)
	if !ok {
		return
	}

	var payload struct {
		PersonaID string `json:"personaId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if payload.PersonaID == "" {
		utils.RespondError(w, http.StatusBadRequest, "personaId is required")
		return
	}

	if err := ctrl.SwitchPersona(r.Context(), payload.PersonaID); err != nil {
		if errors.Is(err, conversationService.ErrPersonaNotFound) {
			utils.RespondError(w, http.StatusBadRequest, "persona not found")
			return
		}
		// Handle rebuild failures are recoverable; the switch itself stuck.
		utils.RespondJSON(w, http.StatusOK, ctrl.Snapshot())
		return
	}

	if active, ok := ctrl.ActivePersona(); ok {
		setPersonaCookie(w, active.ID)
	}
	utils.RespondJSON(w, http.StatusOK, ctrl.Snapshot())
}

func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := h.lookup(w, r)
	if !ok {
		return
	}

	if err := ctrl.Reset(r.Context()); err != nil {
		if errors.Is(err, conversationService.ErrExchangeInFlight) {
			utils.RespondError(w, http.StatusConflict, "an exchange is in progress")
			return
		}
		utils.RespondJSON(w, http.StatusOK, ctrl.Snapshot())
		return
	}
	utils.RespondJSON(w, http.StatusOK, ctrl.Snapshot())
}

func (h *Handler) handleDismissError(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := h.lookup(w, r)
	if !ok {
		return
	}
	ctrl.ClearError()
	utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "dismissed"})
}

func (h *Handler) lookup(w http.ResponseWriter, r *http.Request) (*conversationService.Controller, bool) {
	id := chi.URLParam(r, "conversationID")
	ctrl, err := h.manager.Get(id)
	if err != nil {
		utils.RespondError(w, http.StatusNotFound, "conversation not found")
		return nil, false
	}
	return ctrl, true
}
