package archive

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	archiveService "github.com/mjchen/parley/internal/service/archive"
	"github.com/mjchen/parley/pkg/utils"
)

// Handler exposes archived conversation snapshots.
type Handler struct {
	store *archiveService.Store
}

// New creates the archive handler.
func New(store *archiveService.Store) *Handler {
	return &Handler{store: store}
}

// RegisterRoutes mounts the archive routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/archive", h.handleList)
	r.Get("/archive/stats", h.handleStats)
	r.Delete("/archive/{snapshotID}", h.handleDelete)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.store.List(r.Context()))
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.store.UsageStats(r.Context()))
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "snapshotID")
	if err := h.store.Delete(r.Context(), id); err != nil {
		if errors.Is(err, archiveService.ErrSnapshotNotFound) {
			utils.RespondError(w, http.StatusNotFound, "snapshot not found")
			return
		}
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
