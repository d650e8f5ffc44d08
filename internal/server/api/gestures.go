package api

import (
	"errors"
	"net/http"

	"github.com/ayusman/mudra/internal/store"
)

// GestureHandler serves the label catalog under /api/gestures.
type GestureHandler struct {
	store *store.Store
}

// NewGestureHandler creates a new GestureHandler with the given store.
func NewGestureHandler(s *store.Store) *GestureHandler {
	return &GestureHandler{store: s}
}

type listGesturesResponse struct {
	Gestures []*store.Gesture `json:"gestures"`
}

// ServeHTTP routes /api/gestures and /api/gestures/{label}.
func (h *GestureHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	label := itemID(r.URL.Path, "/api/gestures")

	if label == "" {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.list(w, r)
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.get(w, r, label)
	case http.MethodDelete:
		h.delete(w, r, label)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *GestureHandler) list(w http.ResponseWriter, r *http.Request) {
	gestures, err := h.store.Gestures().List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list gestures")
		return
	}
	if gestures == nil {
		gestures = []*store.Gesture{}
	}
	writeJSON(w, http.StatusOK, listGesturesResponse{Gestures: gestures})
}

func (h *GestureHandler) get(w http.ResponseWriter, r *http.Request, label string) {
	g, err := h.store.Gestures().GetByLabel(label)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Gesture not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get gesture")
		return
	}
	writeJSON(w, http.StatusOK, g)
}

// delete removes the catalog entry only; the label's sample file stays on disk.
func (h *GestureHandler) delete(w http.ResponseWriter, r *http.Request, label string) {
	if err := h.store.Gestures().Delete(label); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Gesture not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to delete gesture")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
