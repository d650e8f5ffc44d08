package api

import (
	"errors"
	"net/http"

	"github.com/ayusman/mudra/internal/store"
)

// CaptureHandler serves recorded dataset capture sessions under /api/captures.
type CaptureHandler struct {
	store *store.Store
}

// NewCaptureHandler creates a CaptureHandler.
func NewCaptureHandler(s *store.Store) *CaptureHandler {
	return &CaptureHandler{store: s}
}

type listCapturesResponse struct {
	Captures []*store.CaptureSession `json:"captures"`
}

func (h *CaptureHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if id := itemID(r.URL.Path, "/api/captures"); id != "" {
		session, err := h.store.Captures().GetByID(id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				writeError(w, http.StatusNotFound, "Capture session not found")
				return
			}
			writeError(w, http.StatusInternalServerError, "Failed to get capture session")
			return
		}
		writeJSON(w, http.StatusOK, session)
		return
	}

	sessions, err := h.store.Captures().List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list capture sessions")
		return
	}
	if sessions == nil {
		sessions = []*store.CaptureSession{}
	}
	writeJSON(w, http.StatusOK, listCapturesResponse{Captures: sessions})
}
